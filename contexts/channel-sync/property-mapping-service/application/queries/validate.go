package queries

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"meridian/contexts/channel-sync/property-mapping-service/domain/entities"
	domainerrors "meridian/contexts/channel-sync/property-mapping-service/domain/errors"
	"meridian/contexts/channel-sync/property-mapping-service/ports"
)

// Issue is one configuration problem found by the validator.
type Issue struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Fixable  bool   `json:"fixable"`
	Critical bool   `json:"critical"`
}

// Report is the validation outcome for one property.
type Report struct {
	PropertyID string  `json:"property_id"`
	HotelCode  string  `json:"hotel_code"`
	Active     bool    `json:"active"`
	Issues     []Issue `json:"issues"`
}

// Clean reports whether the property passed without findings.
func (r Report) Clean() bool {
	return len(r.Issues) == 0
}

// HasCritical reports whether any finding blocks syncing.
func (r Report) HasCritical() bool {
	for _, issue := range r.Issues {
		if issue.Critical {
			return true
		}
	}
	return false
}

// ConfigValidator inspects mapping rows for operational readiness. Backs the
// validate-config admin command.
type ConfigValidator struct {
	Mappings ports.MappingRepository
	Clock    ports.Clock
}

// ValidateProperty checks one property's active mapping.
func (v ConfigValidator) ValidateProperty(ctx context.Context, propertyID string) (Report, error) {
	mapping, found, err := v.Mappings.ActiveByProperty(ctx, propertyID)
	if err != nil {
		return Report{}, err
	}
	if !found {
		return Report{}, domainerrors.ErrMappingNotFound
	}
	return v.check(mapping), nil
}

// ValidateAll checks every mapping, active or not.
func (v ConfigValidator) ValidateAll(ctx context.Context) ([]Report, error) {
	mappings, err := v.Mappings.List(ctx)
	if err != nil {
		return nil, err
	}
	reports := make([]Report, 0, len(mappings))
	for _, mapping := range mappings {
		reports = append(reports, v.check(mapping))
	}
	return reports, nil
}

// Fix applies defaults for every fixable finding of a property and returns
// the fixed issue codes.
func (v ConfigValidator) Fix(ctx context.Context, propertyID string) ([]string, error) {
	mapping, found, err := v.Mappings.ActiveByProperty(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domainerrors.ErrMappingNotFound
	}
	var fixed []string
	if mapping.Config.Sync.BatchSize <= 0 || mapping.Config.Sync.BatchSize > 1000 {
		mapping.Config.Sync.BatchSize = DefaultBatchSize
		fixed = append(fixed, "sync_batch_size")
	}
	if mapping.Config.Sync.RetryAttempts <= 0 || mapping.Config.Sync.RetryAttempts > 10 {
		mapping.Config.Sync.RetryAttempts = DefaultRetryAttempts
		fixed = append(fixed, "sync_retry_attempts")
	}
	if mapping.Config.Sync.IntervalSeconds < 60 {
		mapping.Config.Sync.IntervalSeconds = DefaultIntervalSeconds
		fixed = append(fixed, "sync_interval")
	}
	if mapping.Config.WSSEHotelCode == "" {
		mapping.Config.WSSEHotelCode = mapping.HotelCode
		fixed = append(fixed, "wsse_hotel_code")
	}
	if len(fixed) == 0 {
		return nil, nil
	}
	mapping.UpdatedAt = v.Clock.Now()
	if err := v.Mappings.Save(ctx, mapping); err != nil {
		return nil, err
	}
	return fixed, nil
}

func (v ConfigValidator) check(mapping entities.PropertyMapping) Report {
	report := Report{
		PropertyID: mapping.PropertyID,
		HotelCode:  mapping.HotelCode,
		Active:     mapping.Active,
	}
	add := func(code, message string, fixable, critical bool) {
		report.Issues = append(report.Issues, Issue{Code: code, Message: message, Fixable: fixable, Critical: critical})
	}

	if !entities.HotelCodePattern.MatchString(mapping.HotelCode) {
		add("hotel_code_format", fmt.Sprintf("hotel code %q is not 1-10 decimal digits", mapping.HotelCode), false, true)
	}
	if strings.TrimSpace(mapping.Config.Username) == "" {
		add("missing_username", "channel username is not set", false, true)
	}
	if strings.TrimSpace(mapping.Config.Password) == "" {
		add("missing_password", "channel password is not set", false, true)
	}
	if endpoint := strings.TrimSpace(mapping.Config.EndpointURL); endpoint != "" {
		parsed, err := url.Parse(endpoint)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			add("endpoint_url", fmt.Sprintf("endpoint override %q is not a valid http(s) URL", endpoint), false, true)
		}
	}
	flags := mapping.Config.Features
	if !flags.Inventory && !flags.Rates && !flags.Restrictions && !flags.Reservations && !flags.GroupBlocks {
		add("no_features", "no message kinds are enabled for this property", false, false)
	}
	if mapping.Config.Sync.BatchSize <= 0 || mapping.Config.Sync.BatchSize > 1000 {
		add("sync_batch_size", fmt.Sprintf("batch size %d is out of range, default is %d", mapping.Config.Sync.BatchSize, DefaultBatchSize), true, false)
	}
	if mapping.Config.Sync.RetryAttempts <= 0 || mapping.Config.Sync.RetryAttempts > 10 {
		add("sync_retry_attempts", fmt.Sprintf("retry attempts %d is out of range, default is %d", mapping.Config.Sync.RetryAttempts, DefaultRetryAttempts), true, false)
	}
	if mapping.Config.Sync.IntervalSeconds < 60 {
		add("sync_interval", fmt.Sprintf("sync interval %ds is under the 60s floor, default is %ds", mapping.Config.Sync.IntervalSeconds, DefaultIntervalSeconds), true, false)
	}
	if mapping.Config.WSSEHotelCode == "" {
		add("wsse_hotel_code", "WSSE hotel code is empty, the mapping's hotel code will be used", true, false)
	}
	return report
}
