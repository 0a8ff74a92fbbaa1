package entities

import (
	"regexp"
	"time"
)

// External hotel codes are 1-10 decimal digits; internal property codes are
// 3-20 alphanumerics.
var (
	HotelCodePattern    = regexp.MustCompile(`^\d{1,10}$`)
	InternalCodePattern = regexp.MustCompile(`^[A-Za-z0-9]{3,20}$`)
)

// FeatureFlags switches message kinds on or off per property.
type FeatureFlags struct {
	Inventory    bool `json:"inventory"`
	Rates        bool `json:"rates"`
	Restrictions bool `json:"restrictions"`
	Reservations bool `json:"reservations"`
	GroupBlocks  bool `json:"group_blocks"`
}

// SyncSettings tunes the outbound scheduler per property.
type SyncSettings struct {
	BatchSize       int `json:"batch_size"`
	RetryAttempts   int `json:"retry_attempts"`
	IntervalSeconds int `json:"interval_seconds"`
}

// MappingConfig is the per-property configuration stored on the mapping row.
type MappingConfig struct {
	Username      string       `json:"username"`
	Password      string       `json:"password"`
	WSSEHotelCode string       `json:"wsse_hotel_code"`
	EndpointURL   string       `json:"endpoint_url"`
	Features      FeatureFlags `json:"features"`
	Sync          SyncSettings `json:"sync"`
}

// PropertyMapping associates an internal property with an external hotel
// code. At most one active mapping per property and per hotel code.
type PropertyMapping struct {
	ID         string
	PropertyID string
	HotelCode  string
	Active     bool
	Config     MappingConfig
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CodeOverrides carries the optional per-property room-type and rate-plan
// translations and excludes from the overrides file.
type CodeOverrides struct {
	RoomTypes         map[string]string `yaml:"room_types"`
	RatePlans         map[string]string `yaml:"rate_plans"`
	ExcludedRoomTypes []string          `yaml:"exclude_room_types"`
	ExcludedRatePlans []string          `yaml:"exclude_rate_plans"`
}

// PropertyConfig is the derived runtime view of an active mapping. Rebuilt
// whenever the mapping changes.
type PropertyConfig struct {
	PropertyID    string
	HotelCode     string
	Username      string
	Password      string
	WSSEHotelCode string
	EndpointURL   string
	Features      FeatureFlags
	Sync          SyncSettings
	Overrides     CodeOverrides
	DerivedAt     time.Time
}

// KindEnabled reports whether a message kind is switched on for the property.
func (c PropertyConfig) KindEnabled(kind string) bool {
	switch kind {
	case "inventory":
		return c.Features.Inventory
	case "rates":
		return c.Features.Rates
	case "restrictions":
		return c.Features.Restrictions
	case "reservation":
		return c.Features.Reservations
	case "group_block":
		return c.Features.GroupBlocks
	}
	return false
}

// MapRoomType applies the override table, falling back to the PMS code.
func (c PropertyConfig) MapRoomType(code string) string {
	if mapped, ok := c.Overrides.RoomTypes[code]; ok {
		return mapped
	}
	return code
}

// MapRatePlan applies the override table, falling back to the PMS code.
func (c PropertyConfig) MapRatePlan(code string) string {
	if mapped, ok := c.Overrides.RatePlans[code]; ok {
		return mapped
	}
	return code
}

// RoomTypeExcluded reports whether a room type is withheld from the channel.
func (c PropertyConfig) RoomTypeExcluded(code string) bool {
	for _, excluded := range c.Overrides.ExcludedRoomTypes {
		if excluded == code {
			return true
		}
	}
	return false
}

// RatePlanExcluded reports whether a rate plan is withheld from the channel.
func (c PropertyConfig) RatePlanExcluded(code string) bool {
	for _, excluded := range c.Overrides.ExcludedRatePlans {
		if excluded == code {
			return true
		}
	}
	return false
}
