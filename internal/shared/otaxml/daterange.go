package otaxml

import (
	"fmt"
	"time"

	"meridian/internal/shared/htngerr"
)

const (
	maxRangeSpanDays    = 365
	maxRangeHorizonDays = 730
)

// validateDateRange enforces the shared date-window limits: ordered range, at
// most a 365-day span, at most 730 days ahead of now.
func validateDateRange(start, end, now time.Time) *htngerr.Error {
	if start.IsZero() || end.IsZero() {
		return htngerr.Validation("date range requires both start and end")
	}
	if end.Before(start) {
		return htngerr.Validation(fmt.Sprintf("date range end %s precedes start %s", formatDate(end), formatDate(start)))
	}
	if end.Sub(start) > maxRangeSpanDays*24*time.Hour {
		return htngerr.Validation(fmt.Sprintf("date range %s..%s exceeds %d days", formatDate(start), formatDate(end), maxRangeSpanDays))
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	horizon := now.AddDate(0, 0, maxRangeHorizonDays)
	if end.After(horizon) {
		return htngerr.Validation(fmt.Sprintf("date range end %s is more than %d days ahead", formatDate(end), maxRangeHorizonDays))
	}
	return nil
}
