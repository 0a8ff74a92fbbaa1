package entities

import (
	"math"
	"time"
)

// State is the lifecycle position of one sync stream.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateInactive  State = "inactive"
	StateError     State = "error"
)

// ChangeType labels the mutation recorded in the change log and the event.
type ChangeType string

const (
	ChangeBegin             ChangeType = "begin"
	ChangeComplete          ChangeType = "complete"
	ChangeFail              ChangeType = "fail"
	ChangeMarkPending       ChangeType = "mark_pending"
	ChangeSuppressAutoRetry ChangeType = "suppress_auto_retry"
	ChangeEnableAutoRetry   ChangeType = "enable_auto_retry"
	ChangeHotelCodeReset    ChangeType = "hotel_code_reset"
)

// SyncStatus tracks one (property, kind, entity) stream between the PMS and
// the channel. One row per key; mutations to a row are serialized by the
// repository.
type SyncStatus struct {
	ID         string
	HotelCode  string
	Kind       string
	EntityType string
	EntityID   string

	State            State
	AttemptCount     int
	RetryCount       int
	AutoRetry        bool
	LastAttemptAt    *time.Time
	LastSuccessAt    *time.Time
	NextRetryAt      *time.Time
	LastErrorKind    string
	LastErrorMessage string

	RecordsProcessed int
	RecordsTotal     int
	SuccessRate      float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Key identifies the stream. Unique per status row.
func (s SyncStatus) Key() string {
	return s.HotelCode + "|" + s.Kind + "|" + s.EntityType + "|" + s.EntityID
}

// RecomputeSuccessRate derives the rate from the record totals, rounded to
// two decimals. Zero totals give a zero rate.
func (s *SyncStatus) RecomputeSuccessRate() {
	if s.RecordsTotal == 0 {
		s.SuccessRate = 0
		return
	}
	rate := float64(s.RecordsProcessed) / float64(s.RecordsTotal) * 100
	s.SuccessRate = math.Round(rate*100) / 100
}

// ChangeLogEntry is one audit record of a status mutation.
type ChangeLogEntry struct {
	ID            string
	StatusKey     string
	HotelCode     string
	Kind          string
	ChangeType    ChangeType
	PreviousState State
	NewState      State
	Context       map[string]string
	OccurredAt    time.Time
}
