package httptransport

import "time"

// StatusResponse is the admin read model for one sync stream.
type StatusResponse struct {
	HotelCode        string     `json:"hotel_code"`
	Kind             string     `json:"kind"`
	EntityType       string     `json:"entity_type"`
	EntityID         string     `json:"entity_id"`
	State            string     `json:"state"`
	AttemptCount     int        `json:"attempt_count"`
	RetryCount       int        `json:"retry_count"`
	AutoRetry        bool       `json:"auto_retry"`
	LastAttemptAt    *time.Time `json:"last_attempt_at,omitempty"`
	LastSuccessAt    *time.Time `json:"last_success_at,omitempty"`
	NextRetryAt      *time.Time `json:"next_retry_at,omitempty"`
	LastErrorKind    string     `json:"last_error_kind,omitempty"`
	LastErrorMessage string     `json:"last_error_message,omitempty"`
	RecordsProcessed int        `json:"records_processed"`
	RecordsTotal     int        `json:"records_total"`
	SuccessRate      float64    `json:"success_rate"`
}

// StatusListResponse wraps a property's streams.
type StatusListResponse struct {
	Items []StatusResponse `json:"items"`
}
