package entities

import "time"

// Body storage is bounded; the original size is preserved alongside.
const MaxStoredBodyBytes = 65000

// Direction of a logged message.
type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

// LogStatus is the lifecycle of one dispatch attempt.
type LogStatus string

const (
	LogPending   LogStatus = "pending"
	LogRunning   LogStatus = "running"
	LogCompleted LogStatus = "completed"
	LogFailed    LogStatus = "failed"
)

// MessageLog records one dispatch attempt for audit.
type MessageLog struct {
	ID           string
	MessageID    string
	Direction    Direction
	Kind         string
	PropertyID   string
	HotelCode    string
	RequestBody  string
	RequestSize  int
	ResponseBody string
	ResponseSize int
	Status       LogStatus
	ErrorKind    string
	ErrorMessage string
	RetryCount   int
	StartedAt    time.Time
	CompletedAt  *time.Time
	DurationMS   int64
	JobID        string
	Metadata     map[string]string
}

// Truncate bounds a body for storage and reports the original size.
func Truncate(body []byte) (string, int) {
	if len(body) <= MaxStoredBodyBytes {
		return string(body), len(body)
	}
	return string(body[:MaxStoredBodyBytes]), len(body)
}

// ErrorSeverity grades error-log rows.
type ErrorSeverity string

const (
	SeverityCritical ErrorSeverity = "critical"
	SeverityHigh     ErrorSeverity = "high"
	SeverityMedium   ErrorSeverity = "medium"
	SeverityLow      ErrorSeverity = "low"
)

// ErrorLog is one observed failure, linked to its message when known.
type ErrorLog struct {
	ID                 string
	MessageID          string
	Kind               string
	Code               string
	Severity           ErrorSeverity
	Message            string
	Source             string
	CanRetry           bool
	RetryDelaySeconds  int
	ManualIntervention bool
	ResolvedAt         *time.Time
	ResolvedBy         string
	CreatedAt          time.Time
}
