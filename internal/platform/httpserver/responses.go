package httpserver

import (
	"time"

	outboundentities "meridian/contexts/channel-sync/outbound-sync-service/domain/entities"
)

type messageLogListResponse struct {
	Items []messageLogResponse `json:"items"`
}

// messageLogResponse omits the stored bodies; the admin listing is an index,
// not an archive download.
type messageLogResponse struct {
	ID           string            `json:"id"`
	MessageID    string            `json:"message_id"`
	Direction    string            `json:"direction"`
	Kind         string            `json:"kind"`
	PropertyID   string            `json:"property_id"`
	HotelCode    string            `json:"hotel_code"`
	RequestSize  int               `json:"request_size"`
	ResponseSize int               `json:"response_size"`
	Status       string            `json:"status"`
	ErrorKind    string            `json:"error_kind,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	RetryCount   int               `json:"retry_count"`
	StartedAt    time.Time         `json:"started_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	DurationMS   int64             `json:"duration_ms"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

func toMessageLogResponse(entry outboundentities.MessageLog) messageLogResponse {
	return messageLogResponse{
		ID:           entry.ID,
		MessageID:    entry.MessageID,
		Direction:    string(entry.Direction),
		Kind:         entry.Kind,
		PropertyID:   entry.PropertyID,
		HotelCode:    entry.HotelCode,
		RequestSize:  entry.RequestSize,
		ResponseSize: entry.ResponseSize,
		Status:       string(entry.Status),
		ErrorKind:    entry.ErrorKind,
		ErrorMessage: entry.ErrorMessage,
		RetryCount:   entry.RetryCount,
		StartedAt:    entry.StartedAt,
		CompletedAt:  entry.CompletedAt,
		DurationMS:   entry.DurationMS,
		Metadata:     entry.Metadata,
	}
}
