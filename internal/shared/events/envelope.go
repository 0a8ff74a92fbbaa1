package events

import (
	"time"

	"github.com/google/uuid"
)

// Event types published on the internal bus.
const (
	TypeSyncStatusChanged = "channel-sync.sync-status.changed"
	TypeMappingChanged    = "channel-sync.property-mapping.changed"
)

// Envelope is the shared event shape used in Meridian.
// Align fields with repository canonical event contract.
type Envelope struct {
	EventID        string    `json:"event_id"`
	EventType      string    `json:"event_type"`
	SourceService  string    `json:"source_service"`
	OccurredAtUTC  time.Time `json:"occurred_at_utc"`
	CorrelationID  string    `json:"correlation_id"`
	EntityType     string    `json:"entity_type"`
	EntityID       string    `json:"entity_id"`
	PayloadVersion int       `json:"payload_version"`
	Payload        any       `json:"payload"`
}

// New builds an envelope with a fresh event id and the current UTC time.
func New(eventType, sourceService, entityType, entityID string, payload any) Envelope {
	return Envelope{
		EventID:        uuid.NewString(),
		EventType:      eventType,
		SourceService:  sourceService,
		OccurredAtUTC:  time.Now().UTC(),
		EntityType:     entityType,
		EntityID:       entityID,
		PayloadVersion: 1,
		Payload:        payload,
	}
}
