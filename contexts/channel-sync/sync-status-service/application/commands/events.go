package commands

import (
	"meridian/contexts/channel-sync/sync-status-service/domain/entities"
	"meridian/internal/shared/events"
)

// StatusChangedPayload is the event body broadcast on every status mutation.
type StatusChangedPayload struct {
	Status        entities.SyncStatus `json:"status"`
	PreviousState entities.State      `json:"previous_state"`
	ChangeType    entities.ChangeType `json:"change_type"`
	Context       map[string]string   `json:"context,omitempty"`
}

func newStatusChangedEnvelope(status entities.SyncStatus, prev entities.State, change entities.ChangeType, extra map[string]string) events.Envelope {
	return events.New(
		events.TypeSyncStatusChanged,
		"sync-status-service",
		"sync_status",
		status.Key(),
		StatusChangedPayload{
			Status:        status,
			PreviousState: prev,
			ChangeType:    change,
			Context:       extra,
		},
	)
}
