package ports

import (
	"context"
	"time"

	"meridian/contexts/channel-sync/sync-status-service/domain/entities"
	"meridian/internal/shared/events"
)

// StatusRepository stores sync status rows. Mutate serializes concurrent
// writers of the same key: the postgres adapter locks the row for update
// inside a transaction, the memory adapter holds a per-key mutex.
type StatusRepository interface {
	Get(ctx context.Context, key string) (entities.SyncStatus, error)
	GetOrCreate(ctx context.Context, blank entities.SyncStatus) (entities.SyncStatus, error)
	Mutate(ctx context.Context, key string, fn func(*entities.SyncStatus) error) (entities.SyncStatus, error)
	ListByProperty(ctx context.Context, hotelCode string) ([]entities.SyncStatus, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]entities.SyncStatus, error)
}

// ChangeLog appends audit records of status mutations.
type ChangeLog interface {
	Append(ctx context.Context, entry entities.ChangeLogEntry) error
}

// EventPublisher broadcasts status changes. Publish failure must never fail
// the mutation that produced the event.
type EventPublisher interface {
	Publish(ctx context.Context, envelope events.Envelope) error
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
