package ports

import (
	"context"
	"time"

	mappingentities "meridian/contexts/channel-sync/property-mapping-service/domain/entities"
	"meridian/contexts/channel-sync/outbound-sync-service/domain/entities"
	statusentities "meridian/contexts/channel-sync/sync-status-service/domain/entities"
	"meridian/internal/shared/htngerr"
	"meridian/internal/shared/otaxml"
)

// JobRepository is the durable queue backend. Claim marks due jobs running
// and stamps a lease so a crashed worker's jobs become claimable again after
// the lease lapses.
type JobRepository interface {
	Enqueue(ctx context.Context, job entities.QueueJob) error
	Get(ctx context.Context, id string) (entities.QueueJob, error)
	Claim(ctx context.Context, queue entities.Queue, now time.Time, limit int, owner string, lease time.Duration) ([]entities.QueueJob, error)
	Complete(ctx context.Context, id string) error
	Fail(ctx context.Context, id string, lastError string, retryAt *time.Time) error
	Postpone(ctx context.Context, id string, runAt time.Time) error
	Cancel(ctx context.Context, id string) error
}

// LeaseStore serializes dispatches per (property, kind) stream.
type LeaseStore interface {
	Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, owner string) error
}

// MessageLogRepository stores one row per exchange. Close overwrites the full
// row when the caller holds it; Resolve settles the outcome of a row opened
// elsewhere.
type MessageLogRepository interface {
	Open(ctx context.Context, entry entities.MessageLog) error
	Close(ctx context.Context, entry entities.MessageLog) error
	Resolve(ctx context.Context, id string, status entities.LogStatus, errorKind, errorMessage string, completedAt time.Time) error
	ListRecent(ctx context.Context, limit int) ([]entities.MessageLog, error)
}

// ErrorLogRepository stores observed failures for operators and alerting.
type ErrorLogRepository interface {
	Record(ctx context.Context, entry entities.ErrorLog) error
}

// Transport posts one SOAP envelope to the channel endpoint.
type Transport interface {
	Send(ctx context.Context, endpoint string, envelope []byte, timeout time.Duration) ([]byte, error)
}

// ConfigSource resolves the derived per-property configuration.
type ConfigSource interface {
	Get(ctx context.Context, propertyID string) (mappingentities.PropertyConfig, error)
}

// StatusService is the slice of the sync-status use case the scheduler
// drives.
type StatusService interface {
	Ensure(ctx context.Context, hotelCode, kind, entityType, entityID string) (statusentities.SyncStatus, error)
	Begin(ctx context.Context, key string) (statusentities.SyncStatus, error)
	Complete(ctx context.Context, key string, processed, total int) (statusentities.SyncStatus, error)
	Fail(ctx context.Context, key string, cause *htngerr.Error) (statusentities.SyncStatus, error)
}

// Validator runs the outbound validation pipeline over a built body.
type Validator interface {
	Validate(ctx context.Context, kind otaxml.MessageKind, payload []byte) error
}

// PMSRepository reads changed records out of the property-management system.
// A nil since means everything (full sync).
type PMSRepository interface {
	ChangedInventory(ctx context.Context, propertyID string, since *time.Time) ([]otaxml.InventoryRecord, error)
	ChangedRates(ctx context.Context, propertyID string, since *time.Time) ([]otaxml.RatePlanBlock, error)
	ChangedRestrictions(ctx context.Context, propertyID string, since *time.Time) ([]otaxml.RestrictionRecord, error)
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
