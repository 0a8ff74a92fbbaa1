package ports

import (
	"context"
	"time"

	"meridian/contexts/channel-sync/inbound-gateway-service/domain/entities"
	outboundports "meridian/contexts/channel-sync/outbound-sync-service/ports"
	mappingentities "meridian/contexts/channel-sync/property-mapping-service/domain/entities"
	statusentities "meridian/contexts/channel-sync/sync-status-service/domain/entities"
	"meridian/internal/shared/htngerr"
	"meridian/internal/shared/otaxml"
)

// DedupStore remembers accepted inbound payloads by content fingerprint so
// retransmissions replay the original acknowledgment.
type DedupStore interface {
	Find(ctx context.Context, fingerprint string) (entities.ProcessedMessage, bool, error)
	Save(ctx context.Context, msg entities.ProcessedMessage) error
}

// CredentialSource resolves the property behind an inbound WSSE username.
type CredentialSource interface {
	ByUsername(ctx context.Context, username string) (mappingentities.PropertyConfig, error)
}

// PMSApplier delivers inbound reservations into the property-management
// system.
type PMSApplier interface {
	ApplyReservation(ctx context.Context, propertyID string, res otaxml.Reservation) error
}

// StatusService is the slice of the sync-status use case the inbound
// consumer drives.
type StatusService interface {
	Ensure(ctx context.Context, hotelCode, kind, entityType, entityID string) (statusentities.SyncStatus, error)
	Begin(ctx context.Context, key string) (statusentities.SyncStatus, error)
	Complete(ctx context.Context, key string, processed, total int) (statusentities.SyncStatus, error)
	Fail(ctx context.Context, key string, cause *htngerr.Error) (statusentities.SyncStatus, error)
	MarkPending(ctx context.Context, key string) (statusentities.SyncStatus, error)
}

// The gateway shares the durable queue and the message/error logs with the
// outbound service; the aliases keep the wiring explicit.
type (
	JobRepository        = outboundports.JobRepository
	MessageLogRepository = outboundports.MessageLogRepository
	ErrorLogRepository   = outboundports.ErrorLogRepository
)

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
