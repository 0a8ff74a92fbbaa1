package ports

import (
	"context"
	"time"

	"meridian/contexts/channel-sync/property-mapping-service/domain/entities"
	"meridian/internal/shared/events"
)

// MappingRepository stores property mappings. ActiveByProperty and
// ActiveByHotelCode resolve only active rows.
type MappingRepository interface {
	Save(ctx context.Context, mapping entities.PropertyMapping) error
	Get(ctx context.Context, id string) (entities.PropertyMapping, error)
	ActiveByProperty(ctx context.Context, propertyID string) (entities.PropertyMapping, bool, error)
	ActiveByHotelCode(ctx context.Context, hotelCode string) (entities.PropertyMapping, bool, error)
	List(ctx context.Context) ([]entities.PropertyMapping, error)
}

// StatusReactor is the sync-status side of mapping lifecycle changes.
type StatusReactor interface {
	SuppressAutoRetry(ctx context.Context, hotelCode string) error
	EnableAutoRetry(ctx context.Context, hotelCode string) error
	ResetForHotelCodeChange(ctx context.Context, oldHotelCode, newHotelCode string) error
}

// CacheInvalidator is anything holding derived state that goes stale when a
// mapping changes: the config cache, the schema cache, the lookup cache.
type CacheInvalidator interface {
	Invalidate()
}

type EventPublisher interface {
	Publish(ctx context.Context, envelope events.Envelope) error
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
