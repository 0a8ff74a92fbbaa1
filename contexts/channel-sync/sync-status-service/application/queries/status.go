package queries

import (
	"context"
	"strings"
	"time"

	"meridian/contexts/channel-sync/sync-status-service/domain/entities"
	domainerrors "meridian/contexts/channel-sync/sync-status-service/domain/errors"
	"meridian/contexts/channel-sync/sync-status-service/ports"
)

// StatusQuery is the read side for operators and the scheduler.
type StatusQuery struct {
	Statuses ports.StatusRepository
}

func (q StatusQuery) Get(ctx context.Context, key string) (entities.SyncStatus, error) {
	if strings.TrimSpace(key) == "" {
		return entities.SyncStatus{}, domainerrors.ErrInvalidStatusInput
	}
	return q.Statuses.Get(ctx, key)
}

func (q StatusQuery) ListByProperty(ctx context.Context, hotelCode string) ([]entities.SyncStatus, error) {
	if strings.TrimSpace(hotelCode) == "" {
		return nil, domainerrors.ErrInvalidStatusInput
	}
	return q.Statuses.ListByProperty(ctx, hotelCode)
}

// ListDue returns failed streams whose retry time has passed, oldest first.
func (q StatusQuery) ListDue(ctx context.Context, now time.Time, limit int) ([]entities.SyncStatus, error) {
	return q.Statuses.ListDue(ctx, now, limit)
}
