package httpadapter

import (
	"context"
	"log/slog"

	"meridian/contexts/channel-sync/sync-status-service/application/queries"
	"meridian/contexts/channel-sync/sync-status-service/domain/entities"
	httptransport "meridian/contexts/channel-sync/sync-status-service/transport/http"
)

type Handler struct {
	Query  queries.StatusQuery
	Logger *slog.Logger
}

func (h Handler) PropertyStatusHandler(ctx context.Context, hotelCode string) (httptransport.StatusListResponse, error) {
	statuses, err := h.Query.ListByProperty(ctx, hotelCode)
	if err != nil {
		return httptransport.StatusListResponse{}, err
	}
	items := make([]httptransport.StatusResponse, 0, len(statuses))
	for _, status := range statuses {
		items = append(items, toResponse(status))
	}
	return httptransport.StatusListResponse{Items: items}, nil
}

func (h Handler) StatusHandler(ctx context.Context, key string) (httptransport.StatusResponse, error) {
	status, err := h.Query.Get(ctx, key)
	if err != nil {
		return httptransport.StatusResponse{}, err
	}
	return toResponse(status), nil
}

func toResponse(s entities.SyncStatus) httptransport.StatusResponse {
	return httptransport.StatusResponse{
		HotelCode:        s.HotelCode,
		Kind:             s.Kind,
		EntityType:       s.EntityType,
		EntityID:         s.EntityID,
		State:            string(s.State),
		AttemptCount:     s.AttemptCount,
		RetryCount:       s.RetryCount,
		AutoRetry:        s.AutoRetry,
		LastAttemptAt:    s.LastAttemptAt,
		LastSuccessAt:    s.LastSuccessAt,
		NextRetryAt:      s.NextRetryAt,
		LastErrorKind:    s.LastErrorKind,
		LastErrorMessage: s.LastErrorMessage,
		RecordsProcessed: s.RecordsProcessed,
		RecordsTotal:     s.RecordsTotal,
		SuccessRate:      s.SuccessRate,
	}
}
