package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	application "meridian/contexts/channel-sync/sync-status-service/application"
	"meridian/contexts/channel-sync/sync-status-service/domain/entities"
	domainerrors "meridian/contexts/channel-sync/sync-status-service/domain/errors"
	"meridian/contexts/channel-sync/sync-status-service/ports"
	"meridian/internal/shared/htngerr"
)

const (
	defaultRetryCap    = 3
	defaultBackoffBase = 30 * time.Second
	maxBackoff         = 30 * time.Minute
)

// StatusUseCase drives the sync status state machine. Every mutation goes
// through the repository's serialized Mutate, appends a change-log entry,
// and publishes a SyncStatusChanged event.
type StatusUseCase struct {
	Statuses ports.StatusRepository
	Changes  ports.ChangeLog
	Bus      ports.EventPublisher
	Clock    ports.Clock
	IDGen    ports.IDGenerator
	Logger   *slog.Logger

	RetryCap int
	Backoff  func(retryCount int) time.Duration
}

func (uc StatusUseCase) retryCap() int {
	if uc.RetryCap > 0 {
		return uc.RetryCap
	}
	return defaultRetryCap
}

func (uc StatusUseCase) backoff(retryCount int) time.Duration {
	if uc.Backoff != nil {
		return uc.Backoff(retryCount)
	}
	delay := defaultBackoffBase
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// Ensure returns the status row for the stream, creating a pending one with
// auto-retry enabled when the stream is new.
func (uc StatusUseCase) Ensure(ctx context.Context, hotelCode, kind, entityType, entityID string) (entities.SyncStatus, error) {
	if strings.TrimSpace(hotelCode) == "" || strings.TrimSpace(kind) == "" {
		return entities.SyncStatus{}, domainerrors.ErrInvalidStatusInput
	}
	now := uc.Clock.Now()
	id, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return entities.SyncStatus{}, err
	}
	blank := entities.SyncStatus{
		ID:         id,
		HotelCode:  hotelCode,
		Kind:       kind,
		EntityType: entityType,
		EntityID:   entityID,
		State:      entities.StatePending,
		AutoRetry:  true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return uc.Statuses.GetOrCreate(ctx, blank)
}

// Begin moves a pending or failed stream to running.
func (uc StatusUseCase) Begin(ctx context.Context, key string) (entities.SyncStatus, error) {
	var prev entities.State
	status, err := uc.Statuses.Mutate(ctx, key, func(s *entities.SyncStatus) error {
		prev = s.State
		if s.State != entities.StatePending && s.State != entities.StateFailed {
			return fmt.Errorf("%w: %s -> running", domainerrors.ErrInvalidTransition, s.State)
		}
		now := uc.Clock.Now()
		s.State = entities.StateRunning
		s.AttemptCount++
		s.LastAttemptAt = &now
		s.LastErrorKind = ""
		s.LastErrorMessage = ""
		s.UpdatedAt = now
		return nil
	})
	if err != nil {
		return entities.SyncStatus{}, err
	}
	uc.afterMutation(ctx, status, prev, entities.ChangeBegin, nil)
	return status, nil
}

// Complete moves a running stream to completed and records the batch totals.
func (uc StatusUseCase) Complete(ctx context.Context, key string, processed, total int) (entities.SyncStatus, error) {
	var prev entities.State
	status, err := uc.Statuses.Mutate(ctx, key, func(s *entities.SyncStatus) error {
		prev = s.State
		if s.State != entities.StateRunning {
			return fmt.Errorf("%w: %s -> completed", domainerrors.ErrInvalidTransition, s.State)
		}
		now := uc.Clock.Now()
		s.State = entities.StateCompleted
		s.LastSuccessAt = &now
		s.RetryCount = 0
		s.NextRetryAt = nil
		s.RecordsProcessed = processed
		s.RecordsTotal = total
		s.RecomputeSuccessRate()
		s.UpdatedAt = now
		return nil
	})
	if err != nil {
		return entities.SyncStatus{}, err
	}
	uc.afterMutation(ctx, status, prev, entities.ChangeComplete, map[string]string{
		"records_processed": fmt.Sprint(processed),
		"records_total":     fmt.Sprint(total),
	})
	return status, nil
}

// Fail records the classified error. Retryable failures under the retry cap
// with auto-retry enabled schedule the next attempt; everything else lands
// in the terminal error state.
func (uc StatusUseCase) Fail(ctx context.Context, key string, cause *htngerr.Error) (entities.SyncStatus, error) {
	if cause == nil {
		return entities.SyncStatus{}, domainerrors.ErrInvalidStatusInput
	}
	var prev entities.State
	status, err := uc.Statuses.Mutate(ctx, key, func(s *entities.SyncStatus) error {
		prev = s.State
		if s.State != entities.StateRunning {
			return fmt.Errorf("%w: %s -> failed", domainerrors.ErrInvalidTransition, s.State)
		}
		now := uc.Clock.Now()
		s.LastErrorKind = string(cause.Kind)
		s.LastErrorMessage = cause.Message
		s.UpdatedAt = now
		if cause.CanRetry && s.RetryCount < uc.retryCap() && s.AutoRetry {
			s.State = entities.StateFailed
			s.RetryCount++
			next := now.Add(uc.backoff(s.RetryCount))
			s.NextRetryAt = &next
			return nil
		}
		s.State = entities.StateError
		s.NextRetryAt = nil
		return nil
	})
	if err != nil {
		return entities.SyncStatus{}, err
	}
	uc.afterMutation(ctx, status, prev, entities.ChangeFail, map[string]string{
		"error_kind": string(cause.Kind),
		"error_code": cause.Code,
	})
	return status, nil
}

// MarkPending re-arms a completed stream when the underlying data changed.
func (uc StatusUseCase) MarkPending(ctx context.Context, key string) (entities.SyncStatus, error) {
	var prev entities.State
	status, err := uc.Statuses.Mutate(ctx, key, func(s *entities.SyncStatus) error {
		prev = s.State
		if s.State != entities.StateCompleted {
			return fmt.Errorf("%w: %s -> pending", domainerrors.ErrInvalidTransition, s.State)
		}
		s.State = entities.StatePending
		s.UpdatedAt = uc.Clock.Now()
		return nil
	})
	if err != nil {
		return entities.SyncStatus{}, err
	}
	uc.afterMutation(ctx, status, prev, entities.ChangeMarkPending, nil)
	return status, nil
}

// SuppressAutoRetry disables retry scheduling for every stream of a property.
// Called when the property's mapping is deactivated.
func (uc StatusUseCase) SuppressAutoRetry(ctx context.Context, hotelCode string) error {
	return uc.forEachOfProperty(ctx, hotelCode, entities.ChangeSuppressAutoRetry, func(s *entities.SyncStatus) {
		s.AutoRetry = false
		s.NextRetryAt = nil
	})
}

// EnableAutoRetry re-enables retry scheduling for every stream of a property.
// Called when the property's mapping is activated.
func (uc StatusUseCase) EnableAutoRetry(ctx context.Context, hotelCode string) error {
	return uc.forEachOfProperty(ctx, hotelCode, entities.ChangeEnableAutoRetry, func(s *entities.SyncStatus) {
		s.AutoRetry = true
	})
}

// ResetForHotelCodeChange rekeys every stream of a property from the old
// hotel code to the new one and forces it back to pending so the next sync
// resends under the new code. Streams are listed by the old code; the rows
// still carry it at this point.
func (uc StatusUseCase) ResetForHotelCodeChange(ctx context.Context, oldHotelCode, newHotelCode string) error {
	if strings.TrimSpace(newHotelCode) == "" {
		return domainerrors.ErrInvalidStatusInput
	}
	return uc.forEachOfProperty(ctx, oldHotelCode, entities.ChangeHotelCodeReset, func(s *entities.SyncStatus) {
		s.HotelCode = newHotelCode
		s.State = entities.StatePending
		s.RetryCount = 0
		s.NextRetryAt = nil
		s.LastErrorKind = ""
		s.LastErrorMessage = ""
	})
}

func (uc StatusUseCase) forEachOfProperty(ctx context.Context, hotelCode string, change entities.ChangeType, apply func(*entities.SyncStatus)) error {
	if strings.TrimSpace(hotelCode) == "" {
		return domainerrors.ErrInvalidStatusInput
	}
	statuses, err := uc.Statuses.ListByProperty(ctx, hotelCode)
	if err != nil {
		return err
	}
	for _, current := range statuses {
		var prev entities.State
		status, err := uc.Statuses.Mutate(ctx, current.Key(), func(s *entities.SyncStatus) error {
			prev = s.State
			apply(s)
			s.UpdatedAt = uc.Clock.Now()
			return nil
		})
		if err != nil {
			return err
		}
		uc.afterMutation(ctx, status, prev, change, nil)
	}
	return nil
}

func (uc StatusUseCase) afterMutation(ctx context.Context, status entities.SyncStatus, prev entities.State, change entities.ChangeType, extra map[string]string) {
	logger := application.ResolveLogger(uc.Logger)
	now := uc.Clock.Now()

	entryID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		logger.Error("change log id generation failed",
			"event", "sync_status_changelog_id_failed",
			"module", "channel-sync/sync-status-service",
			"layer", "application",
			"status_key", status.Key(),
			"error", err,
		)
	} else {
		entry := entities.ChangeLogEntry{
			ID:            entryID,
			StatusKey:     status.Key(),
			HotelCode:     status.HotelCode,
			Kind:          status.Kind,
			ChangeType:    change,
			PreviousState: prev,
			NewState:      status.State,
			Context:       extra,
			OccurredAt:    now,
		}
		if err := uc.Changes.Append(ctx, entry); err != nil {
			logger.Error("change log append failed",
				"event", "sync_status_changelog_append_failed",
				"module", "channel-sync/sync-status-service",
				"layer", "application",
				"status_key", status.Key(),
				"error", err,
			)
		}
	}

	envelope := newStatusChangedEnvelope(status, prev, change, extra)
	if err := uc.Bus.Publish(ctx, envelope); err != nil {
		// Broadcast is best effort; the mutation already committed.
		logger.Warn("status event publish failed",
			"event", "sync_status_event_publish_failed",
			"module", "channel-sync/sync-status-service",
			"layer", "application",
			"status_key", status.Key(),
			"change_type", string(change),
			"error", err,
		)
		return
	}
	logger.Info("sync status changed",
		"event", "sync_status_changed",
		"module", "channel-sync/sync-status-service",
		"layer", "application",
		"status_key", status.Key(),
		"previous_state", string(prev),
		"new_state", string(status.State),
		"change_type", string(change),
	)
}
