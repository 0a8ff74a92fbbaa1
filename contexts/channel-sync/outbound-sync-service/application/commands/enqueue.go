package commands

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	application "meridian/contexts/channel-sync/outbound-sync-service/application"
	"meridian/contexts/channel-sync/outbound-sync-service/domain/entities"
	domainerrors "meridian/contexts/channel-sync/outbound-sync-service/domain/errors"
	"meridian/contexts/channel-sync/outbound-sync-service/ports"
	"meridian/internal/shared/otaxml"
)

// OutboundPayload is the JSON job body. Exactly one field is set, matching
// the job's kind.
type OutboundPayload struct {
	Inventory    *otaxml.InventoryMessage   `json:"inventory,omitempty"`
	Rates        *otaxml.RateMessage        `json:"rates,omitempty"`
	Reservation  *otaxml.Reservation        `json:"reservation,omitempty"`
	Restrictions *otaxml.RestrictionMessage `json:"restrictions,omitempty"`
	GroupBlock   *otaxml.GroupBlock         `json:"group_block,omitempty"`
}

// EnqueueCommand requests one durable job.
type EnqueueCommand struct {
	Queue      entities.Queue
	PropertyID string
	HotelCode  string
	Kind       otaxml.MessageKind
	Scope      entities.SyncScope
	Payload    OutboundPayload
	RunAt      time.Time
}

// EnqueueUseCase writes jobs into the durable queue.
type EnqueueUseCase struct {
	Jobs   ports.JobRepository
	Clock  ports.Clock
	IDGen  ports.IDGenerator
	Logger *slog.Logger
}

func (uc EnqueueUseCase) Enqueue(ctx context.Context, cmd EnqueueCommand) (entities.QueueJob, error) {
	if strings.TrimSpace(cmd.PropertyID) == "" || cmd.Kind == "" {
		return entities.QueueJob{}, domainerrors.ErrInvalidJobInput
	}
	payload, err := json.Marshal(cmd.Payload)
	if err != nil {
		return entities.QueueJob{}, err
	}
	id, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return entities.QueueJob{}, err
	}
	now := uc.Clock.Now()
	runAt := cmd.RunAt
	if runAt.IsZero() {
		runAt = now
	}
	profile := entities.ProfileFor(cmd.Queue)
	scope := cmd.Scope
	if scope == "" {
		scope = entities.ScopeDelta
	}
	job := entities.QueueJob{
		ID:          id,
		Queue:       cmd.Queue,
		PropertyID:  cmd.PropertyID,
		HotelCode:   cmd.HotelCode,
		Kind:        string(cmd.Kind),
		Scope:       scope,
		Payload:     payload,
		Status:      entities.JobPending,
		MaxAttempts: profile.MaxRetries,
		RunAt:       runAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := uc.Jobs.Enqueue(ctx, job); err != nil {
		return entities.QueueJob{}, err
	}
	application.ResolveLogger(uc.Logger).Info("job enqueued",
		"event", "outbound_job_enqueued",
		"module", "channel-sync/outbound-sync-service",
		"layer", "application",
		"job_id", job.ID,
		"queue", string(job.Queue),
		"property_id", job.PropertyID,
		"kind", job.Kind,
		"scope", string(job.Scope),
	)
	return job, nil
}

// Cancel removes a job that has not been picked up yet.
func (uc EnqueueUseCase) Cancel(ctx context.Context, jobID string) error {
	job, err := uc.Jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != entities.JobPending && job.Status != entities.JobFailed {
		return domainerrors.ErrJobNotCancellable
	}
	if err := uc.Jobs.Cancel(ctx, jobID); err != nil {
		return err
	}
	application.ResolveLogger(uc.Logger).Info("job cancelled",
		"event", "outbound_job_cancelled",
		"module", "channel-sync/outbound-sync-service",
		"layer", "application",
		"job_id", jobID,
	)
	return nil
}
