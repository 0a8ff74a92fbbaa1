package workers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	application "meridian/contexts/channel-sync/inbound-gateway-service/application"
	"meridian/contexts/channel-sync/inbound-gateway-service/application/commands"
	"meridian/contexts/channel-sync/inbound-gateway-service/ports"
	outboundentities "meridian/contexts/channel-sync/outbound-sync-service/domain/entities"
	statuserrors "meridian/contexts/channel-sync/sync-status-service/domain/errors"
	"meridian/internal/shared/htngerr"
	"meridian/internal/shared/otaxml"
)

// InboundWorker drains the inbound-work queue: parse the acknowledged
// payload, deliver it into the PMS, and settle the history row and status
// stream.
type InboundWorker struct {
	Owner    string
	Jobs     ports.JobRepository
	Logs     ports.MessageLogRepository
	Statuses ports.StatusService
	PMS      ports.PMSApplier
	Clock    ports.Clock
	IDGen    ports.IDGenerator
	Logger   *slog.Logger
}

func (w InboundWorker) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(w.Logger)
	profile := outboundentities.ProfileFor(outboundentities.QueueInboundWork)
	now := w.Clock.Now()

	jobs, err := w.Jobs.Claim(ctx, outboundentities.QueueInboundWork, now, profile.Concurrency, w.Owner, profile.JobTimeout+30*time.Second)
	if err != nil {
		logger.Error("inbound queue claim failed",
			"event", "inbound_queue_claim_failed",
			"module", "channel-sync/inbound-gateway-service",
			"layer", "worker",
			"error", err,
		)
		return err
	}
	if len(jobs) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(profile.Concurrency)
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			w.consume(gctx, job)
			return nil
		})
	}
	return g.Wait()
}

func (w InboundWorker) consume(ctx context.Context, job outboundentities.QueueJob) {
	logger := application.ResolveLogger(w.Logger)

	var work commands.InboundWork
	if err := json.Unmarshal(job.Payload, &work); err != nil {
		herr := htngerr.Wrap(htngerr.KindValidation, "VAL_WORK_DECODE", "inbound work payload is not decodable", err)
		w.settle(ctx, job, work, herr)
		return
	}

	var herr *htngerr.Error
	switch otaxml.MessageKind(work.Kind) {
	case otaxml.KindReservation:
		herr = w.applyReservation(ctx, work)
	default:
		// Non-reservation inbound payloads are audit-only: the gateway
		// already acknowledged and recorded them.
		if _, parseErr := w.parseForAudit(work); parseErr != nil {
			herr = parseErr
		}
	}
	w.settle(ctx, job, work, herr)
	if herr == nil {
		logger.Info("inbound work completed",
			"event", "inbound_work_completed",
			"module", "channel-sync/inbound-gateway-service",
			"layer", "worker",
			"job_id", job.ID,
			"kind", work.Kind,
		)
	}
}

func (w InboundWorker) applyReservation(ctx context.Context, work commands.InboundWork) *htngerr.Error {
	res, herr := otaxml.ParseReservation(work.Body)
	if herr != nil {
		return herr
	}

	key := w.beginStream(ctx, work.HotelCode, string(otaxml.KindReservation), "reservation", res.ConfirmationID)
	if err := w.PMS.ApplyReservation(ctx, work.PropertyID, res); err != nil {
		cause := htngerr.FromRepository(err)
		if key != "" {
			if _, ferr := w.Statuses.Fail(ctx, key, cause); ferr != nil {
				w.warnStatus(ctx, "inbound_status_fail_failed", key, ferr)
			}
		}
		return cause
	}
	if key != "" {
		if _, err := w.Statuses.Complete(ctx, key, 1, 1); err != nil {
			w.warnStatus(ctx, "inbound_status_complete_failed", key, err)
		}
	}
	return nil
}

func (w InboundWorker) parseForAudit(work commands.InboundWork) (string, *htngerr.Error) {
	switch otaxml.MessageKind(work.Kind) {
	case otaxml.KindInventory:
		_, herr := otaxml.ParseInventory(work.Body)
		return work.Kind, herr
	case otaxml.KindRates:
		_, herr := otaxml.ParseRates(work.Body)
		return work.Kind, herr
	case otaxml.KindRestrictions:
		_, herr := otaxml.ParseRestrictions(work.Body)
		return work.Kind, herr
	case otaxml.KindGroupBlock:
		_, herr := otaxml.ParseGroupBlock(work.Body)
		return work.Kind, herr
	}
	return work.Kind, htngerr.Validation("unknown inbound work kind " + work.Kind)
}

// settle closes the history row and finishes or reschedules the job.
func (w InboundWorker) settle(ctx context.Context, job outboundentities.QueueJob, work commands.InboundWork, cause *htngerr.Error) {
	logger := application.ResolveLogger(w.Logger)
	now := w.Clock.Now()

	if cause == nil {
		if work.LogID != "" {
			if err := w.Logs.Resolve(ctx, work.LogID, outboundentities.LogCompleted, "", "", now); err != nil {
				logger.Warn("inbound history resolve failed",
					"event", "inbound_history_resolve_failed",
					"module", "channel-sync/inbound-gateway-service",
					"layer", "worker",
					"log_id", work.LogID,
					"error", err,
				)
			}
		}
		if err := w.Jobs.Complete(ctx, job.ID); err != nil {
			logger.Error("inbound job complete failed",
				"event", "inbound_job_complete_failed",
				"module", "channel-sync/inbound-gateway-service",
				"layer", "worker",
				"job_id", job.ID,
				"error", err,
			)
		}
		return
	}

	var retryAt *time.Time
	if cause.CanRetry && job.Attempts+1 < job.MaxAttempts {
		at := now.Add(inboundRetryDelay(cause, job.Attempts))
		retryAt = &at
	}
	if retryAt == nil && work.LogID != "" {
		if err := w.Logs.Resolve(ctx, work.LogID, outboundentities.LogFailed, string(cause.Kind), cause.Message, now); err != nil {
			logger.Warn("inbound history resolve failed",
				"event", "inbound_history_resolve_failed",
				"module", "channel-sync/inbound-gateway-service",
				"layer", "worker",
				"log_id", work.LogID,
				"error", err,
			)
		}
	}
	if err := w.Jobs.Fail(ctx, job.ID, cause.Error(), retryAt); err != nil {
		logger.Error("inbound job fail write failed",
			"event", "inbound_job_fail_write_failed",
			"module", "channel-sync/inbound-gateway-service",
			"layer", "worker",
			"job_id", job.ID,
			"error", err,
		)
	}
	logger.Warn("inbound work failed",
		"event", "inbound_work_failed",
		"module", "channel-sync/inbound-gateway-service",
		"layer", "worker",
		"job_id", job.ID,
		"kind", work.Kind,
		"error_kind", string(cause.Kind),
		"will_retry", retryAt != nil,
	)
}

func (w InboundWorker) beginStream(ctx context.Context, hotelCode, kind, entityType, entityID string) string {
	status, err := w.Statuses.Ensure(ctx, hotelCode, kind, entityType, entityID)
	if err != nil {
		w.warnStatus(ctx, "inbound_status_ensure_failed", entityID, err)
		return ""
	}
	key := status.Key()
	if _, err := w.Statuses.MarkPending(ctx, key); err != nil && !errors.Is(err, statuserrors.ErrInvalidTransition) {
		w.warnStatus(ctx, "inbound_status_rearm_failed", key, err)
	}
	if _, err := w.Statuses.Begin(ctx, key); err != nil && !errors.Is(err, statuserrors.ErrInvalidTransition) {
		w.warnStatus(ctx, "inbound_status_begin_failed", key, err)
		return ""
	}
	return key
}

func (w InboundWorker) warnStatus(ctx context.Context, event, key string, err error) {
	application.ResolveLogger(w.Logger).Warn("inbound status transition failed",
		"event", event,
		"module", "channel-sync/inbound-gateway-service",
		"layer", "worker",
		"status_key", key,
		"error", err,
	)
}

func inboundRetryDelay(cause *htngerr.Error, attempts int) time.Duration {
	policy := htngerr.PolicyFor(cause.Kind)
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.RetryDelay
	b.RandomizationFactor = 0.1
	b.Multiplier = 2
	b.MaxInterval = 30 * time.Minute
	b.MaxElapsedTime = 0
	b.Reset()
	delay := b.NextBackOff()
	for i := 0; i < attempts; i++ {
		delay = b.NextBackOff()
	}
	if delay > 30*time.Minute || delay == backoff.Stop {
		delay = 30 * time.Minute
	}
	return delay
}
