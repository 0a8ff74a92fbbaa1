package workers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	application "meridian/contexts/channel-sync/outbound-sync-service/application"
	"meridian/contexts/channel-sync/outbound-sync-service/application/commands"
	"meridian/contexts/channel-sync/outbound-sync-service/domain/entities"
	"meridian/contexts/channel-sync/outbound-sync-service/ports"
	statusentities "meridian/contexts/channel-sync/sync-status-service/domain/entities"
	statuserrors "meridian/contexts/channel-sync/sync-status-service/domain/errors"
	"meridian/internal/shared/htngerr"
	"meridian/internal/shared/otaxml"
	"meridian/internal/shared/soapenv"
)

const leaseSlack = 30 * time.Second

// StatusMutator extends the scheduler's status slice with the re-arm
// transition used before a repeat dispatch of a completed stream.
type StatusMutator interface {
	ports.StatusService
	MarkPending(ctx context.Context, key string) (statusentities.SyncStatus, error)
}

// QueueWorker drains one queue. Each RunOnce claims up to the queue's
// concurrency in due jobs and dispatches them through a bounded pool.
// Per-(property, kind) leases keep one envelope in flight per stream.
type QueueWorker struct {
	Queue    entities.Queue
	Owner    string
	Jobs     ports.JobRepository
	Leases   ports.LeaseStore
	Logs     ports.MessageLogRepository
	Errors   ports.ErrorLogRepository
	Statuses StatusMutator
	Config   ports.ConfigSource
	Validate ports.Validator
	Send     ports.Transport
	Breaker  *application.AuthBreaker
	Clock    ports.Clock
	IDGen    ports.IDGenerator
	Logger   *slog.Logger

	// DefaultEndpoint is used when the property has no endpoint override.
	DefaultEndpoint string

	// Concurrency overrides the queue profile's worker count when > 0.
	Concurrency int
}

func (w QueueWorker) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(w.Logger)
	profile := entities.ProfileFor(w.Queue)
	if w.Concurrency > 0 {
		profile.Concurrency = w.Concurrency
	}
	now := w.Clock.Now()

	jobs, err := w.Jobs.Claim(ctx, w.Queue, now, profile.Concurrency, w.Owner, profile.JobTimeout+leaseSlack)
	if err != nil {
		logger.Error("queue claim failed",
			"event", "outbound_queue_claim_failed",
			"module", "channel-sync/outbound-sync-service",
			"layer", "worker",
			"queue", string(w.Queue),
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
			w.dispatch(gctx, job, profile)
			return nil
		})
	}
	return g.Wait()
}

func (w QueueWorker) dispatch(ctx context.Context, job entities.QueueJob, profile entities.Profile) {
	logger := application.ResolveLogger(w.Logger)

	if !w.Breaker.Allow(job.PropertyID) {
		// Credentials are known bad; hold the job instead of burning retries.
		_ = w.Jobs.Postpone(ctx, job.ID, w.Clock.Now().Add(w.Breaker.Window))
		logger.Warn("dispatch suspended by auth breaker",
			"event", "outbound_dispatch_breaker_open",
			"module", "channel-sync/outbound-sync-service",
			"layer", "worker",
			"job_id", job.ID,
			"property_id", job.PropertyID,
		)
		return
	}

	acquired, err := w.Leases.Acquire(ctx, job.StreamKey(), w.Owner, profile.JobTimeout+leaseSlack)
	if err != nil || !acquired {
		_ = w.Jobs.Postpone(ctx, job.ID, w.Clock.Now().Add(10*time.Second))
		return
	}
	defer func() { _ = w.Leases.Release(ctx, job.StreamKey(), w.Owner) }()

	config, err := w.Config.Get(ctx, job.PropertyID)
	if err != nil {
		w.failJob(ctx, job, "", htngerr.Wrap(htngerr.KindBusinessLogic, "BUS_NO_CONFIG", "no active configuration for property", err))
		return
	}

	sentAt := w.Clock.Now()
	kind := otaxml.MessageKind(job.Kind)
	messageID := otaxml.NewMessageID(kind, sentAt)

	body, built, herr := w.buildBody(job, messageID, sentAt)
	if herr != nil {
		w.failJob(ctx, job, messageID, herr)
		return
	}

	keys := w.beginStreams(ctx, job, built)

	if err := w.Validate.Validate(ctx, kind, body); err != nil {
		herr := htngerr.Wrap(htngerr.KindValidation, "VAL_PIPELINE", "outbound validation failed", err)
		var typed *htngerr.Error
		if errors.As(err, &typed) {
			herr = typed
		}
		w.failStreams(ctx, keys, herr)
		w.failJob(ctx, job, messageID, herr)
		return
	}

	envelope, err := soapenv.Build(soapenv.BuildRequest{
		Credentials: soapenv.Credentials{
			Username:  config.Username,
			Password:  config.Password,
			HotelCode: config.WSSEHotelCode,
		},
		MessageID: messageID,
		Payload:   body,
		Now:       sentAt,
	})
	if err != nil {
		herr := htngerr.Wrap(htngerr.KindSOAPXML, "SYS_ENVELOPE", "envelope build failed", err)
		w.failStreams(ctx, keys, herr)
		w.failJob(ctx, job, messageID, herr)
		return
	}

	logEntry := w.openLog(ctx, job, messageID, envelope, sentAt)

	endpoint := config.EndpointURL
	if endpoint == "" {
		endpoint = w.DefaultEndpoint
	}
	endpoint = soapenv.EndpointFromWSDL(endpoint)

	raw, sendErr := w.Send.Send(ctx, endpoint, envelope, profile.JobTimeout)
	completedAt := w.Clock.Now()

	var response *soapenv.Response
	if sendErr != nil {
		errKind := transportKind(sendErr)
		code := "CON_TRANSPORT"
		if errKind == htngerr.KindTimeout {
			code = "CON_TIMEOUT"
		}
		response = &soapenv.Response{
			MessageID:    messageID,
			DurationMS:   completedAt.Sub(sentAt).Milliseconds(),
			ErrorKind:    errKind,
			ErrorCode:    code,
			ErrorMessage: sendErr.Error(),
		}
	} else {
		response = soapenv.ParseResponse(messageID, raw, sentAt)
	}

	w.closeLog(ctx, logEntry, response, completedAt)

	if respErr := response.Err(); respErr != nil {
		if respErr.Kind == htngerr.KindAuthentication {
			w.Breaker.RecordFailure(job.PropertyID)
		}
		w.failStreams(ctx, keys, respErr)
		w.failJob(ctx, job, messageID, respErr)
		return
	}

	for _, key := range keys {
		if _, err := w.Statuses.Complete(ctx, key, built.records, built.records); err != nil {
			logger.Warn("status complete failed",
				"event", "outbound_status_complete_failed",
				"module", "channel-sync/outbound-sync-service",
				"layer", "worker",
				"status_key", key,
				"error", err,
			)
		}
	}
	if err := w.Jobs.Complete(ctx, job.ID); err != nil {
		logger.Error("job complete failed",
			"event", "outbound_job_complete_failed",
			"module", "channel-sync/outbound-sync-service",
			"layer", "worker",
			"job_id", job.ID,
			"error", err,
		)
		return
	}
	logger.Info("dispatch completed",
		"event", "outbound_dispatch_completed",
		"module", "channel-sync/outbound-sync-service",
		"layer", "worker",
		"job_id", job.ID,
		"message_id", messageID,
		"kind", job.Kind,
		"warnings", len(response.Warnings),
	)
}

// builtBody is the decoded job payload plus its stream bookkeeping.
type builtBody struct {
	records int
	streams []streamRef
}

type streamRef struct {
	entityType string
	entityID   string
}

func (w QueueWorker) buildBody(job entities.QueueJob, messageID string, now time.Time) ([]byte, builtBody, *htngerr.Error) {
	var payload commands.OutboundPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, builtBody{}, htngerr.Wrap(htngerr.KindValidation, "VAL_PAYLOAD", "job payload is not decodable", err)
	}
	hdr := otaxml.HeaderContext{
		HotelCode: job.HotelCode,
		MessageID: messageID,
		Timestamp: now,
	}

	switch otaxml.MessageKind(job.Kind) {
	case otaxml.KindInventory:
		if payload.Inventory == nil {
			return nil, builtBody{}, htngerr.Validation("inventory job has no inventory payload")
		}
		body, herr := otaxml.BuildInventory(*payload.Inventory, hdr)
		if herr != nil {
			return nil, builtBody{}, herr
		}
		built := builtBody{records: len(payload.Inventory.Records)}
		seen := map[string]bool{}
		for _, rec := range payload.Inventory.Records {
			entity := rec.RoomTypeCode
			if entity == "" {
				entity = "ALL"
			}
			if !seen[entity] {
				seen[entity] = true
				built.streams = append(built.streams, streamRef{entityType: "room_type", entityID: entity})
			}
		}
		return body, built, nil
	case otaxml.KindRates:
		if payload.Rates == nil {
			return nil, builtBody{}, htngerr.Validation("rates job has no rates payload")
		}
		body, herr := otaxml.BuildRates(*payload.Rates, hdr)
		if herr != nil {
			return nil, builtBody{}, herr
		}
		built := builtBody{}
		for _, plan := range payload.Rates.Plans {
			built.records += len(plan.Records)
			built.streams = append(built.streams, streamRef{entityType: "rate_plan", entityID: plan.RatePlanCode})
		}
		return body, built, nil
	case otaxml.KindReservation:
		if payload.Reservation == nil {
			return nil, builtBody{}, htngerr.Validation("reservation job has no reservation payload")
		}
		body, herr := otaxml.BuildReservation(*payload.Reservation, hdr)
		if herr != nil {
			return nil, builtBody{}, herr
		}
		return body, builtBody{
			records: 1,
			streams: []streamRef{{entityType: "reservation", entityID: payload.Reservation.ConfirmationID}},
		}, nil
	case otaxml.KindRestrictions:
		if payload.Restrictions == nil {
			return nil, builtBody{}, htngerr.Validation("restrictions job has no restrictions payload")
		}
		body, herr := otaxml.BuildRestrictions(*payload.Restrictions, hdr)
		if herr != nil {
			return nil, builtBody{}, herr
		}
		built := builtBody{records: len(payload.Restrictions.Records)}
		seen := map[string]bool{}
		for _, rec := range payload.Restrictions.Records {
			if !seen[rec.RoomTypeCode] {
				seen[rec.RoomTypeCode] = true
				built.streams = append(built.streams, streamRef{entityType: "room_type", entityID: rec.RoomTypeCode})
			}
		}
		return body, built, nil
	case otaxml.KindGroupBlock:
		if payload.GroupBlock == nil {
			return nil, builtBody{}, htngerr.Validation("group block job has no block payload")
		}
		body, herr := otaxml.BuildGroupBlock(*payload.GroupBlock, hdr)
		if herr != nil {
			return nil, builtBody{}, herr
		}
		return body, builtBody{
			records: 1,
			streams: []streamRef{{entityType: "group_block", entityID: payload.GroupBlock.BlockCode}},
		}, nil
	}
	return nil, builtBody{}, htngerr.Validation("unknown job kind " + job.Kind)
}

// beginStreams ensures and starts every status stream the body touches.
// Completed streams are re-armed first so the begin transition is legal.
func (w QueueWorker) beginStreams(ctx context.Context, job entities.QueueJob, built builtBody) []string {
	logger := application.ResolveLogger(w.Logger)
	keys := make([]string, 0, len(built.streams))
	for _, stream := range built.streams {
		status, err := w.Statuses.Ensure(ctx, job.HotelCode, job.Kind, stream.entityType, stream.entityID)
		if err != nil {
			logger.Warn("status ensure failed",
				"event", "outbound_status_ensure_failed",
				"module", "channel-sync/outbound-sync-service",
				"layer", "worker",
				"hotel_code", job.HotelCode,
				"entity_id", stream.entityID,
				"error", err,
			)
			continue
		}
		key := status.Key()
		if status.State == statusentities.StateCompleted {
			if _, err := w.Statuses.MarkPending(ctx, key); err != nil && !errors.Is(err, statuserrors.ErrInvalidTransition) {
				logger.Warn("status re-arm failed",
					"event", "outbound_status_rearm_failed",
					"module", "channel-sync/outbound-sync-service",
					"layer", "worker",
					"status_key", key,
					"error", err,
				)
			}
		}
		if _, err := w.Statuses.Begin(ctx, key); err != nil {
			if !errors.Is(err, statuserrors.ErrInvalidTransition) {
				logger.Warn("status begin failed",
					"event", "outbound_status_begin_failed",
					"module", "channel-sync/outbound-sync-service",
					"layer", "worker",
					"status_key", key,
					"error", err,
				)
			}
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

func (w QueueWorker) failStreams(ctx context.Context, keys []string, cause *htngerr.Error) {
	logger := application.ResolveLogger(w.Logger)
	for _, key := range keys {
		if _, err := w.Statuses.Fail(ctx, key, cause); err != nil {
			logger.Warn("status fail transition failed",
				"event", "outbound_status_fail_failed",
				"module", "channel-sync/outbound-sync-service",
				"layer", "worker",
				"status_key", key,
				"error", err,
			)
		}
	}
}

func (w QueueWorker) failJob(ctx context.Context, job entities.QueueJob, messageID string, cause *htngerr.Error) {
	logger := application.ResolveLogger(w.Logger)

	var retryAt *time.Time
	if cause.CanRetry && job.Attempts+1 < job.MaxAttempts {
		at := w.Clock.Now().Add(retryDelay(cause, job.Attempts))
		retryAt = &at
	}
	if err := w.Jobs.Fail(ctx, job.ID, cause.Error(), retryAt); err != nil {
		logger.Error("job fail write failed",
			"event", "outbound_job_fail_write_failed",
			"module", "channel-sync/outbound-sync-service",
			"layer", "worker",
			"job_id", job.ID,
			"error", err,
		)
	}

	entry := entities.ErrorLog{
		MessageID:         messageID,
		Kind:              string(cause.Kind),
		Code:              cause.Code,
		Severity:          entities.ErrorSeverity(cause.Severity),
		Message:           cause.Message,
		Source:            "outbound-sync-service",
		CanRetry:          cause.CanRetry,
		RetryDelaySeconds: int(cause.RetryDelay / time.Second),
		CreatedAt:         w.Clock.Now(),
	}
	if id, err := w.IDGen.NewID(ctx); err == nil {
		entry.ID = id
	}
	if err := w.Errors.Record(ctx, entry); err != nil {
		logger.Warn("error log write failed",
			"event", "outbound_error_log_failed",
			"module", "channel-sync/outbound-sync-service",
			"layer", "worker",
			"job_id", job.ID,
			"error", err,
		)
	}
	logger.Warn("dispatch failed",
		"event", "outbound_dispatch_failed",
		"module", "channel-sync/outbound-sync-service",
		"layer", "worker",
		"job_id", job.ID,
		"kind", job.Kind,
		"error_kind", string(cause.Kind),
		"error_code", cause.Code,
		"will_retry", retryAt != nil,
	)
}

func (w QueueWorker) openLog(ctx context.Context, job entities.QueueJob, messageID string, envelope []byte, startedAt time.Time) entities.MessageLog {
	body, size := entities.Truncate(envelope)
	entry := entities.MessageLog{
		MessageID:   messageID,
		Direction:   entities.DirectionOutbound,
		Kind:        job.Kind,
		PropertyID:  job.PropertyID,
		HotelCode:   job.HotelCode,
		RequestBody: body,
		RequestSize: size,
		Status:      entities.LogRunning,
		RetryCount:  job.Attempts,
		StartedAt:   startedAt,
		JobID:       job.ID,
		Metadata:    map[string]string{"queue": string(job.Queue), "scope": string(job.Scope)},
	}
	if id, err := w.IDGen.NewID(ctx); err == nil {
		entry.ID = id
	}
	if err := w.Logs.Open(ctx, entry); err != nil {
		application.ResolveLogger(w.Logger).Warn("message log open failed",
			"event", "outbound_message_log_open_failed",
			"module", "channel-sync/outbound-sync-service",
			"layer", "worker",
			"message_id", messageID,
			"error", err,
		)
	}
	return entry
}

func (w QueueWorker) closeLog(ctx context.Context, entry entities.MessageLog, response *soapenv.Response, completedAt time.Time) {
	body, size := entities.Truncate([]byte(response.Raw))
	entry.ResponseBody = body
	entry.ResponseSize = size
	entry.DurationMS = response.DurationMS
	entry.CompletedAt = &completedAt
	if response.Success {
		entry.Status = entities.LogCompleted
		if len(response.Warnings) > 0 {
			entry.Metadata["warnings"] = warningsText(response.Warnings)
		}
	} else {
		entry.Status = entities.LogFailed
		entry.ErrorKind = string(response.ErrorKind)
		entry.ErrorMessage = response.ErrorMessage
	}
	if err := w.Logs.Close(ctx, entry); err != nil {
		application.ResolveLogger(w.Logger).Warn("message log close failed",
			"event", "outbound_message_log_close_failed",
			"module", "channel-sync/outbound-sync-service",
			"layer", "worker",
			"message_id", entry.MessageID,
			"error", err,
		)
	}
}

func warningsText(warnings []soapenv.Warning) string {
	text := ""
	for i, warning := range warnings {
		if i > 0 {
			text += "; "
		}
		if warning.Code != "" {
			text += warning.Code + ": "
		}
		text += warning.Text
	}
	return text
}

func transportKind(err error) htngerr.Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return htngerr.KindTimeout
	}
	return htngerr.KindConnection
}

// retryDelay grows the kind's base delay exponentially with light jitter,
// capped at 30 minutes.
func retryDelay(cause *htngerr.Error, attempts int) time.Duration {
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
