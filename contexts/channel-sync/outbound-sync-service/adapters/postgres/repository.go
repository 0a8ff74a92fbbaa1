package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"meridian/contexts/channel-sync/outbound-sync-service/domain/entities"
	domainerrors "meridian/contexts/channel-sync/outbound-sync-service/domain/errors"
	"meridian/contexts/channel-sync/outbound-sync-service/ports"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) Enqueue(ctx context.Context, job entities.QueueJob) error {
	row := jobModelFromEntity(job)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrInvalidJobInput
		}
		return r.logError("outbound_repo_enqueue_failed", err, "job_id", job.ID)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (entities.QueueJob, error) {
	var row queueJobModel
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.QueueJob{}, domainerrors.ErrJobNotFound
		}
		return entities.QueueJob{}, r.logError("outbound_repo_get_failed", err, "job_id", id)
	}
	return row.toEntity(), nil
}

// Claim locks due rows with SKIP LOCKED so concurrent workers never pick the
// same job, then stamps them running under a lease. Running jobs whose lease
// has lapsed are claimable again.
func (r *Repository) Claim(ctx context.Context, queue entities.Queue, now time.Time, limit int, owner string, ttl time.Duration) ([]entities.QueueJob, error) {
	var out []entities.QueueJob
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []queueJobModel
		q := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("queue = ?", string(queue)).
			Where("(status = ? AND run_at <= ?) OR (status = ? AND leased_until < ?)",
				string(entities.JobPending), now, string(entities.JobRunning), now).
			Order("run_at ASC")
		if limit > 0 {
			q = q.Limit(limit)
		}
		if err := q.Find(&rows).Error; err != nil {
			return err
		}
		until := now.Add(ttl)
		for _, row := range rows {
			row.Status = string(entities.JobRunning)
			row.LeaseOwner = owner
			row.LeasedUntil = &until
			row.UpdatedAt = now
			if err := tx.Model(&queueJobModel{}).
				Where("id = ?", row.ID).
				Select("status", "lease_owner", "leased_until", "updated_at").
				Updates(&row).
				Error; err != nil {
				return err
			}
			out = append(out, row.toEntity())
		}
		return nil
	})
	if err != nil {
		return nil, r.logError("outbound_repo_claim_failed", err, "queue", string(queue))
	}
	return out, nil
}

func (r *Repository) Complete(ctx context.Context, id string) error {
	return r.mutateJob(ctx, id, "outbound_repo_complete_failed", func(job *entities.QueueJob) error {
		job.Status = entities.JobCompleted
		job.LeaseOwner = ""
		job.LeasedUntil = nil
		return nil
	})
}

// Fail consumes one attempt. With a retry time and attempts to spare the job
// goes back to pending; otherwise it lands failed.
func (r *Repository) Fail(ctx context.Context, id string, lastError string, retryAt *time.Time) error {
	return r.mutateJob(ctx, id, "outbound_repo_fail_failed", func(job *entities.QueueJob) error {
		job.Attempts++
		job.LastError = lastError
		job.LeaseOwner = ""
		job.LeasedUntil = nil
		if retryAt != nil && job.Attempts < job.MaxAttempts {
			job.Status = entities.JobPending
			job.RunAt = *retryAt
		} else {
			job.Status = entities.JobFailed
		}
		return nil
	})
}

// Postpone returns a job to pending without consuming an attempt.
func (r *Repository) Postpone(ctx context.Context, id string, runAt time.Time) error {
	return r.mutateJob(ctx, id, "outbound_repo_postpone_failed", func(job *entities.QueueJob) error {
		job.Status = entities.JobPending
		job.RunAt = runAt
		job.LeaseOwner = ""
		job.LeasedUntil = nil
		return nil
	})
}

func (r *Repository) Cancel(ctx context.Context, id string) error {
	return r.mutateJob(ctx, id, "outbound_repo_cancel_failed", func(job *entities.QueueJob) error {
		if job.Status != entities.JobPending && job.Status != entities.JobFailed {
			return domainerrors.ErrJobNotCancellable
		}
		job.Status = entities.JobCancelled
		return nil
	})
}

func (r *Repository) mutateJob(ctx context.Context, id, failEvent string, fn func(*entities.QueueJob) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row queueJobModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&row).
			Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainerrors.ErrJobNotFound
			}
			return err
		}
		job := row.toEntity()
		if err := fn(&job); err != nil {
			return err
		}
		job.UpdatedAt = time.Now().UTC()
		updated := jobModelFromEntity(job)
		return tx.Model(&queueJobModel{}).
			Where("id = ?", id).
			Select("*").
			Updates(&updated).
			Error
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrJobNotFound) || errors.Is(err, domainerrors.ErrJobNotCancellable) {
			return err
		}
		return r.logError(failEvent, err, "job_id", id)
	}
	return nil
}

// Acquire takes or refreshes the stream lease. A live lease held by another
// owner wins.
func (r *Repository) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	row := streamLeaseModel{
		StreamKey: key,
		Owner:     owner,
		Until:     now.Add(ttl),
		UpdatedAt: now,
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stream_key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"owner":      owner,
			"until":      now.Add(ttl),
			"updated_at": now,
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Or(
				clause.Lt{Column: clause.Column{Table: "stream_leases", Name: "until"}, Value: now},
				clause.Eq{Column: clause.Column{Table: "stream_leases", Name: "owner"}, Value: owner},
			),
		}},
	}).Create(&row)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return false, nil
		}
		return false, r.logError("outbound_repo_lease_acquire_failed", res.Error, "stream_key", key)
	}
	return res.RowsAffected > 0, nil
}

func (r *Repository) Release(ctx context.Context, key, owner string) error {
	err := r.db.WithContext(ctx).
		Where("stream_key = ? AND owner = ?", key, owner).
		Delete(&streamLeaseModel{}).
		Error
	if err != nil {
		return r.logError("outbound_repo_lease_release_failed", err, "stream_key", key)
	}
	return nil
}

func (r *Repository) Open(ctx context.Context, entry entities.MessageLog) error {
	row, err := messageLogModelFromEntity(entry)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return r.logError("outbound_repo_log_open_failed", err, "message_id", entry.MessageID)
	}
	return nil
}

func (r *Repository) Close(ctx context.Context, entry entities.MessageLog) error {
	row, err := messageLogModelFromEntity(entry)
	if err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Model(&messageLogModel{}).
		Where("id = ?", entry.ID).
		Select("response_body", "response_size", "status", "error_kind", "error_message", "completed_at", "duration_ms", "metadata").
		Updates(&row)
	if res.Error != nil {
		return r.logError("outbound_repo_log_close_failed", res.Error, "message_id", entry.MessageID)
	}
	if res.RowsAffected == 0 {
		return domainerrors.ErrLogNotFound
	}
	return nil
}

func (r *Repository) Resolve(ctx context.Context, id string, status entities.LogStatus, errorKind, errorMessage string, completedAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&messageLogModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        string(status),
			"error_kind":    errorKind,
			"error_message": errorMessage,
			"completed_at":  completedAt,
			"duration_ms":   gorm.Expr("EXTRACT(EPOCH FROM (?::timestamptz - started_at)) * 1000", completedAt),
		})
	if res.Error != nil {
		return r.logError("outbound_repo_log_resolve_failed", res.Error, "log_id", id)
	}
	if res.RowsAffected == 0 {
		return domainerrors.ErrLogNotFound
	}
	return nil
}

func (r *Repository) ListRecent(ctx context.Context, limit int) ([]entities.MessageLog, error) {
	tx := r.db.WithContext(ctx).Order("started_at DESC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	var rows []messageLogModel
	if err := tx.Find(&rows).Error; err != nil {
		return nil, r.logError("outbound_repo_log_list_failed", err)
	}
	out := make([]entities.MessageLog, 0, len(rows))
	for _, row := range rows {
		entry, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

func (r *Repository) Record(ctx context.Context, entry entities.ErrorLog) error {
	row := errorLogModelFromEntity(entry)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return r.logError("outbound_repo_error_record_failed", err, "error_code", entry.Code)
	}
	return nil
}

func (r *Repository) logError(event string, err error, args ...any) error {
	fields := append([]any{"event", event, "error", err}, args...)
	r.logger.Error("outbound repository operation failed", fields...)
	return err
}

type queueJobModel struct {
	ID          string     `gorm:"column:id;primaryKey"`
	Queue       string     `gorm:"column:queue;index:idx_queue_jobs_due"`
	PropertyID  string     `gorm:"column:property_id;index"`
	HotelCode   string     `gorm:"column:hotel_code"`
	Kind        string     `gorm:"column:kind"`
	Scope       string     `gorm:"column:scope"`
	Payload     []byte     `gorm:"column:payload"`
	Status      string     `gorm:"column:status;index:idx_queue_jobs_due"`
	Attempts    int        `gorm:"column:attempts"`
	MaxAttempts int        `gorm:"column:max_attempts"`
	RunAt       time.Time  `gorm:"column:run_at;index:idx_queue_jobs_due"`
	LeaseOwner  string     `gorm:"column:lease_owner"`
	LeasedUntil *time.Time `gorm:"column:leased_until"`
	LastError   string     `gorm:"column:last_error"`
	CreatedAt   time.Time  `gorm:"column:created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at"`
}

func (queueJobModel) TableName() string {
	return "queue_jobs"
}

func jobModelFromEntity(j entities.QueueJob) queueJobModel {
	return queueJobModel{
		ID:          j.ID,
		Queue:       string(j.Queue),
		PropertyID:  j.PropertyID,
		HotelCode:   j.HotelCode,
		Kind:        j.Kind,
		Scope:       string(j.Scope),
		Payload:     j.Payload,
		Status:      string(j.Status),
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
		RunAt:       j.RunAt,
		LeaseOwner:  j.LeaseOwner,
		LeasedUntil: j.LeasedUntil,
		LastError:   j.LastError,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

func (m queueJobModel) toEntity() entities.QueueJob {
	return entities.QueueJob{
		ID:          m.ID,
		Queue:       entities.Queue(m.Queue),
		PropertyID:  m.PropertyID,
		HotelCode:   m.HotelCode,
		Kind:        m.Kind,
		Scope:       entities.SyncScope(m.Scope),
		Payload:     m.Payload,
		Status:      entities.JobStatus(m.Status),
		Attempts:    m.Attempts,
		MaxAttempts: m.MaxAttempts,
		RunAt:       m.RunAt,
		LeaseOwner:  m.LeaseOwner,
		LeasedUntil: m.LeasedUntil,
		LastError:   m.LastError,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

type streamLeaseModel struct {
	StreamKey string    `gorm:"column:stream_key;primaryKey"`
	Owner     string    `gorm:"column:owner"`
	Until     time.Time `gorm:"column:until"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (streamLeaseModel) TableName() string {
	return "stream_leases"
}

type messageLogModel struct {
	ID           string     `gorm:"column:id;primaryKey"`
	MessageID    string     `gorm:"column:message_id;index"`
	Direction    string     `gorm:"column:direction"`
	Kind         string     `gorm:"column:kind"`
	PropertyID   string     `gorm:"column:property_id;index"`
	HotelCode    string     `gorm:"column:hotel_code"`
	RequestBody  string     `gorm:"column:request_body"`
	RequestSize  int        `gorm:"column:request_size"`
	ResponseBody string     `gorm:"column:response_body"`
	ResponseSize int        `gorm:"column:response_size"`
	Status       string     `gorm:"column:status"`
	ErrorKind    string     `gorm:"column:error_kind"`
	ErrorMessage string     `gorm:"column:error_message"`
	RetryCount   int        `gorm:"column:retry_count"`
	StartedAt    time.Time  `gorm:"column:started_at;index"`
	CompletedAt  *time.Time `gorm:"column:completed_at"`
	DurationMS   int64      `gorm:"column:duration_ms"`
	JobID        string     `gorm:"column:job_id"`
	Metadata     []byte     `gorm:"column:metadata"`
}

func (messageLogModel) TableName() string {
	return "message_logs"
}

func messageLogModelFromEntity(e entities.MessageLog) (messageLogModel, error) {
	var meta []byte
	if len(e.Metadata) > 0 {
		var err error
		meta, err = json.Marshal(e.Metadata)
		if err != nil {
			return messageLogModel{}, err
		}
	}
	return messageLogModel{
		ID:           e.ID,
		MessageID:    e.MessageID,
		Direction:    string(e.Direction),
		Kind:         e.Kind,
		PropertyID:   e.PropertyID,
		HotelCode:    e.HotelCode,
		RequestBody:  e.RequestBody,
		RequestSize:  e.RequestSize,
		ResponseBody: e.ResponseBody,
		ResponseSize: e.ResponseSize,
		Status:       string(e.Status),
		ErrorKind:    e.ErrorKind,
		ErrorMessage: e.ErrorMessage,
		RetryCount:   e.RetryCount,
		StartedAt:    e.StartedAt,
		CompletedAt:  e.CompletedAt,
		DurationMS:   e.DurationMS,
		JobID:        e.JobID,
		Metadata:     meta,
	}, nil
}

func (m messageLogModel) toEntity() (entities.MessageLog, error) {
	var meta map[string]string
	if len(m.Metadata) > 0 {
		if err := json.Unmarshal(m.Metadata, &meta); err != nil {
			return entities.MessageLog{}, err
		}
	}
	return entities.MessageLog{
		ID:           m.ID,
		MessageID:    m.MessageID,
		Direction:    entities.Direction(m.Direction),
		Kind:         m.Kind,
		PropertyID:   m.PropertyID,
		HotelCode:    m.HotelCode,
		RequestBody:  m.RequestBody,
		RequestSize:  m.RequestSize,
		ResponseBody: m.ResponseBody,
		ResponseSize: m.ResponseSize,
		Status:       entities.LogStatus(m.Status),
		ErrorKind:    m.ErrorKind,
		ErrorMessage: m.ErrorMessage,
		RetryCount:   m.RetryCount,
		StartedAt:    m.StartedAt,
		CompletedAt:  m.CompletedAt,
		DurationMS:   m.DurationMS,
		JobID:        m.JobID,
		Metadata:     meta,
	}, nil
}

type errorLogModel struct {
	ID                 string     `gorm:"column:id;primaryKey"`
	MessageID          string     `gorm:"column:message_id;index"`
	Kind               string     `gorm:"column:kind"`
	Code               string     `gorm:"column:code"`
	Severity           string     `gorm:"column:severity"`
	Message            string     `gorm:"column:message"`
	Source             string     `gorm:"column:source"`
	CanRetry           bool       `gorm:"column:can_retry"`
	RetryDelaySeconds  int        `gorm:"column:retry_delay_seconds"`
	ManualIntervention bool       `gorm:"column:manual_intervention"`
	ResolvedAt         *time.Time `gorm:"column:resolved_at"`
	ResolvedBy         string     `gorm:"column:resolved_by"`
	CreatedAt          time.Time  `gorm:"column:created_at"`
}

func (errorLogModel) TableName() string {
	return "error_logs"
}

func errorLogModelFromEntity(e entities.ErrorLog) errorLogModel {
	return errorLogModel{
		ID:                 e.ID,
		MessageID:          e.MessageID,
		Kind:               e.Kind,
		Code:               e.Code,
		Severity:           string(e.Severity),
		Message:            e.Message,
		Source:             e.Source,
		CanRetry:           e.CanRetry,
		RetryDelaySeconds:  e.RetryDelaySeconds,
		ManualIntervention: e.ManualIntervention,
		ResolvedAt:         e.ResolvedAt,
		ResolvedBy:         e.ResolvedBy,
		CreatedAt:          e.CreatedAt,
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var (
	_ ports.JobRepository        = (*Repository)(nil)
	_ ports.LeaseStore           = (*Repository)(nil)
	_ ports.MessageLogRepository = (*Repository)(nil)
	_ ports.ErrorLogRepository   = (*Repository)(nil)
)
