package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"meridian/contexts/channel-sync/sync-status-service/domain/entities"
	domainerrors "meridian/contexts/channel-sync/sync-status-service/domain/errors"
	"meridian/contexts/channel-sync/sync-status-service/ports"

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

func (r *Repository) Get(ctx context.Context, key string) (entities.SyncStatus, error) {
	var row syncStatusModel
	err := r.db.WithContext(ctx).
		Where("status_key = ?", key).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.SyncStatus{}, domainerrors.ErrStatusNotFound
		}
		return entities.SyncStatus{}, r.logError("sync_status_repo_get_failed", err, "status_key", key)
	}
	return row.toEntity(), nil
}

func (r *Repository) GetOrCreate(ctx context.Context, blank entities.SyncStatus) (entities.SyncStatus, error) {
	row := statusModelFromEntity(blank)
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "status_key"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil && !isUniqueViolation(create.Error) {
		return entities.SyncStatus{}, r.logError("sync_status_repo_get_or_create_failed", create.Error, "status_key", blank.Key())
	}
	return r.Get(ctx, blank.Key())
}

// Mutate loads the row FOR UPDATE inside a transaction, applies fn, and
// writes the result back. Concurrent mutators of the same key serialize on
// the row lock.
func (r *Repository) Mutate(ctx context.Context, key string, fn func(*entities.SyncStatus) error) (entities.SyncStatus, error) {
	var out entities.SyncStatus
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row syncStatusModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("status_key = ?", key).
			First(&row).
			Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainerrors.ErrStatusNotFound
			}
			return err
		}
		status := row.toEntity()
		if err := fn(&status); err != nil {
			return err
		}
		updated := statusModelFromEntity(status)
		updated.RowID = row.RowID
		if err := tx.Model(&syncStatusModel{}).
			Where("status_key = ?", key).
			Select("*").
			Omit("row_id").
			Updates(&updated).
			Error; err != nil {
			return err
		}
		out = status
		return nil
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrStatusNotFound) || errors.Is(err, domainerrors.ErrInvalidTransition) {
			return entities.SyncStatus{}, err
		}
		return entities.SyncStatus{}, r.logError("sync_status_repo_mutate_failed", err, "status_key", key)
	}
	return out, nil
}

func (r *Repository) ListByProperty(ctx context.Context, hotelCode string) ([]entities.SyncStatus, error) {
	var rows []syncStatusModel
	err := r.db.WithContext(ctx).
		Where("hotel_code = ?", hotelCode).
		Order("status_key ASC").
		Find(&rows).
		Error
	if err != nil {
		return nil, r.logError("sync_status_repo_list_by_property_failed", err, "hotel_code", hotelCode)
	}
	out := make([]entities.SyncStatus, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toEntity())
	}
	return out, nil
}

func (r *Repository) ListDue(ctx context.Context, now time.Time, limit int) ([]entities.SyncStatus, error) {
	tx := r.db.WithContext(ctx).
		Where("state = ?", string(entities.StateFailed)).
		Where("next_retry_at IS NOT NULL AND next_retry_at <= ?", now).
		Order("next_retry_at ASC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	var rows []syncStatusModel
	if err := tx.Find(&rows).Error; err != nil {
		return nil, r.logError("sync_status_repo_list_due_failed", err)
	}
	out := make([]entities.SyncStatus, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toEntity())
	}
	return out, nil
}

func (r *Repository) Append(ctx context.Context, entry entities.ChangeLogEntry) error {
	row, err := changeLogModelFromEntity(entry)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return r.logError("sync_status_repo_changelog_append_failed", err, "status_key", entry.StatusKey)
	}
	return nil
}

func (r *Repository) logError(event string, err error, args ...any) error {
	fields := append([]any{"event", event, "error", err}, args...)
	r.logger.Error("sync status repository operation failed", fields...)
	return err
}

// Models returns the gorm models for migration.
func Models() []any {
	return []any{&syncStatusModel{}, &changeLogModel{}}
}

type syncStatusModel struct {
	RowID            uint       `gorm:"column:row_id;primaryKey;autoIncrement"`
	ID               string     `gorm:"column:id"`
	StatusKey        string     `gorm:"column:status_key;uniqueIndex"`
	HotelCode        string     `gorm:"column:hotel_code;index"`
	Kind             string     `gorm:"column:kind"`
	EntityType       string     `gorm:"column:entity_type"`
	EntityID         string     `gorm:"column:entity_id"`
	State            string     `gorm:"column:state"`
	AttemptCount     int        `gorm:"column:attempt_count"`
	RetryCount       int        `gorm:"column:retry_count"`
	AutoRetry        bool       `gorm:"column:auto_retry"`
	LastAttemptAt    *time.Time `gorm:"column:last_attempt_at"`
	LastSuccessAt    *time.Time `gorm:"column:last_success_at"`
	NextRetryAt      *time.Time `gorm:"column:next_retry_at"`
	LastErrorKind    string     `gorm:"column:last_error_kind"`
	LastErrorMessage string     `gorm:"column:last_error_message"`
	RecordsProcessed int        `gorm:"column:records_processed"`
	RecordsTotal     int        `gorm:"column:records_total"`
	SuccessRate      float64    `gorm:"column:success_rate"`
	CreatedAt        time.Time  `gorm:"column:created_at"`
	UpdatedAt        time.Time  `gorm:"column:updated_at"`
}

func (syncStatusModel) TableName() string {
	return "sync_statuses"
}

func statusModelFromEntity(s entities.SyncStatus) syncStatusModel {
	return syncStatusModel{
		ID:               s.ID,
		StatusKey:        s.Key(),
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
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}

func (m syncStatusModel) toEntity() entities.SyncStatus {
	return entities.SyncStatus{
		ID:               m.ID,
		HotelCode:        m.HotelCode,
		Kind:             m.Kind,
		EntityType:       m.EntityType,
		EntityID:         m.EntityID,
		State:            entities.State(m.State),
		AttemptCount:     m.AttemptCount,
		RetryCount:       m.RetryCount,
		AutoRetry:        m.AutoRetry,
		LastAttemptAt:    m.LastAttemptAt,
		LastSuccessAt:    m.LastSuccessAt,
		NextRetryAt:      m.NextRetryAt,
		LastErrorKind:    m.LastErrorKind,
		LastErrorMessage: m.LastErrorMessage,
		RecordsProcessed: m.RecordsProcessed,
		RecordsTotal:     m.RecordsTotal,
		SuccessRate:      m.SuccessRate,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

type changeLogModel struct {
	ID            string    `gorm:"column:id;primaryKey"`
	StatusKey     string    `gorm:"column:status_key;index"`
	HotelCode     string    `gorm:"column:hotel_code"`
	Kind          string    `gorm:"column:kind"`
	ChangeType    string    `gorm:"column:change_type"`
	PreviousState string    `gorm:"column:previous_state"`
	NewState      string    `gorm:"column:new_state"`
	Context       []byte    `gorm:"column:context"`
	OccurredAt    time.Time `gorm:"column:occurred_at"`
}

func (changeLogModel) TableName() string {
	return "sync_status_changes"
}

func changeLogModelFromEntity(e entities.ChangeLogEntry) (changeLogModel, error) {
	var ctxJSON []byte
	if len(e.Context) > 0 {
		var err error
		ctxJSON, err = json.Marshal(e.Context)
		if err != nil {
			return changeLogModel{}, err
		}
	}
	return changeLogModel{
		ID:            e.ID,
		StatusKey:     e.StatusKey,
		HotelCode:     e.HotelCode,
		Kind:          e.Kind,
		ChangeType:    string(e.ChangeType),
		PreviousState: string(e.PreviousState),
		NewState:      string(e.NewState),
		Context:       ctxJSON,
		OccurredAt:    e.OccurredAt,
	}, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ ports.StatusRepository = (*Repository)(nil)
var _ ports.ChangeLog = (*Repository)(nil)
