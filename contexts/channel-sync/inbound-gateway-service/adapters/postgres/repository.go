package postgresadapter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"meridian/contexts/channel-sync/inbound-gateway-service/domain/entities"
	"meridian/contexts/channel-sync/inbound-gateway-service/ports"

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

func (r *Repository) Find(ctx context.Context, fingerprint string) (entities.ProcessedMessage, bool, error) {
	var row processedMessageModel
	err := r.db.WithContext(ctx).
		Where("fingerprint = ?", fingerprint).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.ProcessedMessage{}, false, nil
		}
		return entities.ProcessedMessage{}, false, r.logError("inbound_repo_find_failed", err, "fingerprint", fingerprint)
	}
	return row.toEntity(), true, nil
}

// Save keeps the first acknowledgment for a fingerprint; a concurrent
// duplicate insert is not an error.
func (r *Repository) Save(ctx context.Context, msg entities.ProcessedMessage) error {
	row := processedMessageModelFromEntity(msg)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "fingerprint"}},
		DoNothing: true,
	}).Create(&row).Error
	if err != nil && !isUniqueViolation(err) {
		return r.logError("inbound_repo_save_failed", err, "fingerprint", msg.Fingerprint)
	}
	return nil
}

func (r *Repository) logError(event string, err error, args ...any) error {
	fields := append([]any{"event", event, "error", err}, args...)
	r.logger.Error("inbound repository operation failed", fields...)
	return err
}

// Models returns the gorm models for migration.
func Models() []any {
	return []any{&processedMessageModel{}}
}

type processedMessageModel struct {
	Fingerprint string    `gorm:"column:fingerprint;primaryKey"`
	MessageID   string    `gorm:"column:message_id"`
	Kind        string    `gorm:"column:kind"`
	PropertyID  string    `gorm:"column:property_id;index"`
	HotelCode   string    `gorm:"column:hotel_code"`
	Ack         []byte    `gorm:"column:ack"`
	LogID       string    `gorm:"column:log_id"`
	ReceivedAt  time.Time `gorm:"column:received_at;index"`
}

func (processedMessageModel) TableName() string {
	return "processed_messages"
}

func processedMessageModelFromEntity(e entities.ProcessedMessage) processedMessageModel {
	return processedMessageModel{
		Fingerprint: e.Fingerprint,
		MessageID:   e.MessageID,
		Kind:        e.Kind,
		PropertyID:  e.PropertyID,
		HotelCode:   e.HotelCode,
		Ack:         e.Ack,
		LogID:       e.LogID,
		ReceivedAt:  e.ReceivedAt,
	}
}

func (m processedMessageModel) toEntity() entities.ProcessedMessage {
	return entities.ProcessedMessage{
		Fingerprint: m.Fingerprint,
		MessageID:   m.MessageID,
		Kind:        m.Kind,
		PropertyID:  m.PropertyID,
		HotelCode:   m.HotelCode,
		Ack:         m.Ack,
		LogID:       m.LogID,
		ReceivedAt:  m.ReceivedAt,
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ ports.DedupStore = (*Repository)(nil)
