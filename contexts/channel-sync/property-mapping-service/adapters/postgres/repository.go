package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"meridian/contexts/channel-sync/property-mapping-service/domain/entities"
	domainerrors "meridian/contexts/channel-sync/property-mapping-service/domain/errors"
	"meridian/contexts/channel-sync/property-mapping-service/ports"

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

func (r *Repository) Save(ctx context.Context, mapping entities.PropertyMapping) error {
	row, err := mappingModelFromEntity(mapping)
	if err != nil {
		return err
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"property_id": row.PropertyID,
			"hotel_code":  row.HotelCode,
			"active":      row.Active,
			"config":      row.Config,
			"updated_at":  row.UpdatedAt,
		}),
	}).Create(&row)
	if create.Error != nil {
		if isUniqueViolation(create.Error) {
			return domainerrors.ErrDuplicateMapping
		}
		return r.logError("mapping_repo_save_failed", create.Error, "mapping_id", mapping.ID)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (entities.PropertyMapping, error) {
	var row mappingModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.PropertyMapping{}, domainerrors.ErrMappingNotFound
		}
		return entities.PropertyMapping{}, r.logError("mapping_repo_get_failed", err, "mapping_id", id)
	}
	return row.toEntity()
}

func (r *Repository) ActiveByProperty(ctx context.Context, propertyID string) (entities.PropertyMapping, bool, error) {
	return r.findActive(ctx, "property_id = ?", propertyID)
}

func (r *Repository) ActiveByHotelCode(ctx context.Context, hotelCode string) (entities.PropertyMapping, bool, error) {
	return r.findActive(ctx, "hotel_code = ?", hotelCode)
}

func (r *Repository) findActive(ctx context.Context, query string, arg string) (entities.PropertyMapping, bool, error) {
	var row mappingModel
	err := r.db.WithContext(ctx).
		Where(query, arg).
		Where("active = ?", true).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.PropertyMapping{}, false, nil
		}
		return entities.PropertyMapping{}, false, r.logError("mapping_repo_find_active_failed", err, "arg", arg)
	}
	mapping, convErr := row.toEntity()
	if convErr != nil {
		return entities.PropertyMapping{}, false, convErr
	}
	return mapping, true, nil
}

func (r *Repository) List(ctx context.Context) ([]entities.PropertyMapping, error) {
	var rows []mappingModel
	if err := r.db.WithContext(ctx).Order("property_id ASC").Find(&rows).Error; err != nil {
		return nil, r.logError("mapping_repo_list_failed", err)
	}
	out := make([]entities.PropertyMapping, 0, len(rows))
	for _, row := range rows {
		mapping, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		out = append(out, mapping)
	}
	return out, nil
}

func (r *Repository) logError(event string, err error, args ...any) error {
	fields := append([]any{"event", event, "error", err}, args...)
	r.logger.Error("mapping repository operation failed", fields...)
	return err
}

// Models returns the gorm models for migration.
func Models() []any {
	return []any{&mappingModel{}}
}

type mappingModel struct {
	ID         string    `gorm:"column:id;primaryKey"`
	PropertyID string    `gorm:"column:property_id;index"`
	HotelCode  string    `gorm:"column:hotel_code;index"`
	Active     bool      `gorm:"column:active"`
	Config     []byte    `gorm:"column:config"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (mappingModel) TableName() string {
	return "property_mappings"
}

func mappingModelFromEntity(m entities.PropertyMapping) (mappingModel, error) {
	config, err := json.Marshal(m.Config)
	if err != nil {
		return mappingModel{}, err
	}
	return mappingModel{
		ID:         m.ID,
		PropertyID: m.PropertyID,
		HotelCode:  m.HotelCode,
		Active:     m.Active,
		Config:     config,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}, nil
}

func (m mappingModel) toEntity() (entities.PropertyMapping, error) {
	var config entities.MappingConfig
	if len(m.Config) > 0 {
		if err := json.Unmarshal(m.Config, &config); err != nil {
			return entities.PropertyMapping{}, err
		}
	}
	return entities.PropertyMapping{
		ID:         m.ID,
		PropertyID: m.PropertyID,
		HotelCode:  m.HotelCode,
		Active:     m.Active,
		Config:     config,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ ports.MappingRepository = (*Repository)(nil)
