// Package pms is the gateway to the property-management system's data:
// master data lookups for validation, changed-record reads for outbound
// planning, and reservation delivery for the inbound path.
package pms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"meridian/internal/shared/otaxml"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{db: db, logger: logger}
}

func (r *Repository) ChangedInventory(ctx context.Context, propertyID string, since *time.Time) ([]otaxml.InventoryRecord, error) {
	var rows []inventoryModel
	q := r.db.WithContext(ctx).Where("property_id = ?", propertyID)
	if since != nil {
		q = q.Where("updated_at > ?", *since)
	}
	if err := q.Order("room_type_code, start_date").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list changed inventory: %w", err)
	}
	records := make([]otaxml.InventoryRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toRecord())
	}
	return records, nil
}

func (r *Repository) ChangedRates(ctx context.Context, propertyID string, since *time.Time) ([]otaxml.RatePlanBlock, error) {
	var rows []rateModel
	q := r.db.WithContext(ctx).Where("property_id = ?", propertyID)
	if since != nil {
		q = q.Where("updated_at > ?", *since)
	}
	if err := q.Order("rate_plan_code, room_type_code, start_date").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list changed rates: %w", err)
	}
	return groupRates(rows), nil
}

func (r *Repository) ChangedRestrictions(ctx context.Context, propertyID string, since *time.Time) ([]otaxml.RestrictionRecord, error) {
	var rows []restrictionModel
	q := r.db.WithContext(ctx).Where("property_id = ?", propertyID)
	if since != nil {
		q = q.Where("updated_at > ?", *since)
	}
	if err := q.Order("room_type_code, start_date").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list changed restrictions: %w", err)
	}
	records := make([]otaxml.RestrictionRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toRecord())
	}
	return records, nil
}

// ApplyReservation upserts the reservation keyed by confirmation id, so the
// inbound consumer is idempotent across queue retries.
func (r *Repository) ApplyReservation(ctx context.Context, propertyID string, res otaxml.Reservation) error {
	details, err := json.Marshal(reservationDetails{
		Guests:          res.Guests,
		RoomStays:       res.RoomStays,
		SpecialRequests: res.SpecialRequests,
	})
	if err != nil {
		return fmt.Errorf("encode reservation details: %w", err)
	}
	now := time.Now().UTC()
	row := reservationModel{
		ConfirmationID: res.ConfirmationID,
		PropertyID:     propertyID,
		HotelCode:      res.HotelCode,
		Status:         string(res.Status),
		Details:        details,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "confirmation_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "details", "updated_at"}),
	}).Create(&row).Error
	if err != nil && !isUniqueViolation(err) {
		return fmt.Errorf("apply reservation %s: %w", res.ConfirmationID, err)
	}
	return nil
}

func (r *Repository) PropertyExists(ctx context.Context, hotelCode string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&propertyModel{}).
		Where("hotel_code = ?", hotelCode).
		Count(&count).
		Error
	if err != nil {
		return false, fmt.Errorf("property lookup: %w", err)
	}
	return count > 0, nil
}

func (r *Repository) RoomTypeExists(ctx context.Context, hotelCode, roomTypeCode string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&roomTypeModel{}).
		Where("hotel_code = ? AND code = ? AND active", hotelCode, roomTypeCode).
		Count(&count).
		Error
	if err != nil {
		return false, fmt.Errorf("room type lookup: %w", err)
	}
	return count > 0, nil
}

func (r *Repository) RatePlanExists(ctx context.Context, hotelCode, ratePlanCode string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&ratePlanModel{}).
		Where("hotel_code = ? AND code = ? AND active", hotelCode, ratePlanCode).
		Count(&count).
		Error
	if err != nil {
		return false, fmt.Errorf("rate plan lookup: %w", err)
	}
	return count > 0, nil
}

// Models returns the gorm models for migration.
func Models() []any {
	return []any{
		&propertyModel{},
		&roomTypeModel{},
		&ratePlanModel{},
		&inventoryModel{},
		&rateModel{},
		&restrictionModel{},
		&reservationModel{},
	}
}

type propertyModel struct {
	PropertyID string `gorm:"column:property_id;primaryKey"`
	HotelCode  string `gorm:"column:hotel_code;index"`
	Name       string `gorm:"column:name"`
}

func (propertyModel) TableName() string { return "pms_properties" }

type roomTypeModel struct {
	ID        string `gorm:"column:id;primaryKey"`
	HotelCode string `gorm:"column:hotel_code;index:idx_pms_room_types_code"`
	Code      string `gorm:"column:code;index:idx_pms_room_types_code"`
	Active    bool   `gorm:"column:active"`
}

func (roomTypeModel) TableName() string { return "pms_room_types" }

type ratePlanModel struct {
	ID           string `gorm:"column:id;primaryKey"`
	HotelCode    string `gorm:"column:hotel_code;index:idx_pms_rate_plans_code"`
	Code         string `gorm:"column:code;index:idx_pms_rate_plans_code"`
	RoomTypeCode string `gorm:"column:room_type_code"`
	Active       bool   `gorm:"column:active"`
}

func (ratePlanModel) TableName() string { return "pms_rate_plans" }

type inventoryModel struct {
	ID           string    `gorm:"column:id;primaryKey"`
	PropertyID   string    `gorm:"column:property_id;index"`
	HotelCode    string    `gorm:"column:hotel_code"`
	RoomTypeCode string    `gorm:"column:room_type_code"`
	StartDate    time.Time `gorm:"column:start_date"`
	EndDate      time.Time `gorm:"column:end_date"`
	Physical     *int      `gorm:"column:physical"`
	Available    *int      `gorm:"column:available"`
	OutOfOrder   *int      `gorm:"column:out_of_order"`
	UpdatedAt    time.Time `gorm:"column:updated_at;index"`
}

func (inventoryModel) TableName() string { return "pms_inventory" }

func (m inventoryModel) toRecord() otaxml.InventoryRecord {
	record := otaxml.InventoryRecord{
		RoomTypeCode: m.RoomTypeCode,
		Start:        m.StartDate,
		End:          m.EndDate,
	}
	if m.Physical != nil {
		record.Counts = append(record.Counts, otaxml.InventoryCount{Type: otaxml.CountPhysical, Value: *m.Physical})
	}
	if m.Available != nil {
		record.Counts = append(record.Counts, otaxml.InventoryCount{Type: otaxml.CountAvailable, Value: *m.Available})
	}
	if m.OutOfOrder != nil {
		record.Counts = append(record.Counts, otaxml.InventoryCount{Type: otaxml.CountOutOfOrder, Value: *m.OutOfOrder})
	}
	return record
}

type rateModel struct {
	ID           string    `gorm:"column:id;primaryKey"`
	PropertyID   string    `gorm:"column:property_id;index"`
	HotelCode    string    `gorm:"column:hotel_code"`
	RatePlanCode string    `gorm:"column:rate_plan_code"`
	RoomTypeCode string    `gorm:"column:room_type_code"`
	StartDate    time.Time `gorm:"column:start_date"`
	EndDate      time.Time `gorm:"column:end_date"`
	FirstGuest   string    `gorm:"column:first_guest"`
	SecondGuest  string    `gorm:"column:second_guest"`
	ThirdGuest   string    `gorm:"column:third_guest"`
	FourthGuest  string    `gorm:"column:fourth_guest"`
	UpdatedAt    time.Time `gorm:"column:updated_at;index"`
}

func (rateModel) TableName() string { return "pms_rates" }

func groupRates(rows []rateModel) []otaxml.RatePlanBlock {
	var blocks []otaxml.RatePlanBlock
	index := make(map[string]int)
	for _, row := range rows {
		key := row.RatePlanCode + "|" + row.RoomTypeCode
		i, ok := index[key]
		if !ok {
			i = len(blocks)
			index[key] = i
			blocks = append(blocks, otaxml.RatePlanBlock{
				RatePlanCode: row.RatePlanCode,
				RoomTypeCode: row.RoomTypeCode,
			})
		}
		blocks[i].Records = append(blocks[i].Records, otaxml.RateRecord{
			Start:       row.StartDate,
			End:         row.EndDate,
			FirstGuest:  row.FirstGuest,
			SecondGuest: row.SecondGuest,
			ThirdGuest:  row.ThirdGuest,
			FourthGuest: row.FourthGuest,
		})
	}
	return blocks
}

type restrictionModel struct {
	ID           string    `gorm:"column:id;primaryKey"`
	PropertyID   string    `gorm:"column:property_id;index"`
	HotelCode    string    `gorm:"column:hotel_code"`
	RoomTypeCode string    `gorm:"column:room_type_code"`
	RatePlanCode string    `gorm:"column:rate_plan_code"`
	StartDate    time.Time `gorm:"column:start_date"`
	EndDate      time.Time `gorm:"column:end_date"`
	Type         string    `gorm:"column:type"`
	LOS          int       `gorm:"column:los"`
	UpdatedAt    time.Time `gorm:"column:updated_at;index"`
}

func (restrictionModel) TableName() string { return "pms_restrictions" }

func (m restrictionModel) toRecord() otaxml.RestrictionRecord {
	return otaxml.RestrictionRecord{
		RoomTypeCode: m.RoomTypeCode,
		RatePlanCode: m.RatePlanCode,
		Start:        m.StartDate,
		End:          m.EndDate,
		Type:         otaxml.RestrictionType(m.Type),
		LOS:          m.LOS,
	}
}

type reservationDetails struct {
	Guests          []otaxml.Guest    `json:"guests"`
	RoomStays       []otaxml.RoomStay `json:"room_stays"`
	SpecialRequests []string          `json:"special_requests,omitempty"`
}

type reservationModel struct {
	ConfirmationID string    `gorm:"column:confirmation_id;primaryKey"`
	PropertyID     string    `gorm:"column:property_id;index"`
	HotelCode      string    `gorm:"column:hotel_code"`
	Status         string    `gorm:"column:status"`
	Details        []byte    `gorm:"column:details;type:jsonb"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (reservationModel) TableName() string { return "pms_reservations" }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
