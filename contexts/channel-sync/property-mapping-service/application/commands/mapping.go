package commands

import (
	"context"
	"log/slog"
	"strings"

	application "meridian/contexts/channel-sync/property-mapping-service/application"
	"meridian/contexts/channel-sync/property-mapping-service/domain/entities"
	domainerrors "meridian/contexts/channel-sync/property-mapping-service/domain/errors"
	"meridian/contexts/channel-sync/property-mapping-service/ports"
	"meridian/internal/shared/events"
)

// CreateMappingCommand registers a property with the channel.
type CreateMappingCommand struct {
	PropertyID string
	HotelCode  string
	Config     entities.MappingConfig
	Active     bool
}

// MappingUseCase owns the mapping lifecycle. Activation, deactivation, and
// hotel-code changes cascade into the sync-status store and invalidate the
// derived caches.
type MappingUseCase struct {
	Mappings ports.MappingRepository
	Statuses ports.StatusReactor
	Caches   []ports.CacheInvalidator
	Bus      ports.EventPublisher
	Clock    ports.Clock
	IDGen    ports.IDGenerator
	Logger   *slog.Logger
}

// Create validates and stores a new mapping, enforcing one active mapping
// per property and per hotel code.
func (uc MappingUseCase) Create(ctx context.Context, cmd CreateMappingCommand) (entities.PropertyMapping, error) {
	logger := application.ResolveLogger(uc.Logger)
	propertyID := strings.TrimSpace(cmd.PropertyID)
	hotelCode := strings.TrimSpace(cmd.HotelCode)
	if propertyID == "" {
		return entities.PropertyMapping{}, domainerrors.ErrInvalidMappingInput
	}
	if !entities.HotelCodePattern.MatchString(hotelCode) {
		return entities.PropertyMapping{}, domainerrors.ErrInvalidHotelCode
	}
	if cmd.Active {
		if err := uc.ensureNoActiveDuplicate(ctx, propertyID, hotelCode, ""); err != nil {
			return entities.PropertyMapping{}, err
		}
	}

	id, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return entities.PropertyMapping{}, err
	}
	now := uc.Clock.Now()
	mapping := entities.PropertyMapping{
		ID:         id,
		PropertyID: propertyID,
		HotelCode:  hotelCode,
		Active:     cmd.Active,
		Config:     cmd.Config,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := uc.Mappings.Save(ctx, mapping); err != nil {
		return entities.PropertyMapping{}, err
	}
	logger.Info("property mapping created",
		"event", "mapping_created",
		"module", "channel-sync/property-mapping-service",
		"layer", "application",
		"property_id", propertyID,
		"hotel_code", hotelCode,
		"active", cmd.Active,
	)
	uc.afterChange(ctx, mapping, "created")
	return mapping, nil
}

// Activate switches the mapping on and re-enables auto retry for the
// property's streams.
func (uc MappingUseCase) Activate(ctx context.Context, id string) (entities.PropertyMapping, error) {
	mapping, err := uc.Mappings.Get(ctx, id)
	if err != nil {
		return entities.PropertyMapping{}, err
	}
	if mapping.Active {
		return mapping, nil
	}
	if err := uc.ensureNoActiveDuplicate(ctx, mapping.PropertyID, mapping.HotelCode, mapping.ID); err != nil {
		return entities.PropertyMapping{}, err
	}
	mapping.Active = true
	mapping.UpdatedAt = uc.Clock.Now()
	if err := uc.Mappings.Save(ctx, mapping); err != nil {
		return entities.PropertyMapping{}, err
	}
	if err := uc.Statuses.EnableAutoRetry(ctx, mapping.HotelCode); err != nil {
		application.ResolveLogger(uc.Logger).Warn("auto retry enable cascade failed",
			"event", "mapping_activate_cascade_failed",
			"module", "channel-sync/property-mapping-service",
			"layer", "application",
			"hotel_code", mapping.HotelCode,
			"error", err,
		)
	}
	uc.afterChange(ctx, mapping, "activated")
	return mapping, nil
}

// Deactivate switches the mapping off and suppresses auto retry so failed
// streams stop rescheduling.
func (uc MappingUseCase) Deactivate(ctx context.Context, id string) (entities.PropertyMapping, error) {
	mapping, err := uc.Mappings.Get(ctx, id)
	if err != nil {
		return entities.PropertyMapping{}, err
	}
	if !mapping.Active {
		return mapping, nil
	}
	mapping.Active = false
	mapping.UpdatedAt = uc.Clock.Now()
	if err := uc.Mappings.Save(ctx, mapping); err != nil {
		return entities.PropertyMapping{}, err
	}
	if err := uc.Statuses.SuppressAutoRetry(ctx, mapping.HotelCode); err != nil {
		application.ResolveLogger(uc.Logger).Warn("auto retry suppress cascade failed",
			"event", "mapping_deactivate_cascade_failed",
			"module", "channel-sync/property-mapping-service",
			"layer", "application",
			"hotel_code", mapping.HotelCode,
			"error", err,
		)
	}
	uc.afterChange(ctx, mapping, "deactivated")
	return mapping, nil
}

// ChangeHotelCode swaps the external code and forces every stream of the
// property back to pending so the next sync resends under the new code.
func (uc MappingUseCase) ChangeHotelCode(ctx context.Context, id, newHotelCode string) (entities.PropertyMapping, error) {
	newHotelCode = strings.TrimSpace(newHotelCode)
	if !entities.HotelCodePattern.MatchString(newHotelCode) {
		return entities.PropertyMapping{}, domainerrors.ErrInvalidHotelCode
	}
	mapping, err := uc.Mappings.Get(ctx, id)
	if err != nil {
		return entities.PropertyMapping{}, err
	}
	if mapping.HotelCode == newHotelCode {
		return mapping, nil
	}
	if mapping.Active {
		if existing, found, err := uc.Mappings.ActiveByHotelCode(ctx, newHotelCode); err != nil {
			return entities.PropertyMapping{}, err
		} else if found && existing.ID != mapping.ID {
			return entities.PropertyMapping{}, domainerrors.ErrDuplicateMapping
		}
	}
	oldHotelCode := mapping.HotelCode
	mapping.HotelCode = newHotelCode
	mapping.UpdatedAt = uc.Clock.Now()
	if err := uc.Mappings.Save(ctx, mapping); err != nil {
		return entities.PropertyMapping{}, err
	}
	// Existing streams are still keyed by the old code; the reset lists them
	// by it and rekeys them under the new one.
	if err := uc.Statuses.ResetForHotelCodeChange(ctx, oldHotelCode, newHotelCode); err != nil {
		application.ResolveLogger(uc.Logger).Warn("hotel code reset cascade failed",
			"event", "mapping_hotel_code_cascade_failed",
			"module", "channel-sync/property-mapping-service",
			"layer", "application",
			"old_hotel_code", oldHotelCode,
			"hotel_code", newHotelCode,
			"error", err,
		)
	}
	uc.afterChange(ctx, mapping, "updated")
	return mapping, nil
}

func (uc MappingUseCase) ensureNoActiveDuplicate(ctx context.Context, propertyID, hotelCode, selfID string) error {
	if existing, found, err := uc.Mappings.ActiveByProperty(ctx, propertyID); err != nil {
		return err
	} else if found && existing.ID != selfID {
		return domainerrors.ErrDuplicateMapping
	}
	if existing, found, err := uc.Mappings.ActiveByHotelCode(ctx, hotelCode); err != nil {
		return err
	} else if found && existing.ID != selfID {
		return domainerrors.ErrDuplicateMapping
	}
	return nil
}

func (uc MappingUseCase) afterChange(ctx context.Context, mapping entities.PropertyMapping, change string) {
	for _, cache := range uc.Caches {
		cache.Invalidate()
	}
	if uc.Bus == nil {
		return
	}
	envelope := events.New(
		events.TypeMappingChanged,
		"property-mapping-service",
		"property_mapping",
		mapping.ID,
		map[string]any{
			"property_id": mapping.PropertyID,
			"hotel_code":  mapping.HotelCode,
			"active":      mapping.Active,
			"change":      change,
		},
	)
	if err := uc.Bus.Publish(ctx, envelope); err != nil {
		application.ResolveLogger(uc.Logger).Warn("mapping event publish failed",
			"event", "mapping_event_publish_failed",
			"module", "channel-sync/property-mapping-service",
			"layer", "application",
			"mapping_id", mapping.ID,
			"error", err,
		)
	}
}
