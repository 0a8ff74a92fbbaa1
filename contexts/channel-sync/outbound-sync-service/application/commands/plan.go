package commands

import (
	"context"
	"log/slog"
	"time"

	application "meridian/contexts/channel-sync/outbound-sync-service/application"
	"meridian/contexts/channel-sync/outbound-sync-service/domain/entities"
	domainerrors "meridian/contexts/channel-sync/outbound-sync-service/domain/errors"
	"meridian/contexts/channel-sync/outbound-sync-service/ports"
	statusentities "meridian/contexts/channel-sync/sync-status-service/domain/entities"
	"meridian/internal/shared/otaxml"
)

// StatusReader is the read slice of the sync-status store the planner uses
// to find the delta watermark.
type StatusReader interface {
	ListByProperty(ctx context.Context, hotelCode string) ([]statusentities.SyncStatus, error)
}

// PlanUseCase turns changed PMS records into batched queue jobs. Delta plans
// read records changed since the stream's last success; full syncs read
// everything and bypass the watermark.
type PlanUseCase struct {
	Enqueue  EnqueueUseCase
	PMS      ports.PMSRepository
	Config   ports.ConfigSource
	Statuses StatusReader
	Clock    ports.Clock
	Logger   *slog.Logger
}

// PlanProperty builds and enqueues the jobs for one (property, kind).
// Returns the number of jobs enqueued.
func (uc PlanUseCase) PlanProperty(ctx context.Context, propertyID string, kind otaxml.MessageKind, scope entities.SyncScope) (int, error) {
	logger := application.ResolveLogger(uc.Logger)
	config, err := uc.Config.Get(ctx, propertyID)
	if err != nil {
		return 0, err
	}
	if !config.KindEnabled(string(kind)) {
		return 0, domainerrors.ErrKindDisabled
	}

	var since *time.Time
	if scope != entities.ScopeFullSync {
		since = uc.watermark(ctx, config.HotelCode, string(kind))
	}

	batchSize := config.Sync.BatchSize
	enqueued := 0
	switch kind {
	case otaxml.KindInventory:
		records, err := uc.PMS.ChangedInventory(ctx, propertyID, since)
		if err != nil {
			return 0, err
		}
		records = filterInventory(records, config)
		for _, chunk := range chunkInventory(records, batchSize) {
			msg := otaxml.InventoryMessage{HotelCode: config.HotelCode, Records: chunk}
			if _, err := uc.Enqueue.Enqueue(ctx, EnqueueCommand{
				Queue:      entities.QueueOutbound,
				PropertyID: propertyID,
				HotelCode:  config.HotelCode,
				Kind:       kind,
				Scope:      scope,
				Payload:    OutboundPayload{Inventory: &msg},
			}); err != nil {
				return enqueued, err
			}
			enqueued++
		}
	case otaxml.KindRates:
		plans, err := uc.PMS.ChangedRates(ctx, propertyID, since)
		if err != nil {
			return 0, err
		}
		plans = filterRates(plans, config)
		for _, chunk := range chunkRates(plans, batchSize) {
			msg := otaxml.RateMessage{
				HotelCode: config.HotelCode,
				Operation: otaxml.RateUpdate,
				Scope:     otaxml.SyncScope(scope),
				Plans:     chunk,
			}
			if _, err := uc.Enqueue.Enqueue(ctx, EnqueueCommand{
				Queue:      entities.QueueOutbound,
				PropertyID: propertyID,
				HotelCode:  config.HotelCode,
				Kind:       kind,
				Scope:      scope,
				Payload:    OutboundPayload{Rates: &msg},
			}); err != nil {
				return enqueued, err
			}
			enqueued++
		}
	case otaxml.KindRestrictions:
		records, err := uc.PMS.ChangedRestrictions(ctx, propertyID, since)
		if err != nil {
			return 0, err
		}
		records = filterRestrictions(records, config)
		for _, chunk := range chunkRestrictions(records, batchSize) {
			msg := otaxml.RestrictionMessage{HotelCode: config.HotelCode, Records: chunk}
			if _, err := uc.Enqueue.Enqueue(ctx, EnqueueCommand{
				Queue:      entities.QueueOutbound,
				PropertyID: propertyID,
				HotelCode:  config.HotelCode,
				Kind:       kind,
				Scope:      scope,
				Payload:    OutboundPayload{Restrictions: &msg},
			}); err != nil {
				return enqueued, err
			}
			enqueued++
		}
	default:
		return 0, domainerrors.ErrInvalidJobInput
	}

	logger.Info("sync plan enqueued",
		"event", "outbound_plan_enqueued",
		"module", "channel-sync/outbound-sync-service",
		"layer", "application",
		"property_id", propertyID,
		"kind", string(kind),
		"scope", string(scope),
		"jobs", enqueued,
	)
	return enqueued, nil
}

// watermark returns the earliest last-success time across the property's
// streams of a kind; nil when any stream has never succeeded.
func (uc PlanUseCase) watermark(ctx context.Context, hotelCode, kind string) *time.Time {
	statuses, err := uc.Statuses.ListByProperty(ctx, hotelCode)
	if err != nil {
		return nil
	}
	var earliest *time.Time
	seen := false
	for _, status := range statuses {
		if status.Kind != kind {
			continue
		}
		seen = true
		if status.LastSuccessAt == nil {
			return nil
		}
		if earliest == nil || status.LastSuccessAt.Before(*earliest) {
			earliest = status.LastSuccessAt
		}
	}
	if !seen {
		return nil
	}
	return earliest
}

func filterInventory(records []otaxml.InventoryRecord, config configView) []otaxml.InventoryRecord {
	out := records[:0]
	for _, rec := range records {
		if rec.RoomTypeCode != "" {
			if config.RoomTypeExcluded(rec.RoomTypeCode) {
				continue
			}
			rec.RoomTypeCode = config.MapRoomType(rec.RoomTypeCode)
		}
		out = append(out, rec)
	}
	return out
}

func filterRates(plans []otaxml.RatePlanBlock, config configView) []otaxml.RatePlanBlock {
	out := plans[:0]
	for _, plan := range plans {
		if config.RatePlanExcluded(plan.RatePlanCode) {
			continue
		}
		plan.RatePlanCode = config.MapRatePlan(plan.RatePlanCode)
		if plan.RoomTypeCode != "" {
			if config.RoomTypeExcluded(plan.RoomTypeCode) {
				continue
			}
			plan.RoomTypeCode = config.MapRoomType(plan.RoomTypeCode)
		}
		out = append(out, plan)
	}
	return out
}

func filterRestrictions(records []otaxml.RestrictionRecord, config configView) []otaxml.RestrictionRecord {
	out := records[:0]
	for _, rec := range records {
		if config.RoomTypeExcluded(rec.RoomTypeCode) {
			continue
		}
		rec.RoomTypeCode = config.MapRoomType(rec.RoomTypeCode)
		if rec.RatePlanCode != "" {
			if config.RatePlanExcluded(rec.RatePlanCode) {
				continue
			}
			rec.RatePlanCode = config.MapRatePlan(rec.RatePlanCode)
		}
		out = append(out, rec)
	}
	return out
}

// configView is the slice of PropertyConfig the filters need.
type configView interface {
	MapRoomType(code string) string
	MapRatePlan(code string) string
	RoomTypeExcluded(code string) bool
	RatePlanExcluded(code string) bool
}

func chunkInventory(records []otaxml.InventoryRecord, size int) [][]otaxml.InventoryRecord {
	if size <= 0 {
		size = 100
	}
	var out [][]otaxml.InventoryRecord
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		out = append(out, records[start:end])
	}
	return out
}

func chunkRates(plans []otaxml.RatePlanBlock, size int) [][]otaxml.RatePlanBlock {
	// Rate envelopes are additionally capped at the wire limit of 50 plans.
	if size <= 0 || size > 50 {
		size = 50
	}
	var out [][]otaxml.RatePlanBlock
	for start := 0; start < len(plans); start += size {
		end := start + size
		if end > len(plans) {
			end = len(plans)
		}
		out = append(out, plans[start:end])
	}
	return out
}

func chunkRestrictions(records []otaxml.RestrictionRecord, size int) [][]otaxml.RestrictionRecord {
	if size <= 0 {
		size = 100
	}
	var out [][]otaxml.RestrictionRecord
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		out = append(out, records[start:end])
	}
	return out
}
