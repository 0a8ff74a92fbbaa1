package workers

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	application "meridian/contexts/channel-sync/outbound-sync-service/application"
	"meridian/contexts/channel-sync/outbound-sync-service/application/commands"
	"meridian/contexts/channel-sync/outbound-sync-service/domain/entities"
	domainerrors "meridian/contexts/channel-sync/outbound-sync-service/domain/errors"
	"meridian/contexts/channel-sync/outbound-sync-service/ports"
	mappingentities "meridian/contexts/channel-sync/property-mapping-service/domain/entities"
	statusentities "meridian/contexts/channel-sync/sync-status-service/domain/entities"
	"meridian/internal/shared/otaxml"
)

// MappingLister enumerates mappings for the scheduler sweep.
type MappingLister interface {
	List(ctx context.Context) ([]mappingentities.PropertyMapping, error)
}

// plannedKinds are the push streams the interval scheduler drives.
// Reservations and group blocks are event-driven and enqueued directly.
var plannedKinds = []otaxml.MessageKind{
	otaxml.KindInventory,
	otaxml.KindRates,
	otaxml.KindRestrictions,
}

// SyncScheduler plans delta syncs for every active property on its
// configured interval.
type SyncScheduler struct {
	Mappings MappingLister
	Plan     commands.PlanUseCase
	Config   ports.ConfigSource
	Clock    ports.Clock
	Logger   *slog.Logger

	mu          sync.Mutex
	lastPlanned map[string]time.Time
}

func (s *SyncScheduler) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(s.Logger)
	mappings, err := s.Mappings.List(ctx)
	if err != nil {
		logger.Error("scheduler sweep failed",
			"event", "outbound_scheduler_sweep_failed",
			"module", "channel-sync/outbound-sync-service",
			"layer", "worker",
			"error", err,
		)
		return err
	}

	now := s.Clock.Now()
	planned := 0
	for _, mapping := range mappings {
		if !mapping.Active {
			continue
		}
		config, err := s.Config.Get(ctx, mapping.PropertyID)
		if err != nil {
			logger.Warn("scheduler skipped property",
				"event", "outbound_scheduler_property_skipped",
				"module", "channel-sync/outbound-sync-service",
				"layer", "worker",
				"property_id", mapping.PropertyID,
				"error", err,
			)
			continue
		}
		interval := time.Duration(config.Sync.IntervalSeconds) * time.Second
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		if !s.due(mapping.PropertyID, now, interval) {
			continue
		}
		for _, kind := range plannedKinds {
			jobs, err := s.Plan.PlanProperty(ctx, mapping.PropertyID, kind, entities.ScopeDelta)
			if err != nil {
				if errors.Is(err, domainerrors.ErrKindDisabled) {
					continue
				}
				logger.Warn("scheduler plan failed",
					"event", "outbound_scheduler_plan_failed",
					"module", "channel-sync/outbound-sync-service",
					"layer", "worker",
					"property_id", mapping.PropertyID,
					"kind", string(kind),
					"error", err,
				)
				continue
			}
			planned += jobs
		}
		s.markPlanned(mapping.PropertyID, now)
	}

	logger.Debug("scheduler sweep completed",
		"event", "outbound_scheduler_sweep_completed",
		"module", "channel-sync/outbound-sync-service",
		"layer", "worker",
		"properties", len(mappings),
		"jobs", planned,
	)
	return nil
}

func (s *SyncScheduler) due(propertyID string, now time.Time, interval time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastPlanned[propertyID]
	return !ok || now.Sub(last) >= interval
}

func (s *SyncScheduler) markPlanned(propertyID string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastPlanned == nil {
		s.lastPlanned = make(map[string]time.Time)
	}
	s.lastPlanned[propertyID] = now
}

// RetrySweeper re-plans streams whose auto-retry timer has come due.
type RetrySweeper struct {
	Due      DueLister
	Plan     commands.PlanUseCase
	Clock    ports.Clock
	Logger   *slog.Logger
	Limit    int
	Resolver PropertyResolver
}

// DueLister is the slice of the sync-status store the sweeper reads.
type DueLister interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]statusentities.SyncStatus, error)
}

// PropertyResolver maps a hotel code back to its property id.
type PropertyResolver interface {
	PropertyIDByHotelCode(ctx context.Context, hotelCode string) (string, error)
}

func (s RetrySweeper) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(s.Logger)
	limit := s.Limit
	if limit <= 0 {
		limit = 50
	}
	due, err := s.Due.ListDue(ctx, s.Clock.Now(), limit)
	if err != nil {
		logger.Error("retry sweep failed",
			"event", "outbound_retry_sweep_failed",
			"module", "channel-sync/outbound-sync-service",
			"layer", "worker",
			"error", err,
		)
		return err
	}

	// One plan per (property, kind); a due sweep usually holds several
	// streams of the same kind.
	type planKey struct {
		hotelCode string
		kind      string
	}
	seen := map[planKey]bool{}
	for _, status := range due {
		if !status.AutoRetry {
			continue
		}
		key := planKey{hotelCode: status.HotelCode, kind: status.Kind}
		if seen[key] {
			continue
		}
		seen[key] = true

		propertyID, err := s.Resolver.PropertyIDByHotelCode(ctx, status.HotelCode)
		if err != nil {
			logger.Warn("retry sweep unresolved hotel code",
				"event", "outbound_retry_unresolved",
				"module", "channel-sync/outbound-sync-service",
				"layer", "worker",
				"hotel_code", status.HotelCode,
				"error", err,
			)
			continue
		}
		if _, err := s.Plan.PlanProperty(ctx, propertyID, otaxml.MessageKind(status.Kind), entities.ScopeDelta); err != nil {
			if errors.Is(err, domainerrors.ErrKindDisabled) {
				continue
			}
			logger.Warn("retry plan failed",
				"event", "outbound_retry_plan_failed",
				"module", "channel-sync/outbound-sync-service",
				"layer", "worker",
				"property_id", propertyID,
				"kind", status.Kind,
				"error", err,
			)
		}
	}
	return nil
}
