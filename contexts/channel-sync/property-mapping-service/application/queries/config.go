package queries

import (
	"context"
	"sync"
	"time"

	application "meridian/contexts/channel-sync/property-mapping-service/application"
	"meridian/contexts/channel-sync/property-mapping-service/domain/entities"
	domainerrors "meridian/contexts/channel-sync/property-mapping-service/domain/errors"
	"meridian/contexts/channel-sync/property-mapping-service/ports"
)

// DefaultConfigTTL is how long a derived property config stays cached.
const DefaultConfigTTL = 900 * time.Second

// Default sync settings applied when the mapping leaves them zero.
const (
	DefaultBatchSize       = 100
	DefaultRetryAttempts   = 3
	DefaultIntervalSeconds = 300
)

// CacheStats is the operator view of the config cache.
type CacheStats struct {
	Entries  int        `json:"entries"`
	Hits     int64      `json:"hits"`
	Misses   int64      `json:"misses"`
	WarmedAt *time.Time `json:"warmed_at,omitempty"`
}

type cacheEntry struct {
	config  entities.PropertyConfig
	expires time.Time
}

// ConfigCache derives PropertyConfig from the active mapping plus the
// overrides file and memoizes the result. Single writer, many readers;
// invalidated on mapping events.
type ConfigCache struct {
	Mappings  ports.MappingRepository
	Overrides application.OverridesFile
	Clock     ports.Clock
	TTL       time.Duration

	mu       sync.RWMutex
	entries  map[string]cacheEntry
	hits     int64
	misses   int64
	warmedAt *time.Time
}

func NewConfigCache(mappings ports.MappingRepository, overrides application.OverridesFile, clock ports.Clock, ttl time.Duration) *ConfigCache {
	if ttl <= 0 {
		ttl = DefaultConfigTTL
	}
	return &ConfigCache{
		Mappings:  mappings,
		Overrides: overrides,
		Clock:     clock,
		TTL:       ttl,
		entries:   make(map[string]cacheEntry),
	}
}

// Get returns the derived config for a property, deriving on miss.
func (c *ConfigCache) Get(ctx context.Context, propertyID string) (entities.PropertyConfig, error) {
	now := c.Clock.Now()
	c.mu.RLock()
	entry, ok := c.entries[propertyID]
	c.mu.RUnlock()
	if ok && now.Before(entry.expires) {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return entry.config, nil
	}

	config, err := c.derive(ctx, propertyID)
	if err != nil {
		return entities.PropertyConfig{}, err
	}
	c.mu.Lock()
	c.misses++
	c.entries[propertyID] = cacheEntry{config: config, expires: now.Add(c.TTL)}
	c.mu.Unlock()
	return config, nil
}

// GetByHotelCode resolves the property behind an external code, then derives.
func (c *ConfigCache) GetByHotelCode(ctx context.Context, hotelCode string) (entities.PropertyConfig, error) {
	mapping, found, err := c.Mappings.ActiveByHotelCode(ctx, hotelCode)
	if err != nil {
		return entities.PropertyConfig{}, err
	}
	if !found {
		return entities.PropertyConfig{}, domainerrors.ErrMappingNotFound
	}
	return c.Get(ctx, mapping.PropertyID)
}

// Warm derives and caches every active mapping.
func (c *ConfigCache) Warm(ctx context.Context) (int, error) {
	mappings, err := c.Mappings.List(ctx)
	if err != nil {
		return 0, err
	}
	warmed := 0
	now := c.Clock.Now()
	for _, mapping := range mappings {
		if !mapping.Active {
			continue
		}
		config, err := c.derive(ctx, mapping.PropertyID)
		if err != nil {
			return warmed, err
		}
		c.mu.Lock()
		c.entries[mapping.PropertyID] = cacheEntry{config: config, expires: now.Add(c.TTL)}
		c.mu.Unlock()
		warmed++
	}
	c.mu.Lock()
	c.warmedAt = &now
	c.mu.Unlock()
	return warmed, nil
}

// Clear empties the cache.
func (c *ConfigCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.warmedAt = nil
	c.mu.Unlock()
}

// Invalidate implements ports.CacheInvalidator.
func (c *ConfigCache) Invalidate() {
	c.Clear()
}

func (c *ConfigCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{
		Entries:  len(c.entries),
		Hits:     c.hits,
		Misses:   c.misses,
		WarmedAt: c.warmedAt,
	}
}

func (c *ConfigCache) derive(ctx context.Context, propertyID string) (entities.PropertyConfig, error) {
	mapping, found, err := c.Mappings.ActiveByProperty(ctx, propertyID)
	if err != nil {
		return entities.PropertyConfig{}, err
	}
	if !found {
		return entities.PropertyConfig{}, domainerrors.ErrMappingNotFound
	}

	settings := mapping.Config.Sync
	if settings.BatchSize <= 0 {
		settings.BatchSize = DefaultBatchSize
	}
	if settings.RetryAttempts <= 0 {
		settings.RetryAttempts = DefaultRetryAttempts
	}
	if settings.IntervalSeconds <= 0 {
		settings.IntervalSeconds = DefaultIntervalSeconds
	}
	wsseHotelCode := mapping.Config.WSSEHotelCode
	if wsseHotelCode == "" {
		wsseHotelCode = mapping.HotelCode
	}
	return entities.PropertyConfig{
		PropertyID:    mapping.PropertyID,
		HotelCode:     mapping.HotelCode,
		Username:      mapping.Config.Username,
		Password:      mapping.Config.Password,
		WSSEHotelCode: wsseHotelCode,
		EndpointURL:   mapping.Config.EndpointURL,
		Features:      mapping.Config.Features,
		Sync:          settings,
		Overrides:     c.Overrides.For(mapping.PropertyID),
		DerivedAt:     c.Clock.Now(),
	}, nil
}
