package propertymappingservice

import (
	"log/slog"
	"time"

	"meridian/contexts/channel-sync/property-mapping-service/adapters/memory"
	application "meridian/contexts/channel-sync/property-mapping-service/application"
	"meridian/contexts/channel-sync/property-mapping-service/application/commands"
	"meridian/contexts/channel-sync/property-mapping-service/application/queries"
	"meridian/contexts/channel-sync/property-mapping-service/domain/entities"
	"meridian/contexts/channel-sync/property-mapping-service/ports"
)

type Module struct {
	Mappings  commands.MappingUseCase
	Config    *queries.ConfigCache
	Validator queries.ConfigValidator
	Store     *memory.Store
}

type Dependencies struct {
	Mappings  ports.MappingRepository
	Statuses  ports.StatusReactor
	Caches    []ports.CacheInvalidator
	Bus       ports.EventPublisher
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Overrides application.OverridesFile
	ConfigTTL time.Duration
	Logger    *slog.Logger
}

func NewModule(deps Dependencies) Module {
	configCache := queries.NewConfigCache(deps.Mappings, deps.Overrides, deps.Clock, deps.ConfigTTL)
	useCase := commands.MappingUseCase{
		Mappings: deps.Mappings,
		Statuses: deps.Statuses,
		Caches:   append([]ports.CacheInvalidator{configCache}, deps.Caches...),
		Bus:      deps.Bus,
		Clock:    deps.Clock,
		IDGen:    deps.IDGen,
		Logger:   deps.Logger,
	}
	return Module{
		Mappings:  useCase,
		Config:    configCache,
		Validator: queries.ConfigValidator{Mappings: deps.Mappings, Clock: deps.Clock},
	}
}

func NewInMemoryModule(seed []entities.PropertyMapping, statuses ports.StatusReactor, bus ports.EventPublisher, logger *slog.Logger) Module {
	store := NewMemoryStore(seed)
	module := NewModule(Dependencies{
		Mappings: store,
		Statuses: statuses,
		Bus:      bus,
		Clock:    store,
		IDGen:    store,
		Overrides: application.OverridesFile{
			Properties: map[string]entities.CodeOverrides{},
		},
		Logger: logger,
	})
	module.Store = store
	return module
}

// NewMemoryStore exposes the memory adapter for composition roots.
func NewMemoryStore(seed []entities.PropertyMapping) *memory.Store {
	return memory.NewStore(seed)
}
