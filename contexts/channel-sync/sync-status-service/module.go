package syncstatusservice

import (
	"log/slog"
	"time"

	httpadapter "meridian/contexts/channel-sync/sync-status-service/adapters/http"
	"meridian/contexts/channel-sync/sync-status-service/adapters/memory"
	"meridian/contexts/channel-sync/sync-status-service/application/commands"
	"meridian/contexts/channel-sync/sync-status-service/application/queries"
	"meridian/contexts/channel-sync/sync-status-service/domain/entities"
	"meridian/contexts/channel-sync/sync-status-service/ports"
)

type Module struct {
	Statuses commands.StatusUseCase
	Query    queries.StatusQuery
	Handler  httpadapter.Handler
	Store    *memory.Store
}

type Dependencies struct {
	Statuses ports.StatusRepository
	Changes  ports.ChangeLog
	Bus      ports.EventPublisher
	Clock    ports.Clock
	IDGen    ports.IDGenerator
	Logger   *slog.Logger

	RetryCap int
	Backoff  func(retryCount int) time.Duration
}

func NewModule(deps Dependencies) Module {
	useCase := commands.StatusUseCase{
		Statuses: deps.Statuses,
		Changes:  deps.Changes,
		Bus:      deps.Bus,
		Clock:    deps.Clock,
		IDGen:    deps.IDGen,
		Logger:   deps.Logger,
		RetryCap: deps.RetryCap,
		Backoff:  deps.Backoff,
	}
	query := queries.StatusQuery{Statuses: deps.Statuses}
	return Module{
		Statuses: useCase,
		Query:    query,
		Handler: httpadapter.Handler{
			Query:  query,
			Logger: deps.Logger,
		},
	}
}

func NewInMemoryModule(seed []entities.SyncStatus, bus ports.EventPublisher, logger *slog.Logger) Module {
	store := memory.NewStore(seed)
	module := NewModule(Dependencies{
		Statuses: store,
		Changes:  store,
		Bus:      bus,
		Clock:    store,
		IDGen:    store,
		Logger:   logger,
	})
	module.Store = store
	return module
}
