package outboundsyncservice

import (
	"log/slog"
	"net/http"

	httpadapter "meridian/contexts/channel-sync/outbound-sync-service/adapters/http"
	"meridian/contexts/channel-sync/outbound-sync-service/adapters/memory"
	application "meridian/contexts/channel-sync/outbound-sync-service/application"
	"meridian/contexts/channel-sync/outbound-sync-service/application/commands"
	"meridian/contexts/channel-sync/outbound-sync-service/application/workers"
	"meridian/contexts/channel-sync/outbound-sync-service/domain/entities"
	"meridian/contexts/channel-sync/outbound-sync-service/ports"
)

type Module struct {
	Enqueue   commands.EnqueueUseCase
	Plan      commands.PlanUseCase
	Breaker   *application.AuthBreaker
	Scheduler *workers.SyncScheduler
	Sweeper   workers.RetrySweeper
	Workers   []workers.QueueWorker
	Store     *memory.Store
}

type Dependencies struct {
	Jobs     ports.JobRepository
	Leases   ports.LeaseStore
	Logs     ports.MessageLogRepository
	Errors   ports.ErrorLogRepository
	Statuses workers.StatusMutator
	Reads    commands.StatusReader
	Due      workers.DueLister
	Mappings workers.MappingLister
	Resolver workers.PropertyResolver
	Config   ports.ConfigSource
	PMS      ports.PMSRepository
	Validate ports.Validator
	Send     ports.Transport
	Clock    ports.Clock
	IDGen    ports.IDGenerator
	Logger   *slog.Logger

	// Owner identifies this process in job and stream leases.
	Owner           string
	DefaultEndpoint string
	Breaker         *application.AuthBreaker

	// Concurrency overrides the built-in per-queue worker counts.
	Concurrency map[entities.Queue]int
}

func NewModule(deps Dependencies) Module {
	breaker := deps.Breaker
	if breaker == nil {
		breaker = application.NewAuthBreaker(0, 0)
	}
	enqueue := commands.EnqueueUseCase{
		Jobs:   deps.Jobs,
		Clock:  deps.Clock,
		IDGen:  deps.IDGen,
		Logger: deps.Logger,
	}
	plan := commands.PlanUseCase{
		Enqueue:  enqueue,
		PMS:      deps.PMS,
		Config:   deps.Config,
		Statuses: deps.Reads,
		Clock:    deps.Clock,
		Logger:   deps.Logger,
	}

	queueWorkers := make([]workers.QueueWorker, 0, len(entities.Queues()))
	for _, queue := range entities.Queues() {
		if queue == entities.QueueInboundWork {
			// Inbound work belongs to the gateway's consumer.
			continue
		}
		queueWorkers = append(queueWorkers, workers.QueueWorker{
			Queue:           queue,
			Owner:           deps.Owner,
			Jobs:            deps.Jobs,
			Leases:          deps.Leases,
			Logs:            deps.Logs,
			Errors:          deps.Errors,
			Statuses:        deps.Statuses,
			Config:          deps.Config,
			Validate:        deps.Validate,
			Send:            deps.Send,
			Breaker:         breaker,
			Clock:           deps.Clock,
			IDGen:           deps.IDGen,
			Logger:          deps.Logger,
			DefaultEndpoint: deps.DefaultEndpoint,
			Concurrency:     deps.Concurrency[queue],
		})
	}

	return Module{
		Enqueue: enqueue,
		Plan:    plan,
		Breaker: breaker,
		Scheduler: &workers.SyncScheduler{
			Mappings: deps.Mappings,
			Plan:     plan,
			Config:   deps.Config,
			Clock:    deps.Clock,
			Logger:   deps.Logger,
		},
		Sweeper: workers.RetrySweeper{
			Due:      deps.Due,
			Plan:     plan,
			Clock:    deps.Clock,
			Logger:   deps.Logger,
			Resolver: deps.Resolver,
		},
		Workers: queueWorkers,
	}
}

// NewInMemoryModule wires the module over the in-memory store and a plain
// HTTP transport. Tests swap the transport for a fake.
func NewInMemoryModule(deps Dependencies) Module {
	store := memory.NewStore()
	deps.Jobs = store
	deps.Leases = store
	deps.Logs = store
	deps.Errors = store
	deps.Clock = store
	deps.IDGen = store
	if deps.Send == nil {
		deps.Send = httpadapter.NewChannelTransport(&http.Client{})
	}
	module := NewModule(deps)
	module.Store = store
	return module
}
