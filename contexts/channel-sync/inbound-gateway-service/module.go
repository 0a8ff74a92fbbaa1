package inboundgatewayservice

import (
	"log/slog"

	httpadapter "meridian/contexts/channel-sync/inbound-gateway-service/adapters/http"
	"meridian/contexts/channel-sync/inbound-gateway-service/adapters/memory"
	"meridian/contexts/channel-sync/inbound-gateway-service/application/commands"
	"meridian/contexts/channel-sync/inbound-gateway-service/application/workers"
	"meridian/contexts/channel-sync/inbound-gateway-service/ports"
)

type Module struct {
	Gateway  commands.GatewayUseCase
	Consumer workers.InboundWorker
	Handler  httpadapter.EndpointHandler
	Store    *memory.Store
}

type Dependencies struct {
	Creds    ports.CredentialSource
	Dedup    ports.DedupStore
	Jobs     ports.JobRepository
	Logs     ports.MessageLogRepository
	Errors   ports.ErrorLogRepository
	Statuses ports.StatusService
	PMS      ports.PMSApplier
	Clock    ports.Clock
	IDGen    ports.IDGenerator
	Logger   *slog.Logger

	// Owner identifies this process in inbound-work job leases.
	Owner string
}

func NewModule(deps Dependencies) Module {
	gateway := commands.GatewayUseCase{
		Creds:  deps.Creds,
		Dedup:  deps.Dedup,
		Jobs:   deps.Jobs,
		Logs:   deps.Logs,
		Errors: deps.Errors,
		Clock:  deps.Clock,
		IDGen:  deps.IDGen,
		Logger: deps.Logger,
	}
	return Module{
		Gateway: gateway,
		Consumer: workers.InboundWorker{
			Owner:    deps.Owner,
			Jobs:     deps.Jobs,
			Logs:     deps.Logs,
			Statuses: deps.Statuses,
			PMS:      deps.PMS,
			Clock:    deps.Clock,
			IDGen:    deps.IDGen,
			Logger:   deps.Logger,
		},
		Handler: httpadapter.EndpointHandler{
			Gateway: gateway,
			Logger:  deps.Logger,
		},
	}
}

// NewInMemoryModule wires the gateway over the in-memory dedup store. The
// queue and log backends still come from the caller so the inbound and
// outbound services share them.
func NewInMemoryModule(deps Dependencies) Module {
	store := memory.NewStore()
	deps.Dedup = store
	if deps.Clock == nil {
		deps.Clock = store
	}
	if deps.IDGen == nil {
		deps.IDGen = store
	}
	module := NewModule(deps)
	module.Store = store
	return module
}
