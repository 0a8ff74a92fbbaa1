package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	inboundgateway "meridian/contexts/channel-sync/inbound-gateway-service"
	inboundconfig "meridian/contexts/channel-sync/inbound-gateway-service/adapters/config"
	inboundpostgres "meridian/contexts/channel-sync/inbound-gateway-service/adapters/postgres"
	outboundsync "meridian/contexts/channel-sync/outbound-sync-service"
	outboundhttp "meridian/contexts/channel-sync/outbound-sync-service/adapters/http"
	outboundpostgres "meridian/contexts/channel-sync/outbound-sync-service/adapters/postgres"
	outboundentities "meridian/contexts/channel-sync/outbound-sync-service/domain/entities"
	propertymapping "meridian/contexts/channel-sync/property-mapping-service"
	mappingpostgres "meridian/contexts/channel-sync/property-mapping-service/adapters/postgres"
	mappingapp "meridian/contexts/channel-sync/property-mapping-service/application"
	mappingerrors "meridian/contexts/channel-sync/property-mapping-service/domain/errors"
	mappingports "meridian/contexts/channel-sync/property-mapping-service/ports"
	syncstatus "meridian/contexts/channel-sync/sync-status-service"
	statuspostgres "meridian/contexts/channel-sync/sync-status-service/adapters/postgres"
	"meridian/internal/platform/config"
	"meridian/internal/platform/db"
	"meridian/internal/platform/httpserver"
	"meridian/internal/platform/messaging"
	"meridian/internal/shared/pms"
	"meridian/internal/shared/validation"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server   *httpserver.Server
	postgres *db.Postgres
	logger   *slog.Logger
}

type WorkerApp struct {
	postgres     *db.Postgres
	outbound     outboundsync.Module
	inbound      inboundgateway.Module
	pollInterval time.Duration
	logger       *slog.Logger
}

// Modules is the wired service graph shared by the api and worker processes
// and by adminctl.
type Modules struct {
	Mapping  propertymapping.Module
	Status   syncstatus.Module
	Outbound outboundsync.Module
	Inbound  inboundgateway.Module
	Logs     *outboundpostgres.Repository
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger().With("process", "api")

	pg, modules, err := buildModules(cfg, logger)
	if err != nil {
		return nil, err
	}

	server := httpserver.New(modules.Inbound, modules.Status, modules.Logs, logger, normalizeAddr(cfg.HTTPPort))
	return &APIApp{
		server:   server,
		postgres: pg,
		logger:   logger,
	}, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger().With("process", "worker")

	pg, modules, err := buildModules(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &WorkerApp{
		postgres:     pg,
		outbound:     modules.Outbound,
		inbound:      modules.Inbound,
		pollInterval: 2 * time.Second,
		logger:       logger,
	}, nil
}

// BuildModules wires the full service graph for adminctl.
func BuildModules() (*db.Postgres, *Modules, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := cfg.Logger().With("process", "adminctl")
	return buildModules(cfg, logger)
}

func buildModules(cfg config.Config, logger *slog.Logger) (*db.Postgres, *Modules, error) {
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, nil, errors.New("POSTGRES_DSN is required")
	}
	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}

	var models []any
	models = append(models, mappingpostgres.Models()...)
	models = append(models, statuspostgres.Models()...)
	models = append(models, outboundpostgres.Models()...)
	models = append(models, inboundpostgres.Models()...)
	models = append(models, pms.Models()...)
	if err := pg.Migrate(models...); err != nil {
		_ = pg.Close()
		return nil, nil, err
	}

	bus := messaging.NewBus(logger)
	clock := outboundpostgres.SystemClock{}
	idgen := outboundpostgres.UUIDGenerator{}
	owner := processOwner(cfg.ServiceName)

	statusRepo := statuspostgres.NewRepository(pg.DB, logger)
	statusModule := syncstatus.NewModule(syncstatus.Dependencies{
		Statuses: statusRepo,
		Changes:  statusRepo,
		Bus:      bus,
		Clock:    clock,
		IDGen:    idgen,
		Logger:   logger,
	})

	pmsRepo := pms.NewRepository(pg.DB, logger)
	schema := validation.NewStructuralValidator(cfg.SchemaCacheTTL)
	lookups := validation.NewCachedLookups(pmsRepo, 0)
	pipeline := validation.NewPipeline(schema, lookups, 0, logger)

	overrides, err := mappingapp.LoadOverrides(cfg.PropertyOverridesPath)
	if err != nil {
		_ = pg.Close()
		return nil, nil, err
	}
	mappingRepo := mappingpostgres.NewRepository(pg.DB, logger)
	mappingModule := propertymapping.NewModule(propertymapping.Dependencies{
		Mappings:  mappingRepo,
		Statuses:  statusModule.Statuses,
		Caches:    []mappingports.CacheInvalidator{schema, lookups},
		Bus:       bus,
		Clock:     clock,
		IDGen:     idgen,
		Overrides: overrides,
		ConfigTTL: 5 * time.Minute,
		Logger:    logger,
	})

	concurrency := make(map[outboundentities.Queue]int, len(cfg.QueueConcurrency))
	for queue, workers := range cfg.QueueConcurrency {
		concurrency[outboundentities.Queue(queue)] = workers
	}

	outboundRepo := outboundpostgres.NewRepository(pg.DB, logger)
	outboundModule := outboundsync.NewModule(outboundsync.Dependencies{
		Jobs:            outboundRepo,
		Leases:          outboundRepo,
		Logs:            outboundRepo,
		Errors:          outboundRepo,
		Statuses:        statusModule.Statuses,
		Reads:           statusModule.Query,
		Due:             statusModule.Query,
		Mappings:        mappingRepo,
		Resolver:        mappingResolver{mappings: mappingRepo},
		Config:          mappingModule.Config,
		PMS:             pmsRepo,
		Validate:        pipeline,
		Send:            outboundhttp.NewChannelTransport(&http.Client{}),
		Clock:           clock,
		IDGen:           idgen,
		Logger:          logger,
		Owner:           owner,
		DefaultEndpoint: cfg.EndpointURL,
		Concurrency:     concurrency,
	})

	inboundModule := inboundgateway.NewModule(inboundgateway.Dependencies{
		Creds: inboundconfig.CredentialResolver{
			Mappings: mappingRepo,
			Config:   mappingModule.Config,
		},
		Dedup:    inboundpostgres.NewRepository(pg.DB, logger),
		Jobs:     outboundRepo,
		Logs:     outboundRepo,
		Errors:   outboundRepo,
		Statuses: statusModule.Statuses,
		PMS:      pmsRepo,
		Clock:    clock,
		IDGen:    idgen,
		Logger:   logger,
		Owner:    owner,
	})

	return pg, &Modules{
		Mapping:  mappingModule,
		Status:   statusModule,
		Outbound: outboundModule,
		Inbound:  inboundModule,
		Logs:     outboundRepo,
	}, nil
}

// mappingResolver maps hotel codes back to property ids through the active
// mapping.
type mappingResolver struct {
	mappings mappingports.MappingRepository
}

func (r mappingResolver) PropertyIDByHotelCode(ctx context.Context, hotelCode string) (string, error) {
	mapping, ok, err := r.mappings.ActiveByHotelCode(ctx, hotelCode)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", mappingerrors.ErrMappingNotFound
	}
	return mapping.PropertyID, nil
}

func (a *APIApp) Run(ctx context.Context) error {
	a.logger.Info("api app started",
		"event", "bootstrap_api_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
	)
	return a.server.Serve(ctx)
}

func (a *APIApp) Close() error {
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

func (w *WorkerApp) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
	)

	for {
		if err := w.outbound.Scheduler.RunOnce(ctx); err != nil {
			return err
		}
		if err := w.outbound.Sweeper.RunOnce(ctx); err != nil {
			return err
		}
		for _, worker := range w.outbound.Workers {
			if err := worker.RunOnce(ctx); err != nil {
				return err
			}
		}
		if err := w.inbound.Consumer.RunOnce(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *WorkerApp) Close() error {
	if w.postgres != nil {
		return w.postgres.Close()
	}
	return nil
}

func processOwner(service string) string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "local"
	}
	return service + "@" + hostname
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
