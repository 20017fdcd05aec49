package application

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/harpou/ai-gateway/internal/domain/service"
	"github.com/harpou/ai-gateway/internal/infrastructure/auth"
	"github.com/harpou/ai-gateway/internal/infrastructure/config"
	"github.com/harpou/ai-gateway/internal/infrastructure/llm"
	"github.com/harpou/ai-gateway/internal/infrastructure/logger"
	"github.com/harpou/ai-gateway/internal/infrastructure/taskqueue"
	"github.com/harpou/ai-gateway/internal/infrastructure/tool"
	"github.com/harpou/ai-gateway/internal/infrastructure/webtool"
	httpiface "github.com/harpou/ai-gateway/internal/interfaces/http"
	"github.com/harpou/ai-gateway/internal/interfaces/http/handlers"
)

// sweepInterval is how often the retention sweep deletes terminal tasks.
const sweepInterval = time.Minute

// App is the composed gateway in one of its two roles. The server role
// runs the HTTP surface and the schedulers; the worker role runs the
// orchestration task pool. Both share the durable task store.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	store     *taskqueue.Store
	connector *llm.Connector
	catalog   *llm.Catalog
	refresher *llm.CatalogRefresher

	// server role
	server      *httpiface.Server
	scheduler   *taskqueue.Scheduler
	authWatcher *auth.Watcher
	audit       *logger.AuditLogger

	// worker role
	worker *taskqueue.Worker
}

// newCore builds the parts both roles need.
func newCore(cfg *config.Config, log *zap.Logger) (*App, error) {
	registry, err := llm.NewRegistry(cfg.LLMBackends, cfg.PrimaryBackendName,
		time.Duration(cfg.LLMBackendTimeoutSeconds)*time.Second)
	if err != nil {
		return nil, fmt.Errorf("build backend registry: %w", err)
	}

	store, err := taskqueue.OpenStore(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open task store: %w", err)
	}

	connector := llm.NewConnector(registry, cfg.HighAvailabilityStrategy, log)
	catalog := llm.NewCatalog()

	return &App{
		cfg:       cfg,
		logger:    log,
		store:     store,
		connector: connector,
		catalog:   catalog,
		refresher: llm.NewCatalogRefresher(connector, catalog, log),
	}, nil
}

// NewServerApp assembles the HTTP + scheduler role.
func NewServerApp(cfg *config.Config, log *zap.Logger) (*App, error) {
	app, err := newCore(cfg, log)
	if err != nil {
		return nil, err
	}

	audit, err := logger.NewAuditLogger(cfg.AuditLogPath)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	app.audit = audit

	principals := auth.NewStore(cfg.Users, cfg.RatelimitDefault, log)
	watcher, err := auth.NewWatcher(config.ConfigFilePath(), principals, log)
	if err != nil {
		return nil, fmt.Errorf("create principal watcher: %w", err)
	}
	app.authWatcher = watcher

	app.server = httpiface.NewServer(httpiface.Deps{
		Config:     cfg,
		Connector:  app.connector,
		Catalog:    app.catalog,
		Refresher:  app.refresher,
		Queue:      app.store,
		Principals: principals,
		Audit:      audit,
		Logger:     log,
	})

	app.scheduler = taskqueue.NewScheduler(log)
	return app, nil
}

// NewWorkerApp assembles the task-executor role.
func NewWorkerApp(cfg *config.Config, log *zap.Logger) (*App, error) {
	app, err := newCore(cfg, log)
	if err != nil {
		return nil, err
	}

	toolRegistry, err := tool.LoadRegistry(cfg.ToolsFile)
	if err != nil {
		return nil, fmt.Errorf("load tool registry: %w", err)
	}
	log.Info("Tool registry loaded", zap.Int("tools", toolRegistry.Len()))

	searx := webtool.NewSearxClient(cfg.SearxngBaseURL, log)
	reader := webtool.NewPageReader(log)
	executor := tool.NewExecutor(toolRegistry, searx, reader, cfg.SearxngBaseURL, log)

	orchestrator := service.NewOrchestrator(
		&connectorBackend{connector: app.connector},
		&executorRunner{executor: executor},
		service.OrchestratorConfig{
			RoutingModelID:  routingModelID(cfg, app.connector),
			RoutingPreamble: loadRoutingPreamble(cfg.RoutingPromptFile, log),
			AdminEmail:      cfg.SystemAdminEmail,
			Timezone:        cfg.Timezone,
		},
		log,
	)

	worker := taskqueue.NewWorker(app.store, cfg.Worker.Concurrency, cfg.Worker.PollInterval, log)
	worker.Register(handlers.TaskTypeOrchestrate, func(ctx context.Context, payload json.RawMessage) (string, error) {
		var req service.OrchestrationRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return "", fmt.Errorf("decode orchestration payload: %w", err)
		}
		return orchestrator.Run(ctx, req)
	})
	app.worker = worker
	return app, nil
}

// Start launches the role's components.
func (a *App) Start(ctx context.Context) error {
	if a.server != nil {
		if err := a.server.Start(ctx); err != nil {
			return err
		}

		// Populate the catalog before the first tick.
		a.refresher.Refresh(ctx)

		interval := time.Duration(a.cfg.CacheUpdateIntervalMinutes) * time.Minute
		if err := a.scheduler.Every("catalog-refresh", interval, func() {
			a.refresher.Refresh(context.Background())
		}); err != nil {
			return err
		}

		retention := time.Duration(a.cfg.TaskRetentionMinutes) * time.Minute
		if err := a.scheduler.Every("task-retention-sweep", sweepInterval, func() {
			deleted, err := a.store.SweepExpired(context.Background(), retention)
			if err != nil {
				a.logger.Warn("Task retention sweep failed", zap.Error(err))
				return
			}
			if deleted > 0 {
				a.logger.Debug("Swept expired tasks", zap.Int64("deleted", deleted))
			}
		}); err != nil {
			return err
		}

		lease := time.Duration(a.cfg.TaskLeaseMinutes) * time.Minute
		if err := a.scheduler.Every("task-lease-reclaim", sweepInterval, func() {
			requeued, err := a.store.ReclaimStale(context.Background(), lease)
			if err != nil {
				a.logger.Warn("Stale task reclaim failed", zap.Error(err))
				return
			}
			if requeued > 0 {
				a.logger.Info("Requeued stale task claims", zap.Int64("requeued", requeued))
			}
		}); err != nil {
			return err
		}
		a.scheduler.Start()

		a.authWatcher.Start(ctx)
	}

	if a.worker != nil {
		a.worker.Start(ctx)
	}
	return nil
}

// Stop shuts the role down gracefully.
func (a *App) Stop(ctx context.Context) error {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.worker != nil {
		a.worker.Stop()
	}
	var err error
	if a.server != nil {
		err = a.server.Stop(ctx)
	}
	if a.audit != nil {
		_ = a.audit.Close()
	}
	return err
}

// routingModelID resolves "<routing_backend>/<its default model>"; empty
// when no routing backend is configured.
func routingModelID(cfg *config.Config, connector *llm.Connector) string {
	if cfg.RoutingBackendName == "" {
		return ""
	}
	backend, ok := connector.Registry().Get(cfg.RoutingBackendName)
	if !ok || backend.DefaultModel == "" {
		return ""
	}
	return backend.Name + "/" + backend.DefaultModel
}

// loadRoutingPreamble reads the optional routing prompt override.
func loadRoutingPreamble(path string, log *zap.Logger) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn("Routing prompt file unreadable, using the built-in prompt",
			zap.String("path", path),
			zap.Error(err),
		)
		return ""
	}
	return string(data)
}
