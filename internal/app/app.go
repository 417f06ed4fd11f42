// -----------------------------------------------------------------------
// Last Modified: Monday, 27th April 2026 5:09:38 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package app

import (
	"fmt"
	"os"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/orbital/internal/common"
	"github.com/ternarybob/orbital/internal/handlers"
	"github.com/ternarybob/orbital/internal/hubs"
	"github.com/ternarybob/orbital/internal/orders"
	"github.com/ternarybob/orbital/internal/pool"
	"github.com/ternarybob/orbital/internal/runner"
	configsvc "github.com/ternarybob/orbital/internal/services/config"
	"github.com/ternarybob/orbital/internal/storage/badger"
	"github.com/ternarybob/orbital/internal/workflows"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Storage (per-order log events)
	DB *badger.BadgerDB

	// Core services
	Registry      *workflows.Registry
	Downloader    *hubs.Downloader
	WorkerPool    *pool.WorkerPool
	Runner        *runner.Runner
	ConfigService *configsvc.Service
	Queue         *orders.Queue
	OrderService  *orders.Service

	// HTTP handlers
	OrderHandler    *handlers.OrderHandler
	WorkflowHandler *handlers.WorkflowHandler
	DownloadHandler *handlers.DownloadHandler
	APIHandler      *handlers.APIHandler
	WSLogHandler    *handlers.WSLogHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	for _, dir := range []string{cfg.Paths.WorkingDir, cfg.Paths.OutputDir, cfg.Paths.TracesDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	db, err := badger.NewBadgerDB(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.DB = db
	logStore := badger.NewOrderLogStorage(db, logger)

	// Workflow registry: built-in plugins, validated at startup
	app.Registry = workflows.NewRegistry(logger, workflows.Builtins()...)

	app.Downloader = hubs.NewDownloader(cfg.Service.HubsCredentialsFile, logger)
	app.Runner = runner.NewRunner(app.Registry, app.Downloader, logStore, cfg, logger)

	app.WorkerPool = pool.NewWorkerPool(cfg.Pool.Workers, logger)

	app.ConfigService = configsvc.NewService(cfg.Service.ESATFConfigFile, cfg.Service.RolesConfigFile, logger)

	// Fail fast on an unusable service configuration (a missing default
	// role must abort startup, not the first submission).
	if _, err := app.ConfigService.Read(); err != nil {
		return nil, err
	}

	uriRoot := cfg.Server.PublicURL
	if uriRoot == "" {
		uriRoot = fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	}

	app.Queue = orders.NewQueue()
	app.OrderService = orders.NewService(
		app.Queue,
		app.Registry,
		app.WorkerPool,
		app.Runner,
		app.ConfigService,
		logStore,
		cfg,
		uriRoot,
		logger,
	)

	app.OrderHandler = handlers.NewOrderHandler(app.OrderService, logger)
	app.WorkflowHandler = handlers.NewWorkflowHandler(app.Registry, logger)
	app.DownloadHandler = handlers.NewDownloadHandler(cfg.Paths.OutputDir, logger)
	app.APIHandler = handlers.NewAPIHandler(app.OrderService, app.WorkerPool, logger)
	app.WSLogHandler = handlers.NewWSLogHandler(app.OrderService, logger)

	return app, nil
}

// Start launches the background components.
func (a *App) Start() error {
	a.WorkerPool.Start()
	if err := a.OrderService.Start(); err != nil {
		return err
	}
	return nil
}

// Close stops the background components and releases storage.
func (a *App) Close() error {
	a.OrderService.Stop()
	a.WorkerPool.Stop()
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}
