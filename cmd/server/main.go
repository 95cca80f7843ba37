// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "bnc-service/docs"
	"bnc-service/internal/config"
	"bnc-service/internal/handler"
	internalPlugin "bnc-service/internal/plugin"
	"bnc-service/internal/repository"
	"bnc-service/internal/routes"
	"bnc-service/internal/service"
	"bnc-service/internal/utils"
)

// Application represents the main application
type Application struct {
	config *config.Config
	logger *zap.Logger
	server *http.Server

	eventBus        *handler.EventBus
	pluginRegistry  *internalPlugin.Registry
	pluginService   *service.PluginService
	exchangeService *service.ExchangeService
}

// @title BNC-575 Plugin Service API
// @version 1.0.0
// @description Hosts viewer and mover plugins for a BNC-575 pulse generator on behalf of a remote acquisition host

// @contact.name BNC Service Support

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8085
// @BasePath /api/v1
func main() {
	app, err := NewApplication()
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Start(ctx); err != nil {
		app.logger.Fatal("Application stopped with error", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "bnc-service")
	serviceLogger.LogServiceStart(cfg.App.Version, cfg)

	app := &Application{
		config: cfg,
		logger: logger,
	}

	app.initializePluginRegistry()
	app.initializeServices()
	app.initializeServer()

	return app, nil
}

// initializePluginRegistry sets up the plugin factories
func (app *Application) initializePluginRegistry() {
	app.pluginRegistry = internalPlugin.NewRegistry(app.logger)
	internalPlugin.RegisterDefaultPlugins(app.pluginRegistry, app.logger)

	app.logger.Info("Plugin registry initialized",
		zap.Int("registered_plugins", len(app.pluginRegistry.Kinds())),
	)
}

// initializeServices creates service instances
func (app *Application) initializeServices() {
	app.eventBus = handler.NewEventBus(app.logger)
	app.exchangeService = service.NewExchangeService(
		repository.NewExchangeRepository(app.config.Device.JournalSize, app.logger),
		app.config.Device.JournalRetention,
		app.logger,
	)
	app.pluginService = service.NewPluginService(
		app.pluginRegistry,
		app.config,
		nil,
		app.eventBus,
		app.exchangeService,
		app.logger,
	)

	app.logger.Info("Services initialized successfully",
		zap.String("device_addr", app.config.GetDeviceAddr()),
		zap.Int("journal_size", app.config.Device.JournalSize),
	)
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() {
	routerManager := routes.NewRouter(app.config, app.logger, app.pluginService, app.exchangeService, app.eventBus)

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      routerManager.SetupRouter(),
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized",
		zap.String("address", app.config.GetServerAddr()),
		zap.Bool("tls_enabled", app.config.Server.TLS.Enabled),
	)
}

// Start serves until ctx is cancelled or a component fails, then shuts down
func (app *Application) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.eventBus.Run(gctx)
		return nil
	})

	g.Go(func() error {
		app.logger.Info("Starting HTTP server", zap.String("address", app.server.Addr))

		var err error
		if app.config.Server.TLS.Enabled {
			err = app.server.ListenAndServeTLS(
				app.config.Server.TLS.CertFile,
				app.config.Server.TLS.KeyFile,
			)
		} else {
			err = app.server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		app.pruneJournal(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		app.shutdown()
		return nil
	})

	return g.Wait()
}

// pruneJournal drops expired console exchanges once a minute
func (app *Application) pruneJournal(ctx context.Context) {
	if app.config.Device.JournalRetention <= 0 {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := app.exchangeService.Prune(ctx); err != nil {
				app.logger.Warn("Journal prune failed", zap.Error(err))
			}
		}
	}
}

// shutdown performs graceful shutdown
func (app *Application) shutdown() {
	serviceLogger := utils.NewServiceLogger(app.logger, "bnc-service")
	serviceLogger.LogServiceStop("shutdown requested")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	// Closes every instrument connection
	app.pluginService.Shutdown()

	app.logger.Info("Application shutdown completed")

	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}
