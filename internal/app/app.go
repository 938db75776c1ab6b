// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/groupsio/claudegw/internal/api"
	"github.com/groupsio/claudegw/internal/config"
	"github.com/groupsio/claudegw/internal/events"
	"github.com/groupsio/claudegw/internal/gateway"
)

// App is the main application container.
type App struct {
	mu sync.RWMutex

	configPath string // Path to config file
	version    string // Application version string
	config     *config.Config

	eventBus events.EventBus
	registry *gateway.Registry
	queue    *gateway.Queue
	aliases  *gateway.AliasMap
	engine   *gateway.Engine
	apiServer *api.Server

	done     chan struct{}
	stopOnce sync.Once
}

// Options holds configuration options for the app.
type Options struct {
	ConfigPath string
	Host       string
	Port       int
	Debug      bool
	Version    string // Application version string
}

// New creates a new App instance.
func New(opts Options) (*App, error) {
	app := &App{
		configPath: opts.ConfigPath,
		version:    opts.Version,
		done:       make(chan struct{}),
	}

	loader := config.NewLoader()
	cfg, err := loader.LoadWithDefaults(context.Background(), opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	validator := config.NewValidator()
	if err := validator.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if opts.Host != "" {
		cfg.Server.Host = opts.Host
	}
	if opts.Port > 0 {
		cfg.Server.Port = opts.Port
	}
	app.config = cfg

	app.eventBus = events.NewMemoryEventBus(events.MemoryBusConfig{
		HistoryMaxEvents: cfg.Events.History.MaxEvents,
		HistoryMaxAge:    config.ParseDuration(cfg.Events.History.MaxAge, time.Hour),
	})

	return app, nil
}

// Initialize sets up all components: session registry, identity alias
// map, queue, and the request engine that drives the CLI child process.
func (app *App) Initialize(ctx context.Context) error {
	cfg := app.config

	sessionTTL := config.ParseDuration(cfg.Session.TTL, 0)
	app.registry = gateway.NewRegistry(cfg.Session.StorePath, sessionTTL)
	app.aliases = gateway.NewAliasMap(cfg.Identity.AliasMapPath)
	app.queue = gateway.NewQueue()

	idle := gateway.DefaultIdleTimeouts()
	if cfg.Idle.Baseline != "" {
		idle.Baseline = config.ParseDuration(cfg.Idle.Baseline, idle.Baseline)
	}
	if cfg.Idle.ToolExecuting != "" {
		idle.ToolExecuting = config.ParseDuration(cfg.Idle.ToolExecuting, idle.ToolExecuting)
	}
	if cfg.Idle.Compacting != "" {
		idle.Compacting = config.ParseDuration(cfg.Idle.Compacting, idle.Compacting)
	}

	engineCfg := gateway.EngineConfig{
		Binary:       cfg.CLI.BinaryPath,
		WorkspaceDir: cfg.CLI.WorkspaceDir,
		TempDir:      os.TempDir(),
		Idle:         idle,
	}
	app.engine = gateway.NewEngine(engineCfg, app.registry, app.queue, app.aliases, app.eventBus)

	app.apiServer = api.NewServer(
		api.ServerConfig{
			Host:         cfg.Server.Host,
			Port:         cfg.Server.Port,
			TLSCert:      cfg.Server.TLSCert,
			TLSKey:       cfg.Server.TLSKey,
			TLSTailscale: cfg.Server.TLSTailscale,
		},
		api.Dependencies{
			Engine:        app.engine,
			Bus:           app.eventBus,
			Version:       app.version,
			ImageTempDir:  engineCfg.TempDir,
			WebhookSecret: cfg.Webhook.Secret,
			DeployScript:  cfg.Webhook.ScriptPath,
			DeployBranch:  cfg.Webhook.DefaultBranch,
		},
	)

	return nil
}

// Start starts all components.
func (app *App) Start(ctx context.Context) error {
	go func() {
		log.Printf("Starting API server on %s:%d", app.config.Server.Host, app.config.Server.Port)
		if err := app.apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("API server error: %v", err)
		}
	}()

	return nil
}

// Run starts the app and blocks until shutdown.
func (app *App) Run(ctx context.Context) error {
	if err := app.Initialize(ctx); err != nil {
		return err
	}

	if err := app.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down...", sig)
	case <-ctx.Done():
		log.Printf("Context cancelled, shutting down...")
	case <-app.done:
		log.Printf("Shutdown requested...")
	}

	return app.Shutdown(context.Background())
}

// Shutdown gracefully shuts down all components.
func (app *App) Shutdown(ctx context.Context) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if app.apiServer != nil {
		if err := app.apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down API server: %v", err)
		}
	}

	if app.aliases != nil {
		app.aliases.Close()
	}

	if app.eventBus != nil {
		app.eventBus.Close()
	}

	log.Println("Shutdown complete")
	return nil
}

// Stop signals the app to shut down. Safe to call multiple times.
func (app *App) Stop() {
	app.stopOnce.Do(func() {
		close(app.done)
	})
}
