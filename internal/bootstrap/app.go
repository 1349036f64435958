// Package bootstrap handles application initialization and lifecycle
// management for linksync commands.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	infralogger "github.com/jonesrussell/north-cloud/linksync/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/linksync/infrastructure/profiling"
	"github.com/jonesrussell/north-cloud/linksync/internal/config"
	"github.com/jonesrussell/north-cloud/linksync/internal/database"
)

// App is an initialized linksync instance.
type App struct {
	Config   *config.Config
	Log      infralogger.Logger
	DB       *sqlx.DB
	Redis    *redis.Client
	Services *Services
}

// New loads config, connects to the stores and wires every component.
func New(ctx context.Context, configPath string) (*App, error) {
	// Phase 1: config and logger
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	log, err := CreateLogger(cfg)
	if err != nil {
		return nil, err
	}

	// Phase 2: stores
	db, err := database.NewPostgresConnection(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to setup database: %w", err)
	}
	log.Info("Database connection established",
		infralogger.String("host", cfg.Database.Host),
		infralogger.String("database", cfg.Database.DBName),
	)
	rdb := SetupRedis(cfg, log)

	// Phase 3: components
	svc, err := SetupServices(cfg, db, rdb, log)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to setup services: %w", err)
	}

	return &App{Config: cfg, Log: log, DB: db, Redis: rdb, Services: svc}, nil
}

// Close releases the stores and flushes the logger.
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Log.Error("Failed to close Redis client", infralogger.Error(err))
		}
	}
	if err := a.DB.Close(); err != nil {
		a.Log.Error("Failed to close database connection", infralogger.Error(err))
	}
	_ = a.Log.Sync()
}

// Serve runs the HTTP server and, when enabled, the job dispatcher until ctx
// is cancelled or a termination signal arrives.
func (a *App) Serve(ctx context.Context) error {
	a.Log.Info("Starting linksync",
		infralogger.String("version", a.Config.Version),
		infralogger.String("site_url", a.Config.Site.URL),
		infralogger.Int("port", a.Config.Server.Port),
		infralogger.Bool("peer_configured", a.Config.Sync.PeerConfigured()),
	)

	stopPprof := profiling.StartPprofServer(ctx, a.Config.Server.PprofPort, a.Log)
	defer stopPprof()

	dispatcher := a.Services.Dispatcher
	if a.Config.Scheduler.Enabled {
		if err := dispatcher.Start(ctx, a.Config.Scheduler.Tick); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer dispatcher.Stop()
	} else {
		a.Log.Info("Scheduler disabled, jobs run only on demand")
	}

	server := SetupHTTPServer(a.Config, a.Services, a.DB, a.Redis, a.Log)
	if err := server.Run(ctx); err != nil {
		a.Log.Error("Server error", infralogger.Error(err))
		return fmt.Errorf("server error: %w", err)
	}

	a.Log.Info("linksync stopped")
	return nil
}
