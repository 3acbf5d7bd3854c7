// Command server runs the Vexguard API: webhook intake, the dashboard
// and IDE surfaces, the scan queue worker, and the background
// controllers, all in one process.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/vexguard/api/internal/app"
	"github.com/vexguard/api/internal/config"
	"github.com/vexguard/api/internal/infra/http"
	"github.com/vexguard/api/internal/infra/jobs"
	"github.com/vexguard/api/internal/infra/postgres"
	"github.com/vexguard/api/internal/infra/redis"
	"github.com/vexguard/api/pkg/jwt"
	"github.com/vexguard/api/pkg/logger"
	"github.com/vexguard/api/pkg/migrations"
	"github.com/vexguard/api/pkg/validator"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

var migrationsDir = flag.String("migrations", "migrations", "Directory holding SQL migration files")

func main() {
	flag.Parse()
	os.Exit(run())
}

func run() int {
	ctx := context.Background()

	// ==========================================================================
	// Configuration & Logger
	// ==========================================================================
	cfg, err := config.Load()
	if err != nil {
		log := logger.NewDefault()
		log.Error("failed to load configuration", "error", err)
		return 1
	}

	log := initLogger(cfg)
	log.Info("starting application", "app", cfg.App.Name, "env", cfg.App.Env, "version", version)

	// ==========================================================================
	// Infrastructure
	// ==========================================================================
	db, err := postgres.New(cfg.Database.DSN(), poolOptions(cfg))
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		return 1
	}
	defer closeWithLog(db, "database", log)
	log.Info("database connected")

	applied, err := migrations.NewRunner(db.DB, *migrationsDir).Up(ctx)
	if err != nil {
		log.Error("failed to run migrations", "error", err)
		return 1
	}
	if applied > 0 {
		log.Info("migrations applied", "count", applied)
	}

	redisClient, err := redis.New(&cfg.Redis, log)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		return 1
	}
	defer closeWithLog(redisClient, "redis", log)
	log.Info("redis connected")

	// ==========================================================================
	// Job Queue
	// ==========================================================================
	jobClient, err := jobs.NewClient(cfg.Redis.URL, log)
	if err != nil {
		log.Error("failed to initialize job client", "error", err)
		return 1
	}
	defer closeWithLog(jobClient, "job client", log)

	var enqueuer app.ScanEnqueuer = jobs.NewScanEnqueuerAdapter(jobClient)

	// ==========================================================================
	// Repositories & Services
	// ==========================================================================
	repos := NewRepositories(db)
	log.Info("repositories initialized")

	services, err := NewServices(&ServiceDeps{
		Config:      cfg,
		Log:         log,
		Repos:       repos,
		RedisClient: redisClient,
		Enqueuer:    enqueuer,
	})
	if err != nil {
		log.Error("failed to initialize services", "error", err)
		return 1
	}
	log.Info("services initialized")

	// ==========================================================================
	// HTTP Server
	// ==========================================================================
	jwtGen := jwt.NewGenerator(jwt.Config{
		Secret:   cfg.Auth.JWTSecret,
		Issuer:   cfg.Auth.JWTIssuer,
		Duration: cfg.Auth.AccessTokenDuration,
	})

	server := http.NewServer(cfg, log)
	err = http.RegisterRoutes(server.Router(), http.RouteDeps{
		Config:        cfg,
		Logger:        log,
		JWT:           jwtGen,
		Validator:     validator.New(),
		Redis:         redisClient,
		DBPinger:      db,
		RedisPinger:   redisClient,
		Version:       version,
		Webhooks:      services.Webhooks,
		Repos:         services.Repos,
		Scans:         services.Scans,
		Vulns:         services.Vulns,
		FPPatterns:    services.FPPatterns,
		APIKeys:       services.APIKeys,
		IDE:           services.IDE,
		PatchPRs:      services.PatchPRs,
		Notifications: services.Notifications,
	})
	if err != nil {
		log.Error("failed to register routes", "error", err)
		return 1
	}

	// ==========================================================================
	// Workers
	// ==========================================================================
	workers, err := NewWorkers(&WorkerDeps{
		Config:   cfg,
		Log:      log,
		Repos:    repos,
		Services: services,
	})
	if err != nil {
		log.Error("failed to initialize workers", "error", err)
		return 1
	}

	if err := workers.Start(ctx, log); err != nil {
		log.Error("failed to start workers", "error", err)
		return 1
	}

	// ==========================================================================
	// Start Server
	// ==========================================================================
	go func() {
		if err := server.Start(); err != nil {
			log.Error("server error", "error", err)
		}
	}()
	log.Info("application started", "http_addr", cfg.Server.Addr())

	// ==========================================================================
	// Graceful Shutdown
	// ==========================================================================
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Workers first so in-flight scans finish before their stores close.
	workers.Stop(log)

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		return 1
	}

	log.Info("application stopped")
	return 0
}

// =============================================================================
// Helper Functions
// =============================================================================

func initLogger(cfg *config.Config) *logger.Logger {
	var log *logger.Logger
	if cfg.IsProduction() {
		log = logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	} else {
		log = logger.NewDevelopment()
	}
	log.SetDefault()
	return log
}

func poolOptions(cfg *config.Config) postgres.Options {
	opts := postgres.DefaultOptions()
	if cfg.Database.MaxOpenConns > 0 {
		opts.MaxOpenConns = cfg.Database.MaxOpenConns
	}
	if cfg.Database.MaxIdleConns > 0 {
		opts.MaxIdleConns = cfg.Database.MaxIdleConns
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		opts.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
	}
	return opts
}

type closer interface {
	Close() error
}

func closeWithLog(c closer, name string, log *logger.Logger) {
	if err := c.Close(); err != nil {
		log.Error("failed to close "+name, "error", err)
	}
}
