/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the membership engine HTTP server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present), then YAML config with env overrides
  2. Initialize structured logging
  3. Open the SQL store and apply the schema
  4. Wire domain services and the API handler
  5. Start the dues digest scheduler (if enabled)
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to YAML config file (optional)
  -port    Override server.port
  -db      Override database.dsn (SQLite path, ":memory:" for in-memory)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler, waiting for a running digest
  2. Stop accepting new connections
  3. Wait for active requests to complete (server.shutdown_timeout)
  4. Close database connection

EXAMPLES:
  ./server -config=config/config.yaml
  ./server -db=":memory:" -port=3000
  DB_DRIVER=postgres DB_DSN="postgres://localhost/members?sslmode=disable" ./server

SEE ALSO:
  - config/config.go: Configuration keys and env variables
  - api/server.go: Router configuration
  - jobs/scheduler.go: Cron jobs
*/
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/warp/membership-engine/api"
	"github.com/warp/membership-engine/config"
	"github.com/warp/membership-engine/generic"
	"github.com/warp/membership-engine/jobs"
	"github.com/warp/membership-engine/logger"
	"github.com/warp/membership-engine/store/sqlstore"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "Path to YAML config file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Driver = sqlstore.DriverSQLite
		cfg.Database.DSN = *dbPath
	}

	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	log := logger.WithService("server")

	monthlyDue, err := cfg.MonthlyDue()
	if err != nil {
		log.Error("Invalid dues configuration", "error", err)
		os.Exit(1)
	}

	// Initialize store
	store, err := sqlstore.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	clock := generic.SystemClock{}
	services := api.NewServices(store, clock, monthlyDue)
	handler := api.NewHandler(services, api.HeaderScopeResolver{}, clock)
	router := api.NewRouter(handler, api.RouterOptions{AllowedOrigins: cfg.Server.AllowedOrigins})

	// Scheduler. The digest is always reachable through /api/digest/run.
	digest := jobs.NewDuesDigest(services.Reports, clock)
	var scheduler *jobs.Scheduler
	if cfg.Scheduler.Enabled {
		scheduler, err = jobs.NewScheduler(digest, cfg.Scheduler.DuesDigest)
		if err != nil {
			log.Error("Failed to configure scheduler", "error", err)
			os.Exit(1)
		}
		scheduler.Start()
	}
	handler.AttachDigest(digest, scheduler)

	// Create server
	server := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Get().Handler(), slog.LevelError),
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", "addr", server.Addr, "db_driver", cfg.Database.Driver,
			"monthly_due", monthlyDue.String())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	if scheduler != nil {
		scheduler.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Server stopped")
}
