/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the credit engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and environment configuration
  2. Initialize zap logger
  3. Open the store: PostgreSQL when DATABASE_URL is set, SQLite otherwise
  4. Build the engine, handler, and router
  5. Start server with graceful shutdown

ENVIRONMENT:
  HTTP_ADDR     Listen address (default :8080)
  DATABASE_URL  PostgreSQL DSN; empty selects SQLite
  DB_PATH       SQLite path (default ./data/credits.db, ":memory:" works)
  LOG_LEVEL     debug|info|warn|error (default info)
  ENV           dev|prod (default dev)
  CORS_ORIGINS  Comma-separated allowlist

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - store/sqlite, store/postgres: Database implementations
*/
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/studyhall/credit-engine/api"
	"github.com/studyhall/credit-engine/config"
	"github.com/studyhall/credit-engine/ledger"
	"github.com/studyhall/credit-engine/logging"
	"github.com/studyhall/credit-engine/store/postgres"
	"github.com/studyhall/credit-engine/store/sqlite"
)

// storeHandle is what main needs from either store implementation.
type storeHandle interface {
	ledger.TxStore
	Ping(ctx context.Context) error
	Close() error
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	lg, err := logging.Init(cfg.LogLevel, cfg.Env)
	if err != nil {
		os.Stderr.WriteString("failed to init logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer lg.Closer()
	log := lg.Base

	var store storeHandle
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		pg, err := postgres.Open(ctx, cfg.DatabaseURL)
		cancel()
		if err != nil {
			log.Fatal("failed to open postgres", zap.Error(err))
		}
		store = pg
		log.Info("store ready", zap.String("backend", "postgres"))
	} else {
		sq, err := sqlite.New(cfg.DBPath)
		if err != nil {
			log.Fatal("failed to open sqlite", zap.Error(err), zap.String("path", cfg.DBPath))
		}
		store = sq
		log.Info("store ready", zap.String("backend", "sqlite"), zap.String("path", cfg.DBPath))
	}
	defer store.Close()

	engine := ledger.NewEngine(store, log)
	handler := api.NewHandler(engine, store, log)
	router := api.NewRouter(handler, store, cfg.CORSOrigins)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server starting", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("forced shutdown", zap.Error(err))
	}
	log.Info("server stopped")
}
