package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cvp-knife/internal/api"
	"cvp-knife/internal/config"
	"cvp-knife/internal/db"
	"cvp-knife/internal/logger"
	"cvp-knife/internal/notify"
	"cvp-knife/internal/solver"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	appLogger, err := logger.NewWithLevel(cfg.LogBuffer, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Logger error: %v", err)
	}
	defer appLogger.Sync()

	// Initialize database
	var database db.Database
	if cfg.DatabaseURL == "" {
		appLogger.Warn("DATABASE_URL not set - running in demo mode")
		database = db.NewMockWithSampleData()
	} else {
		database, err = db.New(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Database error: %v", err)
		}
		appLogger.Info("Connected to database")
	}
	defer database.Close()

	// Initialize notifier
	notifier := notify.New(cfg.PushoverAppToken, cfg.PushoverUserKey)
	if notifier.IsEnabled() {
		appLogger.Info("Pushover notifications enabled")
	}

	// Initialize solver pool
	poolCfg := solver.DefaultConfig()
	poolCfg.Workers = cfg.SolverWorkers
	poolCfg.Timeout = cfg.SolveTimeout
	poolCfg.MaxConstraints = cfg.MaxConstraints
	poolCfg.Strict = cfg.Strict
	pool := solver.New(database, appLogger, notifier, poolCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	pool.Start(ctx)

	// Initialize API
	handler := api.NewHandler(pool, database, appLogger)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	// Start HTTP servers, one per bind address
	var servers []*http.Server
	var wg sync.WaitGroup
	for i, addr := range cfg.ListenAddrs() {
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		servers = append(servers, srv)

		appLogger.Info("Starting server on %s", addr)
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				appLogger.Error("Listener %d error: %v", idx, err)
				stop()
			}
		}(i)
	}
	if len(servers) == 0 {
		log.Fatalf("No listen addresses in BIND_ADDRS=%q", cfg.BindAddrs)
	}

	// Graceful shutdown
	<-ctx.Done()
	appLogger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			appLogger.Warn("Server %s shutdown: %v", srv.Addr, err)
		}
	}
	wg.Wait()
	pool.Stop()
}
