// Command posd runs the POS terminal's offline sales backend: the durable
// queue, the sync scheduler, and the operator API on localhost.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vendly/vendly-pos/backend/cmd/posd/handlers"
	"github.com/vendly/vendly-pos/backend/internal/config"
	"github.com/vendly/vendly-pos/backend/internal/db"
	"github.com/vendly/vendly-pos/backend/internal/logging"
	"github.com/vendly/vendly-pos/backend/internal/store"
	syncpkg "github.com/vendly/vendly-pos/backend/internal/sync"
	"github.com/vendly/vendly-pos/backend/internal/sync/scheduler"
)

func main() {
	logging.Init(os.Stdout, logging.LevelInfo)

	cfg := config.Load()

	database, err := db.Open(cfg.DataDir)
	if err != nil {
		logging.Error("Failed to open database", err)
		os.Exit(1)
	}
	defer database.Close()

	storage, err := store.NewSQLiteStorage(database.DB, cfg.StorageKey)
	if err != nil {
		logging.Error("Failed to initialize queue storage", err)
		os.Exit(1)
	}

	queue, err := store.NewQueue(storage, cfg.MaxQueuedSales, cfg.MaxRetries)
	if err != nil {
		logging.Error("Failed to recover queue", err)
		os.Exit(1)
	}

	client := syncpkg.NewClient(syncpkg.ClientConfig{
		BatchEndpoint:  cfg.BatchSyncEndpoint,
		SingleEndpoint: cfg.SingleSyncEndpoint,
	})

	engine := syncpkg.NewEngine(queue, client, cfg.SyncTimeout)

	hub := NewWSHub()
	engine.SetEventHandler(hub)

	sched := scheduler.NewScheduler(engine, &scheduler.Config{
		PeriodicInterval: cfg.PeriodicInterval,
		ReconnectDelay:   cfg.ReconnectDelay,
		BackoffCeiling:   cfg.BackoffCeiling,
		AutoSync:         cfg.AutoSync,
		PeriodicSync:     cfg.PeriodicSync,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.OfflineMode {
		sched.Start(ctx)
		defer sched.Stop()
	} else {
		logging.Warn("Offline mode disabled, queue and scheduler are inert", nil)
	}

	queueHandler := handlers.NewQueueHandler(queue, cfg.OfflineMode)
	queueHandler.SetWebSocketHub(hub)
	syncHandler := handlers.NewSyncHandler(sched)

	r := chi.NewRouter()
	r.Get("/api/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","service":"vendly-posd"}`))
	})
	handlers.RegisterQueueRoutes(r, queueHandler)
	handlers.RegisterSyncRoutes(r, syncHandler)
	r.Get("/ws", HandleWebSocket(hub))

	server := &http.Server{
		Addr:    "127.0.0.1:" + cfg.HTTPPort,
		Handler: r,
	}

	go func() {
		logging.Info("Operator API listening",
			map[string]interface{}{"addr": server.Addr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("HTTP server failed", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error("HTTP shutdown failed", err)
	}
}
