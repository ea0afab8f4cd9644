package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ent0n29/memoryd/internal/config"
	"github.com/ent0n29/memoryd/internal/httpapi"
	"github.com/ent0n29/memoryd/internal/memory"
	"github.com/ent0n29/memoryd/internal/observability"
	"github.com/ent0n29/memoryd/internal/watch"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace, cfg.PerfWindowSize)

	ctx := context.Background()
	baseStore, err := memory.NewStore(ctx, cfg.DatabaseURL, cfg.DatabaseConnectAttempts)
	if err != nil {
		log.Fatalf("memory store init failed: %v", err)
	}
	defer baseStore.Close()
	log.Printf("memory store: %s", baseStore.Mode())
	store := memory.Instrument(baseStore, metrics)

	hub := watch.NewHub(cfg.WatchBuffer)
	hub.SetDropHook(func(_ *watch.Subscription) {
		metrics.WatchEvents.WithLabelValues("dropped").Inc()
	})

	api := httpapi.New(cfg, store, hub, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	go refreshTrackedUsers(runCtx, store, metrics, 15*time.Second)

	go func() {
		log.Printf("%s listening on %s", cfg.AppName, cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}

func refreshTrackedUsers(ctx context.Context, store memory.Store, metrics *observability.Metrics, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if n, err := store.UserCount(ctx); err == nil {
			metrics.TrackedUsers.Set(float64(n))
		} else if ctx.Err() == nil {
			log.Printf("tracked users refresh failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
