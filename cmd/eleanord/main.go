// Command eleanord runs the Eleanor decision engine service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/eleanor-project/eleanor/internal/adapter/critics"
	ehttp "github.com/eleanor-project/eleanor/internal/adapter/http"
	"github.com/eleanor-project/eleanor/internal/adapter/llm"
	"github.com/eleanor-project/eleanor/internal/adapter/lrucache"
	enats "github.com/eleanor-project/eleanor/internal/adapter/nats"
	"github.com/eleanor-project/eleanor/internal/adapter/natskv"
	eotel "github.com/eleanor-project/eleanor/internal/adapter/otel"
	"github.com/eleanor-project/eleanor/internal/adapter/postgres"
	"github.com/eleanor-project/eleanor/internal/adapter/ristretto"
	"github.com/eleanor-project/eleanor/internal/adapter/tiered"
	"github.com/eleanor-project/eleanor/internal/adapter/ws"
	"github.com/eleanor-project/eleanor/internal/config"
	"github.com/eleanor-project/eleanor/internal/domain/critic"
	"github.com/eleanor-project/eleanor/internal/domain/decision"
	"github.com/eleanor-project/eleanor/internal/engine"
	"github.com/eleanor-project/eleanor/internal/logger"
	"github.com/eleanor-project/eleanor/internal/middleware"
	"github.com/eleanor-project/eleanor/internal/port/precedent"
	"github.com/eleanor-project/eleanor/internal/resilience"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"critics", len(cfg.Engine.Critics),
	)

	ctx := context.Background()

	// --- Telemetry ---
	otelShutdown, err := eotel.Init(ctx, cfg.Logging.Service, cfg.Otel)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(sctx)
	}()

	metrics, err := eotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---

	// PostgreSQL
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	// NATS
	bus, err := enats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = bus.Close() }()

	// Precedent store behind a tiered byte cache: in-process ristretto L1,
	// shared NATS KV L2.
	l1, err := ristretto.New(cfg.NATS.L1SizeMB << 20)
	if err != nil {
		return fmt.Errorf("ristretto: %w", err)
	}
	kv, err := bus.KeyValue(ctx, cfg.NATS.PrecedentBucket, cfg.NATS.PrecedentTTL)
	if err != nil {
		return fmt.Errorf("precedent kv: %w", err)
	}
	precedentCache := tiered.New(l1, natskv.New(kv), cfg.NATS.PrecedentTTL)
	precedents := postgres.NewPrecedentStore(pool, precedentCache)
	auditLog := postgres.NewAuditLog(pool)

	// --- Critic set ---
	llmClient := llm.NewClient(cfg.LLM.URL, cfg.LLM.APIKey)
	llmClient.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	snap, err := buildSnapshot(cfg, llmClient, precedents)
	if err != nil {
		return fmt.Errorf("critics: %w", err)
	}
	slog.Info("critic snapshot built", "fingerprint", snap.Fingerprint(), "critics", len(snap.Critics()))

	// --- Engine ---
	hub := ws.NewHub()
	orch, err := engine.NewOrchestrator(snap, engine.Options{
		Cache:         lrucache.New(cfg.Engine.CacheCapacity),
		Precedents:    precedents,
		AuditLog:      auditLog,
		Hub:           hub,
		Bus:           bus,
		Metrics:       metrics,
		CacheTTL:      cfg.Engine.CacheTTL,
		MaxConcurrent: cfg.Engine.MaxConcurrent,
	})
	if err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}

	reload := func(ctx context.Context) (string, string, int, error) {
		fresh, err := config.Load()
		if err != nil {
			return "", "", 0, fmt.Errorf("config: %w", err)
		}
		newSnap, err := buildSnapshot(fresh, llmClient, precedents)
		if err != nil {
			return "", "", 0, err
		}
		oldFP := orch.ConfigFingerprint()
		if err := orch.ApplySnapshot(newSnap); err != nil {
			return "", "", 0, err
		}
		hub.BroadcastEvent(ctx, ws.EventConfigReloaded, ws.ConfigReloadedEvent{
			OldFingerprint: oldFP,
			NewFingerprint: newSnap.Fingerprint(),
			Critics:        len(newSnap.Critics()),
		})
		return oldFP, newSnap.Fingerprint(), len(newSnap.Critics()), nil
	}

	// --- HTTP ---
	handlers := &ehttp.Handlers{
		Orchestrator:   orch,
		Precedents:     precedents,
		Audit:          auditLog,
		Hub:            hub,
		Reload:         reload,
		PrecedentLimit: cfg.Engine.PrecedentLimit,
	}

	rl := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopCleanup := rl.StartCleanup(time.Minute, 10*time.Minute)
	defer stopCleanup()

	r := chi.NewRouter()
	r.Use(ehttp.CORS(cfg.Server.CORSOrigin))
	r.Use(middleware.RequestID)
	r.Use(ehttp.Logger)
	r.Use(eotel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(rl.Handler)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	ehttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	// Drain the fire-and-forget collaborator notifications before the
	// postgres pool and NATS connection close underneath them.
	return orch.Close(shutdownCtx)
}

// buildSnapshot constructs the immutable critic snapshot from config.
func buildSnapshot(cfg *config.Config, llmClient *llm.Client, precedents precedent.Store) (*critic.Snapshot, error) {
	handles, err := critics.Build(cfg.Engine.Critics, critics.Deps{
		LLM:            llmClient,
		Precedents:     precedents,
		PrecedentLimit: cfg.Engine.PrecedentLimit,
	})
	if err != nil {
		return nil, err
	}
	return critic.NewSnapshot(handles, decision.Thresholds{
		Ambiguity:     cfg.Engine.Thresholds.Ambiguity,
		MinConfidence: cfg.Engine.Thresholds.MinConfidence,
	})
}
