package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/cramdesk/backend/internal/auth"
	"github.com/cramdesk/backend/internal/config"
	"github.com/cramdesk/backend/internal/dashboard"
	"github.com/cramdesk/backend/internal/documents"
	"github.com/cramdesk/backend/internal/execution"
	"github.com/cramdesk/backend/internal/generation"
	"github.com/cramdesk/backend/internal/ledger"
	"github.com/cramdesk/backend/internal/llm"
	"github.com/cramdesk/backend/internal/metrics"
	"github.com/cramdesk/backend/internal/repository"
	"github.com/cramdesk/backend/internal/router"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL. Ensure Postgres is running, e.g. docker-compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL database successfully!")

	if err := repository.Migrate(ctx, pool); err != nil {
		slog.Error("Schema migration failed", "error", err)
		os.Exit(1)
	}

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}
	slog.Info("River migrations applied")

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	quotaMetrics := metrics.NewQuotaMetrics(registry)

	// Repositories
	accountRepo := repository.NewAccountRepo(pool)
	documentRepo := repository.NewDocumentRepo(pool)
	generationRepo := repository.NewGenerationRepo(pool)
	usageRepo := repository.NewUsageRepo(pool)

	// Ledger
	quota := ledger.NewService(accountRepo,
		ledger.WithLogger(logger),
		ledger.WithMetrics(quotaMetrics),
		ledger.WithEnforceLimitOnDeduct(cfg.QuotaEnforceOnDeduct),
	)

	// LLM
	generator, closeLLM, err := llm.New(ctx, llm.Config{
		Provider: cfg.LLMProvider,
		BaseURL:  cfg.LLMBaseURL,
		APIKey:   cfg.LLMAPIKey,
		Model:    cfg.LLMModel,
		Timeout:  cfg.LLMTimeout,
	})
	if err != nil {
		slog.Error("Failed to create LLM client", "provider", cfg.LLMProvider, "error", err)
		os.Exit(1)
	}
	defer closeLLM() //nolint:errcheck
	if cfg.LLMAPIKey == "" {
		slog.Warn("LLM_API_KEY is not set, generations will fail")
	}

	validator, err := execution.NewValidator()
	if err != nil {
		slog.Error("Failed to compile output schemas", "error", err)
		os.Exit(1)
	}

	// Generations: insert func is set after River client is created (breaks init cycle)
	var insertMu sync.Mutex
	var insertFn generation.InsertGenerateJobTxFunc
	insertGenerateJob := func(ctx context.Context, tx pgx.Tx, args execution.GenerateJobArgs) error {
		insertMu.Lock()
		fn := insertFn
		insertMu.Unlock()
		if fn == nil {
			panic("river insert not wired")
		}
		return fn(ctx, tx, args)
	}

	generationSvc := generation.NewService(generationRepo, documentRepo, quota, insertGenerateJob, quotaMetrics, logger)

	workers := river.NewWorkers()
	river.AddWorker(workers, execution.NewGenerateWorker(generationSvc, generator, validator, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.WorkerConcurrency},
		},
		Workers: workers,
		Logger:  logger,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	insertMu.Lock()
	insertFn = func(ctx context.Context, tx pgx.Tx, args execution.GenerateJobArgs) error {
		_, err := riverClient.InsertTx(ctx, tx, args, nil)
		return err
	}
	insertMu.Unlock()

	// HTTP
	authSvc := auth.NewService(accountRepo, cfg.JWTSecret)

	apiV1Router := router.New(router.Deps{
		Auth:        auth.NewHandler(authSvc, logger),
		Dashboard:   dashboard.NewHandler(quota, accountRepo, usageRepo, documentRepo, logger),
		Documents:   documents.NewHandler(documents.NewService(documentRepo, quota, logger), logger),
		Generations: generation.NewHandler(generationSvc, logger),
		Tokens:      authSvc,
		Quota:       quota,
	})

	mux := http.NewServeMux()
	mux.Handle("/api/", apiV1Router)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(mux)

	// Start River client (processes jobs)
	if err := riverClient.Start(ctx); err != nil {
		slog.Error("River client failed to start", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP shutdown failed", "error", err)
		}
		if err := riverClient.Stop(shutdownCtx); err != nil {
			slog.Error("River client stop failed", "error", err)
		}
	}()

	slog.Info("Starting HTTP server", "addr", srv.Addr, "llm_provider", cfg.LLMProvider)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
	<-stopped
	slog.Info("Shut down cleanly")
}
