package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/finlight-sa/finlight-api/internal/config"
	"github.com/finlight-sa/finlight-api/internal/domain"
	"github.com/finlight-sa/finlight-api/internal/handler"
	"github.com/finlight-sa/finlight-api/internal/infra/aiclient"
	"github.com/finlight-sa/finlight-api/internal/infra/cache"
	"github.com/finlight-sa/finlight-api/internal/infra/observability"
	"github.com/finlight-sa/finlight-api/internal/infra/resilience"
	"github.com/finlight-sa/finlight-api/internal/infra/sqlite"
	"github.com/finlight-sa/finlight-api/internal/infra/supabase"
	"github.com/finlight-sa/finlight-api/internal/port"
	"github.com/finlight-sa/finlight-api/internal/service"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.Bool("use_supabase", cfg.UseSupabase),
		zap.String("ai_service_url", cfg.AIServiceURL),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Bool("auto_categorize", cfg.AutoCategorize),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "finlight-api")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Cache ---
	predictionCache := cache.New[domain.CategoryPrediction](cfg.CacheTTL)

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	aiBreaker := resilience.NewCircuitBreaker("ai-service")
	storeBreaker := resilience.NewCircuitBreaker("supabase")

	// --- Clients ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	var store port.StatementStore
	var audit port.AuditSink

	if cfg.UseSupabase && cfg.SupabaseURL != "" {
		logger.Info("using Supabase as data backend",
			zap.String("supabase_url", cfg.SupabaseURL),
		)
		supabaseClient := supabase.NewClient(
			httpClient,
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			storeBreaker,
			resilienceCfg,
			logger,
		)
		store = supabaseClient
		audit = supabaseClient
	} else {
		logger.Info("using local SQLite as data backend",
			zap.String("path", cfg.SQLitePath),
		)
		sqliteStore, err := sqlite.New(cfg.SQLitePath, logger)
		if err != nil {
			logger.Fatal("failed to open sqlite store", zap.Error(err))
		}
		defer sqliteStore.Close()
		store = sqliteStore
		audit = sqliteStore
	}

	aiClient := aiclient.New(httpClient, cfg.AIServiceURL, aiBreaker, resilienceCfg, logger)

	// --- Services ---
	stmtSvc := service.NewStatementService(store, aiClient, aiClient, audit, metrics, logger, cfg.AutoCategorize)
	txnSvc := service.NewTransactionService(store, aiClient, audit, predictionCache, metrics, logger)

	// --- Router ---
	router := handler.NewRouter(stmtSvc, txnSvc, aiClient, metrics, logger, handler.Config{
		JWTSecret:      cfg.JWTSecret,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
