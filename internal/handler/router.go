// Package handler wires the HTTP surface: routing, auth middleware and
// request/response mapping onto the service layer.
package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/finlight-sa/finlight-api/internal/infra/observability"
	"github.com/finlight-sa/finlight-api/internal/port"
	"github.com/finlight-sa/finlight-api/internal/service"
)

// Config carries the router's knobs.
type Config struct {
	JWTSecret      string
	MaxUploadBytes int64
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(
	stmtSvc *service.StatementService,
	txnSvc *service.TransactionService,
	categorizer port.Categorizer,
	metrics *observability.Metrics,
	logger *zap.Logger,
	cfg Config,
) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(stmtSvc, categorizer))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Use(JWTAuthMiddleware(cfg.JWTSecret, logger))

		r.Route("/bankstatements", func(r chi.Router) {
			r.Post("/", uploadStatementHandler(stmtSvc, cfg.MaxUploadBytes, logger))
			r.Get("/", listStatementsHandler(stmtSvc, logger))
			r.Get("/{id}", getStatementHandler(stmtSvc, logger))
			r.Get("/{id}/file", getStatementFileHandler(stmtSvc, logger))
			r.Post("/{id}/process", processStatementHandler(stmtSvc, logger))
			r.Delete("/{id}", deleteStatementHandler(stmtSvc, logger))
		})

		r.Route("/banktransactions", func(r chi.Router) {
			r.Get("/", listTransactionsHandler(txnSvc, logger))
			r.Get("/{id}", getTransactionHandler(txnSvc, logger))
			r.Put("/{id}", updateTransactionHandler(txnSvc, logger))
			r.Post("/{id}/categorize", categorizeTransactionHandler(txnSvc, logger))
			r.Post("/categorize-batch", categorizeBatchHandler(txnSvc, logger))
			r.Post("/{id}/feedback", transactionFeedbackHandler(txnSvc, logger))
		})
	})

	return r
}

type serviceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
}

type healthStatus struct {
	Status   string          `json:"status"`
	Services []serviceHealth `json:"services"`
}

// healthzHandler reports API liveness plus the reachability of the store
// and the AI service. Degraded dependencies still return 200: the API
// itself works, categorization just runs in soft-failure mode.
func healthzHandler(stmtSvc *service.StatementService, categorizer port.Categorizer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)

		services := []serviceHealth{
			{Name: "finlight-api", Status: "healthy", LatencyMs: 0, LastChecked: now},
		}

		if stmtSvc != nil {
			start := time.Now()
			_, err := stmtSvc.List(r.Context(), "health-check", 1, 1)
			latency := time.Since(start).Milliseconds()
			status := "healthy"
			if err != nil {
				status = "degraded"
			}
			services = append(services, serviceHealth{
				Name: "store", Status: status, LatencyMs: latency, LastChecked: now,
			})
		}

		if categorizer != nil {
			start := time.Now()
			err := categorizer.Health(r.Context())
			latency := time.Since(start).Milliseconds()
			status := "healthy"
			if err != nil {
				status = "degraded"
			}
			services = append(services, serviceHealth{
				Name: "ai-service", Status: status, LatencyMs: latency, LastChecked: now,
			})
		}

		overall := "healthy"
		for _, s := range services {
			if s.Status == "degraded" {
				overall = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, healthStatus{Status: overall, Services: services})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
