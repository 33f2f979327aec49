package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/finlight-sa/finlight-api/internal/domain"
	"github.com/finlight-sa/finlight-api/internal/service"
)

func listTransactionsHandler(svc *service.TransactionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, pageSize := parsePagination(r)
		f := domain.TransactionFilter{
			BankStatementID: r.URL.Query().Get("bankStatementId"),
			Category:        r.URL.Query().Get("category"),
			Page:            page,
			PageSize:        pageSize,
		}
		if v := r.URL.Query().Get("startDate"); v != "" {
			if t, err := time.Parse("2006-01-02", v); err == nil {
				f.StartDate = &t
			}
		}
		if v := r.URL.Query().Get("endDate"); v != "" {
			if t, err := time.Parse("2006-01-02", v); err == nil {
				f.EndDate = &t
			}
		}

		resp, err := svc.List(r.Context(), BusinessIDFromContext(r.Context()), f)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getTransactionHandler(svc *service.TransactionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		txn, err := svc.Get(r.Context(), BusinessIDFromContext(r.Context()), id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, txn.ToDTO())
	}
}

// categorizeTransactionHandler asks the AI service for a category for one
// transaction. A failed categorization still returns 200 with the
// transaction unchanged.
func categorizeTransactionHandler(svc *service.TransactionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		txn, err := svc.Categorize(r.Context(), BusinessIDFromContext(r.Context()), id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, txn.ToDTO())
	}
}

func categorizeBatchHandler(svc *service.TransactionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// The body is a bare JSON array of transaction ids.
		var ids []string
		if err := json.NewDecoder(r.Body).Decode(&ids); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		txns, err := svc.CategorizeBatch(r.Context(), BusinessIDFromContext(r.Context()), ids)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		dtos := make([]domain.TransactionDTO, 0, len(txns))
		for i := range txns {
			dtos = append(dtos, txns[i].ToDTO())
		}
		writeJSON(w, http.StatusOK, dtos)
	}
}

func transactionFeedbackHandler(svc *service.TransactionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req struct {
			CorrectCategory string `json:"correctCategory"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		err := svc.Feedback(r.Context(),
			BusinessIDFromContext(r.Context()),
			UserIDFromContext(r.Context()),
			id,
			req.CorrectCategory,
		)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "feedback recorded"})
	}
}

func updateTransactionHandler(svc *service.TransactionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req struct {
			Description string `json:"description"`
			Reference   string `json:"reference"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		txn, err := svc.Update(r.Context(), BusinessIDFromContext(r.Context()), id, req.Description, req.Reference)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, txn.ToDTO())
	}
}
