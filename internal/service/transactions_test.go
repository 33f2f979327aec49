package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/finlight-sa/finlight-api/internal/domain"
	"github.com/finlight-sa/finlight-api/internal/infra/cache"
	"github.com/finlight-sa/finlight-api/internal/infra/observability"
	"github.com/finlight-sa/finlight-api/internal/service"
)

func newTransactionService(store *mockStore, categorizer *mockCategorizer, audit *mockAudit) *service.TransactionService {
	return service.NewTransactionService(
		store, categorizer, audit,
		cache.New[domain.CategoryPrediction](time.Minute),
		observability.NewMetrics(), zap.NewNop(),
	)
}

func seedTxn(store *mockStore, id, businessID, description string) {
	store.transactions[id] = &domain.BankTransaction{
		ID:              id,
		BankStatementID: "st-1",
		BusinessID:      businessID,
		TxnDate:         time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		Amount:          decimal.NewFromFloat(100),
		Direction:       domain.DirectionDebit,
		Description:     description,
	}
}

func TestCategorizeAppliesPrediction(t *testing.T) {
	store := newMockStore()
	seedTxn(store, "tx-1", "biz-1", "UBER TRIP")
	categorizer := &mockCategorizer{prediction: &domain.CategoryPrediction{Category: "Travel", Confidence: 0.88}}
	svc := newTransactionService(store, categorizer, &mockAudit{})

	txn, err := svc.Categorize(context.Background(), "biz-1", "tx-1")
	if err != nil {
		t.Fatalf("Categorize: %v", err)
	}
	if txn.AiCategory != "Travel" {
		t.Errorf("got category %q", txn.AiCategory)
	}
	if store.transactions["tx-1"].AiCategory != "Travel" {
		t.Error("prediction not persisted")
	}
	if store.transactions["tx-1"].ConfidenceScore == nil || *store.transactions["tx-1"].ConfidenceScore != 0.88 {
		t.Errorf("got confidence %v", store.transactions["tx-1"].ConfidenceScore)
	}
}

func TestCategorizeFailureIsSoft(t *testing.T) {
	store := newMockStore()
	seedTxn(store, "tx-1", "biz-1", "UBER TRIP")
	categorizer := &mockCategorizer{err: &domain.ErrExternalService{Service: "ai/categorize", Err: errors.New("down")}}
	svc := newTransactionService(store, categorizer, &mockAudit{})

	txn, err := svc.Categorize(context.Background(), "biz-1", "tx-1")
	if err != nil {
		t.Fatalf("soft failure must not surface: %v", err)
	}
	if txn.AiCategory != "" {
		t.Errorf("got category %q, want empty", txn.AiCategory)
	}
	if store.transactions["tx-1"].AiCategory != "" {
		t.Error("category persisted despite failure")
	}
}

func TestCategorizeUnknownTransaction(t *testing.T) {
	svc := newTransactionService(newMockStore(), &mockCategorizer{}, &mockAudit{})

	_, err := svc.Categorize(context.Background(), "biz-1", "tx-missing")
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestCategorizeUsesCache(t *testing.T) {
	store := newMockStore()
	seedTxn(store, "tx-1", "biz-1", "UBER TRIP")
	seedTxn(store, "tx-2", "biz-1", "UBER TRIP")
	categorizer := &mockCategorizer{prediction: &domain.CategoryPrediction{Category: "Travel", Confidence: 0.88}}
	svc := newTransactionService(store, categorizer, &mockAudit{})

	if _, err := svc.Categorize(context.Background(), "biz-1", "tx-1"); err != nil {
		t.Fatalf("Categorize: %v", err)
	}

	// Same description: the second call must be served from cache even if
	// the remote service is now failing.
	categorizer.err = errors.New("down")
	txn, err := svc.Categorize(context.Background(), "biz-1", "tx-2")
	if err != nil {
		t.Fatalf("Categorize: %v", err)
	}
	if txn.AiCategory != "Travel" {
		t.Errorf("got category %q, want cached Travel", txn.AiCategory)
	}
}

func TestCategorizeBatch(t *testing.T) {
	store := newMockStore()
	seedTxn(store, "tx-1", "biz-1", "UBER TRIP")
	seedTxn(store, "tx-2", "biz-1", "OFFICE RENT")
	categorizer := &mockCategorizer{batch: []domain.CategoryPrediction{
		{Category: "Travel", Confidence: 0.9},
		{Category: "Rent", Confidence: 0.95},
	}}
	svc := newTransactionService(store, categorizer, &mockAudit{})

	txns, err := svc.CategorizeBatch(context.Background(), "biz-1", []string{"tx-1", "tx-2"})
	if err != nil {
		t.Fatalf("CategorizeBatch: %v", err)
	}
	if len(txns) != 2 {
		t.Fatalf("got %d transactions", len(txns))
	}
	if len(store.appliedBatches) != 1 {
		t.Fatalf("got %d applied batches, want 1", len(store.appliedBatches))
	}
}

func TestCategorizeBatchLengthMismatchAppliesNothing(t *testing.T) {
	store := newMockStore()
	seedTxn(store, "tx-1", "biz-1", "UBER TRIP")
	seedTxn(store, "tx-2", "biz-1", "OFFICE RENT")
	categorizer := &mockCategorizer{batch: []domain.CategoryPrediction{
		{Category: "Travel", Confidence: 0.9},
	}}
	svc := newTransactionService(store, categorizer, &mockAudit{})

	txns, err := svc.CategorizeBatch(context.Background(), "biz-1", []string{"tx-1", "tx-2"})
	if err != nil {
		t.Fatalf("CategorizeBatch: %v", err)
	}
	if len(store.appliedBatches) != 0 {
		t.Fatal("mismatched batch was applied")
	}
	for _, tx := range txns {
		if tx.AiCategory != "" {
			t.Errorf("got category %q, want empty", tx.AiCategory)
		}
	}
}

func TestCategorizeBatchNoMatchingIDs(t *testing.T) {
	svc := newTransactionService(newMockStore(), &mockCategorizer{}, &mockAudit{})

	_, err := svc.CategorizeBatch(context.Background(), "biz-1", []string{"tx-missing"})
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestFeedbackForwardThenWrite(t *testing.T) {
	store := newMockStore()
	seedTxn(store, "tx-1", "biz-1", "UBER TRIP")
	store.transactions["tx-1"].AiCategory = "Entertainment"
	categorizer := &mockCategorizer{}
	audit := &mockAudit{}
	svc := newTransactionService(store, categorizer, audit)

	if err := svc.Feedback(context.Background(), "biz-1", "user-1", "tx-1", "Travel"); err != nil {
		t.Fatalf("Feedback: %v", err)
	}

	if len(categorizer.feedbackCalls) != 1 {
		t.Fatalf("got %d feedback calls, want 1", len(categorizer.feedbackCalls))
	}
	if categorizer.feedbackCalls[0].PredictedCategory != "Entertainment" {
		t.Errorf("got forwarded prediction %q", categorizer.feedbackCalls[0].PredictedCategory)
	}
	if store.transactions["tx-1"].FeedbackCategory != "Travel" {
		t.Error("feedback category not persisted")
	}
	if len(store.feedback) != 1 || store.feedback[0].CorrectCategory != "Travel" {
		t.Errorf("got feedback records %+v", store.feedback)
	}
	if len(audit.events) != 1 || audit.events[0].Action != "TransactionFeedback" {
		t.Errorf("got audit events %+v", audit.events)
	}
}

func TestFeedbackRemoteFailureMutatesNothing(t *testing.T) {
	store := newMockStore()
	seedTxn(store, "tx-1", "biz-1", "UBER TRIP")
	categorizer := &mockCategorizer{feedbackErr: &domain.ErrExternalService{Service: "ai/feedback", Err: errors.New("down")}}
	audit := &mockAudit{}
	svc := newTransactionService(store, categorizer, audit)

	err := svc.Feedback(context.Background(), "biz-1", "user-1", "tx-1", "Travel")
	var extErr *domain.ErrExternalService
	if !errors.As(err, &extErr) {
		t.Fatalf("want ErrExternalService, got %v", err)
	}
	if store.transactions["tx-1"].FeedbackCategory != "" {
		t.Error("feedback category written despite failed relay")
	}
	if len(store.feedback) != 0 {
		t.Error("feedback record written despite failed relay")
	}
	if len(audit.events) != 0 {
		t.Error("audit written despite failed relay")
	}
}

func TestFeedbackRequiresCategory(t *testing.T) {
	store := newMockStore()
	seedTxn(store, "tx-1", "biz-1", "UBER TRIP")
	svc := newTransactionService(store, &mockCategorizer{}, &mockAudit{})

	err := svc.Feedback(context.Background(), "biz-1", "user-1", "tx-1", "")
	var vErr *domain.ErrValidation
	if !errors.As(err, &vErr) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
}

func TestUpdateTransactionDetails(t *testing.T) {
	store := newMockStore()
	seedTxn(store, "tx-1", "biz-1", "UBER TRIP")
	svc := newTransactionService(store, &mockCategorizer{}, &mockAudit{})

	txn, err := svc.Update(context.Background(), "biz-1", "tx-1", "Uber to airport", "TRIP-42")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if txn.Description != "Uber to airport" || txn.Reference != "TRIP-42" {
		t.Errorf("got transaction %+v", txn)
	}
}

func TestListTransactionsFilterByCategory(t *testing.T) {
	store := newMockStore()
	seedTxn(store, "tx-1", "biz-1", "UBER TRIP")
	seedTxn(store, "tx-2", "biz-1", "OFFICE RENT")
	store.transactions["tx-1"].AiCategory = "Travel"
	svc := newTransactionService(store, &mockCategorizer{}, &mockAudit{})

	resp, err := svc.List(context.Background(), "biz-1", domain.TransactionFilter{
		Category: "Travel", Page: 1, PageSize: 20,
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if resp.TotalCount != 1 || len(resp.Items) != 1 {
		t.Fatalf("got %d/%d, want 1/1", resp.TotalCount, len(resp.Items))
	}
	if resp.Items[0].AiCategory != "Travel" {
		t.Errorf("got item %+v", resp.Items[0])
	}
}
