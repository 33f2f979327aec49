package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/finlight-sa/finlight-api/internal/domain"
	"github.com/finlight-sa/finlight-api/internal/port"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedStatement(t *testing.T, s *Store, id, businessID string) {
	t.Helper()
	err := s.CreateStatement(context.Background(), &domain.BankStatement{
		ID:          id,
		BusinessID:  businessID,
		FileName:    "march.csv",
		UploadedBy:  "user-1",
		UploadDate:  time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC),
		FileData:    []byte("date,description,amount,reference\n"),
		ContentType: "text/csv",
		Status:      domain.StatementUploaded,
	})
	if err != nil {
		t.Fatalf("CreateStatement: %v", err)
	}
}

func seedTransaction(t *testing.T, s *Store, id, statementID, businessID string) {
	t.Helper()
	err := s.InsertTransactions(context.Background(), []domain.BankTransaction{{
		ID:              id,
		BankStatementID: statementID,
		BusinessID:      businessID,
		TxnDate:         time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		Amount:          decimal.NewFromFloat(150.75),
		Direction:       domain.DirectionDebit,
		Description:     "COFFEE SHOP",
		CreatedAt:       time.Now().UTC(),
	}})
	if err != nil {
		t.Fatalf("InsertTransactions: %v", err)
	}
}

func TestStatementRoundTrip(t *testing.T) {
	s := newTestStore(t)
	seedStatement(t, s, "st-1", "biz-1")

	got, err := s.GetStatement(context.Background(), "biz-1", "st-1")
	if err != nil {
		t.Fatalf("GetStatement: %v", err)
	}
	if got.FileName != "march.csv" || got.Status != domain.StatementUploaded {
		t.Errorf("got statement %+v", got)
	}
	if len(got.FileData) == 0 {
		t.Error("file payload not persisted")
	}
}

func TestGetStatementWrongBusiness(t *testing.T) {
	s := newTestStore(t)
	seedStatement(t, s, "st-1", "biz-1")

	_, err := s.GetStatement(context.Background(), "biz-2", "st-1")
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("want ErrNotFound for foreign business, got %v", err)
	}
}

func TestDeleteStatementCascades(t *testing.T) {
	s := newTestStore(t)
	seedStatement(t, s, "st-1", "biz-1")
	seedTransaction(t, s, "tx-1", "st-1", "biz-1")

	if err := s.DeleteStatement(context.Background(), "biz-1", "st-1"); err != nil {
		t.Fatalf("DeleteStatement: %v", err)
	}

	count, err := s.CountTransactions(context.Background(), "st-1")
	if err != nil {
		t.Fatalf("CountTransactions: %v", err)
	}
	if count != 0 {
		t.Errorf("transactions survived cascade delete: %d", count)
	}
}

func TestListStatementsPagination(t *testing.T) {
	s := newTestStore(t)
	seedStatement(t, s, "st-1", "biz-1")
	seedStatement(t, s, "st-2", "biz-1")
	seedStatement(t, s, "st-other", "biz-2")
	seedTransaction(t, s, "tx-1", "st-1", "biz-1")

	summaries, total, err := s.ListStatements(context.Background(), "biz-1", 1, 1)
	if err != nil {
		t.Fatalf("ListStatements: %v", err)
	}
	if total != 2 {
		t.Errorf("got total %d, want 2", total)
	}
	if len(summaries) != 1 {
		t.Fatalf("got %d rows, want 1", len(summaries))
	}
}

func TestListTransactionsFiltering(t *testing.T) {
	s := newTestStore(t)
	seedStatement(t, s, "st-1", "biz-1")
	seedTransaction(t, s, "tx-1", "st-1", "biz-1")

	if err := s.UpdateTransactionPrediction(context.Background(), "tx-1", "Meals", 0.8); err != nil {
		t.Fatalf("UpdateTransactionPrediction: %v", err)
	}

	txns, total, err := s.ListTransactions(context.Background(), "biz-1", domain.TransactionFilter{
		Category: "Meals",
		Page:     1,
		PageSize: 20,
	})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if total != 1 || len(txns) != 1 {
		t.Fatalf("got total=%d len=%d, want 1/1", total, len(txns))
	}
	if txns[0].AiCategory != "Meals" || !txns[0].Amount.Equal(decimal.NewFromFloat(150.75)) {
		t.Errorf("got transaction %+v", txns[0])
	}

	// No match for a different category.
	_, total, err = s.ListTransactions(context.Background(), "biz-1", domain.TransactionFilter{
		Category: "Travel",
		Page:     1,
		PageSize: 20,
	})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if total != 0 {
		t.Errorf("got total %d, want 0", total)
	}
}

func TestUpdateTransactionPredictionsAllOrNothing(t *testing.T) {
	s := newTestStore(t)
	seedStatement(t, s, "st-1", "biz-1")
	seedTransaction(t, s, "tx-1", "st-1", "biz-1")

	err := s.UpdateTransactionPredictions(context.Background(), []port.PredictionUpdate{
		{TransactionID: "tx-1", Category: "Meals", Confidence: 0.9},
		{TransactionID: "tx-missing", Category: "Travel", Confidence: 0.7},
	})
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("want ErrNotFound for missing id, got %v", err)
	}

	// The valid update must have been rolled back with the batch.
	got, err := s.GetTransaction(context.Background(), "biz-1", "tx-1")
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if got.AiCategory != "" {
		t.Errorf("partial batch applied: category %q", got.AiCategory)
	}
}

func TestFeedbackAndAudit(t *testing.T) {
	s := newTestStore(t)
	seedStatement(t, s, "st-1", "biz-1")
	seedTransaction(t, s, "tx-1", "st-1", "biz-1")

	if err := s.SetFeedbackCategory(context.Background(), "tx-1", "Travel"); err != nil {
		t.Fatalf("SetFeedbackCategory: %v", err)
	}
	if err := s.SaveFeedback(context.Background(), &domain.AiFeedback{
		ID:              "fb-1",
		TransactionID:   "tx-1",
		CorrectCategory: "Travel",
		SubmittedAt:     time.Now().UTC(),
	}); err != nil {
		t.Fatalf("SaveFeedback: %v", err)
	}
	if err := s.RecordAudit(context.Background(), &domain.AuditEvent{
		ID:        "au-1",
		Action:    "TransactionFeedback",
		Timestamp: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("RecordAudit: %v", err)
	}

	got, err := s.GetTransaction(context.Background(), "biz-1", "tx-1")
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if got.FeedbackCategory != "Travel" {
		t.Errorf("got feedback category %q", got.FeedbackCategory)
	}
}
