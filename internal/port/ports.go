// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/finlight-sa/finlight-api/internal/domain"
)

// StatementStore is the durable store for statements and their transactions.
// Implemented by the Supabase PostgREST adapter and the local SQLite adapter.
type StatementStore interface {
	// Statements
	CreateStatement(ctx context.Context, st *domain.BankStatement) error
	GetStatement(ctx context.Context, businessID, id string) (*domain.BankStatement, error)
	ListStatements(ctx context.Context, businessID string, page, pageSize int) ([]domain.StatementSummary, int, error)
	UpdateStatementStatus(ctx context.Context, id string, status domain.StatementStatus) error
	// DeleteStatement removes the statement and cascades its transactions.
	DeleteStatement(ctx context.Context, businessID, id string) error

	// Transactions
	InsertTransactions(ctx context.Context, txns []domain.BankTransaction) error
	CountTransactions(ctx context.Context, statementID string) (int, error)
	ListTransactions(ctx context.Context, businessID string, f domain.TransactionFilter) ([]domain.BankTransaction, int, error)
	GetTransaction(ctx context.Context, businessID, id string) (*domain.BankTransaction, error)
	GetTransactionsByIDs(ctx context.Context, businessID string, ids []string) ([]domain.BankTransaction, error)
	UpdateTransactionPrediction(ctx context.Context, id, category string, confidence float64) error
	// UpdateTransactionPredictions applies a batch of prediction updates.
	// Implementations apply all updates or none.
	UpdateTransactionPredictions(ctx context.Context, updates []PredictionUpdate) error
	SetFeedbackCategory(ctx context.Context, id, category string) error
	UpdateTransactionDetails(ctx context.Context, id string, description, reference string) error

	// Feedback records
	SaveFeedback(ctx context.Context, fb *domain.AiFeedback) error
}

// PredictionUpdate pairs a transaction id with its new prediction.
type PredictionUpdate struct {
	TransactionID string
	Category      string
	Confidence    float64
}

// AuditSink records audit events. Write-only; persistence belongs elsewhere.
type AuditSink interface {
	RecordAudit(ctx context.Context, e *domain.AuditEvent) error
}

// Categorizer calls the external classification service.
// Failures are soft: callers treat an error as "leave the category unset".
type Categorizer interface {
	Categorize(ctx context.Context, req domain.CategorizationRequest) (*domain.CategoryPrediction, error)
	// CategorizeBatch preserves request order; the response has one
	// prediction per request or the call fails as a whole.
	CategorizeBatch(ctx context.Context, reqs []domain.CategorizationRequest) ([]domain.CategoryPrediction, error)
	SubmitFeedback(ctx context.Context, fb domain.FeedbackSubmission) error
	Health(ctx context.Context) error
}

// DocumentExtractor delegates non-CSV statement formats to the remote
// OCR/extraction service.
type DocumentExtractor interface {
	Extract(ctx context.Context, fileData []byte, documentType string) (*domain.DocumentExtraction, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
