// Package domain holds the core types of the statement ingestion and
// categorization pipeline: statements, transactions, predictions and the
// DTOs exposed on the HTTP surface.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// StatementStatus is the lifecycle state of an uploaded bank statement.
type StatementStatus string

const (
	StatementUploaded   StatementStatus = "Uploaded"
	StatementProcessing StatementStatus = "Processing"
	StatementProcessed  StatementStatus = "Processed"
	StatementFailed     StatementStatus = "Failed"
)

// CanAdvanceTo reports whether the transition s -> next is allowed.
// Uploaded and Failed statements may enter Processing (Failed permits a
// retry), a run ends in Processed or Failed, and an interrupted run may be
// restarted. Processed is terminal.
func (s StatementStatus) CanAdvanceTo(next StatementStatus) bool {
	switch s {
	case StatementUploaded, StatementFailed:
		return next == StatementProcessing
	case StatementProcessing:
		return next == StatementProcessed || next == StatementFailed || next == StatementProcessing
	default:
		return false
	}
}

// Direction tells whether a transaction increases or decreases the balance.
type Direction string

const (
	DirectionCredit Direction = "Credit"
	DirectionDebit  Direction = "Debit"
)

// BankStatement is one uploaded statement file plus its lifecycle state.
type BankStatement struct {
	ID          string
	BusinessID  string
	FileName    string
	UploadedBy  string
	UploadDate  time.Time
	FileData    []byte
	ContentType string
	Status      StatementStatus
}

// BankTransaction is one line item extracted from a statement.
// Amount is always a non-negative magnitude; the sign lives in Direction.
// The statement is referenced by id only, never by an owning pointer.
type BankTransaction struct {
	ID               string
	BankStatementID  string
	BusinessID       string
	TxnDate          time.Time
	Amount           decimal.Decimal
	Direction        Direction
	Description      string
	Reference        string
	AiCategory       string
	ConfidenceScore  *float64
	FeedbackCategory string
	CreatedAt        time.Time
}

// TransactionDraft is a parsed transaction that has not been persisted yet.
type TransactionDraft struct {
	TxnDate     time.Time
	Amount      decimal.Decimal
	Direction   Direction
	Description string
	Reference   string
}

// CategorizationRequest is the transient payload sent to the categorizer.
type CategorizationRequest struct {
	Description string
	Amount      decimal.Decimal
	Direction   Direction
}

// CategoryPrediction is the categorizer's answer for one transaction.
type CategoryPrediction struct {
	Category     string
	Confidence   float64
	Alternatives []CategoryAlternative
}

// CategoryAlternative is a lower-ranked candidate category.
type CategoryAlternative struct {
	Category   string
	Confidence float64
}

// FeedbackSubmission is a user correction relayed to the categorizer.
type FeedbackSubmission struct {
	Description       string
	PredictedCategory string
	CorrectCategory   string
	Amount            decimal.Decimal
}

// AiFeedback is the locally persisted record of a user correction.
type AiFeedback struct {
	ID                string
	TransactionID     string
	PredictedCategory string
	CorrectCategory   string
	ConfidenceScore   float64
	SubmittedAt       time.Time
}

// DocumentExtraction is the result of the remote document-extraction service.
type DocumentExtraction struct {
	Vendor     string
	Amount     decimal.Decimal
	Date       string
	VatAmount  decimal.Decimal
	RawText    string
	Confidence float64
	Items      []ExtractedItem
}

// ExtractedItem is one line item recognized in a document.
type ExtractedItem struct {
	Description       string
	Quantity          int
	UnitPrice         decimal.Decimal
	Total             decimal.Decimal
	SuggestedCategory string
}

// AuditEvent is a write-only record handed to the audit sink.
type AuditEvent struct {
	ID         string
	UserID     string
	BusinessID string
	Action     string
	Module     string
	RecordID   string
	Details    string
	Timestamp  time.Time
}

// TransactionFilter narrows a transaction listing.
type TransactionFilter struct {
	BankStatementID string
	Category        string
	StartDate       *time.Time
	EndDate         *time.Time
	Page            int
	PageSize        int
}

// ============================================================
// HTTP surface DTOs
// ============================================================

// StatementDTO is the statement summary returned by the API.
type StatementDTO struct {
	ID               string    `json:"id"`
	FileName         string    `json:"fileName"`
	UploadDate       time.Time `json:"uploadDate"`
	Status           string    `json:"status"`
	TransactionCount int       `json:"transactionCount"`
}

// StatementSummary is a statement-plus-count listing row from the store.
type StatementSummary struct {
	ID               string
	FileName         string
	UploadDate       time.Time
	Status           StatementStatus
	TransactionCount int
}

// TransactionDTO is the wire form of a transaction.
type TransactionDTO struct {
	ID               string    `json:"id"`
	BankStatementID  string    `json:"bankStatementId"`
	TxnDate          time.Time `json:"txnDate"`
	Amount           float64   `json:"amount"`
	Direction        string    `json:"direction"`
	Description      string    `json:"description"`
	Reference        string    `json:"reference,omitempty"`
	AiCategory       string    `json:"aiCategory,omitempty"`
	ConfidenceScore  *float64  `json:"confidenceScore,omitempty"`
	FeedbackCategory string    `json:"feedbackCategory,omitempty"`
}

// ToDTO converts a transaction to its wire form.
func (t *BankTransaction) ToDTO() TransactionDTO {
	return TransactionDTO{
		ID:               t.ID,
		BankStatementID:  t.BankStatementID,
		TxnDate:          t.TxnDate,
		Amount:           t.Amount.InexactFloat64(),
		Direction:        string(t.Direction),
		Description:      t.Description,
		Reference:        t.Reference,
		AiCategory:       t.AiCategory,
		ConfidenceScore:  t.ConfidenceScore,
		FeedbackCategory: t.FeedbackCategory,
	}
}

// ProcessResult reports the outcome of processing a statement.
type ProcessResult struct {
	Success          bool   `json:"success"`
	Message          string `json:"message"`
	TransactionCount int    `json:"transactionCount"`
}

// PaginatedResponse wraps a page of items.
type PaginatedResponse[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalCount int `json:"totalCount"`
	TotalPages int `json:"totalPages"`
}

// NewPaginatedResponse computes TotalPages from the count and page size.
func NewPaginatedResponse[T any](items []T, page, pageSize, totalCount int) PaginatedResponse[T] {
	totalPages := 0
	if pageSize > 0 {
		totalPages = (totalCount + pageSize - 1) / pageSize
	}
	return PaginatedResponse[T]{
		Items:      items,
		Page:       page,
		PageSize:   pageSize,
		TotalCount: totalCount,
		TotalPages: totalPages,
	}
}
