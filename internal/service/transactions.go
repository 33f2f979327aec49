package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/finlight-sa/finlight-api/internal/domain"
	"github.com/finlight-sa/finlight-api/internal/infra/observability"
	"github.com/finlight-sa/finlight-api/internal/port"
)

var txnTracer = otel.Tracer("service/transactions")

// TransactionService owns listing, categorization and the feedback loop.
type TransactionService struct {
	store       port.StatementStore
	categorizer port.Categorizer
	audit       port.AuditSink
	cache       port.Cache[domain.CategoryPrediction]
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// NewTransactionService creates a transaction service. The cache holds
// recent predictions keyed by description and direction.
func NewTransactionService(
	store port.StatementStore,
	categorizer port.Categorizer,
	audit port.AuditSink,
	cache port.Cache[domain.CategoryPrediction],
	metrics *observability.Metrics,
	logger *zap.Logger,
) *TransactionService {
	return &TransactionService{
		store:       store,
		categorizer: categorizer,
		audit:       audit,
		cache:       cache,
		metrics:     metrics,
		logger:      logger,
	}
}

// List returns one filtered page of the business's transactions.
func (s *TransactionService) List(ctx context.Context, businessID string, f domain.TransactionFilter) (*domain.PaginatedResponse[domain.TransactionDTO], error) {
	ctx, span := txnTracer.Start(ctx, "TransactionService.List")
	defer span.End()

	txns, total, err := s.store.ListTransactions(ctx, businessID, f)
	if err != nil {
		return nil, err
	}

	dtos := make([]domain.TransactionDTO, 0, len(txns))
	for i := range txns {
		dtos = append(dtos, txns[i].ToDTO())
	}
	resp := domain.NewPaginatedResponse(dtos, f.Page, f.PageSize, total)
	return &resp, nil
}

// Get returns one transaction.
func (s *TransactionService) Get(ctx context.Context, businessID, id string) (*domain.BankTransaction, error) {
	ctx, span := txnTracer.Start(ctx, "TransactionService.Get")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", id))

	return s.store.GetTransaction(ctx, businessID, id)
}

func predictionCacheKey(description string, direction domain.Direction) string {
	return fmt.Sprintf("%s|%s", description, direction)
}

// Categorize asks the AI service for a category for one transaction and
// persists the prediction. Categorization failures are soft: the
// transaction is returned unchanged and the error is not propagated.
func (s *TransactionService) Categorize(ctx context.Context, businessID, id string) (*domain.BankTransaction, error) {
	ctx, span := txnTracer.Start(ctx, "TransactionService.Categorize")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", id))

	txn, err := s.store.GetTransaction(ctx, businessID, id)
	if err != nil {
		return nil, err
	}

	key := predictionCacheKey(txn.Description, txn.Direction)
	pred, ok := s.cache.Get(key)
	if ok {
		s.metrics.IncrCacheHit("predictions")
	} else {
		s.metrics.IncrCacheMiss("predictions")
		p, err := s.categorizer.Categorize(ctx, domain.CategorizationRequest{
			Description: txn.Description,
			Amount:      txn.Amount,
			Direction:   txn.Direction,
		})
		if err != nil {
			s.metrics.IncrCategorization("single", "failure")
			s.logger.Warn("categorization unavailable, transaction left unchanged",
				zap.String("transaction_id", id),
				zap.Error(err),
			)
			return txn, nil
		}
		pred = *p
		s.cache.Set(key, pred)
	}

	if err := s.store.UpdateTransactionPrediction(ctx, id, pred.Category, pred.Confidence); err != nil {
		return nil, err
	}

	s.metrics.IncrCategorization("single", "success")
	txn.AiCategory = pred.Category
	confidence := pred.Confidence
	txn.ConfidenceScore = &confidence
	return txn, nil
}

// CategorizeBatch categorizes a set of transactions in one AI call. The
// predictions are applied all-or-nothing: a failed call, or a response
// whose length does not match, discards every update.
func (s *TransactionService) CategorizeBatch(ctx context.Context, businessID string, ids []string) ([]domain.BankTransaction, error) {
	ctx, span := txnTracer.Start(ctx, "TransactionService.CategorizeBatch")
	defer span.End()
	span.SetAttributes(attribute.Int("batch.size", len(ids)))

	if len(ids) == 0 {
		return nil, &domain.ErrValidation{Field: "transactionIds", Message: "at least one transaction id is required"}
	}

	txns, err := s.store.GetTransactionsByIDs(ctx, businessID, ids)
	if err != nil {
		return nil, err
	}
	if len(txns) == 0 {
		return nil, &domain.ErrNotFound{Resource: "transactions", ID: fmt.Sprintf("%d ids", len(ids))}
	}

	reqs := make([]domain.CategorizationRequest, 0, len(txns))
	for _, t := range txns {
		reqs = append(reqs, domain.CategorizationRequest{
			Description: t.Description,
			Amount:      t.Amount,
			Direction:   t.Direction,
		})
	}

	preds, err := s.categorizer.CategorizeBatch(ctx, reqs)
	if err != nil {
		s.metrics.IncrCategorization("batch", "failure")
		s.logger.Warn("batch categorization unavailable, no updates applied",
			zap.Int("transactions", len(txns)),
			zap.Error(err),
		)
		return txns, nil
	}
	if len(preds) != len(txns) {
		s.metrics.IncrCategorization("batch", "failure")
		s.logger.Warn("batch categorization length mismatch, no updates applied",
			zap.Int("transactions", len(txns)),
			zap.Int("predictions", len(preds)),
		)
		return txns, nil
	}

	updates := make([]port.PredictionUpdate, 0, len(txns))
	for i, p := range preds {
		updates = append(updates, port.PredictionUpdate{
			TransactionID: txns[i].ID,
			Category:      p.Category,
			Confidence:    p.Confidence,
		})
	}
	if err := s.store.UpdateTransactionPredictions(ctx, updates); err != nil {
		return nil, err
	}

	s.metrics.IncrCategorization("batch", "success")
	for i := range txns {
		txns[i].AiCategory = preds[i].Category
		confidence := preds[i].Confidence
		txns[i].ConfidenceScore = &confidence
	}
	return txns, nil
}

// Feedback relays a user's category correction to the AI service and, only
// after the relay succeeds, records it locally: corrected category on the
// transaction, a feedback row and an audit entry. A failed relay mutates
// nothing.
func (s *TransactionService) Feedback(ctx context.Context, businessID, userID, id, correctCategory string) error {
	ctx, span := txnTracer.Start(ctx, "TransactionService.Feedback")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", id))

	if correctCategory == "" {
		return &domain.ErrValidation{Field: "correctCategory", Message: "correct category is required"}
	}

	txn, err := s.store.GetTransaction(ctx, businessID, id)
	if err != nil {
		return err
	}

	err = s.categorizer.SubmitFeedback(ctx, domain.FeedbackSubmission{
		Description:       txn.Description,
		PredictedCategory: txn.AiCategory,
		CorrectCategory:   correctCategory,
		Amount:            txn.Amount,
	})
	if err != nil {
		s.metrics.IncrFeedback("failure")
		return err
	}

	if err := s.store.SetFeedbackCategory(ctx, id, correctCategory); err != nil {
		return err
	}

	confidence := 0.0
	if txn.ConfidenceScore != nil {
		confidence = *txn.ConfidenceScore
	}
	fb := &domain.AiFeedback{
		ID:                uuid.NewString(),
		TransactionID:     id,
		PredictedCategory: txn.AiCategory,
		CorrectCategory:   correctCategory,
		ConfidenceScore:   confidence,
		SubmittedAt:       time.Now().UTC(),
	}
	if err := s.store.SaveFeedback(ctx, fb); err != nil {
		return err
	}

	// A correction invalidates the cached prediction for this description.
	s.cache.Delete(predictionCacheKey(txn.Description, txn.Direction))

	s.metrics.IncrFeedback("success")
	s.recordAudit(ctx, businessID, userID, "TransactionFeedback", id,
		fmt.Sprintf("predicted %q corrected to %q", txn.AiCategory, correctCategory))
	s.logger.Info("feedback recorded",
		zap.String("transaction_id", id),
		zap.String("predicted", txn.AiCategory),
		zap.String("corrected", correctCategory),
	)
	return nil
}

// Update edits the user-facing description and reference of a transaction.
func (s *TransactionService) Update(ctx context.Context, businessID, id, description, reference string) (*domain.BankTransaction, error) {
	ctx, span := txnTracer.Start(ctx, "TransactionService.Update")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", id))

	if description == "" {
		return nil, &domain.ErrValidation{Field: "description", Message: "description is required"}
	}

	if _, err := s.store.GetTransaction(ctx, businessID, id); err != nil {
		return nil, err
	}
	if err := s.store.UpdateTransactionDetails(ctx, id, description, reference); err != nil {
		return nil, err
	}
	return s.store.GetTransaction(ctx, businessID, id)
}

func (s *TransactionService) recordAudit(ctx context.Context, businessID, userID, action, recordID, details string) {
	e := &domain.AuditEvent{
		ID:         uuid.NewString(),
		UserID:     userID,
		BusinessID: businessID,
		Action:     action,
		Module:     "BankTransactions",
		RecordID:   recordID,
		Details:    details,
		Timestamp:  time.Now().UTC(),
	}
	if err := s.audit.RecordAudit(ctx, e); err != nil {
		s.logger.Warn("audit record not written", zap.String("action", action), zap.Error(err))
	}
}
