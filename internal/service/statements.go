// Package service provides the business logic layer (use cases).
// StatementService owns the statement lifecycle: upload, processing and
// retrieval; TransactionService owns categorization and feedback.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/finlight-sa/finlight-api/internal/domain"
	"github.com/finlight-sa/finlight-api/internal/infra/observability"
	"github.com/finlight-sa/finlight-api/internal/parser"
	"github.com/finlight-sa/finlight-api/internal/port"
)

var stmtTracer = otel.Tracer("service/statements")

// StatementService orchestrates the statement lifecycle against the store
// and the remote extraction service.
type StatementService struct {
	store          port.StatementStore
	extractor      port.DocumentExtractor
	categorizer    port.Categorizer
	audit          port.AuditSink
	metrics        *observability.Metrics
	logger         *zap.Logger
	autoCategorize bool
}

// NewStatementService creates a statement service. With autoCategorize set,
// Process finishes with a best-effort batch categorization of the new rows.
func NewStatementService(
	store port.StatementStore,
	extractor port.DocumentExtractor,
	categorizer port.Categorizer,
	audit port.AuditSink,
	metrics *observability.Metrics,
	logger *zap.Logger,
	autoCategorize bool,
) *StatementService {
	return &StatementService{
		store:          store,
		extractor:      extractor,
		categorizer:    categorizer,
		audit:          audit,
		metrics:        metrics,
		logger:         logger,
		autoCategorize: autoCategorize,
	}
}

// Upload validates and persists a raw statement file in state Uploaded.
// Nothing is parsed here; processing is a separate, explicit step.
func (s *StatementService) Upload(ctx context.Context, businessID, userID, fileName, contentType string, fileData []byte) (*domain.BankStatement, error) {
	ctx, span := stmtTracer.Start(ctx, "StatementService.Upload")
	defer span.End()
	span.SetAttributes(attribute.String("statement.filename", fileName))

	if len(fileData) == 0 {
		return nil, &domain.ErrValidation{Field: "file", Message: "file is empty"}
	}
	if !domain.ExtensionAllowed(fileName) {
		return nil, &domain.ErrValidation{Field: "file", Message: "unsupported file type"}
	}

	st := &domain.BankStatement{
		ID:          uuid.NewString(),
		BusinessID:  businessID,
		FileName:    fileName,
		UploadedBy:  userID,
		UploadDate:  time.Now().UTC(),
		FileData:    fileData,
		ContentType: contentType,
		Status:      domain.StatementUploaded,
	}

	if err := s.store.CreateStatement(ctx, st); err != nil {
		return nil, err
	}

	s.metrics.IncrStatementUploaded()
	s.recordAudit(ctx, businessID, userID, "StatementUploaded", st.ID, fmt.Sprintf("file %s (%d bytes)", fileName, len(fileData)))
	s.logger.Info("statement uploaded",
		zap.String("statement_id", st.ID),
		zap.String("business_id", businessID),
		zap.String("file_name", fileName),
		zap.Int("bytes", len(fileData)),
	)
	return st, nil
}

// Process parses the stored file into transactions and moves the statement
// to Processed, or to Failed if the input is unreadable. Re-processing an
// already processed statement is rejected.
func (s *StatementService) Process(ctx context.Context, businessID, userID, id string) (*domain.ProcessResult, error) {
	ctx, span := stmtTracer.Start(ctx, "StatementService.Process")
	defer span.End()
	span.SetAttributes(attribute.String("statement.id", id))

	st, err := s.store.GetStatement(ctx, businessID, id)
	if err != nil {
		return nil, err
	}
	if len(st.FileData) == 0 {
		return nil, &domain.ErrValidation{Field: "file", Message: "statement has no file data"}
	}
	if !st.Status.CanAdvanceTo(domain.StatementProcessing) {
		return nil, &domain.ErrConflict{Message: fmt.Sprintf("statement %s is already processed", id)}
	}

	if err := s.store.UpdateStatementStatus(ctx, id, domain.StatementProcessing); err != nil {
		return nil, err
	}

	format := domain.DetectFormat(st.ContentType, st.FileName)
	span.SetAttributes(attribute.String("statement.format", format.String()))

	drafts, err := s.extractDrafts(ctx, st, format)
	if err != nil {
		// Unreadable input is terminal for the statement.
		if stErr := s.store.UpdateStatementStatus(ctx, id, domain.StatementFailed); stErr != nil {
			s.logger.Error("failed to mark statement failed", zap.String("statement_id", id), zap.Error(stErr))
		}
		s.metrics.IncrStatementProcessed("failed")
		s.logger.Warn("statement processing failed",
			zap.String("statement_id", id),
			zap.String("format", format.String()),
			zap.Error(err),
		)
		return nil, err
	}

	txns := s.materializeDrafts(st, drafts)
	if len(txns) > 0 {
		if err := s.store.InsertTransactions(ctx, txns); err != nil {
			if stErr := s.store.UpdateStatementStatus(ctx, id, domain.StatementFailed); stErr != nil {
				s.logger.Error("failed to mark statement failed", zap.String("statement_id", id), zap.Error(stErr))
			}
			s.metrics.IncrStatementProcessed("failed")
			return nil, err
		}
	}

	if err := s.store.UpdateStatementStatus(ctx, id, domain.StatementProcessed); err != nil {
		return nil, err
	}

	s.metrics.IncrStatementProcessed("processed")
	s.metrics.AddTransactionsExtracted(format.String(), len(txns))
	s.recordAudit(ctx, businessID, userID, "StatementProcessed", id, fmt.Sprintf("%d transactions extracted", len(txns)))
	s.logger.Info("statement processed",
		zap.String("statement_id", id),
		zap.String("format", format.String()),
		zap.Int("transactions", len(txns)),
	)

	if s.autoCategorize && len(txns) > 0 {
		s.autoCategorizeTransactions(ctx, txns)
	}

	return &domain.ProcessResult{
		Success:          true,
		Message:          fmt.Sprintf("Statement processed successfully, %d transactions extracted", len(txns)),
		TransactionCount: len(txns),
	}, nil
}

// extractDrafts routes the stored file by format: CSV is parsed locally,
// everything else goes to the remote extraction service. An unreachable
// extractor is a soft failure and yields zero drafts.
func (s *StatementService) extractDrafts(ctx context.Context, st *domain.BankStatement, format domain.FileFormat) ([]domain.TransactionDraft, error) {
	switch format {
	case domain.FormatCSV:
		return parser.ParseCSV(st.FileData)

	default:
		ext, err := s.extractor.Extract(ctx, st.FileData, documentTypeFor(format))
		if err != nil {
			var extErr *domain.ErrExternalService
			if errors.As(err, &extErr) {
				s.logger.Warn("document extraction unavailable, statement kept without transactions",
					zap.String("statement_id", st.ID),
					zap.Error(err),
				)
				s.metrics.IncrExternalError(extErr.Service)
				return nil, nil
			}
			return nil, err
		}
		return draftsFromExtraction(ext), nil
	}
}

// documentTypeFor maps a file format onto the document types the extraction
// service accepts (receipt, invoice, generic). PDFs get the itemized invoice
// pipeline; anything else is submitted as a generic document.
func documentTypeFor(format domain.FileFormat) string {
	if format == domain.FormatPDF {
		return "invoice"
	}
	return "generic"
}

// draftsFromExtraction maps an extraction result onto transaction drafts.
// Line items become one draft each; with no items, the document total (if
// positive) becomes a single draft.
func draftsFromExtraction(ext *domain.DocumentExtraction) []domain.TransactionDraft {
	txnDate := time.Now().UTC()
	if ext.Date != "" {
		for _, layout := range []string{"2006-01-02", "02/01/2006", time.RFC3339} {
			if t, err := time.Parse(layout, ext.Date); err == nil {
				txnDate = t
				break
			}
		}
	}

	if len(ext.Items) > 0 {
		drafts := make([]domain.TransactionDraft, 0, len(ext.Items))
		for _, item := range ext.Items {
			drafts = append(drafts, domain.TransactionDraft{
				TxnDate:     txnDate,
				Amount:      item.Total,
				Direction:   domain.DirectionDebit,
				Description: item.Description,
				Reference:   ext.Vendor,
			})
		}
		return drafts
	}

	if ext.Amount.IsPositive() {
		return []domain.TransactionDraft{{
			TxnDate:     txnDate,
			Amount:      ext.Amount,
			Direction:   domain.DirectionDebit,
			Description: ext.Vendor,
			Reference:   ext.Vendor,
		}}
	}
	return nil
}

func (s *StatementService) materializeDrafts(st *domain.BankStatement, drafts []domain.TransactionDraft) []domain.BankTransaction {
	now := time.Now().UTC()
	txns := make([]domain.BankTransaction, 0, len(drafts))
	for _, d := range drafts {
		txns = append(txns, domain.BankTransaction{
			ID:              uuid.NewString(),
			BankStatementID: st.ID,
			BusinessID:      st.BusinessID,
			TxnDate:         d.TxnDate,
			Amount:          d.Amount,
			Direction:       d.Direction,
			Description:     d.Description,
			Reference:       d.Reference,
			CreatedAt:       now,
		})
	}
	return txns
}

// autoCategorizeTransactions is a best-effort batch categorization of
// freshly extracted rows. Failures are logged and swallowed.
func (s *StatementService) autoCategorizeTransactions(ctx context.Context, txns []domain.BankTransaction) {
	reqs := make([]domain.CategorizationRequest, 0, len(txns))
	for _, t := range txns {
		reqs = append(reqs, domain.CategorizationRequest{
			Description: t.Description,
			Amount:      t.Amount,
			Direction:   t.Direction,
		})
	}

	preds, err := s.categorizer.CategorizeBatch(ctx, reqs)
	if err != nil || len(preds) != len(txns) {
		s.metrics.IncrCategorization("auto", "failure")
		s.logger.Warn("auto-categorization skipped", zap.Int("transactions", len(txns)), zap.Error(err))
		return
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
		s.metrics.IncrCategorization("auto", "failure")
		s.logger.Warn("auto-categorization not persisted", zap.Error(err))
		return
	}
	s.metrics.IncrCategorization("auto", "success")
}

// Get returns a statement summary with its transaction count.
func (s *StatementService) Get(ctx context.Context, businessID, id string) (*domain.StatementDTO, error) {
	ctx, span := stmtTracer.Start(ctx, "StatementService.Get")
	defer span.End()
	span.SetAttributes(attribute.String("statement.id", id))

	st, err := s.store.GetStatement(ctx, businessID, id)
	if err != nil {
		return nil, err
	}
	count, err := s.store.CountTransactions(ctx, id)
	if err != nil {
		return nil, err
	}
	return &domain.StatementDTO{
		ID:               st.ID,
		FileName:         st.FileName,
		UploadDate:       st.UploadDate,
		Status:           string(st.Status),
		TransactionCount: count,
	}, nil
}

// GetFile returns the stored raw file for download.
func (s *StatementService) GetFile(ctx context.Context, businessID, id string) (*domain.BankStatement, error) {
	ctx, span := stmtTracer.Start(ctx, "StatementService.GetFile")
	defer span.End()
	span.SetAttributes(attribute.String("statement.id", id))

	return s.store.GetStatement(ctx, businessID, id)
}

// List returns one page of the business's statements, newest first.
func (s *StatementService) List(ctx context.Context, businessID string, page, pageSize int) (*domain.PaginatedResponse[domain.StatementDTO], error) {
	ctx, span := stmtTracer.Start(ctx, "StatementService.List")
	defer span.End()

	summaries, total, err := s.store.ListStatements(ctx, businessID, page, pageSize)
	if err != nil {
		return nil, err
	}

	dtos := make([]domain.StatementDTO, 0, len(summaries))
	for _, sum := range summaries {
		dtos = append(dtos, domain.StatementDTO{
			ID:               sum.ID,
			FileName:         sum.FileName,
			UploadDate:       sum.UploadDate,
			Status:           string(sum.Status),
			TransactionCount: sum.TransactionCount,
		})
	}
	resp := domain.NewPaginatedResponse(dtos, page, pageSize, total)
	return &resp, nil
}

// Delete removes a statement and its transactions.
func (s *StatementService) Delete(ctx context.Context, businessID, userID, id string) error {
	ctx, span := stmtTracer.Start(ctx, "StatementService.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("statement.id", id))

	if err := s.store.DeleteStatement(ctx, businessID, id); err != nil {
		return err
	}
	s.recordAudit(ctx, businessID, userID, "StatementDeleted", id, "")
	return nil
}

func (s *StatementService) recordAudit(ctx context.Context, businessID, userID, action, recordID, details string) {
	e := &domain.AuditEvent{
		ID:         uuid.NewString(),
		UserID:     userID,
		BusinessID: businessID,
		Action:     action,
		Module:     "BankStatements",
		RecordID:   recordID,
		Details:    details,
		Timestamp:  time.Now().UTC(),
	}
	if err := s.audit.RecordAudit(ctx, e); err != nil {
		s.logger.Warn("audit record not written", zap.String("action", action), zap.Error(err))
	}
}
