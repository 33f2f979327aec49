package service_test

import (
	"context"

	"github.com/finlight-sa/finlight-api/internal/domain"
	"github.com/finlight-sa/finlight-api/internal/port"
)

// --- Mocks ---

// mockStore is an in-memory port.StatementStore with per-method error
// overrides for failure scenarios.
type mockStore struct {
	statements   map[string]*domain.BankStatement
	transactions map[string]*domain.BankTransaction
	feedback     []*domain.AiFeedback

	createErr  error
	insertErr  error
	updateErr  error
	predictErr error

	statusUpdates     []domain.StatementStatus
	appliedBatches    [][]port.PredictionUpdate
	insertedBatchSize int
}

func newMockStore() *mockStore {
	return &mockStore{
		statements:   map[string]*domain.BankStatement{},
		transactions: map[string]*domain.BankTransaction{},
	}
}

func (m *mockStore) CreateStatement(_ context.Context, st *domain.BankStatement) error {
	if m.createErr != nil {
		return m.createErr
	}
	cp := *st
	m.statements[st.ID] = &cp
	return nil
}

func (m *mockStore) GetStatement(_ context.Context, businessID, id string) (*domain.BankStatement, error) {
	st, ok := m.statements[id]
	if !ok || st.BusinessID != businessID {
		return nil, &domain.ErrNotFound{Resource: "statement", ID: id}
	}
	cp := *st
	return &cp, nil
}

func (m *mockStore) ListStatements(_ context.Context, businessID string, page, pageSize int) ([]domain.StatementSummary, int, error) {
	summaries := []domain.StatementSummary{}
	for _, st := range m.statements {
		if st.BusinessID != businessID {
			continue
		}
		summaries = append(summaries, domain.StatementSummary{
			ID: st.ID, FileName: st.FileName, UploadDate: st.UploadDate, Status: st.Status,
		})
	}
	return summaries, len(summaries), nil
}

func (m *mockStore) UpdateStatementStatus(_ context.Context, id string, status domain.StatementStatus) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	st, ok := m.statements[id]
	if !ok {
		return &domain.ErrNotFound{Resource: "statement", ID: id}
	}
	st.Status = status
	m.statusUpdates = append(m.statusUpdates, status)
	return nil
}

func (m *mockStore) DeleteStatement(_ context.Context, businessID, id string) error {
	st, ok := m.statements[id]
	if !ok || st.BusinessID != businessID {
		return &domain.ErrNotFound{Resource: "statement", ID: id}
	}
	delete(m.statements, id)
	for txID, tx := range m.transactions {
		if tx.BankStatementID == id {
			delete(m.transactions, txID)
		}
	}
	return nil
}

func (m *mockStore) InsertTransactions(_ context.Context, txns []domain.BankTransaction) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.insertedBatchSize = len(txns)
	for i := range txns {
		cp := txns[i]
		m.transactions[cp.ID] = &cp
	}
	return nil
}

func (m *mockStore) CountTransactions(_ context.Context, statementID string) (int, error) {
	count := 0
	for _, tx := range m.transactions {
		if tx.BankStatementID == statementID {
			count++
		}
	}
	return count, nil
}

func (m *mockStore) ListTransactions(_ context.Context, businessID string, f domain.TransactionFilter) ([]domain.BankTransaction, int, error) {
	txns := []domain.BankTransaction{}
	for _, tx := range m.transactions {
		if tx.BusinessID != businessID {
			continue
		}
		if f.Category != "" && tx.AiCategory != f.Category {
			continue
		}
		if f.BankStatementID != "" && tx.BankStatementID != f.BankStatementID {
			continue
		}
		txns = append(txns, *tx)
	}
	return txns, len(txns), nil
}

func (m *mockStore) GetTransaction(_ context.Context, businessID, id string) (*domain.BankTransaction, error) {
	tx, ok := m.transactions[id]
	if !ok || tx.BusinessID != businessID {
		return nil, &domain.ErrNotFound{Resource: "transaction", ID: id}
	}
	cp := *tx
	return &cp, nil
}

func (m *mockStore) GetTransactionsByIDs(_ context.Context, businessID string, ids []string) ([]domain.BankTransaction, error) {
	txns := []domain.BankTransaction{}
	for _, id := range ids {
		if tx, ok := m.transactions[id]; ok && tx.BusinessID == businessID {
			txns = append(txns, *tx)
		}
	}
	return txns, nil
}

func (m *mockStore) UpdateTransactionPrediction(_ context.Context, id, category string, confidence float64) error {
	if m.predictErr != nil {
		return m.predictErr
	}
	tx, ok := m.transactions[id]
	if !ok {
		return &domain.ErrNotFound{Resource: "transaction", ID: id}
	}
	tx.AiCategory = category
	tx.ConfidenceScore = &confidence
	return nil
}

func (m *mockStore) UpdateTransactionPredictions(_ context.Context, updates []port.PredictionUpdate) error {
	if m.predictErr != nil {
		return m.predictErr
	}
	for _, u := range updates {
		if _, ok := m.transactions[u.TransactionID]; !ok {
			return &domain.ErrNotFound{Resource: "transaction", ID: u.TransactionID}
		}
	}
	for _, u := range updates {
		tx := m.transactions[u.TransactionID]
		tx.AiCategory = u.Category
		confidence := u.Confidence
		tx.ConfidenceScore = &confidence
	}
	m.appliedBatches = append(m.appliedBatches, updates)
	return nil
}

func (m *mockStore) SetFeedbackCategory(_ context.Context, id, category string) error {
	tx, ok := m.transactions[id]
	if !ok {
		return &domain.ErrNotFound{Resource: "transaction", ID: id}
	}
	tx.FeedbackCategory = category
	return nil
}

func (m *mockStore) UpdateTransactionDetails(_ context.Context, id string, description, reference string) error {
	tx, ok := m.transactions[id]
	if !ok {
		return &domain.ErrNotFound{Resource: "transaction", ID: id}
	}
	tx.Description = description
	tx.Reference = reference
	return nil
}

func (m *mockStore) SaveFeedback(_ context.Context, fb *domain.AiFeedback) error {
	m.feedback = append(m.feedback, fb)
	return nil
}

type mockCategorizer struct {
	prediction *domain.CategoryPrediction
	batch      []domain.CategoryPrediction
	err        error

	feedbackErr   error
	feedbackCalls []domain.FeedbackSubmission
	batchCalls    int
}

func (m *mockCategorizer) Categorize(_ context.Context, _ domain.CategorizationRequest) (*domain.CategoryPrediction, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.prediction, nil
}

func (m *mockCategorizer) CategorizeBatch(_ context.Context, reqs []domain.CategorizationRequest) ([]domain.CategoryPrediction, error) {
	m.batchCalls++
	if m.err != nil {
		return nil, m.err
	}
	return m.batch, nil
}

func (m *mockCategorizer) SubmitFeedback(_ context.Context, fb domain.FeedbackSubmission) error {
	if m.feedbackErr != nil {
		return m.feedbackErr
	}
	m.feedbackCalls = append(m.feedbackCalls, fb)
	return nil
}

func (m *mockCategorizer) Health(_ context.Context) error { return m.err }

type mockExtractor struct {
	extraction    *domain.DocumentExtraction
	err           error
	calls         int
	documentTypes []string
}

func (m *mockExtractor) Extract(_ context.Context, _ []byte, documentType string) (*domain.DocumentExtraction, error) {
	m.calls++
	m.documentTypes = append(m.documentTypes, documentType)
	if m.err != nil {
		return nil, m.err
	}
	return m.extraction, nil
}

type mockAudit struct {
	events []*domain.AuditEvent
	err    error
}

func (m *mockAudit) RecordAudit(_ context.Context, e *domain.AuditEvent) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, e)
	return nil
}
