// Package sqlite is the local, single-file data backend. It backs
// development setups and self-hosted installs where Supabase is not
// configured, and the integration tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/finlight-sa/finlight-api/internal/domain"
	"github.com/finlight-sa/finlight-api/internal/port"
)

const schema = `
CREATE TABLE IF NOT EXISTS bank_statements (
	id TEXT PRIMARY KEY,
	business_id TEXT NOT NULL,
	file_name TEXT NOT NULL,
	uploaded_by TEXT NOT NULL DEFAULT '',
	upload_date TEXT NOT NULL,
	file_data BLOB NOT NULL,
	content_type TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_statements_business ON bank_statements(business_id, upload_date DESC);

CREATE TABLE IF NOT EXISTS bank_transactions (
	id TEXT PRIMARY KEY,
	bank_statement_id TEXT NOT NULL REFERENCES bank_statements(id) ON DELETE CASCADE,
	business_id TEXT NOT NULL,
	txn_date TEXT NOT NULL,
	amount TEXT NOT NULL,
	direction TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	reference TEXT NOT NULL DEFAULT '',
	ai_category TEXT NOT NULL DEFAULT '',
	confidence_score REAL,
	feedback_category TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_statement ON bank_transactions(bank_statement_id);
CREATE INDEX IF NOT EXISTS idx_transactions_business ON bank_transactions(business_id, txn_date DESC);

CREATE TABLE IF NOT EXISTS ai_feedback (
	id TEXT PRIMARY KEY,
	transaction_id TEXT NOT NULL,
	predicted_category TEXT NOT NULL DEFAULT '',
	correct_category TEXT NOT NULL,
	confidence_score REAL NOT NULL DEFAULT 0,
	submitted_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_logs (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL DEFAULT '',
	business_id TEXT NOT NULL DEFAULT '',
	action TEXT NOT NULL,
	module TEXT NOT NULL DEFAULT '',
	record_id TEXT NOT NULL DEFAULT '',
	details TEXT NOT NULL DEFAULT '',
	timestamp TEXT NOT NULL
);
`

// Store implements port.StatementStore and port.AuditSink on a local
// SQLite database.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// New opens (or creates) the database at path and applies the schema.
// Use ":memory:" for an ephemeral database.
func New(path string, logger *zap.Logger) (*Store, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The sqlite driver serializes writes anyway; one connection avoids
	// SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.Info("sqlite store ready", zap.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- Statements ---

func (s *Store) CreateStatement(ctx context.Context, st *domain.BankStatement) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bank_statements (id, business_id, file_name, uploaded_by, upload_date, file_data, content_type, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.BusinessID, st.FileName, st.UploadedBy,
		st.UploadDate.Format(time.RFC3339), st.FileData, st.ContentType, string(st.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to insert statement: %w", err)
	}
	return nil
}

func (s *Store) GetStatement(ctx context.Context, businessID, id string) (*domain.BankStatement, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, business_id, file_name, uploaded_by, upload_date, file_data, content_type, status
		 FROM bank_statements WHERE id = ? AND business_id = ?`,
		id, businessID,
	)

	var (
		st         domain.BankStatement
		uploadDate string
		status     string
	)
	err := row.Scan(&st.ID, &st.BusinessID, &st.FileName, &st.UploadedBy,
		&uploadDate, &st.FileData, &st.ContentType, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "statement", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read statement: %w", err)
	}

	st.UploadDate, _ = time.Parse(time.RFC3339, uploadDate)
	st.Status = domain.StatementStatus(status)
	return &st, nil
}

func (s *Store) ListStatements(ctx context.Context, businessID string, page, pageSize int) ([]domain.StatementSummary, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bank_statements WHERE business_id = ?`, businessID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count statements: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.file_name, s.upload_date, s.status,
		        (SELECT COUNT(*) FROM bank_transactions t WHERE t.bank_statement_id = s.id)
		 FROM bank_statements s
		 WHERE s.business_id = ?
		 ORDER BY s.upload_date DESC
		 LIMIT ? OFFSET ?`,
		businessID, pageSize, (page-1)*pageSize,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list statements: %w", err)
	}
	defer rows.Close()

	summaries := []domain.StatementSummary{}
	for rows.Next() {
		var (
			sum        domain.StatementSummary
			uploadDate string
			status     string
		)
		if err := rows.Scan(&sum.ID, &sum.FileName, &uploadDate, &status, &sum.TransactionCount); err != nil {
			return nil, 0, fmt.Errorf("failed to scan statement: %w", err)
		}
		sum.UploadDate, _ = time.Parse(time.RFC3339, uploadDate)
		sum.Status = domain.StatementStatus(status)
		summaries = append(summaries, sum)
	}
	return summaries, total, rows.Err()
}

func (s *Store) UpdateStatementStatus(ctx context.Context, id string, status domain.StatementStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE bank_statements SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update statement status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &domain.ErrNotFound{Resource: "statement", ID: id}
	}
	return nil
}

func (s *Store) DeleteStatement(ctx context.Context, businessID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM bank_statements WHERE id = ? AND business_id = ?`, id, businessID)
	if err != nil {
		return fmt.Errorf("failed to delete statement: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &domain.ErrNotFound{Resource: "statement", ID: id}
	}
	return nil
}

// --- Transactions ---

const txnColumns = `id, bank_statement_id, business_id, txn_date, amount, direction,
	description, reference, ai_category, confidence_score, feedback_category, created_at`

func scanTransaction(scan func(...any) error) (domain.BankTransaction, error) {
	var (
		t         domain.BankTransaction
		txnDate   string
		amount    string
		direction string
		createdAt string
	)
	err := scan(&t.ID, &t.BankStatementID, &t.BusinessID, &txnDate, &amount, &direction,
		&t.Description, &t.Reference, &t.AiCategory, &t.ConfidenceScore, &t.FeedbackCategory, &createdAt)
	if err != nil {
		return domain.BankTransaction{}, err
	}

	t.TxnDate, _ = time.Parse(time.RFC3339, txnDate)
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	t.Direction = domain.Direction(direction)
	t.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return domain.BankTransaction{}, fmt.Errorf("failed to decode amount %q: %w", amount, err)
	}
	return t, nil
}

func (s *Store) InsertTransactions(ctx context.Context, txns []domain.BankTransaction) error {
	if len(txns) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO bank_transactions (`+txnColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range txns {
		_, err := stmt.ExecContext(ctx,
			t.ID, t.BankStatementID, t.BusinessID,
			t.TxnDate.Format(time.RFC3339), t.Amount.String(), string(t.Direction),
			t.Description, t.Reference, t.AiCategory, t.ConfidenceScore,
			t.FeedbackCategory, t.CreatedAt.Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("failed to insert transaction %s: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

func (s *Store) CountTransactions(ctx context.Context, statementID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bank_transactions WHERE bank_statement_id = ?`, statementID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

func (s *Store) ListTransactions(ctx context.Context, businessID string, f domain.TransactionFilter) ([]domain.BankTransaction, int, error) {
	where := []string{"business_id = ?"}
	args := []any{businessID}

	if f.BankStatementID != "" {
		where = append(where, "bank_statement_id = ?")
		args = append(args, f.BankStatementID)
	}
	if f.Category != "" {
		where = append(where, "ai_category = ?")
		args = append(args, f.Category)
	}
	if f.StartDate != nil {
		where = append(where, "txn_date >= ?")
		args = append(args, f.StartDate.Format(time.RFC3339))
	}
	if f.EndDate != nil {
		where = append(where, "txn_date <= ?")
		args = append(args, f.EndDate.Format(time.RFC3339))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bank_transactions WHERE `+clause, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	query := `SELECT ` + txnColumns + ` FROM bank_transactions WHERE ` + clause +
		` ORDER BY txn_date DESC LIMIT ? OFFSET ?`
	args = append(args, f.PageSize, (f.Page-1)*f.PageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	txns := []domain.BankTransaction{}
	for rows.Next() {
		t, err := scanTransaction(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		txns = append(txns, t)
	}
	return txns, total, rows.Err()
}

func (s *Store) GetTransaction(ctx context.Context, businessID, id string) (*domain.BankTransaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+txnColumns+` FROM bank_transactions WHERE id = ? AND business_id = ?`,
		id, businessID,
	)
	t, err := scanTransaction(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "transaction", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read transaction: %w", err)
	}
	return &t, nil
}

func (s *Store) GetTransactionsByIDs(ctx context.Context, businessID string, ids []string) ([]domain.BankTransaction, error) {
	if len(ids) == 0 {
		return []domain.BankTransaction{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, businessID)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+txnColumns+` FROM bank_transactions WHERE business_id = ? AND id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}
	defer rows.Close()

	txns := []domain.BankTransaction{}
	for rows.Next() {
		t, err := scanTransaction(rows.Scan)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

func (s *Store) UpdateTransactionPrediction(ctx context.Context, id, category string, confidence float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE bank_transactions SET ai_category = ?, confidence_score = ? WHERE id = ?`,
		category, confidence, id)
	if err != nil {
		return fmt.Errorf("failed to update prediction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &domain.ErrNotFound{Resource: "transaction", ID: id}
	}
	return nil
}

// UpdateTransactionPredictions applies all updates in one database
// transaction: any failure rolls the whole batch back.
func (s *Store) UpdateTransactionPredictions(ctx context.Context, updates []port.PredictionUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, u := range updates {
		res, err := tx.ExecContext(ctx,
			`UPDATE bank_transactions SET ai_category = ?, confidence_score = ? WHERE id = ?`,
			u.Category, u.Confidence, u.TransactionID)
		if err != nil {
			return fmt.Errorf("failed to update prediction for %s: %w", u.TransactionID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return &domain.ErrNotFound{Resource: "transaction", ID: u.TransactionID}
		}
	}
	return tx.Commit()
}

func (s *Store) SetFeedbackCategory(ctx context.Context, id, category string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE bank_transactions SET feedback_category = ? WHERE id = ?`, category, id)
	if err != nil {
		return fmt.Errorf("failed to set feedback category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &domain.ErrNotFound{Resource: "transaction", ID: id}
	}
	return nil
}

func (s *Store) UpdateTransactionDetails(ctx context.Context, id string, description, reference string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE bank_transactions SET description = ?, reference = ? WHERE id = ?`,
		description, reference, id)
	if err != nil {
		return fmt.Errorf("failed to update transaction details: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &domain.ErrNotFound{Resource: "transaction", ID: id}
	}
	return nil
}

func (s *Store) SaveFeedback(ctx context.Context, fb *domain.AiFeedback) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ai_feedback (id, transaction_id, predicted_category, correct_category, confidence_score, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		fb.ID, fb.TransactionID, fb.PredictedCategory, fb.CorrectCategory,
		fb.ConfidenceScore, fb.SubmittedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}
	return nil
}

// --- Audit sink ---

func (s *Store) RecordAudit(ctx context.Context, e *domain.AuditEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, user_id, business_id, action, module, record_id, details, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.BusinessID, e.Action, e.Module, e.RecordID, e.Details,
		e.Timestamp.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}
