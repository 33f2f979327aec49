package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/finlight-sa/finlight-api/internal/domain"
	"github.com/finlight-sa/finlight-api/internal/infra/resilience"
	"github.com/finlight-sa/finlight-api/internal/port"
)

// transactionRow maps the bank_transactions table. Amounts travel as
// strings so Postgres numeric precision survives the round trip.
type transactionRow struct {
	ID               string   `json:"id"`
	BankStatementID  string   `json:"bank_statement_id"`
	BusinessID       string   `json:"business_id"`
	TxnDate          string   `json:"txn_date"`
	Amount           string   `json:"amount"`
	Direction        string   `json:"direction"`
	Description      string   `json:"description"`
	Reference        string   `json:"reference"`
	AiCategory       string   `json:"ai_category"`
	ConfidenceScore  *float64 `json:"confidence_score"`
	FeedbackCategory string   `json:"feedback_category"`
	CreatedAt        string   `json:"created_at"`
}

func toTransactionRow(t domain.BankTransaction) transactionRow {
	return transactionRow{
		ID:               t.ID,
		BankStatementID:  t.BankStatementID,
		BusinessID:       t.BusinessID,
		TxnDate:          t.TxnDate.Format(time.RFC3339),
		Amount:           t.Amount.String(),
		Direction:        string(t.Direction),
		Description:      t.Description,
		Reference:        t.Reference,
		AiCategory:       t.AiCategory,
		ConfidenceScore:  t.ConfidenceScore,
		FeedbackCategory: t.FeedbackCategory,
		CreatedAt:        t.CreatedAt.Format(time.RFC3339),
	}
}

func fromTransactionRow(r transactionRow) (domain.BankTransaction, error) {
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return domain.BankTransaction{}, fmt.Errorf("failed to decode amount %q: %w", r.Amount, err)
	}
	return domain.BankTransaction{
		ID:               r.ID,
		BankStatementID:  r.BankStatementID,
		BusinessID:       r.BusinessID,
		TxnDate:          parseRowTime(r.TxnDate),
		Amount:           amount,
		Direction:        domain.Direction(r.Direction),
		Description:      r.Description,
		Reference:        r.Reference,
		AiCategory:       r.AiCategory,
		ConfidenceScore:  r.ConfidenceScore,
		FeedbackCategory: r.FeedbackCategory,
		CreatedAt:        parseRowTime(r.CreatedAt),
	}, nil
}

// InsertTransactions bulk-inserts all rows in one PostgREST call.
func (c *Client) InsertTransactions(ctx context.Context, txns []domain.BankTransaction) error {
	if len(txns) == 0 {
		return nil
	}

	ctx, span := tracer.Start(ctx, "Supabase.InsertTransactions")
	defer span.End()
	span.SetAttributes(attribute.Int("transactions.count", len(txns)))

	rows := make([]transactionRow, 0, len(txns))
	for _, t := range txns {
		rows = append(rows, toTransactionRow(t))
	}

	_, err := c.cb.Execute(func() (any, error) {
		_, postErr := c.doPost(ctx, "bank_transactions", rows)
		return nil, postErr
	})
	if err != nil {
		return c.wrapErr("supabase/transactions", err)
	}
	return nil
}

// CountTransactions returns the number of rows belonging to a statement.
func (c *Client) CountTransactions(ctx context.Context, statementID string) (int, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CountTransactions")
	defer span.End()

	var count int

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			path := fmt.Sprintf("bank_transactions?bank_statement_id=eq.%s&select=id&limit=1",
				url.QueryEscape(statementID))
			_, total, err := c.doGet(ctx, path, true)
			if err != nil {
				return err
			}
			count = total
			return nil
		})
	})
	if err != nil {
		return 0, c.wrapErr("supabase/transactions", err)
	}
	return count, nil
}

// ListTransactions returns one filtered page of a business's transactions,
// newest first, plus the total matching count.
func (c *Client) ListTransactions(ctx context.Context, businessID string, f domain.TransactionFilter) ([]domain.BankTransaction, int, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListTransactions")
	defer span.End()

	var (
		txns  []domain.BankTransaction
		total int
	)

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			var sb strings.Builder
			fmt.Fprintf(&sb, "bank_transactions?business_id=eq.%s", url.QueryEscape(businessID))
			if f.BankStatementID != "" {
				fmt.Fprintf(&sb, "&bank_statement_id=eq.%s", url.QueryEscape(f.BankStatementID))
			}
			if f.Category != "" {
				fmt.Fprintf(&sb, "&ai_category=eq.%s", url.QueryEscape(f.Category))
			}
			if f.StartDate != nil {
				fmt.Fprintf(&sb, "&txn_date=gte.%s", f.StartDate.Format("2006-01-02"))
			}
			if f.EndDate != nil {
				fmt.Fprintf(&sb, "&txn_date=lte.%s", f.EndDate.Format("2006-01-02"))
			}
			offset := (f.Page - 1) * f.PageSize
			fmt.Fprintf(&sb, "&order=txn_date.desc&limit=%d&offset=%d", f.PageSize, offset)

			body, count, err := c.doGet(ctx, sb.String(), true)
			if err != nil {
				return err
			}
			total = count

			txns = []domain.BankTransaction{}
			if body == nil || string(body) == "[]" {
				return nil
			}

			var rows []transactionRow
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("failed to decode transactions: %w", err)
			}
			for _, r := range rows {
				t, err := fromTransactionRow(r)
				if err != nil {
					return err
				}
				txns = append(txns, t)
			}
			return nil
		})
	})
	if err != nil {
		return nil, 0, c.wrapErr("supabase/transactions", err)
	}

	return txns, total, nil
}

// GetTransaction fetches one transaction scoped to a business.
func (c *Client) GetTransaction(ctx context.Context, businessID, id string) (*domain.BankTransaction, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", id))

	var txn *domain.BankTransaction

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			path := fmt.Sprintf("bank_transactions?id=eq.%s&business_id=eq.%s&limit=1",
				url.QueryEscape(id), url.QueryEscape(businessID))
			body, _, err := c.doGet(ctx, path, false)
			if err != nil {
				return err
			}
			if body == nil || string(body) == "[]" {
				return &domain.ErrNotFound{Resource: "transaction", ID: id}
			}

			var rows []transactionRow
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("failed to decode transaction: %w", err)
			}
			if len(rows) == 0 {
				return &domain.ErrNotFound{Resource: "transaction", ID: id}
			}
			t, err := fromTransactionRow(rows[0])
			if err != nil {
				return err
			}
			txn = &t
			return nil
		})
	})
	if err != nil {
		var notFound *domain.ErrNotFound
		if errors.As(err, &notFound) {
			return nil, notFound
		}
		return nil, c.wrapErr("supabase/transactions", err)
	}

	return txn, nil
}

// GetTransactionsByIDs fetches the given transactions scoped to a business.
// IDs not owned by the business are simply absent from the result.
func (c *Client) GetTransactionsByIDs(ctx context.Context, businessID string, ids []string) ([]domain.BankTransaction, error) {
	if len(ids) == 0 {
		return []domain.BankTransaction{}, nil
	}

	ctx, span := tracer.Start(ctx, "Supabase.GetTransactionsByIDs")
	defer span.End()
	span.SetAttributes(attribute.Int("ids.count", len(ids)))

	var txns []domain.BankTransaction

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			escaped := make([]string, 0, len(ids))
			for _, id := range ids {
				escaped = append(escaped, url.QueryEscape(id))
			}
			path := fmt.Sprintf("bank_transactions?business_id=eq.%s&id=in.(%s)",
				url.QueryEscape(businessID), strings.Join(escaped, ","))
			body, _, err := c.doGet(ctx, path, false)
			if err != nil {
				return err
			}

			txns = []domain.BankTransaction{}
			if body == nil || string(body) == "[]" {
				return nil
			}

			var rows []transactionRow
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("failed to decode transactions: %w", err)
			}
			for _, r := range rows {
				t, err := fromTransactionRow(r)
				if err != nil {
					return err
				}
				txns = append(txns, t)
			}
			return nil
		})
	})
	if err != nil {
		return nil, c.wrapErr("supabase/transactions", err)
	}

	return txns, nil
}

// UpdateTransactionPrediction stores a single prediction.
func (c *Client) UpdateTransactionPrediction(ctx context.Context, id, category string, confidence float64) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateTransactionPrediction")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", id))

	_, err := c.cb.Execute(func() (any, error) {
		path := fmt.Sprintf("bank_transactions?id=eq.%s", url.QueryEscape(id))
		return nil, c.doPatch(ctx, path, map[string]any{
			"ai_category":      category,
			"confidence_score": confidence,
		})
	})
	if err != nil {
		return c.wrapErr("supabase/transactions", err)
	}
	return nil
}

// UpdateTransactionPredictions applies a batch of predictions atomically
// through the apply_category_predictions database function; PostgREST runs
// an RPC in a single transaction, so the batch lands whole or not at all.
func (c *Client) UpdateTransactionPredictions(ctx context.Context, updates []port.PredictionUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	ctx, span := tracer.Start(ctx, "Supabase.UpdateTransactionPredictions")
	defer span.End()
	span.SetAttributes(attribute.Int("updates.count", len(updates)))

	type rpcUpdate struct {
		ID         string  `json:"id"`
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
	}
	payload := make([]rpcUpdate, 0, len(updates))
	for _, u := range updates {
		payload = append(payload, rpcUpdate{
			ID:         u.TransactionID,
			Category:   u.Category,
			Confidence: u.Confidence,
		})
	}

	_, err := c.cb.Execute(func() (any, error) {
		_, postErr := c.doPost(ctx, "rpc/apply_category_predictions", map[string]any{"updates": payload})
		return nil, postErr
	})
	if err != nil {
		return c.wrapErr("supabase/transactions", err)
	}
	return nil
}

// SetFeedbackCategory stores the user's corrected category.
func (c *Client) SetFeedbackCategory(ctx context.Context, id, category string) error {
	ctx, span := tracer.Start(ctx, "Supabase.SetFeedbackCategory")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", id))

	_, err := c.cb.Execute(func() (any, error) {
		path := fmt.Sprintf("bank_transactions?id=eq.%s", url.QueryEscape(id))
		return nil, c.doPatch(ctx, path, map[string]any{"feedback_category": category})
	})
	if err != nil {
		return c.wrapErr("supabase/transactions", err)
	}
	return nil
}

// UpdateTransactionDetails edits the user-facing description and reference.
func (c *Client) UpdateTransactionDetails(ctx context.Context, id string, description, reference string) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateTransactionDetails")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", id))

	_, err := c.cb.Execute(func() (any, error) {
		path := fmt.Sprintf("bank_transactions?id=eq.%s", url.QueryEscape(id))
		return nil, c.doPatch(ctx, path, map[string]any{
			"description": description,
			"reference":   reference,
		})
	})
	if err != nil {
		return c.wrapErr("supabase/transactions", err)
	}
	return nil
}

// SaveFeedback inserts the locally persisted feedback record.
func (c *Client) SaveFeedback(ctx context.Context, fb *domain.AiFeedback) error {
	ctx, span := tracer.Start(ctx, "Supabase.SaveFeedback")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", fb.TransactionID))

	row := map[string]any{
		"id":                 fb.ID,
		"transaction_id":     fb.TransactionID,
		"predicted_category": fb.PredictedCategory,
		"correct_category":   fb.CorrectCategory,
		"confidence_score":   fb.ConfidenceScore,
		"submitted_at":       fb.SubmittedAt.Format(time.RFC3339),
	}

	_, err := c.cb.Execute(func() (any, error) {
		_, postErr := c.doPost(ctx, "ai_feedback", row)
		return nil, postErr
	})
	if err != nil {
		return c.wrapErr("supabase/feedback", err)
	}
	return nil
}
