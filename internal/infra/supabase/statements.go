package supabase

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/finlight-sa/finlight-api/internal/domain"
	"github.com/finlight-sa/finlight-api/internal/infra/resilience"
)

// statementRow maps the bank_statements table. File bytes travel base64
// encoded in a text column.
type statementRow struct {
	ID          string `json:"id"`
	BusinessID  string `json:"business_id"`
	FileName    string `json:"file_name"`
	UploadedBy  string `json:"uploaded_by"`
	UploadDate  string `json:"upload_date"`
	FileData    string `json:"file_data"`
	ContentType string `json:"content_type"`
	Status      string `json:"status"`
}

// statementListRow is the listing projection: no file payload, plus the
// embedded transaction count PostgREST returns for
// select=...,bank_transactions(count).
type statementListRow struct {
	ID               string `json:"id"`
	FileName         string `json:"file_name"`
	UploadDate       string `json:"upload_date"`
	Status           string `json:"status"`
	BankTransactions []struct {
		Count int `json:"count"`
	} `json:"bank_transactions"`
}

func parseRowTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, _ = time.Parse("2006-01-02", s)
	}
	return t
}

// CreateStatement inserts a statement row.
func (c *Client) CreateStatement(ctx context.Context, st *domain.BankStatement) error {
	ctx, span := tracer.Start(ctx, "Supabase.CreateStatement")
	defer span.End()
	span.SetAttributes(attribute.String("statement.id", st.ID))

	row := statementRow{
		ID:          st.ID,
		BusinessID:  st.BusinessID,
		FileName:    st.FileName,
		UploadedBy:  st.UploadedBy,
		UploadDate:  st.UploadDate.Format(time.RFC3339),
		FileData:    base64.StdEncoding.EncodeToString(st.FileData),
		ContentType: st.ContentType,
		Status:      string(st.Status),
	}

	_, err := c.cb.Execute(func() (any, error) {
		_, postErr := c.doPost(ctx, "bank_statements", row)
		return nil, postErr
	})
	if err != nil {
		return c.wrapErr("supabase/statements", err)
	}
	return nil
}

// GetStatement fetches one statement scoped to a business, file bytes
// included.
func (c *Client) GetStatement(ctx context.Context, businessID, id string) (*domain.BankStatement, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetStatement")
	defer span.End()
	span.SetAttributes(attribute.String("statement.id", id))

	var statement *domain.BankStatement

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			path := fmt.Sprintf("bank_statements?id=eq.%s&business_id=eq.%s&limit=1",
				url.QueryEscape(id), url.QueryEscape(businessID))
			body, _, err := c.doGet(ctx, path, false)
			if err != nil {
				return err
			}
			if body == nil || string(body) == "[]" {
				return &domain.ErrNotFound{Resource: "statement", ID: id}
			}

			var rows []statementRow
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("failed to decode statement: %w", err)
			}
			if len(rows) == 0 {
				return &domain.ErrNotFound{Resource: "statement", ID: id}
			}

			r := rows[0]
			fileData, err := base64.StdEncoding.DecodeString(r.FileData)
			if err != nil {
				return fmt.Errorf("failed to decode statement payload: %w", err)
			}
			statement = &domain.BankStatement{
				ID:          r.ID,
				BusinessID:  r.BusinessID,
				FileName:    r.FileName,
				UploadedBy:  r.UploadedBy,
				UploadDate:  parseRowTime(r.UploadDate),
				FileData:    fileData,
				ContentType: r.ContentType,
				Status:      domain.StatementStatus(r.Status),
			}
			return nil
		})
	})
	if err != nil {
		var notFound *domain.ErrNotFound
		if errors.As(err, &notFound) {
			return nil, notFound
		}
		return nil, c.wrapErr("supabase/statements", err)
	}

	return statement, nil
}

// ListStatements returns one page of statement summaries, newest first,
// plus the total row count for the business.
func (c *Client) ListStatements(ctx context.Context, businessID string, page, pageSize int) ([]domain.StatementSummary, int, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListStatements")
	defer span.End()
	span.SetAttributes(attribute.Int("page", page))

	var (
		summaries []domain.StatementSummary
		total     int
	)

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			offset := (page - 1) * pageSize
			path := fmt.Sprintf(
				"bank_statements?business_id=eq.%s&select=id,file_name,upload_date,status,bank_transactions(count)&order=upload_date.desc&limit=%d&offset=%d",
				url.QueryEscape(businessID), pageSize, offset)
			body, count, err := c.doGet(ctx, path, true)
			if err != nil {
				return err
			}
			total = count

			summaries = []domain.StatementSummary{}
			if body == nil || string(body) == "[]" {
				return nil
			}

			var rows []statementListRow
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("failed to decode statements: %w", err)
			}
			for _, r := range rows {
				txnCount := 0
				if len(r.BankTransactions) > 0 {
					txnCount = r.BankTransactions[0].Count
				}
				summaries = append(summaries, domain.StatementSummary{
					ID:               r.ID,
					FileName:         r.FileName,
					UploadDate:       parseRowTime(r.UploadDate),
					Status:           domain.StatementStatus(r.Status),
					TransactionCount: txnCount,
				})
			}
			return nil
		})
	})
	if err != nil {
		return nil, 0, c.wrapErr("supabase/statements", err)
	}

	return summaries, total, nil
}

// UpdateStatementStatus moves the statement to a new lifecycle state.
func (c *Client) UpdateStatementStatus(ctx context.Context, id string, status domain.StatementStatus) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateStatementStatus")
	defer span.End()
	span.SetAttributes(
		attribute.String("statement.id", id),
		attribute.String("statement.status", string(status)),
	)

	_, err := c.cb.Execute(func() (any, error) {
		path := fmt.Sprintf("bank_statements?id=eq.%s", url.QueryEscape(id))
		return nil, c.doPatch(ctx, path, map[string]any{"status": string(status)})
	})
	if err != nil {
		return c.wrapErr("supabase/statements", err)
	}
	return nil
}

// DeleteStatement removes a statement. Its transactions go with it via the
// ON DELETE CASCADE foreign key on bank_transactions.
func (c *Client) DeleteStatement(ctx context.Context, businessID, id string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteStatement")
	defer span.End()
	span.SetAttributes(attribute.String("statement.id", id))

	// Existence check keeps delete idempotent-but-honest: deleting a
	// statement another business owns reports NotFound, not success.
	path := fmt.Sprintf("bank_statements?id=eq.%s&business_id=eq.%s&select=id&limit=1",
		url.QueryEscape(id), url.QueryEscape(businessID))
	body, _, err := c.doGet(ctx, path, false)
	if err != nil {
		return c.wrapErr("supabase/statements", err)
	}
	if body == nil || string(body) == "[]" {
		return &domain.ErrNotFound{Resource: "statement", ID: id}
	}

	_, err = c.cb.Execute(func() (any, error) {
		delPath := fmt.Sprintf("bank_statements?id=eq.%s&business_id=eq.%s",
			url.QueryEscape(id), url.QueryEscape(businessID))
		return nil, c.doDelete(ctx, delPath)
	})
	if err != nil {
		return c.wrapErr("supabase/statements", err)
	}
	return nil
}

