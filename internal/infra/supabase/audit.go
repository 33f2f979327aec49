package supabase

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/finlight-sa/finlight-api/internal/domain"
)

// RecordAudit appends one row to the audit_logs table. Implements
// port.AuditSink.
func (c *Client) RecordAudit(ctx context.Context, e *domain.AuditEvent) error {
	ctx, span := tracer.Start(ctx, "Supabase.RecordAudit")
	defer span.End()
	span.SetAttributes(attribute.String("audit.action", e.Action))

	row := map[string]any{
		"id":          e.ID,
		"user_id":     e.UserID,
		"business_id": e.BusinessID,
		"action":      e.Action,
		"module":      e.Module,
		"record_id":   e.RecordID,
		"details":     e.Details,
		"timestamp":   e.Timestamp.Format(time.RFC3339),
	}

	_, err := c.cb.Execute(func() (any, error) {
		_, postErr := c.doPost(ctx, "audit_logs", row)
		return nil, postErr
	})
	if err != nil {
		return c.wrapErr("supabase/audit", err)
	}
	return nil
}
