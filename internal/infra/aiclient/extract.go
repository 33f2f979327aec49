package aiclient

import (
	"context"
	"encoding/base64"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/finlight-sa/finlight-api/internal/domain"
	"github.com/finlight-sa/finlight-api/internal/infra/resilience"
)

type extractRequest struct {
	Image        string `json:"image"`
	DocumentType string `json:"document_type"`
}

// Wire fields are pointers so that absent fields can be told apart from
// zero values; the remote service omits anything it failed to recognize.
type extractResponse struct {
	Vendor     *string               `json:"vendor"`
	Amount     *float64              `json:"amount"`
	Date       *string               `json:"date"`
	VatAmount  *float64              `json:"vat_amount"`
	RawText    *string               `json:"raw_text"`
	Confidence *float64              `json:"confidence"`
	Items      []extractItemResponse `json:"items"`
}

type extractItemResponse struct {
	Description *string  `json:"description"`
	Quantity    *int     `json:"quantity"`
	UnitPrice   *float64 `json:"unit_price"`
	Total       *float64 `json:"total"`
}

// Extract sends a document to the AI service for field extraction. The
// service's health endpoint is probed first; an unhealthy service fails
// fast without transmitting the document. Recognized line items are then
// enriched with suggested categories, a best-effort step whose failures
// leave the suggestion empty.
func (c *Client) Extract(ctx context.Context, fileData []byte, documentType string) (*domain.DocumentExtraction, error) {
	ctx, span := tracer.Start(ctx, "AIClient.Extract")
	defer span.End()
	span.SetAttributes(
		attribute.String("document.type", documentType),
		attribute.Int("document.bytes", len(fileData)),
	)

	if err := c.Health(ctx); err != nil {
		return nil, c.wrapErr("ai/health", err)
	}

	payload := extractRequest{
		Image:        base64.StdEncoding.EncodeToString(fileData),
		DocumentType: documentType,
	}

	var wire extractResponse

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			return c.postJSON(ctx, "/process-document", payload, &wire)
		})
	})
	if err != nil {
		return nil, c.wrapErr("ai/process-document", err)
	}

	ext := fromExtractWire(wire, c)
	c.enrichItems(ctx, ext)
	return ext, nil
}

func fromExtractWire(wire extractResponse, c *Client) *domain.DocumentExtraction {
	ext := &domain.DocumentExtraction{
		Vendor:     "Unknown",
		Confidence: 0.5,
	}
	if wire.Vendor != nil && *wire.Vendor != "" {
		ext.Vendor = *wire.Vendor
	}
	if wire.Amount != nil {
		ext.Amount = decimal.NewFromFloat(*wire.Amount)
	}
	if wire.Date != nil {
		ext.Date = *wire.Date
	}
	if wire.VatAmount != nil {
		ext.VatAmount = decimal.NewFromFloat(*wire.VatAmount)
	}
	if wire.RawText != nil {
		ext.RawText = *wire.RawText
	}
	if wire.Confidence != nil {
		ext.Confidence = c.clampConfidence(*wire.Confidence)
	}
	for _, it := range wire.Items {
		item := domain.ExtractedItem{Quantity: 1}
		if it.Description != nil {
			item.Description = *it.Description
		}
		if it.Quantity != nil {
			item.Quantity = *it.Quantity
		}
		if it.UnitPrice != nil {
			item.UnitPrice = decimal.NewFromFloat(*it.UnitPrice)
		}
		if it.Total != nil {
			item.Total = decimal.NewFromFloat(*it.Total)
		}
		ext.Items = append(ext.Items, item)
	}
	return ext
}

// enrichItems categorizes extracted line items concurrently, bounded by the
// configured bulkhead. Individual failures are logged and swallowed.
func (c *Client) enrichItems(ctx context.Context, ext *domain.DocumentExtraction) {
	if len(ext.Items) == 0 {
		return
	}

	bulkhead := resilience.NewBulkhead(c.cfg.MaxConcurrency)
	g, gctx := errgroup.WithContext(ctx)

	for i := range ext.Items {
		g.Go(func() error {
			if err := bulkhead.Acquire(gctx); err != nil {
				return nil
			}
			defer bulkhead.Release()

			item := &ext.Items[i]
			pred, err := c.Categorize(gctx, domain.CategorizationRequest{
				Description: item.Description,
				Amount:      item.Total,
				Direction:   domain.DirectionDebit,
			})
			if err != nil {
				c.logger.Debug("item categorization skipped",
					zap.String("description", item.Description),
					zap.Error(err),
				)
				return nil
			}
			item.SuggestedCategory = pred.Category
			return nil
		})
	}
	_ = g.Wait()
}
