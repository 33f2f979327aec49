package aiclient

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/finlight-sa/finlight-api/internal/domain"
	"github.com/finlight-sa/finlight-api/internal/infra/resilience"
)

// Wire types for the categorization endpoints.

type categorizeRequest struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Direction   string  `json:"direction"`
}

type predictionResponse struct {
	Category     string                `json:"category"`
	Confidence   float64               `json:"confidence"`
	Alternatives []alternativeResponse `json:"alternatives"`
}

type alternativeResponse struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

type batchPredictionResponse struct {
	Description       string  `json:"description"`
	Amount            float64 `json:"amount"`
	Direction         string  `json:"direction"`
	PredictedCategory string  `json:"predicted_category"`
	Confidence        float64 `json:"confidence"`
}

type feedbackRequest struct {
	Description       string  `json:"description"`
	PredictedCategory string  `json:"predicted_category"`
	CorrectCategory   string  `json:"correct_category"`
	Amount            float64 `json:"amount"`
}

func toWire(req domain.CategorizationRequest) categorizeRequest {
	return categorizeRequest{
		Description: req.Description,
		Amount:      req.Amount.InexactFloat64(),
		Direction:   string(req.Direction),
	}
}

// Categorize asks the AI service for a category and confidence for one
// transaction. Any transport or status failure is returned as
// ErrExternalService; callers leave the category unset and carry on.
func (c *Client) Categorize(ctx context.Context, req domain.CategorizationRequest) (*domain.CategoryPrediction, error) {
	ctx, span := tracer.Start(ctx, "AIClient.Categorize")
	defer span.End()
	span.SetAttributes(attribute.String("txn.direction", string(req.Direction)))

	var wire predictionResponse

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			return c.postJSON(ctx, "/categorize", toWire(req), &wire)
		})
	})
	if err != nil {
		return nil, c.wrapErr("ai/categorize", err)
	}

	pred := &domain.CategoryPrediction{
		Category:   wire.Category,
		Confidence: c.clampConfidence(wire.Confidence),
	}
	for _, alt := range wire.Alternatives {
		pred.Alternatives = append(pred.Alternatives, domain.CategoryAlternative{
			Category:   alt.Category,
			Confidence: c.clampConfidence(alt.Confidence),
		})
	}
	return pred, nil
}

// CategorizeBatch sends all requests in one call. The response must contain
// exactly one prediction per request, in order; anything else fails the
// whole batch so callers can discard it without partial application.
func (c *Client) CategorizeBatch(ctx context.Context, reqs []domain.CategorizationRequest) ([]domain.CategoryPrediction, error) {
	ctx, span := tracer.Start(ctx, "AIClient.CategorizeBatch")
	defer span.End()
	span.SetAttributes(attribute.Int("batch.size", len(reqs)))

	payload := make([]categorizeRequest, 0, len(reqs))
	for _, r := range reqs {
		payload = append(payload, toWire(r))
	}

	var wire []batchPredictionResponse

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			return c.postJSON(ctx, "/categorize/batch", payload, &wire)
		})
	})
	if err != nil {
		return nil, c.wrapErr("ai/categorize-batch", err)
	}

	if len(wire) != len(reqs) {
		return nil, &domain.ErrExternalService{
			Service: "ai/categorize-batch",
			Err:     fmt.Errorf("response length %d does not match request length %d", len(wire), len(reqs)),
		}
	}

	preds := make([]domain.CategoryPrediction, 0, len(wire))
	for _, w := range wire {
		preds = append(preds, domain.CategoryPrediction{
			Category:   w.PredictedCategory,
			Confidence: c.clampConfidence(w.Confidence),
		})
	}
	return preds, nil
}

// SubmitFeedback relays a user correction to the AI service.
func (c *Client) SubmitFeedback(ctx context.Context, fb domain.FeedbackSubmission) error {
	ctx, span := tracer.Start(ctx, "AIClient.SubmitFeedback")
	defer span.End()

	payload := feedbackRequest{
		Description:       fb.Description,
		PredictedCategory: fb.PredictedCategory,
		CorrectCategory:   fb.CorrectCategory,
		Amount:            fb.Amount.InexactFloat64(),
	}

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			return c.postJSON(ctx, "/feedback", payload, nil)
		})
	})
	if err != nil {
		return c.wrapErr("ai/feedback", err)
	}
	return nil
}
