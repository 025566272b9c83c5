// File: internal/usecase/content_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"linkedin-autopilot/internal/domain"
	"linkedin-autopilot/internal/domain/model"
	"linkedin-autopilot/internal/domain/ports/adapter"
	"linkedin-autopilot/internal/infra/metrics"
)

// ContentService mediates calls to the external AI generator: bounded
// timeout, request completeness checks, and response validation. Every
// failure maps to domain.ErrContentGeneration, which is retryable.
type ContentService interface {
	Generate(ctx context.Context, task *model.Task) (string, error)
}

var _ ContentService = (*contentUC)(nil)

type contentUC struct {
	generator adapter.ContentGenerator
	timeout   time.Duration
	minLength int
	log       *zerolog.Logger
}

func NewContentService(generator adapter.ContentGenerator, timeout time.Duration, logger *zerolog.Logger) *contentUC {
	cLog := logger.With().Str("component", "ContentService").Logger()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &contentUC{
		generator: generator,
		timeout:   timeout,
		minLength: 80,
		log:       &cLog,
	}
}

func (c *contentUC) Generate(ctx context.Context, task *model.Task) (string, error) {
	req := adapter.ContentRequest{
		Kind:           task.Kind,
		Role:           task.Payload.Role,
		ProfileSummary: task.Payload.ProfileSummary,
		JobDescription: task.Payload.JobDescription,
	}
	if task.Kind == model.ActionApplyToJob && (req.Role == "" || req.JobDescription == "") {
		return "", fmt.Errorf("%w: application request missing role or job description", domain.ErrContentGeneration)
	}

	tokens, err := c.generator.CountTokens(ctx, req)
	if err != nil {
		// Counting is best-effort; generation decides success.
		tokens = 0
	}

	genCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	text, err := c.generator.Generate(genCtx, req)
	latency := int(time.Since(start).Milliseconds())

	if err != nil {
		metrics.ObserveContentCall("default", tokens, latency, false)
		if errors.Is(err, context.DeadlineExceeded) || genCtx.Err() != nil {
			return "", fmt.Errorf("%w: timed out after %s", domain.ErrContentGeneration, c.timeout)
		}
		return "", fmt.Errorf("%w: %v", domain.ErrContentGeneration, err)
	}

	text = strings.TrimSpace(text)
	if len(text) < c.minLength {
		metrics.ObserveContentCall("default", tokens, latency, false)
		return "", fmt.Errorf("%w: %w: %d chars, need %d", domain.ErrContentGeneration, domain.ErrContentTooShort, len(text), c.minLength)
	}

	metrics.ObserveContentCall("default", tokens, latency, true)
	c.log.Debug().Str("task_id", task.ID).Int("chars", len(text)).Int("latency_ms", latency).Msg("content generated")
	return text, nil
}
