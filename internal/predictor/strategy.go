// internal/predictor/strategy.go
package predictor

import (
	"context"
	"log/slog"
	"time"

	"glucose-engine/internal/absorption"
	"glucose-engine/internal/models"
	"glucose-engine/internal/timectx"
)

// Input bundles everything a strategy needs for one prediction call.
type Input struct {
	Request *models.PredictionRequest
	Time    timectx.Context
	State   absorption.State

	UserBias        float64
	CorrectionCount int
}

// Strategy produces a full prediction curve from a validated request.
// Implementations must be safe for concurrent use.
type Strategy interface {
	Name() string
	Predict(ctx context.Context, in Input) (*models.PredictionResult, error)
}

// WithRetry wraps a strategy with a fixed attempt budget and linear
// backoff. The last error is returned once the budget is exhausted.
func WithRetry(s Strategy, attempts int, backoff time.Duration) Strategy {
	if attempts < 1 {
		attempts = 1
	}
	return &retryStrategy{inner: s, attempts: attempts, backoff: backoff}
}

type retryStrategy struct {
	inner    Strategy
	attempts int
	backoff  time.Duration
}

func (r *retryStrategy) Name() string { return r.inner.Name() }

func (r *retryStrategy) Predict(ctx context.Context, in Input) (*models.PredictionResult, error) {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		result, err := r.inner.Predict(ctx, in)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt < r.attempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * r.backoff):
			}
		}
	}
	return nil, lastErr
}

// Chain tries the primary strategy and falls back on any failure. The
// fallback is expected to be infallible (the rule engine), so Chain
// itself never surfaces an error to the caller.
func Chain(primary, fallback Strategy, logger *slog.Logger) Strategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &chainStrategy{primary: primary, fallback: fallback, logger: logger}
}

type chainStrategy struct {
	primary  Strategy
	fallback Strategy
	logger   *slog.Logger
}

func (c *chainStrategy) Name() string { return c.primary.Name() }

func (c *chainStrategy) Predict(ctx context.Context, in Input) (*models.PredictionResult, error) {
	if c.primary != nil {
		result, err := c.primary.Predict(ctx, in)
		if err == nil {
			return result, nil
		}
		c.logger.WarnContext(ctx, "prediction strategy degraded, falling back",
			"strategy", c.primary.Name(),
			"fallback", c.fallback.Name(),
			"error", err)
	}
	return c.fallback.Predict(ctx, in)
}
