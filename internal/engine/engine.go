// internal/engine/engine.go

// Package engine wires the prediction pipeline together: time context,
// absorption state, strategy dispatch, bias calibration, reminders,
// and persistence.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"glucose-engine/internal/absorption"
	"glucose-engine/internal/bias"
	"glucose-engine/internal/models"
	"glucose-engine/internal/predictor"
	"glucose-engine/internal/reminder"
	"glucose-engine/internal/timectx"
)

// DefaultUserID is used when the caller does not scope requests to a
// user.
const DefaultUserID = "local"

// Store is the persistence surface the engine needs.
type Store interface {
	SavePrediction(ctx context.Context, userID string, req *models.PredictionRequest, result *models.PredictionResult) error
	GetPrediction(ctx context.Context, userID, predictionID string) (*models.PredictionResult, error)
	SaveCorrection(ctx context.Context, userID string, rec *models.CorrectionRecord) error
	RecentDifferences(ctx context.Context, userID string, limit int) ([]float64, error)
	CorrectionCount(ctx context.Context, userID string) (int, error)
	ListCorrections(ctx context.Context, userID string, limit int) ([]*models.CorrectionRecord, error)
}

// Config tunes the engine. Zero values get sensible defaults.
type Config struct {
	BiasWindow      int
	ExternalEnabled bool
	RetryAttempts   int
	RetryBackoff    time.Duration
	Now             func() time.Time
	Logger          *slog.Logger
}

type Engine struct {
	store    Store
	tracker  *bias.Tracker
	strategy predictor.Strategy
	rule     *predictor.RuleBased
	logger   *slog.Logger
	now      func() time.Time
}

// New builds an engine. client may be nil; the external strategy is
// only wired when a client is supplied and enabled, and the rule-based
// strategy always remains the fallback.
func New(cfg Config, store Store, client predictor.CompletionClient) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	rule := predictor.NewRuleBased()
	var strategy predictor.Strategy = rule
	if cfg.ExternalEnabled && client != nil {
		attempts := cfg.RetryAttempts
		if attempts <= 0 {
			attempts = 3
		}
		backoff := cfg.RetryBackoff
		if backoff <= 0 {
			backoff = 500 * time.Millisecond
		}
		external := predictor.WithRetry(predictor.NewExternalModel(client), attempts, backoff)
		strategy = predictor.Chain(external, rule, logger)
	}

	return &Engine{
		store:    store,
		tracker:  bias.NewTracker(store, cfg.BiasWindow),
		strategy: strategy,
		rule:     rule,
		logger:   logger,
		now:      now,
	}
}

// Predict runs the full pipeline for one request. It always returns a
// usable result for valid input; storage and external-model failures
// degrade to the rule-based path and are logged, never surfaced.
func (e *Engine) Predict(ctx context.Context, userID string, req *models.PredictionRequest) (*models.PredictionResult, error) {
	if userID == "" {
		userID = DefaultUserID
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	tc := timectx.Build(req.MealTime, req.MedicationTime, req.CurrentTime, e.now)
	state := absorption.BuildState(req.GIValue, tc.MinutesSinceMeal, tc.MinutesSinceMedication)

	userBias, err := e.tracker.UserBias(ctx, userID)
	if err != nil {
		e.logger.WarnContext(ctx, "bias lookup failed, predicting uncalibrated",
			"user_id", userID, "error", err)
		userBias = 0
	}
	count, err := e.tracker.Count(ctx, userID)
	if err != nil {
		count = 0
	}

	in := predictor.Input{
		Request:         req,
		Time:            tc,
		State:           state,
		UserBias:        userBias,
		CorrectionCount: count,
	}

	result, err := e.strategy.Predict(ctx, in)
	if err != nil {
		// Only reachable when no fallback is wired into the strategy.
		e.logger.ErrorContext(ctx, "prediction strategy failed, using rule engine",
			"error", err)
		if result, err = e.rule.Predict(ctx, in); err != nil {
			return nil, err
		}
	}

	bias.Apply(result, userBias)
	result.Reminders = reminder.Evaluate(tc, state, req.CurrentBG, req.TotalCarbs)
	result.PredictionID = uuid.NewString()

	if err := e.store.SavePrediction(ctx, userID, req, result); err != nil {
		e.logger.ErrorContext(ctx, "failed to persist prediction",
			"user_id", userID, "prediction_id", result.PredictionID, "error", err)
	}

	e.logger.InfoContext(ctx, "prediction complete",
		"user_id", userID,
		"prediction_id", result.PredictionID,
		"strategy", e.strategy.Name(),
		"peak_value", result.PeakValue,
		"risk_level", result.RiskLevel,
		"bias", userBias)

	return result, nil
}

// SubmitCorrection records an actual measurement against an earlier
// prediction. The matching predicted value is resolved from storage;
// a missing prediction leaves the record unlinked with difference 0.
func (e *Engine) SubmitCorrection(ctx context.Context, userID string, input *models.CorrectionInput) (*models.CorrectionRecord, error) {
	if userID == "" {
		userID = DefaultUserID
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	predicted, linked := e.resolvePredicted(ctx, userID, input)

	difference := 0.0
	if linked {
		difference = models.Round1(input.ActualValue - predicted)
	}

	measuredAt := e.now().UTC()
	if input.MeasuredAt != "" {
		if t, err := time.Parse(time.RFC3339, input.MeasuredAt); err == nil {
			measuredAt = t.UTC()
		}
	}

	source := input.Source
	if source == "" {
		source = models.SourceManual
	}

	rec := &models.CorrectionRecord{
		ID:                    uuid.NewString(),
		PredictionID:          input.PredictionID,
		PredictionTimeMinutes: input.PredictionTimeMinutes,
		PredictedValue:        predicted,
		ActualValue:           input.ActualValue,
		Difference:            difference,
		MeasuredAt:            measuredAt,
		Source:                source,
		Note:                  input.Note,
		CreatedAt:             e.now().UTC(),
	}

	if err := e.store.SaveCorrection(ctx, userID, rec); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPersistenceUnavailable, err)
	}

	e.logger.InfoContext(ctx, "correction recorded",
		"user_id", userID,
		"correction_id", rec.ID,
		"prediction_id", rec.PredictionID,
		"difference", rec.Difference)

	return rec, nil
}

// resolvePredicted finds the forecast value a correction refers to:
// the point at the given offset, or the peak when no offset is given.
func (e *Engine) resolvePredicted(ctx context.Context, userID string, input *models.CorrectionInput) (float64, bool) {
	if input.PredictionID == "" {
		return 0, false
	}

	stored, err := e.store.GetPrediction(ctx, userID, input.PredictionID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			e.logger.WarnContext(ctx, "prediction lookup failed, storing unlinked correction",
				"prediction_id", input.PredictionID, "error", err)
		}
		return 0, false
	}

	if input.PredictionTimeMinutes == nil {
		return stored.PeakValue, true
	}
	for _, p := range stored.Predictions {
		if p.TimeMinutes == *input.PredictionTimeMinutes {
			return p.BGValue, true
		}
	}
	return 0, false
}

// CorrectionSummary combines a user's correction history with the
// derived calibration numbers.
type CorrectionSummary struct {
	Corrections []*models.CorrectionRecord `json:"corrections"`
	Bias        float64                    `json:"bias"`
	Count       int                        `json:"count"`
}

func (e *Engine) Corrections(ctx context.Context, userID string, limit int) (*CorrectionSummary, error) {
	if userID == "" {
		userID = DefaultUserID
	}
	if limit <= 0 {
		limit = 20
	}

	records, err := e.store.ListCorrections(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPersistenceUnavailable, err)
	}
	userBias, err := e.tracker.UserBias(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPersistenceUnavailable, err)
	}
	count, err := e.tracker.Count(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPersistenceUnavailable, err)
	}

	return &CorrectionSummary{
		Corrections: records,
		Bias:        models.Round1(userBias),
		Count:       count,
	}, nil
}
