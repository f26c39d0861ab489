// internal/bias/tracker.go
package bias

import (
	"context"

	"glucose-engine/internal/models"
)

// DefaultWindow is the number of most recent corrections the rolling
// bias averages over.
const DefaultWindow = 10

// CorrectionReader is the slice of the storage layer the tracker needs.
type CorrectionReader interface {
	RecentDifferences(ctx context.Context, userID string, limit int) ([]float64, error)
	CorrectionCount(ctx context.Context, userID string) (int, error)
}

// Tracker derives a per-user calibration offset from stored
// prediction-vs-actual differences.
type Tracker struct {
	store  CorrectionReader
	window int
}

func NewTracker(store CorrectionReader, window int) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Tracker{store: store, window: window}
}

// UserBias returns the mean difference (actual minus predicted) over
// the most recent corrections, or 0 when the user has none. A positive
// bias means past predictions ran low.
func (t *Tracker) UserBias(ctx context.Context, userID string) (float64, error) {
	diffs, err := t.store.RecentDifferences(ctx, userID, t.window)
	if err != nil {
		return 0, err
	}
	if len(diffs) == 0 {
		return 0, nil
	}

	var sum float64
	for _, d := range diffs {
		sum += d
	}
	return sum / float64(len(diffs)), nil
}

func (t *Tracker) Count(ctx context.Context, userID string) (int, error) {
	return t.store.CorrectionCount(ctx, userID)
}

// Apply shifts every prediction point by the bias before clamping,
// then recomputes the peak value and risk level from the adjusted
// curve. The peak time is left alone because a uniform shift cannot
// move the maximum to a different offset.
func Apply(result *models.PredictionResult, bias float64) {
	if bias == 0 || len(result.Predictions) == 0 {
		return
	}

	peak := models.MinBG
	for i := range result.Predictions {
		adjusted := models.Round1(models.ClampBG(result.Predictions[i].BGValue + bias))
		result.Predictions[i].BGValue = adjusted
		if adjusted > peak {
			peak = adjusted
		}
	}

	result.PeakValue = peak
	result.RiskLevel = models.RiskFromPeak(peak)
}
