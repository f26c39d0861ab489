// internal/predictor/rule_based.go
package predictor

import (
	"context"
	"math"

	"glucose-engine/internal/absorption"
	"glucose-engine/internal/models"
)

// activityFactors scale the carb impact down as activity increases.
var activityFactors = map[models.ActivityLevel]float64{
	models.ActivitySedentary: 1.0,
	models.ActivityLight:     0.95,
	models.ActivityModerate:  0.90,
	models.ActivityVigorous:  0.85,
}

// ActivityFactor returns the carb impact factor for a level; an empty
// level counts as sedentary.
func ActivityFactor(level models.ActivityLevel) float64 {
	if f, ok := activityFactors[level]; ok {
		return f
	}
	return 1.0
}

// RuleBased is the deterministic predictor. It is the contractual floor
// of the engine: always available, no I/O, identical output for
// identical input.
type RuleBased struct{}

func NewRuleBased() *RuleBased { return &RuleBased{} }

func (r *RuleBased) Name() string { return "rule-based" }

// Predict computes the forecast curve. It cannot fail on a validated
// request; the error return exists only to satisfy Strategy.
func (r *RuleBased) Predict(_ context.Context, in Input) (*models.PredictionResult, error) {
	req := in.Request

	carbImpact := absorption.CarbImpactPerGram * req.TotalCarbs *
		absorption.Multiplier(req.GIValue) * ActivityFactor(req.ActivityLevel)
	insulinEffect := absorption.InsulinDropPerUnit * req.InsulinDose
	netImpact := carbImpact - insulinEffect

	peakTime := absorption.PeakMinutes(req.GIValue)

	points := make([]models.PredictionPoint, 0, len(models.CanonicalOffsets))
	for _, t := range models.CanonicalOffsets {
		var bg float64
		if t <= peakTime {
			bg = req.CurrentBG + netImpact*absorption.RiseFraction(float64(t), peakTime)
		} else {
			decay := absorption.DecayFactor(float64(t), peakTime)
			peak := math.Max(req.CurrentBG+netImpact, models.MinBG)
			bg = peak - (peak-req.CurrentBG)*(1-decay)
		}

		confidence := 0.75
		if math.Abs(float64(t-peakTime)) <= 30 {
			confidence = 0.85
		}

		points = append(points, models.PredictionPoint{
			TimeMinutes: t,
			BGValue:     models.Round1(models.ClampBG(bg)),
			Confidence:  confidence,
		})
	}

	// The peak point coincides with a canonical offset, so reading it
	// back from the curve keeps peak_value consistent with the clamped,
	// rounded points.
	peakValue := models.Round1(models.ClampBG(math.Max(req.CurrentBG+netImpact, models.MinBG)))

	return &models.PredictionResult{
		Predictions:     points,
		PeakTime:        peakTime,
		PeakValue:       peakValue,
		RiskLevel:       models.RiskFromPeak(peakValue),
		Recommendations: buildRecommendations(peakValue, req.GIValue, req.ActivityLevel),
	}, nil
}

// buildRecommendations applies the fixed rule table in order, then
// dedupes while preserving that order.
func buildRecommendations(peakValue float64, gi *float64, activity models.ActivityLevel) []string {
	var recs []string

	switch models.RiskFromPeak(peakValue) {
	case models.RiskHigh:
		recs = append(recs, "Predicted glucose is high: increase the insulin dose or reduce carbohydrate intake")
	case models.RiskMedium:
		recs = append(recs, "Predicted glucose is slightly elevated: consider more insulin or adding exercise")
	}

	if gi != nil && *gi > 70 {
		recs = append(recs, "High-GI food: light activity after the meal helps lower the glucose peak")
	}

	if activity == "" || activity == models.ActivitySedentary {
		recs = append(recs, "Sedentary: light movement after the meal improves glucose control")
	}

	if peakValue > 7.8 {
		recs = append(recs, "Monitor glucose 2 hours after the meal and adjust if above target")
	}

	return dedupe(recs)
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, s := range items {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
