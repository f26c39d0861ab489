// internal/predictor/predictor_test.go
package predictor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glucose-engine/internal/absorption"
	"glucose-engine/internal/models"
	"glucose-engine/internal/timectx"
)

func giPtr(v float64) *float64 { return &v }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ruleInput(req *models.PredictionRequest) Input {
	return Input{
		Request: req,
		State:   absorption.BuildState(req.GIValue, nil, nil),
	}
}

func TestRuleBasedHighGIInsulinDominated(t *testing.T) {
	req := &models.PredictionRequest{
		TotalCarbs:    60,
		InsulinDose:   6,
		CurrentBG:     7.0,
		GIValue:       giPtr(75),
		ActivityLevel: models.ActivitySedentary,
	}

	result, err := NewRuleBased().Predict(context.Background(), ruleInput(req))
	require.NoError(t, err)

	assert.Equal(t, 60, result.PeakTime)
	assert.InDelta(t, 5.8, result.PeakValue, 0.001)
	assert.Equal(t, models.RiskLow, result.RiskLevel)

	require.Len(t, result.Predictions, len(models.CanonicalOffsets))
	for i, p := range result.Predictions {
		assert.Equal(t, models.CanonicalOffsets[i], p.TimeMinutes)
		assert.GreaterOrEqual(t, p.BGValue, models.MinBG)
		assert.LessOrEqual(t, p.BGValue, models.MaxBG)
	}

	// Within 30 minutes of the peak confidence is higher.
	assert.Equal(t, 0.85, result.Predictions[0].Confidence) // 30
	assert.Equal(t, 0.85, result.Predictions[1].Confidence) // 60
	assert.Equal(t, 0.85, result.Predictions[2].Confidence) // 90
	assert.Equal(t, 0.75, result.Predictions[3].Confidence) // 120

	// The curve passes through the peak value at the peak offset.
	assert.InDelta(t, 5.8, result.Predictions[1].BGValue, 0.001)
}

func TestRuleBasedSlowGICarbDominated(t *testing.T) {
	req := &models.PredictionRequest{
		TotalCarbs:  80,
		InsulinDose: 2,
		CurrentBG:   8.0,
		GIValue:     giPtr(40),
	}

	result, err := NewRuleBased().Predict(context.Background(), ruleInput(req))
	require.NoError(t, err)

	assert.Equal(t, 120, result.PeakTime)
	assert.InDelta(t, 13.6, result.PeakValue, 0.001)
	assert.Equal(t, models.RiskMedium, result.RiskLevel)

	// Pre-peak the curve rises linearly toward the peak.
	assert.InDelta(t, 9.4, result.Predictions[0].BGValue, 0.001)  // 30: 8.0 + 5.6*0.25
	assert.InDelta(t, 10.8, result.Predictions[1].BGValue, 0.001) // 60: 8.0 + 5.6*0.5
	assert.InDelta(t, 13.6, result.Predictions[3].BGValue, 0.001) // 120

	// Post-peak the curve decays toward the starting glucose.
	for i := 4; i < len(result.Predictions); i++ {
		assert.Less(t, result.Predictions[i].BGValue, result.PeakValue)
		assert.Greater(t, result.Predictions[i].BGValue, req.CurrentBG)
	}
}

func TestRuleBasedUnknownGIUsesSlowTier(t *testing.T) {
	req := &models.PredictionRequest{
		TotalCarbs:  50,
		InsulinDose: 0,
		CurrentBG:   6.0,
	}

	result, err := NewRuleBased().Predict(context.Background(), ruleInput(req))
	require.NoError(t, err)

	assert.Equal(t, 120, result.PeakTime)
	// 6.0 + 0.15*50*0.8 = 12.0
	assert.InDelta(t, 12.0, result.PeakValue, 0.001)
	assert.Equal(t, models.RiskMedium, result.RiskLevel)
}

func TestRuleBasedDeterministic(t *testing.T) {
	req := &models.PredictionRequest{
		TotalCarbs:    45,
		InsulinDose:   4,
		CurrentBG:     6.5,
		GIValue:       giPtr(60),
		ActivityLevel: models.ActivityModerate,
	}

	first, err := NewRuleBased().Predict(context.Background(), ruleInput(req))
	require.NoError(t, err)
	second, err := NewRuleBased().Predict(context.Background(), ruleInput(req))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRuleBasedClampsExtremes(t *testing.T) {
	tests := []struct {
		name string
		req  models.PredictionRequest
		peak float64
		risk models.RiskLevel
	}{
		{
			name: "massive carb load is clamped to the ceiling",
			req:  models.PredictionRequest{TotalCarbs: 400, CurrentBG: 10.0, GIValue: giPtr(90)},
			peak: 20.0,
			risk: models.RiskHigh,
		},
		{
			name: "massive insulin dose is clamped to the floor",
			req:  models.PredictionRequest{TotalCarbs: 10, InsulinDose: 40, CurrentBG: 5.0, GIValue: giPtr(50)},
			peak: 3.0,
			risk: models.RiskLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := NewRuleBased().Predict(context.Background(), ruleInput(&tt.req))
			require.NoError(t, err)
			assert.InDelta(t, tt.peak, result.PeakValue, 0.001)
			assert.Equal(t, tt.risk, result.RiskLevel)
			for _, p := range result.Predictions {
				assert.GreaterOrEqual(t, p.BGValue, models.MinBG)
				assert.LessOrEqual(t, p.BGValue, models.MaxBG)
			}
		})
	}
}

func TestActivityFactor(t *testing.T) {
	assert.Equal(t, 1.0, ActivityFactor(models.ActivitySedentary))
	assert.Equal(t, 1.0, ActivityFactor(""))
	assert.Equal(t, 0.95, ActivityFactor(models.ActivityLight))
	assert.Equal(t, 0.90, ActivityFactor(models.ActivityModerate))
	assert.Equal(t, 0.85, ActivityFactor(models.ActivityVigorous))
	assert.Equal(t, 1.0, ActivityFactor("skydiving"))
}

func TestBuildRecommendationsOrder(t *testing.T) {
	recs := buildRecommendations(14.5, giPtr(80), models.ActivitySedentary)
	require.NotEmpty(t, recs)
	assert.Contains(t, recs[0], "increase the insulin dose")
	assert.Contains(t, strings.Join(recs, "\n"), "High-GI food")
	assert.Contains(t, strings.Join(recs, "\n"), "Sedentary")
	assert.LessOrEqual(t, len(recs), 5)

	seen := map[string]bool{}
	for _, r := range recs {
		assert.False(t, seen[r], "duplicate recommendation %q", r)
		seen[r] = true
	}
}

const validReply = "```json\n" + `{
  "predictions": [
    {"time_minutes": 30, "bg_value": 8.5, "confidence": 0.9},
    {"time_minutes": 60, "bg_value": 9.8, "confidence": 0.8},
    {"time_minutes": 120, "bg_value": 8.2, "confidence": 0.7}
  ],
  "peak_time": 60,
  "peak_value": 9.8,
  "risk_level": "low",
  "recommendations": ["Monitor glucose after the meal"],
  "reasoning": "moderate carb load with adequate insulin coverage"
}` + "\n```"

func TestParseModelReply(t *testing.T) {
	result, err := parseModelReply(validReply)
	require.NoError(t, err)

	assert.Equal(t, 60, result.PeakTime)
	assert.InDelta(t, 9.8, result.PeakValue, 0.001)
	assert.Equal(t, models.RiskLow, result.RiskLevel)
	assert.Equal(t, "moderate carb load with adequate insulin coverage", result.Note)
	assert.InDelta(t, 0.8, result.ConfidenceScore, 0.001)
	require.Len(t, result.Predictions, 3)
}

func TestParseModelReplyRecomputesRisk(t *testing.T) {
	reply := strings.Replace(validReply, `"peak_value": 9.8`, `"peak_value": 14.2`, 1)

	result, err := parseModelReply(reply)
	require.NoError(t, err)

	// The claimed risk level is kept as an annotation only.
	assert.Equal(t, models.RiskHigh, result.RiskLevel)
	assert.Equal(t, "low", result.RiskAssessment)
}

func TestParseModelReplyClampsValues(t *testing.T) {
	reply := strings.Replace(validReply, `"bg_value": 9.8`, `"bg_value": 42.0`, 1)

	result, err := parseModelReply(reply)
	require.NoError(t, err)
	assert.Equal(t, models.MaxBG, result.Predictions[1].BGValue)
}

func TestParseModelReplyErrors(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"empty reply", ""},
		{"prose only", "I cannot predict that."},
		{"malformed JSON", "```json\n{\"predictions\": [\n```"},
		{"missing peak_time", `{"predictions": [{"time_minutes": 30, "bg_value": 8.0}], "peak_value": 8.0, "risk_level": "low", "recommendations": []}`},
		{"empty predictions", `{"predictions": [], "peak_time": 60, "peak_value": 8.0, "risk_level": "low", "recommendations": []}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseModelReply(tt.reply)
			assert.Error(t, err)
		})
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{"json fence", "Here you go:\n```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"plain fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"raw object", "some text {\"a\": 1} trailing", `{"a": 1}`},
		{"no json at all", "nothing here", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.reply))
		})
	}
}

type stubClient struct {
	reply string
	err   error
	calls int
}

func (s *stubClient) Complete(_ context.Context, _, _ string) (string, error) {
	s.calls++
	return s.reply, s.err
}

func TestExternalModelFallsBackToRules(t *testing.T) {
	req := &models.PredictionRequest{
		TotalCarbs:  60,
		InsulinDose: 6,
		CurrentBG:   7.0,
		GIValue:     giPtr(75),
	}
	in := ruleInput(req)

	external := NewExternalModel(&stubClient{reply: "not even close to JSON"})
	chain := Chain(external, NewRuleBased(), discardLogger())

	got, err := chain.Predict(context.Background(), in)
	require.NoError(t, err)

	want, err := NewRuleBased().Predict(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

type flakyStrategy struct {
	failures int
	calls    int
	result   *models.PredictionResult
}

func (f *flakyStrategy) Name() string { return "flaky" }

func (f *flakyStrategy) Predict(context.Context, Input) (*models.PredictionResult, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, fmt.Errorf("transient failure %d", f.calls)
	}
	return f.result, nil
}

func TestWithRetryEventuallySucceeds(t *testing.T) {
	want := &models.PredictionResult{PeakTime: 90}
	flaky := &flakyStrategy{failures: 2, result: want}

	got, err := WithRetry(flaky, 3, time.Millisecond).Predict(context.Background(), Input{})
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 3, flaky.calls)
}

func TestWithRetryExhaustsBudget(t *testing.T) {
	flaky := &flakyStrategy{failures: 10}

	_, err := WithRetry(flaky, 3, time.Millisecond).Predict(context.Background(), Input{})
	require.Error(t, err)
	assert.Equal(t, 3, flaky.calls)
	assert.Contains(t, err.Error(), "transient failure 3")
}

func TestWithRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	flaky := &flakyStrategy{failures: 10}
	_, err := WithRetry(flaky, 3, 50*time.Millisecond).Predict(ctx, Input{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled) || flaky.calls < 3)
}

func TestBuildUserPromptSections(t *testing.T) {
	minsSinceMeal := 45.0
	minsSinceMed := 30.0
	req := &models.PredictionRequest{
		TotalCarbs:  55,
		InsulinDose: 5,
		CurrentBG:   7.2,
		GIValue:     giPtr(72),
		Profile:     &models.UserProfile{Weight: 70, Height: 175, Age: 40, DiabetesType: "type2"},
		RecentMeals: []models.MealRecord{
			{MealTime: "2024-03-10T08:00:00Z", TotalCarbs: 40, Foods: "oatmeal"},
		},
	}
	in := Input{
		Request: req,
		Time: timectx.Context{
			HasTimeContext:         true,
			MinutesSinceMeal:       &minsSinceMeal,
			MinutesSinceMedication: &minsSinceMed,
		},
		State:           absorption.BuildState(req.GIValue, &minsSinceMeal, &minsSinceMed),
		UserBias:        0.8,
		CorrectionCount: 4,
	}

	prompt := BuildUserPrompt(in)

	assert.Contains(t, prompt, "Total carbohydrates: 55.0 g")
	assert.Contains(t, prompt, "BMI: 22.9")
	assert.Contains(t, prompt, "oatmeal")
	assert.Contains(t, prompt, "## Absorption timeline")
	assert.Contains(t, prompt, "Minutes since the meal: 45")
	assert.Contains(t, prompt, "## Calibration")
	assert.Contains(t, prompt, "0.8 mmol/L")
	assert.Contains(t, prompt, "Required JSON format")
}

func TestBuildUserPromptOmitsMissingSections(t *testing.T) {
	req := &models.PredictionRequest{TotalCarbs: 30, CurrentBG: 6.0}
	prompt := BuildUserPrompt(Input{Request: req})

	assert.Contains(t, prompt, "Glycemic index: unknown")
	assert.NotContains(t, prompt, "## Absorption timeline")
	assert.NotContains(t, prompt, "## Calibration")
	assert.NotContains(t, prompt, "## Recent records")
}

func TestBuildUserPromptTruncatesHistory(t *testing.T) {
	req := &models.PredictionRequest{TotalCarbs: 30, CurrentBG: 6.0}
	for i := 0; i < 6; i++ {
		req.RecentMeals = append(req.RecentMeals, models.MealRecord{
			MealTime:   fmt.Sprintf("2024-03-%02dT08:00:00Z", i+1),
			TotalCarbs: float64(10 * (i + 1)),
		})
	}

	prompt := BuildUserPrompt(Input{Request: req})
	assert.Equal(t, models.MaxHistoryItems, strings.Count(prompt, "- Meal at "))
	// Most recent entries win.
	assert.Contains(t, prompt, "2024-03-06")
	assert.NotContains(t, prompt, "2024-03-01")
}
