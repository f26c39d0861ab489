// internal/server/server_test.go
package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glucose-engine/internal/models"
)

func newTestServer(t *testing.T) *GlucoseServer {
	t.Helper()
	srv, err := NewGlucoseServer(&Config{
		Host:   "127.0.0.1",
		Port:   0,
		DBPath: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { srv.Stop() })
	return srv
}

func callTool(t *testing.T, srv *GlucoseServer, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.handleHTTP(rec, req)
	return rec
}

// toolResult unwraps the text payload of a successful tool call.
func toolResult(t *testing.T, rec *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	var envelope struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NotEmpty(t, envelope.Content)
	require.NoError(t, json.Unmarshal([]byte(envelope.Content[0].Text), target))
}

func TestPredictGlucoseTool(t *testing.T) {
	srv := newTestServer(t)

	rec := callTool(t, srv, `{
		"name": "predict_glucose",
		"arguments": {
			"total_carbs": 60,
			"insulin_dose": 6,
			"current_bg": 7.0,
			"gi_value": 75
		}
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result models.PredictionResult
	toolResult(t, rec, &result)

	assert.NotEmpty(t, result.PredictionID)
	assert.Equal(t, 60, result.PeakTime)
	assert.InDelta(t, 5.8, result.PeakValue, 0.001)
	assert.Equal(t, models.RiskLow, result.RiskLevel)
	assert.Len(t, result.Predictions, 6)
}

func TestPredictGlucoseToolRejectsInvalidInput(t *testing.T) {
	srv := newTestServer(t)

	rec := callTool(t, srv, `{
		"name": "predict_glucose",
		"arguments": {"total_carbs": 0, "current_bg": 7.0}
	}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitAndGetCorrections(t *testing.T) {
	srv := newTestServer(t)

	rec := callTool(t, srv, `{
		"name": "predict_glucose",
		"arguments": {"total_carbs": 60, "insulin_dose": 6, "current_bg": 7.0, "gi_value": 75}
	}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var prediction models.PredictionResult
	toolResult(t, rec, &prediction)

	body, err := json.Marshal(map[string]interface{}{
		"name": "submit_correction",
		"arguments": map[string]interface{}{
			"prediction_id":           prediction.PredictionID,
			"prediction_time_minutes": 60,
			"actual_value":            prediction.Predictions[1].BGValue + 1.5,
		},
	})
	require.NoError(t, err)

	rec = callTool(t, srv, string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var correction models.CorrectionRecord
	toolResult(t, rec, &correction)
	assert.InDelta(t, 1.5, correction.Difference, 0.001)

	rec = callTool(t, srv, `{"name": "get_corrections", "arguments": {}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary struct {
		Bias  float64 `json:"bias"`
		Count int     `json:"count"`
	}
	toolResult(t, rec, &summary)
	assert.InDelta(t, 1.5, summary.Bias, 0.001)
	assert.Equal(t, 1, summary.Count)
}

func TestCalculateInsulinDoseTool(t *testing.T) {
	srv := newTestServer(t)

	rec := callTool(t, srv, `{
		"name": "calculate_insulin_dose",
		"arguments": {
			"total_carbs": 60,
			"current_bg": 7.0,
			"target_bg": 6.0,
			"isf": 2.0,
			"icr": 10.0
		}
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var dose models.DoseRecommendation
	toolResult(t, rec, &dose)
	assert.InDelta(t, 6.5, dose.RecommendedDose, 0.001)
}

func TestCalculateNutritionTool(t *testing.T) {
	srv := newTestServer(t)

	rec := callTool(t, srv, `{
		"name": "calculate_nutrition",
		"arguments": {
			"foods": [{"name": "white rice", "weight": 200}],
			"recommend_amount": true,
			"profile": {"diabetes_type": "type2"},
			"activity_level": "moderate"
		}
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var response struct {
		Nutrition            models.NutritionSummary      `json:"nutrition"`
		AmountRecommendation *models.AmountRecommendation `json:"amount_recommendation"`
		DailyBudget          *models.DailyBudget          `json:"daily_budget"`
	}
	toolResult(t, rec, &response)

	assert.InDelta(t, 51.8, response.Nutrition.TotalCarbs, 0.01)
	require.NotNil(t, response.AmountRecommendation)
	assert.Greater(t, response.AmountRecommendation.RecommendedWeight, 0.0)
	require.NotNil(t, response.DailyBudget)
	assert.Equal(t, 45.0, response.DailyBudget.CarbsPerMeal)
}

func TestUnknownTool(t *testing.T) {
	srv := newTestServer(t)

	rec := callTool(t, srv, `{"name": "log_meal", "arguments": {}}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNonPostRejected(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.handleHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
