// internal/server/tools.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"

	"glucose-engine/internal/insulin"
	"glucose-engine/internal/models"
	"glucose-engine/internal/nutrition"
)

type PredictGlucoseParams struct {
	UserID string `json:"user_id,omitempty" description:"User to predict for (defaults to local)"`
	models.PredictionRequest
}

type SubmitCorrectionParams struct {
	UserID string `json:"user_id,omitempty" description:"User the correction belongs to"`
	models.CorrectionInput
}

type GetCorrectionsParams struct {
	UserID string `json:"user_id,omitempty" description:"User to list corrections for"`
	Limit  int    `json:"limit,omitempty" description:"Maximum number of corrections to return"`
}

type CalculateInsulinDoseParams struct {
	insulin.DoseRequest
}

type CalculateNutritionParams struct {
	Foods []models.FoodItemInput `json:"foods" description:"Foods in the meal with weights in grams"`

	// Optional serving recommendation for the first food.
	RecommendAmount bool                 `json:"recommend_amount,omitempty" description:"Also suggest a serving size for the first food"`
	Profile         *models.UserProfile  `json:"profile,omitempty" description:"User profile for recommendations"`
	ActivityLevel   models.ActivityLevel `json:"activity_level,omitempty" description:"Activity level for recommendations"`
}

type toolHandler func(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error)

func (s *GlucoseServer) toolHandlers() map[string]toolHandler {
	return map[string]toolHandler{
		"predict_glucose":        s.handlePredictGlucose,
		"submit_correction":      s.handleSubmitCorrection,
		"get_corrections":        s.handleGetCorrections,
		"calculate_insulin_dose": s.handleCalculateInsulinDose,
		"calculate_nutrition":    s.handleCalculateNutrition,
	}
}

// extractParams safely extracts parameters from the request arguments
func extractParams(req *protocol.CallToolRequest, target interface{}) error {
	jsonBytes, err := json.Marshal(req.Arguments)
	if err != nil {
		return fmt.Errorf("failed to marshal arguments: %w", err)
	}

	if err := json.Unmarshal(jsonBytes, target); err != nil {
		return fmt.Errorf("failed to unmarshal parameters: %w", err)
	}

	return nil
}

// toolErrorStatus maps the engine's error taxonomy onto HTTP codes.
func toolErrorStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrPersistenceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *GlucoseServer) handlePredictGlucose(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params PredictGlucoseParams
	if err := extractParams(req, &params); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}

	result, err := s.engine.Predict(ctx, params.UserID, &params.PredictionRequest)
	if err != nil {
		return nil, err
	}

	return s.createJSONResponse(result)
}

func (s *GlucoseServer) handleSubmitCorrection(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params SubmitCorrectionParams
	if err := extractParams(req, &params); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}

	rec, err := s.engine.SubmitCorrection(ctx, params.UserID, &params.CorrectionInput)
	if err != nil {
		return nil, err
	}

	return s.createJSONResponse(rec)
}

func (s *GlucoseServer) handleGetCorrections(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params GetCorrectionsParams
	if err := extractParams(req, &params); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}

	summary, err := s.engine.Corrections(ctx, params.UserID, params.Limit)
	if err != nil {
		return nil, err
	}

	return s.createJSONResponse(summary)
}

func (s *GlucoseServer) handleCalculateInsulinDose(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params CalculateInsulinDoseParams
	if err := extractParams(req, &params); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}

	dose, err := insulin.Calculate(params.DoseRequest)
	if err != nil {
		return nil, err
	}

	return s.createJSONResponse(dose)
}

func (s *GlucoseServer) handleCalculateNutrition(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params CalculateNutritionParams
	if err := extractParams(req, &params); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}

	summary, err := s.nutrition.Calculate(ctx, params.Foods)
	if err != nil {
		return nil, err
	}

	response := map[string]interface{}{
		"nutrition": summary,
	}

	if params.RecommendAmount && len(summary.Details) > 0 {
		first := summary.Details[0]
		carbsPer100g := 0.0
		if first.Weight > 0 {
			carbsPer100g = first.Carbs / first.Weight * 100
		}
		response["amount_recommendation"] = nutrition.RecommendAmount(
			carbsPer100g, first.GIValue, summary.GLValue,
			first.Weight, params.Profile, params.ActivityLevel)
		response["daily_budget"] = nutrition.DailyBudget(params.Profile, params.ActivityLevel)
	}

	return s.createJSONResponse(response)
}

// registerTools sanity-checks the handler table at startup.
func (s *GlucoseServer) registerTools() error {
	for name := range s.toolHandlers() {
		s.logger.Info("registered tool", "tool", name)
	}
	return nil
}
