// internal/predictor/external.go
package predictor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"glucose-engine/internal/models"
)

// ExternalModel is the model-backed prediction strategy. It prompts a
// completion gateway, parses the JSON reply, and normalizes it into a
// PredictionResult. Any parse or validation failure is returned as an
// error so the caller can fall back to the rule-based strategy.
type ExternalModel struct {
	client CompletionClient
}

func NewExternalModel(client CompletionClient) *ExternalModel {
	return &ExternalModel{client: client}
}

func (e *ExternalModel) Name() string { return "external-model" }

func (e *ExternalModel) Predict(ctx context.Context, in Input) (*models.PredictionResult, error) {
	reply, err := e.client.Complete(ctx, systemPrompt, BuildUserPrompt(in))
	if err != nil {
		return nil, fmt.Errorf("completion request: %w", err)
	}
	return parseModelReply(reply)
}

// modelReply mirrors the JSON the prompt asks the model to produce.
type modelReply struct {
	Predictions []struct {
		TimeMinutes int     `json:"time_minutes"`
		BGValue     float64 `json:"bg_value"`
		Confidence  float64 `json:"confidence"`
	} `json:"predictions"`
	PeakTime        int      `json:"peak_time"`
	PeakValue       float64  `json:"peak_value"`
	RiskLevel       string   `json:"risk_level"`
	Recommendations []string `json:"recommendations"`
	Reasoning       string   `json:"reasoning"`
}

var requiredReplyKeys = []string{"predictions", "peak_time", "peak_value", "risk_level", "recommendations"}

func parseModelReply(reply string) (*models.PredictionResult, error) {
	raw := extractJSON(reply)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in model reply")
	}

	// Key presence is checked on a raw map first so that a reply with a
	// missing field fails loudly instead of decoding to a zero value.
	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, fmt.Errorf("malformed JSON in model reply: %w", err)
	}
	for _, k := range requiredReplyKeys {
		if _, ok := keys[k]; !ok {
			return nil, fmt.Errorf("model reply missing %q", k)
		}
	}

	var parsed modelReply
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("malformed JSON in model reply: %w", err)
	}
	if len(parsed.Predictions) == 0 {
		return nil, fmt.Errorf("model reply has no prediction points")
	}

	points := make([]models.PredictionPoint, 0, len(parsed.Predictions))
	var confidenceSum float64
	for _, p := range parsed.Predictions {
		conf := p.Confidence
		if conf <= 0 || conf > 1 {
			conf = 0.75
		}
		points = append(points, models.PredictionPoint{
			TimeMinutes: p.TimeMinutes,
			BGValue:     models.Round1(models.ClampBG(p.BGValue)),
			Confidence:  conf,
		})
		confidenceSum += conf
	}

	peakValue := models.Round1(models.ClampBG(parsed.PeakValue))

	result := &models.PredictionResult{
		Predictions:     points,
		PeakTime:        parsed.PeakTime,
		PeakValue:       peakValue,
		RiskLevel:       models.RiskFromPeak(peakValue),
		Recommendations: parsed.Recommendations,
		ConfidenceScore: models.Round1(confidenceSum / float64(len(points))),
		Note:            parsed.Reasoning,
	}
	if parsed.RiskLevel != "" && parsed.RiskLevel != string(result.RiskLevel) {
		result.RiskAssessment = parsed.RiskLevel
	}
	return result, nil
}

// extractJSON pulls the JSON payload out of a model reply. Fenced
// blocks take priority over the raw text because models often wrap
// JSON in markdown.
func extractJSON(reply string) string {
	if block := fencedBlock(reply, "```json"); block != "" {
		return block
	}
	if block := fencedBlock(reply, "```"); block != "" {
		return block
	}
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return ""
	}
	return reply[start : end+1]
}

func fencedBlock(reply, fence string) string {
	start := strings.Index(reply, fence)
	if start < 0 {
		return ""
	}
	rest := reply[start+len(fence):]
	end := strings.Index(rest, "```")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}
