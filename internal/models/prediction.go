// internal/models/prediction.go
package models

import (
	"fmt"
	"math"
	"time"
)

// Blood glucose bounds in mmol/L. Every predicted point is clamped to
// this range before it leaves the engine.
const (
	MinBG = 3.0
	MaxBG = 20.0
)

// Risk thresholds in mmol/L, applied to the forecast peak.
const (
	RiskHighThreshold   = 13.9
	RiskMediumThreshold = 10.0
)

// CanonicalOffsets are the post-meal minute marks every prediction
// curve is sampled at.
var CanonicalOffsets = []int{30, 60, 90, 120, 180, 240}

type ActivityLevel string

const (
	ActivitySedentary ActivityLevel = "sedentary"
	ActivityLight     ActivityLevel = "light"
	ActivityModerate  ActivityLevel = "moderate"
	ActivityVigorous  ActivityLevel = "vigorous"
)

// Valid reports whether the activity level is one of the known values.
// An empty level is valid and treated as sedentary.
func (a ActivityLevel) Valid() bool {
	switch a {
	case "", ActivitySedentary, ActivityLight, ActivityModerate, ActivityVigorous:
		return true
	}
	return false
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RiskFromPeak classifies a forecast peak. This is the only place risk
// is derived; callers must not compute it from anything else.
func RiskFromPeak(peakValue float64) RiskLevel {
	switch {
	case peakValue > RiskHighThreshold:
		return RiskHigh
	case peakValue > RiskMediumThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

// ClampBG bounds a glucose value to the displayable range.
func ClampBG(v float64) float64 {
	return math.Max(MinBG, math.Min(MaxBG, v))
}

// Round1 rounds to one decimal, the resolution glucose values are
// reported at.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// UserProfile carries optional physiology used to personalize the
// external-model prompt and the nutrition recommendations.
type UserProfile struct {
	Weight       float64 `json:"weight,omitempty"` // kg
	Height       float64 `json:"height,omitempty"` // cm
	Age          int     `json:"age,omitempty"`
	Sex          string  `json:"sex,omitempty"`           // "male"/"female"
	DiabetesType string  `json:"diabetes_type,omitempty"` // "type1", "type2", "gestational", "prediabetes"
}

// History entries attached to a prediction request. At most
// MaxHistoryItems per category are considered.
const MaxHistoryItems = 3

type MealRecord struct {
	MealTime   string  `json:"meal_time"`
	TotalCarbs float64 `json:"total_carbs"`
	Foods      string  `json:"foods,omitempty"`
}

type MedicationRecord struct {
	MedicationTime string  `json:"medication_time"`
	MedicationType string  `json:"medication_type"`
	Dosage         float64 `json:"dosage"`
}

type ExerciseRecord struct {
	ExerciseTime string  `json:"exercise_time"`
	ExerciseType string  `json:"exercise_type"`
	Duration     float64 `json:"duration"` // minutes
}

type WaterRecord struct {
	RecordTime string  `json:"record_time"`
	Amount     float64 `json:"amount"` // ml
}

// PredictionRequest is the immutable input to a prediction. Timestamps
// are ISO-8601 strings; missing or unparsable ones simply disable the
// time-aware path.
type PredictionRequest struct {
	TotalCarbs    float64       `json:"total_carbs"`  // grams, > 0
	InsulinDose   float64       `json:"insulin_dose"` // units, >= 0
	CurrentBG     float64       `json:"current_bg"`   // mmol/L, > 0
	GIValue       *float64      `json:"gi_value,omitempty"`
	ActivityLevel ActivityLevel `json:"activity_level,omitempty"`

	MealTime       string `json:"meal_time,omitempty"`
	MedicationTime string `json:"medication_time,omitempty"`
	CurrentTime    string `json:"current_time,omitempty"`

	Profile *UserProfile `json:"profile,omitempty"`

	RecentMeals       []MealRecord       `json:"recent_meals,omitempty"`
	RecentMedications []MedicationRecord `json:"recent_medications,omitempty"`
	RecentExercises   []ExerciseRecord   `json:"recent_exercises,omitempty"`
	RecentWater       []WaterRecord      `json:"recent_water,omitempty"`
}

// Validate rejects inputs the engine must never see. Timestamps are
// deliberately not validated here; a bad timestamp degrades to the
// non-time-aware path instead of failing the request.
func (r *PredictionRequest) Validate() error {
	if r.TotalCarbs <= 0 {
		return fmt.Errorf("%w: total_carbs must be positive, got %.1f", ErrInvalidInput, r.TotalCarbs)
	}
	if r.InsulinDose < 0 {
		return fmt.Errorf("%w: insulin_dose must not be negative, got %.1f", ErrInvalidInput, r.InsulinDose)
	}
	if r.CurrentBG <= 0 {
		return fmt.Errorf("%w: current_bg must be positive, got %.1f", ErrInvalidInput, r.CurrentBG)
	}
	if !r.ActivityLevel.Valid() {
		return fmt.Errorf("%w: unknown activity_level %q", ErrInvalidInput, r.ActivityLevel)
	}
	return nil
}

// PredictionPoint is a single forecast sample.
type PredictionPoint struct {
	TimeMinutes int     `json:"time_minutes"`
	BGValue     float64 `json:"bg_value"`   // mmol/L, within [MinBG, MaxBG]
	Confidence  float64 `json:"confidence"` // 0..1
}

// Reminder is a derived side event, never an error.
type Reminder struct {
	Type    string `json:"type"` // "meal" or "medication"
	Message string `json:"message"`
	Urgency string `json:"urgency"` // "low", "medium", "high"
}

// PredictionResult is the full forecast returned to the caller.
type PredictionResult struct {
	PredictionID    string            `json:"prediction_id,omitempty"`
	Predictions     []PredictionPoint `json:"predictions"`
	PeakTime        int               `json:"peak_time"` // minutes post-meal
	PeakValue       float64           `json:"peak_value"`
	RiskLevel       RiskLevel         `json:"risk_level"`
	Recommendations []string          `json:"recommendations"`
	Reminders       []Reminder        `json:"reminders,omitempty"`

	// Metadata set only when the external model contributed.
	ConfidenceScore float64 `json:"confidence_score,omitempty"`
	RiskAssessment  string  `json:"risk_assessment,omitempty"`
	Note            string  `json:"note,omitempty"`
}

type CorrectionSource string

const (
	SourceManual CorrectionSource = "manual"
	SourceCGM    CorrectionSource = "cgm"
	SourceMeter  CorrectionSource = "meter"
)

// CorrectionInput is a user-submitted actual glucose measurement,
// optionally linked to an earlier prediction.
type CorrectionInput struct {
	PredictionID          string           `json:"prediction_id,omitempty"`
	PredictionTimeMinutes *int             `json:"prediction_time_minutes,omitempty"`
	ActualValue           float64          `json:"actual_value"` // mmol/L, > 0
	MeasuredAt            string           `json:"measured_at,omitempty"`
	Source                CorrectionSource `json:"source,omitempty"`
	Note                  string           `json:"note,omitempty"`
}

func (c *CorrectionInput) Validate() error {
	if c.ActualValue <= 0 {
		return fmt.Errorf("%w: actual_value must be positive, got %.1f", ErrInvalidInput, c.ActualValue)
	}
	switch c.Source {
	case "", SourceManual, SourceCGM, SourceMeter:
	default:
		return fmt.Errorf("%w: unknown source %q", ErrInvalidInput, c.Source)
	}
	return nil
}

// CorrectionRecord is the stored, immutable form of a correction.
type CorrectionRecord struct {
	ID                    string           `json:"id"`
	PredictionID          string           `json:"prediction_id,omitempty"`
	PredictionTimeMinutes *int             `json:"prediction_time_minutes,omitempty"`
	PredictedValue        float64          `json:"predicted_value"`
	ActualValue           float64          `json:"actual_value"`
	Difference            float64          `json:"difference"` // actual - predicted, 0 when unlinked
	MeasuredAt            time.Time        `json:"measured_at"`
	Source                CorrectionSource `json:"source"`
	Note                  string           `json:"note,omitempty"`
	CreatedAt             time.Time        `json:"created_at"`
}
