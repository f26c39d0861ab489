// internal/insulin/calculator.go

// Package insulin computes mealtime bolus recommendations from the
// standard carb-counting formula plus contextual adjustments.
package insulin

import (
	"fmt"
	"math"
	"time"

	"glucose-engine/internal/models"
	"glucose-engine/internal/predictor"
)

// DoseRequest carries the inputs for one bolus calculation. ISF is how
// many mmol/L one unit of insulin drops glucose; ICR is how many grams
// of carbohydrate one unit covers.
type DoseRequest struct {
	TotalCarbs    float64              `json:"total_carbs"`
	CurrentBG     float64              `json:"current_bg"`
	TargetBG      float64              `json:"target_bg"`
	ISF           float64              `json:"isf"`
	ICR           float64              `json:"icr"`
	ActivityLevel models.ActivityLevel `json:"activity_level,omitempty"`
	MealTime      string               `json:"meal_time,omitempty"`
	GIValue       *float64             `json:"gi_value,omitempty"`
	MaxDose       float64              `json:"max_dose,omitempty"`
	MinDose       float64              `json:"min_dose,omitempty"`
}

func (r *DoseRequest) Validate() error {
	if r.TotalCarbs < 0 {
		return fmt.Errorf("%w: total_carbs must not be negative, got %.1f", models.ErrInvalidInput, r.TotalCarbs)
	}
	if r.CurrentBG <= 0 {
		return fmt.Errorf("%w: current_bg must be positive, got %.1f", models.ErrInvalidInput, r.CurrentBG)
	}
	if r.TargetBG <= 0 {
		return fmt.Errorf("%w: target_bg must be positive, got %.1f", models.ErrInvalidInput, r.TargetBG)
	}
	if r.ISF <= 0 {
		return fmt.Errorf("%w: isf must be positive, got %.1f", models.ErrInvalidInput, r.ISF)
	}
	if r.ICR <= 0 {
		return fmt.Errorf("%w: icr must be positive, got %.1f", models.ErrInvalidInput, r.ICR)
	}
	if !r.ActivityLevel.Valid() {
		return fmt.Errorf("%w: unknown activity_level %q", models.ErrInvalidInput, r.ActivityLevel)
	}
	return nil
}

const defaultMinDose = 0.5

// Calculate produces a dose recommendation. The base dose is carb
// coverage plus high-glucose correction; activity, time of day, and
// the food's glycemic index scale it from there.
func Calculate(req DoseRequest) (*models.DoseRecommendation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var warnings []string

	carbInsulin := req.TotalCarbs / req.ICR

	var correctionInsulin float64
	if req.CurrentBG > req.TargetBG {
		correctionInsulin = (req.CurrentBG - req.TargetBG) / req.ISF
	}

	activityFactor := predictor.ActivityFactor(req.ActivityLevel)
	activityAdjustment := (carbInsulin + correctionInsulin) * (activityFactor - 1.0)

	timeFactor := mealTimeFactor(req.MealTime)

	giFactor := 1.0
	if req.GIValue != nil {
		switch {
		case *req.GIValue > 70:
			giFactor = 1.05
			warnings = append(warnings, "High-GI food: inject 15-30 minutes before the meal")
		case *req.GIValue < 55:
			giFactor = 0.95
			warnings = append(warnings, "Low-GI food: injecting with or after the meal is acceptable")
		}
	}

	totalDose := (carbInsulin + correctionInsulin) * activityFactor * timeFactor * giFactor

	if req.MaxDose > 0 && totalDose > req.MaxDose {
		warnings = append(warnings, fmt.Sprintf("Recommended dose exceeds the configured maximum, capped at %.1f units", req.MaxDose))
		totalDose = req.MaxDose
	}
	minDose := req.MinDose
	if minDose <= 0 {
		minDose = defaultMinDose
	}
	if totalDose < minDose {
		totalDose = minDose
	}

	splitDose := req.GIValue != nil && *req.GIValue > 70 && totalDose > 8
	if splitDose {
		warnings = append(warnings, "Split the dose for better glucose control")
	}

	riskLevel := assessDoseRisk(totalDose, req.CurrentBG)
	if riskLevel == models.RiskHigh {
		warnings = append(warnings, "High risk: consult a physician before injecting")
	}

	return &models.DoseRecommendation{
		RecommendedDose:    round2(totalDose),
		CarbInsulin:        round2(carbInsulin),
		CorrectionInsulin:  round2(correctionInsulin),
		ActivityAdjustment: round2(activityAdjustment),
		InjectionTiming:    injectionTiming(req.GIValue),
		SplitDose:          splitDose,
		RiskLevel:          riskLevel,
		Warnings:           warnings,
	}, nil
}

// mealTimeFactor models the circadian pattern: breakfast needs more
// insulin (dawn phenomenon), dinner slightly less.
func mealTimeFactor(mealTime string) float64 {
	if mealTime == "" {
		return 1.0
	}
	t, err := time.Parse(time.RFC3339, mealTime)
	if err != nil {
		if t, err = time.Parse("2006-01-02T15:04:05", mealTime); err != nil {
			return 1.0
		}
	}

	switch hour := t.Hour(); {
	case hour >= 6 && hour < 9:
		return 1.1
	case hour >= 17 && hour < 20:
		return 0.95
	default:
		return 1.0
	}
}

func injectionTiming(gi *float64) string {
	if gi == nil {
		return "0-15 minutes before the meal"
	}
	switch {
	case *gi > 70:
		return "15-30 minutes before the meal"
	case *gi > 55:
		return "0-15 minutes before the meal"
	default:
		return "with or after the meal"
	}
}

func assessDoseRisk(dose, currentBG float64) models.RiskLevel {
	switch {
	case dose > 15:
		return models.RiskHigh
	case currentBG > 15 && dose > 10:
		return models.RiskHigh
	case currentBG < 4.0:
		return models.RiskHigh
	case dose > 10:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
