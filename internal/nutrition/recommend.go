// internal/nutrition/recommend.go
package nutrition

import (
	"fmt"
	"strings"

	"glucose-engine/internal/models"
)

// Defaults used when the profile is missing fields.
const (
	defaultAge          = 45
	defaultBudgetAge    = 30
	defaultWeight       = 70.0
	defaultHeight       = 175.0
	defaultSex          = "male"
	defaultDiabetesType = "type2"

	minServingGrams = 10.0
	maxServingGrams = 500.0
)

// Per-meal carbohydrate budgets in grams by diabetes type and activity
// tier.
var carbsPerMealTable = map[string]map[string]float64{
	"type1":       {"sedentary": 45, "moderate": 60, "active": 75},
	"type2":       {"sedentary": 30, "moderate": 45, "active": 60},
	"gestational": {"sedentary": 40, "moderate": 50, "active": 60},
	"prediabetes": {"sedentary": 35, "moderate": 50, "active": 65},
}

// Harris-Benedict coefficients for basal metabolic rate.
var bmrCoefficients = map[string]struct{ base, weight, height, age float64 }{
	"male":   {base: 88.362, weight: 13.397, height: 4.799, age: 5.677},
	"female": {base: 447.593, weight: 9.247, height: 3.098, age: 4.330},
}

// Total-energy multipliers over BMR by activity level.
var tdeeFactors = map[models.ActivityLevel]float64{
	models.ActivitySedentary: 1.2,
	models.ActivityLight:     1.375,
	models.ActivityModerate:  1.55,
	models.ActivityVigorous:  1.725,
}

// CarbsPerMeal returns the per-meal carbohydrate budget for a diabetes
// type and activity level. Unknown values fall back to type 2 at
// moderate activity.
func CarbsPerMeal(diabetesType string, activity models.ActivityLevel) float64 {
	tier := "moderate"
	switch activity {
	case models.ActivitySedentary, models.ActivityLight:
		tier = "sedentary"
	case models.ActivityVigorous:
		tier = "active"
	}

	diabetes := strings.ToLower(diabetesType)
	budgets, ok := carbsPerMealTable[diabetes]
	if !ok {
		budgets = carbsPerMealTable[defaultDiabetesType]
	}
	return budgets[tier]
}

// RecommendAmount suggests how much of one food fits the user's
// per-meal carb budget, shrinking the serving for fast carbs and
// growing it for slow ones.
func RecommendAmount(carbsPer100g float64, gi, gl *float64, currentWeight float64, profile *models.UserProfile, activity models.ActivityLevel) *models.AmountRecommendation {
	diabetesType := defaultDiabetesType
	if profile != nil && profile.DiabetesType != "" {
		diabetesType = profile.DiabetesType
	}
	budget := CarbsPerMeal(diabetesType, activity)

	if carbsPer100g <= 0 {
		return &models.AmountRecommendation{
			RecommendedWeight: currentWeight,
			RecommendedCarbs:  0,
			CurrentWeight:     currentWeight,
			AdjustmentFactor:  1.0,
			Reason:            "This food contains little or no carbohydrate, so a normal portion is fine",
		}
	}

	adjustment := 1.0
	var warning string
	if gi != nil {
		switch {
		case *gi > 70:
			adjustment = 0.8
			warning = "High-GI food: reduce the portion and pair it with low-GI foods"
		case *gi < 55:
			adjustment = 1.1
		}
	}
	if gl != nil {
		switch {
		case *gl > 20:
			adjustment *= 0.85
			if warning == "" {
				warning = "High glycemic load: reduce the portion"
			}
		case *gl < 10:
			adjustment *= 1.05
		}
	}

	weight := (budget * adjustment / carbsPer100g) * 100
	if weight < minServingGrams {
		weight = minServingGrams
	} else if weight > maxServingGrams {
		weight = maxServingGrams
		warning = "The suggested portion is large; split it across meals or consult a physician"
	}

	factor := 1.0
	if currentWeight > 0 {
		factor = weight / currentWeight
	}

	return &models.AmountRecommendation{
		RecommendedWeight: round1(weight),
		RecommendedCarbs:  round1(weight / 100 * carbsPer100g),
		CurrentWeight:     round1(currentWeight),
		AdjustmentFactor:  round2(factor),
		Reason:            fmt.Sprintf("Based on your profile, aim for about %.0f g of carbohydrates per meal", budget),
		Warning:           warning,
	}
}

// DailyBudget derives a daily intake plan from the profile: BMR scaled
// by activity, adjusted for diabetes type, then split into macros.
func DailyBudget(profile *models.UserProfile, activity models.ActivityLevel) *models.DailyBudget {
	sex := defaultSex
	weight := defaultWeight
	height := defaultHeight
	age := defaultBudgetAge
	diabetesType := defaultDiabetesType

	if profile != nil {
		if profile.Sex != "" {
			sex = strings.ToLower(profile.Sex)
		}
		if profile.Weight > 0 {
			weight = profile.Weight
		}
		if profile.Height > 0 {
			height = profile.Height
		}
		if profile.Age > 0 {
			age = profile.Age
		}
		if profile.DiabetesType != "" {
			diabetesType = strings.ToLower(profile.DiabetesType)
		}
	}

	coeff, ok := bmrCoefficients[sex]
	if !ok {
		coeff = bmrCoefficients[defaultSex]
	}
	bmr := coeff.base + coeff.weight*weight + coeff.height*height - coeff.age*float64(age)

	factor, ok := tdeeFactors[activity]
	if !ok {
		factor = tdeeFactors[models.ActivityModerate]
	}
	calories := bmr * factor

	switch diabetesType {
	case "type2":
		calories *= 0.9
	case "gestational":
		calories *= 1.1
	}

	carbsPerMeal := CarbsPerMeal(diabetesType, activity)

	proteinPerKg := 1.0
	if diabetesType == "type2" {
		proteinPerKg = 1.1
	}

	return &models.DailyBudget{
		Calories:     round0(calories),
		Carbs:        round1(carbsPerMeal * 3),
		Protein:      round1(weight * proteinPerKg),
		Fat:          round1(calories * 0.30 / 9.0),
		Fiber:        round1(calories / 1000.0 * 14.0),
		CarbsPerMeal: round1(carbsPerMeal),
		BMR:          round0(bmr),
	}
}

func round0(v float64) float64 {
	if v < 0 {
		v = 0
	}
	return float64(int64(v + 0.5))
}
