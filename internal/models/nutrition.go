// internal/models/nutrition.go
package models

// NutritionInfo holds macro content per 100 g of a food, as returned by
// the nutrition lookup collaborator.
type NutritionInfo struct {
	Carbs    float64  `json:"carbs"`
	Protein  float64  `json:"protein"`
	Fat      float64  `json:"fat"`
	Fiber    float64  `json:"fiber"`
	Calories float64  `json:"calories"`
	GIValue  *float64 `json:"gi_value,omitempty"`
}

// FoodItemInput is one food in a nutrition calculation.
type FoodItemInput struct {
	Name          string  `json:"name"`
	Weight        float64 `json:"weight"` // grams
	CookingMethod string  `json:"cooking_method,omitempty"`
}

// FoodNutrition is the per-food breakdown in a nutrition summary.
type FoodNutrition struct {
	Name     string   `json:"name"`
	Weight   float64  `json:"weight"`
	Carbs    float64  `json:"carbs"`
	NetCarbs float64  `json:"net_carbs"`
	Protein  float64  `json:"protein"`
	Fat      float64  `json:"fat"`
	Fiber    float64  `json:"fiber"`
	Calories float64  `json:"calories"`
	GIValue  *float64 `json:"gi_value,omitempty"`
}

// NutritionSummary aggregates a meal's macros. GIValue is the
// carb-weighted average GI; GLValue is GI x carbs / 100.
type NutritionSummary struct {
	TotalCarbs float64         `json:"total_carbs"`
	NetCarbs   float64         `json:"net_carbs"`
	Protein    float64         `json:"protein"`
	Fat        float64         `json:"fat"`
	Fiber      float64         `json:"fiber"`
	Calories   float64         `json:"calories"`
	GIValue    *float64        `json:"gi_value,omitempty"`
	GLValue    *float64        `json:"gl_value,omitempty"`
	Details    []FoodNutrition `json:"calculation_details"`
}

// AmountRecommendation is the suggested serving for one food given the
// user's per-meal carb budget.
type AmountRecommendation struct {
	RecommendedWeight float64 `json:"recommended_weight"` // grams
	RecommendedCarbs  float64 `json:"recommended_carbs"`
	CurrentWeight     float64 `json:"current_weight"`
	AdjustmentFactor  float64 `json:"adjustment_factor"`
	Reason            string  `json:"reason"`
	Warning           string  `json:"warning,omitempty"`
}

// DailyBudget is the recommended daily macro intake for a profile.
type DailyBudget struct {
	Calories     float64 `json:"daily_calories"`
	Carbs        float64 `json:"daily_carbs"`
	Protein      float64 `json:"daily_protein"`
	Fat          float64 `json:"daily_fat"`
	Fiber        float64 `json:"daily_fiber"`
	CarbsPerMeal float64 `json:"carbs_per_meal"`
	BMR          float64 `json:"bmr"`
}

// DoseRecommendation is the insulin calculator output.
type DoseRecommendation struct {
	RecommendedDose    float64   `json:"recommended_dose"`
	CarbInsulin        float64   `json:"carb_insulin"`
	CorrectionInsulin  float64   `json:"correction_insulin"`
	ActivityAdjustment float64   `json:"activity_adjustment"`
	InjectionTiming    string    `json:"injection_timing"`
	SplitDose          bool      `json:"split_dose"`
	RiskLevel          RiskLevel `json:"risk_level"`
	Warnings           []string  `json:"warnings"`
}
