// internal/nutrition/calculator.go

// Package nutrition computes meal macros, serving-size recommendations,
// and daily intake budgets for diabetic users.
package nutrition

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"glucose-engine/internal/models"
)

// Lookup resolves per-100g nutrition facts for a food name. A nil or
// failing lookup falls through to the built-in table and then to
// conservative defaults, so Calculate never fails on an unknown food.
type Lookup interface {
	Nutrition(ctx context.Context, name string) (*models.NutritionInfo, error)
}

// Built-in per-100g facts for common staples.
var builtinFoods = map[string]models.NutritionInfo{
	"white rice":   {Carbs: 25.9, Protein: 2.6, Fat: 0.3, Fiber: 0.3, Calories: 116, GIValue: fptr(83)},
	"rice":         {Carbs: 25.9, Protein: 2.6, Fat: 0.3, Fiber: 0.3, Calories: 116, GIValue: fptr(83)},
	"noodles":      {Carbs: 25.0, Protein: 4.0, Fat: 1.0, Fiber: 1.0, Calories: 130, GIValue: fptr(55)},
	"bread":        {Carbs: 50.0, Protein: 8.0, Fat: 3.0, Fiber: 2.0, Calories: 250, GIValue: fptr(70)},
	"egg":          {Carbs: 1.1, Protein: 13.0, Fat: 10.0, Fiber: 0, Calories: 144},
	"chicken":      {Carbs: 0, Protein: 20.0, Fat: 5.0, Fiber: 0, Calories: 125},
	"pork":         {Carbs: 0, Protein: 20.0, Fat: 15.0, Fiber: 0, Calories: 200},
	"braised pork": {Carbs: 5.0, Protein: 15.0, Fat: 30.0, Fiber: 0, Calories: 320},
	"leafy greens": {Carbs: 3.0, Protein: 2.0, Fat: 0.2, Fiber: 2.0, Calories: 20, GIValue: fptr(15)},
	"bok choy":     {Carbs: 2.5, Protein: 1.5, Fat: 0.2, Fiber: 1.5, Calories: 15, GIValue: fptr(15)},
}

// defaultNutrition approximates an average mixed food when nothing
// matches.
var defaultNutrition = models.NutritionInfo{
	Carbs: 20.0, Protein: 5.0, Fat: 5.0, Fiber: 2.0, Calories: 150, GIValue: fptr(50),
}

// Cooking shifts the effective glycemic index.
var cookingFactors = map[string]float64{
	"steamed": 0.95,
	"boiled":  0.95,
	"fried":   1.10,
	"braised": 1.05,
	"roasted": 1.05,
	"raw":     1.0,
}

func fptr(v float64) *float64 { return &v }

type Calculator struct {
	lookup Lookup
	logger *slog.Logger
}

func NewCalculator(lookup Lookup, logger *slog.Logger) *Calculator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Calculator{lookup: lookup, logger: logger}
}

// Calculate sums the macros of a meal. Fiber is subtracted from carbs
// for the net figure, and the meal GI is the carb-weighted average of
// the per-food GI after cooking adjustment.
func (c *Calculator) Calculate(ctx context.Context, foods []models.FoodItemInput) (*models.NutritionSummary, error) {
	if len(foods) == 0 {
		return nil, fmt.Errorf("%w: at least one food is required", models.ErrInvalidInput)
	}

	summary := &models.NutritionSummary{}
	var weightedGI, carbWeight float64

	for _, food := range foods {
		if food.Weight <= 0 {
			return nil, fmt.Errorf("%w: weight for %q must be positive, got %.1f", models.ErrInvalidInput, food.Name, food.Weight)
		}

		info := c.foodNutrition(ctx, food.Name)
		ratio := food.Weight / 100.0

		carbs := info.Carbs * ratio
		fiber := info.Fiber * ratio
		netCarbs := carbs - fiber

		var giValue *float64
		if info.GIValue != nil && *info.GIValue > 0 {
			adjusted := *info.GIValue * cookingFactor(food.CookingMethod)
			giValue = &adjusted
			if carbs > 0 {
				weightedGI += adjusted * carbs
				carbWeight += carbs
			}
		}

		detail := models.FoodNutrition{
			Name:     food.Name,
			Weight:   food.Weight,
			Carbs:    round2(carbs),
			NetCarbs: round2(netCarbs),
			Protein:  round2(info.Protein * ratio),
			Fat:      round2(info.Fat * ratio),
			Fiber:    round2(fiber),
			Calories: round2(info.Calories * ratio),
		}
		if giValue != nil {
			rounded := round1(*giValue)
			detail.GIValue = &rounded
		}

		summary.TotalCarbs += carbs
		summary.NetCarbs += netCarbs
		summary.Protein += info.Protein * ratio
		summary.Fat += info.Fat * ratio
		summary.Fiber += fiber
		summary.Calories += info.Calories * ratio
		summary.Details = append(summary.Details, detail)
	}

	summary.TotalCarbs = round2(summary.TotalCarbs)
	summary.NetCarbs = round2(summary.NetCarbs)
	summary.Protein = round2(summary.Protein)
	summary.Fat = round2(summary.Fat)
	summary.Fiber = round2(summary.Fiber)
	summary.Calories = round2(summary.Calories)

	if carbWeight > 0 {
		avgGI := round1(weightedGI / carbWeight)
		glValue := round2(avgGI * summary.TotalCarbs / 100.0)
		summary.GIValue = &avgGI
		summary.GLValue = &glValue
	}

	return summary, nil
}

func (c *Calculator) foodNutrition(ctx context.Context, name string) models.NutritionInfo {
	if c.lookup != nil {
		info, err := c.lookup.Nutrition(ctx, name)
		if err == nil && info != nil {
			return *info
		}
		if err != nil {
			c.logger.WarnContext(ctx, "nutrition lookup failed, using built-in table",
				"food", name, "error", err)
		}
	}

	key := strings.ToLower(strings.TrimSpace(name))
	if info, ok := builtinFoods[key]; ok {
		return info
	}
	for tableName, info := range builtinFoods {
		if strings.Contains(key, tableName) {
			return info
		}
	}

	c.logger.Debug("food not found, using default nutrition", "food", name)
	return defaultNutrition
}

func cookingFactor(method string) float64 {
	if method == "" {
		return 1.0
	}
	if factor, ok := cookingFactors[strings.ToLower(method)]; ok {
		return factor
	}
	return 1.0
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
