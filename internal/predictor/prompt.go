// internal/predictor/prompt.go
package predictor

import (
	"fmt"
	"strings"

	"glucose-engine/internal/models"
)

const systemPrompt = `You are an experienced diabetes management specialist. Based on the patient's meal, insulin dose, current blood glucose, and recent records, predict the postprandial blood glucose trajectory.

Respond with JSON only, matching the required format exactly. Do not add any text outside the JSON.`

// BuildUserPrompt renders the full prediction prompt for the external
// model, including profile, recent history, correction bias, and the
// absorption timeline when timestamps are available.
func BuildUserPrompt(in Input) string {
	req := in.Request
	var b strings.Builder

	b.WriteString("## Prediction request\n")
	fmt.Fprintf(&b, "- Total carbohydrates: %.1f g\n", req.TotalCarbs)
	fmt.Fprintf(&b, "- Insulin dose: %.1f units\n", req.InsulinDose)
	fmt.Fprintf(&b, "- Current blood glucose: %.1f mmol/L\n", req.CurrentBG)
	if req.GIValue != nil {
		fmt.Fprintf(&b, "- Glycemic index: %.0f\n", *req.GIValue)
	} else {
		b.WriteString("- Glycemic index: unknown\n")
	}
	activity := req.ActivityLevel
	if activity == "" {
		activity = models.ActivitySedentary
	}
	fmt.Fprintf(&b, "- Activity level: %s\n", activity)

	writeProfile(&b, req.Profile)
	writeHistory(&b, req)
	writeTimeline(&b, in)

	if in.CorrectionCount > 0 {
		b.WriteString("\n## Calibration\n")
		fmt.Fprintf(&b, "Across the last %d corrections this model under-predicted by an average of %.1f mmol/L (negative means over-predicted). Adjust your predictions accordingly.\n",
			in.CorrectionCount, in.UserBias)
	}

	b.WriteString(`
## Required JSON format
{
  "predictions": [
    {"time_minutes": 30, "bg_value": 8.5, "confidence": 0.85},
    {"time_minutes": 60, "bg_value": 9.2, "confidence": 0.85},
    {"time_minutes": 90, "bg_value": 9.8, "confidence": 0.75},
    {"time_minutes": 120, "bg_value": 9.1, "confidence": 0.75},
    {"time_minutes": 180, "bg_value": 7.9, "confidence": 0.75},
    {"time_minutes": 240, "bg_value": 7.0, "confidence": 0.75}
  ],
  "peak_time": 90,
  "peak_value": 9.8,
  "risk_level": "low",
  "recommendations": ["..."],
  "reasoning": "..."
}

Blood glucose values are in mmol/L between 3.0 and 20.0. risk_level is one of low, medium, high.`)

	return b.String()
}

func writeProfile(b *strings.Builder, p *models.UserProfile) {
	if p == nil {
		return
	}
	b.WriteString("\n## Patient profile\n")
	if p.DiabetesType != "" {
		fmt.Fprintf(b, "- Diabetes type: %s\n", p.DiabetesType)
	}
	if p.Age > 0 {
		fmt.Fprintf(b, "- Age: %d\n", p.Age)
	}
	if p.Weight > 0 {
		fmt.Fprintf(b, "- Weight: %.1f kg\n", p.Weight)
	}
	if p.Height > 0 {
		fmt.Fprintf(b, "- Height: %.0f cm\n", p.Height)
		if p.Weight > 0 {
			meters := p.Height / 100
			fmt.Fprintf(b, "- BMI: %.1f\n", p.Weight/(meters*meters))
		}
	}
}

func writeHistory(b *strings.Builder, req *models.PredictionRequest) {
	meals := lastN(req.RecentMeals, models.MaxHistoryItems)
	meds := lastN(req.RecentMedications, models.MaxHistoryItems)
	exercise := lastN(req.RecentExercises, models.MaxHistoryItems)
	water := lastN(req.RecentWater, models.MaxHistoryItems)

	if len(meals)+len(meds)+len(exercise)+len(water) == 0 {
		return
	}

	b.WriteString("\n## Recent records\n")
	for _, m := range meals {
		if m.Foods != "" {
			fmt.Fprintf(b, "- Meal at %s: %s (%.0f g carbs)\n", m.MealTime, m.Foods, m.TotalCarbs)
		} else {
			fmt.Fprintf(b, "- Meal at %s: %.0f g carbs\n", m.MealTime, m.TotalCarbs)
		}
	}
	for _, m := range meds {
		fmt.Fprintf(b, "- Medication at %s: %s, %.1f units\n", m.MedicationTime, m.MedicationType, m.Dosage)
	}
	for _, e := range exercise {
		fmt.Fprintf(b, "- Exercise at %s: %s for %.0f minutes\n", e.ExerciseTime, e.ExerciseType, e.Duration)
	}
	for _, w := range water {
		fmt.Fprintf(b, "- Water at %s: %.0f ml\n", w.RecordTime, w.Amount)
	}
}

func writeTimeline(b *strings.Builder, in Input) {
	if !in.Time.HasTimeContext {
		return
	}
	b.WriteString("\n## Absorption timeline\n")
	if in.Time.MinutesSinceMeal != nil {
		fmt.Fprintf(b, "- Minutes since the meal: %.0f\n", *in.Time.MinutesSinceMeal)
	}
	fmt.Fprintf(b, "- Expected carbohydrate peak: %d minutes after the meal\n", in.State.PeakMinutes)
	fmt.Fprintf(b, "- Carbohydrate absorption completes around %.0f minutes\n", in.State.CompleteMinutes)
	fmt.Fprintf(b, "- Fraction of carbohydrate effect already realized: %.0f%%\n", in.State.CarbFractionElapsed*100)
	if in.Time.MinutesSinceMedication != nil {
		fmt.Fprintf(b, "- Minutes since the insulin dose: %.0f\n", *in.Time.MinutesSinceMedication)
		fmt.Fprintf(b, "- Insulin remaining: %.0f%% (about %.0f minutes of activity left)\n",
			in.State.InsulinRemainingFraction*100, in.State.InsulinRemainingMinutes)
	}
	b.WriteString("Predictions are relative to now, so account for the effect already absorbed.\n")
}

func lastN[T any](items []T, n int) []T {
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}
