// internal/reminder/evaluator.go
package reminder

import (
	"fmt"

	"glucose-engine/internal/absorption"
	"glucose-engine/internal/models"
	"glucose-engine/internal/timectx"
)

// Thresholds for deriving reminders from the absorption timeline.
const (
	lowTrendBG        = 6.0  // mmol/L, insulin still active below this is worth a nudge
	urgentLowBG       = 4.5  // mmol/L
	recentMealMinutes = 30.0 // a meal this fresh should have matching medication
)

// Evaluate derives meal and medication reminders from the elapsed-time
// picture. No reminder is the normal outcome; callers get an empty
// slice, never an error.
func Evaluate(tc timectx.Context, state absorption.State, currentBG, totalCarbs float64) []models.Reminder {
	if !tc.HasTimeContext || tc.MinutesSinceMeal == nil {
		return nil
	}

	var reminders []models.Reminder
	sinceMeal := *tc.MinutesSinceMeal

	// Carbs from the last meal are fully absorbed but insulin is still
	// working, so glucose has nothing left to push against the drop.
	if sinceMeal > state.CompleteMinutes &&
		tc.MinutesSinceMedication != nil &&
		state.InsulinRemainingFraction > 0 &&
		currentBG <= lowTrendBG {

		urgency := "medium"
		if currentBG < urgentLowBG {
			urgency = "high"
		}
		reminders = append(reminders, models.Reminder{
			Type: "meal",
			Message: fmt.Sprintf(
				"Last meal was %.0f minutes ago and insulin is still active for about %.0f minutes. Consider eating to avoid low glucose.",
				sinceMeal, state.InsulinRemainingMinutes),
			Urgency: urgency,
		})
	}

	// A fresh meal with carbs but no insulin coverage in the expected
	// window.
	if sinceMeal < recentMealMinutes && totalCarbs > 0 && !medicationCovers(tc) {
		reminders = append(reminders, models.Reminder{
			Type: "medication",
			Message: fmt.Sprintf(
				"A meal with %.0f g of carbohydrates was logged %.0f minutes ago with no matching insulin dose. Check whether medication is due.",
				totalCarbs, sinceMeal),
			Urgency: "medium",
		})
	}

	return reminders
}

func medicationCovers(tc timectx.Context) bool {
	if tc.MinutesSinceMedication == nil {
		return false
	}
	return *tc.MinutesSinceMedication <= absorption.InsulinActionMinutes
}
