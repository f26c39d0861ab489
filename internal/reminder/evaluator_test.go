// internal/reminder/evaluator_test.go
package reminder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glucose-engine/internal/absorption"
	"glucose-engine/internal/timectx"
)

func ctxWith(meal, medication *float64) timectx.Context {
	return timectx.Context{
		HasTimeContext:         meal != nil,
		MinutesSinceMeal:       meal,
		MinutesSinceMedication: medication,
	}
}

func fp(v float64) *float64 { return &v }

func TestEvaluateNoTimeContext(t *testing.T) {
	got := Evaluate(timectx.Context{}, absorption.State{}, 5.0, 60)
	assert.Empty(t, got)
}

func TestEvaluateQuietWindow(t *testing.T) {
	// Mid-absorption with medication on board and normal glucose.
	tc := ctxWith(fp(60), fp(50))
	state := absorption.BuildState(nil, fp(60), fp(50))

	got := Evaluate(tc, state, 7.5, 50)
	assert.Empty(t, got)
}

func TestEvaluateMealReminderWhenInsulinOutlastsFood(t *testing.T) {
	// Meal absorbed long ago, insulin dose still active, glucose
	// drifting low.
	tc := ctxWith(fp(260), fp(120))
	state := absorption.BuildState(nil, fp(260), fp(120))

	got := Evaluate(tc, state, 5.5, 40)
	require.Len(t, got, 1)
	assert.Equal(t, "meal", got[0].Type)
	assert.Equal(t, "medium", got[0].Urgency)
	assert.Contains(t, got[0].Message, "260 minutes ago")
}

func TestEvaluateMealReminderUrgentWhenNearHypo(t *testing.T) {
	tc := ctxWith(fp(260), fp(120))
	state := absorption.BuildState(nil, fp(260), fp(120))

	got := Evaluate(tc, state, 4.2, 40)
	require.Len(t, got, 1)
	assert.Equal(t, "high", got[0].Urgency)
}

func TestEvaluateNoMealReminderWhenInsulinExpired(t *testing.T) {
	// Both the meal and the dose are far in the past.
	tc := ctxWith(fp(400), fp(300))
	state := absorption.BuildState(nil, fp(400), fp(300))

	got := Evaluate(tc, state, 5.5, 40)
	assert.Empty(t, got)
}

func TestEvaluateNoMealReminderWhenGlucoseFine(t *testing.T) {
	tc := ctxWith(fp(260), fp(120))
	state := absorption.BuildState(nil, fp(260), fp(120))

	got := Evaluate(tc, state, 8.0, 40)
	assert.Empty(t, got)
}

func TestEvaluateMedicationReminderForFreshUncoveredMeal(t *testing.T) {
	tc := ctxWith(fp(10), nil)
	state := absorption.BuildState(nil, fp(10), nil)

	got := Evaluate(tc, state, 7.0, 55)
	require.Len(t, got, 1)
	assert.Equal(t, "medication", got[0].Type)
	assert.Equal(t, "medium", got[0].Urgency)
	assert.Contains(t, got[0].Message, "55 g")
}

func TestEvaluateMedicationReminderForStaleCoverage(t *testing.T) {
	// Medication exists but was taken far outside the coverage window.
	tc := ctxWith(fp(10), fp(300))
	state := absorption.BuildState(nil, fp(10), fp(300))

	got := Evaluate(tc, state, 7.0, 55)
	require.Len(t, got, 1)
	assert.Equal(t, "medication", got[0].Type)
}

func TestEvaluateNoMedicationReminderWhenCovered(t *testing.T) {
	tc := ctxWith(fp(10), fp(5))
	state := absorption.BuildState(nil, fp(10), fp(5))

	got := Evaluate(tc, state, 7.0, 55)
	assert.Empty(t, got)
}

func TestEvaluateNoMedicationReminderWithoutCarbs(t *testing.T) {
	tc := ctxWith(fp(10), nil)
	state := absorption.BuildState(nil, fp(10), nil)

	got := Evaluate(tc, state, 7.0, 0)
	assert.Empty(t, got)
}
