// internal/absorption/absorption.go

// Package absorption models carbohydrate-to-glucose rise and
// insulin-to-glucose fall as pure functions of elapsed time. Everything
// here is deterministic and safe to call from the rule engine and the
// external-model path alike.
package absorption

import "math"

const (
	// CarbImpactPerGram is the base glucose rise per gram of carbs, mmol/L.
	CarbImpactPerGram = 0.15
	// InsulinDropPerUnit is the glucose drop per unit of rapid insulin, mmol/L.
	InsulinDropPerUnit = 2.0
	// InsulinActionMinutes bounds the insulin effect window.
	InsulinActionMinutes = 240.0

	// DecayBase and DecayStepMinutes shape the post-peak exponential
	// decay: decay = DecayBase^((t-peak)/DecayStepMinutes).
	DecayBase        = 0.95
	DecayStepMinutes = 30.0
)

// GI tier boundaries.
const (
	giHighThreshold   = 70.0
	giMediumThreshold = 55.0
)

// Multiplier returns the carb impact multiplier for a GI value.
// Unknown GI is treated as slow-absorbing.
func Multiplier(gi *float64) float64 {
	switch {
	case gi != nil && *gi > giHighThreshold:
		return 1.2
	case gi != nil && *gi > giMediumThreshold:
		return 1.0
	default:
		return 0.8
	}
}

// PeakMinutes returns the expected glucose peak time for a GI value:
// fast carbs peak around 1h, medium 1.5h, slow (or unknown) 2h.
func PeakMinutes(gi *float64) int {
	switch {
	case gi != nil && *gi > giHighThreshold:
		return 60
	case gi != nil && *gi > giMediumThreshold:
		return 90
	default:
		return 120
	}
}

// AbsorptionCompleteMinutes is when carb absorption is considered done,
// twice the peak time for the tier.
func AbsorptionCompleteMinutes(gi *float64) float64 {
	return 2 * float64(PeakMinutes(gi))
}

// RiseFraction is the linear pre-peak interpolation ratio, capped at 1.
func RiseFraction(elapsedMin float64, peakMin int) float64 {
	if peakMin <= 0 {
		return 1
	}
	if elapsedMin <= 0 {
		return 0
	}
	return math.Min(1, elapsedMin/float64(peakMin))
}

// DecayFactor is the post-peak exponential decay factor, 1 at or before
// the peak.
func DecayFactor(elapsedMin float64, peakMin int) float64 {
	past := elapsedMin - float64(peakMin)
	if past <= 0 {
		return 1
	}
	return math.Pow(DecayBase, past/DecayStepMinutes)
}

// CarbEffect returns the glucose delta contributed by a carb load at a
// given minute mark: linear rise to the GI-tier peak, exponential decay
// after it.
func CarbEffect(totalCarbs float64, gi *float64, elapsedMin float64) float64 {
	if totalCarbs <= 0 || elapsedMin <= 0 {
		return 0
	}
	impact := CarbImpactPerGram * totalCarbs * Multiplier(gi)
	peak := PeakMinutes(gi)
	if elapsedMin <= float64(peak) {
		return impact * RiseFraction(elapsedMin, peak)
	}
	return impact * DecayFactor(elapsedMin, peak)
}

// InsulinRemainingFraction is the fraction of a dose still active after
// elapsedMin. It decays exponentially and is hard-zero once the action
// window has elapsed.
func InsulinRemainingFraction(elapsedMin float64) float64 {
	if elapsedMin <= 0 {
		return 1
	}
	if elapsedMin >= InsulinActionMinutes {
		return 0
	}
	return math.Exp(-3 * elapsedMin / InsulinActionMinutes)
}

// InsulinRemainingMinutes is the time left in the action window.
func InsulinRemainingMinutes(elapsedMin float64) float64 {
	return math.Max(0, InsulinActionMinutes-elapsedMin)
}

// InsulinEffect returns the cumulative glucose drop realized by
// elapsedMin. No effect before injection; the full drop once the window
// has elapsed.
func InsulinEffect(dose float64, elapsedMin float64) float64 {
	if dose <= 0 || elapsedMin <= 0 {
		return 0
	}
	used := 1 - InsulinRemainingFraction(elapsedMin)
	return InsulinDropPerUnit * dose * used
}

// State captures the absorption snapshot for one prediction call. Nil
// elapsed inputs mean the corresponding timestamp was absent.
type State struct {
	PeakMinutes         int
	CompleteMinutes     float64
	CarbFractionElapsed float64 // 0..1, rise progress toward the peak

	InsulinRemainingFraction float64 // 0..1
	InsulinRemainingMinutes  float64
}

// BuildState derives the absorption snapshot from a request's carb/GI
// and the elapsed minutes computed by the time context.
func BuildState(gi *float64, minsSinceMeal, minsSinceMedication *float64) State {
	st := State{
		PeakMinutes:     PeakMinutes(gi),
		CompleteMinutes: AbsorptionCompleteMinutes(gi),
		// Without a medication timestamp, assume the dose was just given.
		InsulinRemainingFraction: 1,
		InsulinRemainingMinutes:  InsulinActionMinutes,
	}
	if minsSinceMeal != nil {
		st.CarbFractionElapsed = RiseFraction(*minsSinceMeal, st.PeakMinutes)
	}
	if minsSinceMedication != nil {
		st.InsulinRemainingFraction = InsulinRemainingFraction(*minsSinceMedication)
		st.InsulinRemainingMinutes = InsulinRemainingMinutes(*minsSinceMedication)
	}
	return st
}
