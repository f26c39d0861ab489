// internal/timectx/timectx.go

// Package timectx derives elapsed-time state from the optional
// timestamps on a prediction request.
package timectx

import "time"

// Context is the elapsed-time state for one prediction call.
// HasTimeContext is false when meal or current time is missing or
// unparsable; downstream components must then use the non-time-aware
// path unchanged.
type Context struct {
	HasTimeContext         bool
	MinutesSinceMeal       *float64
	MinutesSinceMedication *float64
}

// Build parses the request timestamps. currentTime defaults to now when
// absent. A future-dated meal time (negative elapsed) is treated as no
// time context rather than clamped; a future-dated medication time only
// drops the medication elapsed value.
func Build(mealTime, medicationTime, currentTime string, now func() time.Time) Context {
	if now == nil {
		now = time.Now
	}

	current, ok := parseTimestamp(currentTime)
	if !ok {
		if currentTime != "" {
			return Context{}
		}
		current = now()
	}

	meal, ok := parseTimestamp(mealTime)
	if !ok {
		return Context{}
	}

	sinceMeal := current.Sub(meal).Minutes()
	if sinceMeal < 0 {
		return Context{}
	}

	ctx := Context{
		HasTimeContext:   true,
		MinutesSinceMeal: &sinceMeal,
	}

	if med, ok := parseTimestamp(medicationTime); ok {
		sinceMed := current.Sub(med).Minutes()
		if sinceMed >= 0 {
			ctx.MinutesSinceMedication = &sinceMed
		}
	}

	return ctx
}

// parseTimestamp accepts RFC 3339, with or without sub-second digits or
// an explicit offset.
func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
