package timectx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func TestBuildWithFullContext(t *testing.T) {
	ctx := Build(
		"2024-03-10T11:00:00Z",
		"2024-03-10T11:15:00Z",
		"2024-03-10T12:00:00Z",
		fixedNow,
	)

	require.True(t, ctx.HasTimeContext)
	require.NotNil(t, ctx.MinutesSinceMeal)
	require.NotNil(t, ctx.MinutesSinceMedication)
	assert.Equal(t, 60.0, *ctx.MinutesSinceMeal)
	assert.Equal(t, 45.0, *ctx.MinutesSinceMedication)
}

func TestBuildCurrentTimeDefaultsToNow(t *testing.T) {
	ctx := Build("2024-03-10T10:30:00Z", "", "", fixedNow)

	require.True(t, ctx.HasTimeContext)
	require.NotNil(t, ctx.MinutesSinceMeal)
	assert.Equal(t, 90.0, *ctx.MinutesSinceMeal)
	assert.Nil(t, ctx.MinutesSinceMedication)
}

func TestBuildMissingMealTime(t *testing.T) {
	ctx := Build("", "2024-03-10T11:00:00Z", "2024-03-10T12:00:00Z", fixedNow)

	assert.False(t, ctx.HasTimeContext)
	assert.Nil(t, ctx.MinutesSinceMeal)
	assert.Nil(t, ctx.MinutesSinceMedication)
}

func TestBuildUnparsableTimestamps(t *testing.T) {
	tests := []struct {
		name               string
		meal, med, current string
	}{
		{"garbage meal time", "not-a-time", "", ""},
		{"garbage current time", "2024-03-10T11:00:00Z", "", "yesterday-ish"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := Build(tt.meal, tt.med, tt.current, fixedNow)
			assert.False(t, ctx.HasTimeContext)
		})
	}
}

func TestBuildFutureMealTimeDisablesContext(t *testing.T) {
	// Future-dated meal: no time context at all, not a clamp to zero.
	ctx := Build("2024-03-10T13:00:00Z", "", "2024-03-10T12:00:00Z", fixedNow)

	assert.False(t, ctx.HasTimeContext)
	assert.Nil(t, ctx.MinutesSinceMeal)
}

func TestBuildFutureMedicationTimeOnlyDropsMedication(t *testing.T) {
	ctx := Build("2024-03-10T11:00:00Z", "2024-03-10T13:00:00Z", "2024-03-10T12:00:00Z", fixedNow)

	require.True(t, ctx.HasTimeContext)
	require.NotNil(t, ctx.MinutesSinceMeal)
	assert.Nil(t, ctx.MinutesSinceMedication)
}

func TestBuildBadMedicationTimeKeepsMealContext(t *testing.T) {
	ctx := Build("2024-03-10T11:00:00Z", "whenever", "2024-03-10T12:00:00Z", fixedNow)

	require.True(t, ctx.HasTimeContext)
	assert.Nil(t, ctx.MinutesSinceMedication)
}

func TestBuildAcceptsNaiveTimestamps(t *testing.T) {
	ctx := Build("2024-03-10T11:00:00", "", "2024-03-10T12:00:00", fixedNow)

	require.True(t, ctx.HasTimeContext)
	assert.Equal(t, 60.0, *ctx.MinutesSinceMeal)
}
