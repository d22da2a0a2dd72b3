package aiservice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"bare object", `{"a": 1}`, `{"a": 1}`},
		{"prose around object", `Here is the plan: {"a": 1} Enjoy!`, `{"a": 1}`},
		{"code fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"nested braces", `noise {"a": {"b": 2}} more noise`, `{"a": {"b": 2}}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, extractJSON(tc.input))
		})
	}
}

func TestParseWorkoutPlan(t *testing.T) {
	content := `Вот твоя тренировка:
` + "```json" + `
{
  "warmup": "Суставная разминка 5 минут",
  "exercises": [
    {"name": "Свинг", "weight": 24, "reps": 10, "sets": 5, "coaching_tips": "Толкай таз вперёд"},
    {"name": "Ферма", "weight": 32, "timeWork": 40, "timeRest": 60},
    {"name": "Жим", "weight": "16", "reps": "8", "sets": 3}
  ],
  "cooldown": "Растяжка"
}
` + "```"

	plan, err := parseWorkoutPlan(content)
	require.NoError(t, err)

	assert.Equal(t, "Суставная разминка 5 минут", plan.Warmup)
	assert.Equal(t, "Растяжка", plan.Cooldown)
	require.Len(t, plan.Exercises, 3)

	swing := plan.Exercises[0]
	assert.Equal(t, "Свинг", swing.Name)
	assert.Equal(t, 24, swing.Weight)
	require.NotNil(t, swing.Reps)
	assert.Equal(t, 10, *swing.Reps)
	assert.Equal(t, "Толкай таз вперёд", swing.CoachingTips)
	assert.Nil(t, swing.TimeWork)

	carry := plan.Exercises[1]
	assert.Nil(t, carry.Reps)
	require.NotNil(t, carry.TimeWork)
	assert.Equal(t, 40, *carry.TimeWork)
	require.NotNil(t, carry.TimeRest)
	assert.Equal(t, 60, *carry.TimeRest)

	// Numeric strings coerce like numbers.
	press := plan.Exercises[2]
	assert.Equal(t, 16, press.Weight)
	require.NotNil(t, press.Reps)
	assert.Equal(t, 8, *press.Reps)
}

func TestParseWorkoutPlanMissingExercisesIsHardError(t *testing.T) {
	_, err := parseWorkoutPlan(`{"warmup": "разминка", "cooldown": "заминка"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no exercises")
}

func TestParseWorkoutPlanMalformedJSON(t *testing.T) {
	_, err := parseWorkoutPlan(`I could not create a plan today, sorry {broken`)
	require.Error(t, err)
}

func TestParseActualPerformance(t *testing.T) {
	content := `{
  "actual_data": [
    {"name": "Свинг", "weight": 24, "reps": 10, "sets": 5, "status": "completed"},
    {"name": "Жим", "weight": "16", "reps": "6", "sets": "2", "status": "partial"},
    {"name": "Рывок", "weight": 24, "reps": 0, "sets": 0, "status": "skipped"}
  ],
  "rpe": 8,
  "recovery_status": "good",
  "technical_notes": "Спина ровная",
  "red_flags": ["боль в запястье"],
  "coach_feedback": "Молодец!"
}`

	perf, err := parseActualPerformance(content, "raw user words")
	require.NoError(t, err)

	assert.Equal(t, "raw user words", perf.RawFeedback)
	require.Len(t, perf.Data, 3)

	// completed derives from the status tag alone.
	assert.True(t, perf.Data[0].Completed)
	assert.True(t, perf.Data[1].Completed)
	assert.False(t, perf.Data[2].Completed)

	// String numbers coerce.
	assert.Equal(t, 16, perf.Data[1].Weight)
	assert.Equal(t, 6, perf.Data[1].Reps)
	assert.Equal(t, 2, perf.Data[1].Sets)

	require.NotNil(t, perf.RPE)
	assert.Equal(t, 8, *perf.RPE)
	assert.Equal(t, "good", perf.RecoveryStatus)
	assert.Equal(t, []string{"боль в запястье"}, perf.Issues)
	assert.Equal(t, "Молодец!", perf.CoachFeedback)
}

func TestParseActualPerformanceMissingDataIsHardError(t *testing.T) {
	_, err := parseActualPerformance(`{"rpe": 7}`, "feedback")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no actual_data")
}

func TestParseActualPerformanceTolerantFields(t *testing.T) {
	content := `{"actual_data": [{"name": "Свинг", "weight": null, "reps": "many", "status": "failed"}]}`

	perf, err := parseActualPerformance(content, "feedback")
	require.NoError(t, err)
	require.Len(t, perf.Data, 1)

	// Unparseable and null numerics fall back to zero.
	assert.Equal(t, 0, perf.Data[0].Weight)
	assert.Equal(t, 0, perf.Data[0].Reps)
	assert.False(t, perf.Data[0].Completed)
	assert.Nil(t, perf.RPE)
}

func TestParseActualPerformanceRejectsFractionalNumbers(t *testing.T) {
	content := `{"actual_data": [{"name": "Свинг", "weight": 16.5, "reps": 10, "sets": 3, "status": "completed"}], "rpe": 9.5}`

	perf, err := parseActualPerformance(content, "feedback")
	require.NoError(t, err)
	require.Len(t, perf.Data, 1)

	// A fractional value is never truncated; it falls back like garbage does.
	assert.Equal(t, 0, perf.Data[0].Weight)
	assert.Equal(t, 10, perf.Data[0].Reps)
	assert.Nil(t, perf.RPE)
}
