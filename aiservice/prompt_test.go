package aiservice

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bkzntsv/kettlebell/models"
)

func TestEscapeJSONString(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{`plain`, `plain`},
		{`with "quotes"`, `with \"quotes\"`},
		{`back\slash`, `back\\slash`},
		{"line\nbreak", `line\nbreak`},
		{"tab\there", `tab\there`},
		{"bell\x07", `bell\u0007`},
		{"кириллица ок", "кириллица ок"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, escapeJSONString(tc.input))
	}
}

func contextWithProfile() models.WorkoutContext {
	return models.WorkoutContext{
		Profile: models.UserProfile{
			ID: 1,
			Profile: models.ProfileData{
				Weights:    []int{16, 24},
				Experience: models.ExperienceAmateur,
				BodyWeight: 82,
				Gender:     models.GenderMale,
				Goal:       `сила и "мощь"`,
			},
		},
		AvailableWeights: []int{16, 24},
		TrainingWeek:     1,
	}
}

func TestBuildWorkoutPromptIsValidJSON(t *testing.T) {
	workoutCtx := contextWithProfile()
	workoutCtx.SuggestDeload = true

	rpe := 9
	reps, sets := 10, 3
	completedAt := time.Date(2025, 6, 10, 18, 0, 0, 0, time.UTC)
	workoutCtx.RecentWorkouts = []models.Workout{{
		Status: models.WorkoutCompleted,
		Plan: models.WorkoutPlan{Exercises: []models.Exercise{
			{Name: "Свинг", Weight: 16, Reps: &reps, Sets: &sets},
		}},
		ActualPerformance: &models.ActualPerformance{
			Data: []models.ExercisePerformance{
				{Name: "Свинг", Weight: 16, Reps: 10, Sets: 3, Completed: true, Status: "completed"},
			},
			RPE:            &rpe,
			Issues:         []string{"боль в пояснице"},
			RecoveryStatus: "fatigued",
		},
		Timing: models.WorkoutTiming{CompletedAt: &completedAt},
	}}

	prompt := buildWorkoutPrompt(workoutCtx)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(prompt), &doc), "prompt must be valid JSON:\n%s", prompt)

	contextDoc := doc["context"].(map[string]any)
	athlete := contextDoc["athlete"].(map[string]any)
	assert.Equal(t, "AMATEUR", athlete["experience"])
	assert.Equal(t, `сила и "мощь"`, athlete["goal"])

	equipment := contextDoc["equipment"].(map[string]any)
	assert.Equal(t, []any{16.0, 24.0}, equipment["available_kettlebells"])

	assert.Equal(t, true, contextDoc["is_deload"])
	assert.Equal(t, 1.0, contextDoc["current_week"])

	history := contextDoc["history"].([]any)
	require.Len(t, history, 1)
	entry := history[0].(map[string]any)
	assert.Equal(t, 480.0, entry["total_volume_kg"])
	assert.Equal(t, 9.0, entry["rpe"])
	assert.Equal(t, "2025-06-10T18:00:00Z", entry["date"])
	assert.Equal(t, []any{"боль в пояснице"}, entry["red_flags"])

	instructions := doc["instructions"].(string)
	assert.Contains(t, instructions, "reduce volume by 40%")
	assert.Contains(t, instructions, "ONLY weights from available_kettlebells")
}

func TestBuildWorkoutPromptSkipsWorkoutsWithoutPerformance(t *testing.T) {
	workoutCtx := contextWithProfile()
	workoutCtx.RecentWorkouts = []models.Workout{
		{Status: models.WorkoutPlanned},
		{Status: models.WorkoutInProgress},
	}

	prompt := buildWorkoutPrompt(workoutCtx)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(prompt), &doc))
	history := doc["context"].(map[string]any)["history"].([]any)
	assert.Empty(t, history)
}

func TestBuildWorkoutPromptCapsHistoryAtThree(t *testing.T) {
	workoutCtx := contextWithProfile()
	for i := 0; i < 5; i++ {
		workoutCtx.RecentWorkouts = append(workoutCtx.RecentWorkouts, models.Workout{
			Status:            models.WorkoutCompleted,
			ActualPerformance: &models.ActualPerformance{},
		})
	}

	prompt := buildWorkoutPrompt(workoutCtx)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(prompt), &doc))
	history := doc["context"].(map[string]any)["history"].([]any)
	assert.Len(t, history, 3)
}

func TestBuildFeedbackPrompt(t *testing.T) {
	reps, sets := 5, 3
	timeWork := 40
	plan := models.WorkoutPlan{
		Warmup: "Разминка",
		Exercises: []models.Exercise{
			{Name: "Жим одной рукой", Weight: 16, Reps: &reps, Sets: &sets},
			{Name: "Ферма", Weight: 32, TimeWork: &timeWork},
		},
		Cooldown: "Растяжка",
	}

	prompt := buildFeedbackPrompt("сделал всё, устал", plan)

	assert.Contains(t, prompt, "Жим одной рукой: 16kg, 5x3")
	assert.Contains(t, prompt, "Ферма: 32kg, 40s work")
	assert.Contains(t, prompt, `"сделал всё, устал"`)
	assert.Contains(t, prompt, "actual_data")

	// The counting conventions ride inside the prompt itself.
	assert.Contains(t, prompt, "НЕ УМНОЖАЙ НА 2")
	assert.Contains(t, prompt, "СУММА подходов на обе стороны")
	assert.Contains(t, prompt, "EMOM")
}
