package aiservice

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/bkzntsv/kettlebell/models"
)

// extractJSON isolates the JSON object from a raw model reply that may be
// wrapped in code fences or surrounded by commentary: everything from the
// first '{' to the last '}'.
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")

	if start != -1 && end != -1 && end > start {
		return content[start : end+1]
	}

	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

// asString coerces a decoded JSON value into a string, tolerating absence.
func asString(v any) string {
	s, _ := v.(string)
	return s
}

// asInt coerces a decoded JSON value into an int, accepting whole numbers and
// numeric strings. null, absence, fractions and garbage all report !ok.
func asInt(v any) (int, bool) {
	switch value := v.(type) {
	case float64:
		n := int(value)
		if float64(n) != value {
			return 0, false
		}
		return n, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func asIntPtr(v any) *int {
	if n, ok := asInt(v); ok {
		return &n
	}
	return nil
}

func asIntDefault(v any, fallback int) int {
	if n, ok := asInt(v); ok {
		return n
	}
	return fallback
}

// parseWorkoutPlan parses the model's plan reply. A missing "exercises" key
// is a hard failure, never an empty plan.
func parseWorkoutPlan(content string) (models.WorkoutPlan, error) {
	cleaned := extractJSON(content)

	var raw map[string]any
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return models.WorkoutPlan{}, fmt.Errorf("invalid workout plan format: %w", err)
	}

	exercisesRaw, ok := raw["exercises"].([]any)
	if !ok {
		return models.WorkoutPlan{}, fmt.Errorf("no exercises in response")
	}

	exercises := make([]models.Exercise, 0, len(exercisesRaw))
	for _, item := range exercisesRaw {
		ex, ok := item.(map[string]any)
		if !ok {
			return models.WorkoutPlan{}, fmt.Errorf("exercise entry is not an object")
		}
		exercises = append(exercises, models.Exercise{
			Name:         asString(ex["name"]),
			Weight:       asIntDefault(ex["weight"], 0),
			Reps:         asIntPtr(ex["reps"]),
			Sets:         asIntPtr(ex["sets"]),
			TimeWork:     asIntPtr(ex["timeWork"]),
			TimeRest:     asIntPtr(ex["timeRest"]),
			CoachingTips: asString(ex["coaching_tips"]),
		})
	}

	return models.WorkoutPlan{
		Warmup:    asString(raw["warmup"]),
		Exercises: exercises,
		Cooldown:  asString(raw["cooldown"]),
	}, nil
}

// parseActualPerformance parses the feedback-analysis reply. A missing
// "actual_data" key is a hard failure. The completed flag derives solely
// from the status tag: "completed" or "partial" count, anything else does
// not — model text is data, never instructions.
func parseActualPerformance(content string, rawFeedback string) (models.ActualPerformance, error) {
	cleaned := extractJSON(content)

	var raw map[string]any
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return models.ActualPerformance{}, fmt.Errorf("invalid actual performance format: %w", err)
	}

	dataRaw, ok := raw["actual_data"].([]any)
	if !ok {
		return models.ActualPerformance{}, fmt.Errorf("no actual_data in response")
	}

	data := make([]models.ExercisePerformance, 0, len(dataRaw))
	for _, item := range dataRaw {
		ex, ok := item.(map[string]any)
		if !ok {
			return models.ActualPerformance{}, fmt.Errorf("actual_data entry is not an object")
		}

		status := asString(ex["status"])
		data = append(data, models.ExercisePerformance{
			Name:      asString(ex["name"]),
			Weight:    asIntDefault(ex["weight"], 0),
			Reps:      asIntDefault(ex["reps"], 0),
			Sets:      asIntDefault(ex["sets"], 0),
			Completed: status == "completed" || status == "partial",
			Status:    status,
		})
	}

	var issues []string
	if flags, ok := raw["red_flags"].([]any); ok {
		for _, flag := range flags {
			if s := asString(flag); s != "" {
				issues = append(issues, s)
			}
		}
	}

	return models.ActualPerformance{
		RawFeedback:    rawFeedback,
		Data:           data,
		RPE:            asIntPtr(raw["rpe"]),
		Issues:         issues,
		RecoveryStatus: asString(raw["recovery_status"]),
		TechnicalNotes: asString(raw["technical_notes"]),
		CoachFeedback:  asString(raw["coach_feedback"]),
	}, nil
}
