package aiservice

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bkzntsv/kettlebell/models"
)

// escapeJSONString escapes a free-text value for interpolation into the
// hand-assembled JSON-like prompt: quotes, backslashes and control
// characters. Deliberately minimal, this is not a generic serializer.
func escapeJSONString(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			if r < 0x20 {
				b.WriteString(fmt.Sprintf(`\u%04x`, r))
			} else {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

func intOrNull(v *int) string {
	if v == nil {
		return "null"
	}
	return strconv.Itoa(*v)
}

func stringOrNull(v string) string {
	if v == "" {
		return "null"
	}
	return `"` + escapeJSONString(v) + `"`
}

// perfVolume mirrors the training-volume law: weight*reps*sets summed over
// entries where all three factors are positive.
func perfVolume(data []models.ExercisePerformance) int {
	volume := 0
	for _, ex := range data {
		if ex.Weight > 0 && ex.Reps > 0 && ex.Sets > 0 {
			volume += ex.Weight * ex.Reps * ex.Sets
		}
	}
	return volume
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}

// plannedSummary renders one plan's exercises as a compact human-readable
// line: "Свинг 16kg 10x3, Жим 24kg 30s/60s".
func plannedSummary(plan models.WorkoutPlan) string {
	parts := make([]string, 0, len(plan.Exercises))
	for _, ex := range plan.Exercises {
		repsSets := ""
		if ex.Reps != nil && ex.Sets != nil {
			repsSets = fmt.Sprintf("%dx%d", *ex.Reps, *ex.Sets)
		} else if ex.TimeWork != nil && ex.TimeRest != nil {
			repsSets = fmt.Sprintf("%ds/%ds", *ex.TimeWork, *ex.TimeRest)
		}
		parts = append(parts, strings.TrimSpace(fmt.Sprintf("%s %dkg %s", escapeJSONString(ex.Name), ex.Weight, repsSets)))
	}
	return strings.Join(parts, ", ")
}

func historyEntry(workout models.Workout) string {
	perf := workout.ActualPerformance
	plan := workout.Plan

	exerciseBlocks := make([]string, 0, len(perf.Data))
	for i, actual := range perf.Data {
		var planned *models.Exercise
		if i < len(plan.Exercises) {
			planned = &plan.Exercises[i]
		}

		plannedWeight := 0
		var plannedReps, plannedSets, plannedTimeWork, plannedTimeRest *int
		if planned != nil {
			plannedWeight = planned.Weight
			plannedReps = planned.Reps
			plannedSets = planned.Sets
			plannedTimeWork = planned.TimeWork
			plannedTimeRest = planned.TimeRest
		}

		statusInfo := actual.Status
		if actual.Completed {
			if statusInfo == "" {
				statusInfo = "completed"
			}
		} else if statusInfo == "" {
			statusInfo = "failed"
		}

		exerciseBlocks = append(exerciseBlocks, fmt.Sprintf(`{
  "name": "%s",
  "planned_weight_kg": %d,
  "planned_reps": %s,
  "planned_sets": %s,
  "planned_time_work_sec": %s,
  "planned_time_rest_sec": %s,
  "actual_weight_kg": %d,
  "actual_reps": %d,
  "actual_sets": %d,
  "status": "%s"
}`,
			escapeJSONString(actual.Name),
			plannedWeight,
			intOrNull(plannedReps),
			intOrNull(plannedSets),
			intOrNull(plannedTimeWork),
			intOrNull(plannedTimeRest),
			actual.Weight,
			actual.Reps,
			actual.Sets,
			statusInfo))
	}

	redFlags := make([]string, 0, len(perf.Issues))
	for _, issue := range perf.Issues {
		redFlags = append(redFlags, `"`+escapeJSONString(issue)+`"`)
	}

	date := ""
	if workout.Timing.CompletedAt != nil {
		date = workout.Timing.CompletedAt.UTC().Format(time.RFC3339)
	}

	rpe := "null"
	if perf.RPE != nil {
		rpe = strconv.Itoa(*perf.RPE)
	}

	return fmt.Sprintf(`{
  "date": "%s",
  "planned_exercises": "%s",
  "exercises": [
    %s
  ],
  "total_volume_kg": %d,
  "rpe": %s,
  "recovery_status": %s,
  "red_flags": [%s],
  "technical_notes": %s
}`,
		date,
		plannedSummary(plan),
		strings.Join(exerciseBlocks, ",\n"),
		perfVolume(perf.Data),
		rpe,
		stringOrNull(perf.RecoveryStatus),
		strings.Join(redFlags, ", "),
		stringOrNull(perf.TechnicalNotes))
}

// buildWorkoutPrompt serializes the workout context as a JSON-like document:
// athlete profile, up to 3 performance-bearing history entries, equipment,
// training week and the deload flag, plus the fixed instruction block.
func buildWorkoutPrompt(workoutCtx models.WorkoutContext) string {
	profile := workoutCtx.Profile.Profile

	historyEntries := make([]string, 0, 3)
	for _, workout := range workoutCtx.RecentWorkouts {
		if workout.ActualPerformance == nil {
			continue
		}
		historyEntries = append(historyEntries, historyEntry(workout))
		if len(historyEntries) == 3 {
			break
		}
	}

	return fmt.Sprintf(`{
  "context": {
    "athlete": {
      "experience": "%s",
      "weight": %s,
      "gender": "%s",
      "goal": "%s"
    },
    "equipment": {
      "available_kettlebells": [%s]
    },
    "history": [
      %s
    ],
    "current_week": %d,
    "is_deload": %t
  },
  "instructions": "Create a personalized workout plan aligned with the athlete's goal. If is_deload = true, reduce volume by 40%% and focus on mobility. CRITICAL: Use ONLY weights from available_kettlebells - never suggest intermediate weights. If a weight seems too heavy, adjust reps/sets/tempo instead. Add brief technique tips (coaching_tips) for each exercise. Keep warmup and cooldown short, simple, and varied. IMPORTANT: Analyze workout history carefully - compare planned vs actual performance to understand athlete's capabilities. Use total_volume_kg, RPE, recovery_status, and exercise completion status to adjust progression. Pay attention to technical_notes and red_flags to address issues. If athlete consistently fails to complete planned reps/sets, reduce volume or adjust intensity. If athlete easily completes all sets with low RPE, gradually increase volume or intensity."
}`,
		profile.Experience,
		strconv.FormatFloat(profile.BodyWeight, 'f', -1, 64),
		profile.Gender,
		escapeJSONString(profile.Goal),
		joinInts(workoutCtx.AvailableWeights),
		strings.Join(historyEntries, ",\n"),
		workoutCtx.TrainingWeek,
		workoutCtx.SuggestDeload)
}

// buildFeedbackPrompt serializes the original plan plus the raw user
// feedback, with the fixed counting rules for unilateral, timed and interval
// movements. The rules live in the prompt because the volume calculator
// downstream is family-agnostic.
func buildFeedbackPrompt(feedback string, originalPlan models.WorkoutPlan) string {
	exercisesInfo := make([]string, 0, len(originalPlan.Exercises))
	for _, ex := range originalPlan.Exercises {
		detail := ""
		if ex.Reps != nil && ex.Sets != nil {
			detail = fmt.Sprintf("%dx%d", *ex.Reps, *ex.Sets)
		} else if ex.TimeWork != nil {
			detail = fmt.Sprintf("%ds work", *ex.TimeWork)
		}
		exercisesInfo = append(exercisesInfo, fmt.Sprintf("%s: %dkg, %s", ex.Name, ex.Weight, detail))
	}

	return fmt.Sprintf(`Сравни запланированную тренировку и отзыв пользователя.
План:
Warmup: %s
Exercises: [%s]
Cooldown: %s

Отзыв пользователя:
"%s"

КРИТИЧЕСКИ ВАЖНО: Ответ ТОЛЬКО в формате JSON, без дополнительного текста. Структура:
{
  "actual_data": [
    {
      "name": "точное_название_упражнения_из_плана",
      "weight": число_в_кг,
      "reps": число_повторов,
      "sets": число_подходов,
      "status": "completed"
    }
  ],
  "rpe": число_от_1_до_10,
  "recovery_status": "good/fatigued/injured",
  "technical_notes": "краткий вывод о технике на основе слов пользователя",
  "red_flags": ["список жалоб на боль или дискомфорт"],
  "coach_feedback": "Твой ответ атлету"
}

ВАЖНО: Для каждого упражнения из плана ДОЛЖЕН быть объект в actual_data с реальными значениями weight, reps, sets.

ПРАВИЛА ПОДСЧЕТА (строго следуй им):
1. Двуручные упражнения (Swing, Goblet Squat): sets = количество подходов. НЕ УМНОЖАЙ НА 2.
2. Односторонние упражнения (One Arm Press/Row/Lunge): sets = СУММА подходов на обе стороны (например, план 3x5 на сторону -> sets=6, reps=5).
3. Упражнения на время (Carry, Plank): reps = время выполнения в секундах, sets = количество подходов.
4. EMOM: sets = количество раундов (минут), reps = количество повторений в минуту.

Если пользователь не указал конкретные числа, используй значения из плана, применяя эти правила.`,
		originalPlan.Warmup,
		strings.Join(exercisesInfo, ", "),
		originalPlan.Cooldown,
		feedback)
}
