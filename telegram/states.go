package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/bkzntsv/kettlebell/apperror"
	"github.com/bkzntsv/kettlebell/models"
	"github.com/bkzntsv/kettlebell/workout"
)

// handleStateMessage interprets free text according to the user's FSM state.
// Text arriving in a state that expects none gets a gentle hint, never silence.
func (t *Telegram) handleStateMessage(ctx context.Context, userID int64, chatID int64, text string) {
	tracer := otel.Tracer("telegram/handleStateMessage")
	ctx, span := tracer.Start(ctx, "handleStateMessage")
	defer span.End()

	state, err := t.fsm.CurrentState(ctx, userID)
	if err != nil {
		t.replyError(ctx, userID, chatID, err)
		return
	}
	span.SetAttributes(attribute.String("fsm.state", string(state)))

	switch state {
	case models.StateOnboardingMedicalConfirm:
		t.stateMedicalConfirm(ctx, userID, chatID, text)
	case models.StateOnboardingEquipment:
		t.stateEquipment(ctx, userID, chatID, text, models.StateOnboardingExperience)
	case models.StateOnboardingExperience:
		t.stateExperience(ctx, userID, chatID, text, models.StateOnboardingPersonalData)
	case models.StateOnboardingPersonalData:
		t.statePersonalData(ctx, userID, chatID, text, models.StateOnboardingGoals)
	case models.StateOnboardingGoals:
		t.stateGoals(ctx, userID, chatID, text)
	case models.StateEditEquipment:
		t.stateEquipment(ctx, userID, chatID, text, models.StateIdle)
	case models.StateEditExperience:
		t.stateExperience(ctx, userID, chatID, text, models.StateIdle)
	case models.StateEditPersonalData:
		t.statePersonalData(ctx, userID, chatID, text, models.StateIdle)
	case models.StateEditGoal:
		t.stateEditGoal(ctx, userID, chatID, text)
	case models.StateSchedulingDate:
		t.stateSchedulingDate(ctx, userID, chatID, text)
	case models.StateWorkoutFeedbackPending:
		t.processFeedbackText(ctx, userID, chatID, text)
	case models.StateWorkoutInProgress:
		t.sendMessage(ctx, chatID, "Тренировка идёт. Когда закончишь, нажми «Завершить» под планом, а потом расскажешь, как прошло.")
	case models.StateWorkoutRequested:
		t.sendMessage(ctx, chatID, "План тренировки ждёт твоего решения. Нажми «Начать тренировку» или «Отмена» под ним.")
	default:
		t.sendMessage(ctx, chatID, "Я понимаю команды. Используйте /workout для тренировки или /help для списка команд.")
	}
}

func (t *Telegram) stateMedicalConfirm(ctx context.Context, userID int64, chatID int64, text string) {
	answer := strings.ToLower(strings.TrimSpace(text))
	switch answer {
	case "да", "да.", "подтверждаю", "yes":
		if err := t.fsm.TransitionTo(ctx, userID, models.StateOnboardingEquipment); err != nil {
			t.replyError(ctx, userID, chatID, err)
			return
		}
		t.sendMessage(ctx, chatID, "Отлично! Какие гири у тебя есть? Перечисли веса в кг через запятую, например: 16, 24.")
	default:
		t.sendMessage(ctx, chatID, "Чтобы продолжить, напиши «да» — это подтверждение, что у тебя нет медицинских противопоказаний к тренировкам.")
	}
}

func (t *Telegram) stateEquipment(ctx context.Context, userID int64, chatID int64, text string, next models.UserState) {
	weights, err := parseWeights(text)
	if err != nil {
		t.sendMessage(ctx, chatID, "Не понял. Перечисли веса гирь в кг через запятую, например: 16, 24, 32.")
		return
	}
	if _, err := t.profiles.UpdateEquipment(ctx, userID, weights); err != nil {
		t.replyError(ctx, userID, chatID, err)
		return
	}
	if err := t.fsm.TransitionTo(ctx, userID, next); err != nil {
		t.replyError(ctx, userID, chatID, err)
		return
	}
	if next == models.StateIdle {
		t.sendMessage(ctx, chatID, "Гири обновлены. Используйте /workout, чтобы получить план тренировки.")
		return
	}
	t.sendMessage(ctx, chatID, "Записал. Какой у тебя опыт с гирями? Ответь одним словом: новичок, любитель или профи.")
}

func (t *Telegram) stateExperience(ctx context.Context, userID int64, chatID int64, text string, next models.UserState) {
	level, ok := parseExperience(text)
	if !ok {
		t.sendMessage(ctx, chatID, "Выбери один из вариантов: новичок, любитель или профи.")
		return
	}
	if _, err := t.profiles.UpdateExperience(ctx, userID, level); err != nil {
		t.replyError(ctx, userID, chatID, err)
		return
	}
	if err := t.fsm.TransitionTo(ctx, userID, next); err != nil {
		t.replyError(ctx, userID, chatID, err)
		return
	}
	if next == models.StateIdle {
		t.sendMessage(ctx, chatID, "Уровень опыта обновлён.")
		return
	}
	t.sendMessage(ctx, chatID, "Понял. Теперь твой вес и пол, например: «82 м» или «65 ж».")
}

func (t *Telegram) statePersonalData(ctx context.Context, userID int64, chatID int64, text string, next models.UserState) {
	bodyWeight, gender, err := parsePersonalData(text)
	if err != nil {
		t.sendMessage(ctx, chatID, "Не понял. Напиши вес в кг и пол, например: «82 м» или «65 ж».")
		return
	}
	if _, err := t.profiles.UpdatePersonalData(ctx, userID, bodyWeight, gender); err != nil {
		t.replyError(ctx, userID, chatID, err)
		return
	}
	if err := t.fsm.TransitionTo(ctx, userID, next); err != nil {
		t.replyError(ctx, userID, chatID, err)
		return
	}
	if next == models.StateIdle {
		t.sendMessage(ctx, chatID, "Данные обновлены.")
		return
	}
	t.sendMessage(ctx, chatID, "Почти готово. Какая у тебя цель? Например: сила, выносливость, похудение или подготовка к нормативам.")
}

func (t *Telegram) stateGoals(ctx context.Context, userID int64, chatID int64, text string) {
	if _, err := t.profiles.UpdateGoal(ctx, userID, strings.TrimSpace(text)); err != nil {
		t.replyError(ctx, userID, chatID, err)
		return
	}
	if err := t.fsm.TransitionTo(ctx, userID, models.StateIdle); err != nil {
		t.replyError(ctx, userID, chatID, err)
		return
	}
	t.sendMessage(ctx, chatID, "Профиль готов! Используй /workout, чтобы получить первый план тренировки.")
}

func (t *Telegram) stateEditGoal(ctx context.Context, userID int64, chatID int64, text string) {
	if _, err := t.profiles.UpdateGoal(ctx, userID, strings.TrimSpace(text)); err != nil {
		t.replyError(ctx, userID, chatID, err)
		return
	}
	if err := t.fsm.TransitionTo(ctx, userID, models.StateIdle); err != nil {
		t.replyError(ctx, userID, chatID, err)
		return
	}
	t.sendMessage(ctx, chatID, "Цель обновлена.")
}

func (t *Telegram) stateSchedulingDate(ctx context.Context, userID int64, chatID int64, text string) {
	when, err := parseScheduleTime(text, time.Now())
	if err != nil {
		t.sendMessage(ctx, chatID, "Не понял дату. Напиши, например, «25.12 19:00» или просто «19:00» для сегодняшнего дня.")
		return
	}
	t.scheduleWorkout(ctx, userID, chatID, when)
}

// scheduleWorkout persists the time, returns the user to idle and confirms.
// Shared by the free-text date path and the preset callbacks.
func (t *Telegram) scheduleWorkout(ctx context.Context, userID int64, chatID int64, when time.Time) {
	if _, err := t.profiles.UpdateScheduling(ctx, userID, when); err != nil {
		t.replyError(ctx, userID, chatID, err)
		return
	}
	if err := t.fsm.TransitionTo(ctx, userID, models.StateIdle); err != nil {
		t.replyError(ctx, userID, chatID, err)
		return
	}
	t.analytics.Track(userID, models.EventAction, "workout_scheduled", map[string]string{
		"next_workout": when.Format(time.RFC3339),
	})
	t.sendMessage(ctx, chatID, fmt.Sprintf("Записал: тренировка %s. Напомню за час и за 5 минут.", when.Format("02.01 в 15:04")))
}

// processFeedbackText runs feedback analysis against the user's active
// workout and reports the coach's verdict with session volume.
func (t *Telegram) processFeedbackText(ctx context.Context, userID int64, chatID int64, text string) {
	tracer := otel.Tracer("telegram/processFeedbackText")
	ctx, span := tracer.Start(ctx, "processFeedbackText")
	defer span.End()

	active, err := t.workouts.ActiveWorkout(ctx, userID)
	if err != nil {
		t.replyError(ctx, userID, chatID, err)
		return
	}
	if active == nil {
		t.logger.Logger(ctx).Warn("Feedback pending but no active workout found",
			zap.Int64("user_id", userID))
		if ferr := t.fsm.TransitionTo(ctx, userID, models.StateIdle); ferr != nil {
			t.logger.Logger(ctx).Error("Failed to reset state", zap.Error(ferr), zap.Int64("user_id", userID))
		}
		t.sendMessage(ctx, chatID, "Не нашёл активную тренировку. Используйте /workout, чтобы начать новую.")
		return
	}

	t.sendMessage(ctx, chatID, "Анализирую твой отзыв...")

	completed, err := t.workouts.ProcessFeedback(ctx, userID, active.ID, text)
	if err != nil {
		t.replyError(ctx, userID, chatID, err)
		return
	}

	var sb strings.Builder
	sb.WriteString("Тренировка записана!\n")
	if volume := workout.TotalVolume(completed); volume > 0 {
		sb.WriteString(fmt.Sprintf("\nОбщий объём: %d кг\n", volume))
	}
	if completed.ActualPerformance != nil && completed.ActualPerformance.CoachFeedback != "" {
		sb.WriteString("\n" + completed.ActualPerformance.CoachFeedback)
	}
	t.sendMessage(ctx, chatID, sb.String())
	t.analytics.Track(userID, models.EventAction, "workout_completed", map[string]string{"workout_id": completed.ID})
}

func parseWeights(text string) ([]int, error) {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ' ' || r == ';'
	})
	if len(fields) == 0 {
		return nil, apperror.InvalidInput("no weights in input")
	}
	weights := make([]int, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSuffix(strings.ToLower(f), "кг")
		if f == "" {
			continue
		}
		w, err := strconv.Atoi(f)
		if err != nil {
			return nil, apperror.InvalidInput("weight is not a number")
		}
		weights = append(weights, w)
	}
	if len(weights) == 0 {
		return nil, apperror.InvalidInput("no weights in input")
	}
	return weights, nil
}

func parseExperience(text string) (models.ExperienceLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "новичок", "начинающий", "beginner":
		return models.ExperienceBeginner, true
	case "любитель", "средний", "amateur":
		return models.ExperienceAmateur, true
	case "профи", "профессионал", "опытный", "pro":
		return models.ExperiencePro, true
	}
	return "", false
}

func parsePersonalData(text string) (float64, models.Gender, error) {
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) == 0 {
		return 0, "", apperror.InvalidInput("empty personal data")
	}

	bodyWeight, err := strconv.ParseFloat(strings.ReplaceAll(fields[0], ",", "."), 64)
	if err != nil || bodyWeight <= 0 || bodyWeight > 400 {
		return 0, "", apperror.InvalidInput("body weight is not a valid number")
	}

	gender := models.GenderOther
	if len(fields) > 1 {
		switch fields[1] {
		case "м", "муж", "мужской", "m":
			gender = models.GenderMale
		case "ж", "жен", "женский", "f":
			gender = models.GenderFemale
		}
	}
	return bodyWeight, gender, nil
}

// parseScheduleTime accepts "02.01 15:04", "02.01.2006 15:04" or a bare
// "15:04" meaning today. A time already in the past rolls to the next day.
func parseScheduleTime(text string, now time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)

	for _, layout := range []string{"02.01.2006 15:04", "02.01 15:04"} {
		if parsed, err := time.ParseInLocation(layout, text, now.Location()); err == nil {
			if parsed.Year() == 0 {
				parsed = parsed.AddDate(now.Year(), 0, 0)
			}
			if parsed.Before(now) {
				parsed = parsed.AddDate(1, 0, 0)
			}
			return parsed, nil
		}
	}

	if parsed, err := time.ParseInLocation("15:04", text, now.Location()); err == nil {
		candidate := time.Date(now.Year(), now.Month(), now.Day(), parsed.Hour(), parsed.Minute(), 0, 0, now.Location())
		if candidate.Before(now) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		return candidate, nil
	}

	return time.Time{}, apperror.InvalidInput("unrecognized date format")
}
