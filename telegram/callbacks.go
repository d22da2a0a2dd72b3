package telegram

import (
	"context"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/bkzntsv/kettlebell/models"
)

func (t *Telegram) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	tracer := otel.Tracer("telegram/handleCallbackQuery")
	ctx, span := tracer.Start(ctx, "handleCallbackQuery")
	defer span.End()

	if query.From == nil || query.Message == nil {
		return
	}
	userID := query.From.ID
	chatID := query.Message.Chat.ID
	data := query.Data

	action, payload := data, ""
	if idx := strings.IndexByte(data, ':'); idx >= 0 {
		action, payload = data[:idx], data[idx+1:]
	}
	span.SetAttributes(
		attribute.Int64("user.id", userID),
		attribute.String("callback.action", action))

	// Acknowledge immediately so the client stops its spinner.
	if _, err := t.bot.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		t.logger.Logger(ctx).Warn("Failed to answer callback query", zap.Error(err))
	}

	t.analytics.Track(userID, models.EventAction, action, nil)

	switch action {
	case "start_workout":
		t.callbackStartWorkout(ctx, userID, chatID, payload)
	case "finish_workout":
		t.callbackFinishWorkout(ctx, userID, chatID, payload)
	case "cancel_action":
		t.callbackCancel(ctx, userID, chatID)
	case "edit_equipment":
		t.callbackEdit(ctx, userID, chatID, models.StateEditEquipment,
			"Перечисли новые веса гирь в кг через запятую, например: 16, 24.")
	case "edit_experience":
		t.callbackEdit(ctx, userID, chatID, models.StateEditExperience,
			"Какой у тебя опыт? Ответь: новичок, любитель или профи.")
	case "edit_personal_data":
		t.callbackEdit(ctx, userID, chatID, models.StateEditPersonalData,
			"Напиши вес в кг и пол, например: «82 м» или «65 ж».")
	case "edit_goal":
		t.callbackEdit(ctx, userID, chatID, models.StateEditGoal,
			"Какая у тебя цель? Например: сила, выносливость, похудение.")
	case "schedule":
		t.callbackSchedulePreset(ctx, userID, chatID, payload)
	default:
		t.logger.Logger(ctx).Warn("Unknown callback action",
			zap.String("action", action),
			zap.Int64("user_id", userID))
	}
}

func (t *Telegram) callbackStartWorkout(ctx context.Context, userID int64, chatID int64, workoutID string) {
	started, err := t.workouts.StartWorkout(ctx, userID, workoutID)
	if err != nil {
		t.replyError(ctx, userID, chatID, err)
		return
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Завершить тренировку", "finish_workout:"+started.ID),
		),
	)
	t.sendWithKeyboard(ctx, chatID,
		"Поехали! Выполняй упражнения по плану. Когда закончишь, нажми кнопку ниже.",
		keyboard)
}

func (t *Telegram) callbackFinishWorkout(ctx context.Context, userID int64, chatID int64, workoutID string) {
	if _, err := t.workouts.FinishWorkout(ctx, userID, workoutID); err != nil {
		t.replyError(ctx, userID, chatID, err)
		return
	}
	t.sendMessage(ctx, chatID, `Отличная работа! Теперь расскажи, как прошла тренировка: что сделал, с какими весами, сколько подходов и повторений, как самочувствие.

Можно текстом или голосовым сообщением.`)
}

// callbackCancel aborts whatever flow the user is in and returns to idle. A
// planned workout left behind stays PLANNED and is simply never started; a
// session already running is marked CANCELLED so it cannot linger as active.
func (t *Telegram) callbackCancel(ctx context.Context, userID int64, chatID int64) {
	state, err := t.fsm.CurrentState(ctx, userID)
	if err != nil {
		t.replyError(ctx, userID, chatID, err)
		return
	}
	if state == models.StateIdle {
		t.sendMessage(ctx, chatID, "Нечего отменять. Используйте /workout или /help.")
		return
	}
	if state == models.StateWorkoutInProgress || state == models.StateWorkoutFeedbackPending {
		if _, err := t.workouts.CancelActive(ctx, userID); err != nil {
			t.replyError(ctx, userID, chatID, err)
			return
		}
	}
	if err := t.fsm.TransitionTo(ctx, userID, models.StateIdle); err != nil {
		t.replyError(ctx, userID, chatID, err)
		return
	}
	t.sendMessage(ctx, chatID, "Действие отменено. Используйте /workout, чтобы получить план тренировки.")
}

func (t *Telegram) callbackEdit(ctx context.Context, userID int64, chatID int64, editState models.UserState, prompt string) {
	state, err := t.fsm.CurrentState(ctx, userID)
	if err != nil {
		t.replyError(ctx, userID, chatID, err)
		return
	}
	if state != models.StateIdle {
		t.replyStateConflict(ctx, chatID, state)
		return
	}
	if err := t.fsm.TransitionTo(ctx, userID, editState); err != nil {
		t.replyError(ctx, userID, chatID, err)
		return
	}
	t.sendMessage(ctx, chatID, prompt)
}

func (t *Telegram) callbackSchedulePreset(ctx context.Context, userID int64, chatID int64, preset string) {
	now := time.Now()
	var when time.Time
	switch preset {
	case "today_evening":
		when = time.Date(now.Year(), now.Month(), now.Day(), 19, 0, 0, 0, now.Location())
		if when.Before(now) {
			when = when.Add(2 * time.Hour)
		}
	case "tomorrow_morning":
		when = time.Date(now.Year(), now.Month(), now.Day(), 8, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	case "tomorrow_evening":
		when = time.Date(now.Year(), now.Month(), now.Day(), 19, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	default:
		t.logger.Logger(ctx).Warn("Unknown schedule preset",
			zap.String("preset", preset),
			zap.Int64("user_id", userID))
		t.sendMessage(ctx, chatID, "Не понял вариант. Напиши дату текстом, например «25.12 19:00».")
		return
	}
	t.scheduleWorkout(ctx, userID, chatID, when)
}
