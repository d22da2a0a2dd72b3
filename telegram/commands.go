package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/bkzntsv/kettlebell/models"
	"github.com/bkzntsv/kettlebell/workout"
)

const helpText = `Я — твой тренер по гиревому спорту.

Доступные команды:
/workout — получить план тренировки
/history — история тренировок
/profile — посмотреть и изменить профиль
/schedule — запланировать тренировку
/reset — начать настройку профиля заново
/help — это сообщение

Во время тренировки используй кнопки под сообщениями. После завершения расскажи, как прошла тренировка, текстом или голосовым сообщением.`

func (t *Telegram) handleCommand(ctx context.Context, userID int64, chatID int64, text string) {
	tracer := otel.Tracer("telegram/handleCommand")
	ctx, span := tracer.Start(ctx, "handleCommand")
	defer span.End()

	command := strings.Fields(text)[0]
	command = strings.TrimSuffix(command, "@"+t.bot.Self.UserName)
	span.SetAttributes(attribute.String("command", command))

	t.analytics.Track(userID, models.EventCommand, command, nil)

	switch command {
	case "/start":
		t.commandStart(ctx, userID, chatID)
	case "/help":
		t.sendMessage(ctx, chatID, helpText)
	case "/profile":
		t.commandProfile(ctx, userID, chatID)
	case "/workout":
		t.commandWorkout(ctx, userID, chatID)
	case "/history":
		t.commandHistory(ctx, userID, chatID)
	case "/schedule":
		t.commandSchedule(ctx, userID, chatID)
	case "/reset":
		t.commandReset(ctx, userID, chatID)
	case "/stats":
		t.commandStats(ctx, userID, chatID)
	case "/grant":
		t.commandSetSubscription(ctx, userID, chatID, text, models.SubscriptionPremium)
	case "/revoke":
		t.commandSetSubscription(ctx, userID, chatID, text, models.SubscriptionFree)
	default:
		t.sendMessage(ctx, chatID, "Неизвестная команда. Используйте /help для списка команд.")
	}
}

func (t *Telegram) commandStart(ctx context.Context, userID int64, chatID int64) {
	user, err := t.profiles.GetProfile(ctx, userID)
	if err != nil {
		t.replyError(ctx, userID, chatID, err)
		return
	}
	if user != nil {
		t.sendMessage(ctx, chatID, "С возвращением! Используйте /workout, чтобы получить план тренировки, или /help для списка команд.")
		return
	}

	if _, err := t.profiles.InitProfile(ctx, userID); err != nil {
		t.replyError(ctx, userID, chatID, err)
		return
	}
	if err := t.fsm.TransitionTo(ctx, userID, models.StateOnboardingMedicalConfirm); err != nil {
		t.replyError(ctx, userID, chatID, err)
		return
	}

	t.sendMessage(ctx, chatID, `Привет! Я твой персональный тренер по гиревому спорту.

Прежде чем начать: тренировки с гирями — это нагрузка на сердце, спину и суставы. Продолжая, ты подтверждаешь, что у тебя нет медицинских противопоказаний к силовым тренировкам.

Напиши «да», чтобы подтвердить и продолжить настройку профиля.`)
}

func (t *Telegram) commandProfile(ctx context.Context, userID int64, chatID int64) {
	user, err := t.profiles.GetProfile(ctx, userID)
	if err != nil {
		t.replyError(ctx, userID, chatID, err)
		return
	}
	if user == nil {
		t.sendMessage(ctx, chatID, "Профиль не найден. Используйте /start, чтобы начать.")
		return
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Гири", "edit_equipment"),
			tgbotapi.NewInlineKeyboardButtonData("Опыт", "edit_experience"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Данные", "edit_personal_data"),
			tgbotapi.NewInlineKeyboardButtonData("Цель", "edit_goal"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Отмена", "cancel_action"),
		),
	)
	t.sendWithKeyboard(ctx, chatID, renderProfile(user), keyboard)
}

func (t *Telegram) commandWorkout(ctx context.Context, userID int64, chatID int64) {
	state, err := t.fsm.CurrentState(ctx, userID)
	if err != nil {
		t.replyError(ctx, userID, chatID, err)
		return
	}
	if state != models.StateIdle {
		t.replyStateConflict(ctx, chatID, state)
		return
	}

	if err := t.fsm.TransitionTo(ctx, userID, models.StateWorkoutRequested); err != nil {
		t.replyError(ctx, userID, chatID, err)
		return
	}
	t.sendMessage(ctx, chatID, "Готовлю план тренировки, это займёт несколько секунд...")

	plan, err := t.workouts.GenerateWorkoutPlan(ctx, userID)
	if err != nil {
		// Return the user to a state where commands work again.
		if ferr := t.fsm.TransitionTo(ctx, userID, models.StateIdle); ferr != nil {
			t.logger.Logger(ctx).Error("Failed to roll back state after plan failure",
				zap.Error(ferr), zap.Int64("user_id", userID))
		}
		t.replyError(ctx, userID, chatID, err)
		return
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Начать тренировку", "start_workout:"+plan.ID),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Отмена", "cancel_action"),
		),
	)
	t.sendWithKeyboard(ctx, chatID, renderWorkoutPlan(plan), keyboard)
	t.analytics.Track(userID, models.EventAction, "workout_generated", map[string]string{"workout_id": plan.ID})
}

func (t *Telegram) commandHistory(ctx context.Context, userID int64, chatID int64) {
	workouts, err := t.workouts.History(ctx, userID, 5)
	if err != nil {
		t.replyError(ctx, userID, chatID, err)
		return
	}
	if len(workouts) == 0 {
		t.sendMessage(ctx, chatID, "История пока пуста. Используйте /workout, чтобы получить первый план тренировки.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Последние тренировки:\n")
	for i := range workouts {
		sb.WriteString("\n")
		sb.WriteString(renderHistoryEntry(&workouts[i]))
	}
	t.sendMessage(ctx, chatID, sb.String())
}

func (t *Telegram) commandSchedule(ctx context.Context, userID int64, chatID int64) {
	state, err := t.fsm.CurrentState(ctx, userID)
	if err != nil {
		t.replyError(ctx, userID, chatID, err)
		return
	}
	if state != models.StateIdle {
		t.replyStateConflict(ctx, chatID, state)
		return
	}

	if err := t.fsm.TransitionTo(ctx, userID, models.StateSchedulingDate); err != nil {
		t.replyError(ctx, userID, chatID, err)
		return
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Сегодня вечером", "schedule:today_evening"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Завтра утром", "schedule:tomorrow_morning"),
			tgbotapi.NewInlineKeyboardButtonData("Завтра вечером", "schedule:tomorrow_evening"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Отмена", "cancel_action"),
		),
	)
	t.sendWithKeyboard(ctx, chatID,
		"Когда планируешь тренировку? Выбери вариант или напиши дату и время, например «25.12 19:00».",
		keyboard)
}

func (t *Telegram) commandReset(ctx context.Context, userID int64, chatID int64) {
	if _, err := t.profiles.InitProfile(ctx, userID); err != nil {
		t.replyError(ctx, userID, chatID, err)
		return
	}
	if err := t.fsm.TransitionTo(ctx, userID, models.StateOnboardingMedicalConfirm); err != nil {
		t.replyError(ctx, userID, chatID, err)
		return
	}
	t.sendMessage(ctx, chatID, `Профиль сброшен, начнём заново.

Напомню: тренировки с гирями — это серьёзная нагрузка. Напиши «да», чтобы подтвердить отсутствие медицинских противопоказаний.`)
}

func (t *Telegram) commandStats(ctx context.Context, userID int64, chatID int64) {
	if t.adminUserID == 0 || userID != t.adminUserID {
		t.sendMessage(ctx, chatID, "Неизвестная команда. Используйте /help для списка команд.")
		return
	}
	report, err := t.analytics.DailyReport(ctx)
	if err != nil {
		t.replyError(ctx, userID, chatID, err)
		return
	}
	t.sendMessage(ctx, chatID, report)
}

// commandSetSubscription handles the admin /grant and /revoke commands:
// "/grant 123456789" switches that user to premium, /revoke back to free.
func (t *Telegram) commandSetSubscription(ctx context.Context, userID int64, chatID int64, text string, subType models.SubscriptionType) {
	if t.adminUserID == 0 || userID != t.adminUserID {
		t.sendMessage(ctx, chatID, "Неизвестная команда. Используйте /help для списка команд.")
		return
	}

	fields := strings.Fields(text)
	if len(fields) != 2 {
		t.sendMessage(ctx, chatID, "Формат: "+fields[0]+" <user_id>")
		return
	}
	targetID, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		t.sendMessage(ctx, chatID, "user_id должен быть числом.")
		return
	}

	if _, err := t.profiles.SetSubscription(ctx, targetID, subType); err != nil {
		t.replyError(ctx, userID, chatID, err)
		return
	}
	t.sendMessage(ctx, chatID, fmt.Sprintf("Подписка пользователя %d: %s.", targetID, subType))
}

// replyStateConflict tells the user what the bot is waiting for and offers a
// way out instead of silently ignoring the command.
func (t *Telegram) replyStateConflict(ctx context.Context, chatID int64, state models.UserState) {
	var hint string
	switch state {
	case models.StateWorkoutRequested:
		hint = "План тренировки уже готовится или ждёт твоего решения."
	case models.StateWorkoutInProgress:
		hint = "Сейчас идёт тренировка. Заверши её кнопкой под планом."
	case models.StateWorkoutFeedbackPending:
		hint = "Жду твой отзыв о прошедшей тренировке. Расскажи, как всё прошло, текстом или голосом."
	case models.StateSchedulingDate:
		hint = "Жду дату тренировки. Напиши её или выбери вариант из предложенных."
	case models.StateOnboardingMedicalConfirm, models.StateOnboardingEquipment,
		models.StateOnboardingExperience, models.StateOnboardingPersonalData,
		models.StateOnboardingGoals:
		hint = "Сначала закончим настройку профиля. Ответь на предыдущий вопрос."
	default:
		hint = "Сначала закончи текущее действие."
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Отменить текущее действие", "cancel_action"),
		),
	)
	t.sendWithKeyboard(ctx, chatID, hint, keyboard)
}

func renderProfile(user *models.UserProfile) string {
	var sb strings.Builder
	sb.WriteString("Твой профиль:\n\n")

	if len(user.Profile.Weights) > 0 {
		weights := make([]string, len(user.Profile.Weights))
		for i, w := range user.Profile.Weights {
			weights[i] = fmt.Sprintf("%d кг", w)
		}
		sb.WriteString("Гири: " + strings.Join(weights, ", ") + "\n")
	} else {
		sb.WriteString("Гири: не указаны\n")
	}

	sb.WriteString("Опыт: " + experienceLabel(user.Profile.Experience) + "\n")
	if user.Profile.BodyWeight > 0 {
		sb.WriteString(fmt.Sprintf("Вес: %.0f кг\n", user.Profile.BodyWeight))
	}
	sb.WriteString("Пол: " + genderLabel(user.Profile.Gender) + "\n")
	if user.Profile.Goal != "" {
		sb.WriteString("Цель: " + user.Profile.Goal + "\n")
	}

	sb.WriteString("\nЧто изменить?")
	return sb.String()
}

func renderWorkoutPlan(plan *models.Workout) string {
	var sb strings.Builder
	sb.WriteString("Твоя тренировка:\n\n")
	if plan.Plan.Warmup != "" {
		sb.WriteString("Разминка: " + plan.Plan.Warmup + "\n\n")
	}
	for i, ex := range plan.Plan.Exercises {
		sb.WriteString(fmt.Sprintf("%d. %s", i+1, ex.Name))
		if ex.Weight > 0 {
			sb.WriteString(fmt.Sprintf(" — %d кг", ex.Weight))
		}
		if ex.Reps != nil && ex.Sets != nil {
			sb.WriteString(fmt.Sprintf(", %d×%d", *ex.Sets, *ex.Reps))
		} else if ex.TimeWork != nil {
			sb.WriteString(fmt.Sprintf(", %d сек работы", *ex.TimeWork))
			if ex.TimeRest != nil {
				sb.WriteString(fmt.Sprintf(" / %d сек отдыха", *ex.TimeRest))
			}
		}
		sb.WriteString("\n")
		if ex.CoachingTips != "" {
			sb.WriteString("   " + ex.CoachingTips + "\n")
		}
	}
	if plan.Plan.Cooldown != "" {
		sb.WriteString("\nЗаминка: " + plan.Plan.Cooldown + "\n")
	}
	return sb.String()
}

func renderHistoryEntry(w *models.Workout) string {
	var sb strings.Builder
	if w.Timing.CompletedAt != nil {
		sb.WriteString(w.Timing.CompletedAt.Format("02.01.2006"))
	} else {
		sb.WriteString("(не завершена)")
	}
	sb.WriteString(fmt.Sprintf(" — %d упр.", len(w.Plan.Exercises)))
	if volume := workout.TotalVolume(w); volume > 0 {
		sb.WriteString(fmt.Sprintf(", объём %d кг", volume))
	}
	if w.ActualPerformance != nil && w.ActualPerformance.RPE != nil {
		sb.WriteString(fmt.Sprintf(", RPE %d", *w.ActualPerformance.RPE))
	}
	return sb.String()
}

func experienceLabel(level models.ExperienceLevel) string {
	switch level {
	case models.ExperienceBeginner:
		return "новичок"
	case models.ExperienceAmateur:
		return "любитель"
	case models.ExperiencePro:
		return "профи"
	default:
		return string(level)
	}
}

func genderLabel(g models.Gender) string {
	switch g {
	case models.GenderMale:
		return "мужской"
	case models.GenderFemale:
		return "женский"
	default:
		return "не указан"
	}
}
