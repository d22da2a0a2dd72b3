package telegram

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CheckReminders scans users with a scheduled workout and sends the 1-hour
// and 5-minute reminders that are due. A failure for one user never blocks
// the rest of the sweep. Meant to be driven by a ticker from main.
func (t *Telegram) CheckReminders(ctx context.Context) {
	tracer := otel.Tracer("telegram/CheckReminders")
	ctx, span := tracer.Start(ctx, "CheckReminders")
	defer span.End()

	users, err := t.profiles.UsersWithPendingReminders(ctx)
	if err != nil {
		span.RecordError(err)
		t.logger.Logger(ctx).Error("Failed to load users for reminder sweep", zap.Error(err))
		return
	}
	span.SetAttributes(attribute.Int("users.count", len(users)))

	now := time.Now()
	for i := range users {
		user := &users[i]
		if user.Scheduling == nil {
			continue
		}
		until := user.Scheduling.NextWorkout.Sub(now)

		switch {
		case until <= 0:
			t.sendMessage(ctx, user.ID, "Время тренировки! Используй /workout, чтобы получить план.")
			if _, err := t.profiles.ClearScheduling(ctx, user.ID); err != nil {
				t.logger.Logger(ctx).Error("Failed to clear schedule after workout time",
					zap.Error(err), zap.Int64("user_id", user.ID))
			}
		case until <= 5*time.Minute && !user.Scheduling.Reminder5mSent:
			t.sendMessage(ctx, user.ID, "Тренировка через 5 минут. Разомнись и приготовь гири!")
			if _, err := t.profiles.MarkReminderSent(ctx, user.ID, "5m"); err != nil {
				t.logger.Logger(ctx).Error("Failed to mark 5m reminder sent",
					zap.Error(err), zap.Int64("user_id", user.ID))
			}
		case until <= time.Hour && !user.Scheduling.Reminder1hSent:
			t.sendMessage(ctx, user.ID, "Напоминаю: тренировка через час.")
			if _, err := t.profiles.MarkReminderSent(ctx, user.ID, "1h"); err != nil {
				t.logger.Logger(ctx).Error("Failed to mark 1h reminder sent",
					zap.Error(err), zap.Int64("user_id", user.ID))
			}
		}
	}
}
