package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/bkzntsv/kettlebell/logger"
	"github.com/bkzntsv/kettlebell/models"
)

type EventStore interface {
	InsertEvent(ctx context.Context, event models.AnalyticsEvent) error
	FindEventsSince(ctx context.Context, since time.Time) ([]models.AnalyticsEvent, error)
}

type AnalyticsConnectProps struct {
	Logger *logger.LogMiddleware
	Store  EventStore
}

type Analytics struct {
	logger *logger.LogMiddleware
	store  EventStore
}

func Connect(args AnalyticsConnectProps) *Analytics {
	return &Analytics{logger: args.Logger, store: args.Store}
}

// Track records an event fire-and-forget: the write happens on its own
// goroutine with its own deadline and a failure is only ever logged. A broken
// analytics sink must never block or fail the caller.
func (a *Analytics) Track(userID int64, eventType models.EventType, name string, metadata map[string]string) {
	event := models.AnalyticsEvent{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      eventType,
		Name:      name,
		Metadata:  metadata,
		Timestamp: time.Now().UTC(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := a.store.InsertEvent(ctx, event); err != nil {
			a.logger.Logger(ctx).Warn("[Analytics] Failed to track event",
				zap.Error(err),
				zap.String("event_name", name),
				zap.Int64("user_id", userID))
		}
	}()
}

// DailyReport summarizes the trailing 24 hours for the admin /stats command.
func (a *Analytics) DailyReport(ctx context.Context) (string, error) {
	tracer := otel.Tracer("analytics/DailyReport")
	ctx, span := tracer.Start(ctx, "DailyReport")
	defer span.End()

	since := time.Now().UTC().Add(-24 * time.Hour)
	events, err := a.store.FindEventsSince(ctx, since)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	activeUsers := make(map[int64]struct{})
	newUsers := 0
	workoutsStarted := 0
	workoutsCompleted := 0
	commandCounts := make(map[string]int)

	for _, event := range events {
		activeUsers[event.UserID] = struct{}{}
		if event.Type == models.EventCommand {
			commandCounts[event.Name]++
			if event.Name == "/start" {
				newUsers++
			}
		}
		switch event.Name {
		case "start_workout":
			workoutsStarted++
		case "finish_workout":
			workoutsCompleted++
		}
	}

	type commandCount struct {
		name  string
		count int
	}
	topCommands := make([]commandCount, 0, len(commandCounts))
	for name, count := range commandCounts {
		topCommands = append(topCommands, commandCount{name, count})
	}
	sort.Slice(topCommands, func(i, j int) bool {
		if topCommands[i].count != topCommands[j].count {
			return topCommands[i].count > topCommands[j].count
		}
		return topCommands[i].name < topCommands[j].name
	})
	if len(topCommands) > 5 {
		topCommands = topCommands[:5]
	}

	var b strings.Builder
	b.WriteString("📊 Отчет за последние 24 часа:\n")
	fmt.Fprintf(&b, "👥 Активные пользователи (DAU): %d\n", len(activeUsers))
	fmt.Fprintf(&b, "🆕 Новые пользователи: %d\n", newUsers)
	fmt.Fprintf(&b, "🏋️ Тренировки: начато %d / завершено %d\n", workoutsStarted, workoutsCompleted)
	b.WriteString("\n🔝 Топ команд:\n")
	for _, cmd := range topCommands {
		fmt.Fprintf(&b, "- %s: %d\n", cmd.name, cmd.count)
	}

	return b.String(), nil
}
