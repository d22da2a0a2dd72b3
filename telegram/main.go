package telegram

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/bkzntsv/kettlebell/aiservice"
	"github.com/bkzntsv/kettlebell/analytics"
	"github.com/bkzntsv/kettlebell/apperror"
	"github.com/bkzntsv/kettlebell/fsm"
	"github.com/bkzntsv/kettlebell/logger"
	"github.com/bkzntsv/kettlebell/models"
	"github.com/bkzntsv/kettlebell/profile"
	"github.com/bkzntsv/kettlebell/workout"
)

const pollErrorBackoff = 5 * time.Second

type TelegramConnectProps struct {
	Logger      *logger.LogMiddleware
	Token       string
	AdminUserID int64
	Profiles    *profile.Service
	Workouts    *workout.Service
	FSM         *fsm.Manager
	AI          *aiservice.AIService
	Analytics   *analytics.Analytics
}

// Telegram is the chat-transport adapter: it decodes inbound updates,
// dispatches them to the conversation logic and renders replies.
type Telegram struct {
	logger      *logger.LogMiddleware
	bot         *tgbotapi.BotAPI
	adminUserID int64
	profiles    *profile.Service
	workouts    *workout.Service
	fsm         *fsm.Manager
	ai          *aiservice.AIService
	analytics   *analytics.Analytics
}

func Connect(ctx context.Context, args TelegramConnectProps) *Telegram {
	tracer := otel.Tracer("telegram/Connect")
	ctx, span := tracer.Start(ctx, "Connect")
	defer span.End()

	if args.Token == "" {
		args.Logger.Logger(ctx).Fatal("TELEGRAM_BOT_TOKEN environment variable not set")
	}

	bot, err := tgbotapi.NewBotAPI(args.Token)
	if err != nil {
		args.Logger.Logger(ctx).Fatal("Failed to create Telegram bot", zap.Error(err))
	}

	span.SetAttributes(attribute.String("bot.username", bot.Self.UserName))
	args.Logger.Logger(ctx).Info("Telegram bot connected successfully",
		zap.String("username", bot.Self.UserName))

	return &Telegram{
		logger:      args.Logger,
		bot:         bot,
		adminUserID: args.AdminUserID,
		profiles:    args.Profiles,
		workouts:    args.Workouts,
		fsm:         args.FSM,
		ai:          args.AI,
		analytics:   args.Analytics,
	}
}

// Listen long-polls the Telegram update endpoint with an increasing offset
// cursor, spawning one goroutine per update so users are handled
// concurrently. Provider errors back off a fixed delay before the next poll.
func (t *Telegram) Listen(ctx context.Context) {
	tracer := otel.Tracer("telegram/Listen")
	ctx, span := tracer.Start(ctx, "Listen")
	defer span.End()

	t.logger.Logger(ctx).Info("Starting Telegram bot message listener")

	offset := 0
	for {
		select {
		case <-ctx.Done():
			t.logger.Logger(ctx).Info("Shutting down Telegram bot listener")
			return
		default:
		}

		updateConfig := tgbotapi.NewUpdate(offset)
		updateConfig.Timeout = 60

		updates, err := t.bot.GetUpdates(updateConfig)
		if err != nil {
			t.logger.Logger(ctx).Error("Failed to fetch updates, backing off",
				zap.Error(err),
				zap.Duration("backoff", pollErrorBackoff))
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollErrorBackoff):
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			go t.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate routes one inbound update. It is the entry point for both
// polling and the webhook server and never panics outward.
func (t *Telegram) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	tracer := otel.Tracer("telegram/HandleUpdate")
	ctx, span := tracer.Start(ctx, "HandleUpdate")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			t.logger.Logger(ctx).Error("Panic while handling update",
				zap.Any("panic", r),
				zap.Int("update_id", update.UpdateID))
		}
	}()

	switch {
	case update.Message != nil && update.Message.Voice != nil:
		t.handleVoiceMessage(ctx, update.Message)
	case update.Message != nil && update.Message.Text != "":
		t.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		t.handleCallbackQuery(ctx, update.CallbackQuery)
	default:
		t.logger.Logger(ctx).Warn("Unsupported update type", zap.Int("update_id", update.UpdateID))
	}
}

func (t *Telegram) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	tracer := otel.Tracer("telegram/handleMessage")
	ctx, span := tracer.Start(ctx, "handleMessage")
	defer span.End()

	if message.From == nil {
		return
	}

	userID := message.From.ID
	chatID := message.Chat.ID
	text := message.Text

	span.SetAttributes(
		attribute.Int64("user.id", userID),
		attribute.String("message.type", "text"))

	t.logger.Logger(ctx).Info("Received message",
		zap.Int64("user_id", userID),
		zap.String("username", message.From.UserName))

	if text[0] == '/' {
		t.handleCommand(ctx, userID, chatID, text)
		return
	}
	t.handleStateMessage(ctx, userID, chatID, text)
}

// replyError classifies a failure, logs it with full context and sends the
// user-safe rendering. The raw error never reaches the chat.
func (t *Telegram) replyError(ctx context.Context, userID int64, chatID int64, err error) {
	t.logger.Logger(ctx).Error("Handler failed",
		zap.Error(err),
		zap.Int64("user_id", userID))
	t.analytics.Track(userID, models.EventError, "handler_error", map[string]string{"error": err.Error()})
	t.sendMessage(ctx, chatID, apperror.ToUserMessage(err))
}

func (t *Telegram) sendMessage(ctx context.Context, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Logger(ctx).Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (t *Telegram) sendWithKeyboard(ctx context.Context, chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = keyboard
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Logger(ctx).Error("Failed to send message with keyboard",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}
