package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/hyperdxio/opentelemetry-logs-go/exporters/otlp/otlplogs"
	sdk "github.com/hyperdxio/opentelemetry-logs-go/sdk/logs"
	"github.com/hyperdxio/otel-config-go/otelconfig"

	"github.com/bkzntsv/kettlebell/aiservice"
	"github.com/bkzntsv/kettlebell/analytics"
	"github.com/bkzntsv/kettlebell/config"
	"github.com/bkzntsv/kettlebell/database/mongodb"
	"github.com/bkzntsv/kettlebell/fsm"
	"github.com/bkzntsv/kettlebell/logger"
	"github.com/bkzntsv/kettlebell/modelapi/deepgramapi"
	"github.com/bkzntsv/kettlebell/modelapi/geminiapi"
	"github.com/bkzntsv/kettlebell/profile"
	"github.com/bkzntsv/kettlebell/telegram"
	"github.com/bkzntsv/kettlebell/workout"
)

const reminderSweepInterval = time.Minute

func main() {
	godotenv.Load()
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("Error loading configuration - %v", err)
	}

	otelShutdown, err := otelconfig.ConfigureOpenTelemetry()
	if err != nil {
		log.Fatalf("Error setting up OTel SDK - %e", err)
	}
	defer otelShutdown()

	logExporter, _ := otlplogs.NewExporter(ctx)
	loggerProvider := sdk.NewLoggerProvider(sdk.WithBatcher(logExporter))
	defer loggerProvider.Shutdown(ctx)

	LogMiddleware := logger.Connect(logger.LoggerConnectProps{Production: cfg.Production, LoggerProvider: loggerProvider})
	defer LogMiddleware.Sync()

	db := mongodb.Connect(ctx, mongodb.DatabaseConnectProps{
		Logger:       LogMiddleware,
		URI:          cfg.MongoURI,
		DatabaseName: cfg.MongoDatabase,
	})
	defer db.Disconnect(ctx)

	geminiClient, err := geminiapi.Connect(ctx, geminiapi.GeminiConnectProps{
		Logger:    LogMiddleware,
		SecretKey: cfg.GeminiSecretKey,
	})
	if err != nil {
		log.Fatalf("Error connecting to Gemini API - %v", err)
	}
	deepgramClient := deepgramapi.Connect(LogMiddleware)

	aiService := aiservice.Connect(aiservice.AIServiceConnectProps{
		Logger:      LogMiddleware,
		Completer:   geminiClient,
		Transcriber: deepgramClient,
	})
	analyticsService := analytics.Connect(analytics.AnalyticsConnectProps{
		Logger: LogMiddleware,
		Store:  db,
	})
	stateMachine := fsm.Connect(fsm.FSMConnectProps{
		Logger:    LogMiddleware,
		Store:     db,
		Analytics: analyticsService,
	})
	profileService := profile.Connect(profile.ProfileConnectProps{
		Logger: LogMiddleware,
		Store:  db,
	})
	workoutService := workout.Connect(workout.WorkoutConnectProps{
		Logger:           LogMiddleware,
		Users:            db,
		Workouts:         db,
		AI:               aiService,
		FSM:              stateMachine,
		FreeMonthlyLimit: cfg.FreeMonthlyLimit,
	})

	telegramBot := telegram.Connect(ctx, telegram.TelegramConnectProps{
		Logger:      LogMiddleware,
		Token:       cfg.TelegramBotToken,
		AdminUserID: cfg.AdminUserID,
		Profiles:    profileService,
		Workouts:    workoutService,
		FSM:         stateMachine,
		AI:          aiService,
		Analytics:   analyticsService,
	})

	Logger := LogMiddleware.Logger(ctx)
	if cfg.Production {
		Logger.Info("[Telegram] Bot starting in production mode")
	} else {
		Logger.Info("[Telegram] Bot starting in development mode")
	}

	go runReminderSweep(ctx, telegramBot)

	if cfg.BotMode == "webhook" {
		runWebhookServer(ctx, cfg, LogMiddleware, telegramBot)
		return
	}

	// Long-polling mode (blocking call)
	telegramBot.Listen(ctx)
}

func runReminderSweep(ctx context.Context, bot *telegram.Telegram) {
	ticker := time.NewTicker(reminderSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			bot.CheckReminders(ctx)
		}
	}
}

// runWebhookServer receives updates over HTTP instead of polling. The handler
// acknowledges immediately and processes the update asynchronously so the
// provider never times out waiting on the AI pipeline.
func runWebhookServer(ctx context.Context, cfg *config.Config, logMiddleware *logger.LogMiddleware, bot *telegram.Telegram) {
	router := chi.NewRouter()
	router.Use(requestLoggerMiddleware(logMiddleware))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	router.Post("/webhook/{token}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "token") != cfg.TelegramBotToken {
			w.WriteHeader(http.StatusForbidden)
			return
		}

		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			logMiddleware.Logger(r.Context()).Warn("Failed to decode webhook update", zap.Error(err))
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		go bot.HandleUpdate(ctx, update)
		w.WriteHeader(http.StatusOK)
	})

	handler := otelhttp.NewHandler(router, "server")
	logMiddleware.Logger(ctx).Info("[Server] Webhook server listening", zap.String("port", cfg.Port))
	if err := http.ListenAndServe(":"+cfg.Port, handler); err != nil {
		log.Fatalf("Error running webhook server - %v", err)
	}
}

func requestLoggerMiddleware(logger *logger.LogMiddleware) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logger.Logger(ctx).Info("Request Received", zap.String("url", r.URL.Path), zap.String("method", r.Method))
			next.ServeHTTP(w, r)
			logger.Logger(ctx).Info("Request Completed", zap.String("path", r.URL.Path), zap.String("method", r.Method))
		})
	}
}
