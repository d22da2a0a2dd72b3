package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

// Config is the full environment of the bot process.
type Config struct {
	Port    string `env:"PORT, default=80"`
	BotMode string `env:"BOT_MODE, default=polling"` // polling or webhook

	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN, required"`
	GeminiSecretKey  string `env:"GEMINI_SECRET_KEY, required"`
	// The Deepgram SDK reads this variable itself; it is declared here so
	// the whole environment surface is visible in one place.
	DeepgramAPIKey string `env:"DEEPGRAM_API_KEY"`

	MongoURI      string `env:"MONGODB_CONNECTION_URI, default=mongodb://localhost:27017"`
	MongoDatabase string `env:"MONGODB_DATABASE_NAME, default=kettlebell"`

	FreeMonthlyLimit int   `env:"FREE_MONTHLY_LIMIT, default=10"`
	AdminUserID      int64 `env:"ADMIN_USER_ID"`

	Production bool `env:"PRODUCTION"`
}

// Load decodes the process environment. godotenv.Load in main runs first, so
// a local .env file feeds the same path.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("could not process environment config: %w", err)
	}
	if cfg.BotMode != "polling" && cfg.BotMode != "webhook" {
		return nil, fmt.Errorf("BOT_MODE must be polling or webhook, got %q", cfg.BotMode)
	}
	return &cfg, nil
}
