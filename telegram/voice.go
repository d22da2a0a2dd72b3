package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/bkzntsv/kettlebell/apperror"
	"github.com/bkzntsv/kettlebell/models"
)

const maxVoiceDurationSeconds = 300

// handleVoiceMessage downloads the voice note, transcribes it and feeds the
// transcript through the same state dispatch as typed text.
func (t *Telegram) handleVoiceMessage(ctx context.Context, message *tgbotapi.Message) {
	tracer := otel.Tracer("telegram/handleVoiceMessage")
	ctx, span := tracer.Start(ctx, "handleVoiceMessage")
	defer span.End()

	if message.From == nil {
		return
	}
	userID := message.From.ID
	chatID := message.Chat.ID

	span.SetAttributes(
		attribute.Int64("user.id", userID),
		attribute.Int("voice.duration", message.Voice.Duration))

	t.logger.Logger(ctx).Info("Received voice message",
		zap.Int64("user_id", userID),
		zap.Int("duration_seconds", message.Voice.Duration))

	if message.Voice.Duration > maxVoiceDurationSeconds {
		t.sendMessage(ctx, chatID, "Голосовое сообщение слишком длинное. Уложись, пожалуйста, в 5 минут или напиши текстом.")
		return
	}

	audio, err := t.downloadVoiceFile(ctx, message.Voice.FileID)
	if err != nil {
		span.RecordError(err)
		t.replyError(ctx, userID, chatID, apperror.TranscriptionFailed(err))
		return
	}

	transcript, err := t.ai.TranscribeVoice(ctx, audio)
	if err != nil {
		span.RecordError(err)
		t.replyError(ctx, userID, chatID, err)
		return
	}
	if transcript == "" {
		t.sendMessage(ctx, chatID, "Не смог разобрать голосовое сообщение. Попробуй ещё раз или напиши текстом.")
		return
	}

	t.logger.Logger(ctx).Info("Voice message transcribed",
		zap.Int64("user_id", userID),
		zap.Int("transcript_length", len(transcript)))

	t.analytics.Track(userID, models.EventAction, "voice_transcribed", map[string]string{
		"duration_seconds": fmt.Sprintf("%d", message.Voice.Duration),
	})
	t.handleStateMessage(ctx, userID, chatID, transcript)
}

func (t *Telegram) downloadVoiceFile(ctx context.Context, fileID string) ([]byte, error) {
	url, err := t.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve voice file url: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build voice file request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download voice file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("voice file download returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
