package geminiapi

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"google.golang.org/genai"

	"github.com/bkzntsv/kettlebell/logger"
)

const GEMINI_MODEL_NAME = "gemini-2.5-flash"

type GeminiConnectProps struct {
	Logger    *logger.LogMiddleware
	SecretKey string
}

type Gemini struct {
	logger    *logger.LogMiddleware
	client    *genai.Client
	semaphore *semaphore.Weighted
}

// CompletionMeta is the usage metadata of one completion call.
type CompletionMeta struct {
	TokensUsed    int
	ModelVersion  string
	FinishReason  string
	LatencyMillis int64
}

func Connect(ctx context.Context, args GeminiConnectProps) (*Gemini, error) {
	tracer := otel.Tracer("geminiapi/Connect")
	ctx, span := tracer.Start(ctx, "Connect")
	defer span.End()
	args.Logger.Logger(ctx).Info("[GeminiAPI] Connecting Gemini API client")

	maxWorkers := 10
	span.SetAttributes(attribute.Int("maxWorkers", maxWorkers))

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  args.SecretKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		args.Logger.Logger(ctx).Error("[GeminiAPI] Could not create Gemini client", zap.Error(err))
		span.RecordError(err)
		return nil, err
	}

	return &Gemini{
		logger:    args.Logger,
		client:    client,
		semaphore: semaphore.NewWeighted(int64(maxWorkers)),
	}, nil
}

// Generate sends one system-instruction + user-prompt completion and returns
// the raw text with usage metadata. It makes exactly one attempt: the retry
// policy belongs to the caller's retry layer, not the transport.
func (g *Gemini) Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, CompletionMeta, error) {
	tracer := otel.Tracer("geminiapi/Generate")
	ctx, span := tracer.Start(ctx, "Generate")
	defer span.End()

	span.SetAttributes(
		attribute.String("model", GEMINI_MODEL_NAME),
		attribute.Int("prompt.length", len(userPrompt)))

	if err := g.semaphore.Acquire(ctx, 1); err != nil {
		span.RecordError(err)
		return "", CompletionMeta{}, fmt.Errorf("gemini semaphore: %w", err)
	}
	defer g.semaphore.Release(1)

	thinkingBudget := int32(0)
	startTime := time.Now()

	resp, err := g.client.Models.GenerateContent(ctx, GEMINI_MODEL_NAME, genai.Text(userPrompt), &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}},
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  &thinkingBudget,
		},
	})
	if err != nil {
		g.logger.Logger(ctx).Error("[GeminiAPI] Error generating LLM content", zap.Error(err))
		span.RecordError(err)
		return "", CompletionMeta{}, fmt.Errorf("gemini generate content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		g.logger.Logger(ctx).Warn("[GeminiAPI] Received empty or invalid LLM response")
		span.AddEvent("EmptyResponse")
		return "", CompletionMeta{}, fmt.Errorf("gemini returned empty response")
	}

	meta := CompletionMeta{
		ModelVersion:  GEMINI_MODEL_NAME,
		FinishReason:  string(resp.Candidates[0].FinishReason),
		LatencyMillis: time.Since(startTime).Milliseconds(),
	}
	if resp.UsageMetadata != nil {
		meta.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}

	text := ""
	for _, part := range resp.Candidates[0].Content.Parts {
		text += part.Text
	}

	span.SetAttributes(
		attribute.Int("tokens.used", meta.TokensUsed),
		attribute.String("finish.reason", meta.FinishReason))
	g.logger.Logger(ctx).Info("[GeminiAPI] LLM generation successful",
		zap.Int("tokens_used", meta.TokensUsed),
		zap.String("finish_reason", meta.FinishReason),
		zap.Int64("latency_ms", meta.LatencyMillis))

	return text, meta, nil
}
