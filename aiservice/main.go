package aiservice

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/bkzntsv/kettlebell/apperror"
	"github.com/bkzntsv/kettlebell/logger"
	"github.com/bkzntsv/kettlebell/modelapi"
	"github.com/bkzntsv/kettlebell/modelapi/geminiapi"
	"github.com/bkzntsv/kettlebell/models"
)

// Completer is the text-completion collaborator: a context-rich instruction
// goes in, free text that should contain exactly one JSON object comes out.
type Completer interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, geminiapi.CompletionMeta, error)
}

// Transcriber is the speech-to-text collaborator.
type Transcriber interface {
	Transcribe(ctx context.Context, audioData []byte) (string, error)
}

type AIServiceConnectProps struct {
	Logger      *logger.LogMiddleware
	Completer   Completer
	Transcriber Transcriber
}

// AIService owns the exchange protocol with the generative model: structured
// prompt construction on the way out, defensive parsing of untrusted text on
// the way back. Every outbound call runs under the shared retry layer.
type AIService struct {
	logger      *logger.LogMiddleware
	completer   Completer
	transcriber Transcriber
}

func Connect(args AIServiceConnectProps) *AIService {
	return &AIService{
		logger:      args.Logger,
		completer:   args.Completer,
		transcriber: args.Transcriber,
	}
}

type planResult struct {
	plan models.WorkoutPlan
	log  models.AILog
}

// GenerateWorkoutPlan builds the plan-generation prompt from the workout
// context and parses the model reply into a typed plan.
func (s *AIService) GenerateWorkoutPlan(ctx context.Context, workoutCtx models.WorkoutContext) (models.WorkoutPlan, models.AILog, error) {
	tracer := otel.Tracer("aiservice/GenerateWorkoutPlan")
	ctx, span := tracer.Start(ctx, "GenerateWorkoutPlan")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user.id", workoutCtx.Profile.ID),
		attribute.Bool("suggest.deload", workoutCtx.SuggestDeload))

	prompt := buildWorkoutPrompt(workoutCtx)

	result, err := apperror.WithRetry(ctx, apperror.RetryOptions{
		Logger: s.logger.Logger(ctx),
		Retryable: map[apperror.Kind]bool{
			apperror.KindAIServiceUnavailable:    true,
			apperror.KindWorkoutGenerationFailed: true,
		},
	}, func() (planResult, error) {
		content, meta, err := s.completer.Generate(ctx, modelapi.SystemPromptWorkoutGeneration, prompt)
		if err != nil {
			return planResult{}, apperror.AIServiceUnavailable(err)
		}

		plan, err := parseWorkoutPlan(content)
		if err != nil {
			s.logger.Logger(ctx).Error("[AIService] Failed to parse workout plan",
				zap.Error(err),
				zap.String("raw_content", content))
			return planResult{}, apperror.WorkoutGenerationFailed(err)
		}

		return planResult{
			plan: plan,
			log: models.AILog{
				TokensUsed:         meta.TokensUsed,
				ModelVersion:       meta.ModelVersion,
				PlanGenerationTime: meta.LatencyMillis,
				FinishReason:       meta.FinishReason,
			},
		}, nil
	})
	if err != nil {
		span.RecordError(err)
		return models.WorkoutPlan{}, models.AILog{}, err
	}

	s.logger.Logger(ctx).Info("[AIService] Workout plan generated",
		zap.Int("exercises", len(result.plan.Exercises)),
		zap.Int("tokens", result.log.TokensUsed),
		zap.Int64("time_ms", result.log.PlanGenerationTime))

	return result.plan, result.log, nil
}

type feedbackResult struct {
	performance models.ActualPerformance
	log         models.AILog
}

// AnalyzeFeedback compares the original plan against the athlete's free-form
// feedback and returns normalized performance records plus a coach remark.
func (s *AIService) AnalyzeFeedback(ctx context.Context, feedback string, originalPlan models.WorkoutPlan) (models.ActualPerformance, models.AILog, error) {
	tracer := otel.Tracer("aiservice/AnalyzeFeedback")
	ctx, span := tracer.Start(ctx, "AnalyzeFeedback")
	defer span.End()

	span.SetAttributes(attribute.Int("feedback.length", len(feedback)))

	prompt := buildFeedbackPrompt(feedback, originalPlan)

	result, err := apperror.WithRetry(ctx, apperror.RetryOptions{
		Logger: s.logger.Logger(ctx),
		Retryable: map[apperror.Kind]bool{
			apperror.KindAIServiceUnavailable:   true,
			apperror.KindFeedbackAnalysisFailed: true,
		},
	}, func() (feedbackResult, error) {
		content, meta, err := s.completer.Generate(ctx, modelapi.SystemPromptFeedbackAnalysis, prompt)
		if err != nil {
			return feedbackResult{}, apperror.AIServiceUnavailable(err)
		}

		performance, err := parseActualPerformance(content, feedback)
		if err != nil {
			s.logger.Logger(ctx).Error("[AIService] Failed to parse feedback analysis",
				zap.Error(err),
				zap.String("raw_content", content))
			return feedbackResult{}, apperror.FeedbackAnalysisFailed(err)
		}

		return feedbackResult{
			performance: performance,
			log: models.AILog{
				TokensUsed:           meta.TokensUsed,
				ModelVersion:         meta.ModelVersion,
				FeedbackAnalysisTime: meta.LatencyMillis,
				FinishReason:         meta.FinishReason,
			},
		}, nil
	})
	if err != nil {
		span.RecordError(err)
		return models.ActualPerformance{}, models.AILog{}, err
	}

	s.logger.Logger(ctx).Info("[AIService] Feedback analyzed",
		zap.Int("exercises", len(result.performance.Data)),
		zap.Int("tokens", result.log.TokensUsed),
		zap.Int64("time_ms", result.log.FeedbackAnalysisTime))

	return result.performance, result.log, nil
}

// TranscribeVoice turns voice feedback into text. The result is handled
// exactly like typed feedback by the caller.
func (s *AIService) TranscribeVoice(ctx context.Context, audioData []byte) (string, error) {
	tracer := otel.Tracer("aiservice/TranscribeVoice")
	ctx, span := tracer.Start(ctx, "TranscribeVoice")
	defer span.End()

	span.SetAttributes(attribute.Int("audio.size", len(audioData)))

	text, err := apperror.WithRetry(ctx, apperror.RetryOptions{
		Logger: s.logger.Logger(ctx),
		Retryable: map[apperror.Kind]bool{
			apperror.KindAIServiceUnavailable: true,
			apperror.KindTranscriptionFailed:  true,
		},
	}, func() (string, error) {
		text, err := s.transcriber.Transcribe(ctx, audioData)
		if err != nil {
			return "", apperror.TranscriptionFailed(err)
		}
		return text, nil
	})
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return text, nil
}
