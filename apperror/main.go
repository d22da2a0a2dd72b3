package apperror

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Kind is the error taxonomy every user-facing failure is classified into.
type Kind int

const (
	KindUnexpected Kind = iota

	KindAIServiceUnavailable
	KindTranscriptionFailed
	KindWorkoutGenerationFailed
	KindFeedbackAnalysisFailed

	KindDatabaseUnavailable
	KindDatabaseOperationFailed

	KindValidation
	KindInvalidInput

	KindUserNotFound
	KindWorkoutNotFound
	KindSubscriptionLimitExceeded
	KindInvalidStateTransition
)

// Error is the single concrete error type of the taxonomy.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func AIServiceUnavailable(cause error) *Error {
	return &Error{Kind: KindAIServiceUnavailable, Message: "AI service is currently unavailable", Cause: cause}
}

func TranscriptionFailed(cause error) *Error {
	return &Error{Kind: KindTranscriptionFailed, Message: "failed to transcribe voice message", Cause: cause}
}

func WorkoutGenerationFailed(cause error) *Error {
	return &Error{Kind: KindWorkoutGenerationFailed, Message: "failed to generate workout plan", Cause: cause}
}

func FeedbackAnalysisFailed(cause error) *Error {
	return &Error{Kind: KindFeedbackAnalysisFailed, Message: "failed to analyze feedback", Cause: cause}
}

func DatabaseUnavailable(cause error) *Error {
	return &Error{Kind: KindDatabaseUnavailable, Message: "database is currently unavailable", Cause: cause}
}

func DatabaseOperationFailed(cause error) *Error {
	return &Error{Kind: KindDatabaseOperationFailed, Message: "database operation failed", Cause: cause}
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func InvalidInput(message string) *Error {
	return &Error{Kind: KindInvalidInput, Message: message}
}

func UserNotFound(userID int64) *Error {
	return &Error{Kind: KindUserNotFound, Message: fmt.Sprintf("user %d not found", userID)}
}

func WorkoutNotFound(workoutID string) *Error {
	return &Error{Kind: KindWorkoutNotFound, Message: fmt.Sprintf("workout %s not found", workoutID)}
}

func SubscriptionLimitExceeded() *Error {
	return &Error{Kind: KindSubscriptionLimitExceeded, Message: "free monthly limit exceeded"}
}

func InvalidStateTransition(from, to string) *Error {
	return &Error{Kind: KindInvalidStateTransition, Message: fmt.Sprintf("invalid state transition from %s to %s", from, to)}
}

func Unexpected(cause error) *Error {
	return &Error{Kind: KindUnexpected, Message: "an unexpected error occurred", Cause: cause}
}

// KindOf returns the taxonomy kind of err, classifying raw errors on the fly.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Classify(err).Kind
}

// IsKind reports whether err classifies to the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Classify maps a raw collaborator failure onto the taxonomy using
// conservative text matching against its origin. It is a boundary adapter,
// not business logic: anything unrecognized becomes KindUnexpected.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "mongo"),
		strings.Contains(msg, "database"),
		strings.Contains(msg, "connection"):
		return DatabaseUnavailable(err)
	case strings.Contains(msg, "gemini"),
		strings.Contains(msg, "deepgram"),
		strings.Contains(msg, "api"):
		return AIServiceUnavailable(err)
	default:
		return Unexpected(err)
	}
}

// RetryOptions controls WithRetry. Zero values fall back to the defaults the
// whole system uses: 3 attempts, 1s initial delay, factor 2.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Factor       float64
	Retryable    map[Kind]bool
	Logger       *zap.Logger
}

// DefaultRetryable is the exact set of kinds worth retrying. Validation,
// not-found and quota failures are excluded: retrying cannot change them.
func DefaultRetryable() map[Kind]bool {
	return map[Kind]bool{
		KindDatabaseUnavailable:     true,
		KindDatabaseOperationFailed: true,
		KindAIServiceUnavailable:    true,
	}
}

func (o RetryOptions) withDefaults() RetryOptions {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = time.Second
	}
	if o.Factor <= 0 {
		o.Factor = 2.0
	}
	if o.Retryable == nil {
		o.Retryable = DefaultRetryable()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// WithRetry executes op, retrying with exponential backoff while the
// classified failure kind is retryable and attempts remain. Non-retryable
// failures and exhaustion re-raise the classified error immediately.
func WithRetry[T any](ctx context.Context, opts RetryOptions, op func() (T, error)) (T, error) {
	opts = opts.withDefaults()

	var zero T
	currentDelay := opts.InitialDelay

	var lastErr *Error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		result, err := op()
		if err == nil {
			return result, nil
		}

		lastErr = Classify(err)
		if !opts.Retryable[lastErr.Kind] || attempt == opts.MaxAttempts {
			opts.Logger.Error("[Retry] Operation failed",
				zap.Int("attempts", attempt),
				zap.Error(lastErr))
			return zero, lastErr
		}

		opts.Logger.Warn("[Retry] Attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", currentDelay),
			zap.Error(lastErr))

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(currentDelay):
		}
		currentDelay = time.Duration(float64(currentDelay) * opts.Factor)
	}

	return zero, lastErr
}

// ToUserMessage renders a classified failure as a user-safe reply. Only
// Validation and InvalidInput leak caller-supplied detail to the user.
func ToUserMessage(err error) string {
	classified := Classify(err)

	switch classified.Kind {
	case KindAIServiceUnavailable:
		return "Сервис генерации тренировок временно недоступен. Попробуйте позже."
	case KindTranscriptionFailed:
		return "Не удалось распознать голосовое сообщение. Попробуйте отправить текстом."
	case KindWorkoutGenerationFailed:
		return "Не удалось создать план тренировки. Попробуйте позже."
	case KindFeedbackAnalysisFailed:
		return "Не удалось проанализировать отзыв. Попробуйте еще раз."
	case KindDatabaseUnavailable:
		return "База данных временно недоступна. Попробуйте позже."
	case KindDatabaseOperationFailed:
		return "Ошибка при сохранении данных. Попробуйте еще раз."
	case KindValidation, KindInvalidInput:
		return classified.Message
	case KindUserNotFound:
		return "Пользователь не найден. Используйте /start для начала работы."
	case KindWorkoutNotFound:
		return "Тренировка не найдена."
	case KindSubscriptionLimitExceeded:
		return "Достигнут месячный лимит бесплатных тренировок. Обновите подписку для продолжения."
	case KindInvalidStateTransition:
		return "Невозможно выполнить это действие в текущем состоянии."
	default:
		return "Произошла непредвиденная ошибка. Попробуйте позже или обратитесь в поддержку."
	}
}
