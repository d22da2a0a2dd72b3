package apperror

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected Kind
	}{
		{"mongo failure", errors.New("mongo find user: server selection timeout"), KindDatabaseUnavailable},
		{"generic database failure", errors.New("database write rejected"), KindDatabaseUnavailable},
		{"connection failure", errors.New("connection refused"), KindDatabaseUnavailable},
		{"gemini failure", errors.New("gemini completion returned no candidates"), KindAIServiceUnavailable},
		{"deepgram failure", errors.New("deepgram transcription request failed"), KindAIServiceUnavailable},
		{"unknown failure", errors.New("something odd happened"), KindUnexpected},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Classify(tc.err).Kind)
		})
	}
}

func TestClassifyPreservesTypedErrors(t *testing.T) {
	original := SubscriptionLimitExceeded()
	wrapped := errors.Join(errors.New("outer context"), original)

	classified := Classify(wrapped)
	assert.Equal(t, KindSubscriptionLimitExceeded, classified.Kind)
	assert.Same(t, original, classified)
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := DatabaseOperationFailed(cause)

	assert.True(t, errors.Is(err, cause))
	assert.True(t, IsKind(err, KindDatabaseOperationFailed))
	assert.False(t, IsKind(err, KindDatabaseUnavailable))
	assert.False(t, IsKind(nil, KindUnexpected))
}

func TestWithRetryRetriesUntilExhaustion(t *testing.T) {
	attempts := 0
	opts := RetryOptions{InitialDelay: time.Millisecond, Factor: 1.0}

	_, err := WithRetry(context.Background(), opts, func() (int, error) {
		attempts++
		return 0, DatabaseUnavailable(errors.New("down"))
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.True(t, IsKind(err, KindDatabaseUnavailable))
}

func TestWithRetryStopsOnNonRetryable(t *testing.T) {
	attempts := 0
	opts := RetryOptions{InitialDelay: time.Millisecond}

	_, err := WithRetry(context.Background(), opts, func() (int, error) {
		attempts++
		return 0, Validation("bad weights")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.True(t, IsKind(err, KindValidation))
}

func TestWithRetrySucceedsAfterTransientFailure(t *testing.T) {
	attempts := 0
	opts := RetryOptions{InitialDelay: time.Millisecond, Factor: 1.0}

	result, err := WithRetry(context.Background(), opts, func() (string, error) {
		attempts++
		if attempts < 2 {
			return "", AIServiceUnavailable(errors.New("overloaded"))
		}
		return "plan", nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, "plan", result)
}

func TestWithRetryCustomRetryableSet(t *testing.T) {
	attempts := 0
	opts := RetryOptions{
		InitialDelay: time.Millisecond,
		Factor:       1.0,
		Retryable:    map[Kind]bool{KindWorkoutGenerationFailed: true},
	}

	_, err := WithRetry(context.Background(), opts, func() (int, error) {
		attempts++
		return 0, WorkoutGenerationFailed(errors.New("malformed reply"))
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	opts := RetryOptions{InitialDelay: time.Minute}

	_, err := WithRetry(ctx, opts, func() (int, error) {
		attempts++
		return 0, DatabaseUnavailable(errors.New("down"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestToUserMessage(t *testing.T) {
	assert.Equal(t,
		"Достигнут месячный лимит бесплатных тренировок. Обновите подписку для продолжения.",
		ToUserMessage(SubscriptionLimitExceeded()))

	// Validation passes its message through verbatim.
	assert.Equal(t, "Укажите хотя бы одну гирю.", ToUserMessage(Validation("Укажите хотя бы одну гирю.")))

	// Raw errors never leak their text to the user.
	raw := errors.New("pq: relation workouts does not exist")
	assert.NotContains(t, ToUserMessage(raw), "pq:")
}
