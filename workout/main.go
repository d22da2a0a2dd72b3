package workout

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/bkzntsv/kettlebell/apperror"
	"github.com/bkzntsv/kettlebell/logger"
	"github.com/bkzntsv/kettlebell/models"
)

const (
	// quotaWindow approximates a month as a rolling 30-day window.
	quotaWindow = 30 * 24 * time.Hour

	deloadHistoryDepth = 3
)

type UserStore interface {
	FindUserByID(ctx context.Context, userID int64) (*models.UserProfile, error)
}

type WorkoutStore interface {
	SaveWorkout(ctx context.Context, workout *models.Workout) error
	FindWorkoutByID(ctx context.Context, workoutID string) (*models.Workout, error)
	FindWorkoutsByUserID(ctx context.Context, userID int64, limit int) ([]models.Workout, error)
	FindRecentWithPerformance(ctx context.Context, userID int64, count int) ([]models.Workout, error)
	CountCompletedWorkoutsAfter(ctx context.Context, userID int64, after time.Time) (int64, error)
}

// AI is the exchange protocol the orchestrator plans and analyzes through.
type AI interface {
	GenerateWorkoutPlan(ctx context.Context, workoutCtx models.WorkoutContext) (models.WorkoutPlan, models.AILog, error)
	AnalyzeFeedback(ctx context.Context, feedback string, originalPlan models.WorkoutPlan) (models.ActualPerformance, models.AILog, error)
}

// StateMachine is the slice of the conversation FSM the orchestrator drives.
type StateMachine interface {
	TransitionTo(ctx context.Context, userID int64, newState models.UserState) error
}

type WorkoutConnectProps struct {
	Logger           *logger.LogMiddleware
	Users            UserStore
	Workouts         WorkoutStore
	AI               AI
	FSM              StateMachine
	FreeMonthlyLimit int
}

// Service orchestrates the workout lifecycle: plan generation with quota and
// deload policy, start/finish transitions with duration accounting, and
// feedback processing that completes the workout.
type Service struct {
	logger           *logger.LogMiddleware
	users            UserStore
	workouts         WorkoutStore
	ai               AI
	fsm              StateMachine
	freeMonthlyLimit int
}

func Connect(args WorkoutConnectProps) *Service {
	return &Service{
		logger:           args.Logger,
		users:            args.Users,
		workouts:         args.Workouts,
		ai:               args.AI,
		fsm:              args.FSM,
		freeMonthlyLimit: args.FreeMonthlyLimit,
	}
}

// retryDB wraps a persistence call with the default retry policy: transient
// database failures are retried, everything else surfaces immediately.
func retryDB[T any](ctx context.Context, log *zap.Logger, op func() (T, error)) (T, error) {
	return apperror.WithRetry(ctx, apperror.RetryOptions{Logger: log}, op)
}

// GenerateWorkoutPlan checks preconditions (profile, equipment, quota),
// derives the deload signal from recent history, asks the AI for a plan and
// persists it as a new PLANNED workout. Conversation state is untouched: the
// caller transitions to WORKOUT_REQUESTED before calling.
func (s *Service) GenerateWorkoutPlan(ctx context.Context, userID int64) (*models.Workout, error) {
	tracer := otel.Tracer("workout/GenerateWorkoutPlan")
	ctx, span := tracer.Start(ctx, "GenerateWorkoutPlan")
	defer span.End()

	span.SetAttributes(attribute.Int64("user.id", userID))
	log := s.logger.Logger(ctx)

	user, err := retryDB(ctx, log, func() (*models.UserProfile, error) {
		return s.users.FindUserByID(ctx, userID)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if user == nil {
		return nil, apperror.UserNotFound(userID)
	}

	if len(user.Profile.Weights) == 0 {
		return nil, apperror.InvalidInput("В профиле не указаны гири. Пожалуйста, добавьте их через настройки (/profile).")
	}

	if user.Subscription.Type == models.SubscriptionFree {
		windowStart := time.Now().UTC().Truncate(24 * time.Hour).Add(-quotaWindow)
		count, err := retryDB(ctx, log, func() (int64, error) {
			return s.workouts.CountCompletedWorkoutsAfter(ctx, userID, windowStart)
		})
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if count >= int64(s.freeMonthlyLimit) {
			span.SetAttributes(attribute.Int64("quota.completed", count))
			return nil, apperror.SubscriptionLimitExceeded()
		}
	}

	recentWorkouts, err := retryDB(ctx, log, func() ([]models.Workout, error) {
		return s.workouts.FindRecentWithPerformance(ctx, userID, deloadHistoryDepth)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	suggestDeload := s.shouldSuggestDeload(ctx, recentWorkouts)
	span.SetAttributes(attribute.Bool("suggest.deload", suggestDeload))

	workoutCtx := models.WorkoutContext{
		Profile:          *user,
		RecentWorkouts:   recentWorkouts,
		AvailableWeights: user.Profile.Weights,
		// TODO: derive the training week from workout history instead of a constant.
		TrainingWeek:  1,
		SuggestDeload: suggestDeload,
	}

	plan, aiLog, err := s.ai.GenerateWorkoutPlan(ctx, workoutCtx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	workout := &models.Workout{
		ID:            uuid.NewString(),
		UserID:        userID,
		Status:        models.WorkoutPlanned,
		Plan:          plan,
		Timing:        models.WorkoutTiming{},
		AILog:         aiLog,
		SchemaVersion: 1,
	}

	if _, err := retryDB(ctx, log, func() (struct{}, error) {
		return struct{}{}, s.workouts.SaveWorkout(ctx, workout)
	}); err != nil {
		span.RecordError(err)
		return nil, err
	}

	log.Info("[Workout] Plan generated",
		zap.Int64("user_id", userID),
		zap.String("workout_id", workout.ID),
		zap.Int("exercises", len(plan.Exercises)),
		zap.Bool("deload", suggestDeload))

	return workout, nil
}

// findOwned loads a workout and enforces the ownership match. A foreign
// workout is indistinguishable from a missing one.
func (s *Service) findOwned(ctx context.Context, userID int64, workoutID string) (*models.Workout, error) {
	workout, err := retryDB(ctx, s.logger.Logger(ctx), func() (*models.Workout, error) {
		return s.workouts.FindWorkoutByID(ctx, workoutID)
	})
	if err != nil {
		return nil, err
	}
	if workout == nil || workout.UserID != userID {
		return nil, apperror.WorkoutNotFound(workoutID)
	}
	return workout, nil
}

// StartWorkout moves a PLANNED workout to IN_PROGRESS, stamps startedAt and
// drives the conversation to WORKOUT_IN_PROGRESS.
func (s *Service) StartWorkout(ctx context.Context, userID int64, workoutID string) (*models.Workout, error) {
	tracer := otel.Tracer("workout/StartWorkout")
	ctx, span := tracer.Start(ctx, "StartWorkout")
	defer span.End()

	workout, err := s.findOwned(ctx, userID, workoutID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if workout.Status != models.WorkoutPlanned {
		return nil, apperror.InvalidStateTransition(string(workout.Status), string(models.WorkoutInProgress))
	}

	now := time.Now().UTC()
	workout.Status = models.WorkoutInProgress
	workout.Timing.StartedAt = &now

	if _, err := retryDB(ctx, s.logger.Logger(ctx), func() (struct{}, error) {
		return struct{}{}, s.workouts.SaveWorkout(ctx, workout)
	}); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := s.fsm.TransitionTo(ctx, userID, models.StateWorkoutInProgress); err != nil {
		span.RecordError(err)
		return nil, err
	}

	return workout, nil
}

// FinishWorkout stamps completedAt and the duration, then moves the
// conversation to WORKOUT_FEEDBACK_PENDING. The workout status stays
// IN_PROGRESS until feedback lands; only ProcessFeedback completes it.
func (s *Service) FinishWorkout(ctx context.Context, userID int64, workoutID string) (*models.Workout, error) {
	tracer := otel.Tracer("workout/FinishWorkout")
	ctx, span := tracer.Start(ctx, "FinishWorkout")
	defer span.End()

	workout, err := s.findOwned(ctx, userID, workoutID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if workout.Status != models.WorkoutInProgress {
		return nil, apperror.InvalidStateTransition(string(workout.Status), string(models.WorkoutCompleted))
	}

	now := time.Now().UTC()
	var durationSeconds int64
	if workout.Timing.StartedAt != nil {
		durationSeconds = int64(now.Sub(*workout.Timing.StartedAt).Seconds())
	}
	workout.Timing.CompletedAt = &now
	workout.Timing.DurationSeconds = durationSeconds

	if _, err := retryDB(ctx, s.logger.Logger(ctx), func() (struct{}, error) {
		return struct{}{}, s.workouts.SaveWorkout(ctx, workout)
	}); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := s.fsm.TransitionTo(ctx, userID, models.StateWorkoutFeedbackPending); err != nil {
		span.RecordError(err)
		return nil, err
	}

	return workout, nil
}

// ProcessFeedback analyzes the user's raw feedback against the original
// plan, merges AI usage into the workout's running log, completes the
// workout and returns the conversation to IDLE. A degenerate analysis with
// an empty performance list is a valid outcome, not an error: the user is
// never left stuck in feedback-pending.
func (s *Service) ProcessFeedback(ctx context.Context, userID int64, workoutID string, rawText string) (*models.Workout, error) {
	tracer := otel.Tracer("workout/ProcessFeedback")
	ctx, span := tracer.Start(ctx, "ProcessFeedback")
	defer span.End()

	workout, err := s.findOwned(ctx, userID, workoutID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	performance, feedbackLog, err := s.ai.AnalyzeFeedback(ctx, rawText, workout.Plan)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	workout.Status = models.WorkoutCompleted
	workout.ActualPerformance = &performance
	workout.AILog.TokensUsed += feedbackLog.TokensUsed
	workout.AILog.FeedbackAnalysisTime = feedbackLog.FeedbackAnalysisTime

	if _, err := retryDB(ctx, s.logger.Logger(ctx), func() (struct{}, error) {
		return struct{}{}, s.workouts.SaveWorkout(ctx, workout)
	}); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := s.fsm.TransitionTo(ctx, userID, models.StateIdle); err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.logger.Logger(ctx).Info("[Workout] Feedback processed",
		zap.Int64("user_id", userID),
		zap.String("workout_id", workout.ID),
		zap.Int("volume", TotalVolume(workout)))

	return workout, nil
}

func (s *Service) History(ctx context.Context, userID int64, limit int) ([]models.Workout, error) {
	return retryDB(ctx, s.logger.Logger(ctx), func() ([]models.Workout, error) {
		return s.workouts.FindWorkoutsByUserID(ctx, userID, limit)
	})
}

// ActiveWorkout returns the user's most recent workout still awaiting
// feedback, or nil when there is none.
func (s *Service) ActiveWorkout(ctx context.Context, userID int64) (*models.Workout, error) {
	recent, err := retryDB(ctx, s.logger.Logger(ctx), func() ([]models.Workout, error) {
		return s.workouts.FindWorkoutsByUserID(ctx, userID, 10)
	})
	if err != nil {
		return nil, err
	}
	for i := range recent {
		if recent[i].Status == models.WorkoutInProgress {
			return &recent[i], nil
		}
	}
	return nil, nil
}

// CancelActive marks the user's dangling IN_PROGRESS workout CANCELLED so an
// abandoned session does not linger as active forever. Having nothing to
// cancel is not an error; the result is nil.
func (s *Service) CancelActive(ctx context.Context, userID int64) (*models.Workout, error) {
	tracer := otel.Tracer("workout/CancelActive")
	ctx, span := tracer.Start(ctx, "CancelActive")
	defer span.End()

	span.SetAttributes(attribute.Int64("user.id", userID))

	workout, err := s.ActiveWorkout(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if workout == nil {
		return nil, nil
	}

	workout.Status = models.WorkoutCancelled

	if _, err := retryDB(ctx, s.logger.Logger(ctx), func() (struct{}, error) {
		return struct{}{}, s.workouts.SaveWorkout(ctx, workout)
	}); err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.logger.Logger(ctx).Info("[Workout] Workout cancelled",
		zap.Int64("user_id", userID),
		zap.String("workout_id", workout.ID))

	return workout, nil
}

// TotalVolume returns Σ weight × reps × sets over performance entries where
// all three factors are positive. An entry missing any factor contributes
// exactly 0: unrecognized and bodyweight work both carry zero load volume.
// A workout without ActualPerformance has volume 0.
func TotalVolume(workout *models.Workout) int {
	if workout == nil || workout.ActualPerformance == nil {
		return 0
	}

	volume := 0
	for _, ex := range workout.ActualPerformance.Data {
		if ex.Weight > 0 && ex.Reps > 0 && ex.Sets > 0 {
			volume += ex.Weight * ex.Reps * ex.Sets
		}
	}
	return volume
}

// shouldSuggestDeload detects stagnation under high exertion: the last three
// performance-bearing workouts all have RPE above 8 and their volumes are
// non-decreasing in chronological order.
func (s *Service) shouldSuggestDeload(ctx context.Context, recentWorkouts []models.Workout) bool {
	if len(recentWorkouts) < deloadHistoryDepth {
		return false
	}
	recent := recentWorkouts[:deloadHistoryDepth]

	for _, w := range recent {
		if w.ActualPerformance == nil || w.ActualPerformance.RPE == nil || *w.ActualPerformance.RPE <= 8 {
			return false
		}
	}

	// recent is newest first; walk it oldest to newest.
	volumes := make([]int, deloadHistoryDepth)
	for i := range recent {
		volumes[deloadHistoryDepth-1-i] = TotalVolume(&recent[i])
	}
	stagnating := volumes[0] <= volumes[1] && volumes[1] <= volumes[2]

	if stagnating {
		s.logger.Logger(ctx).Info("[Workout] Deload suggested",
			zap.Ints("volumes", volumes))
	}
	return stagnating
}
