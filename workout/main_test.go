package workout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bkzntsv/kettlebell/apperror"
	"github.com/bkzntsv/kettlebell/logger"
	"github.com/bkzntsv/kettlebell/models"
)

type fakeUserStore struct {
	user *models.UserProfile
}

func (f *fakeUserStore) FindUserByID(ctx context.Context, userID int64) (*models.UserProfile, error) {
	return f.user, nil
}

type fakeWorkoutStore struct {
	saved          []*models.Workout
	byID           map[string]*models.Workout
	recent         []models.Workout
	completedCount int64
}

func newFakeWorkoutStore() *fakeWorkoutStore {
	return &fakeWorkoutStore{byID: make(map[string]*models.Workout)}
}

func (f *fakeWorkoutStore) SaveWorkout(ctx context.Context, workout *models.Workout) error {
	f.saved = append(f.saved, workout)
	f.byID[workout.ID] = workout
	return nil
}

func (f *fakeWorkoutStore) FindWorkoutByID(ctx context.Context, workoutID string) (*models.Workout, error) {
	return f.byID[workoutID], nil
}

func (f *fakeWorkoutStore) FindWorkoutsByUserID(ctx context.Context, userID int64, limit int) ([]models.Workout, error) {
	var out []models.Workout
	for _, w := range f.byID {
		if w.UserID == userID {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (f *fakeWorkoutStore) FindRecentWithPerformance(ctx context.Context, userID int64, count int) ([]models.Workout, error) {
	return f.recent, nil
}

func (f *fakeWorkoutStore) CountCompletedWorkoutsAfter(ctx context.Context, userID int64, after time.Time) (int64, error) {
	return f.completedCount, nil
}

type fakeAI struct {
	plan        models.WorkoutPlan
	performance models.ActualPerformance
	planErr     error
	feedbackErr error
	lastContext models.WorkoutContext
}

func (f *fakeAI) GenerateWorkoutPlan(ctx context.Context, workoutCtx models.WorkoutContext) (models.WorkoutPlan, models.AILog, error) {
	f.lastContext = workoutCtx
	return f.plan, models.AILog{TokensUsed: 100, ModelVersion: "test-model"}, f.planErr
}

func (f *fakeAI) AnalyzeFeedback(ctx context.Context, feedback string, originalPlan models.WorkoutPlan) (models.ActualPerformance, models.AILog, error) {
	return f.performance, models.AILog{TokensUsed: 50, FeedbackAnalysisTime: 1200}, f.feedbackErr
}

type fakeFSM struct {
	transitions []models.UserState
}

func (f *fakeFSM) TransitionTo(ctx context.Context, userID int64, newState models.UserState) error {
	f.transitions = append(f.transitions, newState)
	return nil
}

func intPtr(v int) *int { return &v }

func testUser() *models.UserProfile {
	return &models.UserProfile{
		ID:       1,
		FSMState: models.StateWorkoutRequested,
		Profile: models.ProfileData{
			Weights:    []int{16, 24},
			Experience: models.ExperienceAmateur,
		},
		Subscription: models.Subscription{Type: models.SubscriptionFree},
	}
}

func newTestService(users *fakeUserStore, workouts *fakeWorkoutStore, ai *fakeAI, machine *fakeFSM) *Service {
	return Connect(WorkoutConnectProps{
		Logger:           logger.Connect(logger.LoggerConnectProps{Production: false}),
		Users:            users,
		Workouts:         workouts,
		AI:               ai,
		FSM:              machine,
		FreeMonthlyLimit: 10,
	})
}

func performanceWorkout(rpe int, entries ...models.ExercisePerformance) models.Workout {
	return models.Workout{
		Status:            models.WorkoutCompleted,
		ActualPerformance: &models.ActualPerformance{Data: entries, RPE: &rpe},
	}
}

func TestTotalVolume(t *testing.T) {
	w := performanceWorkout(7,
		models.ExercisePerformance{Name: "Swing", Weight: 16, Reps: 10, Sets: 3},
	)
	assert.Equal(t, 480, TotalVolume(&w))

	// Entries missing any factor contribute zero; completed flag is ignored.
	w = performanceWorkout(7,
		models.ExercisePerformance{Name: "Swing", Weight: 16, Reps: 10, Sets: 3, Completed: true},
		models.ExercisePerformance{Name: "Press", Weight: 16, Reps: 8, Sets: 2, Completed: false},
		models.ExercisePerformance{Name: "Планка", Weight: 0, Reps: 1, Sets: 3},
		models.ExercisePerformance{Name: "Unknown", Weight: 24, Reps: 0, Sets: 3},
	)
	assert.Equal(t, 480+256, TotalVolume(&w))

	assert.Equal(t, 0, TotalVolume(nil))
	assert.Equal(t, 0, TotalVolume(&models.Workout{}))
}

func TestGenerateWorkoutPlanHappyPath(t *testing.T) {
	users := &fakeUserStore{user: testUser()}
	workouts := newFakeWorkoutStore()
	ai := &fakeAI{plan: models.WorkoutPlan{Exercises: []models.Exercise{
		{Name: "Свинг", Weight: 24, Reps: intPtr(10), Sets: intPtr(5)},
	}}}
	machine := &fakeFSM{}
	s := newTestService(users, workouts, ai, machine)

	workout, err := s.GenerateWorkoutPlan(context.Background(), 1)
	require.NoError(t, err)

	assert.NotEmpty(t, workout.ID)
	assert.Equal(t, models.WorkoutPlanned, workout.Status)
	assert.Nil(t, workout.Timing.StartedAt)
	assert.Equal(t, 100, workout.AILog.TokensUsed)
	require.Len(t, workouts.saved, 1)

	// Plan generation alone never drives the conversation state.
	assert.Empty(t, machine.transitions)

	assert.Equal(t, []int{16, 24}, ai.lastContext.AvailableWeights)
	assert.False(t, ai.lastContext.SuggestDeload)
}

func TestGenerateWorkoutPlanWithoutEquipment(t *testing.T) {
	user := testUser()
	user.Profile.Weights = nil
	users := &fakeUserStore{user: user}
	workouts := newFakeWorkoutStore()
	s := newTestService(users, workouts, &fakeAI{}, &fakeFSM{})

	_, err := s.GenerateWorkoutPlan(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidInput))
	assert.Empty(t, workouts.saved)
}

func TestGenerateWorkoutPlanUnknownUser(t *testing.T) {
	s := newTestService(&fakeUserStore{}, newFakeWorkoutStore(), &fakeAI{}, &fakeFSM{})

	_, err := s.GenerateWorkoutPlan(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindUserNotFound))
}

func TestGenerateWorkoutPlanQuotaExceeded(t *testing.T) {
	users := &fakeUserStore{user: testUser()}
	workouts := newFakeWorkoutStore()
	workouts.completedCount = 10
	s := newTestService(users, workouts, &fakeAI{}, &fakeFSM{})

	_, err := s.GenerateWorkoutPlan(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindSubscriptionLimitExceeded))
	assert.Empty(t, workouts.saved)
}

func TestGenerateWorkoutPlanPremiumIgnoresQuota(t *testing.T) {
	user := testUser()
	user.Subscription.Type = models.SubscriptionPremium
	workouts := newFakeWorkoutStore()
	workouts.completedCount = 1000
	s := newTestService(&fakeUserStore{user: user}, workouts, &fakeAI{}, &fakeFSM{})

	_, err := s.GenerateWorkoutPlan(context.Background(), 1)
	require.NoError(t, err)
}

func TestDeloadSuggestion(t *testing.T) {
	swing := func(weight, reps, sets int) models.ExercisePerformance {
		return models.ExercisePerformance{Name: "Swing", Weight: weight, Reps: reps, Sets: sets}
	}

	testCases := []struct {
		name     string
		recent   []models.Workout // newest first, as the store returns them
		expected bool
	}{
		{
			name: "high RPE and stagnating volume",
			recent: []models.Workout{
				performanceWorkout(9, swing(20, 25, 1)), // 500, newest
				performanceWorkout(9, swing(16, 10, 3)), // 480
				performanceWorkout(9, swing(16, 10, 3)), // 480, oldest
			},
			expected: true,
		},
		{
			name: "one moderate RPE breaks the streak",
			recent: []models.Workout{
				performanceWorkout(9, swing(20, 25, 1)),
				performanceWorkout(8, swing(16, 10, 3)),
				performanceWorkout(9, swing(16, 10, 3)),
			},
			expected: false,
		},
		{
			name: "declining volume means the load is working",
			recent: []models.Workout{
				performanceWorkout(9, swing(16, 10, 3)), // 480, newest
				performanceWorkout(9, swing(20, 25, 1)), // 500
				performanceWorkout(9, swing(20, 30, 1)), // 600, oldest
			},
			expected: false,
		},
		{
			name: "too little history",
			recent: []models.Workout{
				performanceWorkout(10, swing(16, 10, 3)),
				performanceWorkout(10, swing(16, 10, 3)),
			},
			expected: false,
		},
		{
			name: "missing RPE disqualifies",
			recent: []models.Workout{
				performanceWorkout(9, swing(16, 10, 3)),
				{Status: models.WorkoutCompleted, ActualPerformance: &models.ActualPerformance{Data: []models.ExercisePerformance{swing(16, 10, 3)}}},
				performanceWorkout(9, swing(16, 10, 3)),
			},
			expected: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			users := &fakeUserStore{user: testUser()}
			workouts := newFakeWorkoutStore()
			workouts.recent = tc.recent
			ai := &fakeAI{}
			s := newTestService(users, workouts, ai, &fakeFSM{})

			_, err := s.GenerateWorkoutPlan(context.Background(), 1)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, ai.lastContext.SuggestDeload)
		})
	}
}

func TestStartWorkout(t *testing.T) {
	users := &fakeUserStore{user: testUser()}
	workouts := newFakeWorkoutStore()
	machine := &fakeFSM{}
	s := newTestService(users, workouts, &fakeAI{}, machine)

	planned := &models.Workout{ID: "w1", UserID: 1, Status: models.WorkoutPlanned}
	workouts.byID["w1"] = planned

	started, err := s.StartWorkout(context.Background(), 1, "w1")
	require.NoError(t, err)

	assert.Equal(t, models.WorkoutInProgress, started.Status)
	require.NotNil(t, started.Timing.StartedAt)
	assert.Equal(t, []models.UserState{models.StateWorkoutInProgress}, machine.transitions)

	// Starting twice is rejected.
	_, err = s.StartWorkout(context.Background(), 1, "w1")
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidStateTransition))
}

func TestStartWorkoutOwnershipEnforced(t *testing.T) {
	workouts := newFakeWorkoutStore()
	workouts.byID["w1"] = &models.Workout{ID: "w1", UserID: 99, Status: models.WorkoutPlanned}
	s := newTestService(&fakeUserStore{user: testUser()}, workouts, &fakeAI{}, &fakeFSM{})

	_, err := s.StartWorkout(context.Background(), 1, "w1")
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindWorkoutNotFound))
}

func TestFinishWorkoutKeepsStatusInProgress(t *testing.T) {
	workouts := newFakeWorkoutStore()
	machine := &fakeFSM{}
	s := newTestService(&fakeUserStore{user: testUser()}, workouts, &fakeAI{}, machine)

	startedAt := time.Now().UTC().Add(-40 * time.Minute)
	workouts.byID["w1"] = &models.Workout{
		ID: "w1", UserID: 1, Status: models.WorkoutInProgress,
		Timing: models.WorkoutTiming{StartedAt: &startedAt},
	}

	finished, err := s.FinishWorkout(context.Background(), 1, "w1")
	require.NoError(t, err)

	// Completion waits for feedback.
	assert.Equal(t, models.WorkoutInProgress, finished.Status)
	require.NotNil(t, finished.Timing.CompletedAt)
	assert.InDelta(t, 40*60, finished.Timing.DurationSeconds, 5)
	assert.Equal(t, []models.UserState{models.StateWorkoutFeedbackPending}, machine.transitions)
}

func TestFinishWorkoutWithoutStartTimestamp(t *testing.T) {
	workouts := newFakeWorkoutStore()
	s := newTestService(&fakeUserStore{user: testUser()}, workouts, &fakeAI{}, &fakeFSM{})
	workouts.byID["w1"] = &models.Workout{ID: "w1", UserID: 1, Status: models.WorkoutInProgress}

	finished, err := s.FinishWorkout(context.Background(), 1, "w1")
	require.NoError(t, err)
	assert.Zero(t, finished.Timing.DurationSeconds)
}

func TestFinishWorkoutRequiresInProgress(t *testing.T) {
	workouts := newFakeWorkoutStore()
	s := newTestService(&fakeUserStore{user: testUser()}, workouts, &fakeAI{}, &fakeFSM{})
	workouts.byID["w1"] = &models.Workout{ID: "w1", UserID: 1, Status: models.WorkoutPlanned}

	_, err := s.FinishWorkout(context.Background(), 1, "w1")
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidStateTransition))
}

func TestProcessFeedbackCompletesWorkout(t *testing.T) {
	workouts := newFakeWorkoutStore()
	machine := &fakeFSM{}
	rpe := 8
	ai := &fakeAI{performance: models.ActualPerformance{
		RawFeedback: "сделал всё",
		Data: []models.ExercisePerformance{
			{Name: "Свинг", Weight: 24, Reps: 10, Sets: 5, Completed: true, Status: "completed"},
		},
		RPE:           &rpe,
		CoachFeedback: "Отличная работа!",
	}}
	s := newTestService(&fakeUserStore{user: testUser()}, workouts, ai, machine)

	workouts.byID["w1"] = &models.Workout{
		ID: "w1", UserID: 1, Status: models.WorkoutInProgress,
		AILog: models.AILog{TokensUsed: 100, PlanGenerationTime: 900},
	}

	completed, err := s.ProcessFeedback(context.Background(), 1, "w1", "сделал всё")
	require.NoError(t, err)

	assert.Equal(t, models.WorkoutCompleted, completed.Status)
	require.NotNil(t, completed.ActualPerformance)
	assert.Equal(t, 1200, int(completed.ActualPerformance.Data[0].Weight)*int(completed.ActualPerformance.Data[0].Reps)*int(completed.ActualPerformance.Data[0].Sets))

	// Token usage accumulates across plan and feedback calls.
	assert.Equal(t, 150, completed.AILog.TokensUsed)
	assert.Equal(t, int64(900), completed.AILog.PlanGenerationTime)
	assert.Equal(t, int64(1200), completed.AILog.FeedbackAnalysisTime)

	assert.Equal(t, []models.UserState{models.StateIdle}, machine.transitions)
}

func TestProcessFeedbackWithEmptyAnalysisStillCompletes(t *testing.T) {
	workouts := newFakeWorkoutStore()
	machine := &fakeFSM{}
	ai := &fakeAI{performance: models.ActualPerformance{RawFeedback: "не понял"}}
	s := newTestService(&fakeUserStore{user: testUser()}, workouts, ai, machine)

	workouts.byID["w1"] = &models.Workout{ID: "w1", UserID: 1, Status: models.WorkoutInProgress}

	completed, err := s.ProcessFeedback(context.Background(), 1, "w1", "ну такое")
	require.NoError(t, err)

	assert.Equal(t, models.WorkoutCompleted, completed.Status)
	assert.Equal(t, 0, TotalVolume(completed))
	assert.Equal(t, []models.UserState{models.StateIdle}, machine.transitions)
}

func TestActiveWorkout(t *testing.T) {
	workouts := newFakeWorkoutStore()
	s := newTestService(&fakeUserStore{user: testUser()}, workouts, &fakeAI{}, &fakeFSM{})

	active, err := s.ActiveWorkout(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, active)

	workouts.byID["w1"] = &models.Workout{ID: "w1", UserID: 1, Status: models.WorkoutCompleted}
	workouts.byID["w2"] = &models.Workout{ID: "w2", UserID: 1, Status: models.WorkoutInProgress}

	active, err = s.ActiveWorkout(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "w2", active.ID)
}

func TestCancelActiveMarksWorkoutCancelled(t *testing.T) {
	workouts := newFakeWorkoutStore()
	s := newTestService(&fakeUserStore{user: testUser()}, workouts, &fakeAI{}, &fakeFSM{})

	workouts.byID["w1"] = &models.Workout{ID: "w1", UserID: 1, Status: models.WorkoutInProgress}

	cancelled, err := s.CancelActive(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, cancelled)
	assert.Equal(t, models.WorkoutCancelled, cancelled.Status)
	assert.Equal(t, models.WorkoutCancelled, workouts.byID["w1"].Status)
	require.Len(t, workouts.saved, 1)
}

func TestCancelActiveWithNothingRunning(t *testing.T) {
	workouts := newFakeWorkoutStore()
	s := newTestService(&fakeUserStore{user: testUser()}, workouts, &fakeAI{}, &fakeFSM{})

	workouts.byID["w1"] = &models.Workout{ID: "w1", UserID: 1, Status: models.WorkoutPlanned}

	cancelled, err := s.CancelActive(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, cancelled)
	assert.Empty(t, workouts.saved)
	// A planned workout is untouched; it is simply never started.
	assert.Equal(t, models.WorkoutPlanned, workouts.byID["w1"].Status)
}
