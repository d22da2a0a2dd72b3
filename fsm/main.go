package fsm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/bkzntsv/kettlebell/logger"
	"github.com/bkzntsv/kettlebell/models"
)

type UserStore interface {
	FindUserByID(ctx context.Context, userID int64) (*models.UserProfile, error)
	UpdateUserState(ctx context.Context, userID int64, state models.UserState) error
}

// Tracker receives fire-and-forget state-change events.
type Tracker interface {
	Track(userID int64, eventType models.EventType, name string, metadata map[string]string)
}

type FSMConnectProps struct {
	Logger    *logger.LogMiddleware
	Store     UserStore
	Analytics Tracker
}

// Manager owns the per-user conversation state machine.
type Manager struct {
	logger    *logger.LogMiddleware
	store     UserStore
	analytics Tracker
}

func Connect(args FSMConnectProps) *Manager {
	return &Manager{
		logger:    args.Logger,
		store:     args.Store,
		analytics: args.Analytics,
	}
}

// CurrentState returns the persisted state, or IDLE when the user has no
// profile yet. Absence is not an error.
func (m *Manager) CurrentState(ctx context.Context, userID int64) (models.UserState, error) {
	profile, err := m.store.FindUserByID(ctx, userID)
	if err != nil {
		return models.StateIdle, err
	}
	if profile == nil {
		return models.StateIdle, nil
	}
	return profile.FSMState, nil
}

// CanTransition encodes the legal edges of the conversation state machine.
// It must stay in lock-step with TransitionTo's callers: they check here
// before mutating. The switch is exhaustive over the state enum so adding a
// state forces a decision for it.
func CanTransition(from, to models.UserState) bool {
	switch from {
	case models.StateIdle:
		switch to {
		case models.StateOnboardingMedicalConfirm,
			models.StateWorkoutRequested,
			models.StateEditEquipment,
			models.StateEditExperience,
			models.StateEditPersonalData,
			models.StateEditGoal,
			models.StateSchedulingDate:
			return true
		}
		return false

	// Onboarding flow
	case models.StateOnboardingMedicalConfirm:
		return to == models.StateOnboardingEquipment
	case models.StateOnboardingEquipment:
		return to == models.StateOnboardingExperience
	case models.StateOnboardingExperience:
		return to == models.StateOnboardingPersonalData
	case models.StateOnboardingPersonalData:
		return to == models.StateOnboardingGoals
	case models.StateOnboardingGoals:
		return to == models.StateIdle

	// Workout flow
	case models.StateWorkoutRequested:
		return to == models.StateIdle || to == models.StateWorkoutInProgress
	case models.StateWorkoutInProgress:
		return to == models.StateWorkoutFeedbackPending
	case models.StateWorkoutFeedbackPending:
		return to == models.StateIdle

	// Profile edits
	case models.StateEditEquipment,
		models.StateEditExperience,
		models.StateEditPersonalData,
		models.StateEditGoal:
		return to == models.StateIdle

	// Scheduling
	case models.StateSchedulingDate:
		return to == models.StateIdle
	}

	return false
}

// TransitionTo persists the new state unconditionally; callers are expected
// to have checked CanTransition or to be driving a known-good path. A real
// change emits a STATE_CHANGE analytics event, fire-and-forget.
func (m *Manager) TransitionTo(ctx context.Context, userID int64, newState models.UserState) error {
	tracer := otel.Tracer("fsm/TransitionTo")
	ctx, span := tracer.Start(ctx, "TransitionTo")
	defer span.End()

	oldState, err := m.CurrentState(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	span.SetAttributes(
		attribute.Int64("user.id", userID),
		attribute.String("state.from", string(oldState)),
		attribute.String("state.to", string(newState)))

	if err := m.store.UpdateUserState(ctx, userID, newState); err != nil {
		span.RecordError(err)
		return err
	}

	if oldState != newState {
		m.logger.Logger(ctx).Info("[FSM] State transition",
			zap.Int64("user_id", userID),
			zap.String("from", string(oldState)),
			zap.String("to", string(newState)))
		m.analytics.Track(userID, models.EventStateChange,
			string(oldState)+" -> "+string(newState),
			map[string]string{"from": string(oldState), "to": string(newState)})
	}

	return nil
}
