package profile

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/bkzntsv/kettlebell/apperror"
	"github.com/bkzntsv/kettlebell/logger"
	"github.com/bkzntsv/kettlebell/models"
)

type UserStore interface {
	FindUserByID(ctx context.Context, userID int64) (*models.UserProfile, error)
	SaveUser(ctx context.Context, profile *models.UserProfile) error
	DeleteUserByID(ctx context.Context, userID int64) error
	FindUsersWithSchedule(ctx context.Context) ([]models.UserProfile, error)
	UpdateSubscription(ctx context.Context, userID int64, subscription models.Subscription) error
}

type ProfileConnectProps struct {
	Logger *logger.LogMiddleware
	Store  UserStore
}

type Service struct {
	logger *logger.LogMiddleware
	store  UserStore
}

func Connect(args ProfileConnectProps) *Service {
	return &Service{logger: args.Logger, store: args.Store}
}

// InitProfile wipes any stale record for the user and creates a fresh, empty
// profile in IDLE. Calling it twice in a row yields the same clean slate: no
// partial carry-over from a half-finished onboarding survives.
func (s *Service) InitProfile(ctx context.Context, userID int64) (*models.UserProfile, error) {
	tracer := otel.Tracer("profile/InitProfile")
	ctx, span := tracer.Start(ctx, "InitProfile")
	defer span.End()

	span.SetAttributes(attribute.Int64("user.id", userID))

	if err := s.store.DeleteUserByID(ctx, userID); err != nil {
		span.RecordError(err)
		return nil, err
	}

	now := time.Now().UTC()
	fresh := &models.UserProfile{
		ID:       userID,
		FSMState: models.StateIdle,
		Profile: models.ProfileData{
			Weights:    []int{},
			Experience: models.ExperienceBeginner,
			Gender:     models.GenderOther,
		},
		Subscription:  models.Subscription{Type: models.SubscriptionFree},
		Metadata:      models.UserMetadata{CreatedAt: now, LastActive: now},
		SchemaVersion: 1,
	}

	if err := s.store.SaveUser(ctx, fresh); err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.logger.Logger(ctx).Info("[Profile] Initialized profile", zap.Int64("user_id", userID))
	return fresh, nil
}

func (s *Service) GetProfile(ctx context.Context, userID int64) (*models.UserProfile, error) {
	return s.store.FindUserByID(ctx, userID)
}

func validateWeights(weights []int) error {
	if len(weights) == 0 {
		return apperror.Validation("Укажите хотя бы одну гирю.")
	}
	for _, w := range weights {
		if w <= 0 {
			return apperror.Validation("Вес гири должен быть положительным числом.")
		}
	}
	return nil
}

// update loads the profile, applies mutate and saves the result.
func (s *Service) update(ctx context.Context, userID int64, mutate func(*models.UserProfile)) (*models.UserProfile, error) {
	existing, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, apperror.UserNotFound(userID)
	}

	mutate(existing)
	existing.Metadata.LastActive = time.Now().UTC()

	if err := s.store.SaveUser(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *Service) UpdateEquipment(ctx context.Context, userID int64, weights []int) (*models.UserProfile, error) {
	tracer := otel.Tracer("profile/UpdateEquipment")
	ctx, span := tracer.Start(ctx, "UpdateEquipment")
	defer span.End()

	if err := validateWeights(weights); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return s.update(ctx, userID, func(p *models.UserProfile) {
		p.Profile.Weights = weights
	})
}

func (s *Service) UpdateExperience(ctx context.Context, userID int64, experience models.ExperienceLevel) (*models.UserProfile, error) {
	return s.update(ctx, userID, func(p *models.UserProfile) {
		p.Profile.Experience = experience
	})
}

func (s *Service) UpdatePersonalData(ctx context.Context, userID int64, bodyWeight float64, gender models.Gender) (*models.UserProfile, error) {
	if bodyWeight <= 0 {
		return nil, apperror.Validation("Вес тела должен быть положительным числом.")
	}
	return s.update(ctx, userID, func(p *models.UserProfile) {
		p.Profile.BodyWeight = bodyWeight
		p.Profile.Gender = gender
	})
}

func (s *Service) UpdateGoal(ctx context.Context, userID int64, goal string) (*models.UserProfile, error) {
	if goal == "" {
		return nil, apperror.Validation("Цель не может быть пустой.")
	}
	return s.update(ctx, userID, func(p *models.UserProfile) {
		p.Profile.Goal = goal
	})
}

// UpdateScheduling sets the next workout time and resets both reminder flags.
func (s *Service) UpdateScheduling(ctx context.Context, userID int64, nextWorkout time.Time) (*models.UserProfile, error) {
	tracer := otel.Tracer("profile/UpdateScheduling")
	ctx, span := tracer.Start(ctx, "UpdateScheduling")
	defer span.End()

	return s.update(ctx, userID, func(p *models.UserProfile) {
		p.Scheduling = &models.UserScheduling{NextWorkout: nextWorkout}
	})
}

func (s *Service) ClearScheduling(ctx context.Context, userID int64) (*models.UserProfile, error) {
	return s.update(ctx, userID, func(p *models.UserProfile) {
		p.Scheduling = nil
	})
}

// SetSubscription switches the user's tier. Used by the admin grant and
// revoke commands; the quota check reads the resulting type directly.
func (s *Service) SetSubscription(ctx context.Context, userID int64, subType models.SubscriptionType) (*models.UserProfile, error) {
	tracer := otel.Tracer("profile/SetSubscription")
	ctx, span := tracer.Start(ctx, "SetSubscription")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user.id", userID),
		attribute.String("subscription.type", string(subType)))

	existing, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if existing == nil {
		return nil, apperror.UserNotFound(userID)
	}

	subscription := models.Subscription{Type: subType}
	if err := s.store.UpdateSubscription(ctx, userID, subscription); err != nil {
		span.RecordError(err)
		return nil, err
	}
	existing.Subscription = subscription

	s.logger.Logger(ctx).Info("[Profile] Subscription updated",
		zap.Int64("user_id", userID),
		zap.String("type", string(subType)))
	return existing, nil
}

func (s *Service) UsersWithPendingReminders(ctx context.Context) ([]models.UserProfile, error) {
	return s.store.FindUsersWithSchedule(ctx)
}

// MarkReminderSent flips one of the two independent reminder flags,
// "1h" or "5m". A profile without a schedule is returned untouched.
func (s *Service) MarkReminderSent(ctx context.Context, userID int64, reminderType string) (*models.UserProfile, error) {
	return s.update(ctx, userID, func(p *models.UserProfile) {
		if p.Scheduling == nil {
			return
		}
		switch reminderType {
		case "1h":
			p.Scheduling.Reminder1hSent = true
		case "5m":
			p.Scheduling.Reminder5mSent = true
		}
	})
}
