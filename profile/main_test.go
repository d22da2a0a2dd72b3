package profile

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
	profiles map[int64]*models.UserProfile
	deletes  int
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{profiles: make(map[int64]*models.UserProfile)}
}

func (f *fakeUserStore) FindUserByID(ctx context.Context, userID int64) (*models.UserProfile, error) {
	return f.profiles[userID], nil
}

func (f *fakeUserStore) SaveUser(ctx context.Context, profile *models.UserProfile) error {
	f.profiles[profile.ID] = profile
	return nil
}

func (f *fakeUserStore) DeleteUserByID(ctx context.Context, userID int64) error {
	f.deletes++
	delete(f.profiles, userID)
	return nil
}

func (f *fakeUserStore) UpdateSubscription(ctx context.Context, userID int64, subscription models.Subscription) error {
	if p, ok := f.profiles[userID]; ok {
		p.Subscription = subscription
	}
	return nil
}

func (f *fakeUserStore) FindUsersWithSchedule(ctx context.Context) ([]models.UserProfile, error) {
	var out []models.UserProfile
	for _, p := range f.profiles {
		if p.Scheduling != nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

func newTestService() (*Service, *fakeUserStore) {
	store := newFakeUserStore()
	s := Connect(ProfileConnectProps{
		Logger: logger.Connect(logger.LoggerConnectProps{Production: false}),
		Store:  store,
	})
	return s, store
}

func TestInitProfileCreatesCleanSlate(t *testing.T) {
	s, store := newTestService()
	ctx := context.Background()

	fresh, err := s.InitProfile(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, models.StateIdle, fresh.FSMState)
	assert.Empty(t, fresh.Profile.Weights)
	assert.Equal(t, models.ExperienceBeginner, fresh.Profile.Experience)
	assert.Equal(t, models.SubscriptionFree, fresh.Subscription.Type)
	assert.Nil(t, fresh.Scheduling)

	// Re-init wipes partial progress; nothing carries over.
	_, err = s.UpdateGoal(ctx, 1, "сила")
	require.NoError(t, err)

	again, err := s.InitProfile(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, again.Profile.Goal)
	assert.Equal(t, 2, store.deletes)
}

func TestUpdateEquipmentValidation(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()
	_, err := s.InitProfile(ctx, 1)
	require.NoError(t, err)

	_, err = s.UpdateEquipment(ctx, 1, nil)
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))

	_, err = s.UpdateEquipment(ctx, 1, []int{16, -8})
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))

	updated, err := s.UpdateEquipment(ctx, 1, []int{16, 24})
	require.NoError(t, err)
	assert.Equal(t, []int{16, 24}, updated.Profile.Weights)
}

func TestSetSubscription(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()
	_, err := s.InitProfile(ctx, 1)
	require.NoError(t, err)

	updated, err := s.SetSubscription(ctx, 1, models.SubscriptionPremium)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionPremium, updated.Subscription.Type)

	_, err = s.SetSubscription(ctx, 404, models.SubscriptionPremium)
	assert.True(t, apperror.IsKind(err, apperror.KindUserNotFound))
}

func TestUpdateOnMissingProfile(t *testing.T) {
	s, _ := newTestService()

	_, err := s.UpdateGoal(context.Background(), 404, "сила")
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindUserNotFound))
}

func TestSchedulingLifecycle(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()
	_, err := s.InitProfile(ctx, 1)
	require.NoError(t, err)

	next := time.Now().Add(3 * time.Hour)
	updated, err := s.UpdateScheduling(ctx, 1, next)
	require.NoError(t, err)
	require.NotNil(t, updated.Scheduling)
	assert.False(t, updated.Scheduling.Reminder1hSent)
	assert.False(t, updated.Scheduling.Reminder5mSent)

	updated, err = s.MarkReminderSent(ctx, 1, "1h")
	require.NoError(t, err)
	assert.True(t, updated.Scheduling.Reminder1hSent)
	assert.False(t, updated.Scheduling.Reminder5mSent)

	// Rescheduling resets both flags.
	updated, err = s.UpdateScheduling(ctx, 1, next.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, updated.Scheduling.Reminder1hSent)

	pending, err := s.UsersWithPendingReminders(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	updated, err = s.ClearScheduling(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, updated.Scheduling)
}
