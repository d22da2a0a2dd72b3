package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/bkzntsv/kettlebell/models"
)

// FindUserByID returns the profile or nil when the user is unknown. Absence
// is not an error.
func (d *Database) FindUserByID(ctx context.Context, userID int64) (*models.UserProfile, error) {
	tracer := otel.Tracer("mongodb/FindUserByID")
	ctx, span := tracer.Start(ctx, "FindUserByID")
	defer span.End()

	var profile models.UserProfile
	err := d.users.FindOne(ctx, bson.M{"_id": userID}).Decode(&profile)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("mongo find user: %w", err)
	}
	return &profile, nil
}

func (d *Database) SaveUser(ctx context.Context, profile *models.UserProfile) error {
	tracer := otel.Tracer("mongodb/SaveUser")
	ctx, span := tracer.Start(ctx, "SaveUser")
	defer span.End()

	_, err := d.users.ReplaceOne(ctx,
		bson.M{"_id": profile.ID},
		profile,
		options.Replace().SetUpsert(true))
	if err != nil {
		d.logger.Logger(ctx).Error("[Mongo] Could not save user",
			zap.Error(err),
			zap.Int64("user_id", profile.ID))
		span.RecordError(err)
		return fmt.Errorf("mongo save user: %w", err)
	}
	return nil
}

func (d *Database) UpdateUserState(ctx context.Context, userID int64, state models.UserState) error {
	tracer := otel.Tracer("mongodb/UpdateUserState")
	ctx, span := tracer.Start(ctx, "UpdateUserState")
	defer span.End()

	_, err := d.users.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"fsmState": state}})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("mongo update user state: %w", err)
	}
	return nil
}

func (d *Database) UpdateSubscription(ctx context.Context, userID int64, subscription models.Subscription) error {
	tracer := otel.Tracer("mongodb/UpdateSubscription")
	ctx, span := tracer.Start(ctx, "UpdateSubscription")
	defer span.End()

	_, err := d.users.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"subscription": subscription}})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("mongo update subscription: %w", err)
	}
	return nil
}

// FindUsersWithSchedule returns every profile that has a pending schedule.
// The reminder loop decides which of them are actually due.
func (d *Database) FindUsersWithSchedule(ctx context.Context) ([]models.UserProfile, error) {
	tracer := otel.Tracer("mongodb/FindUsersWithSchedule")
	ctx, span := tracer.Start(ctx, "FindUsersWithSchedule")
	defer span.End()

	cursor, err := d.users.Find(ctx, bson.M{"scheduling": bson.M{"$ne": nil}})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("mongo find scheduled users: %w", err)
	}
	defer cursor.Close(ctx)

	var profiles []models.UserProfile
	if err := cursor.All(ctx, &profiles); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("mongo decode scheduled users: %w", err)
	}
	return profiles, nil
}

func (d *Database) DeleteUserByID(ctx context.Context, userID int64) error {
	tracer := otel.Tracer("mongodb/DeleteUserByID")
	ctx, span := tracer.Start(ctx, "DeleteUserByID")
	defer span.End()

	// DeleteMany clears accidental duplicates from older schema versions too.
	_, err := d.users.DeleteMany(ctx, bson.M{"_id": userID})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("mongo delete user: %w", err)
	}
	return nil
}
