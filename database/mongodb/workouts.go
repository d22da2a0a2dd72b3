package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bkzntsv/kettlebell/models"
)

func (d *Database) SaveWorkout(ctx context.Context, workout *models.Workout) error {
	tracer := otel.Tracer("mongodb/SaveWorkout")
	ctx, span := tracer.Start(ctx, "SaveWorkout")
	defer span.End()

	span.SetAttributes(
		attribute.String("workout.id", workout.ID),
		attribute.Int64("user.id", workout.UserID))

	_, err := d.workouts.ReplaceOne(ctx,
		bson.M{"_id": workout.ID},
		workout,
		options.Replace().SetUpsert(true))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("mongo save workout: %w", err)
	}
	return nil
}

func (d *Database) FindWorkoutByID(ctx context.Context, workoutID string) (*models.Workout, error) {
	tracer := otel.Tracer("mongodb/FindWorkoutByID")
	ctx, span := tracer.Start(ctx, "FindWorkoutByID")
	defer span.End()

	var workout models.Workout
	err := d.workouts.FindOne(ctx, bson.M{"_id": workoutID}).Decode(&workout)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("mongo find workout: %w", err)
	}
	return &workout, nil
}

// FindWorkoutsByUserID returns the user's workouts newest first.
func (d *Database) FindWorkoutsByUserID(ctx context.Context, userID int64, limit int) ([]models.Workout, error) {
	tracer := otel.Tracer("mongodb/FindWorkoutsByUserID")
	ctx, span := tracer.Start(ctx, "FindWorkoutsByUserID")
	defer span.End()

	opts := options.Find().
		SetSort(bson.D{{Key: "timing.completedAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := d.workouts.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("mongo find workouts: %w", err)
	}
	defer cursor.Close(ctx)

	var workouts []models.Workout
	if err := cursor.All(ctx, &workouts); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("mongo decode workouts: %w", err)
	}
	return workouts, nil
}

// FindRecentWithPerformance returns the most recent workouts that carry an
// ActualPerformance, newest first. These drive plan-generation context and
// the deload heuristic.
func (d *Database) FindRecentWithPerformance(ctx context.Context, userID int64, count int) ([]models.Workout, error) {
	tracer := otel.Tracer("mongodb/FindRecentWithPerformance")
	ctx, span := tracer.Start(ctx, "FindRecentWithPerformance")
	defer span.End()

	opts := options.Find().
		SetSort(bson.D{{Key: "timing.completedAt", Value: -1}}).
		SetLimit(int64(count))

	filter := bson.M{
		"userId":            userID,
		"actualPerformance": bson.M{"$ne": nil},
	}

	cursor, err := d.workouts.Find(ctx, filter, opts)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("mongo find recent workouts: %w", err)
	}
	defer cursor.Close(ctx)

	var workouts []models.Workout
	if err := cursor.All(ctx, &workouts); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("mongo decode recent workouts: %w", err)
	}
	return workouts, nil
}

// CountCompletedWorkoutsAfter backs the free-tier quota check.
func (d *Database) CountCompletedWorkoutsAfter(ctx context.Context, userID int64, after time.Time) (int64, error) {
	tracer := otel.Tracer("mongodb/CountCompletedWorkoutsAfter")
	ctx, span := tracer.Start(ctx, "CountCompletedWorkoutsAfter")
	defer span.End()

	count, err := d.workouts.CountDocuments(ctx, bson.M{
		"userId":            userID,
		"status":            models.WorkoutCompleted,
		"timing.completedAt": bson.M{"$gt": after},
	})
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("mongo count completed workouts: %w", err)
	}
	return count, nil
}
