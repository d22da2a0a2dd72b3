package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.opentelemetry.io/otel"

	"github.com/bkzntsv/kettlebell/models"
)

func (d *Database) InsertEvent(ctx context.Context, event models.AnalyticsEvent) error {
	tracer := otel.Tracer("mongodb/InsertEvent")
	ctx, span := tracer.Start(ctx, "InsertEvent")
	defer span.End()

	_, err := d.analytics.InsertOne(ctx, event)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("mongo insert analytics event: %w", err)
	}
	return nil
}

func (d *Database) FindEventsSince(ctx context.Context, since time.Time) ([]models.AnalyticsEvent, error) {
	tracer := otel.Tracer("mongodb/FindEventsSince")
	ctx, span := tracer.Start(ctx, "FindEventsSince")
	defer span.End()

	cursor, err := d.analytics.Find(ctx, bson.M{"timestamp": bson.M{"$gte": since}})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("mongo find analytics events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []models.AnalyticsEvent
	if err := cursor.All(ctx, &events); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("mongo decode analytics events: %w", err)
	}
	return events, nil
}
