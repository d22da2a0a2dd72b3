package mongodb

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/bkzntsv/kettlebell/logger"
)

const (
	usersCollection     = "users"
	workoutsCollection  = "workouts"
	analyticsCollection = "analytics_events"
)

type DatabaseConnectProps struct {
	Logger       *logger.LogMiddleware
	URI          string
	DatabaseName string
}

// Database is the persistence collaborator: users, workouts and analytics
// events as independently addressable documents.
type Database struct {
	logger    *logger.LogMiddleware
	client    *mongo.Client
	users     *mongo.Collection
	workouts  *mongo.Collection
	analytics *mongo.Collection
}

func Connect(ctx context.Context, args DatabaseConnectProps) *Database {
	tracer := otel.Tracer("mongodb/Connect")
	ctx, span := tracer.Start(ctx, "Connect")
	defer span.End()

	log := args.Logger.Logger(ctx)

	connectRetries := 5
	var client *mongo.Client
	var err error

	for connectRetries > 0 {
		client, err = getClient(ctx, args.URI)
		if err == nil {
			log.Info("[Mongo] Database client started")
			break
		}
		connectRetries -= 1
		sleepTime := 5
		log.Error(
			"[Mongo] Could not connect to MongoDB. Retrying after sleeping.",
			zap.Error(err),
			zap.Int("Retries Left", connectRetries),
			zap.Int("Sleep Time", sleepTime))
		time.Sleep(time.Second * time.Duration(sleepTime))
	}

	if connectRetries <= 0 {
		log.Error("[Mongo] Failed to connect to MongoDB")
		span.RecordError(fmt.Errorf("failed to connect to MongoDB"))
		os.Exit(1)
	}

	db := client.Database(args.DatabaseName)
	return &Database{
		logger:    args.Logger,
		client:    client,
		users:     db.Collection(usersCollection),
		workouts:  db.Collection(workoutsCollection),
		analytics: db.Collection(analyticsCollection),
	}
}

func getClient(ctx context.Context, uri string) (*mongo.Client, error) {
	tracer := otel.Tracer("mongodb/getClient")
	ctx, span := tracer.Start(ctx, "getClient")
	defer span.End()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		span.RecordError(err)
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return client, nil
}

func (d *Database) Disconnect(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}
