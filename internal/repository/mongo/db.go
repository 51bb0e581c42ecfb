package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"trainsync/internal/repository"
)

// Default connection timeout
const defaultTimeout = 10 * time.Second

// now is the clock used for record timestamps.
var now = func() time.Time { return time.Now().UTC() }

// ConnectDB establishes a connection to MongoDB using the provided URI.
// It returns the mongo.Client which can be used to access databases and collections.
func ConnectDB(uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}

	// The initial connect can succeed against an unresponsive server, so ping the primary.
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()

	if err = client.Ping(pingCtx, readpref.Primary()); err != nil {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer disconnectCancel()
		_ = client.Disconnect(disconnectCtx)
		return nil, err
	}
	return client, nil
}

// DisconnectDB gracefully disconnects the MongoDB client.
func DisconnectDB(client *mongo.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	return client.Disconnect(ctx)
}

// NewRepositories builds all repositories on db.
func NewRepositories(db *mongo.Database) repository.Repositories {
	return repository.Repositories{
		Users:     NewMongoUserRepository(db),
		Workouts:  NewMongoWorkoutRepository(db),
		Tasks:     NewMongoTaskRepository(db),
		UserTasks: NewMongoUserTaskRepository(db),
		Points:    NewMongoPointsRepository(db),
	}
}

// EnsureIndexes creates all indexes, collecting failures instead of stopping at the first.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	return errors.Join(
		EnsureUserIndexes(ctx, db.Collection(repository.UsersCollection)),
		EnsureWorkoutIndexes(ctx, db.Collection(repository.WorkoutsCollection)),
		EnsureTaskIndexes(ctx, db.Collection(repository.UserTasksCollection), db.Collection(repository.PointsCollection)),
	)
}
