package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"trainsync/internal/domain"
	"trainsync/internal/repository"
)

// mongoUserRepository implements the repository.UserRepository interface using MongoDB.
type mongoUserRepository struct {
	records recordCollection[domain.User]
}

// NewMongoUserRepository creates a new instance of mongoUserRepository.
// It expects a connected *mongo.Database instance.
func NewMongoUserRepository(db *mongo.Database) repository.UserRepository {
	return &mongoUserRepository{
		records: newRecordCollection[domain.User](db, repository.UsersCollection,
			"firstName", "lastName", "name", "avatar", "level", "points",
			domain.CounterWorkoutsCompleted, domain.CounterWorkoutsPlanned,
			domain.CounterWorkoutsWithFriends, domain.CounterTotalWorkouts, domain.CounterFriendsAdded,
			"weight", "city", "birthDate", "sex", "personalRecords", "gym", "updatedAt",
		),
	}
}

// Create inserts a new user. The ID comes from the host platform and is required.
func (r *mongoUserRepository) Create(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		return errors.New("user id is required")
	}
	ts := now()
	user.CreatedAt = ts
	user.UpdatedAt = ts
	if user.PersonalRecords == nil {
		user.PersonalRecords = []string{}
	}
	return r.records.insert(ctx, user)
}

// GetByID retrieves a user by host platform ID.
func (r *mongoUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.records.getOne(ctx, id)
}

// List returns users matching the query, e.g. the leaderboard sorted by "-points".
func (r *mongoUserRepository) List(ctx context.Context, q repository.ListQuery) ([]domain.User, error) {
	return r.records.list(ctx, q)
}

// Update sets profile fields and returns the stored user.
func (r *mongoUserRepository) Update(ctx context.Context, id string, fields map[string]any) (*domain.User, error) {
	return r.records.update(ctx, id, fields)
}

// Increment adds delta to a counter or the points total.
func (r *mongoUserRepository) Increment(ctx context.Context, id, field string, delta int) error {
	return r.records.increment(ctx, id, field, delta)
}

// EnsureUserIndexes creates necessary indexes for the users collection.
// Call this once during application startup.
func EnsureUserIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "points", Value: -1}}, // Leaderboard
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "city", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
