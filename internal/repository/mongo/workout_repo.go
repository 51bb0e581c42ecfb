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

// mongoWorkoutRepository implements repository.WorkoutRepository
type mongoWorkoutRepository struct {
	records recordCollection[domain.WorkoutRecord]
}

// NewMongoWorkoutRepository creates a new Workout repository.
func NewMongoWorkoutRepository(db *mongo.Database) repository.WorkoutRepository {
	return &mongoWorkoutRepository{
		records: newRecordCollection[domain.WorkoutRecord](db, repository.WorkoutsCollection,
			"title", "description", "date", "time", "location", "duration",
			"participants", "postWorkout", "status",
		),
	}
}

// Create inserts a new workout and returns it as stored.
func (r *mongoWorkoutRepository) Create(ctx context.Context, workout *domain.WorkoutRecord) (*domain.WorkoutRecord, error) {
	if workout.Title == "" || workout.CreatedBy == "" {
		return nil, errors.New("workout requires title and createdBy")
	}
	rec := *workout
	if rec.ID == "" {
		rec.ID = newID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now()
	}
	if rec.Participants == nil {
		rec.Participants = []string{}
	}
	if err := r.records.insert(ctx, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetByID retrieves a single workout by its ID.
func (r *mongoWorkoutRepository) GetByID(ctx context.Context, id string) (*domain.WorkoutRecord, error) {
	return r.records.getOne(ctx, id)
}

// List returns workouts matching the filter, in insertion order unless sorted.
func (r *mongoWorkoutRepository) List(ctx context.Context, q repository.ListQuery) ([]domain.WorkoutRecord, error) {
	return r.records.list(ctx, q)
}

// Update sets the given fields and returns the workout afterwards.
func (r *mongoWorkoutRepository) Update(ctx context.Context, id string, fields map[string]any) (*domain.WorkoutRecord, error) {
	return r.records.update(ctx, id, fields)
}

// UpdateIfStatus sets fields only while the workout is in status.
func (r *mongoWorkoutRepository) UpdateIfStatus(ctx context.Context, id string, status domain.WorkoutStatus, fields map[string]any) (*domain.WorkoutRecord, error) {
	return r.records.updateIf(ctx, id, bson.M{"status": status}, fields)
}

// Delete removes a workout. There is no soft delete.
func (r *mongoWorkoutRepository) Delete(ctx context.Context, id string) error {
	return r.records.delete(ctx, id)
}

// EnsureWorkoutIndexes creates necessary indexes. Call during startup.
func EnsureWorkoutIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			// Today and calendar views query by date.
			Keys:    bson.D{{Key: "date", Value: 1}, {Key: "time", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "createdBy", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "participants", Value: 1}},
			Options: options.Index(),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
