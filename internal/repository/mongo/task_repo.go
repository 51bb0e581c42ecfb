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

type mongoTaskRepository struct {
	records recordCollection[domain.Task]
}

// NewMongoTaskRepository creates a read-only repository over the task catalog.
func NewMongoTaskRepository(db *mongo.Database) repository.TaskRepository {
	return &mongoTaskRepository{
		records: newRecordCollection[domain.Task](db, repository.TasksCollection),
	}
}

func (r *mongoTaskRepository) List(ctx context.Context, q repository.ListQuery) ([]domain.Task, error) {
	return r.records.list(ctx, q)
}

type mongoUserTaskRepository struct {
	records recordCollection[domain.UserTask]
}

// NewMongoUserTaskRepository creates the per-user task progress repository.
func NewMongoUserTaskRepository(db *mongo.Database) repository.UserTaskRepository {
	return &mongoUserTaskRepository{
		records: newRecordCollection[domain.UserTask](db, repository.UserTasksCollection,
			"completed", "completedAt",
		),
	}
}

func (r *mongoUserTaskRepository) Create(ctx context.Context, ut *domain.UserTask) (*domain.UserTask, error) {
	if ut.UserID == "" || ut.TaskID == "" {
		return nil, errors.New("user task requires userId and taskId")
	}
	rec := *ut
	if rec.ID == "" {
		rec.ID = newID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now()
	}
	if err := r.records.insert(ctx, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListByUser returns the user's progress rows in creation order.
func (r *mongoUserTaskRepository) ListByUser(ctx context.Context, userID string) ([]domain.UserTask, error) {
	return r.records.list(ctx, repository.ListQuery{
		Filter: repository.Eq("userId", userID),
		Sort:   "createdAt,id",
	})
}

func (r *mongoUserTaskRepository) Update(ctx context.Context, id string, fields map[string]any) (*domain.UserTask, error) {
	return r.records.update(ctx, id, fields)
}

type mongoPointsRepository struct {
	records recordCollection[domain.PointsEntry]
}

// NewMongoPointsRepository creates the append-only score award repository.
func NewMongoPointsRepository(db *mongo.Database) repository.PointsRepository {
	return &mongoPointsRepository{
		records: newRecordCollection[domain.PointsEntry](db, repository.PointsCollection),
	}
}

func (r *mongoPointsRepository) Create(ctx context.Context, entry *domain.PointsEntry) (*domain.PointsEntry, error) {
	if entry.UserID == "" {
		return nil, errors.New("points entry requires userId")
	}
	rec := *entry
	if rec.ID == "" {
		rec.ID = newID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now()
	}
	if err := r.records.insert(ctx, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *mongoPointsRepository) ListByUser(ctx context.Context, userID string) ([]domain.PointsEntry, error) {
	return r.records.list(ctx, repository.ListQuery{
		Filter: repository.Eq("userId", userID),
		Sort:   "createdAt",
	})
}

// EnsureTaskIndexes creates indexes for userTasks and points. A user has at most
// one progress row per task.
func EnsureTaskIndexes(ctx context.Context, userTasks, points *mongo.Collection) error {
	_, err := userTasks.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "taskId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return err
	}
	_, err = points.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index(),
		},
	})
	return err
}
