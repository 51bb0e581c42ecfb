package repository

import (
	"context"

	"trainsync/internal/domain"
)

// Collection names in the record store.
const (
	UsersCollection     = "vkUsers"
	WorkoutsCollection  = "workouts"
	TasksCollection     = "tasks"
	UserTasksCollection = "userTasks"
	PointsCollection    = "points"
)

// Error constants for repository layer
var (
	ErrNotFound      = RepositoryError("not found")
	ErrAlreadyExists = RepositoryError("already exists")
	ErrInvalidField  = RepositoryError("field cannot be updated")
	ErrInvalidFilter = RepositoryError("invalid filter expression")
	// ErrConflict means a conditional write found the record in another state.
	ErrConflict = RepositoryError("record is not in the expected state")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// ListQuery narrows a full-list read. Filter is an equality expression such as
// `createdBy = "42" && status = "planned"`; Sort is a field name, "-" prefix for descending.
type ListQuery struct {
	Filter string
	Sort   string
	Limit  int
}

// UserRepository stores user profile records. Users are never deleted.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	List(ctx context.Context, q ListQuery) ([]domain.User, error)
	// Update sets the given fields and returns the stored record afterwards.
	Update(ctx context.Context, id string, fields map[string]any) (*domain.User, error)
	// Increment adds delta to a numeric field atomically on the server side.
	Increment(ctx context.Context, id, field string, delta int) error
}

// WorkoutRepository stores workout plans in wire form.
type WorkoutRepository interface {
	Create(ctx context.Context, workout *domain.WorkoutRecord) (*domain.WorkoutRecord, error)
	GetByID(ctx context.Context, id string) (*domain.WorkoutRecord, error)
	List(ctx context.Context, q ListQuery) ([]domain.WorkoutRecord, error)
	Update(ctx context.Context, id string, fields map[string]any) (*domain.WorkoutRecord, error)
	// UpdateIfStatus writes fields only while the stored status equals status,
	// in one atomic step. A record in another status yields ErrConflict.
	UpdateIfStatus(ctx context.Context, id string, status domain.WorkoutStatus, fields map[string]any) (*domain.WorkoutRecord, error)
	Delete(ctx context.Context, id string) error
}

// TaskRepository reads the task catalog.
type TaskRepository interface {
	List(ctx context.Context, q ListQuery) ([]domain.Task, error)
}

// UserTaskRepository stores per-user task progress.
type UserTaskRepository interface {
	Create(ctx context.Context, ut *domain.UserTask) (*domain.UserTask, error)
	ListByUser(ctx context.Context, userID string) ([]domain.UserTask, error)
	Update(ctx context.Context, id string, fields map[string]any) (*domain.UserTask, error)
}

// PointsRepository stores score awards.
type PointsRepository interface {
	Create(ctx context.Context, entry *domain.PointsEntry) (*domain.PointsEntry, error)
	ListByUser(ctx context.Context, userID string) ([]domain.PointsEntry, error)
}

// Repositories groups every repository of one record store backend.
type Repositories struct {
	Users     UserRepository
	Workouts  WorkoutRepository
	Tasks     TaskRepository
	UserTasks UserTaskRepository
	Points    PointsRepository
}
