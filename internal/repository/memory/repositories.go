package memory

import (
	"context"
	"errors"

	"trainsync/internal/domain"
	"trainsync/internal/repository"
)

// Store holds one in-memory collection per record type.
type Store struct {
	users     *collection[domain.User]
	workouts  *collection[domain.WorkoutRecord]
	tasks     *collection[domain.Task]
	userTasks *collection[domain.UserTask]
	points    *collection[domain.PointsEntry]
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		users: newCollection[domain.User](
			"firstName", "lastName", "name", "avatar", "level", "points",
			domain.CounterWorkoutsCompleted, domain.CounterWorkoutsPlanned,
			domain.CounterWorkoutsWithFriends, domain.CounterTotalWorkouts, domain.CounterFriendsAdded,
			"weight", "city", "birthDate", "sex", "personalRecords", "gym", "updatedAt",
		),
		workouts: newCollection[domain.WorkoutRecord](
			"title", "description", "date", "time", "location", "duration",
			"participants", "postWorkout", "status",
		),
		tasks:     newCollection[domain.Task](),
		userTasks: newCollection[domain.UserTask]("completed", "completedAt"),
		points:    newCollection[domain.PointsEntry](),
	}
}

func (s *Store) Users() repository.UserRepository { return userRepo{s.users} }
func (s *Store) Workouts() repository.WorkoutRepository { return workoutRepo{s.workouts} }
func (s *Store) Tasks() repository.TaskRepository { return taskRepo{s.tasks} }
func (s *Store) UserTasks() repository.UserTaskRepository { return userTaskRepo{s.userTasks} }
func (s *Store) Points() repository.PointsRepository { return pointsRepo{s.points} }

// Repositories returns all repositories of the store.
func (s *Store) Repositories() repository.Repositories {
	return repository.Repositories{
		Users:     s.Users(),
		Workouts:  s.Workouts(),
		Tasks:     s.Tasks(),
		UserTasks: s.UserTasks(),
		Points:    s.Points(),
	}
}

// SeedTasks inserts task definitions. The catalog is managed outside the app,
// so this is only used for local runs and tests.
func (s *Store) SeedTasks(ctx context.Context, tasks ...domain.Task) error {
	for i := range tasks {
		t := tasks[i]
		if t.ID == "" {
			t.ID = newID()
		}
		if err := s.tasks.insert(ctx, &t); err != nil {
			return err
		}
	}
	return nil
}

type userRepo struct{ c *collection[domain.User] }

func (r userRepo) Create(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		return errors.New("user id is required")
	}
	ts := r.c.now()
	user.CreatedAt = ts
	user.UpdatedAt = ts
	if user.PersonalRecords == nil {
		user.PersonalRecords = []string{}
	}
	return r.c.insert(ctx, user)
}

func (r userRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.c.getOne(ctx, id)
}

func (r userRepo) List(ctx context.Context, q repository.ListQuery) ([]domain.User, error) {
	return r.c.list(ctx, q)
}

func (r userRepo) Update(ctx context.Context, id string, fields map[string]any) (*domain.User, error) {
	return r.c.update(ctx, id, fields)
}

func (r userRepo) Increment(ctx context.Context, id, field string, delta int) error {
	return r.c.increment(ctx, id, field, delta)
}

type workoutRepo struct{ c *collection[domain.WorkoutRecord] }

func (r workoutRepo) Create(ctx context.Context, w *domain.WorkoutRecord) (*domain.WorkoutRecord, error) {
	if w.Title == "" || w.CreatedBy == "" {
		return nil, errors.New("workout requires title and createdBy")
	}
	rec := *w
	if rec.ID == "" {
		rec.ID = newID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.c.now()
	}
	if rec.Participants == nil {
		rec.Participants = []string{}
	}
	if err := r.c.insert(ctx, &rec); err != nil {
		return nil, err
	}
	return r.c.getOne(ctx, rec.ID)
}

func (r workoutRepo) GetByID(ctx context.Context, id string) (*domain.WorkoutRecord, error) {
	return r.c.getOne(ctx, id)
}

func (r workoutRepo) List(ctx context.Context, q repository.ListQuery) ([]domain.WorkoutRecord, error) {
	return r.c.list(ctx, q)
}

func (r workoutRepo) Update(ctx context.Context, id string, fields map[string]any) (*domain.WorkoutRecord, error) {
	return r.c.update(ctx, id, fields)
}

func (r workoutRepo) UpdateIfStatus(ctx context.Context, id string, status domain.WorkoutStatus, fields map[string]any) (*domain.WorkoutRecord, error) {
	cond := repository.Filter{{Field: "status", Op: repository.OpEqual, Value: string(status)}}
	return r.c.updateIf(ctx, id, cond, fields)
}

func (r workoutRepo) Delete(ctx context.Context, id string) error {
	return r.c.delete(ctx, id)
}

type taskRepo struct{ c *collection[domain.Task] }

func (r taskRepo) List(ctx context.Context, q repository.ListQuery) ([]domain.Task, error) {
	return r.c.list(ctx, q)
}

type userTaskRepo struct{ c *collection[domain.UserTask] }

func (r userTaskRepo) Create(ctx context.Context, ut *domain.UserTask) (*domain.UserTask, error) {
	if ut.UserID == "" || ut.TaskID == "" {
		return nil, errors.New("user task requires userId and taskId")
	}
	existing, err := r.ListByUser(ctx, ut.UserID)
	if err != nil {
		return nil, err
	}
	for _, e := range existing {
		if e.TaskID == ut.TaskID {
			return nil, repository.ErrAlreadyExists
		}
	}
	rec := *ut
	if rec.ID == "" {
		rec.ID = newID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.c.now()
	}
	if err := r.c.insert(ctx, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r userTaskRepo) ListByUser(ctx context.Context, userID string) ([]domain.UserTask, error) {
	return r.c.list(ctx, repository.ListQuery{Filter: repository.Eq("userId", userID)})
}

func (r userTaskRepo) Update(ctx context.Context, id string, fields map[string]any) (*domain.UserTask, error) {
	return r.c.update(ctx, id, fields)
}

type pointsRepo struct{ c *collection[domain.PointsEntry] }

func (r pointsRepo) Create(ctx context.Context, e *domain.PointsEntry) (*domain.PointsEntry, error) {
	if e.UserID == "" {
		return nil, errors.New("points entry requires userId")
	}
	rec := *e
	if rec.ID == "" {
		rec.ID = newID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.c.now()
	}
	if err := r.c.insert(ctx, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r pointsRepo) ListByUser(ctx context.Context, userID string) ([]domain.PointsEntry, error) {
	return r.c.list(ctx, repository.ListQuery{Filter: repository.Eq("userId", userID)})
}
