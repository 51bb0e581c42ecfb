package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"trainsync/internal/domain"
	"trainsync/internal/metrics"
	"trainsync/internal/repository"
)

// TaskProgress is a task with the session user's progress on it.
type TaskProgress struct {
	domain.Task
	Progress    int        `json:"progress"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// TaskStore tracks one user's progress over the task catalog.
type TaskStore struct {
	mu        sync.Mutex
	uid       string
	catalog   map[string]domain.Task
	order     []string // catalog order
	userTasks []domain.UserTask

	tasks      repository.TaskRepository
	userTaskDB repository.UserTaskRepository
	points     repository.PointsRepository
	hub        *Hub
	metrics    *metrics.Metrics
	log        *zap.Logger
	now        func() time.Time
}

func NewTaskStore(repos repository.Repositories, hub *Hub, m *metrics.Metrics, log *zap.Logger) *TaskStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &TaskStore{
		catalog:    make(map[string]domain.Task),
		tasks:      repos.Tasks,
		userTaskDB: repos.UserTasks,
		points:     repos.Points,
		hub:        hub,
		metrics:    m,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Load reads the catalog and the user's task rows, creating an incomplete row
// for every catalog task the user does not have yet. On a read failure the
// store is left empty.
func (s *TaskStore) Load(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.uid = userID
	s.catalog = make(map[string]domain.Task)
	s.order = nil
	s.userTasks = nil

	tasks, err := s.tasks.List(ctx, repository.ListQuery{})
	if err != nil {
		s.log.Error("failed to load task catalog", zap.Error(err))
		return fmt.Errorf("load tasks: %w", err)
	}
	rows, err := s.userTaskDB.ListByUser(ctx, userID)
	if err != nil {
		s.log.Error("failed to load user tasks", zap.String("user_id", userID), zap.Error(err))
		return fmt.Errorf("load user tasks: %w", err)
	}

	have := make(map[string]bool, len(rows))
	for _, ut := range rows {
		have[ut.TaskID] = true
	}

	var errs []error
	relist := false
	for _, t := range tasks {
		s.catalog[t.ID] = t
		s.order = append(s.order, t.ID)
		if have[t.ID] {
			continue
		}
		created, err := s.userTaskDB.Create(ctx, &domain.UserTask{UserID: userID, TaskID: t.ID})
		switch {
		case errors.Is(err, repository.ErrAlreadyExists):
			relist = true
		case err != nil:
			s.log.Error("failed to create user task", zap.String("user_id", userID), zap.String("task_id", t.ID), zap.Error(err))
			errs = append(errs, fmt.Errorf("create user task %s: %w", t.ID, err))
		default:
			rows = append(rows, *created)
		}
	}
	if relist {
		if rows, err = s.userTaskDB.ListByUser(ctx, userID); err != nil {
			return fmt.Errorf("reload user tasks: %w", err)
		}
	}
	s.userTasks = rows
	return errors.Join(errs...)
}

// CheckAndUpdateAfterUserAction marks every incomplete task whose goal the
// user now meets as completed, in one pass in row order, and returns the
// summed reward. The caller adds the reward to the user's score. Completed
// tasks are never reopened.
func (s *TaskStore) CheckAndUpdateAfterUserAction(ctx context.Context, user *domain.User) (int, error) {
	if user == nil {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uid != "" && user.ID != s.uid {
		return 0, fmt.Errorf("task store belongs to %s, not %s", s.uid, user.ID)
	}

	ts := s.now()
	var done []int
	reward := 0
	for i := range s.userTasks {
		ut := &s.userTasks[i]
		if ut.Completed {
			continue
		}
		task, ok := s.catalog[ut.TaskID]
		if !ok || !task.IsMetBy(user) {
			continue
		}
		completedAt := ts
		ut.Completed = true
		ut.CompletedAt = &completedAt
		reward += task.Points
		done = append(done, i)
	}

	var errs []error
	for _, i := range done {
		ut := s.userTasks[i]
		task := s.catalog[ut.TaskID]

		s.metrics.TaskCompleted(task.Points)
		s.hub.Publish(Event{Type: EventTaskCompleted, UserID: ut.UserID, Data: s.progress(task, ut, user)})
		s.log.Info("task completed", zap.String("user_id", ut.UserID), zap.String("task_id", task.ID), zap.Int("points", task.Points))

		if _, err := s.userTaskDB.Update(ctx, ut.ID, map[string]any{"completed": true, "completedAt": *ut.CompletedAt}); err != nil {
			s.log.Error("failed to persist task completion", zap.String("user_task_id", ut.ID), zap.Error(err))
			s.metrics.RemoteWriteFailed(collectionUserTasks)
			errs = append(errs, fmt.Errorf("persist user task %s: %w", ut.ID, err))
		}
		entry := &domain.PointsEntry{
			UserID: ut.UserID,
			Amount: task.Points,
			Reason: "task completed: " + task.Title,
			TaskID: task.ID,
		}
		if _, err := s.points.Create(ctx, entry); err != nil {
			s.log.Error("failed to write points entry", zap.String("task_id", task.ID), zap.Error(err))
			s.metrics.RemoteWriteFailed(collectionPoints)
			errs = append(errs, fmt.Errorf("write points for task %s: %w", task.ID, err))
		}
	}
	return reward, errors.Join(errs...)
}

// Tasks lists the catalog with the user's progress, in catalog order.
func (s *TaskStore) Tasks(user *domain.User) []TaskProgress {
	s.mu.Lock()
	defer s.mu.Unlock()

	byTask := make(map[string]domain.UserTask, len(s.userTasks))
	for _, ut := range s.userTasks {
		byTask[ut.TaskID] = ut
	}
	out := make([]TaskProgress, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.progress(s.catalog[id], byTask[id], user))
	}
	return out
}

// UserTasks returns a copy of the user's task rows in insertion order.
func (s *TaskStore) UserTasks() []domain.UserTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.UserTask(nil), s.userTasks...)
}

func (s *TaskStore) progress(task domain.Task, ut domain.UserTask, user *domain.User) TaskProgress {
	p := TaskProgress{Task: task, Completed: ut.Completed, CompletedAt: ut.CompletedAt}
	if user != nil {
		p.Progress, _ = user.Counter(task.Category)
	}
	return p
}
