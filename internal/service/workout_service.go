package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"trainsync/internal/domain"
	"trainsync/internal/store"
)

var (
	ErrWorkoutAccessDenied = errors.New("only the creator can change this workout")
	ErrNotParticipant      = errors.New("only the creator or a participant can complete this workout")
)

// Notifier delivers host platform notifications.
type Notifier interface {
	Notify(ctx context.Context, userIDs []string, message string) error
}

// WorkoutService applies workout changes together with their effect on the
// acting user's counters.
type WorkoutService interface {
	Create(ctx context.Context, session *store.Session, plan domain.WorkoutPlan) (*domain.WorkoutPlan, error)
	Update(ctx context.Context, session *store.Session, id string, upd domain.WorkoutUpdate) (*domain.WorkoutPlan, error)
	Delete(ctx context.Context, session *store.Session, id string) error
	Join(ctx context.Context, session *store.Session, id string) (*domain.WorkoutPlan, error)
	Complete(ctx context.Context, session *store.Session, id string) (*domain.WorkoutPlan, error)
	Cancel(ctx context.Context, session *store.Session, id string) (*domain.WorkoutPlan, error)
}

type workoutService struct {
	workouts *store.WorkoutStore
	notifier Notifier // nil disables notifications
	log      *zap.Logger
}

func NewWorkoutService(workouts *store.WorkoutStore, notifier Notifier, log *zap.Logger) WorkoutService {
	if log == nil {
		log = zap.NewNop()
	}
	return &workoutService{workouts: workouts, notifier: notifier, log: log}
}

func currentUser(session *store.Session) (*domain.User, error) {
	u := session.User()
	if u == nil {
		return nil, store.ErrNotInitialized
	}
	return u, nil
}

// Create stores the plan with the caller as creator and counts it as planned.
func (s *workoutService) Create(ctx context.Context, session *store.Session, plan domain.WorkoutPlan) (*domain.WorkoutPlan, error) {
	user, err := currentUser(session)
	if err != nil {
		return nil, err
	}
	plan.CreatedBy = user.ID

	created, err := s.workouts.Create(ctx, plan)
	if err != nil {
		return nil, err
	}
	if _, err := session.Users.UpdateStat(ctx, domain.CounterWorkoutsPlanned, 1); err != nil {
		s.log.Error("failed to count planned workout", zap.String("user_id", user.ID), zap.Error(err))
	}
	return created, nil
}

func (s *workoutService) ownedWorkout(ctx context.Context, session *store.Session, id string) (*domain.User, *domain.WorkoutPlan, error) {
	user, err := currentUser(session)
	if err != nil {
		return nil, nil, err
	}
	plan, err := s.workouts.Load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if plan.CreatedBy != user.ID {
		return nil, nil, ErrWorkoutAccessDenied
	}
	return user, plan, nil
}

// Update changes plan details. Status changes go through Complete and Cancel.
func (s *workoutService) Update(ctx context.Context, session *store.Session, id string, upd domain.WorkoutUpdate) (*domain.WorkoutPlan, error) {
	if _, _, err := s.ownedWorkout(ctx, session, id); err != nil {
		return nil, err
	}
	upd.Status = nil
	return s.workouts.Update(ctx, id, upd)
}

func (s *workoutService) Delete(ctx context.Context, session *store.Session, id string) error {
	// A workout that is already gone still gets dropped from the cached views.
	_, _, err := s.ownedWorkout(ctx, session, id)
	if err != nil && !errors.Is(err, store.ErrWorkoutNotFound) {
		return err
	}
	return s.workouts.Delete(ctx, id)
}

// Join adds the caller to the participants and tells the creator about it.
func (s *workoutService) Join(ctx context.Context, session *store.Session, id string) (*domain.WorkoutPlan, error) {
	user, err := currentUser(session)
	if err != nil {
		return nil, err
	}
	plan, joined, err := s.workouts.Join(ctx, id, user)
	if err != nil {
		return nil, err
	}
	if joined && plan.CreatedBy != user.ID {
		s.notify(ctx, []string{plan.CreatedBy}, fmt.Sprintf("%s joined your workout \"%s\"", user.DisplayName(), plan.Title))
	}
	return plan, nil
}

// Complete marks the workout done and credits the caller: workoutsCompleted
// and totalWorkouts, plus workoutsWithFriends when anyone else (the creator or
// another participant) is on the workout. Only the caller is credited, and only
// the call that actually performed the transition runs the cascade.
func (s *workoutService) Complete(ctx context.Context, session *store.Session, id string) (*domain.WorkoutPlan, error) {
	user, err := currentUser(session)
	if err != nil {
		return nil, err
	}
	plan, err := s.workouts.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if plan.CreatedBy != user.ID && !plan.HasParticipant(user.ID) {
		return nil, ErrNotParticipant
	}

	done, err := s.workouts.Transition(ctx, id, domain.WorkoutCompleted)
	if err != nil {
		return nil, err
	}

	counters := []string{domain.CounterWorkoutsCompleted, domain.CounterTotalWorkouts}
	if withFriends(done, user.ID) {
		counters = append(counters, domain.CounterWorkoutsWithFriends)
	}
	for _, field := range counters {
		if _, err := session.Users.UpdateStat(ctx, field, 1); err != nil {
			s.log.Error("failed to count completed workout", zap.String("user_id", user.ID), zap.String("field", field), zap.Error(err))
		}
	}
	return done, nil
}

// withFriends reports whether anyone besides userID takes part in the plan.
func withFriends(plan *domain.WorkoutPlan, userID string) bool {
	if plan.CreatedBy != "" && plan.CreatedBy != userID {
		return true
	}
	for _, id := range plan.ParticipantIDs() {
		if id != userID {
			return true
		}
	}
	return false
}

// Cancel is for the creator only and tells the other participants.
func (s *workoutService) Cancel(ctx context.Context, session *store.Session, id string) (*domain.WorkoutPlan, error) {
	_, plan, err := s.ownedWorkout(ctx, session, id)
	if err != nil {
		return nil, err
	}
	cancelled, err := s.workouts.Transition(ctx, id, domain.WorkoutCancelled)
	if err != nil {
		return nil, err
	}

	var others []string
	for _, pid := range cancelled.ParticipantIDs() {
		if pid != plan.CreatedBy {
			others = append(others, pid)
		}
	}
	s.notify(ctx, others, fmt.Sprintf("Workout \"%s\" on %s was cancelled", plan.Title, plan.Date))
	return cancelled, nil
}

// notify is best effort: failures are logged, never returned.
func (s *workoutService) notify(ctx context.Context, userIDs []string, message string) {
	if s.notifier == nil || len(userIDs) == 0 {
		return
	}
	if err := s.notifier.Notify(ctx, userIDs, message); err != nil {
		s.log.Warn("failed to send notification", zap.Strings("user_ids", userIDs), zap.Error(err))
	}
}
