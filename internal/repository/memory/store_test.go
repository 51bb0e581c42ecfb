package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"trainsync/internal/domain"
	"trainsync/internal/repository"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *Store
	ctx   context.Context
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewStore()
	s.ctx = context.Background()
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) TestUsers() {
	users := s.store.Users()

	s.Run("create and get", func() {
		s.Require().NoError(users.Create(s.ctx, &domain.User{ID: "1", FirstName: "Anna", Points: 10}))
		got, err := users.GetByID(s.ctx, "1")
		s.Require().NoError(err)
		s.Equal("Anna", got.FirstName)
		s.NotNil(got.PersonalRecords)
	})

	s.Run("duplicate id", func() {
		err := users.Create(s.ctx, &domain.User{ID: "1"})
		s.ErrorIs(err, repository.ErrAlreadyExists)
	})

	s.Run("missing", func() {
		_, err := users.GetByID(s.ctx, "nope")
		s.ErrorIs(err, repository.ErrNotFound)
	})

	s.Run("increment and update", func() {
		s.Require().NoError(users.Increment(s.ctx, "1", domain.CounterWorkoutsCompleted, 2))
		s.Require().NoError(users.Increment(s.ctx, "1", domain.CounterWorkoutsCompleted, 3))
		got, err := users.Update(s.ctx, "1", map[string]any{"city": "Kazan"})
		s.Require().NoError(err)
		s.Equal(5, got.WorkoutsCompleted)
		s.Equal("Kazan", got.City)
		s.Equal("Anna", got.FirstName)
	})

	s.Run("immutable fields rejected", func() {
		_, err := users.Update(s.ctx, "1", map[string]any{"_id": "2"})
		s.ErrorIs(err, repository.ErrInvalidField)
		s.ErrorIs(users.Increment(s.ctx, "1", "createdAt", 1), repository.ErrInvalidField)
	})

	s.Run("leaderboard sort", func() {
		s.Require().NoError(users.Create(s.ctx, &domain.User{ID: "2", Points: 50}))
		s.Require().NoError(users.Create(s.ctx, &domain.User{ID: "3", Points: 20}))
		top, err := users.List(s.ctx, repository.ListQuery{Sort: "-points", Limit: 2})
		s.Require().NoError(err)
		s.Require().Len(top, 2)
		s.Equal("2", top[0].ID)
		s.Equal("3", top[1].ID)
	})
}

func (s *MemoryStoreSuite) TestWorkouts() {
	workouts := s.store.Workouts()

	a, err := workouts.Create(s.ctx, &domain.WorkoutRecord{Title: "A", Date: "2025-03-01", CreatedBy: "1", Participants: []string{"1", "2"}, Status: domain.WorkoutPlanned})
	s.Require().NoError(err)
	s.NotEmpty(a.ID)
	b, err := workouts.Create(s.ctx, &domain.WorkoutRecord{Title: "B", Date: "2025-03-02", CreatedBy: "2", Status: domain.WorkoutPlanned})
	s.Require().NoError(err)
	s.NotNil(b.Participants)

	s.Run("insertion order without sort", func() {
		all, err := workouts.List(s.ctx, repository.ListQuery{})
		s.Require().NoError(err)
		s.Require().Len(all, 2)
		s.Equal("A", all[0].Title)
		s.Equal("B", all[1].Title)
	})

	s.Run("filter by date and array membership", func() {
		byDate, err := workouts.List(s.ctx, repository.ListQuery{Filter: repository.Eq("date", "2025-03-02")})
		s.Require().NoError(err)
		s.Require().Len(byDate, 1)
		s.Equal(b.ID, byDate[0].ID)

		withTwo, err := workouts.List(s.ctx, repository.ListQuery{Filter: repository.Eq("participants", "2")})
		s.Require().NoError(err)
		s.Require().Len(withTwo, 1)
		s.Equal(a.ID, withTwo[0].ID)

		notCreatedBy1, err := workouts.List(s.ctx, repository.ListQuery{Filter: `createdBy != "1"`})
		s.Require().NoError(err)
		s.Require().Len(notCreatedBy1, 1)
		s.Equal(b.ID, notCreatedBy1[0].ID)
	})

	s.Run("partial update", func() {
		got, err := workouts.Update(s.ctx, a.ID, map[string]any{"status": domain.WorkoutCompleted, "participants": []string{"1"}})
		s.Require().NoError(err)
		s.Equal(domain.WorkoutCompleted, got.Status)
		s.Equal([]string{"1"}, got.Participants)
		s.Equal("A", got.Title)

		_, err = workouts.Update(s.ctx, "missing", map[string]any{"title": "x"})
		s.ErrorIs(err, repository.ErrNotFound)
	})

	s.Run("conditional status update", func() {
		done := map[string]any{"status": domain.WorkoutCompleted}
		got, err := workouts.UpdateIfStatus(s.ctx, b.ID, domain.WorkoutPlanned, done)
		s.Require().NoError(err)
		s.Equal(domain.WorkoutCompleted, got.Status)

		_, err = workouts.UpdateIfStatus(s.ctx, b.ID, domain.WorkoutPlanned, done)
		s.ErrorIs(err, repository.ErrConflict)
		_, err = workouts.UpdateIfStatus(s.ctx, "missing", domain.WorkoutPlanned, done)
		s.ErrorIs(err, repository.ErrNotFound)
	})

	s.Run("delete", func() {
		s.Require().NoError(workouts.Delete(s.ctx, a.ID))
		s.ErrorIs(workouts.Delete(s.ctx, a.ID), repository.ErrNotFound)
		all, err := workouts.List(s.ctx, repository.ListQuery{})
		s.Require().NoError(err)
		s.Len(all, 1)
	})
}

func (s *MemoryStoreSuite) TestUserTasks() {
	uts := s.store.UserTasks()

	first, err := uts.Create(s.ctx, &domain.UserTask{UserID: "1", TaskID: "t1"})
	s.Require().NoError(err)
	_, err = uts.Create(s.ctx, &domain.UserTask{UserID: "1", TaskID: "t2"})
	s.Require().NoError(err)
	_, err = uts.Create(s.ctx, &domain.UserTask{UserID: "2", TaskID: "t1"})
	s.Require().NoError(err)

	_, err = uts.Create(s.ctx, &domain.UserTask{UserID: "1", TaskID: "t1"})
	s.ErrorIs(err, repository.ErrAlreadyExists)

	mine, err := uts.ListByUser(s.ctx, "1")
	s.Require().NoError(err)
	s.Require().Len(mine, 2)
	s.Equal("t1", mine[0].TaskID)

	done, err := uts.Update(s.ctx, first.ID, map[string]any{"completed": true})
	s.Require().NoError(err)
	s.True(done.Completed)
}

func (s *MemoryStoreSuite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	_, err := s.store.Users().GetByID(ctx, "1")
	s.ErrorIs(err, context.Canceled)
}
