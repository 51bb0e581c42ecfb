package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trainsync/internal/domain"
	"trainsync/internal/repository"
)

func TestUserStore_InitializeCreatesDefaultUser(t *testing.T) {
	ctx := context.Background()
	_, repos := newMemoryRepos(t)
	ident := &countingIdentity{known: map[string]domain.Identity{
		"42": {ID: "42", FirstName: "Ivan", LastName: "Petrov", City: "Moscow"},
	}}
	hub := NewHub(nil)
	events, cancel := hub.Subscribe(8)
	defer cancel()

	s := NewUserStore("42", repos.Users, ident, nil, hub, nil, nil)
	assert.Nil(t, s.User())

	u, err := s.Initialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, "42", u.ID)
	assert.Equal(t, 1, u.Level)
	assert.Zero(t, u.Points)
	assert.Zero(t, u.WorkoutsCompleted)
	assert.Equal(t, []string{}, u.PersonalRecords)
	assert.Equal(t, "Ivan Petrov", s.DisplayName())

	stored, err := repos.Users.GetByID(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "Moscow", stored.City)

	e := <-events
	assert.Equal(t, EventUserUpdated, e.Type)
	assert.Equal(t, "42", e.UserID)

	again, err := s.Initialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)
	assert.EqualValues(t, 1, ident.calls.Load())
}

func TestUserStore_InitializeAdoptsExistingRecord(t *testing.T) {
	ctx := context.Background()
	_, repos := newMemoryRepos(t)
	mustCreateUser(t, repos, domain.User{ID: "7", FirstName: "Old", Points: 40, Level: 3, WorkoutsCompleted: 9})

	ident := &countingIdentity{known: map[string]domain.Identity{"7": {ID: "7", FirstName: "New"}}}
	s := NewUserStore("7", repos.Users, ident, nil, nil, nil, nil)

	u, err := s.Initialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, "7", u.ID)
	assert.Equal(t, "Old", u.FirstName)
	assert.Equal(t, 40, u.Points)
	assert.Equal(t, 3, u.Level)
	assert.Equal(t, 9, u.WorkoutsCompleted)
}

func TestUserStore_InitializeFailureLeavesUserUnset(t *testing.T) {
	ctx := context.Background()
	_, repos := newMemoryRepos(t)
	s := NewUserStore("1", repos.Users, &countingIdentity{err: errBoom}, nil, nil, nil, nil)

	_, err := s.Initialize(ctx)
	require.ErrorIs(t, err, errBoom)
	assert.Nil(t, s.User())
	assert.Equal(t, domain.DefaultDisplayName, s.DisplayName())

	_, err = s.UpdateStat(ctx, domain.CounterWorkoutsCompleted, 1)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = s.Refresh(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = repos.Users.GetByID(ctx, "1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func initializedStore(t *testing.T, repos repository.Repositories, users repository.UserRepository, tasks *TaskStore, u domain.User) *UserStore {
	t.Helper()
	mustCreateUser(t, repos, u)
	s := NewUserStore(u.ID, users, BareIdentity, tasks, nil, nil, nil)
	_, err := s.Initialize(context.Background())
	require.NoError(t, err)
	return s
}

func TestUserStore_UpdateStat(t *testing.T) {
	ctx := context.Background()
	_, repos := newMemoryRepos(t)
	s := initializedStore(t, repos, repos.Users, nil, domain.User{ID: "1"})

	t.Run("non-positive increment counts as one", func(t *testing.T) {
		u, err := s.UpdateStat(ctx, domain.CounterFriendsAdded, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, u.FriendsAdded)
		u, err = s.UpdateStat(ctx, domain.CounterFriendsAdded, -3)
		require.NoError(t, err)
		assert.Equal(t, 2, u.FriendsAdded)
	})

	t.Run("unknown field mutates nothing", func(t *testing.T) {
		before := s.User()
		_, err := s.UpdateStat(ctx, "steps", 5)
		require.ErrorIs(t, err, domain.ErrUnknownCounter)
		assert.Equal(t, before, s.User())
	})

	t.Run("persisted", func(t *testing.T) {
		stored, err := repos.Users.GetByID(ctx, "1")
		require.NoError(t, err)
		assert.Equal(t, 2, stored.FriendsAdded)
	})
}

func TestUserStore_UpdateStatDisjointFieldsConcurrently(t *testing.T) {
	ctx := context.Background()
	_, repos := newMemoryRepos(t)
	s := initializedStore(t, repos, repos.Users, nil, domain.User{ID: "1"})

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.UpdateStat(ctx, domain.CounterWorkoutsPlanned, 1)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := s.UpdateStat(ctx, domain.CounterTotalWorkouts, 2)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	u := s.User()
	assert.Equal(t, n, u.WorkoutsPlanned)
	assert.Equal(t, 2*n, u.TotalWorkouts)

	stored, err := repos.Users.GetByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, n, stored.WorkoutsPlanned)
	assert.Equal(t, 2*n, stored.TotalWorkouts)
}

func TestUserStore_RemoteFailureKeepsOptimisticValue(t *testing.T) {
	ctx := context.Background()
	_, repos := newMemoryRepos(t)
	users := &flakyUsers{UserRepository: repos.Users}
	s := initializedStore(t, repos, users, nil, domain.User{ID: "1"})

	users.failIncrement.Store(true)
	u, err := s.UpdateStat(ctx, domain.CounterWorkoutsCompleted, 1)
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, u.WorkoutsCompleted)
	assert.Equal(t, 1, s.User().WorkoutsCompleted)

	// Refresh reconciles with what the record store actually has.
	u, err = s.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, u.WorkoutsCompleted)
}

func TestUserStore_TaskCompletionAwardsPoints(t *testing.T) {
	ctx := context.Background()
	_, repos := newMemoryRepos(t, domain.Task{
		ID: "t1", Title: "Five workouts", Category: domain.CounterWorkoutsCompleted, Goal: 5, Points: 50,
	})
	mustCreateUser(t, repos, domain.User{ID: "1", WorkoutsCompleted: 4, Points: 10})

	tasks := NewTaskStore(repos, nil, nil, nil)
	require.NoError(t, tasks.Load(ctx, "1"))
	s := NewUserStore("1", repos.Users, BareIdentity, tasks, nil, nil, nil)
	_, err := s.Initialize(ctx)
	require.NoError(t, err)

	u, err := s.UpdateStat(ctx, domain.CounterWorkoutsCompleted, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, u.WorkoutsCompleted)
	assert.Equal(t, 60, u.Points)

	rows := tasks.UserTasks()
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Completed)
	assert.NotNil(t, rows[0].CompletedAt)

	stored, err := repos.Users.GetByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 60, stored.Points)
	assert.Equal(t, 5, stored.WorkoutsCompleted)

	entries, err := repos.Points.ListByUser(ctx, "1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 50, entries[0].Amount)
	assert.Equal(t, "t1", entries[0].TaskID)

	// Further actions do not award the task again.
	u, err = s.UpdateStat(ctx, domain.CounterWorkoutsCompleted, 1)
	require.NoError(t, err)
	assert.Equal(t, 60, u.Points)
}

func TestUserStore_UpdateProfile(t *testing.T) {
	ctx := context.Background()
	_, repos := newMemoryRepos(t)
	users := &flakyUsers{UserRepository: repos.Users}
	s := initializedStore(t, repos, users, nil, domain.User{ID: "1", City: "Moscow"})

	u, err := s.UpdateProfile(ctx, domain.ProfileUpdate{Gym: strPtr("Iron"), PersonalRecords: []string{"squat 120"}})
	require.NoError(t, err)
	assert.Equal(t, "Iron", u.Gym)
	assert.Equal(t, "Moscow", u.City)

	stored, err := repos.Users.GetByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "Iron", stored.Gym)
	assert.Equal(t, []string{"squat 120"}, stored.PersonalRecords)

	_, err = s.UpdateProfile(ctx, domain.ProfileUpdate{BirthDate: strPtr("yesterday")})
	assert.Error(t, err)
	assert.Equal(t, "Iron", s.User().Gym)

	users.failUpdate.Store(true)
	u, err = s.UpdateProfile(ctx, domain.ProfileUpdate{City: strPtr("Kazan")})
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, "Kazan", u.City)
}

func TestUserStore_AwardPoints(t *testing.T) {
	ctx := context.Background()
	_, repos := newMemoryRepos(t)
	s := initializedStore(t, repos, repos.Users, nil, domain.User{ID: "1", Points: 5})

	u, err := s.AwardPoints(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, u.Points)

	u, err = s.AwardPoints(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, 25, u.Points)

	stored, err := repos.Users.GetByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 25, stored.Points)
}
