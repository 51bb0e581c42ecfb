package store

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"trainsync/internal/domain"
	"trainsync/internal/repository"
	"trainsync/internal/repository/memory"
)

var errBoom = errors.New("boom")

// countingIdentity serves identities from a map and counts calls.
type countingIdentity struct {
	calls atomic.Int32
	known map[string]domain.Identity
	err   error
}

func (c *countingIdentity) FetchIdentity(_ context.Context, userID string) (*domain.Identity, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	if id, ok := c.known[userID]; ok {
		return &id, nil
	}
	return &domain.Identity{ID: userID}, nil
}

// flakyUsers fails writes on demand.
type flakyUsers struct {
	repository.UserRepository
	failIncrement atomic.Bool
	failUpdate    atomic.Bool
}

func (f *flakyUsers) Increment(ctx context.Context, id, field string, delta int) error {
	if f.failIncrement.Load() {
		return errBoom
	}
	return f.UserRepository.Increment(ctx, id, field, delta)
}

func (f *flakyUsers) Update(ctx context.Context, id string, fields map[string]any) (*domain.User, error) {
	if f.failUpdate.Load() {
		return nil, errBoom
	}
	return f.UserRepository.Update(ctx, id, fields)
}

// flakyWorkouts fails reads or deletes on demand.
type flakyWorkouts struct {
	repository.WorkoutRepository
	failList   atomic.Bool
	failDelete atomic.Bool
}

func (f *flakyWorkouts) List(ctx context.Context, q repository.ListQuery) ([]domain.WorkoutRecord, error) {
	if f.failList.Load() {
		return nil, errBoom
	}
	return f.WorkoutRepository.List(ctx, q)
}

func (f *flakyWorkouts) Delete(ctx context.Context, id string) error {
	if f.failDelete.Load() {
		return errBoom
	}
	return f.WorkoutRepository.Delete(ctx, id)
}

func newMemoryRepos(t *testing.T, tasks ...domain.Task) (*memory.Store, repository.Repositories) {
	t.Helper()
	mem := memory.NewStore()
	require.NoError(t, mem.SeedTasks(context.Background(), tasks...))
	return mem, mem.Repositories()
}

func mustCreateUser(t *testing.T, repos repository.Repositories, u domain.User) {
	t.Helper()
	require.NoError(t, repos.Users.Create(context.Background(), &u))
}

func strPtr(s string) *string { return &s }

func statusPtr(s domain.WorkoutStatus) *domain.WorkoutStatus { return &s }
