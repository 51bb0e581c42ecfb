package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trainsync/internal/domain"
	"trainsync/internal/metrics"
)

func TestSessions_ConcurrentOpenInitializesOnce(t *testing.T) {
	ctx := context.Background()
	_, repos := newMemoryRepos(t, catalog...)
	ident := &countingIdentity{}
	m := metrics.New(prometheus.NewRegistry())
	sessions := NewSessions(repos, ident, nil, m, nil)

	var wg sync.WaitGroup
	got := make([]*Session, 10)
	for i := range got {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := sessions.Open(ctx, "42")
			assert.NoError(t, err)
			got[i] = s
		}()
	}
	wg.Wait()

	for _, s := range got {
		assert.Same(t, got[0], s)
	}
	assert.EqualValues(t, 1, ident.calls.Load())
	assert.Equal(t, 1, sessions.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsInitialized.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveSessions))

	s := got[0]
	assert.Equal(t, "42", s.User().ID)
	assert.Len(t, s.TaskProgress(), len(catalog))
}

func TestSessions_CloseAndReopen(t *testing.T) {
	ctx := context.Background()
	_, repos := newMemoryRepos(t)
	sessions := NewSessions(repos, BareIdentity, nil, nil, nil)

	first, err := sessions.Open(ctx, "1")
	require.NoError(t, err)
	_, err = first.Users.UpdateStat(ctx, domain.CounterWorkoutsPlanned, 2)
	require.NoError(t, err)

	sessions.Close("1")
	sessions.Close("1")
	assert.Zero(t, sessions.Len())

	second, err := sessions.Get(ctx, "1")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, 2, second.User().WorkoutsPlanned)
}

func TestSessions_EvictIdle(t *testing.T) {
	ctx := context.Background()
	_, repos := newMemoryRepos(t)
	m := metrics.New(prometheus.NewRegistry())
	sessions := NewSessions(repos, BareIdentity, nil, m, nil)

	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	sessions.now = func() time.Time { return clock }

	_, err := sessions.Open(ctx, "1")
	require.NoError(t, err)
	_, err = sessions.Open(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActiveSessions))

	clock = clock.Add(20 * time.Minute)
	active, err := sessions.Get(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, clock, active.LastSeen())

	clock = clock.Add(15 * time.Minute)
	assert.Equal(t, 1, sessions.EvictIdle(30*time.Minute))
	assert.Equal(t, 1, sessions.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveSessions))

	_, ok := sessions.lookup("1")
	assert.False(t, ok)
	kept, ok := sessions.lookup("2")
	require.True(t, ok)
	assert.Same(t, active, kept)

	clock = clock.Add(time.Hour)
	assert.Equal(t, 1, sessions.EvictIdle(30*time.Minute))
	assert.Zero(t, sessions.Len())
	assert.Zero(t, testutil.ToFloat64(m.ActiveSessions))
}

func TestSessions_RunEvictionStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	_, repos := newMemoryRepos(t)
	sessions := NewSessions(repos, BareIdentity, nil, nil, nil)

	_, err := sessions.Open(ctx, "1")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		sessions.RunEviction(ctx, time.Millisecond, time.Nanosecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return sessions.Len() == 0 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("eviction loop did not stop")
	}
}

func TestSessions_FailedInitializeIsNotCached(t *testing.T) {
	ctx := context.Background()
	_, repos := newMemoryRepos(t)
	ident := &countingIdentity{err: errBoom}
	sessions := NewSessions(repos, ident, nil, nil, nil)

	_, err := sessions.Open(ctx, "1")
	require.ErrorIs(t, err, errBoom)
	assert.Zero(t, sessions.Len())

	ident.err = nil
	s, err := sessions.Open(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "1", s.User().ID)
}
