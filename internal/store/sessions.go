package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"trainsync/internal/domain"
	"trainsync/internal/metrics"
	"trainsync/internal/repository"
)

// Session is the per-user state: the user store and its task progress.
type Session struct {
	UserID   string
	Users    *UserStore
	Tasks    *TaskStore
	OpenedAt time.Time

	lastSeen atomic.Int64
}

// LastSeen is the time of the latest Open or Get for this session.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load()).UTC()
}

func (s *Session) touch(t time.Time) {
	s.lastSeen.Store(t.UnixNano())
}

// User is shorthand for s.Users.User().
func (s *Session) User() *domain.User {
	return s.Users.User()
}

// TaskProgress lists the session's tasks against the current user.
func (s *Session) TaskProgress() []TaskProgress {
	return s.Tasks.Tasks(s.Users.User())
}

// Sessions keeps one Session per user in memory.
type Sessions struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	group    singleflight.Group

	repos    repository.Repositories
	identity IdentityProvider
	hub      *Hub
	metrics  *metrics.Metrics
	log      *zap.Logger
	now      func() time.Time
}

func NewSessions(repos repository.Repositories, identity IdentityProvider, hub *Hub, m *metrics.Metrics, log *zap.Logger) *Sessions {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sessions{
		sessions: make(map[string]*Session),
		repos:    repos,
		identity: identity,
		hub:      hub,
		metrics:  m,
		log:      log,
		now:      time.Now,
	}
}

// Open returns the user's session, initializing it on first use. Concurrent
// opens for the same user share one initialization.
func (r *Sessions) Open(ctx context.Context, userID string) (*Session, error) {
	if s, ok := r.lookup(userID); ok {
		s.touch(r.now())
		return s, nil
	}

	v, err, _ := r.group.Do(userID, func() (any, error) {
		if s, ok := r.lookup(userID); ok {
			s.touch(r.now())
			return s, nil
		}

		log := r.log.With(zap.String("user_id", userID))
		tasks := NewTaskStore(r.repos, r.hub, r.metrics, log)
		users := NewUserStore(userID, r.repos.Users, r.identity, tasks, r.hub, r.metrics, log)

		if _, err := users.Initialize(ctx); err != nil {
			return nil, err
		}
		// Task progress is best effort; the session works without it.
		if err := tasks.Load(ctx, userID); err != nil {
			log.Warn("task progress unavailable", zap.Error(err))
		}

		opened := r.now()
		s := &Session{UserID: userID, Users: users, Tasks: tasks, OpenedAt: opened.UTC()}
		s.touch(opened)
		r.mu.Lock()
		r.sessions[userID] = s
		r.mu.Unlock()
		r.metrics.SessionOpened()
		log.Info("session opened")
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// Get returns the live session, reopening it if it was closed or the process
// restarted since the token was issued.
func (r *Sessions) Get(ctx context.Context, userID string) (*Session, error) {
	return r.Open(ctx, userID)
}

// Close drops the user's session from memory.
func (r *Sessions) Close(userID string) {
	r.mu.Lock()
	_, ok := r.sessions[userID]
	delete(r.sessions, userID)
	r.mu.Unlock()
	if ok {
		r.metrics.SessionClosed()
		r.log.Info("session closed", zap.String("user_id", userID))
	}
}

// EvictIdle closes every session not seen for longer than maxIdle and
// returns how many were closed.
func (r *Sessions) EvictIdle(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle).UnixNano()

	r.mu.Lock()
	var idle []string
	for id, s := range r.sessions {
		if s.lastSeen.Load() < cutoff {
			idle = append(idle, id)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, id := range idle {
		r.metrics.SessionClosed()
		r.log.Info("session evicted", zap.String("user_id", id))
	}
	return len(idle)
}

// RunEviction calls EvictIdle every interval until ctx is done.
func (r *Sessions) RunEviction(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.EvictIdle(maxIdle); n > 0 {
				r.log.Debug("idle sessions evicted", zap.Int("count", n), zap.Int("live", r.Len()))
			}
		}
	}
}

// Len returns the number of live sessions.
func (r *Sessions) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Sessions) lookup(userID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[userID]
	return s, ok
}
