package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"trainsync/internal/domain"
	"trainsync/internal/metrics"
	"trainsync/internal/repository"
)

// IdentityProvider returns what the host platform knows about a user.
type IdentityProvider interface {
	FetchIdentity(ctx context.Context, userID string) (*domain.Identity, error)
}

// IdentityFunc adapts a function to IdentityProvider.
type IdentityFunc func(ctx context.Context, userID string) (*domain.Identity, error)

func (f IdentityFunc) FetchIdentity(ctx context.Context, userID string) (*domain.Identity, error) {
	return f(ctx, userID)
}

// BareIdentity knows nothing but the user id. Used when no VK service token is configured.
var BareIdentity = IdentityFunc(func(_ context.Context, userID string) (*domain.Identity, error) {
	return &domain.Identity{ID: userID}, nil
})

// UserStore holds the current user of one session.
type UserStore struct {
	mu   sync.Mutex
	uid  string
	user *domain.User

	users    repository.UserRepository
	identity IdentityProvider
	tasks    *TaskStore
	hub      *Hub
	metrics  *metrics.Metrics
	log      *zap.Logger
}

// NewUserStore creates a store for userID. tasks may be nil when task
// tracking is not wanted.
func NewUserStore(userID string, users repository.UserRepository, identity IdentityProvider, tasks *TaskStore, hub *Hub, m *metrics.Metrics, log *zap.Logger) *UserStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserStore{
		uid:      userID,
		users:    users,
		identity: identity,
		tasks:    tasks,
		hub:      hub,
		metrics:  m,
		log:      log.With(zap.String("user_id", userID)),
	}
}

// Initialize loads the user for the host identity, creating a default record
// on first launch. Later calls return the already loaded user.
func (s *UserStore) Initialize(ctx context.Context) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user != nil {
		return s.user.Clone(), nil
	}

	ident, err := s.identity.FetchIdentity(ctx, s.uid)
	if err != nil {
		s.log.Error("failed to fetch identity", zap.Error(err))
		s.metrics.SessionInitialized("failed")
		return nil, fmt.Errorf("fetch identity: %w", err)
	}
	if ident.ID == "" {
		ident.ID = s.uid
	}

	outcome := "found"
	user, err := s.users.GetByID(ctx, ident.ID)
	if errors.Is(err, repository.ErrNotFound) {
		outcome = "created"
		user, err = s.create(ctx, ident)
	}
	if err != nil {
		s.log.Error("failed to initialize user", zap.Error(err))
		s.metrics.SessionInitialized("failed")
		return nil, fmt.Errorf("initialize user %s: %w", ident.ID, err)
	}

	s.user = user
	s.metrics.SessionInitialized(outcome)
	s.log.Info("user initialized", zap.String("outcome", outcome))

	snapshot := s.user.Clone()
	s.hub.Publish(Event{Type: EventUserUpdated, UserID: snapshot.ID, Data: snapshot})
	return snapshot.Clone(), nil
}

func (s *UserStore) create(ctx context.Context, ident *domain.Identity) (*domain.User, error) {
	user := domain.NewUserFromIdentity(*ident)
	err := s.users.Create(ctx, user)
	if errors.Is(err, repository.ErrAlreadyExists) {
		// Another instance created it between our lookup and insert.
		return s.users.GetByID(ctx, ident.ID)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// User returns a copy of the current user, or nil before Initialize succeeded.
func (s *UserStore) User() *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user.Clone()
}

// DisplayName returns the name to show for the current user.
func (s *UserStore) DisplayName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user.DisplayName()
}

// UpdateStat adds incrementBy (at least 1) to a counter. The in-memory user
// changes first, task completion is evaluated against that snapshot, then the
// increment is written through. A failed write is logged and returned but the
// in-memory change stays.
func (s *UserStore) UpdateStat(ctx context.Context, field string, incrementBy int) (*domain.User, error) {
	if incrementBy <= 0 {
		incrementBy = 1
	}
	if !domain.IsCounter(field) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownCounter, field)
	}

	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return nil, ErrNotInitialized
	}
	if _, err := s.user.AddToCounter(field, incrementBy); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	snapshot := s.user.Clone()
	s.mu.Unlock()

	s.metrics.StatUpdated(field, incrementBy)
	s.hub.Publish(Event{Type: EventUserUpdated, UserID: snapshot.ID, Data: snapshot})

	var errs []error
	if s.tasks != nil {
		reward, err := s.tasks.CheckAndUpdateAfterUserAction(ctx, snapshot)
		if err != nil {
			errs = append(errs, err)
		}
		if reward > 0 {
			if _, err := s.AwardPoints(ctx, reward); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if err := s.users.Increment(ctx, snapshot.ID, field, incrementBy); err != nil {
		s.log.Error("failed to persist stat", zap.String("field", field), zap.Int("by", incrementBy), zap.Error(err))
		s.metrics.RemoteWriteFailed(collectionUsers)
		errs = append(errs, fmt.Errorf("persist %s: %w", field, err))
	}
	return s.User(), errors.Join(errs...)
}

// AwardPoints adds amount to the user's score.
func (s *UserStore) AwardPoints(ctx context.Context, amount int) (*domain.User, error) {
	if amount <= 0 {
		return s.User(), nil
	}

	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return nil, ErrNotInitialized
	}
	s.user.Points += amount
	snapshot := s.user.Clone()
	s.mu.Unlock()

	s.hub.Publish(Event{Type: EventUserUpdated, UserID: snapshot.ID, Data: snapshot})

	if err := s.users.Increment(ctx, snapshot.ID, "points", amount); err != nil {
		s.log.Error("failed to persist points", zap.Int("amount", amount), zap.Error(err))
		s.metrics.RemoteWriteFailed(collectionUsers)
		return snapshot, fmt.Errorf("persist points: %w", err)
	}
	return snapshot, nil
}

// UpdateProfile applies a partial profile update locally and writes it through.
func (s *UserStore) UpdateProfile(ctx context.Context, upd domain.ProfileUpdate) (*domain.User, error) {
	if err := upd.Validate(); err != nil {
		return nil, err
	}
	fields := upd.Fields()

	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return nil, ErrNotInitialized
	}
	if len(fields) == 0 {
		defer s.mu.Unlock()
		return s.user.Clone(), nil
	}
	upd.Apply(s.user)
	snapshot := s.user.Clone()
	s.mu.Unlock()

	s.hub.Publish(Event{Type: EventUserUpdated, UserID: snapshot.ID, Data: snapshot})

	if _, err := s.users.Update(ctx, snapshot.ID, fields); err != nil {
		s.log.Error("failed to persist profile", zap.Error(err))
		s.metrics.RemoteWriteFailed(collectionUsers)
		return snapshot, fmt.Errorf("persist profile: %w", err)
	}
	return snapshot, nil
}

// Refresh replaces the in-memory user with the stored record.
func (s *UserStore) Refresh(ctx context.Context) (*domain.User, error) {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return nil, ErrNotInitialized
	}
	id := s.user.ID
	s.mu.Unlock()

	fresh, err := s.users.GetByID(ctx, id)
	if err != nil {
		s.log.Error("failed to refresh user", zap.Error(err))
		return nil, fmt.Errorf("refresh user %s: %w", id, err)
	}

	s.mu.Lock()
	s.user = fresh
	snapshot := s.user.Clone()
	s.mu.Unlock()

	s.hub.Publish(Event{Type: EventUserUpdated, UserID: snapshot.ID, Data: snapshot})
	return snapshot, nil
}
