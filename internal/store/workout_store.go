package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"trainsync/internal/domain"
	"trainsync/internal/metrics"
	"trainsync/internal/repository"
)

// Maximum concurrent participant lookups per fetch.
const resolveConcurrency = 8

// UserLookup resolves participant IDs to users.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// WorkoutStore is the workout collection shared by all sessions. Besides the
// main collection it caches a "today" view and one calendar day.
type WorkoutStore struct {
	mu           sync.RWMutex
	all          []*domain.WorkoutPlan
	today        []*domain.WorkoutPlan
	todayDate    string
	calendar     []*domain.WorkoutPlan
	calendarDate string

	// joinMu serializes read-modify-write of participant lists.
	joinMu sync.Mutex

	workouts repository.WorkoutRepository
	users    UserLookup
	loc      *time.Location
	hub      *Hub
	metrics  *metrics.Metrics
	log      *zap.Logger
	now      func() time.Time
}

func NewWorkoutStore(workouts repository.WorkoutRepository, users UserLookup, loc *time.Location, hub *Hub, m *metrics.Metrics, log *zap.Logger) *WorkoutStore {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WorkoutStore{
		all:      []*domain.WorkoutPlan{},
		today:    []*domain.WorkoutPlan{},
		calendar: []*domain.WorkoutPlan{},
		workouts: workouts,
		users:    users,
		loc:      loc,
		hub:      hub,
		metrics:  m,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Location is the time zone workout dates and times are interpreted in.
func (s *WorkoutStore) Location() *time.Location {
	return s.loc
}

// FetchAll replaces the main collection with every stored workout. Participants
// that cannot be resolved are dropped from their workout; the workout stays.
// On a read failure the collection is emptied and the error returned.
func (s *WorkoutStore) FetchAll(ctx context.Context) ([]domain.WorkoutPlan, error) {
	plans, err := s.fetch(ctx, "all", repository.ListQuery{})
	s.mu.Lock()
	s.all = plans
	s.mu.Unlock()
	return copyPlans(plans), err
}

// FetchToday loads the workouts scheduled for the calendar day of now.
func (s *WorkoutStore) FetchToday(ctx context.Context, now time.Time) ([]domain.WorkoutPlan, error) {
	date := now.In(s.loc).Format(domain.DateLayout)
	plans, err := s.fetch(ctx, "today", repository.ListQuery{Filter: repository.Eq("date", date), Sort: "time"})
	s.mu.Lock()
	s.today, s.todayDate = plans, date
	s.mu.Unlock()
	return copyPlans(plans), err
}

// FetchCalendar loads the workouts of one day ("YYYY-MM-DD").
func (s *WorkoutStore) FetchCalendar(ctx context.Context, date string) ([]domain.WorkoutPlan, error) {
	if _, err := time.Parse(domain.DateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: date %q", ErrInvalidWorkout, date)
	}
	plans, err := s.fetch(ctx, "calendar", repository.ListQuery{Filter: repository.Eq("date", date), Sort: "time"})
	s.mu.Lock()
	s.calendar, s.calendarDate = plans, date
	s.mu.Unlock()
	return copyPlans(plans), err
}

// FetchByCreator queries the workouts created by userID, optionally narrowed
// to one status, ordered by date and time. The cached views are left alone.
func (s *WorkoutStore) FetchByCreator(ctx context.Context, userID string, status domain.WorkoutStatus) ([]domain.WorkoutPlan, error) {
	filter := repository.Eq("createdBy", userID)
	if status != "" {
		filter = repository.And(filter, repository.Eq("status", string(status)))
	}
	plans, err := s.fetch(ctx, "creator", repository.ListQuery{Filter: filter, Sort: "date,time"})
	return copyPlans(plans), err
}

// FetchUpcoming queries planned workouts and keeps those starting strictly
// after now, soonest first. The cached views are left alone.
func (s *WorkoutStore) FetchUpcoming(ctx context.Context, now time.Time) ([]domain.WorkoutPlan, error) {
	plans, err := s.fetch(ctx, "upcoming", repository.ListQuery{Filter: repository.Eq("status", string(domain.WorkoutPlanned))})
	if err != nil {
		return []domain.WorkoutPlan{}, err
	}
	return upcomingOf(plans, now, s.loc), nil
}

func (s *WorkoutStore) fetch(ctx context.Context, view string, q repository.ListQuery) ([]*domain.WorkoutPlan, error) {
	defer s.metrics.ObserveFetch(view, time.Now())

	records, err := s.workouts.List(ctx, q)
	if err != nil {
		s.log.Error("failed to fetch workouts", zap.String("view", view), zap.Error(err))
		return []*domain.WorkoutPlan{}, fmt.Errorf("fetch %s workouts: %w", view, err)
	}
	resolved, err := s.resolveParticipants(ctx, records...)
	if err != nil {
		return []*domain.WorkoutPlan{}, err
	}

	plans := make([]*domain.WorkoutPlan, 0, len(records))
	for _, rec := range records {
		plans = append(plans, toPlan(rec, resolved))
	}
	return plans, nil
}

// resolveParticipants looks up every distinct participant ID concurrently.
// IDs that fail to resolve are absent from the result. Only context
// cancellation fails the call.
func (s *WorkoutStore) resolveParticipants(ctx context.Context, records ...domain.WorkoutRecord) (map[string]domain.User, error) {
	seen := make(map[string]bool)
	var ids []string
	for _, rec := range records {
		for _, id := range rec.Participants {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	var mu sync.Mutex
	resolved := make(map[string]domain.User, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			u, err := s.users.GetByID(gctx, id)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				s.log.Warn("dropping unresolvable participant", zap.String("participant", id), zap.Error(err))
				return nil
			}
			mu.Lock()
			resolved[id] = *u
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resolve participants: %w", err)
	}
	return resolved, nil
}

func toPlan(rec domain.WorkoutRecord, resolved map[string]domain.User) *domain.WorkoutPlan {
	participants := make([]domain.User, 0, len(rec.Participants))
	for _, id := range rec.Participants {
		if u, ok := resolved[id]; ok {
			participants = append(participants, u)
		}
	}
	return rec.ToPlan(participants)
}

// Create stores a new workout. Status defaults to planned, participants to
// none, and the result is appended to the main collection.
func (s *WorkoutStore) Create(ctx context.Context, plan domain.WorkoutPlan) (*domain.WorkoutPlan, error) {
	if err := validateNewPlan(&plan); err != nil {
		return nil, err
	}
	if plan.Status == "" {
		plan.Status = domain.WorkoutPlanned
	}
	if plan.Participants == nil {
		plan.Participants = []domain.User{}
	}
	plan.ID = ""
	plan.CreatedAt = s.now()

	rec := plan.ToRecord()
	created, err := s.workouts.Create(ctx, &rec)
	if err != nil {
		s.log.Error("failed to create workout", zap.String("title", plan.Title), zap.Error(err))
		s.metrics.RemoteWriteFailed(collectionWorkouts)
		return nil, fmt.Errorf("create workout: %w", err)
	}

	resolved, err := s.resolveParticipants(ctx, *created)
	if err != nil {
		return nil, err
	}
	stored := toPlan(*created, resolved)

	s.mu.Lock()
	s.all = append(s.all, stored)
	s.mu.Unlock()

	s.metrics.WorkoutCreated()
	out := stored.Clone()
	s.hub.Publish(Event{Type: EventWorkoutCreated, Data: out.Clone()})
	return out, nil
}

func validateNewPlan(p *domain.WorkoutPlan) error {
	p.Title = strings.TrimSpace(p.Title)
	if p.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidWorkout)
	}
	if p.CreatedBy == "" {
		return fmt.Errorf("%w: creator is required", ErrInvalidWorkout)
	}
	if _, err := time.Parse(domain.DateLayout, p.Date); err != nil {
		return fmt.Errorf("%w: date %q", ErrInvalidWorkout, p.Date)
	}
	if p.Time != "" {
		if _, err := time.Parse(domain.TimeLayout, p.Time); err != nil {
			return fmt.Errorf("%w: time %q", ErrInvalidWorkout, p.Time)
		}
	}
	if p.Duration < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidWorkout)
	}
	if p.Status != "" && p.Status != domain.WorkoutPlanned {
		return fmt.Errorf("%w: new workouts must be planned", ErrInvalidWorkout)
	}
	return nil
}

// Update writes the changed fields and replaces the workout in every cached
// view that holds it. Workouts missing from a view are not added to it.
func (s *WorkoutStore) Update(ctx context.Context, id string, upd domain.WorkoutUpdate) (*domain.WorkoutPlan, error) {
	if err := upd.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWorkout, err)
	}
	fields := upd.Fields()
	if len(fields) == 0 {
		return s.Load(ctx, id)
	}

	var (
		rec *domain.WorkoutRecord
		err error
	)
	if upd.Status != nil {
		current, loadErr := s.Load(ctx, id)
		if loadErr != nil {
			return nil, loadErr
		}
		if !current.Status.CanTransitionTo(*upd.Status) {
			return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStatusTransition, current.Status, *upd.Status)
		}
		// The status write only lands if nobody moved the workout meanwhile.
		rec, err = s.workouts.UpdateIfStatus(ctx, id, current.Status, fields)
	} else {
		rec, err = s.workouts.Update(ctx, id, fields)
	}
	if err != nil {
		return nil, s.writeError(id, err)
	}
	return s.applyUpdated(ctx, rec)
}

// Transition moves a planned workout to next in one conditional write. Of any
// number of concurrent callers exactly one succeeds; the rest, and any call on
// a workout that is no longer planned, get ErrInvalidStatusTransition.
func (s *WorkoutStore) Transition(ctx context.Context, id string, next domain.WorkoutStatus) (*domain.WorkoutPlan, error) {
	if next == domain.WorkoutPlanned || !domain.WorkoutPlanned.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStatusTransition, domain.WorkoutPlanned, next)
	}
	rec, err := s.workouts.UpdateIfStatus(ctx, id, domain.WorkoutPlanned, map[string]any{"status": next})
	if err != nil {
		return nil, s.writeError(id, err)
	}
	s.log.Info("workout status changed", zap.String("workout_id", id), zap.String("status", string(next)))
	return s.applyUpdated(ctx, rec)
}

func (s *WorkoutStore) writeError(id string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrWorkoutNotFound, id)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: workout %s is no longer planned", domain.ErrInvalidStatusTransition, id)
	}
	s.log.Error("failed to update workout", zap.String("workout_id", id), zap.Error(err))
	s.metrics.RemoteWriteFailed(collectionWorkouts)
	return fmt.Errorf("update workout %s: %w", id, err)
}

// applyUpdated resolves the stored record and swaps it into every cached view
// that holds it.
func (s *WorkoutStore) applyUpdated(ctx context.Context, rec *domain.WorkoutRecord) (*domain.WorkoutPlan, error) {
	resolved, err := s.resolveParticipants(ctx, *rec)
	if err != nil {
		return nil, err
	}
	updated := toPlan(*rec, resolved)

	s.mu.Lock()
	replaceByID(s.all, updated)
	replaceByID(s.today, updated)
	replaceByID(s.calendar, updated)
	s.mu.Unlock()

	out := updated.Clone()
	s.hub.Publish(Event{Type: EventWorkoutUpdated, Data: out.Clone()})
	return out, nil
}

func replaceByID(view []*domain.WorkoutPlan, p *domain.WorkoutPlan) {
	for i, existing := range view {
		if existing.ID == p.ID {
			view[i] = p.Clone()
		}
	}
}

// Load returns the cached workout, or reads it from the record store.
func (s *WorkoutStore) Load(ctx context.Context, id string) (*domain.WorkoutPlan, error) {
	if p, ok := s.Get(id); ok {
		return p, nil
	}
	rec, err := s.workouts.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrWorkoutNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get workout %s: %w", id, err)
	}
	resolved, err := s.resolveParticipants(ctx, *rec)
	if err != nil {
		return nil, err
	}
	return toPlan(*rec, resolved), nil
}

// Join adds user to the workout's participants. joined is false when the
// user already took part.
func (s *WorkoutStore) Join(ctx context.Context, id string, user *domain.User) (plan *domain.WorkoutPlan, joined bool, err error) {
	if user == nil || user.ID == "" {
		return nil, false, ErrNotInitialized
	}

	s.joinMu.Lock()
	defer s.joinMu.Unlock()

	rec, err := s.workouts.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, false, fmt.Errorf("%w: %s", ErrWorkoutNotFound, id)
	}
	if err != nil {
		return nil, false, fmt.Errorf("get workout %s: %w", id, err)
	}
	if rec.Status != domain.WorkoutPlanned {
		return nil, false, fmt.Errorf("%w: workout is %s", ErrInvalidWorkout, rec.Status)
	}
	for _, p := range rec.Participants {
		if p == user.ID {
			plan, err = s.Load(ctx, id)
			return plan, false, err
		}
	}

	participants := append(append([]string{}, rec.Participants...), user.ID)
	plan, err = s.Update(ctx, id, domain.WorkoutUpdate{Participants: participants})
	if err != nil {
		return nil, false, err
	}
	return plan, true, nil
}

// Delete removes the workout remotely and from every view. Deleting a
// workout that no longer exists succeeds.
func (s *WorkoutStore) Delete(ctx context.Context, id string) error {
	err := s.workouts.Delete(ctx, id)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.log.Error("failed to delete workout", zap.String("workout_id", id), zap.Error(err))
		s.metrics.RemoteWriteFailed(collectionWorkouts)
		return fmt.Errorf("delete workout %s: %w", id, err)
	}
	gone := err == nil

	s.mu.Lock()
	s.all = removeByID(s.all, id)
	s.today = removeByID(s.today, id)
	s.calendar = removeByID(s.calendar, id)
	s.mu.Unlock()

	if gone {
		s.metrics.WorkoutDeleted()
		s.hub.Publish(Event{Type: EventWorkoutDeleted, Data: map[string]string{"id": id}})
	}
	return nil
}

func removeByID(view []*domain.WorkoutPlan, id string) []*domain.WorkoutPlan {
	out := view[:0]
	for _, p := range view {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}

// --- Derived views over the main collection ---

// All returns the main collection.
func (s *WorkoutStore) All() []domain.WorkoutPlan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyPlans(s.all)
}

// Today returns the cached today view and the day it was loaded for.
func (s *WorkoutStore) Today() ([]domain.WorkoutPlan, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyPlans(s.today), s.todayDate
}

// Calendar returns the cached calendar view and its day.
func (s *WorkoutStore) Calendar() ([]domain.WorkoutPlan, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyPlans(s.calendar), s.calendarDate
}

// Get looks the workout up in the main collection.
func (s *WorkoutStore) Get(id string) (*domain.WorkoutPlan, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.all {
		if p.ID == id {
			return p.Clone(), true
		}
	}
	return nil, false
}

// Upcoming lists planned workouts starting strictly after now, soonest first.
func (s *WorkoutStore) Upcoming(now time.Time) []domain.WorkoutPlan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return upcomingOf(s.all, now, s.loc)
}

func upcomingOf(plans []*domain.WorkoutPlan, now time.Time, loc *time.Location) []domain.WorkoutPlan {
	type dated struct {
		plan  domain.WorkoutPlan
		start time.Time
	}
	var upcoming []dated
	for _, p := range plans {
		if p.Status != domain.WorkoutPlanned {
			continue
		}
		start, err := p.StartsAt(loc)
		if err != nil || !start.After(now) {
			continue
		}
		upcoming = append(upcoming, dated{plan: *p.Clone(), start: start})
	}

	sort.SliceStable(upcoming, func(i, j int) bool { return upcoming[i].start.Before(upcoming[j].start) })
	out := make([]domain.WorkoutPlan, 0, len(upcoming))
	for _, d := range upcoming {
		out = append(out, d.plan)
	}
	return out
}

// CompletedByCreator lists completed workouts created by userID.
func (s *WorkoutStore) CompletedByCreator(userID string) []domain.WorkoutPlan {
	return s.filter(func(p *domain.WorkoutPlan) bool {
		return p.CreatedBy == userID && p.Status == domain.WorkoutCompleted
	})
}

// PlannedByCreator lists planned workouts created by userID.
func (s *WorkoutStore) PlannedByCreator(userID string) []domain.WorkoutPlan {
	return s.filter(func(p *domain.WorkoutPlan) bool {
		return p.CreatedBy == userID && p.Status == domain.WorkoutPlanned
	})
}

// ByDate lists workouts on the given day.
func (s *WorkoutStore) ByDate(date string) []domain.WorkoutPlan {
	return s.filter(func(p *domain.WorkoutPlan) bool { return p.Date == date })
}

func (s *WorkoutStore) filter(keep func(*domain.WorkoutPlan) bool) []domain.WorkoutPlan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.WorkoutPlan{}
	for _, p := range s.all {
		if keep(p) {
			out = append(out, *p.Clone())
		}
	}
	return out
}

func copyPlans(plans []*domain.WorkoutPlan) []domain.WorkoutPlan {
	out := make([]domain.WorkoutPlan, 0, len(plans))
	for _, p := range plans {
		out = append(out, *p.Clone())
	}
	return out
}
