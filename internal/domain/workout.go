package domain

import (
	"errors"
	"fmt"
	"time"
)

// WorkoutStatus tracks the lifecycle of a workout plan.
type WorkoutStatus string

const (
	WorkoutPlanned   WorkoutStatus = "planned"
	WorkoutCompleted WorkoutStatus = "completed"
	WorkoutCancelled WorkoutStatus = "cancelled"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

var ErrInvalidStatusTransition = errors.New("invalid workout status transition")

// Valid reports whether s is one of the known statuses.
func (s WorkoutStatus) Valid() bool {
	switch s {
	case WorkoutPlanned, WorkoutCompleted, WorkoutCancelled:
		return true
	}
	return false
}

// CanTransitionTo allows planned->completed and planned->cancelled only.
// Staying in the same status is not a transition and is always allowed.
func (s WorkoutStatus) CanTransitionTo(next WorkoutStatus) bool {
	if s == next {
		return true
	}
	return s == WorkoutPlanned && (next == WorkoutCompleted || next == WorkoutCancelled)
}

// WorkoutRecord is the stored form of a workout plan. Participants are user IDs.
type WorkoutRecord struct {
	ID           string        `bson:"_id" json:"id"`
	Title        string        `bson:"title" json:"title"`
	Description  string        `bson:"description,omitempty" json:"description,omitempty"` // Markdown
	Date         string        `bson:"date" json:"date"`
	Time         string        `bson:"time" json:"time"`
	Location     string        `bson:"location,omitempty" json:"location,omitempty"`
	Duration     int           `bson:"duration" json:"duration"` // Minutes
	Participants []string      `bson:"participants" json:"participants"`
	PostWorkout  string        `bson:"postWorkout,omitempty" json:"postWorkout,omitempty"`
	Status       WorkoutStatus `bson:"status" json:"status"`
	CreatedAt    time.Time     `bson:"createdAt" json:"createdAt"`
	CreatedBy    string        `bson:"createdBy" json:"createdBy"`
}

// WorkoutPlan is the in-memory form, with participants resolved to users.
type WorkoutPlan struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Description  string        `json:"description,omitempty"`
	Date         string        `json:"date"`
	Time         string        `json:"time"`
	Location     string        `json:"location,omitempty"`
	Duration     int           `json:"duration"`
	Participants []User        `json:"participants"`
	PostWorkout  string        `json:"postWorkout,omitempty"`
	Status       WorkoutStatus `json:"status"`
	CreatedAt    time.Time     `json:"createdAt"`
	CreatedBy    string        `json:"createdBy"`
}

// ParticipantIDs lists the IDs of the resolved participants in order.
func (p *WorkoutPlan) ParticipantIDs() []string {
	ids := make([]string, 0, len(p.Participants))
	for _, u := range p.Participants {
		ids = append(ids, u.ID)
	}
	return ids
}

// HasParticipant reports whether userID is already in the plan.
func (p *WorkoutPlan) HasParticipant(userID string) bool {
	for _, u := range p.Participants {
		if u.ID == userID {
			return true
		}
	}
	return false
}

// StartsAt combines Date and Time in loc.
func (p *WorkoutPlan) StartsAt(loc *time.Location) (time.Time, error) {
	return CombineDateTime(p.Date, p.Time, loc)
}

// Clone copies the plan including its participant slice.
func (p *WorkoutPlan) Clone() *WorkoutPlan {
	c := *p
	c.Participants = append([]User(nil), p.Participants...)
	return &c
}

// ToRecord converts the plan to its stored form.
func (p *WorkoutPlan) ToRecord() WorkoutRecord {
	return WorkoutRecord{
		ID:           p.ID,
		Title:        p.Title,
		Description:  p.Description,
		Date:         p.Date,
		Time:         p.Time,
		Location:     p.Location,
		Duration:     p.Duration,
		Participants: p.ParticipantIDs(),
		PostWorkout:  p.PostWorkout,
		Status:       p.Status,
		CreatedAt:    p.CreatedAt,
		CreatedBy:    p.CreatedBy,
	}
}

// ToPlan converts a stored record using already resolved participants.
// Callers drop IDs they could not resolve before calling this.
func (r WorkoutRecord) ToPlan(participants []User) *WorkoutPlan {
	if participants == nil {
		participants = []User{}
	}
	return &WorkoutPlan{
		ID:           r.ID,
		Title:        r.Title,
		Description:  r.Description,
		Date:         r.Date,
		Time:         r.Time,
		Location:     r.Location,
		Duration:     r.Duration,
		Participants: participants,
		PostWorkout:  r.PostWorkout,
		Status:       r.Status,
		CreatedAt:    r.CreatedAt,
		CreatedBy:    r.CreatedBy,
	}
}

// CombineDateTime parses "YYYY-MM-DD" and "HH:MM" into a single instant.
// An empty time means the start of the day.
func CombineDateTime(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	if clock == "" {
		clock = "00:00"
	}
	t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse workout date/time %q %q: %w", date, clock, err)
	}
	return t, nil
}

// WorkoutUpdate carries the fields to change; nil means unchanged.
type WorkoutUpdate struct {
	Title        *string        `json:"title,omitempty"`
	Description  *string        `json:"description,omitempty"`
	Date         *string        `json:"date,omitempty"`
	Time         *string        `json:"time,omitempty"`
	Location     *string        `json:"location,omitempty"`
	Duration     *int           `json:"duration,omitempty"`
	Participants []string       `json:"participants,omitempty"`
	PostWorkout  *string        `json:"postWorkout,omitempty"`
	Status       *WorkoutStatus `json:"status,omitempty"`
}

// Fields returns the changed fields keyed by their stored names.
func (u WorkoutUpdate) Fields() map[string]any {
	fields := make(map[string]any)
	if u.Title != nil {
		fields["title"] = *u.Title
	}
	if u.Description != nil {
		fields["description"] = *u.Description
	}
	if u.Date != nil {
		fields["date"] = *u.Date
	}
	if u.Time != nil {
		fields["time"] = *u.Time
	}
	if u.Location != nil {
		fields["location"] = *u.Location
	}
	if u.Duration != nil {
		fields["duration"] = *u.Duration
	}
	if u.Participants != nil {
		fields["participants"] = u.Participants
	}
	if u.PostWorkout != nil {
		fields["postWorkout"] = *u.PostWorkout
	}
	if u.Status != nil {
		fields["status"] = *u.Status
	}
	return fields
}

// Validate checks formats of the fields being set.
func (u WorkoutUpdate) Validate() error {
	if u.Title != nil && *u.Title == "" {
		return errors.New("title cannot be empty")
	}
	if u.Date != nil {
		if _, err := time.Parse(DateLayout, *u.Date); err != nil {
			return fmt.Errorf("invalid date %q", *u.Date)
		}
	}
	if u.Time != nil && *u.Time != "" {
		if _, err := time.Parse(TimeLayout, *u.Time); err != nil {
			return fmt.Errorf("invalid time %q", *u.Time)
		}
	}
	if u.Duration != nil && *u.Duration < 0 {
		return errors.New("duration cannot be negative")
	}
	if u.Status != nil && !u.Status.Valid() {
		return fmt.Errorf("invalid status %q", *u.Status)
	}
	return nil
}
