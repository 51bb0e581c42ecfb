package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Counter field keys. Tasks reference these by name in their category.
const (
	CounterWorkoutsCompleted   = "workoutsCompleted"
	CounterWorkoutsPlanned     = "workoutsPlanned"
	CounterWorkoutsWithFriends = "workoutsWithFriends"
	CounterTotalWorkouts       = "totalWorkouts"
	CounterFriendsAdded        = "friendsAdded"
)

// DefaultDisplayName is shown when the user has no name at all.
const DefaultDisplayName = "Athlete"

var ErrUnknownCounter = errors.New("unknown counter field")

// User is the profile record of a mini-app user. ID is the VK user id.
type User struct {
	ID        string `bson:"_id" json:"id"`
	FirstName string `bson:"firstName" json:"firstName"`
	LastName  string `bson:"lastName" json:"lastName"`
	Name      string `bson:"name,omitempty" json:"name,omitempty"` // Combined name if the user set one
	Avatar    string `bson:"avatar,omitempty" json:"avatar,omitempty"`
	Level     int    `bson:"level" json:"level"`
	Points    int    `bson:"points" json:"points"`

	// --- Lifetime counters ---
	WorkoutsCompleted   int `bson:"workoutsCompleted" json:"workoutsCompleted"`
	WorkoutsPlanned     int `bson:"workoutsPlanned" json:"workoutsPlanned"`
	WorkoutsWithFriends int `bson:"workoutsWithFriends" json:"workoutsWithFriends"`
	TotalWorkouts       int `bson:"totalWorkouts" json:"totalWorkouts"`
	FriendsAdded        int `bson:"friendsAdded" json:"friendsAdded"`

	// --- Physical attributes ---
	Weight    float64 `bson:"weight,omitempty" json:"weight,omitempty"`
	City      string  `bson:"city,omitempty" json:"city,omitempty"`
	BirthDate string  `bson:"birthDate,omitempty" json:"birthDate,omitempty"`
	Sex       int     `bson:"sex,omitempty" json:"sex,omitempty"`

	PersonalRecords []string `bson:"personalRecords" json:"personalRecords"`
	Gym             string   `bson:"gym,omitempty" json:"gym,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// DisplayName prefers the combined name, then first+last, then first name.
func (u *User) DisplayName() string {
	if u == nil {
		return DefaultDisplayName
	}
	if name := strings.TrimSpace(u.Name); name != "" {
		return name
	}
	first := strings.TrimSpace(u.FirstName)
	last := strings.TrimSpace(u.LastName)
	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	}
	return DefaultDisplayName
}

// IsCounter reports whether field names a user counter.
func IsCounter(field string) bool {
	switch field {
	case CounterWorkoutsCompleted, CounterWorkoutsPlanned, CounterWorkoutsWithFriends,
		CounterTotalWorkouts, CounterFriendsAdded:
		return true
	}
	return false
}

// Counter returns the value of the named counter.
func (u *User) Counter(field string) (int, error) {
	p, err := u.counterRef(field)
	if err != nil {
		return 0, err
	}
	return *p, nil
}

// AddToCounter increments the named counter and returns the new value.
func (u *User) AddToCounter(field string, by int) (int, error) {
	p, err := u.counterRef(field)
	if err != nil {
		return 0, err
	}
	*p += by
	return *p, nil
}

func (u *User) counterRef(field string) (*int, error) {
	switch field {
	case CounterWorkoutsCompleted:
		return &u.WorkoutsCompleted, nil
	case CounterWorkoutsPlanned:
		return &u.WorkoutsPlanned, nil
	case CounterWorkoutsWithFriends:
		return &u.WorkoutsWithFriends, nil
	case CounterTotalWorkouts:
		return &u.TotalWorkouts, nil
	case CounterFriendsAdded:
		return &u.FriendsAdded, nil
	}
	return nil, ErrUnknownCounter
}

// Clone returns a copy that shares no slices with u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.PersonalRecords = append([]string(nil), u.PersonalRecords...)
	return &c
}

// Identity is what the host platform tells us about the current user.
type Identity struct {
	ID        string
	FirstName string
	LastName  string
	Avatar    string
	City      string
	BirthDate string
	Sex       int
}

// NewUserFromIdentity builds the default record for a first login.
func NewUserFromIdentity(id Identity) *User {
	return &User{
		ID:              id.ID,
		FirstName:       id.FirstName,
		LastName:        id.LastName,
		Avatar:          id.Avatar,
		City:            id.City,
		BirthDate:       id.BirthDate,
		Sex:             id.Sex,
		Level:           1,
		PersonalRecords: []string{},
	}
}

// ProfileUpdate carries user-editable profile fields; nil means unchanged.
type ProfileUpdate struct {
	Name            *string  `json:"name,omitempty"`
	Weight          *float64 `json:"weight,omitempty"`
	City            *string  `json:"city,omitempty"`
	BirthDate       *string  `json:"birthDate,omitempty"`
	Gym             *string  `json:"gym,omitempty"`
	PersonalRecords []string `json:"personalRecords,omitempty"`
	Avatar          *string  `json:"avatar,omitempty"`
}

// Validate checks the formats of the fields being set.
func (p ProfileUpdate) Validate() error {
	if p.Weight != nil && *p.Weight < 0 {
		return errors.New("weight cannot be negative")
	}
	if p.BirthDate != nil && *p.BirthDate != "" {
		if _, err := time.Parse(DateLayout, *p.BirthDate); err != nil {
			return fmt.Errorf("invalid birth date %q", *p.BirthDate)
		}
	}
	return nil
}

// Fields returns the changed fields keyed by their stored names.
func (p ProfileUpdate) Fields() map[string]any {
	fields := make(map[string]any)
	if p.Name != nil {
		fields["name"] = *p.Name
	}
	if p.Weight != nil {
		fields["weight"] = *p.Weight
	}
	if p.City != nil {
		fields["city"] = *p.City
	}
	if p.BirthDate != nil {
		fields["birthDate"] = *p.BirthDate
	}
	if p.Gym != nil {
		fields["gym"] = *p.Gym
	}
	if p.PersonalRecords != nil {
		fields["personalRecords"] = p.PersonalRecords
	}
	if p.Avatar != nil {
		fields["avatar"] = *p.Avatar
	}
	return fields
}

// Apply copies the set fields onto u.
func (p ProfileUpdate) Apply(u *User) {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Weight != nil {
		u.Weight = *p.Weight
	}
	if p.City != nil {
		u.City = *p.City
	}
	if p.BirthDate != nil {
		u.BirthDate = *p.BirthDate
	}
	if p.Gym != nil {
		u.Gym = *p.Gym
	}
	if p.PersonalRecords != nil {
		u.PersonalRecords = append([]string(nil), p.PersonalRecords...)
	}
	if p.Avatar != nil {
		u.Avatar = *p.Avatar
	}
}
