// Package store holds the observable domain state of the service: the current
// user of each session, its task progress and the shared workout collection.
// Stores mutate their in-memory state first, publish an event, then write
// through to the record store.
package store

import "errors"

var (
	// ErrNotInitialized is returned while a session has no user loaded.
	ErrNotInitialized = errors.New("session is not ready")
	// ErrWorkoutNotFound is returned when a workout is neither cached nor stored.
	ErrWorkoutNotFound = errors.New("workout not found")
	ErrInvalidWorkout  = errors.New("invalid workout")
)

// Metric labels for remote write failures.
const (
	collectionUsers     = "users"
	collectionWorkouts  = "workouts"
	collectionUserTasks = "userTasks"
	collectionPoints    = "points"
)
