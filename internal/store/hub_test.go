package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_PublishSubscribe(t *testing.T) {
	hub := NewHub(nil)
	a, cancelA := hub.Subscribe(4)
	b, cancelB := hub.Subscribe(4)
	defer cancelB()
	require.Equal(t, 2, hub.Subscribers())

	hub.Publish(Event{Type: EventWorkoutCreated, Data: "x"})
	assert.Equal(t, EventWorkoutCreated, (<-a).Type)
	assert.Equal(t, EventWorkoutCreated, (<-b).Type)

	cancelA()
	cancelA()
	_, open := <-a
	assert.False(t, open)
	assert.Equal(t, 1, hub.Subscribers())
}

func TestHub_SlowSubscriberDropsEvents(t *testing.T) {
	hub := NewHub(nil)
	ch, cancel := hub.Subscribe(1)
	defer cancel()

	hub.Publish(Event{Type: EventUserUpdated, UserID: "1"})
	hub.Publish(Event{Type: EventUserUpdated, UserID: "2"})

	got := <-ch
	assert.Equal(t, "1", got.UserID)
	select {
	case e := <-ch:
		t.Fatalf("unexpected event %+v", e)
	default:
	}
}

func TestHub_NilIsNoop(t *testing.T) {
	var hub *Hub
	assert.NotPanics(t, func() { hub.Publish(Event{Type: EventTaskCompleted}) })
}
