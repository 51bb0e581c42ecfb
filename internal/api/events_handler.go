package api

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"trainsync/internal/domain"
	"trainsync/internal/store"
)

const (
	eventBuffer       = 32
	keepaliveInterval = 25 * time.Second
)

// EventsHandler streams store changes to the mini-app over server-sent events.
type EventsHandler struct {
	hub       *store.Hub
	keepalive time.Duration
}

func NewEventsHandler(hub *store.Hub) *EventsHandler {
	return &EventsHandler{hub: hub, keepalive: keepaliveInterval}
}

// Stream godoc
// @Summary Live updates
// @Description Server-sent events for the caller's user and task changes and all workout changes.
// @Tags Events
// @Produce text/event-stream
// @Security BearerAuth
// @Param token query string false "Token for clients that cannot set headers"
// @Success 200 {string} string "event stream"
// @Router /events [get]
func (h *EventsHandler) Stream(c *gin.Context) {
	session, ok := getSession(c)
	if !ok {
		return
	}
	// Subscribe before the first write so no change between the two is lost.
	events, cancel := h.hub.Subscribe(eventBuffer)
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	c.SSEvent("ready", newUserResponse(orEmpty(session)))
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			c.SSEvent("ping", time.Now().UTC().Unix())
			return true
		case e, open := <-events:
			if !open {
				return false
			}
			if e.UserID != "" && e.UserID != session.UserID {
				return true
			}
			c.SSEvent(string(e.Type), e)
			return true
		}
	})
}

func orEmpty(session *store.Session) *domain.User {
	if u := session.User(); u != nil {
		return u
	}
	return &domain.User{ID: session.UserID}
}
