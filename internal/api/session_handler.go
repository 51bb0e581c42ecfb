package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"trainsync/internal/domain"
	"trainsync/internal/service"
)

// SessionHandler exchanges launch parameters for an API token.
type SessionHandler struct {
	sessionService service.SessionService
}

func NewSessionHandler(sessionService service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// --- Request/Response Structs ---

type LaunchRequest struct {
	// LaunchParams is the query string the mini-app was opened with.
	LaunchParams string `json:"launchParams"`
}

// UserResponse is the user record plus the name to display.
type UserResponse struct {
	domain.User
	DisplayName string `json:"displayName"`
}

func newUserResponse(u *domain.User) UserResponse {
	return UserResponse{User: *u, DisplayName: u.DisplayName()}
}

type LaunchResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

// Launch godoc
// @Summary Start a session from VK launch parameters
// @Description Verifies the signed launch query, loads or creates the user and returns a bearer token.
// @Tags Session
// @Accept json
// @Produce json
// @Param launch body LaunchRequest false "Launch parameters; the request query string is used when empty"
// @Success 200 {object} LaunchResponse
// @Failure 401 {object} gin.H "Invalid launch parameters"
// @Failure 502 {object} gin.H "VK API unavailable"
// @Router /session [post]
func (h *SessionHandler) Launch(c *gin.Context) {
	var req LaunchRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
			return
		}
	}
	raw := strings.TrimSpace(req.LaunchParams)
	if raw == "" {
		raw = c.Request.URL.RawQuery
	}
	if raw == "" {
		abortWithError(c, http.StatusBadRequest, "launch parameters are required")
		return
	}

	token, session, err := h.sessionService.Launch(c.Request.Context(), raw)
	if err != nil {
		respondError(c, err)
		return
	}
	user := session.User()
	if user == nil {
		abortWithError(c, http.StatusServiceUnavailable, "session is not ready")
		return
	}
	c.JSON(http.StatusOK, LaunchResponse{Token: token, User: newUserResponse(user)})
}
