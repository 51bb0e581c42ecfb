package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"trainsync/internal/domain"
	"trainsync/internal/service"
	"trainsync/internal/store"
)

// UserHandler serves the caller's profile, stats and tasks.
type UserHandler struct {
	userService   service.UserService
	avatarService service.AvatarService // nil when object storage is not configured
}

func NewUserHandler(userService service.UserService, avatarService service.AvatarService) *UserHandler {
	return &UserHandler{userService: userService, avatarService: avatarService}
}

// --- DTOs ---

type StatRequest struct {
	IncrementBy int `json:"incrementBy"`
}

type AvatarUploadRequest struct {
	ContentType string `json:"contentType" binding:"required"`
}

type AvatarConfirmRequest struct {
	ObjectKey string `json:"objectKey" binding:"required"`
}

// --- Handler Methods ---

// GetMe godoc
// @Summary Current user
// @Tags Me
// @Produce json
// @Security BearerAuth
// @Param refresh query bool false "Re-read the stored record first"
// @Success 200 {object} UserResponse
// @Failure 503 {object} gin.H "Session is not ready"
// @Router /me [get]
func (h *UserHandler) GetMe(c *gin.Context) {
	session, ok := getSession(c)
	if !ok {
		return
	}
	user := session.User()
	if refresh, _ := strconv.ParseBool(c.Query("refresh")); refresh {
		var err error
		if user, err = session.Users.Refresh(c.Request.Context()); err != nil {
			respondError(c, err)
			return
		}
	}
	if user == nil {
		respondError(c, store.ErrNotInitialized)
		return
	}
	c.JSON(http.StatusOK, newUserResponse(user))
}

// UpdateMe godoc
// @Summary Update profile fields
// @Tags Me
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param profile body domain.ProfileUpdate true "Fields to change"
// @Success 200 {object} UserResponse
// @Failure 400 {object} gin.H "Invalid input"
// @Router /me [patch]
func (h *UserHandler) UpdateMe(c *gin.Context) {
	session, ok := getSession(c)
	if !ok {
		return
	}
	var req domain.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	// Avatars are set through the upload flow only.
	req.Avatar = nil
	if err := req.Validate(); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	user, err := session.Users.UpdateProfile(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserResponse(user))
}

// UpdateStat godoc
// @Summary Increment a user counter
// @Description Increments the counter, completes any tasks it satisfies and returns the updated user.
// @Tags Me
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param field path string true "Counter name, e.g. workoutsCompleted"
// @Param body body StatRequest false "Increment, defaults to 1"
// @Success 200 {object} UserResponse
// @Failure 400 {object} gin.H "Unknown counter"
// @Router /me/stats/{field} [post]
func (h *UserHandler) UpdateStat(c *gin.Context) {
	session, ok := getSession(c)
	if !ok {
		return
	}
	var req StatRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
			return
		}
	}

	user, err := session.Users.UpdateStat(c.Request.Context(), c.Param("field"), req.IncrementBy)
	if err != nil && user == nil {
		respondError(c, err)
		return
	}
	// A failed write-through keeps the optimistic value; it is logged by the store.
	c.JSON(http.StatusOK, newUserResponse(user))
}

// GetTasks godoc
// @Summary Task catalog with the caller's progress
// @Tags Me
// @Produce json
// @Security BearerAuth
// @Success 200 {array} store.TaskProgress
// @Router /tasks [get]
func (h *UserHandler) GetTasks(c *gin.Context) {
	session, ok := getSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, session.TaskProgress())
}

// GetLeaderboard godoc
// @Summary Users ranked by points
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Number of users, default 20, max 100"
// @Success 200 {array} UserResponse
// @Router /leaderboard [get]
func (h *UserHandler) GetLeaderboard(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	users, err := h.userService.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	resp := make([]UserResponse, 0, len(users))
	for i := range users {
		resp = append(resp, newUserResponse(&users[i]))
	}
	c.JSON(http.StatusOK, resp)
}

// RequestAvatarUpload godoc
// @Summary Get a presigned URL for uploading an avatar
// @Tags Me
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body AvatarUploadRequest true "Image content type"
// @Success 200 {object} service.UploadTicket
// @Failure 400 {object} gin.H "Unsupported content type"
// @Failure 503 {object} gin.H "Uploads not configured"
// @Router /me/avatar/upload-url [post]
func (h *UserHandler) RequestAvatarUpload(c *gin.Context) {
	if h.avatarService == nil {
		abortWithError(c, http.StatusServiceUnavailable, "avatar uploads are not configured")
		return
	}
	userID, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}
	var req AvatarUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	ticket, err := h.avatarService.RequestUploadURL(c.Request.Context(), userID, req.ContentType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

// ConfirmAvatar godoc
// @Summary Use an uploaded object as the avatar
// @Tags Me
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body AvatarConfirmRequest true "Object key from the upload ticket"
// @Success 200 {object} UserResponse
// @Failure 403 {object} gin.H "Key belongs to another user"
// @Failure 409 {object} gin.H "Object not uploaded yet"
// @Router /me/avatar/confirm [post]
func (h *UserHandler) ConfirmAvatar(c *gin.Context) {
	if h.avatarService == nil {
		abortWithError(c, http.StatusServiceUnavailable, "avatar uploads are not configured")
		return
	}
	session, ok := getSession(c)
	if !ok {
		return
	}
	var req AvatarConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	user, err := h.avatarService.Confirm(c.Request.Context(), session.Users, req.ObjectKey)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserResponse(user))
}
