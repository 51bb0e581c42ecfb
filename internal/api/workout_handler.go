package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"trainsync/internal/domain"
	"trainsync/internal/service"
	"trainsync/internal/store"
)

// WorkoutHandler serves shared workout plans.
type WorkoutHandler struct {
	workoutService service.WorkoutService
	workouts       *store.WorkoutStore
	userService    service.UserService
	now            func() time.Time
}

func NewWorkoutHandler(workoutService service.WorkoutService, workouts *store.WorkoutStore, userService service.UserService) *WorkoutHandler {
	return &WorkoutHandler{
		workoutService: workoutService,
		workouts:       workouts,
		userService:    userService,
		now:            time.Now,
	}
}

// --- DTOs ---

type CreateWorkoutRequest struct {
	Title        string   `json:"title" binding:"required"`
	Description  string   `json:"description"`
	Date         string   `json:"date" binding:"required"` // YYYY-MM-DD
	Time         string   `json:"time"`                    // HH:MM
	Location     string   `json:"location"`
	Duration     int      `json:"duration" binding:"gte=0"`
	Participants []string `json:"participants"` // User IDs besides the creator
	PostWorkout  string   `json:"postWorkout"`
}

// UserProfileResponse is another user's record with their workouts.
type UserProfileResponse struct {
	User      UserResponse         `json:"user"`
	Planned   []domain.WorkoutPlan `json:"planned"`
	Completed []domain.WorkoutPlan `json:"completed"`
}

// --- Handler Methods ---

// GetWorkouts godoc
// @Summary List workouts
// @Description view=upcoming (default) lists future planned workouts, view=today the current day, view=calendar the given date.
// @Tags Workouts
// @Produce json
// @Security BearerAuth
// @Param view query string false "upcoming, today, calendar or all"
// @Param date query string false "Day for the calendar view, YYYY-MM-DD"
// @Success 200 {array} domain.WorkoutPlan
// @Failure 400 {object} gin.H "Invalid view or date"
// @Router /workouts [get]
func (h *WorkoutHandler) GetWorkouts(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		plans []domain.WorkoutPlan
		err   error
	)
	switch view := c.DefaultQuery("view", "upcoming"); view {
	case "upcoming":
		plans, err = h.workouts.FetchUpcoming(ctx, h.now())
	case "all":
		plans, err = h.workouts.FetchAll(ctx)
	case "today":
		plans, err = h.workouts.FetchToday(ctx, h.now())
	case "calendar":
		date := c.Query("date")
		if date == "" {
			date = h.now().In(h.workouts.Location()).Format(domain.DateLayout)
		}
		plans, err = h.workouts.FetchCalendar(ctx, date)
	default:
		abortWithError(c, http.StatusBadRequest, "unknown view "+view)
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	if plans == nil {
		plans = []domain.WorkoutPlan{}
	}
	c.JSON(http.StatusOK, plans)
}

// GetWorkout godoc
// @Summary Get one workout
// @Tags Workouts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Workout ID"
// @Success 200 {object} domain.WorkoutPlan
// @Failure 404 {object} gin.H "Workout not found"
// @Router /workouts/{id} [get]
func (h *WorkoutHandler) GetWorkout(c *gin.Context) {
	plan, err := h.workouts.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

// CreateWorkout godoc
// @Summary Plan a workout
// @Description Creates a planned workout owned by the caller and counts it in workoutsPlanned.
// @Tags Workouts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param workout body CreateWorkoutRequest true "Workout details"
// @Success 201 {object} domain.WorkoutPlan
// @Failure 400 {object} gin.H "Invalid input"
// @Router /workouts [post]
func (h *WorkoutHandler) CreateWorkout(c *gin.Context) {
	session, ok := getSession(c)
	if !ok {
		return
	}
	var req CreateWorkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	participants := make([]domain.User, 0, len(req.Participants))
	for _, id := range req.Participants {
		participants = append(participants, domain.User{ID: id})
	}
	plan := domain.WorkoutPlan{
		Title:        req.Title,
		Description:  req.Description,
		Date:         req.Date,
		Time:         req.Time,
		Location:     req.Location,
		Duration:     req.Duration,
		Participants: participants,
		PostWorkout:  req.PostWorkout,
	}

	created, err := h.workoutService.Create(c.Request.Context(), session, plan)
	if err != nil && created == nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// UpdateWorkout godoc
// @Summary Edit a workout
// @Description Only the creator may edit. Status changes go through /complete and /cancel.
// @Tags Workouts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Workout ID"
// @Param workout body domain.WorkoutUpdate true "Fields to change"
// @Success 200 {object} domain.WorkoutPlan
// @Failure 403 {object} gin.H "Not the creator"
// @Failure 404 {object} gin.H "Workout not found"
// @Router /workouts/{id} [patch]
func (h *WorkoutHandler) UpdateWorkout(c *gin.Context) {
	session, ok := getSession(c)
	if !ok {
		return
	}
	var req domain.WorkoutUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	plan, err := h.workoutService.Update(c.Request.Context(), session, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

// DeleteWorkout godoc
// @Summary Delete a workout
// @Tags Workouts
// @Security BearerAuth
// @Param id path string true "Workout ID"
// @Success 204
// @Failure 403 {object} gin.H "Not the creator"
// @Router /workouts/{id} [delete]
func (h *WorkoutHandler) DeleteWorkout(c *gin.Context) {
	session, ok := getSession(c)
	if !ok {
		return
	}
	if err := h.workoutService.Delete(c.Request.Context(), session, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// JoinWorkout godoc
// @Summary Join a planned workout
// @Tags Workouts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Workout ID"
// @Success 200 {object} domain.WorkoutPlan
// @Failure 400 {object} gin.H "Workout is not planned"
// @Router /workouts/{id}/join [post]
func (h *WorkoutHandler) JoinWorkout(c *gin.Context) {
	h.statusAction(c, h.workoutService.Join)
}

// CompleteWorkout godoc
// @Summary Mark a workout completed
// @Description Counts the workout for the caller and completes any tasks this satisfies.
// @Tags Workouts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Workout ID"
// @Success 200 {object} domain.WorkoutPlan
// @Failure 403 {object} gin.H "Not a participant"
// @Failure 409 {object} gin.H "Workout is not planned"
// @Router /workouts/{id}/complete [post]
func (h *WorkoutHandler) CompleteWorkout(c *gin.Context) {
	h.statusAction(c, h.workoutService.Complete)
}

// CancelWorkout godoc
// @Summary Cancel a workout
// @Tags Workouts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Workout ID"
// @Success 200 {object} domain.WorkoutPlan
// @Failure 403 {object} gin.H "Not the creator"
// @Failure 409 {object} gin.H "Workout is not planned"
// @Router /workouts/{id}/cancel [post]
func (h *WorkoutHandler) CancelWorkout(c *gin.Context) {
	h.statusAction(c, h.workoutService.Cancel)
}

type workoutAction func(ctx context.Context, session *store.Session, id string) (*domain.WorkoutPlan, error)

func (h *WorkoutHandler) statusAction(c *gin.Context, action workoutAction) {
	session, ok := getSession(c)
	if !ok {
		return
	}
	plan, err := action(c.Request.Context(), session, c.Param("id"))
	if err != nil && plan == nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

// GetUserProfile godoc
// @Summary Another user's profile and workouts
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {object} UserProfileResponse
// @Failure 404 {object} gin.H "User not found"
// @Router /users/{id} [get]
func (h *WorkoutHandler) GetUserProfile(c *gin.Context) {
	ctx := c.Request.Context()
	user, err := h.userService.GetUser(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	created, err := h.workouts.FetchByCreator(ctx, user.ID, "")
	if err != nil {
		respondError(c, err)
		return
	}
	resp := UserProfileResponse{
		User:      newUserResponse(user),
		Planned:   []domain.WorkoutPlan{},
		Completed: []domain.WorkoutPlan{},
	}
	for _, p := range created {
		switch p.Status {
		case domain.WorkoutPlanned:
			resp.Planned = append(resp.Planned, p)
		case domain.WorkoutCompleted:
			resp.Completed = append(resp.Completed, p)
		}
	}
	c.JSON(http.StatusOK, resp)
}

// GetUserWorkouts godoc
// @Summary Workouts created by a user
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param status query string false "planned (default) or completed"
// @Success 200 {array} domain.WorkoutPlan
// @Failure 400 {object} gin.H "Unknown status"
// @Router /users/{id}/workouts [get]
func (h *WorkoutHandler) GetUserWorkouts(c *gin.Context) {
	userID := c.Param("id")
	status := c.DefaultQuery("status", string(domain.WorkoutPlanned))
	if status != string(domain.WorkoutPlanned) && status != string(domain.WorkoutCompleted) {
		abortWithError(c, http.StatusBadRequest, "status must be planned or completed")
		return
	}
	plans, err := h.workouts.FetchByCreator(c.Request.Context(), userID, domain.WorkoutStatus(status))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(plans))
}

func nonNil(plans []domain.WorkoutPlan) []domain.WorkoutPlan {
	if plans == nil {
		return []domain.WorkoutPlan{}
	}
	return plans
}
