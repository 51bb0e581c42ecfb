package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trainsync/internal/service"
	"trainsync/internal/store"
)

// Deps holds everything the routes need. AvatarService and MetricsHandler
// may be nil.
type Deps struct {
	SessionService service.SessionService
	UserService    service.UserService
	WorkoutService service.WorkoutService
	AvatarService  service.AvatarService
	Sessions       *store.Sessions
	Workouts       *store.WorkoutStore
	Hub            *store.Hub
	MetricsHandler http.Handler
	AllowedOrigins []string
	Logger         *zap.Logger
}

func SetupRoutes(router *gin.Engine, deps Deps) {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	sessionHandler := NewSessionHandler(deps.SessionService)
	userHandler := NewUserHandler(deps.UserService, deps.AvatarService)
	workoutHandler := NewWorkoutHandler(deps.WorkoutService, deps.Workouts, deps.UserService)
	eventsHandler := NewEventsHandler(deps.Hub)

	router.Use(RequestLogger(log), CORSMiddleware(deps.AllowedOrigins))

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	if deps.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	apiV1 := router.Group("/api/v1")
	apiV1.POST("/session", sessionHandler.Launch)

	protected := apiV1.Group("")
	protected.Use(AuthMiddleware(deps.SessionService), SessionMiddleware(deps.Sessions))
	{
		protected.GET("/events", eventsHandler.Stream)

		// --- Current User ---
		protected.GET("/me", userHandler.GetMe)
		protected.PATCH("/me", userHandler.UpdateMe)
		protected.POST("/me/stats/:field", userHandler.UpdateStat)
		protected.POST("/me/avatar/upload-url", userHandler.RequestAvatarUpload)
		protected.POST("/me/avatar/confirm", userHandler.ConfirmAvatar)
		protected.GET("/tasks", userHandler.GetTasks)

		// --- Other Users ---
		protected.GET("/leaderboard", userHandler.GetLeaderboard)
		protected.GET("/users/:id", workoutHandler.GetUserProfile)
		protected.GET("/users/:id/workouts", workoutHandler.GetUserWorkouts)

		// --- Workouts ---
		workoutGroup := protected.Group("/workouts")
		{
			workoutGroup.GET("", workoutHandler.GetWorkouts)
			workoutGroup.POST("", workoutHandler.CreateWorkout)
			workoutGroup.GET("/:id", workoutHandler.GetWorkout)
			workoutGroup.PATCH("/:id", workoutHandler.UpdateWorkout)
			workoutGroup.DELETE("/:id", workoutHandler.DeleteWorkout)
			workoutGroup.POST("/:id/join", workoutHandler.JoinWorkout)
			workoutGroup.POST("/:id/complete", workoutHandler.CompleteWorkout)
			workoutGroup.POST("/:id/cancel", workoutHandler.CancelWorkout)
		}
	}
}
