package api

import (
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trainsync/internal/domain"
	"trainsync/internal/httpclient"
	"trainsync/internal/service"
	"trainsync/internal/storage"
	"trainsync/internal/store"
)

// Constants for context keys
const (
	ContextUserIDKey  = "userID"
	ContextSessionKey = "session"
)

// TokenParser validates session tokens.
type TokenParser interface {
	ParseToken(token string) (string, error)
}

// AuthMiddleware authenticates requests by JWT. The token comes from the
// Authorization header, or from the token query parameter for clients such
// as EventSource that cannot set headers.
func AuthMiddleware(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query("token")
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			// Expecting "Bearer <token>"
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				abortWithError(c, http.StatusUnauthorized, "Authorization header format must be Bearer {token}")
				return
			}
			tokenString = parts[1]
		}
		if tokenString == "" {
			abortWithError(c, http.StatusUnauthorized, "Authorization header is missing")
			return
		}

		userID, err := tokens.ParseToken(tokenString)
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		c.Set(ContextUserIDKey, userID)
		c.Next()
	}
}

// SessionMiddleware attaches the caller's session, reopening it when the
// process no longer holds it. Must run AFTER AuthMiddleware.
func SessionMiddleware(sessions *store.Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := getUserIDFromContext(c)
		if err != nil {
			abortWithError(c, http.StatusInternalServerError, "User ID not found in context")
			return
		}
		session, err := sessions.Get(c.Request.Context(), userID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Set(ContextSessionKey, session)
		c.Next()
	}
}

// RequestLogger writes one zap line per request.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if uid := c.GetString(ContextUserIDKey); uid != "" {
			fields = append(fields, zap.String("user_id", uid))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			log.Error("request", fields...)
		case status >= http.StatusBadRequest:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

// CORSMiddleware allows the mini-app webview origins to call the API.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Helper to return JSON error response and abort request
func abortWithError(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, gin.H{"error": message})
}

// respondError maps domain and service errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	code := errorStatus(err)
	_ = c.Error(err)
	if code >= http.StatusInternalServerError {
		message := http.StatusText(code)
		if errors.Is(err, store.ErrNotInitialized) {
			message = err.Error()
		}
		abortWithError(c, code, message)
		return
	}
	abortWithError(c, code, err.Error())
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNotInitialized):
		return http.StatusServiceUnavailable
	case errors.Is(err, service.ErrInvalidLaunch), errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrWorkoutAccessDenied), errors.Is(err, service.ErrNotParticipant),
		errors.Is(err, storage.ErrForeignObjectKey):
		return http.StatusForbidden
	case errors.Is(err, store.ErrWorkoutNotFound), errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidStatusTransition), errors.Is(err, service.ErrAvatarNotUploaded):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnknownCounter), errors.Is(err, store.ErrInvalidWorkout),
		errors.Is(err, storage.ErrUnsupportedContentType):
		return http.StatusBadRequest
	case errors.Is(err, httpclient.ErrRateLimited), errors.Is(err, httpclient.ErrServer),
		errors.Is(err, httpclient.ErrTransport), errors.Is(err, httpclient.ErrUnauthorized),
		errors.Is(err, httpclient.ErrNotFound), errors.Is(err, httpclient.ErrBadRequest),
		errors.Is(err, httpclient.ErrDecode):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// Helper function to get User ID from context (used by handlers)
func getUserIDFromContext(c *gin.Context) (string, error) {
	idRaw, exists := c.Get(ContextUserIDKey)
	if !exists {
		return "", errors.New("user ID not found in context")
	}
	idStr, ok := idRaw.(string)
	if !ok {
		return "", errors.New("invalid user ID type in context")
	}
	return idStr, nil
}

// getSession returns the session set by SessionMiddleware, aborting when absent.
func getSession(c *gin.Context) (*store.Session, bool) {
	raw, exists := c.Get(ContextSessionKey)
	session, ok := raw.(*store.Session)
	if !exists || !ok {
		abortWithError(c, http.StatusInternalServerError, "Session not found in context")
		return nil, false
	}
	return session, true
}
