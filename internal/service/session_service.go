package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	"trainsync/internal/store"
	"trainsync/internal/vk"
)

// --- Error Definitions ---
var (
	ErrInvalidLaunch   = errors.New("launch parameters are invalid")
	ErrTokenGeneration = errors.New("failed to generate session token")
	ErrInvalidToken    = errors.New("invalid session token")
)

// --- Service Interface ---
type SessionService interface {
	// Launch verifies the mini-app launch query, opens the user's session and
	// issues a token for the API.
	Launch(ctx context.Context, rawQuery string) (token string, session *store.Session, err error)
	// ParseToken validates a token and returns the user ID it was issued for.
	ParseToken(token string) (string, error)
}

// --- Service Implementation ---

type sessionService struct {
	sessions      *store.Sessions
	appSecret     string
	launchTTL     time.Duration
	jwtSecret     string
	jwtExpiration time.Duration
	now           func() time.Time
	log           *zap.Logger
}

// NewSessionService creates a new instance of sessionService.
func NewSessionService(sessions *store.Sessions, appSecret string, launchTTL time.Duration, jwtSecret string, jwtExpiration time.Duration, log *zap.Logger) SessionService {
	if jwtSecret == "" {
		panic("JWT secret cannot be empty") // Critical configuration
	}
	if jwtExpiration <= 0 {
		jwtExpiration = time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &sessionService{
		sessions:      sessions,
		appSecret:     appSecret,
		launchTTL:     launchTTL,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
		now:           time.Now,
		log:           log,
	}
}

func (s *sessionService) Launch(ctx context.Context, rawQuery string) (string, *store.Session, error) {
	params, err := vk.VerifyLaunchParams(rawQuery, s.appSecret, s.launchTTL, s.now())
	if err != nil {
		s.log.Warn("rejected launch params", zap.Error(err))
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidLaunch, err)
	}

	session, err := s.sessions.Open(ctx, params.UserID)
	if err != nil {
		return "", nil, err
	}

	token, err := s.generateJWT(params.UserID)
	if err != nil {
		s.log.Error("failed to sign session token", zap.String("user_id", params.UserID), zap.Error(err))
		return "", nil, ErrTokenGeneration
	}
	s.log.Info("session launched", zap.String("user_id", params.UserID), zap.String("platform", params.Platform))
	return token, session, nil
}

// --- JWT Helpers ---

// jwtClaims defines the structure of the JWT payload.
type jwtClaims struct {
	UserID string `json:"uid"` // VK user ID
	jwt.RegisteredClaims
}

func (s *sessionService) generateJWT(userID string) (string, error) {
	issuedAt := s.now()
	claims := &jwtClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.jwtExpiration)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			Issuer:    "trainsync",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

func (s *sessionService) ParseToken(tokenString string) (string, error) {
	claims := &jwtClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == "" {
		return "", ErrInvalidToken
	}
	return claims.UserID, nil
}
