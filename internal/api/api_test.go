package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trainsync/internal/domain"
	"trainsync/internal/repository/memory"
	"trainsync/internal/service"
	"trainsync/internal/store"
	"trainsync/internal/vk"
)

const (
	appSecret = "vk-app-secret"
	jwtSecret = "jwt-secret"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	hub    *store.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mem := memory.NewStore()
	require.NoError(t, mem.SeedTasks(context.Background(), domain.Task{
		ID: "first", Title: "First workout", Category: domain.CounterWorkoutsCompleted, Goal: 1, Points: 10,
	}))
	repos := mem.Repositories()
	hub := store.NewHub(nil)
	sessions := store.NewSessions(repos, store.BareIdentity, hub, nil, nil)
	workouts := store.NewWorkoutStore(repos.Workouts, repos.Users, time.UTC, hub, nil, nil)

	router := gin.New()
	SetupRoutes(router, Deps{
		SessionService: service.NewSessionService(sessions, appSecret, time.Hour, jwtSecret, time.Hour, nil),
		UserService:    service.NewUserService(repos.Users),
		WorkoutService: service.NewWorkoutService(workouts, nil, nil),
		Sessions:       sessions,
		Workouts:       workouts,
		Hub:            hub,
		AllowedOrigins: []string{"https://vk.com"},
	})
	return &testServer{router: router, hub: hub}
}

func launchParams(userID string) string {
	q := url.Values{
		"vk_user_id":  {userID},
		"vk_app_id":   {"51"},
		"vk_platform": {"desktop_web"},
		"vk_ts":       {strconv.FormatInt(time.Now().Unix(), 10)},
	}
	q.Set("sign", vk.Sign(q, appSecret))
	return q.Encode()
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) launch(t *testing.T, userID string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/session", "", LaunchRequest{LaunchParams: launchParams(userID)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp LaunchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	assert.Equal(t, userID, resp.User.ID)
	return resp.Token
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestPing(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"pong"}`, w.Body.String())
}

func TestCORS(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/me", nil)
	req.Header.Set("Origin", "https://vk.com")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://vk.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestLaunch(t *testing.T) {
	s := newTestServer(t)

	t.Run("query string", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/session?"+launchParams("7"), "", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decode[LaunchResponse](t, w)
		assert.Equal(t, domain.DefaultDisplayName, resp.User.DisplayName)
	})

	t.Run("bad signature", func(t *testing.T) {
		q, err := url.ParseQuery(launchParams("7"))
		require.NoError(t, err)
		q.Set("vk_user_id", "8")
		w := s.do(t, http.MethodPost, "/api/v1/session", "", LaunchRequest{LaunchParams: q.Encode()})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing params", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/session", "", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/me", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/me", "garbage", nil).Code)

	token := s.launch(t, "42")
	w := s.do(t, http.MethodGet, "/api/v1/me?token="+url.QueryEscape(token), "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMe(t *testing.T) {
	s := newTestServer(t)
	token := s.launch(t, "42")

	w := s.do(t, http.MethodGet, "/api/v1/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[UserResponse](t, w)
	assert.Equal(t, "42", me.ID)
	assert.Equal(t, 1, me.Level)

	w = s.do(t, http.MethodPatch, "/api/v1/me", token, map[string]any{"name": "Ivan", "weight": 80.5})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	me = decode[UserResponse](t, w)
	assert.Equal(t, "Ivan", me.DisplayName)
	assert.Equal(t, 80.5, me.Weight)

	w = s.do(t, http.MethodPatch, "/api/v1/me", token, map[string]any{"weight": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/me?refresh=true", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Ivan", decode[UserResponse](t, w).Name)
}

func TestStatsCompleteTasks(t *testing.T) {
	s := newTestServer(t)
	token := s.launch(t, "42")

	w := s.do(t, http.MethodPost, "/api/v1/me/stats/workoutsCompleted", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	me := decode[UserResponse](t, w)
	assert.Equal(t, 1, me.WorkoutsCompleted)
	assert.Equal(t, 10, me.Points)

	w = s.do(t, http.MethodPost, "/api/v1/me/stats/totalWorkouts", token, StatRequest{IncrementBy: 3})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, decode[UserResponse](t, w).TotalWorkouts)

	w = s.do(t, http.MethodPost, "/api/v1/me/stats/pushups", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/tasks", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	tasks := decode[[]store.TaskProgress](t, w)
	require.Len(t, tasks, 1)
	assert.True(t, tasks[0].Completed)
	assert.Equal(t, 1, tasks[0].Progress)
}

func TestLeaderboard(t *testing.T) {
	s := newTestServer(t)
	token := s.launch(t, "1")
	s.launch(t, "2")
	s.do(t, http.MethodPost, "/api/v1/me/stats/workoutsCompleted", token, nil)

	w := s.do(t, http.MethodGet, "/api/v1/leaderboard?limit=5", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	board := decode[[]UserResponse](t, w)
	require.Len(t, board, 2)
	assert.Equal(t, "1", board[0].ID)
	assert.Equal(t, 10, board[0].Points)
}

func TestAvatarNotConfigured(t *testing.T) {
	s := newTestServer(t)
	token := s.launch(t, "42")
	w := s.do(t, http.MethodPost, "/api/v1/me/avatar/upload-url", token, AvatarUploadRequest{ContentType: "image/png"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestWorkoutLifecycle(t *testing.T) {
	s := newTestServer(t)
	owner := s.launch(t, "1")
	friend := s.launch(t, "2")

	w := s.do(t, http.MethodPost, "/api/v1/workouts", owner, CreateWorkoutRequest{
		Title: "Leg Day", Date: "2099-06-01", Time: "18:30", Duration: 60, Location: "Gym",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[domain.WorkoutPlan](t, w)
	assert.Equal(t, "1", created.CreatedBy)
	assert.Equal(t, domain.WorkoutPlanned, created.Status)
	path := "/api/v1/workouts/" + created.ID

	w = s.do(t, http.MethodGet, "/api/v1/workouts", friend, nil)
	require.Equal(t, http.StatusOK, w.Code)
	upcoming := decode[[]domain.WorkoutPlan](t, w)
	require.Len(t, upcoming, 1)
	assert.Equal(t, created.ID, upcoming[0].ID)

	w = s.do(t, http.MethodPatch, path, friend, map[string]any{"title": "Mine now"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPatch, path, owner, map[string]any{"title": "Heavy Leg Day"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Heavy Leg Day", decode[domain.WorkoutPlan](t, w).Title)

	w = s.do(t, http.MethodPost, path+"/complete", friend, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, path+"/join", friend, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{"2"}, ptrPlan(decode[domain.WorkoutPlan](t, w)).ParticipantIDs())

	w = s.do(t, http.MethodPost, path+"/complete", friend, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.WorkoutCompleted, decode[domain.WorkoutPlan](t, w).Status)

	w = s.do(t, http.MethodPost, path+"/complete", owner, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/me", friend, nil)
	me := decode[UserResponse](t, w)
	assert.Equal(t, 1, me.WorkoutsCompleted)
	assert.Equal(t, 1, me.TotalWorkouts)
	assert.Equal(t, 1, me.WorkoutsWithFriends)

	w = s.do(t, http.MethodPost, "/api/v1/workouts", owner, CreateWorkoutRequest{Title: "Recovery Run", Date: "2099-06-03"})
	require.Equal(t, http.StatusCreated, w.Code)
	next := decode[domain.WorkoutPlan](t, w)

	w = s.do(t, http.MethodGet, "/api/v1/workouts", friend, nil)
	require.Equal(t, http.StatusOK, w.Code)
	upcoming = decode[[]domain.WorkoutPlan](t, w)
	require.Len(t, upcoming, 1)
	assert.Equal(t, next.ID, upcoming[0].ID)

	w = s.do(t, http.MethodGet, "/api/v1/users/1", friend, nil)
	require.Equal(t, http.StatusOK, w.Code)
	profile := decode[UserProfileResponse](t, w)
	require.Len(t, profile.Planned, 1)
	assert.Equal(t, next.ID, profile.Planned[0].ID)
	require.Len(t, profile.Completed, 1)
	assert.Equal(t, created.ID, profile.Completed[0].ID)

	w = s.do(t, http.MethodGet, "/api/v1/users/1/workouts?status=completed", friend, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]domain.WorkoutPlan](t, w), 1)

	w = s.do(t, http.MethodGet, "/api/v1/users/2/workouts", friend, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/v1/users/1/workouts?status=cancelled", friend, nil).Code)

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodDelete, path, friend, nil).Code)
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, path, owner, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, path, owner, nil).Code)
}

func ptrPlan(p domain.WorkoutPlan) *domain.WorkoutPlan { return &p }

func TestGetWorkoutsViews(t *testing.T) {
	s := newTestServer(t)
	token := s.launch(t, "1")

	for _, date := range []string{"2099-06-01", "2099-06-02"} {
		w := s.do(t, http.MethodPost, "/api/v1/workouts", token, CreateWorkoutRequest{Title: "Run", Date: date, Time: "07:00"})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := s.do(t, http.MethodGet, "/api/v1/workouts?view=calendar&date=2099-06-02", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	day := decode[[]domain.WorkoutPlan](t, w)
	require.Len(t, day, 1)
	assert.Equal(t, "2099-06-02", day[0].Date)

	w = s.do(t, http.MethodGet, "/api/v1/workouts?view=today", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/v1/workouts?view=calendar&date=June", token, nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/v1/workouts?view=weekly", token, nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/v1/workouts", token, map[string]any{"date": "2099-06-01"}).Code)
}

func TestEventsStream(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	t.Cleanup(srv.Close)

	launch := func(userID string) string {
		body, _ := json.Marshal(LaunchRequest{LaunchParams: launchParams(userID)})
		resp, err := http.Post(srv.URL+"/api/v1/session", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		var lr LaunchResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&lr))
		return lr.Token
	}
	token := launch("42")
	other := launch("43")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events?token="+url.QueryEscape(token), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	lines := bufio.NewScanner(resp.Body)
	nextEvent := func() string {
		for lines.Scan() {
			if name, ok := strings.CutPrefix(lines.Text(), "event:"); ok {
				return strings.TrimSpace(name)
			}
		}
		return ""
	}
	require.Equal(t, "ready", nextEvent())

	post := func(path, tok string) {
		r, err := http.NewRequest(http.MethodPost, srv.URL+path, nil)
		require.NoError(t, err)
		r.Header.Set("Authorization", "Bearer "+tok)
		res, err := http.DefaultClient.Do(r)
		require.NoError(t, err)
		res.Body.Close()
		require.Equal(t, http.StatusOK, res.StatusCode)
	}
	// Another user's change is filtered out; the caller's own arrives next.
	post("/api/v1/me/stats/friendsAdded", other)
	post("/api/v1/me/stats/friendsAdded", token)

	assert.Equal(t, string(store.EventUserUpdated), nextEvent())
	assert.Equal(t, 1, s.hub.Subscribers())
}
