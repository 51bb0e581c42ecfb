package vk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"trainsync/internal/config"
	"trainsync/internal/domain"
	"trainsync/internal/httpclient"
)

const identityFields = "photo_200,city,bdate,sex"

// APIError is the error envelope VK returns with HTTP 200.
type APIError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vk api error %d: %s", e.Code, e.Message)
}

// Unwrap maps VK error codes onto the request client sentinels.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case 5, 15, 27, 28:
		return httpclient.ErrUnauthorized
	case 6, 9, 29:
		return httpclient.ErrRateLimited
	case 18, 30, 113:
		return httpclient.ErrNotFound
	case 1, 10:
		return httpclient.ErrServer
	}
	return httpclient.ErrBadRequest
}

type envelope[T any] struct {
	Response T         `json:"response"`
	Error    *APIError `json:"error"`
}

type apiUser struct {
	ID          int64  `json:"id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Photo200    string `json:"photo_200"`
	BirthDate   string `json:"bdate"`
	Sex         int    `json:"sex"`
	Deactivated string `json:"deactivated"`
	City        *struct {
		Title string `json:"title"`
	} `json:"city"`
}

// Client calls the VK API with the app service token.
type Client struct {
	http    *httpclient.Client
	version string
	lang    string
	log     *zap.Logger
}

// NewClient builds a VK API client from configuration. The service token is
// injected as a bearer header on every call.
func NewClient(cfg config.VKConfig, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	opts := []httpclient.Option{
		httpclient.WithInjectors(
			httpclient.Bearer(cfg.ServiceToken),
			httpclient.Header("User-Agent", "trainsync/1.0"),
			httpclient.Header("Accept-Language", cfg.Language),
		),
		httpclient.WithRateLimit(cfg.RequestsPerSecond, 1),
		httpclient.WithLogger(log),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, httpclient.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}
	hc, err := httpclient.New(cfg.APIURL, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{http: hc, version: cfg.APIVersion, lang: cfg.Language, log: log}, nil
}

func (c *Client) params(extra url.Values) url.Values {
	q := url.Values{"v": {c.version}}
	if c.lang != "" {
		q.Set("lang", c.lang)
	}
	for k, v := range extra {
		q[k] = v
	}
	return q
}

func call[T any](ctx context.Context, c *Client, method string, q url.Values) (T, error) {
	var env envelope[T]
	if err := c.http.Get(ctx, method, c.params(q), &env); err != nil {
		return env.Response, err
	}
	if env.Error != nil {
		return env.Response, env.Error
	}
	return env.Response, nil
}

// FetchIdentity returns the profile of userID as known to VK.
func (c *Client) FetchIdentity(ctx context.Context, userID string) (*domain.Identity, error) {
	users, err := call[[]apiUser](ctx, c, "users.get", url.Values{
		"user_ids": {userID},
		"fields":   {identityFields},
	})
	if err != nil {
		return nil, fmt.Errorf("users.get %s: %w", userID, err)
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("users.get %s: %w", userID, httpclient.ErrNotFound)
	}
	u := users[0]
	if u.Deactivated != "" {
		return nil, fmt.Errorf("users.get %s: account %s: %w", userID, u.Deactivated, httpclient.ErrNotFound)
	}

	id := &domain.Identity{
		ID:        strconv.FormatInt(u.ID, 10),
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Avatar:    u.Photo200,
		BirthDate: normalizeBirthDate(u.BirthDate),
		Sex:       u.Sex,
	}
	if u.City != nil {
		id.City = u.City.Title
	}
	return id, nil
}

// Notify sends an app notification to the given users.
func (c *Client) Notify(ctx context.Context, userIDs []string, message string) error {
	if len(userIDs) == 0 {
		return nil
	}
	if message == "" {
		return errors.New("notification message is empty")
	}
	_, err := call[[]struct {
		UserID int64 `json:"user_id"`
		Status bool  `json:"status"`
	}](ctx, c, "notifications.sendMessage", url.Values{
		"user_ids":  {strings.Join(userIDs, ",")},
		"message":   {message},
		"random_id": {strconv.FormatInt(time.Now().UnixNano(), 10)},
	})
	if err != nil {
		return fmt.Errorf("notifications.sendMessage: %w", err)
	}
	return nil
}

// normalizeBirthDate turns VK's "D.M.YYYY" into "YYYY-MM-DD". Dates without a
// year ("D.M") cannot be stored as a birth date and yield "".
func normalizeBirthDate(bdate string) string {
	t, err := time.Parse("2.1.2006", bdate)
	if err != nil {
		return ""
	}
	return t.Format(domain.DateLayout)
}
