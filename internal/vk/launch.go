// Package vk talks to the VK host platform: launch parameter verification,
// identity lookups and notifications.
package vk

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/SevereCloud/vksdk/v2/vkapps"
)

var (
	ErrInvalidSignature = errors.New("invalid launch params signature")
	ErrMissingUserID    = errors.New("launch params have no vk_user_id")
	ErrExpiredLaunch    = errors.New("launch params are too old")
)

// LaunchParams are the vk_* parameters the webview opens the app with.
type LaunchParams struct {
	UserID   string
	AppID    string
	Platform string
	Language string
	IssuedAt time.Time
}

// VerifyLaunchParams checks the sign parameter of a mini-app launch query
// against the app secret. maxAge <= 0 disables the vk_ts freshness check.
func VerifyLaunchParams(rawQuery, secret string, maxAge time.Duration, now time.Time) (*LaunchParams, error) {
	rawQuery = strings.TrimPrefix(rawQuery, "?")
	query, err := url.ParseQuery(rawQuery)
	if err != nil || query.Get("sign") == "" || secret == "" {
		return nil, ErrInvalidSignature
	}

	ok, err := vkapps.ParamsVerify("?"+rawQuery, secret)
	if err != nil || !ok {
		return nil, ErrInvalidSignature
	}

	params := &LaunchParams{
		UserID:   query.Get("vk_user_id"),
		AppID:    query.Get("vk_app_id"),
		Platform: query.Get("vk_platform"),
		Language: query.Get("vk_language"),
	}
	if params.UserID == "" {
		return nil, ErrMissingUserID
	}
	if ts, err := strconv.ParseInt(query.Get("vk_ts"), 10, 64); err == nil {
		params.IssuedAt = time.Unix(ts, 0)
	}
	if maxAge > 0 && (params.IssuedAt.IsZero() || now.Sub(params.IssuedAt) > maxAge) {
		return nil, ErrExpiredLaunch
	}
	return params, nil
}

// Sign computes the launch signature over the vk_* keys of query, the way
// the platform signs a launch. Used to build launch queries for local runs.
func Sign(query url.Values, secret string) string {
	params := url.Values{}
	for k, v := range query {
		if strings.HasPrefix(k, "vk_") {
			params[k] = v[:1]
		}
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(params.Encode()))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
