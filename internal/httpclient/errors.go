package httpclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinels for classified failures. Callers match with errors.Is.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrServer       = errors.New("upstream server error")
	ErrTransport    = errors.New("transport error")
	ErrDecode       = errors.New("malformed response")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// Unwrap exposes the classification sentinel.
func (e *StatusError) Unwrap() error {
	return Classify(e.Code)
}

// Classify maps an HTTP status code to a sentinel, or nil for 2xx/3xx.
func Classify(code int) error {
	switch {
	case code < 400:
		return nil
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return ErrUnauthorized
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code >= 500:
		return ErrServer
	}
	return ErrBadRequest
}

// Retryable reports whether err is worth retrying later.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrServer) || errors.Is(err, ErrTransport)
}
