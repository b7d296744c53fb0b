package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrorKind classifies a failed call.
type ErrorKind string

const (
	KindRateLimit         ErrorKind = "rate_limit"
	KindTimeout           ErrorKind = "timeout"
	KindServer            ErrorKind = "server"
	KindNetwork           ErrorKind = "network"
	KindAuth              ErrorKind = "auth"
	KindInvalidRequest    ErrorKind = "invalid_request"
	KindMalformedResponse ErrorKind = "malformed_response"
	KindCanceled          ErrorKind = "canceled"
	KindUnknown           ErrorKind = "unknown"
)

// Transient reports whether a retry could plausibly succeed.
func (k ErrorKind) Transient() bool {
	switch k {
	case KindRateLimit, KindTimeout, KindServer, KindNetwork:
		return true
	}
	return false
}

// Sentinels for errors.Is checks against any *Error.
var (
	ErrTransient = errors.New("transient provider error")
	ErrPermanent = errors.New("permanent provider error")
)

// Error is returned by every Client.
type Error struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Attempts   int
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Provider != "" {
		b.WriteString(e.Provider)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.Kind.Transient()
	case ErrPermanent:
		return !e.Kind.Transient()
	}
	return false
}

// KindOf classifies any error returned by a Client.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return classify(err)
}

// IsAuthError checks if an error is an authentication error.
func IsAuthError(err error) bool {
	return KindOf(err) == KindAuth
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return KindOf(err).Transient()
}

func classify(err error) ErrorKind {
	switch {
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return KindMalformedResponse
	}
	return KindUnknown
}

// transportError wraps a failure that happened before a status code was seen.
func transportError(provider string, err error) *Error {
	return &Error{Kind: classify(err), Provider: provider, Err: err}
}

func malformed(provider, format string, args ...any) *Error {
	return &Error{Kind: KindMalformedResponse, Provider: provider, Message: fmt.Sprintf(format, args...)}
}

// statusError maps a non-2xx HTTP status onto an Error.
func statusError(provider string, code int, body string, header http.Header) *Error {
	e := &Error{Provider: provider, StatusCode: code, Message: truncate(strings.TrimSpace(body), 500)}
	switch {
	case code == http.StatusTooManyRequests:
		e.Kind = KindRateLimit
		e.RetryAfter = parseRetryAfter(header)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		e.Kind = KindAuth
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		e.Kind = KindTimeout
	case code >= 500:
		e.Kind = KindServer
	case code >= 400:
		e.Kind = KindInvalidRequest
	default:
		e.Kind = KindUnknown
	}
	return e
}

func parseRetryAfter(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
