// Package source defines the data-acquisition seam of the fetch pipeline.
// Adapters return a typed error whose kind tells the orchestrator whether a
// failure is worth retrying; the orchestrator branches on that data instead of
// inspecting error strings.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"MarketVault/internal/model"
)

// Source acquires one dataset per run.
type Source interface {
	ID() string
	Fetch(ctx context.Context) (*model.Dataset, error)
}

// Kind classifies a fetch failure.
type Kind int

const (
	// KindRetryable covers transient conditions: network errors, timeouts,
	// 5xx and 429 responses.
	KindRetryable Kind = iota
	// KindNonRetryable covers conditions a retry cannot fix:
	// authentication, payment-required, quota (401/402/403).
	KindNonRetryable
	// KindChallenge means acquisition mechanically succeeded but the content
	// indicates an anti-automation barrier needing operator intervention.
	KindChallenge
)

func (k Kind) String() string {
	switch k {
	case KindNonRetryable:
		return "non-retryable"
	case KindChallenge:
		return "challenge"
	default:
		return "retryable"
	}
}

// Error is a classified fetch failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Errorf builds a classified error.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the failure kind; unclassified errors default to retryable.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindRetryable
}

// IsRetryable reports whether a retry may help. Used as the retry policy's
// ShouldRetry so non-retryable failures don't burn attempts.
func IsRetryable(err error) bool {
	return KindOf(err) == KindRetryable
}

// IsChallenge reports whether the failure is an anti-automation barrier.
func IsChallenge(err error) bool {
	return KindOf(err) == KindChallenge
}

// statusError classifies an unexpected HTTP status. 401/402/403 indicate an
// auth or quota problem no retry will fix; everything else is transient.
func statusError(code int, detail string) error {
	kind := KindRetryable
	switch code {
	case http.StatusUnauthorized, http.StatusPaymentRequired, http.StatusForbidden:
		kind = KindNonRetryable
	}
	return Errorf(kind, "status %d: %s", code, detail)
}

// newHTTPClient builds the shared client with optional proxy support.
func newHTTPClient(timeout time.Duration, proxyURL string) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}
