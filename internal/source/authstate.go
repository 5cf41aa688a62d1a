package source

import (
	"net/http"
	"strings"
)

// AuthState is the session state detected on a gated upstream page.
type AuthState string

const (
	AuthAuthenticated         AuthState = "AUTHENTICATED"
	AuthLoginRequired         AuthState = "LOGIN_REQUIRED"
	AuthUnauthorizedOrExpired AuthState = "UNAUTHORIZED_OR_EXPIRED"
	AuthChallenge             AuthState = "CHALLENGE"
	// AuthUnknown means no distinguishable signal was found. It is an
	// explicit outcome: a page without a login form is NOT assumed
	// authenticated.
	AuthUnknown AuthState = "UNKNOWN"
)

// loginFormMarkers are fragments of the upstream login form.
var loginFormMarkers = []string{`id="user"`, `id="pwd"`, `id="loginbtn"`}

// challengeMarkers indicate an anti-automation interstitial.
var challengeMarkers = []string{"captcha", "verify you are human", "are you a robot", "access denied"}

// DetectAuthState classifies a gated page from its HTTP status and body.
func DetectAuthState(statusCode int, body string) AuthState {
	if statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden {
		return AuthUnauthorizedOrExpired
	}
	lower := strings.ToLower(body)

	for _, m := range challengeMarkers {
		if strings.Contains(lower, m) {
			return AuthChallenge
		}
	}
	if strings.Contains(lower, "session has expired") || strings.Contains(lower, "unauthorized") {
		return AuthUnauthorizedOrExpired
	}
	if strings.Contains(lower, "login_required") {
		return AuthLoginRequired
	}
	for _, m := range loginFormMarkers {
		if strings.Contains(lower, m) {
			return AuthLoginRequired
		}
	}
	if strings.Contains(lower, "authenticated") {
		return AuthAuthenticated
	}
	return AuthUnknown
}

// FetchError maps a non-authenticated state to a classified fetch failure,
// or nil when the session is usable. UNKNOWN is non-retryable: retrying a
// page we cannot classify only burns attempts.
func (s AuthState) FetchError() error {
	switch s {
	case AuthAuthenticated:
		return nil
	case AuthChallenge:
		return Errorf(KindChallenge, "auth state %s: operator action required", s)
	default:
		return Errorf(KindNonRetryable, "auth state %s", s)
	}
}
