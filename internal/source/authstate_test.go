package source

import "testing"

func TestDetectAuthState(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   AuthState
	}{
		{"http 401", 401, "whatever", AuthUnauthorizedOrExpired},
		{"http 403", 403, "", AuthUnauthorizedOrExpired},
		{"captcha page", 200, "<div>Please solve this CAPTCHA to continue</div>", AuthChallenge},
		{"robot check", 200, "Verify you are human before proceeding", AuthChallenge},
		{"expired session", 200, "Your session has expired, please log in again", AuthUnauthorizedOrExpired},
		{"login redirect marker", 200, `{"error":"login_required"}`, AuthLoginRequired},
		{"login form", 200, `<form><input id="user"><input id="pwd"><button id="loginbtn"></form>`, AuthLoginRequired},
		{"authenticated banner", 200, "<span>authenticated as trader1</span>", AuthAuthenticated},
		{"no signal at all", 200, "<html><body><h1>Quotes</h1></body></html>", AuthUnknown},
		{"empty body", 200, "", AuthUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DetectAuthState(tc.status, tc.body); got != tc.want {
				t.Errorf("DetectAuthState(%d) = %s, want %s", tc.status, got, tc.want)
			}
		})
	}
}

func TestAuthStateFetchError(t *testing.T) {
	if err := AuthAuthenticated.FetchError(); err != nil {
		t.Errorf("authenticated should not error, got %v", err)
	}
	if err := AuthChallenge.FetchError(); !IsChallenge(err) {
		t.Errorf("challenge state should map to a challenge error, got %v", err)
	}
	for _, s := range []AuthState{AuthLoginRequired, AuthUnauthorizedOrExpired, AuthUnknown} {
		err := s.FetchError()
		if err == nil {
			t.Fatalf("%s should error", s)
		}
		if IsRetryable(err) {
			t.Errorf("%s should be non-retryable", s)
		}
	}
}
