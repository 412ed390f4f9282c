package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestManager() *Manager {
	return NewManager([]byte("0123456789abcdef0123456789abcdef"), false)
}

// withCookies builds a request carrying the cookies a previous response set
func withCookies(t *testing.T, w *httptest.ResponseRecorder) *http.Request {
	t.Helper()
	r := httptest.NewRequest("GET", "/", nil)
	for _, c := range w.Result().Cookies() {
		if c.MaxAge < 0 {
			continue
		}
		r.AddCookie(c)
	}
	return r
}

func TestSessionRoundTrip(t *testing.T) {
	m := newTestManager()

	expires := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/", nil)

	err := m.SetSession(r, w, &Session{
		UserID:       "u-1",
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    expires,
	})
	if err != nil {
		t.Fatalf("SetSession failed: %v", err)
	}

	got, err := m.GetSession(withCookies(t, w))
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}

	if got.UserID != "u-1" || got.AccessToken != "access" || got.RefreshToken != "refresh" {
		t.Errorf("session = %+v", got)
	}
	if !got.ExpiresAt.Equal(expires) {
		t.Errorf("expires = %v, want %v", got.ExpiresAt, expires)
	}
}

func TestGetSessionAbsent(t *testing.T) {
	m := newTestManager()

	r := httptest.NewRequest("GET", "/", nil)
	if _, err := m.GetSession(r); err != ErrNoSession {
		t.Fatalf("err = %v, want ErrNoSession", err)
	}
}

func TestTakeStateSingleUse(t *testing.T) {
	m := newTestManager()

	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/", nil)
	if err := m.SetState(r, w, "state-abc"); err != nil {
		t.Fatalf("SetState failed: %v", err)
	}

	// First take returns the value and deletes the cookie
	w2 := httptest.NewRecorder()
	r2 := withCookies(t, w)
	state, ok := m.TakeState(r2, w2)
	if !ok || state != "state-abc" {
		t.Fatalf("TakeState = %q, %v", state, ok)
	}

	// The response must carry a deletion for the state cookie
	deleted := false
	for _, c := range w2.Result().Cookies() {
		if c.Name == StateName && c.MaxAge < 0 {
			deleted = true
		}
	}
	if !deleted {
		t.Error("state cookie was not deleted")
	}

	// A request built from the post-take cookie state has no state to take
	w3 := httptest.NewRecorder()
	if state, ok := m.TakeState(withCookies(t, w2), w3); ok {
		t.Errorf("second TakeState succeeded with %q, want failure", state)
	}
}

func TestClearSessionIdempotent(t *testing.T) {
	m := newTestManager()

	// Clearing with no session at all is fine
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/", nil)
	if err := m.ClearSession(r, w); err != nil {
		t.Fatalf("ClearSession on empty request failed: %v", err)
	}

	// Set then clear twice
	w2 := httptest.NewRecorder()
	if err := m.SetSession(r, w2, &Session{UserID: "u-1", ExpiresAt: time.Now()}); err != nil {
		t.Fatalf("SetSession failed: %v", err)
	}

	w3 := httptest.NewRecorder()
	if err := m.ClearSession(withCookies(t, w2), w3); err != nil {
		t.Fatalf("first ClearSession failed: %v", err)
	}
	w4 := httptest.NewRecorder()
	if err := m.ClearSession(withCookies(t, w3), w4); err != nil {
		t.Fatalf("second ClearSession failed: %v", err)
	}
}

func TestExpiryChecks(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		expiresAt   time.Time
		expired     bool
		needRefresh bool
	}{
		{"well before expiry", now.Add(time.Hour), false, false},
		{"six minutes left", now.Add(6 * time.Minute), false, false},
		{"four minutes left", now.Add(4 * time.Minute), false, true},
		{"just past expiry", now.Add(-time.Second), true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Session{ExpiresAt: tt.expiresAt}
			if got := s.Expired(now); got != tt.expired {
				t.Errorf("Expired = %v, want %v", got, tt.expired)
			}
			if got := s.ExpiresWithin(now, 5*time.Minute); got != tt.needRefresh {
				t.Errorf("ExpiresWithin = %v, want %v", got, tt.needRefresh)
			}
		})
	}
}
