package session

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
)

const (
	// SessionName is the name of the session cookie
	SessionName = "session"

	// StateName is the name of the short-lived OAuth state cookie
	StateName = "oauth_state"

	userIDKey       = "user_id"
	accessTokenKey  = "access_token"
	refreshTokenKey = "refresh_token"
	expiresAtKey    = "expires_at"
	stateKey        = "state"

	// sessionMaxAge is the cookie lifetime. It is independent of the
	// token's logical expiry, which lives in the expires_at value and is
	// checked by the caller.
	sessionMaxAge = 30 * 24 * 60 * 60

	// stateMaxAge bounds one login round trip
	stateMaxAge = 600
)

// ErrNoSession is returned when no usable session cookie is present
var ErrNoSession = errors.New("no session")

// Session is the cookie-resident session record: a weak reference to the
// local user plus the current provider token pair.
type Session struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Expired reports whether the access token's logical expiry has passed
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}

// ExpiresWithin reports whether the access token expires before now+d
func (s *Session) ExpiresWithin(now time.Time, d time.Duration) bool {
	return s.ExpiresAt.Sub(now) < d
}

// Manager wraps gorilla/sessions for the session and state cookies. Both are
// http-only, SameSite=Lax, path /, and authenticated by the cookie store.
type Manager struct {
	store  *sessions.CookieStore
	secure bool
}

// NewManager creates a new session manager
// secretKey should be 32 bytes for AES-256
func NewManager(secretKey []byte, secure bool) *Manager {
	store := sessions.NewCookieStore(secretKey)

	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}

	return &Manager{
		store:  store,
		secure: secure,
	}
}

// SetState stores the CSRF state token in its short-lived cookie
func (m *Manager) SetState(r *http.Request, w http.ResponseWriter, state string) error {
	sess, err := m.store.Get(r, StateName)
	if err != nil {
		sess, _ = m.store.New(r, StateName)
	}

	sess.Options = m.stateOptions()
	sess.Values[stateKey] = state
	return sess.Save(r, w)
}

// TakeState returns the stored state token and deletes its cookie in the
// same response. The delete is what enforces single use: a replayed
// callback finds no cookie and fails state validation.
func (m *Manager) TakeState(r *http.Request, w http.ResponseWriter) (string, bool) {
	sess, err := m.store.Get(r, StateName)
	if err != nil {
		return "", false
	}

	state, ok := sess.Values[stateKey].(string)

	opts := m.stateOptions()
	opts.MaxAge = -1
	sess.Options = opts
	_ = sess.Save(r, w)

	if !ok || state == "" {
		return "", false
	}
	return state, true
}

// SetSession writes the session cookie. All four fields are replaced on
// every write; there is no partial update.
func (m *Manager) SetSession(r *http.Request, w http.ResponseWriter, s *Session) error {
	sess, err := m.store.Get(r, SessionName)
	if err != nil {
		sess, _ = m.store.New(r, SessionName)
	}

	sess.Values[userIDKey] = s.UserID
	sess.Values[accessTokenKey] = s.AccessToken
	sess.Values[refreshTokenKey] = s.RefreshToken
	sess.Values[expiresAtKey] = s.ExpiresAt.Unix()
	return sess.Save(r, w)
}

// GetSession decodes the session cookie. It does not check expiry; that is
// the lifecycle manager's call to make.
func (m *Manager) GetSession(r *http.Request) (*Session, error) {
	sess, err := m.store.Get(r, SessionName)
	if err != nil {
		return nil, ErrNoSession
	}

	userID, ok := sess.Values[userIDKey].(string)
	if !ok || userID == "" {
		return nil, ErrNoSession
	}

	accessToken, _ := sess.Values[accessTokenKey].(string)
	refreshToken, _ := sess.Values[refreshTokenKey].(string)
	expiresAt, ok := sess.Values[expiresAtKey].(int64)
	if !ok {
		return nil, ErrNoSession
	}

	return &Session{
		UserID:       userID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    time.Unix(expiresAt, 0),
	}, nil
}

// ClearSession removes the session cookie. Clearing an absent session is
// not an error.
func (m *Manager) ClearSession(r *http.Request, w http.ResponseWriter) error {
	sess, err := m.store.Get(r, SessionName)
	if err != nil {
		return nil
	}

	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

func (m *Manager) stateOptions() *sessions.Options {
	return &sessions.Options{
		Path:     "/",
		MaxAge:   stateMaxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
