package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hzshumeng/skillacademy/internal/domain/entities"
	"github.com/hzshumeng/skillacademy/internal/pkg/metrics"
	"github.com/hzshumeng/skillacademy/web/internal/session"
)

// refreshThreshold is how close to expiry an access token may get before a
// read triggers a refresh. A token already past expiry is never refreshed;
// the session is destroyed instead.
const refreshThreshold = 5 * time.Minute

// Login starts the OAuth authorization code flow: generate the CSRF state,
// park it in a short-lived cookie, and redirect to SecondMe.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	state := generateState()

	if err := h.sessionManager.SetState(r, w, state); err != nil {
		h.log.Error("failed to save state cookie", slog.String("error", err.Error()))
		http.Error(w, "Failed to start login", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, h.secondme.AuthorizationURL(state), http.StatusFound)
}

// Callback handles the OAuth redirect back from SecondMe. The guards run in
// order and each one short-circuits to an error redirect: provider error
// passthrough, then exact state match, then code presence. Only after the
// full exchange-userinfo-upsert chain succeeds is the session cookie
// written, so a failure partway leaves no session behind.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if errParam := q.Get("error"); errParam != "" {
		h.log.Warn("provider returned error",
			slog.String("error", errParam),
			slog.String("error_description", q.Get("error_description")))
		metrics.Logins.WithLabelValues("provider_error").Inc()
		h.redirectError(w, r, errParam)
		return
	}

	// The state cookie is consumed here whatever happens next; a replayed
	// callback with the same state finds no cookie and fails.
	state := q.Get("state")
	saved, ok := h.sessionManager.TakeState(r, w)
	if !ok || state == "" || state != saved {
		h.log.Warn("state validation failed - possible CSRF attempt",
			slog.String("received", state))
		metrics.Logins.WithLabelValues("invalid_state").Inc()
		h.redirectError(w, r, "invalid_state")
		return
	}

	code := q.Get("code")
	if code == "" {
		h.log.Warn("callback without authorization code")
		metrics.Logins.WithLabelValues("no_code").Inc()
		h.redirectError(w, r, "no_code")
		return
	}

	ctx := r.Context()

	token, err := h.secondme.ExchangeCode(ctx, code)
	if err != nil {
		h.log.Error("code exchange failed", slog.String("error", err.Error()))
		metrics.Logins.WithLabelValues("exchange_failed").Inc()
		h.redirectError(w, r, err.Error())
		return
	}

	profile, err := h.secondme.UserInfo(ctx, token.AccessToken)
	if err != nil {
		h.log.Error("user info fetch failed", slog.String("error", err.Error()))
		metrics.Logins.WithLabelValues("userinfo_failed").Inc()
		h.redirectError(w, r, err.Error())
		return
	}

	expiresAt := token.ExpiresAt(time.Now())

	user, err := h.users.Upsert(ctx, profile.UserID, entities.Credentials{
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
		TokenExpiresAt: expiresAt,
	})
	if err != nil {
		h.log.Error("user upsert failed", slog.String("error", err.Error()))
		metrics.Logins.WithLabelValues("persist_failed").Inc()
		h.redirectError(w, r, err.Error())
		return
	}

	if err := h.sessionManager.SetSession(r, w, &session.Session{
		UserID:       user.ID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    expiresAt,
	}); err != nil {
		h.log.Error("failed to save session", slog.String("error", err.Error()))
		metrics.Logins.WithLabelValues("session_failed").Inc()
		h.redirectError(w, r, err.Error())
		return
	}

	h.log.Info("login completed", slog.String("user_id", user.ID))
	metrics.Logins.WithLabelValues("success").Inc()
	http.Redirect(w, r, h.dashboardURL, http.StatusFound)
}

// Logout clears the session cookie. It is idempotent: logging out without a
// session succeeds the same way.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	_ = h.sessionManager.ClearSession(r, w)

	if r.Method == http.MethodPost {
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
		return
	}

	http.Redirect(w, r, h.homeURL, http.StatusSeeOther)
}

// UserInfo returns the SecondMe profile for the current session, refreshing
// the access token first when it is within the refresh threshold. The
// refreshed pair is written to both the user record and the session cookie
// so client and server state never diverge.
func (h *Handler) UserInfo(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessionManager.GetSession(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	now := time.Now()
	if sess.Expired(now) {
		// A fully expired session is unauthenticated state, not a
		// refresh candidate.
		_ = h.sessionManager.ClearSession(r, w)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	ctx := r.Context()
	accessToken := sess.AccessToken

	if sess.ExpiresWithin(now, refreshThreshold) {
		token, err := h.secondme.RefreshToken(ctx, sess.RefreshToken)
		if err != nil {
			h.log.Error("token refresh failed",
				slog.String("user_id", sess.UserID),
				slog.String("error", err.Error()))
			metrics.TokenRefreshes.WithLabelValues("error").Inc()
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}

		expiresAt := token.ExpiresAt(time.Now())
		if err := h.users.UpdateTokens(ctx, sess.UserID, entities.Credentials{
			AccessToken:    token.AccessToken,
			RefreshToken:   token.RefreshToken,
			TokenExpiresAt: expiresAt,
		}); err != nil {
			h.log.Error("failed to persist refreshed tokens",
				slog.String("user_id", sess.UserID),
				slog.String("error", err.Error()))
			metrics.TokenRefreshes.WithLabelValues("error").Inc()
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}

		sess.AccessToken = token.AccessToken
		sess.RefreshToken = token.RefreshToken
		sess.ExpiresAt = expiresAt
		if err := h.sessionManager.SetSession(r, w, sess); err != nil {
			h.log.Error("failed to reissue session cookie",
				slog.String("user_id", sess.UserID),
				slog.String("error", err.Error()))
		}

		metrics.TokenRefreshes.WithLabelValues("success").Inc()
		h.log.Debug("access token refreshed", slog.String("user_id", sess.UserID))
		accessToken = token.AccessToken
	}

	profile, err := h.secondme.UserInfo(ctx, accessToken)
	if err != nil {
		h.log.Error("user info fetch failed",
			slog.String("user_id", sess.UserID),
			slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"code": profile.Code,
		"data": profile.Data,
	})
}

// generateState produces the CSRF nonce for one login round trip:
// 128 bits from crypto/rand, base64url encoded.
func generateState() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
