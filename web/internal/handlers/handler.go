package handlers

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hzshumeng/skillacademy/internal/auth/secondme"
	"github.com/hzshumeng/skillacademy/internal/domain/repositories"
	"github.com/hzshumeng/skillacademy/web/internal/session"
)

// Handler holds dependencies for all web handlers. The persistence handle
// and provider client are injected at startup; there are no process-global
// lookups inside the request paths.
type Handler struct {
	secondme       *secondme.Client
	users          repositories.UserRepository
	sessionManager *session.Manager
	homeURL        string
	dashboardURL   string
	log            *slog.Logger
}

// New creates a new handler with dependencies
func New(client *secondme.Client, users repositories.UserRepository, sessionManager *session.Manager, homeURL, dashboardURL string, logger *slog.Logger) *Handler {
	return &Handler{
		secondme:       client,
		users:          users,
		sessionManager: sessionManager,
		homeURL:        homeURL,
		dashboardURL:   dashboardURL,
		log:            logger.With(slog.String("component", "web_handler")),
	}
}

// redirectError sends the browser to the app home with an error code in the
// query string. Messages are opaque strings; stack traces and cookie state
// never leak here.
func (h *Handler) redirectError(w http.ResponseWriter, r *http.Request, code string) {
	target := h.homeURL + "?error=" + url.QueryEscape(code)
	http.Redirect(w, r, target, http.StatusFound)
}
