package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/roombridge/internal/store"
	"github.com/kiranshivaraju/roombridge/pkg/models"
)

// SessionLookup maps a host session id to a user id.
type SessionLookup interface {
	GetSessionUser(ctx context.Context, sessionID string) (uuid.UUID, bool, error)
}

// UserLookup loads host users.
type UserLookup interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Session identifies the signed-in host user from the session cookie.
// Requests without a usable session continue anonymously.
type Session struct {
	cookie   string
	sessions SessionLookup
	users    UserLookup
}

func NewSession(cookie string, sessions SessionLookup, users UserLookup) *Session {
	return &Session{cookie: cookie, sessions: sessions, users: users}
}

func (s *Session) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user := s.lookup(r); user != nil {
			r = r.WithContext(SetCurrentUser(r.Context(), user))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Session) lookup(r *http.Request) *models.User {
	c, err := r.Cookie(s.cookie)
	if err != nil || c.Value == "" {
		return nil
	}
	userID, found, err := s.sessions.GetSessionUser(r.Context(), c.Value)
	if err != nil {
		slog.Warn("session lookup failed", "error", err)
		return nil
	}
	if !found {
		return nil
	}
	user, err := s.users.GetUser(r.Context(), userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("loading session user failed", "user_id", userID, "error", err)
		}
		return nil
	}
	return user
}
