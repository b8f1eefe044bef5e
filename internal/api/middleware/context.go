package middleware

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/roombridge/internal/roomctx"
	"github.com/kiranshivaraju/roombridge/pkg/models"
)

type contextKey string

const (
	keyPrefixKey    contextKey = "key_prefix"
	apiKeyScopesKey contextKey = "api_key_scopes"
	roomContextKey  contextKey = "room_context"
	currentUserKey  contextKey = "current_user"
)

func setKeyPrefix(ctx context.Context, prefix string) context.Context {
	return context.WithValue(ctx, keyPrefixKey, prefix)
}

// GetKeyPrefix returns the prefix of the API key that authenticated r.
func GetKeyPrefix(r *http.Request) (string, bool) {
	prefix, ok := r.Context().Value(keyPrefixKey).(string)
	return prefix, ok
}

func setScopes(ctx context.Context, scopes []string) context.Context {
	return context.WithValue(ctx, apiKeyScopesKey, scopes)
}

func getScopes(r *http.Request) []string {
	scopes, _ := r.Context().Value(apiKeyScopesKey).([]string)
	return scopes
}

// SetRoomContext attaches a resolved tenant context.
func SetRoomContext(ctx context.Context, rc *roomctx.Context) context.Context {
	return context.WithValue(ctx, roomContextKey, rc)
}

// GetRoomContext returns the tenant context set by RoomContext.
func GetRoomContext(r *http.Request) (*roomctx.Context, bool) {
	rc, ok := r.Context().Value(roomContextKey).(*roomctx.Context)
	return rc, ok && rc != nil
}

// SetCurrentUser attaches the signed-in host user.
func SetCurrentUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, currentUserKey, u)
}

// GetCurrentUser returns the host user from the session, or nil.
func GetCurrentUser(r *http.Request) *models.User {
	u, _ := r.Context().Value(currentUserKey).(*models.User)
	return u
}
