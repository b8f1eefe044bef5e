// Package roomctx binds a tenant to the chat API: it resolves tenants from
// signed requests and sends room notifications on their behalf.
package roomctx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kiranshivaraju/roombridge/internal/cache"
	"github.com/kiranshivaraju/roombridge/internal/hipchat"
	"github.com/kiranshivaraju/roombridge/internal/store"
	"github.com/kiranshivaraju/roombridge/pkg/models"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

var (
	ErrInvalidSignedRequest = errors.New("invalid signed request")
	ErrUnknownTenant        = errors.New("unknown tenant")
)

// SignedRequestParam carries the signed request on configure links and form posts.
const SignedRequestParam = "signed_request"

const clockSkew = 30 * time.Second

// Resolver builds Contexts for stored tenants and incoming signed requests.
type Resolver struct {
	tenants     store.TenantStore
	client      hipchat.Client
	cache       cache.Cache
	tokenMargin time.Duration
	logger      *slog.Logger
}

// NewResolver creates a Resolver. Access tokens are cached until tokenMargin
// before they expire.
func NewResolver(tenants store.TenantStore, client hipchat.Client, c cache.Cache, tokenMargin time.Duration) *Resolver {
	return &Resolver{
		tenants:     tenants,
		client:      client,
		cache:       c,
		tokenMargin: tokenMargin,
		logger:      slog.With("component", "roomctx"),
	}
}

// ForTenant returns a Context for a tenant loaded from storage.
func (r *Resolver) ForTenant(t *models.Tenant) *Context {
	return &Context{Tenant: t, resolver: r}
}

// ForRequest authenticates a request signed by the chat server. The issuer
// claim names the tenant; when data carries an oauth_client_id it must agree.
func (r *Resolver) ForRequest(req *http.Request, data map[string]any) (*Context, error) {
	raw := SignedRequestFrom(req)
	if raw == "" {
		return nil, fmt.Errorf("%w: missing token", ErrInvalidSignedRequest)
	}

	unverified, err := jwt.ParseInsecure([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignedRequest, err)
	}
	tenantID := unverified.Issuer()
	if tenantID == "" {
		return nil, fmt.Errorf("%w: missing issuer", ErrInvalidSignedRequest)
	}
	if v, ok := data["oauth_client_id"]; ok {
		if id, _ := v.(string); id != tenantID {
			return nil, fmt.Errorf("%w: issuer does not match oauth_client_id", ErrInvalidSignedRequest)
		}
	}

	tenant, err := r.tenants.GetTenant(req.Context(), tenantID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTenant, tenantID)
	}
	if err != nil {
		return nil, err
	}

	_, err = jwt.Parse([]byte(raw),
		jwt.WithKey(jwa.HS256, []byte(tenant.Secret.Reveal())),
		jwt.WithIssuer(tenant.ID),
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(clockSkew),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignedRequest, err)
	}

	return &Context{Tenant: tenant, SignedRequest: raw, resolver: r}, nil
}

// SignedRequestFrom extracts the raw token from the Authorization header
// ("JWT <token>") or the signed_request query/form value.
func SignedRequestFrom(req *http.Request) string {
	if h := req.Header.Get("Authorization"); h != "" {
		if scheme, tok, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "JWT") {
			return strings.TrimSpace(tok)
		}
	}
	if v := req.URL.Query().Get(SignedRequestParam); v != "" {
		return v
	}
	if req.Method == http.MethodPost && strings.HasPrefix(req.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		return req.FormValue(SignedRequestParam)
	}
	return ""
}

// EvictToken drops a cached access token, if any.
func (r *Resolver) EvictToken(ctx context.Context, tenantID string) error {
	return r.cache.Delete(ctx, cache.TokenKey(tenantID))
}

func (r *Resolver) accessToken(ctx context.Context, t *models.Tenant) (string, error) {
	key := cache.TokenKey(t.ID)
	if val, found, err := r.cache.Get(ctx, key); err != nil {
		r.logger.Warn("token cache read failed", "tenant_id", t.ID, "error", err)
	} else if found {
		return string(val), nil
	}

	tok, err := r.client.FetchToken(ctx, hipchat.Credentials{
		ClientID:     t.ID,
		ClientSecret: t.Secret.Reveal(),
		TokenURL:     t.Capabilities.TokenURL(),
	})
	if err != nil {
		return "", fmt.Errorf("fetching access token: %w", err)
	}

	if !tok.Expiry.IsZero() {
		if ttl := time.Until(tok.Expiry) - r.tokenMargin; ttl > 0 {
			if err := r.cache.Set(ctx, key, []byte(tok.AccessToken), ttl); err != nil {
				r.logger.Warn("token cache write failed", "tenant_id", t.ID, "error", err)
			}
		}
	}
	return tok.AccessToken, nil
}

// Context is a tenant bound to the chat API. It lives for one request.
type Context struct {
	Tenant        *models.Tenant
	SignedRequest string

	resolver *Resolver
}

// Option customizes a notification.
type Option func(*hipchat.Notification)

func WithColor(color string) Option {
	return func(n *hipchat.Notification) { n.Color = color }
}

func WithNotify(notify bool) Option {
	return func(n *hipchat.Notification) { n.Notify = notify }
}

func WithCard(card *hipchat.Card) Option {
	return func(n *hipchat.Notification) { n.Card = card }
}

// SendNotification posts one HTML notification to the tenant's room.
// There is no retry.
func (c *Context) SendNotification(ctx context.Context, message string, opts ...Option) error {
	n := hipchat.Notification{Message: message, MessageFormat: "html"}
	for _, opt := range opts {
		opt(&n)
	}

	token, err := c.resolver.accessToken(ctx, c.Tenant)
	if err != nil {
		return err
	}
	if err := c.resolver.client.SendRoomNotification(ctx, c.Tenant.Capabilities.APIURL(), token, c.Tenant.RoomID, n); err != nil {
		return fmt.Errorf("sending notification to room %d: %w", c.Tenant.RoomID, err)
	}
	return nil
}

// RefreshRoomInfo fetches the room's name and owner and persists them.
func (c *Context) RefreshRoomInfo(ctx context.Context) error {
	token, err := c.resolver.accessToken(ctx, c.Tenant)
	if err != nil {
		return err
	}
	room, err := c.resolver.client.GetRoom(ctx, c.Tenant.Capabilities.APIURL(), token, c.Tenant.RoomID)
	if err != nil {
		return fmt.Errorf("fetching room %d: %w", c.Tenant.RoomID, err)
	}

	c.Tenant.RoomName = room.Name
	c.Tenant.RoomOwnerName = room.OwnerName()
	if err := c.resolver.tenants.UpdateTenant(ctx, c.Tenant); err != nil {
		return fmt.Errorf("saving room info: %w", err)
	}
	return nil
}
