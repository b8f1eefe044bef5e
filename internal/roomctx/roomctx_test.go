package roomctx_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/kiranshivaraju/roombridge/internal/cache"
	"github.com/kiranshivaraju/roombridge/internal/hipchat"
	"github.com/kiranshivaraju/roombridge/internal/hipchat/hipchattest"
	"github.com/kiranshivaraju/roombridge/internal/roomctx"
	"github.com/kiranshivaraju/roombridge/internal/store"
	"github.com/kiranshivaraju/roombridge/pkg/models"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	tenantID = "client-1"
	secret   = "s3cret"
)

type fixture struct {
	chat     *hipchattest.Server
	store    *store.MemoryStore
	cache    *cache.MemoryCache
	resolver *roomctx.Resolver
	tenant   *models.Tenant
}

func setup(t *testing.T) *fixture {
	t.Helper()
	chat := hipchattest.NewServer()
	t.Cleanup(chat.Close)

	caps, err := models.ParseCapabilities(chat.CapabilitiesJSON())
	require.NoError(t, err)

	st := store.NewMemoryStore()
	tenant := &models.Tenant{ID: tenantID, RoomID: 42, Secret: secret, Capabilities: caps}
	require.NoError(t, st.CreateTenant(context.Background(), tenant))

	c := cache.NewMemoryCache()
	return &fixture{
		chat:     chat,
		store:    st,
		cache:    c,
		resolver: roomctx.NewResolver(st, hipchat.NewHTTPClient(5*time.Second), c, time.Minute),
		tenant:   tenant,
	}
}

func sign(t *testing.T, issuer, key string, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewBuilder().
		Issuer(issuer).
		IssuedAt(time.Now()).
		Expiration(exp).
		Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte(key)))
	require.NoError(t, err)
	return string(signed)
}

// --- ForRequest ---

func TestForRequest_AuthorizationHeader(t *testing.T) {
	f := setup(t)
	token := sign(t, tenantID, secret, time.Now().Add(5*time.Minute))

	req := httptest.NewRequest(http.MethodPost, "/webhook/room-message", nil)
	req.Header.Set("Authorization", "JWT "+token)

	rc, err := f.resolver.ForRequest(req, map[string]any{"oauth_client_id": tenantID})
	require.NoError(t, err)
	assert.Equal(t, tenantID, rc.Tenant.ID)
	assert.Equal(t, token, rc.SignedRequest)
}

func TestForRequest_QueryParam(t *testing.T) {
	f := setup(t)
	token := sign(t, tenantID, secret, time.Now().Add(5*time.Minute))

	req := httptest.NewRequest(http.MethodGet, "/configure?signed_request="+url.QueryEscape(token), nil)

	rc, err := f.resolver.ForRequest(req, nil)
	require.NoError(t, err)
	assert.Equal(t, tenantID, rc.Tenant.ID)
}

func TestForRequest_FormValue(t *testing.T) {
	f := setup(t)
	token := sign(t, tenantID, secret, time.Now().Add(5*time.Minute))

	form := url.Values{roomctx.SignedRequestParam: {token}}
	req := httptest.NewRequest(http.MethodPost, "/configure", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rc, err := f.resolver.ForRequest(req, nil)
	require.NoError(t, err)
	assert.Equal(t, tenantID, rc.Tenant.ID)
}

func TestForRequest_Rejections(t *testing.T) {
	f := setup(t)

	tests := []struct {
		name    string
		token   string
		data    map[string]any
		wantErr error
	}{
		{"missing", "", nil, roomctx.ErrInvalidSignedRequest},
		{"garbage", "not.a.jwt", nil, roomctx.ErrInvalidSignedRequest},
		{"bad signature", sign(t, tenantID, "wrong-secret", time.Now().Add(time.Minute)), nil, roomctx.ErrInvalidSignedRequest},
		{"expired", sign(t, tenantID, secret, time.Now().Add(-time.Hour)), nil, roomctx.ErrInvalidSignedRequest},
		{"issuer mismatch", sign(t, tenantID, secret, time.Now().Add(time.Minute)), map[string]any{"oauth_client_id": "other"}, roomctx.ErrInvalidSignedRequest},
		{"unknown tenant", sign(t, "ghost", secret, time.Now().Add(time.Minute)), nil, roomctx.ErrUnknownTenant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/webhook/room-message", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "JWT "+tt.token)
			}
			_, err := f.resolver.ForRequest(req, tt.data)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

// --- SendNotification ---

func TestSendNotification_DefaultsAndOptions(t *testing.T) {
	f := setup(t)
	rc := f.resolver.ForTenant(f.tenant)

	card := &hipchat.Card{Style: hipchat.CardStyleApplication, ID: "sentry/x", Title: "t"}
	err := rc.SendNotification(context.Background(), "<b>hi</b>",
		roomctx.WithColor("red"), roomctx.WithNotify(true), roomctx.WithCard(card))
	require.NoError(t, err)

	got := f.chat.Notifications()
	require.Len(t, got, 1)
	assert.Equal(t, int64(42), got[0].RoomID)
	assert.Equal(t, "<b>hi</b>", got[0].Notification.Message)
	assert.Equal(t, "html", got[0].Notification.MessageFormat)
	assert.Equal(t, "red", got[0].Notification.Color)
	assert.True(t, got[0].Notification.Notify)
	require.NotNil(t, got[0].Notification.Card)
	assert.Equal(t, "sentry/x", got[0].Notification.Card.ID)
}

func TestSendNotification_CachesToken(t *testing.T) {
	f := setup(t)
	rc := f.resolver.ForTenant(f.tenant)
	ctx := context.Background()

	require.NoError(t, rc.SendNotification(ctx, "one"))
	require.NoError(t, rc.SendNotification(ctx, "two"))
	assert.Equal(t, 1, f.chat.TokenRequests())

	require.NoError(t, f.resolver.EvictToken(ctx, tenantID))
	require.NoError(t, rc.SendNotification(ctx, "three"))
	assert.Equal(t, 2, f.chat.TokenRequests())
	assert.Len(t, f.chat.Notifications(), 3)
}

func TestSendNotification_NoRetryOnFailure(t *testing.T) {
	f := setup(t)
	f.chat.FailNotifications(http.StatusServiceUnavailable)
	rc := f.resolver.ForTenant(f.tenant)

	err := rc.SendNotification(context.Background(), "boom")
	assert.ErrorIs(t, err, hipchat.ErrAPI)
}

// --- RefreshRoomInfo ---

func TestRefreshRoomInfo_Persists(t *testing.T) {
	f := setup(t)
	f.chat.AddRoom(42, "Ops", "Jane")
	ctx := context.Background()

	require.NoError(t, f.resolver.ForTenant(f.tenant).RefreshRoomInfo(ctx))

	got, err := f.store.GetTenant(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, "Ops", got.RoomName)
	assert.Equal(t, "Jane", got.RoomOwnerName)
}

func TestRefreshRoomInfo_Failure(t *testing.T) {
	f := setup(t)
	f.chat.FailRoom(http.StatusForbidden)

	err := f.resolver.ForTenant(f.tenant).RefreshRoomInfo(context.Background())
	assert.ErrorIs(t, err, hipchat.ErrAPI)
}
