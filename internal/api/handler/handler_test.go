package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/roombridge/internal/api/handler"
	mw "github.com/kiranshivaraju/roombridge/internal/api/middleware"
	"github.com/kiranshivaraju/roombridge/internal/cache"
	"github.com/kiranshivaraju/roombridge/internal/config"
	"github.com/kiranshivaraju/roombridge/internal/hipchat"
	"github.com/kiranshivaraju/roombridge/internal/hipchat/hipchattest"
	"github.com/kiranshivaraju/roombridge/internal/install"
	"github.com/kiranshivaraju/roombridge/internal/notifier"
	"github.com/kiranshivaraju/roombridge/internal/roomctx"
	"github.com/kiranshivaraju/roombridge/internal/store"
	"github.com/kiranshivaraju/roombridge/internal/wizard"
	"github.com/kiranshivaraju/roombridge/pkg/models"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"
)

const (
	baseURL  = "https://bridge.example.com"
	loginURL = "/auth/login/"
	cookie   = "sessionid"
)

type nopRecorder struct{}

func (nopRecorder) InstallResult(string)              {}
func (nopRecorder) UninstallResult(string)            {}
func (nopRecorder) NotificationResult(string, string) {}

type fixture struct {
	chat     *hipchattest.Server
	store    *store.MemoryStore
	cache    *cache.MemoryCache
	resolver *roomctx.Resolver
	plugin   *notifier.Plugin
	router   http.Handler

	user    models.User
	org     models.Organization
	project models.Project
}

// setup wires the handlers the way the server does, on in-memory backends
// and a fake chat server.
func setup(t *testing.T) *fixture {
	t.Helper()
	chat := hipchattest.NewServer()
	t.Cleanup(chat.Close)

	st := store.NewMemoryStore()
	c := cache.NewMemoryCache()
	client := hipchat.NewHTTPClient(5 * time.Second)
	resolver := roomctx.NewResolver(st, client, c, time.Minute)

	user := models.User{ID: uuid.New(), Username: "jane"}
	org := models.Organization{ID: uuid.New(), Slug: "acme", Name: "Acme"}
	team := models.Team{ID: uuid.New(), OrganizationID: org.ID, Slug: "core", Name: "Core"}
	project := models.Project{ID: uuid.New(), OrganizationID: org.ID, TeamID: team.ID, Slug: "api", Name: "API"}
	st.AddUser(user)
	st.AddOrganization(org, user.ID)
	st.AddTeam(team, user.ID)
	st.AddProject(project)

	plugin := notifier.New(st, resolver, nopRecorder{}, notifier.Options{
		Timeout:            3 * time.Second,
		OrphanPolicy:       config.OrphanPolicyRetain,
		BaseURL:            baseURL,
		HostedDomainSuffix: ".getsentry.com",
	})
	hs := install.NewHandshake(st, client, resolver, plugin, nopRecorder{}, install.Options{
		CapabilitiesTimeout:      2 * time.Second,
		RollbackOnRefreshFailure: true,
	})
	signed := mw.NewSignedRequest(resolver)
	session := mw.NewSession(cookie, c, st)
	plugins := handler.NewPluginHandlers(plugin, st)
	configure := handler.NewConfigureHandler(wizard.New(st, plugin), st, handler.ConfigureOptions{LoginURL: loginURL})

	r := chi.NewRouter()
	r.Get(handler.DescriptorPath, handler.NewDescriptorHandler(baseURL))
	r.Post(handler.InstallablePath, handler.NewInstallHandler(hs))
	r.Delete(handler.InstallablePath+"/{oauthID}", handler.NewUninstallHandler(hs))
	r.With(signed.RoomContext, session.Identify).Get(handler.ConfigurePath, configure)
	r.With(signed.RoomContext, session.Identify).Post(handler.ConfigurePath, configure)
	r.With(signed.Webhook).Post(handler.RoomMessagePath, handler.NewRoomMessageHandler())
	r.Post("/api/v1/events", handler.NewEventHandler(plugin))
	r.Post("/api/v1/alerts", handler.NewAlertHandler(plugin))
	r.Route("/api/v1/projects/{projectID}/plugin", func(r chi.Router) {
		r.Get("/", plugins.Status)
		r.Get("/configure", plugins.Configure)
		r.Post("/enable", plugins.Enable)
		r.Post("/disable", plugins.Disable)
	})

	return &fixture{
		chat:     chat,
		store:    st,
		cache:    c,
		resolver: resolver,
		plugin:   plugin,
		router:   r,
		user:     user,
		org:      org,
		project:  project,
	}
}

func (f *fixture) serve(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

// addTenant stores an installed tenant whose API is the fake chat server.
func (f *fixture) addTenant(t *testing.T, id string, roomID int64) *models.Tenant {
	t.Helper()
	caps, err := models.ParseCapabilities(f.chat.CapabilitiesJSON())
	require.NoError(t, err)
	tenant := &models.Tenant{ID: id, RoomID: roomID, Secret: models.Secret("secret-" + id), Capabilities: caps}
	require.NoError(t, f.store.CreateTenant(context.Background(), tenant))
	return tenant
}

func (f *fixture) login(t *testing.T, req *http.Request) {
	t.Helper()
	require.NoError(t, f.cache.SetSessionUser(context.Background(), "sess-1", f.user.ID, time.Hour))
	req.AddCookie(&http.Cookie{Name: cookie, Value: "sess-1"})
}

func sign(t *testing.T, tenant *models.Tenant) string {
	t.Helper()
	tok, err := jwt.NewBuilder().
		Issuer(tenant.ID).
		IssuedAt(time.Now()).
		Expiration(time.Now().Add(5 * time.Minute)).
		Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte(tenant.Secret.Reveal())))
	require.NoError(t, err)
	return string(signed)
}
