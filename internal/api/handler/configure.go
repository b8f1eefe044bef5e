package handler

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/url"

	mw "github.com/kiranshivaraju/roombridge/internal/api/middleware"
	"github.com/kiranshivaraju/roombridge/internal/api/response"
	"github.com/kiranshivaraju/roombridge/internal/roomctx"
	"github.com/kiranshivaraju/roombridge/internal/wizard"
	"github.com/kiranshivaraju/roombridge/pkg/models"
)

// FormLoader builds the two wizard forms.
type FormLoader interface {
	LoadGrantForm(ctx context.Context, tenant *models.Tenant, user *models.User) (*wizard.GrantForm, error)
	LoadProjectForm(ctx context.Context, tenant *models.Tenant) (*wizard.ProjectForm, error)
}

// TenantOrganizations lists the organizations a tenant was granted.
type TenantOrganizations interface {
	ListTenantOrganizations(ctx context.Context, tenantID string) ([]*models.Organization, error)
}

// ConfigureOptions tunes the configure page.
type ConfigureOptions struct {
	LoginURL string
	Debug    bool
}

type configureHandler struct {
	forms FormLoader
	orgs  TenantOrganizations
	opts  ConfigureOptions
}

// NewConfigureHandler returns an http.HandlerFunc for GET and POST
// /configure. It expects the room context and session middleware upstream.
func NewConfigureHandler(forms FormLoader, orgs TenantOrganizations, opts ConfigureOptions) http.HandlerFunc {
	h := &configureHandler{forms: forms, orgs: orgs, opts: opts}
	return h.serve
}

func (h *configureHandler) serve(w http.ResponseWriter, r *http.Request) {
	rc, ok := mw.GetRoomContext(r)
	if !ok {
		response.Text(w, http.StatusUnauthorized, "Invalid signed request")
		return
	}
	user := mw.GetCurrentUser(r)
	tenant := rc.Tenant
	ctx := r.Context()

	page := wizard.Page{
		Tenant:        tenant,
		CurrentUser:   user,
		Action:        r.URL.Path + "?" + url.Values{roomctx.SignedRequestParam: {rc.SignedRequest}}.Encode(),
		SignedRequest: rc.SignedRequest,
		Debug:         h.opts.Debug,
	}

	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			response.Text(w, http.StatusBadRequest, "Malformed form body")
			return
		}
	}

	switch {
	case tenant.AuthUserID == nil && user != nil:
		form, err := h.forms.LoadGrantForm(ctx, tenant, user)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if r.Method == http.MethodPost && form.Bind(r.PostForm) {
			if err := form.Save(ctx); err != nil {
				h.fail(w, r, err)
				return
			}
			slog.Info("tenant access granted", "tenant_id", tenant.ID, "user_id", user.ID)
			http.Redirect(w, r, r.URL.RequestURI(), http.StatusFound)
			return
		}
		page.GrantForm = form

	case tenant.AuthUserID != nil:
		form, err := h.forms.LoadProjectForm(ctx, tenant)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if r.Method == http.MethodPost && form.Bind(r.PostForm) {
			if err := form.Save(ctx); err != nil {
				h.fail(w, r, err)
				return
			}
			slog.Info("tenant projects updated", "tenant_id", tenant.ID)
			http.Redirect(w, r, r.URL.RequestURI(), http.StatusFound)
			return
		}
		page.ProjectForm = form
	}

	if user == nil {
		page.LoginURL = h.opts.LoginURL + "?" + url.Values{"next": {r.URL.RequestURI()}}.Encode()
	}

	orgs, err := h.orgs.ListTenantOrganizations(ctx, tenant.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page.AvailableOrgs = orgs

	var buf bytes.Buffer
	if err := wizard.Render(&buf, page); err != nil {
		h.fail(w, r, err)
		return
	}
	response.HTML(w, http.StatusOK, buf.String())
}

func (h *configureHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("configure page failed", "path", r.URL.Path, "error", err)
	response.Text(w, http.StatusInternalServerError, "Internal error")
}
