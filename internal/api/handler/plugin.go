package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/roombridge/internal/api/response"
	"github.com/kiranshivaraju/roombridge/internal/store"
	"github.com/kiranshivaraju/roombridge/pkg/models"
)

// PluginAdmin is the host-facing plugin surface.
type PluginAdmin interface {
	IsEnabled(ctx context.Context, projectID uuid.UUID) (bool, error)
	IsConfigured(ctx context.Context, projectID uuid.UUID) (bool, error)
	Tenants(ctx context.Context, projectID uuid.UUID) ([]string, error)
	Configure(ctx context.Context, host string, projectID uuid.UUID) (string, error)
	Enable(ctx context.Context, projectID uuid.UUID) error
	Disable(ctx context.Context, projectID uuid.UUID) error
}

// ProjectLookup resolves host projects.
type ProjectLookup interface {
	GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error)
}

type pluginStatus struct {
	ProjectID  uuid.UUID `json:"project_id"`
	Enabled    bool      `json:"enabled"`
	Configured bool      `json:"configured"`
	Tenants    []string  `json:"tenants"`
}

// PluginHandlers serves /api/v1/projects/{projectID}/plugin.
type PluginHandlers struct {
	plugin   PluginAdmin
	projects ProjectLookup
}

func NewPluginHandlers(plugin PluginAdmin, projects ProjectLookup) *PluginHandlers {
	return &PluginHandlers{plugin: plugin, projects: projects}
}

// Status reports whether the plugin is enabled and which tenants it reaches.
func (h *PluginHandlers) Status(w http.ResponseWriter, r *http.Request) {
	project, ok := h.project(w, r)
	if !ok {
		return
	}
	status, err := h.status(r.Context(), project.ID)
	if err != nil {
		apiError(w, r, err)
		return
	}
	response.JSON(w, status)
}

// Configure renders the settings fragment shown inside the host.
func (h *PluginHandlers) Configure(w http.ResponseWriter, r *http.Request) {
	project, ok := h.project(w, r)
	if !ok {
		return
	}
	fragment, err := h.plugin.Configure(r.Context(), r.Host, project.ID)
	if err != nil {
		apiError(w, r, err)
		return
	}
	response.HTML(w, http.StatusOK, fragment)
}

func (h *PluginHandlers) Enable(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.plugin.Enable)
}

// Disable also unlinks every tenant from the project.
func (h *PluginHandlers) Disable(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.plugin.Disable)
}

func (h *PluginHandlers) toggle(w http.ResponseWriter, r *http.Request, fn func(context.Context, uuid.UUID) error) {
	project, ok := h.project(w, r)
	if !ok {
		return
	}
	if err := fn(r.Context(), project.ID); err != nil {
		apiError(w, r, err)
		return
	}
	status, err := h.status(r.Context(), project.ID)
	if err != nil {
		apiError(w, r, err)
		return
	}
	response.JSON(w, status)
}

func (h *PluginHandlers) status(ctx context.Context, projectID uuid.UUID) (*pluginStatus, error) {
	enabled, err := h.plugin.IsEnabled(ctx, projectID)
	if err != nil {
		return nil, err
	}
	configured, err := h.plugin.IsConfigured(ctx, projectID)
	if err != nil {
		return nil, err
	}
	tenants, err := h.plugin.Tenants(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if tenants == nil {
		tenants = []string{}
	}
	return &pluginStatus{ProjectID: projectID, Enabled: enabled, Configured: configured, Tenants: tenants}, nil
}

func (h *PluginHandlers) project(w http.ResponseWriter, r *http.Request) (*models.Project, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "projectID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "projectID must be a UUID", nil)
		return nil, false
	}
	project, err := h.projects.GetProject(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, "PROJECT_NOT_FOUND", "Project not found", nil)
		return nil, false
	}
	if err != nil {
		apiError(w, r, err)
		return nil, false
	}
	return project, true
}
