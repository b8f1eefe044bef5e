package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/roombridge/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	// WithTx runs fn against a Store bound to one transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(Store) error) error

	TenantStore
	Directory
	PluginOptions

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
}

// TenantStore persists installed tenants and their organization/project links.
type TenantStore interface {
	CreateTenant(ctx context.Context, t *models.Tenant) error
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	UpdateTenant(ctx context.Context, t *models.Tenant) error
	DeleteTenant(ctx context.Context, id string) error
	ListTenantsForProject(ctx context.Context, projectID uuid.UUID) ([]*models.Tenant, error)

	SetTenantOrganizations(ctx context.Context, tenantID string, orgIDs []uuid.UUID) error
	ListTenantOrganizations(ctx context.Context, tenantID string) ([]*models.Organization, error)

	// LinkProject and UnlinkProject are idempotent.
	LinkProject(ctx context.Context, tenantID string, projectID uuid.UUID) error
	UnlinkProject(ctx context.Context, tenantID string, projectID uuid.UUID) error
	ListTenantProjects(ctx context.Context, tenantID string) ([]*models.Project, error)
	// ListOrphanTenants returns authorized tenants with no linked projects.
	ListOrphanTenants(ctx context.Context) ([]*models.Tenant, error)
}

// Directory exposes the host's users, organizations, teams and projects.
type Directory interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error)
	ListOrganizationsForUser(ctx context.Context, userID uuid.UUID) ([]*models.Organization, error)
	ListTeamsWithProjects(ctx context.Context, orgID, userID uuid.UUID) ([]models.TeamProjects, error)
}

// PluginOptions is the host's per-project plugin state: an enabled flag and
// free-form JSON options keyed by (project, plugin, key).
type PluginOptions interface {
	IsPluginEnabled(ctx context.Context, projectID uuid.UUID, plugin string) (bool, error)
	SetPluginEnabled(ctx context.Context, projectID uuid.UUID, plugin string, enabled bool) error
	// GetPluginOption returns nil when the option was never set.
	GetPluginOption(ctx context.Context, projectID uuid.UUID, plugin, key string) ([]byte, error)
	SetPluginOption(ctx context.Context, projectID uuid.UUID, plugin, key string, value []byte) error
}
