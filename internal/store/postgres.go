package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/roombridge/pkg/models"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx. Begin on a pgx.Tx
// opens a savepoint.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
	db   dbtx
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, db: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&PostgresStore{pool: s.pool, db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// --- Tenants ---

const tenantColumns = `t.id, t.room_id, t.secret, t.capabilities, t.room_name, t.room_owner_name, t.auth_user_id, t.created_at, t.updated_at`

func scanTenant(row pgx.Row) (*models.Tenant, error) {
	var (
		t      models.Tenant
		secret string
		caps   []byte
	)
	if err := row.Scan(&t.ID, &t.RoomID, &secret, &caps, &t.RoomName, &t.RoomOwnerName,
		&t.AuthUserID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Secret = models.Secret(secret)
	if len(caps) > 0 {
		parsed, err := models.ParseCapabilities(caps)
		if err != nil {
			return nil, err
		}
		t.Capabilities = parsed
	}
	return &t, nil
}

func (s *PostgresStore) CreateTenant(ctx context.Context, t *models.Tenant) error {
	caps, err := t.Capabilities.JSON()
	if err != nil {
		return fmt.Errorf("encode capabilities: %w", err)
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	_, err = s.db.Exec(ctx,
		`INSERT INTO hipchat_tenants (id, room_id, secret, capabilities, room_name, room_owner_name, auth_user_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.RoomID, t.Secret.Reveal(), caps, t.RoomName, t.RoomOwnerName, t.AuthUserID, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	t, err := scanTenant(s.db.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM hipchat_tenants t WHERE t.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) UpdateTenant(ctx context.Context, t *models.Tenant) error {
	t.UpdatedAt = time.Now().UTC()
	tag, err := s.db.Exec(ctx,
		`UPDATE hipchat_tenants SET room_name = $2, room_owner_name = $3, auth_user_id = $4, updated_at = $5
		 WHERE id = $1`,
		t.ID, t.RoomName, t.RoomOwnerName, t.AuthUserID, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteTenant(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM hipchat_tenants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListTenantsForProject(ctx context.Context, projectID uuid.UUID) ([]*models.Tenant, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+tenantColumns+`
		 FROM hipchat_tenants t
		 JOIN hipchat_tenant_projects tp ON tp.tenant_id = t.id
		 WHERE tp.project_id = $1
		 ORDER BY t.id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tenants for project: %w", err)
	}
	defer rows.Close()

	var tenants []*models.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// SetTenantOrganizations replaces the tenant's organization set in one transaction.
func (s *PostgresStore) SetTenantOrganizations(ctx context.Context, tenantID string, orgIDs []uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin set tenant organizations: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM hipchat_tenant_organizations WHERE tenant_id = $1`, tenantID); err != nil {
		return fmt.Errorf("clear tenant organizations: %w", err)
	}
	for _, orgID := range orgIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO hipchat_tenant_organizations (tenant_id, organization_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`, tenantID, orgID); err != nil {
			return fmt.Errorf("link tenant organization: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ListTenantOrganizations(ctx context.Context, tenantID string) ([]*models.Organization, error) {
	rows, err := s.db.Query(ctx,
		`SELECT o.id, o.slug, o.name, o.created_at
		 FROM organizations o
		 JOIN hipchat_tenant_organizations tog ON tog.organization_id = o.id
		 WHERE tog.tenant_id = $1
		 ORDER BY lower(o.name)`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list tenant organizations: %w", err)
	}
	defer rows.Close()
	return scanOrganizations(rows)
}

func (s *PostgresStore) LinkProject(ctx context.Context, tenantID string, projectID uuid.UUID) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO hipchat_tenant_projects (tenant_id, project_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`, tenantID, projectID)
	if err != nil {
		return fmt.Errorf("link project: %w", err)
	}
	return nil
}

func (s *PostgresStore) UnlinkProject(ctx context.Context, tenantID string, projectID uuid.UUID) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM hipchat_tenant_projects WHERE tenant_id = $1 AND project_id = $2`, tenantID, projectID)
	if err != nil {
		return fmt.Errorf("unlink project: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTenantProjects(ctx context.Context, tenantID string) ([]*models.Project, error) {
	rows, err := s.db.Query(ctx,
		`SELECT p.id, p.organization_id, p.team_id, p.slug, p.name
		 FROM projects p
		 JOIN hipchat_tenant_projects tp ON tp.project_id = p.id
		 WHERE tp.tenant_id = $1
		 ORDER BY p.name`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list tenant projects: %w", err)
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.OrganizationID, &p.TeamID, &p.Slug, &p.Name); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

func (s *PostgresStore) ListOrphanTenants(ctx context.Context) ([]*models.Tenant, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+tenantColumns+`
		 FROM hipchat_tenants t
		 WHERE t.auth_user_id IS NOT NULL
		   AND NOT EXISTS (SELECT 1 FROM hipchat_tenant_projects tp WHERE tp.tenant_id = t.id)
		 ORDER BY t.id`)
	if err != nil {
		return nil, fmt.Errorf("list orphan tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*models.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// --- Directory ---

func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(ctx,
		`SELECT id, username, email, created_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	var p models.Project
	err := s.db.QueryRow(ctx,
		`SELECT id, organization_id, team_id, slug, name FROM projects WHERE id = $1`, id,
	).Scan(&p.ID, &p.OrganizationID, &p.TeamID, &p.Slug, &p.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) ListOrganizationsForUser(ctx context.Context, userID uuid.UUID) ([]*models.Organization, error) {
	rows, err := s.db.Query(ctx,
		`SELECT o.id, o.slug, o.name, o.created_at
		 FROM organizations o
		 JOIN organization_members om ON om.organization_id = o.id
		 WHERE om.user_id = $1
		 ORDER BY lower(o.name)`, userID)
	if err != nil {
		return nil, fmt.Errorf("list organizations for user: %w", err)
	}
	defer rows.Close()
	return scanOrganizations(rows)
}

func (s *PostgresStore) ListTeamsWithProjects(ctx context.Context, orgID, userID uuid.UUID) ([]models.TeamProjects, error) {
	rows, err := s.db.Query(ctx,
		`SELECT t.id, t.organization_id, t.slug, t.name,
		        p.id, p.organization_id, p.team_id, p.slug, p.name
		 FROM teams t
		 JOIN team_members tm ON tm.team_id = t.id
		 LEFT JOIN projects p ON p.team_id = t.id
		 WHERE t.organization_id = $1 AND tm.user_id = $2
		 ORDER BY t.name, t.id, p.name`, orgID, userID)
	if err != nil {
		return nil, fmt.Errorf("list teams with projects: %w", err)
	}
	defer rows.Close()

	var out []models.TeamProjects
	for rows.Next() {
		var (
			team                      models.Team
			projID, projOrg, projTeam *uuid.UUID
			projSlug, projName        *string
		)
		if err := rows.Scan(&team.ID, &team.OrganizationID, &team.Slug, &team.Name,
			&projID, &projOrg, &projTeam, &projSlug, &projName); err != nil {
			return nil, fmt.Errorf("scan team project: %w", err)
		}
		if len(out) == 0 || out[len(out)-1].Team.ID != team.ID {
			out = append(out, models.TeamProjects{Team: team})
		}
		if projID != nil {
			last := &out[len(out)-1]
			last.Projects = append(last.Projects, models.Project{
				ID:             *projID,
				OrganizationID: *projOrg,
				TeamID:         *projTeam,
				Slug:           *projSlug,
				Name:           *projName,
			})
		}
	}
	return out, rows.Err()
}

func scanOrganizations(rows pgx.Rows) ([]*models.Organization, error) {
	var orgs []*models.Organization
	for rows.Next() {
		var o models.Organization
		if err := rows.Scan(&o.ID, &o.Slug, &o.Name, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		orgs = append(orgs, &o)
	}
	return orgs, rows.Err()
}

// --- Plugin options ---

func (s *PostgresStore) IsPluginEnabled(ctx context.Context, projectID uuid.UUID, plugin string) (bool, error) {
	var enabled bool
	err := s.db.QueryRow(ctx,
		`SELECT enabled FROM project_plugins WHERE project_id = $1 AND plugin = $2`, projectID, plugin,
	).Scan(&enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get plugin state: %w", err)
	}
	return enabled, nil
}

func (s *PostgresStore) SetPluginEnabled(ctx context.Context, projectID uuid.UUID, plugin string, enabled bool) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO project_plugins (project_id, plugin, enabled, updated_at) VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (project_id, plugin) DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = NOW()`,
		projectID, plugin, enabled)
	if err != nil {
		return fmt.Errorf("set plugin state: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPluginOption(ctx context.Context, projectID uuid.UUID, plugin, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow(ctx,
		`SELECT value FROM project_plugin_options WHERE project_id = $1 AND plugin = $2 AND key = $3`,
		projectID, plugin, key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get plugin option: %w", err)
	}
	return value, nil
}

func (s *PostgresStore) SetPluginOption(ctx context.Context, projectID uuid.UUID, plugin, key string, value []byte) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO project_plugin_options (project_id, plugin, key, value, updated_at) VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (project_id, plugin, key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		projectID, plugin, key, value)
	if err != nil {
		return fmt.Errorf("set plugin option: %w", err)
	}
	return nil
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

var _ Store = (*PostgresStore)(nil)
