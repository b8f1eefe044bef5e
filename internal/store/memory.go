package store

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/roombridge/pkg/models"
)

// MemoryStore is an in-process Store used by unit and handler tests.
// Returned values are copies.
type MemoryStore struct {
	mu sync.RWMutex
	// txMu serializes WithTx so a rollback never discards another
	// transaction's writes.
	txMu sync.Mutex

	tenants       map[string]models.Tenant
	tenantOrgs    map[string]map[uuid.UUID]bool
	tenantProject map[string]map[uuid.UUID]bool

	users       map[uuid.UUID]models.User
	orgs        map[uuid.UUID]models.Organization
	orgMembers  map[uuid.UUID]map[uuid.UUID]bool
	teams       map[uuid.UUID]models.Team
	teamMembers map[uuid.UUID]map[uuid.UUID]bool
	projects    map[uuid.UUID]models.Project

	pluginEnabled map[pluginKey]bool
	pluginOptions map[pluginKey]map[string][]byte

	apiKeys map[uuid.UUID]models.APIKey
}

type pluginKey struct {
	project uuid.UUID
	plugin  string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:       make(map[string]models.Tenant),
		tenantOrgs:    make(map[string]map[uuid.UUID]bool),
		tenantProject: make(map[string]map[uuid.UUID]bool),
		users:         make(map[uuid.UUID]models.User),
		orgs:          make(map[uuid.UUID]models.Organization),
		orgMembers:    make(map[uuid.UUID]map[uuid.UUID]bool),
		teams:         make(map[uuid.UUID]models.Team),
		teamMembers:   make(map[uuid.UUID]map[uuid.UUID]bool),
		projects:      make(map[uuid.UUID]models.Project),
		pluginEnabled: make(map[pluginKey]bool),
		pluginOptions: make(map[pluginKey]map[string][]byte),
		apiKeys:       make(map[uuid.UUID]models.APIKey),
	}
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

// WithTx snapshots the tenant and plugin state and restores it if fn fails.
// Nested calls join the outer transaction.
func (m *MemoryStore) WithTx(ctx context.Context, fn func(Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snap := m.snapshot()
	if err := fn(memoryTx{m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memoryTx struct {
	*MemoryStore
}

func (tx memoryTx) WithTx(ctx context.Context, fn func(Store) error) error {
	return fn(tx)
}

type memorySnapshot struct {
	tenants       map[string]models.Tenant
	tenantOrgs    map[string]map[uuid.UUID]bool
	tenantProject map[string]map[uuid.UUID]bool
	pluginEnabled map[pluginKey]bool
	pluginOptions map[pluginKey]map[string][]byte
	apiKeys       map[uuid.UUID]models.APIKey
}

func (m *MemoryStore) snapshot() memorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := memorySnapshot{
		tenants:       maps.Clone(m.tenants),
		tenantOrgs:    make(map[string]map[uuid.UUID]bool, len(m.tenantOrgs)),
		tenantProject: make(map[string]map[uuid.UUID]bool, len(m.tenantProject)),
		pluginEnabled: maps.Clone(m.pluginEnabled),
		pluginOptions: make(map[pluginKey]map[string][]byte, len(m.pluginOptions)),
		apiKeys:       maps.Clone(m.apiKeys),
	}
	for k, v := range m.tenantOrgs {
		snap.tenantOrgs[k] = maps.Clone(v)
	}
	for k, v := range m.tenantProject {
		snap.tenantProject[k] = maps.Clone(v)
	}
	for k, v := range m.pluginOptions {
		snap.pluginOptions[k] = maps.Clone(v)
	}
	return snap
}

func (m *MemoryStore) restore(snap memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants = snap.tenants
	m.tenantOrgs = snap.tenantOrgs
	m.tenantProject = snap.tenantProject
	m.pluginEnabled = snap.pluginEnabled
	m.pluginOptions = snap.pluginOptions
	m.apiKeys = snap.apiKeys
}

// --- Seeders ---

// AddUser registers a host user.
func (m *MemoryStore) AddUser(u models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

// AddOrganization registers an organization with the given members.
func (m *MemoryStore) AddOrganization(o models.Organization, members ...uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orgs[o.ID] = o
	set := m.orgMembers[o.ID]
	if set == nil {
		set = make(map[uuid.UUID]bool)
		m.orgMembers[o.ID] = set
	}
	for _, id := range members {
		set[id] = true
	}
}

// AddTeam registers a team with the given members.
func (m *MemoryStore) AddTeam(t models.Team, members ...uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teams[t.ID] = t
	set := m.teamMembers[t.ID]
	if set == nil {
		set = make(map[uuid.UUID]bool)
		m.teamMembers[t.ID] = set
	}
	for _, id := range members {
		set[id] = true
	}
}

// AddProject registers a project.
func (m *MemoryStore) AddProject(p models.Project) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[p.ID] = p
}

// --- Tenants ---

func (m *MemoryStore) CreateTenant(ctx context.Context, t *models.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tenants[t.ID]; ok {
		return ErrDuplicateKey
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	m.tenants[t.ID] = copyTenant(t)
	return nil
}

func (m *MemoryStore) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := copyTenant(&t)
	return &out, nil
}

func (m *MemoryStore) UpdateTenant(ctx context.Context, t *models.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.tenants[t.ID]
	if !ok {
		return ErrNotFound
	}
	t.UpdatedAt = time.Now().UTC()
	cur.RoomName = t.RoomName
	cur.RoomOwnerName = t.RoomOwnerName
	cur.AuthUserID = copyUUID(t.AuthUserID)
	cur.UpdatedAt = t.UpdatedAt
	m.tenants[t.ID] = cur
	return nil
}

func (m *MemoryStore) DeleteTenant(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tenants[id]; !ok {
		return ErrNotFound
	}
	delete(m.tenants, id)
	delete(m.tenantOrgs, id)
	delete(m.tenantProject, id)
	return nil
}

func (m *MemoryStore) ListTenantsForProject(ctx context.Context, projectID uuid.UUID) ([]*models.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Tenant
	for id, projects := range m.tenantProject {
		if !projects[projectID] {
			continue
		}
		t := m.tenants[id]
		c := copyTenant(&t)
		out = append(out, &c)
	}
	sortTenants(out)
	return out, nil
}

func (m *MemoryStore) ListOrphanTenants(ctx context.Context) ([]*models.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Tenant
	for id, t := range m.tenants {
		if t.AuthUserID == nil || len(m.tenantProject[id]) > 0 {
			continue
		}
		c := copyTenant(&t)
		out = append(out, &c)
	}
	sortTenants(out)
	return out, nil
}

func (m *MemoryStore) SetTenantOrganizations(ctx context.Context, tenantID string, orgIDs []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tenants[tenantID]; !ok {
		return ErrNotFound
	}
	set := make(map[uuid.UUID]bool, len(orgIDs))
	for _, id := range orgIDs {
		set[id] = true
	}
	m.tenantOrgs[tenantID] = set
	return nil
}

func (m *MemoryStore) ListTenantOrganizations(ctx context.Context, tenantID string) ([]*models.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Organization
	for id := range m.tenantOrgs[tenantID] {
		if o, ok := m.orgs[id]; ok {
			out = append(out, &o)
		}
	}
	sortOrganizations(out)
	return out, nil
}

func (m *MemoryStore) LinkProject(ctx context.Context, tenantID string, projectID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tenants[tenantID]; !ok {
		return ErrNotFound
	}
	set := m.tenantProject[tenantID]
	if set == nil {
		set = make(map[uuid.UUID]bool)
		m.tenantProject[tenantID] = set
	}
	set[projectID] = true
	return nil
}

func (m *MemoryStore) UnlinkProject(ctx context.Context, tenantID string, projectID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tenantProject[tenantID], projectID)
	return nil
}

func (m *MemoryStore) ListTenantProjects(ctx context.Context, tenantID string) ([]*models.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Project
	for id := range m.tenantProject[tenantID] {
		if p, ok := m.projects[id]; ok {
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// --- Directory ---

func (m *MemoryStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *MemoryStore) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *MemoryStore) ListOrganizationsForUser(ctx context.Context, userID uuid.UUID) ([]*models.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Organization
	for id, members := range m.orgMembers {
		if members[userID] {
			o := m.orgs[id]
			out = append(out, &o)
		}
	}
	sortOrganizations(out)
	return out, nil
}

func (m *MemoryStore) ListTeamsWithProjects(ctx context.Context, orgID, userID uuid.UUID) ([]models.TeamProjects, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.TeamProjects
	for id, team := range m.teams {
		if team.OrganizationID != orgID || !m.teamMembers[id][userID] {
			continue
		}
		tp := models.TeamProjects{Team: team}
		for _, p := range m.projects {
			if p.TeamID == id {
				tp.Projects = append(tp.Projects, p)
			}
		}
		sort.Slice(tp.Projects, func(i, j int) bool { return tp.Projects[i].Name < tp.Projects[j].Name })
		out = append(out, tp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Team.Name != out[j].Team.Name {
			return out[i].Team.Name < out[j].Team.Name
		}
		return out[i].Team.ID.String() < out[j].Team.ID.String()
	})
	return out, nil
}

// --- Plugin options ---

func (m *MemoryStore) IsPluginEnabled(ctx context.Context, projectID uuid.UUID, plugin string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pluginEnabled[pluginKey{projectID, plugin}], nil
}

func (m *MemoryStore) SetPluginEnabled(ctx context.Context, projectID uuid.UUID, plugin string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pluginEnabled[pluginKey{projectID, plugin}] = enabled
	return nil
}

func (m *MemoryStore) GetPluginOption(ctx context.Context, projectID uuid.UUID, plugin, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.pluginOptions[pluginKey{projectID, plugin}][key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStore) SetPluginOption(ctx context.Context, projectID uuid.UUID, plugin, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := pluginKey{projectID, plugin}
	opts := m.pluginOptions[k]
	if opts == nil {
		opts = make(map[string][]byte)
		m.pluginOptions[k] = opts
	}
	opts[key] = append([]byte(nil), value...)
	return nil
}

// --- API Keys ---

func (m *MemoryStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.APIKey
	for _, k := range m.apiKeys {
		if k.KeyPrefix == prefix && k.DeletedAt == nil {
			k := k
			out = append(out, &k)
		}
	}
	return out, nil
}

func (m *MemoryStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.apiKeys[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	k.LastUsedAt = &now
	k.UpdatedAt = now
	m.apiKeys[id] = k
	return nil
}

func (m *MemoryStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.apiKeys[key.ID]; ok {
		return ErrDuplicateKey
	}
	m.apiKeys[key.ID] = *key
	return nil
}

func copyTenant(t *models.Tenant) models.Tenant {
	c := *t
	c.AuthUserID = copyUUID(t.AuthUserID)
	return c
}

func copyUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}

func sortTenants(ts []*models.Tenant) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].ID < ts[j].ID })
}

func sortOrganizations(orgs []*models.Organization) {
	sort.Slice(orgs, func(i, j int) bool {
		return strings.ToLower(orgs[i].Name) < strings.ToLower(orgs[j].Name)
	})
}

var _ Store = (*MemoryStore)(nil)
