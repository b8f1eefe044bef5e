package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/roombridge/internal/store"
	"github.com/kiranshivaraju/roombridge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMemory(t *testing.T) (*store.MemoryStore, hostFixture) {
	t.Helper()
	m := store.NewMemoryStore()
	f := hostFixture{
		user:     uuid.New(),
		org:      uuid.New(),
		team:     uuid.New(),
		projects: []uuid.UUID{uuid.New(), uuid.New()},
	}
	m.AddUser(models.User{ID: f.user, Username: "jane"})
	m.AddOrganization(models.Organization{ID: f.org, Slug: "acme", Name: "Acme"}, f.user)
	m.AddTeam(models.Team{ID: f.team, OrganizationID: f.org, Slug: "core", Name: "Core"}, f.user)
	m.AddProject(models.Project{ID: f.projects[0], OrganizationID: f.org, TeamID: f.team, Slug: "web", Name: "web"})
	m.AddProject(models.Project{ID: f.projects[1], OrganizationID: f.org, TeamID: f.team, Slug: "api", Name: "api"})
	return m, f
}

func TestMemoryStore_TenantLifecycle(t *testing.T) {
	m, f := seedMemory(t)
	ctx := context.Background()

	require.NoError(t, m.CreateTenant(ctx, newTenant("c1")))
	assert.ErrorIs(t, m.CreateTenant(ctx, newTenant("c1")), store.ErrDuplicateKey)

	require.NoError(t, m.LinkProject(ctx, "c1", f.projects[0]))
	tenants, err := m.ListTenantsForProject(ctx, f.projects[0])
	require.NoError(t, err)
	require.Len(t, tenants, 1)
	assert.Equal(t, "c1", tenants[0].ID)

	require.NoError(t, m.DeleteTenant(ctx, "c1"))
	tenants, err = m.ListTenantsForProject(ctx, f.projects[0])
	require.NoError(t, err)
	assert.Empty(t, tenants)

	_, err = m.GetTenant(ctx, "c1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, m.DeleteTenant(ctx, "c1"), store.ErrNotFound)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	m, f := seedMemory(t)
	ctx := context.Background()
	require.NoError(t, m.CreateTenant(ctx, newTenant("c1")))

	got, err := m.GetTenant(ctx, "c1")
	require.NoError(t, err)
	got.RoomName = "mutated"
	got.AuthUserID = &f.user

	again, err := m.GetTenant(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, again.RoomName)
	assert.Nil(t, again.AuthUserID)
}

func TestMemoryStore_TeamsWithProjectsSorted(t *testing.T) {
	m, f := seedMemory(t)

	teams, err := m.ListTeamsWithProjects(context.Background(), f.org, f.user)
	require.NoError(t, err)
	require.Len(t, teams, 1)
	require.Len(t, teams[0].Projects, 2)
	assert.Equal(t, "api", teams[0].Projects[0].Name)
	assert.Equal(t, "web", teams[0].Projects[1].Name)
}

func TestMemoryStore_Orphans(t *testing.T) {
	m, f := seedMemory(t)
	ctx := context.Background()

	tn := newTenant("c1")
	tn.AuthUserID = &f.user
	require.NoError(t, m.CreateTenant(ctx, tn))
	require.NoError(t, m.CreateTenant(ctx, newTenant("c2")))

	orphans, err := m.ListOrphanTenants(ctx)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, "c1", orphans[0].ID)

	require.NoError(t, m.LinkProject(ctx, "c1", f.projects[0]))
	orphans, err = m.ListOrphanTenants(ctx)
	require.NoError(t, err)
	assert.Empty(t, orphans)
}

func TestMemoryStore_PluginOptionUnset(t *testing.T) {
	m, f := seedMemory(t)

	v, err := m.GetPluginOption(context.Background(), f.projects[0], "hipchat", "tenants")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestMemoryStore_WithTxRollsBackOnError(t *testing.T) {
	m, f := seedMemory(t)
	ctx := context.Background()
	require.NoError(t, m.CreateTenant(ctx, newTenant("c1")))

	err := m.WithTx(ctx, func(tx store.Store) error {
		require.NoError(t, tx.LinkProject(ctx, "c1", f.projects[0]))
		require.NoError(t, tx.SetPluginOption(ctx, f.projects[0], "hipchat", "tenants", []byte(`["c1"]`)))
		require.NoError(t, tx.DeleteTenant(ctx, "c1"))
		return errors.New("abort")
	})
	assert.EqualError(t, err, "abort")

	_, err = m.GetTenant(ctx, "c1")
	require.NoError(t, err)
	linked, err := m.ListTenantProjects(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, linked)
	v, err := m.GetPluginOption(ctx, f.projects[0], "hipchat", "tenants")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestMemoryStore_WithTxNestedJoinsOuter(t *testing.T) {
	m, f := seedMemory(t)
	ctx := context.Background()
	require.NoError(t, m.CreateTenant(ctx, newTenant("c1")))

	err := m.WithTx(ctx, func(tx store.Store) error {
		if err := tx.WithTx(ctx, func(inner store.Store) error {
			return inner.LinkProject(ctx, "c1", f.projects[0])
		}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	linked, err := m.ListTenantProjects(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, linked, "inner writes roll back with the outer transaction")

	require.NoError(t, m.WithTx(ctx, func(tx store.Store) error {
		return tx.LinkProject(ctx, "c1", f.projects[1])
	}))
	linked, err = m.ListTenantProjects(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, linked, 1)
}
