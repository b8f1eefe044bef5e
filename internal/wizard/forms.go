// Package wizard implements the two configuration steps a room administrator
// goes through: granting access to organizations, then picking projects.
package wizard

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/roombridge/internal/notifier"
	"github.com/kiranshivaraju/roombridge/internal/store"
	"github.com/kiranshivaraju/roombridge/pkg/models"
)

// Form field names.
const (
	FieldOrgs     = "orgs"
	FieldProjects = "projects"
)

// Choice is one checkbox.
type Choice struct {
	Value string
	Label string
}

// Wizard loads forms for a tenant.
type Wizard struct {
	store  store.Store
	plugin *notifier.Plugin
}

func New(st store.Store, plugin *notifier.Plugin) *Wizard {
	return &Wizard{store: st, plugin: plugin}
}

// MultiChoice is a validated multiple-choice field.
type MultiChoice struct {
	Choices  []Choice
	Selected map[string]bool
	Errors   []string
}

func (m *MultiChoice) bind(values []string) bool {
	valid := make(map[string]bool, len(m.Choices))
	for _, c := range m.Choices {
		valid[c.Value] = true
	}
	m.Selected = make(map[string]bool, len(values))
	m.Errors = nil
	for _, v := range values {
		if !valid[v] {
			m.Errors = append(m.Errors, fmt.Sprintf("Select a valid choice. %s is not one of the available choices.", v))
			continue
		}
		m.Selected[v] = true
	}
	return len(m.Errors) == 0
}

// IsSelected reports whether value is checked.
func (m *MultiChoice) IsSelected(value string) bool {
	return m.Selected[value]
}

// GrantForm binds the signed-in user and a set of organizations to a tenant.
type GrantForm struct {
	Orgs MultiChoice

	store  store.Store
	tenant *models.Tenant
	user   *models.User
	bound  bool
}

// LoadGrantForm offers the user's organizations as choices.
func (w *Wizard) LoadGrantForm(ctx context.Context, tenant *models.Tenant, user *models.User) (*GrantForm, error) {
	orgs, err := w.store.ListOrganizationsForUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("listing organizations: %w", err)
	}
	f := &GrantForm{store: w.store, tenant: tenant, user: user}
	for _, o := range orgs {
		f.Orgs.Choices = append(f.Orgs.Choices, Choice{Value: o.ID.String(), Label: o.Name})
	}
	return f, nil
}

// Bind validates posted values. It reports whether the form is valid.
func (f *GrantForm) Bind(values url.Values) bool {
	f.bound = true
	return f.Orgs.bind(values[FieldOrgs])
}

// Save records the authorizing user and the selected organizations in one
// transaction.
func (f *GrantForm) Save(ctx context.Context) error {
	if !f.bound || len(f.Orgs.Errors) > 0 {
		return fmt.Errorf("grant form is not valid")
	}
	var orgIDs []uuid.UUID
	for _, c := range f.Orgs.Choices {
		if f.Orgs.Selected[c.Value] {
			orgIDs = append(orgIDs, uuid.MustParse(c.Value))
		}
	}

	userID := f.user.ID
	updated := *f.tenant
	updated.AuthUserID = &userID
	err := f.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.UpdateTenant(ctx, &updated); err != nil {
			return fmt.Errorf("saving authorizing user: %w", err)
		}
		if err := tx.SetTenantOrganizations(ctx, updated.ID, orgIDs); err != nil {
			return fmt.Errorf("saving organizations: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	*f.tenant = updated
	return nil
}

// ProjectForm picks the projects whose events reach the tenant's room.
type ProjectForm struct {
	Projects MultiChoice

	plugin *notifier.Plugin
	tenant *models.Tenant
	known  []uuid.UUID
	bound  bool
}

// LoadProjectForm enumerates every project the authorizing user can reach
// through team membership, labelled "org/project" and sorted
// case-insensitively. Projects already linked to the tenant start selected.
func (w *Wizard) LoadProjectForm(ctx context.Context, tenant *models.Tenant) (*ProjectForm, error) {
	if tenant.AuthUserID == nil {
		return nil, fmt.Errorf("tenant %s has no authorizing user", tenant.ID)
	}
	userID := *tenant.AuthUserID

	orgs, err := w.store.ListOrganizationsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing organizations: %w", err)
	}

	f := &ProjectForm{plugin: w.plugin, tenant: tenant}
	for _, org := range orgs {
		teams, err := w.store.ListTeamsWithProjects(ctx, org.ID, userID)
		if err != nil {
			return nil, fmt.Errorf("listing teams: %w", err)
		}
		for _, tp := range teams {
			for _, p := range tp.Projects {
				f.Projects.Choices = append(f.Projects.Choices, Choice{
					Value: p.ID.String(),
					Label: org.Name + "/" + p.Name,
				})
				f.known = append(f.known, p.ID)
			}
		}
	}
	sort.SliceStable(f.Projects.Choices, func(i, j int) bool {
		return strings.ToLower(f.Projects.Choices[i].Label) < strings.ToLower(f.Projects.Choices[j].Label)
	})

	linked, err := w.store.ListTenantProjects(ctx, tenant.ID)
	if err != nil {
		return nil, fmt.Errorf("listing linked projects: %w", err)
	}
	f.Projects.Selected = make(map[string]bool, len(linked))
	for _, p := range linked {
		f.Projects.Selected[p.ID.String()] = true
	}
	return f, nil
}

// Bind validates posted values. It reports whether the form is valid.
func (f *ProjectForm) Bind(values url.Values) bool {
	f.bound = true
	return f.Projects.bind(values[FieldProjects])
}

// Save enables the plugin for the tenant on every selected project and
// disables it on every other known project. Either every project is updated
// or none is.
func (f *ProjectForm) Save(ctx context.Context) error {
	if !f.bound || len(f.Projects.Errors) > 0 {
		return fmt.Errorf("project form is not valid")
	}
	return f.plugin.InTx(ctx, func(tx *notifier.Plugin) error {
		for _, id := range f.known {
			var err error
			if f.Projects.Selected[id.String()] {
				err = notifier.EnableForTenant(ctx, tx, id, f.tenant.ID)
			} else {
				err = notifier.DisableForTenant(ctx, tx, id, f.tenant.ID)
			}
			if err != nil {
				return fmt.Errorf("updating project %s: %w", id, err)
			}
		}
		return nil
	})
}
