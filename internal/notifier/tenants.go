package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/roombridge/internal/store"
)

// EnableForTenant registers the tenant on the project: it enables the plugin,
// adds the tenant to the sorted tenants option and links the project.
// Calling it twice has no further effect.
func EnableForTenant(ctx context.Context, p *Plugin, projectID uuid.UUID, tenantID string) error {
	if err := p.Enable(ctx, projectID); err != nil {
		return fmt.Errorf("enabling plugin: %w", err)
	}

	active, err := p.Tenants(ctx, projectID)
	if err != nil {
		return err
	}
	active = addSorted(active, tenantID)

	if err := p.store.LinkProject(ctx, tenantID, projectID); err != nil {
		return err
	}
	return setTenantsOption(ctx, p.store, projectID, p.Slug, active)
}

// DisableForTenant removes the tenant from the project. When no tenant is
// left the plugin is disabled for the project.
func DisableForTenant(ctx context.Context, p *Plugin, projectID uuid.UUID, tenantID string) error {
	active, err := p.Tenants(ctx, projectID)
	if err != nil {
		return err
	}
	active = remove(active, tenantID)

	if err := p.store.UnlinkProject(ctx, tenantID, projectID); err != nil {
		return err
	}
	if err := setTenantsOption(ctx, p.store, projectID, p.Slug, active); err != nil {
		return err
	}

	if len(active) == 0 {
		if err := p.store.SetPluginEnabled(ctx, projectID, p.Slug, false); err != nil {
			return fmt.Errorf("disabling plugin: %w", err)
		}
	}
	return nil
}

func getTenantsOption(ctx context.Context, opts store.PluginOptions, projectID uuid.UUID, plugin string) ([]string, error) {
	raw, err := opts.GetPluginOption(ctx, projectID, plugin, TenantsOption)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("decoding %s option: %w", TenantsOption, err)
	}
	return ids, nil
}

func setTenantsOption(ctx context.Context, opts store.PluginOptions, projectID uuid.UUID, plugin string, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return opts.SetPluginOption(ctx, projectID, plugin, TenantsOption, raw)
}

func addSorted(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	ids = append(ids, id)
	sort.Strings(ids)
	return ids
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}
