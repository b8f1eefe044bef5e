// Package notifier forwards host events and alerts to every chat room linked
// to the event's project.
package notifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/roombridge/internal/config"
	"github.com/kiranshivaraju/roombridge/internal/roomctx"
	"github.com/kiranshivaraju/roombridge/internal/store"
	"github.com/kiranshivaraju/roombridge/pkg/models"
)

const (
	Slug          = "hipchat"
	TenantsOption = "tenants"
)

// Link is a titled external resource.
type Link struct {
	Title string
	URL   string
}

// Recorder observes notification deliveries.
type Recorder interface {
	NotificationResult(kind, result string)
}

// Options tunes a Plugin.
type Options struct {
	Timeout            time.Duration
	OrphanPolicy       string
	BaseURL            string
	HostedDomainSuffix string
}

// Plugin is the host-facing notification plugin.
type Plugin struct {
	Slug          string
	Title         string
	Version       string
	Author        string
	AuthorURL     string
	Description   string
	ResourceLinks []Link

	store    store.Store
	resolver *roomctx.Resolver
	recorder Recorder
	opts     Options
	logger   *slog.Logger
}

// Version is reported in the plugin metadata and the descriptor.
const Version = "0.1.0"

func New(st store.Store, resolver *roomctx.Resolver, recorder Recorder, opts Options) *Plugin {
	if opts.OrphanPolicy == "" {
		opts.OrphanPolicy = config.OrphanPolicyRetain
	}
	return &Plugin{
		Slug:        Slug,
		Title:       "Hipchat",
		Version:     Version,
		Author:      "Functional Software Inc.",
		AuthorURL:   "https://github.com/getsentry/sentry-hipchat",
		Description: "Event notification to Hipchat.",
		ResourceLinks: []Link{
			{Title: "Bug Tracker", URL: "https://github.com/getsentry/sentry-hipchat/issues"},
			{Title: "Source", URL: "https://github.com/getsentry/sentry-hipchat"},
		},
		store:    st,
		resolver: resolver,
		recorder: recorder,
		opts:     opts,
		logger:   slog.With("component", "notifier"),
	}
}

// IsConfigured reports whether any tenant is registered for the project.
func (p *Plugin) IsConfigured(ctx context.Context, projectID uuid.UUID) (bool, error) {
	ids, err := p.Tenants(ctx, projectID)
	if err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}

// IsEnabled reports the host-side enabled flag for the project.
func (p *Plugin) IsEnabled(ctx context.Context, projectID uuid.UUID) (bool, error) {
	return p.store.IsPluginEnabled(ctx, projectID, p.Slug)
}

func (p *Plugin) Enable(ctx context.Context, projectID uuid.UUID) error {
	return p.store.SetPluginEnabled(ctx, projectID, p.Slug, true)
}

// InTx runs fn with a copy of the plugin whose store writes share one
// transaction.
func (p *Plugin) InTx(ctx context.Context, fn func(tx *Plugin) error) error {
	return p.store.WithTx(ctx, func(st store.Store) error {
		tx := *p
		tx.store = st
		return fn(&tx)
	})
}

// Disable turns the plugin off for a project and detaches every tenant linked
// to it. Tenants left without projects are then handled by the orphan policy.
func (p *Plugin) Disable(ctx context.Context, projectID uuid.UUID) error {
	return p.InTx(ctx, func(tx *Plugin) error {
		return tx.disable(ctx, projectID)
	})
}

func (p *Plugin) disable(ctx context.Context, projectID uuid.UUID) error {
	if err := p.store.SetPluginEnabled(ctx, projectID, p.Slug, false); err != nil {
		return err
	}

	tenants, err := p.store.ListTenantsForProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("listing tenants for project: %w", err)
	}
	detached := make(map[string]bool, len(tenants))
	for _, t := range tenants {
		if err := DisableForTenant(ctx, p, projectID, t.ID); err != nil {
			return err
		}
		detached[t.ID] = true
	}

	if p.opts.OrphanPolicy == config.OrphanPolicyDelete && len(detached) > 0 {
		return p.deleteOrphans(ctx, detached)
	}
	return nil
}

func (p *Plugin) deleteOrphans(ctx context.Context, candidates map[string]bool) error {
	orphans, err := p.store.ListOrphanTenants(ctx)
	if err != nil {
		return fmt.Errorf("listing orphan tenants: %w", err)
	}
	for _, t := range orphans {
		if !candidates[t.ID] {
			continue
		}
		if err := p.RemoveTenant(ctx, t.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("deleting orphan tenant: %w", err)
		}
		p.logger.Info("orphan tenant deleted", "tenant_id", t.ID)
	}
	return nil
}

// RemoveTenant detaches the tenant from every linked project, then deletes it
// and drops its cached token. Projects left without tenants are disabled.
// It returns store.ErrNotFound when the tenant does not exist.
func (p *Plugin) RemoveTenant(ctx context.Context, tenantID string) error {
	err := p.InTx(ctx, func(tx *Plugin) error {
		projects, err := tx.store.ListTenantProjects(ctx, tenantID)
		if err != nil {
			return fmt.Errorf("listing tenant projects: %w", err)
		}
		for _, project := range projects {
			if err := DisableForTenant(ctx, tx, project.ID, tenantID); err != nil {
				return fmt.Errorf("detaching project %s: %w", project.ID, err)
			}
		}
		return tx.store.DeleteTenant(ctx, tenantID)
	})
	if evictErr := p.resolver.EvictToken(ctx, tenantID); evictErr != nil {
		p.logger.Warn("evicting cached token failed", "tenant_id", tenantID, "error", evictErr)
	}
	return err
}

// Tenants returns the project's registered tenant ids, sorted.
func (p *Plugin) Tenants(ctx context.Context, projectID uuid.UUID) ([]string, error) {
	return getTenantsOption(ctx, p.store, projectID, p.Slug)
}

var configureTmpl = template.Must(template.New("configure").Parse(`<div class="hipchat-settings">
{{- if .Tenants}}
<p>This project sends notifications to the following rooms:</p>
<ul>
{{- range .Tenants}}
<li>{{if .RoomName}}{{.RoomName}}{{else}}Room {{.RoomID}}{{end}}{{if .RoomOwnerName}} (owned by {{.RoomOwnerName}}){{end}}</li>
{{- end}}
</ul>
{{- else}}
<p>No rooms are linked to this project yet.</p>
{{- end}}
{{- if .OnPremise}}
<p>To connect a room, install the integration from your chat server using this descriptor URL:</p>
<p><code>{{.Descriptor}}</code></p>
{{- else}}
<p>Install the integration from the chat server's integration marketplace, then pick this project on its configuration page.</p>
{{- end}}
</div>
`))

// Configure renders the plugin settings fragment. host is the request's Host
// header; anything outside the hosted domain counts as on-premise.
func (p *Plugin) Configure(ctx context.Context, host string, projectID uuid.UUID) (string, error) {
	tenants, err := p.store.ListTenantsForProject(ctx, projectID)
	if err != nil {
		return "", fmt.Errorf("listing tenants for project: %w", err)
	}

	var buf bytes.Buffer
	err = configureTmpl.Execute(&buf, map[string]any{
		"Tenants":    tenants,
		"OnPremise":  !strings.Contains(host, p.opts.HostedDomainSuffix),
		"Descriptor": p.opts.BaseURL + "/descriptor",
	})
	if err != nil {
		return "", fmt.Errorf("rendering configure fragment: %w", err)
	}
	return buf.String(), nil
}

// OnAlert sends an attention-grabbing red message to every linked room.
func (p *Plugin) OnAlert(ctx context.Context, alert models.Alert) (int, error) {
	project, err := p.store.GetProject(ctx, alert.ProjectID)
	if err != nil {
		return 0, fmt.Errorf("loading project: %w", err)
	}
	message := FormatAlert(project.Name, alert.Message, alert.Link)
	return p.broadcast(ctx, "alert", project.ID, message, ColorFor(LevelAlert), false)
}

// NotifyUsers sends the event to every linked room, colored by level. The
// first delivery failure aborts unless failSilently is set, in which case
// failures are logged and skipped.
func (p *Plugin) NotifyUsers(ctx context.Context, event models.Event, failSilently bool) (int, error) {
	project, err := p.store.GetProject(ctx, event.ProjectID)
	if err != nil {
		return 0, fmt.Errorf("loading project: %w", err)
	}
	level := strings.ToUpper(event.Level)
	message := FormatEvent(level, project.Name, event.Message, event.Link)
	return p.broadcast(ctx, "event", project.ID, message, ColorFor(level), failSilently)
}

func (p *Plugin) broadcast(ctx context.Context, kind string, projectID uuid.UUID, message, color string, failSilently bool) (int, error) {
	tenants, err := p.store.ListTenantsForProject(ctx, projectID)
	if err != nil {
		return 0, fmt.Errorf("listing tenants for project: %w", err)
	}

	sent := 0
	for _, t := range tenants {
		if err := p.send(ctx, t, message, color); err != nil {
			p.recorder.NotificationResult(kind, "error")
			if !failSilently {
				return sent, err
			}
			p.logger.Warn("notification failed", "kind", kind, "tenant_id", t.ID, "room_id", t.RoomID, "error", err)
			continue
		}
		p.recorder.NotificationResult(kind, "ok")
		sent++
	}
	return sent, nil
}

func (p *Plugin) send(ctx context.Context, t *models.Tenant, message, color string) error {
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}
	return p.resolver.ForTenant(t).SendNotification(ctx, message,
		roomctx.WithColor(color), roomctx.WithNotify(true))
}
