// Package install handles the chat server's install and uninstall callbacks.
package install

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/kiranshivaraju/roombridge/internal/hipchat"
	"github.com/kiranshivaraju/roombridge/internal/notifier"
	"github.com/kiranshivaraju/roombridge/internal/roomctx"
	"github.com/kiranshivaraju/roombridge/internal/store"
	"github.com/kiranshivaraju/roombridge/pkg/models"
)

// User-facing rejection messages.
const (
	MsgRoomOnly             = "This add-on can only be installed in individual rooms."
	MsgCapabilitiesMismatch = "Mismatch on capabilities URL"
)

// ValidationError rejects an install payload. Nothing has been stored.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Payload is the install callback body.
type Payload struct {
	RoomID          *int64 `json:"roomId"`
	OAuthID         string `json:"oauthId"`
	OAuthSecret     string `json:"oauthSecret"`
	CapabilitiesURL string `json:"capabilitiesUrl"`
}

// UnmarshalJSON accepts roomId as a number or a numeric string.
func (p *Payload) UnmarshalJSON(data []byte) error {
	var raw struct {
		RoomID          json.RawMessage `json:"roomId"`
		OAuthID         string          `json:"oauthId"`
		OAuthSecret     string          `json:"oauthSecret"`
		CapabilitiesURL string          `json:"capabilitiesUrl"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = Payload{OAuthID: raw.OAuthID, OAuthSecret: raw.OAuthSecret, CapabilitiesURL: raw.CapabilitiesURL}

	if len(raw.RoomID) == 0 || string(raw.RoomID) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw.RoomID, &s); err == nil {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("roomId: %w", err)
		}
		p.RoomID = &id
		return nil
	}
	var id int64
	if err := json.Unmarshal(raw.RoomID, &id); err != nil {
		return fmt.Errorf("roomId: %w", err)
	}
	p.RoomID = &id
	return nil
}

// Recorder observes install outcomes.
type Recorder interface {
	InstallResult(result string)
	UninstallResult(result string)
}

// Options tunes a Handshake.
type Options struct {
	CapabilitiesTimeout      time.Duration
	RollbackOnRefreshFailure bool
}

// Handshake creates and removes tenants.
type Handshake struct {
	tenants  store.TenantStore
	client   hipchat.Client
	resolver *roomctx.Resolver
	plugin   *notifier.Plugin
	recorder Recorder
	opts     Options
	logger   *slog.Logger
}

// NewHandshake wires the install flow. Uninstall goes through plugin so the
// tenant is detached from its projects before it is deleted.
func NewHandshake(tenants store.TenantStore, client hipchat.Client, resolver *roomctx.Resolver, plugin *notifier.Plugin, recorder Recorder, opts Options) *Handshake {
	return &Handshake{
		tenants:  tenants,
		client:   client,
		resolver: resolver,
		plugin:   plugin,
		recorder: recorder,
		opts:     opts,
		logger:   slog.With("component", "install"),
	}
}

// Install validates the payload, checks the capabilities document, stores the
// tenant and refreshes its room info.
func (h *Handshake) Install(ctx context.Context, p Payload) (*models.Tenant, error) {
	tenant, err := h.install(ctx, p)
	h.recorder.InstallResult(resultLabel(err))
	return tenant, err
}

func (h *Handshake) install(ctx context.Context, p Payload) (*models.Tenant, error) {
	if p.RoomID == nil {
		return nil, &ValidationError{Message: MsgRoomOnly}
	}
	if p.OAuthID == "" || p.OAuthSecret == "" || p.CapabilitiesURL == "" {
		return nil, &ValidationError{Message: "oauthId, oauthSecret and capabilitiesUrl are required"}
	}

	capsCtx := ctx
	if h.opts.CapabilitiesTimeout > 0 {
		var cancel context.CancelFunc
		capsCtx, cancel = context.WithTimeout(ctx, h.opts.CapabilitiesTimeout)
		defer cancel()
	}
	caps, err := h.client.FetchCapabilities(capsCtx, p.CapabilitiesURL)
	if err != nil {
		return nil, fmt.Errorf("fetching capabilities: %w", err)
	}
	if caps.Links.Self != p.CapabilitiesURL {
		return nil, &ValidationError{Message: MsgCapabilitiesMismatch}
	}

	tenant := &models.Tenant{
		ID:           p.OAuthID,
		RoomID:       *p.RoomID,
		Secret:       models.Secret(p.OAuthSecret),
		Capabilities: caps,
	}
	if err := h.tenants.CreateTenant(ctx, tenant); err != nil {
		return nil, fmt.Errorf("creating tenant: %w", err)
	}

	if err := h.resolver.ForTenant(tenant).RefreshRoomInfo(ctx); err != nil {
		if !h.opts.RollbackOnRefreshFailure {
			h.logger.Warn("room info refresh failed, keeping tenant", "tenant_id", tenant.ID, "error", err)
			return tenant, nil
		}
		if derr := h.tenants.DeleteTenant(ctx, tenant.ID); derr != nil && !errors.Is(derr, store.ErrNotFound) {
			h.logger.Error("rollback after refresh failure failed", "tenant_id", tenant.ID, "error", derr)
		}
		return nil, fmt.Errorf("refreshing room info: %w", err)
	}

	h.logger.Info("tenant installed", "tenant_id", tenant.ID, "room_id", tenant.RoomID)
	return tenant, nil
}

// Uninstall detaches a tenant from its projects and removes it. A tenant
// that is already gone is not an error.
func (h *Handshake) Uninstall(ctx context.Context, oauthID string) error {
	err := h.uninstall(ctx, oauthID)
	h.recorder.UninstallResult(resultLabel(err))
	return err
}

func (h *Handshake) uninstall(ctx context.Context, oauthID string) error {
	err := h.plugin.RemoveTenant(ctx, oauthID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("deleting tenant: %w", err)
	}
	h.logger.Info("tenant uninstalled", "tenant_id", oauthID)
	return nil
}

func resultLabel(err error) string {
	var verr *ValidationError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &verr):
		return "rejected"
	default:
		return "error"
	}
}
