package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/roombridge/internal/api/response"
	"github.com/kiranshivaraju/roombridge/internal/install"
	"github.com/kiranshivaraju/roombridge/internal/store"
	"github.com/kiranshivaraju/roombridge/pkg/models"
)

const maxInstallBody = 64 << 10

// Installer is the install lifecycle the handlers depend on.
type Installer interface {
	Install(ctx context.Context, p install.Payload) (*models.Tenant, error)
	Uninstall(ctx context.Context, oauthID string) error
}

// NewInstallHandler returns an http.HandlerFunc for POST /installable.
func NewInstallHandler(svc Installer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p install.Payload
		body, err := io.ReadAll(io.LimitReader(r.Body, maxInstallBody))
		if err != nil {
			response.Text(w, http.StatusBadRequest, "Could not read request body")
			return
		}
		if err := json.Unmarshal(body, &p); err != nil {
			response.Text(w, http.StatusBadRequest, "Malformed install payload")
			return
		}

		_, err = svc.Install(r.Context(), p)
		var verr *install.ValidationError
		switch {
		case err == nil:
			response.Empty(w, http.StatusCreated)
		case errors.As(err, &verr):
			response.Text(w, http.StatusBadRequest, verr.Message)
		case errors.Is(err, store.ErrDuplicateKey):
			response.Text(w, http.StatusConflict, "This add-on is already installed.")
		default:
			callbackError(w, r, err)
		}
	}
}

// NewUninstallHandler returns an http.HandlerFunc for DELETE
// /installable/{oauthID}. Unknown tenants still get 201.
func NewUninstallHandler(svc Installer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Uninstall(r.Context(), chi.URLParam(r, "oauthID")); err != nil {
			callbackError(w, r, err)
			return
		}
		response.Empty(w, http.StatusCreated)
	}
}
