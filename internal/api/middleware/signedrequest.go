package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/roombridge/internal/api/response"
	"github.com/kiranshivaraju/roombridge/internal/roomctx"
)

const maxWebhookBody = 1 << 20

// SignedRequest resolves the tenant behind a request signed by the chat
// server and rejects everything else with 401.
type SignedRequest struct {
	resolver *roomctx.Resolver
}

func NewSignedRequest(resolver *roomctx.Resolver) *SignedRequest {
	return &SignedRequest{resolver: resolver}
}

// RoomContext verifies the signed request carried in the Authorization
// header or the signed_request parameter.
func (s *SignedRequest) RoomContext(next http.Handler) http.Handler {
	return s.handler(next, false)
}

// Webhook also decodes the JSON body so its oauth_client_id can be checked
// against the token issuer. The body stays readable for next.
func (s *SignedRequest) Webhook(next http.Handler) http.Handler {
	return s.handler(next, true)
}

func (s *SignedRequest) handler(next http.Handler, parseBody bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var data map[string]any
		if parseBody {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
			if err != nil {
				response.Text(w, http.StatusBadRequest, "Could not read request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			if len(bytes.TrimSpace(body)) > 0 {
				if err := json.Unmarshal(body, &data); err != nil {
					response.Text(w, http.StatusBadRequest, "Malformed JSON body")
					return
				}
			}
		}

		rc, err := s.resolver.ForRequest(r, data)
		switch {
		case errors.Is(err, roomctx.ErrInvalidSignedRequest), errors.Is(err, roomctx.ErrUnknownTenant):
			slog.Info("signed request rejected", "path", r.URL.Path, "error", err)
			response.Text(w, http.StatusUnauthorized, "Invalid signed request")
			return
		case err != nil:
			slog.Error("resolving signed request failed", "path", r.URL.Path, "error", err)
			response.Text(w, http.StatusInternalServerError, "Internal error")
			return
		}

		next.ServeHTTP(w, r.WithContext(SetRoomContext(r.Context(), rc)))
	})
}
