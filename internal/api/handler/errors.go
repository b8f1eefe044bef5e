package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/roombridge/internal/api/response"
	"github.com/kiranshivaraju/roombridge/internal/hipchat"
)

// upstreamStatus maps chat API failures to a gateway status. ok is false for
// errors that did not come from the chat API.
func upstreamStatus(err error) (status int, ok bool) {
	switch {
	case errors.Is(err, hipchat.ErrTimeout):
		return http.StatusGatewayTimeout, true
	case errors.Is(err, hipchat.ErrUnreachable), errors.Is(err, hipchat.ErrAPI):
		return http.StatusBadGateway, true
	default:
		return 0, false
	}
}

// callbackError answers a chat server callback in plain text.
func callbackError(w http.ResponseWriter, r *http.Request, err error) {
	if status, ok := upstreamStatus(err); ok {
		slog.Warn("chat api call failed", "path", r.URL.Path, "error", err)
		response.Text(w, status, http.StatusText(status))
		return
	}
	slog.Error("callback failed", "path", r.URL.Path, "error", err)
	response.Text(w, http.StatusInternalServerError, "Internal error")
}

// apiError answers an event hook call with the JSON error envelope.
func apiError(w http.ResponseWriter, r *http.Request, err error) {
	switch status, _ := upstreamStatus(err); status {
	case http.StatusGatewayTimeout:
		response.Error(w, status, "CHAT_API_TIMEOUT", "The chat service did not respond in time", nil)
	case http.StatusBadGateway:
		response.Error(w, status, "CHAT_API_UNAVAILABLE", "The chat service rejected or failed the request", nil)
	default:
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
	}
}
