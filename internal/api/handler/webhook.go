package handler

import (
	"net/http"

	mw "github.com/kiranshivaraju/roombridge/internal/api/middleware"
	"github.com/kiranshivaraju/roombridge/internal/api/response"
	"github.com/kiranshivaraju/roombridge/internal/hipchat"
	"github.com/kiranshivaraju/roombridge/internal/roomctx"
)

const sentryFavicon = "https://beta.getsentry.com/_static/sentry/images/favicon.ico"

// RoomMessageCard is the fixed card sent in reply to a room mention.
func RoomMessageCard() *hipchat.Card {
	return &hipchat.Card{
		Style:       hipchat.CardStyleApplication,
		URL:         "http://www.getsentry.com/whatever",
		ID:          "sentry/whatever",
		Title:       "Error processing 'rule_notify' on 'TwilioPlugin': 'NoneType' object …",
		Description: "This is the description. <em>test</em>",
		Images:      map[string]string{},
		Icon:        &hipchat.CardIcon{URL: sentryFavicon},
		Metadata:    map[string]string{},
		Attributes: []hipchat.CardAttribute{
			{Label: "level", Value: hipchat.CardAttributeValue{Label: "error", Style: "lozenge-error"}},
			{Label: "logger", Value: hipchat.CardAttributeValue{Label: "sentry"}},
			{Label: "release", Value: hipchat.CardAttributeValue{Label: "f1b6abfce3359d1f71ebbe5cda2469854a72d127"}},
			{Label: "server_name", Value: hipchat.CardAttributeValue{Label: "worker-1"}},
		},
		Activity: &hipchat.CardActivity{HTML: `
<p>
<img src="` + sentryFavicon + `" style="width: 16px; height: 16px">
    <strong>New Sentry Event</strong>
<p><code>Error processing 'rule_notify' on 'TwilioPlugin': 'NoneType' object has no attribute 'split'</code>
<p><strong>Project:</strong>
    <span class="aui-icon aui-icon-small aui-iconfont-devtools-submodule"></span>
    <a href="#">Sentry Backend</a>
<p><strong>Culprit:</strong>
<em>sentry_twilio/models.py</em> in <em>notify_users</em> at line <em>99</em>
`},
		HTML: "aha",
	}
}

// NewRoomMessageHandler returns an http.HandlerFunc for POST
// /webhook/room-message. The message itself is not interpreted.
func NewRoomMessageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rc, ok := mw.GetRoomContext(r)
		if !ok {
			response.Text(w, http.StatusUnauthorized, "Invalid signed request")
			return
		}
		err := rc.SendNotification(r.Context(), "Hello <em>World</em>!",
			roomctx.WithColor("green"), roomctx.WithCard(RoomMessageCard()))
		if err != nil {
			callbackError(w, r, err)
			return
		}
		response.Empty(w, http.StatusNoContent)
	}
}
