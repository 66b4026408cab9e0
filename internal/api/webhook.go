package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// smsWebhookHandler accepts Twilio inbound SMS callbacks. Handled, duplicate and unsolicited
// messages are answered 200 with empty TwiML; replies go out through the REST API. A message
// that could not be processed gets a 500 so the provider can redeliver it.
func (s *Server) smsWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.smsWebhookHandler: failed to parse form", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if s.opts.Validator != nil {
		params := make(map[string]string, len(r.PostForm))
		for k, v := range r.PostForm {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}
		url := s.opts.WebhookBaseURL + r.URL.RequestURI()
		if !s.opts.Validator.ValidateSignature(url, params, r.Header.Get("X-Twilio-Signature")) {
			slog.Warn("Server.smsWebhookHandler: invalid signature", "url", url)
			w.WriteHeader(http.StatusForbidden)
			return
		}
	}

	in := models.InboundSMS{
		From:       r.PostForm.Get("From"),
		Body:       r.PostForm.Get("Body"),
		MessageSID: r.PostForm.Get("MessageSid"),
	}
	if err := s.validate.Struct(in); err != nil {
		slog.Warn("Server.smsWebhookHandler: invalid payload", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	err := s.mgr.HandleInbound(r.Context(), in)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrDuplicateMessage), errors.Is(err, models.ErrNoActiveConversation):
		slog.Debug("Server.smsWebhookHandler: message accepted without action", "message_sid", in.MessageSID, "reason", err)
	default:
		slog.Error("Server.smsWebhookHandler: processing failed", "message_sid", in.MessageSID, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeTwiML(w)
}
