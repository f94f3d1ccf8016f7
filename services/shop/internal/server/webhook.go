package server

import (
	"io"
	"net/http"

	"neokudilonga/pkg/whatsapp"
)

func (s *Server) handleWebhookVerify(w http.ResponseWriter, r *http.Request) {
	challenge, ok := whatsapp.VerifyChallenge(r.URL.Query(), s.verifyToken)
	if !ok {
		s.audit(r, "shop.whatsapp.verify", "fail")
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, challenge)
}

// handleWebhook answers inbound text messages. Meta expects 200 for every
// delivered payload, so per-message failures are only logged.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if s.appSecret != "" && !whatsapp.ValidSignature(body, r.Header.Get("X-Hub-Signature-256"), s.appSecret) {
		s.audit(r, "shop.whatsapp.webhook", "fail", "reason", "invalid_signature")
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}
	messages, err := whatsapp.ParseTextMessages(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ctx := r.Context()
	for _, msg := range messages {
		log := logger(r).With("wa_message_id", msg.MessageID)
		if s.chatLimiter != nil && !s.chatLimiter.Allow(ctx, "phone|"+msg.From) {
			log.Warn("chat rate limited")
			continue
		}
		if s.whatsapp != nil {
			if err := s.whatsapp.MarkRead(ctx, msg.MessageID); err != nil {
				log.Warn("mark read failed", "err", err)
			}
		}
		reply := s.app.Answer(ctx, msg.Body, msg.From, msg.MessageID)
		if s.whatsapp == nil {
			log.Warn("whatsapp client not configured, reply dropped")
			continue
		}
		if err := s.whatsapp.SendText(ctx, msg.From, reply); err != nil {
			log.Error("send reply failed", "err", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
