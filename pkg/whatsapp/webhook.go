package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"strings"
)

// InboundText is a text message received through the webhook.
type InboundText struct {
	MessageID string
	From      string
	Body      string
	Timestamp string
}

// VerifyChallenge validates a subscription request and returns the
// challenge to echo.
func VerifyChallenge(query url.Values, verifyToken string) (string, bool) {
	if verifyToken == "" || query.Get("hub.mode") != "subscribe" {
		return "", false
	}
	if !hmac.Equal([]byte(query.Get("hub.verify_token")), []byte(verifyToken)) {
		return "", false
	}
	return query.Get("hub.challenge"), true
}

// ValidSignature checks the X-Hub-Signature-256 header against body.
func ValidSignature(body []byte, header, appSecret string) bool {
	sig, ok := strings.CutPrefix(strings.TrimSpace(header), "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []struct {
					ID        string `json:"id"`
					From      string `json:"from"`
					Timestamp string `json:"timestamp"`
					Type      string `json:"type"`
					Text      struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ParseTextMessages returns the text messages of a webhook notification.
// Status updates and non-text messages are skipped.
func ParseTextMessages(body []byte) ([]InboundText, error) {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, err
	}
	var out []InboundText
	for _, e := range p.Entry {
		for _, ch := range e.Changes {
			for _, m := range ch.Value.Messages {
				text := strings.TrimSpace(m.Text.Body)
				if m.Type != "text" || text == "" || m.From == "" {
					continue
				}
				out = append(out, InboundText{MessageID: m.ID, From: m.From, Body: text, Timestamp: m.Timestamp})
			}
		}
	}
	return out, nil
}
