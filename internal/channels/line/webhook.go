package line

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wayneh-tw/linegem/internal/observability/metrics"
)

// SignatureHeader carries the base64 HMAC-SHA256 digest of the raw body.
const SignatureHeader = "X-Line-Signature"

// WebhookHandler handles inbound webhook deliveries from the LINE platform.
type WebhookHandler struct {
	channelSecret string
	onMessage     func(msg ParsedInboundMessage)
	metrics       *metrics.RelayMetrics
}

// NewWebhookHandler creates a new webhook handler.
// onMessage is called for each parsed inbound text message.
func NewWebhookHandler(channelSecret string, m *metrics.RelayMetrics, onMessage func(ParsedInboundMessage)) *WebhookHandler {
	return &WebhookHandler{
		channelSecret: channelSecret,
		onMessage:     onMessage,
		metrics:       m,
	}
}

// HandleLiveness handles GET liveness probes.
func (h *WebhookHandler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// HandleInbound handles POST webhook deliveries (incoming events).
// An unverifiable delivery is rejected with 400 before any event is parsed.
func (h *WebhookHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get(SignatureHeader)
	if !VerifySignature(h.channelSecret, body, signature) {
		h.metrics.ObserveInbound("delivery", "rejected")
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	// Acknowledge before processing so the platform does not retry while
	// the generation backend is still working.
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")

	for _, ev := range event.Events {
		msg, ok := parseEvent(ev)
		if !ok {
			h.metrics.ObserveInbound(eventLabel(ev), "ignored")
			continue
		}
		h.metrics.ObserveInbound(eventLabel(ev), "handled")
		if h.onMessage != nil {
			h.onMessage(msg)
		}
	}
}

// ParseWebhookEvent extracts ParsedInboundMessages from a webhook payload.
// Only text message events carrying a reply token are returned; every
// other event kind (stickers, images, follows, joins) is skipped.
func ParseWebhookEvent(event WebhookEvent) []ParsedInboundMessage {
	var messages []ParsedInboundMessage
	for _, ev := range event.Events {
		if msg, ok := parseEvent(ev); ok {
			messages = append(messages, msg)
		}
	}
	return messages
}

func parseEvent(ev Event) (ParsedInboundMessage, bool) {
	if ev.Type != "message" || ev.Message == nil || ev.Message.Type != "text" {
		return ParsedInboundMessage{}, false
	}
	if ev.ReplyToken == "" || ev.Source.UserID == "" {
		return ParsedInboundMessage{}, false
	}
	return ParsedInboundMessage{
		ReplyToken:     ev.ReplyToken,
		UserID:         ev.Source.UserID,
		Text:           ev.Message.Text,
		Timestamp:      time.UnixMilli(ev.Timestamp),
		WebhookEventID: ev.WebhookEventID,
	}, true
}

func eventLabel(ev Event) string {
	if ev.Type == "message" && ev.Message != nil {
		return "message_" + ev.Message.Type
	}
	return ev.Type
}

// VerifySignature verifies the X-Line-Signature header against the raw
// request body. The platform signs the body with HMAC-SHA256 keyed by the
// channel secret and base64-encodes the digest.
func VerifySignature(channelSecret string, body []byte, signature string) bool {
	if channelSecret == "" || signature == "" {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(channelSecret))
	mac.Write(body)

	return hmac.Equal(mac.Sum(nil), decoded)
}
