package line

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	secret := "test_channel_secret"
	body := []byte(`{"destination":"U1","events":[]}`)
	validSig := signBody(secret, body)

	// Flip one bit of the valid digest.
	raw, _ := base64.StdEncoding.DecodeString(validSig)
	raw[0] ^= 0x01
	flippedSig := base64.StdEncoding.EncodeToString(raw)

	tests := []struct {
		name      string
		secret    string
		body      []byte
		signature string
		want      bool
	}{
		{"valid signature", secret, body, validSig, true},
		{"bit-flipped signature", secret, body, flippedSig, false},
		{"empty signature", secret, body, "", false},
		{"empty secret", "", body, validSig, false},
		{"not base64", secret, body, "!!not-base64!!", false},
		{"wrong secret", "other_secret", body, validSig, false},
		{"tampered body", secret, []byte(`tampered`), validSig, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VerifySignature(tt.secret, tt.body, tt.signature)
			if got != tt.want {
				t.Errorf("VerifySignature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseWebhookEvent(t *testing.T) {
	t.Run("text message", func(t *testing.T) {
		event := WebhookEvent{
			Destination: "U_bot",
			Events: []Event{
				{
					Type:           "message",
					Mode:           "active",
					Timestamp:      1700000000000,
					Source:         Source{Type: "user", UserID: "U_456"},
					WebhookEventID: "wh_001",
					ReplyToken:     "rt_001",
					Message:        &Message{ID: "m_001", Type: "text", Text: "你好"},
				},
			},
		}

		msgs := ParseWebhookEvent(event)
		if len(msgs) != 1 {
			t.Fatalf("expected 1 message, got %d", len(msgs))
		}
		if msgs[0].UserID != "U_456" {
			t.Errorf("user = %s, want U_456", msgs[0].UserID)
		}
		if msgs[0].ReplyToken != "rt_001" {
			t.Errorf("reply token = %s, want rt_001", msgs[0].ReplyToken)
		}
		if msgs[0].Text != "你好" {
			t.Errorf("text = %s, want 你好", msgs[0].Text)
		}
		if msgs[0].Timestamp.UnixMilli() != 1700000000000 {
			t.Errorf("timestamp = %v", msgs[0].Timestamp)
		}
	})

	t.Run("non-text message skipped", func(t *testing.T) {
		event := WebhookEvent{
			Events: []Event{
				{
					Type:       "message",
					Source:     Source{Type: "user", UserID: "U_1"},
					ReplyToken: "rt_1",
					Message:    &Message{ID: "m_1", Type: "sticker"},
				},
			},
		}
		if msgs := ParseWebhookEvent(event); len(msgs) != 0 {
			t.Fatalf("expected 0 messages, got %d", len(msgs))
		}
	})

	t.Run("non-message events skipped", func(t *testing.T) {
		event := WebhookEvent{
			Events: []Event{
				{Type: "follow", Source: Source{Type: "user", UserID: "U_1"}, ReplyToken: "rt_1"},
				{Type: "unfollow", Source: Source{Type: "user", UserID: "U_1"}},
			},
		}
		if msgs := ParseWebhookEvent(event); len(msgs) != 0 {
			t.Fatalf("expected 0 messages, got %d", len(msgs))
		}
	})

	t.Run("missing reply token skipped", func(t *testing.T) {
		event := WebhookEvent{
			Events: []Event{
				{
					Type:    "message",
					Source:  Source{Type: "user", UserID: "U_1"},
					Message: &Message{ID: "m_1", Type: "text", Text: "hi"},
				},
			},
		}
		if msgs := ParseWebhookEvent(event); len(msgs) != 0 {
			t.Fatalf("expected 0 messages, got %d", len(msgs))
		}
	})
}

func TestHandleInbound(t *testing.T) {
	secret := "test_secret"
	var received []ParsedInboundMessage

	h := NewWebhookHandler(secret, nil, func(msg ParsedInboundMessage) {
		received = append(received, msg)
	})

	event := WebhookEvent{
		Destination: "U_bot",
		Events: []Event{{
			Type:       "message",
			Timestamp:  1700000000000,
			Source:     Source{Type: "user", UserID: "U_1"},
			ReplyToken: "rt_1",
			Message:    &Message{ID: "m_1", Type: "text", Text: "hello"},
		}},
	}

	body, _ := json.Marshal(event)
	req := httptest.NewRequest(http.MethodPost, "/chat/callback", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, signBody(secret, body))
	w := httptest.NewRecorder()

	h.HandleInbound(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "OK" {
		t.Fatalf("expected body OK, got %q", w.Body.String())
	}
	if len(received) != 1 {
		t.Fatalf("expected 1 received message, got %d", len(received))
	}
	if received[0].Text != "hello" {
		t.Errorf("text = %s, want hello", received[0].Text)
	}
	if received[0].ReplyToken != "rt_1" {
		t.Errorf("reply token = %s, want rt_1", received[0].ReplyToken)
	}
}

func TestHandleInboundBadSignature(t *testing.T) {
	dispatched := 0
	h := NewWebhookHandler("secret", nil, func(ParsedInboundMessage) {
		dispatched++
	})

	body := []byte(`{"destination":"U_bot","events":[{"type":"message","source":{"type":"user","userId":"U_1"},"replyToken":"rt_1","message":{"id":"m_1","type":"text","text":"hello"}}]}`)
	req := httptest.NewRequest(http.MethodPost, "/chat/callback", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, "bm90IGEgcmVhbCBzaWduYXR1cmU=")
	w := httptest.NewRecorder()

	h.HandleInbound(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if dispatched != 0 {
		t.Fatalf("expected no dispatch on bad signature, got %d", dispatched)
	}
}

func TestHandleInboundMalformedBody(t *testing.T) {
	secret := "secret"
	h := NewWebhookHandler(secret, nil, nil)

	body := []byte(`{not json`)
	req := httptest.NewRequest(http.MethodPost, "/chat/callback", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, signBody(secret, body))
	w := httptest.NewRecorder()

	h.HandleInbound(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleInboundIgnoresNonTextEvents(t *testing.T) {
	secret := "secret"
	dispatched := 0
	h := NewWebhookHandler(secret, nil, func(ParsedInboundMessage) {
		dispatched++
	})

	event := WebhookEvent{
		Events: []Event{
			{Type: "follow", Source: Source{Type: "user", UserID: "U_1"}, ReplyToken: "rt_1"},
			{
				Type:       "message",
				Source:     Source{Type: "user", UserID: "U_1"},
				ReplyToken: "rt_2",
				Message:    &Message{ID: "m_1", Type: "image"},
			},
		},
	}
	body, _ := json.Marshal(event)
	req := httptest.NewRequest(http.MethodPost, "/chat/callback", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, signBody(secret, body))
	w := httptest.NewRecorder()

	h.HandleInbound(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if dispatched != 0 {
		t.Fatalf("expected no dispatch for non-text events, got %d", dispatched)
	}
}

func TestHandleLiveness(t *testing.T) {
	h := NewWebhookHandler("secret", nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	w := httptest.NewRecorder()
	h.HandleLiveness(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "OK" {
		t.Fatalf("expected body OK, got %q", w.Body.String())
	}
}
