package main

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	appconfig "github.com/wayneh-tw/linegem/internal/config"
	"github.com/wayneh-tw/linegem/internal/conversation"
	"github.com/wayneh-tw/linegem/pkg/logging"
)

type stubLLM struct{}

func (stubLLM) Complete(_ context.Context, _ conversation.LLMRequest) (conversation.LLMResponse, error) {
	return conversation.LLMResponse{Text: "stub reply"}, nil
}

func TestNewRelayHandlerLiveness(t *testing.T) {
	cfg := &appconfig.Config{
		Port:              "8080",
		LineChannelSecret: "secret",
		HistoryWindow:     10,
		HistoryMode:       "window",
	}
	handler := newRelayHandler(cfg, logging.New("error"), stubLLM{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if rr.Body.String() != "OK" {
		t.Fatalf("expected body OK, got %q", rr.Body.String())
	}
}

func TestNewRelayHandlerRejectsUnsignedWebhook(t *testing.T) {
	cfg := &appconfig.Config{
		LineChannelSecret: "secret",
		HistoryWindow:     10,
	}
	handler := newRelayHandler(cfg, logging.New("error"), stubLLM{}, nil)

	body := []byte(`{"destination":"U_bot","events":[]}`)
	req := httptest.NewRequest(http.MethodPost, "/chat/callback", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestNewRelayHandlerAcceptsSignedWebhook(t *testing.T) {
	secret := "secret"
	cfg := &appconfig.Config{
		LineChannelSecret: secret,
		HistoryWindow:     10,
	}
	handler := newRelayHandler(cfg, logging.New("error"), stubLLM{}, nil)

	body := []byte(`{"destination":"U_bot","events":[]}`)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	req := httptest.NewRequest(http.MethodPost, "/chat/callback", bytes.NewReader(body))
	req.Header.Set("X-Line-Signature", base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if rr.Body.String() != "OK" {
		t.Fatalf("expected body OK, got %q", rr.Body.String())
	}
}
