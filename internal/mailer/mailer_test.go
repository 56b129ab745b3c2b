package mailer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResendSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/emails" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer re_test_key" {
			t.Fatalf("missing api key, got %q", got)
		}
		var payload struct {
			From    string   `json:"from"`
			To      []string `json:"to"`
			Subject string   `json:"subject"`
			HTML    string   `json:"html"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if payload.From != "Cyberhound <intel@cyberhound.tech>" || len(payload.To) != 1 || payload.To[0] != "sniper@example.org" {
			t.Fatalf("unexpected payload %+v", payload)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m, err := NewResend(ResendConfig{
		APIKey:  "re_test_key",
		From:    "Cyberhound <intel@cyberhound.tech>",
		BaseURL: srv.URL,
	})
	if err != nil {
		t.Fatalf("new resend: %v", err)
	}
	if err := m.Send(context.Background(), "sniper@example.org", "Target Acquired", "<p>hi</p>"); err != nil {
		t.Fatalf("send: %v", err)
	}
}

func TestResendSendRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	m, err := NewResend(ResendConfig{APIKey: "re_bad", From: "x@y.z", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new resend: %v", err)
	}
	if err := m.Send(context.Background(), "a@b.c", "s", "h"); err == nil {
		t.Fatal("expected rejection error")
	}
}
