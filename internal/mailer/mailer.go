// Package mailer sends transactional email through the Resend REST API.
// Delivery is best-effort; callers log failures and move on.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Mailer is the outbound email contract.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

// Disabled is a Mailer that silently drops everything; used when no API key
// is configured.
type Disabled struct{}

func (Disabled) Send(ctx context.Context, to, subject, html string) error { return nil }

// ResendConfig configures the Resend client.
type ResendConfig struct {
	APIKey string
	From   string

	// BaseURL overrides the API endpoint; tests point it at a local server.
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Resend sends mail via https://api.resend.com/emails.
type Resend struct {
	apiKey  string
	from    string
	baseURL string
	client  *http.Client
	timeout time.Duration
}

func NewResend(cfg ResendConfig) (*Resend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("resend api key required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("resend from address required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.resend.com"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Resend{
		apiKey:  cfg.APIKey,
		from:    cfg.From,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
		timeout: timeout,
	}, nil
}

func (m *Resend) Send(ctx context.Context, to, subject, html string) error {
	payload := map[string]interface{}{
		"from":    m.from,
		"to":      []string{to},
		"subject": subject,
		"html":    html,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mailer marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, m.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("mailer build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("mailer send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mailer rejected: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}
