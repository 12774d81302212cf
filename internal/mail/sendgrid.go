// Package mail delivers transactional email through SendGrid's v3 API.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storefront/internal/apperr"
)

const ProviderSendGrid = "sendgrid"

// Message is a plain-text email
type Message struct {
	To      string
	Subject string
	Text    string
}

// Sender delivers a Message
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SendGrid posts messages to the SendGrid mail/send endpoint
type SendGrid struct {
	apiKey     string
	from       string
	endpoint   string
	httpClient *http.Client
}

// NewSendGrid creates a SendGrid sender. It is usable only when Configured.
func NewSendGrid(apiKey, from, endpoint string) *SendGrid {
	return &SendGrid{
		apiKey:     apiKey,
		from:       from,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Configured reports whether both the API key and sender address are set
func (s *SendGrid) Configured() bool {
	return s != nil && s.apiKey != "" && s.from != ""
}

type sgAddress struct {
	Email string `json:"email"`
}

type sgPersonalization struct {
	To []sgAddress `json:"to"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgPayload struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	Subject          string              `json:"subject"`
	Content          []sgContent         `json:"content"`
}

// Send delivers msg. Provider 5xx and network failures are Transient, other
// non-2xx answers are UpstreamRejection with the provider body as detail.
func (s *SendGrid) Send(ctx context.Context, msg Message) error {
	const op = "SendGrid.Send"

	if !s.Configured() {
		return apperr.New(apperr.UpstreamRejection, op, "email provider not configured")
	}

	body, err := json.Marshal(sgPayload{
		Personalizations: []sgPersonalization{{To: []sgAddress{{Email: msg.To}}}},
		From:             sgAddress{Email: s.from},
		Subject:          msg.Subject,
		Content:          []sgContent{{Type: "text/plain", Value: msg.Text}},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.Transient, op, "email provider unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 300 {
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	kind := apperr.UpstreamRejection
	if resp.StatusCode >= 500 {
		kind = apperr.Transient
	}
	return &apperr.Error{
		Kind:    kind,
		Op:      op,
		Message: fmt.Sprintf("email provider returned %d", resp.StatusCode),
		Detail:  strings.TrimSpace(string(detail)),
	}
}

// MailtoLink builds a mailto: URL so a user can send msg from their own client
func MailtoLink(msg Message) string {
	return fmt.Sprintf("mailto:%s?subject=%s&body=%s",
		encodeComponent(msg.To), encodeComponent(msg.Subject), encodeComponent(msg.Text))
}

// encodeComponent percent-encodes like a URI component: spaces become %20, not '+'
func encodeComponent(v string) string {
	return strings.ReplaceAll(url.QueryEscape(v), "+", "%20")
}
