// Package notify delivers signal-change and password-reset messages through
// a configurable email back-end, and mirrors signal events onto the MQTT bus.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sds-platform/sds-core/internal/config"
	"github.com/wneessen/go-mail"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Backend sends a single message. Implementations: SMTP, cloud API with a
// service account, cloud API with a user token.
type Backend interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// NewBackend selects the back-end named in configuration. A deployment
// without mail settings gets a nil backend: notification delivery is
// best-effort and must not keep the server from starting.
func NewBackend(cfg config.EmailConfig) (Backend, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "smtp":
		if cfg.SMTPHost == "" {
			return nil, nil
		}
		return newSMTPBackend(cfg)
	case "api_service":
		return newAPIServiceBackend(cfg), nil
	case "api_user":
		return newAPIUserBackend(cfg), nil
	default:
		return nil, fmt.Errorf("unknown email backend %q", cfg.Backend)
	}
}

// smtpBackend delivers through a plain SMTP relay.
type smtpBackend struct {
	client *mail.Client
	from   string
}

func newSMTPBackend(cfg config.EmailConfig) (*smtpBackend, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.SMTPPort),
		mail.WithTimeout(15 * time.Second),
	}
	if cfg.SMTPUsername != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.SMTPUsername),
			mail.WithPassword(cfg.SMTPPassword),
		)
	}
	client, err := mail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating smtp client: %w", err)
	}
	return &smtpBackend{client: client, from: cfg.From}, nil
}

func (b *smtpBackend) Name() string { return "smtp" }

func (b *smtpBackend) Send(ctx context.Context, msg Message) error {
	m := mail.NewMsg()
	if err := m.From(b.from); err != nil {
		return fmt.Errorf("setting sender: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("setting recipient: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextHTML, msg.HTML)
	if err := b.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("sending via smtp: %w", err)
	}
	return nil
}

// apiPayload is the JSON body posted to the cloud mail API.
type apiPayload struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// apiBackend posts messages to a cloud mail API with an OAuth-authenticated
// HTTP client.
type apiBackend struct {
	name     string
	endpoint string
	from     string
	client   *http.Client
}

// newAPIServiceBackend authenticates with client credentials on behalf of a
// delegated sender address.
func newAPIServiceBackend(cfg config.EmailConfig) *apiBackend {
	cc := clientcredentials.Config{
		ClientID:     cfg.APIClientID,
		ClientSecret: cfg.APIClientSecret,
		TokenURL:     cfg.APITokenURL,
	}
	from := cfg.DelegatedUser
	if from == "" {
		from = cfg.From
	}
	return &apiBackend{
		name:     "api_service",
		endpoint: cfg.APIEndpoint,
		from:     from,
		client:   cc.Client(context.Background()),
	}
}

// newAPIUserBackend authenticates with a pre-issued user access token.
func newAPIUserBackend(cfg config.EmailConfig) *apiBackend {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.UserAccessToken})
	return &apiBackend{
		name:     "api_user",
		endpoint: cfg.APIEndpoint,
		from:     cfg.From,
		client:   oauth2.NewClient(context.Background(), src),
	}
}

func (b *apiBackend) Name() string { return b.name }

func (b *apiBackend) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(apiPayload{
		From:    b.from,
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("encoding mail payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to mail api: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("mail api returned status %d", resp.StatusCode)
	}
	return nil
}
