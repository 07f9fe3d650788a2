package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/eventlyze/authflow"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// WebhookConfig configures [NewWebhookNotifier].
type WebhookConfig struct {
	URL string
	// AuthToken, when set, is sent as a bearer token. Load it from a secret
	// store; never hardcode it.
	AuthToken string
	Timeout   time.Duration

	MaxRetries  uint64
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	Client *http.Client
}

// WebhookNotifier POSTs reset notices as JSON. Network errors, 429 and 5xx
// responses are retried with exponential backoff; other statuses fail at once.
type WebhookNotifier struct {
	cfg    WebhookConfig
	client *http.Client
}

var _ authflow.Notifier = (*WebhookNotifier)(nil)

type webhookPayload struct {
	Event      string    `json:"event"`
	UserID     string    `json:"userId"`
	Identifier string    `json:"email"`
	Token      string    `json:"token"`
	Link       string    `json:"link,omitempty"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// NewWebhookNotifier validates cfg and fills defaults.
func NewWebhookNotifier(cfg WebhookConfig) (*WebhookNotifier, error) {
	if cfg.URL == "" {
		return nil, oops.In("notify").Code("webhook_config").Errorf("webhook URL required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 2 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &WebhookNotifier{cfg: cfg, client: client}, nil
}

func (n *WebhookNotifier) SendResetLink(ctx context.Context, notice authflow.ResetNotice) error {
	body, err := json.Marshal(webhookPayload{
		Event:      "password_reset",
		UserID:     notice.UserID,
		Identifier: notice.Identifier,
		Token:      notice.Token,
		Link:       notice.Link,
		ExpiresAt:  notice.ExpiresAt.UTC(),
	})
	if err != nil {
		return oops.In("notify").Code("webhook_encode").Wrap(err)
	}

	backoff := retry.NewExponential(n.cfg.BaseBackoff)
	backoff = retry.WithCappedDuration(n.cfg.MaxBackoff, backoff)
	backoff = retry.WithMaxRetries(n.cfg.MaxRetries, backoff)

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		return n.post(ctx, body)
	})
	if err != nil {
		return oops.In("notify").Code("webhook_delivery").With("user_id", notice.UserID).Wrap(err)
	}
	return nil
}

func (n *WebhookNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if n.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+n.cfg.AuthToken)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return retry.RetryableError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return retry.RetryableError(fmt.Errorf("webhook returned %d", resp.StatusCode))
	default:
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
}
