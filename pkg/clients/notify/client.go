package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mamadbah2/foodcost/internal/config"
)

// Client posts plain-text notifications.
type Client interface {
	SendText(ctx context.Context, text string) error
}

// WebhookClient is a resty-backed implementation of Client. It posts
// {"text": "..."} JSON, the payload accepted by Slack and Mattermost incoming
// webhooks.
type WebhookClient struct {
	httpClient *resty.Client
	url        string
}

// NewClient builds a webhook client using the provided configuration values.
func NewClient(cfg config.NotifyConfig) *WebhookClient {
	restyClient := resty.New()
	restyClient.
		SetHeader("Content-Type", "application/json").
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		AddRetryCondition(retryOnDialFailure)

	return &WebhookClient{
		httpClient: restyClient,
		url:        cfg.WebhookURL,
	}
}

type textPayload struct {
	Text string `json:"text"`
}

// SendText delivers text to the webhook. Any status of 400 or above is an error.
func (c *WebhookClient) SendText(ctx context.Context, text string) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(textPayload{Text: text}).
		Post(c.url)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}

	if resp.StatusCode() >= http.StatusBadRequest {
		return fmt.Errorf("notification webhook error: code=%d, body=%s", resp.StatusCode(), truncate(resp.String(), 200))
	}

	return nil
}

// retryOnDialFailure only retries requests that never reached the webhook.
// A timed out post may already have been delivered.
func retryOnDialFailure(_ *resty.Response, err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
