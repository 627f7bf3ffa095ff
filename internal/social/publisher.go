package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dropship-ops/opsdash/internal/platform/httpx"
	"github.com/dropship-ops/opsdash/internal/providers"
)

// Publisher delivers a post to its platform and returns the external ID.
type Publisher interface {
	Publish(ctx context.Context, post Post) (string, error)
}

// WebhookPublisher posts JSON to a per-platform webhook endpoint.
type WebhookPublisher struct {
	endpoints  map[Platform]string
	httpClient *http.Client
}

// NewWebhookPublisher builds a publisher from a platform→URL map.
func NewWebhookPublisher(endpoints map[string]string, timeout time.Duration) *WebhookPublisher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	m := make(map[Platform]string, len(endpoints))
	for k, v := range endpoints {
		if v != "" {
			m[Platform(k)] = v
		}
	}
	return &WebhookPublisher{endpoints: m, httpClient: &http.Client{Timeout: timeout}}
}

// WithHTTPClient swaps the transport client.
func (p *WebhookPublisher) WithHTTPClient(hc *http.Client) *WebhookPublisher {
	p.httpClient = hc
	return p
}

type webhookPayload struct {
	ID          string     `json:"id"`
	Platform    Platform   `json:"platform"`
	Content     string     `json:"content"`
	MediaURL    string     `json:"media_url,omitempty"`
	CampaignID  string     `json:"campaign_id,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

// Publish sends the post. A platform without an endpoint is a validation error.
func (p *WebhookPublisher) Publish(ctx context.Context, post Post) (string, error) {
	endpoint, ok := p.endpoints[post.Platform]
	if !ok {
		return "", httpx.Invalid("no webhook configured for platform %q", post.Platform)
	}
	payload := webhookPayload{
		ID:          post.ID.String(),
		Platform:    post.Platform,
		Content:     post.Content,
		MediaURL:    post.MediaURL,
		ScheduledAt: post.ScheduledAt,
	}
	if post.CampaignID != nil {
		payload.CampaignID = post.CampaignID.String()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("social: encode webhook: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("social: webhook: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("social: read webhook body: %w", err)
	}
	provider := "webhook:" + string(post.Platform)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &providers.StatusError{Provider: provider, Code: resp.StatusCode, Body: providers.Excerpt(raw)}
	}

	// Receivers may answer with an empty body; the post ID then stands in.
	var ack struct {
		ID string `json:"id"`
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &ack); err != nil {
			return "", &providers.PayloadError{Provider: provider, Reason: err.Error()}
		}
	}
	if ack.ID == "" {
		return post.ID.String(), nil
	}
	return ack.ID, nil
}
