package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/promohub/channel-dispatch/internal/domain"
)

// WebhookAdapter publishes by POSTing to a per-channel endpoint under a
// configurable base URL. A token-bucket limiter throttles the outbound
// request rate so bursts from manual scheduler runs cannot hammer the
// remote endpoint; it is transport protection, separate from the
// per-channel pacing the scheduler enforces.
type WebhookAdapter struct {
	url        string
	channel    domain.Channel
	httpClient *http.Client
	limiter    *rate.Limiter
}

type webhookRequest struct {
	Channel  string `json:"channel"`
	OfferID  string `json:"offer_id"`
	Text     string `json:"text"`
	Priority string `json:"priority"`
}

type webhookResponse struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

func NewWebhookAdapter(baseURL string, ch domain.Channel, timeout time.Duration, reqPerSec int) *WebhookAdapter {
	if reqPerSec <= 0 {
		reqPerSec = 1
	}
	return &WebhookAdapter{
		url:     baseURL + "/" + string(ch),
		channel: ch,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(reqPerSec), reqPerSec),
	}
}

// Send posts the payload and expects a 2xx response with a JSON body
// containing messageId.
func (a *WebhookAdapter) Send(ctx context.Context, p Payload) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("wait for rate limiter: %w", err)
	}

	body, err := json.Marshal(webhookRequest{
		Channel:  string(a.channel),
		OfferID:  p.OfferID,
		Text:     p.Text,
		Priority: p.Priority,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected webhook status: %d", resp.StatusCode)
	}

	var wr webhookResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if wr.MessageID == "" {
		return "", fmt.Errorf("webhook response missing messageId")
	}
	return wr.MessageID, nil
}

var _ Adapter = (*WebhookAdapter)(nil)
