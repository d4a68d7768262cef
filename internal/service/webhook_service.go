package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"custody-vault/internal/core/domain"
	"custody-vault/internal/core/ports"

	"github.com/rs/zerolog"
)

// defaultWebhookRetryIntervals is the wait before each redelivery.
var defaultWebhookRetryIntervals = []time.Duration{
	15 * time.Second,
	60 * time.Second,
	2 * time.Minute,
	5 * time.Minute,
	10 * time.Minute,
}

// Headers set on every webhook delivery.
const (
	HeaderWebhookTimestamp = "X-Vault-Timestamp"
	HeaderWebhookSignature = "X-Vault-Signature"
	HeaderWebhookTopic     = "X-Vault-Topic"
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// WebhookPublisher implements ports.EventPublisher by POSTing each event to
// a fixed URL, signed with HMAC-SHA256 over the canonical string.
type WebhookPublisher struct {
	url            string
	path           string
	secret         string
	sigSvc         ports.SignatureService
	httpClient     HTTPClient
	retryIntervals []time.Duration
	log            zerolog.Logger
}

// NewWebhookPublisher creates a new webhook publisher.
func NewWebhookPublisher(
	webhookURL string,
	secret string,
	sigSvc ports.SignatureService,
	httpClient HTTPClient,
	log zerolog.Logger,
) *WebhookPublisher {
	path := "/"
	if u, err := url.Parse(webhookURL); err == nil && u.Path != "" {
		path = u.Path
	}
	return &WebhookPublisher{
		url:            webhookURL,
		path:           path,
		secret:         secret,
		sigSvc:         sigSvc,
		httpClient:     httpClient,
		retryIntervals: defaultWebhookRetryIntervals,
		log:            log,
	}
}

// WithRetryIntervals overrides the redelivery schedule.
func (p *WebhookPublisher) WithRetryIntervals(intervals []time.Duration) *WebhookPublisher {
	p.retryIntervals = intervals
	return p
}

func (p *WebhookPublisher) Name() string { return "webhook" }

// Publish delivers the event, retrying on transport errors and non-2xx
// responses until the schedule is exhausted or ctx is done.
func (p *WebhookPublisher) Publish(ctx context.Context, event *domain.Event) error {
	body, err := json.Marshal(event.Payload())
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}
	eventID := event.ID.String()

	for attempt := 0; attempt <= len(p.retryIntervals); attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(p.retryIntervals[attempt-1]):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		status, err := p.deliver(ctx, event, body)
		if err != nil {
			p.log.Warn().Err(err).Str("event_id", eventID).Int("attempt", attempt+1).Msg("webhook: delivery failed")
			continue
		}
		if status >= 200 && status < 300 {
			p.log.Info().Str("event_id", eventID).Int("attempt", attempt+1).Int("status", status).Msg("webhook: delivered successfully")
			return nil
		}

		p.log.Warn().Str("event_id", eventID).Int("attempt", attempt+1).Int("status", status).Msg("webhook: non-2xx response, retrying")
	}

	return fmt.Errorf("webhook: all retry attempts exhausted for event %s", eventID)
}

func (p *WebhookPublisher) deliver(ctx context.Context, event *domain.Event, body []byte) (int, error) {
	ts := time.Now().Unix()
	canonical := p.sigSvc.BuildCanonicalString(http.MethodPost, p.path, ts, string(body))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderWebhookTimestamp, fmt.Sprintf("%d", ts))
	req.Header.Set(HeaderWebhookSignature, p.sigSvc.Sign(p.secret, canonical))
	req.Header.Set(HeaderWebhookTopic, event.Type.Topic().Hex())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}
