package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"custody-vault/internal/core/domain"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockHTTPClient implements HTTPClient for testing.
type mockHTTPClient struct {
	doFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return m.doFunc(req)
}

func okResponse(status int) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(""))}
}

const testWebhookURL = "https://indexer.example.com/hooks/vault"

func TestWebhookPublisher_Publish_SignedDelivery(t *testing.T) {
	sigSvc := NewHMACSignatureService()
	event := domain.NewDepositEvent(testCaller, testToken, uint256.NewInt(5), uint256.NewInt(7))

	var got *http.Request
	var body []byte
	client := &mockHTTPClient{doFunc: func(req *http.Request) (*http.Response, error) {
		got = req
		body, _ = io.ReadAll(req.Body)
		return okResponse(http.StatusOK), nil
	}}

	pub := NewWebhookPublisher(testWebhookURL, "whsec", sigSvc, client, newTestLogger())
	require.NoError(t, pub.Publish(context.Background(), event))
	require.NotNil(t, got)

	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, event.Type.Topic().Hex(), got.Header.Get(HeaderWebhookTopic))

	ts := got.Header.Get(HeaderWebhookTimestamp)
	require.NotEmpty(t, ts)
	tsInt, err := strconv.ParseInt(ts, 10, 64)
	require.NoError(t, err)
	canonical := sigSvc.BuildCanonicalString(http.MethodPost, "/hooks/vault", tsInt, string(body))
	assert.True(t, sigSvc.Verify("whsec", canonical, got.Header.Get(HeaderWebhookSignature)))

	var payload domain.EventPayload
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, event.ID.String(), payload.ID)
	assert.Equal(t, "5", payload.Amount)
	assert.Equal(t, "7", payload.USDValue)
}

func TestWebhookPublisher_Publish_RetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	client := &mockHTTPClient{doFunc: func(req *http.Request) (*http.Response, error) {
		switch calls.Add(1) {
		case 1:
			return nil, errors.New("connection refused")
		case 2:
			return okResponse(http.StatusServiceUnavailable), nil
		default:
			return okResponse(http.StatusNoContent), nil
		}
	}}

	pub := NewWebhookPublisher(testWebhookURL, "whsec", NewHMACSignatureService(), client, newTestLogger()).
		WithRetryIntervals([]time.Duration{time.Millisecond, time.Millisecond, time.Millisecond})

	err := pub.Publish(context.Background(), domain.NewWithdrawEvent(testCaller, testToken, uint256.NewInt(1), uint256.NewInt(1)))
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookPublisher_Publish_Exhausted(t *testing.T) {
	var calls atomic.Int32
	client := &mockHTTPClient{doFunc: func(req *http.Request) (*http.Response, error) {
		calls.Add(1)
		return okResponse(http.StatusInternalServerError), nil
	}}

	pub := NewWebhookPublisher(testWebhookURL, "whsec", NewHMACSignatureService(), client, newTestLogger()).
		WithRetryIntervals([]time.Duration{time.Millisecond})

	err := pub.Publish(context.Background(), domain.NewDepositEvent(testCaller, testToken, uint256.NewInt(1), uint256.NewInt(1)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exhausted")
	assert.Equal(t, int32(2), calls.Load())
}

func TestWebhookPublisher_Publish_ContextCancelled(t *testing.T) {
	client := &mockHTTPClient{doFunc: func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("timeout")
	}}
	pub := NewWebhookPublisher(testWebhookURL, "whsec", NewHMACSignatureService(), client, newTestLogger()).
		WithRetryIntervals([]time.Duration{time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := pub.Publish(ctx, domain.NewDepositEvent(testCaller, testToken, uint256.NewInt(1), uint256.NewInt(1)))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWebhookPublisher_Name(t *testing.T) {
	pub := NewWebhookPublisher(testWebhookURL, "", NewHMACSignatureService(), http.DefaultClient, newTestLogger())
	assert.Equal(t, "webhook", pub.Name())
}
