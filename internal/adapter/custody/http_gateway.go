package custody

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"custody-vault/internal/core/ports"
	"custody-vault/pkg/fixedpoint"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// Headers sent to the custody API.
const (
	HeaderAPIKey         = "X-Api-Key"
	HeaderTimestamp      = "X-Timestamp"
	HeaderSignature      = "X-Signature"
	HeaderIdempotencyKey = "Idempotency-Key"
)

type transferRequest struct {
	Asset   string `json:"asset"`
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

type decimalsResponse struct {
	Decimals uint8 `json:"decimals"`
}

// HTTPGateway implements ports.TransferGateway against a custody provider's
// REST API. Requests are signed with HMAC-SHA256 over
// METHOD|PATH|TIMESTAMP|BODY.
type HTTPGateway struct {
	baseURL   string
	apiKey    string
	apiSecret string
	sigSvc    ports.SignatureService
	client    *http.Client

	decimals sync.Map // common.Address -> uint8
}

// NewHTTPGateway creates a custody API client.
func NewHTTPGateway(baseURL, apiKey, apiSecret string, timeout time.Duration, sigSvc ports.SignatureService) *HTTPGateway {
	return &HTTPGateway{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiSecret: apiSecret,
		sigSvc:    sigSvc,
		client:    &http.Client{Timeout: timeout},
	}
}

// Decimals returns the token precision. Answers are cached per token.
func (g *HTTPGateway) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	if v, ok := g.decimals.Load(token); ok {
		return v.(uint8), nil
	}

	var out decimalsResponse
	path := fmt.Sprintf("/v1/tokens/%s/decimals", token.Hex())
	if err := g.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return 0, err
	}
	g.decimals.Store(token, out.Decimals)
	return out.Decimals, nil
}

// TransferIn asks the custodian to collect amount of asset from the account.
func (g *HTTPGateway) TransferIn(ctx context.Context, asset, from common.Address, amount *uint256.Int) error {
	return g.do(ctx, http.MethodPost, "/v1/transfers/in", &transferRequest{
		Asset:   asset.Hex(),
		Account: from.Hex(),
		Amount:  fixedpoint.String(amount),
	}, nil)
}

// TransferOut asks the custodian to pay amount of asset to the account.
func (g *HTTPGateway) TransferOut(ctx context.Context, asset, to common.Address, amount *uint256.Int) error {
	return g.do(ctx, http.MethodPost, "/v1/transfers/out", &transferRequest{
		Asset:   asset.Hex(),
		Account: to.Hex(),
		Amount:  fixedpoint.String(amount),
	}, nil)
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("custody: marshal request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("custody: build request: %w", err)
	}

	ts := time.Now().Unix()
	canonical := g.sigSvc.BuildCanonicalString(method, path, ts, string(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderAPIKey, g.apiKey)
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderSignature, g.sigSvc.Sign(g.apiSecret, canonical))
	if method == http.MethodPost {
		req.Header.Set(HeaderIdempotencyKey, uuid.NewString())
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("custody %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("custody %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("custody: decode response: %w", err)
		}
	}
	return nil
}
