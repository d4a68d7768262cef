package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"custody-vault/internal/core/domain"
	"custody-vault/pkg/apperror"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// latestRoundResponse is the body of GET {base}/feeds/{oracle}/latest.
type latestRoundResponse struct {
	Answer    string `json:"answer"`
	Decimals  uint8  `json:"decimals"`
	UpdatedAt int64  `json:"updated_at"` // unix seconds
	RoundID   uint64 `json:"round_id"`
}

// HTTPFeed implements ports.PriceFeed against a price-feed gateway that
// exposes aggregator rounds over HTTP.
type HTTPFeed struct {
	baseURL string
	client  *http.Client
}

// NewHTTPFeed creates a feed client. A zero timeout leaves the client without one.
func NewHTTPFeed(baseURL string, timeout time.Duration) *HTTPFeed {
	return &HTTPFeed{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// LatestRound fetches the latest answer of the given aggregator.
func (f *HTTPFeed) LatestRound(ctx context.Context, oracle common.Address) (*domain.Quote, error) {
	url := fmt.Sprintf("%s/feeds/%s/latest", f.baseURL, oracle.Hex())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("feed %s: status %d: %s", oracle.Hex(), resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out latestRoundResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode feed response: %w", err)
	}

	answer, ok := new(big.Int).SetString(out.Answer, 10)
	if !ok {
		return nil, fmt.Errorf("feed %s: malformed answer %q", oracle.Hex(), out.Answer)
	}
	if answer.Sign() <= 0 {
		return nil, apperror.ErrInvalidPrice(out.Answer)
	}
	price, overflow := uint256.FromBig(answer)
	if overflow {
		return nil, fmt.Errorf("feed %s: answer exceeds 256 bits", oracle.Hex())
	}

	return &domain.Quote{
		Price:     price,
		Decimals:  out.Decimals,
		UpdatedAt: time.Unix(out.UpdatedAt, 0).UTC(),
		RoundID:   out.RoundID,
	}, nil
}
