package oracle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"custody-vault/internal/core/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// StaticFeed implements ports.PriceFeed with fixed prices. Quotes are always
// reported as fresh. Used for development and tests.
type StaticFeed struct {
	mu     sync.RWMutex
	prices map[common.Address]domain.Quote
	rounds uint64
}

// NewStaticFeed creates an empty static feed.
func NewStaticFeed() *StaticFeed {
	return &StaticFeed{prices: make(map[common.Address]domain.Quote)}
}

// Set installs or replaces the price served for oracle.
func (f *StaticFeed) Set(oracle common.Address, price *uint256.Int, decimals uint8) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rounds++
	f.prices[oracle] = domain.Quote{Price: price.Clone(), Decimals: decimals, RoundID: f.rounds}
}

func (f *StaticFeed) LatestRound(ctx context.Context, oracle common.Address) (*domain.Quote, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	q, ok := f.prices[oracle]
	if !ok {
		return nil, fmt.Errorf("no price configured for oracle %s", oracle.Hex())
	}
	q.Price = q.Price.Clone()
	q.UpdatedAt = time.Now().UTC()
	return &q, nil
}
