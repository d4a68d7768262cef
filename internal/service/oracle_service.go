package service

import (
	"context"
	"errors"
	"time"

	"custody-vault/internal/core/domain"
	"custody-vault/internal/core/ports"
	"custody-vault/pkg/apperror"
	"custody-vault/pkg/fixedpoint"

	"github.com/ethereum/go-ethereum/common"
)

// PriceOracle reads quotes from the price feed. Every call goes to the feed;
// there is no caching and no retry, so a failing feed blocks the operation.
type PriceOracle struct {
	feed         ports.PriceFeed
	maxStaleness time.Duration // 0 disables the freshness check
	now          func() time.Time
}

// NewPriceOracle creates a new PriceOracle.
func NewPriceOracle(feed ports.PriceFeed, maxStaleness time.Duration) *PriceOracle {
	return &PriceOracle{
		feed:         feed,
		maxStaleness: maxStaleness,
		now:          time.Now,
	}
}

// Quote returns the latest positive, fresh price for oracle.
func (o *PriceOracle) Quote(ctx context.Context, oracle common.Address) (*domain.Quote, error) {
	q, err := o.feed.LatestRound(ctx, oracle)
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperror.ErrOracleUnavailable(err)
	}
	if q == nil || q.Price == nil || q.Price.IsZero() {
		var price string
		if q != nil {
			price = fixedpoint.String(q.Price)
		}
		return nil, apperror.ErrInvalidPrice(price)
	}
	if o.maxStaleness > 0 && o.now().Sub(q.UpdatedAt) > o.maxStaleness {
		return nil, apperror.ErrStalePrice(q.UpdatedAt.UTC().Format(time.RFC3339))
	}
	return q, nil
}
