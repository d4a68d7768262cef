package service

import (
	"context"

	"custody-vault/pkg/fixedpoint"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Valuation converts raw asset amounts to USD (6 decimals).
//
// The native and token paths round differently: native applies the price
// before rescaling, tokens rescale first. Both are kept as is.
type Valuation struct {
	oracle *PriceOracle
}

// NewValuation creates a new Valuation.
func NewValuation(oracle *PriceOracle) *Valuation {
	return &Valuation{oracle: oracle}
}

// ValueNative values wei as wei * price / 1e18, rescaled from the price
// decimals to USD decimals.
func (v *Valuation) ValueNative(ctx context.Context, oracle common.Address, wei *uint256.Int) (*uint256.Int, error) {
	q, err := v.oracle.Quote(ctx, oracle)
	if err != nil {
		return nil, err
	}

	product, err := fixedpoint.Mul(wei, q.Price)
	if err != nil {
		return nil, err
	}
	unit, err := fixedpoint.Pow10(fixedpoint.NativeDecimals)
	if err != nil {
		return nil, err
	}
	usdAtPriceDecimals := new(uint256.Int).Div(product, unit)

	return fixedpoint.Rescale(usdAtPriceDecimals, q.Decimals, fixedpoint.USDDecimals)
}

// ValueToken rescales amount to USD decimals and then applies the price:
// divided by price and 10^(pd-6) when the feed has more than 6 decimals,
// multiplied by price and 10^(6-pd) otherwise.
func (v *Valuation) ValueToken(ctx context.Context, oracle common.Address, amount *uint256.Int, tokenDecimals uint8) (*uint256.Int, error) {
	scaled, err := fixedpoint.Rescale(amount, tokenDecimals, fixedpoint.USDDecimals)
	if err != nil {
		return nil, err
	}

	q, err := v.oracle.Quote(ctx, oracle)
	if err != nil {
		return nil, err
	}

	if q.Decimals > fixedpoint.USDDecimals {
		factor, err := fixedpoint.Pow10(q.Decimals - fixedpoint.USDDecimals)
		if err != nil {
			return nil, err
		}
		out := new(uint256.Int).Div(scaled, q.Price)
		return out.Div(out, factor), nil
	}

	factor, err := fixedpoint.Pow10(fixedpoint.USDDecimals - q.Decimals)
	if err != nil {
		return nil, err
	}
	out, err := fixedpoint.Mul(scaled, q.Price)
	if err != nil {
		return nil, err
	}
	return fixedpoint.Mul(out, factor)
}
