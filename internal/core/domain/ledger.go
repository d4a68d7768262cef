package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Balance is the USD-denominated (6 decimals) balance of one user for one asset.
type Balance struct {
	User      common.Address
	Asset     common.Address
	USD       *uint256.Int
	UpdatedAt time.Time
}

// Totals holds the vault-wide aggregates. TotalUSD always equals the sum of
// every Balance.USD.
type Totals struct {
	TotalUSD      *uint256.Int
	DepositCount  uint64
	WithdrawCount uint64
	UpdatedAt     time.Time
}

// NewTotals returns zeroed totals.
func NewTotals() *Totals {
	return &Totals{TotalUSD: new(uint256.Int)}
}

// Clone returns a deep copy.
func (t *Totals) Clone() *Totals {
	c := *t
	c.TotalUSD = t.TotalUSD.Clone()
	return &c
}
