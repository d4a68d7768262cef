package domain

import (
	"time"

	"github.com/holiman/uint256"
)

// Quote is the latest answer read from a price feed. Price is scaled by
// 10^Decimals.
type Quote struct {
	Price     *uint256.Int
	Decimals  uint8
	UpdatedAt time.Time
	RoundID   uint64
}
