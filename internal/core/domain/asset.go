package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// NativeAsset is the reserved identifier of the chain's native currency.
var NativeAsset = common.Address{}

// AssetConfig is the per-asset acceptance policy kept by the registry.
// An asset that was never configured reads as disabled with no feed.
type AssetConfig struct {
	Asset     common.Address `json:"asset"`
	Oracle    common.Address `json:"oracle"`
	Enabled   bool           `json:"enabled"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// HasFeed reports whether a price oracle is set.
func (c *AssetConfig) HasFeed() bool {
	return c.Oracle != (common.Address{})
}

// IsNative reports whether addr identifies the native currency.
func IsNative(addr common.Address) bool {
	return addr == NativeAsset
}
