package custody

import (
	"context"
	"fmt"
	"sync"

	"custody-vault/internal/core/domain"
	"custody-vault/pkg/fixedpoint"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Direction of a custody transfer.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Transfer is one movement executed by the MemoryGateway.
type Transfer struct {
	Direction Direction
	Asset     common.Address
	Account   common.Address
	Amount    *uint256.Int
}

// TransferHook runs inside a transfer, before funds move. A non-nil error
// fails the transfer.
type TransferHook func(ctx context.Context, t Transfer) error

// MemoryGateway implements ports.TransferGateway in process. It tracks the
// vault's custody holdings per asset; payouts beyond the holdings fail.
type MemoryGateway struct {
	mu       sync.Mutex
	decimals map[common.Address]uint8
	holdings map[common.Address]*uint256.Int
	history  []Transfer
	hook     TransferHook
}

// NewMemoryGateway creates a gateway knowing the given token decimals.
func NewMemoryGateway(decimals map[common.Address]uint8) *MemoryGateway {
	d := make(map[common.Address]uint8, len(decimals))
	for k, v := range decimals {
		d[k] = v
	}
	return &MemoryGateway{
		decimals: d,
		holdings: make(map[common.Address]*uint256.Int),
	}
}

// SetDecimals registers a token's precision.
func (g *MemoryGateway) SetDecimals(token common.Address, decimals uint8) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.decimals[token] = decimals
}

// SetHook installs fn to run on every subsequent transfer; nil removes it.
func (g *MemoryGateway) SetHook(fn TransferHook) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hook = fn
}

func (g *MemoryGateway) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	if domain.IsNative(token) {
		return fixedpoint.NativeDecimals, nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	d, ok := g.decimals[token]
	if !ok {
		return 0, fmt.Errorf("unknown token %s", token.Hex())
	}
	return d, nil
}

func (g *MemoryGateway) TransferIn(ctx context.Context, asset, from common.Address, amount *uint256.Int) error {
	return g.move(ctx, Transfer{Direction: DirectionIn, Asset: asset, Account: from, Amount: amount.Clone()})
}

func (g *MemoryGateway) TransferOut(ctx context.Context, asset, to common.Address, amount *uint256.Int) error {
	return g.move(ctx, Transfer{Direction: DirectionOut, Asset: asset, Account: to, Amount: amount.Clone()})
}

func (g *MemoryGateway) move(ctx context.Context, t Transfer) error {
	g.mu.Lock()
	hook := g.hook
	g.mu.Unlock()

	// The hook runs unlocked so it can call back into the vault.
	if hook != nil {
		if err := hook(ctx, t); err != nil {
			return err
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	held := g.holdings[t.Asset]
	if held == nil {
		held = new(uint256.Int)
	}

	switch t.Direction {
	case DirectionIn:
		next, err := fixedpoint.Add(held, t.Amount)
		if err != nil {
			return err
		}
		g.holdings[t.Asset] = next
	case DirectionOut:
		if held.Lt(t.Amount) {
			return fmt.Errorf("custody holds %s of %s, cannot pay %s",
				fixedpoint.String(held), t.Asset.Hex(), fixedpoint.String(t.Amount))
		}
		g.holdings[t.Asset] = new(uint256.Int).Sub(held, t.Amount)
	}

	g.history = append(g.history, t)
	return nil
}

// Holdings returns the custody balance of asset.
func (g *MemoryGateway) Holdings(asset common.Address) *uint256.Int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if h := g.holdings[asset]; h != nil {
		return h.Clone()
	}
	return new(uint256.Int)
}

// History returns the executed transfers in order.
func (g *MemoryGateway) History() []Transfer {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Transfer(nil), g.history...)
}
