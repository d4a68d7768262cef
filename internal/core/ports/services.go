package ports

import (
	"context"
	"time"

	"custody-vault/internal/core/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// --- External collaborators ---

// PriceFeed reads the latest answer of an on-chain style price oracle.
type PriceFeed interface {
	LatestRound(ctx context.Context, oracle common.Address) (*domain.Quote, error)
}

// TransferGateway moves funds between the vault's custody and a user.
// Each call either moves the funds or returns an error; the native asset is
// addressed as domain.NativeAsset.
type TransferGateway interface {
	// Decimals returns the raw-unit precision of a token.
	Decimals(ctx context.Context, token common.Address) (uint8, error)
	// TransferIn collects amount of asset from the user into custody.
	TransferIn(ctx context.Context, asset, from common.Address, amount *uint256.Int) error
	// TransferOut pays amount of asset out of custody to the user.
	TransferOut(ctx context.Context, asset, to common.Address, amount *uint256.Int) error
}

// AdminPolicy decides who may reconfigure assets.
type AdminPolicy interface {
	IsAdmin(caller common.Address) bool
}

// EventPublisher delivers a committed vault event to an outside consumer.
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.Event) error
	Name() string
}

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
	BuildCanonicalString(method, path string, timestamp int64, body string) string
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(subject common.Address, role string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	Subject common.Address
	Role    string
}

// IdempotencyCache stores replayable responses keyed by Idempotency-Key.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Reserve claims key for a running request; false if already claimed.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// --- Service Ports (Business Logic) ---

// VaultService is the custodial ledger.
type VaultService interface {
	DepositNative(ctx context.Context, caller common.Address, amount *uint256.Int) (*Receipt, error)
	DepositToken(ctx context.Context, caller, asset common.Address, amount *uint256.Int) (*Receipt, error)
	WithdrawNative(ctx context.Context, caller common.Address, amount *uint256.Int) (*Receipt, error)
	WithdrawToken(ctx context.Context, caller, asset common.Address, amount *uint256.Int) (*Receipt, error)
	SetAssetConfig(ctx context.Context, caller, asset, oracle common.Address, enabled bool) (*domain.AssetConfig, error)

	GetBalance(ctx context.Context, asset, user common.Address) (*uint256.Int, error)
	PreviewNativeToUSD(ctx context.Context, amount *uint256.Int) (*uint256.Int, error)
	PreviewTokenToUSD(ctx context.Context, asset common.Address, amount *uint256.Int) (*uint256.Int, error)
	GetAsset(ctx context.Context, asset common.Address) (*domain.AssetConfig, error)
	GetTotals(ctx context.Context) (*domain.Totals, error)
	BankCap() *uint256.Int
	ListEvents(ctx context.Context, params EventListParams) ([]domain.Event, int64, error)
}

// Receipt is the result of a committed deposit or withdrawal.
type Receipt struct {
	Event      *domain.Event
	BalanceUSD *uint256.Int // caller's balance for the asset after the operation
	TotalUSD   *uint256.Int // vault total after the operation
}

// AuditService records audit entries.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}
