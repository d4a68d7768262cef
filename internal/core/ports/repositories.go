package ports

import (
	"context"

	"custody-vault/internal/core/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
)

// AssetRepository persists the asset registry.
type AssetRepository interface {
	// Get returns nil, nil when the asset was never configured.
	Get(ctx context.Context, asset common.Address) (*domain.AssetConfig, error)
	Upsert(ctx context.Context, tx pgx.Tx, cfg *domain.AssetConfig) error
	List(ctx context.Context) ([]domain.AssetConfig, error)
}

// BalanceRepository persists per-user, per-asset USD balances.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type BalanceRepository interface {
	// Get returns zero for a balance that was never written.
	Get(ctx context.Context, asset, user common.Address) (*uint256.Int, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, asset, user common.Address) (*uint256.Int, error)
	Upsert(ctx context.Context, tx pgx.Tx, asset, user common.Address, usd *uint256.Int) error
	ListByUser(ctx context.Context, user common.Address) ([]domain.Balance, error)
}

// TotalsRepository persists the vault-wide aggregates (a single row).
type TotalsRepository interface {
	Get(ctx context.Context) (*domain.Totals, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx) (*domain.Totals, error)
	Update(ctx context.Context, tx pgx.Tx, totals *domain.Totals) error
}

// EventRepository is the outbox of emitted vault events.
type EventRepository interface {
	Create(ctx context.Context, tx pgx.Tx, event *domain.Event) error
	List(ctx context.Context, params EventListParams) ([]domain.Event, int64, error)
}

// EventListParams holds filter + pagination for listing events.
type EventListParams struct {
	Actor    *common.Address
	Asset    *common.Address
	Type     *domain.EventType
	Page     int
	PageSize int
}

// AuditRepository persists audit log entries.
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
