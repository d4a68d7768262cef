package postgres

import (
	"context"
	"errors"
	"fmt"

	"custody-vault/internal/core/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
)

// BalanceRepo implements ports.BalanceRepository.
type BalanceRepo struct {
	pool Pool
}

// NewBalanceRepo creates a new BalanceRepo.
func NewBalanceRepo(pool Pool) *BalanceRepo {
	return &BalanceRepo{pool: pool}
}

// Get reads a committed balance (non-locking). Missing rows read as zero.
func (r *BalanceRepo) Get(ctx context.Context, asset, user common.Address) (*uint256.Int, error) {
	query := `SELECT usd::text FROM balances WHERE asset = $1 AND user_addr = $2`
	return scanBalance(r.pool.QueryRow(ctx, query, addrArg(asset), addrArg(user)), "get balance")
}

// GetForUpdate reads a balance with a row lock.
// This MUST be called within a transaction.
func (r *BalanceRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, asset, user common.Address) (*uint256.Int, error) {
	query := `SELECT usd::text FROM balances WHERE asset = $1 AND user_addr = $2 FOR UPDATE`
	return scanBalance(tx.QueryRow(ctx, query, addrArg(asset), addrArg(user)), "get balance for update")
}

func scanBalance(row pgx.Row, op string) (*uint256.Int, error) {
	var usd string
	if err := row.Scan(&usd); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return new(uint256.Int), nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return amountFrom(usd)
}

// Upsert writes the new balance within a transaction.
func (r *BalanceRepo) Upsert(ctx context.Context, tx pgx.Tx, asset, user common.Address, usd *uint256.Int) error {
	query := `INSERT INTO balances (asset, user_addr, usd, updated_at)
		VALUES ($1, $2, $3::numeric, NOW())
		ON CONFLICT (asset, user_addr) DO UPDATE
		SET usd = EXCLUDED.usd, updated_at = NOW()`

	if _, err := tx.Exec(ctx, query, addrArg(asset), addrArg(user), amountArg(usd)); err != nil {
		return fmt.Errorf("upsert balance: %w", err)
	}
	return nil
}

// ListByUser returns all of a user's non-zero balances.
func (r *BalanceRepo) ListByUser(ctx context.Context, user common.Address) ([]domain.Balance, error) {
	query := `SELECT asset, usd::text, updated_at FROM balances
		WHERE user_addr = $1 AND usd > 0 ORDER BY asset`

	rows, err := r.pool.Query(ctx, query, addrArg(user))
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	defer rows.Close()

	var out []domain.Balance
	for rows.Next() {
		var (
			asset []byte
			usd   string
		)
		b := domain.Balance{User: user}
		if err := rows.Scan(&asset, &usd, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		if b.Asset, err = addrFrom(asset); err != nil {
			return nil, err
		}
		if b.USD, err = amountFrom(usd); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
