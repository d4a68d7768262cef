package postgres

import (
	"context"
	"fmt"

	"custody-vault/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// TotalsRepo implements ports.TotalsRepository on the single vault_totals row.
type TotalsRepo struct {
	pool Pool
}

// NewTotalsRepo creates a new TotalsRepo.
func NewTotalsRepo(pool Pool) *TotalsRepo {
	return &TotalsRepo{pool: pool}
}

const totalsColumns = `total_usd::text, deposit_count, withdraw_count, updated_at`

func (r *TotalsRepo) Get(ctx context.Context) (*domain.Totals, error) {
	query := `SELECT ` + totalsColumns + ` FROM vault_totals WHERE id = 1`
	return scanTotals(r.pool.QueryRow(ctx, query), "get totals")
}

// GetForUpdate locks the totals row. Every ledger write takes this lock
// first, so it is the serialization point across replicas.
func (r *TotalsRepo) GetForUpdate(ctx context.Context, tx pgx.Tx) (*domain.Totals, error) {
	query := `SELECT ` + totalsColumns + ` FROM vault_totals WHERE id = 1 FOR UPDATE`
	return scanTotals(tx.QueryRow(ctx, query), "get totals for update")
}

func scanTotals(row pgx.Row, op string) (*domain.Totals, error) {
	var (
		total       string
		deposits    int64
		withdrawals int64
	)
	t := &domain.Totals{}
	if err := row.Scan(&total, &deposits, &withdrawals, &t.UpdatedAt); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	usd, err := amountFrom(total)
	if err != nil {
		return nil, err
	}
	t.TotalUSD = usd
	t.DepositCount = uint64(deposits)
	t.WithdrawCount = uint64(withdrawals)
	return t, nil
}

// Update writes the totals within a transaction.
func (r *TotalsRepo) Update(ctx context.Context, tx pgx.Tx, totals *domain.Totals) error {
	query := `UPDATE vault_totals
		SET total_usd = $1::numeric, deposit_count = $2, withdraw_count = $3, updated_at = $4
		WHERE id = 1`

	tag, err := tx.Exec(ctx, query,
		amountArg(totals.TotalUSD), int64(totals.DepositCount), int64(totals.WithdrawCount), totals.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update totals: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update totals: row missing, schema not applied")
	}
	return nil
}
