package service

import (
	"context"
	"fmt"
	"time"

	"custody-vault/internal/core/domain"
	"custody-vault/internal/core/ports"
	"custody-vault/pkg/apperror"
	"custody-vault/pkg/fixedpoint"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
)

// LedgerEntry is the ledger state produced by a credit or debit.
type LedgerEntry struct {
	Balance *uint256.Int
	Totals  *domain.Totals
}

// Ledger keeps USD balances and the vault totals. Writes go through the
// caller's transaction; nothing is visible until it commits.
type Ledger struct {
	balances ports.BalanceRepository
	totals   ports.TotalsRepository
	bankCap  *uint256.Int
}

// NewLedger creates a new Ledger enforcing bankCap on the total.
func NewLedger(balances ports.BalanceRepository, totals ports.TotalsRepository, bankCap *uint256.Int) *Ledger {
	return &Ledger{
		balances: balances,
		totals:   totals,
		bankCap:  bankCap.Clone(),
	}
}

// BankCap returns the configured cap.
func (l *Ledger) BankCap() *uint256.Int {
	return l.bankCap.Clone()
}

// Credit adds usd to the user's balance and the total. It fails with
// BankCapExceeded, writing nothing, when the new total would pass the cap.
func (l *Ledger) Credit(ctx context.Context, tx pgx.Tx, asset, user common.Address, usd *uint256.Int) (*LedgerEntry, error) {
	// Totals row first, then the balance row: one lock order for both directions.
	totals, err := l.totals.GetForUpdate(ctx, tx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock totals: %w", err))
	}

	newTotal, err := fixedpoint.Add(totals.TotalUSD, usd)
	if err != nil {
		return nil, err
	}
	if newTotal.Gt(l.bankCap) {
		return nil, apperror.ErrBankCapExceeded(
			fixedpoint.String(totals.TotalUSD), fixedpoint.String(usd), fixedpoint.String(l.bankCap))
	}

	balance, err := l.balances.GetForUpdate(ctx, tx, asset, user)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock balance: %w", err))
	}
	newBalance, err := fixedpoint.Add(balance, usd)
	if err != nil {
		return nil, err
	}

	if err := l.balances.Upsert(ctx, tx, asset, user, newBalance); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update balance: %w", err))
	}

	next := totals.Clone()
	next.TotalUSD = newTotal
	next.DepositCount++
	next.UpdatedAt = time.Now().UTC()
	if err := l.totals.Update(ctx, tx, next); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update totals: %w", err))
	}

	return &LedgerEntry{Balance: newBalance, Totals: next}, nil
}

// Debit subtracts usd from the user's balance and the total. It fails with
// InsufficientBalance, writing nothing, when the balance is too small.
func (l *Ledger) Debit(ctx context.Context, tx pgx.Tx, asset, user common.Address, usd *uint256.Int) (*LedgerEntry, error) {
	totals, err := l.totals.GetForUpdate(ctx, tx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock totals: %w", err))
	}

	balance, err := l.balances.GetForUpdate(ctx, tx, asset, user)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock balance: %w", err))
	}
	if balance.Lt(usd) {
		return nil, apperror.ErrInsufficientBalance(fixedpoint.String(balance), fixedpoint.String(usd))
	}

	newBalance, err := fixedpoint.Sub(balance, usd)
	if err != nil {
		return nil, err
	}
	newTotal, err := fixedpoint.Sub(totals.TotalUSD, usd)
	if err != nil {
		return nil, err
	}

	if err := l.balances.Upsert(ctx, tx, asset, user, newBalance); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update balance: %w", err))
	}

	next := totals.Clone()
	next.TotalUSD = newTotal
	next.WithdrawCount++
	next.UpdatedAt = time.Now().UTC()
	if err := l.totals.Update(ctx, tx, next); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update totals: %w", err))
	}

	return &LedgerEntry{Balance: newBalance, Totals: next}, nil
}

// Balance reads a committed balance.
func (l *Ledger) Balance(ctx context.Context, asset, user common.Address) (*uint256.Int, error) {
	bal, err := l.balances.Get(ctx, asset, user)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get balance: %w", err))
	}
	return bal, nil
}

// Totals reads the committed totals.
func (l *Ledger) Totals(ctx context.Context) (*domain.Totals, error) {
	t, err := l.totals.Get(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get totals: %w", err))
	}
	return t, nil
}
