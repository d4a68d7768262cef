// Package memory is an in-process implementation of the vault repositories.
//
// Writes made through a transaction are staged on the Tx and applied to the
// store atomically on Commit; Rollback discards them. The store does not take
// row locks: concurrent writers are expected to be serialized by the vault.
package memory

import (
	"context"
	"errors"
	"sync"

	"custody-vault/internal/core/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var errForeignTx = errors.New("memory: transaction was not started by this store")

type balanceKey struct {
	asset common.Address
	user  common.Address
}

// Store holds all committed state.
type Store struct {
	mu       sync.RWMutex
	assets   map[common.Address]domain.AssetConfig
	balances map[balanceKey]*uint256.Int
	totals   *domain.Totals
	events   []domain.Event
	audits   []domain.AuditLog
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		assets:   make(map[common.Address]domain.AssetConfig),
		balances: make(map[balanceKey]*uint256.Int),
		totals:   domain.NewTotals(),
	}
}

// Begin implements ports.DBTransactor.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	return &Tx{
		store:    s,
		assets:   make(map[common.Address]domain.AssetConfig),
		balances: make(map[balanceKey]*uint256.Int),
	}, nil
}

// Ping implements ports.HealthChecker.
func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) Name() string { return "memory" }

// Tx stages writes until Commit.
type Tx struct {
	store    *Store
	assets   map[common.Address]domain.AssetConfig
	balances map[balanceKey]*uint256.Int
	totals   *domain.Totals
	events   []domain.Event
	closed   bool
}

func (t *Tx) Commit(ctx context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range t.assets {
		s.assets[k] = v
	}
	for k, v := range t.balances {
		s.balances[k] = v
	}
	if t.totals != nil {
		s.totals = t.totals
	}
	s.events = append(s.events, t.events...)
	return nil
}

func (t *Tx) Rollback(ctx context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	return nil
}

func (t *Tx) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("memory: nested transactions are not supported")
}

func (t *Tx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, errors.ErrUnsupported
}
func (t *Tx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *Tx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *Tx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, errors.ErrUnsupported
}
func (t *Tx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), errors.ErrUnsupported
}
func (t *Tx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.ErrUnsupported
}
func (t *Tx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (t *Tx) Conn() *pgx.Conn                                               { return nil }

func (s *Store) own(tx pgx.Tx) (*Tx, error) {
	mt, ok := tx.(*Tx)
	if !ok || mt.store != s {
		return nil, errForeignTx
	}
	if mt.closed {
		return nil, pgx.ErrTxClosed
	}
	return mt, nil
}
