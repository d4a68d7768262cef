package memory

import (
	"context"
	"sort"

	"custody-vault/internal/core/domain"
	"custody-vault/internal/core/ports"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
)

// --- Assets ---

// AssetRepo implements ports.AssetRepository.
type AssetRepo struct{ s *Store }

func NewAssetRepo(s *Store) *AssetRepo { return &AssetRepo{s: s} }

func (r *AssetRepo) Get(ctx context.Context, asset common.Address) (*domain.AssetConfig, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	cfg, ok := r.s.assets[asset]
	if !ok {
		return nil, nil
	}
	return &cfg, nil
}

func (r *AssetRepo) Upsert(ctx context.Context, tx pgx.Tx, cfg *domain.AssetConfig) error {
	mt, err := r.s.own(tx)
	if err != nil {
		return err
	}
	mt.assets[cfg.Asset] = *cfg
	return nil
}

func (r *AssetRepo) List(ctx context.Context) ([]domain.AssetConfig, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.AssetConfig, 0, len(r.s.assets))
	for _, cfg := range r.s.assets {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset.Cmp(out[j].Asset) < 0 })
	return out, nil
}

// --- Balances ---

// BalanceRepo implements ports.BalanceRepository.
type BalanceRepo struct{ s *Store }

func NewBalanceRepo(s *Store) *BalanceRepo { return &BalanceRepo{s: s} }

func (r *BalanceRepo) Get(ctx context.Context, asset, user common.Address) (*uint256.Int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.committed(asset, user), nil
}

// committed requires r.s.mu to be held.
func (r *BalanceRepo) committed(asset, user common.Address) *uint256.Int {
	if bal, ok := r.s.balances[balanceKey{asset, user}]; ok {
		return bal.Clone()
	}
	return new(uint256.Int)
}

func (r *BalanceRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, asset, user common.Address) (*uint256.Int, error) {
	mt, err := r.s.own(tx)
	if err != nil {
		return nil, err
	}
	if bal, ok := mt.balances[balanceKey{asset, user}]; ok {
		return bal.Clone(), nil
	}
	return r.Get(ctx, asset, user)
}

func (r *BalanceRepo) Upsert(ctx context.Context, tx pgx.Tx, asset, user common.Address, usd *uint256.Int) error {
	mt, err := r.s.own(tx)
	if err != nil {
		return err
	}
	mt.balances[balanceKey{asset, user}] = usd.Clone()
	return nil
}

func (r *BalanceRepo) ListByUser(ctx context.Context, user common.Address) ([]domain.Balance, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Balance
	for k, v := range r.s.balances {
		if k.user == user {
			out = append(out, domain.Balance{User: user, Asset: k.asset, USD: v.Clone()})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset.Cmp(out[j].Asset) < 0 })
	return out, nil
}

// --- Totals ---

// TotalsRepo implements ports.TotalsRepository.
type TotalsRepo struct{ s *Store }

func NewTotalsRepo(s *Store) *TotalsRepo { return &TotalsRepo{s: s} }

func (r *TotalsRepo) Get(ctx context.Context) (*domain.Totals, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.totals.Clone(), nil
}

func (r *TotalsRepo) GetForUpdate(ctx context.Context, tx pgx.Tx) (*domain.Totals, error) {
	mt, err := r.s.own(tx)
	if err != nil {
		return nil, err
	}
	if mt.totals != nil {
		return mt.totals.Clone(), nil
	}
	return r.Get(ctx)
}

func (r *TotalsRepo) Update(ctx context.Context, tx pgx.Tx, totals *domain.Totals) error {
	mt, err := r.s.own(tx)
	if err != nil {
		return err
	}
	mt.totals = totals.Clone()
	return nil
}

// --- Events ---

// EventRepo implements ports.EventRepository.
type EventRepo struct{ s *Store }

func NewEventRepo(s *Store) *EventRepo { return &EventRepo{s: s} }

func (r *EventRepo) Create(ctx context.Context, tx pgx.Tx, event *domain.Event) error {
	mt, err := r.s.own(tx)
	if err != nil {
		return err
	}
	mt.events = append(mt.events, *event)
	return nil
}

// List returns matching events newest first.
func (r *EventRepo) List(ctx context.Context, params ports.EventListParams) ([]domain.Event, int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var matched []domain.Event
	for i := len(r.s.events) - 1; i >= 0; i-- {
		ev := r.s.events[i]
		if params.Actor != nil && ev.Actor != *params.Actor {
			continue
		}
		if params.Asset != nil && ev.Asset != *params.Asset {
			continue
		}
		if params.Type != nil && ev.Type != *params.Type {
			continue
		}
		matched = append(matched, ev)
	}

	total := int64(len(matched))
	start := (params.Page - 1) * params.PageSize
	if start < 0 || start >= len(matched) {
		return []domain.Event{}, total, nil
	}
	end := start + params.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

// --- Audit ---

// AuditRepo implements ports.AuditRepository.
type AuditRepo struct{ s *Store }

func NewAuditRepo(s *Store) *AuditRepo { return &AuditRepo{s: s} }

func (r *AuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.audits = append(r.s.audits, *entry)
	return nil
}

// Entries returns a copy of the recorded audit log.
func (r *AuditRepo) Entries() []domain.AuditLog {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return append([]domain.AuditLog(nil), r.s.audits...)
}
