package service

import (
	"context"
	"fmt"
	"time"

	"custody-vault/internal/core/domain"
	"custody-vault/internal/core/ports"
	"custody-vault/pkg/apperror"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
)

// AssetRegistry holds the per-asset acceptance policy.
type AssetRegistry struct {
	repo ports.AssetRepository
}

// NewAssetRegistry creates a new AssetRegistry.
func NewAssetRegistry(repo ports.AssetRepository) *AssetRegistry {
	return &AssetRegistry{repo: repo}
}

// Find returns the stored config, or nil if asset was never configured.
func (r *AssetRegistry) Find(ctx context.Context, asset common.Address) (*domain.AssetConfig, error) {
	cfg, err := r.repo.Get(ctx, asset)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lookup asset: %w", err))
	}
	return cfg, nil
}

// Lookup returns the stored config, or a disabled zero config for an asset
// that was never configured.
func (r *AssetRegistry) Lookup(ctx context.Context, asset common.Address) (*domain.AssetConfig, error) {
	cfg, err := r.Find(ctx, asset)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return &domain.AssetConfig{Asset: asset}, nil
	}
	return cfg, nil
}

// RequireEnabled fails with AssetDisabled or MissingPriceFeed unless the
// asset can be valued.
func (r *AssetRegistry) RequireEnabled(ctx context.Context, asset common.Address) (*domain.AssetConfig, error) {
	cfg, err := r.Lookup(ctx, asset)
	if err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, apperror.ErrAssetDisabled(asset.Hex())
	}
	if !cfg.HasFeed() {
		return nil, apperror.ErrMissingPriceFeed(asset.Hex())
	}
	return cfg, nil
}

// Configure inserts or overwrites the config for asset within tx.
func (r *AssetRegistry) Configure(ctx context.Context, tx pgx.Tx, asset, oracle common.Address, enabled bool) (*domain.AssetConfig, error) {
	cfg := &domain.AssetConfig{
		Asset:     asset,
		Oracle:    oracle,
		Enabled:   enabled,
		UpdatedAt: time.Now().UTC(),
	}
	if err := r.repo.Upsert(ctx, tx, cfg); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("upsert asset: %w", err))
	}
	return cfg, nil
}
