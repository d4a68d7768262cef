package postgres

import (
	"context"
	"errors"
	"fmt"

	"custody-vault/internal/core/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
)

// AssetRepo implements ports.AssetRepository.
type AssetRepo struct {
	pool Pool
}

// NewAssetRepo creates a new AssetRepo.
func NewAssetRepo(pool Pool) *AssetRepo {
	return &AssetRepo{pool: pool}
}

// Get returns nil, nil for an asset that was never configured.
func (r *AssetRepo) Get(ctx context.Context, asset common.Address) (*domain.AssetConfig, error) {
	query := `SELECT oracle, enabled, updated_at FROM asset_configs WHERE asset = $1`

	cfg := &domain.AssetConfig{Asset: asset}
	var oracle []byte
	err := r.pool.QueryRow(ctx, query, addrArg(asset)).Scan(&oracle, &cfg.Enabled, &cfg.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get asset config: %w", err)
	}
	if cfg.Oracle, err = addrFrom(oracle); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Upsert inserts or overwrites the config within a transaction.
func (r *AssetRepo) Upsert(ctx context.Context, tx pgx.Tx, cfg *domain.AssetConfig) error {
	query := `INSERT INTO asset_configs (asset, oracle, enabled, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (asset) DO UPDATE
		SET oracle = EXCLUDED.oracle, enabled = EXCLUDED.enabled, updated_at = EXCLUDED.updated_at`

	if _, err := tx.Exec(ctx, query, addrArg(cfg.Asset), addrArg(cfg.Oracle), cfg.Enabled, cfg.UpdatedAt); err != nil {
		return fmt.Errorf("upsert asset config: %w", err)
	}
	return nil
}

// List returns every configured asset.
func (r *AssetRepo) List(ctx context.Context) ([]domain.AssetConfig, error) {
	rows, err := r.pool.Query(ctx, `SELECT asset, oracle, enabled, updated_at FROM asset_configs ORDER BY asset`)
	if err != nil {
		return nil, fmt.Errorf("list asset configs: %w", err)
	}
	defer rows.Close()

	var out []domain.AssetConfig
	for rows.Next() {
		var asset, oracle []byte
		cfg := domain.AssetConfig{}
		if err := rows.Scan(&asset, &oracle, &cfg.Enabled, &cfg.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan asset config: %w", err)
		}
		if cfg.Asset, err = addrFrom(asset); err != nil {
			return nil, err
		}
		if cfg.Oracle, err = addrFrom(oracle); err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}
