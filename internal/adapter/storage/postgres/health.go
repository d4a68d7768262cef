package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// HealthCheck implements ports.HealthChecker for PostgreSQL. A reachable
// server without the totals row (schema never applied) reports unhealthy.
type HealthCheck struct {
	pool Pool
}

// NewHealthCheck creates a PostgreSQL health checker.
func NewHealthCheck(pool Pool) *HealthCheck {
	return &HealthCheck{pool: pool}
}

func (h *HealthCheck) Ping(ctx context.Context) error {
	var one int
	err := h.pool.QueryRow(ctx, `SELECT 1 FROM vault_totals WHERE id = 1`).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("vault_totals row missing")
	}
	return err
}

func (h *HealthCheck) Name() string {
	return "postgresql"
}
