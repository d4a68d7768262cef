package postgres

import (
	"context"
	"fmt"
	"strings"

	"custody-vault/internal/core/domain"
	"custody-vault/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

// EventRepo implements ports.EventRepository (the vault_events outbox).
type EventRepo struct {
	pool Pool
}

// NewEventRepo creates a new EventRepo.
func NewEventRepo(pool Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

// Create stages the event in the operation's transaction.
func (r *EventRepo) Create(ctx context.Context, tx pgx.Tx, e *domain.Event) error {
	query := `INSERT INTO vault_events
		(id, event_type, topic, actor, asset, amount, usd_value, oracle, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9, $10)`

	var (
		amount, usd *string
		oracle      []byte
		enabled     *bool
	)
	if e.Type == domain.EventAssetConfigured {
		oracle = addrArg(e.Oracle)
		enabled = &e.Enabled
	} else {
		a, u := amountArg(e.Amount), amountArg(e.USDValue)
		amount, usd = &a, &u
	}

	_, err := tx.Exec(ctx, query,
		e.ID, string(e.Type), e.Type.Topic().Hex(), addrArg(e.Actor), addrArg(e.Asset),
		amount, usd, oracle, enabled, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// List returns a newest-first page of events matching params.
func (r *EventRepo) List(ctx context.Context, params ports.EventListParams) ([]domain.Event, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if params.Actor != nil {
		conditions = append(conditions, fmt.Sprintf("actor = $%d", argIdx))
		args = append(args, addrArg(*params.Actor))
		argIdx++
	}
	if params.Asset != nil {
		conditions = append(conditions, fmt.Sprintf("asset = $%d", argIdx))
		args = append(args, addrArg(*params.Asset))
		argIdx++
	}
	if params.Type != nil {
		conditions = append(conditions, fmt.Sprintf("event_type = $%d", argIdx))
		args = append(args, string(*params.Type))
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM vault_events %s", where)
	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT id, event_type, actor, asset, amount::text, usd_value::text, oracle, enabled, created_at
		FROM vault_events %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var (
			e            domain.Event
			eventType    string
			actor, asset []byte
			amount, usd  *string
			oracle       []byte
			enabled      *bool
		)
		if err := rows.Scan(&e.ID, &eventType, &actor, &asset, &amount, &usd, &oracle, &enabled, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan event: %w", err)
		}
		e.Type = domain.EventType(eventType)
		if e.Actor, err = addrFrom(actor); err != nil {
			return nil, 0, err
		}
		if e.Asset, err = addrFrom(asset); err != nil {
			return nil, 0, err
		}
		if amount != nil {
			if e.Amount, err = amountFrom(*amount); err != nil {
				return nil, 0, err
			}
		}
		if usd != nil {
			if e.USDValue, err = amountFrom(*usd); err != nil {
				return nil, 0, err
			}
		}
		if oracle != nil {
			if e.Oracle, err = addrFrom(oracle); err != nil {
				return nil, 0, err
			}
		}
		if enabled != nil {
			e.Enabled = *enabled
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	return events, total, nil
}
