package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/boost-marketplace/internal/domain"
)

const orderColumns = `id, user_id, booster_id, game, current_rank, desired_rank, budget, price, urgency, status, created_at, updated_at`

func scanOrder(row rowScanner) (*domain.BoostOrder, error) {
	var (
		o         domain.BoostOrder
		boosterID *string
		game      string
		urgency   string
		status    string
	)
	err := row.Scan(
		&o.ID,
		&o.UserID,
		&boosterID,
		&game,
		&o.CurrentRank,
		&o.DesiredRank,
		&o.Budget,
		&o.Price,
		&urgency,
		&status,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if boosterID != nil {
		o.BoosterID = *boosterID
	}
	o.Game = domain.Game(game)
	o.Urgency = domain.Urgency(urgency)
	o.Status = domain.OrderStatus(status)
	return &o, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

const insertOrderQuery = `
	INSERT INTO orders (` + orderColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`

func orderArgs(o domain.BoostOrder) []any {
	return []any{
		o.ID,
		o.UserID,
		nullable(o.BoosterID),
		string(o.Game),
		o.CurrentRank,
		o.DesiredRank,
		o.Budget,
		o.Price,
		string(o.Urgency),
		string(o.Status),
		o.CreatedAt,
		o.UpdatedAt,
	}
}

// CreateOrder inserts a new order
func (r *Repository) CreateOrder(ctx context.Context, order domain.BoostOrder) error {
	if _, err := r.pool.Exec(ctx, insertOrderQuery, orderArgs(order)...); err != nil {
		return fmt.Errorf("creating order: %w", err)
	}
	return nil
}

// GetOrder retrieves an order by ID
func (r *Repository) GetOrder(ctx context.Context, id string) (*domain.BoostOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	o, err := scanOrder(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("getting order: %w", err)
	}
	return o, nil
}

// ListOrders retrieves orders matching the filter, newest first. The filter's
// UserID is applied in the query so callers never receive rows they may not see.
func (r *Repository) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.BoostOrder, error) {
	var (
		where []string
		args  []any
	)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	defer rows.Close()

	orders := []domain.BoostOrder{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating orders: %w", err)
	}
	return orders, nil
}

// TransitionOrder applies a status change only if the order is still in the
// transition's From status. A booster id, once set, is never overwritten.
func (r *Repository) TransitionOrder(ctx context.Context, t domain.Transition, at time.Time) (*domain.BoostOrder, error) {
	query := `
		UPDATE orders
		SET status = $1,
			booster_id = COALESCE(booster_id, $2),
			updated_at = $3
		WHERE id = $4 AND status = $5
		RETURNING ` + orderColumns
	o, err := scanOrder(r.pool.QueryRow(ctx, query,
		string(t.To),
		nullable(t.BoosterID),
		at,
		t.OrderID,
		string(t.From),
	))
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("transitioning order: %w", err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, t.OrderID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("checking order existence: %w", err)
	}
	if !exists {
		return nil, domain.ErrOrderNotFound
	}
	return nil, domain.ErrOrderConflict
}

// ImportOrders inserts orders that are not yet stored and returns how many were new
func (r *Repository) ImportOrders(ctx context.Context, orders []domain.BoostOrder) (int, error) {
	if len(orders) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, o := range orders {
		batch.Queue(insertOrderQuery+` ON CONFLICT (id) DO NOTHING`, orderArgs(o)...)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	imported := 0
	for range orders {
		tag, err := br.Exec()
		if err != nil {
			return imported, fmt.Errorf("importing orders: %w", err)
		}
		imported += int(tag.RowsAffected())
	}
	return imported, nil
}
