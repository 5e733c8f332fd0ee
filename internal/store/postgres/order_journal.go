package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// OrderJournal implements domain.OrderJournal using PostgreSQL. Orders are
// immutable once written; re-appending an ID is a no-op.
type OrderJournal struct {
	pool *pgxpool.Pool
}

// NewOrderJournal creates an OrderJournal backed by the given connection pool.
func NewOrderJournal(pool *pgxpool.Pool) *OrderJournal {
	return &OrderJournal{pool: pool}
}

// Append inserts an executed order.
func (s *OrderJournal) Append(ctx context.Context, o domain.Order) error {
	source := o.Source
	if source == "" {
		source = domain.OrderSourceUser
	}

	const query = `
		INSERT INTO orders (id, symbol, action, quantity, price, source, executed_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.Symbol, string(o.Action), o.Quantity,
		o.Price.String(), string(source), o.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append order %s: %w", o.ID, err)
	}
	return nil
}

// List returns journaled orders newest first.
func (s *OrderJournal) List(ctx context.Context, opts domain.ListOpts) ([]domain.Order, error) {
	query, args := pageClause(
		`SELECT id, symbol, action, quantity, price::text, source, executed_at FROM orders WHERE 1=1`, nil,
		"executed_at", opts.Since, opts.Until, opts.Limit, opts.Offset,
	)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	defer rows.Close()

	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders rows: %w", err)
	}
	return orders, nil
}

func scanOrder(row pgx.CollectableRow) (domain.Order, error) {
	var (
		o      domain.Order
		action string
		price  string
		source string
	)
	if err := row.Scan(&o.ID, &o.Symbol, &action, &o.Quantity, &price, &source, &o.ExecutedAt); err != nil {
		return domain.Order{}, fmt.Errorf("postgres: scan order: %w", err)
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return domain.Order{}, fmt.Errorf("postgres: parse order price %q: %w", price, err)
	}
	o.Action = domain.Action(action)
	o.Price = p
	o.Source = domain.OrderSource(source)
	return o, nil
}

// Compile-time interface check.
var _ domain.OrderJournal = (*OrderJournal)(nil)
