package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/order-lifecycle/internal/core/domain"
	"github.com/rl1809/order-lifecycle/internal/port"
)

const orderColumns = `order_id, order_state, order_created_at, order_created_by`

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Add(ctx context.Context, tx port.Tx, state domain.OrderState, createdAt time.Time, createdBy string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO orders (order_state, order_created_at, order_created_by)
		VALUES (?, ?, ?)`,
		string(state), createdAt.UTC(), createdBy,
	)
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}
	return lastInsertID(res, "order")
}

func (r *OrderRepository) UpdateState(ctx context.Context, tx port.Tx, orderID int64, expected, next domain.OrderState) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET order_state = ?
		WHERE order_id = ? AND order_state = ?`,
		string(next), orderID, string(expected),
	)
	if err != nil {
		return false, fmt.Errorf("update order state: %w", err)
	}

	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

func (r *OrderRepository) Get(ctx context.Context, orderID int64) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id = ?`, orderID)

	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	return &order, nil
}

func (r *OrderRepository) Query(ctx context.Context, filter domain.OrderFilter) (domain.Page[domain.Order], error) {
	size, afterID, err := filter.Page.Normalize()
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}

	var where whereBuilder
	where.add("order_id > ?", afterID)
	where.in("order_id", filter.IDs)
	if filter.State != "" {
		where.add("order_state = ?", string(filter.State))
	}
	if filter.CreatedBy != "" {
		where.add("order_created_by = ?", filter.CreatedBy)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders`+where.String()+` ORDER BY order_id LIMIT ?`,
		append(where.args, size)...,
	)
	if err != nil {
		return domain.Page[domain.Order]{}, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return domain.Page[domain.Order]{}, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return domain.Page[domain.Order]{}, fmt.Errorf("iterate orders: %w", err)
	}

	return domain.NewPage(orders, size, func(o domain.Order) int64 { return o.ID }), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order     domain.Order
		state     string
		createdAt timestamp
	)
	if err := row.Scan(&order.ID, &state, &createdAt, &order.CreatedBy); err != nil {
		return domain.Order{}, err
	}
	order.State = domain.OrderState(state)
	order.CreatedAt = createdAt.Time
	return order, nil
}
