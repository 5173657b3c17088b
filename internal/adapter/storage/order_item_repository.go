package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rl1809/order-lifecycle/internal/core/domain"
	"github.com/rl1809/order-lifecycle/internal/port"
)

const orderItemColumns = `order_item_id, order_id, product_id, order_item_quantity, order_item_deleted`

type OrderItemRepository struct {
	db *sql.DB
}

func NewOrderItemRepository(db *sql.DB) *OrderItemRepository {
	return &OrderItemRepository{db: db}
}

func (r *OrderItemRepository) Add(ctx context.Context, tx port.Tx, orderID, productID int64, quantity int) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO order_items (order_id, product_id, order_item_quantity, order_item_deleted)
		VALUES (?, ?, ?, 0)`,
		orderID, productID, quantity,
	)
	if err != nil {
		return 0, fmt.Errorf("insert order item: %w", err)
	}
	return lastInsertID(res, "order item")
}

// SoftDelete only flips live rows, so a second call reports false.
func (r *OrderItemRepository) SoftDelete(ctx context.Context, tx port.Tx, itemID int64) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE order_items
		SET order_item_deleted = 1
		WHERE order_item_id = ? AND order_item_deleted = 0`,
		itemID,
	)
	if err != nil {
		return false, fmt.Errorf("soft delete order item: %w", err)
	}

	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

func (r *OrderItemRepository) Get(ctx context.Context, itemID int64) (*domain.OrderItem, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderItemColumns+` FROM order_items WHERE order_item_id = ?`, itemID)

	item, err := scanOrderItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order item: %w", err)
	}
	return &item, nil
}

func (r *OrderItemRepository) Query(ctx context.Context, filter domain.OrderItemFilter) (domain.Page[domain.OrderItem], error) {
	size, afterID, err := filter.Page.Normalize()
	if err != nil {
		return domain.Page[domain.OrderItem]{}, err
	}

	var where whereBuilder
	where.add("order_item_id > ?", afterID)
	where.in("order_id", filter.OrderIDs)
	where.in("product_id", filter.ProductIDs)
	if filter.IsDeleted != nil {
		where.add("order_item_deleted = ?", *filter.IsDeleted)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderItemColumns+` FROM order_items`+where.String()+` ORDER BY order_item_id LIMIT ?`,
		append(where.args, size)...,
	)
	if err != nil {
		return domain.Page[domain.OrderItem]{}, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		item, err := scanOrderItem(rows)
		if err != nil {
			return domain.Page[domain.OrderItem]{}, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return domain.Page[domain.OrderItem]{}, fmt.Errorf("iterate order items: %w", err)
	}

	return domain.NewPage(items, size, func(i domain.OrderItem) int64 { return i.ID }), nil
}

func scanOrderItem(row rowScanner) (domain.OrderItem, error) {
	var item domain.OrderItem
	err := row.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.IsDeleted)
	return item, err
}
