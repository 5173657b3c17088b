package port

import (
	"context"
	"database/sql"
	"time"

	"github.com/rl1809/order-lifecycle/internal/core/domain"
)

// Tx is an open database transaction. *sql.Tx satisfies it.
type Tx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	Commit() error
	Rollback() error
}

type TxManager interface {
	// Begin opens a transaction; callers defer Rollback and finish with Commit
	Begin(ctx context.Context) (Tx, error)
}

type OrderRepository interface {
	// Add inserts an order and returns its id
	Add(ctx context.Context, tx Tx, state domain.OrderState, createdAt time.Time, createdBy string) (int64, error)

	// UpdateState moves the order from expected to next, returns false if the row was not in expected state
	UpdateState(ctx context.Context, tx Tx, orderID int64, expected, next domain.OrderState) (bool, error)

	// Get returns nil when the order does not exist
	Get(ctx context.Context, orderID int64) (*domain.Order, error)

	Query(ctx context.Context, filter domain.OrderFilter) (domain.Page[domain.Order], error)
}

type OrderItemRepository interface {
	// Add inserts a live item and returns its id
	Add(ctx context.Context, tx Tx, orderID, productID int64, quantity int) (int64, error)

	// SoftDelete tombstones the item, returns false if it was already deleted
	SoftDelete(ctx context.Context, tx Tx, itemID int64) (bool, error)

	// Get returns nil when the item does not exist
	Get(ctx context.Context, itemID int64) (*domain.OrderItem, error)

	Query(ctx context.Context, filter domain.OrderItemFilter) (domain.Page[domain.OrderItem], error)
}

type HistoryRepository interface {
	// Add appends a history entry; the kind is taken from the payload
	Add(ctx context.Context, tx Tx, orderID int64, payload domain.HistoryPayload, createdAt time.Time) (int64, error)

	Query(ctx context.Context, filter domain.HistoryFilter) (domain.Page[domain.HistoryItem], error)
}
