package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rl1809/order-lifecycle/internal/core/domain"
	"github.com/rl1809/order-lifecycle/internal/port"
)

// HistoryRepository is append-only: there is no update or delete.
type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) Add(ctx context.Context, tx port.Tx, orderID int64, payload domain.HistoryPayload, createdAt time.Time) (int64, error) {
	raw, err := domain.MarshalHistoryPayload(payload)
	if err != nil {
		return 0, fmt.Errorf("encode history payload: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO order_history (order_id, order_history_item_created_at, order_history_item_kind, order_history_item_payload)
		VALUES (?, ?, ?, ?)`,
		orderID, createdAt.UTC(), string(payload.Kind()), string(raw),
	)
	if err != nil {
		return 0, fmt.Errorf("insert history item: %w", err)
	}
	return lastInsertID(res, "history item")
}

func (r *HistoryRepository) Query(ctx context.Context, filter domain.HistoryFilter) (domain.Page[domain.HistoryItem], error) {
	size, afterID, err := filter.Page.Normalize()
	if err != nil {
		return domain.Page[domain.HistoryItem]{}, err
	}

	var where whereBuilder
	where.add("order_history_item_id > ?", afterID)
	where.in("order_id", filter.OrderIDs)
	if filter.Kind != "" {
		where.add("order_history_item_kind = ?", string(filter.Kind))
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT order_history_item_id, order_id, order_history_item_created_at,
		       order_history_item_kind, order_history_item_payload
		FROM order_history`+where.String()+`
		ORDER BY order_history_item_id LIMIT ?`,
		append(where.args, size)...,
	)
	if err != nil {
		return domain.Page[domain.HistoryItem]{}, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var items []domain.HistoryItem
	for rows.Next() {
		var (
			item      domain.HistoryItem
			createdAt timestamp
			kind      string
			raw       []byte
		)
		if err := rows.Scan(&item.ID, &item.OrderID, &createdAt, &kind, &raw); err != nil {
			return domain.Page[domain.HistoryItem]{}, fmt.Errorf("scan history item: %w", err)
		}
		payload, err := domain.UnmarshalHistoryPayload(raw)
		if err != nil {
			return domain.Page[domain.HistoryItem]{}, fmt.Errorf("history item %d: %w", item.ID, err)
		}
		item.CreatedAt = createdAt.Time
		item.Kind = domain.HistoryKind(kind)
		item.Payload = payload
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return domain.Page[domain.HistoryItem]{}, fmt.Errorf("iterate history: %w", err)
	}

	return domain.NewPage(items, size, func(h domain.HistoryItem) int64 { return h.ID }), nil
}
