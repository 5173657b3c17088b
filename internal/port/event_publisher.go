package port

import (
	"context"

	"github.com/rl1809/order-lifecycle/internal/core/domain"
)

type EventPublisher interface {
	// Publish sends an order lifecycle event keyed by its order id
	Publish(ctx context.Context, event domain.OrderCreationEvent) error
}

// OrderProcessor is the processor-facing side of the lifecycle engine.
type OrderProcessor interface {
	AddHistoryEvent(ctx context.Context, orderID int64, from, to string) error
	CancelFromProcessor(ctx context.Context, orderID int64) error
	CompleteFromProcessor(ctx context.Context, orderID int64) error
}
