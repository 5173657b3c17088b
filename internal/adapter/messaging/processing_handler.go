package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rl1809/order-lifecycle/internal/core/domain"
	"github.com/rl1809/order-lifecycle/internal/port"
)

// processingState is the from-label of every processor sub-state entry.
const processingState = "processing"

// ProcessingHandler folds processor events back into the order lifecycle.
// Redelivered events are safe: terminal transitions short-circuit in the
// engine, only the descriptive history entry is appended again.
type ProcessingHandler struct {
	orders port.OrderProcessor
}

func NewProcessingHandler(orders port.OrderProcessor) *ProcessingHandler {
	return &ProcessingHandler{orders: orders}
}

// HandleBatch stops at the first failing message so the whole batch is retried.
func (h *ProcessingHandler) HandleBatch(ctx context.Context, batch []Message) error {
	for _, msg := range batch {
		event, err := DecodeProcessingEvent(msg.Value)
		if errors.Is(err, ErrUnknownEvent) {
			slog.WarnContext(ctx, "skipping processing event without known variant",
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
			continue
		}
		if err != nil {
			return fmt.Errorf("%s[%d]@%d: %w", msg.Topic, msg.Partition, msg.Offset, err)
		}

		if err := h.Handle(ctx, event); err != nil {
			return fmt.Errorf("%s[%d]@%d order %d: %w", msg.Topic, msg.Partition, msg.Offset, event.EventOrderID(), err)
		}
	}
	return nil
}

func (h *ProcessingHandler) Handle(ctx context.Context, event domain.ProcessingEvent) error {
	switch e := event.(type) {
	case domain.ApprovalReceived:
		if e.IsApproved {
			return h.record(ctx, e.OrderID, "processing:approval:approved:"+e.CreatedBy)
		}
		if err := h.record(ctx, e.OrderID, "processing:approval:rejected"); err != nil {
			return err
		}
		return h.orders.CancelFromProcessor(ctx, e.OrderID)

	case domain.PackingStarted:
		return h.record(ctx, e.OrderID, "processing:packing_started:"+e.PackingBy)

	case domain.PackingFinished:
		if e.IsFinishedSuccessfully {
			return h.record(ctx, e.OrderID, "processing:packing_finished:success")
		}
		if err := h.record(ctx, e.OrderID, "processing:packing_finished:failed:"+reasonOrUnknown(e.FailureReason)); err != nil {
			return err
		}
		return h.orders.CancelFromProcessor(ctx, e.OrderID)

	case domain.DeliveryStarted:
		return h.record(ctx, e.OrderID, "processing:delivery_started:"+e.DeliveredBy)

	case domain.DeliveryFinished:
		if e.IsFinishedSuccessfully {
			if err := h.record(ctx, e.OrderID, "processing:delivery_finished:success"); err != nil {
				return err
			}
			return h.orders.CompleteFromProcessor(ctx, e.OrderID)
		}
		if err := h.record(ctx, e.OrderID, "processing:delivery_finished:failed:"+reasonOrUnknown(e.FailureReason)); err != nil {
			return err
		}
		return h.orders.CancelFromProcessor(ctx, e.OrderID)

	default:
		return fmt.Errorf("unsupported processing event %T", event)
	}
}

func (h *ProcessingHandler) record(ctx context.Context, orderID int64, label string) error {
	return h.orders.AddHistoryEvent(ctx, orderID, processingState, label)
}

func reasonOrUnknown(reason string) string {
	if reason == "" {
		return "unknown"
	}
	return reason
}
