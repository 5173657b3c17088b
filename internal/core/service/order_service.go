package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/order-lifecycle/internal/core/domain"
	"github.com/rl1809/order-lifecycle/internal/port"
)

const tracerName = "github.com/rl1809/order-lifecycle/internal/core/service"

// OrderService owns the order state machine. Every write pairs the primary
// change with a history append in one transaction; events are published
// only after that transaction commits.
type OrderService struct {
	tx        port.TxManager
	orders    port.OrderRepository
	items     port.OrderItemRepository
	history   port.HistoryRepository
	publisher port.EventPublisher
	tracer    trace.Tracer
	nowFunc   func() time.Time
}

func NewOrderService(
	tx port.TxManager,
	orders port.OrderRepository,
	items port.OrderItemRepository,
	history port.HistoryRepository,
	publisher port.EventPublisher,
) *OrderService {
	return &OrderService{
		tx:        tx,
		orders:    orders,
		items:     items,
		history:   history,
		publisher: publisher,
		tracer:    otel.Tracer(tracerName),
		nowFunc:   time.Now,
	}
}

func (s *OrderService) Create(ctx context.Context, createdBy string) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.Create")
	defer span.End()

	if strings.TrimSpace(createdBy) == "" {
		return 0, fmt.Errorf("%w: createdBy is required", ErrValidation)
	}

	now := s.now()
	tx, err := s.tx.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	orderID, err := s.orders.Add(ctx, tx, domain.OrderStateCreated, now, createdBy)
	if err != nil {
		return 0, err
	}

	payload := domain.CreatedPayload{CreatedBy: createdBy, CreatedAt: now}
	if _, err := s.history.Add(ctx, tx, orderID, payload, now); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	span.SetAttributes(attribute.Int64("order.id", orderID))

	if err := s.publish(ctx, domain.OrderCreated{OrderID: orderID, CreatedAt: now}); err != nil {
		return orderID, err
	}
	return orderID, nil
}

func (s *OrderService) AddItem(ctx context.Context, orderID, productID int64, quantity int) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.AddItem", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	if quantity <= 0 {
		return false, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	if err := ensureState(order, domain.OrderStateCreated, "add item to"); err != nil {
		return false, err
	}

	now := s.now()
	tx, err := s.tx.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := s.items.Add(ctx, tx, orderID, productID, quantity); err != nil {
		return false, err
	}

	payload := domain.ItemAddedPayload{ProductID: productID, Quantity: quantity}
	if _, err := s.history.Add(ctx, tx, orderID, payload, now); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}
	return true, nil
}

func (s *OrderService) RemoveItem(ctx context.Context, orderItemID int64) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.RemoveItem", trace.WithAttributes(attribute.Int64("order_item.id", orderItemID)))
	defer span.End()

	item, err := s.items.Get(ctx, orderItemID)
	if err != nil {
		return false, err
	}
	if item == nil {
		return false, nil
	}

	order, err := s.getOrder(ctx, item.OrderID)
	if err != nil {
		return false, err
	}
	if err := ensureState(order, domain.OrderStateCreated, "remove item from"); err != nil {
		return false, err
	}

	now := s.now()
	tx, err := s.tx.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	deleted, err := s.items.SoftDelete(ctx, tx, orderItemID)
	if err != nil {
		return false, err
	}
	if !deleted {
		return false, nil
	}

	payload := domain.ItemRemovedPayload{ProductID: item.ProductID, Quantity: item.Quantity}
	if _, err := s.history.Add(ctx, tx, item.OrderID, payload, now); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}
	return true, nil
}

func (s *OrderService) StartProcessing(ctx context.Context, orderID int64) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.StartProcessing", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	if err := ensureState(order, domain.OrderStateCreated, "start processing"); err != nil {
		return false, err
	}

	changed, err := s.changeState(ctx, order, domain.OrderStateProcessing)
	if err != nil || !changed {
		return false, err
	}

	event := domain.OrderProcessingStarted{OrderID: orderID, StartedAt: s.now()}
	if err := s.publish(ctx, event); err != nil {
		return true, err
	}
	return true, nil
}

// Complete always fails: only the external processor completes orders.
func (s *OrderService) Complete(ctx context.Context, orderID int64) (bool, error) {
	return false, ErrManualComplete
}

func (s *OrderService) Cancel(ctx context.Context, orderID int64) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.Cancel", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	if err := ensureState(order, domain.OrderStateCreated, "cancel"); err != nil {
		return false, err
	}

	return s.changeState(ctx, order, domain.OrderStateCancelled)
}

func (s *OrderService) CancelFromProcessor(ctx context.Context, orderID int64) error {
	ctx, span := s.tracer.Start(ctx, "OrderService.CancelFromProcessor", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return err
	}
	switch order.State {
	case domain.OrderStateCancelled:
		return nil
	case domain.OrderStateCompleted:
		slog.WarnContext(ctx, "cancel ignored for completed order", "order_id", orderID)
		return nil
	}

	_, err = s.changeState(ctx, order, domain.OrderStateCancelled)
	return err
}

func (s *OrderService) CompleteFromProcessor(ctx context.Context, orderID int64) error {
	ctx, span := s.tracer.Start(ctx, "OrderService.CompleteFromProcessor", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.State.IsTerminal() {
		return nil
	}
	if err := ensureState(order, domain.OrderStateProcessing, "complete"); err != nil {
		return err
	}

	_, err = s.changeState(ctx, order, domain.OrderStateCompleted)
	return err
}

// AddHistoryEvent records a processor sub-state without touching the order state.
func (s *OrderService) AddHistoryEvent(ctx context.Context, orderID int64, from, to string) error {
	ctx, span := s.tracer.Start(ctx, "OrderService.AddHistoryEvent", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return err
	}

	now := s.now()
	tx, err := s.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	payload := domain.StateChangedPayload{From: from, To: to}
	if _, err := s.history.Add(ctx, tx, order.ID, payload, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *OrderService) GetHistory(ctx context.Context, orderID int64, filter domain.HistoryFilter) (domain.Page[domain.HistoryItem], error) {
	if filter.Kind != "" && !filter.Kind.IsValid() {
		return domain.Page[domain.HistoryItem]{}, fmt.Errorf("%w: unknown history kind %q", ErrValidation, filter.Kind)
	}
	if _, err := s.getOrder(ctx, orderID); err != nil {
		return domain.Page[domain.HistoryItem]{}, err
	}

	filter.OrderIDs = []int64{orderID}
	return s.history.Query(ctx, filter)
}

func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	return s.getOrder(ctx, orderID)
}

func (s *OrderService) QueryOrders(ctx context.Context, filter domain.OrderFilter) (domain.Page[domain.Order], error) {
	if filter.State != "" && !filter.State.IsValid() {
		return domain.Page[domain.Order]{}, fmt.Errorf("%w: unknown state %q", ErrValidation, filter.State)
	}
	return s.orders.Query(ctx, filter)
}

// QueryItems lists the items of one order.
func (s *OrderService) QueryItems(ctx context.Context, orderID int64, filter domain.OrderItemFilter) (domain.Page[domain.OrderItem], error) {
	if _, err := s.getOrder(ctx, orderID); err != nil {
		return domain.Page[domain.OrderItem]{}, err
	}

	filter.OrderIDs = []int64{orderID}
	return s.items.Query(ctx, filter)
}

// changeState is a no-op when the order already is in next. Otherwise the
// update is conditional on the state the order was read in; false means a
// concurrent caller won and nothing was written.
func (s *OrderService) changeState(ctx context.Context, order *domain.Order, next domain.OrderState) (bool, error) {
	if order.State == next {
		return true, nil
	}

	now := s.now()
	tx, err := s.tx.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	updated, err := s.orders.UpdateState(ctx, tx, order.ID, order.State, next)
	if err != nil {
		return false, err
	}
	if !updated {
		slog.InfoContext(ctx, "state change lost race",
			"order_id", order.ID, "from", order.State, "to", next)
		return false, nil
	}

	payload := domain.StateChangedPayload{From: order.State.Label(), To: next.Label()}
	if _, err := s.history.Add(ctx, tx, order.ID, payload, now); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}
	return true, nil
}

func (s *OrderService) getOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, &OrderNotFoundError{OrderID: orderID}
	}
	return order, nil
}

func (s *OrderService) publish(ctx context.Context, event domain.OrderCreationEvent) error {
	if err := s.publisher.Publish(ctx, event); err != nil {
		slog.ErrorContext(ctx, "publish after commit failed",
			"order_id", event.EventOrderID(), "event", fmt.Sprintf("%T", event), "error", err)
		return fmt.Errorf("%w: order %d: %w", ErrEventNotPublished, event.EventOrderID(), err)
	}
	return nil
}

func (s *OrderService) now() time.Time {
	return s.nowFunc().UTC().Truncate(time.Microsecond)
}

func ensureState(order *domain.Order, expected domain.OrderState, operation string) error {
	if order.State != expected {
		return &InvalidOrderStateError{OrderID: order.ID, State: order.State, Operation: operation}
	}
	return nil
}
