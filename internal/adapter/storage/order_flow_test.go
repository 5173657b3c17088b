package storage

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/order-lifecycle/internal/core/domain"
	"github.com/rl1809/order-lifecycle/internal/core/service"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.OrderCreationEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.OrderCreationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func newOrderService(db *sql.DB, publisher *recordingPublisher) *service.OrderService {
	return service.NewOrderService(
		NewSQLTxManager(db),
		NewOrderRepository(db),
		NewOrderItemRepository(db),
		NewHistoryRepository(db),
		publisher,
	)
}

func TestOrderFlow_CreateItemsProcessComplete(t *testing.T) {
	db := newSQLiteDB(t)
	publisher := &recordingPublisher{}
	svc := newOrderService(db, publisher)
	ctx := context.Background()

	orderID, err := svc.Create(ctx, "alice")
	require.NoError(t, err)

	ok, err := svc.AddItem(ctx, orderID, 101, 2)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = svc.AddItem(ctx, orderID, 102, 1)
	require.NoError(t, err)
	require.True(t, ok)

	items, err := svc.QueryItems(ctx, orderID, domain.OrderItemFilter{})
	require.NoError(t, err)
	require.Len(t, items.Items, 2)

	ok, err = svc.RemoveItem(ctx, items.Items[1].ID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.StartProcessing(ctx, orderID)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, svc.AddHistoryEvent(ctx, orderID, "processing", "approved"))
	require.NoError(t, svc.CompleteFromProcessor(ctx, orderID))

	order, err := svc.GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStateCompleted, order.State)

	history, err := svc.GetHistory(ctx, orderID, domain.HistoryFilter{})
	require.NoError(t, err)
	kinds := make([]domain.HistoryKind, 0, len(history.Items))
	for _, item := range history.Items {
		kinds = append(kinds, item.Kind)
	}
	assert.Equal(t, []domain.HistoryKind{
		domain.HistoryKindCreated,
		domain.HistoryKindItemAdded,
		domain.HistoryKindItemAdded,
		domain.HistoryKindItemRemoved,
		domain.HistoryKindStateChanged,
		domain.HistoryKindStateChanged,
		domain.HistoryKindStateChanged,
	}, kinds)
	assert.Equal(t, domain.StateChangedPayload{From: "Processing", To: "Completed"}, history.Items[6].Payload)

	require.Len(t, publisher.events, 2)
	assert.IsType(t, domain.OrderCreated{}, publisher.events[0])
	assert.IsType(t, domain.OrderProcessingStarted{}, publisher.events[1])
}

func TestOrderFlow_ConcurrentCancel(t *testing.T) {
	db := newSQLiteDB(t)
	svc := newOrderService(db, &recordingPublisher{})
	ctx := context.Background()

	orderID, err := svc.Create(ctx, "alice")
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		winners   atomic.Int32
		rejected  atomic.Int32
		unexpects atomic.Int32
	)
	const callers = 20
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := svc.Cancel(ctx, orderID)
			switch {
			case err == nil && ok:
				winners.Add(1)
			case err == nil, errors.Is(err, service.ErrInvalidOrderState):
				rejected.Add(1)
			default:
				unexpects.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, winners.Load())
	assert.EqualValues(t, callers-1, rejected.Load())
	assert.Zero(t, unexpects.Load())

	history, err := svc.GetHistory(ctx, orderID, domain.HistoryFilter{Kind: domain.HistoryKindStateChanged})
	require.NoError(t, err)
	assert.Len(t, history.Items, 1)
}
