package storage

import (
	"context"
	"database/sql"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/order-lifecycle/internal/core/domain"
)

func newSQLiteDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, ApplySchema(context.Background(), db, DialectSQLite))
	return db
}

func addOrder(t *testing.T, db *sql.DB, createdBy string) int64 {
	t.Helper()
	ctx := context.Background()
	tx, err := NewSQLTxManager(db).Begin(ctx)
	require.NoError(t, err)
	id, err := NewOrderRepository(db).Add(ctx, tx, domain.OrderStateCreated, time.Now(), createdBy)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	return id
}

func TestOrderRepository_AddGet(t *testing.T) {
	db := newSQLiteDB(t)
	ctx := context.Background()
	repo := NewOrderRepository(db)

	createdAt := time.Date(2024, 3, 1, 10, 30, 0, 123456000, time.UTC)
	tx, err := NewSQLTxManager(db).Begin(ctx)
	require.NoError(t, err)
	id, err := repo.Add(ctx, tx, domain.OrderStateCreated, createdAt, "alice")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	order, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, domain.OrderStateCreated, order.State)
	assert.Equal(t, "alice", order.CreatedBy)
	assert.True(t, createdAt.Equal(order.CreatedAt), "created_at %v", order.CreatedAt)

	missing, err := repo.Get(ctx, id+100)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestTimestamp_Scan(t *testing.T) {
	want := time.Date(2026, 10, 17, 10, 53, 56, 275445000, time.UTC)
	inputs := []any{
		want,
		want.String(),
		[]byte(want.String()),
		want.In(time.FixedZone("CEST", 2*60*60)).String(),
		"2026-10-17 10:53:56.275445+00:00",
		"2026-10-17T10:53:56.275445Z",
		[]byte("2026-10-17 10:53:56.275445"),
	}
	for _, in := range inputs {
		var ts timestamp
		require.NoError(t, ts.Scan(in), "%v", in)
		assert.True(t, want.Equal(ts.Time), "%v scanned as %v", in, ts.Time)
		assert.Equal(t, time.UTC, ts.Location())
	}

	var ts timestamp
	assert.Error(t, ts.Scan("yesterday"))
	assert.Error(t, ts.Scan(int64(5)))
}

func TestOrderRepository_TimestampSurvivesDriverDefaultFormat(t *testing.T) {
	db := newSQLiteDB(t)
	ctx := context.Background()

	createdAt := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	res, err := db.ExecContext(ctx,
		`INSERT INTO orders (order_state, order_created_at, order_created_by) VALUES (?, ?, ?)`,
		string(domain.OrderStateCreated), createdAt.String(), "alice")
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)

	order, err := NewOrderRepository(db).Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.True(t, createdAt.Equal(order.CreatedAt), "created_at %v", order.CreatedAt)
}

func TestOrderRepository_RolledBackInsertIsInvisible(t *testing.T) {
	db := newSQLiteDB(t)
	ctx := context.Background()
	repo := NewOrderRepository(db)

	tx, err := NewSQLTxManager(db).Begin(ctx)
	require.NoError(t, err)
	id, err := repo.Add(ctx, tx, domain.OrderStateCreated, time.Now(), "alice")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	order, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, order)
}

func TestOrderRepository_UpdateStateIsConditional(t *testing.T) {
	db := newSQLiteDB(t)
	ctx := context.Background()
	repo := NewOrderRepository(db)
	id := addOrder(t, db, "alice")

	tx, err := NewSQLTxManager(db).Begin(ctx)
	require.NoError(t, err)
	ok, err := repo.UpdateState(ctx, tx, id, domain.OrderStateCreated, domain.OrderStateProcessing)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.UpdateState(ctx, tx, id, domain.OrderStateCreated, domain.OrderStateCancelled)
	require.NoError(t, err)
	assert.False(t, ok, "stale expected state must affect no row")
	require.NoError(t, tx.Commit())

	order, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStateProcessing, order.State)
}

func TestOrderRepository_QueryPagination(t *testing.T) {
	db := newSQLiteDB(t)
	ctx := context.Background()
	repo := NewOrderRepository(db)

	var ids []int64
	for i := 0; i < 5; i++ {
		ids = append(ids, addOrder(t, db, "bob"))
	}
	addOrder(t, db, "carol")

	first, err := repo.Query(ctx, domain.OrderFilter{CreatedBy: "bob", Page: domain.PageRequest{Size: 2}})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	assert.Equal(t, ids[0], first.Items[0].ID)
	assert.Equal(t, strconv.FormatInt(ids[1], 10), first.NextPageToken)

	var all []int64
	token := ""
	for {
		page, err := repo.Query(ctx, domain.OrderFilter{CreatedBy: "bob", Page: domain.PageRequest{Size: 2, Token: token}})
		require.NoError(t, err)
		for _, o := range page.Items {
			all = append(all, o.ID)
		}
		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}
	assert.Equal(t, ids, all)

	byID, err := repo.Query(ctx, domain.OrderFilter{IDs: []int64{ids[2], ids[4]}})
	require.NoError(t, err)
	require.Len(t, byID.Items, 2)
	assert.Empty(t, byID.NextPageToken, "a short page has no next token")

	_, err = repo.Query(ctx, domain.OrderFilter{Page: domain.PageRequest{Token: "not-a-number"}})
	assert.ErrorIs(t, err, domain.ErrInvalidPageToken)
}

func TestOrderItemRepository_SoftDelete(t *testing.T) {
	db := newSQLiteDB(t)
	ctx := context.Background()
	repo := NewOrderItemRepository(db)
	txm := NewSQLTxManager(db)
	orderID := addOrder(t, db, "alice")

	tx, err := txm.Begin(ctx)
	require.NoError(t, err)
	itemID, err := repo.Add(ctx, tx, orderID, 10, 2)
	require.NoError(t, err)
	keptID, err := repo.Add(ctx, tx, orderID, 11, 1)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx, err = txm.Begin(ctx)
	require.NoError(t, err)
	ok, err := repo.SoftDelete(ctx, tx, itemID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.SoftDelete(ctx, tx, itemID)
	require.NoError(t, err)
	assert.False(t, ok, "already tombstoned")
	require.NoError(t, tx.Commit())

	item, err := repo.Get(ctx, itemID)
	require.NoError(t, err)
	require.NotNil(t, item, "soft delete keeps the row")
	assert.True(t, item.IsDeleted)
	assert.Equal(t, int64(10), item.ProductID)

	live := false
	page, err := repo.Query(ctx, domain.OrderItemFilter{OrderIDs: []int64{orderID}, IsDeleted: &live})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, keptID, page.Items[0].ID)

	page, err = repo.Query(ctx, domain.OrderItemFilter{ProductIDs: []int64{10}})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, itemID, page.Items[0].ID)
}

func TestOrderItemRepository_RequiresExistingOrder(t *testing.T) {
	db := newSQLiteDB(t)
	ctx := context.Background()

	tx, err := NewSQLTxManager(db).Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = NewOrderItemRepository(db).Add(ctx, tx, 999, 1, 1)
	assert.Error(t, err)
}

func TestHistoryRepository_AppendAndFilter(t *testing.T) {
	db := newSQLiteDB(t)
	ctx := context.Background()
	repo := NewHistoryRepository(db)
	orderID := addOrder(t, db, "alice")
	otherID := addOrder(t, db, "bob")
	now := time.Date(2024, 5, 4, 12, 0, 0, 500000000, time.UTC)

	tx, err := NewSQLTxManager(db).Begin(ctx)
	require.NoError(t, err)
	payloads := []domain.HistoryPayload{
		domain.CreatedPayload{CreatedBy: "alice", CreatedAt: now},
		domain.ItemAddedPayload{ProductID: 10, Quantity: 2},
		domain.StateChangedPayload{From: "created", To: "processing"},
	}
	var ids []int64
	for _, p := range payloads {
		id, err := repo.Add(ctx, tx, orderID, p, now)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	_, err = repo.Add(ctx, tx, otherID, domain.StateChangedPayload{From: "created", To: "cancelled"}, now)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Less(t, ids[0], ids[1])
	assert.Less(t, ids[1], ids[2])

	page, err := repo.Query(ctx, domain.HistoryFilter{OrderIDs: []int64{orderID}})
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	for i, item := range page.Items {
		assert.Equal(t, ids[i], item.ID)
		assert.Equal(t, payloads[i].Kind(), item.Kind)
		assert.Equal(t, payloads[i], item.Payload)
		assert.True(t, now.Equal(item.CreatedAt))
	}

	changes, err := repo.Query(ctx, domain.HistoryFilter{Kind: domain.HistoryKindStateChanged})
	require.NoError(t, err)
	assert.Len(t, changes.Items, 2)
}
