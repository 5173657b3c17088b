package messaging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/rl1809/order-lifecycle/internal/core/domain"
)

func TestDecodeProcessingEvent_WireLayout(t *testing.T) {
	// delivery_finished = 5 { order_id = 7, is_finished_successfully = false, failure_reason = "damaged" }
	var body []byte
	body = protowire.AppendTag(body, 1, protowire.VarintType)
	body = protowire.AppendVarint(body, 7)
	body = protowire.AppendTag(body, 3, protowire.BytesType)
	body = protowire.AppendString(body, "damaged")
	var value []byte
	value = protowire.AppendTag(value, 5, protowire.BytesType)
	value = protowire.AppendBytes(value, body)

	event, err := DecodeProcessingEvent(value)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryFinished{OrderID: 7, FailureReason: "damaged"}, event)
}

func TestProcessingEvent_RoundTrip(t *testing.T) {
	events := []domain.ProcessingEvent{
		domain.ApprovalReceived{OrderID: 1, IsApproved: true, CreatedBy: "alice"},
		domain.PackingStarted{OrderID: 2, PackingBy: "bob"},
		domain.PackingFinished{OrderID: 3, FailureReason: "torn"},
		domain.DeliveryStarted{OrderID: 4, DeliveredBy: "carol"},
		domain.DeliveryFinished{OrderID: 5, IsFinishedSuccessfully: true},
	}
	for _, event := range events {
		raw, err := EncodeProcessingEvent(event)
		require.NoError(t, err)
		decoded, err := DecodeProcessingEvent(raw)
		require.NoError(t, err)
		assert.Equal(t, event, decoded)
	}
}

func TestDecodeProcessingEvent_EmptyVariantStillCounts(t *testing.T) {
	// packing_started with every field at its default value
	raw, err := EncodeProcessingEvent(domain.PackingStarted{})
	require.NoError(t, err)

	event, err := DecodeProcessingEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, domain.PackingStarted{}, event)
}

func TestDecodeProcessingEvent_Errors(t *testing.T) {
	_, err := DecodeProcessingEvent(nil)
	assert.ErrorIs(t, err, ErrUnknownEvent)

	unknown := protowire.AppendTag(nil, 42, protowire.BytesType)
	unknown = protowire.AppendBytes(unknown, nil)
	_, err = DecodeProcessingEvent(unknown)
	assert.ErrorIs(t, err, ErrUnknownEvent)

	_, err = DecodeProcessingEvent([]byte{0x2a, 0x05, 0x08})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownEvent)
}

func TestOrderCreationKey(t *testing.T) {
	key := EncodeOrderCreationKey(7)
	assert.Equal(t, []byte{0x08, 0x07}, key)

	id, err := DecodeOrderCreationKey(key)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
}

func TestOrderCreationEvent_RoundTrip(t *testing.T) {
	at := time.Date(2024, 6, 1, 8, 0, 0, 250, time.UTC)
	for _, event := range []domain.OrderCreationEvent{
		domain.OrderCreated{OrderID: 11, CreatedAt: at},
		domain.OrderProcessingStarted{OrderID: 11, StartedAt: at},
	} {
		raw, err := EncodeOrderCreationEvent(event)
		require.NoError(t, err)
		decoded, err := DecodeOrderCreationEvent(raw)
		require.NoError(t, err)
		assert.Equal(t, event, decoded)
	}
}
