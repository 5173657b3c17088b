package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type HistoryKind string

const (
	HistoryKindCreated      HistoryKind = "created"
	HistoryKindItemAdded    HistoryKind = "item_added"
	HistoryKindItemRemoved  HistoryKind = "item_removed"
	HistoryKindStateChanged HistoryKind = "state_changed"
)

func (k HistoryKind) IsValid() bool {
	switch k {
	case HistoryKindCreated, HistoryKindItemAdded, HistoryKindItemRemoved, HistoryKindStateChanged:
		return true
	}
	return false
}

// HistoryItem is one append-only audit entry of an order.
type HistoryItem struct {
	ID        int64          `json:"historyItemId"`
	OrderID   int64          `json:"orderId"`
	CreatedAt time.Time      `json:"createdAt"`
	Kind      HistoryKind    `json:"kind"`
	Payload   HistoryPayload `json:"payload"`
}

// HistoryPayload is implemented by CreatedPayload, ItemAddedPayload,
// ItemRemovedPayload and StateChangedPayload.
type HistoryPayload interface {
	Kind() HistoryKind
}

type CreatedPayload struct {
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

type ItemAddedPayload struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type ItemRemovedPayload struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// StateChangedPayload labels are free-form: besides order states they carry
// processor sub-states such as "processing:packing_started:alice".
type StateChangedPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (CreatedPayload) Kind() HistoryKind      { return HistoryKindCreated }
func (ItemAddedPayload) Kind() HistoryKind    { return HistoryKindItemAdded }
func (ItemRemovedPayload) Kind() HistoryKind  { return HistoryKindItemRemoved }
func (StateChangedPayload) Kind() HistoryKind { return HistoryKindStateChanged }

// MarshalHistoryPayload encodes p as a JSON object with a "type" discriminator.
func MarshalHistoryPayload(p HistoryPayload) ([]byte, error) {
	switch v := p.(type) {
	case CreatedPayload:
		return json.Marshal(struct {
			Type HistoryKind `json:"type"`
			CreatedPayload
		}{v.Kind(), v})
	case ItemAddedPayload:
		return json.Marshal(struct {
			Type HistoryKind `json:"type"`
			ItemAddedPayload
		}{v.Kind(), v})
	case ItemRemovedPayload:
		return json.Marshal(struct {
			Type HistoryKind `json:"type"`
			ItemRemovedPayload
		}{v.Kind(), v})
	case StateChangedPayload:
		return json.Marshal(struct {
			Type HistoryKind `json:"type"`
			StateChangedPayload
		}{v.Kind(), v})
	default:
		return nil, fmt.Errorf("unsupported history payload %T", p)
	}
}

// UnmarshalHistoryPayload is the inverse of MarshalHistoryPayload.
func UnmarshalHistoryPayload(data []byte) (HistoryPayload, error) {
	var head struct {
		Type HistoryKind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode history payload type: %w", err)
	}

	var (
		p   HistoryPayload
		err error
	)
	switch head.Type {
	case HistoryKindCreated:
		var v CreatedPayload
		err = json.Unmarshal(data, &v)
		p = v
	case HistoryKindItemAdded:
		var v ItemAddedPayload
		err = json.Unmarshal(data, &v)
		p = v
	case HistoryKindItemRemoved:
		var v ItemRemovedPayload
		err = json.Unmarshal(data, &v)
		p = v
	case HistoryKindStateChanged:
		var v StateChangedPayload
		err = json.Unmarshal(data, &v)
		p = v
	default:
		return nil, fmt.Errorf("unknown history payload type %q", head.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", head.Type, err)
	}
	return p, nil
}

// MarshalJSON renders the payload with its discriminator for API responses.
func (h HistoryItem) MarshalJSON() ([]byte, error) {
	var payload json.RawMessage
	if h.Payload != nil {
		raw, err := MarshalHistoryPayload(h.Payload)
		if err != nil {
			return nil, err
		}
		payload = raw
	}
	type alias HistoryItem
	return json.Marshal(struct {
		alias
		Payload json.RawMessage `json:"payload,omitempty"`
	}{alias(h), payload})
}
