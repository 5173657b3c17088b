package domain

import "time"

type OrderState string

const (
	OrderStateCreated    OrderState = "created"
	OrderStateProcessing OrderState = "processing"
	OrderStateCompleted  OrderState = "completed"
	OrderStateCancelled  OrderState = "cancelled"
)

// IsTerminal reports whether no further transition is possible from s.
func (s OrderState) IsTerminal() bool {
	return s == OrderStateCompleted || s == OrderStateCancelled
}

// Label is the name written into StateChanged history entries.
func (s OrderState) Label() string {
	switch s {
	case OrderStateCreated:
		return "Created"
	case OrderStateProcessing:
		return "Processing"
	case OrderStateCompleted:
		return "Completed"
	case OrderStateCancelled:
		return "Cancelled"
	}
	return string(s)
}

func (s OrderState) IsValid() bool {
	switch s {
	case OrderStateCreated, OrderStateProcessing, OrderStateCompleted, OrderStateCancelled:
		return true
	}
	return false
}

type Order struct {
	ID        int64      `json:"orderId"`
	State     OrderState `json:"state"`
	CreatedAt time.Time  `json:"createdAt"`
	CreatedBy string     `json:"createdBy"`
}

type OrderItem struct {
	ID        int64 `json:"orderItemId"`
	OrderID   int64 `json:"orderId"`
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
	IsDeleted bool  `json:"isDeleted"`
}
