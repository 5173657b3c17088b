package domain

import "time"

// OrderCreationEvent is published to the order-creation topic after commit.
type OrderCreationEvent interface {
	EventOrderID() int64
}

type OrderCreated struct {
	OrderID   int64
	CreatedAt time.Time
}

type OrderProcessingStarted struct {
	OrderID   int64
	StartedAt time.Time
}

func (e OrderCreated) EventOrderID() int64           { return e.OrderID }
func (e OrderProcessingStarted) EventOrderID() int64 { return e.OrderID }

// ProcessingEvent is produced by the external processor on the
// order-processing topic.
type ProcessingEvent interface {
	EventOrderID() int64
}

type ApprovalReceived struct {
	OrderID    int64
	IsApproved bool
	CreatedBy  string
}

type PackingStarted struct {
	OrderID   int64
	PackingBy string
}

type PackingFinished struct {
	OrderID                int64
	IsFinishedSuccessfully bool
	FailureReason          string
}

type DeliveryStarted struct {
	OrderID     int64
	DeliveredBy string
}

type DeliveryFinished struct {
	OrderID                int64
	IsFinishedSuccessfully bool
	FailureReason          string
}

func (e ApprovalReceived) EventOrderID() int64 { return e.OrderID }
func (e PackingStarted) EventOrderID() int64   { return e.OrderID }
func (e PackingFinished) EventOrderID() int64  { return e.OrderID }
func (e DeliveryStarted) EventOrderID() int64  { return e.OrderID }
func (e DeliveryFinished) EventOrderID() int64 { return e.OrderID }
