package service

import (
	"errors"
	"fmt"

	"github.com/rl1809/order-lifecycle/internal/core/domain"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidOrderState = errors.New("invalid order state")
	ErrValidation        = errors.New("validation failed")
	ErrEventNotPublished = errors.New("event not published")
)

// ErrManualComplete is returned by Complete for every order.
var ErrManualComplete = fmt.Errorf("%w: manual complete is not allowed", ErrInvalidOrderState)

type OrderNotFoundError struct {
	OrderID int64
}

func (e *OrderNotFoundError) Error() string {
	return fmt.Sprintf("order %d not found", e.OrderID)
}

func (e *OrderNotFoundError) Is(target error) bool {
	return target == ErrOrderNotFound
}

type InvalidOrderStateError struct {
	OrderID   int64
	State     domain.OrderState
	Operation string
}

func (e *InvalidOrderStateError) Error() string {
	return fmt.Sprintf("cannot %s order %d in state %s", e.Operation, e.OrderID, e.State)
}

func (e *InvalidOrderStateError) Is(target error) bool {
	return target == ErrInvalidOrderState
}
