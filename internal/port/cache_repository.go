package port

import "context"

type IdempotencyCache interface {
	// Reserve claims key for an in-flight request, returns false if already claimed
	Reserve(ctx context.Context, key string) (bool, error)

	// Complete records the order created under key
	Complete(ctx context.Context, key string, orderID int64) error

	// Lookup returns the order created under key, ok is false while the request is still in flight
	Lookup(ctx context.Context, key string) (orderID int64, ok bool, err error)

	// Release drops a reservation whose request failed
	Release(ctx context.Context, key string) error
}
