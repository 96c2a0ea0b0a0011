package port

import "context"

type IdempotencyStore interface {
	// Reserve claims key. If the key already exists, reserved is false and orderID
	// holds the completed order, or is empty while the first request is in flight
	Reserve(ctx context.Context, key string) (orderID string, reserved bool, err error)

	// Complete records the order produced under key
	Complete(ctx context.Context, key, orderID string) error

	// Release frees key after a failed request so the client may retry
	Release(ctx context.Context, key string) error
}
