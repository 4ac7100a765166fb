package orders

import "context"

type Store interface {
	// Create is idempotent on AttemptID: a second order for the same attempt
	// returns the stored one together with ErrAlreadyExists.
	Create(ctx context.Context, o Order) (Order, error)
	GetByID(ctx context.Context, id string) (Order, error)
	GetByAttempt(ctx context.Context, attemptID string) (Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	// Transition moves an order along the status machine. With allowedFrom
	// set, the current status must also be one of them.
	Transition(ctx context.Context, id string, to Status, allowedFrom ...Status) (Order, error)
}
