package address

import "context"

// Book stores a user's addresses. At most one address per user is the
// default; the first address added becomes it.
type Book interface {
	Add(ctx context.Context, a Address) (Address, error)
	// Get returns ErrNotFound for addresses owned by another user.
	Get(ctx context.Context, userID, id string) (Address, error)
	List(ctx context.Context, userID string) ([]Address, error)
	SetDefault(ctx context.Context, userID, id string) error
	Delete(ctx context.Context, userID, id string) error
}
