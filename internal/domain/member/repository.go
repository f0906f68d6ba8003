package member

import (
	"context"

	"github.com/google/uuid"
)

// Filter controls member listing.
type Filter struct {
	Role   *Role
	Status *Status
}

// Repository defines persistence for members. Lookups return nil, nil when
// the member does not exist. Create returns apperr.ErrConflict when the
// username or short id is taken.
type Repository interface {
	Create(ctx context.Context, member *Member) error
	Update(ctx context.Context, member *Member) error
	GetByID(ctx context.Context, memberID uuid.UUID) (*Member, error)
	GetByShortID(ctx context.Context, shortID string) (*Member, error)
	GetByUsername(ctx context.Context, username string) (*Member, error)
	List(ctx context.Context, filter Filter, limit, offset int) ([]*Member, error)
	Count(ctx context.Context) (int, error)
}
