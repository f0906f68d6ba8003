package item

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clubhub/marketplace/internal/domain/party"
)

// Filter controls item listing.
type Filter struct {
	Status *Status
	Owner  *party.Ref
}

// Repository defines persistence for items. GetByID returns
// apperr.ErrNotFound for unknown items. Reproject reads the item and its
// offers, applies Project and stores the result, all under the same per-item
// serialization offer writes use; it returns the stored status before and
// after.
type Repository interface {
	Create(ctx context.Context, item *Item) error
	GetByID(ctx context.Context, itemID uuid.UUID) (*Item, error)
	List(ctx context.Context, filter Filter, limit, offset int) ([]*Item, error)
	UpdateStatus(ctx context.Context, itemID uuid.UUID, status Status, updatedAt time.Time) error
	MarkWithdrawn(ctx context.Context, itemID uuid.UUID, at time.Time) error
	Reproject(ctx context.Context, itemID uuid.UUID, at time.Time) (from, to Status, err error)
}
