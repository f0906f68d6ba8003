package offer

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/clubhub/marketplace/internal/domain/party"
)

// ListFilter narrows offer listings.
type ListFilter struct {
	Status *Status
	// NewestFirst sorts by creation time descending instead of insertion order.
	NewestFirst bool
}

// Repository is the single source of truth for offers.
//
// Create fails with apperr.ErrValidation when the amount is not positive, the
// sender is the recipient or the item is not active. Transition is an atomic
// conditional update: it fails with apperr.ErrConflict when the stored offer
// no longer matches Transition.From, when a sub-state precondition does not
// hold, or when accepting would leave two accepted offers on one item.
// Counter supersedes the source offer and stores its reply as one unit.
type Repository interface {
	Create(ctx context.Context, offer *Offer) error
	GetByID(ctx context.Context, offerID uuid.UUID) (*Offer, error)
	ListByItem(ctx context.Context, itemID uuid.UUID, filter ListFilter) ([]*Offer, error)
	ListByParty(ctx context.Context, ref party.Ref, filter ListFilter) ([]*Offer, error)
	Transition(ctx context.Context, t Transition) (*Offer, error)
	Counter(ctx context.Context, supersede Transition, counter *Offer) (*Offer, error)
}
