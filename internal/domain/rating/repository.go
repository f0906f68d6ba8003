package rating

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clubhub/marketplace/internal/domain/offer"
	"github.com/clubhub/marketplace/internal/domain/party"
)

// Repository defines persistence for ratings.
type Repository interface {
	// Rate applies mark to the rated offer and stores rating as one unit:
	// either the reviewer's flag is set and the rating exists, or neither.
	// It returns the updated offer. A rating already stored for the same
	// offer and role fails with apperr.ErrAlreadyRated.
	Rate(ctx context.Context, mark offer.Transition, rating *Rating) (*offer.Offer, error)
	// GetByID returns apperr.ErrNotFound when the rating does not exist.
	GetByID(ctx context.Context, ratingID uuid.UUID) (*Rating, error)
	ListByOffer(ctx context.Context, offerID uuid.UUID) ([]*Rating, error)
	ListByReviewee(ctx context.Context, reviewee party.Ref) ([]*Rating, error)
	// SetResponse stores the response only if none exists yet, otherwise
	// it returns apperr.ErrAlreadyResponded.
	SetResponse(ctx context.Context, ratingID uuid.UUID, response string, at time.Time) (*Rating, error)
}
