package memory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clubhub/marketplace/internal/domain/apperr"
	"github.com/clubhub/marketplace/internal/domain/offer"
	"github.com/clubhub/marketplace/internal/domain/party"
	"github.com/clubhub/marketplace/internal/domain/rating"
)

// RatingRepository implements rating.Repository.
type RatingRepository struct {
	s *Store
}

func (r *RatingRepository) Rate(ctx context.Context, mark offer.Transition, rt *rating.Rating) (*offer.Offer, error) {
	if mark.OfferID != rt.OfferID || mark.MarkRated != rt.ReviewerRole {
		return nil, apperr.Validation("rating does not match the flagged offer")
	}
	unlock := r.s.lockItem(rt.ItemID)
	defer unlock()

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if cur, ok := r.s.offers[mark.OfferID]; ok && cur.ItemID != rt.ItemID {
		return nil, apperr.Validation("rating does not match the flagged offer")
	}
	for _, existing := range r.s.ratings {
		if existing.OfferID == rt.OfferID && existing.ReviewerRole == rt.ReviewerRole {
			return nil, apperr.AlreadyRated("%s already rated this transaction", rt.ReviewerRole)
		}
	}
	o, err := r.s.applyTransition(mark)
	if err != nil {
		return nil, err
	}
	rt.ID = r.s.nextID()
	cp := *rt
	r.s.ratings[rt.RatingID] = &cp
	r.s.ratingOrder = append(r.s.ratingOrder, rt.RatingID)
	return o, nil
}

func (r *RatingRepository) GetByID(ctx context.Context, ratingID uuid.UUID) (*rating.Rating, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rt, ok := r.s.ratings[ratingID]
	if !ok {
		return nil, apperr.NotFound("rating %s not found", ratingID)
	}
	cp := *rt
	return &cp, nil
}

func (r *RatingRepository) ListByOffer(ctx context.Context, offerID uuid.UUID) ([]*rating.Rating, error) {
	return r.list(func(rt *rating.Rating) bool { return rt.OfferID == offerID }), nil
}

func (r *RatingRepository) ListByReviewee(ctx context.Context, reviewee party.Ref) ([]*rating.Rating, error) {
	return r.list(func(rt *rating.Rating) bool { return party.SameRef(reviewee, rt.Reviewee) }), nil
}

func (r *RatingRepository) SetResponse(ctx context.Context, ratingID uuid.UUID, response string, at time.Time) (*rating.Rating, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rt, ok := r.s.ratings[ratingID]
	if !ok {
		return nil, apperr.NotFound("rating %s not found", ratingID)
	}
	if rt.Response != nil {
		return nil, apperr.AlreadyResponded("rating already has a response")
	}
	text := strings.TrimSpace(response)
	rt.Response = &text
	rt.RespondedAt = &at
	cp := *rt
	return &cp, nil
}

func (r *RatingRepository) list(match func(*rating.Rating) bool) []*rating.Rating {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []*rating.Rating{}
	for _, id := range r.s.ratingOrder {
		rt := r.s.ratings[id]
		if match(rt) {
			cp := *rt
			out = append(out, &cp)
		}
	}
	return out
}
