// Package rating implements the bilateral rating gate. Ratings open only
// once the buyer has confirmed receipt, and each side rates at most once.
package rating

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	appAudit "github.com/clubhub/marketplace/internal/application/audit"
	"github.com/clubhub/marketplace/internal/domain/apperr"
	"github.com/clubhub/marketplace/internal/domain/audit"
	"github.com/clubhub/marketplace/internal/domain/item"
	"github.com/clubhub/marketplace/internal/domain/notification"
	"github.com/clubhub/marketplace/internal/domain/offer"
	"github.com/clubhub/marketplace/internal/domain/party"
	domain "github.com/clubhub/marketplace/internal/domain/rating"
)

// Service is the rating gate.
type Service struct {
	items    item.Repository
	offers   offer.Repository
	ratings  domain.Repository
	auditSvc *appAudit.Service
	notifier notification.Notifier
	logger   zerolog.Logger
}

// NewService creates a rating service.
func NewService(
	items item.Repository,
	offers offer.Repository,
	ratings domain.Repository,
	auditSvc *appAudit.Service,
	notifier notification.Notifier,
	logger zerolog.Logger,
) *Service {
	return &Service{
		items:    items,
		offers:   offers,
		ratings:  ratings,
		auditSvc: auditSvc,
		notifier: notifier,
		logger:   logger.With().Str("service", "rating").Logger(),
	}
}

// Eligibility describes the rating state of one transaction for a viewer.
type Eligibility struct {
	OfferID          uuid.UUID       `json:"offerId"`
	Role             offer.PartyRole `json:"role"`
	CanRate          bool            `json:"canRate"`
	ReceiptConfirmed bool            `json:"receiptConfirmed"`
	SellerRated      bool            `json:"sellerRated"`
	BuyerRated       bool            `json:"buyerRated"`
}

// CanRate reports whether role may still rate the transaction behind offerID.
func (s *Service) CanRate(ctx context.Context, offerID uuid.UUID, role offer.PartyRole) (bool, error) {
	if role != offer.PartySeller && role != offer.PartyBuyer {
		return false, apperr.Validation("invalid party role %q", role)
	}
	o, err := s.offers.GetByID(ctx, offerID)
	if err != nil {
		return false, err
	}
	return canRate(o, role), nil
}

// Eligibility returns the viewer's side of the transaction with both flags.
func (s *Service) Eligibility(ctx context.Context, offerID uuid.UUID, viewer party.Identity) (*Eligibility, error) {
	o, it, err := s.load(ctx, offerID)
	if err != nil {
		return nil, err
	}
	role, ok := o.RoleOf(it.Owner, viewer)
	if !ok {
		return nil, apperr.Forbidden("not a party to this transaction")
	}
	return &Eligibility{
		OfferID:          o.OfferID,
		Role:             role,
		CanRate:          canRate(o, role),
		ReceiptConfirmed: o.IsConfirmed(),
		SellerRated:      o.SellerRated,
		BuyerRated:       o.BuyerRated,
	}, nil
}

// SubmitRating records reviewer's rating of the other party. The reviewee,
// when given, must be that other party.
func (s *Service) SubmitRating(ctx context.Context, offerID uuid.UUID, reviewer party.Identity, reviewee party.Ref, score int, comment string) (*domain.Rating, error) {
	if err := domain.ValidateScore(score); err != nil {
		return nil, err
	}
	if err := domain.ValidateText("comment", comment); err != nil {
		return nil, err
	}
	o, it, err := s.load(ctx, offerID)
	if err != nil {
		return nil, err
	}
	role, ok := o.RoleOf(it.Owner, reviewer)
	if !ok {
		return nil, apperr.Forbidden("only the parties to this transaction may rate it")
	}
	seller, buyer := it.Owner, o.Buyer(it.Owner)
	self, other := buyer, seller
	if role == offer.PartySeller {
		self, other = seller, buyer
	}
	if !reviewee.IsZero() && !party.SameRef(reviewee, other) {
		return nil, apperr.Validation("reviewee must be the other party to the transaction")
	}
	if !o.IsConfirmed() {
		return nil, apperr.Conflict("rating opens once the buyer confirms receipt")
	}
	if o.Rated(role) {
		return nil, apperr.AlreadyRated("%s already rated this transaction", role)
	}

	r, err := domain.New(o, self, other, role, score, comment)
	if err != nil {
		return nil, err
	}
	_, err = s.ratings.Rate(ctx, offer.Transition{
		OfferID:   o.OfferID,
		From:      offer.StatusAccepted,
		To:        offer.StatusAccepted,
		MarkRated: role,
		At:        r.CreatedAt,
	}, r)
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, s.flagConflict(ctx, o.OfferID, role, err)
		}
		if apperr.Code(err) != apperr.CodeInternal {
			return nil, err
		}
		return nil, fmt.Errorf("failed to store rating: %w", err)
	}

	s.auditSvc.Log(ctx, &audit.AuditEntry{
		EntityType: audit.EntityTypeRating,
		EntityID:   r.RatingID.String(),
		Action:     audit.ActionRate,
		Actor:      reviewer.String(),
		Reason:     fmt.Sprintf("offer %s score %d", o.OfferID, score),
	})
	s.notify(ctx, r, other)
	s.logger.Info().
		Str("rating_id", r.RatingID.String()).
		Str("offer_id", o.OfferID.String()).
		Str("role", string(role)).
		Int("score", score).
		Msg("rating submitted")
	return r, nil
}

// RespondToRating attaches the reviewee's one-time reply.
func (s *Service) RespondToRating(ctx context.Context, ratingID uuid.UUID, responder party.Identity, text string) (*domain.Rating, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Validation("response is required")
	}
	if err := domain.ValidateText("response", text); err != nil {
		return nil, err
	}
	r, err := s.ratings.GetByID(ctx, ratingID)
	if err != nil {
		return nil, err
	}
	if !party.SameParty(responder, r.Reviewee) {
		return nil, apperr.Forbidden("only the reviewee may respond")
	}
	if r.HasResponse() {
		return nil, apperr.AlreadyResponded("rating already has a response")
	}
	updated, err := s.ratings.SetResponse(ctx, ratingID, text, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	s.auditSvc.Log(ctx, &audit.AuditEntry{
		EntityType: audit.EntityTypeRating,
		EntityID:   ratingID.String(),
		Action:     audit.ActionRespond,
		Actor:      responder.String(),
	})
	return updated, nil
}

// ListRatingsFor returns every rating about ref.
func (s *Service) ListRatingsFor(ctx context.Context, ref party.Ref) ([]*domain.Rating, error) {
	if ref.IsZero() {
		return nil, apperr.Validation("member reference is required")
	}
	return s.ratings.ListByReviewee(ctx, ref)
}

// Summary aggregates the ratings about ref.
func (s *Service) Summary(ctx context.Context, ref party.Ref) (domain.Summary, error) {
	ratings, err := s.ListRatingsFor(ctx, ref)
	if err != nil {
		return domain.Summary{}, err
	}
	return domain.Summarize(ratings), nil
}

func (s *Service) load(ctx context.Context, offerID uuid.UUID) (*offer.Offer, *item.Item, error) {
	o, err := s.offers.GetByID(ctx, offerID)
	if err != nil {
		return nil, nil, err
	}
	it, err := s.items.GetByID(ctx, o.ItemID)
	if err != nil {
		return nil, nil, err
	}
	return o, it, nil
}

// flagConflict tells a concurrent duplicate submission apart from other
// state changes.
func (s *Service) flagConflict(ctx context.Context, offerID uuid.UUID, role offer.PartyRole, cause error) error {
	o, err := s.offers.GetByID(ctx, offerID)
	if err != nil {
		return cause
	}
	if o.Rated(role) {
		return apperr.AlreadyRated("%s already rated this transaction", role)
	}
	return cause
}

func (s *Service) notify(ctx context.Context, r *domain.Rating, to party.Ref) {
	ev, err := notification.NewEvent(notification.EventRatingSubmitted, r.ItemID, r, to)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to build event")
		return
	}
	offerID, ratingID := r.OfferID, r.RatingID
	ev.OfferID = &offerID
	ev.RatingID = &ratingID
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("rating_id", r.RatingID.String()).Msg("failed to deliver notification")
	}
}

func canRate(o *offer.Offer, role offer.PartyRole) bool {
	return o.IsConfirmed() && !o.Rated(role)
}
