package rating

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	appAudit "github.com/clubhub/marketplace/internal/application/audit"
	"github.com/clubhub/marketplace/internal/application/listing"
	"github.com/clubhub/marketplace/internal/application/negotiation"
	"github.com/clubhub/marketplace/internal/domain/apperr"
	"github.com/clubhub/marketplace/internal/domain/item"
	"github.com/clubhub/marketplace/internal/domain/notification/mocks"
	"github.com/clubhub/marketplace/internal/domain/offer"
	"github.com/clubhub/marketplace/internal/domain/party"
	domainRating "github.com/clubhub/marketplace/internal/domain/rating"
	ratingMocks "github.com/clubhub/marketplace/internal/domain/rating/mocks"
	"github.com/clubhub/marketplace/internal/infrastructure/memory"
)

type fixture struct {
	store   *memory.Store
	engine  *negotiation.Service
	listing *listing.Service
	svc     *Service
	seller  party.Identity
	buyer   party.Identity
	other   party.Identity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	notifier := mocks.NewMockNotifier(ctrl)
	notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	store := memory.NewStore()
	auditSvc := appAudit.NewService(store.AuditLogs(), zerolog.Nop(), nil)
	listingSvc := listing.NewService(store.Items(), store.Offers(), auditSvc, zerolog.Nop())
	return &fixture{
		store:   store,
		engine:  negotiation.NewService(store.Items(), store.Offers(), listingSvc, auditSvc, notifier, zerolog.Nop()),
		listing: listingSvc,
		svc:     NewService(store.Items(), store.Offers(), store.Ratings(), auditSvc, notifier, zerolog.Nop()),
		seller:  party.Identity{ShortID: "M-10001", StorageID: uuid.NewString()},
		buyer:   party.Identity{ShortID: "M-20002", StorageID: uuid.NewString()},
		other:   party.Identity{ShortID: "M-30003", StorageID: uuid.NewString()},
	}
}

// acceptedOffer runs list, offer and accept; receipt is not confirmed yet.
func (f *fixture) acceptedOffer(t *testing.T) *offer.Offer {
	t.Helper()
	ctx := context.Background()
	it, err := f.listing.Create(ctx, f.seller, listing.CreateInput{Title: "Training top", AskingPrice: decimal.NewFromInt(100), Status: item.StatusActive})
	require.NoError(t, err)
	o, err := f.engine.CreateOffer(ctx, it.ItemID, f.buyer, decimal.NewFromInt(80), "")
	require.NoError(t, err)
	o, err = f.engine.Accept(ctx, o.OfferID, f.seller)
	require.NoError(t, err)
	return o
}

func TestGateOpensAfterConfirmation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.acceptedOffer(t)

	for _, role := range []offer.PartyRole{offer.PartySeller, offer.PartyBuyer} {
		ok, err := f.svc.CanRate(ctx, o.OfferID, role)
		require.NoError(t, err)
		assert.False(t, ok, "gate closed before confirmation for %s", role)
	}

	_, err := f.svc.SubmitRating(ctx, o.OfferID, f.seller, party.Ref{}, 5, "prompt payment")
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	_, err = f.engine.ConfirmReceipt(ctx, o.OfferID, f.buyer)
	require.NoError(t, err)

	for _, role := range []offer.PartyRole{offer.PartySeller, offer.PartyBuyer} {
		ok, err := f.svc.CanRate(ctx, o.OfferID, role)
		require.NoError(t, err)
		assert.True(t, ok, "gate open for %s", role)
	}

	r, err := f.svc.SubmitRating(ctx, o.OfferID, f.seller, party.Ref{}, 5, "prompt payment")
	require.NoError(t, err)
	assert.Equal(t, offer.PartySeller, r.ReviewerRole)
	assert.True(t, party.SameParty(f.buyer, r.Reviewee))

	ok, err := f.svc.CanRate(ctx, o.OfferID, offer.PartySeller)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = f.svc.CanRate(ctx, o.OfferID, offer.PartyBuyer)
	require.NoError(t, err)
	assert.True(t, ok, "flags are independent")

	_, err = f.svc.CanRate(ctx, o.OfferID, "broker")
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestSubmitRatingTwice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.acceptedOffer(t)
	_, err := f.engine.ConfirmReceipt(ctx, o.OfferID, f.buyer)
	require.NoError(t, err)

	_, err = f.svc.SubmitRating(ctx, o.OfferID, f.buyer, f.seller.Ref(), 4, "")
	require.NoError(t, err)
	_, err = f.svc.SubmitRating(ctx, o.OfferID, f.buyer, f.seller.Ref(), 5, "")
	assert.True(t, errors.Is(err, apperr.ErrAlreadyRated))

	ratings, err := f.store.Ratings().ListByOffer(ctx, o.OfferID)
	require.NoError(t, err)
	assert.Len(t, ratings, 1)
}

func TestConcurrentDuplicateRatings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.acceptedOffer(t)
	_, err := f.engine.ConfirmReceipt(ctx, o.OfferID, f.buyer)
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.SubmitRating(ctx, o.OfferID, f.buyer, party.Ref{}, 3, "")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, errors.Is(err, apperr.ErrAlreadyRated), "got %v", err)
	}
	assert.Equal(t, 1, ok)
}

func TestSubmitRatingValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.acceptedOffer(t)
	_, err := f.engine.ConfirmReceipt(ctx, o.OfferID, f.buyer)
	require.NoError(t, err)

	_, err = f.svc.SubmitRating(ctx, o.OfferID, f.buyer, party.Ref{}, 0, "")
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	_, err = f.svc.SubmitRating(ctx, o.OfferID, f.buyer, party.Ref{}, 6, "")
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	_, err = f.svc.SubmitRating(ctx, o.OfferID, f.buyer, party.Ref{}, 3, strings.Repeat("c", 501))
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	_, err = f.svc.SubmitRating(ctx, o.OfferID, f.buyer, f.buyer.Ref(), 3, "")
	assert.True(t, errors.Is(err, apperr.ErrValidation), "cannot rate yourself")
	_, err = f.svc.SubmitRating(ctx, o.OfferID, f.other, f.seller.Ref(), 3, "")
	assert.True(t, errors.Is(err, apperr.ErrForbidden))
	_, err = f.svc.SubmitRating(ctx, uuid.New(), f.buyer, party.Ref{}, 3, "")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	ok, err := f.svc.CanRate(ctx, o.OfferID, offer.PartyBuyer)
	require.NoError(t, err)
	assert.True(t, ok, "failed attempts leave the gate open")
}

func TestRespondToRating(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.acceptedOffer(t)
	_, err := f.engine.ConfirmReceipt(ctx, o.OfferID, f.buyer)
	require.NoError(t, err)
	r, err := f.svc.SubmitRating(ctx, o.OfferID, f.buyer, party.Ref{}, 2, "late handover")
	require.NoError(t, err)

	_, err = f.svc.RespondToRating(ctx, r.RatingID, f.buyer, "self reply")
	assert.True(t, errors.Is(err, apperr.ErrForbidden))
	_, err = f.svc.RespondToRating(ctx, r.RatingID, f.seller, "   ")
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	updated, err := f.svc.RespondToRating(ctx, r.RatingID, f.seller, "traffic, sorry")
	require.NoError(t, err)
	require.NotNil(t, updated.Response)
	assert.Equal(t, "traffic, sorry", *updated.Response)

	_, err = f.svc.RespondToRating(ctx, r.RatingID, f.seller, "second")
	assert.True(t, errors.Is(err, apperr.ErrAlreadyResponded))
}

func TestEligibilityAndSummary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.acceptedOffer(t)
	_, err := f.engine.ConfirmReceipt(ctx, o.OfferID, f.buyer)
	require.NoError(t, err)

	e, err := f.svc.Eligibility(ctx, o.OfferID, f.buyer)
	require.NoError(t, err)
	assert.Equal(t, offer.PartyBuyer, e.Role)
	assert.True(t, e.CanRate)

	_, err = f.svc.Eligibility(ctx, o.OfferID, f.other)
	assert.True(t, errors.Is(err, apperr.ErrForbidden))

	_, err = f.svc.SubmitRating(ctx, o.OfferID, f.buyer, party.Ref{}, 4, "")
	require.NoError(t, err)
	o2 := f.acceptedOffer(t)
	_, err = f.engine.ConfirmReceipt(ctx, o2.OfferID, f.buyer)
	require.NoError(t, err)
	_, err = f.svc.SubmitRating(ctx, o2.OfferID, f.buyer, party.Ref{}, 5, "")
	require.NoError(t, err)

	e, err = f.svc.Eligibility(ctx, o.OfferID, f.seller)
	require.NoError(t, err)
	assert.True(t, e.BuyerRated)
	assert.True(t, e.CanRate)

	sum, err := f.svc.Summary(ctx, party.Ref{ShortID: f.seller.ShortID})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Count)
	assert.InDelta(t, 4.5, sum.Average, 0.001)
}

func TestRatingStoreFailureLeavesGateOpen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.acceptedOffer(t)
	_, err := f.engine.ConfirmReceipt(ctx, o.OfferID, f.buyer)
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	ratings := ratingMocks.NewMockRepository(ctrl)
	ratings.EXPECT().Rate(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("disk full"))
	notifier := mocks.NewMockNotifier(ctrl)
	auditSvc := appAudit.NewService(f.store.AuditLogs(), zerolog.Nop(), nil)
	svc := NewService(f.store.Items(), f.store.Offers(), ratings, auditSvc, notifier, zerolog.Nop())

	_, err = svc.SubmitRating(ctx, o.OfferID, f.seller, party.Ref{}, 5, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.False(t, errors.Is(err, apperr.ErrAlreadyRated))

	ok, err := f.svc.CanRate(ctx, o.OfferID, offer.PartySeller)
	require.NoError(t, err)
	assert.True(t, ok, "a failed store keeps the seller's gate open")

	r, err := f.svc.SubmitRating(ctx, o.OfferID, f.seller, party.Ref{}, 5, "")
	require.NoError(t, err, "retry after a failed store succeeds")
	assert.Equal(t, offer.PartySeller, r.ReviewerRole)
}

func TestRejectedRatingLeavesNoFlag(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.acceptedOffer(t)
	_, err := f.engine.ConfirmReceipt(ctx, o.OfferID, f.buyer)
	require.NoError(t, err)

	// A buyer's rating paired with the seller's flag is refused before
	// anything is written.
	stored, err := f.store.Offers().GetByID(ctx, o.OfferID)
	require.NoError(t, err)
	rt, err := domainRating.New(stored, f.buyer.Ref(), f.seller.Ref(), offer.PartyBuyer, 4, "")
	require.NoError(t, err)
	_, err = f.store.Ratings().Rate(ctx, offer.Transition{
		OfferID: o.OfferID, From: offer.StatusAccepted, To: offer.StatusAccepted, MarkRated: offer.PartySeller,
	}, rt)
	assert.True(t, errors.Is(err, apperr.ErrValidation), "role mismatch")

	after, err := f.store.Offers().GetByID(ctx, o.OfferID)
	require.NoError(t, err)
	assert.False(t, after.SellerRated)
	assert.False(t, after.BuyerRated)
	list, err := f.store.Ratings().ListByOffer(ctx, o.OfferID)
	require.NoError(t, err)
	assert.Empty(t, list)
}
