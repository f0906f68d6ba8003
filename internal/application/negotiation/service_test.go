package negotiation

import (
	"bytes"
	"context"
	"encoding/json"
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
	"github.com/clubhub/marketplace/internal/domain/apperr"
	"github.com/clubhub/marketplace/internal/domain/item"
	"github.com/clubhub/marketplace/internal/domain/notification"
	"github.com/clubhub/marketplace/internal/domain/notification/mocks"
	"github.com/clubhub/marketplace/internal/domain/offer"
	"github.com/clubhub/marketplace/internal/domain/party"
	"github.com/clubhub/marketplace/internal/infrastructure/memory"
)

type fixture struct {
	store    *memory.Store
	svc      *Service
	listing  *listing.Service
	notifier *mocks.MockNotifier
	seller   party.Identity
	buyer    party.Identity
	buyer2   party.Identity
	stranger party.Identity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	store := memory.NewStore()
	auditSvc := appAudit.NewService(store.AuditLogs(), zerolog.Nop(), nil)
	listingSvc := listing.NewService(store.Items(), store.Offers(), auditSvc, zerolog.Nop())
	notifier := mocks.NewMockNotifier(ctrl)
	return &fixture{
		store:    store,
		svc:      NewService(store.Items(), store.Offers(), listingSvc, auditSvc, notifier, zerolog.Nop()),
		listing:  listingSvc,
		notifier: notifier,
		seller:   party.Identity{ShortID: "M-10001", StorageID: uuid.NewString()},
		buyer:    party.Identity{ShortID: "M-20002", StorageID: uuid.NewString()},
		buyer2:   party.Identity{ShortID: "M-30003", StorageID: uuid.NewString()},
		stranger: party.Identity{ShortID: "M-40004", StorageID: uuid.NewString()},
	}
}

func (f *fixture) quiet() {
	f.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
}

func (f *fixture) listItem(t *testing.T, price int64) *item.Item {
	t.Helper()
	it, err := f.listing.Create(context.Background(), f.seller, listing.CreateInput{
		Title:       "Home kit 2024",
		AskingPrice: decimal.NewFromInt(price),
		Status:      item.StatusActive,
	})
	require.NoError(t, err)
	return it
}

func (f *fixture) itemStatus(t *testing.T, itemID uuid.UUID) item.Status {
	t.Helper()
	it, err := f.store.Items().GetByID(context.Background(), itemID)
	require.NoError(t, err)
	return it.Status
}

func usd(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestAcceptMarksItemSold(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.quiet()
	it := f.listItem(t, 100)

	o, err := f.svc.CreateOffer(ctx, it.ItemID, f.buyer, usd(80), "cash on pickup")
	require.NoError(t, err)
	assert.Equal(t, offer.StatusPending, o.Status)
	assert.Equal(t, offer.RoleInitial, o.Role)
	assert.True(t, party.SameParty(f.seller, o.Recipient))
	require.NotNil(t, o.Note)

	accepted, err := f.svc.Accept(ctx, o.OfferID, f.seller)
	require.NoError(t, err)
	assert.Equal(t, offer.StatusAccepted, accepted.Status)
	assert.False(t, accepted.ReceiptConfirmed)
	assert.Equal(t, item.StatusSold, f.itemStatus(t, it.ItemID))

	confirmed, err := f.svc.ConfirmReceipt(ctx, o.OfferID, f.buyer)
	require.NoError(t, err)
	assert.True(t, confirmed.IsConfirmed())
	assert.NotNil(t, confirmed.ConfirmedAt)
	assert.Equal(t, item.StatusSold, f.itemStatus(t, it.ItemID))
}

func TestCounterOfferRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.quiet()
	it := f.listItem(t, 100)

	a, err := f.svc.CreateOffer(ctx, it.ItemID, f.buyer, usd(80), "")
	require.NoError(t, err)

	_, err = f.svc.CounterOffer(ctx, a.OfferID, f.buyer, usd(85), "")
	assert.True(t, errors.Is(err, apperr.ErrForbidden), "sender cannot counter own offer")

	b, err := f.svc.CounterOffer(ctx, a.OfferID, f.seller, usd(90), "final price")
	require.NoError(t, err)
	assert.Equal(t, offer.RoleCounter, b.Role)
	assert.True(t, party.SameRef(b.Sender, a.Recipient))
	assert.True(t, party.SameRef(b.Recipient, a.Sender))
	require.NotNil(t, b.ParentOfferID)
	assert.Equal(t, a.OfferID, *b.ParentOfferID)

	srcNow, err := f.store.Offers().GetByID(ctx, a.OfferID)
	require.NoError(t, err)
	assert.Equal(t, offer.StatusSuperseded, srcNow.Status)

	_, err = f.svc.Accept(ctx, a.OfferID, f.seller)
	assert.True(t, errors.Is(err, apperr.ErrConflict), "superseded offer cannot be accepted")

	_, err = f.svc.Accept(ctx, b.OfferID, f.seller)
	assert.True(t, errors.Is(err, apperr.ErrForbidden), "seller cannot accept own counter")

	accepted, err := f.svc.Accept(ctx, b.OfferID, f.buyer)
	require.NoError(t, err)
	assert.True(t, accepted.Amount.Equal(usd(90)))

	status := offer.StatusAccepted
	all, err := f.store.Offers().ListByItem(ctx, it.ItemID, offer.ListFilter{Status: &status})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, b.OfferID, all[0].OfferID)

	// the buyer is the party that is not the seller, even though the accepted
	// offer was sent by the seller
	_, err = f.svc.ConfirmReceipt(ctx, b.OfferID, f.seller)
	assert.True(t, errors.Is(err, apperr.ErrForbidden))
	_, err = f.svc.ConfirmReceipt(ctx, b.OfferID, f.buyer)
	require.NoError(t, err)
}

func TestLongCounterChainKeepsBuyer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.quiet()
	it := f.listItem(t, 100)

	o, err := f.svc.CreateOffer(ctx, it.ItemID, f.buyer, usd(60), "")
	require.NoError(t, err)
	parties := []party.Identity{f.seller, f.buyer, f.seller, f.buyer}
	for i, responder := range parties {
		o, err = f.svc.CounterOffer(ctx, o.OfferID, responder, usd(int64(70+i*5)), "")
		require.NoError(t, err)
	}
	// last counter came from the buyer, so the seller accepts
	_, err = f.svc.Accept(ctx, o.OfferID, f.seller)
	require.NoError(t, err)
	_, err = f.svc.ConfirmReceipt(ctx, o.OfferID, f.buyer)
	require.NoError(t, err)

	history, err := f.svc.ListItemOffers(ctx, it.ItemID, f.seller, offer.ListFilter{NewestFirst: true})
	require.NoError(t, err)
	require.Len(t, history, 5)
	assert.Equal(t, o.OfferID, history[0].OfferID)
	for _, h := range history[1:] {
		assert.Equal(t, offer.StatusSuperseded, h.Status)
	}
}

func TestAcceptSupersedesSiblings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.quiet()
	it := f.listItem(t, 100)

	o1, err := f.svc.CreateOffer(ctx, it.ItemID, f.buyer, usd(80), "")
	require.NoError(t, err)
	o2, err := f.svc.CreateOffer(ctx, it.ItemID, f.buyer2, usd(85), "")
	require.NoError(t, err)
	o3, err := f.svc.CreateOffer(ctx, it.ItemID, f.buyer2, usd(70), "")
	require.NoError(t, err)
	_, err = f.svc.Reject(ctx, o3.OfferID, f.seller, "too low")
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, o2.OfferID, f.seller)
	require.NoError(t, err)

	got1, err := f.store.Offers().GetByID(ctx, o1.OfferID)
	require.NoError(t, err)
	assert.Equal(t, offer.StatusSuperseded, got1.Status)

	got3, err := f.store.Offers().GetByID(ctx, o3.OfferID)
	require.NoError(t, err)
	assert.Equal(t, offer.StatusRejected, got3.Status, "terminal offers are left alone")

	_, err = f.svc.CreateOffer(ctx, it.ItemID, f.stranger, usd(120), "")
	assert.True(t, errors.Is(err, apperr.ErrValidation), "sold item takes no new offers")
}

func TestConcurrentAcceptsOnOneItem(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.quiet()
	it := f.listItem(t, 100)

	const n = 8
	ids := make([]uuid.UUID, n)
	for i := range ids {
		buyer := party.Identity{StorageID: uuid.NewString()}
		o, err := f.svc.CreateOffer(ctx, it.ItemID, buyer, usd(int64(60+i)), "")
		require.NoError(t, err)
		ids[i] = o.OfferID
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			_, errs[i] = f.svc.Accept(ctx, id, f.seller)
		}(i, id)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, errors.Is(err, apperr.ErrConflict))
		assert.Contains(t, err.Error(), apperr.MsgOfferUnavailable)
	}
	assert.Equal(t, 1, wins)

	status := offer.StatusAccepted
	accepted, err := f.store.Offers().ListByItem(ctx, it.ItemID, offer.ListFilter{Status: &status})
	require.NoError(t, err)
	assert.Len(t, accepted, 1)
	assert.Equal(t, item.StatusSold, f.itemStatus(t, it.ItemID))
}

func TestSellerOnlyOperationsRejectStrangers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.quiet()
	it := f.listItem(t, 100)
	o, err := f.svc.CreateOffer(ctx, it.ItemID, f.buyer, usd(80), "")
	require.NoError(t, err)

	// shares neither the short id nor the storage id of the seller
	impostor := party.Identity{ShortID: "M-99999", StorageID: strings.ToUpper(uuid.NewString())}

	for _, actor := range []party.Identity{f.stranger, impostor, {}} {
		_, err = f.svc.Accept(ctx, o.OfferID, actor)
		assert.True(t, errors.Is(err, apperr.ErrForbidden))
		_, err = f.svc.Reject(ctx, o.OfferID, actor, "")
		assert.True(t, errors.Is(err, apperr.ErrForbidden))
		_, err = f.svc.CounterOffer(ctx, o.OfferID, actor, usd(90), "")
		assert.True(t, errors.Is(err, apperr.ErrForbidden))
		_, err = f.listing.Withdraw(ctx, it.ItemID, actor)
		assert.True(t, errors.Is(err, apperr.ErrForbidden))
	}

	stored, err := f.store.Offers().GetByID(ctx, o.OfferID)
	require.NoError(t, err)
	assert.Equal(t, offer.StatusPending, stored.Status)
}

func TestIdentityFormsAreInterchangeable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.quiet()
	it := f.listItem(t, 100)

	o, err := f.svc.CreateOffer(ctx, it.ItemID, party.Identity{StorageID: f.buyer.StorageID}, usd(80), "")
	require.NoError(t, err)

	// the seller authenticates with the short id only
	_, err = f.svc.Accept(ctx, o.OfferID, party.Identity{ShortID: f.seller.ShortID})
	require.NoError(t, err)

	// the buyer presents the storage id in upper case
	_, err = f.svc.ConfirmReceipt(ctx, o.OfferID, party.Identity{StorageID: strings.ToUpper(f.buyer.StorageID)})
	require.NoError(t, err)
}

func TestCreateOfferValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.quiet()
	it := f.listItem(t, 100)

	cases := []struct {
		name   string
		sender party.Identity
		amount decimal.Decimal
		note   string
		want   error
	}{
		{"zero amount", f.buyer, decimal.Zero, "", apperr.ErrValidation},
		{"negative amount", f.buyer, usd(-5), "", apperr.ErrValidation},
		{"note too long", f.buyer, usd(50), strings.Repeat("n", offer.NoteMaxLen+1), apperr.ErrValidation},
		{"self offer", f.seller, usd(50), "", apperr.ErrValidation},
		{"self offer by short id", party.Identity{ShortID: f.seller.ShortID}, usd(50), "", apperr.ErrValidation},
		{"anonymous", party.Identity{}, usd(50), "", apperr.ErrForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateOffer(ctx, it.ItemID, tc.sender, tc.amount, tc.note)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}

	offers, err := f.store.Offers().ListByItem(ctx, it.ItemID, offer.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, offers, "nothing is written on validation failure")

	_, err = f.svc.CreateOffer(ctx, uuid.New(), f.buyer, usd(50), "")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestCreateOfferRequiresActiveItem(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.quiet()

	draft, err := f.listing.Create(ctx, f.seller, listing.CreateInput{Title: "Signed ball", AskingPrice: usd(40), Status: item.StatusDraft})
	require.NoError(t, err)
	_, err = f.svc.CreateOffer(ctx, draft.ItemID, f.buyer, usd(30), "")
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = f.listing.Publish(ctx, draft.ItemID, f.seller)
	require.NoError(t, err)
	_, err = f.svc.CreateOffer(ctx, draft.ItemID, f.buyer, usd(30), "")
	require.NoError(t, err)

	_, err = f.listing.Withdraw(ctx, draft.ItemID, f.seller)
	require.NoError(t, err)
	assert.Equal(t, item.StatusExpired, f.itemStatus(t, draft.ItemID))
	_, err = f.svc.CreateOffer(ctx, draft.ItemID, f.buyer2, usd(35), "")
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestConfirmReceiptOrdering(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.quiet()
	it := f.listItem(t, 100)

	pending, err := f.svc.CreateOffer(ctx, it.ItemID, f.buyer, usd(80), "")
	require.NoError(t, err)
	_, err = f.svc.ConfirmReceipt(ctx, pending.OfferID, f.buyer)
	assert.True(t, errors.Is(err, apperr.ErrConflict), "pending offer")

	_, err = f.svc.Reject(ctx, pending.OfferID, f.seller, "no thanks")
	require.NoError(t, err)
	_, err = f.svc.ConfirmReceipt(ctx, pending.OfferID, f.buyer)
	assert.True(t, errors.Is(err, apperr.ErrConflict), "rejected offer")

	o, err := f.svc.CreateOffer(ctx, it.ItemID, f.buyer, usd(90), "")
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, o.OfferID, f.seller)
	require.NoError(t, err)
	_, err = f.svc.ConfirmReceipt(ctx, o.OfferID, f.stranger)
	assert.True(t, errors.Is(err, apperr.ErrForbidden))
	_, err = f.svc.ConfirmReceipt(ctx, o.OfferID, f.buyer)
	require.NoError(t, err)
	_, err = f.svc.ConfirmReceipt(ctx, o.OfferID, f.buyer)
	assert.True(t, errors.Is(err, apperr.ErrConflict), "confirmed twice")
}

func TestRejectAndWithdraw(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.quiet()
	it := f.listItem(t, 100)

	o, err := f.svc.CreateOffer(ctx, it.ItemID, f.buyer, usd(50), "")
	require.NoError(t, err)
	_, err = f.svc.Reject(ctx, o.OfferID, f.buyer, "")
	assert.True(t, errors.Is(err, apperr.ErrForbidden), "sender cannot reject")
	rejected, err := f.svc.Reject(ctx, o.OfferID, f.seller, "below asking")
	require.NoError(t, err)
	assert.Equal(t, offer.StatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectReason)
	assert.Equal(t, "below asking", *rejected.RejectReason)
	_, err = f.svc.Withdraw(ctx, o.OfferID, f.buyer)
	assert.True(t, errors.Is(err, apperr.ErrConflict), "rejected is terminal")

	o2, err := f.svc.CreateOffer(ctx, it.ItemID, f.buyer, usd(60), "")
	require.NoError(t, err)
	_, err = f.svc.Withdraw(ctx, o2.OfferID, f.seller)
	assert.True(t, errors.Is(err, apperr.ErrForbidden), "recipient cannot withdraw")
	withdrawn, err := f.svc.Withdraw(ctx, o2.OfferID, f.buyer)
	require.NoError(t, err)
	assert.Equal(t, offer.StatusWithdrawn, withdrawn.Status)
	_, err = f.svc.Accept(ctx, o2.OfferID, f.seller)
	assert.True(t, errors.Is(err, apperr.ErrConflict))
	assert.Equal(t, item.StatusActive, f.itemStatus(t, it.ItemID))
}

func TestVisibility(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.quiet()
	it := f.listItem(t, 100)

	o1, err := f.svc.CreateOffer(ctx, it.ItemID, f.buyer, usd(80), "")
	require.NoError(t, err)
	_, err = f.svc.CreateOffer(ctx, it.ItemID, f.buyer2, usd(85), "")
	require.NoError(t, err)

	all, err := f.svc.ListItemOffers(ctx, it.ItemID, f.seller, offer.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := f.svc.ListItemOffers(ctx, it.ItemID, f.buyer, offer.ListFilter{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, o1.OfferID, mine[0].OfferID)

	_, err = f.svc.GetOffer(ctx, o1.OfferID, f.buyer2)
	assert.True(t, errors.Is(err, apperr.ErrForbidden))
	_, err = f.svc.GetOffer(ctx, o1.OfferID, f.seller)
	require.NoError(t, err)

	sent, err := f.svc.ListMyOffers(ctx, f.buyer2, offer.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, sent, 1)
	received, err := f.svc.ListMyOffers(ctx, f.seller, offer.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, received, 2)
}

func TestNotificationFailureDoesNotRollBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	var mu sync.Mutex
	var seen []notification.EventType
	f.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, ev *notification.Event) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, ev.Type)
			return errors.New("broker unavailable")
		}).AnyTimes()
	it := f.listItem(t, 100)

	o, err := f.svc.CreateOffer(ctx, it.ItemID, f.buyer, usd(80), "")
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, o.OfferID, f.seller)
	require.NoError(t, err)
	_, err = f.svc.ConfirmReceipt(ctx, o.OfferID, f.buyer)
	require.NoError(t, err)

	stored, err := f.store.Offers().GetByID(ctx, o.OfferID)
	require.NoError(t, err)
	assert.True(t, stored.IsConfirmed())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []notification.EventType{
		notification.EventOfferCreated,
		notification.EventOfferAccepted,
		notification.EventOfferReceiptConfirmed,
	}, seen)
}

func TestDeliveryFailureLogFields(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	store := memory.NewStore()
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	auditSvc := appAudit.NewService(store.AuditLogs(), zerolog.Nop(), nil)
	listingSvc := listing.NewService(store.Items(), store.Offers(), auditSvc, zerolog.Nop())
	notifier := mocks.NewMockNotifier(ctrl)
	notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(errors.New("broker unavailable"))
	svc := NewService(store.Items(), store.Offers(), listingSvc, auditSvc, notifier, logger)

	owner := party.Identity{ShortID: "M-10001", StorageID: uuid.NewString()}
	it, err := listingSvc.Create(ctx, owner, listing.CreateInput{Title: "Rattle", AskingPrice: usd(30), Status: item.StatusActive})
	require.NoError(t, err)
	o, err := svc.CreateOffer(ctx, it.ItemID, party.Identity{ShortID: "M-20002", StorageID: uuid.NewString()}, usd(25), "")
	require.NoError(t, err)

	var failure map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		entry := map[string]interface{}{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		if entry["message"] == "failed to deliver notification" {
			failure = entry
		}
	}
	require.NotNil(t, failure, buf.String())
	assert.Equal(t, string(notification.EventOfferCreated), failure["event_type"])
	assert.Equal(t, o.OfferID.String(), failure["offer_id"])
	for key := range failure {
		assert.Equal(t, strings.ToLower(key), key, "log key %q", key)
	}
}

func TestEventsAddressedToCounterparty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	it := f.listItem(t, 100)

	f.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, ev *notification.Event) error {
			assert.Equal(t, notification.EventOfferCreated, ev.Type)
			require.Len(t, ev.Recipients, 1)
			assert.True(t, party.SameParty(f.seller, ev.Recipients[0]))
			require.NotNil(t, ev.OfferID)
			return nil
		})
	_, err := f.svc.CreateOffer(ctx, it.ItemID, f.buyer, usd(80), "")
	require.NoError(t, err)
}
