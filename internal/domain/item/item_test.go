package item

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubhub/marketplace/internal/domain/apperr"
	"github.com/clubhub/marketplace/internal/domain/offer"
	"github.com/clubhub/marketplace/internal/domain/party"
)

var owner = party.Ref{ShortID: "M-10001", StorageID: uuid.NewString()}

func TestNew(t *testing.T) {
	it, err := New(owner, " Club jersey ", "", decimal.NewFromInt(100), "")
	require.NoError(t, err)
	assert.Equal(t, "Club jersey", it.Title)
	assert.Equal(t, StatusActive, it.Status)
	assert.True(t, it.IsOwnedBy(party.Identity{ShortID: "M-10001"}))
	assert.False(t, it.IsOwnedBy(party.Identity{ShortID: "M-20002"}))

	_, err = New(owner, "x", "", decimal.NewFromInt(100), StatusSold)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = New(owner, "", "", decimal.NewFromInt(100), StatusActive)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = New(owner, strings.Repeat("t", TitleMaxLen+1), "", decimal.NewFromInt(100), StatusActive)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = New(owner, "x", "", decimal.Zero, StatusActive)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = New(party.Ref{}, "x", "", decimal.NewFromInt(1), StatusActive)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestProject(t *testing.T) {
	buyer := party.Ref{ShortID: "M-20002", StorageID: uuid.NewString()}
	newItem := func(status Status) *Item {
		it, err := New(owner, "Boots", "", decimal.NewFromInt(100), StatusActive)
		require.NoError(t, err)
		it.Status = status
		return it
	}
	offerWith := func(it *Item, status offer.Status, confirmed bool) *offer.Offer {
		o := offer.NewInitial(it.ItemID, buyer, owner, decimal.NewFromInt(80), "")
		o.Status = status
		o.ReceiptConfirmed = confirmed
		return o
	}

	t.Run("no offers stays active", func(t *testing.T) {
		it := newItem(StatusActive)
		assert.Equal(t, StatusActive, Project(it, nil))
	})

	t.Run("pending offers stay active", func(t *testing.T) {
		it := newItem(StatusActive)
		assert.Equal(t, StatusActive, Project(it, []*offer.Offer{offerWith(it, offer.StatusPending, false)}))
	})

	t.Run("accepted awaiting confirmation is sold", func(t *testing.T) {
		it := newItem(StatusActive)
		offers := []*offer.Offer{
			offerWith(it, offer.StatusSuperseded, false),
			offerWith(it, offer.StatusAccepted, false),
		}
		assert.Equal(t, StatusSold, Project(it, offers))
	})

	t.Run("confirmed is sold", func(t *testing.T) {
		it := newItem(StatusActive)
		assert.Equal(t, StatusSold, Project(it, []*offer.Offer{offerWith(it, offer.StatusAccepted, true)}))
	})

	t.Run("withdrawn without acceptance expires", func(t *testing.T) {
		it := newItem(StatusActive)
		now := time.Now()
		it.WithdrawnAt = &now
		assert.Equal(t, StatusExpired, Project(it, []*offer.Offer{offerWith(it, offer.StatusRejected, false)}))
	})

	t.Run("sold wins over withdrawn", func(t *testing.T) {
		it := newItem(StatusActive)
		now := time.Now()
		it.WithdrawnAt = &now
		assert.Equal(t, StatusSold, Project(it, []*offer.Offer{offerWith(it, offer.StatusAccepted, false)}))
	})

	t.Run("draft and flagged are kept", func(t *testing.T) {
		assert.Equal(t, StatusDraft, Project(newItem(StatusDraft), nil))
		assert.Equal(t, StatusFlagged, Project(newItem(StatusFlagged), nil))
	})

	t.Run("stale sold status is recomputed", func(t *testing.T) {
		it := newItem(StatusSold)
		assert.Equal(t, StatusActive, Project(it, []*offer.Offer{offerWith(it, offer.StatusRejected, false)}))
	})

	t.Run("offers of other items are ignored", func(t *testing.T) {
		it := newItem(StatusActive)
		other := newItem(StatusActive)
		assert.Equal(t, StatusActive, Project(it, []*offer.Offer{offerWith(other, offer.StatusAccepted, false)}))
	})
}
