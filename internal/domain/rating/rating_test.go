package rating

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubhub/marketplace/internal/domain/apperr"
	"github.com/clubhub/marketplace/internal/domain/offer"
	"github.com/clubhub/marketplace/internal/domain/party"
)

func TestNew(t *testing.T) {
	seller := party.Ref{ShortID: "M-10001", StorageID: uuid.NewString()}
	buyer := party.Ref{ShortID: "M-20002", StorageID: uuid.NewString()}
	o := offer.NewInitial(uuid.New(), buyer, seller, decimal.NewFromInt(50), "")

	r, err := New(o, buyer, seller, offer.PartyBuyer, 5, "  smooth handover ")
	require.NoError(t, err)
	assert.Equal(t, o.OfferID, r.OfferID)
	assert.Equal(t, o.ItemID, r.ItemID)
	require.NotNil(t, r.Comment)
	assert.Equal(t, "smooth handover", *r.Comment)
	assert.False(t, r.HasResponse())

	for _, score := range []int{0, 6, -1} {
		_, err := New(o, buyer, seller, offer.PartyBuyer, score, "")
		assert.True(t, errors.Is(err, apperr.ErrValidation), "score %d", score)
	}

	_, err = New(o, buyer, seller, offer.PartyBuyer, 3, strings.Repeat("x", CommentMaxLen+1))
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	r, err = New(o, buyer, seller, offer.PartyBuyer, 3, "")
	require.NoError(t, err)
	assert.Nil(t, r.Comment)
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, Summary{}, Summarize(nil))
	s := Summarize([]*Rating{{Score: 5}, {Score: 4}, {Score: 3}})
	assert.Equal(t, 3, s.Count)
	assert.InDelta(t, 4.0, s.Average, 0.0001)
}
