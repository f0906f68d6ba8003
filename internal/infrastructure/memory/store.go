// Package memory holds process-local repositories used by tests and by the
// server when no database is configured. All repositories created from one
// Store share its state.
package memory

import (
	"sync"

	"github.com/google/uuid"

	"github.com/clubhub/marketplace/internal/domain/apperr"
	"github.com/clubhub/marketplace/internal/domain/audit"
	"github.com/clubhub/marketplace/internal/domain/item"
	"github.com/clubhub/marketplace/internal/domain/member"
	"github.com/clubhub/marketplace/internal/domain/offer"
	"github.com/clubhub/marketplace/internal/domain/rating"
)

// Store is the shared backing state.
type Store struct {
	mu sync.RWMutex
	// itemLocks serialize writes that touch offers of one item.
	itemLocks map[uuid.UUID]*sync.Mutex
	seq       int64

	items     map[uuid.UUID]*item.Item
	itemOrder []uuid.UUID

	offers     map[uuid.UUID]*offer.Offer
	offerOrder []uuid.UUID

	ratings     map[uuid.UUID]*rating.Rating
	ratingOrder []uuid.UUID

	members map[uuid.UUID]*member.Member

	audits []*audit.AuditLog
}

func NewStore() *Store {
	return &Store{
		itemLocks: make(map[uuid.UUID]*sync.Mutex),
		items:     make(map[uuid.UUID]*item.Item),
		offers:    make(map[uuid.UUID]*offer.Offer),
		ratings:   make(map[uuid.UUID]*rating.Rating),
		members:   make(map[uuid.UUID]*member.Member),
	}
}

func (s *Store) Items() *ItemRepository { return &ItemRepository{s: s} }
func (s *Store) Offers() *OfferRepository { return &OfferRepository{s: s} }
func (s *Store) Ratings() *RatingRepository { return &RatingRepository{s: s} }
func (s *Store) Members() *MemberRepository { return &MemberRepository{s: s} }
func (s *Store) AuditLogs() *AuditRepository { return &AuditRepository{s: s} }

func (s *Store) lockItem(itemID uuid.UUID) func() {
	s.mu.Lock()
	l, ok := s.itemLocks[itemID]
	if !ok {
		l = &sync.Mutex{}
		s.itemLocks[itemID] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// applyTransition validates t against the stored offer and writes the
// result. It must be called with the item's lock and mu held.
func (s *Store) applyTransition(t offer.Transition) (*offer.Offer, error) {
	cur, ok := s.offers[t.OfferID]
	if !ok {
		return nil, apperr.NotFound("offer %s not found", t.OfferID)
	}
	updated := *cur
	if err := t.Apply(&updated); err != nil {
		return nil, err
	}
	if t.From != offer.StatusAccepted && t.To == offer.StatusAccepted {
		for _, o := range s.offers {
			if o.ItemID == cur.ItemID && o.OfferID != t.OfferID && o.Status == offer.StatusAccepted {
				return nil, apperr.Conflict(apperr.MsgOfferUnavailable)
			}
		}
	}
	s.offers[t.OfferID] = &updated
	out := updated
	return &out, nil
}

// nextID must be called with mu held.
func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}
