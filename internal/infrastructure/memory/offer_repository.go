package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/clubhub/marketplace/internal/domain/apperr"
	"github.com/clubhub/marketplace/internal/domain/item"
	"github.com/clubhub/marketplace/internal/domain/offer"
	"github.com/clubhub/marketplace/internal/domain/party"
)

// OfferRepository implements offer.Repository. Writes on one item are
// serialized by the item's lock; different items never contend.
type OfferRepository struct {
	s *Store
}

func (r *OfferRepository) Create(ctx context.Context, o *offer.Offer) error {
	if err := o.Validate(); err != nil {
		return err
	}
	unlock := r.s.lockItem(o.ItemID)
	defer unlock()

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.checkOpen(o.ItemID); err != nil {
		return err
	}
	r.insert(o)
	return nil
}

func (r *OfferRepository) Counter(ctx context.Context, supersede offer.Transition, counter *offer.Offer) (*offer.Offer, error) {
	if err := counter.Validate(); err != nil {
		return nil, err
	}
	if counter.ParentOfferID == nil || *counter.ParentOfferID != supersede.OfferID {
		return nil, apperr.Validation("counter-offer must reference the superseded offer")
	}
	unlock := r.s.lockItem(counter.ItemID)
	defer unlock()

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	src, ok := r.s.offers[supersede.OfferID]
	if !ok {
		return nil, apperr.NotFound("offer %s not found", supersede.OfferID)
	}
	updated := *src
	if err := supersede.Apply(&updated); err != nil {
		return nil, err
	}
	if err := r.checkOpen(counter.ItemID); err != nil {
		return nil, err
	}
	r.s.offers[updated.OfferID] = &updated
	r.insert(counter)
	out := updated
	return &out, nil
}

func (r *OfferRepository) GetByID(ctx context.Context, offerID uuid.UUID) (*offer.Offer, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	o, ok := r.s.offers[offerID]
	if !ok {
		return nil, apperr.NotFound("offer %s not found", offerID)
	}
	cp := *o
	return &cp, nil
}

func (r *OfferRepository) ListByItem(ctx context.Context, itemID uuid.UUID, filter offer.ListFilter) ([]*offer.Offer, error) {
	return r.list(filter, func(o *offer.Offer) bool { return o.ItemID == itemID }), nil
}

func (r *OfferRepository) ListByParty(ctx context.Context, ref party.Ref, filter offer.ListFilter) ([]*offer.Offer, error) {
	return r.list(filter, func(o *offer.Offer) bool {
		return party.SameRef(ref, o.Sender) || party.SameRef(ref, o.Recipient)
	}), nil
}

func (r *OfferRepository) Transition(ctx context.Context, t offer.Transition) (*offer.Offer, error) {
	r.s.mu.RLock()
	cur, ok := r.s.offers[t.OfferID]
	var itemID uuid.UUID
	if ok {
		itemID = cur.ItemID
	}
	r.s.mu.RUnlock()
	if !ok {
		return nil, apperr.NotFound("offer %s not found", t.OfferID)
	}

	unlock := r.s.lockItem(itemID)
	defer unlock()

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.applyTransition(t)
}

// checkOpen must be called with mu held.
func (r *OfferRepository) checkOpen(itemID uuid.UUID) error {
	it, ok := r.s.items[itemID]
	if !ok {
		return apperr.NotFound("item %s not found", itemID)
	}
	if it.Status != item.StatusActive || it.IsWithdrawn() {
		return apperr.Validation("item is not active")
	}
	for _, o := range r.s.offers {
		if o.ItemID == itemID && o.Status == offer.StatusAccepted {
			return apperr.Validation("item is not active")
		}
	}
	return nil
}

// insert must be called with mu held.
func (r *OfferRepository) insert(o *offer.Offer) {
	o.ID = r.s.nextID()
	cp := *o
	r.s.offers[o.OfferID] = &cp
	r.s.offerOrder = append(r.s.offerOrder, o.OfferID)
}

func (r *OfferRepository) list(filter offer.ListFilter, match func(*offer.Offer) bool) []*offer.Offer {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []*offer.Offer{}
	for _, id := range r.s.offerOrder {
		o := r.s.offers[id]
		if !match(o) {
			continue
		}
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	if filter.NewestFirst {
		sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	}
	return out
}
