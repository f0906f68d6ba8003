package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/clubhub/marketplace/internal/domain/apperr"
	"github.com/clubhub/marketplace/internal/domain/item"
	"github.com/clubhub/marketplace/internal/domain/offer"
	"github.com/clubhub/marketplace/internal/domain/party"
)

// ItemRepository implements item.Repository.
type ItemRepository struct {
	s *Store
}

func (r *ItemRepository) Create(ctx context.Context, it *item.Item) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.items[it.ItemID]; ok {
		return apperr.Conflict("item %s already exists", it.ItemID)
	}
	it.ID = r.s.nextID()
	cp := *it
	r.s.items[it.ItemID] = &cp
	r.s.itemOrder = append(r.s.itemOrder, it.ItemID)
	return nil
}

func (r *ItemRepository) GetByID(ctx context.Context, itemID uuid.UUID) (*item.Item, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	it, ok := r.s.items[itemID]
	if !ok {
		return nil, apperr.NotFound("item %s not found", itemID)
	}
	cp := *it
	return &cp, nil
}

func (r *ItemRepository) List(ctx context.Context, filter item.Filter, limit, offset int) ([]*item.Item, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*item.Item
	for _, id := range r.s.itemOrder {
		it := r.s.items[id]
		if filter.Status != nil && it.Status != *filter.Status {
			continue
		}
		if filter.Owner != nil && !party.SameRef(*filter.Owner, it.Owner) {
			continue
		}
		cp := *it
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

func (r *ItemRepository) UpdateStatus(ctx context.Context, itemID uuid.UUID, status item.Status, updatedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	it, ok := r.s.items[itemID]
	if !ok {
		return apperr.NotFound("item %s not found", itemID)
	}
	it.Status = status
	it.UpdatedAt = updatedAt
	return nil
}

func (r *ItemRepository) MarkWithdrawn(ctx context.Context, itemID uuid.UUID, at time.Time) error {
	unlock := r.s.lockItem(itemID)
	defer unlock()

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	it, ok := r.s.items[itemID]
	if !ok {
		return apperr.NotFound("item %s not found", itemID)
	}
	if it.WithdrawnAt != nil {
		return apperr.Conflict("item already withdrawn")
	}
	it.WithdrawnAt = &at
	it.UpdatedAt = at
	return nil
}

func (r *ItemRepository) Reproject(ctx context.Context, itemID uuid.UUID, at time.Time) (item.Status, item.Status, error) {
	unlock := r.s.lockItem(itemID)
	defer unlock()

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	it, ok := r.s.items[itemID]
	if !ok {
		return "", "", apperr.NotFound("item %s not found", itemID)
	}
	var offers []*offer.Offer
	for _, o := range r.s.offers {
		if o.ItemID == itemID {
			offers = append(offers, o)
		}
	}
	from := it.Status
	to := item.Project(it, offers)
	if to != from {
		it.Status = to
		it.UpdatedAt = at
	}
	return from, to, nil
}

func page[T any](in []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(in) {
			return nil
		}
		in = in[offset:]
	}
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}
