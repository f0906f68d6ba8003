package item

import "github.com/clubhub/marketplace/internal/domain/offer"

// Project derives the item's status from its offers. It is the only place
// that decides an item is sold.
func Project(it *Item, offers []*offer.Offer) Status {
	for _, o := range offers {
		if o.ItemID == it.ItemID && o.Status == offer.StatusAccepted {
			return StatusSold
		}
	}
	if it.IsWithdrawn() {
		return StatusExpired
	}
	switch it.Status {
	case StatusDraft, StatusFlagged:
		return it.Status
	default:
		return StatusActive
	}
}
