package offer

import (
	"time"

	"github.com/google/uuid"

	"github.com/clubhub/marketplace/internal/domain/apperr"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusAccepted, StatusRejected, StatusWithdrawn, StatusSuperseded},
	StatusAccepted:   {StatusAccepted},
	StatusRejected:   {},
	StatusWithdrawn:  {},
	StatusSuperseded: {},
}

// CanTransition reports whether the state diagram allows from -> to.
// accepted -> accepted is the internal confirmation/rating sub-state change.
func CanTransition(from, to Status) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Transition describes one conditional read-modify-write of an offer.
type Transition struct {
	OfferID uuid.UUID
	// From is the status the stored offer must still have.
	From Status
	To   Status
	// ConfirmReceipt flips accepted(confirmed=false) to accepted(confirmed=true).
	ConfirmReceipt bool
	// MarkRated sets the rating-submitted flag of the given side.
	MarkRated PartyRole
	Reason    *string
	At        time.Time
}

// Apply checks the transition against the current state of o and, when
// allowed, mutates o. A failed precondition is a conflict: the caller read
// a state that no longer holds.
func (t Transition) Apply(o *Offer) error {
	if o.Status != t.From {
		return apperr.Conflict("offer is %s, expected %s", o.Status, t.From)
	}
	if !CanTransition(t.From, t.To) {
		return apperr.Conflict("cannot move offer from %s to %s", t.From, t.To)
	}
	at := t.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	if t.From == StatusAccepted {
		if !t.ConfirmReceipt && t.MarkRated == "" {
			return apperr.Conflict("offer is already accepted")
		}
		if t.ConfirmReceipt {
			if o.ReceiptConfirmed {
				return apperr.Conflict("receipt already confirmed")
			}
			o.ReceiptConfirmed = true
			o.ConfirmedAt = &at
		}
		if t.MarkRated != "" {
			if !o.ReceiptConfirmed {
				return apperr.Conflict("receipt not confirmed")
			}
			switch t.MarkRated {
			case PartySeller:
				if o.SellerRated {
					return apperr.Conflict("seller already rated")
				}
				o.SellerRated = true
			case PartyBuyer:
				if o.BuyerRated {
					return apperr.Conflict("buyer already rated")
				}
				o.BuyerRated = true
			default:
				return apperr.Validation("invalid party role %q", t.MarkRated)
			}
		}
		o.UpdatedAt = at
		return nil
	}

	if t.ConfirmReceipt || t.MarkRated != "" {
		return apperr.Conflict("offer is not accepted")
	}
	o.Status = t.To
	o.UpdatedAt = at
	switch t.To {
	case StatusAccepted:
		o.AcceptedAt = &at
	case StatusRejected:
		o.RejectReason = t.Reason
	}
	return nil
}
