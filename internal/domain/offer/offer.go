package offer

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clubhub/marketplace/internal/domain/apperr"
	"github.com/clubhub/marketplace/internal/domain/party"
)

// Status represents the negotiation status of an offer.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusRejected   Status = "rejected"
	StatusWithdrawn  Status = "withdrawn"
	StatusSuperseded Status = "superseded"
)

// Role tells an opening proposal apart from a reply.
type Role string

const (
	RoleInitial Role = "initial"
	RoleCounter Role = "counter"
)

// PartyRole is the side a party plays in a transaction.
type PartyRole string

const (
	PartySeller PartyRole = "seller"
	PartyBuyer  PartyRole = "buyer"
)

// NoteMaxLen bounds the free-text note, counted in characters.
const NoteMaxLen = 500

// Offer is a single negotiation message about an item.
type Offer struct {
	ID               int64           `json:"-"`
	OfferID          uuid.UUID       `json:"offerId"`
	ItemID           uuid.UUID       `json:"itemId"`
	Sender           party.Ref       `json:"sender"`
	Recipient        party.Ref       `json:"recipient"`
	Amount           decimal.Decimal `json:"amount"`
	Note             *string         `json:"note,omitempty"`
	Role             Role            `json:"role"`
	ParentOfferID    *uuid.UUID      `json:"parentOfferId,omitempty"`
	Status           Status          `json:"status"`
	ReceiptConfirmed bool            `json:"receiptConfirmed"`
	RejectReason     *string         `json:"rejectReason,omitempty"`
	SellerRated      bool            `json:"sellerRated"`
	BuyerRated       bool            `json:"buyerRated"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	AcceptedAt       *time.Time      `json:"acceptedAt,omitempty"`
	ConfirmedAt      *time.Time      `json:"confirmedAt,omitempty"`
}

// NewInitial creates a pending opening offer addressed to the item owner.
func NewInitial(itemID uuid.UUID, sender, owner party.Ref, amount decimal.Decimal, note string) *Offer {
	now := time.Now().UTC()
	return &Offer{
		OfferID:   uuid.New(),
		ItemID:    itemID,
		Sender:    sender.Canonical(),
		Recipient: owner.Canonical(),
		Amount:    amount,
		Note:      optionalText(note),
		Role:      RoleInitial,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewCounter creates the reply to source, travelling in the opposite direction.
func NewCounter(source *Offer, amount decimal.Decimal, note string) *Offer {
	now := time.Now().UTC()
	parent := source.OfferID
	return &Offer{
		OfferID:       uuid.New(),
		ItemID:        source.ItemID,
		Sender:        source.Recipient,
		Recipient:     source.Sender,
		Amount:        amount,
		Note:          optionalText(note),
		Role:          RoleCounter,
		ParentOfferID: &parent,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Validate checks the offer's own invariants. It does not look at the item.
func (o *Offer) Validate() error {
	if err := ValidateAmount(o.Amount); err != nil {
		return err
	}
	if o.Note != nil {
		if err := ValidateNote(*o.Note); err != nil {
			return err
		}
	}
	if o.Sender.IsZero() || o.Recipient.IsZero() {
		return apperr.Validation("sender and recipient are required")
	}
	if party.SameRef(o.Sender, o.Recipient) {
		return apperr.Validation("sender and recipient must be different parties")
	}
	switch o.Role {
	case RoleInitial:
	case RoleCounter:
		if o.ParentOfferID == nil {
			return apperr.Validation("counter-offer requires a parent offer")
		}
	default:
		return apperr.Validation("invalid offer role %q", o.Role)
	}
	return nil
}

// ValidateAmount requires a strictly positive amount.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.Validation("amount must be positive")
	}
	return nil
}

// ValidateNote enforces the note length bound.
func ValidateNote(note string) error {
	if utf8.RuneCountInString(note) > NoteMaxLen {
		return apperr.Validation("note exceeds %d characters", NoteMaxLen)
	}
	return nil
}

// IsConfirmed reports whether the buyer confirmed receipt of an accepted offer.
func (o *Offer) IsConfirmed() bool {
	return o.Status == StatusAccepted && o.ReceiptConfirmed
}

// Involves reports whether id is the sender or the recipient.
func (o *Offer) Involves(id party.Identity) bool {
	return party.SameParty(id, o.Sender) || party.SameParty(id, o.Recipient)
}

// Buyer returns the party that is not the item's seller.
func (o *Offer) Buyer(seller party.Ref) party.Ref {
	if party.SameRef(o.Sender, seller) {
		return o.Recipient
	}
	return o.Sender
}

// RoleOf returns the side id plays in this offer's transaction.
func (o *Offer) RoleOf(seller party.Ref, id party.Identity) (PartyRole, bool) {
	if party.SameParty(id, seller) {
		if o.Involves(id) {
			return PartySeller, true
		}
		return "", false
	}
	if party.SameParty(id, o.Buyer(seller)) {
		return PartyBuyer, true
	}
	return "", false
}

// Rated reports the rating-submitted flag for role.
func (o *Offer) Rated(role PartyRole) bool {
	switch role {
	case PartySeller:
		return o.SellerRated
	case PartyBuyer:
		return o.BuyerRated
	default:
		return false
	}
}

func optionalText(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
