// Package negotiation runs the offer state machine: offers, counter-offers,
// acceptance and the receipt confirmation that completes a sale.
package negotiation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	appAudit "github.com/clubhub/marketplace/internal/application/audit"
	"github.com/clubhub/marketplace/internal/application/listing"
	"github.com/clubhub/marketplace/internal/domain/apperr"
	"github.com/clubhub/marketplace/internal/domain/audit"
	"github.com/clubhub/marketplace/internal/domain/item"
	"github.com/clubhub/marketplace/internal/domain/notification"
	"github.com/clubhub/marketplace/internal/domain/offer"
	"github.com/clubhub/marketplace/internal/domain/party"
)

// Service is the negotiation engine. It keeps no state between calls; the
// offer repository is the single source of truth.
type Service struct {
	items      item.Repository
	offers     offer.Repository
	listingSvc *listing.Service
	auditSvc   *appAudit.Service
	notifier   notification.Notifier
	logger     zerolog.Logger
}

// NewService creates a negotiation service.
func NewService(
	items item.Repository,
	offers offer.Repository,
	listingSvc *listing.Service,
	auditSvc *appAudit.Service,
	notifier notification.Notifier,
	logger zerolog.Logger,
) *Service {
	return &Service{
		items:      items,
		offers:     offers,
		listingSvc: listingSvc,
		auditSvc:   auditSvc,
		notifier:   notifier,
		logger:     logger.With().Str("service", "negotiation").Logger(),
	}
}

// CreateOffer opens a negotiation: sender proposes amount to the item owner.
func (s *Service) CreateOffer(ctx context.Context, itemID uuid.UUID, sender party.Identity, amount decimal.Decimal, note string) (*offer.Offer, error) {
	if sender.IsZero() {
		return nil, apperr.Forbidden("caller identity is required")
	}
	if err := validateProposal(amount, note); err != nil {
		return nil, err
	}
	it, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if it.IsOwnedBy(sender) {
		return nil, apperr.Validation("sellers cannot make offers on their own items")
	}
	if it.Status != item.StatusActive || it.IsWithdrawn() {
		return nil, apperr.Validation("item is not active")
	}

	o := offer.NewInitial(it.ItemID, sender.Ref(), it.Owner, amount, note)
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if err := s.offers.Create(ctx, o); err != nil {
		return nil, err
	}

	s.audit(ctx, o, audit.ActionCreate, sender, "", o.Status, nil)
	s.notify(ctx, notification.EventOfferCreated, o, o.Recipient)
	s.logger.Info().
		Str("offer_id", o.OfferID.String()).
		Str("item_id", o.ItemID.String()).
		Str("sender", sender.String()).
		Str("amount", o.Amount.String()).
		Msg("offer created")
	return o, nil
}

// CounterOffer supersedes a pending offer with a new proposal travelling in
// the opposite direction. Only the current addressee may counter.
func (s *Service) CounterOffer(ctx context.Context, sourceOfferID uuid.UUID, responder party.Identity, amount decimal.Decimal, note string) (*offer.Offer, error) {
	if err := validateProposal(amount, note); err != nil {
		return nil, err
	}
	src, err := s.offers.GetByID(ctx, sourceOfferID)
	if err != nil {
		return nil, err
	}
	if !party.SameParty(responder, src.Recipient) {
		return nil, apperr.Forbidden("only the recipient may counter this offer")
	}
	if src.Status != offer.StatusPending {
		return nil, apperr.Conflict(apperr.MsgOfferUnavailable)
	}

	counter := offer.NewCounter(src, amount, note)
	if err := counter.Validate(); err != nil {
		return nil, err
	}
	_, err = s.offers.Counter(ctx, offer.Transition{
		OfferID: src.OfferID,
		From:    offer.StatusPending,
		To:      offer.StatusSuperseded,
		At:      counter.CreatedAt,
	}, counter)
	if err != nil {
		return nil, unavailable(err)
	}

	s.audit(ctx, src, audit.ActionSupersede, responder, offer.StatusPending, offer.StatusSuperseded, nil)
	s.audit(ctx, counter, audit.ActionCounter, responder, "", counter.Status, nil)
	s.notify(ctx, notification.EventOfferCreated, counter, counter.Recipient)
	s.logger.Info().
		Str("offer_id", counter.OfferID.String()).
		Str("parent_offer_id", src.OfferID.String()).
		Str("amount", counter.Amount.String()).
		Msg("counter-offer created")
	return counter, nil
}

// Accept closes the deal on a pending offer. Every other pending offer on
// the item is superseded and the item is projected to sold.
func (s *Service) Accept(ctx context.Context, offerID uuid.UUID, actor party.Identity) (*offer.Offer, error) {
	o, err := s.offers.GetByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if !party.SameParty(actor, o.Recipient) {
		return nil, apperr.Forbidden("only the recipient may accept this offer")
	}
	if o.Status != offer.StatusPending {
		return nil, apperr.Conflict(apperr.MsgOfferUnavailable)
	}

	accepted, err := s.offers.Transition(ctx, offer.Transition{
		OfferID: o.OfferID,
		From:    offer.StatusPending,
		To:      offer.StatusAccepted,
		At:      time.Now().UTC(),
	})
	if err != nil {
		return nil, unavailable(err)
	}
	s.audit(ctx, accepted, audit.ActionAccept, actor, offer.StatusPending, offer.StatusAccepted, nil)

	s.supersedeSiblings(ctx, accepted, actor)
	if _, err := s.listingSvc.Recompute(ctx, accepted.ItemID); err != nil {
		s.logger.Error().Err(err).Str("item_id", accepted.ItemID.String()).Msg("failed to recompute item status after accept")
	}

	s.notify(ctx, notification.EventOfferAccepted, accepted, accepted.Sender, accepted.Recipient)
	s.logger.Info().
		Str("offer_id", accepted.OfferID.String()).
		Str("item_id", accepted.ItemID.String()).
		Str("actor", actor.String()).
		Msg("offer accepted")
	return accepted, nil
}

// Reject declines a pending offer. Only the recipient may reject.
func (s *Service) Reject(ctx context.Context, offerID uuid.UUID, actor party.Identity, reason string) (*offer.Offer, error) {
	if err := offer.ValidateNote(reason); err != nil {
		return nil, err
	}
	o, err := s.offers.GetByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if !party.SameParty(actor, o.Recipient) {
		return nil, apperr.Forbidden("only the recipient may reject this offer")
	}
	if o.Status != offer.StatusPending {
		return nil, apperr.Conflict(apperr.MsgOfferUnavailable)
	}
	var why *string
	if reason != "" {
		why = &reason
	}
	rejected, err := s.offers.Transition(ctx, offer.Transition{
		OfferID: o.OfferID,
		From:    offer.StatusPending,
		To:      offer.StatusRejected,
		Reason:  why,
		At:      time.Now().UTC(),
	})
	if err != nil {
		return nil, unavailable(err)
	}
	s.audit(ctx, rejected, audit.ActionReject, actor, offer.StatusPending, offer.StatusRejected, why)
	s.notify(ctx, notification.EventOfferRejected, rejected, rejected.Sender)
	return rejected, nil
}

// Withdraw cancels a pending offer. Only the sender may withdraw.
func (s *Service) Withdraw(ctx context.Context, offerID uuid.UUID, actor party.Identity) (*offer.Offer, error) {
	o, err := s.offers.GetByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if !party.SameParty(actor, o.Sender) {
		return nil, apperr.Forbidden("only the sender may withdraw this offer")
	}
	if o.Status != offer.StatusPending {
		return nil, apperr.Conflict(apperr.MsgOfferUnavailable)
	}
	withdrawn, err := s.offers.Transition(ctx, offer.Transition{
		OfferID: o.OfferID,
		From:    offer.StatusPending,
		To:      offer.StatusWithdrawn,
		At:      time.Now().UTC(),
	})
	if err != nil {
		return nil, unavailable(err)
	}
	s.audit(ctx, withdrawn, audit.ActionWithdraw, actor, offer.StatusPending, offer.StatusWithdrawn, nil)
	s.notify(ctx, notification.EventOfferWithdrawn, withdrawn, withdrawn.Recipient)
	return withdrawn, nil
}

// ConfirmReceipt completes the handshake. Only the buyer, the party that is
// not the item's seller, may confirm.
func (s *Service) ConfirmReceipt(ctx context.Context, offerID uuid.UUID, actor party.Identity) (*offer.Offer, error) {
	o, err := s.offers.GetByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	it, err := s.items.GetByID(ctx, o.ItemID)
	if err != nil {
		return nil, err
	}
	role, ok := o.RoleOf(it.Owner, actor)
	if !ok || role != offer.PartyBuyer {
		return nil, apperr.Forbidden("only the buyer may confirm receipt")
	}
	if o.Status != offer.StatusAccepted {
		return nil, apperr.Conflict("offer is %s, receipt can only be confirmed after acceptance", o.Status)
	}
	if o.ReceiptConfirmed {
		return nil, apperr.Conflict("receipt already confirmed")
	}
	confirmed, err := s.offers.Transition(ctx, offer.Transition{
		OfferID:        o.OfferID,
		From:           offer.StatusAccepted,
		To:             offer.StatusAccepted,
		ConfirmReceipt: true,
		At:             time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, confirmed, audit.ActionConfirmReceipt, actor, offer.StatusAccepted, offer.StatusAccepted, nil)
	s.notify(ctx, notification.EventOfferReceiptConfirmed, confirmed, confirmed.Sender, confirmed.Recipient)
	s.logger.Info().
		Str("offer_id", confirmed.OfferID.String()).
		Str("buyer", actor.String()).
		Msg("receipt confirmed")
	return confirmed, nil
}

// GetOffer returns an offer visible to viewer: the item's seller or a party
// to the offer.
func (s *Service) GetOffer(ctx context.Context, offerID uuid.UUID, viewer party.Identity) (*offer.Offer, error) {
	o, err := s.offers.GetByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if o.Involves(viewer) {
		return o, nil
	}
	it, err := s.items.GetByID(ctx, o.ItemID)
	if err != nil {
		return nil, err
	}
	if !it.IsOwnedBy(viewer) {
		return nil, apperr.Forbidden("not a party to this offer")
	}
	return o, nil
}

// ListItemOffers returns the negotiation history of an item. The seller sees
// every offer; anybody else only the offers they are a party to.
func (s *Service) ListItemOffers(ctx context.Context, itemID uuid.UUID, viewer party.Identity, filter offer.ListFilter) ([]*offer.Offer, error) {
	it, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	offers, err := s.offers.ListByItem(ctx, itemID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list offers: %w", err)
	}
	if it.IsOwnedBy(viewer) {
		return offers, nil
	}
	visible := make([]*offer.Offer, 0, len(offers))
	for _, o := range offers {
		if o.Involves(viewer) {
			visible = append(visible, o)
		}
	}
	return visible, nil
}

// ListMyOffers returns every offer the viewer sent or received.
func (s *Service) ListMyOffers(ctx context.Context, viewer party.Identity, filter offer.ListFilter) ([]*offer.Offer, error) {
	if viewer.IsZero() {
		return nil, apperr.Forbidden("caller identity is required")
	}
	offers, err := s.offers.ListByParty(ctx, viewer.Ref(), filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list offers: %w", err)
	}
	return offers, nil
}

// supersedeSiblings retires every other pending offer on the item. Offers
// that moved concurrently are left alone.
func (s *Service) supersedeSiblings(ctx context.Context, accepted *offer.Offer, actor party.Identity) {
	pending := offer.StatusPending
	siblings, err := s.offers.ListByItem(ctx, accepted.ItemID, offer.ListFilter{Status: &pending})
	if err != nil {
		s.logger.Error().Err(err).Str("item_id", accepted.ItemID.String()).Msg("failed to list pending offers")
		return
	}
	for _, sib := range siblings {
		if sib.OfferID == accepted.OfferID {
			continue
		}
		_, err := s.offers.Transition(ctx, offer.Transition{
			OfferID: sib.OfferID,
			From:    offer.StatusPending,
			To:      offer.StatusSuperseded,
			At:      time.Now().UTC(),
		})
		switch {
		case err == nil:
			s.audit(ctx, sib, audit.ActionSupersede, actor, offer.StatusPending, offer.StatusSuperseded, nil)
		case errors.Is(err, apperr.ErrConflict):
		default:
			s.logger.Error().Err(err).Str("offer_id", sib.OfferID.String()).Msg("failed to supersede offer")
		}
	}
}

func (s *Service) audit(ctx context.Context, o *offer.Offer, action audit.Action, actor party.Identity, from, to offer.Status, reason *string) {
	entry := &audit.AuditEntry{
		EntityType: audit.EntityTypeOffer,
		EntityID:   o.OfferID.String(),
		Action:     action,
		Actor:      actor.String(),
		FromStatus: string(from),
		ToStatus:   string(to),
	}
	if reason != nil {
		entry.Reason = *reason
	}
	s.auditSvc.Log(ctx, entry)
}

// notify is best effort: a delivery failure never undoes the transition.
func (s *Service) notify(ctx context.Context, t notification.EventType, o *offer.Offer, to ...party.Ref) {
	ev, err := notification.NewEvent(t, o.ItemID, o, to...)
	if err != nil {
		s.logger.Warn().Err(err).Str("event_type", string(t)).Msg("failed to build event")
		return
	}
	id := o.OfferID
	ev.OfferID = &id
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.logger.Warn().Err(err).
			Str("event_type", string(t)).
			Str("offer_id", o.OfferID.String()).
			Msg("failed to deliver notification")
	}
}

func validateProposal(amount decimal.Decimal, note string) error {
	if err := offer.ValidateAmount(amount); err != nil {
		return err
	}
	return offer.ValidateNote(note)
}

// unavailable reports a lost race in the wording callers rely on.
func unavailable(err error) error {
	if errors.Is(err, apperr.ErrConflict) {
		return apperr.Conflict(apperr.MsgOfferUnavailable)
	}
	return err
}
