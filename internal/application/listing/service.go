package listing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	appAudit "github.com/clubhub/marketplace/internal/application/audit"
	"github.com/clubhub/marketplace/internal/domain/apperr"
	"github.com/clubhub/marketplace/internal/domain/audit"
	"github.com/clubhub/marketplace/internal/domain/item"
	"github.com/clubhub/marketplace/internal/domain/offer"
	"github.com/clubhub/marketplace/internal/domain/party"
)

// Service manages item listings and keeps their status in line with the
// offers made on them.
type Service struct {
	items    item.Repository
	offers   offer.Repository
	auditSvc *appAudit.Service
	logger   zerolog.Logger
}

// NewService creates a listing service.
func NewService(items item.Repository, offers offer.Repository, auditSvc *appAudit.Service, logger zerolog.Logger) *Service {
	return &Service{
		items:    items,
		offers:   offers,
		auditSvc: auditSvc,
		logger:   logger.With().Str("service", "listing").Logger(),
	}
}

// CreateInput defines listing creation input.
type CreateInput struct {
	Title       string
	Description string
	AskingPrice decimal.Decimal
	Status      item.Status
}

func (s *Service) Create(ctx context.Context, owner party.Identity, input CreateInput) (*item.Item, error) {
	if owner.IsZero() {
		return nil, apperr.Forbidden("caller identity is required")
	}
	it, err := item.New(owner.Ref(), input.Title, input.Description, input.AskingPrice, input.Status)
	if err != nil {
		return nil, err
	}
	if err := s.items.Create(ctx, it); err != nil {
		return nil, fmt.Errorf("failed to create item: %w", err)
	}
	s.audit(ctx, it, audit.ActionCreate, owner, "", string(it.Status))
	s.logger.Info().Str("item_id", it.ItemID.String()).Str("owner", owner.String()).Msg("item listed")
	return it, nil
}

// Get returns the item with its status projected from the current offers.
func (s *Service) Get(ctx context.Context, itemID uuid.UUID) (*item.Item, error) {
	it, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	offers, err := s.offers.ListByItem(ctx, itemID, offer.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list offers: %w", err)
	}
	it.Status = item.Project(it, offers)
	return it, nil
}

func (s *Service) List(ctx context.Context, filter item.Filter, limit, offset int) ([]*item.Item, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if filter.Status != nil {
		if err := item.ValidateStatus(*filter.Status); err != nil {
			return nil, err
		}
	}
	return s.items.List(ctx, filter, limit, offset)
}

// Publish moves a draft to active. Only the owner may publish.
func (s *Service) Publish(ctx context.Context, itemID uuid.UUID, actor party.Identity) (*item.Item, error) {
	it, err := s.owned(ctx, itemID, actor)
	if err != nil {
		return nil, err
	}
	if it.Status != item.StatusDraft || it.IsWithdrawn() {
		return nil, apperr.Conflict("only draft items can be published")
	}
	now := time.Now().UTC()
	if err := s.items.UpdateStatus(ctx, itemID, item.StatusActive, now); err != nil {
		return nil, fmt.Errorf("failed to publish item: %w", err)
	}
	it.Status = item.StatusActive
	it.UpdatedAt = now
	s.audit(ctx, it, audit.ActionPublish, actor, string(item.StatusDraft), string(item.StatusActive))
	return it, nil
}

// Withdraw takes the item off the market. Pending offers stay as they are
// but no new offers are accepted because the item is no longer active.
func (s *Service) Withdraw(ctx context.Context, itemID uuid.UUID, actor party.Identity) (*item.Item, error) {
	it, err := s.owned(ctx, itemID, actor)
	if err != nil {
		return nil, err
	}
	if it.IsWithdrawn() {
		return nil, apperr.Conflict("item already withdrawn")
	}
	if err := s.items.MarkWithdrawn(ctx, itemID, time.Now().UTC()); err != nil {
		return nil, err
	}
	status, err := s.Recompute(ctx, itemID)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, it, audit.ActionWithdraw, actor, string(it.Status), string(status))
	return s.items.GetByID(ctx, itemID)
}

// Recompute derives the item status from its offers and stores it when it
// changed.
func (s *Service) Recompute(ctx context.Context, itemID uuid.UUID) (item.Status, error) {
	from, to, err := s.items.Reproject(ctx, itemID, time.Now().UTC())
	if err != nil {
		if apperr.Code(err) != apperr.CodeInternal {
			return "", err
		}
		return "", fmt.Errorf("failed to recompute item status: %w", err)
	}
	if from == to {
		return to, nil
	}
	s.auditSvc.Log(ctx, &audit.AuditEntry{
		EntityType: audit.EntityTypeItem,
		EntityID:   itemID.String(),
		Action:     audit.ActionProject,
		Actor:      "system",
		FromStatus: string(from),
		ToStatus:   string(to),
	})
	s.logger.Debug().Str("item_id", itemID.String()).Str("from", string(from)).Str("to", string(to)).Msg("item status recomputed")
	return to, nil
}

func (s *Service) owned(ctx context.Context, itemID uuid.UUID, actor party.Identity) (*item.Item, error) {
	it, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if !it.IsOwnedBy(actor) {
		return nil, apperr.Forbidden("only the seller may change this item")
	}
	return it, nil
}

func (s *Service) audit(ctx context.Context, it *item.Item, action audit.Action, actor party.Identity, from, to string) {
	s.auditSvc.Log(ctx, &audit.AuditEntry{
		EntityType: audit.EntityTypeItem,
		EntityID:   it.ItemID.String(),
		Action:     action,
		Actor:      actor.String(),
		FromStatus: from,
		ToStatus:   to,
	})
}
