package item

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clubhub/marketplace/internal/domain/apperr"
	"github.com/clubhub/marketplace/internal/domain/party"
)

// Status represents the externally visible lifecycle of a listing.
type Status string

const (
	StatusDraft   Status = "draft"
	StatusActive  Status = "active"
	StatusSold    Status = "sold"
	StatusExpired Status = "expired"
	StatusFlagged Status = "flagged"
)

const (
	TitleMaxLen       = 120
	DescriptionMaxLen = 2000
)

// Item is a marketplace listing owned by its seller.
type Item struct {
	ID          int64           `json:"-"`
	ItemID      uuid.UUID       `json:"itemId"`
	Owner       party.Ref       `json:"owner"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	AskingPrice decimal.Decimal `json:"askingPrice"`
	Status      Status          `json:"status"`
	WithdrawnAt *time.Time      `json:"withdrawnAt,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// New creates a listing owned by owner. Only draft and active are valid
// initial statuses.
func New(owner party.Ref, title, description string, askingPrice decimal.Decimal, status Status) (*Item, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperr.Validation("title is required")
	}
	if utf8.RuneCountInString(title) > TitleMaxLen {
		return nil, apperr.Validation("title exceeds %d characters", TitleMaxLen)
	}
	description = strings.TrimSpace(description)
	if utf8.RuneCountInString(description) > DescriptionMaxLen {
		return nil, apperr.Validation("description exceeds %d characters", DescriptionMaxLen)
	}
	if !askingPrice.IsPositive() {
		return nil, apperr.Validation("asking price must be positive")
	}
	if owner.IsZero() {
		return nil, apperr.Validation("owner is required")
	}
	if status == "" {
		status = StatusActive
	}
	if status != StatusDraft && status != StatusActive {
		return nil, apperr.Validation("new items must be draft or active")
	}
	now := time.Now().UTC()
	return &Item{
		ItemID:      uuid.New(),
		Owner:       owner.Canonical(),
		Title:       title,
		Description: description,
		AskingPrice: askingPrice,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// IsOwnedBy reports whether id is the seller.
func (it *Item) IsOwnedBy(id party.Identity) bool {
	return party.SameParty(id, it.Owner)
}

// IsWithdrawn reports whether the seller withdrew the listing.
func (it *Item) IsWithdrawn() bool {
	return it.WithdrawnAt != nil
}

func ValidateStatus(s Status) error {
	switch s {
	case StatusDraft, StatusActive, StatusSold, StatusExpired, StatusFlagged:
		return nil
	default:
		return apperr.Validation("invalid item status %q", s)
	}
}
