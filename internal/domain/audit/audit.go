package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EntityType represents the type of entity being audited.
type EntityType string

const (
	EntityTypeItem   EntityType = "ITEM"
	EntityTypeOffer  EntityType = "OFFER"
	EntityTypeRating EntityType = "RATING"
)

// Action represents the audited operation.
type Action string

const (
	ActionCreate         Action = "CREATE"
	ActionCounter        Action = "COUNTER"
	ActionAccept         Action = "ACCEPT"
	ActionReject         Action = "REJECT"
	ActionWithdraw       Action = "WITHDRAW"
	ActionSupersede      Action = "SUPERSEDE"
	ActionConfirmReceipt Action = "CONFIRM_RECEIPT"
	ActionPublish        Action = "PUBLISH"
	ActionProject        Action = "PROJECT"
	ActionRate           Action = "RATE"
	ActionRespond        Action = "RESPOND"
)

// AuditLog is a stored audit record.
type AuditLog struct {
	ID         int64      `json:"-"`
	AuditID    uuid.UUID  `json:"auditId"`
	EntityType EntityType `json:"entityType"`
	EntityID   string     `json:"entityId"`
	Action     Action     `json:"action"`
	Actor      string     `json:"actor"`
	FromStatus string     `json:"fromStatus,omitempty"`
	ToStatus   string     `json:"toStatus,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	Signature  []byte     `json:"signature,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// AuditEntry is the input for a new audit record.
type AuditEntry struct {
	EntityType EntityType
	EntityID   string
	Action     Action
	Actor      string
	FromStatus string
	ToStatus   string
	Reason     string
}

// Repository defines persistence for audit logs.
type Repository interface {
	Create(ctx context.Context, log *AuditLog) error
	// GetByEntityID returns the history of one entity, oldest first.
	GetByEntityID(ctx context.Context, entityType EntityType, entityID string) ([]*AuditLog, error)
}

// NewAuditLog creates a new AuditLog from an AuditEntry.
func NewAuditLog(entry *AuditEntry) *AuditLog {
	return &AuditLog{
		AuditID:    uuid.New(),
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Action:     entry.Action,
		Actor:      entry.Actor,
		FromStatus: entry.FromStatus,
		ToStatus:   entry.ToStatus,
		Reason:     entry.Reason,
		CreatedAt:  time.Now().UTC(),
	}
}
