package notification

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/clubhub/marketplace/internal/domain/party"
)

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_notifier.go -package=mocks . Notifier

// EventType names a marketplace event.
type EventType string

const (
	EventOfferCreated          EventType = "offer.created"
	EventOfferAccepted         EventType = "offer.accepted"
	EventOfferReceiptConfirmed EventType = "offer.receipt_confirmed"
	EventOfferRejected         EventType = "offer.rejected"
	EventOfferWithdrawn        EventType = "offer.withdrawn"
	EventRatingSubmitted       EventType = "rating.submitted"
)

var (
	ErrClientNotFound = errors.New("SSE client not found")
	ErrChannelFull    = errors.New("SSE message channel full")
)

// Event is a fire-and-forget notification about a state change.
type Event struct {
	EventID    uuid.UUID       `json:"eventId"`
	Type       EventType       `json:"type"`
	Recipients []party.Ref     `json:"recipients"`
	ItemID     uuid.UUID       `json:"itemId"`
	OfferID    *uuid.UUID      `json:"offerId,omitempty"`
	RatingID   *uuid.UUID      `json:"ratingId,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// NewEvent builds an event carrying payload, encoded as JSON.
func NewEvent(t EventType, itemID uuid.UUID, payload interface{}, recipients ...party.Ref) (*Event, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return &Event{
		EventID:    uuid.New(),
		Type:       t,
		Recipients: recipients,
		ItemID:     itemID,
		Payload:    raw,
		OccurredAt: time.Now().UTC(),
	}, nil
}

// Notifier delivers events. Implementations must not block on slow
// consumers; callers ignore delivery failures beyond logging them.
type Notifier interface {
	Notify(ctx context.Context, event *Event) error
}

// SSEClient represents an active SSE connection of one member.
type SSEClient struct {
	ClientID    string
	Member      party.Identity
	ConnectedAt time.Time
	MessageChan chan *SSEMessage
}

// NewSSEClient creates a new SSE client
func NewSSEClient(clientID string, member party.Identity) *SSEClient {
	return &SSEClient{
		ClientID:    clientID,
		Member:      member,
		ConnectedAt: time.Now().UTC(),
		MessageChan: make(chan *SSEMessage, 100),
	}
}

// Close closes the client's message channel
func (c *SSEClient) Close() {
	close(c.MessageChan)
}

// SSEMessage represents a message to be sent via SSE
type SSEMessage struct {
	ID        string          `json:"id"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Retry     *int            `json:"retry,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewSSEMessage creates a new SSE message
func NewSSEMessage(event string, data json.RawMessage) *SSEMessage {
	return &SSEMessage{
		ID:        uuid.New().String(),
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}
