// Package redisbus publishes marketplace events on a Redis Pub/Sub channel
// so that other club services can react to them.
package redisbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clubhub/marketplace/internal/domain/notification"
)

const DefaultChannel = "marketplace.events"

// Publisher implements notification.Notifier on top of Redis Pub/Sub.
type Publisher struct {
	client     *redis.Client
	ownsClient bool
	channel    string
	logger     zerolog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithChannel sets the Pub/Sub channel name.
func WithChannel(channel string) Option {
	return func(p *Publisher) {
		if channel != "" {
			p.channel = channel
		}
	}
}

// WithLogger sets the publisher's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger.With().Str("component", "redisbus").Logger()
	}
}

// Dial connects to addr and verifies the connection.
func Dial(ctx context.Context, addr string, opts ...Option) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	p := NewPublisher(client, opts...)
	p.ownsClient = true
	return p, nil
}

// NewPublisher wraps an existing client. The caller keeps ownership of it.
func NewPublisher(client *redis.Client, opts ...Option) *Publisher {
	p := &Publisher{
		client:  client,
		channel: DefaultChannel,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Publisher) Channel() string {
	return p.channel
}

// Notify publishes the event as JSON.
func (p *Publisher) Notify(ctx context.Context, event *notification.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		p.logger.Error().Err(err).
			Str("channel", p.channel).
			Str("event_type", string(event.Type)).
			Msg("failed to publish event")
		return fmt.Errorf("failed to publish event: %w", err)
	}
	p.logger.Debug().
		Str("channel", p.channel).
		Str("event_type", string(event.Type)).
		Str("event_id", event.EventID.String()).
		Msg("event published")
	return nil
}

// Subscribe delivers decoded events to fn until ctx is cancelled.
func (p *Publisher) Subscribe(ctx context.Context, fn func(*notification.Event)) error {
	sub := p.client.Subscribe(ctx, p.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to channel: %w", err)
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev notification.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				p.logger.Warn().Err(err).Msg("dropping undecodable event")
				continue
			}
			fn(&ev)
		}
	}
}

// Close releases the client when the publisher created it.
func (p *Publisher) Close() error {
	if p.ownsClient {
		return p.client.Close()
	}
	return nil
}
