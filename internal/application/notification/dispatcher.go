package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clubhub/marketplace/internal/domain/notification"
)

const defaultDeliveryTimeout = 5 * time.Second

// Dispatcher fans events out to every configured sink. Notify returns
// immediately; deliveries run in the background and failures are only
// logged.
type Dispatcher struct {
	sinks   []notification.Notifier
	timeout time.Duration
	logger  zerolog.Logger
	wg      sync.WaitGroup
}

func NewDispatcher(logger zerolog.Logger, sinks ...notification.Notifier) *Dispatcher {
	return &Dispatcher{
		sinks:   sinks,
		timeout: defaultDeliveryTimeout,
		logger:  logger.With().Str("service", "notification").Logger(),
	}
}

// Notify implements notification.Notifier.
func (d *Dispatcher) Notify(ctx context.Context, event *notification.Event) error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		dctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.Deliver(dctx, event); err != nil {
			d.logger.Warn().Err(err).
				Str("event_type", string(event.Type)).
				Str("event_id", event.EventID.String()).
				Msg("event delivery failed")
		}
	}()
	return nil
}

// Deliver sends event to all sinks and reports every failure.
func (d *Dispatcher) Deliver(ctx context.Context, event *notification.Event) error {
	var errs []error
	for _, sink := range d.sinks {
		if err := sink.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Wait blocks until background deliveries have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
