package service

import (
	"context"
	"sync"
	"time"

	"custody-vault/internal/core/domain"
	"custody-vault/internal/core/ports"

	"github.com/rs/zerolog"
)

const publishTimeout = 30 * time.Minute

// EventDispatcher fans committed events out to every configured publisher.
// Delivery is best-effort: failures are logged and never reach the caller.
type EventDispatcher struct {
	publishers []ports.EventPublisher
	wg         sync.WaitGroup
	log        zerolog.Logger
}

// NewEventDispatcher creates a dispatcher. Nil publishers are skipped.
func NewEventDispatcher(log zerolog.Logger, publishers ...ports.EventPublisher) *EventDispatcher {
	d := &EventDispatcher{log: log}
	for _, p := range publishers {
		if p != nil {
			d.publishers = append(d.publishers, p)
		}
	}
	return d
}

// Dispatch publishes event asynchronously to each publisher.
func (d *EventDispatcher) Dispatch(ctx context.Context, event *domain.Event) {
	base := context.WithoutCancel(ctx)
	for _, p := range d.publishers {
		d.wg.Add(1)
		go func(p ports.EventPublisher) {
			defer d.wg.Done()
			pctx, cancel := context.WithTimeout(base, publishTimeout)
			defer cancel()

			if err := p.Publish(pctx, event); err != nil {
				d.log.Warn().Err(err).
					Str("publisher", p.Name()).
					Str("event_id", event.ID.String()).
					Str("event_type", string(event.Type)).
					Msg("event publish failed")
			}
		}(p)
	}
}

// Wait blocks until in-flight deliveries finish.
func (d *EventDispatcher) Wait() {
	d.wg.Wait()
}
