package messaging

import (
	"context"
	"log/slog"
	"sync"

	"meridian/internal/shared/events"
)

// Bus is the in-process event bus the services publish on. Subscribers are
// keyed by event type; delivery is best-effort with a bounded buffer per
// subscriber.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan events.Envelope
	logger      *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[string][]chan events.Envelope),
		logger:      logger,
	}
}

func (b *Bus) Publish(ctx context.Context, event events.Envelope) error {
	b.mu.RLock()
	subs := append([]chan events.Envelope(nil), b.subscribers[event.EventType]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sub <- event:
		default:
			if b.logger != nil {
				b.logger.Warn("dropping event for slow subscriber",
					"event", "bus_publish_drop",
					"module", "internal/platform/messaging",
					"layer", "platform",
					"event_type", event.EventType,
					"event_id", event.EventID,
				)
			}
		}
	}
	return nil
}

// Subscribe registers a handler for one event type. The handler runs on a
// dedicated goroutine until ctx is done.
func (b *Bus) Subscribe(ctx context.Context, eventType string, handler func(context.Context, events.Envelope) error) {
	ch := make(chan events.Envelope, 128)

	b.mu.Lock()
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)
	b.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				b.removeSubscriber(eventType, ch)
				return
			case event := <-ch:
				if err := handler(ctx, event); err != nil && b.logger != nil {
					b.logger.Error("event handler failed",
						"event", "bus_consume_failed",
						"module", "internal/platform/messaging",
						"layer", "platform",
						"event_type", eventType,
						"event_id", event.EventID,
						"error", err.Error(),
					)
				}
			}
		}
	}()
}

func (b *Bus) removeSubscriber(eventType string, target chan events.Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()

	items := b.subscribers[eventType]
	if len(items) == 0 {
		return
	}
	filtered := make([]chan events.Envelope, 0, len(items))
	for _, item := range items {
		if item != target {
			filtered = append(filtered, item)
		}
	}
	b.subscribers[eventType] = filtered
}
