package memory

import (
	"context"
	"sync"

	"auction-storefront/internal/domain"
	"auction-storefront/pkg/logger"
)

const subscriberBuffer = 1024

// ChangeBus is the in-process notifier transport for single-instance runs.
type ChangeBus struct {
	mu          sync.RWMutex
	subscribers map[int]chan *domain.ChangeEvent
	nextID      int
	log         logger.Logger
}

func NewChangeBus(log logger.Logger) *ChangeBus {
	return &ChangeBus{
		subscribers: make(map[int]chan *domain.ChangeEvent),
		log:         log,
	}
}

// PublishChange blocks while a subscriber's buffer is full, until ctx is done.
func (b *ChangeBus) PublishChange(ctx context.Context, event *domain.ChangeEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *ChangeBus) SubscribeToChanges(ctx context.Context, handler domain.ChangeHandler) error {
	ch := make(chan *domain.ChangeEvent, subscriberBuffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
	}()

	b.log.Info("Subscribed to local change bus")
	for {
		select {
		case event := <-ch:
			if err := handler(event); err != nil {
				b.log.Error("Failed to handle change event", "type", event.Type, "key", event.Key(), "error", err)
			}
		case <-ctx.Done():
			b.log.Info("Local change bus subscriber stopped")
			return ctx.Err()
		}
	}
}
