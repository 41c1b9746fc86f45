package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"auction-storefront/internal/domain"

	"github.com/go-redis/redis/v8"
)

const (
	itemChannelPrefix   = "item_changes:"
	bidderChannelPrefix = "bidder_changes:"
)

// ChangeChannel is the pub/sub channel an event is published on. Events for
// one item (or bidder) share a channel, so Redis keeps them in order.
func ChangeChannel(event *domain.ChangeEvent) string {
	if event.Type == domain.EventBalanceChanged {
		return bidderChannelPrefix + event.BidderID
	}
	return itemChannelPrefix + event.ItemID
}

type EventPublisherImpl struct {
	client *redis.Client
}

func NewEventPublisher(client *redis.Client) *EventPublisherImpl {
	return &EventPublisherImpl{client: client}
}

func (r *EventPublisherImpl) PublishChange(ctx context.Context, event *domain.ChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}

	if err := r.client.Publish(ctx, ChangeChannel(event), payload).Err(); err != nil {
		return fmt.Errorf("publish %s event: %w", event.Type, err)
	}
	return nil
}
