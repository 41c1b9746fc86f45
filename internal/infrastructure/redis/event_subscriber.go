package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"auction-storefront/internal/domain"
	"auction-storefront/pkg/logger"

	"github.com/go-redis/redis/v8"
)

type RedisEventSubscriber struct {
	client *redis.Client
	log    logger.Logger
}

func NewRedisEventSubscriber(client *redis.Client, log logger.Logger) *RedisEventSubscriber {
	return &RedisEventSubscriber{
		client: client,
		log:    log,
	}
}

// SubscribeToChanges blocks, handing every item and bidder change to handler
// until ctx is done.
func (r *RedisEventSubscriber) SubscribeToChanges(ctx context.Context, handler domain.ChangeHandler) error {
	patterns := []string{itemChannelPrefix + "*", bidderChannelPrefix + "*"}
	pubsub := r.client.PSubscribe(ctx, patterns...)
	defer pubsub.Close()

	if err := awaitSubscriptions(ctx, pubsub, len(patterns)); err != nil {
		return fmt.Errorf("subscribe to change channels: %w", err)
	}

	ch := pubsub.Channel()

	r.log.Info("Subscribed to change events")

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("change subscription closed")
			}
			event, err := parseChangeEvent(msg.Payload)
			if err != nil {
				r.log.Error("Failed to parse event", "channel", msg.Channel, "payload", msg.Payload, "error", err)
				continue
			}

			if err := handler(event); err != nil {
				r.log.Error("Failed to handle event", "type", event.Type, "key", event.Key(), "error", err)
			}

		case <-ctx.Done():
			r.log.Info("Event subscriber stopped")
			return ctx.Err()
		}
	}
}

// awaitSubscriptions reads confirmations until n subscriptions are active.
func awaitSubscriptions(ctx context.Context, pubsub *redis.PubSub, n int) error {
	for {
		msg, err := pubsub.Receive(ctx)
		if err != nil {
			return err
		}
		sub, ok := msg.(*redis.Subscription)
		if !ok {
			return fmt.Errorf("unexpected %T before subscriptions were confirmed", msg)
		}
		if sub.Count >= n {
			return nil
		}
	}
}

func parseChangeEvent(payload string) (*domain.ChangeEvent, error) {
	var event domain.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, fmt.Errorf("invalid change event: %w", err)
	}
	if event.Type == "" {
		return nil, fmt.Errorf("change event without type")
	}
	return &event, nil
}
