package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"auction-storefront/internal/domain"
	"auction-storefront/pkg/logger"

	"github.com/nats-io/nats.go"
)

const (
	itemSubjectPrefix   = "item_changes."
	bidderSubjectPrefix = "bidder_changes."
	subscribeBuffer     = 1024
)

// ChangeSubject is the subject an event is published on. One connection
// publishes a subject's messages in order.
func ChangeSubject(event *domain.ChangeEvent) string {
	if event.Type == domain.EventBalanceChanged {
		return bidderSubjectPrefix + event.BidderID
	}
	return itemSubjectPrefix + event.ItemID
}

// ChangeBus carries change events between instances over NATS core
// pub/sub.
type ChangeBus struct {
	conn *nats.Conn
	log  logger.Logger
}

func NewChangeBus(conn *nats.Conn, log logger.Logger) (*ChangeBus, error) {
	if conn == nil {
		return nil, fmt.Errorf("NATS connection cannot be nil")
	}
	return &ChangeBus{conn: conn, log: log}, nil
}

func (b *ChangeBus) PublishChange(ctx context.Context, event *domain.ChangeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.Type, err)
	}

	subject := ChangeSubject(event)
	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish message to NATS subject %s: %w", subject, err)
	}
	return nil
}

func (b *ChangeBus) SubscribeToChanges(ctx context.Context, handler domain.ChangeHandler) error {
	ch := make(chan *nats.Msg, subscribeBuffer)

	var subs []*nats.Subscription
	defer func() {
		for _, sub := range subs {
			if err := sub.Unsubscribe(); err != nil {
				b.log.Warn("Failed to unsubscribe", "subject", sub.Subject, "error", err)
			}
		}
	}()
	for _, subject := range []string{itemSubjectPrefix + "*", bidderSubjectPrefix + "*"} {
		sub, err := b.conn.ChanSubscribe(subject, ch)
		if err != nil {
			return fmt.Errorf("subscribe to %s: %w", subject, err)
		}
		subs = append(subs, sub)
	}
	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("flush subscriptions: %w", err)
	}

	b.log.Info("Subscribed to NATS change subjects")

	for {
		select {
		case msg := <-ch:
			var event domain.ChangeEvent
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				b.log.Error("Failed to parse event", "subject", msg.Subject, "error", err)
				continue
			}
			if err := handler(&event); err != nil {
				b.log.Error("Failed to handle event", "type", event.Type, "key", event.Key(), "error", err)
			}
		case <-ctx.Done():
			b.log.Info("NATS change subscriber stopped")
			return ctx.Err()
		}
	}
}
