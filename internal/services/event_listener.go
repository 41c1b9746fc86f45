package services

import (
	"context"
	"fmt"

	"auction-storefront/internal/domain"
	"auction-storefront/pkg/logger"
)

// EventListener feeds change events from the transport into the local
// websocket hub. Each bidding-service instance runs one.
type EventListener struct {
	broadcaster domain.ChangeBroadcaster
	log         logger.Logger
}

func NewEventListener(broadcaster domain.ChangeBroadcaster, log logger.Logger) *EventListener {
	return &EventListener{
		broadcaster: broadcaster,
		log:         log,
	}
}

func (el *EventListener) Start(ctx context.Context, subscriber domain.ChangeSubscriber) error {
	el.log.Info("Starting event listener")
	return subscriber.SubscribeToChanges(ctx, el.handleChange)
}

func (el *EventListener) handleChange(event *domain.ChangeEvent) error {
	el.log.Debug("Handling change event", "type", event.Type, "key", event.Key(), "version", event.Version)

	switch event.Type {
	case domain.EventItemUpdated, domain.EventAuctionFinished, domain.EventLikeChanged:
		if event.ItemID == "" {
			return fmt.Errorf("%s event without item id", event.Type)
		}
	case domain.EventBalanceChanged:
		if event.BidderID == "" {
			return fmt.Errorf("%s event without bidder id", event.Type)
		}
	default:
		return fmt.Errorf("unknown event type %q", event.Type)
	}

	el.broadcaster.Broadcast(event)
	return nil
}
