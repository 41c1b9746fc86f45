package services

import (
	"context"
	"time"

	"auction-storefront/internal/domain"
	"auction-storefront/pkg/logger"
	"auction-storefront/pkg/metrics"
)

const publishTimeout = 5 * time.Second

// ChangeNotifier publishes committed changes to the configured transport.
// Publishing is best effort: state is already committed and observers
// re-fetch on reconnect, so failures are logged and never returned.
type ChangeNotifier struct {
	publisher domain.ChangePublisher
	metrics   *metrics.MetricsManager
	log       logger.Logger
	now       func() time.Time
}

func NewChangeNotifier(publisher domain.ChangePublisher, m *metrics.MetricsManager, log logger.Logger) *ChangeNotifier {
	return &ChangeNotifier{
		publisher: publisher,
		metrics:   m,
		log:       log,
		now:       time.Now,
	}
}

func (n *ChangeNotifier) Publish(ctx context.Context, events ...*domain.ChangeEvent) {
	// The caller's request may already be gone; the commit it made is not.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	for _, event := range events {
		if event.Timestamp.IsZero() {
			event.Timestamp = n.now()
		}
		if err := n.publisher.PublishChange(ctx, event); err != nil {
			n.log.Error("Failed to publish change", "type", event.Type, "key", event.Key(),
				"version", event.Version, "error", err)
			n.metrics.ObserveDropped("publish_failed")
			continue
		}
		n.metrics.ObservePublished(string(event.Type))
		n.log.Debug("Published change", "type", event.Type, "key", event.Key(), "version", event.Version)
	}
}

func ItemChangedEvent(eventType domain.ChangeEventType, item *domain.Item) *domain.ChangeEvent {
	return &domain.ChangeEvent{
		Type:    eventType,
		ItemID:  item.ID,
		Version: item.Version,
		Item:    domain.NewItemSnapshot(item),
	}
}

func BalanceChangedEvent(bidder *domain.Bidder) *domain.ChangeEvent {
	balance := bidder.Balance
	return &domain.ChangeEvent{
		Type:     domain.EventBalanceChanged,
		BidderID: bidder.ID,
		Version:  bidder.Version,
		Balance:  &balance,
	}
}

func LikeChangedEvent(itemID string, count int64) *domain.ChangeEvent {
	return &domain.ChangeEvent{
		Type:      domain.EventLikeChanged,
		ItemID:    itemID,
		LikeCount: &count,
	}
}
