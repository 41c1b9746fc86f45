package nats

import (
	"testing"

	"auction-storefront/internal/domain"
	"auction-storefront/pkg/logger"

	"github.com/stretchr/testify/assert"
)

func TestChangeSubject(t *testing.T) {
	tests := []struct {
		event    *domain.ChangeEvent
		expected string
	}{
		{&domain.ChangeEvent{Type: domain.EventItemUpdated, ItemID: "item-1"}, "item_changes.item-1"},
		{&domain.ChangeEvent{Type: domain.EventAuctionFinished, ItemID: "item-1"}, "item_changes.item-1"},
		{&domain.ChangeEvent{Type: domain.EventLikeChanged, ItemID: "item-2"}, "item_changes.item-2"},
		{&domain.ChangeEvent{Type: domain.EventBalanceChanged, BidderID: "alice"}, "bidder_changes.alice"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, ChangeSubject(tt.event))
	}
}

func TestNewChangeBusRequiresConnection(t *testing.T) {
	_, err := NewChangeBus(nil, logger.NewNop())
	assert.Error(t, err)
}
