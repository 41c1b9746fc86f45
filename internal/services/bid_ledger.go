package services

import (
	"context"
	"fmt"

	"auction-storefront/internal/domain"
	"auction-storefront/pkg/logger"
)

// BidLedger is the append-only record of bid outcomes.
type BidLedger struct {
	bids         domain.BidRepository
	defaultLimit int
	maxLimit     int
	log          logger.Logger
}

func NewBidLedger(bids domain.BidRepository, defaultLimit, maxLimit int, log logger.Logger) *BidLedger {
	return &BidLedger{
		bids:         bids,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
		log:          log,
	}
}

func (l *BidLedger) Record(ctx context.Context, bid *domain.Bid) error {
	if bid.ID == "" || bid.ItemID == "" || bid.BidderID == "" {
		return fmt.Errorf("bid id, item and bidder are required")
	}
	if err := l.bids.AppendBid(ctx, bid); err != nil {
		return fmt.Errorf("record bid %s: %w", bid.ID, err)
	}
	return nil
}

// Latest returns up to n accepted bids for the item, newest first.
// n <= 0 selects the default; values above the maximum are clamped.
func (l *BidLedger) Latest(ctx context.Context, itemID string, n int) ([]*domain.Bid, error) {
	bids, err := l.bids.LatestBids(ctx, itemID, l.clamp(n))
	if err != nil {
		return nil, fmt.Errorf("latest bids for %s: %w", itemID, err)
	}
	return bids, nil
}

// History returns every accepted bid for the item, oldest first.
func (l *BidLedger) History(ctx context.Context, itemID string) ([]*domain.Bid, error) {
	bids, err := l.bids.BidHistory(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("bid history for %s: %w", itemID, err)
	}
	return bids, nil
}

func (l *BidLedger) clamp(n int) int {
	if n <= 0 {
		return l.defaultLimit
	}
	if n > l.maxLimit {
		return l.maxLimit
	}
	return n
}
