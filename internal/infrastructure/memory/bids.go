package memory

import (
	"context"
	"fmt"
	"sort"

	"auction-storefront/internal/domain"
)

func (s *Store) AppendBid(ctx context.Context, bid *domain.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bidIDs[bid.ID]; exists {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateBid, bid.ID)
	}
	s.appendBidLocked(*bid)
	return nil
}

func (s *Store) appendBidLocked(bid domain.Bid) {
	s.seq++
	s.bids = append(s.bids, bidRecord{seq: s.seq, bid: bid})
	s.bidIDs[bid.ID] = struct{}{}
}

// LatestBids orders by acceptance time, newest first, then by insertion order.
func (s *Store) LatestBids(ctx context.Context, itemID string, limit int) ([]*domain.Bid, error) {
	records := s.acceptedBids(itemID)
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.bid.AcceptedAt.Equal(b.bid.AcceptedAt) {
			return a.bid.AcceptedAt.After(b.bid.AcceptedAt)
		}
		return a.seq > b.seq
	})
	if limit >= 0 && len(records) > limit {
		records = records[:limit]
	}
	return toBids(records), nil
}

func (s *Store) BidHistory(ctx context.Context, itemID string) ([]*domain.Bid, error) {
	records := s.acceptedBids(itemID)
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.bid.AcceptedAt.Equal(b.bid.AcceptedAt) {
			return a.bid.AcceptedAt.Before(b.bid.AcceptedAt)
		}
		return a.seq < b.seq
	})
	return toBids(records), nil
}

func (s *Store) acceptedBids(itemID string) []bidRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []bidRecord
	for _, r := range s.bids {
		if r.bid.ItemID == itemID && r.bid.Accepted {
			records = append(records, r)
		}
	}
	return records
}

func toBids(records []bidRecord) []*domain.Bid {
	bids := make([]*domain.Bid, 0, len(records))
	for i := range records {
		b := records[i].bid
		bids = append(bids, &b)
	}
	return bids
}
