package mysql

import (
	"context"
	"fmt"

	"auction-storefront/internal/domain"

	"github.com/Masterminds/squirrel"
)

var bidColumns = []string{"id", "item_id", "bidder_id", "amount", "accepted_at", "accepted", "reject_kind"}

func (s *Store) insertBidQuery(bid *domain.Bid) (string, []interface{}, error) {
	return s.SqlBuilder.
		Insert("bids").
		Columns(bidColumns...).
		Values(bid.ID, bid.ItemID, bid.BidderID, bid.Amount, bid.AcceptedAt.UTC(), bid.Accepted, string(bid.RejectKind)).
		ToSql()
}

func appendBid(ctx context.Context, q execer, query string, args []interface{}, bidID string) error {
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateBid, bidID)
		}
		return fmt.Errorf("insert bid: %w", err)
	}
	return nil
}

func (s *Store) AppendBid(ctx context.Context, bid *domain.Bid) error {
	query, args, err := s.insertBidQuery(bid)
	if err != nil {
		return err
	}
	return appendBid(ctx, s.Database, query, args, bid.ID)
}

func (s *Store) acceptedBids(itemID string) squirrel.SelectBuilder {
	return s.SqlBuilder.
		Select(bidColumns...).
		From("bids").
		Where(squirrel.Eq{"item_id": itemID, "accepted": true})
}

// latestBidsQuery breaks acceptance-time ties by insertion order.
func (s *Store) latestBidsQuery(itemID string, limit int) (string, []interface{}, error) {
	return s.acceptedBids(itemID).
		OrderBy("accepted_at DESC", "seq DESC").
		Limit(uint64(limit)).
		ToSql()
}

func (s *Store) LatestBids(ctx context.Context, itemID string, limit int) ([]*domain.Bid, error) {
	if limit < 0 {
		limit = 0
	}
	query, args, err := s.latestBidsQuery(itemID, limit)
	if err != nil {
		return nil, err
	}
	return s.queryBids(ctx, query, args)
}

func (s *Store) BidHistory(ctx context.Context, itemID string) ([]*domain.Bid, error) {
	query, args, err := s.acceptedBids(itemID).OrderBy("accepted_at ASC", "seq ASC").ToSql()
	if err != nil {
		return nil, err
	}
	return s.queryBids(ctx, query, args)
}

func (s *Store) queryBids(ctx context.Context, query string, args []interface{}) ([]*domain.Bid, error) {
	rows, err := s.Database.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bids: %w", err)
	}
	defer rows.Close()

	bids := make([]*domain.Bid, 0)
	for rows.Next() {
		var bid domain.Bid
		var kind string
		if err := rows.Scan(&bid.ID, &bid.ItemID, &bid.BidderID, &bid.Amount,
			&bid.AcceptedAt, &bid.Accepted, &kind); err != nil {
			return nil, err
		}
		bid.RejectKind = domain.BidErrorKind(kind)
		bid.AcceptedAt = bid.AcceptedAt.UTC()
		bids = append(bids, &bid)
	}
	return bids, rows.Err()
}
