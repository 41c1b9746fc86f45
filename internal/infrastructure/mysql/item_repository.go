package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"auction-storefront/internal/domain"

	"github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"
)

var itemColumns = []string{
	"id", "name", "description", "image_ref", "owner_id", "display_order", "like_count", "mode",
	"timed", "status", "current_price", "highest_bidder_id", "auction_end_time", "paused_remaining_ms",
	"reserved_amount", "winner_id", "winner_bid", "version", "created_at", "updated_at",
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (*domain.Item, error) {
	var (
		item      domain.Item
		mode      string
		timed     bool
		status    sql.NullInt64
		price     decimal.NullDecimal
		highest   sql.NullString
		endTime   sql.NullTime
		pausedMs  int64
		reserved  decimal.Decimal
		winnerID  sql.NullString
		winnerBid decimal.NullDecimal
	)
	err := row.Scan(&item.ID, &item.Name, &item.Description, &item.ImageRef, &item.OwnerID,
		&item.DisplayOrder, &item.LikeCount, &mode, &timed, &status, &price, &highest, &endTime,
		&pausedMs, &reserved, &winnerID, &winnerBid, &item.Version, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}

	item.Mode = domain.AuctionMode(mode)
	switch item.Mode {
	case domain.ModeOnline:
		on := &domain.OnlineAuction{
			Timed:           timed,
			Status:          domain.AuctionStatus(status.Int64),
			CurrentPrice:    price.Decimal,
			PausedRemaining: time.Duration(pausedMs) * time.Millisecond,
			ReservedAmount:  reserved,
		}
		if highest.Valid {
			on.HighestBidderID = &highest.String
		}
		if endTime.Valid {
			end := endTime.Time.UTC()
			on.AuctionEndTime = &end
		}
		item.Online = on
	case domain.ModeOffline:
		off := &domain.OfflineAuction{}
		if winnerID.Valid {
			off.WinnerID = &winnerID.String
		}
		if winnerBid.Valid {
			off.WinnerBid = &winnerBid.Decimal
		}
		item.Offline = off
	}
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
	return &item, nil
}

// itemState maps every column a state change may write. like_count and
// created_at are never part of it.
func itemState(item *domain.Item) map[string]interface{} {
	state := map[string]interface{}{
		"name":                item.Name,
		"description":         item.Description,
		"image_ref":           item.ImageRef,
		"owner_id":            item.OwnerID,
		"display_order":       item.DisplayOrder,
		"timed":               false,
		"status":              nil,
		"current_price":       nil,
		"highest_bidder_id":   nil,
		"auction_end_time":    nil,
		"paused_remaining_ms": int64(0),
		"reserved_amount":     decimal.Zero,
		"winner_id":           nil,
		"winner_bid":          nil,
		"version":             item.Version,
		"updated_at":          item.UpdatedAt.UTC(),
	}
	if on := item.Online; on != nil {
		state["timed"] = on.Timed
		state["status"] = int(on.Status)
		state["current_price"] = on.CurrentPrice
		state["paused_remaining_ms"] = on.PausedRemaining.Milliseconds()
		state["reserved_amount"] = on.ReservedAmount
		if on.HighestBidderID != nil {
			state["highest_bidder_id"] = *on.HighestBidderID
		}
		if on.AuctionEndTime != nil {
			state["auction_end_time"] = on.AuctionEndTime.UTC()
		}
	}
	if off := item.Offline; off != nil {
		if off.WinnerID != nil {
			state["winner_id"] = *off.WinnerID
		}
		if off.WinnerBid != nil {
			state["winner_bid"] = *off.WinnerBid
		}
	}
	return state
}

func (s *Store) insertItemQuery(item *domain.Item) (string, []interface{}, error) {
	state := itemState(item)
	state["id"] = item.ID
	state["mode"] = string(item.Mode)
	state["like_count"] = item.LikeCount
	state["created_at"] = item.CreatedAt.UTC()
	return s.SqlBuilder.Insert("items").SetMap(state).ToSql()
}

func (s *Store) CreateItem(ctx context.Context, item *domain.Item) error {
	if err := item.Validate(); err != nil {
		return err
	}
	query, args, err := s.insertItemQuery(item)
	if err != nil {
		return err
	}
	if _, err := s.Database.ExecContext(ctx, query, args...); err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateItem, item.ID)
		}
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

func (s *Store) selectItems() squirrel.SelectBuilder {
	return s.SqlBuilder.Select(itemColumns...).From("items")
}

func getItem(ctx context.Context, q execer, builder squirrel.SelectBuilder, itemID string) (*domain.Item, error) {
	query, args, err := builder.Where(squirrel.Eq{"id": itemID}).ToSql()
	if err != nil {
		return nil, err
	}
	item, err := scanItem(q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrItemNotFound
		}
		return nil, fmt.Errorf("get item %s: %w", itemID, err)
	}
	return item, nil
}

func (s *Store) GetItem(ctx context.Context, itemID string) (*domain.Item, error) {
	return getItem(ctx, s.Database, s.selectItems(), itemID)
}

func (s *Store) ListItems(ctx context.Context) ([]*domain.Item, error) {
	query, args, err := s.selectItems().OrderBy("display_order ASC", "id ASC").ToSql()
	if err != nil {
		return nil, err
	}
	return s.queryItems(ctx, query, args)
}

func (s *Store) listExpiredQuery(now time.Time) (string, []interface{}, error) {
	return s.selectItems().
		Where(squirrel.Eq{"mode": string(domain.ModeOnline), "timed": true, "status": int(domain.AuctionActive)}).
		Where(squirrel.LtOrEq{"auction_end_time": now.UTC()}).
		OrderBy("id ASC").
		ToSql()
}

func (s *Store) ListExpiredAuctions(ctx context.Context, now time.Time) ([]*domain.Item, error) {
	query, args, err := s.listExpiredQuery(now)
	if err != nil {
		return nil, err
	}
	return s.queryItems(ctx, query, args)
}

func (s *Store) queryItems(ctx context.Context, query string, args []interface{}) ([]*domain.Item, error) {
	rows, err := s.Database.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []*domain.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
