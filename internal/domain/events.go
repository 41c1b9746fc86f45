package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ChangeEventType string

const (
	EventItemUpdated     ChangeEventType = "item_updated"
	EventAuctionFinished ChangeEventType = "auction_finished"
	EventLikeChanged     ChangeEventType = "like_changed"
	EventBalanceChanged  ChangeEventType = "balance_changed"
)

// ChangeEvent is the envelope pushed to observers after a commit. Version is
// the item (or bidder) version the event was produced from.
type ChangeEvent struct {
	Type      ChangeEventType  `json:"type"`
	ItemID    string           `json:"item_id,omitempty"`
	BidderID  string           `json:"bidder_id,omitempty"`
	Version   int64            `json:"version"`
	Item      *ItemSnapshot    `json:"item,omitempty"`
	Balance   *decimal.Decimal `json:"balance,omitempty"`
	LikeCount *int64           `json:"like_count,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

func ItemKey(itemID string) string {
	return "item:" + itemID
}

func BidderKey(bidderID string) string {
	return "bidder:" + bidderID
}

// Key is the subscription key the event is delivered under.
func (e *ChangeEvent) Key() string {
	if e.Type == EventBalanceChanged {
		return BidderKey(e.BidderID)
	}
	return ItemKey(e.ItemID)
}

// Ordered reports whether the event carries a version observers must not go
// back on. Like counts are eventually consistent and carry none.
func (e *ChangeEvent) Ordered() bool {
	return e.Type != EventLikeChanged
}

// ItemSnapshot is the wire view of an item.
type ItemSnapshot struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Description     string           `json:"description"`
	ImageRef        string           `json:"image_ref"`
	OwnerID         string           `json:"owner_id"`
	DisplayOrder    int              `json:"display_order"`
	LikeCount       int64            `json:"like_count"`
	Mode            AuctionMode      `json:"mode"`
	Version         int64            `json:"version"`
	Timed           bool             `json:"timed,omitempty"`
	Status          *AuctionStatus   `json:"status,omitempty"`
	CurrentPrice    *decimal.Decimal `json:"current_price,omitempty"`
	HighestBidderID *string          `json:"highest_bidder_id,omitempty"`
	AuctionEndTime  *time.Time       `json:"auction_end_time,omitempty"`
	WinnerID        *string          `json:"winner_id,omitempty"`
	WinnerBid       *decimal.Decimal `json:"winner_bid,omitempty"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

func NewItemSnapshot(item *Item) *ItemSnapshot {
	if item == nil {
		return nil
	}
	c := item.Clone()
	snap := &ItemSnapshot{
		ID:           c.ID,
		Name:         c.Name,
		Description:  c.Description,
		ImageRef:     c.ImageRef,
		OwnerID:      c.OwnerID,
		DisplayOrder: c.DisplayOrder,
		LikeCount:    c.LikeCount,
		Mode:         c.Mode,
		Version:      c.Version,
		UpdatedAt:    c.UpdatedAt,
	}
	if on := c.Online; on != nil {
		status := on.Status
		price := on.CurrentPrice
		snap.Timed = on.Timed
		snap.Status = &status
		snap.CurrentPrice = &price
		snap.HighestBidderID = on.HighestBidderID
		snap.AuctionEndTime = on.AuctionEndTime
	}
	if off := c.Offline; off != nil {
		snap.WinnerID = off.WinnerID
		snap.WinnerBid = off.WinnerBid
	}
	return snap
}
