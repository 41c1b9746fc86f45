package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type AuctionMode string

const (
	ModeOnline  AuctionMode = "online"
	ModeOffline AuctionMode = "offline"
)

type AuctionStatus int

const (
	AuctionUpcoming AuctionStatus = iota
	AuctionActive
	AuctionPaused
	AuctionFinished
)

func (s AuctionStatus) String() string {
	switch s {
	case AuctionUpcoming:
		return "upcoming"
	case AuctionActive:
		return "active"
	case AuctionPaused:
		return "paused"
	case AuctionFinished:
		return "finished"
	default:
		return "unknown"
	}
}

func ParseAuctionStatus(s string) (AuctionStatus, error) {
	switch s {
	case "upcoming":
		return AuctionUpcoming, nil
	case "active":
		return AuctionActive, nil
	case "paused":
		return AuctionPaused, nil
	case "finished":
		return AuctionFinished, nil
	default:
		return AuctionUpcoming, fmt.Errorf("unknown auction status %q", s)
	}
}

func (s AuctionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *AuctionStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseAuctionStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Item is an auctionable entity. Exactly one of Online or Offline is set,
// selected by Mode.
type Item struct {
	ID           string
	Name         string
	Description  string
	ImageRef     string
	OwnerID      string
	DisplayOrder int
	LikeCount    int64
	Mode         AuctionMode
	Online       *OnlineAuction
	Offline      *OfflineAuction
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OnlineAuction holds the live bidding state of an online item.
// ReservedAmount is the part of the highest bidder's balance held by this item.
type OnlineAuction struct {
	Timed           bool
	Status          AuctionStatus
	CurrentPrice    decimal.Decimal
	HighestBidderID *string
	AuctionEndTime  *time.Time
	PausedRemaining time.Duration
	ReservedAmount  decimal.Decimal
}

// OfflineAuction records the result of an auction resolved out-of-band.
type OfflineAuction struct {
	WinnerID  *string
	WinnerBid *decimal.Decimal
}

func (i *Item) Validate() error {
	if i.ID == "" || i.Name == "" || i.OwnerID == "" {
		return fmt.Errorf("%w: id, name and owner are required", ErrInvalidItem)
	}
	switch i.Mode {
	case ModeOnline:
		if i.Online == nil || i.Offline != nil {
			return fmt.Errorf("%w: online item must carry online state only", ErrInvalidItem)
		}
		if i.Online.CurrentPrice.Sign() < 0 {
			return fmt.Errorf("%w: price must not be negative", ErrInvalidItem)
		}
	case ModeOffline:
		if i.Offline == nil || i.Online != nil {
			return fmt.Errorf("%w: offline item must carry offline state only", ErrInvalidItem)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidItem, i.Mode)
	}
	return nil
}

func (i *Item) Clone() *Item {
	c := *i
	if i.Online != nil {
		on := *i.Online
		on.HighestBidderID = cloneString(i.Online.HighestBidderID)
		if i.Online.AuctionEndTime != nil {
			t := *i.Online.AuctionEndTime
			on.AuctionEndTime = &t
		}
		c.Online = &on
	}
	if i.Offline != nil {
		off := *i.Offline
		off.WinnerID = cloneString(i.Offline.WinnerID)
		if i.Offline.WinnerBid != nil {
			b := *i.Offline.WinnerBid
			off.WinnerBid = &b
		}
		c.Offline = &off
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// Bidder is a profile with a spendable balance.
type Bidder struct {
	ID          string          `json:"id"`
	DisplayName string          `json:"display_name"`
	Balance     decimal.Decimal `json:"balance"`
	IsAdmin     bool            `json:"is_admin"`
	Version     int64           `json:"version"`
}

// Bid is an immutable ledger entry describing one submission outcome.
type Bid struct {
	ID         string          `json:"id"`
	ItemID     string          `json:"item_id"`
	BidderID   string          `json:"bidder_id"`
	Amount     decimal.Decimal `json:"amount"`
	AcceptedAt time.Time       `json:"accepted_at"`
	Accepted   bool            `json:"accepted"`
	RejectKind BidErrorKind    `json:"reject_kind,omitempty"`
}

// BidRequest is a bidder's submission. ExpectedPrice, when set, is the price
// the bidder saw; the bid only commits if the item still carries that price.
type BidRequest struct {
	ItemID         string
	BidderID       string
	Amount         decimal.Decimal
	ExpectedPrice  *decimal.Decimal
	IdempotencyKey string
}

type BidResult struct {
	Accepted bool          `json:"accepted"`
	Bid      *Bid          `json:"bid,omitempty"`
	Item     *ItemSnapshot `json:"item,omitempty"`
	Err      *BidError     `json:"error,omitempty"`
	Replayed bool          `json:"replayed,omitempty"`
}

type ScheduledJob struct {
	ID        string
	ItemID    string
	JobType   JobType
	RunAt     time.Time
	Status    JobStatus
	CreatedAt time.Time
}

type JobType string

const (
	JobStartAuction  JobType = "start_auction"
	JobFinishAuction JobType = "finish_auction"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobExecuted  JobStatus = "executed"
	JobCancelled JobStatus = "cancelled"
)
