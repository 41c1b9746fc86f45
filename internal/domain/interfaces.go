package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Repository interfaces
type ItemRepository interface {
	CreateItem(ctx context.Context, item *Item) error
	GetItem(ctx context.Context, itemID string) (*Item, error)
	ListItems(ctx context.Context) ([]*Item, error)
	ListExpiredAuctions(ctx context.Context, now time.Time) ([]*Item, error)
}

type BidderRepository interface {
	CreateBidder(ctx context.Context, bidder *Bidder) error
	GetBidder(ctx context.Context, bidderID string) (*Bidder, error)
	ListBidders(ctx context.Context) ([]*Bidder, error)
}

type BidRepository interface {
	AppendBid(ctx context.Context, bid *Bid) error
	// LatestBids returns accepted bids newest first.
	LatestBids(ctx context.Context, itemID string, limit int) ([]*Bid, error)
	// BidHistory returns accepted bids oldest first.
	BidHistory(ctx context.Context, itemID string) ([]*Bid, error)
}

// LikeRepository returns the item's like count after the call and whether a
// like row was actually inserted or removed.
type LikeRepository interface {
	AddLike(ctx context.Context, itemID, bidderID string) (int64, bool, error)
	RemoveLike(ctx context.Context, itemID, bidderID string) (int64, bool, error)
	HasLiked(ctx context.Context, itemID, bidderID string) (bool, error)
}

type SchedulerRepository interface {
	CreateJob(ctx context.Context, job *ScheduledJob) error
	GetPendingJobs(ctx context.Context, before time.Time) ([]*ScheduledJob, error)
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus) error
	CancelJobsForItem(ctx context.Context, itemID string) error
}

// ItemTx is a unit of work over one item. Reads through it hold the row until
// the transaction ends.
type ItemTx interface {
	LockItem(ctx context.Context, itemID string) (*Item, error)
	GetBidder(ctx context.Context, bidderID string) (*Bidder, error)
	// CompareAndSwapItem writes next only if the stored item still has
	// expectedVersion and, when expectedPrice is set, that current price.
	CompareAndSwapItem(ctx context.Context, expectedVersion int64, expectedPrice *decimal.Decimal, next *Item) (bool, error)
	AdjustBalance(ctx context.Context, bidderID string, delta decimal.Decimal) (*Bidder, error)
	AppendBid(ctx context.Context, bid *Bid) error
}

// ItemTxRunner commits when fn returns nil and rolls back otherwise.
type ItemTxRunner interface {
	WithItemTx(ctx context.Context, fn func(tx ItemTx) error) error
}

// Store is everything a storage driver provides.
type Store interface {
	ItemRepository
	BidderRepository
	BidRepository
	LikeRepository
	SchedulerRepository
	ItemTxRunner
	Close() error
}

// Event interfaces
type ChangePublisher interface {
	PublishChange(ctx context.Context, event *ChangeEvent) error
}

type ChangeSubscriber interface {
	// SubscribeToChanges blocks, feeding every received event to handler,
	// until ctx is done.
	SubscribeToChanges(ctx context.Context, handler ChangeHandler) error
}

type ChangeHandler func(event *ChangeEvent) error

// ChangeBroadcaster fans an event out to the observers subscribed to its key.
type ChangeBroadcaster interface {
	Broadcast(event *ChangeEvent)
}

// IdempotencyStore guards bid submissions against duplicate delivery.
// Claim returns claimed=true when the key was free. Otherwise stored holds the
// completed result, or is nil while the first submission is still in flight.
type IdempotencyStore interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, []byte, error)
	Complete(ctx context.Context, key string, result []byte, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// Leader election interface
type LeaderElection interface {
	BecomeLeader(ctx context.Context, instanceID string) (bool, error)
	IsLeader(ctx context.Context, instanceID string) (bool, error)
	ReleaseLeadership(ctx context.Context, instanceID string) error
}

// Scheduler interface
type AuctionScheduler interface {
	Start(ctx context.Context) error
	Stop() error
}
