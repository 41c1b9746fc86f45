package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auction-storefront/internal/domain"
	"auction-storefront/pkg/logger"
	"auction-storefront/pkg/utils"

	"github.com/shopspring/decimal"
)

type CreateItemInput struct {
	Name          string
	Description   string
	ImageRef      string
	OwnerID       string
	DisplayOrder  int
	Mode          domain.AuctionMode
	Timed         bool
	StartingPrice decimal.Decimal
}

var errNoLongerExpired = errors.New("auction no longer expired")

// AuctionManager runs the operator side of an item's life: creation, the
// timed lifecycle and offline results. Every change goes through the
// arbiter's critical section so it is ordered with bids on the same item.
type AuctionManager struct {
	items           domain.ItemRepository
	bidders         domain.BidderRepository
	jobs            domain.SchedulerRepository
	arbiter         *BidArbiter
	defaultDuration time.Duration
	log             logger.Logger
	now             func() time.Time
}

func NewAuctionManager(
	items domain.ItemRepository,
	bidders domain.BidderRepository,
	jobs domain.SchedulerRepository,
	arbiter *BidArbiter,
	defaultDuration time.Duration,
	log logger.Logger,
) *AuctionManager {
	return &AuctionManager{
		items:           items,
		bidders:         bidders,
		jobs:            jobs,
		arbiter:         arbiter,
		defaultDuration: defaultDuration,
		log:             log,
		now:             time.Now,
	}
}

func (am *AuctionManager) CreateItem(ctx context.Context, in CreateItemInput) (*domain.Item, error) {
	if _, err := am.bidders.GetBidder(ctx, in.OwnerID); err != nil {
		return nil, fmt.Errorf("owner %s: %w", in.OwnerID, err)
	}

	now := am.now()
	item := &domain.Item{
		ID:           utils.GenerateID("item"),
		Name:         in.Name,
		Description:  in.Description,
		ImageRef:     in.ImageRef,
		OwnerID:      in.OwnerID,
		DisplayOrder: in.DisplayOrder,
		Mode:         in.Mode,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	switch in.Mode {
	case domain.ModeOnline:
		if in.StartingPrice.Sign() < 0 || !domain.HasMoneyScale(in.StartingPrice) {
			return nil, fmt.Errorf("%w: starting price %s", domain.ErrInvalidItem, in.StartingPrice.String())
		}
		status := domain.AuctionUpcoming
		if !in.Timed {
			status = domain.AuctionActive
		}
		item.Online = &domain.OnlineAuction{
			Timed:        in.Timed,
			Status:       status,
			CurrentPrice: in.StartingPrice,
		}
	case domain.ModeOffline:
		item.Offline = &domain.OfflineAuction{}
	}

	if err := am.items.CreateItem(ctx, item); err != nil {
		return nil, err
	}

	am.log.Info("Item created", "item_id", item.ID, "mode", item.Mode, "timed", in.Timed)
	return item, nil
}

func (am *AuctionManager) GetItem(ctx context.Context, itemID string) (*domain.Item, error) {
	return am.items.GetItem(ctx, itemID)
}

func (am *AuctionManager) ListItems(ctx context.Context) ([]*domain.Item, error) {
	return am.items.ListItems(ctx)
}

func (am *AuctionManager) Start(ctx context.Context, itemID string) (*domain.Item, error) {
	item, err := am.arbiter.UpdateItem(ctx, itemID, domain.EventItemUpdated, func(item *domain.Item, now time.Time) error {
		on, err := onlineState(item)
		if err != nil {
			return err
		}
		return on.Start(now, am.defaultDuration)
	})
	if err != nil {
		return nil, err
	}
	am.log.Info("Auction started", "item_id", itemID, "ends_at", item.Online.AuctionEndTime)
	return item, nil
}

func (am *AuctionManager) Pause(ctx context.Context, itemID string) (*domain.Item, error) {
	item, err := am.arbiter.UpdateItem(ctx, itemID, domain.EventItemUpdated, func(item *domain.Item, now time.Time) error {
		on, err := onlineState(item)
		if err != nil {
			return err
		}
		return on.Pause(now)
	})
	if err != nil {
		return nil, err
	}
	am.log.Info("Auction paused", "item_id", itemID, "remaining", item.Online.PausedRemaining)
	return item, nil
}

func (am *AuctionManager) Stop(ctx context.Context, itemID string) (*domain.Item, error) {
	item, err := am.arbiter.UpdateItem(ctx, itemID, domain.EventAuctionFinished, func(item *domain.Item, now time.Time) error {
		on, err := onlineState(item)
		if err != nil {
			return err
		}
		return on.Finish()
	})
	if err != nil {
		return nil, err
	}
	am.log.Info("Auction finished", "item_id", itemID, "price", item.Online.CurrentPrice.String())
	return item, nil
}

func (am *AuctionManager) Reopen(ctx context.Context, itemID string) (*domain.Item, error) {
	item, err := am.arbiter.UpdateItem(ctx, itemID, domain.EventItemUpdated, func(item *domain.Item, now time.Time) error {
		on, err := onlineState(item)
		if err != nil {
			return err
		}
		return on.Reopen()
	})
	if err != nil {
		return nil, err
	}
	am.log.Info("Auction reopened", "item_id", itemID)
	return item, nil
}

// ScheduleStart stores a start job the scheduler runs once at has passed.
func (am *AuctionManager) ScheduleStart(ctx context.Context, itemID string, at time.Time) (*domain.ScheduledJob, error) {
	item, err := am.items.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	on, err := onlineState(item)
	if err != nil {
		return nil, err
	}
	if !on.Timed {
		return nil, domain.ErrNotTimedAuction
	}

	job := &domain.ScheduledJob{
		ID:        utils.GenerateID("job"),
		ItemID:    itemID,
		JobType:   domain.JobStartAuction,
		RunAt:     at,
		Status:    domain.JobPending,
		CreatedAt: am.now(),
	}
	if err := am.jobs.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	am.log.Info("Auction start scheduled", "item_id", itemID, "job_id", job.ID, "run_at", at)
	return job, nil
}

func (am *AuctionManager) RecordOfflineResult(ctx context.Context, itemID, winnerID string, winnerBid decimal.Decimal) (*domain.Item, error) {
	if bidErr := domain.CheckAmount(winnerBid); bidErr != nil {
		return nil, bidErr
	}
	if _, err := am.bidders.GetBidder(ctx, winnerID); err != nil {
		return nil, fmt.Errorf("winner %s: %w", winnerID, err)
	}

	item, err := am.arbiter.UpdateItem(ctx, itemID, domain.EventItemUpdated, func(item *domain.Item, now time.Time) error {
		if item.Offline == nil {
			return domain.ErrNotOfflineAuction
		}
		if winnerID == item.OwnerID {
			return domain.ErrOwnerCannotWin
		}
		bid := winnerBid
		item.Offline.WinnerID = &winnerID
		item.Offline.WinnerBid = &bid
		return nil
	})
	if err != nil {
		return nil, err
	}
	am.log.Info("Offline result recorded", "item_id", itemID, "winner_id", winnerID)
	return item, nil
}

// FinishExpired finishes every active auction whose end time has passed and
// reports how many it finished.
func (am *AuctionManager) FinishExpired(ctx context.Context) (int, error) {
	expired, err := am.items.ListExpiredAuctions(ctx, am.now())
	if err != nil {
		return 0, err
	}

	finished := 0
	for _, candidate := range expired {
		_, err := am.arbiter.UpdateItem(ctx, candidate.ID, domain.EventAuctionFinished, func(item *domain.Item, now time.Time) error {
			// A late bid may have extended it since the listing.
			if item.Online == nil || !item.Online.Expired(now) {
				return errNoLongerExpired
			}
			return item.Online.Finish()
		})
		switch {
		case err == nil:
			finished++
			am.log.Info("Expired auction finished", "item_id", candidate.ID)
		case errors.Is(err, errNoLongerExpired):
		default:
			am.log.Error("Failed to finish expired auction", "item_id", candidate.ID, "error", err)
		}
	}
	return finished, nil
}

func onlineState(item *domain.Item) (*domain.OnlineAuction, error) {
	if item.Mode != domain.ModeOnline || item.Online == nil {
		return nil, domain.ErrNotOnlineAuction
	}
	return item.Online, nil
}
