package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"auction-storefront/internal/domain"
	"auction-storefront/pkg/logger"
	"auction-storefront/pkg/metrics"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ArbiterConfig struct {
	BalanceAccounting bool
	AuditRejected     bool
	// ExtensionWindow pushes the end of a timed auction out to now+window
	// when a bid lands inside the window. Zero disables it.
	ExtensionWindow time.Duration
	IdempotencyTTL  time.Duration
}

// errBidRejected aborts the item transaction after a precondition failed.
var errBidRejected = errors.New("bid rejected")

// BidArbiter decides bids. All bid and lifecycle writes to an item go through
// its per-item critical section: an in-process lock plus a store transaction
// that holds the item row.
type BidArbiter struct {
	store    domain.ItemTxRunner
	ledger   *BidLedger
	notifier *ChangeNotifier
	idem     domain.IdempotencyStore
	metrics  *metrics.MetricsManager
	locks    *itemLocks
	cfg      ArbiterConfig
	now      func() time.Time
	log      logger.Logger
}

func NewBidArbiter(
	store domain.ItemTxRunner,
	ledger *BidLedger,
	notifier *ChangeNotifier,
	idem domain.IdempotencyStore,
	m *metrics.MetricsManager,
	cfg ArbiterConfig,
	log logger.Logger,
) *BidArbiter {
	return &BidArbiter{
		store:    store,
		ledger:   ledger,
		notifier: notifier,
		idem:     idem,
		metrics:  m,
		locks:    newItemLocks(),
		cfg:      cfg,
		now:      time.Now,
		log:      log,
	}
}

// SubmitBid never returns a bare error; every failure is a typed rejection.
func (a *BidArbiter) SubmitBid(ctx context.Context, req domain.BidRequest) *domain.BidResult {
	if req.IdempotencyKey == "" || a.idem == nil {
		return a.decide(ctx, req)
	}

	key := fmt.Sprintf("bid:%s:%s", req.BidderID, req.IdempotencyKey)
	claimed, stored, err := a.idem.Claim(ctx, key, a.cfg.IdempotencyTTL)
	if err != nil {
		a.log.Error("Failed to claim idempotency key", "key", key, "error", err)
		return rejected(domain.NewBidError(domain.PersistenceUnavailable, "could not check for duplicate submission"), nil)
	}
	if !claimed {
		if stored == nil {
			return rejected(domain.NewBidError(domain.DuplicateSubmission,
				"a bid with idempotency key %q is still being processed", req.IdempotencyKey), nil)
		}
		var replay domain.BidResult
		if err := json.Unmarshal(stored, &replay); err != nil {
			a.log.Error("Stored bid result is unreadable", "key", key, "error", err)
			return rejected(domain.NewBidError(domain.PersistenceUnavailable, "could not read the earlier outcome"), nil)
		}
		replay.Replayed = true
		return &replay
	}

	result := a.decide(ctx, req)
	if result.Err != nil && result.Err.Retryable() {
		if err := a.idem.Release(ctx, key); err != nil {
			a.log.Warn("Failed to release idempotency key", "key", key, "error", err)
		}
		return result
	}
	payload, err := json.Marshal(result)
	if err == nil {
		err = a.idem.Complete(ctx, key, payload, a.cfg.IdempotencyTTL)
	}
	if err != nil {
		a.log.Warn("Failed to store bid outcome", "key", key, "error", err)
	}
	return result
}

func (a *BidArbiter) decide(ctx context.Context, req domain.BidRequest) *domain.BidResult {
	start := a.now()
	unlock := a.locks.lock(req.ItemID)
	defer unlock()

	var (
		bidErr   *domain.BidError
		observed *domain.Item
		next     *domain.Item
		bid      *domain.Bid
		moved    []*domain.Bidder
	)
	reject := func(e *domain.BidError) error {
		bidErr = e
		return errBidRejected
	}

	err := a.store.WithItemTx(ctx, func(tx domain.ItemTx) error {
		moved = nil
		now := a.now()

		item, err := tx.LockItem(ctx, req.ItemID)
		if errors.Is(err, domain.ErrItemNotFound) {
			return reject(domain.NewBidError(domain.ItemNotBiddable, "item %s does not exist", req.ItemID))
		}
		if err != nil {
			return err
		}
		observed = item

		if item.Mode != domain.ModeOnline || item.Online == nil {
			return reject(domain.NewBidError(domain.ItemNotBiddable, "item %s is sold offline", item.ID))
		}
		on := item.Online
		if reason := on.NotBiddableReason(now); reason != "" {
			return reject(domain.NewBidError(domain.ItemNotBiddable, "item %s: %s", item.ID, reason))
		}
		if e := domain.CheckAmount(req.Amount); e != nil {
			return reject(e)
		}
		if !req.Amount.GreaterThan(on.CurrentPrice) {
			return reject(domain.NewBidError(domain.BidTooLow, "bid %s must exceed the current price %s",
				req.Amount.StringFixed(domain.MoneyScale), on.CurrentPrice.StringFixed(domain.MoneyScale)).
				WithPrice(on.CurrentPrice))
		}

		bidder, err := tx.GetBidder(ctx, req.BidderID)
		if errors.Is(err, domain.ErrBidderNotFound) {
			return reject(domain.NewBidError(domain.UnknownBidder, "bidder %s does not exist", req.BidderID))
		}
		if err != nil {
			return err
		}
		holdsLead := on.HighestBidderID != nil && *on.HighestBidderID == bidder.ID
		if a.cfg.BalanceAccounting {
			available := bidder.Balance
			if holdsLead {
				available = available.Add(on.ReservedAmount)
			}
			if available.LessThan(req.Amount) {
				return reject(domain.NewBidError(domain.InsufficientBalance, "available balance %s is below the bid %s",
					available.StringFixed(domain.MoneyScale), req.Amount.StringFixed(domain.MoneyScale)))
			}
		}
		if bidder.ID == item.OwnerID {
			return reject(domain.NewBidError(domain.SelfBidForbidden, "the owner cannot bid on their own item"))
		}

		expected := on.CurrentPrice
		if req.ExpectedPrice != nil {
			expected = *req.ExpectedPrice
		}
		next = item.Clone()
		next.Online.CurrentPrice = req.Amount
		next.Online.HighestBidderID = &bidder.ID
		next.Version = item.Version + 1
		next.UpdatedAt = now
		if a.cfg.BalanceAccounting {
			next.Online.ReservedAmount = req.Amount
		}
		a.extendIfClosing(next.Online, now)

		swapped, err := tx.CompareAndSwapItem(ctx, item.Version, &expected, next)
		if err != nil {
			return err
		}
		if !swapped {
			return reject(domain.NewBidError(domain.ConcurrentConflict,
				"the price changed from %s before the bid could be placed", expected.StringFixed(domain.MoneyScale)).
				WithPrice(on.CurrentPrice))
		}

		if a.cfg.BalanceAccounting {
			if moved, err = a.moveReservation(ctx, tx, on, bidder.ID, req.Amount, holdsLead); err != nil {
				if errors.Is(err, domain.ErrInsufficientFunds) {
					return reject(domain.NewBidError(domain.InsufficientBalance, "balance is below the bid %s",
						req.Amount.StringFixed(domain.MoneyScale)))
				}
				return err
			}
		}

		bid = &domain.Bid{
			ID:         uuid.NewString(),
			ItemID:     item.ID,
			BidderID:   bidder.ID,
			Amount:     req.Amount,
			AcceptedAt: now,
			Accepted:   true,
		}
		return tx.AppendBid(ctx, bid)
	})

	var result *domain.BidResult
	switch {
	case err == nil:
		a.notifier.Publish(ctx, a.commitEvents(domain.EventItemUpdated, next, moved)...)
		result = &domain.BidResult{Accepted: true, Bid: bid, Item: domain.NewItemSnapshot(next)}
		a.log.Info("Bid accepted", "item_id", req.ItemID, "bidder_id", req.BidderID,
			"amount", req.Amount.String(), "version", next.Version)
	case errors.Is(err, errBidRejected):
		result = rejected(bidErr, observed)
		a.audit(ctx, req, bidErr)
		a.log.Info("Bid rejected", "item_id", req.ItemID, "bidder_id", req.BidderID,
			"amount", req.Amount.String(), "kind", bidErr.Kind, "reason", bidErr.Message)
	default:
		a.log.Error("Bid could not be decided", "item_id", req.ItemID, "bidder_id", req.BidderID, "error", err)
		result = rejected(domain.NewBidError(domain.PersistenceUnavailable, "the bid could not be recorded, try again"), nil)
	}

	outcome := "accepted"
	if result.Err != nil {
		outcome = string(result.Err.Kind)
	}
	a.metrics.ObserveBid(outcome, a.now().Sub(start))
	return result
}

// moveReservation holds amount against the new leader and releases whatever
// the previous leader had reserved on this item.
func (a *BidArbiter) moveReservation(ctx context.Context, tx domain.ItemTx, prev *domain.OnlineAuction,
	bidderID string, amount decimal.Decimal, holdsLead bool) ([]*domain.Bidder, error) {
	if holdsLead {
		b, err := tx.AdjustBalance(ctx, bidderID, prev.ReservedAmount.Sub(amount))
		if err != nil {
			return nil, err
		}
		return []*domain.Bidder{b}, nil
	}

	var moved []*domain.Bidder
	if prev.HighestBidderID != nil && prev.ReservedAmount.Sign() > 0 {
		refunded, err := tx.AdjustBalance(ctx, *prev.HighestBidderID, prev.ReservedAmount)
		if err != nil {
			return nil, err
		}
		moved = append(moved, refunded)
	}
	debited, err := tx.AdjustBalance(ctx, bidderID, amount.Neg())
	if err != nil {
		return nil, err
	}
	return append(moved, debited), nil
}

func (a *BidArbiter) extendIfClosing(on *domain.OnlineAuction, now time.Time) {
	if a.cfg.ExtensionWindow <= 0 || !on.Timed || on.AuctionEndTime == nil {
		return
	}
	if on.AuctionEndTime.Sub(now) <= a.cfg.ExtensionWindow {
		end := now.Add(a.cfg.ExtensionWindow)
		on.AuctionEndTime = &end
	}
}

func (a *BidArbiter) audit(ctx context.Context, req domain.BidRequest, bidErr *domain.BidError) {
	if !a.cfg.AuditRejected || a.ledger == nil || req.BidderID == "" || req.ItemID == "" {
		return
	}
	entry := &domain.Bid{
		ID:         uuid.NewString(),
		ItemID:     req.ItemID,
		BidderID:   req.BidderID,
		Amount:     req.Amount,
		AcceptedAt: a.now(),
		RejectKind: bidErr.Kind,
	}
	if err := a.ledger.Record(ctx, entry); err != nil {
		a.log.Warn("Failed to audit rejected bid", "item_id", req.ItemID, "error", err)
	}
}

// SetBidState overrides the price and highest bidder of an online item. The
// previous leader's reservation is refunded; the new one is not charged.
func (a *BidArbiter) SetBidState(ctx context.Context, itemID string, price decimal.Decimal, highestBidderID *string) (*domain.Item, error) {
	if price.Sign() < 0 || !domain.HasMoneyScale(price) {
		return nil, domain.NewBidError(domain.InvalidAmount, "price %s must be zero or positive with at most %d decimals",
			price.String(), domain.MoneyScale)
	}

	unlock := a.locks.lock(itemID)
	defer unlock()

	var (
		next  *domain.Item
		moved []*domain.Bidder
	)
	err := a.store.WithItemTx(ctx, func(tx domain.ItemTx) error {
		moved = nil
		item, err := tx.LockItem(ctx, itemID)
		if err != nil {
			return err
		}
		if item.Online == nil {
			return domain.ErrNotOnlineAuction
		}
		if highestBidderID != nil {
			if *highestBidderID == item.OwnerID {
				return domain.NewBidError(domain.SelfBidForbidden, "the owner cannot be the highest bidder")
			}
			if _, err := tx.GetBidder(ctx, *highestBidderID); err != nil {
				return err
			}
		}

		prev := item.Online
		next = item.Clone()
		next.Online.CurrentPrice = price
		next.Online.HighestBidderID = cloneID(highestBidderID)
		next.Online.ReservedAmount = decimal.Zero
		next.Version = item.Version + 1
		next.UpdatedAt = a.now()

		swapped, err := tx.CompareAndSwapItem(ctx, item.Version, nil, next)
		if err != nil {
			return err
		}
		if !swapped {
			return domain.ErrConcurrentUpdate
		}

		if a.cfg.BalanceAccounting && prev.HighestBidderID != nil && prev.ReservedAmount.Sign() > 0 {
			refunded, err := tx.AdjustBalance(ctx, *prev.HighestBidderID, prev.ReservedAmount)
			if err != nil {
				return err
			}
			moved = append(moved, refunded)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.notifier.Publish(ctx, a.commitEvents(domain.EventItemUpdated, next, moved)...)
	a.log.Info("Bid state overridden", "item_id", itemID, "price", price.String(), "version", next.Version)
	return next, nil
}

// UpdateItem applies mutate to the item inside the critical section, bumps
// its version and publishes eventType. A mutate error aborts without writing.
func (a *BidArbiter) UpdateItem(ctx context.Context, itemID string, eventType domain.ChangeEventType,
	mutate func(item *domain.Item, now time.Time) error) (*domain.Item, error) {
	unlock := a.locks.lock(itemID)
	defer unlock()

	var next *domain.Item
	err := a.store.WithItemTx(ctx, func(tx domain.ItemTx) error {
		item, err := tx.LockItem(ctx, itemID)
		if err != nil {
			return err
		}
		now := a.now()
		next = item.Clone()
		if err := mutate(next, now); err != nil {
			return err
		}
		next.Version = item.Version + 1
		next.UpdatedAt = now

		swapped, err := tx.CompareAndSwapItem(ctx, item.Version, nil, next)
		if err != nil {
			return err
		}
		if !swapped {
			return domain.ErrConcurrentUpdate
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.notifier.Publish(ctx, a.commitEvents(eventType, next, nil)...)
	return next, nil
}

func (a *BidArbiter) commitEvents(eventType domain.ChangeEventType, item *domain.Item, moved []*domain.Bidder) []*domain.ChangeEvent {
	events := []*domain.ChangeEvent{ItemChangedEvent(eventType, item)}
	for _, b := range moved {
		events = append(events, BalanceChangedEvent(b))
	}
	return events
}

func rejected(bidErr *domain.BidError, item *domain.Item) *domain.BidResult {
	return &domain.BidResult{Err: bidErr, Item: domain.NewItemSnapshot(item)}
}

func cloneID(id *string) *string {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
