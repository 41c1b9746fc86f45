package memory

import (
	"context"
	"fmt"

	"auction-storefront/internal/domain"

	"github.com/shopspring/decimal"
)

// itemTx stages writes and applies them only on commit.
type itemTx struct {
	s       *Store
	items   map[string]*domain.Item
	bidders map[string]*domain.Bidder
	bids    []domain.Bid
}

func (s *Store) WithItemTx(ctx context.Context, fn func(tx domain.ItemTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &itemTx{
		s:       s,
		items:   make(map[string]*domain.Item),
		bidders: make(map[string]*domain.Bidder),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (tx *itemTx) commit() {
	for id, item := range tx.items {
		tx.s.items[id] = item
	}
	for id, bidder := range tx.bidders {
		tx.s.bidders[id] = bidder
	}
	for _, bid := range tx.bids {
		tx.s.appendBidLocked(bid)
	}
}

func (tx *itemTx) item(itemID string) (*domain.Item, bool) {
	if item, ok := tx.items[itemID]; ok {
		return item, true
	}
	item, ok := tx.s.items[itemID]
	return item, ok
}

func (tx *itemTx) bidder(bidderID string) (*domain.Bidder, bool) {
	if b, ok := tx.bidders[bidderID]; ok {
		return b, true
	}
	b, ok := tx.s.bidders[bidderID]
	return b, ok
}

func (tx *itemTx) LockItem(ctx context.Context, itemID string) (*domain.Item, error) {
	item, ok := tx.item(itemID)
	if !ok {
		return nil, domain.ErrItemNotFound
	}
	return item.Clone(), nil
}

func (tx *itemTx) GetBidder(ctx context.Context, bidderID string) (*domain.Bidder, error) {
	b, ok := tx.bidder(bidderID)
	if !ok {
		return nil, domain.ErrBidderNotFound
	}
	c := *b
	return &c, nil
}

func (tx *itemTx) CompareAndSwapItem(ctx context.Context, expectedVersion int64, expectedPrice *decimal.Decimal, next *domain.Item) (bool, error) {
	current, ok := tx.item(next.ID)
	if !ok {
		return false, domain.ErrItemNotFound
	}
	if current.Version != expectedVersion {
		return false, nil
	}
	if expectedPrice != nil {
		if current.Online == nil || !current.Online.CurrentPrice.Equal(*expectedPrice) {
			return false, nil
		}
	}
	if err := next.Validate(); err != nil {
		return false, err
	}

	stored := next.Clone()
	// Like counts move independently of the auction state.
	stored.LikeCount = current.LikeCount
	stored.CreatedAt = current.CreatedAt
	tx.items[next.ID] = stored
	return true, nil
}

func (tx *itemTx) AdjustBalance(ctx context.Context, bidderID string, delta decimal.Decimal) (*domain.Bidder, error) {
	b, ok := tx.bidder(bidderID)
	if !ok {
		return nil, domain.ErrBidderNotFound
	}
	balance := b.Balance.Add(delta)
	if balance.Sign() < 0 {
		return nil, fmt.Errorf("%w: bidder %s", domain.ErrInsufficientFunds, bidderID)
	}
	c := *b
	c.Balance = balance
	c.Version++
	tx.bidders[bidderID] = &c

	out := c
	return &out, nil
}

func (tx *itemTx) AppendBid(ctx context.Context, bid *domain.Bid) error {
	if _, exists := tx.s.bidIDs[bid.ID]; exists {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateBid, bid.ID)
	}
	for _, staged := range tx.bids {
		if staged.ID == bid.ID {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateBid, bid.ID)
		}
	}
	tx.bids = append(tx.bids, *bid)
	return nil
}
