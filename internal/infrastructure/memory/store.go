package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"auction-storefront/internal/domain"
)

type likeKey struct {
	itemID   string
	bidderID string
}

type bidRecord struct {
	seq int64
	bid domain.Bid
}

// Store keeps every table in process memory. One mutex guards all of it, so a
// transaction holds the whole store until it commits or rolls back.
type Store struct {
	mu      sync.Mutex
	items   map[string]*domain.Item
	bidders map[string]*domain.Bidder
	bids    []bidRecord
	bidIDs  map[string]struct{}
	likes   map[likeKey]struct{}
	jobs    map[string]*domain.ScheduledJob
	seq     int64
}

func NewStore() *Store {
	return &Store{
		items:   make(map[string]*domain.Item),
		bidders: make(map[string]*domain.Bidder),
		bidIDs:  make(map[string]struct{}),
		likes:   make(map[likeKey]struct{}),
		jobs:    make(map[string]*domain.ScheduledJob),
	}
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) CreateItem(ctx context.Context, item *domain.Item) error {
	if err := item.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[item.ID]; exists {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateItem, item.ID)
	}
	s.items[item.ID] = item.Clone()
	return nil
}

func (s *Store) GetItem(ctx context.Context, itemID string) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[itemID]
	if !ok {
		return nil, domain.ErrItemNotFound
	}
	return item.Clone(), nil
}

// ListItems returns items in display order.
func (s *Store) ListItems(ctx context.Context) ([]*domain.Item, error) {
	s.mu.Lock()
	items := make([]*domain.Item, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, item.Clone())
	}
	s.mu.Unlock()

	sort.Slice(items, func(i, j int) bool {
		if items[i].DisplayOrder != items[j].DisplayOrder {
			return items[i].DisplayOrder < items[j].DisplayOrder
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (s *Store) ListExpiredAuctions(ctx context.Context, now time.Time) ([]*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []*domain.Item
	for _, item := range s.items {
		if item.Online != nil && item.Online.Expired(now) {
			expired = append(expired, item.Clone())
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ID < expired[j].ID })
	return expired, nil
}

func (s *Store) CreateBidder(ctx context.Context, bidder *domain.Bidder) error {
	if bidder.ID == "" {
		return fmt.Errorf("bidder id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bidders[bidder.ID]; exists {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateBidder, bidder.ID)
	}
	c := *bidder
	s.bidders[bidder.ID] = &c
	return nil
}

func (s *Store) GetBidder(ctx context.Context, bidderID string) (*domain.Bidder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bidder, ok := s.bidders[bidderID]
	if !ok {
		return nil, domain.ErrBidderNotFound
	}
	c := *bidder
	return &c, nil
}

func (s *Store) ListBidders(ctx context.Context) ([]*domain.Bidder, error) {
	s.mu.Lock()
	bidders := make([]*domain.Bidder, 0, len(s.bidders))
	for _, b := range s.bidders {
		c := *b
		bidders = append(bidders, &c)
	}
	s.mu.Unlock()

	sort.Slice(bidders, func(i, j int) bool { return bidders[i].ID < bidders[j].ID })
	return bidders, nil
}
