package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"auction-storefront/internal/domain"
	"auction-storefront/internal/infrastructure/memory"
	"auction-storefront/pkg/logger"
	"auction-storefront/pkg/metrics"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*domain.ChangeEvent
}

func (p *recordingPublisher) PublishChange(ctx context.Context, event *domain.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Events() []*domain.ChangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*domain.ChangeEvent, len(p.events))
	copy(out, p.events)
	return out
}

func (p *recordingPublisher) OfType(t domain.ChangeEventType) []*domain.ChangeEvent {
	var out []*domain.ChangeEvent
	for _, e := range p.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (p *recordingPublisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

// auditingStore records rejected entries written outside item transactions.
type auditingStore struct {
	*memory.Store
	mu      sync.Mutex
	audited []*domain.Bid
}

func (s *auditingStore) AppendBid(ctx context.Context, bid *domain.Bid) error {
	s.mu.Lock()
	s.audited = append(s.audited, bid)
	s.mu.Unlock()
	return s.Store.AppendBid(ctx, bid)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	store     *auditingStore
	publisher *recordingPublisher
	notifier  *ChangeNotifier
	ledger    *BidLedger
	arbiter   *BidArbiter
	manager   *AuctionManager
	idem      *memory.IdempotencyStore
	clock     *fakeClock
}

func defaultArbiterConfig() ArbiterConfig {
	return ArbiterConfig{
		BalanceAccounting: true,
		IdempotencyTTL:    time.Minute,
	}
}

func newHarness(t *testing.T, cfg ArbiterConfig) *harness {
	t.Helper()
	log := logger.NewNop()
	store := &auditingStore{Store: memory.NewStore()}
	publisher := &recordingPublisher{}
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}

	notifier := NewChangeNotifier(publisher, metrics.NewMetricsManager("test"), log)
	notifier.now = clock.Now
	ledger := NewBidLedger(store, 10, 100, log)
	idem := memory.NewIdempotencyStore()
	arbiter := NewBidArbiter(store, ledger, notifier, idem, metrics.NewMetricsManager("test"), cfg, log)
	arbiter.now = clock.Now
	manager := NewAuctionManager(store, store, store, arbiter, 3*time.Minute, log)
	manager.now = clock.Now

	ctx := context.Background()
	for _, id := range []string{"owner", "alice", "bob", "carol"} {
		require.NoError(t, store.CreateBidder(ctx, &domain.Bidder{ID: id, DisplayName: id, Balance: dec("1000")}))
	}

	return &harness{
		store:     store,
		publisher: publisher,
		notifier:  notifier,
		ledger:    ledger,
		arbiter:   arbiter,
		manager:   manager,
		idem:      idem,
		clock:     clock,
	}
}

// addItem stores an online item owned by "owner". Timed items start active
// with five minutes to go.
func (h *harness) addItem(t *testing.T, id, price string, timed bool) *domain.Item {
	t.Helper()
	item := &domain.Item{
		ID:      id,
		Name:    id,
		OwnerID: "owner",
		Mode:    domain.ModeOnline,
		Online: &domain.OnlineAuction{
			Timed:        timed,
			Status:       domain.AuctionActive,
			CurrentPrice: dec(price),
		},
		Version: 1,
	}
	if timed {
		end := h.clock.Now().Add(5 * time.Minute)
		item.Online.AuctionEndTime = &end
	}
	require.NoError(t, h.store.CreateItem(context.Background(), item))
	return item
}

func (h *harness) item(t *testing.T, id string) *domain.Item {
	t.Helper()
	item, err := h.store.GetItem(context.Background(), id)
	require.NoError(t, err)
	return item
}

func (h *harness) balance(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	b, err := h.store.GetBidder(context.Background(), id)
	require.NoError(t, err)
	return b.Balance
}

func (h *harness) bid(itemID, bidderID, amount string) *domain.BidResult {
	return h.arbiter.SubmitBid(context.Background(), domain.BidRequest{
		ItemID:   itemID,
		BidderID: bidderID,
		Amount:   dec(amount),
	})
}
