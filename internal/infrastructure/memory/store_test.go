package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"auction-storefront/internal/domain"
	"auction-storefront/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func onlineItem(id string, price string) *domain.Item {
	return &domain.Item{
		ID:      id,
		Name:    "Item " + id,
		OwnerID: "owner",
		Mode:    domain.ModeOnline,
		Online: &domain.OnlineAuction{
			CurrentPrice: decimal.RequireFromString(price),
		},
		Version: 1,
	}
}

func seed(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.CreateItem(ctx, onlineItem("item-1", "100")))
	require.NoError(t, s.CreateBidder(ctx, &domain.Bidder{ID: "alice", Balance: decimal.NewFromInt(500)}))
	require.NoError(t, s.CreateBidder(ctx, &domain.Bidder{ID: "bob", Balance: decimal.NewFromInt(50)}))
	return s
}

func TestCreateItemRejectsDuplicatesAndInvalid(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	err := s.CreateItem(ctx, onlineItem("item-1", "5"))
	assert.ErrorIs(t, err, domain.ErrDuplicateItem)

	bad := onlineItem("item-2", "5")
	bad.Offline = &domain.OfflineAuction{}
	assert.ErrorIs(t, s.CreateItem(ctx, bad), domain.ErrInvalidItem)

	_, err = s.GetItem(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrItemNotFound)
}

func TestGetItemReturnsCopy(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	item, err := s.GetItem(ctx, "item-1")
	require.NoError(t, err)
	item.Online.CurrentPrice = decimal.NewFromInt(1)

	again, err := s.GetItem(ctx, "item-1")
	require.NoError(t, err)
	assert.True(t, again.Online.CurrentPrice.Equal(decimal.NewFromInt(100)))
}

func TestListItemsInDisplayOrder(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	for i, id := range []string{"c", "a", "b"} {
		item := onlineItem(id, "1")
		item.DisplayOrder = 3 - i
		require.NoError(t, s.CreateItem(ctx, item))
	}

	items, err := s.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"b", "a", "c"}, []string{items[0].ID, items[1].ID, items[2].ID})
}

func TestWithItemTxCommitsAllOrNothing(t *testing.T) {
	s := seed(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithItemTx(ctx, func(tx domain.ItemTx) error {
		item, err := tx.LockItem(ctx, "item-1")
		require.NoError(t, err)
		next := item.Clone()
		next.Online.CurrentPrice = decimal.NewFromInt(200)
		next.Version++
		ok, err := tx.CompareAndSwapItem(ctx, item.Version, nil, next)
		require.NoError(t, err)
		require.True(t, ok)
		_, err = tx.AdjustBalance(ctx, "alice", decimal.NewFromInt(-200))
		require.NoError(t, err)
		require.NoError(t, tx.AppendBid(ctx, &domain.Bid{ID: "b1", ItemID: "item-1", BidderID: "alice", Accepted: true}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	item, _ := s.GetItem(ctx, "item-1")
	assert.True(t, item.Online.CurrentPrice.Equal(decimal.NewFromInt(100)))
	alice, _ := s.GetBidder(ctx, "alice")
	assert.True(t, alice.Balance.Equal(decimal.NewFromInt(500)))
	bids, _ := s.LatestBids(ctx, "item-1", 10)
	assert.Empty(t, bids)

	err = s.WithItemTx(ctx, func(tx domain.ItemTx) error {
		item, err := tx.LockItem(ctx, "item-1")
		require.NoError(t, err)
		next := item.Clone()
		next.Online.CurrentPrice = decimal.NewFromInt(200)
		next.Version++
		_, err = tx.CompareAndSwapItem(ctx, item.Version, nil, next)
		require.NoError(t, err)
		_, err = tx.AdjustBalance(ctx, "alice", decimal.NewFromInt(-200))
		require.NoError(t, err)
		return tx.AppendBid(ctx, &domain.Bid{ID: "b1", ItemID: "item-1", BidderID: "alice", Accepted: true})
	})
	require.NoError(t, err)

	item, _ = s.GetItem(ctx, "item-1")
	assert.True(t, item.Online.CurrentPrice.Equal(decimal.NewFromInt(200)))
	assert.EqualValues(t, 2, item.Version)
	alice, _ = s.GetBidder(ctx, "alice")
	assert.True(t, alice.Balance.Equal(decimal.NewFromInt(300)))
	assert.EqualValues(t, 1, alice.Version)
}

func TestCompareAndSwapItemConditions(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	_ = s.WithItemTx(ctx, func(tx domain.ItemTx) error {
		item, _ := tx.LockItem(ctx, "item-1")
		next := item.Clone()
		next.Version++

		ok, err := tx.CompareAndSwapItem(ctx, item.Version+1, nil, next)
		require.NoError(t, err)
		assert.False(t, ok, "stale version")

		wrong := decimal.NewFromInt(99)
		ok, err = tx.CompareAndSwapItem(ctx, item.Version, &wrong, next)
		require.NoError(t, err)
		assert.False(t, ok, "stale price")

		right := decimal.NewFromInt(100)
		ok, err = tx.CompareAndSwapItem(ctx, item.Version, &right, next)
		require.NoError(t, err)
		assert.True(t, ok)
		return nil
	})
}

func TestCompareAndSwapKeepsLikeCount(t *testing.T) {
	s := seed(t)
	ctx := context.Background()
	_, _, err := s.AddLike(ctx, "item-1", "alice")
	require.NoError(t, err)

	require.NoError(t, s.WithItemTx(ctx, func(tx domain.ItemTx) error {
		item, _ := tx.LockItem(ctx, "item-1")
		next := item.Clone()
		next.LikeCount = 0
		next.Version++
		_, err := tx.CompareAndSwapItem(ctx, item.Version, nil, next)
		return err
	}))

	item, _ := s.GetItem(ctx, "item-1")
	assert.EqualValues(t, 1, item.LikeCount)
}

func TestAdjustBalanceRejectsOverdraft(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	err := s.WithItemTx(ctx, func(tx domain.ItemTx) error {
		_, err := tx.AdjustBalance(ctx, "bob", decimal.NewFromInt(-51))
		return err
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	err = s.WithItemTx(ctx, func(tx domain.ItemTx) error {
		_, err := tx.AdjustBalance(ctx, "nobody", decimal.NewFromInt(1))
		return err
	})
	assert.ErrorIs(t, err, domain.ErrBidderNotFound)
}

func TestLatestBidsOrdering(t *testing.T) {
	s := seed(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.AppendBid(ctx, &domain.Bid{ID: "1", ItemID: "item-1", AcceptedAt: base, Accepted: true}))
	require.NoError(t, s.AppendBid(ctx, &domain.Bid{ID: "2", ItemID: "item-1", AcceptedAt: base, Accepted: true}))
	require.NoError(t, s.AppendBid(ctx, &domain.Bid{ID: "3", ItemID: "item-1", AcceptedAt: base.Add(time.Second), Accepted: true}))
	require.NoError(t, s.AppendBid(ctx, &domain.Bid{ID: "rejected", ItemID: "item-1", AcceptedAt: base.Add(time.Hour)}))
	require.NoError(t, s.AppendBid(ctx, &domain.Bid{ID: "other", ItemID: "item-2", AcceptedAt: base, Accepted: true}))

	latest, err := s.LatestBids(ctx, "item-1", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "2", "1"}, bidIDs(latest))

	latest, err = s.LatestBids(ctx, "item-1", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "2"}, bidIDs(latest))

	history, err := s.BidHistory(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, bidIDs(history))

	err = s.AppendBid(ctx, &domain.Bid{ID: "1", ItemID: "item-1"})
	assert.ErrorIs(t, err, domain.ErrDuplicateBid)
}

func bidIDs(bids []*domain.Bid) []string {
	ids := make([]string, 0, len(bids))
	for _, b := range bids {
		ids = append(ids, b.ID)
	}
	return ids
}

func TestLikesAreIdempotent(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	count, changed, err := s.AddLike(ctx, "item-1", "alice")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.EqualValues(t, 1, count)

	count, changed, err = s.AddLike(ctx, "item-1", "alice")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.EqualValues(t, 1, count)

	liked, err := s.HasLiked(ctx, "item-1", "alice")
	require.NoError(t, err)
	assert.True(t, liked)

	count, changed, err = s.RemoveLike(ctx, "item-1", "alice")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.EqualValues(t, 0, count)

	count, changed, err = s.RemoveLike(ctx, "item-1", "alice")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.EqualValues(t, 0, count)

	_, _, err = s.AddLike(ctx, "item-1", "nobody")
	assert.ErrorIs(t, err, domain.ErrBidderNotFound)
}

func TestJobs(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.CreateJob(ctx, &domain.ScheduledJob{ID: "late", ItemID: "a", RunAt: now.Add(-time.Second), Status: domain.JobPending}))
	require.NoError(t, s.CreateJob(ctx, &domain.ScheduledJob{ID: "early", ItemID: "a", RunAt: now.Add(-time.Minute), Status: domain.JobPending}))
	require.NoError(t, s.CreateJob(ctx, &domain.ScheduledJob{ID: "future", ItemID: "b", RunAt: now.Add(time.Hour), Status: domain.JobPending}))

	jobs, err := s.GetPendingJobs(ctx, now)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "early", jobs[0].ID)

	require.NoError(t, s.UpdateJobStatus(ctx, "early", domain.JobExecuted))
	require.NoError(t, s.CancelJobsForItem(ctx, "a"))
	jobs, err = s.GetPendingJobs(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "future", jobs[0].ID)

	assert.ErrorIs(t, s.UpdateJobStatus(ctx, "missing", domain.JobExecuted), domain.ErrJobNotFound)
}

func TestIdempotencyStore(t *testing.T) {
	s := NewIdempotencyStore()
	now := time.Now()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	claimed, stored, err := s.Claim(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Nil(t, stored)

	claimed, stored, err = s.Claim(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Nil(t, stored, "in flight")

	require.NoError(t, s.Complete(ctx, "k", []byte(`{"accepted":true}`), time.Minute))
	claimed, stored, err = s.Claim(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.JSONEq(t, `{"accepted":true}`, string(stored))

	now = now.Add(2 * time.Minute)
	claimed, _, err = s.Claim(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed, "expired")

	require.NoError(t, s.Release(ctx, "k"))
	claimed, _, err = s.Claim(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestChangeBusDeliversToSubscribers(t *testing.T) {
	bus := NewChangeBus(logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *domain.ChangeEvent, 4)
	done := make(chan error, 1)
	go func() {
		done <- bus.SubscribeToChanges(ctx, func(e *domain.ChangeEvent) error {
			received <- e
			return nil
		})
	}()

	require.Eventually(t, func() bool {
		bus.mu.RLock()
		defer bus.mu.RUnlock()
		return len(bus.subscribers) == 1
	}, time.Second, 5*time.Millisecond)

	for v := int64(1); v <= 3; v++ {
		require.NoError(t, bus.PublishChange(ctx, &domain.ChangeEvent{Type: domain.EventItemUpdated, ItemID: "item-1", Version: v}))
	}
	for v := int64(1); v <= 3; v++ {
		select {
		case e := <-received:
			assert.Equal(t, v, e.Version)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
