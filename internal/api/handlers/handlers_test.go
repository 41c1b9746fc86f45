package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"auction-storefront/internal/api/middleware"
	"auction-storefront/internal/domain"
	"auction-storefront/internal/infrastructure/memory"
	"auction-storefront/internal/infrastructure/websocket"
	"auction-storefront/internal/services"
	"auction-storefront/pkg/logger"
	"auction-storefront/pkg/metrics"

	"github.com/gorilla/mux"
	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminToken = "secret"

type testEnv struct {
	store   *memory.Store
	arbiter *services.BidArbiter
	manager *services.AuctionManager
	router  *mux.Router
	admin   *echo.Echo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logger.NewNop()
	m := metrics.NewMetricsManager("test")
	store := memory.NewStore()
	notifier := services.NewChangeNotifier(memory.NewChangeBus(log), m, log)
	ledger := services.NewBidLedger(store, 10, 100, log)
	arbiter := services.NewBidArbiter(store, ledger, notifier, memory.NewIdempotencyStore(), m,
		services.ArbiterConfig{BalanceAccounting: true, IdempotencyTTL: time.Minute}, log)
	manager := services.NewAuctionManager(store, store, store, arbiter, 3*time.Minute, log)
	likes := services.NewLikeService(store, notifier, log)
	profiles := services.NewProfileService(store, log)

	ctx := context.Background()
	for id, balance := range map[string]string{"owner": "1000", "alice": "100", "bob": "100"} {
		require.NoError(t, store.CreateBidder(ctx, &domain.Bidder{ID: id, DisplayName: id, Balance: decimal.RequireFromString(balance)}))
	}

	router := mux.NewRouter()
	router.Use(middleware.BidderIdentity)
	NewBiddingHandler(arbiter, ledger, manager, likes, profiles, log).RegisterRoutes(router)

	e := echo.New()
	g := e.Group("/api/v1/admin", middleware.AdminToken(adminToken))
	NewAdminHandler(manager, arbiter, profiles, log).RegisterRoutes(g)

	return &testEnv{store: store, arbiter: arbiter, manager: manager, router: router, admin: e}
}

func (env *testEnv) item(t *testing.T, price string) string {
	t.Helper()
	item, err := env.manager.CreateItem(context.Background(), services.CreateItemInput{
		Name:          "Teapot",
		OwnerID:       "owner",
		Mode:          domain.ModeOnline,
		StartingPrice: decimal.RequireFromString(price),
	})
	require.NoError(t, err)
	return item.ID
}

func (env *testEnv) do(method, path, bidder string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bidder != "" {
		req.Header.Set(middleware.HeaderBidderID, bidder)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) doAdmin(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(middleware.HeaderAdminToken, adminToken)
	rec := httptest.NewRecorder()
	env.admin.ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) domain.BidResult {
	t.Helper()
	var result domain.BidResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	return result
}

func TestPlaceBid(t *testing.T) {
	env := newTestEnv(t)
	itemID := env.item(t, "10")
	path := "/api/v1/items/" + itemID + "/bids"

	rec := env.do(http.MethodPost, path, "alice", map[string]string{"amount": "15.00"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	result := decodeResult(t, rec)
	assert.True(t, result.Accepted)
	require.NotNil(t, result.Item)
	assert.True(t, result.Item.CurrentPrice.Equal(decimal.RequireFromString("15")))

	rec = env.do(http.MethodPost, path, "bob", map[string]string{"amount": "12"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	result = decodeResult(t, rec)
	require.NotNil(t, result.Err)
	assert.Equal(t, domain.BidTooLow, result.Err.Kind)
	require.NotNil(t, result.Err.CurrentPrice)
	assert.True(t, result.Err.CurrentPrice.Equal(decimal.RequireFromString("15")))
}

func TestPlaceBidRejectionStatuses(t *testing.T) {
	env := newTestEnv(t)
	itemID := env.item(t, "10")
	path := "/api/v1/items/" + itemID + "/bids"

	tests := []struct {
		name   string
		path   string
		bidder string
		amount string
		status int
		kind   domain.BidErrorKind
	}{
		{"precision", path, "alice", "11.005", http.StatusBadRequest, domain.InvalidAmount},
		{"not a number", path, "alice", "ten", http.StatusBadRequest, domain.InvalidAmount},
		{"owner", path, "owner", "20", http.StatusForbidden, domain.SelfBidForbidden},
		{"balance", path, "bob", "500", http.StatusUnprocessableEntity, domain.InsufficientBalance},
		{"unknown bidder", path, "ghost", "20", http.StatusNotFound, domain.UnknownBidder},
		{"unknown item", "/api/v1/items/missing/bids", "alice", "20", http.StatusConflict, domain.ItemNotBiddable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, tc.path, tc.bidder, map[string]string{"amount": tc.amount})
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			result := decodeResult(t, rec)
			assert.False(t, result.Accepted)
			require.NotNil(t, result.Err)
			assert.Equal(t, tc.kind, result.Err.Kind)
		})
	}
}

func TestPlaceBidItemCheckedBeforeAmount(t *testing.T) {
	env := newTestEnv(t)
	itemID := env.item(t, "10")
	_, err := env.manager.Stop(context.Background(), itemID)
	require.NoError(t, err)

	for _, path := range []string{"/api/v1/items/missing/bids", "/api/v1/items/" + itemID + "/bids"} {
		for _, amount := range []string{"-5", "0", "11.005"} {
			rec := env.do(http.MethodPost, path, "alice", map[string]string{"amount": amount})
			assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
			result := decodeResult(t, rec)
			require.NotNil(t, result.Err)
			assert.Equal(t, domain.ItemNotBiddable, result.Err.Kind, "%s %s", path, amount)
		}
	}

	rec := env.do(http.MethodPost, "/api/v1/items/missing/bids", "alice", map[string]string{"amount": "ten"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.InvalidAmount, decodeResult(t, rec).Err.Kind)
}

func TestPlaceBidAcceptsNumericAmounts(t *testing.T) {
	env := newTestEnv(t)
	itemID := env.item(t, "10")
	path := "/api/v1/items/" + itemID + "/bids"

	rec := env.do(http.MethodPost, path, "alice", map[string]interface{}{"amount": 12, "expected_price": 10})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, decodeResult(t, rec).Item.CurrentPrice.Equal(decimal.RequireFromString("12")))

	rec = env.do(http.MethodPost, path, "bob", map[string]interface{}{"amount": -3})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.InvalidAmount, decodeResult(t, rec).Err.Kind)

	rec = env.do(http.MethodPost, path, "bob", map[string]interface{}{"amount": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	result := decodeResult(t, rec)
	require.NotNil(t, result.Err)
	assert.Equal(t, domain.InvalidAmount, result.Err.Kind)
}

func TestPlaceBidRacingBidsOnSamePrice(t *testing.T) {
	env := newTestEnv(t)
	itemID := env.item(t, "10")
	path := "/api/v1/items/" + itemID + "/bids"

	rec := env.do(http.MethodPost, path, "alice", map[string]string{"amount": "14", "expected_price": "10"})
	require.Equal(t, http.StatusCreated, rec.Code)

	// bob saw 10 too; the higher bid still loses because the price moved.
	rec = env.do(http.MethodPost, path, "bob", map[string]string{"amount": "15", "expected_price": "10"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	result := decodeResult(t, rec)
	require.NotNil(t, result.Err)
	assert.Equal(t, domain.ConcurrentConflict, result.Err.Kind)
	require.NotNil(t, result.Err.CurrentPrice)
	assert.True(t, result.Err.CurrentPrice.Equal(decimal.RequireFromString("14")))

	// Without expected_price it is judged against the price at processing time.
	rec = env.do(http.MethodPost, path, "bob", map[string]string{"amount": "15"})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestPlaceBidRequestValidation(t *testing.T) {
	env := newTestEnv(t)
	itemID := env.item(t, "10")
	path := "/api/v1/items/" + itemID + "/bids"

	rec := env.do(http.MethodPost, path, "", map[string]string{"amount": "15"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodPost, path, "alice", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "field amount is required")

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString("{"))
	req.Header.Set(middleware.HeaderBidderID, "alice")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPlaceBidExpectedPrice(t *testing.T) {
	env := newTestEnv(t)
	itemID := env.item(t, "10")
	path := "/api/v1/items/" + itemID + "/bids"

	rec := env.do(http.MethodPost, path, "alice", map[string]string{"amount": "20", "expected_price": "12"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, domain.ConcurrentConflict, decodeResult(t, rec).Err.Kind)

	rec = env.do(http.MethodPost, path, "alice", map[string]string{"amount": "20", "expected_price": "10"})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestPlaceBidIdempotencyKey(t *testing.T) {
	env := newTestEnv(t)
	itemID := env.item(t, "10")
	path := "/api/v1/items/" + itemID + "/bids"

	first := env.do(http.MethodPost, path, "alice", map[string]string{"amount": "20"}, middleware.HeaderIdempotencyKey, "k1")
	require.Equal(t, http.StatusCreated, first.Code)
	second := env.do(http.MethodPost, path, "alice", map[string]string{"amount": "20"}, middleware.HeaderIdempotencyKey, "k1")
	require.Equal(t, http.StatusCreated, second.Code)

	a, b := decodeResult(t, first), decodeResult(t, second)
	assert.False(t, a.Replayed)
	assert.True(t, b.Replayed)
	assert.Equal(t, a.Bid.ID, b.Bid.ID)

	// The body key is used when no header is sent.
	third := env.do(http.MethodPost, path, "alice", map[string]string{"amount": "20", "idempotency_key": "k1"})
	assert.True(t, decodeResult(t, third).Replayed)

	rec := env.do(http.MethodGet, path, "", nil)
	var bids []*domain.Bid
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bids))
	assert.Len(t, bids, 1)
}

func TestLatestBids(t *testing.T) {
	env := newTestEnv(t)
	itemID := env.item(t, "10")
	path := "/api/v1/items/" + itemID + "/bids"

	for i, amount := range []string{"11", "12", "13"} {
		bidder := "alice"
		if i%2 == 1 {
			bidder = "bob"
		}
		require.Equal(t, http.StatusCreated, env.do(http.MethodPost, path, bidder, map[string]string{"amount": amount}).Code)
	}

	rec := env.do(http.MethodGet, path+"?limit=2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var bids []*domain.Bid
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bids))
	require.Len(t, bids, 2)
	assert.True(t, bids[0].Amount.Equal(decimal.RequireFromString("13")), "newest first")

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, path+"?limit=x", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/v1/items/missing/bids", "", nil).Code)
}

func TestItemsAndProfile(t *testing.T) {
	env := newTestEnv(t)
	itemID := env.item(t, "10")

	rec := env.do(http.MethodGet, "/api/v1/items", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var items []*domain.ItemSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, itemID, items[0].ID)

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/v1/items/"+itemID, "", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/v1/items/missing", "", nil).Code)

	rec = env.do(http.MethodGet, "/api/v1/profile", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var bidder domain.Bidder
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bidder))
	assert.True(t, bidder.Balance.Equal(decimal.RequireFromString("100")))

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/api/v1/profile", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/v1/profile", "ghost", nil).Code)
}

func TestLikes(t *testing.T) {
	env := newTestEnv(t)
	itemID := env.item(t, "10")
	path := "/api/v1/items/" + itemID + "/like"

	var result services.LikeResult
	rec := env.do(http.MethodPut, path, "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.EqualValues(t, 1, result.LikeCount)

	env.do(http.MethodPut, path, "alice", nil)
	rec = env.do(http.MethodGet, path, "alice", nil)
	assert.JSONEq(t, `{"liked":true}`, rec.Body.String())

	rec = env.do(http.MethodDelete, path, "alice", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Liked)
	assert.EqualValues(t, 0, result.LikeCount)

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPut, path, "", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodPut, "/api/v1/items/missing/like", "alice", nil).Code)
}

func TestAdminRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/items", nil)
	rec := httptest.NewRecorder()
	env.admin.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing key")

	req.Header.Set(middleware.HeaderAdminToken, "wrong")
	rec = httptest.NewRecorder()
	env.admin.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminItemLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doAdmin(http.MethodPost, "/api/v1/admin/items", map[string]interface{}{
		"name": "Vase", "owner_id": "owner", "mode": "online", "timed": true, "starting_price": "50",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var item domain.ItemSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	require.NotNil(t, item.Status)
	assert.Equal(t, domain.AuctionUpcoming, *item.Status)

	base := "/api/v1/admin/items/" + item.ID
	rec = env.doAdmin(http.MethodPost, base+"/pause", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "cannot pause before start")

	for _, step := range []struct {
		op     string
		status domain.AuctionStatus
	}{
		{"start", domain.AuctionActive},
		{"pause", domain.AuctionPaused},
		{"start", domain.AuctionActive},
		{"stop", domain.AuctionFinished},
		{"reopen", domain.AuctionUpcoming},
	} {
		rec = env.doAdmin(http.MethodPost, base+"/"+step.op, nil)
		require.Equal(t, http.StatusOK, rec.Code, "%s: %s", step.op, rec.Body.String())
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
		assert.Equal(t, step.status, *item.Status, step.op)
	}

	rec = env.doAdmin(http.MethodPost, "/api/v1/admin/items/missing/start", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.doAdmin(http.MethodGet, "/api/v1/admin/items", nil)
	var items []*domain.ItemSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	assert.Len(t, items, 1)
}

func TestAdminCreateItemValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doAdmin(http.MethodPost, "/api/v1/admin/items", map[string]interface{}{"name": "Vase", "owner_id": "owner", "mode": "auction"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "field mode must be one of [online offline]")

	rec = env.doAdmin(http.MethodPost, "/api/v1/admin/items", map[string]interface{}{"name": "Vase", "owner_id": "ghost", "mode": "offline"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.doAdmin(http.MethodPost, "/api/v1/admin/items", map[string]interface{}{
		"name": "Vase", "owner_id": "owner", "mode": "online", "starting_price": "abc",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminScheduleStart(t *testing.T) {
	env := newTestEnv(t)
	item, err := env.manager.CreateItem(context.Background(), services.CreateItemInput{
		Name: "Clock", OwnerID: "owner", Mode: domain.ModeOnline, Timed: true,
	})
	require.NoError(t, err)

	at := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	rec := env.doAdmin(http.MethodPost, "/api/v1/admin/items/"+item.ID+"/schedule-start", map[string]interface{}{"at": at})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var job scheduledJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, domain.JobStartAuction, job.JobType)
	assert.True(t, job.RunAt.Equal(at))

	rec = env.doAdmin(http.MethodPost, "/api/v1/admin/items/"+item.ID+"/schedule-start", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "field at is required")

	untimed := env.item(t, "5")
	rec = env.doAdmin(http.MethodPost, "/api/v1/admin/items/"+untimed+"/schedule-start", map[string]interface{}{"at": at})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAdminBidStateAndOfflineResult(t *testing.T) {
	env := newTestEnv(t)
	itemID := env.item(t, "10")

	rec := env.doAdmin(http.MethodPut, "/api/v1/admin/items/"+itemID+"/bid-state",
		map[string]interface{}{"price": "42.50", "highest_bidder_id": "bob"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var item domain.ItemSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	assert.True(t, item.CurrentPrice.Equal(decimal.RequireFromString("42.5")))
	assert.Equal(t, "bob", *item.HighestBidderID)

	rec = env.doAdmin(http.MethodPut, "/api/v1/admin/items/"+itemID+"/bid-state",
		map[string]interface{}{"price": "1.001"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.doAdmin(http.MethodPut, "/api/v1/admin/items/"+itemID+"/bid-state",
		map[string]interface{}{"price": "50", "highest_bidder_id": "owner"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	offline, err := env.manager.CreateItem(context.Background(), services.CreateItemInput{
		Name: "Rug", OwnerID: "owner", Mode: domain.ModeOffline,
	})
	require.NoError(t, err)
	path := "/api/v1/admin/items/" + offline.ID + "/offline-result"

	rec = env.doAdmin(http.MethodPut, path, map[string]interface{}{"winner_id": "alice", "winner_bid": "75"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	assert.Equal(t, "alice", *item.WinnerID)

	rec = env.doAdmin(http.MethodPut, path, map[string]interface{}{"winner_id": "owner", "winner_bid": "75"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.doAdmin(http.MethodPut, "/api/v1/admin/items/"+itemID+"/offline-result",
		map[string]interface{}{"winner_id": "alice", "winner_bid": "75"})
	assert.Equal(t, http.StatusConflict, rec.Code, "online items take no offline result")
}

func TestAdminBidders(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doAdmin(http.MethodPost, "/api/v1/admin/bidders",
		map[string]interface{}{"id": "dave", "display_name": "Dave", "balance": "250.00"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.doAdmin(http.MethodPost, "/api/v1/admin/bidders",
		map[string]interface{}{"id": "dave", "display_name": "Dave"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.doAdmin(http.MethodPost, "/api/v1/admin/bidders",
		map[string]interface{}{"id": "erin", "display_name": "Erin", "balance": "-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.doAdmin(http.MethodPost, "/api/v1/admin/bidders", map[string]interface{}{"id": "frank"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "field display_name is required")

	rec = env.doAdmin(http.MethodGet, "/api/v1/admin/bidders", nil)
	var bidders []*domain.Bidder
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bidders))
	assert.Len(t, bidders, 4)
}

func TestErrorStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, errorStatus(domain.ErrItemNotFound))
	assert.Equal(t, http.StatusConflict, errorStatus(domain.ErrInvalidTransition))
	assert.Equal(t, http.StatusServiceUnavailable, errorStatus(domain.NewBidError(domain.PersistenceUnavailable, "down")))
	assert.Equal(t, http.StatusInternalServerError, errorStatus(context.DeadlineExceeded))
	assert.Equal(t, "internal error", publicReason(http.StatusInternalServerError, context.DeadlineExceeded))
}

type socketReply struct {
	Type    string            `json:"type"`
	Result  *domain.BidResult `json:"result"`
	Message string            `json:"message"`
}

func dialSocket(t *testing.T, srv *httptest.Server, query, bidder string) *gorillaws.Conn {
	t.Helper()
	header := http.Header{}
	if bidder != "" {
		header.Set(middleware.HeaderBidderID, bidder)
	}
	conn, _, err := gorillaws.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws?"+query, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readReply(t *testing.T, conn *gorillaws.Conn) socketReply {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var reply socketReply
	require.NoError(t, conn.ReadJSON(&reply))
	return reply
}

func TestWebSocketBidsOnlyAsGatewayIdentity(t *testing.T) {
	env := newTestEnv(t)
	itemID := env.item(t, "10")

	router := mux.NewRouter()
	router.Use(middleware.BidderIdentity)
	hub := websocket.NewConnectionManager(nil, logger.NewNop())
	router.HandleFunc("/ws", NewWebSocketHandlers(env.arbiter, hub, logger.NewNop()).HandleConnection)
	srv := httptest.NewServer(router)
	defer srv.Close()

	anon := dialSocket(t, srv, "item_id="+itemID+"&bidder_id=alice", "")
	assert.Equal(t, "connected", readReply(t, anon).Type)
	require.NoError(t, anon.WriteJSON(map[string]string{"type": "place_bid", "amount": "90"}))
	assert.Equal(t, "error", readReply(t, anon).Type)

	alice, err := env.store.GetBidder(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, alice.Balance.Equal(decimal.RequireFromString("100")), "balance untouched")

	bob := dialSocket(t, srv, "item_id="+itemID, "bob")
	readReply(t, bob)
	require.NoError(t, bob.WriteJSON(map[string]string{"type": "place_bid", "amount": "20"}))
	for {
		reply := readReply(t, bob)
		if reply.Type != "bid_result" {
			continue // change events for the watched item
		}
		require.NotNil(t, reply.Result)
		assert.True(t, reply.Result.Accepted)
		assert.Equal(t, "bob", reply.Result.Bid.BidderID)
		break
	}
}
