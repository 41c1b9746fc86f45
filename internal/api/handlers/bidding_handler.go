package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"auction-storefront/internal/api/middleware"
	"auction-storefront/internal/domain"
	"auction-storefront/internal/services"
	"auction-storefront/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

// placeBidRequest is the body of POST /items/{id}/bids.
//
// Without expected_price a bid is compared with the price current when it is
// processed, so two bids placed against the same price can both win in turn.
// Clients that want the later one rejected with ConcurrentConflict must send
// the price they saw as expected_price.
type placeBidRequest struct {
	Amount         wireAmount `json:"amount" validate:"required,max=32"`
	ExpectedPrice  wireAmount `json:"expected_price" validate:"omitempty,max=32"`
	IdempotencyKey string     `json:"idempotency_key" validate:"omitempty,max=128"`
}

// wireAmount takes an amount sent as a JSON string or a JSON number and keeps
// its literal text. Other JSON values are kept verbatim and fail to parse.
type wireAmount string

func (a *wireAmount) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	switch {
	case raw == "null":
		*a = ""
	case strings.HasPrefix(raw, `"`):
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = wireAmount(s)
	default:
		*a = wireAmount(raw)
	}
	return nil
}

// BiddingHandler serves the bidder-facing API.
type BiddingHandler struct {
	arbiter  *services.BidArbiter
	ledger   *services.BidLedger
	auctions *services.AuctionManager
	likes    *services.LikeService
	profiles *services.ProfileService
	validate *validator.Validate
	log      logger.Logger
}

func NewBiddingHandler(
	arbiter *services.BidArbiter,
	ledger *services.BidLedger,
	auctions *services.AuctionManager,
	likes *services.LikeService,
	profiles *services.ProfileService,
	log logger.Logger,
) *BiddingHandler {
	return &BiddingHandler{
		arbiter:  arbiter,
		ledger:   ledger,
		auctions: auctions,
		likes:    likes,
		profiles: profiles,
		validate: newValidator(),
		log:      log,
	}
}

func (h *BiddingHandler) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/items", h.ListItems).Methods(http.MethodGet)
	api.HandleFunc("/items/{id}", h.GetItem).Methods(http.MethodGet)
	api.HandleFunc("/items/{id}/bids", h.PlaceBid).Methods(http.MethodPost)
	api.HandleFunc("/items/{id}/bids", h.LatestBids).Methods(http.MethodGet)
	api.HandleFunc("/items/{id}/like", h.Like).Methods(http.MethodPut)
	api.HandleFunc("/items/{id}/like", h.Unlike).Methods(http.MethodDelete)
	api.HandleFunc("/items/{id}/like", h.LikeStatus).Methods(http.MethodGet)
	api.HandleFunc("/profile", h.Profile).Methods(http.MethodGet)
}

func (h *BiddingHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.auctions.ListItems(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	snapshots := make([]*domain.ItemSnapshot, 0, len(items))
	for _, item := range items {
		snapshots = append(snapshots, domain.NewItemSnapshot(item))
	}
	writeJSON(w, http.StatusOK, snapshots)
}

func (h *BiddingHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.auctions.GetItem(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.NewItemSnapshot(item))
}

func (h *BiddingHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	bidderID, ok := h.requireBidder(w, r)
	if !ok {
		return
	}

	var input placeBidRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(input); err != nil {
		writeError(w, http.StatusBadRequest, getAllErrorMessages(err))
		return
	}

	req := domain.BidRequest{
		ItemID:         mux.Vars(r)["id"],
		BidderID:       bidderID,
		IdempotencyKey: strings.TrimSpace(r.Header.Get(middleware.HeaderIdempotencyKey)),
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = input.IdempotencyKey
	}

	amount, bidErr := domain.ParseDecimal(string(input.Amount))
	if bidErr != nil {
		h.writeBidResult(w, &domain.BidResult{Err: bidErr})
		return
	}
	req.Amount = amount
	if input.ExpectedPrice != "" {
		expected, bidErr := domain.ParseDecimal(string(input.ExpectedPrice))
		if bidErr != nil {
			h.writeBidResult(w, &domain.BidResult{Err: bidErr})
			return
		}
		req.ExpectedPrice = &expected
	}

	h.writeBidResult(w, h.arbiter.SubmitBid(r.Context(), req))
}

func (h *BiddingHandler) writeBidResult(w http.ResponseWriter, result *domain.BidResult) {
	if result.Accepted {
		writeJSON(w, http.StatusCreated, result)
		return
	}
	if result.Err.Retryable() {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, bidStatus(result.Err.Kind), result)
}

func (h *BiddingHandler) LatestBids(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}
	itemID := mux.Vars(r)["id"]
	if _, err := h.auctions.GetItem(r.Context(), itemID); err != nil {
		h.fail(w, err)
		return
	}
	bids, err := h.ledger.Latest(r.Context(), itemID, limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	if bids == nil {
		bids = []*domain.Bid{}
	}
	writeJSON(w, http.StatusOK, bids)
}

func (h *BiddingHandler) Like(w http.ResponseWriter, r *http.Request) {
	bidderID, ok := h.requireBidder(w, r)
	if !ok {
		return
	}
	result, err := h.likes.Like(r.Context(), mux.Vars(r)["id"], bidderID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *BiddingHandler) Unlike(w http.ResponseWriter, r *http.Request) {
	bidderID, ok := h.requireBidder(w, r)
	if !ok {
		return
	}
	result, err := h.likes.Unlike(r.Context(), mux.Vars(r)["id"], bidderID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *BiddingHandler) LikeStatus(w http.ResponseWriter, r *http.Request) {
	bidderID, ok := h.requireBidder(w, r)
	if !ok {
		return
	}
	liked, err := h.likes.HasLiked(r.Context(), mux.Vars(r)["id"], bidderID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"liked": liked})
}

func (h *BiddingHandler) Profile(w http.ResponseWriter, r *http.Request) {
	bidderID, ok := h.requireBidder(w, r)
	if !ok {
		return
	}
	bidder, err := h.profiles.Get(r.Context(), bidderID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bidder)
}

func (h *BiddingHandler) requireBidder(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := middleware.BidderID(r.Context())
	if id == "" {
		writeError(w, http.StatusUnauthorized, middleware.HeaderBidderID+" header is required")
		return "", false
	}
	return id, true
}

func (h *BiddingHandler) fail(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		h.log.Error("Request failed", "error", err)
	}
	writeError(w, status, publicReason(status, err))
}
