package handlers

import (
	"context"
	"net/http"
	"time"

	"auction-storefront/internal/domain"
	"auction-storefront/internal/services"
	"auction-storefront/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type createItemRequest struct {
	Name          string `json:"name" validate:"required,max=200"`
	Description   string `json:"description" validate:"max=2000"`
	ImageRef      string `json:"image_ref" validate:"max=500"`
	OwnerID       string `json:"owner_id" validate:"required,max=64"`
	DisplayOrder  int    `json:"display_order" validate:"gte=0"`
	Mode          string `json:"mode" validate:"required,oneof=online offline"`
	Timed         bool   `json:"timed"`
	StartingPrice string `json:"starting_price" validate:"max=32"`
}

type scheduleStartRequest struct {
	At time.Time `json:"at" validate:"required"`
}

type bidStateRequest struct {
	Price           string  `json:"price" validate:"required,max=32"`
	HighestBidderID *string `json:"highest_bidder_id" validate:"omitempty,max=64"`
}

type offlineResultRequest struct {
	WinnerID  string `json:"winner_id" validate:"required,max=64"`
	WinnerBid string `json:"winner_bid" validate:"required,max=32"`
}

type createBidderRequest struct {
	ID          string `json:"id" validate:"required,max=64"`
	DisplayName string `json:"display_name" validate:"required,max=100"`
	Balance     string `json:"balance" validate:"max=32"`
	IsAdmin     bool   `json:"is_admin"`
}

type scheduledJobResponse struct {
	ID      string           `json:"id"`
	ItemID  string           `json:"item_id"`
	JobType domain.JobType   `json:"job_type"`
	RunAt   time.Time        `json:"run_at"`
	Status  domain.JobStatus `json:"status"`
}

// AdminHandler serves the operator API.
type AdminHandler struct {
	auctions *services.AuctionManager
	arbiter  *services.BidArbiter
	profiles *services.ProfileService
	validate *validator.Validate
	log      logger.Logger
}

func NewAdminHandler(
	auctions *services.AuctionManager,
	arbiter *services.BidArbiter,
	profiles *services.ProfileService,
	log logger.Logger,
) *AdminHandler {
	return &AdminHandler{
		auctions: auctions,
		arbiter:  arbiter,
		profiles: profiles,
		validate: newValidator(),
		log:      log,
	}
}

func (h *AdminHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/items", h.ListItems)
	g.POST("/items", h.CreateItem)
	g.POST("/items/:id/start", h.lifecycle(h.auctions.Start))
	g.POST("/items/:id/pause", h.lifecycle(h.auctions.Pause))
	g.POST("/items/:id/stop", h.lifecycle(h.auctions.Stop))
	g.POST("/items/:id/reopen", h.lifecycle(h.auctions.Reopen))
	g.POST("/items/:id/schedule-start", h.ScheduleStart)
	g.PUT("/items/:id/bid-state", h.SetBidState)
	g.PUT("/items/:id/offline-result", h.RecordOfflineResult)
	g.GET("/bidders", h.ListBidders)
	g.POST("/bidders", h.CreateBidder)
}

func (h *AdminHandler) ListItems(c echo.Context) error {
	items, err := h.auctions.ListItems(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	snapshots := make([]*domain.ItemSnapshot, 0, len(items))
	for _, item := range items {
		snapshots = append(snapshots, domain.NewItemSnapshot(item))
	}
	return c.JSON(http.StatusOK, snapshots)
}

func (h *AdminHandler) CreateItem(c echo.Context) error {
	var input createItemRequest
	if ok, err := h.bind(c, &input); !ok {
		return err
	}

	price := decimal.Zero
	if input.StartingPrice != "" {
		parsed, err := decimal.NewFromString(input.StartingPrice)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{"starting_price is not a number"})
		}
		price = parsed
	}

	item, err := h.auctions.CreateItem(c.Request().Context(), services.CreateItemInput{
		Name:          input.Name,
		Description:   input.Description,
		ImageRef:      input.ImageRef,
		OwnerID:       input.OwnerID,
		DisplayOrder:  input.DisplayOrder,
		Mode:          domain.AuctionMode(input.Mode),
		Timed:         input.Timed,
		StartingPrice: price,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, domain.NewItemSnapshot(item))
}

func (h *AdminHandler) lifecycle(op func(ctx context.Context, itemID string) (*domain.Item, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		item, err := op(c.Request().Context(), c.Param("id"))
		if err != nil {
			return h.fail(c, err)
		}
		return c.JSON(http.StatusOK, domain.NewItemSnapshot(item))
	}
}

func (h *AdminHandler) ScheduleStart(c echo.Context) error {
	var input scheduleStartRequest
	if ok, err := h.bind(c, &input); !ok {
		return err
	}
	job, err := h.auctions.ScheduleStart(c.Request().Context(), c.Param("id"), input.At)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusAccepted, scheduledJobResponse{
		ID:      job.ID,
		ItemID:  job.ItemID,
		JobType: job.JobType,
		RunAt:   job.RunAt,
		Status:  job.Status,
	})
}

func (h *AdminHandler) SetBidState(c echo.Context) error {
	var input bidStateRequest
	if ok, err := h.bind(c, &input); !ok {
		return err
	}
	price, err := decimal.NewFromString(input.Price)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{"price is not a number"})
	}
	item, err := h.arbiter.SetBidState(c.Request().Context(), c.Param("id"), price, input.HighestBidderID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, domain.NewItemSnapshot(item))
}

func (h *AdminHandler) RecordOfflineResult(c echo.Context) error {
	var input offlineResultRequest
	if ok, err := h.bind(c, &input); !ok {
		return err
	}
	bid, err := decimal.NewFromString(input.WinnerBid)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{"winner_bid is not a number"})
	}
	item, err := h.auctions.RecordOfflineResult(c.Request().Context(), c.Param("id"), input.WinnerID, bid)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, domain.NewItemSnapshot(item))
}

func (h *AdminHandler) ListBidders(c echo.Context) error {
	bidders, err := h.profiles.List(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	if bidders == nil {
		bidders = []*domain.Bidder{}
	}
	return c.JSON(http.StatusOK, bidders)
}

func (h *AdminHandler) CreateBidder(c echo.Context) error {
	var input createBidderRequest
	if ok, err := h.bind(c, &input); !ok {
		return err
	}
	balance := decimal.Zero
	if input.Balance != "" {
		parsed, err := decimal.NewFromString(input.Balance)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{"balance is not a number"})
		}
		balance = parsed
	}
	bidder, err := h.profiles.Register(c.Request().Context(), input.ID, input.DisplayName, balance, input.IsAdmin)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, bidder)
}

// bind decodes and validates the body. When it reports false the 400
// response has already been written.
func (h *AdminHandler) bind(c echo.Context, input interface{}) (bool, error) {
	if err := c.Bind(input); err != nil {
		return false, c.JSON(http.StatusBadRequest, errorResponse{"invalid request body"})
	}
	if err := h.validate.Struct(input); err != nil {
		return false, c.JSON(http.StatusBadRequest, errorResponse{getAllErrorMessages(err)})
	}
	return true, nil
}

func (h *AdminHandler) fail(c echo.Context, err error) error {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		h.log.Error("Admin request failed", "path", c.Path(), "error", err)
	}
	return c.JSON(status, errorResponse{publicReason(status, err)})
}
