package app

import (
	"encoding/json"
	"net/http"
	"time"

	"auction-storefront/internal/api/handlers"
	apimw "auction-storefront/internal/api/middleware"
	"auction-storefront/internal/infrastructure/websocket"
	"auction-storefront/internal/services"

	"github.com/gorilla/mux"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// BiddingRouter serves the bidder REST API, the change stream and metrics.
func (a *App) BiddingRouter(hub *websocket.ConnectionManager) *mux.Router {
	router := mux.NewRouter()
	router.Use(apimw.CORSWithLogging(a.Log))
	router.Use(apimw.BidderIdentity)
	router.Use(apimw.RequestLogger(a.Log))

	handlers.NewBiddingHandler(a.Arbiter, a.Ledger, a.Auctions, a.Likes, a.Profiles, a.Log).RegisterRoutes(router)

	wsHandlers := handlers.NewWebSocketHandlers(a.Arbiter, hub, a.Log)
	router.HandleFunc("/ws", wsHandlers.HandleConnection)

	router.Handle("/metrics", a.Metrics.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    "ok",
			"service":   "bidding-service",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}).Methods(http.MethodGet)

	return router
}

// AdminServer serves the operator API behind the admin token.
func (a *App) AdminServer() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: `{"time":"${time_rfc3339}","id":"${id}","remote_ip":"${remote_ip}","method":"${method}","uri":"${uri}","status":${status},"error":"${error}","latency_human":"${latency_human}","bytes_in":${bytes_in},"bytes_out":${bytes_out}}` + "\n",
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{
			echo.GET, echo.HEAD, echo.PUT, echo.PATCH,
			echo.POST, echo.DELETE, echo.OPTIONS,
		},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			apimw.HeaderAdminToken,
		},
		MaxAge: 86400,
	}))

	api := e.Group("/api/v1/admin", apimw.AdminToken(a.Config.Admin.Token))
	handlers.NewAdminHandler(a.Auctions, a.Arbiter, a.Profiles, a.Log).RegisterRoutes(api)

	e.GET("/metrics", echo.WrapHandler(a.Metrics.Handler()))
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"service":   "admin-service",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	if a.Config.Admin.Token == "" {
		a.Log.Warn("admin.token is empty; every admin request will be rejected")
	}
	return e
}

// Scheduler sweeps start jobs and expired auctions on the leader.
func (a *App) Scheduler() *services.CronAuctionScheduler {
	return services.NewCronAuctionScheduler(a.Store, a.Auctions, a.Election, services.SchedulerConfig{
		Schedule:   a.Config.Auction.SweepSchedule,
		AutoFinish: a.Config.Auction.AutoFinish,
		InstanceID: a.Config.Instance.ID,
	}, a.Log)
}
