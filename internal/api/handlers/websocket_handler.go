package handlers

import (
	"net/http"

	"auction-storefront/internal/api/middleware"
	"auction-storefront/internal/infrastructure/websocket"
	"auction-storefront/internal/services"
	"auction-storefront/pkg/logger"
)

type WebSocketHandlers struct {
	wsHandler *websocket.Handler
}

func NewWebSocketHandlers(arbiter *services.BidArbiter, connManager *websocket.ConnectionManager, log logger.Logger) *WebSocketHandlers {
	return &WebSocketHandlers{
		wsHandler: websocket.NewHandler(connManager, arbiter, log).WithIdentity(requestBidder),
	}
}

func requestBidder(r *http.Request) string {
	return middleware.BidderID(r.Context())
}

// HandleConnection serves GET /ws. The bidder is the one BidderIdentity put
// in the request context; the query string never names it.
func (h *WebSocketHandlers) HandleConnection(w http.ResponseWriter, r *http.Request) {
	h.wsHandler.HandleWebSocket(w, r)
}
