package websocket

import (
	"net/http"
	"strings"

	"auction-storefront/pkg/logger"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checks belong to the gateway in front of the service.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades GET /ws?item_id=.. into a change stream. An authenticated
// bidder also receives their balance changes and may place bids; anonymous
// connections only watch items.
type Handler struct {
	manager  *ConnectionManager
	bids     BidSubmitter
	identity func(*http.Request) string
	log      logger.Logger
}

func NewHandler(manager *ConnectionManager, bids BidSubmitter, log logger.Logger) *Handler {
	return &Handler{
		manager:  manager,
		bids:     bids,
		identity: headerIdentity,
		log:      log,
	}
}

// WithIdentity sets how the authenticated bidder is resolved from a request.
func (h *Handler) WithIdentity(identity func(*http.Request) string) *Handler {
	h.identity = identity
	return h
}

func headerIdentity(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Bidder-ID"))
}

func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	itemIDs := r.URL.Query()["item_id"]
	bidderID := h.identity(r)
	if len(itemIDs) == 0 && bidderID == "" {
		http.Error(w, "item_id or an authenticated bidder is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := NewClient(conn, bidderID, itemIDs)
	h.manager.RegisterConnection(client)
	defer h.manager.UnregisterConnection(client)

	go client.writePump()
	client.sendJSON(map[string]interface{}{
		"type":      "connected",
		"client_id": client.ID,
		"item_ids":  itemIDs,
		"bidder_id": bidderID,
	})

	// The request context stays live until the read loop returns.
	client.readPump(r.Context(), h.bids, h.log)
}
