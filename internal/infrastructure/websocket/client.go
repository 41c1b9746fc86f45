package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"auction-storefront/internal/domain"
	"auction-storefront/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	sendBufferSize = 256
	maxMessageSize = 4096
)

// BidSubmitter places bids sent over the socket.
type BidSubmitter interface {
	SubmitBid(ctx context.Context, req domain.BidRequest) *domain.BidResult
}

// Client is one websocket connection and the keys it watches.
type Client struct {
	ID       string
	BidderID string
	ItemIDs  []string
	Send     chan []byte

	conn        *websocket.Conn
	keys        []string
	lastVersion map[string]int64 // guarded by the manager's mutex

	mu     sync.Mutex
	closed bool
}

func NewClient(conn *websocket.Conn, bidderID string, itemIDs []string) *Client {
	keys := make([]string, 0, len(itemIDs)+1)
	for _, id := range itemIDs {
		keys = append(keys, domain.ItemKey(id))
	}
	if bidderID != "" {
		keys = append(keys, domain.BidderKey(bidderID))
	}
	return &Client{
		ID:          uuid.New().String(),
		BidderID:    bidderID,
		ItemIDs:     itemIDs,
		Send:        make(chan []byte, sendBufferSize),
		conn:        conn,
		keys:        keys,
		lastVersion: make(map[string]int64),
	}
}

// trySend queues payload without blocking. It reports false when the buffer
// is full or the client is closed.
func (c *Client) trySend(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

func (c *Client) sendJSON(v interface{}) bool {
	payload, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return c.trySend(payload)
}

// writePump pumps messages from the Send channel to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type inboundMessage struct {
	Type           string `json:"type"`
	ItemID         string `json:"item_id"`
	Amount         string `json:"amount"`
	ExpectedPrice  string `json:"expected_price"`
	IdempotencyKey string `json:"idempotency_key"`
}

type outboundMessage struct {
	Type    string            `json:"type"`
	Result  *domain.BidResult `json:"result,omitempty"`
	Message string            `json:"message,omitempty"`
}

// readPump handles client messages until the connection fails. It blocks.
func (c *Client) readPump(ctx context.Context, bids BidSubmitter, log logger.Logger) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn("WebSocket read failed", "client_id", c.ID, "error", err)
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendJSON(outboundMessage{Type: "error", Message: "invalid message"})
			continue
		}

		switch msg.Type {
		case "place_bid":
			c.handleBid(ctx, bids, msg)
		case "ping":
			c.sendJSON(outboundMessage{Type: "pong"})
		default:
			c.sendJSON(outboundMessage{Type: "error", Message: "unknown message type"})
		}
	}
}

func (c *Client) handleBid(ctx context.Context, bids BidSubmitter, msg inboundMessage) {
	if c.BidderID == "" {
		c.sendJSON(outboundMessage{Type: "error", Message: "bidder identity required to bid"})
		return
	}
	itemID := msg.ItemID
	if itemID == "" && len(c.ItemIDs) == 1 {
		itemID = c.ItemIDs[0]
	}

	amount, bidErr := domain.ParseDecimal(msg.Amount)
	if bidErr != nil {
		c.sendJSON(outboundMessage{Type: "bid_result", Result: &domain.BidResult{Err: bidErr}})
		return
	}
	req := domain.BidRequest{
		ItemID:         itemID,
		BidderID:       c.BidderID,
		Amount:         amount,
		IdempotencyKey: msg.IdempotencyKey,
	}
	if msg.ExpectedPrice != "" {
		expected, bidErr := domain.ParseDecimal(msg.ExpectedPrice)
		if bidErr != nil {
			c.sendJSON(outboundMessage{Type: "bid_result", Result: &domain.BidResult{Err: bidErr}})
			return
		}
		req.ExpectedPrice = &expected
	}

	c.sendJSON(outboundMessage{Type: "bid_result", Result: bids.SubmitBid(ctx, req)})
}
