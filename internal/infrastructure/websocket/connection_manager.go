package websocket

import (
	"encoding/json"
	"sync"

	"auction-storefront/internal/domain"
	"auction-storefront/pkg/logger"
	"auction-storefront/pkg/metrics"
)

// ConnectionManager fans change events out to the clients subscribed to
// their key. Within one key a client never sees a version go backwards.
type ConnectionManager struct {
	subscribers map[string]map[*Client]struct{} // key -> clients
	mutex       sync.Mutex
	metrics     *metrics.MetricsManager
	log         logger.Logger
}

var _ domain.ChangeBroadcaster = (*ConnectionManager)(nil)

func NewConnectionManager(m *metrics.MetricsManager, log logger.Logger) *ConnectionManager {
	return &ConnectionManager{
		subscribers: make(map[string]map[*Client]struct{}),
		metrics:     m,
		log:         log,
	}
}

func (cm *ConnectionManager) RegisterConnection(client *Client) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	for _, key := range client.keys {
		if cm.subscribers[key] == nil {
			cm.subscribers[key] = make(map[*Client]struct{})
		}
		cm.subscribers[key][client] = struct{}{}
	}
	cm.metrics.ConnectionOpened()

	cm.log.Info("Connection registered", "client_id", client.ID, "bidder_id", client.BidderID, "keys", client.keys)
}

// UnregisterConnection removes the client from every key and closes its send
// buffer. Calling it twice is harmless.
func (cm *ConnectionManager) UnregisterConnection(client *Client) {
	cm.mutex.Lock()
	removed := cm.removeLocked(client)
	cm.mutex.Unlock()

	if removed {
		cm.metrics.ConnectionClosed()
		cm.log.Info("Connection unregistered", "client_id", client.ID, "bidder_id", client.BidderID)
	}
}

func (cm *ConnectionManager) removeLocked(client *Client) bool {
	removed := false
	for _, key := range client.keys {
		clients, ok := cm.subscribers[key]
		if !ok {
			continue
		}
		if _, ok := clients[client]; ok {
			delete(clients, client)
			removed = true
		}
		if len(clients) == 0 {
			delete(cm.subscribers, key)
		}
	}
	if removed {
		client.closeSend()
	}
	return removed
}

// Broadcast delivers the event to every client subscribed to its key. A
// client whose send buffer is full is disconnected instead of blocking the
// others.
func (cm *ConnectionManager) Broadcast(event *domain.ChangeEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		cm.log.Error("Failed to marshal change event", "type", event.Type, "error", err)
		return
	}
	key := event.Key()

	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	sent := 0
	var slow []*Client
	for client := range cm.subscribers[key] {
		if event.Ordered() {
			if last, seen := client.lastVersion[key]; seen && event.Version <= last {
				cm.metrics.ObserveDropped("stale")
				continue
			}
			client.lastVersion[key] = event.Version
		}

		if client.trySend(payload) {
			sent++
		} else {
			slow = append(slow, client)
		}
	}

	for _, client := range slow {
		cm.log.Warn("Disconnecting slow client", "client_id", client.ID, "key", key)
		cm.metrics.ObserveDropped("slow_client")
		if cm.removeLocked(client) {
			cm.metrics.ConnectionClosed()
		}
	}

	cm.log.Debug("Broadcasted change", "key", key, "type", event.Type, "version", event.Version, "clients", sent)
}

// SubscriberCount returns the number of clients watching a key.
func (cm *ConnectionManager) SubscriberCount(key string) int {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	return len(cm.subscribers[key])
}
