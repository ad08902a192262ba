package hub

import (
	"encoding/json"
	"sync"
)

type Writer interface {
	Write(message []byte) error
	Close() error
}

type Connection struct {
	AccountID string
	Writer    Writer
}

// Event is a state-change notification pushed to an account's connected
// presentation clients.
type Event struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Persona   string `json:"persona,omitempty"`
	Body      any    `json:"body,omitempty"`
}

const (
	EventSessionCreated  = "session-created"
	EventMessageAppended = "message-appended"
	EventAccountUpdated  = "account-updated"
)

// Hub fans state-change events out to every connection of one account.
// Failed writers are evicted.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]map[*Connection]struct{}
}

func New() *Hub {
	return &Hub{connections: make(map[string]map[*Connection]struct{})}
}

func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.connections[conn.AccountID] == nil {
		h.connections[conn.AccountID] = make(map[*Connection]struct{})
	}
	h.connections[conn.AccountID][conn] = struct{}{}
}

func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.connections[conn.AccountID]
	if set == nil {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(h.connections, conn.AccountID)
	}
}

// Publish marshals the event and broadcasts it to the account's
// connections. Delivery is best-effort; core state never depends on it.
func (h *Hub) Publish(accountID string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	h.Broadcast(accountID, data)
}

func (h *Hub) Broadcast(accountID string, message []byte) {
	h.mu.RLock()
	set := h.connections[accountID]
	conns := make([]*Connection, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	var failed []*Connection
	for _, c := range conns {
		if err := c.Writer.Write(message); err != nil {
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		_ = c.Writer.Close()
		h.Unregister(c)
	}
}
