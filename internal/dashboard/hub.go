package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const writeTimeout = 5 * time.Second

// hub is the set of connected WebSocket clients. Messages queued with
// publish are delivered by run in order; a client whose write fails is
// dropped.
type hub struct {
	mu     sync.RWMutex
	conns  map[*websocket.Conn]struct{}
	queue  chan Message
	logger *log.Logger
}

func newHub(logger *log.Logger) *hub {
	return &hub{
		conns:  make(map[*websocket.Conn]struct{}),
		queue:  make(chan Message, 100),
		logger: logger,
	}
}

func (h *hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	n := len(h.conns)
	h.mu.Unlock()
	h.logger.Printf("Client connected (total: %d)", n)
}

// remove closes conn if it is still registered.
func (h *hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.conns[conn]
	delete(h.conns, conn)
	n := len(h.conns)
	h.mu.Unlock()
	if !ok {
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")
	h.logger.Printf("Client disconnected (total: %d)", n)
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// closeAll disconnects every client with a going-away status.
func (h *hub) closeAll(reason string) {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()
	for conn := range conns {
		_ = conn.Close(websocket.StatusGoingAway, reason)
	}
}

// publish queues msg without blocking. A full queue drops the message.
func (h *hub) publish(ctx context.Context, msg Message) {
	select {
	case h.queue <- msg:
	case <-ctx.Done():
	default:
		h.logger.Printf("Broadcast queue full, dropping %s message", msg.Type)
	}
}

// run delivers queued messages until ctx is done.
func (h *hub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.queue:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}
			data, err := json.Marshal(msg)
			if err != nil {
				h.logger.Printf("Failed to marshal %s message: %v", msg.Type, err)
				continue
			}

			h.mu.RLock()
			targets := make([]*websocket.Conn, 0, len(h.conns))
			for conn := range h.conns {
				targets = append(targets, conn)
			}
			h.mu.RUnlock()

			for _, conn := range targets {
				if err := write(ctx, conn, data); err != nil {
					h.logger.Printf("Failed to send to client: %v", err)
					h.remove(conn)
				}
			}
		}
	}
}

// serve keeps conn registered until the client goes away or ctx ends.
// Incoming frames are read and discarded.
func (h *hub) serve(ctx context.Context, conn *websocket.Conn) {
	defer h.remove(conn)
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
