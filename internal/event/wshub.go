package event

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pricegrid/taskcore/internal/task"
)

// WSHub streams lifecycle events to connected WebSocket clients, typically
// the dashboard UI. Clients that fail a write are dropped.
type WSHub struct {
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}

	// writeMu serializes broadcasts; gorilla connections allow one
	// concurrent writer.
	writeMu sync.Mutex
}

func NewWSHub() *WSHub {
	return &WSHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: map[*websocket.Conn]struct{}{},
	}
}

// HandleWS upgrades the request and subscribes the client to all events.
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	log.Printf("event subscriber connected: %s", c.RemoteAddr())

	go h.readLoop(c)
}

// ClientCount returns the number of connected subscribers.
func (h *WSHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *WSHub) readLoop(c *websocket.Conn) {
	defer h.drop(c)
	for {
		if _, _, err := c.NextReader(); err != nil {
			return
		}
	}
}

func (h *WSHub) drop(c *websocket.Conn) {
	_ = c.Close()
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

func (h *WSHub) broadcast(t Type, info task.Info, err error) {
	e := NewEvent(t, info, err)

	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	for _, c := range conns {
		if writeErr := c.WriteJSON(e); writeErr != nil {
			h.drop(c)
		}
	}
}

func (h *WSHub) OnTaskCreated(info task.Info)   { h.broadcast(TypeCreated, info, nil) }
func (h *WSHub) OnTaskStarted(info task.Info)   { h.broadcast(TypeStarted, info, nil) }
func (h *WSHub) OnTaskPaused(info task.Info)    { h.broadcast(TypePaused, info, nil) }
func (h *WSHub) OnTaskResumed(info task.Info)   { h.broadcast(TypeResumed, info, nil) }
func (h *WSHub) OnTaskStopped(info task.Info)   { h.broadcast(TypeStopped, info, nil) }
func (h *WSHub) OnTaskCompleted(info task.Info) { h.broadcast(TypeCompleted, info, nil) }
func (h *WSHub) OnTaskProgress(info task.Info)  { h.broadcast(TypeProgress, info, nil) }

func (h *WSHub) OnTaskFailed(info task.Info, err error) {
	h.broadcast(TypeFailed, info, err)
}
