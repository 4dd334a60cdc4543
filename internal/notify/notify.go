// Package notify fans view-invalidation events out to websocket
// subscribers, grounded in the teacher's UserInteractionHandler
// (ping/pong keep-alive, CheckOrigin stub, typed outbound JSON
// frames).
package notify

import (
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// Event is the outbound frame pushed to every subscriber of a view.
type Event struct {
	Type         string `json:"type"`
	ViewID       string `json:"viewId"`
	CyclePending bool   `json:"cyclePending,omitempty"`
}

// Hub fans OnViewInvalidated calls out to every websocket subscriber
// of the affected view. Hub implements graph.Mutator.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: map[string]map[chan Event]struct{}{}}
}

// OnViewInvalidated implements graph.Mutator, publishing one frame per
// re-materialization trigger to every subscriber of viewID.
func (h *Hub) OnViewInvalidated(viewID string, cyclePending bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[viewID] {
		select {
		case ch <- Event{Type: "view_invalidated", ViewID: viewID, CyclePending: cyclePending}:
		default:
		}
	}
}

func (h *Hub) subscribe(viewID string) chan Event {
	ch := make(chan Event, 8)
	h.mu.Lock()
	if h.subs[viewID] == nil {
		h.subs[viewID] = map[chan Event]struct{}{}
	}
	h.subs[viewID][ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(viewID string, ch chan Event) {
	h.mu.Lock()
	delete(h.subs[viewID], ch)
	if len(h.subs[viewID]) == 0 {
		delete(h.subs, viewID)
	}
	h.mu.Unlock()
	close(ch)
}

// ServeWS upgrades r to a websocket connection subscribed to the
// view-id query parameter, streaming Events until the client
// disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	viewID := strings.TrimSpace(r.URL.Query().Get("view_id"))
	if viewID == "" {
		http.Error(w, "view_id is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("notify: set read deadline failed: %v", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	events := h.subscribe(viewID)
	defer h.unsubscribe(viewID, events)

	done := make(chan struct{})
	go drainClientReads(conn, done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case evt := <-events:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// drainClientReads discards inbound frames (this stream is
// server-to-client only) and closes done once the connection drops,
// mirroring the teacher's read-loop-drives-shutdown pattern.
func drainClientReads(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
