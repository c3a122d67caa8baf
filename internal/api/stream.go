package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pushkeep-io/pushkeep/internal/model"
)

// statusEvent is one line of JSON pushed to a subscriber of
// GET /v1/destinations/{destId}/stream, sourced from the same
// statusrec.Notifier hook the Registry updates from.
type statusEvent struct {
	TableID int64  `json:"table_id"`
	Status  string `json:"status"`
	Since   string `json:"since"`
	Until   string `json:"until,omitempty"`
	Cause   string `json:"cause,omitempty"`
}

// Hub is a minimal pub/sub broker scoped to destination topics,
// adapted from the teacher's server/internal/websocket.Hub and narrowed
// to this package's one topic shape — a destination id — instead of an
// open string topic namespace. There is no event loop: subscribe and
// unsubscribe mutate the subscriber map under mu, and Publish takes a
// short read-locked snapshot of it and sends outside the lock.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[model.DestinationId]map[chan statusEvent]struct{}
	logger      *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subscribers: make(map[model.DestinationId]map[chan statusEvent]struct{}),
		logger:      logger.Named("api.stream"),
	}
}

// Publish implements statusrec.Notifier. It never blocks on a slow
// subscriber: a subscriber whose buffered channel is full misses the
// event rather than stalling the Status Recorder.
func (h *Hub) Publish(key model.PushKey, status model.PushStatus) {
	ev := statusEvent{
		TableID: int64(key.TableId),
		Status:  status.Kind.String(),
		Since:   status.Since.UTC().Format(rfc3339Milli),
	}
	if status.Terminal() {
		ev.Until = status.Until.UTC().Format(rfc3339Milli)
	}
	if status.Cause != nil {
		ev.Cause = status.Cause.Message
	}

	h.mu.RLock()
	subs := h.subscribers[key.DestinationId]
	targets := make([]chan statusEvent, 0, len(subs))
	for ch := range subs {
		targets = append(targets, ch)
	}
	h.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- ev:
		default:
			h.logger.Warn("subscriber channel full, dropping event", zap.Stringer("key", key))
		}
	}
}

func (h *Hub) subscribe(dest model.DestinationId) chan statusEvent {
	ch := make(chan statusEvent, 32)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subscribers[dest] == nil {
		h.subscribers[dest] = make(map[chan statusEvent]struct{})
	}
	h.subscribers[dest][ch] = struct{}{}
	return ch
}

func (h *Hub) unsubscribe(dest model.DestinationId, ch chan statusEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers[dest], ch)
	if len(h.subscribers[dest]) == 0 {
		delete(h.subscribers, dest)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Same-origin is not enforced here: this is an operator-facing admin
	// stream protected by the Authorization bearer token, not a browser
	// session cookie, so cross-origin WebSocket CSRF does not apply.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

// StreamHandler serves GET /v1/destinations/{destId}/stream, upgrading
// to a WebSocket and relaying one JSON line per status transition for
// that destination until the client disconnects.
type StreamHandler struct {
	hub    *Hub
	logger *zap.Logger
}

func NewStreamHandler(hub *Hub, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{hub: hub, logger: logger.Named("api.stream")}
}

func (h *StreamHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	destId, ok := parseDestId(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ch := h.hub.subscribe(destId)
	defer h.hub.unsubscribe(destId, ch)

	h.logger.Info("stream client connected", zap.Int64("destination_id", int64(destId)))
	defer h.logger.Info("stream client disconnected", zap.Int64("destination_id", int64(destId)))

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	// readPump: discard any client-sent frames, just watch for close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case ev := <-ch:
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
