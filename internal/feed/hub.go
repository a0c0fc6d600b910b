// Package feed streams blocked moderation decisions to trust and safety
// dashboards over WebSocket. Subscribers only receive; anything they send
// other than control frames is discarded.
package feed

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/closetloop/gatekeeper/internal/metrics"
)

// DefaultWriteTimeout bounds a single frame write to a subscriber.
const DefaultWriteTimeout = 5 * time.Second

// Event is one blocked decision. It carries the redacted text only.
type Event struct {
	Source    string   `json:"source"` // message, review or profile
	SubjectID string   `json:"subject_id,omitempty"`
	SenderID  string   `json:"sender_id"`
	Action    string   `json:"action"`
	Category  string   `json:"category,omitempty"`
	Checks    []string `json:"checks,omitempty"`
	Redacted  string   `json:"redacted,omitempty"`
	Ts        int64    `json:"ts"`
}

type subscriber struct {
	id      string
	conn    net.Conn
	writeMu sync.Mutex
}

func (s *subscriber) write(data []byte, timeout time.Duration) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(timeout))
	return wsutil.WriteServerMessage(s.conn, ws.OpText, data)
}

// Hub tracks feed subscribers and fans events out to them.
type Hub struct {
	mu           sync.RWMutex
	subs         map[string]*subscriber
	max          int
	writeTimeout time.Duration
	closed       bool
	log          *zap.Logger
}

// NewHub creates a hub accepting at most maxSubscribers connections.
// A non-positive max means unlimited.
func NewHub(maxSubscribers int, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		subs:         make(map[string]*subscriber),
		max:          maxSubscribers,
		writeTimeout: DefaultWriteTimeout,
		log:          log,
	}
}

// ServeHTTP upgrades the request to a WebSocket and registers the
// connection until the peer goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	full := h.max > 0 && len(h.subs) >= h.max
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "feed closed", http.StatusServiceUnavailable)
		return
	}
	if full {
		http.Error(w, "too many subscribers", http.StatusServiceUnavailable)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		h.log.Warn("feed upgrade failed", zap.Error(err))
		return
	}

	s := &subscriber{id: uuid.NewString(), conn: conn}
	if !h.add(s) {
		conn.Close()
		return
	}
	h.log.Info("feed subscriber connected", zap.String("subscriber_id", s.id))

	go h.readLoop(s)
}

func (h *Hub) add(s *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || (h.max > 0 && len(h.subs) >= h.max) {
		return false
	}
	h.subs[s.id] = s
	metrics.FeedSubscribers.Set(float64(len(h.subs)))
	return true
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	s, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
		metrics.FeedSubscribers.Set(float64(len(h.subs)))
	}
	h.mu.Unlock()

	if ok {
		s.conn.Close()
		h.log.Info("feed subscriber disconnected", zap.String("subscriber_id", id))
	}
}

// readLoop consumes client frames so control frames get answered and a
// closed peer is noticed.
func (h *Hub) readLoop(s *subscriber) {
	defer h.remove(s.id)
	for {
		if _, _, err := wsutil.ReadClientData(s.conn); err != nil {
			return
		}
	}
}

// Broadcast sends ev to every subscriber. Subscribers whose write fails are
// dropped.
func (h *Hub) Broadcast(ev Event) {
	if ev.Ts == 0 {
		ev.Ts = time.Now().UnixMilli()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("feed marshal failed", zap.Error(err))
		return
	}

	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, s := range subs {
		if err := s.write(data, h.writeTimeout); err != nil {
			h.log.Debug("feed write failed", zap.String("subscriber_id", s.id), zap.Error(err))
			h.remove(s.id)
		}
	}
}

// Count returns the current number of subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := h.subs
	h.subs = make(map[string]*subscriber)
	metrics.FeedSubscribers.Set(0)
	h.mu.Unlock()

	for _, s := range subs {
		s.conn.Close()
	}
}
