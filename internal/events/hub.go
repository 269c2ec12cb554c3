package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DefaultSendTimeout bounds a single delivery to one connection.
const DefaultSendTimeout = 5 * time.Second

var ErrNilHub = errors.New("events: connect on nil hub")

// Conn is one live viewer connection. The transport owns its lifecycle; the
// hub only tracks it.
type Conn interface {
	// Accept completes the transport handshake. It runs before the conn is
	// eligible for events.
	Accept(ctx context.Context) error
	// Send delivers one event. An error means the peer is gone.
	Send(ctx context.Context, e Event) error
}

// Hub fans events out to every connection subscribed to a session key.
// Connections that fail a send are dropped; a dropped viewer has to
// reconnect and does not get missed events replayed.
type Hub struct {
	mu          sync.Mutex
	sessions    map[string]map[Conn]struct{}
	joinSeq     uint64
	lastJoin    map[string]uint64
	sendTimeout time.Duration
	logger      *slog.Logger
}

type Option func(*Hub)

// WithSendTimeout overrides DefaultSendTimeout.
func WithSendTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.sendTimeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		sessions:    make(map[string]map[Conn]struct{}),
		lastJoin:    make(map[string]uint64),
		sendTimeout: DefaultSendTimeout,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Connect accepts conn and subscribes it to key. A handshake error is
// returned as is and nothing is registered.
func (h *Hub) Connect(ctx context.Context, key string, conn Conn) error {
	if h == nil {
		return ErrNilHub
	}
	if err := conn.Accept(ctx); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.sessions[key]
	if !ok {
		set = make(map[Conn]struct{})
		h.sessions[key] = set
	}
	set[conn] = struct{}{}
	h.joinSeq++
	h.lastJoin[key] = h.joinSeq
	h.logger.Debug("hub: subscriber connected", "session", key, "subscribers", len(set))
	return nil
}

// Disconnect unsubscribes conn from key. Unknown keys and conns are ignored.
func (h *Hub) Disconnect(key string, conn Conn) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(key, conn)
}

// removeLocked drops conn and evicts the session once it has no subscribers.
func (h *Hub) removeLocked(key string, conn Conn) {
	set, ok := h.sessions[key]
	if !ok {
		return
	}
	if _, ok := set[conn]; !ok {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(h.sessions, key)
		delete(h.lastJoin, key)
	}
	h.logger.Debug("hub: subscriber removed", "session", key, "subscribers", len(set))
}

func (h *Hub) subscribers(key string) []Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.sessions[key]
	if len(set) == 0 {
		return nil
	}
	conns := make([]Conn, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	return conns
}

type sendResult struct {
	conn Conn
	err  error
}

// Broadcast delivers e to every conn subscribed to key. Sends run
// concurrently outside the lock and each is bounded by the send timeout.
// Conns that fail or do not finish in time are removed once the pass is
// over. It returns after every conn has either answered or timed out.
func (h *Hub) Broadcast(ctx context.Context, key string, e Event) {
	if h == nil {
		return
	}
	conns := h.subscribers(key)
	if len(conns) == 0 {
		return
	}

	// A producer giving up on its own request must not look like a dead viewer.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.sendTimeout)
	defer cancel()

	results := make(chan sendResult, len(conns))
	for _, c := range conns {
		go func(c Conn) {
			results <- sendResult{conn: c, err: c.Send(sendCtx, e)}
		}(c)
	}

	pending := make(map[Conn]struct{}, len(conns))
	for _, c := range conns {
		pending[c] = struct{}{}
	}
	var dead []Conn
	timer := time.NewTimer(h.sendTimeout)
	defer timer.Stop()
wait:
	for len(pending) > 0 {
		select {
		case r := <-results:
			delete(pending, r.conn)
			if r.err != nil {
				h.logger.Debug("hub: send failed, dropping subscriber", "session", key, "type", e.Type, "err", r.err)
				dead = append(dead, r.conn)
			}
		case <-timer.C:
			break wait
		}
	}
	for c := range pending {
		h.logger.Debug("hub: send timed out, dropping subscriber", "session", key, "type", e.Type)
		dead = append(dead, c)
	}
	if len(dead) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range dead {
		h.removeLocked(key, c)
	}
}

func (h *Hub) Log(ctx context.Context, key, logType, message string, extra map[string]any) {
	h.Broadcast(ctx, key, LogEvent(logType, message, extra))
}

func (h *Hub) Status(ctx context.Context, key string, unrealConnected, mcpConnected bool) {
	h.Broadcast(ctx, key, StatusEvent(unrealConnected, mcpConnected))
}

func (h *Hub) ActionStart(ctx context.Context, key, tool string, params map[string]any) {
	h.Broadcast(ctx, key, ActionStartEvent(tool, params))
}

func (h *Hub) ActionEnd(ctx context.Context, key, tool, result string, success bool) {
	h.Broadcast(ctx, key, ActionEndEvent(tool, result, success))
}

// Subscribers returns the number of conns currently registered under key.
func (h *Hub) Subscribers(key string) int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions[key])
}

// LastJoin returns a number that grows with every Connect to key, so a
// caller can tell whether anyone joined since it last looked even when the
// subscriber count did not change. It is zero for keys without subscribers.
func (h *Hub) LastJoin(key string) uint64 {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastJoin[key]
}

// Sessions returns the keys that have at least one subscriber, sorted.
func (h *Hub) Sessions() []string {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	keys := make([]string, 0, len(h.sessions))
	for k := range h.sessions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clear forgets every registration. Conns are not closed.
func (h *Hub) Clear() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions = make(map[string]map[Conn]struct{})
	h.lastJoin = make(map[string]uint64)
}

var _ Emitter = (*Hub)(nil)
