package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/zsprackett/editor-companion/internal/applog"
)

const DefaultInterval = 2 * time.Second

type Pinger interface {
	Ping(ctx context.Context) bool
	Addr() string
}

// SessionCounter reports how many MCP clients are attached to a project.
type SessionCounter interface {
	ActiveSessions(project string) int
}

type StatusHub interface {
	Status(ctx context.Context, key string, unrealConnected, mcpConnected bool)
	Sessions() []string
	LastJoin(key string) uint64
}

type Alerter interface {
	EditorDisconnected(addr string)
	EditorRestored(addr string)
}

type status struct {
	unreal bool
	mcp    bool
}

type Monitor struct {
	editor   Pinger
	sessions SessionCounter
	hub      StatusHub
	alerter  Alerter
	interval time.Duration
	logger   *slog.Logger

	mu          sync.Mutex
	editorKnown bool
	editorUp    bool
	last        map[string]status
	joins       map[string]uint64

	stop chan struct{}
	wg   sync.WaitGroup
}

// New returns a Monitor. sessions and alerter may be nil.
func New(editor Pinger, sessions SessionCounter, hub StatusHub, alerter Alerter, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = applog.Discard()
	}
	return &Monitor{
		editor:   editor,
		sessions: sessions,
		hub:      hub,
		alerter:  alerter,
		interval: interval,
		logger:   logger,
		last:     make(map[string]status),
		joins:    make(map[string]uint64),
		stop:     make(chan struct{}),
	}
}

func (m *Monitor) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			<-m.stop
			cancel()
		}()

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		m.Check(ctx)
		for {
			select {
			case <-m.stop:
				return
			case <-ticker.C:
				m.Check(ctx)
			}
		}
	}()
}

func (m *Monitor) Stop() {
	close(m.stop)
	m.wg.Wait()
}

// EditorConnected reports the result of the most recent ping.
func (m *Monitor) EditorConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.editorUp
}

// Check runs one poll. A project receives a status event when its status
// changed, when it is seen for the first time, or when a new viewer joined
// since the last poll.
func (m *Monitor) Check(ctx context.Context) {
	up := m.editor.Ping(ctx)
	m.editorTransition(up)

	keys := m.hub.Sessions()
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		seen[key] = true
		st := status{unreal: up}
		if m.sessions != nil {
			st.mcp = m.sessions.ActiveSessions(key) > 0
		}
		join := m.hub.LastJoin(key)

		m.mu.Lock()
		prev, known := m.last[key]
		joined := join != m.joins[key]
		m.last[key] = st
		m.joins[key] = join
		m.mu.Unlock()

		if known && prev == st && !joined {
			continue
		}
		m.logger.Debug("monitor: status", "project", key, "unreal", st.unreal, "mcp", st.mcp)
		m.hub.Status(ctx, key, st.unreal, st.mcp)
	}

	m.mu.Lock()
	for key := range m.last {
		if !seen[key] {
			delete(m.last, key)
			delete(m.joins, key)
		}
	}
	m.mu.Unlock()
}

func (m *Monitor) editorTransition(up bool) {
	m.mu.Lock()
	known, prev := m.editorKnown, m.editorUp
	m.editorKnown, m.editorUp = true, up
	m.mu.Unlock()

	if known && prev == up {
		return
	}
	addr := m.editor.Addr()
	if up {
		m.logger.Info("monitor: editor reachable", "addr", addr)
	} else {
		m.logger.Warn("monitor: editor unreachable", "addr", addr)
	}
	// The first poll only establishes a baseline.
	if !known || m.alerter == nil {
		return
	}
	if up {
		m.alerter.EditorRestored(addr)
	} else {
		m.alerter.EditorDisconnected(addr)
	}
}
