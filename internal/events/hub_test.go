package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zsprackett/editor-companion/internal/events"
)

// fakeConn records every event it is sent.
type fakeConn struct {
	mu        sync.Mutex
	name      string
	acceptErr error
	sendErr   error
	block     bool
	accepted  bool
	sendCalls int
	got       []events.Event
}

func (c *fakeConn) Accept(ctx context.Context) error {
	if c.acceptErr != nil {
		return c.acceptErr
	}
	c.mu.Lock()
	c.accepted = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Send(ctx context.Context, e events.Event) error {
	c.mu.Lock()
	c.sendCalls++
	block, sendErr := c.block, c.sendErr
	c.mu.Unlock()
	if block {
		// Ignores ctx on purpose: the hub must not wait on it forever.
		time.Sleep(time.Second)
		return nil
	}
	if sendErr != nil {
		return sendErr
	}
	c.mu.Lock()
	c.got = append(c.got, e)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) received() []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]events.Event(nil), c.got...)
}

func (c *fakeConn) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendCalls
}

func connectAll(t *testing.T, h *events.Hub, key string, conns ...*fakeConn) {
	t.Helper()
	for _, c := range conns {
		if err := h.Connect(context.Background(), key, c); err != nil {
			t.Fatalf("connect %s: %v", c.name, err)
		}
	}
}

func TestBroadcastWithoutSubscribersIsNoop(t *testing.T) {
	h := events.NewHub()
	h.Broadcast(context.Background(), "nobody", events.LogEvent("info", "hello", nil))
	if got := h.Sessions(); len(got) != 0 {
		t.Errorf("expected no sessions, got %v", got)
	}
}

func TestBroadcastFanOut(t *testing.T) {
	h := events.NewHub()
	a, b, c := &fakeConn{name: "a"}, &fakeConn{name: "b"}, &fakeConn{name: "c"}
	connectAll(t, h, "s", a, b, c)

	h.Broadcast(context.Background(), "s", events.LogEvent("info", "built", nil))

	for _, conn := range []*fakeConn{a, b, c} {
		got := conn.received()
		if len(got) != 1 {
			t.Fatalf("%s: expected exactly 1 event, got %d", conn.name, len(got))
		}
		if got[0].Type != events.TypeLog {
			t.Errorf("%s: type: got %q want log", conn.name, got[0].Type)
		}
	}
}

func TestBroadcastIsolatesSessions(t *testing.T) {
	h := events.NewHub()
	s1, s2 := &fakeConn{name: "s1"}, &fakeConn{name: "s2"}
	connectAll(t, h, "s1", s1)
	connectAll(t, h, "s2", s2)

	h.Broadcast(context.Background(), "s2", events.StatusEvent(true, false))

	if n := len(s1.received()); n != 0 {
		t.Errorf("s1 should not see s2 traffic, got %d events", n)
	}
	if n := len(s2.received()); n != 1 {
		t.Errorf("s2: expected 1 event, got %d", n)
	}
}

func TestBroadcastPrunesFailedConn(t *testing.T) {
	h := events.NewHub()
	a := &fakeConn{name: "a"}
	b := &fakeConn{name: "b", sendErr: errors.New("broken pipe")}
	c := &fakeConn{name: "c"}
	connectAll(t, h, "s", a, b, c)

	h.Broadcast(context.Background(), "s", events.LogEvent("info", "first", nil))

	if len(a.received()) != 1 || len(c.received()) != 1 {
		t.Fatalf("healthy subscribers missed the event: a=%d c=%d", len(a.received()), len(c.received()))
	}
	if n := h.Subscribers("s"); n != 2 {
		t.Fatalf("expected 2 subscribers after pruning, got %d", n)
	}

	h.Broadcast(context.Background(), "s", events.LogEvent("info", "second", nil))
	if n := b.calls(); n != 1 {
		t.Errorf("pruned conn should not be tried again, got %d send calls", n)
	}
	if len(a.received()) != 2 || len(c.received()) != 2 {
		t.Errorf("expected 2 events each, got a=%d c=%d", len(a.received()), len(c.received()))
	}
}

func TestBroadcastHungConnDoesNotBlockOthers(t *testing.T) {
	h := events.NewHub(events.WithSendTimeout(50 * time.Millisecond))
	healthy := &fakeConn{name: "healthy"}
	hung := &fakeConn{name: "hung", block: true}
	connectAll(t, h, "s", healthy, hung)

	start := time.Now()
	h.Broadcast(context.Background(), "s", events.LogEvent("info", "tick", nil))
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("broadcast waited %v on a hung subscriber", elapsed)
	}
	if len(healthy.received()) != 1 {
		t.Errorf("healthy subscriber missed the event")
	}
	if n := h.Subscribers("s"); n != 1 {
		t.Errorf("hung subscriber should be dropped, got %d subscribers", n)
	}
}

func TestDisconnectUnknownIsNoop(t *testing.T) {
	h := events.NewHub()
	h.Disconnect("missing", &fakeConn{})

	a := &fakeConn{name: "a"}
	connectAll(t, h, "s", a)
	h.Disconnect("s", &fakeConn{name: "stranger"})
	if n := h.Subscribers("s"); n != 1 {
		t.Errorf("expected 1 subscriber, got %d", n)
	}
}

func TestDisconnectEvictsEmptySession(t *testing.T) {
	h := events.NewHub()
	a := &fakeConn{name: "a"}
	connectAll(t, h, "s", a)
	h.Disconnect("s", a)
	h.Disconnect("s", a)
	if got := h.Sessions(); len(got) != 0 {
		t.Errorf("expected empty session to be evicted, got %v", got)
	}
}

func TestConnectTwiceKeepsOneRegistration(t *testing.T) {
	h := events.NewHub()
	a := &fakeConn{name: "a"}
	connectAll(t, h, "s", a, a)
	if n := h.Subscribers("s"); n != 1 {
		t.Fatalf("expected set semantics, got %d subscribers", n)
	}
	h.Broadcast(context.Background(), "s", events.StatusEvent(false, false))
	if n := len(a.received()); n != 1 {
		t.Errorf("expected 1 delivery, got %d", n)
	}
}

func TestConnectAcceptFailurePropagates(t *testing.T) {
	h := events.NewHub()
	wantErr := errors.New("handshake refused")
	c := &fakeConn{acceptErr: wantErr}
	err := h.Connect(context.Background(), "s", c)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected handshake error, got %v", err)
	}
	if n := h.Subscribers("s"); n != 0 {
		t.Errorf("failed handshake must not register, got %d", n)
	}
}

func TestActionStartShape(t *testing.T) {
	h := events.NewHub()
	a, b := &fakeConn{name: "a"}, &fakeConn{name: "b"}
	connectAll(t, h, "S", a, b)

	h.ActionStart(context.Background(), "S", "level_open", map[string]any{"level_path": "/Game/Maps/M1"})

	want := `{"type":"action_start","payload":{"tool":"level_open","params":{"level_path":"/Game/Maps/M1"}}}`
	for _, conn := range []*fakeConn{a, b} {
		got := conn.received()
		if len(got) != 1 {
			t.Fatalf("%s: expected 1 event, got %d", conn.name, len(got))
		}
		data, err := json.Marshal(got[0])
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != want {
			t.Errorf("%s:\n got %s\nwant %s", conn.name, data, want)
		}
	}
}

func TestLateSubscriberGetsNoReplay(t *testing.T) {
	h := events.NewHub()
	early := &fakeConn{name: "early"}
	connectAll(t, h, "s", early)
	h.Log(context.Background(), "s", "info", "m1", nil)

	late := &fakeConn{name: "late"}
	connectAll(t, h, "s", late)
	if n := len(late.received()); n != 0 {
		t.Fatalf("late subscriber got %d replayed events", n)
	}

	h.Log(context.Background(), "s", "info", "m2", nil)
	got := late.received()
	if len(got) != 1 {
		t.Fatalf("expected only m2, got %d events", len(got))
	}
	payload := got[0].Payload.(map[string]any)
	if payload["message"] != "m2" {
		t.Errorf("expected m2, got %v", payload["message"])
	}
}

func TestClearDropsEverything(t *testing.T) {
	h := events.NewHub()
	connectAll(t, h, "s1", &fakeConn{})
	connectAll(t, h, "s2", &fakeConn{})
	h.Clear()
	if got := h.Sessions(); len(got) != 0 {
		t.Errorf("expected no sessions after Clear, got %v", got)
	}
}

func TestNilHubIsSafe(t *testing.T) {
	var h *events.Hub
	h.Broadcast(context.Background(), "s", events.LogEvent("info", "x", nil))
	h.ActionEnd(context.Background(), "s", "level_open", "ok", true)
	h.Disconnect("s", &fakeConn{})
	if h.Subscribers("s") != 0 {
		t.Error("nil hub should report no subscribers")
	}
	c := &fakeConn{}
	if err := h.Connect(context.Background(), "s", c); !errors.Is(err, events.ErrNilHub) {
		t.Errorf("Connect on nil hub: got %v, want ErrNilHub", err)
	}
	if c.accepted {
		t.Error("nil hub accepted the conn")
	}
}

func TestLastJoinAdvancesOnEveryConnect(t *testing.T) {
	h := events.NewHub()
	a, b := &fakeConn{name: "a"}, &fakeConn{name: "b"}
	if h.LastJoin("s") != 0 {
		t.Fatal("LastJoin of an empty session should be zero")
	}
	connectAll(t, h, "s", a)
	first := h.LastJoin("s")
	h.Disconnect("s", a)
	if h.LastJoin("s") != 0 {
		t.Error("LastJoin should reset when the session is evicted")
	}
	connectAll(t, h, "s", b)
	if got := h.LastJoin("s"); got <= first {
		t.Errorf("LastJoin = %d after a new join, want > %d", got, first)
	}
}

func TestSequentialBroadcastsKeepOrder(t *testing.T) {
	h := events.NewHub()
	a := &fakeConn{name: "a"}
	connectAll(t, h, "s", a)
	for _, msg := range []string{"one", "two", "three"} {
		h.Log(context.Background(), "s", "info", msg, nil)
	}
	got := a.received()
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	for i, want := range []string{"one", "two", "three"} {
		if msg := got[i].Payload.(map[string]any)["message"]; msg != want {
			t.Errorf("event %d: got %v want %s", i, msg, want)
		}
	}
}
