package project_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/zsprackett/editor-companion/internal/db"
	"github.com/zsprackett/editor-companion/internal/events"
	"github.com/zsprackett/editor-companion/internal/project"
)

type recordingConn struct {
	mu  sync.Mutex
	got []events.Event
}

func (c *recordingConn) Accept(context.Context) error { return nil }

func (c *recordingConn) Send(_ context.Context, e events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, e)
	return nil
}

func (c *recordingConn) received() []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]events.Event(nil), c.got...)
}

func setup(t *testing.T) (*db.DB, *events.Hub, *project.Manager) {
	t.Helper()
	store, err := db.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	hub := events.NewHub()
	return store, hub, project.NewManager(store, hub, nil)
}

func TestGenerateName(t *testing.T) {
	name := project.GenerateName()
	parts := strings.Split(name, "-")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		t.Errorf("GenerateName() = %q, want adjective-noun", name)
	}
}

func TestCreateProject(t *testing.T) {
	store, _, mgr := setup(t)

	p, err := mgr.CreateProject(project.CreateOptions{Name: " Arena ", Path: "/work/arena"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if p.ID == "" || p.Name != "Arena" {
		t.Errorf("project = %+v", p)
	}
	got, err := store.GetProject(p.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.Path != "/work/arena" {
		t.Errorf("path = %q", got.Path)
	}

	generated, err := mgr.CreateProject(project.CreateOptions{})
	if err != nil {
		t.Fatalf("CreateProject without name: %v", err)
	}
	if generated.Name == "" {
		t.Error("expected a generated name")
	}
}

func TestRenameProjectValidates(t *testing.T) {
	_, _, mgr := setup(t)
	p, err := mgr.CreateProject(project.CreateOptions{Name: "arena"})
	if err != nil {
		t.Fatal(err)
	}
	if err := mgr.RenameProject(p.ID, "a/b"); !errors.Is(err, project.ErrInvalidName) {
		t.Errorf("rename with slash: err = %v, want ErrInvalidName", err)
	}
	if err := mgr.RenameProject("missing", "ok"); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("rename missing: err = %v, want ErrNotFound", err)
	}
}

func TestUpdateProject(t *testing.T) {
	_, _, mgr := setup(t)
	p, err := mgr.CreateProject(project.CreateOptions{Name: "arena", Path: "/old"})
	if err != nil {
		t.Fatal(err)
	}
	desc := "boss level"
	got, err := mgr.UpdateProject(p.ID, project.UpdateOptions{Description: &desc})
	if err != nil {
		t.Fatalf("UpdateProject: %v", err)
	}
	if got.Description != desc || got.Name != "arena" || got.Path != "/old" {
		t.Errorf("updated = %+v", got)
	}
}

func TestDeleteProject(t *testing.T) {
	store, _, mgr := setup(t)
	p, err := mgr.CreateProject(project.CreateOptions{Name: "arena"})
	if err != nil {
		t.Fatal(err)
	}
	if err := mgr.DeleteProject(p.ID); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	if _, err := store.GetProject(p.ID); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("after delete err = %v, want ErrNotFound", err)
	}
	if err := mgr.DeleteProject(p.ID); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestStartConversationUnknownProject(t *testing.T) {
	_, _, mgr := setup(t)
	if _, err := mgr.StartConversation("missing", "claude", ""); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestAppendMessageBroadcastsChat(t *testing.T) {
	store, hub, mgr := setup(t)
	ctx := context.Background()

	p, err := mgr.CreateProject(project.CreateOptions{Name: "arena"})
	if err != nil {
		t.Fatal(err)
	}
	conv, err := mgr.StartConversation(p.ID, "claude", "lighting pass")
	if err != nil {
		t.Fatalf("StartConversation: %v", err)
	}

	viewer := &recordingConn{}
	if err := hub.Connect(ctx, p.ID, viewer); err != nil {
		t.Fatal(err)
	}
	other := &recordingConn{}
	if err := hub.Connect(ctx, "other-project", other); err != nil {
		t.Fatal(err)
	}

	msg, err := mgr.AppendMessage(ctx, conv.ID, db.RoleAssistant, "Added a key light.")
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	msgs, err := store.GetMessages(conv.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].ID != msg.ID {
		t.Fatalf("stored messages = %+v", msgs)
	}

	got := viewer.received()
	if len(got) != 1 {
		t.Fatalf("viewer received %d events, want 1", len(got))
	}
	payload, ok := got[0].Payload.(map[string]any)
	if got[0].Type != events.TypeLog || !ok {
		t.Fatalf("event = %+v", got[0])
	}
	if payload["type"] != "chat" || payload["message"] != "Added a key light." {
		t.Errorf("payload = %+v", payload)
	}
	if payload["conversation_id"] != conv.ID || payload["role"] != "assistant" || payload["message_id"] != msg.ID {
		t.Errorf("payload extras = %+v", payload)
	}
	if n := len(other.received()); n != 0 {
		t.Errorf("other project received %d events", n)
	}
}

func TestAppendMessageRejectsBadInput(t *testing.T) {
	_, _, mgr := setup(t)
	ctx := context.Background()
	p, _ := mgr.CreateProject(project.CreateOptions{Name: "arena"})
	conv, err := mgr.StartConversation(p.ID, "claude", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.AppendMessage(ctx, conv.ID, db.Role("robot"), "hi"); err == nil {
		t.Error("expected error for invalid role")
	}
	if _, err := mgr.AppendMessage(ctx, conv.ID, db.RoleUser, "   "); err == nil {
		t.Error("expected error for empty content")
	}
	if _, err := mgr.AppendMessage(ctx, "missing", db.RoleUser, "hi"); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("missing conversation err = %v, want ErrNotFound", err)
	}
}
