package events_test

import (
	"encoding/json"
	"testing"

	"github.com/zsprackett/editor-companion/internal/events"
)

func marshal(t *testing.T, e events.Event) string {
	t.Helper()
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(data)
}

func TestLogEventMergesExtraFields(t *testing.T) {
	e := events.LogEvent("tool", "spawned light", map[string]any{
		"actor":   "KeyLight",
		"message": "overridden?",
		"type":    "overridden?",
	})
	want := `{"type":"log","payload":{"actor":"KeyLight","message":"spawned light","type":"tool"}}`
	if got := marshal(t, e); got != want {
		t.Errorf("\n got %s\nwant %s", got, want)
	}
}

func TestLogEventWithoutExtra(t *testing.T) {
	want := `{"type":"log","payload":{"message":"ready","type":"info"}}`
	if got := marshal(t, events.LogEvent("info", "ready", nil)); got != want {
		t.Errorf("\n got %s\nwant %s", got, want)
	}
}

func TestStatusEventShape(t *testing.T) {
	want := `{"type":"status","payload":{"unreal_connected":true,"mcp_connected":false}}`
	if got := marshal(t, events.StatusEvent(true, false)); got != want {
		t.Errorf("\n got %s\nwant %s", got, want)
	}
}

func TestActionEndEventShape(t *testing.T) {
	want := `{"type":"action_end","payload":{"tool":"create_material","result":"created M_Red","success":true}}`
	if got := marshal(t, events.ActionEndEvent("create_material", "created M_Red", true)); got != want {
		t.Errorf("\n got %s\nwant %s", got, want)
	}
}

func TestActionStartNilParamsIsEmptyObject(t *testing.T) {
	want := `{"type":"action_start","payload":{"tool":"level_save","params":{}}}`
	if got := marshal(t, events.ActionStartEvent("level_save", nil)); got != want {
		t.Errorf("\n got %s\nwant %s", got, want)
	}
}
