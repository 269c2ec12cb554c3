package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/zsprackett/editor-companion/internal/applog"
	"github.com/zsprackett/editor-companion/internal/db"
	"github.com/zsprackett/editor-companion/internal/events"
)

const (
	serverName    = "editor-companion"
	serverVersion = "0.3.0"
	// maxResultLen caps the result text sent to viewers and stored per action.
	maxResultLen = 500
)

// Commander forwards one command to the editor.
type Commander interface {
	SendCommand(ctx context.Context, command string, params map[string]any) (map[string]any, error)
}

type ActionRecorder interface {
	InsertAction(a *db.Action) error
}

// Toolset binds the tools to one project.
type Toolset struct {
	project  string
	editor   Commander
	emitter  events.Emitter
	recorder ActionRecorder
	logger   *slog.Logger
}

// NewToolset returns tools for project. emitter and recorder may be nil.
func NewToolset(project string, editor Commander, emitter events.Emitter, recorder ActionRecorder, logger *slog.Logger) *Toolset {
	if logger == nil {
		logger = applog.Discard()
	}
	return &Toolset{
		project:  project,
		editor:   editor,
		emitter:  emitter,
		recorder: recorder,
		logger:   logger,
	}
}

// Result is the structured output of every forwarding tool.
type Result struct {
	Tool    string         `json:"tool" jsonschema:"tool that ran"`
	Success bool           `json:"success" jsonschema:"whether the editor accepted the command"`
	Result  map[string]any `json:"result,omitempty" jsonschema:"data returned by the editor"`
}

// run is the single execution path: announce, forward, record, report.
func (t *Toolset) run(ctx context.Context, tool, command string, params map[string]any) (*mcp.CallToolResult, Result, error) {
	if t.emitter != nil {
		t.emitter.ActionStart(ctx, t.project, tool, params)
	}

	result, err := t.editor.SendCommand(ctx, command, params)
	summary := summarize(result, err)
	success := err == nil

	t.record(tool, params, summary, success)
	if t.emitter != nil {
		t.emitter.ActionEnd(ctx, t.project, tool, summary, success)
	}

	if err != nil {
		t.logger.Warn("tools: command failed", "project", t.project, "tool", tool, "err", err)
		return nil, Result{}, fmt.Errorf("%s: %w", tool, err)
	}
	t.logger.Debug("tools: command ok", "project", t.project, "tool", tool)
	return nil, Result{Tool: tool, Success: true, Result: result}, nil
}

func (t *Toolset) record(tool string, params map[string]any, summary string, success bool) {
	if t.recorder == nil {
		return
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		encoded = []byte("{}")
	}
	a := &db.Action{
		ProjectID: t.project,
		Tool:      tool,
		Params:    string(encoded),
		Result:    summary,
		Success:   success,
	}
	if err := t.recorder.InsertAction(a); err != nil {
		t.logger.Warn("tools: record action failed", "project", t.project, "tool", tool, "err", err)
	}
}

func summarize(result map[string]any, err error) string {
	if err != nil {
		return truncate(err.Error())
	}
	if len(result) == 0 {
		return "ok"
	}
	data, jerr := json.Marshal(result)
	if jerr != nil {
		return "ok"
	}
	return truncate(string(data))
}

func truncate(s string) string {
	if len(s) <= maxResultLen {
		return s
	}
	cut := maxResultLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

// NewServer builds an MCP server carrying every tool of ts.
func NewServer(ts *Toolset) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)
	register(server, ts)
	return server
}

func register(server *mcp.Server, ts *Toolset) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "level_open",
		Description: "Opens a level in the editor by content path.",
	}, ts.LevelOpen)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "level_save",
		Description: "Saves the currently open level.",
	}, ts.LevelSave)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "spawn_light",
		Description: "Spawns a point, spot, directional or rect light in the open level.",
	}, ts.SpawnLight)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "spawn_actor",
		Description: "Spawns an actor of the given class in the open level.",
	}, ts.SpawnActor)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_actor",
		Description: "Deletes an actor from the open level by name.",
	}, ts.DeleteActor)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_actor_transform",
		Description: "Sets location, rotation and/or scale of an actor.",
	}, ts.SetActorTransform)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_actors_in_level",
		Description: "Lists the actors in the open level.",
	}, ts.GetActorsInLevel)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_material",
		Description: "Creates a material asset with optional base color, metallic and roughness.",
	}, ts.CreateMaterial)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "editor_log",
		Description: "Posts a line to the project's live log without touching the editor.",
	}, ts.EditorLog)
}

// --- argument validation ---

func requireString(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("%s is required", field)
	}
	return v, nil
}

func vector(field string, v []float64) ([]float64, error) {
	if v == nil {
		return nil, nil
	}
	if len(v) != 3 {
		return nil, fmt.Errorf("%s must have 3 components, got %d", field, len(v))
	}
	return v, nil
}

func unitRange(field string, v *float64) error {
	if v != nil && (*v < 0 || *v > 1) {
		return fmt.Errorf("%s must be between 0 and 1", field)
	}
	return nil
}

func color(field string, v []float64) ([]float64, error) {
	if v == nil {
		return nil, nil
	}
	if len(v) != 3 && len(v) != 4 {
		return nil, fmt.Errorf("%s must have 3 or 4 components, got %d", field, len(v))
	}
	for _, c := range v {
		if c < 0 || c > 1 {
			return nil, fmt.Errorf("%s components must be between 0 and 1", field)
		}
	}
	return v, nil
}
