package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type LevelOpenInput struct {
	LevelPath string `json:"level_path" jsonschema:"content path of the level, e.g. /Game/Maps/Main"`
}

func (t *Toolset) LevelOpen(ctx context.Context, _ *mcp.CallToolRequest, in LevelOpenInput) (*mcp.CallToolResult, Result, error) {
	path, err := requireString("level_path", in.LevelPath)
	if err != nil {
		return nil, Result{}, err
	}
	if !strings.HasPrefix(path, "/") {
		return nil, Result{}, fmt.Errorf("level_path must be a content path starting with /")
	}
	return t.run(ctx, "level_open", "open_level", map[string]any{"level_path": path})
}

type LevelSaveInput struct{}

func (t *Toolset) LevelSave(ctx context.Context, _ *mcp.CallToolRequest, _ LevelSaveInput) (*mcp.CallToolResult, Result, error) {
	return t.run(ctx, "level_save", "save_level", map[string]any{})
}

type GetActorsInput struct{}

func (t *Toolset) GetActorsInLevel(ctx context.Context, _ *mcp.CallToolRequest, _ GetActorsInput) (*mcp.CallToolResult, Result, error) {
	return t.run(ctx, "get_actors_in_level", "get_actors_in_level", map[string]any{})
}

type EditorLogInput struct {
	Message string `json:"message" jsonschema:"text to show in the live log"`
	Level   string `json:"level,omitempty" jsonschema:"info, warning or error; defaults to info"`
}

type EditorLogResult struct {
	Delivered bool `json:"delivered" jsonschema:"whether the line was handed to the live log"`
}

func (t *Toolset) EditorLog(ctx context.Context, _ *mcp.CallToolRequest, in EditorLogInput) (*mcp.CallToolResult, EditorLogResult, error) {
	msg, err := requireString("message", in.Message)
	if err != nil {
		return nil, EditorLogResult{}, err
	}
	level := strings.ToLower(strings.TrimSpace(in.Level))
	switch level {
	case "":
		level = "info"
	case "info", "warning", "error":
	default:
		return nil, EditorLogResult{}, fmt.Errorf("level must be info, warning or error")
	}
	if t.emitter == nil {
		return nil, EditorLogResult{}, nil
	}
	t.emitter.Log(ctx, t.project, "editor", msg, map[string]any{"level": level})
	return nil, EditorLogResult{Delivered: true}, nil
}
