package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const defaultMaterialPath = "/Game/Materials"

type CreateMaterialInput struct {
	Name      string    `json:"name" jsonschema:"asset name, e.g. M_Brick"`
	Path      string    `json:"path,omitempty" jsonschema:"content folder; defaults to /Game/Materials"`
	BaseColor []float64 `json:"base_color,omitempty" jsonschema:"linear r, g, b[, a] in 0..1"`
	Metallic  *float64  `json:"metallic,omitempty" jsonschema:"0..1"`
	Roughness *float64  `json:"roughness,omitempty" jsonschema:"0..1"`
}

func (t *Toolset) CreateMaterial(ctx context.Context, _ *mcp.CallToolRequest, in CreateMaterialInput) (*mcp.CallToolResult, Result, error) {
	name, err := requireString("name", in.Name)
	if err != nil {
		return nil, Result{}, err
	}
	if strings.ContainsAny(name, `/\ .`) {
		return nil, Result{}, fmt.Errorf("name must not contain path separators, spaces or dots")
	}
	path := strings.TrimRight(strings.TrimSpace(in.Path), "/")
	if path == "" {
		path = defaultMaterialPath
	}
	if !strings.HasPrefix(path, "/") {
		return nil, Result{}, fmt.Errorf("path must be a content path starting with /")
	}
	base, err := color("base_color", in.BaseColor)
	if err != nil {
		return nil, Result{}, err
	}
	if err := unitRange("metallic", in.Metallic); err != nil {
		return nil, Result{}, err
	}
	if err := unitRange("roughness", in.Roughness); err != nil {
		return nil, Result{}, err
	}

	params := map[string]any{"name": name, "path": path}
	if base != nil {
		params["base_color"] = base
	}
	if in.Metallic != nil {
		params["metallic"] = *in.Metallic
	}
	if in.Roughness != nil {
		params["roughness"] = *in.Roughness
	}
	return t.run(ctx, "create_material", "create_material", params)
}
