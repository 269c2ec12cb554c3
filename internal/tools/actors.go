package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// lightClasses maps the light_type argument to the editor actor class.
var lightClasses = map[string]string{
	"point":       "PointLight",
	"spot":        "SpotLight",
	"directional": "DirectionalLight",
	"rect":        "RectLight",
}

type SpawnLightInput struct {
	LightType string    `json:"light_type" jsonschema:"point, spot, directional or rect"`
	Name      string    `json:"name" jsonschema:"actor name, unique in the level"`
	Location  []float64 `json:"location,omitempty" jsonschema:"x, y, z in world units"`
	Intensity *float64  `json:"intensity,omitempty" jsonschema:"light intensity, must not be negative"`
	Color     []float64 `json:"color,omitempty" jsonschema:"linear r, g, b in 0..1"`
}

func (t *Toolset) SpawnLight(ctx context.Context, _ *mcp.CallToolRequest, in SpawnLightInput) (*mcp.CallToolResult, Result, error) {
	class, ok := lightClasses[strings.ToLower(strings.TrimSpace(in.LightType))]
	if !ok {
		return nil, Result{}, fmt.Errorf("light_type must be one of point, spot, directional, rect")
	}
	name, err := requireString("name", in.Name)
	if err != nil {
		return nil, Result{}, err
	}
	location, err := vector("location", in.Location)
	if err != nil {
		return nil, Result{}, err
	}
	if in.Intensity != nil && *in.Intensity < 0 {
		return nil, Result{}, fmt.Errorf("intensity must not be negative")
	}
	col, err := color("color", in.Color)
	if err != nil {
		return nil, Result{}, err
	}

	params := map[string]any{"type": class, "name": name}
	if location != nil {
		params["location"] = location
	}
	if in.Intensity != nil {
		params["intensity"] = *in.Intensity
	}
	if col != nil {
		params["color"] = col
	}
	return t.run(ctx, "spawn_light", "spawn_actor", params)
}

type SpawnActorInput struct {
	ActorClass string    `json:"actor_class" jsonschema:"actor class, e.g. StaticMeshActor"`
	Name       string    `json:"name" jsonschema:"actor name, unique in the level"`
	Location   []float64 `json:"location,omitempty" jsonschema:"x, y, z in world units"`
	Rotation   []float64 `json:"rotation,omitempty" jsonschema:"pitch, yaw, roll in degrees"`
}

func (t *Toolset) SpawnActor(ctx context.Context, _ *mcp.CallToolRequest, in SpawnActorInput) (*mcp.CallToolResult, Result, error) {
	class, err := requireString("actor_class", in.ActorClass)
	if err != nil {
		return nil, Result{}, err
	}
	name, err := requireString("name", in.Name)
	if err != nil {
		return nil, Result{}, err
	}
	params := map[string]any{"type": class, "name": name}
	if err := putVectors(params, map[string][]float64{"location": in.Location, "rotation": in.Rotation}); err != nil {
		return nil, Result{}, err
	}
	return t.run(ctx, "spawn_actor", "spawn_actor", params)
}

type DeleteActorInput struct {
	Name string `json:"name" jsonschema:"name of the actor to delete"`
}

func (t *Toolset) DeleteActor(ctx context.Context, _ *mcp.CallToolRequest, in DeleteActorInput) (*mcp.CallToolResult, Result, error) {
	name, err := requireString("name", in.Name)
	if err != nil {
		return nil, Result{}, err
	}
	return t.run(ctx, "delete_actor", "delete_actor", map[string]any{"name": name})
}

type SetActorTransformInput struct {
	Name     string    `json:"name" jsonschema:"name of the actor to move"`
	Location []float64 `json:"location,omitempty" jsonschema:"x, y, z in world units"`
	Rotation []float64 `json:"rotation,omitempty" jsonschema:"pitch, yaw, roll in degrees"`
	Scale    []float64 `json:"scale,omitempty" jsonschema:"x, y, z scale factors"`
}

func (t *Toolset) SetActorTransform(ctx context.Context, _ *mcp.CallToolRequest, in SetActorTransformInput) (*mcp.CallToolResult, Result, error) {
	name, err := requireString("name", in.Name)
	if err != nil {
		return nil, Result{}, err
	}
	params := map[string]any{"name": name}
	if err := putVectors(params, map[string][]float64{
		"location": in.Location,
		"rotation": in.Rotation,
		"scale":    in.Scale,
	}); err != nil {
		return nil, Result{}, err
	}
	if len(params) == 1 {
		return nil, Result{}, fmt.Errorf("at least one of location, rotation, scale is required")
	}
	return t.run(ctx, "set_actor_transform", "set_actor_transform", params)
}

func putVectors(params map[string]any, vectors map[string][]float64) error {
	for field, v := range vectors {
		checked, err := vector(field, v)
		if err != nil {
			return err
		}
		if checked != nil {
			params[field] = checked
		}
	}
	return nil
}
