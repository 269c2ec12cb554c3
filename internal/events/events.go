package events

import "context"

// Event types pushed to live viewers.
const (
	TypeLog         = "log"
	TypeStatus      = "status"
	TypeActionStart = "action_start"
	TypeActionEnd   = "action_end"
)

// Event is the envelope pushed to web clients: a type discriminator and a
// payload whose shape depends on the type.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// StatusPayload reports editor and MCP connectivity for a project.
type StatusPayload struct {
	UnrealConnected bool `json:"unreal_connected"`
	MCPConnected    bool `json:"mcp_connected"`
}

// ActionStartPayload announces a tool invocation before it is forwarded.
type ActionStartPayload struct {
	Tool   string         `json:"tool"`
	Params map[string]any `json:"params"`
}

// ActionEndPayload reports the outcome of a tool invocation.
type ActionEndPayload struct {
	Tool    string `json:"tool"`
	Result  string `json:"result"`
	Success bool   `json:"success"`
}

// LogEvent builds a log event. Extra fields are merged into the payload;
// "type" and "message" always win on collision.
func LogEvent(logType, message string, extra map[string]any) Event {
	payload := make(map[string]any, len(extra)+2)
	for k, v := range extra {
		payload[k] = v
	}
	payload["type"] = logType
	payload["message"] = message
	return Event{Type: TypeLog, Payload: payload}
}

func StatusEvent(unrealConnected, mcpConnected bool) Event {
	return Event{Type: TypeStatus, Payload: StatusPayload{
		UnrealConnected: unrealConnected,
		MCPConnected:    mcpConnected,
	}}
}

func ActionStartEvent(tool string, params map[string]any) Event {
	if params == nil {
		params = map[string]any{}
	}
	return Event{Type: TypeActionStart, Payload: ActionStartPayload{Tool: tool, Params: params}}
}

func ActionEndEvent(tool, result string, success bool) Event {
	return Event{Type: TypeActionEnd, Payload: ActionEndPayload{Tool: tool, Result: result, Success: success}}
}

// Emitter is what producers (tool execution, status checks, chat) publish
// through. *Hub implements it; a nil *Hub is safe and drops everything.
type Emitter interface {
	Log(ctx context.Context, key, logType, message string, extra map[string]any)
	Status(ctx context.Context, key string, unrealConnected, mcpConnected bool)
	ActionStart(ctx context.Context, key, tool string, params map[string]any)
	ActionEnd(ctx context.Context, key, tool, result string, success bool)
}
