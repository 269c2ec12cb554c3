package editor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"
)

// DefaultTimeout bounds one command round trip.
const DefaultTimeout = 10 * time.Second

// ErrNotConnected means the editor listener could not be reached.
var ErrNotConnected = errors.New("editor not connected")

// CommandError is an error the editor reported for a command.
type CommandError struct {
	Command string
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("editor command %s: %s", e.Command, e.Message)
}

type request struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params"`
}

type response struct {
	Status  string `json:"status"`
	Success *bool  `json:"success"`
	Result  any    `json:"result"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Client sends commands to the editor's TCP listener, one JSON request and
// one JSON response per connection.
type Client struct {
	addr    string
	timeout time.Duration
	dialer  net.Dialer
}

func NewClient(addr string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{addr: addr, timeout: timeout}
}

func (c *Client) Addr() string { return c.addr }

// SendCommand forwards command with params and returns the editor's result.
func (c *Client) SendCommand(ctx context.Context, command string, params map[string]any) (map[string]any, error) {
	if params == nil {
		params = map[string]any{}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if err := json.NewEncoder(conn).Encode(request{Type: command, Params: params}); err != nil {
		return nil, fmt.Errorf("send %s: %w", command, err)
	}

	var raw map[string]any
	if err := json.NewDecoder(conn).Decode(&raw); err != nil {
		return nil, fmt.Errorf("read %s response: %w", command, err)
	}
	return decodeResponse(command, raw)
}

// decodeResponse accepts both {"status": "...", "result": {...}} and
// {"success": bool, ...} response styles.
func decodeResponse(command string, raw map[string]any) (map[string]any, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", command, err)
	}

	failed := resp.Status == "error" || (resp.Success != nil && !*resp.Success)
	if failed {
		msg := resp.Error
		if msg == "" {
			msg = resp.Message
		}
		if msg == "" {
			msg = "unknown error"
		}
		return nil, &CommandError{Command: command, Message: msg}
	}
	switch result := resp.Result.(type) {
	case map[string]any:
		return result, nil
	case nil:
	default:
		return map[string]any{"result": result}, nil
	}
	return raw, nil
}

// Ping reports whether the editor listener accepts connections.
func (c *Client) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
