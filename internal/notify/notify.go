package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/zsprackett/editor-companion/internal/applog"
)

// Config holds notification settings.
type Config struct {
	Enabled bool   `json:"enabled"`
	Webhook string `json:"webhook"`
	NtfyURL string `json:"ntfy"`
}

// Notifier posts editor connectivity changes to an optional webhook and an
// optional ntfy topic.
type Notifier struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// New returns a Notifier with the given config.
func New(cfg Config, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = applog.Discard()
	}
	return &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger,
	}
}

// EditorDisconnected reports that the editor at addr stopped answering.
func (n *Notifier) EditorDisconnected(addr string) {
	n.send(alert{
		event:    "editor_disconnected",
		title:    "Editor disconnected",
		message:  fmt.Sprintf("lost connection to the editor at %s", addr),
		addr:     addr,
		priority: 4,
		tags:     []string{"rotating_light"},
	})
}

// EditorRestored reports that the editor at addr answers again.
func (n *Notifier) EditorRestored(addr string) {
	n.send(alert{
		event:    "editor_restored",
		title:    "Editor reconnected",
		message:  fmt.Sprintf("the editor at %s is reachable again", addr),
		addr:     addr,
		priority: 3,
		tags:     []string{"white_check_mark"},
	})
}

type alert struct {
	event    string
	title    string
	message  string
	addr     string
	priority int
	tags     []string
}

func (n *Notifier) send(a alert) {
	if n == nil || !n.cfg.Enabled {
		return
	}
	if n.cfg.Webhook != "" {
		n.sendWebhook(a)
	}
	if n.cfg.NtfyURL != "" {
		n.sendNtfy(a)
	}
}

type webhookPayload struct {
	Event     string `json:"event"`
	Editor    string `json:"editor"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func (n *Notifier) sendWebhook(a alert) {
	n.post("webhook", n.cfg.Webhook, webhookPayload{
		Event:     a.event,
		Editor:    a.addr,
		Message:   a.message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

type ntfyPayload struct {
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Priority int      `json:"priority"`
	Tags     []string `json:"tags"`
}

func (n *Notifier) sendNtfy(a alert) {
	n.post("ntfy", n.cfg.NtfyURL, ntfyPayload{
		Title:    a.title,
		Message:  a.message,
		Priority: a.priority,
		Tags:     a.tags,
	})
}

func (n *Notifier) post(kind, url string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	resp, err := n.client.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		n.logger.Warn("notify: "+kind+" failed", "url", url, "err", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.logger.Warn("notify: "+kind+" rejected", "url", url, "status", resp.StatusCode)
	}
}
