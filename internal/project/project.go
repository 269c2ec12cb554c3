package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zsprackett/editor-companion/internal/applog"
	"github.com/zsprackett/editor-companion/internal/db"
	"github.com/zsprackett/editor-companion/internal/events"
)

// ErrInvalidName is returned for names that are empty or contain a slash.
var ErrInvalidName = errors.New("invalid project name")

var adjectives = []string{
	"swift", "bright", "calm", "deep", "eager", "fair", "gentle", "happy",
	"keen", "light", "mild", "noble", "proud", "quick", "rich", "safe",
	"true", "vivid", "warm", "wise", "bold", "cool", "dark", "fast",
}

var nouns = []string{
	"canyon", "harbor", "meadow", "summit", "forest", "glacier", "island", "valley",
	"citadel", "tower", "bridge", "cavern", "dune", "fjord", "grove", "lagoon",
	"mesa", "oasis", "reef", "ridge", "spire", "tundra", "vault", "wharf",
}

func GenerateName() string {
	adj := adjectives[rand.Intn(len(adjectives))]
	noun := nouns[rand.Intn(len(nouns))]
	return fmt.Sprintf("%s-%s", adj, noun)
}

type Store interface {
	SaveProject(p *db.Project) error
	GetProject(id string) (*db.Project, error)
	UpdateProjectField(id, field, value string) error
	DeleteProject(id string) error
	SaveConversation(c *db.Conversation) error
	GetConversation(id string) (*db.Conversation, error)
	InsertMessage(m *db.Message) error
}

type CreateOptions struct {
	Name        string
	Path        string
	Description string
}

type Manager struct {
	store   Store
	emitter events.Emitter
	logger  *slog.Logger
}

// NewManager returns a Manager. emitter may be nil, in which case messages
// are stored but not echoed.
func NewManager(store Store, emitter events.Emitter, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = applog.Discard()
	}
	return &Manager{store: store, emitter: emitter, logger: logger}
}

func validName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, "/\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return name, nil
}

func (m *Manager) CreateProject(opts CreateOptions) (*db.Project, error) {
	name := opts.Name
	if strings.TrimSpace(name) == "" {
		name = GenerateName()
	}
	name, err := validName(name)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	p := &db.Project{
		ID:          uuid.NewString(),
		Name:        name,
		Path:        opts.Path,
		Description: opts.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.store.SaveProject(p); err != nil {
		return nil, fmt.Errorf("save project: %w", err)
	}
	m.logger.Info("project: created", "id", p.ID, "name", p.Name)
	return p, nil
}

func (m *Manager) RenameProject(id, name string) error {
	name, err := validName(name)
	if err != nil {
		return err
	}
	return m.store.UpdateProjectField(id, "name", name)
}

type UpdateOptions struct {
	Name        *string
	Path        *string
	Description *string
}

// UpdateProject applies the non-nil fields of opts.
func (m *Manager) UpdateProject(id string, opts UpdateOptions) (*db.Project, error) {
	if opts.Name != nil {
		if err := m.RenameProject(id, *opts.Name); err != nil {
			return nil, err
		}
	}
	if opts.Path != nil {
		if err := m.store.UpdateProjectField(id, "path", *opts.Path); err != nil {
			return nil, err
		}
	}
	if opts.Description != nil {
		if err := m.store.UpdateProjectField(id, "description", *opts.Description); err != nil {
			return nil, err
		}
	}
	return m.store.GetProject(id)
}

func (m *Manager) DeleteProject(id string) error {
	if err := m.store.DeleteProject(id); err != nil {
		return err
	}
	m.logger.Info("project: deleted", "id", id)
	return nil
}

// StartConversation opens a conversation with agent under projectID.
func (m *Manager) StartConversation(projectID, agent, title string) (*db.Conversation, error) {
	if _, err := m.store.GetProject(projectID); err != nil {
		return nil, err
	}
	agent = strings.TrimSpace(agent)
	if agent == "" {
		return nil, fmt.Errorf("agent is required")
	}
	if strings.TrimSpace(title) == "" {
		title = GenerateName()
	}
	c := &db.Conversation{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Agent:     agent,
		Title:     title,
		CreatedAt: time.Now(),
	}
	if err := m.store.SaveConversation(c); err != nil {
		return nil, fmt.Errorf("save conversation: %w", err)
	}
	return c, nil
}

// AppendMessage stores a message and echoes it to the viewers of the
// conversation's project as a "chat" log event.
func (m *Manager) AppendMessage(ctx context.Context, conversationID string, role db.Role, content string) (*db.Message, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("content is required")
	}
	conv, err := m.store.GetConversation(conversationID)
	if err != nil {
		return nil, err
	}
	msg := &db.Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
	}
	if err := m.store.InsertMessage(msg); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	if m.emitter != nil {
		m.emitter.Log(ctx, conv.ProjectID, "chat", content, map[string]any{
			"conversation_id": conversationID,
			"role":            string(role),
			"message_id":      msg.ID,
		})
	}
	return msg, nil
}
