package tools

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/zsprackett/editor-companion/internal/applog"
	"github.com/zsprackett/editor-companion/internal/db"
	"github.com/zsprackett/editor-companion/internal/events"
)

// ProjectLookup resolves the {project} path segment of an MCP request.
type ProjectLookup interface {
	GetProject(id string) (*db.Project, error)
}

// Registry lazily builds one MCP server per project so that tool calls
// arriving on /mcp/{project} broadcast to that project's viewers.
type Registry struct {
	mu       sync.Mutex
	servers  map[string]*mcp.Server
	projects ProjectLookup
	editor   Commander
	emitter  events.Emitter
	recorder ActionRecorder
	logger   *slog.Logger
}

func NewRegistry(projects ProjectLookup, editor Commander, emitter events.Emitter, recorder ActionRecorder, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = applog.Discard()
	}
	return &Registry{
		servers:  make(map[string]*mcp.Server),
		projects: projects,
		editor:   editor,
		emitter:  emitter,
		recorder: recorder,
		logger:   logger,
	}
}

// Server returns the MCP server for project, creating it on first use.
// Unknown projects yield db.ErrNotFound.
func (r *Registry) Server(project string) (*mcp.Server, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if srv, ok := r.servers[project]; ok {
		return srv, nil
	}
	if _, err := r.projects.GetProject(project); err != nil {
		return nil, fmt.Errorf("mcp server for %q: %w", project, err)
	}
	srv := NewServer(NewToolset(project, r.editor, r.emitter, r.recorder, r.logger))
	r.servers[project] = srv
	r.logger.Info("tools: mcp server created", "project", project)
	return srv, nil
}

// Forget drops the server of a deleted project. Open sessions keep running
// until their clients disconnect.
func (r *Registry) Forget(project string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.servers, project)
}

// ActiveSessions counts the MCP client sessions attached to project.
func (r *Registry) ActiveSessions(project string) int {
	r.mu.Lock()
	srv := r.servers[project]
	r.mu.Unlock()
	if srv == nil {
		return 0
	}
	n := 0
	for range srv.Sessions() {
		n++
	}
	return n
}

// Handler serves the streamable HTTP transport. It must be mounted on a
// pattern that binds {project}.
func (r *Registry) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(req *http.Request) *mcp.Server {
		srv, err := r.Server(req.PathValue("project"))
		if err != nil {
			r.logger.Warn("tools: rejecting mcp request", "path", req.URL.Path, "err", err)
			return nil
		}
		return srv
	}, nil)
}
