package webserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/zsprackett/editor-companion/internal/applog"
	"github.com/zsprackett/editor-companion/internal/config"
	"github.com/zsprackett/editor-companion/internal/db"
	"github.com/zsprackett/editor-companion/internal/events"
	"github.com/zsprackett/editor-companion/internal/project"
)

type Config = config.WebserverConfig

// Health reports editor reachability for /api/health.
type Health interface {
	EditorConnected() bool
}

type Options struct {
	// MCP is mounted at /mcp/{project} when set.
	MCP http.Handler
	// OnProjectDeleted runs after a project is removed through the API.
	OnProjectDeleted func(id string)
	Health           Health
	EnvFile          *config.EnvFile
	Logger           *slog.Logger
}

type Server struct {
	store *db.DB
	hub   *events.Hub
	mgr   *project.Manager
	cfg   Config
	opts  Options

	signer     tokenSigner
	refreshTTL time.Duration
	logger     *slog.Logger
}

func New(store *db.DB, hub *events.Hub, mgr *project.Manager, cfg Config, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.Discard()
	}
	signer := tokenSigner{
		key: []byte(cfg.Auth.JWTSecret),
		ttl: config.Duration(cfg.Auth.AccessTokenTTL, 15*time.Minute),
	}
	return &Server{
		store:      store,
		hub:        hub,
		mgr:        mgr,
		cfg:        cfg,
		opts:       opts,
		signer:     signer,
		refreshTTL: config.Duration(cfg.Auth.RefreshTokenTTL, 7*24*time.Hour),
		logger:     logger,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/refresh", s.handleRefresh)
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)

	mux.HandleFunc("GET /api/projects", s.handleListProjects)
	mux.HandleFunc("POST /api/projects", s.handleCreateProject)
	mux.HandleFunc("GET /api/projects/{id}", s.handleGetProject)
	mux.HandleFunc("PATCH /api/projects/{id}", s.handleUpdateProject)
	mux.HandleFunc("DELETE /api/projects/{id}", s.handleDeleteProject)
	mux.HandleFunc("GET /api/projects/{id}/conversations", s.handleListConversations)
	mux.HandleFunc("POST /api/projects/{id}/conversations", s.handleStartConversation)
	mux.HandleFunc("GET /api/projects/{id}/actions", s.handleListActions)
	mux.HandleFunc("POST /api/projects/{id}/logs", s.handlePostLog)
	mux.HandleFunc("GET /api/conversations/{id}/messages", s.handleListMessages)
	mux.HandleFunc("POST /api/conversations/{id}/messages", s.handleAppendMessage)

	mux.HandleFunc("GET /api/settings", s.handleListSettings)
	mux.HandleFunc("PUT /api/settings/{key}", s.handlePutSetting)
	mux.HandleFunc("DELETE /api/settings/{key}", s.handleDeleteSetting)

	mux.HandleFunc("GET /ws/{project}", s.handleWS)
	if s.opts.MCP != nil {
		mux.Handle("/mcp/{project}", s.opts.MCP)
	}
	mux.Handle("GET /", staticHandler())

	if s.cfg.Auth.JWTSecret == "" {
		return mux
	}
	return s.requireAuth(mux)
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if !s.cfg.Enabled {
		return nil
	}
	tlsCfg, err := serverTLSConfig(s.cfg.TLS)
	if err != nil {
		return fmt.Errorf("webserver tls: %w", err)
	}
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("webserver: listening", "addr", addr, "tls", tlsCfg != nil)
		if tlsCfg != nil {
			errCh <- srv.ListenAndServeTLS("", "")
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("webserver: shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":   "ok",
		"sessions": len(s.hub.Sessions()),
	}
	if s.opts.Health != nil {
		resp["editor_connected"] = s.opts.Health.EditorConnected()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps lookup failures to 404 and everything else to 500.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	s.logger.Error("webserver: request failed", "err", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	return json.NewDecoder(r.Body).Decode(v)
}
