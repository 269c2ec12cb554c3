package webserver

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/zsprackett/editor-companion/internal/db"
	"github.com/zsprackett/editor-companion/internal/project"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

func listLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	return min(n, maxListLimit)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.LoadProjects()
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if projects == nil {
		projects = []*db.Project{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string `json:"name"`
		Path        string `json:"path"`
		Description string `json:"description"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := s.mgr.CreateProject(project.CreateOptions{
		Name:        body.Name,
		Path:        body.Path,
		Description: body.Description,
	})
	if errors.Is(err, project.ErrInvalidName) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetProject(r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        *string `json:"name"`
		Path        *string `json:"path"`
		Description *string `json:"description"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := s.mgr.UpdateProject(r.PathValue("id"), project.UpdateOptions{
		Name:        body.Name,
		Path:        body.Path,
		Description: body.Description,
	})
	if errors.Is(err, project.ErrInvalidName) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.mgr.DeleteProject(id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	if s.opts.OnProjectDeleted != nil {
		s.opts.OnProjectDeleted(id)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetProject(id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	convs, err := s.store.LoadConversations(id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if convs == nil {
		convs = []*db.Conversation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

func (s *Server) handleStartConversation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Agent string `json:"agent"`
		Title string `json:"title"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(body.Agent) == "" {
		writeError(w, http.StatusBadRequest, "agent is required")
		return
	}
	c, err := s.mgr.StartConversation(r.PathValue("id"), body.Agent, body.Title)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetConversation(id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	msgs, err := s.store.GetMessages(id, listLimit(r))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if msgs == nil {
		msgs = []db.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Role    db.Role `json:"role"`
		Content string  `json:"content"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !body.Role.Valid() || strings.TrimSpace(body.Content) == "" {
		writeError(w, http.StatusBadRequest, "role must be user, assistant, system or tool and content is required")
		return
	}
	msg, err := s.mgr.AppendMessage(r.Context(), r.PathValue("id"), body.Role, body.Content)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetProject(id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	actions, err := s.store.GetActions(id, listLimit(r))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if actions == nil {
		actions = []db.Action{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": actions})
}

// handlePostLog lets agents and scripts push a line into a project's live
// log. Extra fields are merged into the payload; type and message win.
func (s *Server) handlePostLog(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Type    string         `json:"type"`
		Message string         `json:"message"`
		Extra   map[string]any `json:"extra"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(body.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if body.Type == "" {
		body.Type = "info"
	}
	id := r.PathValue("id")
	if _, err := s.store.GetProject(id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.hub.Log(r.Context(), id, body.Type, body.Message, body.Extra)
	writeJSON(w, http.StatusAccepted, map[string]int{"subscribers": s.hub.Subscribers(id)})
}
