package webserver

import (
	"errors"
	"net/http"

	"github.com/zsprackett/editor-companion/internal/config"
)

// handleListSettings returns the env file's KEY=VALUE pairs with values
// masked. Changes take effect on the next start.
func (s *Server) handleListSettings(w http.ResponseWriter, r *http.Request) {
	if s.opts.EnvFile == nil {
		writeError(w, http.StatusNotFound, "settings are not available")
		return
	}
	values, err := s.opts.EnvFile.Masked()
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": values})
}

func (s *Server) handlePutSetting(w http.ResponseWriter, r *http.Request) {
	if s.opts.EnvFile == nil {
		writeError(w, http.StatusNotFound, "settings are not available")
		return
	}
	var body struct {
		Value string `json:"value"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	key := r.PathValue("key")
	if err := s.opts.EnvFile.Set(key, body.Value); err != nil {
		if errors.Is(err, config.ErrInvalidKey) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeStoreError(w, err)
		return
	}
	s.logger.Info("webserver: setting updated", "key", key, "by", Username(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteSetting(w http.ResponseWriter, r *http.Request) {
	if s.opts.EnvFile == nil {
		writeError(w, http.StatusNotFound, "settings are not available")
		return
	}
	key := r.PathValue("key")
	if err := s.opts.EnvFile.Delete(key); err != nil {
		if errors.Is(err, config.ErrInvalidKey) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
