package httpserver

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/textgen-horde/internal/domain"
)

// WorkersHandler lists every registered worker, stale ones included.
func (s *Server) WorkersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.Engine.Workers())
	}
}

// WorkerHandler returns a single worker by its registered name.
func (s *Server) WorkerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if name == "" {
			writeError(w, r, fmt.Errorf("%w: worker name missing", domain.ErrInvalidArgument), nil)
			return
		}
		info, err := s.Engine.WorkerInfoByName(name)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

// TopWorkerHandler returns the worker with the most contributed tokens.
func (s *Server) TopWorkerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, ok := s.Engine.TopWorker()
		if !ok {
			writeError(w, r, fmt.Errorf("%w: no contributions recorded yet", domain.ErrNotFound), nil)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

// ModelsHandler maps each actively served model to its worker count.
func (s *Server) ModelsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.Engine.AvailableModels())
	}
}

// StatusHandler reports horde-wide queue depth, capacity and throughput.
func (s *Server) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.Engine.Status())
	}
}
