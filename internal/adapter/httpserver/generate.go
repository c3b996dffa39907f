package httpserver

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/textgen-horde/internal/adapter/observability"
	"github.com/fairyhunter13/textgen-horde/internal/domain"
	"github.com/fairyhunter13/textgen-horde/internal/usecase"
)

// GenerateAsyncHandler enqueues a prompt for asynchronous generation.
func (s *Server) GenerateAsyncHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !negotiateJSON(w, r) {
			return
		}
		user, ok := s.requireUser(w, r)
		if !ok {
			return
		}
		var req struct {
			Prompt      string         `json:"prompt" validate:"required"`
			Params      map[string]any `json:"params"`
			Models      []string       `json:"models"`
			Servers     []string       `json:"servers"`
			Softprompts []string       `json:"softprompts"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		// A prompt that cannot fit the requested context window would be
		// skipped by every worker forever; reject it up front.
		maxContent := domain.ParamInt(req.Params, "max_content_length", domain.DefaultMaxContentLength)
		if est := s.Tokens.EstimateTokens(req.Prompt); est > maxContent {
			writeError(w, r, fmt.Errorf("%w: prompt is %d tokens, over the max_content_length of %d", domain.ErrInvalidArgument, est, maxContent),
				map[string]int{"prompt_tokens": est, "max_content_length": maxContent})
			return
		}
		wp, err := s.Engine.SubmitPrompt(user, domain.PromptRequest{
			Prompt:      req.Prompt,
			Params:      req.Params,
			Models:      req.Models,
			Servers:     req.Servers,
			Softprompts: req.Softprompts,
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		observability.RecordPromptSubmitted()
		writeJSON(w, http.StatusOK, map[string]string{"id": wp.ID})
	}
}

// promptStatus answers both status polls; lite leaves out generation texts.
func (s *Server) promptStatus(w http.ResponseWriter, r *http.Request, lite bool) {
	id := chi.URLParam(r, "id")
	if vr := ValidatePromptID(id); !vr.Valid {
		writeError(w, r, fmt.Errorf("%w: invalid prompt id", domain.ErrInvalidArgument), vr.Errors)
		return
	}
	st, err := s.Engine.PromptStatus(id, lite)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GenerateStatusHandler returns the full status of a waiting prompt,
// delivered texts included.
func (s *Server) GenerateStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) { s.promptStatus(w, r, false) }
}

// GenerateCheckHandler returns the lite status used while polling.
func (s *Server) GenerateCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) { s.promptStatus(w, r, true) }
}

// GeneratePopHandler hands the polling worker the highest-priority prompt it
// can serve, or the per-reason counts of what it had to skip.
func (s *Server) GeneratePopHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !negotiateJSON(w, r) {
			return
		}
		owner, ok := s.requireUser(w, r)
		if !ok {
			return
		}
		var req struct {
			Name             string   `json:"name" validate:"required"`
			Model            string   `json:"model" validate:"required"`
			MaxLength        int      `json:"max_length"`
			MaxContentLength int      `json:"max_content_length"`
			Softprompts      []string `json:"softprompts"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		name := SanitizeString(req.Name)
		if vr := ValidateWorkerName(name); !vr.Valid {
			writeError(w, r, fmt.Errorf("%w: invalid worker name", domain.ErrInvalidArgument), vr.Errors)
			return
		}
		res, err := s.Engine.PopGeneration(r.Context(), owner, usecase.CheckInRequest{
			Name:             name,
			Model:            req.Model,
			MaxLength:        req.MaxLength,
			MaxContentLength: req.MaxContentLength,
			Softprompts:      req.Softprompts,
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if res.Envelope == nil {
			observability.RecordDispatchSkips(res.Skipped)
			skipped := res.Skipped
			if skipped == nil {
				skipped = map[string]int{}
			}
			writeJSON(w, http.StatusOK, map[string]any{"id": nil, "skipped": skipped})
			return
		}
		observability.RecordDispatch(req.Model)
		writeJSON(w, http.StatusOK, res.Envelope)
	}
}

// GenerateSubmitHandler accepts a worker's finished text and answers with the
// kudos reward. Submitting the same generation twice rewards nothing.
func (s *Server) GenerateSubmitHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !negotiateJSON(w, r) {
			return
		}
		if _, ok := s.requireUser(w, r); !ok {
			return
		}
		var req struct {
			ID         string `json:"id" validate:"required"`
			Generation string `json:"generation" validate:"required"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		rec, err := s.Engine.DeliverGeneration(r.Context(), req.ID, req.Generation)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if !rec.Duplicate {
			observability.RecordDelivery(rec.Model, int(rec.Tokens), rec.Kudos)
			if s.Drift != nil {
				s.Drift.RecordSample(rec.TokensPerSec)
			}
		}
		writeJSON(w, http.StatusOK, map[string]float64{"reward": rec.Kudos})
	}
}
