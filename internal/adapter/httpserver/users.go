package httpserver

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/fairyhunter13/textgen-horde/internal/adapter/observability"
	"github.com/fairyhunter13/textgen-horde/internal/domain"
)

// CreateUserHandler registers a user and returns the generated api key. The
// key is returned exactly once; it is never listed afterwards.
func (s *Server) CreateUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !negotiateJSON(w, r) {
			return
		}
		var req struct {
			Username string `json:"username" validate:"required,max=50"`
			InviteID string `json:"invite_id"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		username := SanitizeString(req.Username)
		if vr := ValidateUsername(username); !vr.Valid {
			writeError(w, r, fmt.Errorf("%w: invalid username", domain.ErrInvalidArgument), vr.Errors)
			return
		}
		user, err := s.Engine.RegisterUser(username, req.InviteID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"id":       user.ID,
			"username": user.UniqueAlias(),
			"api_key":  user.APIKey,
		})
	}
}

// UsersHandler lists every user's public record, anonymous included.
func (s *Server) UsersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.Engine.Users())
	}
}

// TopUserHandler returns the registered user with the most contributed
// tokens.
func (s *Server) TopUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, ok := s.Engine.TopContributor()
		if !ok {
			writeError(w, r, fmt.Errorf("%w: no contributions recorded yet", domain.ErrNotFound), nil)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

// TransferKudosHandler moves kudos from the authenticated user to the alias
// named in the body. Rejections carry the engine's reason verbatim, so
// clients see the same text regardless of which rule tripped.
func (s *Server) TransferKudosHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !negotiateJSON(w, r) {
			return
		}
		var req struct {
			Username string  `json:"username" validate:"required"`
			Amount   float64 `json:"amount" validate:"gt=0"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		transferred, reason := s.Engine.TransferKudosFromAPIKey(strings.TrimSpace(r.Header.Get("apikey")), req.Username, req.Amount)
		if reason != "OK" {
			observability.RecordKudosTransfer(false)
			writeJSON(w, http.StatusBadRequest, errorEnvelope{Error: apiError{Code: "INVALID_ARGUMENT", Message: reason}})
			return
		}
		observability.RecordKudosTransfer(true)
		writeJSON(w, http.StatusOK, map[string]float64{"transferred": transferred})
	}
}
