package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/textgen-horde/internal/adapter/observability"
	"github.com/fairyhunter13/textgen-horde/internal/config"
	"github.com/fairyhunter13/textgen-horde/internal/domain"
	"github.com/fairyhunter13/textgen-horde/internal/usecase"
)

// Server aggregates handlers dependencies.
type Server struct {
	Cfg    config.Config
	Engine *usecase.Coordinator
	Tokens domain.TokenEstimator
	// Drift tracks delivered tokens-per-second against the learned baseline.
	// Optional; nil disables sampling.
	Drift *observability.ThroughputDriftMonitor
	// Readiness probes. Either may be nil when the dependency is absent.
	OracleCheck func(ctx context.Context) error
	StoreCheck  func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, engine *usecase.Coordinator, tokens domain.TokenEstimator, drift *observability.ThroughputDriftMonitor, oracleCheck func(context.Context) error, storeCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Engine: engine, Tokens: tokens, Drift: drift, OracleCheck: oracleCheck, StoreCheck: storeCheck}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// negotiateJSON rejects requests whose Accept header rules out JSON, the
// only representation this API produces. Returns false when the request
// was already answered.
func negotiateJSON(w http.ResponseWriter, r *http.Request) bool {
	a := r.Header.Get("Accept")
	if a == "" || a == "*/*" || strings.Contains(a, "application/json") {
		return true
	}
	writeJSON(w, http.StatusNotAcceptable, errorEnvelope{Error: apiError{Code: "INVALID_ARGUMENT", Message: "not acceptable", Details: map[string]any{"accept": a}}})
	return false
}

// requireUser resolves the apikey header to a registered user. The anon
// key resolves to the anonymous user unless anonymous access is disabled.
// A false return means the 401 response has already been written.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (*domain.User, bool) {
	key := strings.TrimSpace(r.Header.Get("apikey"))
	if key == "" {
		writeInvalidAPIKey(w)
		return nil, false
	}
	user, ok := s.Engine.UserByAPIKey(key)
	if !ok {
		writeInvalidAPIKey(w)
		return nil, false
	}
	return user, true
}

// decodeJSON reads a capped JSON body into dst and runs struct validation.
// A false return means the error response has already been written.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
		return false
	}
	if err := getValidator().Struct(dst); err != nil {
		verrs := map[string]string{}
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			for _, fe := range ve {
				verrs[strings.ToLower(fe.Field())] = fe.Tag()
			}
		}
		writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), verrs)
		return false
	}
	return true
}

// ReadyzHandler returns a readiness handler that probes the model oracle
// and the snapshot store.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, 2)
		if s.OracleCheck != nil {
			if err := s.OracleCheck(ctx); err != nil {
				checks = append(checks, check{Name: "oracle", OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "oracle", OK: true})
			}
		}
		if s.StoreCheck != nil {
			if err := s.StoreCheck(ctx); err != nil {
				checks = append(checks, check{Name: "store", OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "store", OK: true})
			}
		}
		ok := true
		for _, c := range checks {
			if !c.OK {
				ok = false
				break
			}
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
