package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	// PromptStaleAfter is how long a waiting prompt survives without
	// activity before the reaper removes it. Dispatching a generation or
	// delivering a result refreshes the clock.
	PromptStaleAfter = 600 * time.Second

	// MaxGenerationsPerPrompt caps the n a single request may ask for.
	MaxGenerationsPerPrompt = 20

	// Generation parameter defaults applied when the request omits them.
	DefaultMaxLength        = 80
	DefaultMaxContentLength = 1024
)

// PromptRequest carries a client's generation request into the engine.
// Params is the raw generation payload forwarded to the worker; n, max_length
// and max_content_length are read out of it.
type PromptRequest struct {
	Prompt      string
	Models      []string
	Servers     []string
	Softprompts []string
	Params      map[string]any
}

// DispatchPayload is the envelope handed to a worker for one generation.
type DispatchPayload struct {
	Payload    map[string]any `json:"payload"`
	Softprompt string         `json:"softprompt"`
	ID         string         `json:"id"`
}

// WaitingPrompt is a queued request for N generations. N counts down as
// generations are dispatched; children track the in-flight and delivered ones.
type WaitingPrompt struct {
	ID               string
	Owner            *User
	Prompt           string
	Models           []string
	Servers          []string
	Softprompts      []string
	Payload          map[string]any
	N                int
	MaxLength        int
	MaxContentLength int
	ProcessingGens   []*ProcessingGeneration
	LastProcessTime  time.Time
}

// NewWaitingPrompt builds a prompt from a request, clamping n to
// MaxGenerationsPerPrompt and defaulting the generation parameters. The
// dispatched payload is the params object with the prompt injected and n
// forced to 1, since workers always produce one generation per envelope.
func NewWaitingPrompt(now time.Time, owner *User, req PromptRequest) *WaitingPrompt {
	n := ParamInt(req.Params, "n", 1)
	if n > MaxGenerationsPerPrompt {
		n = MaxGenerationsPerPrompt
	}
	payload := make(map[string]any, len(req.Params)+2)
	for k, v := range req.Params {
		payload[k] = v
	}
	payload["prompt"] = req.Prompt
	payload["n"] = 1
	softprompts := req.Softprompts
	if len(softprompts) == 0 {
		softprompts = []string{""}
	}
	return &WaitingPrompt{
		ID:               uuid.NewString(),
		Owner:            owner,
		Prompt:           req.Prompt,
		Models:           req.Models,
		Servers:          req.Servers,
		Softprompts:      softprompts,
		Payload:          payload,
		N:                n,
		MaxLength:        ParamInt(req.Params, "max_length", DefaultMaxLength),
		MaxContentLength: ParamInt(req.Params, "max_content_length", DefaultMaxContentLength),
		LastProcessTime:  now,
	}
}

// ParamInt reads an integer generation parameter, tolerating the float64
// values JSON decoding produces.
func ParamInt(params map[string]any, key string, def int) int {
	v, ok := params[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}

// NeedsGeneration reports whether any generations remain to dispatch.
func (wp *WaitingPrompt) NeedsGeneration() bool {
	return wp.N > 0
}

// QueuedTokens is the token volume still queued for this prompt.
func (wp *WaitingPrompt) QueuedTokens() int64 {
	return int64(wp.MaxLength) * int64(wp.N)
}

// StartGeneration hands one generation to the worker, snapshotting its model.
// Returns nil when nothing remains to dispatch.
func (wp *WaitingPrompt) StartGeneration(now time.Time, w *Worker) *ProcessingGeneration {
	if wp.N <= 0 {
		return nil
	}
	gen := &ProcessingGeneration{
		ID:        uuid.NewString(),
		Prompt:    wp,
		Worker:    w,
		Model:     w.Model,
		StartTime: now,
	}
	wp.ProcessingGens = append(wp.ProcessingGens, gen)
	wp.N--
	wp.Refresh(now)
	return gen
}

// Envelope builds the dispatch envelope for a started generation.
func (wp *WaitingPrompt) Envelope(gen *ProcessingGeneration, softprompt string) *DispatchPayload {
	return &DispatchPayload{
		Payload:    wp.Payload,
		Softprompt: softprompt,
		ID:         gen.ID,
	}
}

// IsCompleted holds when nothing remains to dispatch and every child has
// delivered.
func (wp *WaitingPrompt) IsCompleted() bool {
	if wp.NeedsGeneration() {
		return false
	}
	for _, gen := range wp.ProcessingGens {
		if !gen.IsCompleted() {
			return false
		}
	}
	return true
}

// CountGenerations tallies children into finished and still-processing.
func (wp *WaitingPrompt) CountGenerations() (finished, processing int) {
	for _, gen := range wp.ProcessingGens {
		if gen.IsCompleted() {
			finished++
		} else {
			processing++
		}
	}
	return finished, processing
}

// RecordUsage debits the owner for a delivered generation and refreshes the
// stale clock.
func (wp *WaitingPrompt) RecordUsage(now time.Time, tokens int64, kudos float64) {
	wp.Owner.RecordUsage(tokens, kudos)
	wp.Refresh(now)
}

func (wp *WaitingPrompt) Refresh(now time.Time) {
	wp.LastProcessTime = now
}

func (wp *WaitingPrompt) IsStale(now time.Time) bool {
	return now.Sub(wp.LastProcessTime) > PromptStaleAfter
}

// ProcessingGeneration is one in-flight generation. Model snapshots the
// worker's declared model at dispatch time, in case the worker switches
// models before delivering.
type ProcessingGeneration struct {
	ID         string
	Prompt     *WaitingPrompt
	Worker     *Worker
	Model      string
	Generation *string
	Kudos      float64
	StartTime  time.Time
}

// SetResult marks the generation delivered. Repeat deliveries are rejected so
// a worker retrying a submit cannot double-earn.
func (g *ProcessingGeneration) SetResult(text string) bool {
	if g.IsCompleted() {
		return false
	}
	g.Generation = &text
	return true
}

func (g *ProcessingGeneration) IsCompleted() bool {
	return g.Generation != nil
}

// Text returns the delivered generation, empty until completion.
func (g *ProcessingGeneration) Text() string {
	if g.Generation == nil {
		return ""
	}
	return *g.Generation
}

// ExpectedTimeLeft estimates the seconds until this generation delivers,
// based on the worker's rolling throughput. Completed generations report 0,
// as do overdue ones.
func (g *ProcessingGeneration) ExpectedTimeLeft(now time.Time) float64 {
	if g.IsCompleted() {
		return 0
	}
	needed := float64(g.Prompt.MaxLength) / g.Worker.PerformanceAverage()
	elapsed := now.Sub(g.StartTime).Seconds()
	if left := needed - elapsed; left > 0 {
		return left
	}
	return 0
}
