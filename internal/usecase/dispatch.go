package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fairyhunter13/textgen-horde/internal/domain"
)

// CheckInRequest is a worker poll: its identity plus the capacity it is
// currently offering.
type CheckInRequest struct {
	Name             string
	Model            string
	MaxLength        int
	MaxContentLength int
	Softprompts      []string
}

// PopResult carries either a dispatch envelope or, when nothing matched, the
// per-reason counts of prompts the worker had to skip.
type PopResult struct {
	Envelope *domain.DispatchPayload
	Skipped  map[string]int
}

// PopGeneration handles a worker poll: it finds or registers the worker,
// runs the check-in bookkeeping, then walks the kudos-priority queue and
// starts a generation on the first prompt this worker can serve. The model
// multiplier is resolved before the engine lock is taken, since resolving an
// unknown model may call out to the oracle.
func (c *Coordinator) PopGeneration(ctx context.Context, owner *domain.User, req CheckInRequest) (PopResult, error) {
	if req.Name == "" || req.Model == "" {
		return PopResult{}, fmt.Errorf("%w: worker name and model required", domain.ErrInvalidArgument)
	}
	multiplier := c.resolveMultiplier(ctx, req.Model)

	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.workers[req.Name]
	if !ok {
		w = domain.NewWorker(owner, req.Name)
		c.workers[req.Name] = w
		slog.Info("new worker checked in",
			slog.String("worker", w.Name),
			slog.String("owner", owner.UniqueAlias()))
	}
	if awarded := w.CheckIn(now, req.Model, req.MaxLength, req.MaxContentLength, req.Softprompts, multiplier); awarded > 0 {
		slog.Debug("uptime kudos awarded",
			slog.String("worker", w.Name),
			slog.Float64("kudos", awarded))
	}
	w.Owner.Touch(now)

	skipped := make(map[string]int)
	for _, wp := range c.prompts.sortedByPriority() {
		ok, reason := w.CanGenerate(wp)
		if !ok {
			if reason != "" {
				skipped[reason]++
			}
			continue
		}
		softprompt, _ := w.MatchingSoftprompt(wp)
		gen := wp.StartGeneration(now, w)
		if gen == nil {
			continue
		}
		c.gens[gen.ID] = gen
		return PopResult{Envelope: wp.Envelope(gen, softprompt)}, nil
	}
	return PopResult{Skipped: skipped}, nil
}

// resolveMultiplier returns the model's kudos multiplier, consulting the
// oracle on a cache miss. Oracle failures default to 1 and are cached, so a
// missing model is only chased once. The first value cached for a model wins.
func (c *Coordinator) resolveMultiplier(ctx context.Context, model string) float64 {
	c.mu.Lock()
	if m, ok := c.stats.Multiplier(model); ok {
		c.mu.Unlock()
		return m
	}
	c.mu.Unlock()

	m, err := c.oracle.ParametersBillions(ctx, model)
	if err != nil {
		slog.Error("model not resolvable, defaulting to multiplier 1",
			slog.String("model", model),
			slog.Any("error", err))
		m = 1
	} else {
		slog.Info("new model multiplier resolved",
			slog.String("model", model),
			slog.Float64("params_billions", m))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats.SetMultiplier(model, m)
}
