package usecase

import (
	"log/slog"
)

// ReapStalePrompts removes prompts whose stale window has lapsed, cascading
// to their in-flight generations so a worker delivering late gets a not-found
// instead of crediting a ghost. Returns how many prompts were removed.
func (c *Coordinator) ReapStalePrompts() int {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	reaped := 0
	for _, wp := range c.prompts.all() {
		if !wp.IsStale(now) {
			continue
		}
		for _, gen := range wp.ProcessingGens {
			delete(c.gens, gen.ID)
		}
		c.prompts.del(wp.ID)
		reaped++
		slog.Debug("stale prompt reaped",
			slog.String("prompt_id", wp.ID),
			slog.String("owner", wp.Owner.UniqueAlias()))
	}
	if reaped > 0 {
		slog.Info("reaper pass removed stale prompts", slog.Int("count", reaped))
	}
	return reaped
}
