package usecase

import (
	"fmt"
	"log/slog"

	"github.com/fairyhunter13/textgen-horde/internal/domain"
)

// SubmitPrompt queues a generation request for the user. The request is
// rejected when the user already has their maximum number of unfinished
// prompts in the queue.
func (c *Coordinator) SubmitPrompt(user *domain.User, req domain.PromptRequest) (*domain.WaitingPrompt, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("%w: prompt required", domain.ErrInvalidArgument)
	}
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if waiting := c.prompts.countWaitingFor(user); waiting >= user.MaxConcurrentPrompts {
		return nil, fmt.Errorf("%w: %s already has %d prompts waiting", domain.ErrRateLimited, user.UniqueAlias(), waiting)
	}
	requested := domain.ParamInt(req.Params, "n", 1)
	wp := domain.NewWaitingPrompt(now, user, req)
	if requested > wp.N {
		slog.Warn("generations per request clamped",
			slog.String("user", user.UniqueAlias()),
			slog.Int("requested", requested),
			slog.Int("clamped", wp.N))
	}
	c.prompts.add(wp)
	user.Touch(now)
	slog.Info("new prompt request",
		slog.String("user", user.UniqueAlias()),
		slog.String("prompt_id", wp.ID),
		slog.Int("n", wp.N))
	return wp, nil
}
