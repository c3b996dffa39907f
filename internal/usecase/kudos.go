package usecase

import (
	"log/slog"
	"time"

	"github.com/fairyhunter13/textgen-horde/internal/domain"
)

// TransferKudosFromAPIKey authenticates the source by API key, resolves the
// destination by alias and moves the kudos, all in one atomic section. The
// returned reason is relayed to the caller verbatim; anything but "OK" means
// nothing moved.
func (c *Coordinator) TransferKudosFromAPIKey(sourceAPIKey, destAlias string, amount float64) (float64, string) {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	src := c.findUserByAPIKeyLocked(sourceAPIKey)
	if src == nil {
		return 0, "Invalid API Key."
	}
	if src.IsAnonymous() {
		return 0, "You cannot transfer Kudos from Anonymous, smart-ass."
	}
	return c.transferToAliasLocked(now, src, destAlias, amount)
}

// TransferKudosToAlias moves kudos from an already authenticated source.
func (c *Coordinator) TransferKudosToAlias(src *domain.User, destAlias string, amount float64) (float64, string) {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transferToAliasLocked(now, src, destAlias, amount)
}

func (c *Coordinator) transferToAliasLocked(now time.Time, src *domain.User, destAlias string, amount float64) (float64, string) {
	dst := c.findUserByAliasLocked(destAlias)
	if dst == nil {
		return 0, "Invalid target username."
	}
	if dst.IsAnonymous() {
		return 0, "Tried to burn kudos via sending to Anonymous. Assuming PEBKAC and aborting."
	}
	if dst == src {
		return 0, "Cannot send kudos to yourself, ya monkey!"
	}
	transferred, reason := domain.TransferKudos(src, dst, amount)
	if reason == "OK" {
		src.Touch(now)
		slog.Info("kudos transferred",
			slog.String("from", src.UniqueAlias()),
			slog.String("to", dst.UniqueAlias()),
			slog.Float64("amount", transferred))
	}
	return transferred, reason
}
