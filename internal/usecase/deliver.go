package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fairyhunter13/textgen-horde/internal/domain"
)

// DeliveryReceipt reports what one accepted delivery earned and how fast the
// worker produced it. Repeat deliveries come back zeroed with Duplicate set
// so callers can skip their own bookkeeping.
type DeliveryReceipt struct {
	Kudos        float64
	Model        string
	Tokens       int64
	TokensPerSec float64
	Duplicate    bool
}

// DeliverGeneration accepts a worker's completed text for an in-flight
// generation and runs all the delivery bookkeeping atomically: the stats
// sample, the worker's contribution, and the requester's debit. A repeat
// delivery earns nothing and changes nothing. Unknown ids, including
// generations already reaped with their prompt, are rejected.
func (c *Coordinator) DeliverGeneration(ctx context.Context, genID, text string) (DeliveryReceipt, error) {
	c.mu.Lock()
	gen, ok := c.gens[genID]
	if !ok {
		c.mu.Unlock()
		return DeliveryReceipt{}, fmt.Errorf("%w: processing generation %s", domain.ErrNotFound, genID)
	}
	model := gen.Model
	c.mu.Unlock()

	// Resolved unlocked; in the common case the dispatch already cached it.
	multiplier := c.resolveMultiplier(ctx, model)

	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	gen, ok = c.gens[genID]
	if !ok {
		return DeliveryReceipt{}, fmt.Errorf("%w: processing generation %s", domain.ErrNotFound, genID)
	}
	if !gen.SetResult(text) {
		return DeliveryReceipt{Model: model, Duplicate: true}, nil
	}
	wp := gen.Prompt
	tokens := int64(wp.MaxLength)
	kudos := domain.TokensToKudos(tokens, multiplier)
	gen.Kudos = kudos
	tokensPerSec := c.stats.RecordFulfilment(now, tokens, gen.StartTime)
	gen.Worker.RecordContribution(tokens, kudos, tokensPerSec)
	wp.RecordUsage(now, tokens, kudos)
	slog.Info("generation delivered",
		slog.String("worker", gen.Worker.Name),
		slog.Float64("kudos", kudos),
		slog.Float64("tokens_per_sec", tokensPerSec))
	return DeliveryReceipt{
		Kudos:        kudos,
		Model:        model,
		Tokens:       tokens,
		TokensPerSec: tokensPerSec,
	}, nil
}
