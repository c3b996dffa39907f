package app

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/textgen-horde/internal/adapter/observability"
	"github.com/fairyhunter13/textgen-horde/internal/usecase"
)

// SweepEngine is the slice of the coordinator the sweeper drives.
type SweepEngine interface {
	ReapStalePrompts() int
	Status() usecase.HordeStatus
}

// StaleSweeper periodically evicts prompts whose requesters stopped polling
// and refreshes the horde-wide gauges from the live engine totals.
type StaleSweeper struct {
	engine   SweepEngine
	interval time.Duration
}

func NewStaleSweeper(engine SweepEngine, interval time.Duration) *StaleSweeper {
	if engine == nil {
		return nil
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &StaleSweeper{engine: engine, interval: interval}
}

func (s *StaleSweeper) Run(ctx context.Context) {
	if s == nil || s.engine == nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("stale prompt sweeper stopping")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *StaleSweeper) sweepOnce(ctx context.Context) {
	tracer := otel.Tracer("horde.sweeper")
	_, span := tracer.Start(ctx, "StaleSweeper.sweepOnce")
	defer span.End()

	reaped := s.engine.ReapStalePrompts()
	observability.RecordReap(reaped)

	st := s.engine.Status()
	observability.SetHordeGauges(st.QueuedRequests, st.QueuedTokens, st.ActiveWorkers)

	span.SetAttributes(
		attribute.Int("prompts.reaped", reaped),
		attribute.Int64("queue.requests", st.QueuedRequests),
		attribute.Int64("queue.tokens", st.QueuedTokens),
		attribute.Int("workers.active", st.ActiveWorkers),
	)
}
