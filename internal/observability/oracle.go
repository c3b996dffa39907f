package observability

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fairyhunter13/textgen-horde/internal/adapter/observability"
	"github.com/fairyhunter13/textgen-horde/internal/domain"
)

// ErrCircuitOpen is returned when the oracle circuit is open and the lookup
// was not attempted. The engine treats it like any other oracle error and
// defaults the model multiplier.
var ErrCircuitOpen = errors.New("model oracle circuit open")

// InstrumentedOracle wraps a ModelOracle with a circuit breaker, Prometheus
// metrics, and per-source lookup statistics. A not-found answer is a healthy
// response and never trips the breaker; only transport and upstream failures
// do, after which lookups fail fast until the cooldown passes.
type InstrumentedOracle struct {
	inner   domain.ModelOracle
	source  string
	breaker *CircuitBreaker
	stats   *LookupStats
}

// NewInstrumentedOracle wraps inner, labelling its metrics with source.
func NewInstrumentedOracle(inner domain.ModelOracle, source string) *InstrumentedOracle {
	return &InstrumentedOracle{
		inner:   inner,
		source:  source,
		breaker: NewCircuitBreaker(5, 30*time.Second, 2),
		stats:   NewLookupStats(source),
	}
}

// ParametersBillions resolves the model's parameter count through the wrapped
// oracle, recording the outcome.
func (o *InstrumentedOracle) ParametersBillions(ctx context.Context, model string) (float64, error) {
	lg := LoggerFromContext(ctx)
	if !o.breaker.CanExecute() {
		o.stats.RecordRejected()
		observability.OracleLookupsTotal.WithLabelValues(o.source, "rejected").Inc()
		lg.Warn("model lookup rejected by open circuit",
			slog.String("source", o.source),
			slog.String("model", model))
		return 0, ErrCircuitOpen
	}

	start := time.Now()
	params, err := o.inner.ParametersBillions(ctx, model)
	dur := time.Since(start)

	switch {
	case err == nil:
		o.breaker.RecordSuccess()
		o.stats.RecordSuccess(dur)
		observability.RecordOracleLookup(o.source, "ok", dur)
		lg.Debug("model parameters resolved",
			slog.String("source", o.source),
			slog.String("model", model),
			slog.Float64("parameters_billions", params),
			slog.Duration("duration", dur))
	case errors.Is(err, domain.ErrNotFound):
		// The upstream answered; it just does not know the model.
		o.breaker.RecordSuccess()
		o.stats.RecordNotFound(dur)
		observability.RecordOracleLookup(o.source, "not_found", dur)
		lg.Debug("model unknown to oracle",
			slog.String("source", o.source),
			slog.String("model", model),
			slog.Duration("duration", dur))
	default:
		o.breaker.RecordFailure()
		o.stats.RecordFailure(err, dur)
		observability.RecordOracleLookup(o.source, "error", dur)
		lg.Warn("model lookup failed",
			slog.String("source", o.source),
			slog.String("model", model),
			slog.String("error", err.Error()),
			slog.Duration("duration", dur))
	}
	return params, err
}

// Healthy reports whether the circuit is not open and recent lookups are
// mostly succeeding.
func (o *InstrumentedOracle) Healthy() bool {
	return o.breaker.GetState() != StateOpen && o.stats.IsHealthy()
}

// HealthStatus returns lookup and breaker statistics for health payloads.
func (o *InstrumentedOracle) HealthStatus() map[string]interface{} {
	status := o.stats.Snapshot()
	status["circuit_breaker"] = o.breaker.GetStats()
	status["is_healthy"] = o.Healthy()
	return status
}

// Reset clears the breaker and statistics.
func (o *InstrumentedOracle) Reset() {
	o.breaker.Reset()
	o.stats.Reset()

	slog.Info("instrumented oracle reset", slog.String("source", o.source))
}
