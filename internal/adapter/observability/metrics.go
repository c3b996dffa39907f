package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	OracleLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_lookups_total",
			Help: "Total number of model parameter lookups by source and outcome",
		},
		[]string{"source", "outcome"},
	)
	OracleLookupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oracle_lookup_duration_seconds",
			Help:    "Model parameter lookup duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"source"},
	)

	PromptsSubmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "prompts_submitted_total",
			Help: "Total number of generation requests accepted into the queue",
		},
	)
	GenerationsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generations_dispatched_total",
			Help: "Total number of generations handed to workers",
		},
		[]string{"model"},
	)
	GenerationsDeliveredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generations_delivered_total",
			Help: "Total number of generation texts delivered back",
		},
		[]string{"model"},
	)
	DispatchSkipsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_skips_total",
			Help: "Queued prompts a polling worker could not serve, by reason",
		},
		[]string{"reason"},
	)
	KudosAwardedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kudos_awarded_total",
			Help: "Total kudos minted for delivered generations",
		},
	)
	KudosTransfersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kudos_transfers_total",
			Help: "Total number of kudos transfer attempts by outcome",
		},
		[]string{"outcome"},
	)
	PromptsReapedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "prompts_reaped_total",
			Help: "Total number of stale prompts removed by the sweeper",
		},
	)

	QueuedRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "queued_requests",
			Help: "Generations currently waiting for a worker",
		},
	)
	QueuedTokens = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "queued_tokens",
			Help: "Tokens requested by generations currently waiting",
		},
	)
	ActiveWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_workers",
			Help: "Workers that checked in within the staleness window",
		},
	)

	// Delivered generation size distribution
	GenerationTokens = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "generation_tokens",
			Help:    "Distribution of requested token counts for delivered generations",
			Buckets: []float64{16, 32, 64, 128, 256, 512, 1024, 2048},
		},
	)
	ThroughputDrift = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "throughput_drift_ratio",
			Help: "Relative deviation of recent horde throughput from its baseline",
		},
	)
)

func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(OracleLookupsTotal)
	prometheus.MustRegister(OracleLookupDuration)
	prometheus.MustRegister(PromptsSubmittedTotal)
	prometheus.MustRegister(GenerationsDispatchedTotal)
	prometheus.MustRegister(GenerationsDeliveredTotal)
	prometheus.MustRegister(DispatchSkipsTotal)
	prometheus.MustRegister(KudosAwardedTotal)
	prometheus.MustRegister(KudosTransfersTotal)
	prometheus.MustRegister(PromptsReapedTotal)
	prometheus.MustRegister(QueuedRequests)
	prometheus.MustRegister(QueuedTokens)
	prometheus.MustRegister(ActiveWorkers)
	prometheus.MustRegister(GenerationTokens)
	prometheus.MustRegister(ThroughputDrift)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			// fallback when route pattern is unavailable
			route = r.URL.Path
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}

// RecordOracleLookup records one model parameter lookup against a source.
func RecordOracleLookup(source, outcome string, dur time.Duration) {
	OracleLookupsTotal.WithLabelValues(source, outcome).Inc()
	OracleLookupDuration.WithLabelValues(source).Observe(dur.Seconds())
}

func RecordPromptSubmitted() {
	PromptsSubmittedTotal.Inc()
}

func RecordDispatch(model string) {
	GenerationsDispatchedTotal.WithLabelValues(model).Inc()
}

// RecordDispatchSkips folds a pop's skipped-reason counts into the counter.
func RecordDispatchSkips(skipped map[string]int) {
	for reason, n := range skipped {
		DispatchSkipsTotal.WithLabelValues(reason).Add(float64(n))
	}
}

// RecordDelivery records a delivered generation and the kudos it minted.
func RecordDelivery(model string, maxLength int, kudos float64) {
	GenerationsDeliveredTotal.WithLabelValues(model).Inc()
	GenerationTokens.Observe(float64(maxLength))
	if kudos > 0 {
		KudosAwardedTotal.Add(kudos)
	}
}

// RecordKudosTransfer records a transfer attempt; outcome is "ok" or "rejected".
func RecordKudosTransfer(ok bool) {
	outcome := "rejected"
	if ok {
		outcome = "ok"
	}
	KudosTransfersTotal.WithLabelValues(outcome).Inc()
}

func RecordReap(count int) {
	if count > 0 {
		PromptsReapedTotal.Add(float64(count))
	}
}

// SetHordeGauges refreshes the queue depth and worker gauges from the engine
// totals, called from the background sweep.
func SetHordeGauges(queuedRequests, queuedTokens int64, activeWorkers int) {
	QueuedRequests.Set(float64(queuedRequests))
	QueuedTokens.Set(float64(queuedTokens))
	ActiveWorkers.Set(float64(activeWorkers))
}
