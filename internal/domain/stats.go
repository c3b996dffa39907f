package domain

import "time"

const (
	// MaxServerPerformances bounds the horde-wide throughput sample window.
	MaxServerPerformances = 10

	// FulfillmentWindow is the sliding window used for the kilotokens-per-
	// minute rate.
	FulfillmentWindow = 60 * time.Second

	// DefaultPruneInterval limits how often the fulfilment log is pruned.
	DefaultPruneInterval = 60 * time.Second

	// kudosPerTokenDivisor calibrates token-to-kudos conversion so that 80
	// tokens on a 2.7B model are worth around 10 kudos.
	kudosPerTokenDivisor = 21
)

// Fulfillment is one delivered generation in the recent-throughput log.
type Fulfillment struct {
	Tokens      int64
	StartTime   time.Time
	DeliverTime time.Time
}

// Stats aggregates horde-wide throughput and the model multiplier cache.
type Stats struct {
	ServerPerformances []float64
	ModelMultipliers   map[string]float64
	Fulfillments       []Fulfillment
	LastPruning        time.Time
	PruneInterval      time.Duration
}

func NewStats(now time.Time) *Stats {
	return &Stats{
		ModelMultipliers: make(map[string]float64),
		LastPruning:      now,
		PruneInterval:    DefaultPruneInterval,
	}
}

// RecordFulfilment folds a delivered generation into the rolling throughput
// window and the fulfilment log, returning the tokens-per-second sample.
// Sub-second deliveries count as 1 token per second.
func (s *Stats) RecordFulfilment(now time.Time, tokens int64, start time.Time) float64 {
	seconds := int64(now.Sub(start).Seconds())
	tokensPerSec := float64(1)
	if seconds != 0 {
		tokensPerSec = Round1(float64(tokens) / float64(seconds))
	}
	if len(s.ServerPerformances) >= MaxServerPerformances {
		s.ServerPerformances = s.ServerPerformances[1:]
	}
	s.ServerPerformances = append(s.ServerPerformances, tokensPerSec)
	s.Fulfillments = append(s.Fulfillments, Fulfillment{
		Tokens:      tokens,
		StartTime:   start,
		DeliverTime: now,
	})
	return tokensPerSec
}

// RequestAvg is the mean of the rolling throughput window rounded to one
// decimal, 0 when no generations have been delivered yet.
func (s *Stats) RequestAvg() float64 {
	if len(s.ServerPerformances) == 0 {
		return 0
	}
	var sum float64
	for _, p := range s.ServerPerformances {
		sum += p
	}
	return Round1(sum / float64(len(s.ServerPerformances)))
}

// KilotokensPerMin sums tokens delivered inside the sliding window. The
// fulfilment log is pruned in the same pass, at most once per PruneInterval,
// so pruning needs no background task.
func (s *Stats) KilotokensPerMin(now time.Time) float64 {
	var total int64
	pruned := make([]Fulfillment, 0, len(s.Fulfillments))
	for _, f := range s.Fulfillments {
		if now.Sub(f.DeliverTime) <= FulfillmentWindow {
			pruned = append(pruned, f)
			total += f.Tokens
		}
	}
	if now.Sub(s.LastPruning) > s.PruneInterval {
		s.LastPruning = now
		s.Fulfillments = pruned
	}
	return Round2(float64(total) / 1000)
}

// Multiplier returns the cached multiplier for a model, if known.
func (s *Stats) Multiplier(model string) (float64, bool) {
	m, ok := s.ModelMultipliers[model]
	return m, ok
}

// SetMultiplier caches a model's multiplier. The first cached value wins so
// concurrent resolutions of the same model stay consistent.
func (s *Stats) SetMultiplier(model string, multiplier float64) float64 {
	if cached, ok := s.ModelMultipliers[model]; ok {
		return cached
	}
	s.ModelMultipliers[model] = multiplier
	return multiplier
}

// TokensToKudos converts a token count into kudos for the given model
// multiplier, rounded to two decimals.
func TokensToKudos(tokens int64, multiplier float64) float64 {
	return Round2(float64(tokens) * multiplier / kudosPerTokenDivisor)
}
