package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// WorkerStaleAfter is how long a worker may go without checking in
	// before it stops counting as active. Stale workers are skipped for
	// dispatch but never evicted; they resume on the next check-in.
	WorkerStaleAfter = 300 * time.Second

	// UptimeRewardThreshold is the accrued uptime, in seconds, between
	// uptime kudos awards.
	UptimeRewardThreshold = 600

	// MaxWorkerPerformances bounds the per-worker throughput sample window.
	MaxWorkerPerformances = 20
)

// Skip reasons reported by CanGenerate.
const (
	SkippedServerID         = "server_id"
	SkippedModels           = "models"
	SkippedMaxContentLength = "max_content_length"
	SkippedMaxLength        = "max_length"
	SkippedSoftprompt       = "matching_softprompt"
)

type WorkerKudosDetails struct {
	Generated float64
	Uptime    float64
}

// Worker is a remote generation node, registered under its self-declared name.
// The declared model and capacity limits are refreshed on every check-in.
type Worker struct {
	ID               string
	Name             string
	Owner            *User
	Model            string
	MaxLength        int
	MaxContentLength int
	Softprompts      []string
	Contributions    int64
	Fulfilments      int64
	Kudos            float64
	KudosDetails     WorkerKudosDetails
	Performances     []float64
	Uptime           int64
	LastCheckIn      time.Time
	LastRewardUptime int64
}

func NewWorker(owner *User, name string) *Worker {
	return &Worker{
		ID:    uuid.NewString(),
		Name:  name,
		Owner: owner,
	}
}

// IsStale reports whether the worker has missed its check-in window. A worker
// that has never checked in is stale by definition.
func (w *Worker) IsStale(now time.Time) bool {
	if w.LastCheckIn.IsZero() {
		return true
	}
	return now.Sub(w.LastCheckIn) > WorkerStaleAfter
}

// CheckIn records a poll from the worker, accruing uptime and refreshing the
// declared model and capacities. Uptime kudos are awarded once per
// UptimeRewardThreshold seconds of accrued uptime, scaled by the declared
// model's multiplier, and mirrored into the owner's ledger. A worker returning
// from staleness has to re-earn the full threshold first. Returns the kudos
// awarded, zero when none.
func (w *Worker) CheckIn(now time.Time, model string, maxLength, maxContentLength int, softprompts []string, modelMultiplier float64) float64 {
	var awarded float64
	if !w.IsStale(now) {
		w.Uptime += int64(now.Sub(w.LastCheckIn).Seconds())
		if w.Uptime-w.LastRewardUptime > UptimeRewardThreshold {
			awarded = Round2(modelMultiplier / 2.75)
			w.ModifyKudos(awarded, KudosUptime)
			w.Owner.RecordUptime(awarded)
			w.LastRewardUptime = w.Uptime
		}
	} else {
		w.LastRewardUptime = w.Uptime
	}
	w.LastCheckIn = now
	w.Model = model
	w.MaxContentLength = maxContentLength
	w.MaxLength = maxLength
	w.Softprompts = softprompts
	return awarded
}

// CanGenerate checks this worker against a waiting prompt's requirements.
// Every check runs even after a failure; the reason reported is the last
// failing one.
func (w *Worker) CanGenerate(wp *WaitingPrompt) (bool, string) {
	matching := true
	reason := ""
	if len(wp.Servers) >= 1 && !contains(wp.Servers, w.ID) {
		matching = false
		reason = SkippedServerID
	}
	if len(wp.Models) >= 1 && !contains(wp.Models, w.Model) {
		matching = false
		reason = SkippedModels
	}
	if w.MaxContentLength < wp.MaxContentLength {
		matching = false
		reason = SkippedMaxContentLength
	}
	if w.MaxLength < wp.MaxLength {
		matching = false
		reason = SkippedMaxLength
	}
	if _, ok := w.MatchingSoftprompt(wp); !ok {
		matching = false
		reason = SkippedSoftprompt
	}
	return matching, reason
}

// MatchingSoftprompt picks which of this worker's declared soft prompts to
// load for the given request. An empty requested name always matches with the
// empty choice, since the worker can simply unload its soft prompt; otherwise
// a requested name matches any declared name containing it as a substring.
func (w *Worker) MatchingSoftprompt(wp *WaitingPrompt) (string, bool) {
	for _, want := range wp.Softprompts {
		if want == "" {
			return "", true
		}
		for _, declared := range w.Softprompts {
			if strings.Contains(declared, want) {
				return declared, true
			}
		}
	}
	return "", false
}

// RecordContribution credits the worker and its owner for a delivered
// generation and folds the throughput sample into the rolling window.
func (w *Worker) RecordContribution(tokens int64, kudos, tokensPerSec float64) {
	w.Owner.RecordContributions(tokens, kudos)
	w.ModifyKudos(kudos, KudosGenerated)
	w.Contributions += tokens
	w.Fulfilments++
	w.Performances = append(w.Performances, tokensPerSec)
	if len(w.Performances) > MaxWorkerPerformances {
		w.Performances = w.Performances[1:]
	}
}

// ModifyKudos applies a signed delta to the balance and the named sub-ledger
// entry, both rounded to two decimals.
func (w *Worker) ModifyKudos(delta float64, action KudosAction) {
	w.Kudos = Round2(w.Kudos + delta)
	switch action {
	case KudosUptime:
		w.KudosDetails.Uptime = Round2(w.KudosDetails.Uptime + delta)
	default:
		w.KudosDetails.Generated = Round2(w.KudosDetails.Generated + delta)
	}
}

// PerformanceAverage is the mean of the rolling throughput window. Workers
// without samples report 1 token per second so wait estimates never divide
// by zero.
func (w *Worker) PerformanceAverage() float64 {
	if len(w.Performances) == 0 {
		return 1
	}
	var sum float64
	for _, p := range w.Performances {
		sum += p
	}
	return sum / float64(len(w.Performances))
}

// PerformanceSummary renders the rolling average for human consumption.
func (w *Worker) PerformanceSummary() string {
	if len(w.Performances) == 0 {
		return "No requests fulfilled yet"
	}
	var sum float64
	for _, p := range w.Performances {
		sum += p
	}
	return fmt.Sprintf("%s tokens per second", formatRounded(Round1(sum/float64(len(w.Performances)))))
}

// HumanReadableUptime renders accrued uptime in the largest sensible unit.
func (w *Worker) HumanReadableUptime() string {
	switch {
	case w.Uptime < 60:
		return fmt.Sprintf("%d seconds", w.Uptime)
	case w.Uptime < 60*60:
		return fmt.Sprintf("%s minutes", formatRounded(float64(w.Uptime)/60))
	case w.Uptime < 60*60*24:
		return fmt.Sprintf("%s hours", formatRounded(float64(w.Uptime)/60/60))
	default:
		return fmt.Sprintf("%s days", formatRounded(float64(w.Uptime)/60/60/24))
	}
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
