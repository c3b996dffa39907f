package usecase

import (
	"sort"

	"github.com/fairyhunter13/textgen-horde/internal/domain"
)

// promptIndex holds the waiting prompts by id, preserving insertion order so
// the priority sort stays stable under kudos ties. All access happens under
// the coordinator lock.
type promptIndex struct {
	byID  map[string]*domain.WaitingPrompt
	order []*domain.WaitingPrompt
}

func newPromptIndex() *promptIndex {
	return &promptIndex{byID: make(map[string]*domain.WaitingPrompt)}
}

func (x *promptIndex) add(wp *domain.WaitingPrompt) {
	x.byID[wp.ID] = wp
	x.order = append(x.order, wp)
}

func (x *promptIndex) get(id string) (*domain.WaitingPrompt, bool) {
	wp, ok := x.byID[id]
	return wp, ok
}

func (x *promptIndex) del(id string) {
	wp, ok := x.byID[id]
	if !ok {
		return
	}
	delete(x.byID, id)
	for i, other := range x.order {
		if other == wp {
			x.order = append(x.order[:i], x.order[i+1:]...)
			break
		}
	}
}

// all returns a fresh slice in insertion order, safe to mutate the index
// while iterating.
func (x *promptIndex) all() []*domain.WaitingPrompt {
	return append([]*domain.WaitingPrompt(nil), x.order...)
}

// countWaitingFor tallies the user's unfinished prompts, enforcing the
// per-user concurrency cap.
func (x *promptIndex) countWaitingFor(user *domain.User) int {
	count := 0
	for _, wp := range x.order {
		if wp.Owner == user && !wp.IsCompleted() {
			count++
		}
	}
	return count
}

// countTotals sums the queue-wide demand: every prompt's remaining n, and the
// max_length of each prompt that still needs generations.
func (x *promptIndex) countTotals() (queuedRequests, queuedTokens int64) {
	for _, wp := range x.order {
		queuedRequests += int64(wp.N)
		if wp.N > 0 {
			queuedTokens += int64(wp.MaxLength)
		}
	}
	return queuedRequests, queuedTokens
}

// sortedByPriority returns the prompts still needing generations, owners with
// more kudos first. The sort is stable, so equal-kudos owners keep their
// submission order.
func (x *promptIndex) sortedByPriority() []*domain.WaitingPrompt {
	sorted := x.all()
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Owner.Kudos > sorted[j].Owner.Kudos
	})
	waiting := sorted[:0]
	for _, wp := range sorted {
		if wp.NeedsGeneration() {
			waiting = append(waiting, wp)
		}
	}
	return waiting
}

// queueStatsFor walks the priority order accumulating queued tokens and
// generations up to and including the given prompt. The caller checks
// NeedsGeneration first; a prompt not in the queue reports (-1, 0, 0).
func (x *promptIndex) queueStatsFor(wp *domain.WaitingPrompt) (pos int, tokensAhead, nAhead int64) {
	for i, other := range x.sortedByPriority() {
		tokensAhead += other.QueuedTokens()
		nAhead += int64(other.N)
		if other == wp {
			return i, tokensAhead, nAhead
		}
	}
	return -1, 0, 0
}
