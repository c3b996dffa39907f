package usecase

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/fairyhunter13/textgen-horde/internal/domain"
)

// GenerationResult is one delivered generation in a status response.
type GenerationResult struct {
	Text       string `json:"text"`
	ServerID   string `json:"server_id"`
	ServerName string `json:"server_name"`
}

// PromptStatus is the poll response for a waiting prompt. The lite variant
// leaves Generations empty to keep the payload small while polling.
type PromptStatus struct {
	Finished      int                `json:"finished"`
	Processing    int                `json:"processing"`
	Waiting       int                `json:"waiting"`
	Done          bool               `json:"done"`
	Generations   []GenerationResult `json:"generations"`
	QueuePosition int                `json:"queue_position"`
	WaitTime      int                `json:"wait_time"`
}

// PromptStatus reports progress, queue position and a wait-time estimate for
// a waiting prompt. Queue position 0 means every generation is either done or
// currently processing; fresh prompts start at their kudos-priority position.
func (c *Coordinator) PromptStatus(id string, lite bool) (PromptStatus, error) {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	wp, ok := c.prompts.get(id)
	if !ok {
		return PromptStatus{}, fmt.Errorf("%w: prompt %s", domain.ErrNotFound, id)
	}

	st := PromptStatus{Generations: []GenerationResult{}}
	st.Finished, st.Processing = wp.CountGenerations()
	st.Waiting = wp.N
	st.Done = wp.IsCompleted()

	pos, tokensAhead, nAhead := -1, int64(0), int64(0)
	if wp.NeedsGeneration() {
		pos, tokensAhead, nAhead = c.prompts.queueStatsFor(wp)
	}
	st.QueuePosition = pos + 1

	// Wait estimate: tokens queued ahead over the horde's recent throughput,
	// with parallelism capped by how many generations are actually queued,
	// plus the expected remainder of this prompt's own in-flight children.
	active := int64(c.activeWorkerCountLocked(now))
	if nAhead < active {
		active = nAhead
	}
	avgTokensPerSec := c.stats.RequestAvg() * float64(active)
	if avgTokensPerSec == 0 {
		avgTokensPerSec = 1
	}
	wait := float64(tokensAhead) / avgTokensPerSec
	for _, gen := range wp.ProcessingGens {
		wait += gen.ExpectedTimeLeft(now)
	}
	st.WaitTime = int(math.Round(wait))

	if !lite {
		for _, gen := range wp.ProcessingGens {
			if gen.IsCompleted() {
				st.Generations = append(st.Generations, GenerationResult{
					Text:       gen.Text(),
					ServerID:   gen.Worker.ID,
					ServerName: gen.Worker.Name,
				})
			}
		}
	}
	return st, nil
}

// HordeStatus is the horde-wide overview.
type HordeStatus struct {
	QueuedRequests   int64   `json:"queued_requests"`
	QueuedTokens     int64   `json:"queued_tokens"`
	ActiveWorkers    int     `json:"active_workers"`
	KilotokensPerMin float64 `json:"kilotokens_per_min"`
	TotalTokens      int64   `json:"total_tokens"`
	TotalFulfilments int64   `json:"total_fulfilments"`
}

// Status reports queue depth, active capacity, the recent delivery rate and
// lifetime totals.
func (c *Coordinator) Status() HordeStatus {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	var st HordeStatus
	st.QueuedRequests, st.QueuedTokens = c.prompts.countTotals()
	st.ActiveWorkers = c.activeWorkerCountLocked(now)
	st.KilotokensPerMin = c.stats.KilotokensPerMin(now)
	for _, w := range c.workers {
		st.TotalTokens += w.Contributions
		st.TotalFulfilments += w.Fulfilments
	}
	return st
}

// ActiveWorkerCount counts workers inside their check-in window.
func (c *Coordinator) ActiveWorkerCount() int {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeWorkerCountLocked(now)
}

// AvailableModels maps each model served by an active worker to how many
// workers offer it. Stale workers don't count.
func (c *Coordinator) AvailableModels() map[string]int {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	models := make(map[string]int)
	for _, w := range c.workers {
		if w.IsStale(now) {
			continue
		}
		models[w.Model]++
	}
	return models
}

// WorkerInfo is a point-in-time snapshot of one worker, safe to render
// after the engine lock is released.
type WorkerInfo struct {
	Name              string  `json:"name"`
	ID                string  `json:"id"`
	Model             string  `json:"model"`
	MaxLength         int     `json:"max_length"`
	MaxContentLength  int     `json:"max_content_length"`
	TokensGenerated   int64   `json:"tokens_generated"`
	RequestsFulfilled int64   `json:"requests_fulfilled"`
	KudosRewards      float64 `json:"kudos_rewards"`
	Performance       string  `json:"performance"`
	Uptime            string  `json:"uptime"`
	Stale             bool    `json:"stale"`
}

// UserInfo is a point-in-time snapshot of one user. The nested ledger
// fields reuse the snapshot record shapes, which carry the wire keys.
type UserInfo struct {
	Username      string                         `json:"username"`
	ID            int64                          `json:"id"`
	Kudos         float64                        `json:"kudos"`
	KudosDetails  domain.UserKudosDetailsRecord  `json:"kudos_details"`
	Usage         domain.UserUsageRecord         `json:"usage"`
	Contributions domain.UserContributionsRecord `json:"contributions"`
	Concurrency   int                            `json:"concurrency"`
}

func workerInfo(w *domain.Worker, now time.Time) WorkerInfo {
	return WorkerInfo{
		Name:              w.Name,
		ID:                w.ID,
		Model:             w.Model,
		MaxLength:         w.MaxLength,
		MaxContentLength:  w.MaxContentLength,
		TokensGenerated:   w.Contributions,
		RequestsFulfilled: w.Fulfilments,
		KudosRewards:      w.Kudos,
		Performance:       w.PerformanceSummary(),
		Uptime:            w.HumanReadableUptime(),
		Stale:             w.IsStale(now),
	}
}

func userInfo(u *domain.User) UserInfo {
	rec := u.Record()
	return UserInfo{
		Username:      u.UniqueAlias(),
		ID:            u.ID,
		Kudos:         u.Kudos,
		KudosDetails:  rec.KudosDetails,
		Usage:         rec.Usage,
		Contributions: rec.Contributions,
		Concurrency:   u.MaxConcurrentPrompts,
	}
}

// TopContributor returns the registered user with the most contributed
// tokens. The anonymous user never places.
func (c *Coordinator) TopContributor() (UserInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var top *domain.User
	var topTokens int64
	for _, u := range c.users {
		if u == c.anon {
			continue
		}
		if u.Contributions.Tokens > topTokens {
			top = u
			topTokens = u.Contributions.Tokens
		}
	}
	if top == nil {
		return UserInfo{}, false
	}
	return userInfo(top), true
}

// TopWorker returns the worker with the most contributed tokens.
func (c *Coordinator) TopWorker() (WorkerInfo, bool) {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	var top *domain.Worker
	var topTokens int64
	for _, w := range c.workers {
		if w.Contributions > topTokens {
			top = w
			topTokens = w.Contributions
		}
	}
	if top == nil {
		return WorkerInfo{}, false
	}
	return workerInfo(top, now), true
}

// Workers snapshots every registered worker, including stale ones, sorted
// by name.
func (c *Coordinator) Workers() []WorkerInfo {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	infos := make([]WorkerInfo, 0, len(c.workers))
	for _, w := range c.workers {
		infos = append(infos, workerInfo(w, now))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// WorkerInfoByName snapshots a single worker.
func (c *Coordinator) WorkerInfoByName(name string) (WorkerInfo, error) {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.workers[name]
	if !ok {
		return WorkerInfo{}, fmt.Errorf("%w: worker %s", domain.ErrNotFound, name)
	}
	return workerInfo(w, now), nil
}

// Users snapshots every registered user, including the anonymous one,
// sorted by id.
func (c *Coordinator) Users() []UserInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	infos := make([]UserInfo, 0, len(c.users))
	for _, u := range c.users {
		infos = append(infos, userInfo(u))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}
