package usecase

import (
	"log/slog"
	"sort"

	"github.com/fairyhunter13/textgen-horde/internal/domain"
)

// Snapshot is the engine state in its persistable shape. Each slice lands in
// its own snapshot file.
type Snapshot struct {
	Users   []domain.UserRecord
	Workers []domain.WorkerRecord
	Stats   domain.StatsRecord
}

// ExportState captures users, workers and stats in one atomic pass. The
// records are detached copies, safe to serialize after the lock is released.
// Workers owned by the anonymous user carry no accountable history and are
// skipped. Output order is deterministic so consecutive snapshots diff
// cleanly.
func (c *Coordinator) ExportState() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		Users:   make([]domain.UserRecord, 0, len(c.users)),
		Workers: make([]domain.WorkerRecord, 0, len(c.workers)),
	}
	for _, u := range c.users {
		snap.Users = append(snap.Users, u.Record())
	}
	sort.Slice(snap.Users, func(i, j int) bool { return snap.Users[i].ID < snap.Users[j].ID })
	for _, w := range c.workers {
		if w.Owner == c.anon {
			continue
		}
		snap.Workers = append(snap.Workers, w.Record())
	}
	sort.Slice(snap.Workers, func(i, j int) bool { return snap.Workers[i].Name < snap.Workers[j].Name })
	snap.Stats = c.stats.Record()
	return snap
}

// ImportState replaces the engine state with a loaded snapshot. Users load
// first so workers can resolve their owners by oauth id; a worker referencing
// an unknown owner is dropped with a warning rather than poisoning the arena.
// Meant for startup, before traffic is admitted; queued prompts are never
// persisted and are left untouched.
func (c *Coordinator) ImportState(snap Snapshot, convert domain.ConvertMode) {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users = make(map[string]*domain.User, len(snap.Users)+1)
	c.workers = make(map[string]*domain.Worker, len(snap.Workers))
	c.lastUserID = 0
	for _, rec := range snap.Users {
		u := domain.NewUserFromRecord(rec, convert)
		c.users[u.OAuthID] = u
		if u.ID > c.lastUserID {
			c.lastUserID = u.ID
		}
	}
	if anon, ok := c.users[domain.AnonOAuthID]; ok {
		c.anon = anon
	} else {
		c.anon = domain.NewAnonymousUser(now)
		c.users[c.anon.OAuthID] = c.anon
	}
	for _, rec := range snap.Workers {
		owner, ok := c.users[rec.OAuthID]
		if !ok {
			slog.Warn("worker snapshot references unknown owner, skipping",
				slog.String("worker", rec.Name),
				slog.String("oauth_id", rec.OAuthID))
			continue
		}
		w := domain.NewWorkerFromRecord(rec, owner, convert)
		c.workers[w.Name] = w
	}
	c.stats = domain.NewStatsFromRecord(snap.Stats, now, convert)
	slog.Info("engine state imported",
		slog.Int("users", len(c.users)),
		slog.Int("workers", len(c.workers)))
}
