// Package usecase contains the horde coordination engine.
package usecase

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/fairyhunter13/textgen-horde/internal/domain"
)

// Coordinator owns the in-memory arena: every user, worker, waiting prompt
// and in-flight generation, plus the horde-wide stats. A single mutex is the
// serial section; every operation that reads or mutates the arena holds it
// for the whole operation, and nothing does I/O while holding it. Model
// lookups go through the oracle before the lock is taken.
type Coordinator struct {
	mu     sync.Mutex
	clock  clock.Clock
	oracle domain.ModelOracle

	allowAnonymous bool

	users      map[string]*domain.User // keyed by oauth id
	workers    map[string]*domain.Worker
	prompts    *promptIndex
	gens       map[string]*domain.ProcessingGeneration
	stats      *domain.Stats
	anon       *domain.User
	lastUserID int64
}

// NewCoordinator builds an empty arena containing only the anonymous user.
// State from a previous run is seeded separately via ImportState.
func NewCoordinator(oracle domain.ModelOracle, clk clock.Clock, allowAnonymous bool) *Coordinator {
	anon := domain.NewAnonymousUser(clk.Now())
	return &Coordinator{
		clock:          clk,
		oracle:         oracle,
		allowAnonymous: allowAnonymous,
		users:          map[string]*domain.User{anon.OAuthID: anon},
		workers:        make(map[string]*domain.Worker),
		prompts:        newPromptIndex(),
		gens:           make(map[string]*domain.ProcessingGeneration),
		stats:          domain.NewStats(clk.Now()),
		anon:           anon,
	}
}

// RegisterUser creates a user under the next sequential id. Usernames may
// repeat freely; the id suffix in the unique alias disambiguates.
func (c *Coordinator) RegisterUser(username, inviteID string) (*domain.User, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: username required", domain.ErrInvalidArgument)
	}
	now := c.clock.Now()
	c.mu.Lock()
	c.lastUserID++
	u := domain.NewUser(now, c.lastUserID, username, uuid.NewString(), uuid.NewString(), inviteID)
	c.users[u.OAuthID] = u
	c.mu.Unlock()
	slog.Info("new user created", slog.String("user", u.UniqueAlias()))
	return u, nil
}

// UserByAPIKey authenticates an api key. The anonymous key resolves to the
// anonymous user unless anonymous access is disabled.
func (c *Coordinator) UserByAPIKey(apiKey string) (*domain.User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u := c.findUserByAPIKeyLocked(apiKey)
	return u, u != nil
}

// UserByOAuthID looks a user up by its oauth id.
func (c *Coordinator) UserByOAuthID(oauthID string) (*domain.User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u := c.findUserByOAuthIDLocked(oauthID)
	return u, u != nil
}

// UserByAlias looks a user up by its unique alias ("username#id").
func (c *Coordinator) UserByAlias(alias string) (*domain.User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u := c.findUserByAliasLocked(alias)
	return u, u != nil
}

// WorkerByName looks a worker up by its registered name.
func (c *Coordinator) WorkerByName(name string) (*domain.Worker, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.workers[name]
	return w, ok
}

func (c *Coordinator) findUserByOAuthIDLocked(oauthID string) *domain.User {
	if oauthID == domain.AnonOAuthID && !c.allowAnonymous {
		return nil
	}
	return c.users[oauthID]
}

func (c *Coordinator) findUserByAPIKeyLocked(apiKey string) *domain.User {
	for _, u := range c.users {
		if u.CheckKey(apiKey) {
			if u == c.anon && !c.allowAnonymous {
				return nil
			}
			return u
		}
	}
	return nil
}

func (c *Coordinator) findUserByAliasLocked(alias string) *domain.User {
	name, idStr, ok := strings.Cut(alias, "#")
	if !ok {
		return nil
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return nil
	}
	for _, u := range c.users {
		if u.Username == name && u.ID == id {
			if u == c.anon && !c.allowAnonymous {
				return nil
			}
			return u
		}
	}
	return nil
}

func (c *Coordinator) activeWorkerCountLocked(now time.Time) int {
	count := 0
	for _, w := range c.workers {
		if !w.IsStale(now) {
			count++
		}
	}
	return count
}
