package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// ConvertMode selects a one-off reinterpretation of persisted counters at
// load time. Historical snapshots counted characters; to_tokens divides those
// counters by four.
type ConvertMode string

const (
	ConvertNone     ConvertMode = ""
	ConvertToTokens ConvertMode = "to_tokens"
)

const timestampLayout = "2006-01-02 15:04:05"

// Timestamp marshals wall-clock times in the snapshot files' second-precision
// format. Times parse in the local zone, matching how they were written.
type Timestamp struct {
	time.Time
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Format(timestampLayout))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	parsed, err := time.ParseInLocation(timestampLayout, s, time.Local)
	if err != nil {
		return fmt.Errorf("timestamp %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

// UserRecord is one entry of the users snapshot file.
type UserRecord struct {
	Username      string                  `json:"username"`
	OAuthID       string                  `json:"oauth_id"`
	APIKey        string                  `json:"api_key"`
	Kudos         float64                 `json:"kudos"`
	KudosDetails  UserKudosDetailsRecord  `json:"kudos_details"`
	ID            int64                   `json:"id"`
	InviteID      string                  `json:"invite_id"`
	Contributions UserContributionsRecord `json:"contributions"`
	Usage         UserUsageRecord         `json:"usage"`
	// Pointer distinguishes an absent field, which defaults, from a stored 0.
	MaxConcurrentPrompts *int      `json:"max_concurrent_wps,omitempty"`
	CreationDate         Timestamp `json:"creation_date"`
	LastActive           Timestamp `json:"last_active"`
}

type UserKudosDetailsRecord struct {
	Accumulated float64 `json:"accumulated"`
	Gifted      float64 `json:"gifted"`
	Received    float64 `json:"received"`
}

// UserContributionsRecord carries the ledger counters. Chars only appears in
// pre-token snapshots and is consumed by the to_tokens conversion.
type UserContributionsRecord struct {
	Tokens       int64  `json:"tokens"`
	Chars        *int64 `json:"chars,omitempty"`
	Fulfillments int64  `json:"fulfillments"`
}

type UserUsageRecord struct {
	Tokens   int64  `json:"tokens"`
	Chars    *int64 `json:"chars,omitempty"`
	Requests int64  `json:"requests"`
}

// Record serializes the user for the snapshot file.
func (u *User) Record() UserRecord {
	maxConcurrent := u.MaxConcurrentPrompts
	return UserRecord{
		Username: u.Username,
		OAuthID:  u.OAuthID,
		APIKey:   u.APIKey,
		Kudos:    u.Kudos,
		KudosDetails: UserKudosDetailsRecord{
			Accumulated: u.KudosDetails.Accumulated,
			Gifted:      u.KudosDetails.Gifted,
			Received:    u.KudosDetails.Received,
		},
		ID:       u.ID,
		InviteID: u.InviteID,
		Contributions: UserContributionsRecord{
			Tokens:       u.Contributions.Tokens,
			Fulfillments: u.Contributions.Fulfillments,
		},
		Usage: UserUsageRecord{
			Tokens:   u.Usage.Tokens,
			Requests: u.Usage.Requests,
		},
		MaxConcurrentPrompts: &maxConcurrent,
		CreationDate:         Timestamp{u.CreationDate},
		LastActive:           Timestamp{u.LastActive},
	}
}

// NewUserFromRecord rebuilds a user from a snapshot entry. Absent optional
// fields take their defaults, and the anonymous API key always carries the
// elevated concurrency cap regardless of what was stored.
func NewUserFromRecord(rec UserRecord, convert ConvertMode) *User {
	u := &User{
		ID:       rec.ID,
		OAuthID:  rec.OAuthID,
		Username: rec.Username,
		APIKey:   rec.APIKey,
		InviteID: rec.InviteID,
		Kudos:    rec.Kudos,
		KudosDetails: UserKudosDetails{
			Accumulated: rec.KudosDetails.Accumulated,
			Gifted:      rec.KudosDetails.Gifted,
			Received:    rec.KudosDetails.Received,
		},
		Contributions: UserContributions{
			Tokens:       rec.Contributions.Tokens,
			Fulfillments: rec.Contributions.Fulfillments,
		},
		Usage: UserUsage{
			Tokens:   rec.Usage.Tokens,
			Requests: rec.Usage.Requests,
		},
		MaxConcurrentPrompts: DefaultMaxConcurrentPrompts,
		CreationDate:         rec.CreationDate.Time,
		LastActive:           rec.LastActive.Time,
	}
	if convert == ConvertToTokens {
		if rec.Contributions.Chars != nil {
			u.Contributions.Tokens = charsToTokens(*rec.Contributions.Chars)
		}
		if rec.Usage.Chars != nil {
			u.Usage.Tokens = charsToTokens(*rec.Usage.Chars)
		}
	}
	if rec.MaxConcurrentPrompts != nil {
		u.MaxConcurrentPrompts = *rec.MaxConcurrentPrompts
	}
	if u.APIKey == AnonAPIKey {
		u.MaxConcurrentPrompts = AnonMaxConcurrentPrompts
	}
	return u
}

// WorkerRecord is one entry of the servers snapshot file. Workers are stored
// under the historical key names, referencing their owner by oauth id.
type WorkerRecord struct {
	OAuthID          string                   `json:"oauth_id"`
	Name             string                   `json:"name"`
	Model            string                   `json:"model"`
	MaxLength        int                      `json:"max_length"`
	MaxContentLength int                      `json:"max_content_length"`
	Contributions    int64                    `json:"contributions"`
	Fulfilments      int64                    `json:"fulfilments"`
	Kudos            float64                  `json:"kudos"`
	KudosDetails     WorkerKudosDetailsRecord `json:"kudos_details"`
	Performances     []float64                `json:"performances"`
	LastCheckIn      Timestamp                `json:"last_check_in"`
	ID               string                   `json:"id"`
	Softprompts      []string                 `json:"softprompts"`
	Uptime           int64                    `json:"uptime"`
}

type WorkerKudosDetailsRecord struct {
	Generated float64 `json:"generated"`
	Uptime    float64 `json:"uptime"`
}

// Record serializes the worker. Slices are copied so the record can be
// written to disk after the engine lock is released.
func (w *Worker) Record() WorkerRecord {
	return WorkerRecord{
		OAuthID:          w.Owner.OAuthID,
		Name:             w.Name,
		Model:            w.Model,
		MaxLength:        w.MaxLength,
		MaxContentLength: w.MaxContentLength,
		Contributions:    w.Contributions,
		Fulfilments:      w.Fulfilments,
		Kudos:            w.Kudos,
		KudosDetails: WorkerKudosDetailsRecord{
			Generated: w.KudosDetails.Generated,
			Uptime:    w.KudosDetails.Uptime,
		},
		Performances: append([]float64(nil), w.Performances...),
		LastCheckIn:  Timestamp{w.LastCheckIn},
		ID:           w.ID,
		Softprompts:  append([]string(nil), w.Softprompts...),
		Uptime:       w.Uptime,
	}
}

// NewWorkerFromRecord rebuilds a worker from a snapshot entry. The owner is
// resolved by the caller, since users load before workers.
func NewWorkerFromRecord(rec WorkerRecord, owner *User, convert ConvertMode) *Worker {
	w := &Worker{
		ID:               rec.ID,
		Name:             rec.Name,
		Owner:            owner,
		Model:            rec.Model,
		MaxLength:        rec.MaxLength,
		MaxContentLength: rec.MaxContentLength,
		Contributions:    rec.Contributions,
		Fulfilments:      rec.Fulfilments,
		Kudos:            rec.Kudos,
		KudosDetails: WorkerKudosDetails{
			Generated: rec.KudosDetails.Generated,
			Uptime:    rec.KudosDetails.Uptime,
		},
		Performances: rec.Performances,
		Uptime:       rec.Uptime,
		LastCheckIn:  rec.LastCheckIn.Time,
		Softprompts:  rec.Softprompts,
	}
	if convert == ConvertToTokens {
		w.Contributions = charsToTokens(rec.Contributions)
	}
	return w
}

// StatsRecord is the stats snapshot file. The model multiplier key keeps its
// historical misspelling; renaming it would orphan every existing snapshot.
type StatsRecord struct {
	ServerPerformances []float64           `json:"server_performances"`
	ModelMultipliers   map[string]float64  `json:"model_mulitpliers"`
	Fulfillments       []FulfillmentRecord `json:"fulfillments"`
	// FulfilmentTimes is the pre-rename key for server_performances; read
	// when present, never written.
	FulfilmentTimes []float64 `json:"fulfilment_times,omitempty"`
}

type FulfillmentRecord struct {
	Tokens      int64     `json:"tokens"`
	Chars       *int64    `json:"chars,omitempty"`
	StartTime   Timestamp `json:"start_time"`
	DeliverTime Timestamp `json:"deliver_time"`
}

// Record serializes the stats. Everything is copied so the record can be
// written to disk after the engine lock is released.
func (s *Stats) Record() StatsRecord {
	fulfillments := make([]FulfillmentRecord, 0, len(s.Fulfillments))
	for _, f := range s.Fulfillments {
		fulfillments = append(fulfillments, FulfillmentRecord{
			Tokens:      f.Tokens,
			StartTime:   Timestamp{f.StartTime},
			DeliverTime: Timestamp{f.DeliverTime},
		})
	}
	multipliers := make(map[string]float64, len(s.ModelMultipliers))
	for model, m := range s.ModelMultipliers {
		multipliers[model] = m
	}
	return StatsRecord{
		ServerPerformances: append([]float64(nil), s.ServerPerformances...),
		ModelMultipliers:   multipliers,
		Fulfillments:       fulfillments,
	}
}

func NewStatsFromRecord(rec StatsRecord, now time.Time, convert ConvertMode) *Stats {
	s := NewStats(now)
	s.ServerPerformances = rec.ServerPerformances
	if rec.FulfilmentTimes != nil {
		s.ServerPerformances = rec.FulfilmentTimes
	}
	if rec.ModelMultipliers != nil {
		s.ModelMultipliers = rec.ModelMultipliers
	}
	for _, f := range rec.Fulfillments {
		tokens := f.Tokens
		if convert == ConvertToTokens && f.Chars != nil {
			tokens = charsToTokens(*f.Chars)
		}
		s.Fulfillments = append(s.Fulfillments, Fulfillment{
			Tokens:      tokens,
			StartTime:   f.StartTime.Time,
			DeliverTime: f.DeliverTime.Time,
		})
	}
	return s
}

func charsToTokens(chars int64) int64 {
	return int64(math.Round(float64(chars) / 4))
}
