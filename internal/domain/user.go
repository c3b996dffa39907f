package domain

import (
	"fmt"
	"time"
)

// KudosAction names a sub-ledger entry of a kudos balance. User balances split
// into accumulated/gifted/received, worker balances into generated/uptime.
type KudosAction string

const (
	KudosAccumulated KudosAction = "accumulated"
	KudosGifted      KudosAction = "gifted"
	KudosReceived    KudosAction = "received"
	KudosGenerated   KudosAction = "generated"
	KudosUptime      KudosAction = "uptime"
)

const (
	// AnonOAuthID and AnonAPIKey identify the distinguished anonymous user.
	AnonOAuthID = "anon"
	AnonAPIKey  = "0000000000"

	// DefaultMaxConcurrentPrompts caps how many unfinished prompts a
	// registered user may have queued at once. Anonymous traffic gets a
	// higher cap, balanced by its zero-kudos priority.
	DefaultMaxConcurrentPrompts = 2
	AnonMaxConcurrentPrompts    = 30
)

type UserKudosDetails struct {
	Accumulated float64
	Gifted      float64
	Received    float64
}

type UserContributions struct {
	Tokens       int64
	Fulfillments int64
}

type UserUsage struct {
	Tokens   int64
	Requests int64
}

// User is a kudos ledger holder. Invariant: Kudos equals the sum of signed
// deltas recorded across the sub-ledger entries.
type User struct {
	ID                   int64
	OAuthID              string
	Username             string
	APIKey               string
	InviteID             string
	Kudos                float64
	KudosDetails         UserKudosDetails
	Contributions        UserContributions
	Usage                UserUsage
	MaxConcurrentPrompts int
	CreationDate         time.Time
	LastActive           time.Time
}

func NewUser(now time.Time, id int64, username, oauthID, apiKey, inviteID string) *User {
	return &User{
		ID:                   id,
		OAuthID:              oauthID,
		Username:             username,
		APIKey:               apiKey,
		InviteID:             inviteID,
		MaxConcurrentPrompts: DefaultMaxConcurrentPrompts,
		CreationDate:         now,
		LastActive:           now,
	}
}

func NewAnonymousUser(now time.Time) *User {
	return &User{
		ID:                   0,
		OAuthID:              AnonOAuthID,
		Username:             "Anonymous",
		APIKey:               AnonAPIKey,
		MaxConcurrentPrompts: AnonMaxConcurrentPrompts,
		CreationDate:         now,
		LastActive:           now,
	}
}

func (u *User) IsAnonymous() bool {
	return u.OAuthID == AnonOAuthID
}

// UniqueAlias is the user's stable public handle. Usernames may repeat; the
// appended id keeps the alias unique.
func (u *User) UniqueAlias() string {
	return fmt.Sprintf("%s#%d", u.Username, u.ID)
}

// CheckKey reports whether the given API key authenticates this user.
func (u *User) CheckKey(apiKey string) bool {
	return u.APIKey != "" && u.APIKey == apiKey
}

// RecordUsage debits the ledger for a consumed generation.
func (u *User) RecordUsage(tokens int64, kudos float64) {
	u.Usage.Tokens += tokens
	u.Usage.Requests++
	u.ModifyKudos(-kudos, KudosAccumulated)
}

// RecordContributions credits the ledger for a fulfilled generation.
func (u *User) RecordContributions(tokens int64, kudos float64) {
	u.Contributions.Tokens += tokens
	u.Contributions.Fulfillments++
	u.ModifyKudos(kudos, KudosAccumulated)
}

// RecordUptime credits the ledger for worker uptime earned on the user's behalf.
func (u *User) RecordUptime(kudos float64) {
	u.ModifyKudos(kudos, KudosAccumulated)
}

// ModifyKudos applies a signed delta to the balance and mirrors it into the
// named sub-ledger entry. Both stay rounded to two decimals.
func (u *User) ModifyKudos(delta float64, action KudosAction) {
	u.Kudos = Round2(u.Kudos + delta)
	switch action {
	case KudosGifted:
		u.KudosDetails.Gifted = Round2(u.KudosDetails.Gifted + delta)
	case KudosReceived:
		u.KudosDetails.Received = Round2(u.KudosDetails.Received + delta)
	default:
		u.KudosDetails.Accumulated = Round2(u.KudosDetails.Accumulated + delta)
	}
}

// Touch refreshes the last-active timestamp.
func (u *User) Touch(now time.Time) {
	u.LastActive = now
}

// TransferKudos moves amount from src to dst, or rejects with a reason the
// caller relays verbatim. The zero-amount result carries the rejection text.
func TransferKudos(src, dst *User, amount float64) (float64, string) {
	if amount > src.Kudos {
		return 0, "Not enough kudos."
	}
	src.ModifyKudos(-amount, KudosGifted)
	dst.ModifyKudos(amount, KudosReceived)
	return amount, "OK"
}
