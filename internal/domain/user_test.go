package domain

import (
	"testing"
	"time"
)

func TestNewUserDefaults(t *testing.T) {
	now := time.Now()
	u := NewUser(now, 7, "alice", "oauth-7", "key-7", "inv")

	if u.UniqueAlias() != "alice#7" {
		t.Errorf("Expected alias to be 'alice#7', got %q", u.UniqueAlias())
	}
	if u.MaxConcurrentPrompts != DefaultMaxConcurrentPrompts {
		t.Errorf("Expected default concurrency cap %d, got %d", DefaultMaxConcurrentPrompts, u.MaxConcurrentPrompts)
	}
	if u.Kudos != 0 {
		t.Errorf("Expected starting kudos 0, got %f", u.Kudos)
	}
	if u.IsAnonymous() {
		t.Error("Expected a registered user not to be anonymous")
	}
}

func TestNewAnonymousUser(t *testing.T) {
	u := NewAnonymousUser(time.Now())

	if u.ID != 0 {
		t.Errorf("Expected anon id 0, got %d", u.ID)
	}
	if u.OAuthID != AnonOAuthID {
		t.Errorf("Expected oauth id %q, got %q", AnonOAuthID, u.OAuthID)
	}
	if u.APIKey != AnonAPIKey {
		t.Errorf("Expected api key %q, got %q", AnonAPIKey, u.APIKey)
	}
	if u.Username != "Anonymous" {
		t.Errorf("Expected username 'Anonymous', got %q", u.Username)
	}
	if u.MaxConcurrentPrompts != AnonMaxConcurrentPrompts {
		t.Errorf("Expected anon concurrency cap %d, got %d", AnonMaxConcurrentPrompts, u.MaxConcurrentPrompts)
	}
	if !u.IsAnonymous() {
		t.Error("Expected anon user to report anonymous")
	}
}

func TestUserCheckKey(t *testing.T) {
	u := NewUser(time.Now(), 1, "bob", "o1", "secret", "")

	if !u.CheckKey("secret") {
		t.Error("Expected matching key to pass")
	}
	if u.CheckKey("wrong") {
		t.Error("Expected mismatched key to fail")
	}
	u.APIKey = ""
	if u.CheckKey("") {
		t.Error("Expected empty stored key to never authenticate")
	}
}

func TestUserModifyKudos(t *testing.T) {
	u := NewUser(time.Now(), 1, "bob", "o1", "k", "")

	u.ModifyKudos(0.1, KudosAccumulated)
	u.ModifyKudos(0.2, KudosAccumulated)
	if u.Kudos != 0.3 {
		t.Errorf("Expected kudos 0.3 after rounding, got %v", u.Kudos)
	}
	if u.KudosDetails.Accumulated != 0.3 {
		t.Errorf("Expected accumulated 0.3, got %v", u.KudosDetails.Accumulated)
	}

	u.ModifyKudos(-0.1, KudosGifted)
	if u.Kudos != 0.2 {
		t.Errorf("Expected kudos 0.2 after gift, got %v", u.Kudos)
	}
	if u.KudosDetails.Gifted != -0.1 {
		t.Errorf("Expected gifted sub-ledger to carry the signed delta -0.1, got %v", u.KudosDetails.Gifted)
	}
}

func TestUserRecordUsageAndContributions(t *testing.T) {
	u := NewUser(time.Now(), 1, "bob", "o1", "k", "")

	u.RecordContributions(80, 10.29)
	if u.Contributions.Tokens != 80 {
		t.Errorf("Expected contribution tokens 80, got %d", u.Contributions.Tokens)
	}
	if u.Contributions.Fulfillments != 1 {
		t.Errorf("Expected 1 fulfillment, got %d", u.Contributions.Fulfillments)
	}
	if u.Kudos != 10.29 {
		t.Errorf("Expected kudos 10.29, got %v", u.Kudos)
	}

	u.RecordUsage(80, 10.29)
	if u.Usage.Tokens != 80 {
		t.Errorf("Expected usage tokens 80, got %d", u.Usage.Tokens)
	}
	if u.Usage.Requests != 1 {
		t.Errorf("Expected 1 request, got %d", u.Usage.Requests)
	}
	if u.Kudos != 0 {
		t.Errorf("Expected kudos back to 0, got %v", u.Kudos)
	}
	if u.KudosDetails.Accumulated != 0 {
		t.Errorf("Expected accumulated back to 0, got %v", u.KudosDetails.Accumulated)
	}
}

func TestTransferKudos(t *testing.T) {
	now := time.Now()

	t.Run("insufficient balance", func(t *testing.T) {
		src := NewUser(now, 1, "a", "o1", "k1", "")
		dst := NewUser(now, 2, "b", "o2", "k2", "")
		src.Kudos = 5

		amount, msg := TransferKudos(src, dst, 10)
		if amount != 0 {
			t.Errorf("Expected no transfer, got %v", amount)
		}
		if msg != "Not enough kudos." {
			t.Errorf("Expected rejection message, got %q", msg)
		}
		if src.Kudos != 5 || dst.Kudos != 0 {
			t.Errorf("Expected balances untouched, got src=%v dst=%v", src.Kudos, dst.Kudos)
		}
	})

	t.Run("conserves total", func(t *testing.T) {
		src := NewUser(now, 1, "a", "o1", "k1", "")
		dst := NewUser(now, 2, "b", "o2", "k2", "")
		src.Kudos = 100
		dst.Kudos = 3

		amount, msg := TransferKudos(src, dst, 40)
		if amount != 40 || msg != "OK" {
			t.Errorf("Expected (40, OK), got (%v, %q)", amount, msg)
		}
		if src.Kudos+dst.Kudos != 103 {
			t.Errorf("Expected total conserved at 103, got %v", src.Kudos+dst.Kudos)
		}
		if src.KudosDetails.Gifted != -40 {
			t.Errorf("Expected gifted -40, got %v", src.KudosDetails.Gifted)
		}
		if dst.KudosDetails.Received != 40 {
			t.Errorf("Expected received 40, got %v", dst.KudosDetails.Received)
		}
	})

	t.Run("exact balance allowed", func(t *testing.T) {
		src := NewUser(now, 1, "a", "o1", "k1", "")
		dst := NewUser(now, 2, "b", "o2", "k2", "")
		src.Kudos = 10

		amount, msg := TransferKudos(src, dst, 10)
		if amount != 10 || msg != "OK" {
			t.Errorf("Expected (10, OK), got (%v, %q)", amount, msg)
		}
		if src.Kudos != 0 {
			t.Errorf("Expected src emptied, got %v", src.Kudos)
		}
	})
}
