package authcore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/tradebook/authcore/cache"
)

const (
	otpStatusPending  = "pending"
	otpStatusVerified = "verified"
)

// otpStore keeps one-time codes as Redis hashes keyed by flow type and
// email. Every state transition runs through a conditional script, so a
// concurrent resend, verify, and consume can never race each other into an
// inconsistent entry.
type otpStore struct {
	cache      *cache.Cache
	ttl        time.Duration
	cooldown   time.Duration
	maxRetries int
}

func newOTPStore(c *cache.Cache, cfg OTPConfig) *otpStore {
	return &otpStore{
		cache:      c,
		ttl:        cfg.TTL,
		cooldown:   cfg.Cooldown,
		maxRetries: cfg.MaxRetries,
	}
}

func (s *otpStore) key(typ OTPType, email string) string {
	return fmt.Sprintf("user:otp:%d:%s", typ, email)
}

// Save stores a fresh code hash unless one was issued within the cooldown.
// Returns false when the cooldown rejected the write.
func (s *otpStore) Save(ctx context.Context, typ OTPType, email, codeHash string, now time.Time) (bool, error) {
	threshold := now.Add(-s.cooldown).Unix()

	res, err := s.cache.ConditionalUpdate(ctx, s.key(typ, email), []cache.Step{{
		// issued_at reads as 0 for a missing entry, which always passes.
		Conditions: []cache.Condition{
			{Field: "issued_at", Op: cache.OpLe, Value: strconv.FormatInt(threshold, 10)},
		},
		OnSuccess: []cache.Action{
			{Field: "code_hash", Op: cache.ActSet, Value: codeHash},
			{Field: "issued_at", Op: cache.ActSet, Value: strconv.FormatInt(now.Unix(), 10)},
			{Field: "status", Op: cache.ActSet, Value: otpStatusPending},
			{Field: "retry", Op: cache.ActSet, Value: "0"},
			{Op: cache.ActExpire, Value: strconv.Itoa(int(s.ttl / time.Second))},
		},
	}})
	if err != nil {
		return false, err
	}
	return res.Passed(0), nil
}

// Verify flips a pending entry to verified when the hash matches and the
// retry budget holds; a mismatch burns one retry. An absent entry is
// rejected without creating one.
func (s *otpStore) Verify(ctx context.Context, typ OTPType, email, codeHash string) (bool, error) {
	res, err := s.cache.ConditionalUpdate(ctx, s.key(typ, email), []cache.Step{
		{
			Conditions: []cache.Condition{
				{Field: "issued_at", Op: cache.OpNe, Value: ""},
			},
			Halt: true,
		},
		{
			Conditions: []cache.Condition{
				{Field: "status", Op: cache.OpEq, Value: otpStatusPending},
				{Field: "retry", Op: cache.OpLt, Value: strconv.Itoa(s.maxRetries)},
				{Field: "code_hash", Op: cache.OpEq, Value: codeHash},
			},
			OnSuccess: []cache.Action{
				{Field: "status", Op: cache.ActSet, Value: otpStatusVerified},
			},
			OnFailure: []cache.Action{
				{Field: "retry", Op: cache.ActIncr, Value: "1"},
			},
		},
	})
	if err != nil {
		return false, err
	}
	return res.Passed(1), nil
}

// Delete drops the entry unconditionally. Used when delivery failed so the
// cooldown does not strand the user with a code they never received.
func (s *otpStore) Delete(ctx context.Context, typ OTPType, email string) error {
	return s.cache.Del(ctx, s.key(typ, email))
}

// ConsumeVerified removes a verified entry, returning whether one existed.
// The flow that required the verification calls this exactly once.
func (s *otpStore) ConsumeVerified(ctx context.Context, typ OTPType, email string) (bool, error) {
	res, err := s.cache.ConditionalUpdate(ctx, s.key(typ, email), []cache.Step{{
		Conditions: []cache.Condition{
			{Field: "status", Op: cache.OpEq, Value: otpStatusVerified},
		},
		OnSuccess: []cache.Action{{Op: cache.ActDel}},
	}})
	if err != nil {
		return false, err
	}
	return res.Passed(0), nil
}
