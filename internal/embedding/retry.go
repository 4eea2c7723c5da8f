package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"google.golang.org/api/googleapi"

	"levi/internal/logger"
)

// ErrQuota marks a rate-limit or quota rejection by the embedding provider.
var ErrQuota = errors.New("embedding: quota exhausted")

// Policy configures retries around a remote embedding call.
type Policy struct {
	// MaxAttempts bounds failed attempts, counting a full exhausted key round as one.
	MaxAttempts int
	// InitialInterval, MaxInterval and Multiplier shape the exponential backoff.
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// ExhaustedCooldown is slept when every key of the ring hit its quota.
	ExhaustedCooldown time.Duration
}

// DefaultPolicy mirrors the batch embedding job: five attempts, doubling
// backoff from one second and a one minute cooldown once all keys are spent.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       5,
		InitialInterval:   time.Second,
		MaxInterval:       30 * time.Second,
		Multiplier:        2,
		ExhaustedCooldown: time.Minute,
	}
}

// Retrier runs an operation under a Policy, rotating keys on quota errors.
type Retrier struct {
	policy Policy
	keys   *KeyRing
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRetrier returns a retrier. keys may be nil for providers without key rotation.
func NewRetrier(policy Policy, keys *KeyRing) *Retrier {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &Retrier{policy: policy, keys: keys, sleep: sleepContext}
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error { return backoff.Permanent(err) }

// Do calls op until it succeeds, fails permanently, or the policy gives up.
// op receives the key to use, or "" when the retrier has no key ring.
// Every returned error satisfies errors.Is(err, ErrUnavailable).
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context, key string) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.policy.InitialInterval
	b.MaxInterval = r.policy.MaxInterval
	if r.policy.Multiplier > 0 {
		b.Multiplier = r.policy.Multiplier
	}
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return Unavailable(err)
		}
		key := ""
		if r.keys != nil {
			key = r.keys.Current()
		}
		err := op(ctx, key)
		if err == nil {
			return nil
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return Unavailable(perm.Err)
		}

		if IsQuota(err) && r.keys != nil && r.keys.Len() > 0 {
			if r.keys.Rotate() {
				logger.Warn("embedding quota hit, rotating to next API key")
				continue
			}
			failures++
			if failures >= r.policy.MaxAttempts {
				return Unavailable(fmt.Errorf("all %d API keys exhausted after %d rounds: %w", r.keys.Len(), failures, err))
			}
			logger.Warn("all %d API keys exhausted, cooling down for %s", r.keys.Len(), r.policy.ExhaustedCooldown)
			if err := r.sleep(ctx, r.policy.ExhaustedCooldown); err != nil {
				return Unavailable(err)
			}
			r.keys.ResetRound()
			continue
		}

		failures++
		if failures >= r.policy.MaxAttempts {
			return Unavailable(fmt.Errorf("giving up after %d attempts: %w", failures, err))
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return Unavailable(err)
		}
		logger.Debug("embedding attempt %d failed: %v; retrying in %s", failures, err, wait)
		if err := r.sleep(ctx, wait); err != nil {
			return Unavailable(err)
		}
	}
}

// IsQuota reports whether err is a provider quota or rate-limit rejection.
func IsQuota(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrQuota) {
		return true
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "quota") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "rate limit")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
