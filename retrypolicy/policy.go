// Package retrypolicy implements the retry/timeout decision algorithm
// applied uniformly to every provider's HTTP dispatch. The backoff growth
// curve is delegated to github.com/cenkalti/backoff/v4's
// ExponentialBackOff ("multiply by a factor each attempt, cap at a
// maximum") with the library's own randomization turned off; jitter, a
// uniform factor in [0.5, 1.5], is applied separately in BackoffFor.
package retrypolicy

import (
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy is explicit data. Defaults: 3 retries, 500ms initial
// backoff, 30s max backoff, 2.0 multiplier, jitter on.
type RetryPolicy struct {
	MaxRetries      uint32
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	Multiplier      float64
	Jitter          bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		Jitter:         true,
	}
}

// TimeoutPolicy is explicit data. Default per-attempt 60s; overall
// unbounded.
type TimeoutPolicy struct {
	PerAttempt *time.Duration
	Overall    *time.Duration
}

func DefaultTimeoutPolicy() TimeoutPolicy {
	perAttempt := 60 * time.Second
	return TimeoutPolicy{PerAttempt: &perAttempt}
}

// unjitteredBackoff returns min(initial * multiplier^(attempt-1), max) for
// 1-indexed attempt, using backoff.ExponentialBackOff with
// RandomizationFactor 0 so the growth curve itself is deterministic and
// testable: the backoff sequence is monotonic nondecreasing, ignoring
// jitter.
func unjitteredBackoff(p RetryPolicy, attempt int) time.Duration {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialBackoff
	eb.MaxInterval = p.MaxBackoff
	eb.Multiplier = p.Multiplier
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0 // unbounded: the core owns the overall-timeout decision itself
	eb.Reset()

	d := eb.InitialInterval
	for i := 0; i < attempt; i++ {
		next := eb.NextBackOff()
		if next == backoff.Stop {
			return p.MaxBackoff
		}
		d = next
	}
	if d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}

// BackoffFor computes the backoff duration for 1-indexed attempt n,
// applying jitter (uniform in [0.5, 1.5]) when enabled.
func BackoffFor(p RetryPolicy, attempt int) time.Duration {
	d := unjitteredBackoff(p, attempt)
	if !p.Jitter {
		return d
	}
	factor := 0.5 + rand.Float64()
	return time.Duration(float64(d) * factor)
}

// Outcome is the result of a retry decision for a failed attempt.
type Outcome int

const (
	// OutcomeRetry means the caller should sleep for Wait and attempt n+1.
	OutcomeRetry Outcome = iota
	// OutcomeSurface means the error is not retriable and must be returned
	// unchanged.
	OutcomeSurface
	// OutcomeExhausted means max_retries+1 attempts have been made; the
	// caller should surface a RetryExhausted error.
	OutcomeExhausted
	// OutcomeAbandonTimeout means sleeping would exceed the overall
	// deadline; the caller should surface a TimeoutError.
	OutcomeAbandonTimeout
)

// Retriable is satisfied by any error the retry engine can classify.
type Retriable interface {
	Retriable() bool
}

// Decide implements the retry/timeout decision algorithm. attempt is the
// 1-indexed attempt that just failed with err; elapsed is the wall-clock
// time already spent across all attempts and sleeps so far (used to check
// the overall deadline). Decide does not sleep; callers perform the sleep
// themselves using the returned wait so the decision remains pure and
// testable.
//
// Two cases resolve to OutcomeSurface rather than OutcomeExhausted even
// though the attempt budget (max_retries+1) is spent: a non-retriable
// error, and a budget of exactly one attempt (max_retries == 0) — in the
// latter case no retry was ever attempted, so there is nothing to report
// as "exhausted"; the raw error is surfaced instead (max_retries=0 yields
// the bare ApiError, not a RetryExhausted wrapper).
func Decide(p RetryPolicy, t TimeoutPolicy, attempt int, elapsed time.Duration, err Retriable) (outcome Outcome, wait time.Duration) {
	if err != nil && !err.Retriable() {
		return OutcomeSurface, 0
	}

	if uint32(attempt) >= p.MaxRetries+1 {
		if attempt <= 1 {
			return OutcomeSurface, 0
		}
		return OutcomeExhausted, 0
	}

	wait = BackoffFor(p, attempt)

	if t.Overall != nil {
		// Conservative next-attempt estimate: assume the next attempt takes
		// as long as PerAttempt (or zero if unset).
		var nextAttemptEstimate time.Duration
		if t.PerAttempt != nil {
			nextAttemptEstimate = *t.PerAttempt
		}
		if elapsed+wait+nextAttemptEstimate > *t.Overall {
			return OutcomeAbandonTimeout, 0
		}
	}

	return OutcomeRetry, wait
}
