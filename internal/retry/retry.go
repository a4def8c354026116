// Package retry implements the bounded exponential-backoff retry policies
// used by the store gateway and the event log client. The shape follows
// the backoff loop in the donor ledger's Kafka consumer (start at a base
// delay, double on every failure, cap the delay, give up after a fixed
// number of attempts) rather than a circuit breaker: spec.md calls for
// bounded retry-then-fail semantics on a single operation, not a
// trip/reset breaker across many operations.
package retry

import (
	"context"
	"time"
)

// Policy describes one bounded exponential backoff schedule.
type Policy struct {
	Initial     time.Duration
	Multiplier  float64
	Max         time.Duration
	MaxAttempts int
}

// StorePolicy is the §4.1 Store Gateway retry budget: 50ms initial, x2,
// capped at 2s, at most 3 attempts per operation.
var StorePolicy = Policy{
	Initial:     50 * time.Millisecond,
	Multiplier:  2,
	Max:         2 * time.Second,
	MaxAttempts: 3,
}

// BrokerPolicy is the §4.2 Event Log Client retry budget for transient
// broker errors: 100ms initial, x2, 8 attempts, capped at 30s. The cap is
// never reached: the longest wait in an 8-attempt schedule is 6.4s.
var BrokerPolicy = Policy{
	Initial:     100 * time.Millisecond,
	Multiplier:  2,
	Max:         30 * time.Second,
	MaxAttempts: 8,
}

// Do runs fn up to p.MaxAttempts times, sleeping with exponential backoff
// between attempts. It returns the last error if every attempt fails, or
// nil as soon as fn succeeds. A nil error from fn short-circuits retries.
// attempted is always p.MaxAttempts unless fn succeeds first, or ctx is
// cancelled, in which case ctx.Err() is returned immediately.
func Do(ctx context.Context, p Policy, fn func(attempt int) error) error {
	delay := p.Initial
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if attempt == p.MaxAttempts {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
		delay = time.Duration(float64(delay) * p.Multiplier)
		if delay > p.Max {
			delay = p.Max
		}
	}
	return lastErr
}
