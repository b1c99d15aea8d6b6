// Package retry provides backoff retry logic for transient failures.
//
// # Overview
//
// Do runs a function until it succeeds, the attempt budget is spent, the
// context ends, or the function returns an error wrapped with NonRetryable.
// Delays grow by Multiplier up to MaxDelay; a Multiplier of 1.0 gives a
// fixed delay.
//
// # Presets
//
//   - DefaultConfig(): 3 attempts, 100ms-5s delay
//   - Quick(): 10 attempts, 50ms-1s delay (startup)
//   - Fixed(d): unlimited attempts, constant delay d (bridge reconnect)
//
// # Usage
//
//	err := retry.Do(ctx, retry.Fixed(2*time.Second), func() error {
//	    return bridge.dial(ctx)
//	})
//
// OnRetry observes each failed attempt, which the automation bridge uses to
// log and publish its connection status between attempts.
package retry
