// Package retry provides backoff retry logic for dialing and reconnecting.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// Unlimited as MaxAttempts retries until the function succeeds or the context ends.
const Unlimited = -1

const maxMultiplier = 1000

// NonRetryableError stops Do on the attempt that returned it.
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string { return "non-retryable: " + e.Err.Error() }

func (e *NonRetryableError) Unwrap() error { return e.Err }

// NonRetryable marks err so Do returns it immediately.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable reports whether err, or anything it wraps, came from NonRetryable.
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return errors.As(err, &nre)
}

// Config provides retry configuration
type Config struct {
	MaxAttempts  int           // 0 runs once, Unlimited runs until success
	InitialDelay time.Duration // first backoff
	MaxDelay     time.Duration // backoff ceiling
	Multiplier   float64       // 1.0 keeps the delay fixed
	AddJitter    bool          // up to 25% extra per delay

	// OnRetry is called after a failed attempt, before sleeping.
	OnRetry func(attempt int, err error, next time.Duration)
}

// DefaultConfig: 3 attempts doubling from 100ms to at most 5s.
func DefaultConfig() Config {
	return Config{MaxAttempts: 3, InitialDelay: 100 * time.Millisecond, MaxDelay: 5 * time.Second, Multiplier: 2, AddJitter: true}
}

// Quick is tuned for startup probes.
func Quick() Config {
	return Config{MaxAttempts: 10, InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second, Multiplier: 1.5, AddJitter: true}
}

// Fixed retries forever, sleeping delay between attempts.
func Fixed(delay time.Duration) Config {
	return Config{MaxAttempts: Unlimited, InitialDelay: delay, MaxDelay: delay, Multiplier: 1}
}

// normalized fills zero fields and rejects impossible settings.
func (c Config) normalized() (Config, error) {
	if c.InitialDelay < 0 || c.MaxDelay < 0 || c.Multiplier < 0 {
		return c, errors.New("retry: delays and multiplier must not be negative")
	}
	if c.MaxAttempts != Unlimited && c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay == 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 5 * time.Second
	}
	switch {
	case c.Multiplier == 0:
		c.Multiplier = 2
	case c.Multiplier > maxMultiplier:
		c.Multiplier = maxMultiplier
	}
	if c.MaxDelay < c.InitialDelay {
		return c, errors.New("retry: MaxDelay must be >= InitialDelay")
	}
	return c, nil
}

// backoff yields successive sleep durations for one Do call.
type backoff struct {
	cfg  Config
	next time.Duration
}

func (b *backoff) step() time.Duration {
	d := b.next
	grown := float64(b.next) * b.cfg.Multiplier
	if grown >= float64(b.cfg.MaxDelay) {
		b.next = b.cfg.MaxDelay
	} else {
		b.next = time.Duration(grown)
	}
	if b.cfg.AddJitter && d >= 4 {
		d += rand.N(d / 4)
	}
	return d
}

// Do calls fn until it returns nil, the attempt budget runs out, ctx ends,
// or fn returns a NonRetryable error.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	cfg, err := cfg.normalized()
	if err != nil {
		return err
	}

	b := &backoff{cfg: cfg, next: cfg.InitialDelay}
	var lastErr error
	for attempt := 1; ; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if IsNonRetryable(lastErr) {
			return lastErr
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled before attempt %d: %w", attempt+1, ctx.Err())
		}
		if cfg.MaxAttempts != Unlimited && attempt >= cfg.MaxAttempts {
			return fmt.Errorf("retry failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
		}

		wait := b.step()
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr, wait)
		}
		if err := sleep(ctx, wait); err != nil {
			return fmt.Errorf("retry cancelled during backoff for attempt %d: %w", attempt+1, err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DoWithResult is Do for functions that also produce a value.
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var out T
	err := Do(ctx, cfg, func() error {
		v, err := fn()
		if err == nil {
			out = v
		}
		return err
	})
	return out, err
}
