package sshclient

import (
	"context"
	"fmt"
	"time"
)

// BackoffPolicy computes the exponential delay applied between retry
// attempts.
type BackoffPolicy struct {
	// Base is the delay for the first retry (default 200ms).
	Base time.Duration

	// Multiplier increases the delay each attempt (default 2.0).
	Multiplier float64

	// MaxDelay caps the computed delay (default 30s).
	MaxDelay time.Duration
}

// WithDefaults returns a copy of the policy with default values applied.
func (b BackoffPolicy) WithDefaults() BackoffPolicy {
	if b.Base == 0 {
		b.Base = 200 * time.Millisecond
	}
	if b.Multiplier <= 0 {
		b.Multiplier = 2.0
	}
	if b.MaxDelay == 0 {
		b.MaxDelay = 30 * time.Second
	}
	return b
}

// delayFor returns Base * Multiplier^attempt, capped at MaxDelay. An
// attempt below 1 is treated as the first attempt.
func (b BackoffPolicy) delayFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(b.Base)
	for i := 0; i < attempt; i++ {
		delay *= b.Multiplier
	}
	if delay > float64(b.MaxDelay) {
		delay = float64(b.MaxDelay)
	}
	return time.Duration(delay)
}

// Delay sleeps for the exponential delay of the given attempt, logging the
// wait with reason. It returns early with the context error if ctx is
// cancelled during the wait.
func (b BackoffPolicy) Delay(ctx context.Context, logger logPrinter, attempt, maxAttempts int, reason string) error {
	delay := b.delayFor(attempt)
	logger.Printf("[WARN] retry %d/%d in %v: %s", attempt, maxAttempts, delay, reason)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// logPrinter is the logger sink consumed by the retry machinery.
type logPrinter interface {
	Printf(format string, v ...any)
}
