package sshclient

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"
)

func TestBackoffPolicy_WithDefaults(t *testing.T) {
	b := BackoffPolicy{}.WithDefaults()

	if b.Base != 200*time.Millisecond {
		t.Errorf("expected Base=200ms, got %v", b.Base)
	}
	if b.Multiplier != 2.0 {
		t.Errorf("expected Multiplier=2.0, got %v", b.Multiplier)
	}
	if b.MaxDelay != 30*time.Second {
		t.Errorf("expected MaxDelay=30s, got %v", b.MaxDelay)
	}
}

func TestBackoffPolicy_DelayFor(t *testing.T) {
	tests := []struct {
		name     string
		policy   BackoffPolicy
		attempt  int
		expected time.Duration
	}{
		{
			name:     "first attempt",
			policy:   BackoffPolicy{Base: 200 * time.Millisecond, Multiplier: 2.0, MaxDelay: 30 * time.Second},
			attempt:  1,
			expected: 400 * time.Millisecond,
		},
		{
			name:     "second attempt",
			policy:   BackoffPolicy{Base: 200 * time.Millisecond, Multiplier: 2.0, MaxDelay: 30 * time.Second},
			attempt:  2,
			expected: 800 * time.Millisecond,
		},
		{
			name:     "zero attempt treated as first",
			policy:   BackoffPolicy{Base: 200 * time.Millisecond, Multiplier: 2.0, MaxDelay: 30 * time.Second},
			attempt:  0,
			expected: 400 * time.Millisecond,
		},
		{
			name:     "negative attempt treated as first",
			policy:   BackoffPolicy{Base: 200 * time.Millisecond, Multiplier: 2.0, MaxDelay: 30 * time.Second},
			attempt:  -3,
			expected: 400 * time.Millisecond,
		},
		{
			name:     "capped at max delay",
			policy:   BackoffPolicy{Base: time.Second, Multiplier: 10.0, MaxDelay: 5 * time.Second},
			attempt:  3,
			expected: 5 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.delayFor(tt.attempt); got != tt.expected {
				t.Errorf("delayFor(%d) = %v, expected %v", tt.attempt, got, tt.expected)
			}
		})
	}
}

func TestBackoffPolicy_Delay(t *testing.T) {
	b := BackoffPolicy{Base: time.Millisecond, Multiplier: 2.0, MaxDelay: 10 * time.Millisecond}
	logger := log.New(io.Discard, "", 0)

	start := time.Now()
	if err := b.Delay(context.Background(), logger, 1, 5, "test"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 2*time.Millisecond {
		t.Errorf("expected at least 2ms of wait, got %v", elapsed)
	}
}

func TestBackoffPolicy_DelayCancelled(t *testing.T) {
	b := BackoffPolicy{Base: 10 * time.Second, Multiplier: 2.0, MaxDelay: time.Minute}
	logger := log.New(io.Discard, "", 0)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := b.Delay(ctx, logger, 1, 5, "test")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancellation did not interrupt the wait (took %v)", elapsed)
	}
}
