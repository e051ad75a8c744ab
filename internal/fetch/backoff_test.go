package fetch

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPolicy_Ceiling(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{60, time.Second},
	}
	for _, tt := range tests {
		if got := p.Ceiling(tt.attempt); got != tt.want {
			t.Errorf("Ceiling(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestPolicy_Delay(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	identity := func(d time.Duration) time.Duration { return d }
	zero := func(time.Duration) time.Duration { return 0 }

	tests := []struct {
		name    string
		attempt int
		hint    time.Duration
		jitter  func(time.Duration) time.Duration
		want    time.Duration
	}{
		{"no hint", 2, 0, identity, 200 * time.Millisecond},
		{"full jitter low end", 3, 0, zero, 0},
		{"hint raises delay", 1, 700 * time.Millisecond, identity, 700 * time.Millisecond},
		{"hint below backoff", 4, 100 * time.Millisecond, identity, 800 * time.Millisecond},
		{"hint capped", 1, time.Minute, identity, time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Delay(tt.attempt, tt.hint, tt.jitter); got != tt.want {
				t.Errorf("Delay() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPolicy_WithDefaults(t *testing.T) {
	p := Policy{}.withDefaults()
	if p != DefaultPolicy {
		t.Errorf("withDefaults() = %+v, want %+v", p, DefaultPolicy)
	}

	p = Policy{BaseDelay: time.Minute, MaxDelay: time.Second}.withDefaults()
	if p.MaxDelay != time.Minute {
		t.Errorf("MaxDelay = %v, want it raised to BaseDelay", p.MaxDelay)
	}
}

func TestFullJitter(t *testing.T) {
	for range 100 {
		if d := fullJitter(10 * time.Millisecond); d < 0 || d > 10*time.Millisecond {
			t.Fatalf("fullJitter() = %v, out of range", d)
		}
	}
	if d := fullJitter(0); d != 0 {
		t.Errorf("fullJitter(0) = %v, want 0", d)
	}
}

func TestSleepCtx_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepCtx(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("sleepCtx() = %v, want context.Canceled", err)
	}
}
