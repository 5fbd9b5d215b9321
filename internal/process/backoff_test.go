package process

import (
	"testing"
	"time"
)

func TestDefaultBackoffConfig(t *testing.T) {
	cfg := DefaultBackoffConfig()

	if cfg.Initial != 10*time.Millisecond {
		t.Errorf("Initial = %v, want 10ms", cfg.Initial)
	}
	if cfg.Max != 500*time.Millisecond {
		t.Errorf("Max = %v, want 500ms", cfg.Max)
	}
	if cfg.Multiplier != 2.0 {
		t.Errorf("Multiplier = %v, want 2.0", cfg.Multiplier)
	}
	if cfg.JitterPct != 0.4 {
		t.Errorf("JitterPct = %v, want 0.4", cfg.JitterPct)
	}
}

func TestBackoff_Calculate_NoJitter(t *testing.T) {
	tests := []struct {
		name     string
		attempts int
		want     time.Duration
	}{
		{"attempt 0", 0, 100 * time.Millisecond},
		{"attempt 1", 1, 200 * time.Millisecond},
		{"attempt 2", 2, 400 * time.Millisecond},
		{"attempt 3", 3, 800 * time.Millisecond},
		{"capped", 10, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBackoff(1, BackoffConfig{
				Initial:    100 * time.Millisecond,
				Max:        time.Second,
				Multiplier: 2.0,
			})
			b.attempts = tt.attempts

			if got := b.Calculate(); got != tt.want {
				t.Errorf("Calculate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBackoff_JitterBounds(t *testing.T) {
	cfg := BackoffConfig{
		Initial:    100 * time.Millisecond,
		Max:        time.Second,
		Multiplier: 1.0,
		JitterPct:  0.4,
	}
	b := NewBackoff(42, cfg)

	for i := 0; i < 200; i++ {
		d := b.Calculate()
		if d < 80*time.Millisecond || d > 120*time.Millisecond {
			t.Fatalf("iteration %d: delay %v outside ±20%% of 100ms", i, d)
		}
	}
}

func TestBackoff_Deterministic(t *testing.T) {
	cfg := DefaultBackoffConfig()
	a := NewBackoff(7, cfg)
	b := NewBackoff(7, cfg)

	for i := 0; i < 5; i++ {
		if da, db := a.Next(), b.Next(); da != db {
			t.Fatalf("attempt %d: %v != %v for same seed", i, da, db)
		}
	}
}

func TestBackoff_NextAndReset(t *testing.T) {
	b := NewBackoff(1, BackoffConfig{Initial: time.Millisecond, Max: time.Second, Multiplier: 2})

	b.Next()
	b.Next()
	if b.Attempts() != 2 {
		t.Errorf("Attempts() = %d, want 2", b.Attempts())
	}

	b.Reset()
	if b.Attempts() != 0 {
		t.Errorf("Attempts() after Reset = %d, want 0", b.Attempts())
	}
	if got := b.Calculate(); got != time.Millisecond {
		t.Errorf("Calculate() after Reset = %v, want 1ms", got)
	}
}
