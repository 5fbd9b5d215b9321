package process

import (
	"math"
	"math/rand"
	"time"
)

// BackoffConfig holds the configuration for spawn retry backoff.
type BackoffConfig struct {
	Initial    time.Duration // First retry delay (default: 10ms)
	Max        time.Duration // Upper bound on any delay (default: 500ms)
	Multiplier float64       // Growth per attempt (default: 2.0)
	JitterPct  float64       // Jitter as a fraction of delay (default: 0.4 = ±20%)
}

// DefaultBackoffConfig returns the defaults used for transient spawn failures.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    10 * time.Millisecond,
		Max:        500 * time.Millisecond,
		Multiplier: 2.0,
		JitterPct:  0.4,
	}
}

// Backoff calculates exponential backoff delays with jitter.
// Not safe for concurrent use; each launch owns its own instance.
type Backoff struct {
	config   BackoffConfig
	attempts int
	rng      *rand.Rand
}

// NewBackoff creates a Backoff. The seed makes the jitter sequence
// reproducible.
func NewBackoff(seed int64, cfg BackoffConfig) *Backoff {
	return &Backoff{
		config: cfg,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Next returns the next delay and increments the attempt counter.
func (b *Backoff) Next() time.Duration {
	delay := b.Calculate()
	b.attempts++
	return delay
}

// Calculate returns the current delay without incrementing attempts.
func (b *Backoff) Calculate() time.Duration {
	delay := float64(b.config.Initial) * math.Pow(b.config.Multiplier, float64(b.attempts))

	if delay > float64(b.config.Max) {
		delay = float64(b.config.Max)
	}

	// JitterPct=0.4 means ±20%
	if b.config.JitterPct > 0 {
		jitterRange := delay * b.config.JitterPct
		delay += jitterRange*b.rng.Float64() - jitterRange/2
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Reset resets the attempt counter to zero.
func (b *Backoff) Reset() {
	b.attempts = 0
}

// Attempts returns the current attempt count.
func (b *Backoff) Attempts() int {
	return b.attempts
}
