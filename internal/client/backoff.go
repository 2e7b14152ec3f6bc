package client

import (
	"math"
	"math/rand"
	"time"
)

// BackoffConfig defines dial retry pacing.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Backoff hands out the delay before each dial retry. The nominal delay
// starts at InitialDelay and grows by Multiplier per call up to MaxDelay.
// Jitter scales only the returned value to [0.5, 1.5) of nominal and needs an
// rng; without one the nominal delay is returned.
type Backoff struct {
	cfg     BackoffConfig
	rng     *rand.Rand
	nominal time.Duration
}

func NewBackoff(cfg BackoffConfig, rng *rand.Rand) *Backoff {
	b := &Backoff{cfg: cfg, rng: rng}
	b.Reset()
	return b
}

// Reset rewinds to InitialDelay, e.g. after a successful connect.
func (b *Backoff) Reset() {
	b.nominal = b.capped(float64(max(b.cfg.InitialDelay, 0)))
}

func (b *Backoff) Next() time.Duration {
	d := b.nominal
	if d <= 0 {
		return 0
	}
	b.nominal = b.capped(float64(d) * math.Max(b.cfg.Multiplier, 1))
	if b.cfg.Jitter && b.rng != nil {
		return time.Duration(float64(d) * (0.5 + b.rng.Float64()))
	}
	return d
}

func (b *Backoff) capped(f float64) time.Duration {
	if b.cfg.MaxDelay > 0 {
		f = math.Min(f, float64(b.cfg.MaxDelay))
	}
	return time.Duration(math.Min(f, float64(math.MaxInt64/2)))
}
