package session

import (
	"math/rand/v2"
	"time"
)

// Backoff computes reconnect delays: Min doubled per attempt, plus jitter
// drawn from [0, current base), capped at a per-instance ceiling in
// (3/4 Max, Max]. Successive delays never decrease and never leave [Min, Max].
// Different seeds settle on different ceilings.
type Backoff struct {
	Min time.Duration
	Max time.Duration

	ceiling time.Duration
	attempt int
	rnd     *rand.Rand
}

// NewBackoff returns a backoff whose jitter is drawn from a PCG seeded with seed.
func NewBackoff(min, max time.Duration, seed uint64) *Backoff {
	if max < min {
		max = min
	}
	b := &Backoff{
		Min: min,
		Max: max,
		rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
	b.ceiling = max
	if spread := int64(max / 4); spread > 0 {
		b.ceiling -= time.Duration(b.rnd.Int64N(spread))
	}
	if b.ceiling < min {
		b.ceiling = min
	}
	return b
}

// Next returns the delay for the current attempt and advances the counter.
func (b *Backoff) Next() time.Duration {
	base := b.Min
	for i := 0; i < b.attempt && base < b.ceiling; i++ {
		base *= 2
	}
	if base > b.ceiling {
		base = b.ceiling
	}

	d := base
	if base < b.ceiling && base > 0 {
		d += time.Duration(b.rnd.Int64N(int64(base)))
	}
	if d > b.ceiling {
		d = b.ceiling
	}

	b.attempt++
	return d
}

// Attempt returns how many delays were handed out since the last Reset.
func (b *Backoff) Attempt() int {
	return b.attempt
}

// Reset starts over from Min. Only reaching Ready resets the backoff.
func (b *Backoff) Reset() {
	b.attempt = 0
}
