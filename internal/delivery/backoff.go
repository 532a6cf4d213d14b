package delivery

import (
	"math"
	"math/rand"
	"time"
)

// Backoff computes retry delays: Base * 2^attempts, scaled by a random
// factor in [1-Jitter, 1+Jitter] and capped at Max.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64

	// Rand returns a value in [0, 1). Defaults to math/rand/v2.
	Rand func() float64
}

// DefaultBackoff doubles from one minute with ±20% jitter, capped at a day.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:   time.Minute,
		Max:    24 * time.Hour,
		Jitter: 0.2,
	}
}

// maxExponent keeps Base * 2^attempts inside a time.Duration.
const maxExponent = 30

// Delay returns the wait before the next attempt, where attempts is the
// attempt count after the failure just recorded.
func (b Backoff) Delay(attempts int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = time.Minute
	}
	exp := attempts
	if exp < 0 {
		exp = 0
	}
	if exp > maxExponent {
		exp = maxExponent
	}

	r := rand.Float64
	if b.Rand != nil {
		r = b.Rand
	}
	factor := 1 + b.Jitter*(2*r()-1)

	d := float64(base) * math.Pow(2, float64(exp)) * factor
	if b.Max > 0 && d > float64(b.Max) {
		d = float64(b.Max)
	}
	return time.Duration(d)
}

// Next returns the time the item becomes due again.
func (b Backoff) Next(now time.Time, attempts int) time.Time {
	return now.Add(b.Delay(attempts))
}
