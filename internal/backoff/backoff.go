// Package backoff computes capped, jittered retry delays.
package backoff

import (
	rand "math/rand/v2"
	"time"
)

// Jitter is a decorrelated jitter backoff with a cap.
// See: https://aws.amazon.com/blogs/architecture/exponential-backoff-and-jitter/
//
// Given the previous delay (prev), the next delay is:
//
//	next = min(Cap, Base + rand(prev*Multiplier - Base))
//
// Behavior:
//   - The first delay (and the one after Reset) is Base
//   - Multiplier < 1.0 falls back to 1.0 (no growth)
//   - Cap <= Base always returns Cap
//
// A Jitter is not safe for concurrent use.
type Jitter struct {
	Base       time.Duration
	Multiplier float64
	Cap        time.Duration

	prev time.Duration
	rng  *rand.Rand
}

// New creates a Jitter. A non-zero seed makes the sequence deterministic.
//
// Parameters:
//   - base: First delay
//   - mult: Growth factor applied to the previous delay
//   - capDur: Upper bound for any delay (0 for unbounded)
//   - seed: RNG seed, 0 to use the package-level PRNG
//
// Returns:
//   - *Jitter: Backoff positioned before its first delay
//
// Example:
//
//	b := backoff.New(time.Second, 1.6, 30*time.Second, 0)
//	for {
//	    if err := dial(); err == nil {
//	        b.Reset()
//	        break
//	    }
//	    time.Sleep(b.Next())
//	}
func New(base time.Duration, mult float64, capDur time.Duration, seed int64) *Jitter {
	return &Jitter{Base: base, Multiplier: mult, Cap: capDur, rng: newRNG(seed)}
}

// Next returns the next delay and advances the sequence.
func (j *Jitter) Next() time.Duration {
	j.prev = next(j.prev, j.Base, j.Multiplier, j.Cap, j.rng)

	return j.prev
}

// Reset restarts the sequence at Base.
func (j *Jitter) Reset() {
	j.prev = 0
}

func next(prev, base time.Duration, mult float64, capDur time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	if mult < 1.0 {
		mult = 1.0
	}
	if capDur > 0 && capDur < base {
		return capDur
	}

	if prev <= 0 {
		return base
	}
	maxDuration := time.Duration(float64(prev)*mult) - base
	if maxDuration <= 0 {
		maxDuration = base
	}

	var jitter int64
	if rng != nil {
		jitter = rng.Int64N(int64(maxDuration))
	} else {
		jitter = rand.Int64N(int64(maxDuration)) //nolint:gosec // non-crypto backoff jitter
	}
	d := base + time.Duration(jitter)
	if capDur > 0 && d > capDur {
		return capDur
	}

	return d
}

// newRNG returns a deterministic RNG only when a non-zero seed is provided.
//
//nolint:gosec
func newRNG(seed int64) *rand.Rand {
	if seed == 0 {
		return nil
	}
	s1 := uint64(seed)
	s2 := s1 ^ 0x9e3779b97f4a7c15

	return rand.New(rand.NewPCG(s1, s2))
}
