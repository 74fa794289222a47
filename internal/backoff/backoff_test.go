package backoff

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func stddev(durs []time.Duration) time.Duration {
	if len(durs) == 0 {
		return 0
	}
	vals := make([]float64, len(durs))
	for i, d := range durs {
		vals[i] = d.Seconds()
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(len(vals))
	var varSum float64
	for _, v := range vals {
		d := v - mean
		varSum += d * d
	}

	return time.Duration(math.Sqrt(varSum/float64(len(vals))) * float64(time.Second))
}

func TestJitter_BoundsAndCap(t *testing.T) {
	base := 200 * time.Millisecond
	capDur := 500 * time.Millisecond
	b := New(base, 1.6, capDur, 42)

	require.Equal(t, base, b.Next(), "first delay is base")
	for range 10 {
		d := b.Next()
		require.GreaterOrEqual(t, d, base)
		require.LessOrEqual(t, d, capDur)
	}
}

func TestJitter_Reset(t *testing.T) {
	base := 100 * time.Millisecond
	b := New(base, 2, time.Second, 7)

	for range 5 {
		b.Next()
	}
	b.Reset()
	require.Equal(t, base, b.Next())
}

func TestJitter_CapLessThanBase(t *testing.T) {
	b := New(200*time.Millisecond, 1.6, 100*time.Millisecond, 1)

	require.Equal(t, 100*time.Millisecond, b.Next())
	require.Equal(t, 100*time.Millisecond, b.Next())
}

func TestJitter_VarianceAcrossSeeds(t *testing.T) {
	const seeds = 5
	const steps = 12

	lasts := make([]time.Duration, 0, seeds)
	for s := int64(1); s <= seeds; s++ {
		b := New(200*time.Millisecond, 1.6, 2*time.Second, s)
		var last time.Duration
		for range steps {
			last = b.Next()
		}
		lasts = append(lasts, last)
	}

	require.GreaterOrEqual(t, stddev(lasts), 50*time.Millisecond, "expected stddev >= 50ms across seeds")
}
