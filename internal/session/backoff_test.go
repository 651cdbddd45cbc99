package session

import (
	"testing"
	"time"
)

func TestBackoffStaysInBoundsAndNeverDecreases(t *testing.T) {
	min, max := 100*time.Millisecond, 5*time.Second
	for seed := uint64(0); seed < 50; seed++ {
		b := NewBackoff(min, max, seed)
		prev := time.Duration(0)
		for i := 0; i < 20; i++ {
			d := b.Next()
			if d < min || d > max {
				t.Fatalf("seed %d attempt %d: delay %v outside [%v, %v]", seed, i, d, min, max)
			}
			if d < prev {
				t.Fatalf("seed %d attempt %d: delay %v after %v", seed, i, d, prev)
			}
			prev = d
		}
		if prev <= max-max/4 {
			t.Fatalf("seed %d: delay settled at %v, below 3/4 of %v", seed, prev, max)
		}
	}
}

func TestBackoffFirstDelayBelowDoubleMin(t *testing.T) {
	b := NewBackoff(time.Second, time.Minute, 7)
	if d := b.Next(); d < time.Second || d >= 2*time.Second {
		t.Fatalf("first delay = %v", d)
	}
}

func TestBackoffReset(t *testing.T) {
	b := NewBackoff(time.Second, time.Minute, 3)
	for i := 0; i < 5; i++ {
		b.Next()
	}
	if b.Attempt() != 5 {
		t.Fatalf("Attempt = %d", b.Attempt())
	}
	b.Reset()
	if d := b.Next(); d >= 2*time.Second {
		t.Fatalf("delay after reset = %v", d)
	}
}

func TestBackoffSameSeedSameDelays(t *testing.T) {
	a := NewBackoff(10*time.Millisecond, time.Second, 42)
	b := NewBackoff(10*time.Millisecond, time.Second, 42)
	for i := 0; i < 10; i++ {
		if x, y := a.Next(), b.Next(); x != y {
			t.Fatalf("attempt %d: %v != %v", i, x, y)
		}
	}
}

func TestBackoffMaxBelowMin(t *testing.T) {
	b := NewBackoff(time.Second, time.Millisecond, 1)
	for i := 0; i < 3; i++ {
		if d := b.Next(); d != time.Second {
			t.Fatalf("delay = %v, want %v", d, time.Second)
		}
	}
}

func TestBackoffSeedsDiverge(t *testing.T) {
	a := NewBackoff(time.Second, time.Hour, 1)
	b := NewBackoff(time.Second, time.Hour, 2)
	same := true
	for i := 0; i < 5; i++ {
		if a.Next() != b.Next() {
			same = false
		}
	}
	if same {
		t.Fatalf("different seeds produced identical delays")
	}
}

func TestBackoffSeedsDivergeAfterCap(t *testing.T) {
	for _, seeds := range [][2]uint64{{1, 2}, {3, 99}, {7, 12345}} {
		a := NewBackoff(time.Second, time.Minute, seeds[0])
		b := NewBackoff(time.Second, time.Minute, seeds[1])
		for i := 0; i < 10; i++ {
			a.Next()
			b.Next()
		}
		x, y := a.Next(), b.Next()
		if x == y {
			t.Fatalf("seeds %v: capped delays both %v", seeds, x)
		}
		if x != a.Next() || y != b.Next() {
			t.Fatalf("seeds %v: capped delay changed between attempts", seeds)
		}
	}
}
