package timespec

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   Timespec
		want Timespec
	}{
		{"already normalized", Timespec{1, 5}, Timespec{1, 5}},
		{"nsec carry", Timespec{1, 1_500_000_000}, Timespec{2, 500_000_000}},
		{"nsec borrow", Timespec{2, -1}, Timespec{1, 999_999_999}},
		{"negative seconds positive nsec", Timespec{-2, 1}, Timespec{-1, -999_999_999}},
		{"large negative nsec", Timespec{0, -2_500_000_000}, Timespec{-2, -500_000_000}},
		{"zero", Timespec{}, Timespec{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Normalize())
		})
	}
}

func TestAddSub(t *testing.T) {
	a := Timespec{Sec: 3, Nsec: 900_000_000}
	b := Timespec{Sec: 1, Nsec: 200_000_000}

	assert.Equal(t, Timespec{Sec: 5, Nsec: 100_000_000}, Add(a, b))
	assert.Equal(t, Timespec{Sec: 2, Nsec: 700_000_000}, Sub(a, b))
	assert.Equal(t, Timespec{Sec: -2, Nsec: -700_000_000}, Sub(b, a))
}

func TestSubAddRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	sample := func() Timespec {
		return New(rng.Int63n(1<<40)-(1<<39), rng.Int63n(2*NanosPerSecond)-NanosPerSecond)
	}

	for i := 0; i < 10000; i++ {
		a, b := sample(), sample()
		require.Equal(t, a, Sub(Add(a, b), b), "a=%v b=%v", a, b)
	}
}

func TestResultsAreSignConsistent(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 10000; i++ {
		a := New(rng.Int63n(20)-10, rng.Int63n(2*NanosPerSecond)-NanosPerSecond)
		b := New(rng.Int63n(20)-10, rng.Int63n(2*NanosPerSecond)-NanosPerSecond)
		for _, r := range []Timespec{Add(a, b), Sub(a, b)} {
			require.False(t, r.Sec > 0 && r.Nsec < 0, "%v", r)
			require.False(t, r.Sec < 0 && r.Nsec > 0, "%v", r)
			require.Less(t, r.Nsec, int64(NanosPerSecond))
			require.Greater(t, r.Nsec, int64(-NanosPerSecond))
		}
	}
}

func TestElapsed(t *testing.T) {
	deadline := Timespec{Sec: 10, Nsec: 500}

	assert.False(t, Sub(Timespec{Sec: 10, Nsec: 499}, deadline).Elapsed())
	assert.True(t, Sub(Timespec{Sec: 10, Nsec: 500}, deadline).Elapsed())
	assert.True(t, Sub(Timespec{Sec: 11}, deadline).Elapsed())
	assert.False(t, Sub(Timespec{Sec: 9, Nsec: 999_999_999}, deadline).Elapsed())
}

func TestValid(t *testing.T) {
	assert.True(t, Timespec{Sec: 0, Nsec: 0}.Valid())
	assert.True(t, Timespec{Sec: 1, Nsec: 999_999_999}.Valid())
	assert.False(t, Timespec{Sec: -1}.Valid())
	assert.False(t, Timespec{Sec: 1, Nsec: -1}.Valid())
	assert.False(t, Timespec{Sec: 1, Nsec: NanosPerSecond}.Valid())
}

func TestCompareAndDuration(t *testing.T) {
	assert.Equal(t, -1, Compare(Timespec{Sec: 1}, Timespec{Sec: 1, Nsec: 1}))
	assert.Equal(t, 0, Compare(Timespec{Sec: 2}, Timespec{Sec: 1, Nsec: NanosPerSecond}))
	assert.Equal(t, 1, Compare(Timespec{Sec: 0, Nsec: 1}, Timespec{}))

	assert.Equal(t, 1500*time.Millisecond, Timespec{Sec: 1, Nsec: 500_000_000}.Duration())
	assert.Equal(t, Timespec{Sec: 2, Nsec: 250_000_000}, FromDuration(2250*time.Millisecond))
}

func TestTruncateAndTicks(t *testing.T) {
	res := Timespec{Nsec: 10}
	assert.Equal(t, Timespec{Sec: 3, Nsec: 120}, Timespec{Sec: 3, Nsec: 129}.Truncate(res))

	assert.Equal(t, Timespec{Sec: 2, Nsec: 500_000_000}, FromTicks(250, 100))
	assert.Equal(t, Timespec{}, FromTicks(12, 0))
}
