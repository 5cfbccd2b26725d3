package timespec

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsLeapYear(t *testing.T) {
	tests := []struct {
		year int
		leap bool
	}{
		{1970, false},
		{1972, true},
		{1900, false},
		{2000, true},
		{2100, false},
		{2024, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.leap, IsLeapYear(tt.year), "year %d", tt.year)
	}
}

func TestEpochToCalendarMatchesUTC(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 5000; i++ {
		s := rng.Int63n(1 << 33)
		want := time.Unix(s, 0).UTC()

		tm := EpochToCalendar(s)
		require.Equal(t, want.Year(), tm.Year+YearBase, "secs %d", s)
		require.Equal(t, int(want.Month())-1, tm.Mon, "secs %d", s)
		require.Equal(t, want.Day(), tm.MDay, "secs %d", s)
		require.Equal(t, want.Hour(), tm.Hour, "secs %d", s)
		require.Equal(t, want.Minute(), tm.Min, "secs %d", s)
		require.Equal(t, want.Second(), tm.Sec, "secs %d", s)
	}
}

func TestCalendarRoundTrip(t *testing.T) {
	edges := []int64{0, 1, 59, 86399, 86400, 951782400, 951868800, 4107456000, 1700000000}
	for _, s := range edges {
		assert.Equal(t, s, CalendarToEpoch(EpochToCalendar(s)), "secs %d", s)
	}

	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 5000; i++ {
		s := rng.Int63n(1 << 32)
		require.Equal(t, s, CalendarToEpoch(EpochToCalendar(s)))
	}
}

func TestCalendarString(t *testing.T) {
	tm := EpochToCalendar(951782400) // 2000-02-29
	assert.Equal(t, "2000-02-29 00:00:00", tm.String())
}
