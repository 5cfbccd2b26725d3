package timespec

import "fmt"

// YearBase is the calendar year that Tm.Year counts from.
const YearBase = 1900

// EpochYear is the first year representable by a non-negative timestamp.
const EpochYear = 1970

const secondsPerDay = 24 * 60 * 60

// Tm is a broken-down UTC calendar time.
type Tm struct {
	Sec  int // [0, 59]
	Min  int // [0, 59]
	Hour int // [0, 23]
	MDay int // [1, 31]
	Mon  int // [0, 11]
	Year int // years since YearBase
}

// IsLeapYear applies the proleptic Gregorian rule to a full year number.
func IsLeapYear(year int) bool {
	return year%400 == 0 || (year%4 == 0 && year%100 != 0)
}

func daysInYear(year int) int64 {
	if IsLeapYear(year) {
		return 366
	}
	return 365
}

func monthDays(year int) [12]int64 {
	feb := int64(28)
	if IsLeapYear(year) {
		feb = 29
	}
	return [12]int64{31, feb, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}
}

// CalendarToEpoch converts tm to seconds since 1970-01-01 00:00:00 UTC.
func CalendarToEpoch(tm Tm) int64 {
	year := tm.Year + YearBase

	var days int64
	for y := EpochYear; y < year; y++ {
		days += daysInYear(y)
	}
	months := monthDays(year)
	for m := 0; m < tm.Mon && m < len(months); m++ {
		days += months[m]
	}
	days += int64(tm.MDay - 1)

	return days*secondsPerDay + int64(tm.Hour)*3600 + int64(tm.Min)*60 + int64(tm.Sec)
}

// EpochToCalendar converts a non-negative timestamp to a calendar time.
func EpochToCalendar(secs int64) Tm {
	if secs < 0 {
		secs = 0
	}

	days := secs / secondsPerDay
	rem := secs % secondsPerDay

	year := EpochYear
	for days >= daysInYear(year) {
		days -= daysInYear(year)
		year++
	}

	months := monthDays(year)
	mon := 0
	for days >= months[mon] {
		days -= months[mon]
		mon++
	}

	return Tm{
		Sec:  int(rem % 60),
		Min:  int(rem / 60 % 60),
		Hour: int(rem / 3600),
		MDay: int(days) + 1,
		Mon:  mon,
		Year: year - YearBase,
	}
}

// String formats tm as "YYYY-MM-DD hh:mm:ss".
func (tm Tm) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d",
		tm.Year+YearBase, tm.Mon+1, tm.MDay, tm.Hour, tm.Min, tm.Sec)
}
