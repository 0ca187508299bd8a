package scheduler

import (
	"time"
	_ "time/tzdata"

	jnow "github.com/jinzhu/now"
)

// NextMidnight returns the start of the calendar day following t in loc.
// The day is advanced on the wall clock, not by adding 24h, so the result
// is correct on 23h and 25h DST days.
func NextMidnight(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	tomorrow := t.In(loc).AddDate(0, 0, 1)
	return jnow.With(tomorrow).BeginningOfDay()
}

// UntilNextMidnight returns the delay from t until NextMidnight(t, loc)
func UntilNextMidnight(t time.Time, loc *time.Location) time.Duration {
	return NextMidnight(t, loc).Sub(t)
}

// AtMidnight returns a NextFunc that fires at every local midnight in loc
func AtMidnight(loc *time.Location) NextFunc {
	return func(now time.Time) time.Duration {
		return UntilNextMidnight(now, loc)
	}
}
