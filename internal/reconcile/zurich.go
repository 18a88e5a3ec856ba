package reconcile

import (
	"time"
	_ "time/tzdata"
)

// ZurichZone is the operational time zone of the league.
const ZurichZone = "Europe/Zurich"

// Zurich returns the Europe/Zurich location. The embedded tz database makes
// the lookup independent of the host.
func Zurich() *time.Location {
	loc, err := time.LoadLocation(ZurichZone)
	if err != nil {
		panic("load " + ZurichZone + ": " + err.Error())
	}
	return loc
}

// SameLocalDay reports whether t falls on the calendar day of now in loc.
func SameLocalDay(t, now time.Time, loc *time.Location) bool {
	if t.IsZero() {
		return false
	}
	ty, tm, td := t.In(loc).Date()
	ny, nm, nd := now.In(loc).Date()
	return ty == ny && tm == nm && td == nd
}
