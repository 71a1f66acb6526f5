// Package clock resolves wall-clock time into the 17-day season calendar.
// Game days roll over at 3 AM US Eastern: everything before 03:00 local
// still belongs to the previous game day. All functions are pure.
package clock

import (
	"time"
)

type Phase string

const (
	PhaseRegular   Phase = "REGULAR"
	PhasePlayoffs  Phase = "PLAYOFFS"
	PhaseOffseason Phase = "OFFSEASON"
)

const (
	SeasonLengthDays = 17
	RegularSeasonEnd = 14 // days 1-14
	PlayoffDay       = 15
	BoundaryHour     = 3 // 3 AM Eastern
)

var eastern = mustLoadEastern()

func mustLoadEastern() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic("clock: America/New_York tzdata unavailable: " + err.Error())
	}
	return loc
}

// Location returns the league's scheduling time zone.
func Location() *time.Location {
	return eastern
}

// Resolve computes the game day, phase, and time remaining until the next
// 3 AM Eastern boundary for the given instant.
func Resolve(now time.Time, seasonStart time.Time) (day int, phase Phase, untilBoundary time.Duration) {
	day = GameDay(now, seasonStart)
	return day, PhaseForDay(day), UntilNextBoundary(now)
}

// GameDay returns the 1-based day in the 17-day cycle that owns the given
// instant. Instants before the season start clamp to day 1.
func GameDay(now time.Time, seasonStart time.Time) int {
	elapsed := daysBetween(EffectiveDate(seasonStart), EffectiveDate(now))
	if elapsed < 0 {
		return 1
	}
	return elapsed%SeasonLengthDays + 1
}

// PhaseForDay maps a game day to its season phase.
func PhaseForDay(day int) Phase {
	switch {
	case day <= RegularSeasonEnd:
		return PhaseRegular
	case day == PlayoffDay:
		return PhasePlayoffs
	default:
		return PhaseOffseason
	}
}

// EffectiveDate returns midnight Eastern of the calendar date that owns t:
// local instants before 03:00 count toward the previous date. Daylight
// saving shifts are absorbed by wall-clock arithmetic; the boundary is
// "3 AM as observed", with no special casing around transitions.
func EffectiveDate(t time.Time) time.Time {
	local := t.In(eastern)
	if local.Hour() < BoundaryHour {
		local = local.AddDate(0, 0, -1)
	}
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, eastern)
}

// UntilNextBoundary returns how long until the next 3 AM Eastern after now.
func UntilNextBoundary(now time.Time) time.Duration {
	local := now.In(eastern)
	next := time.Date(local.Year(), local.Month(), local.Day(), BoundaryHour, 0, 0, 0, eastern)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, BoundaryHour, 0, 0, 0, eastern)
	}
	return next.Sub(local)
}

// daysBetween counts calendar days from a to b, where both are Eastern
// midnights. Dates are re-anchored in UTC so daylight-saving days (23 or
// 25 hours long) still count as exactly one day.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	au := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	bu := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(bu.Sub(au).Hours() / 24)
}
