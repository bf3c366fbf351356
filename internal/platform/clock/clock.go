// Package clock decides whether a record is still inside its same-day
// modification window. The window is a calendar day in the clinic's time
// zone, so it closes at midnight regardless of when the record was created.
package clock

import "time"

type Clock struct {
	Now func() time.Time
	Loc *time.Location
}

// New returns a Clock reading wall time in loc. A nil loc means UTC.
func New(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return Clock{Now: time.Now, Loc: loc}
}

// Fixed returns a Clock frozen at t, for tests.
func Fixed(t time.Time, loc *time.Location) Clock {
	c := New(loc)
	c.Now = func() time.Time { return t }
	return c
}

// SameDay reports whether t falls on the current calendar day.
func (c Clock) SameDay(t time.Time) bool {
	now := c.now().In(c.loc())
	ty, tm, td := t.In(c.loc()).Date()
	ny, nm, nd := now.Date()
	return ty == ny && tm == nm && td == nd
}

// StartOfDay returns midnight of t's calendar day.
func (c Clock) StartOfDay(t time.Time) time.Time {
	y, m, d := t.In(c.loc()).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.loc())
}

// Day formats t as YYYY-MM-DD in the clinic time zone.
func (c Clock) Day(t time.Time) string {
	return t.In(c.loc()).Format("2006-01-02")
}

// MonthRange returns the first instant of the current month and the first
// instant of the next one.
func (c Clock) MonthRange() (time.Time, time.Time) {
	y, m, _ := c.now().In(c.loc()).Date()
	start := time.Date(y, m, 1, 0, 0, 0, 0, c.loc())
	return start, start.AddDate(0, 1, 0)
}

func (c Clock) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func (c Clock) loc() *time.Location {
	if c.Loc == nil {
		return time.UTC
	}
	return c.Loc
}
