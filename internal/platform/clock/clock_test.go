package clock

import (
	"testing"
	"time"
)

func TestSameDay(t *testing.T) {
	loc := time.FixedZone("ICT", 7*3600)
	now := time.Date(2026, 3, 10, 0, 1, 0, 0, loc)
	c := Fixed(now, loc)

	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"same minute", now, true},
		{"earlier today", time.Date(2026, 3, 10, 0, 0, 0, 0, loc), true},
		{"two minutes ago crosses midnight", now.Add(-2 * time.Minute), false},
		{"yesterday", now.AddDate(0, 0, -1), false},
		{"utc instant on the same local day", time.Date(2026, 3, 9, 17, 30, 0, 0, time.UTC), true},
		{"utc instant on the previous local day", time.Date(2026, 3, 9, 16, 59, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.SameDay(tt.t); got != tt.want {
				t.Errorf("SameDay(%v) = %v, want %v", tt.t, got, tt.want)
			}
		})
	}
}

func TestMonthRange(t *testing.T) {
	c := Fixed(time.Date(2026, 12, 15, 9, 0, 0, 0, time.UTC), time.UTC)
	start, end := c.MonthRange()
	if !start.Equal(time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected start %v", start)
	}
	if !end.Equal(time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected end %v", end)
	}
}

func TestNew_NilLocation(t *testing.T) {
	c := New(nil)
	if c.Loc != time.UTC {
		t.Errorf("expected UTC, got %v", c.Loc)
	}
	if !c.SameDay(time.Now()) {
		t.Error("expected now to be the same day")
	}
}

func TestDay(t *testing.T) {
	loc := time.FixedZone("ICT", 7*3600)
	c := New(loc)
	// 18:30 UTC is already the next morning in ICT.
	got := c.Day(time.Date(2026, 3, 10, 18, 30, 0, 0, time.UTC))
	if got != "2026-03-11" {
		t.Errorf("expected 2026-03-11, got %s", got)
	}
}
