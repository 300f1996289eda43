package calendar

import (
	"time"

	gcal "google.golang.org/api/calendar/v3"
)

// DateLayout is the layout of an all-day event's start date.
const DateLayout = "2006-01-02"

// StartOf returns when ev starts, in loc. All-day events start at local
// midnight of their date. ok is false when the event has no parseable start.
func StartOf(ev *gcal.Event, loc *time.Location) (start time.Time, allDay bool, ok bool) {
	if ev == nil || ev.Start == nil {
		return time.Time{}, false, false
	}
	if ev.Start.DateTime != "" {
		t, err := time.Parse(time.RFC3339, ev.Start.DateTime)
		if err != nil {
			return time.Time{}, false, false
		}
		return t.In(loc), false, true
	}
	if ev.Start.Date != "" {
		t, err := time.ParseInLocation(DateLayout, ev.Start.Date, loc)
		if err != nil {
			return time.Time{}, true, false
		}
		return t, true, true
	}
	return time.Time{}, false, false
}

// StartsBefore orders events by start. Events without a start sort last.
func StartsBefore(a, b *gcal.Event, loc *time.Location) bool {
	ta, _, okA := StartOf(a, loc)
	tb, _, okB := StartOf(b, loc)
	switch {
	case okA && okB:
		return ta.Before(tb)
	case okA:
		return true
	default:
		return false
	}
}
