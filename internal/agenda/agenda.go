// Package agenda decides which events the dashboard shows and how each one
// is labeled. Everything here is a pure function of the event list and the
// current time.
package agenda

import (
	"sort"
	"time"

	gcal "google.golang.org/api/calendar/v3"

	"github.com/beekhof/mirror-agenda/internal/calendar"
)

// Title is the heading of a selection.
type Title string

const (
	TitleToday    Title = "Today's Events"
	TitleUpcoming Title = "Upcoming Events"
)

// UpcomingLimit is how many events are shown when nothing happens today.
const UpcomingLimit = 3

const (
	timeLayout = "3:04 PM"
	dayLayout  = "Mon, Jan 2"

	allDayLabel = "All Day"
	noTitle     = "(No Title)"
)

// Item is one labeled row of a selection.
type Item struct {
	Summary string
	// Label is "2:00 PM" or "All Day" under TitleToday and
	// "Tomorrow, 2:00 PM" or "Mon, Jun 3, All Day" under TitleUpcoming.
	Label  string
	AllDay bool
	Start  time.Time
	Event  *gcal.Event
}

// Selection is the labeled, ordered list for display.
type Selection struct {
	Title Title
	Items []Item
	// Total is the number of events the selection was made from, so an
	// empty selection can tell "nothing at all" from "nothing relevant".
	Total int
}

// Empty reports whether the selection has nothing to show.
func (s Selection) Empty() bool { return len(s.Items) == 0 }

type options struct {
	sortByStart bool
}

// Option tunes Select.
type Option func(*options)

// SortByStart makes Select stable-sort the events by start before
// partitioning instead of trusting the provider's order.
func SortByStart() Option {
	return func(o *options) { o.sortByStart = true }
}

type dated struct {
	event  *gcal.Event
	start  time.Time
	allDay bool
}

// Select partitions events around now. If any event starts on now's calendar
// day (in now's location) the selection is those events, in order, under
// TitleToday. Otherwise it is the first UpcomingLimit events under
// TitleUpcoming. Events without a usable start are never shown but still
// count towards Total.
func Select(events []*gcal.Event, now time.Time, opts ...Option) Selection {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	loc := now.Location()
	list := make([]dated, 0, len(events))
	for _, ev := range events {
		start, allDay, ok := calendar.StartOf(ev, loc)
		if !ok {
			continue
		}
		list = append(list, dated{event: ev, start: start, allDay: allDay})
	}
	if o.sortByStart {
		sort.SliceStable(list, func(i, j int) bool { return list[i].start.Before(list[j].start) })
	}

	sel := Selection{Title: TitleUpcoming, Total: len(events)}

	var today []dated
	for _, d := range list {
		if sameDay(d.start, now) {
			today = append(today, d)
		}
	}

	if len(today) > 0 {
		sel.Title = TitleToday
		sel.Items = make([]Item, 0, len(today))
		for _, d := range today {
			sel.Items = append(sel.Items, item(d, timeLabel(d)))
		}
		return sel
	}

	n := min(UpcomingLimit, len(list))
	sel.Items = make([]Item, 0, n)
	for _, d := range list[:n] {
		sel.Items = append(sel.Items, item(d, dayLabel(d.start, now)+", "+timeLabel(d)))
	}
	return sel
}

func item(d dated, label string) Item {
	summary := d.event.Summary
	if summary == "" {
		summary = noTitle
	}
	return Item{
		Summary: summary,
		Label:   label,
		AllDay:  d.allDay,
		Start:   d.start,
		Event:   d.event,
	}
}

func timeLabel(d dated) string {
	if d.allDay {
		return allDayLabel
	}
	return d.start.Format(timeLayout)
}

func dayLabel(start, now time.Time) string {
	switch {
	case sameDay(start, now):
		return "Today"
	case sameDay(start, now.AddDate(0, 0, 1)):
		return "Tomorrow"
	default:
		return start.Format(dayLayout)
	}
}

func sameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
