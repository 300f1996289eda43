package calendar

import (
	"strings"
	"time"

	"github.com/emersion/go-ical"
	gcal "google.golang.org/api/calendar/v3"
)

const icalUTCLayout = "20060102T150405Z"

// eventsFromICal converts the VEVENTs of cal into API-shaped events.
// Recurring events are expanded into the instances that overlap
// [windowStart, windowEnd); overridden instances replace the generated ones.
// Cancelled events are dropped.
func eventsFromICal(cal *ical.Calendar, loc *time.Location, windowStart, windowEnd time.Time) []*gcal.Event {
	var (
		out       []*gcal.Event
		masters   []ical.Event
		overrides = make(map[string]bool)
	)

	for _, comp := range cal.Children {
		if comp.Name != ical.CompEvent {
			continue
		}
		vevent := ical.Event{Component: comp}

		if rid := comp.Props.Get(ical.PropRecurrenceID); rid != nil {
			if t, err := rid.DateTime(loc); err == nil {
				overrides[uidOf(comp)+"/"+t.UTC().Format(icalUTCLayout)] = true
			}
		} else if comp.Props.Get(ical.PropRecurrenceRule) != nil {
			masters = append(masters, vevent)
			continue
		}

		if cancelled(comp) {
			continue
		}
		if ev := eventFromComponent(comp, loc); ev != nil && overlaps(ev, loc, windowStart, windowEnd) {
			out = append(out, ev)
		}
	}

	for _, master := range masters {
		if cancelled(master.Component) {
			continue
		}
		out = append(out, expand(master, loc, windowStart, windowEnd, overrides)...)
	}
	return out
}

func expand(master ical.Event, loc *time.Location, windowStart, windowEnd time.Time, overrides map[string]bool) []*gcal.Event {
	base := eventFromComponent(master.Component, loc)
	if base == nil {
		return nil
	}
	set, err := master.RecurrenceSet(loc)
	if err != nil || set == nil {
		if !overlaps(base, loc, windowStart, windowEnd) {
			return nil
		}
		return []*gcal.Event{base}
	}

	start, allDay, ok := StartOf(base, loc)
	if !ok {
		return nil
	}
	duration := 24 * time.Hour
	if end, _, ok := endOf(base, loc); ok && end.After(start) {
		duration = end.Sub(start)
	}

	uid := uidOf(master.Component)
	var out []*gcal.Event
	for _, occ := range set.Between(windowStart.Add(-duration), windowEnd, true) {
		if !occ.Add(duration).After(windowStart) {
			continue
		}
		key := occ.UTC().Format(icalUTCLayout)
		if overrides[uid+"/"+key] {
			continue
		}
		instance := *base
		instance.Id = uid + "_" + key
		instance.RecurringEventId = uid
		instance.Start = dateTimeOf(occ.In(loc), allDay)
		instance.End = dateTimeOf(occ.In(loc).Add(duration), allDay)
		out = append(out, &instance)
	}
	return out
}

// eventFromComponent maps a VEVENT onto the API event shape. All-day events
// (DATE values) get Start.Date, timed events Start.DateTime.
func eventFromComponent(comp *ical.Component, loc *time.Location) *gcal.Event {
	event := &gcal.Event{
		Id:     uidOf(comp),
		Status: "confirmed",
	}
	if summary := comp.Props.Get(ical.PropSummary); summary != nil {
		event.Summary = summary.Value
	}
	if desc := comp.Props.Get(ical.PropDescription); desc != nil {
		event.Description = desc.Value
	}
	if location := comp.Props.Get(ical.PropLocation); location != nil {
		event.Location = location.Value
	}

	dtstart := comp.Props.Get(ical.PropDateTimeStart)
	if dtstart == nil {
		return nil
	}
	start, err := dtstart.DateTime(loc)
	if err != nil {
		return nil
	}
	allDay := isDate(dtstart)
	event.Start = dateTimeOf(start, allDay)

	if dtend := comp.Props.Get(ical.PropDateTimeEnd); dtend != nil {
		if end, err := dtend.DateTime(loc); err == nil {
			event.End = dateTimeOf(end, isDate(dtend))
		}
	} else if allDay {
		event.End = dateTimeOf(start.AddDate(0, 0, 1), true)
	}

	if transp := comp.Props.Get(ical.PropTransparency); transp != nil && strings.EqualFold(transp.Value, "TRANSPARENT") {
		event.Transparency = "transparent"
	}
	return event
}

// overlaps reports whether ev intersects [windowStart, windowEnd). An event
// without an end occupies its start instant, or the whole day when all-day.
func overlaps(ev *gcal.Event, loc *time.Location, windowStart, windowEnd time.Time) bool {
	start, allDay, ok := StartOf(ev, loc)
	if !ok || !start.Before(windowEnd) {
		return false
	}
	end := start
	if e, _, ok := endOf(ev, loc); ok && e.After(start) {
		end = e
	} else if allDay {
		end = start.AddDate(0, 0, 1)
	}
	if end.Equal(start) {
		return !start.Before(windowStart)
	}
	return end.After(windowStart)
}

func dateTimeOf(t time.Time, allDay bool) *gcal.EventDateTime {
	if allDay {
		return &gcal.EventDateTime{Date: t.Format(DateLayout)}
	}
	return &gcal.EventDateTime{DateTime: t.Format(time.RFC3339)}
}

func endOf(ev *gcal.Event, loc *time.Location) (time.Time, bool, bool) {
	if ev.End == nil {
		return time.Time{}, false, false
	}
	return StartOf(&gcal.Event{Start: ev.End}, loc)
}

func isDate(prop *ical.Prop) bool {
	return prop.ValueType() == ical.ValueDate || len(prop.Value) == len("20060102")
}

func uidOf(comp *ical.Component) string {
	if uid := comp.Props.Get(ical.PropUID); uid != nil {
		return uid.Value
	}
	return ""
}

func cancelled(comp *ical.Component) bool {
	status := comp.Props.Get(ical.PropStatus)
	return status != nil && strings.EqualFold(status.Value, "CANCELLED")
}
