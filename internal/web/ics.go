package web

import (
	"fmt"
	"net/http"
	"time"

	ical "github.com/arran4/golang-ical"
	gcal "google.golang.org/api/calendar/v3"

	"github.com/beekhof/mirror-agenda/internal/calendar"
	"github.com/beekhof/mirror-agenda/internal/sync"
)

const productID = "-//mirror-agenda//agenda export//EN"

// handleICS exports the events currently on screen as an iCalendar feed.
func (s *Server) handleICS(w http.ResponseWriter, _ *http.Request) {
	d, ok := s.board.Current()
	if !ok {
		http.Error(w, "agenda not loaded yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="agenda.ics"`)
	_, _ = w.Write([]byte(exportICS(d, s.loc)))
}

func exportICS(d sync.Display, loc *time.Location) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	for i, it := range d.Items {
		id := fmt.Sprintf("item-%d@mirror-agenda", i)
		if it.Event != nil && it.Event.Id != "" {
			id = it.Event.Id
		}

		ev := cal.AddEvent(id)
		ev.SetDtStampTime(d.GeneratedAt)
		ev.SetSummary(it.Summary)
		if it.AllDay {
			ev.SetAllDayStartAt(it.Start)
		} else {
			ev.SetStartAt(it.Start)
		}

		if it.Event == nil {
			continue
		}
		if it.Event.End != nil {
			if end, allDay, ok := calendar.StartOf(&gcal.Event{Start: it.Event.End}, loc); ok {
				if allDay {
					ev.SetAllDayEndAt(end)
				} else {
					ev.SetEndAt(end)
				}
			}
		}
		if it.Event.Location != "" {
			ev.SetLocation(it.Event.Location)
		}
	}
	return cal.Serialize()
}
