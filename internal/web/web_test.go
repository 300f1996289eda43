package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gcal "google.golang.org/api/calendar/v3"

	"github.com/beekhof/mirror-agenda/internal/agenda"
	"github.com/beekhof/mirror-agenda/internal/render"
	"github.com/beekhof/mirror-agenda/internal/sync"
)

type fakeController struct {
	board    *render.Board
	display  sync.Display
	triggers []sync.Trigger
	signOuts int
}

func (f *fakeController) Sync(_ context.Context, trigger sync.Trigger) sync.Display {
	f.triggers = append(f.triggers, trigger)
	d := f.display
	d.Trigger = trigger
	f.board.Render(d)
	return d
}

func (f *fakeController) SignOut(_ context.Context) sync.Display {
	f.signOuts++
	d := sync.Display{Notice: sync.NoticeSignIn, Source: sync.SourceCache, Trigger: sync.TriggerSignOut}
	f.board.Render(d)
	return d
}

func (f *fakeController) State() sync.State { return sync.StateSuccess }

var now = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func liveDisplay() sync.Display {
	return sync.Display{
		Selection: agenda.Selection{
			Title: agenda.TitleToday,
			Total: 2,
			Items: []agenda.Item{
				{
					Summary: "Standup",
					Label:   "9:30 AM",
					Start:   now.Add(-30 * time.Minute),
					Event: &gcal.Event{
						Id:       "standup-1",
						Summary:  "Standup",
						Location: "Room 4",
						Start:    &gcal.EventDateTime{DateTime: "2024-03-15T09:30:00Z"},
						End:      &gcal.EventDateTime{DateTime: "2024-03-15T09:45:00Z"},
					},
				},
				{
					Summary: "Conference",
					Label:   "All Day",
					AllDay:  true,
					Start:   time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
					Event: &gcal.Event{
						Summary: "Conference",
						Start:   &gcal.EventDateTime{Date: "2024-03-15"},
						End:     &gcal.EventDateTime{Date: "2024-03-16"},
					},
				},
			},
		},
		Source:      sync.SourceLive,
		SignedIn:    true,
		HasData:     true,
		State:       sync.StateSuccess,
		GeneratedAt: now,
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeController) {
	t.Helper()
	board := render.NewBoard()
	ctrl := &fakeController{board: board, display: liveDisplay()}
	s := NewServer(ctrl, board, promhttp.Handler(), time.UTC, zerolog.Nop())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv, ctrl
}

func decodeAgenda(t *testing.T, resp *http.Response) agendaResponse {
	t.Helper()
	defer resp.Body.Close()
	var got agendaResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	return got
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestAgendaBeforeFirstSync(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/agenda")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRefreshThenAgenda(t *testing.T) {
	srv, ctrl := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/refresh", "", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	refreshed := decodeAgenda(t, resp)
	assert.Equal(t, "manual-refresh", refreshed.Trigger)
	assert.Equal(t, []sync.Trigger{sync.TriggerManual}, ctrl.triggers)

	resp, err = http.Get(srv.URL + "/api/agenda")
	require.NoError(t, err)
	got := decodeAgenda(t, resp)

	assert.Equal(t, "Today's Events", got.Heading)
	assert.Equal(t, "live", got.Source)
	assert.Equal(t, "success", got.State)
	assert.True(t, got.SignedIn)
	assert.True(t, got.HasData)
	assert.Empty(t, got.Message)
	assert.Empty(t, got.Footer)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "Standup", got.Items[0].Summary)
	assert.Equal(t, "9:30 AM", got.Items[0].Label)
	assert.True(t, got.Items[1].AllDay)
}

func TestNetwork(t *testing.T) {
	srv, ctrl := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/network?state=offline", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/network?state=online", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/network?state=sideways", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Equal(t, []sync.Trigger{sync.TriggerOffline, sync.TriggerOnline}, ctrl.triggers)
}

func TestMethodNotAllowed(t *testing.T) {
	srv, ctrl := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/refresh")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Empty(t, ctrl.triggers)
}

func TestSignOut(t *testing.T) {
	srv, ctrl := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/signout", "", nil)
	require.NoError(t, err)
	got := decodeAgenda(t, resp)

	assert.Equal(t, 1, ctrl.signOuts)
	assert.Equal(t, "Calendar", got.Heading)
	assert.Equal(t, "Sign in to see your schedule.", got.Message)
	assert.False(t, got.SignedIn)
	assert.False(t, got.HasData)
	assert.Empty(t, got.Items)
}

func TestICSExport(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/refresh", "", nil)
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/agenda.ics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/calendar"))

	cal, err := ical.ParseCalendar(resp.Body)
	require.NoError(t, err)
	events := cal.Events()
	require.Len(t, events, 2)

	assert.Equal(t, "standup-1", events[0].Id())
	assert.Equal(t, "Standup", events[0].GetProperty(ical.ComponentPropertySummary).Value)
	assert.Equal(t, "Room 4", events[0].GetProperty(ical.ComponentPropertyLocation).Value)
	start, err := events[0].GetStartAt()
	require.NoError(t, err)
	assert.True(t, start.Equal(now.Add(-30*time.Minute)))

	assert.Equal(t, "Conference", events[1].GetProperty(ical.ComponentPropertySummary).Value)
	assert.Equal(t, "item-1@mirror-agenda", events[1].Id())
	assert.Contains(t, events[1].GetProperty(ical.ComponentPropertyDtStart).Value, "20240315")
}

func TestMetricsRoute(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
