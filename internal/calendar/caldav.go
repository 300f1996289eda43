package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/emersion/go-webdav/caldav"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
)

// DefaultICloudURL is Apple's CalDAV endpoint.
const DefaultICloudURL = "https://caldav.icloud.com"

// CalDAVClient reads one calendar collection from a CalDAV server. The
// token's access token carries the account's app-specific password.
type CalDAVClient struct {
	serverURL    string
	username     string
	calendarPath string
	maxResults   int64
	httpClient   *http.Client
}

// NewCalDAVClient creates a client for the collection at calendarPath.
func NewCalDAVClient(serverURL, username, calendarPath string, maxResults int64, timeout time.Duration) *CalDAVClient {
	if serverURL == "" {
		serverURL = DefaultICloudURL
	}
	return &CalDAVClient{
		serverURL:    serverURL,
		username:     username,
		calendarPath: calendarPath,
		maxResults:   clampResults(maxResults),
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// basicAuthClient adds Basic Auth to every request and turns 401/403
// responses into AuthRejectedError before the WebDAV layer sees them.
type basicAuthClient struct {
	client   *http.Client
	username string
	password string
}

func (c *basicAuthClient) Do(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(c.username, c.password)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		resp.Body.Close()
		return nil, &AuthRejectedError{Code: resp.StatusCode}
	}
	return resp, nil
}

func (c *CalDAVClient) connect(token *oauth2.Token) (*caldav.Client, error) {
	return caldav.NewClient(&basicAuthClient{
		client:   c.httpClient,
		username: c.username,
		password: token.AccessToken,
	}, c.serverURL)
}

func (c *CalDAVClient) FetchUpcoming(ctx context.Context, token *oauth2.Token, now, windowEnd time.Time) ([]*gcal.Event, error) {
	if token == nil || token.AccessToken == "" {
		return nil, &AuthRejectedError{Code: http.StatusUnauthorized, Err: errors.New("no app password")}
	}
	if c.calendarPath == "" {
		return nil, &TransportError{Message: "calendar path not configured"}
	}

	client, err := c.connect(token)
	if err != nil {
		return nil, transportError(fmt.Errorf("connect to CalDAV: %w", err))
	}

	query := &caldav.CalendarQuery{
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{
				{
					Name:  "VEVENT",
					Start: now.UTC(),
					End:   windowEnd.UTC(),
				},
			},
		},
	}

	objects, err := client.QueryCalendar(ctx, c.calendarPath, query)
	if err != nil {
		var authErr *AuthRejectedError
		if errors.As(err, &authErr) {
			return nil, authErr
		}
		return nil, transportError(fmt.Errorf("query calendar: %w", err))
	}

	var events []*gcal.Event
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		for _, ev := range eventsFromICal(obj.Data, now.Location(), now, windowEnd) {
			if start, _, ok := StartOf(ev, now.Location()); ok && !start.Before(windowEnd) {
				continue
			}
			events = append(events, ev)
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		return StartsBefore(events[i], events[j], now.Location())
	})
	if int64(len(events)) > c.maxResults {
		events = events[:c.maxResults]
	}
	return events, nil
}
