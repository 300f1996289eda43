package calendar

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/beekhof/mirror-agenda/internal/auth"
)

// GoogleClient reads a single Google calendar through the Calendar API.
type GoogleClient struct {
	oauthConfig *oauth2.Config
	saver       auth.TokenSaver
	calendarID  string
	maxResults  int64
	opts        []option.ClientOption
}

// NewGoogleClient creates a client for calendarID ("primary" when empty).
// oauthConfig and saver let an expired token be refreshed and the refreshed
// token persisted; either may be nil. Extra options are passed to the API
// service, e.g. option.WithEndpoint.
func NewGoogleClient(oauthConfig *oauth2.Config, saver auth.TokenSaver, calendarID string, maxResults int64, opts ...option.ClientOption) *GoogleClient {
	if calendarID == "" {
		calendarID = "primary"
	}
	if saver == nil {
		oauthConfig = nil
	}
	return &GoogleClient{
		oauthConfig: oauthConfig,
		saver:       saver,
		calendarID:  calendarID,
		maxResults:  clampResults(maxResults),
		opts:        opts,
	}
}

func (c *GoogleClient) FetchUpcoming(ctx context.Context, token *oauth2.Token, now, windowEnd time.Time) ([]*gcal.Event, error) {
	if token == nil {
		return nil, &AuthRejectedError{Code: http.StatusUnauthorized, Err: errors.New("no token")}
	}

	httpClient := auth.HTTPClient(ctx, c.oauthConfig, token, c.saver)
	opts := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, c.opts...)
	service, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, transportError(err)
	}

	events, err := service.Events.List(c.calendarID).
		Context(ctx).
		TimeMin(now.Format(time.RFC3339)).
		TimeMax(windowEnd.Format(time.RFC3339)).
		ShowDeleted(false).
		SingleEvents(true).
		MaxResults(c.maxResults).
		OrderBy("startTime").
		Do()
	if err != nil {
		return nil, classifyGoogleError(err)
	}
	return events.Items, nil
}

// classifyGoogleError maps API failures onto AuthRejectedError or
// TransportError. A 403 that only signals rate limiting keeps the token.
func classifyGoogleError(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		switch gErr.Code {
		case http.StatusUnauthorized:
			return &AuthRejectedError{Code: gErr.Code, Err: err}
		case http.StatusForbidden:
			if errIsReason(gErr, "rateLimitExceeded") || errIsReason(gErr, "userRateLimitExceeded") {
				return transportError(err)
			}
			return &AuthRejectedError{Code: gErr.Code, Err: err}
		}
		return transportError(err)
	}

	// refreshing the token failed at the token endpoint
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		code := http.StatusUnauthorized
		if rErr.Response != nil {
			if rErr.Response.StatusCode >= http.StatusInternalServerError {
				return transportError(err)
			}
			if rErr.Response.StatusCode == http.StatusForbidden {
				code = http.StatusForbidden
			}
		}
		return &AuthRejectedError{Code: code, Err: err}
	}

	return transportError(err)
}

func errIsReason(gErr *googleapi.Error, reason string) bool {
	for _, e := range gErr.Errors {
		if e.Reason == reason {
			return true
		}
	}
	return false
}
