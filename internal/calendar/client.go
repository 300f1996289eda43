// Package calendar fetches the signed-in user's upcoming events from the
// remote calendar provider.
package calendar

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
)

// MinResults is the smallest result cap a client may use. It leaves room for
// at least three future events after today's events are set aside.
const MinResults = 10

// Client fetches events whose start lies in [now, windowEnd), ordered by
// start, with recurring events already expanded into single instances.
//
// Failures are reported as *AuthRejectedError when the provider refused the
// credential and as *TransportError for everything else.
type Client interface {
	FetchUpcoming(ctx context.Context, token *oauth2.Token, now, windowEnd time.Time) ([]*gcal.Event, error)
}

// AuthRejectedError means the provider rejected the token (HTTP 401 or 403).
type AuthRejectedError struct {
	Code int
	Err  error
}

func (e *AuthRejectedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("calendar provider rejected credentials (%d): %v", e.Code, e.Err)
	}
	return fmt.Sprintf("calendar provider rejected credentials (%d)", e.Code)
}

func (e *AuthRejectedError) Unwrap() error { return e.Err }

// TransportError covers network failures and non-auth provider errors.
type TransportError struct {
	Message string
	Err     error
}

func (e *TransportError) Error() string { return "calendar fetch failed: " + e.Message }

func (e *TransportError) Unwrap() error { return e.Err }

func transportError(err error) error {
	return &TransportError{Message: err.Error(), Err: err}
}

func clampResults(n int64) int64 {
	if n < MinResults {
		return MinResults
	}
	return n
}
