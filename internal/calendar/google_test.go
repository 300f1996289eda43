package calendar

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

const eventsJSON = `{
  "kind": "calendar#events",
  "items": [
    {"id": "1", "summary": "Dentist", "start": {"dateTime": "2024-06-01T14:00:00Z"}},
    {"id": "2", "summary": "Trip", "start": {"date": "2024-06-03"}}
  ]
}`

func newGoogleTestClient(t *testing.T, handler http.HandlerFunc) *GoogleClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGoogleClient(nil, nil, "", 0, option.WithEndpoint(srv.URL+"/"))
}

func TestGoogleClient_FetchUpcoming(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	end := now.AddDate(0, 0, 7)

	client := newGoogleTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/calendars/primary/events", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		q := r.URL.Query()
		assert.Equal(t, "2024-06-01T10:00:00Z", q.Get("timeMin"))
		assert.Equal(t, "2024-06-08T10:00:00Z", q.Get("timeMax"))
		assert.Equal(t, "true", q.Get("singleEvents"))
		assert.Equal(t, "false", q.Get("showDeleted"))
		assert.Equal(t, "startTime", q.Get("orderBy"))
		assert.Equal(t, "10", q.Get("maxResults"))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, eventsJSON)
	})

	events, err := client.FetchUpcoming(context.Background(), &oauth2.Token{AccessToken: "tok"}, now, end)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "Dentist", events[0].Summary)
	assert.Equal(t, "2024-06-03", events[1].Start.Date)
}

func TestGoogleClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantAuth bool
		wantCode int
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"code":401,"message":"Invalid Credentials","errors":[{"reason":"authError"}]}}`, true, 401},
		{"forbidden", http.StatusForbidden, `{"error":{"code":403,"message":"Insufficient Permission","errors":[{"reason":"insufficientPermissions"}]}}`, true, 403},
		{"rate limited", http.StatusForbidden, `{"error":{"code":403,"message":"Rate Limit Exceeded","errors":[{"reason":"rateLimitExceeded"}]}}`, false, 0},
		{"server error", http.StatusInternalServerError, `{"error":{"code":500,"message":"Backend Error"}}`, false, 0},
		{"not found", http.StatusNotFound, `{"error":{"code":404,"message":"Not Found"}}`, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newGoogleTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})
			now := time.Now()
			_, err := client.FetchUpcoming(context.Background(), &oauth2.Token{AccessToken: "tok"}, now, now.Add(time.Hour))
			require.Error(t, err)

			var authErr *AuthRejectedError
			var transportErr *TransportError
			if tt.wantAuth {
				require.True(t, errors.As(err, &authErr), "got %T", err)
				assert.Equal(t, tt.wantCode, authErr.Code)
			} else {
				assert.True(t, errors.As(err, &transportErr), "got %T", err)
				assert.False(t, errors.As(err, &authErr))
			}
		})
	}
}

func TestGoogleClient_NetworkFailureIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewGoogleClient(nil, nil, "primary", 10, option.WithEndpoint(url+"/"))
	now := time.Now()
	_, err := client.FetchUpcoming(context.Background(), &oauth2.Token{AccessToken: "tok"}, now, now.Add(time.Hour))

	var transportErr *TransportError
	assert.True(t, errors.As(err, &transportErr))
}

func TestGoogleClient_RefreshRejectedIsAuth(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"invalid_grant"}`)
	}))
	defer tokenSrv.Close()

	cfg := &oauth2.Config{ClientID: "id", Endpoint: oauth2.Endpoint{TokenURL: tokenSrv.URL, AuthStyle: oauth2.AuthStyleInParams}}
	client := NewGoogleClient(cfg, saverFunc(func(*oauth2.Token) error { return nil }), "", 10,
		option.WithEndpoint("http://127.0.0.1:1/"))

	expired := &oauth2.Token{AccessToken: "old", RefreshToken: "r", Expiry: time.Now().Add(-time.Hour)}
	now := time.Now()
	_, err := client.FetchUpcoming(context.Background(), expired, now, now.Add(time.Hour))

	var authErr *AuthRejectedError
	assert.True(t, errors.As(err, &authErr), "got %v", err)
}

func TestGoogleClient_MaxResultsFloor(t *testing.T) {
	assert.EqualValues(t, MinResults, NewGoogleClient(nil, nil, "", 3).maxResults)
	assert.EqualValues(t, 25, NewGoogleClient(nil, nil, "", 25).maxResults)
}

type saverFunc func(*oauth2.Token) error

func (f saverFunc) Set(t *oauth2.Token) error { return f(t) }
