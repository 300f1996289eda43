package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/beekhof/mirror-agenda/internal/store"
)

// brokenStore fails every read and write.
type brokenStore struct{ store.Memory }

func (*brokenStore) Get(string) ([]byte, error) { return nil, errors.New("disk on fire") }
func (*brokenStore) Put(string, []byte) error   { return errors.New("disk on fire") }

func TestTokenStore_SetGetClear(t *testing.T) {
	s := NewTokenStore(store.NewMemory(), zerolog.Nop())
	assert.Nil(t, s.Get())

	token := &oauth2.Token{AccessToken: "abc", RefreshToken: "r", TokenType: "Bearer"}
	require.NoError(t, s.Set(token))

	got := s.Get()
	require.NotNil(t, got)
	assert.Equal(t, "abc", got.AccessToken)
	assert.Equal(t, "r", got.RefreshToken)

	require.NoError(t, s.Clear())
	assert.Nil(t, s.Get())
	assert.NoError(t, s.Clear())
}

func TestTokenStore_AcceptsBareAccessToken(t *testing.T) {
	slots := store.NewMemory()
	require.NoError(t, slots.Put(TokenKey, []byte(`{"access_token":"ya29.x"}`)))

	got := NewTokenStore(slots, zerolog.Nop()).Get()
	require.NotNil(t, got)
	assert.Equal(t, "ya29.x", got.AccessToken)
}

func TestTokenStore_MalformedIsClearedAndAbsent(t *testing.T) {
	for name, raw := range map[string]string{
		"not json":      `{"access_token":`,
		"wrong shape":   `["a","b"]`,
		"empty token":   `{"access_token":""}`,
		"missing field": `{}`,
	} {
		t.Run(name, func(t *testing.T) {
			slots := store.NewMemory()
			require.NoError(t, slots.Put(TokenKey, []byte(raw)))

			s := NewTokenStore(slots, zerolog.Nop())
			assert.Nil(t, s.Get())

			_, err := slots.Get(TokenKey)
			assert.ErrorIs(t, err, store.ErrNotFound)
		})
	}
}

func TestTokenStore_UnreadableIsAbsent(t *testing.T) {
	s := NewTokenStore(&brokenStore{}, zerolog.Nop())
	assert.Nil(t, s.Get())
	assert.Error(t, s.Set(&oauth2.Token{AccessToken: "a"}))
}

func TestTokenStore_RejectsEmptyToken(t *testing.T) {
	s := NewTokenStore(store.NewMemory(), zerolog.Nop())
	assert.Error(t, s.Set(nil))
	assert.Error(t, s.Set(&oauth2.Token{}))
}

type recordingSaver struct{ saved []*oauth2.Token }

func (r *recordingSaver) Set(token *oauth2.Token) error {
	r.saved = append(r.saved, token)
	return nil
}

func TestTokenSource_SavesRefreshedToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`)
	}))
	defer srv.Close()

	cfg := NewOAuthConfig("id", "secret")
	cfg.Endpoint = oauth2.Endpoint{TokenURL: srv.URL, AuthStyle: oauth2.AuthStyleInParams}

	expired := &oauth2.Token{AccessToken: "stale", RefreshToken: "r", Expiry: time.Now().Add(-time.Hour)}
	saver := &recordingSaver{}

	ts := TokenSource(context.Background(), cfg, expired, saver)
	token, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "fresh", token.AccessToken)
	require.Len(t, saver.saved, 1)
	assert.Equal(t, "fresh", saver.saved[0].AccessToken)

	// a second call reuses the valid token without saving again
	_, err = ts.Token()
	require.NoError(t, err)
	assert.Len(t, saver.saved, 1)
}

func TestTokenSource_ValidTokenNotSaved(t *testing.T) {
	saver := &recordingSaver{}
	valid := &oauth2.Token{AccessToken: "ok", Expiry: time.Now().Add(time.Hour)}

	token, err := TokenSource(context.Background(), NewOAuthConfig("id", "secret"), valid, saver).Token()
	require.NoError(t, err)
	assert.Equal(t, "ok", token.AccessToken)
	assert.Empty(t, saver.saved)
}

func TestCallbackHandler(t *testing.T) {
	codes := make(chan string, 1)
	errs := make(chan error, 1)
	h := callbackHandler("s1", codes, errs)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?state=s1&code=the-code", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "the-code", <-codes)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?state=other&code=x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.ErrorContains(t, <-errs, "state mismatch")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?state=s1&error=access_denied", nil))
	assert.ErrorContains(t, <-errs, "access_denied")
}

func TestRevoker_Revoke(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		got = r.PostForm
	}))
	defer srv.Close()

	r := &Revoker{URL: srv.URL, Client: srv.Client()}
	require.NoError(t, r.Revoke(context.Background(), &oauth2.Token{AccessToken: "a", RefreshToken: "r"}))
	assert.Equal(t, "r", got.Get("token"))

	require.NoError(t, r.Revoke(context.Background(), &oauth2.Token{AccessToken: "a"}))
	assert.Equal(t, "a", got.Get("token"))

	assert.NoError(t, r.Revoke(context.Background(), nil))
}

func TestRevoker_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_token"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	err := (&Revoker{URL: srv.URL}).Revoke(context.Background(), &oauth2.Token{AccessToken: "a"})
	assert.ErrorContains(t, err, "400")
}
