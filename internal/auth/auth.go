// Package auth owns the OAuth token lifecycle: persisting the token,
// obtaining one through the browser consent flow, refreshing and revoking it.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
)

// TokenSaver persists refreshed tokens.
type TokenSaver interface {
	Set(token *oauth2.Token) error
}

// NewOAuthConfig returns the Google OAuth client configuration for read-only
// calendar access. RedirectURL is filled in by Login.
func NewOAuthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  "http://127.0.0.1:8080",
		Scopes:       []string{calendar.CalendarReadonlyScope},
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.google.com/o/oauth2/auth",
			TokenURL: "https://oauth2.googleapis.com/token",
		},
	}
}

// autoSaveTokenSource wraps an oauth2.TokenSource and saves every token it
// hands out that differs from the last one seen.
type autoSaveTokenSource struct {
	source oauth2.TokenSource
	saver  TokenSaver

	mu        sync.Mutex
	lastToken *oauth2.Token
}

func (a *autoSaveTokenSource) Token() (*oauth2.Token, error) {
	token, err := a.source.Token()
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastToken == nil || a.lastToken.AccessToken != token.AccessToken {
		if err := a.saver.Set(token); err != nil {
			return nil, fmt.Errorf("failed to save refreshed token: %w", err)
		}
		a.lastToken = token
	}
	return token, nil
}

// TokenSource returns a source that starts from token, refreshes it through
// oauthConfig when it expires and persists refreshed tokens through saver.
// With a nil oauthConfig the token is used as is.
func TokenSource(ctx context.Context, oauthConfig *oauth2.Config, token *oauth2.Token, saver TokenSaver) oauth2.TokenSource {
	if oauthConfig == nil {
		return oauth2.StaticTokenSource(token)
	}
	return &autoSaveTokenSource{
		source:    oauth2.ReuseTokenSource(token, oauthConfig.TokenSource(ctx, token)),
		saver:     saver,
		lastToken: token,
	}
}

// HTTPClient returns an HTTP client authorised with token.
func HTTPClient(ctx context.Context, oauthConfig *oauth2.Config, token *oauth2.Token, saver TokenSaver) *http.Client {
	return oauth2.NewClient(ctx, TokenSource(ctx, oauthConfig, token, saver))
}
