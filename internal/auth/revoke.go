package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

// GoogleRevokeURL is Google's token revocation endpoint.
const GoogleRevokeURL = "https://oauth2.googleapis.com/revoke"

// Revoker invalidates a token at the provider.
type Revoker struct {
	URL    string
	Client *http.Client
}

// NewRevoker returns a Revoker for Google's endpoint.
func NewRevoker() *Revoker {
	return &Revoker{URL: GoogleRevokeURL, Client: http.DefaultClient}
}

// Revoke asks the provider to invalidate token. The refresh token is revoked
// when present, which also invalidates its access tokens.
func (r *Revoker) Revoke(ctx context.Context, token *oauth2.Token) error {
	if token == nil {
		return nil
	}
	value := token.RefreshToken
	if value == "" {
		value = token.AccessToken
	}

	form := url.Values{"token": {value}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("revoke failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
