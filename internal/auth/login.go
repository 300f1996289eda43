package auth

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// LoginTimeout bounds how long Login waits for the browser callback.
const LoginTimeout = 5 * time.Minute

// callbackHandler receives the OAuth redirect. It checks state, then sends the
// authorization code or an error on the channels. Both channels must be
// buffered; only the first result is delivered.
func callbackHandler(state string, codeChan chan<- string, errorChan chan<- error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			trySend(errorChan, errors.New("authorization callback state mismatch"))
			return
		}
		if errMsg := q.Get("error"); errMsg != "" {
			fmt.Fprintf(w, "<html><body><h1>Authorization failed</h1><p>Error: %s</p></body></html>", html.EscapeString(errMsg))
			trySend(errorChan, fmt.Errorf("authorization error: %s", errMsg))
			return
		}
		code := q.Get("code")
		if code == "" {
			fmt.Fprint(w, "<html><body><h1>No authorization code received</h1></body></html>")
			trySend(errorChan, errors.New("no authorization code received"))
			return
		}
		fmt.Fprint(w, "<html><body><h1>Authorization successful!</h1><p>You can close this window.</p></body></html>")
		trySend(codeChan, code)
	})
}

func trySend[T any](ch chan<- T, v T) {
	select {
	case ch <- v:
	default:
	}
}

// startLocalServer listens on 127.0.0.1:8080, or a random port when 8080 is
// taken, and serves the callback handler until the returned server is shut down.
func startLocalServer(state string) (*http.Server, string, <-chan string, <-chan error, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:8080")
	if err != nil {
		listener, err = net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return nil, "", nil, nil, fmt.Errorf("failed to start local server: %w", err)
		}
	}

	port := listener.Addr().(*net.TCPAddr).Port
	redirectURL := fmt.Sprintf("http://127.0.0.1:%d", port)

	codeChan := make(chan string, 1)
	errorChan := make(chan error, 1)

	server := &http.Server{
		Handler:      callbackHandler(state, codeChan, errorChan),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  10 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			trySend(errorChan, fmt.Errorf("server error: %w", err))
		}
	}()

	return server, redirectURL, codeChan, errorChan, nil
}

// Login runs the browser consent flow: it prints the consent URL to out,
// waits for the loopback redirect and exchanges the code for a token. The
// token is not persisted; callers hand it to TokenStore.Set.
func Login(ctx context.Context, oauthConfig *oauth2.Config, out io.Writer) (*oauth2.Token, error) {
	state := uuid.NewString()

	server, redirectURL, codeChan, errorChan, err := startLocalServer(state)
	if err != nil {
		return nil, err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	cfg := *oauthConfig
	cfg.RedirectURL = redirectURL
	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	fmt.Fprintf(out, "Starting local server on %s\n", redirectURL)
	if redirectURL != "http://127.0.0.1:8080" {
		fmt.Fprintf(out, "Note: Port 8080 was unavailable. Make sure to add %s to your authorized redirect URIs in Google Cloud Console.\n", redirectURL)
	}
	fmt.Fprintln(out, "\nPlease visit the following URL to authorize the application:")
	fmt.Fprintln(out, authURL)
	fmt.Fprintln(out, "\nWaiting for authorization...")

	var code string
	select {
	case code = <-codeChan:
	case err := <-errorChan:
		return nil, fmt.Errorf("failed to receive authorization code: %w", err)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(LoginTimeout):
		return nil, fmt.Errorf("authorization timeout: no response received within %s", LoginTimeout)
	}

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return token, nil
}
