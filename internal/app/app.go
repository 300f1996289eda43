// Package app assembles the agenda service from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/beekhof/mirror-agenda/internal/auth"
	"github.com/beekhof/mirror-agenda/internal/cache"
	"github.com/beekhof/mirror-agenda/internal/calendar"
	"github.com/beekhof/mirror-agenda/internal/config"
	"github.com/beekhof/mirror-agenda/internal/metrics"
	"github.com/beekhof/mirror-agenda/internal/netwatch"
	"github.com/beekhof/mirror-agenda/internal/render"
	"github.com/beekhof/mirror-agenda/internal/scheduler"
	"github.com/beekhof/mirror-agenda/internal/store"
	"github.com/beekhof/mirror-agenda/internal/sync"
	"github.com/beekhof/mirror-agenda/internal/web"
)

// App is a fully wired agenda service.
type App struct {
	Config     *config.Config
	Location   *time.Location
	Tokens     *auth.TokenStore
	Cache      *cache.EventCache
	Board      *render.Board
	Metrics    *metrics.Metrics
	Controller *sync.Controller

	// OAuth is nil for providers that do not sign in through Google.
	OAuth *oauth2.Config

	slots  store.Store
	logger zerolog.Logger
}

// New opens storage and builds the provider client named by cfg. Displays
// are written to out as text when out is non-nil.
func New(cfg *config.Config, logger zerolog.Logger, out io.Writer) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var oauthConfig *oauth2.Config
	if cfg.Provider == config.ProviderGoogle {
		clientID, clientSecret, err := config.LoadGoogleCredentials(cfg.GoogleCredentialsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load Google credentials: %w", err)
		}
		oauthConfig = auth.NewOAuthConfig(clientID, clientSecret)
	}

	slots, err := store.Open(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	a, err := assemble(cfg, logger, out, slots, oauthConfig, nil)
	if err != nil {
		slots.Close()
		return nil, err
	}
	return a, nil
}

// assemble wires everything on top of slots. remote overrides the client
// cfg would otherwise build.
func assemble(cfg *config.Config, logger zerolog.Logger, out io.Writer, slots store.Store, oauthConfig *oauth2.Config, remote calendar.Client) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Location: loc,
		Tokens:   auth.NewTokenStore(slots, logger),
		Cache:    cache.New(slots, logger),
		Board:    render.NewBoard(),
		Metrics:  metrics.New(),
		OAuth:    oauthConfig,
		slots:    slots,
		logger:   logger,
	}

	if remote == nil {
		remote = a.newRemote()
	}

	renderers := render.Fanout{a.Board, render.NewLog(logger)}
	if out != nil {
		renderers = append(renderers, render.NewText(out))
	}

	opts := []sync.Option{
		sync.WithRenderer(renderers),
		sync.WithObserver(a.Metrics),
		sync.WithLocation(loc),
		sync.WithWindow(cfg.Window()),
		sync.WithFetchTimeout(cfg.FetchTimeout),
		sync.WithSortedSelection(!cfg.PreserveProviderOrder),
		sync.WithSignOutHook(func() {
			logger.Warn().Str("provider", cfg.Provider).Msg("signed out, run 'mirror-agenda login' to sign in again")
		}),
	}
	if cfg.Provider == config.ProviderGoogle {
		opts = append(opts, sync.WithRevoker(auth.NewRevoker()))
	}

	a.Controller = sync.NewController(a.Tokens, a.Cache, remote, logger, opts...)
	return a, nil
}

func (a *App) newRemote() calendar.Client {
	cfg := a.Config
	if cfg.Provider == config.ProviderCalDAV {
		return calendar.NewCalDAVClient(cfg.CalDAV.ServerURL, cfg.CalDAV.Username, cfg.CalDAV.CalendarPath, cfg.MaxResults, cfg.FetchTimeout)
	}
	return calendar.NewGoogleClient(a.OAuth, a.Tokens, cfg.CalendarID, cfg.MaxResults)
}

// Close releases the storage backend.
func (a *App) Close() error {
	return a.slots.Close()
}

// Login obtains a token for the configured provider and signs in with it.
// For CalDAV the app-specific password is the credential.
func (a *App) Login(ctx context.Context, password string, prompt io.Writer) (sync.Display, error) {
	var token *oauth2.Token
	switch a.Config.Provider {
	case config.ProviderCalDAV:
		if password == "" {
			password = a.Config.CalDAV.Password
		}
		if password == "" {
			return sync.Display{}, errors.New("no CalDAV app-specific password configured")
		}
		token = &oauth2.Token{AccessToken: password, TokenType: "Basic"}
	default:
		t, err := auth.Login(ctx, a.OAuth, prompt)
		if err != nil {
			return sync.Display{}, err
		}
		token = t
	}
	return a.Controller.SignIn(ctx, token)
}

// Run performs the initial load and then keeps the agenda fresh until ctx
// is cancelled: on the refresh schedule, on network transitions and on
// requests to the HTTP API when one is configured.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.Controller.Sync(ctx, sync.TriggerInitialLoad)

	sched := scheduler.New(a.Config.Refresh, a.Location, a.Controller, a.logger)
	defer sched.Stop()

	probe := netwatch.DialProbe(a.Config.Network.ProbeAddress, 5*time.Second)
	watcher := netwatch.New(probe, a.Config.Network.ProbeInterval, a.Controller, a.logger)

	errCh := make(chan error, 3)
	running := 2
	go func() { errCh <- sched.Start(ctx) }()
	go func() { errCh <- watcher.Run(ctx) }()

	if a.Config.Listen != "" {
		srv := web.NewServer(a.Controller, a.Board, a.Metrics.Handler(), a.Location, a.logger)
		running++
		go func() { errCh <- srv.Run(ctx, a.Config.Listen) }()
	}

	var firstErr error
	for i := 0; i < running; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
		cancel()
	}
	return firstErr
}
