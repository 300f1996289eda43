// Package sync keeps the displayed agenda in step with the remote calendar.
// The Controller decides, on every trigger, whether to fetch live events or
// fall back to the cached snapshot, and hands the resulting selection to a
// Renderer.
package sync

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"

	"github.com/beekhof/mirror-agenda/internal/agenda"
	"github.com/beekhof/mirror-agenda/internal/calendar"
	"github.com/beekhof/mirror-agenda/internal/logging"
)

// DefaultWindow is how far ahead events are fetched.
const DefaultWindow = 7 * 24 * time.Hour

// TokenStore holds the signed-in user's token.
type TokenStore interface {
	Get() *oauth2.Token
	Set(token *oauth2.Token) error
	Clear() error
}

// EventCache holds the last successfully fetched events.
type EventCache interface {
	Get() ([]*gcal.Event, bool)
	Set(events []*gcal.Event) error
}

// Renderer receives every display the controller produces.
type Renderer interface {
	Render(d Display)
}

// Revoker invalidates a token at the provider on explicit sign-out.
type Revoker interface {
	Revoke(ctx context.Context, token *oauth2.Token) error
}

// Observer is told about every completed sync.
type Observer interface {
	ObserveSync(d Display, elapsed time.Duration)
}

// Controller orchestrates the token store, remote client and event cache.
// Overlapping Sync calls are not serialized: each renders when it completes,
// so the last one to finish wins.
type Controller struct {
	tokens TokenStore
	cache  EventCache
	remote calendar.Client

	renderer  Renderer
	revoker   Revoker
	observer  Observer
	onSignOut func()

	logger       zerolog.Logger
	clock        func() time.Time
	loc          *time.Location
	window       time.Duration
	fetchTimeout time.Duration
	selectOpts   []agenda.Option

	state atomic.Int32
}

// Option configures a Controller.
type Option func(*Controller)

func WithRenderer(r Renderer) Option { return func(c *Controller) { c.renderer = r } }

func WithRevoker(r Revoker) Option { return func(c *Controller) { c.revoker = r } }

func WithObserver(o Observer) Option { return func(c *Controller) { c.observer = o } }

// WithSignOutHook registers fn to run whenever the token is dropped, either
// explicitly or because the provider rejected it.
func WithSignOutHook(fn func()) Option { return func(c *Controller) { c.onSignOut = fn } }

func WithClock(now func() time.Time) Option { return func(c *Controller) { c.clock = now } }

// WithLocation sets the zone calendar days are judged in.
func WithLocation(loc *time.Location) Option { return func(c *Controller) { c.loc = loc } }

func WithWindow(d time.Duration) Option { return func(c *Controller) { c.window = d } }

// WithFetchTimeout bounds each remote fetch. Zero leaves it to the client.
func WithFetchTimeout(d time.Duration) Option { return func(c *Controller) { c.fetchTimeout = d } }

// WithSortedSelection makes selection re-sort events by start instead of
// trusting provider order.
func WithSortedSelection(sorted bool) Option {
	return func(c *Controller) {
		if sorted {
			c.selectOpts = []agenda.Option{agenda.SortByStart()}
		} else {
			c.selectOpts = nil
		}
	}
}

// NewController creates a Controller. It starts in StateIdle.
func NewController(tokens TokenStore, cache EventCache, remote calendar.Client, logger zerolog.Logger, opts ...Option) *Controller {
	c := &Controller{
		tokens: tokens,
		cache:  cache,
		remote: remote,
		logger: logging.Component(logger, "sync"),
		clock:  time.Now,
		loc:    time.Local,
		window: DefaultWindow,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the state the controller was left in by the most recent step.
func (c *Controller) State() State {
	return State(c.state.Load())
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
}

// Sync runs one cycle for trigger and returns what was rendered. It never
// fails: every error path ends in a displayable result.
func (c *Controller) Sync(ctx context.Context, trigger Trigger) Display {
	started := c.clock()
	now := started.In(c.loc)

	d := c.sync(ctx, trigger, now)
	d.Trigger = trigger
	d.State = c.State()
	d.GeneratedAt = now

	elapsed := c.clock().Sub(started)
	c.logger.Info().
		Str("trigger", string(trigger)).
		Str("state", d.State.String()).
		Str("source", string(d.Source)).
		Str("title", string(d.Title)).
		Int("items", len(d.Items)).
		Dur("elapsed", elapsed).
		Msg("sync complete")

	if c.observer != nil {
		c.observer.ObserveSync(d, elapsed)
	}
	if c.renderer != nil {
		c.renderer.Render(d)
	}
	return d
}

func (c *Controller) sync(ctx context.Context, trigger Trigger, now time.Time) Display {
	token := c.tokens.Get()

	if trigger == TriggerOffline {
		c.setState(StateOffline)
		missing := NoticeUnavailable
		if token == nil {
			missing = NoticeSignIn
		}
		return c.fromCache(now, token != nil, missing)
	}

	if token == nil {
		c.setState(StateIdle)
		return c.fromCache(now, false, NoticeSignIn)
	}

	c.setState(StateFetching)
	events, err := c.fetch(ctx, token, now)

	var authErr *calendar.AuthRejectedError
	switch {
	case err == nil:
		if err := c.cache.Set(events); err != nil {
			c.logger.Error().Err(err).Msg("failed to update event cache")
		}
		c.setState(StateSuccess)
		return Display{
			Selection: agenda.Select(events, now, c.selectOpts...),
			Source:    SourceLive,
			SignedIn:  true,
			HasData:   true,
		}

	case errors.As(err, &authErr):
		c.logger.Warn().Err(err).Int("code", authErr.Code).Msg("credentials rejected, signing out")
		c.dropToken()
		c.setState(StateAuthFailed)
		return c.fromCache(now, false, NoticeSignIn)

	default:
		c.logger.Warn().Err(err).Msg("fetch failed, falling back to cache")
		c.setState(StateTransportFailed)
		return c.fromCache(now, true, NoticeUnavailable)
	}
}

func (c *Controller) fetch(ctx context.Context, token *oauth2.Token, now time.Time) ([]*gcal.Event, error) {
	if c.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.fetchTimeout)
		defer cancel()
	}
	return c.remote.FetchUpcoming(ctx, token, now, now.Add(c.window))
}

// fromCache builds the display from the cached snapshot. missing is the
// notice shown when there is no snapshot at all.
func (c *Controller) fromCache(now time.Time, signedIn bool, missing Notice) Display {
	d := Display{Source: SourceCache, SignedIn: signedIn}

	events, ok := c.cache.Get()
	if !ok {
		d.Selection = agenda.Selection{Title: agenda.TitleUpcoming}
		d.Notice = missing
		return d
	}
	d.Selection = agenda.Select(events, now, c.selectOpts...)
	d.HasData = true
	return d
}

func (c *Controller) dropToken() {
	if err := c.tokens.Clear(); err != nil {
		c.logger.Error().Err(err).Msg("failed to clear token")
	}
	if c.onSignOut != nil {
		c.onSignOut()
	}
}

// SignIn stores a freshly obtained token and syncs with it.
func (c *Controller) SignIn(ctx context.Context, token *oauth2.Token) (Display, error) {
	if err := c.tokens.Set(token); err != nil {
		return Display{}, err
	}
	c.logger.Info().Msg("signed in")
	return c.Sync(ctx, TriggerSignIn), nil
}

// SignOut revokes and forgets the token, then shows the cached agenda.
// Revocation is best effort.
func (c *Controller) SignOut(ctx context.Context) Display {
	if token := c.tokens.Get(); token != nil && c.revoker != nil {
		if err := c.revoker.Revoke(ctx, token); err != nil {
			c.logger.Warn().Err(err).Msg("failed to revoke token")
		}
	}
	c.dropToken()
	c.logger.Info().Msg("signed out")
	return c.Sync(ctx, TriggerSignOut)
}
