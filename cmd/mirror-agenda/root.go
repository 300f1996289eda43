package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/beekhof/mirror-agenda/internal/app"
	"github.com/beekhof/mirror-agenda/internal/config"
	"github.com/beekhof/mirror-agenda/internal/logging"
	"github.com/beekhof/mirror-agenda/internal/render"
	"github.com/beekhof/mirror-agenda/internal/sync"
)

type rootOptions struct {
	configFile string
	logLevel   string
	flags      config.Flags
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "mirror-agenda",
		Short: "Show today's and upcoming calendar events on an always-on display",
		Long: `mirror-agenda keeps a small agenda of your calendar on screen.

It shows today's events, or the next few upcoming ones when today is empty,
and keeps showing the last fetched events when the network or the calendar
provider is unavailable.

CONFIGURATION PRECEDENCE (highest to lowest):
    1. Command-line flags
    2. Environment variables (AGENDA_PROVIDER, GOOGLE_CREDENTIALS_PATH,
       AGENDA_STORAGE_PATH, AGENDA_TIMEZONE, AGENDA_LISTEN, CALDAV_*, ...)
    3. Config file (--config)
    4. Defaults`,
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "Path to YAML config file")
	pf.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&opts.flags.Provider, "provider", "", "Calendar provider: google or caldav (overrides config file and AGENDA_PROVIDER)")
	pf.StringVar(&opts.flags.GoogleCredentialsPath, "google-credentials-path", "", "Path to Google OAuth credentials JSON file (overrides config file and GOOGLE_CREDENTIALS_PATH)")
	pf.StringVar(&opts.flags.StoragePath, "storage-path", "", "Token and cache storage location (overrides config file and AGENDA_STORAGE_PATH)")
	pf.StringVar(&opts.flags.Timezone, "timezone", "", "IANA timezone for the display (overrides config file and AGENDA_TIMEZONE)")
	pf.StringVar(&opts.flags.Listen, "listen", "", "HTTP listen address, e.g. :8090 (overrides config file and AGENDA_LISTEN)")

	cmd.AddCommand(
		newRunCmd(opts),
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newSyncCmd(opts),
		newShowCmd(opts),
		newInitCmd(opts),
	)
	return cmd
}

func (o *rootOptions) logger() (zerolog.Logger, error) {
	return logging.New(os.Stderr, o.logLevel)
}

// open loads the configuration and wires the service. Displays go to
// stdout when echo is set.
func (o *rootOptions) open(echo bool) (*app.App, zerolog.Logger, error) {
	logger, err := o.logger()
	if err != nil {
		return nil, logger, err
	}
	cfg, err := config.LoadConfig(o.configFile, o.flags)
	if err != nil {
		return nil, logger, fmt.Errorf("failed to load config: %w", err)
	}

	var a *app.App
	if echo {
		a, err = app.New(cfg, logger, os.Stdout)
	} else {
		a, err = app.New(cfg, logger, nil)
	}
	if err != nil {
		return nil, logger, err
	}
	return a, logger, nil
}

func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Show the agenda and keep it refreshed until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, logger, err := opts.open(true)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			logger.Info().
				Str("provider", a.Config.Provider).
				Str("refresh", a.Config.Refresh).
				Str("listen", a.Config.Listen).
				Msg("starting")
			if err := a.Run(ctx); err != nil {
				return err
			}
			logger.Info().Msg("stopped")
			return nil
		},
	}
}

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the calendar provider",
		Long: `Sign in to the calendar provider.

For Google this opens an OAuth consent flow in your browser. For CalDAV
(e.g. iCloud) the app-specific password is taken from --password, the
CALDAV_PASSWORD environment variable or the config file. Generate one at
https://appleid.apple.com/account/manage`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, _, err := opts.open(false)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			d, err := a.Login(ctx, password, cmd.ErrOrStderr())
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), render.Format(d))
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "CalDAV app-specific password")
	return cmd
}

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke and forget the stored token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, _, err := opts.open(false)
			if err != nil {
				return err
			}
			defer a.Close()

			d := a.Controller.SignOut(cmd.Context())
			fmt.Fprint(cmd.OutOrStdout(), render.Format(d))
			return nil
		},
	}
}

func newSyncCmd(opts *rootOptions) *cobra.Command {
	var trigger string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle and print the result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := sync.ParseTrigger(trigger)
			if err != nil {
				return err
			}
			a, _, err := opts.open(false)
			if err != nil {
				return err
			}
			defer a.Close()

			d := a.Controller.Sync(cmd.Context(), t)
			fmt.Fprint(cmd.OutOrStdout(), render.Format(d))
			return nil
		},
	}
	cmd.Flags().StringVar(&trigger, "trigger", string(sync.TriggerManual), "Trigger to sync with: initial-load, periodic-timer, manual-refresh, network-online or network-offline")
	return cmd
}

func newShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the cached agenda without contacting the provider",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, _, err := opts.open(false)
			if err != nil {
				return err
			}
			defer a.Close()

			d := a.Controller.Sync(cmd.Context(), sync.TriggerOffline)
			fmt.Fprint(cmd.OutOrStdout(), render.Format(d))
			return nil
		},
	}
}

func newInitCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init PATH",
		Short: "Write a config file with every default filled in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if opts.flags.Provider != "" {
				cfg.Provider = opts.flags.Provider
			}
			if opts.flags.GoogleCredentialsPath != "" {
				cfg.GoogleCredentialsPath = opts.flags.GoogleCredentialsPath
			}
			if opts.flags.StoragePath != "" {
				cfg.Storage.Path = opts.flags.StoragePath
			}
			if opts.flags.Timezone != "" {
				cfg.Timezone = opts.flags.Timezone
			}
			if opts.flags.Listen != "" {
				cfg.Listen = opts.flags.Listen
			}
			if err := config.Save(args[0], cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", args[0])
			return nil
		},
	}
}
