// Package netwatch notices connectivity changes and turns them into
// network-online / network-offline syncs.
package netwatch

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/beekhof/mirror-agenda/internal/logging"
	"github.com/beekhof/mirror-agenda/internal/sync"
)

const (
	DefaultProbeAddress  = "www.googleapis.com:443"
	DefaultProbeInterval = 30 * time.Second
)

// Probe reports whether the network is usable.
type Probe func(ctx context.Context) error

// DialProbe returns a Probe that opens and closes a TCP connection to addr.
func DialProbe(addr string, timeout time.Duration) Probe {
	return func(ctx context.Context) error {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return err
		}
		return conn.Close()
	}
}

// Syncer is the part of the controller the watcher drives.
type Syncer interface {
	Sync(ctx context.Context, trigger sync.Trigger) sync.Display
}

// Watcher probes on an interval and syncs on every transition. The network
// is assumed online at start, so only a change is acted on.
type Watcher struct {
	probe    Probe
	interval time.Duration
	syncer   Syncer
	logger   zerolog.Logger
	online   bool
}

func New(probe Probe, interval time.Duration, syncer Syncer, logger zerolog.Logger) *Watcher {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &Watcher{
		probe:    probe,
		interval: interval,
		syncer:   syncer,
		logger:   logging.Component(logger, "netwatch"),
		online:   true,
	}
}

// Run probes until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.check(ctx)
		}
	}
}

func (w *Watcher) check(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, w.interval)
	err := w.probe(probeCtx)
	cancel()
	if ctx.Err() != nil {
		return
	}

	online := err == nil
	if online == w.online {
		return
	}
	w.online = online

	if online {
		w.logger.Info().Msg("network online, refreshing")
		w.syncer.Sync(ctx, sync.TriggerOnline)
		return
	}
	w.logger.Warn().Err(err).Msg("network offline, using cache")
	w.syncer.Sync(ctx, sync.TriggerOffline)
}
