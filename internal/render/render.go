// Package render turns sync displays into something a person can read.
package render

import (
	"fmt"
	"io"
	"strings"
	gosync "sync"

	"github.com/rs/zerolog"

	"github.com/beekhof/mirror-agenda/internal/logging"
	"github.com/beekhof/mirror-agenda/internal/sync"
)

const (
	signedOutHeading = "Calendar"

	msgSignIn        = "Sign in to see your schedule."
	msgUnavailable   = "Unable to load calendar. No cached events available."
	msgNoCached      = "No cached events."
	msgNoRelCached   = "No relevant cached events."
	msgNoUpcoming    = "No upcoming events."
	msgNoRelUpcoming = "No relevant upcoming events."

	// CachedFooter is appended when cached events are on screen.
	CachedFooter = "(Showing cached data)"
)

// Heading is the title line for d.
func Heading(d sync.Display) string {
	if d.Notice == sync.NoticeSignIn {
		return signedOutHeading
	}
	return string(d.Title)
}

// Message is the status line shown instead of items, or "" when there are
// items to show.
func Message(d sync.Display) string {
	switch d.Notice {
	case sync.NoticeSignIn:
		return msgSignIn
	case sync.NoticeUnavailable:
		return msgUnavailable
	}
	if !d.Empty() {
		return ""
	}
	if d.Source == sync.SourceCache {
		if d.Total > 0 {
			return msgNoRelCached
		}
		return msgNoCached
	}
	if d.Total > 0 {
		return msgNoRelUpcoming
	}
	return msgNoUpcoming
}

// Footer is the trailing provenance line, or "".
func Footer(d sync.Display) string {
	if d.Source == sync.SourceCache && !d.Empty() {
		return CachedFooter
	}
	return ""
}

// Text writes each display as plain text.
type Text struct {
	mu gosync.Mutex
	w  io.Writer
}

func NewText(w io.Writer) *Text {
	return &Text{w: w}
}

func (t *Text) Render(d sync.Display) {
	t.mu.Lock()
	defer t.mu.Unlock()
	io.WriteString(t.w, Format(d))
}

// Format renders d as the multi-line text block Text writes.
func Format(d sync.Display) string {
	var b strings.Builder
	fmt.Fprintln(&b, Heading(d))
	if msg := Message(d); msg != "" {
		fmt.Fprintf(&b, "  %s\n", msg)
	}
	for _, it := range d.Items {
		fmt.Fprintf(&b, "  %-24s %s\n", it.Label, it.Summary)
	}
	if footer := Footer(d); footer != "" {
		fmt.Fprintf(&b, "  %s\n", footer)
	}
	return b.String()
}

// Log writes a one-line summary of each display to a logger.
type Log struct {
	logger zerolog.Logger
}

func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logging.Component(logger, "render")}
}

func (l *Log) Render(d sync.Display) {
	ev := l.logger.Debug().
		Str("heading", Heading(d)).
		Str("source", string(d.Source)).
		Int("items", len(d.Items)).
		Bool("has_data", d.HasData)
	if msg := Message(d); msg != "" {
		ev = ev.Str("message", msg)
	}
	ev.Msg("agenda rendered")
}

// Fanout forwards every display to several renderers in order.
type Fanout []sync.Renderer

func (f Fanout) Render(d sync.Display) {
	for _, r := range f {
		r.Render(d)
	}
}
