package sync

import (
	"fmt"
	"time"

	"github.com/beekhof/mirror-agenda/internal/agenda"
)

// Trigger names what started a sync.
type Trigger string

const (
	TriggerInitialLoad Trigger = "initial-load"
	TriggerPeriodic    Trigger = "periodic-timer"
	TriggerManual      Trigger = "manual-refresh"
	TriggerOnline      Trigger = "network-online"
	TriggerOffline     Trigger = "network-offline"
	TriggerSignIn      Trigger = "sign-in"
	TriggerSignOut     Trigger = "sign-out"
)

// ParseTrigger accepts the trigger names above.
func ParseTrigger(s string) (Trigger, error) {
	switch t := Trigger(s); t {
	case TriggerInitialLoad, TriggerPeriodic, TriggerManual, TriggerOnline, TriggerOffline:
		return t, nil
	}
	return "", fmt.Errorf("unknown trigger %q", s)
}

// State is where the controller was left by its most recent sync step.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateSuccess
	StateAuthFailed
	StateTransportFailed
	StateOffline
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateSuccess:
		return "success"
	case StateAuthFailed:
		return "auth-failed"
	case StateTransportFailed:
		return "transport-failed"
	case StateOffline:
		return "offline"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Source is where the displayed events came from.
type Source string

const (
	SourceLive  Source = "live"
	SourceCache Source = "cache"
)

// Notice asks the renderer for a status line instead of the usual empty
// message.
type Notice string

const (
	NoticeNone Notice = ""
	// NoticeSignIn: signed out and nothing cached.
	NoticeSignIn Notice = "sign-in"
	// NoticeUnavailable: signed in but neither a fetch nor the cache produced data.
	NoticeUnavailable Notice = "unavailable"
)

// Display is one rendered outcome of a sync.
type Display struct {
	agenda.Selection

	Source   Source
	Notice   Notice
	SignedIn bool
	// HasData is false when there were neither live nor cached events.
	HasData bool

	State       State
	Trigger     Trigger
	GeneratedAt time.Time
}
