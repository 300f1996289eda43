// Package cache persists the last successfully fetched event list.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/api/calendar/v3"

	"github.com/beekhof/mirror-agenda/internal/logging"
	"github.com/beekhof/mirror-agenda/internal/store"
)

// EventsKey is the slot the snapshot is persisted under.
const EventsKey = "calendar_events_cache"

// EventCache stores the snapshot verbatim, in the provider's own event shape.
// There is no expiry: a snapshot is only replaced by a newer successful fetch.
type EventCache struct {
	slots  store.Store
	logger zerolog.Logger
}

func New(slots store.Store, logger zerolog.Logger) *EventCache {
	return &EventCache{
		slots:  slots,
		logger: logging.Component(logger, "event-cache"),
	}
}

// Get returns the cached events and true, or nil and false when nothing
// usable is cached. An empty list is a valid snapshot. Malformed data clears
// the slot.
func (c *EventCache) Get() ([]*calendar.Event, bool) {
	data, err := c.slots.Get(EventsKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn().Err(err).Msg("event cache unreadable, ignoring it")
		return nil, false
	}

	var events []*calendar.Event
	if err := json.Unmarshal(data, &events); err != nil {
		c.logger.Warn().Err(err).Msg("discarding malformed event cache")
		if err := c.slots.Delete(EventsKey); err != nil {
			c.logger.Error().Err(err).Msg("failed to clear malformed event cache")
		}
		return nil, false
	}
	if events == nil {
		events = []*calendar.Event{}
	}
	return events, true
}

// Set replaces the snapshot with events.
func (c *EventCache) Set(events []*calendar.Event) error {
	if events == nil {
		events = []*calendar.Event{}
	}
	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}
	if err := c.slots.Put(EventsKey, data); err != nil {
		return fmt.Errorf("failed to save event cache: %w", err)
	}
	return nil
}
