package merge

import (
	"sort"

	"github.com/dmitrijs2005/timegrid/internal/client/models"
)

// EventState is the merged calendar state built from multiple sources.
// Sources are applied in the order they first delivered events; within that
// order, upsert-by-identifier applies with last write wins, so the merged
// result does not depend on when individual fetches completed.
type EventState struct {
	order   []string
	sources map[string][]models.CalendarEvent
}

// EventAction is the sum type of state transitions. The two variants are
// EventsFetched and SourceRemoved; the type is sealed via the unexported
// marker method.
type EventAction interface {
	isEventAction()
}

// EventsFetched replaces the event list of one source.
type EventsFetched struct {
	SourceID string
	Events   []models.CalendarEvent
}

// SourceRemoved drops a source and all of its events.
type SourceRemoved struct {
	SourceID string
}

func (EventsFetched) isEventAction() {}
func (SourceRemoved) isEventAction() {}

// NewEventState returns an empty state.
func NewEventState() EventState {
	return EventState{sources: map[string][]models.CalendarEvent{}}
}

// Apply is the pure transition function: it returns a new state and never
// mutates its input, so callers may retain old states freely.
func Apply(state EventState, action EventAction) EventState {
	next := EventState{
		order:   make([]string, 0, len(state.order)),
		sources: make(map[string][]models.CalendarEvent, len(state.sources)),
	}
	next.order = append(next.order, state.order...)
	for id, events := range state.sources {
		next.sources[id] = events
	}

	switch a := action.(type) {
	case EventsFetched:
		if _, known := next.sources[a.SourceID]; !known {
			next.order = append(next.order, a.SourceID)
		}
		next.sources[a.SourceID] = a.Events
	case SourceRemoved:
		delete(next.sources, a.SourceID)
		kept := next.order[:0]
		for _, id := range next.order {
			if id != a.SourceID {
				kept = append(kept, id)
			}
		}
		next.order = kept
	}

	return next
}

// Merged flattens the state into one collection: each source's events are
// upserted by identifier in source order, last write per identifier wins.
func (s EventState) Merged() []models.CalendarEvent {
	byID := make(map[string]models.CalendarEvent)
	var ids []string

	for _, sourceID := range s.order {
		for _, event := range s.sources[sourceID] {
			if _, known := byID[event.ID]; !known {
				ids = append(ids, event.ID)
			}
			byID[event.ID] = event
		}
	}

	result := make([]models.CalendarEvent, 0, len(ids))
	for _, id := range ids {
		result = append(result, byID[id])
	}
	return result
}

// SortEvents orders events for display: start time ascending, ties broken
// by preferring locally-owned records over feed-sourced ones, then by
// identifier. Sorting is deliberately a separate step from merging.
func SortEvents(events []models.CalendarEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if a.Local != b.Local {
			return a.Local
		}
		return a.ID < b.ID
	})
}
