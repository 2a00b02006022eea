package merge

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/timegrid/internal/client/models"
	"github.com/stretchr/testify/require"
)

func event(id, sourceID string, start time.Time) models.CalendarEvent {
	return models.CalendarEvent{ID: id, SourceID: sourceID, Title: id, Start: start}
}

func TestApply_UpsertLastWriteWins(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	state := NewEventState()
	state = Apply(state, EventsFetched{SourceID: "A", Events: []models.CalendarEvent{
		event("e-1", "A", base),
		event("e-2", "A", base.Add(time.Hour)),
	}})
	state = Apply(state, EventsFetched{SourceID: "B", Events: []models.CalendarEvent{
		{ID: "e-2", SourceID: "B", Title: "overridden", Start: base.Add(2 * time.Hour)},
		event("e-3", "B", base.Add(3*time.Hour)),
	}})

	merged := state.Merged()
	require.Len(t, merged, 3, "distinct identifiers equal |A ∪ B|")

	byID := make(map[string]models.CalendarEvent)
	for _, e := range merged {
		byID[e.ID] = e
	}
	require.Equal(t, "overridden", byID["e-2"].Title, "B applied after A wins for the shared identifier")
	require.Equal(t, "B", byID["e-2"].SourceID)
}

func TestApply_RefetchReplacesSourceEvents(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	state := NewEventState()
	state = Apply(state, EventsFetched{SourceID: "A", Events: []models.CalendarEvent{
		event("e-1", "A", base),
		event("e-2", "A", base),
	}})
	// second fetch of the same source: e-2 disappeared upstream
	state = Apply(state, EventsFetched{SourceID: "A", Events: []models.CalendarEvent{
		event("e-1", "A", base),
	}})

	merged := state.Merged()
	require.Len(t, merged, 1)
	require.Equal(t, "e-1", merged[0].ID)
}

func TestApply_SourceRemovedDropsItsEvents(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	state := NewEventState()
	state = Apply(state, EventsFetched{SourceID: "A", Events: []models.CalendarEvent{event("e-1", "A", base)}})
	state = Apply(state, EventsFetched{SourceID: "B", Events: []models.CalendarEvent{event("e-2", "B", base)}})
	state = Apply(state, SourceRemoved{SourceID: "A"})

	merged := state.Merged()
	require.Len(t, merged, 1)
	require.Equal(t, "e-2", merged[0].ID)
}

func TestApply_IsPure(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	before := NewEventState()
	before = Apply(before, EventsFetched{SourceID: "A", Events: []models.CalendarEvent{event("e-1", "A", base)}})

	_ = Apply(before, SourceRemoved{SourceID: "A"})

	require.Len(t, before.Merged(), 1, "applying an action must not mutate the input state")
}

func TestMerged_IndependentOfFetchCompletionOrder(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	eventsA := []models.CalendarEvent{event("shared", "A", base)}
	eventsB := []models.CalendarEvent{{ID: "shared", SourceID: "B", Title: "from B", Start: base}}

	// A registered before B; refreshes then complete in either order
	s1 := NewEventState()
	s1 = Apply(s1, EventsFetched{SourceID: "A", Events: nil})
	s1 = Apply(s1, EventsFetched{SourceID: "B", Events: nil})
	s1 = Apply(s1, EventsFetched{SourceID: "B", Events: eventsB})
	s1 = Apply(s1, EventsFetched{SourceID: "A", Events: eventsA})

	s2 := NewEventState()
	s2 = Apply(s2, EventsFetched{SourceID: "A", Events: nil})
	s2 = Apply(s2, EventsFetched{SourceID: "B", Events: nil})
	s2 = Apply(s2, EventsFetched{SourceID: "A", Events: eventsA})
	s2 = Apply(s2, EventsFetched{SourceID: "B", Events: eventsB})

	m1, m2 := s1.Merged(), s2.Merged()
	require.Equal(t, m1, m2, "merge depends on source order, not fetch completion order")
	require.Equal(t, "from B", m1[0].Title)
}

func TestSortEvents(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	events := []models.CalendarEvent{
		{ID: "z", Start: base.Add(time.Hour)},
		{ID: "b", Start: base, Local: false},
		{ID: "a", Start: base, Local: false},
		{ID: "m", Start: base, Local: true},
	}
	SortEvents(events)

	var ids []string
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	// start ascending; on ties local first, then identifier
	require.Equal(t, []string{"m", "a", "b", "z"}, ids)
}
