package feeds

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/timegrid/internal/client/kv"
	"github.com/dmitrijs2005/timegrid/internal/client/models"
	"github.com/dmitrijs2005/timegrid/internal/common"
	"github.com/dmitrijs2005/timegrid/internal/logging"
	"github.com/stretchr/testify/require"
)

// fakeFetcher serves canned events and counts fetches per source.
type fakeFetcher struct {
	mu     sync.Mutex
	events map[string][]models.CalendarEvent
	errs   map[string]error
	counts map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		events: make(map[string][]models.CalendarEvent),
		errs:   make(map[string]error),
		counts: make(map[string]int),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, source models.CalendarSource) ([]models.CalendarEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[source.ID]++
	if err := f.errs[source.ID]; err != nil {
		return nil, err
	}
	return f.events[source.ID], nil
}

func (f *fakeFetcher) count(sourceID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[sourceID]
}

func source(id string) models.CalendarSource {
	return models.CalendarSource{ID: id, Name: id, URL: "https://calendar.example.com/" + id + ".ics"}
}

func TestRefresher_ImmediateFetchOnAdd(t *testing.T) {
	ctx := context.Background()
	fetcher := newFakeFetcher()
	fetcher.events["work"] = []models.CalendarEvent{
		{ID: "e-1", SourceID: "work", Title: "Standup", Start: time.Now()},
	}

	r := NewRefresher(fetcher, kv.NewMemoryStore(), logging.NewNopLogger(), time.Hour)
	defer r.Close()

	require.NoError(t, r.AddSource(ctx, source("work")))

	require.Equal(t, 1, fetcher.count("work"))
	events := r.Events()
	require.Len(t, events, 1)
	require.Equal(t, "Standup", events[0].Title)
}

func TestRefresher_DuplicateAddRejected(t *testing.T) {
	ctx := context.Background()
	r := NewRefresher(newFakeFetcher(), kv.NewMemoryStore(), logging.NewNopLogger(), time.Hour)
	defer r.Close()

	require.NoError(t, r.AddSource(ctx, source("work")))
	require.Error(t, r.AddSource(ctx, source("work")))
}

func TestRefresher_RemoveCancelsTimerAndDropsEvents(t *testing.T) {
	ctx := context.Background()
	fetcher := newFakeFetcher()
	fetcher.events["work"] = []models.CalendarEvent{{ID: "e-1", SourceID: "work", Title: "Standup"}}

	r := NewRefresher(fetcher, kv.NewMemoryStore(), logging.NewNopLogger(), 10*time.Millisecond)
	defer r.Close()

	require.NoError(t, r.AddSource(ctx, source("work")))
	require.NotEmpty(t, r.Events())

	r.RemoveSource(ctx, "work")
	require.Empty(t, r.Events(), "removed source's events must disappear")

	// no further refresh attempts once the task is cancelled
	settled := fetcher.count("work")
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, settled, fetcher.count("work"), "timer must not fire after removal")

	// removing an unknown source is a no-op
	r.RemoveSource(ctx, "work")
}

// blockingFetcher parks every fetch until released.
type blockingFetcher struct {
	started chan struct{}
	release chan struct{}
	events  []models.CalendarEvent
}

func (f *blockingFetcher) Fetch(ctx context.Context, source models.CalendarSource) ([]models.CalendarEvent, error) {
	f.started <- struct{}{}
	<-f.release
	return f.events, nil
}

func TestRefresher_RemoveDuringInFlightFetchDiscardsResult(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	fetcher := &blockingFetcher{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
		events:  []models.CalendarEvent{{ID: "e-1", SourceID: "work", Title: "Standup"}},
	}

	r := NewRefresher(fetcher, store, logging.NewNopLogger(), time.Hour)
	defer r.Close()

	added := make(chan error, 1)
	go func() { added <- r.AddSource(ctx, source("work")) }()

	// remove the source while its first fetch is still in flight
	<-fetcher.started
	r.RemoveSource(ctx, "work")
	close(fetcher.release)
	require.NoError(t, <-added)

	require.Empty(t, r.Events(), "a fetch finishing after removal must not restore events")
	_, err := store.Get(ctx, "events:work")
	require.ErrorIs(t, err, common.ErrNotFound, "removal must leave no cached events behind")
}

func TestRefresher_PeriodicRefreshRuns(t *testing.T) {
	ctx := context.Background()
	fetcher := newFakeFetcher()

	r := NewRefresher(fetcher, kv.NewMemoryStore(), logging.NewNopLogger(), 5*time.Millisecond)
	defer r.Close()

	require.NoError(t, r.AddSource(ctx, source("work")))

	require.Eventually(t, func() bool {
		return fetcher.count("work") >= 3
	}, time.Second, time.Millisecond)
}

func TestRefresher_FetchFailureKeepsCachedEvents(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()

	fetcher := newFakeFetcher()
	fetcher.events["work"] = []models.CalendarEvent{{ID: "e-1", SourceID: "work", Title: "Standup"}}

	// first refresher populates the cache
	r := NewRefresher(fetcher, store, logging.NewNopLogger(), time.Hour)
	require.NoError(t, r.AddSource(ctx, source("work")))
	r.Close()

	// second refresher starts while the feed is unreachable: the cached
	// events still show
	fetcher.errs["work"] = errors.New("dns failure")
	r2 := NewRefresher(fetcher, store, logging.NewNopLogger(), time.Hour)
	defer r2.Close()
	require.NoError(t, r2.AddSource(ctx, source("work")))

	events := r2.Events()
	require.Len(t, events, 1)
	require.Equal(t, "Standup", events[0].Title)
}

func TestHTTPFetcher_ParsesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "BEGIN:VCALENDAR")
	}))
	defer srv.Close()

	f := NewHTTPFetcher(func(sourceID string, body []byte) ([]models.CalendarEvent, error) {
		require.Equal(t, "BEGIN:VCALENDAR", string(body))
		return []models.CalendarEvent{{ID: "e-1", SourceID: sourceID}}, nil
	})

	events, err := f.Fetch(context.Background(), models.CalendarSource{ID: "s", URL: srv.URL})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "s", events[0].SourceID)
}

func TestHTTPFetcher_RetriesTransientFailures(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	f := NewHTTPFetcher(func(sourceID string, body []byte) ([]models.CalendarEvent, error) {
		return nil, nil
	})

	_, err := f.Fetch(context.Background(), models.CalendarSource{ID: "s", URL: srv.URL})
	require.NoError(t, err)
	require.GreaterOrEqual(t, attempts.Load(), int32(3))
}

func TestHTTPFetcher_PermanentFailureNotRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(func(sourceID string, body []byte) ([]models.CalendarEvent, error) {
		return nil, nil
	})

	_, err := f.Fetch(context.Background(), models.CalendarSource{ID: "s", URL: srv.URL})
	require.Error(t, err)
	require.Equal(t, int32(1), attempts.Load())
}
