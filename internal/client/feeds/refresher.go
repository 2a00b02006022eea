package feeds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/timegrid/internal/client/kv"
	"github.com/dmitrijs2005/timegrid/internal/client/merge"
	"github.com/dmitrijs2005/timegrid/internal/client/models"
	"github.com/dmitrijs2005/timegrid/internal/common"
	"github.com/dmitrijs2005/timegrid/internal/logging"
)

func eventsKey(sourceID string) string { return "events:" + sourceID }

// Refresher owns one periodic fetch task per calendar source. Removing a
// source cancels its task explicitly (a stale timer for a removed source
// must never fire again) and drops its events from the merged state.
//
// Refreshers run concurrently with queue drains without coordination: they
// only touch the events:* key namespace.
type Refresher struct {
	fetcher  Fetcher
	store    kv.Store
	log      logging.Logger
	interval time.Duration

	mu      sync.Mutex
	state   merge.EventState
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func NewRefresher(fetcher Fetcher, store kv.Store, log logging.Logger, interval time.Duration) *Refresher {
	return &Refresher{
		fetcher:  fetcher,
		store:    store,
		log:      log,
		interval: interval,
		state:    merge.NewEventState(),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// AddSource registers the source, seeds its events from the local cache if
// present, performs one immediate fetch, and schedules periodic refreshes
// until the source is removed or ctx is cancelled.
func (r *Refresher) AddSource(ctx context.Context, source models.CalendarSource) error {
	r.mu.Lock()
	if _, exists := r.cancels[source.ID]; exists {
		r.mu.Unlock()
		return fmt.Errorf("source %s already registered", source.ID)
	}
	taskCtx, cancel := context.WithCancel(ctx)
	r.cancels[source.ID] = cancel
	r.mu.Unlock()

	if cached, err := r.loadCached(ctx, source.ID); err == nil && cached != nil {
		r.apply(merge.EventsFetched{SourceID: source.ID, Events: cached})
	}

	r.refreshOnce(ctx, source)

	r.wg.Add(1)
	go r.run(taskCtx, source)
	return nil
}

// RemoveSource cancels the source's periodic task and drops its events.
// Unknown sources are a no-op.
func (r *Refresher) RemoveSource(ctx context.Context, sourceID string) {
	r.mu.Lock()
	cancel, ok := r.cancels[sourceID]
	if ok {
		delete(r.cancels, sourceID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	cancel()

	r.apply(merge.SourceRemoved{SourceID: sourceID})
	if err := r.store.Delete(ctx, eventsKey(sourceID)); err != nil {
		r.log.Warn(ctx, "failed to drop cached events", "source", sourceID, "error", err)
	}
}

// Close cancels every task and waits for them to stop.
func (r *Refresher) Close() {
	r.mu.Lock()
	for id, cancel := range r.cancels {
		cancel()
		delete(r.cancels, id)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

// Events returns the merged, display-sorted event collection.
func (r *Refresher) Events() []models.CalendarEvent {
	r.mu.Lock()
	merged := r.state.Merged()
	r.mu.Unlock()

	merge.SortEvents(merged)
	return merged
}

func (r *Refresher) run(ctx context.Context, source models.CalendarSource) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.refreshOnce(ctx, source)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Refresher) refreshOnce(ctx context.Context, source models.CalendarSource) {
	events, err := r.fetcher.Fetch(ctx, source)
	if err != nil {
		// keep the previous events; offline degradation, not an error state
		r.log.Info(ctx, "feed refresh failed, keeping cached events", "source", source.ID, "error", err)
		return
	}

	// the source may have been removed while the fetch was in flight; its
	// result must not resurrect the merged events or the cache entry. The
	// lock is held through the cache write so a concurrent RemoveSource
	// cleans up strictly before or strictly after the whole refresh.
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, active := r.cancels[source.ID]; !active {
		return
	}

	r.state = merge.Apply(r.state, merge.EventsFetched{SourceID: source.ID, Events: events})

	if err := r.saveCached(ctx, source.ID, events); err != nil {
		r.log.Warn(ctx, "failed to cache events", "source", source.ID, "error", err)
	}
}

func (r *Refresher) apply(action merge.EventAction) {
	r.mu.Lock()
	r.state = merge.Apply(r.state, action)
	r.mu.Unlock()
}

func (r *Refresher) loadCached(ctx context.Context, sourceID string) ([]models.CalendarEvent, error) {
	data, err := r.store.Get(ctx, eventsKey(sourceID))
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var events []models.CalendarEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("failed to decode cached events: %w", err)
	}
	return events, nil
}

func (r *Refresher) saveCached(ctx context.Context, sourceID string, events []models.CalendarEvent) error {
	data, err := json.Marshal(events)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, eventsKey(sourceID), data)
}
