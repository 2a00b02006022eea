// Package status publishes sync state snapshots to interested observers
// (CLI, other components). There is a single current snapshot and no replay:
// a late subscriber sees the current state immediately and every change from
// that point on, nothing earlier.
package status

import (
	"sync"

	"github.com/dmitrijs2005/timegrid/internal/client/models"
)

// Broadcaster is a publish-subscribe hub for SyncStatus snapshots.
type Broadcaster struct {
	mu      sync.Mutex
	nextID  int
	subs    map[int]func(models.SyncStatus)
	current models.SyncStatus
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs:    make(map[int]func(models.SyncStatus)),
		current: models.SyncStatus{Status: models.StateOffline},
	}
}

// Subscribe registers fn and invokes it immediately with the latest
// snapshot. Registration and the initial delivery share the hub lock, so a
// concurrent Publish cannot hand fn a newer snapshot before the initial one;
// fn must not call back into the Broadcaster during that first invocation.
// The returned function cancels the subscription; calling it more than once
// is harmless.
func (b *Broadcaster) Subscribe(fn func(models.SyncStatus)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	fn(b.current)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish replaces the current snapshot and notifies all subscribers.
func (b *Broadcaster) Publish(s models.SyncStatus) {
	b.mu.Lock()
	b.current = s
	fns := make([]func(models.SyncStatus), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	// callbacks run outside the lock so a subscriber may re-enter
	for _, fn := range fns {
		fn(s)
	}
}

// Latest returns the current snapshot.
func (b *Broadcaster) Latest() models.SyncStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}
