// Package syncer drains the offline operation queue against the backend
// when connectivity allows. It owns the connectivity/syncing state machine:
//
//	Offline ──connectivity restored, queue non-empty──▶ Draining
//	Idle    ──manual trigger, queue non-empty────────▶ Draining
//	any     ──connectivity lost──────────────────────▶ Offline
//	Draining──queue empty or halt────────────────────▶ Idle / Offline
//
// Operations are processed strictly in queue order, one at a time: later
// operations may reference identifiers produced by earlier ones, so the
// drain never runs in parallel and never skips ahead past a retryable
// failure.
package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/timegrid/internal/client/api"
	"github.com/dmitrijs2005/timegrid/internal/client/kv"
	"github.com/dmitrijs2005/timegrid/internal/client/merge"
	"github.com/dmitrijs2005/timegrid/internal/client/models"
	"github.com/dmitrijs2005/timegrid/internal/client/queue"
	"github.com/dmitrijs2005/timegrid/internal/client/status"
	"github.com/dmitrijs2005/timegrid/internal/common"
	"github.com/dmitrijs2005/timegrid/internal/logging"
)

// State is the engine's position in the sync state machine.
type State string

const (
	StateOffline  State = "offline"
	StateIdle     State = "idle"
	StateDraining State = "draining"
)

// Config tunes the drain policy.
type Config struct {
	// DrainDelay is the pause after each successful operation, so a long
	// queue does not burst a rate-limited backend.
	DrainDelay time.Duration
	// RateLimitCooldown is how long after an HTTP 429 the next drain may
	// start. Distinct from the generic halt-and-retrigger path.
	RateLimitCooldown time.Duration
	// MaxAttempts bounds retries of a server-erroring operation before it
	// is abandoned (marked failed, still visible, manual intervention).
	MaxAttempts int
}

// DefaultConfig mirrors the drain policy constants of the original client.
func DefaultConfig() Config {
	return Config{
		DrainDelay:        100 * time.Millisecond,
		RateLimitCooldown: 30 * time.Second,
		MaxAttempts:       5,
	}
}

// Engine owns the queue drain. Construct one per client and thread it
// through call sites; there is deliberately no package-level instance.
type Engine struct {
	cfg         Config
	store       kv.Store
	api         api.Client
	queue       *queue.Queue
	broadcaster *status.Broadcaster
	log         logging.Logger

	// onAuthError is invoked when a drain hits an authentication failure,
	// typically to invalidate the cached session. Optional.
	onAuthError func(ctx context.Context)

	mu            sync.Mutex
	online        bool
	syncing       bool
	lastSync      *time.Time
	cooldownUntil time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

// Option mutates an Engine during construction.
type Option func(*Engine)

// WithAuthErrorHook installs the session-invalidation callback.
func WithAuthErrorHook(fn func(ctx context.Context)) Option {
	return func(e *Engine) { e.onAuthError = fn }
}

// WithClock substitutes the time source (testing hook).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSleep substitutes the inter-operation delay (testing hook).
func WithSleep(fn func(ctx context.Context, d time.Duration)) Option {
	return func(e *Engine) { e.sleep = fn }
}

// NewEngine builds an engine over the shared store. The queue must be
// backed by the same store: success and cleanup paths rewrite the queue and
// merge layers in a single store transaction.
func NewEngine(cfg Config, store kv.Store, apiClient api.Client, q *queue.Queue, b *status.Broadcaster, log logging.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:         cfg,
		store:       store,
		api:         apiClient,
		queue:       q,
		broadcaster: b,
		log:         log,
		now:         time.Now,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// State reports the engine's current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.syncing:
		return StateDraining
	case e.online:
		return StateIdle
	default:
		return StateOffline
	}
}

// Online reports the last known connectivity.
func (e *Engine) Online() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.online
}

// SetOnline feeds the advisory connectivity signal. Restoring connectivity
// with a non-empty queue starts a drain; losing it moves the engine to
// Offline (an in-flight drain notices before its next operation).
func (e *Engine) SetOnline(ctx context.Context, online bool) {
	e.mu.Lock()
	changed := e.online != online
	e.online = online
	e.mu.Unlock()

	if !changed {
		return
	}

	e.publishStatus(ctx)

	if online {
		if size, err := e.queue.Size(ctx); err == nil && size > 0 {
			if err := e.Sync(ctx); err != nil {
				e.log.Warn(ctx, "drain after reconnect failed", "error", err)
			}
		}
	}
}

// StartWatcher probes the backend on the given interval and feeds the
// result into SetOnline, until ctx is cancelled.
func (e *Engine) StartWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := e.api.Ping(probeCtx)
			cancel()
			e.SetOnline(ctx, err == nil)
		case <-ctx.Done():
			return
		}
	}
}

// Sync triggers a drain. Concurrent triggers collapse to the single
// in-flight drain: a second call while draining returns immediately. While
// offline, or during a rate-limit cooldown, the call is a no-op.
func (e *Engine) Sync(ctx context.Context) error {
	e.mu.Lock()
	if e.syncing || !e.online {
		e.mu.Unlock()
		return nil
	}
	if e.now().Before(e.cooldownUntil) {
		e.mu.Unlock()
		e.log.Debug(ctx, "drain skipped, rate-limit cooldown active")
		return nil
	}
	e.syncing = true
	e.mu.Unlock()

	e.publishStatus(ctx)
	err := e.drain(ctx)

	e.mu.Lock()
	e.syncing = false
	e.mu.Unlock()

	e.publishStatus(ctx)
	return err
}

// PendingOperations lists the queue in sync order, abandoned operations
// included.
func (e *Engine) PendingOperations(ctx context.Context) ([]models.QueuedOperation, error) {
	return e.queue.PeekAll(ctx)
}

// RetryFailed puts an abandoned operation back into rotation and resets its
// attempt counter.
func (e *Engine) RetryFailed(ctx context.Context, operationID string) error {
	if err := e.queue.RetryFailed(ctx, operationID); err != nil {
		return err
	}
	e.publishStatus(ctx)
	return nil
}

// drain processes operations strictly in queue order, one at a time.
func (e *Engine) drain(ctx context.Context) error {
	for {
		if !e.Online() {
			// connectivity lost mid-drain: leave the remainder queued
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		ops, err := e.queue.PeekAll(ctx)
		if err != nil {
			return err
		}

		op, ok := nextRunnable(ops)
		if !ok {
			e.markSynced(ctx)
			return nil
		}

		halt, err := e.processOne(ctx, op)
		if err != nil {
			return err
		}
		if halt {
			return nil
		}
	}
}

// nextRunnable returns the first operation not abandoned by a previous
// drain. Failed operations stay visible but no longer block the queue.
func nextRunnable(ops []models.QueuedOperation) (models.QueuedOperation, bool) {
	for _, op := range ops {
		if !op.Failed {
			return op, true
		}
	}
	return models.QueuedOperation{}, false
}

// processOne executes a single operation and applies the failure taxonomy.
// The returned halt flag stops the drain without error; err reports
// store-level problems only.
func (e *Engine) processOne(ctx context.Context, op models.QueuedOperation) (halt bool, err error) {
	record, callErr := e.execute(ctx, op)

	if callErr == nil {
		if err := e.confirm(ctx, op, record); err != nil {
			return true, err
		}
		e.publishStatus(ctx)
		e.sleep(ctx, e.cfg.DrainDelay)
		return false, nil
	}

	switch {
	case errors.Is(callErr, common.ErrValidation):
		// baked into the payload; retrying can never succeed
		e.log.Warn(ctx, "dropping invalid operation", "op", op.ID, "entity_type", op.EntityType, "error", callErr)
		err := e.store.Update(ctx, func(tx kv.Store) error {
			if err := queue.New(tx).Remove(ctx, op.ID); err != nil {
				return err
			}
			return merge.NewStore(tx).Discard(ctx, op.EntityType, op.ID)
		})
		if err != nil {
			return true, err
		}
		e.publishStatus(ctx)
		return false, nil

	case errors.Is(callErr, common.ErrRateLimited):
		// throttling reflects backend load, not a fault of the operation:
		// it stays queued untouched and consumes no retry budget
		e.log.Warn(ctx, "backend rate limited, cooling down", "op", op.ID)
		e.mu.Lock()
		e.cooldownUntil = e.now().Add(e.cfg.RateLimitCooldown)
		e.mu.Unlock()
		return true, nil

	case errors.Is(callErr, common.ErrUnauthorized):
		e.log.Warn(ctx, "authentication rejected during drain", "op", op.ID)
		if e.onAuthError != nil {
			e.onAuthError(ctx)
		}
		return true, nil

	case errors.Is(callErr, common.ErrServer):
		if err := e.queue.MarkRetried(ctx, op.ID); err != nil {
			return true, err
		}
		if op.RetryCount+1 >= e.cfg.MaxAttempts {
			e.log.Error(ctx, "abandoning operation after repeated server errors",
				"op", op.ID, "attempts", op.RetryCount+1)
			if err := e.queue.MarkFailed(ctx, op.ID); err != nil {
				return true, err
			}
			e.publishStatus(ctx)
			// abandoned; subsequent operations are no longer blocked
			return false, nil
		}
		return true, nil

	default:
		// network failure, or anything unclassified: authoritative over the
		// advisory connectivity signal
		e.log.Info(ctx, "drain halted by network failure", "op", op.ID, "error", callErr)
		if err := e.queue.MarkRetried(ctx, op.ID); err != nil {
			return true, err
		}
		e.SetOnline(ctx, false)
		return true, nil
	}
}

// execute performs the backend call for one operation.
func (e *Engine) execute(ctx context.Context, op models.QueuedOperation) (record []byte, err error) {
	switch op.Kind {
	case models.OpAdd:
		return e.api.CreateEntity(ctx, op.EntityType, op.Payload)
	case models.OpUpdate:
		return e.api.UpdateEntity(ctx, op.EntityType, op.EntityID, op.Payload)
	case models.OpDelete:
		return nil, e.api.DeleteEntity(ctx, op.EntityType, op.EntityID)
	default:
		return nil, common.ErrValidation
	}
}

// confirm applies the success path in one store transaction: identifier
// substitution in the merge layer and queue removal commit together. A crash
// or write failure between the two would otherwise leave the operation
// queued next to its already-substituted record, and the re-drain would
// duplicate the entity.
func (e *Engine) confirm(ctx context.Context, op models.QueuedOperation, record []byte) error {
	return e.store.Update(ctx, func(tx kv.Store) error {
		m := merge.NewStore(tx)
		if op.Kind == models.OpDelete && op.EntityID != "" {
			if err := m.RemoveSnapshotRecord(ctx, op.EntityType, op.EntityID); err != nil {
				return err
			}
		}
		if err := m.Confirm(ctx, op.EntityType, op.ID, record); err != nil {
			return err
		}
		return queue.New(tx).Remove(ctx, op.ID)
	})
}

func (e *Engine) markSynced(ctx context.Context) {
	now := e.now().UTC()
	e.mu.Lock()
	e.lastSync = &now
	e.mu.Unlock()
	e.log.Debug(ctx, "queue drained", "at", now)
}

// publishStatus recomputes and broadcasts the derived status snapshot.
func (e *Engine) publishStatus(ctx context.Context) {
	size, err := e.queue.Size(ctx)
	if err != nil {
		e.log.Warn(ctx, "failed to read queue size for status", "error", err)
	}

	e.mu.Lock()
	snapshot := models.SyncStatus{
		Status:    models.StateOffline,
		Syncing:   e.syncing,
		QueueSize: size,
		LastSync:  e.lastSync,
	}
	if e.online {
		snapshot.Status = models.StateOnline
	}
	e.mu.Unlock()

	e.broadcaster.Publish(snapshot)
}
