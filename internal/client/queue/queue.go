// Package queue implements the persisted, ordered log of pending offline
// mutations. The whole list is rewritten on every mutating call: the queue
// is small, and a single-key rewrite is atomic at the store level, so a
// crash can never leave a torn record behind.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/timegrid/internal/client/kv"
	"github.com/dmitrijs2005/timegrid/internal/client/models"
	"github.com/dmitrijs2005/timegrid/internal/common"
	"github.com/google/uuid"
)

const storeKey = "queue:operations"

// Queue is the ordered operation log. All methods are safe for use from a
// single writer; the sync engine is the only component that mutates it
// besides the enqueue path.
type Queue struct {
	store kv.Store
}

func New(store kv.Store) *Queue {
	return &Queue{store: store}
}

func (q *Queue) load(ctx context.Context) ([]models.QueuedOperation, error) {
	data, err := q.store.Get(ctx, storeKey)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load queue: %w", err)
	}

	var ops []models.QueuedOperation
	if err := json.Unmarshal(data, &ops); err != nil {
		return nil, fmt.Errorf("failed to decode queue: %w", err)
	}
	return ops, nil
}

func (q *Queue) save(ctx context.Context, ops []models.QueuedOperation) error {
	data, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("failed to encode queue: %w", err)
	}
	if err := q.store.Set(ctx, storeKey, data); err != nil {
		return fmt.Errorf("failed to persist queue: %w", err)
	}
	return nil
}

// Enqueue appends an operation to the end of the queue and returns its id.
// EntityID is required for update/delete operations; it is empty for adds
// (the server assigns the identifier on sync).
func (q *Queue) Enqueue(ctx context.Context, kind models.OpKind, entityType models.EntityType, entityID string, payload json.RawMessage) (string, error) {
	ops, err := q.load(ctx)
	if err != nil {
		return "", err
	}

	op := models.QueuedOperation{
		ID:         uuid.NewString(),
		Kind:       kind,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    payload,
		CreatedAt:  time.Now().UTC(),
	}

	if err := q.save(ctx, append(ops, op)); err != nil {
		return "", err
	}
	return op.ID, nil
}

// Size returns the number of pending operations, failed ones included.
func (q *Queue) Size(ctx context.Context) (int, error) {
	ops, err := q.load(ctx)
	if err != nil {
		return 0, err
	}
	return len(ops), nil
}

// PeekAll returns the operations in insertion order without mutating the queue.
func (q *Queue) PeekAll(ctx context.Context) ([]models.QueuedOperation, error) {
	return q.load(ctx)
}

// Remove deletes the operation with the given id. Used after the matching
// server call succeeds, or to discard a non-retryable operation.
func (q *Queue) Remove(ctx context.Context, operationID string) error {
	ops, err := q.load(ctx)
	if err != nil {
		return err
	}

	kept := make([]models.QueuedOperation, 0, len(ops))
	found := false
	for _, op := range ops {
		if op.ID == operationID {
			found = true
			continue
		}
		kept = append(kept, op)
	}
	if !found {
		return common.ErrOperationNotFound
	}

	return q.save(ctx, kept)
}

// MarkRetried increments the operation's retry counter in place.
func (q *Queue) MarkRetried(ctx context.Context, operationID string) error {
	return q.update(ctx, operationID, func(op *models.QueuedOperation) {
		op.RetryCount++
	})
}

// MarkFailed flags the operation as abandoned. Failed operations stay
// visible in the queue but no longer block a drain; they require manual
// intervention (RetryFailed or Remove).
func (q *Queue) MarkFailed(ctx context.Context, operationID string) error {
	return q.update(ctx, operationID, func(op *models.QueuedOperation) {
		op.Failed = true
	})
}

// RetryFailed clears the failed flag and retry counter so a subsequent
// drain picks the operation up again.
func (q *Queue) RetryFailed(ctx context.Context, operationID string) error {
	return q.update(ctx, operationID, func(op *models.QueuedOperation) {
		op.Failed = false
		op.RetryCount = 0
	})
}

func (q *Queue) update(ctx context.Context, operationID string, fn func(*models.QueuedOperation)) error {
	ops, err := q.load(ctx)
	if err != nil {
		return err
	}

	found := false
	for i := range ops {
		if ops[i].ID == operationID {
			fn(&ops[i])
			found = true
			break
		}
	}
	if !found {
		return common.ErrOperationNotFound
	}

	return q.save(ctx, ops)
}
