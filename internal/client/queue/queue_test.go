package queue

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/timegrid/internal/client/kv"
	"github.com/dmitrijs2005/timegrid/internal/client/models"
	"github.com/dmitrijs2005/timegrid/internal/common"
	"github.com/stretchr/testify/require"
)

func TestQueue_EnqueuePreservesOrder(t *testing.T) {
	ctx := context.Background()
	q := New(kv.NewMemoryStore())

	names := []string{"Acme", "Globex", "Initech"}
	ids := make([]string, 0, len(names))
	for _, name := range names {
		payload, _ := json.Marshal(models.Client{Name: name})
		id, err := q.Enqueue(ctx, models.OpAdd, models.EntityClient, "", payload)
		require.NoError(t, err)
		require.NotEmpty(t, id)
		ids = append(ids, id)
	}

	size, err := q.Size(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, size)

	ops, err := q.PeekAll(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 3)
	for i, op := range ops {
		require.Equal(t, ids[i], op.ID)
		require.Equal(t, models.OpAdd, op.Kind)
		require.Equal(t, models.EntityClient, op.EntityType)
		require.Zero(t, op.RetryCount)
		require.False(t, op.Failed)
	}
}

func TestQueue_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()

	q := New(store)
	id, err := q.Enqueue(ctx, models.OpDelete, models.EntityProject, "p-1", nil)
	require.NoError(t, err)

	// A fresh Queue over the same store sees the persisted list.
	reopened := New(store)
	ops, err := reopened.PeekAll(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Equal(t, id, ops[0].ID)
	require.Equal(t, "p-1", ops[0].EntityID)
}

func TestQueue_Remove(t *testing.T) {
	ctx := context.Background()
	q := New(kv.NewMemoryStore())

	a, _ := q.Enqueue(ctx, models.OpAdd, models.EntityClient, "", nil)
	b, _ := q.Enqueue(ctx, models.OpAdd, models.EntityClient, "", nil)
	c, _ := q.Enqueue(ctx, models.OpAdd, models.EntityClient, "", nil)

	require.NoError(t, q.Remove(ctx, b))

	ops, err := q.PeekAll(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	require.Equal(t, a, ops[0].ID)
	require.Equal(t, c, ops[1].ID)

	require.ErrorIs(t, q.Remove(ctx, b), common.ErrOperationNotFound)
}

func TestQueue_MarkRetried(t *testing.T) {
	ctx := context.Background()
	q := New(kv.NewMemoryStore())

	id, _ := q.Enqueue(ctx, models.OpUpdate, models.EntityTimeEntry, "te-9", nil)

	require.NoError(t, q.MarkRetried(ctx, id))
	require.NoError(t, q.MarkRetried(ctx, id))

	ops, err := q.PeekAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, ops[0].RetryCount)

	require.ErrorIs(t, q.MarkRetried(ctx, "missing"), common.ErrOperationNotFound)
}

func TestQueue_MarkFailedAndRetryFailed(t *testing.T) {
	ctx := context.Background()
	q := New(kv.NewMemoryStore())

	id, _ := q.Enqueue(ctx, models.OpAdd, models.EntityClient, "", nil)
	require.NoError(t, q.MarkRetried(ctx, id))
	require.NoError(t, q.MarkFailed(ctx, id))

	ops, _ := q.PeekAll(ctx)
	require.True(t, ops[0].Failed)
	require.Equal(t, 1, ops[0].RetryCount)

	// manual intervention puts the operation back in play
	require.NoError(t, q.RetryFailed(ctx, id))
	ops, _ = q.PeekAll(ctx)
	require.False(t, ops[0].Failed)
	require.Zero(t, ops[0].RetryCount)
}

type failingStore struct {
	kv.Store
	setErr error
}

func (f *failingStore) Set(ctx context.Context, key string, value []byte) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.Store.Set(ctx, key, value)
}

func TestQueue_EnqueueStoreFailure(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk full")
	store := &failingStore{Store: kv.NewMemoryStore(), setErr: boom}
	q := New(store)

	_, err := q.Enqueue(ctx, models.OpAdd, models.EntityClient, "", nil)
	require.ErrorIs(t, err, boom)

	// nothing was partially persisted
	store.setErr = nil
	size, err := q.Size(ctx)
	require.NoError(t, err)
	require.Zero(t, size)
}

func TestQueue_SurvivesDatabaseReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "queue.db")

	store, db, err := kv.OpenSQLite(ctx, path)
	require.NoError(t, err)

	q := New(store)
	payload, _ := json.Marshal(models.Client{Name: "Acme"})
	id, err := q.Enqueue(ctx, models.OpAdd, models.EntityClient, "", payload)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	store2, db2, err := kv.OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer db2.Close()

	ops, err := New(store2).PeekAll(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Equal(t, id, ops[0].ID)
}
