// Package merge combines queued-but-unsynced entities, last-known-good
// server snapshots, and fresh server responses into one consistent view per
// entity type. The visible identifier set is always the union of
// unsynced-local and server-known identifiers, without duplicates; a local
// identifier is substituted by the server-assigned one exactly once, when
// the sync engine confirms the originating operation.
package merge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/timegrid/internal/client/kv"
	"github.com/dmitrijs2005/timegrid/internal/client/models"
	"github.com/dmitrijs2005/timegrid/internal/common"
)

func snapshotKey(t models.EntityType) string { return "snapshot:" + string(t) }
func offlineKey(t models.EntityType) string  { return "offline:" + string(t) }

// Store owns the cached server snapshots and the pending offline entities.
type Store struct {
	store kv.Store
}

func NewStore(store kv.Store) *Store {
	return &Store{store: store}
}

func (s *Store) loadJSON(ctx context.Context, key string, v any) (bool, error) {
	data, err := s.store.Get(ctx, key)
	if errors.Is(err, common.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) saveJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.store.Set(ctx, key, data)
}

// SaveSnapshot caches a successfully fetched server collection as the
// last-known-good state for the entity type.
func (s *Store) SaveSnapshot(ctx context.Context, t models.EntityType, records []json.RawMessage) error {
	return s.saveJSON(ctx, snapshotKey(t), records)
}

// Snapshot returns the last-known-good server collection, or nil when none
// has been cached yet.
func (s *Store) Snapshot(ctx context.Context, t models.EntityType) ([]json.RawMessage, error) {
	var records []json.RawMessage
	if _, err := s.loadJSON(ctx, snapshotKey(t), &records); err != nil {
		return nil, err
	}
	return records, nil
}

// AddOffline registers a locally materialized entity awaiting sync. A
// second offline mutation of the same local identifier replaces the earlier
// entry in place, so the view always shows the latest local state.
func (s *Store) AddOffline(ctx context.Context, e models.OfflineEntity) error {
	var pending []models.OfflineEntity
	if _, err := s.loadJSON(ctx, offlineKey(e.EntityType), &pending); err != nil {
		return err
	}

	for i := range pending {
		if pending[i].LocalID == e.LocalID {
			pending[i] = e
			return s.saveJSON(ctx, offlineKey(e.EntityType), pending)
		}
	}
	return s.saveJSON(ctx, offlineKey(e.EntityType), append(pending, e))
}

// OfflinePending lists the entities still awaiting sync for the type.
func (s *Store) OfflinePending(ctx context.Context, t models.EntityType) ([]models.OfflineEntity, error) {
	var pending []models.OfflineEntity
	if _, err := s.loadJSON(ctx, offlineKey(t), &pending); err != nil {
		return nil, err
	}
	return pending, nil
}

// Confirm performs the identifier substitution: the offline entity created
// by operationID is removed and the server-assigned record is upserted into
// the snapshot. Called by the sync engine together with queue removal.
func (s *Store) Confirm(ctx context.Context, t models.EntityType, operationID string, serverRecord json.RawMessage) error {
	if err := s.Discard(ctx, t, operationID); err != nil {
		return err
	}
	if serverRecord == nil {
		// deletes produce no record
		return nil
	}

	records, err := s.Snapshot(ctx, t)
	if err != nil {
		return err
	}

	id := recordID(serverRecord)
	replaced := false
	for i, r := range records {
		if id != "" && recordID(r) == id {
			records[i] = serverRecord
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, serverRecord)
	}

	return s.SaveSnapshot(ctx, t, records)
}

// RemoveSnapshotRecord drops one record from the cached snapshot. Called
// when a delete operation is confirmed, so the view does not resurrect the
// record until the next refresh.
func (s *Store) RemoveSnapshotRecord(ctx context.Context, t models.EntityType, id string) error {
	records, err := s.Snapshot(ctx, t)
	if err != nil {
		return err
	}

	kept := make([]json.RawMessage, 0, len(records))
	for _, r := range records {
		if recordID(r) == id {
			continue
		}
		kept = append(kept, r)
	}
	return s.SaveSnapshot(ctx, t, kept)
}

// Discard drops the offline entity referencing operationID, if any. Used on
// confirm and when a non-retryable operation is thrown away.
func (s *Store) Discard(ctx context.Context, t models.EntityType, operationID string) error {
	pending, err := s.OfflinePending(ctx, t)
	if err != nil {
		return err
	}

	kept := make([]models.OfflineEntity, 0, len(pending))
	for _, e := range pending {
		if e.OperationID == operationID {
			continue
		}
		kept = append(kept, e)
	}
	return s.saveJSON(ctx, offlineKey(t), kept)
}

// View computes the visible collection for the type: pending offline
// entities first, then the last-known-good snapshot, de-duplicated by
// identifier. A fetch failure therefore never empties the view, it merely
// degrades to the cached snapshot plus local pending.
func (s *Store) View(ctx context.Context, t models.EntityType) ([]json.RawMessage, error) {
	pending, err := s.OfflinePending(ctx, t)
	if err != nil {
		return nil, err
	}
	snapshot, err := s.Snapshot(ctx, t)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(pending)+len(snapshot))
	result := make([]json.RawMessage, 0, len(pending)+len(snapshot))

	for _, e := range pending {
		if id := recordID(e.Record); id != "" {
			seen[id] = struct{}{}
		}
		result = append(result, e.Record)
	}
	for _, r := range snapshot {
		if id := recordID(r); id != "" {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
		}
		result = append(result, r)
	}

	return result, nil
}

// recordID extracts the identifier field of an opaque record; empty when
// the record has none or cannot be parsed.
func recordID(record json.RawMessage) string {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(record, &probe); err != nil {
		return ""
	}
	return probe.ID
}
