package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/timegrid/internal/client/api"
	"github.com/dmitrijs2005/timegrid/internal/client/merge"
	"github.com/dmitrijs2005/timegrid/internal/client/models"
	"github.com/dmitrijs2005/timegrid/internal/client/queue"
	"github.com/dmitrijs2005/timegrid/internal/client/syncer"
	"github.com/dmitrijs2005/timegrid/internal/logging"
	"github.com/google/uuid"
)

const localIDPrefix = "local-"

// EntityService exposes the merged entity views and routes mutations:
// straight to the backend while online, through the offline queue with an
// optimistic local entity otherwise.
type EntityService struct {
	api    api.Client
	queue  *queue.Queue
	merge  *merge.Store
	engine *syncer.Engine
	log    logging.Logger
}

func NewEntityService(apiClient api.Client, q *queue.Queue, m *merge.Store, e *syncer.Engine, log logging.Logger) *EntityService {
	return &EntityService{api: apiClient, queue: q, merge: m, engine: e, log: log}
}

// List returns the merged view for the type. While online it refreshes the
// snapshot first; a refresh failure degrades to the cached snapshot plus
// local pending, never to an empty view.
func (s *EntityService) List(ctx context.Context, t models.EntityType) ([]json.RawMessage, error) {
	if s.engine.Online() {
		if err := s.Refresh(ctx, t); err != nil {
			s.log.Info(ctx, "refresh failed, serving cached snapshot", "entity_type", t, "error", err)
		}
	}
	return s.merge.View(ctx, t)
}

// Refresh fetches the server collection and caches it as last-known-good.
func (s *EntityService) Refresh(ctx context.Context, t models.EntityType) error {
	records, err := s.api.ListEntities(ctx, t)
	if err != nil {
		return fmt.Errorf("failed to fetch %s list: %w", t, err)
	}
	return s.merge.SaveSnapshot(ctx, t, records)
}

// Add creates an entity. Returns the stored record: the server's while
// online, the optimistic local one (with a temporary local- identifier)
// while offline.
func (s *EntityService) Add(ctx context.Context, t models.EntityType, payload json.RawMessage) (json.RawMessage, error) {
	if s.engine.Online() {
		record, err := s.api.CreateEntity(ctx, t, payload)
		if err != nil {
			return nil, err
		}
		if err := s.merge.Confirm(ctx, t, "", record); err != nil {
			return nil, err
		}
		return record, nil
	}

	localID := localIDPrefix + uuid.NewString()
	record, err := withID(payload, localID)
	if err != nil {
		return nil, err
	}

	opID, err := s.queue.Enqueue(ctx, models.OpAdd, t, "", payload)
	if err != nil {
		return nil, err
	}

	if err := s.merge.AddOffline(ctx, models.OfflineEntity{
		LocalID:     localID,
		EntityType:  t,
		OperationID: opID,
		Record:      record,
	}); err != nil {
		return nil, err
	}

	s.log.Debug(ctx, "queued offline add", "entity_type", t, "op", opID)
	return record, nil
}

// Update edits an entity by identifier, optimistically while offline.
func (s *EntityService) Update(ctx context.Context, t models.EntityType, id string, payload json.RawMessage) (json.RawMessage, error) {
	if s.engine.Online() {
		record, err := s.api.UpdateEntity(ctx, t, id, payload)
		if err != nil {
			return nil, err
		}
		if err := s.merge.Confirm(ctx, t, "", record); err != nil {
			return nil, err
		}
		return record, nil
	}

	record, err := withID(payload, id)
	if err != nil {
		return nil, err
	}

	opID, err := s.queue.Enqueue(ctx, models.OpUpdate, t, id, payload)
	if err != nil {
		return nil, err
	}

	// pending entities are shown before the snapshot and de-duplicated by
	// identifier, so this shadows the stale server record until sync
	if err := s.merge.AddOffline(ctx, models.OfflineEntity{
		LocalID:     id,
		EntityType:  t,
		OperationID: opID,
		Record:      record,
	}); err != nil {
		return nil, err
	}

	return record, nil
}

// Delete removes an entity. Deleting a still-unsynced local entity cancels
// its queued operation instead of enqueueing a delete the server could
// never resolve.
func (s *EntityService) Delete(ctx context.Context, t models.EntityType, id string) error {
	if strings.HasPrefix(id, localIDPrefix) {
		return s.cancelLocal(ctx, t, id)
	}

	if s.engine.Online() {
		if err := s.api.DeleteEntity(ctx, t, id); err != nil {
			return err
		}
		return s.merge.RemoveSnapshotRecord(ctx, t, id)
	}

	if _, err := s.queue.Enqueue(ctx, models.OpDelete, t, id, nil); err != nil {
		return err
	}
	// optimistic removal from the visible view
	return s.merge.RemoveSnapshotRecord(ctx, t, id)
}

// cancelLocal undoes an offline add that never reached the server: both the
// optimistic entity and its queued operation disappear.
func (s *EntityService) cancelLocal(ctx context.Context, t models.EntityType, localID string) error {
	pending, err := s.merge.OfflinePending(ctx, t)
	if err != nil {
		return err
	}

	for _, e := range pending {
		if e.LocalID != localID {
			continue
		}
		if err := s.queue.Remove(ctx, e.OperationID); err != nil {
			return err
		}
		return s.merge.Discard(ctx, t, e.OperationID)
	}
	return fmt.Errorf("no pending entity %s", localID)
}

// withID re-encodes an opaque payload with the identifier field set.
func withID(payload json.RawMessage, id string) (json.RawMessage, error) {
	var fields map[string]any
	if len(payload) == 0 {
		fields = map[string]any{}
	} else if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	fields["id"] = id
	return json.Marshal(fields)
}
