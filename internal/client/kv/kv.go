// Package kv provides the durable local key-value store every other sync
// component writes through. The interface is a capability deliberately small
// enough to swap a SQLite-backed store for an in-memory one in tests, or as
// a degraded fallback when the database cannot be opened.
package kv

import "context"

// Store is the key-value persistence contract.
//
// Keys are treated as single-writer: components own disjoint key namespaces
// (queue, snapshots, offline entities, event cache, session, device id) so
// their writers never race.
type Store interface {
	// Get returns the value for key, or common.ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set writes the value for key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns all key/value pairs.
	List(ctx context.Context) (map[string][]byte, error)
	// Clear removes everything.
	Clear(ctx context.Context) error
	// Update runs fn against a transactional view of the store. All writes
	// fn makes through the passed Store are committed together when fn
	// returns nil and discarded entirely when it returns an error. Used
	// where a single logical change spans multiple key namespaces, such as
	// confirming a synced operation.
	Update(ctx context.Context, fn func(tx Store) error) error
}
