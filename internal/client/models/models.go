// Package models defines the data model of the TimeGrid client sync core:
// queued offline operations, locally materialized entities, the cached
// authentication session, and the typed domain records used by the CLI
// and the calendar feed refresher.
package models

import (
	"encoding/json"
	"time"
)

// OpKind is the kind of a queued mutation.
type OpKind string

const (
	OpAdd    OpKind = "add"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// EntityType enumerates the syncable entity collections.
type EntityType string

const (
	EntityClient    EntityType = "client"
	EntityProject   EntityType = "project"
	EntityTimeEntry EntityType = "time_entry"
)

// QueuedOperation is one pending mutation recorded while offline.
// All fields except RetryCount and Failed are immutable after enqueue.
// Operations are drained strictly in creation order because later ones may
// reference identifiers produced by earlier ones (a time entry referencing
// a client created moments before, still offline).
type QueuedOperation struct {
	ID         string          `json:"id"`
	Kind       OpKind          `json:"kind"`
	EntityType EntityType      `json:"entity_type"`
	EntityID   string          `json:"entity_id,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
	RetryCount int             `json:"retry_count"`
	Failed     bool            `json:"failed,omitempty"`
}

// OfflineEntity is a locally materialized record awaiting sync. It carries a
// temporary local identifier and a back-reference to the originating queued
// operation; once that operation syncs, the entity is replaced by the
// server-assigned record. The reference is a lookup relation only; the
// queue owns operations.
type OfflineEntity struct {
	LocalID     string          `json:"local_id"`
	EntityType  EntityType      `json:"entity_type"`
	OperationID string          `json:"operation_id"`
	Record      json.RawMessage `json:"record"`
}

// User is the authenticated account profile.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// CachedSession is the encrypted-at-rest authentication state. It is never
// mutated in place; each successful login replaces it wholesale.
type CachedSession struct {
	User         User      `json:"user"`
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	EncryptedAt  time.Time `json:"encrypted_at"`
	DeviceID     string    `json:"device_id"`
}

// ConnState is the connectivity half of SyncStatus.
type ConnState string

const (
	StateOnline  ConnState = "online"
	StateOffline ConnState = "offline"
)

// SyncStatus is a derived snapshot, recomputed on every queue or
// connectivity change. It has no identity of its own.
type SyncStatus struct {
	Status    ConnState  `json:"status"`
	Syncing   bool       `json:"syncing"`
	QueueSize int        `json:"queue_size"`
	LastSync  *time.Time `json:"last_sync,omitempty"`
}

// Client is a billable customer.
type Client struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Project belongs to a client.
type Project struct {
	ID       string `json:"id"`
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
}

// TimeEntry is a tracked interval of work on a project.
type TimeEntry struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Note      string    `json:"note,omitempty"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end,omitempty"`
}

// CalendarSource is a configured external feed (an ICS URL).
type CalendarSource struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// CalendarEvent is one event merged from local entries and external feeds.
// Local indicates a TimeGrid-owned record as opposed to a feed-sourced one;
// the display sort prefers local events on start-time ties.
type CalendarEvent struct {
	ID       string    `json:"id"`
	SourceID string    `json:"source_id,omitempty"`
	Title    string    `json:"title"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end,omitempty"`
	Local    bool      `json:"local,omitempty"`
}
