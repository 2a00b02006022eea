package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/timegrid/internal/client/kv"
	"github.com/dmitrijs2005/timegrid/internal/client/models"
	"github.com/dmitrijs2005/timegrid/internal/common"
	"github.com/dmitrijs2005/timegrid/internal/logging"
	"github.com/google/uuid"
)

const (
	deviceIDKey = "session:device_id"
	blobKey     = "session:blob"

	envelopeVersion = 1

	// expiryLeeway keeps a session that is about to expire from being
	// treated as valid right up to the boundary.
	expiryLeeway = 60 * time.Second
)

// envelope is what actually gets encrypted: a version tag plus the session,
// so a future format change invalidates old blobs instead of misreading them.
type envelope struct {
	Version int                   `json:"version"`
	Session *models.CachedSession `json:"session"`
}

// Manager persists the cached session encrypted under a device-bound key.
// Load never returns an error for a bad blob: any decryption or validation
// failure is a cache miss, reported as a nil session.
type Manager struct {
	store     kv.Store
	log       logging.Logger
	newCipher func(key []byte) AeadCipher
	now       func() time.Time
}

// Option mutates a Manager during construction.
type Option func(*Manager)

// WithCipherFactory substitutes the AEAD implementation (testing hook).
func WithCipherFactory(fn func(key []byte) AeadCipher) Option {
	return func(m *Manager) { m.newCipher = fn }
}

// WithClock substitutes the time source (testing hook).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(store kv.Store, log logging.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		log:       log,
		newCipher: func(key []byte) AeadCipher { return NewGCMCipher(key) },
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DeviceID returns the persisted device id, generating and storing a new one
// on first use. The id lives in plaintext: it is the input the encryption
// key is re-derived from, not a secret by itself.
func (m *Manager) DeviceID(ctx context.Context) (string, error) {
	data, err := m.store.Get(ctx, deviceIDKey)
	if err == nil {
		return string(data), nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return "", fmt.Errorf("failed to read device id: %w", err)
	}

	id := uuid.NewString()
	if err := m.store.Set(ctx, deviceIDKey, []byte(id)); err != nil {
		return "", fmt.Errorf("failed to persist device id: %w", err)
	}
	return id, nil
}

// Save encrypts and stores the session, replacing any previous blob
// wholesale. The session's DeviceID is overwritten with this device's id so
// Load can reject blobs copied from another device.
func (m *Manager) Save(ctx context.Context, s *models.CachedSession) error {
	deviceID, err := m.DeviceID(ctx)
	if err != nil {
		return err
	}

	stored := *s
	stored.DeviceID = deviceID
	stored.EncryptedAt = m.now().UTC()

	plaintext, err := json.Marshal(envelope{Version: envelopeVersion, Session: &stored})
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	blob, err := m.newCipher(DeriveKey(deviceID)).Seal(plaintext)
	if err != nil {
		return fmt.Errorf("failed to encrypt session: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(blob)
	if err := m.store.Set(ctx, blobKey, []byte(encoded)); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}

// Load returns the cached session, or nil when there is none or the blob
// cannot be decrypted and verified. Corruption is logged and treated as a
// miss, never propagated.
func (m *Manager) Load(ctx context.Context) (*models.CachedSession, error) {
	deviceID, err := m.DeviceID(ctx)
	if err != nil {
		return nil, err
	}

	encoded, err := m.store.Get(ctx, blobKey)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session blob: %w", err)
	}

	blob, err := base64.StdEncoding.DecodeString(string(encoded))
	if err != nil {
		m.log.Warn(ctx, "session blob is not valid base64, treating as cache miss", "error", err)
		return nil, nil
	}

	plaintext, err := m.newCipher(DeriveKey(deviceID)).Open(blob)
	if err != nil {
		m.log.Warn(ctx, "session decryption failed, treating as cache miss", "error", err)
		return nil, nil
	}

	var env envelope
	if err := json.Unmarshal(plaintext, &env); err != nil {
		m.log.Warn(ctx, "session envelope decode failed, treating as cache miss", "error", err)
		return nil, nil
	}
	if env.Version != envelopeVersion || env.Session == nil {
		m.log.Warn(ctx, "session envelope version mismatch, treating as cache miss", "version", env.Version)
		return nil, nil
	}
	if env.Session.DeviceID != deviceID {
		// blob copied from another device; refuse it
		m.log.Warn(ctx, "session device id mismatch, treating as cache miss")
		return nil, nil
	}

	return env.Session, nil
}

// Clear removes the stored session blob. The device id stays: it is this
// installation's identity, not part of the session.
func (m *Manager) Clear(ctx context.Context) error {
	if err := m.store.Delete(ctx, blobKey); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// IsValid reports whether the session is usable: non-nil and not within
// expiryLeeway of its expiry.
func (m *Manager) IsValid(s *models.CachedSession) bool {
	if s == nil {
		return false
	}
	return m.now().Add(expiryLeeway).Before(s.ExpiresAt)
}
