package services

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/dmitrijs2005/timegrid/internal/client/api"
	"github.com/dmitrijs2005/timegrid/internal/client/kv"
	"github.com/dmitrijs2005/timegrid/internal/client/merge"
	"github.com/dmitrijs2005/timegrid/internal/client/models"
	"github.com/dmitrijs2005/timegrid/internal/client/queue"
	"github.com/dmitrijs2005/timegrid/internal/client/session"
	"github.com/dmitrijs2005/timegrid/internal/client/status"
	"github.com/dmitrijs2005/timegrid/internal/client/syncer"
	"github.com/dmitrijs2005/timegrid/internal/common"
	"github.com/dmitrijs2005/timegrid/internal/logging"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// fakeClient embeds the interface and overrides only what a test needs
// (calling an unconfigured method panics loudly).
type fakeClient struct {
	api.Client

	token string

	loginResult *api.LoginResult
	loginErr    error

	listRecords []json.RawMessage
	listErr     error

	createRecord json.RawMessage
	createErr    error

	deleted []string
}

func (f *fakeClient) SetToken(token string) { f.token = token }
func (f *fakeClient) Close() error          { return nil }
func (f *fakeClient) Ping(ctx context.Context) error {
	return nil
}

func (f *fakeClient) Login(ctx context.Context, email, password string) (*api.LoginResult, error) {
	return f.loginResult, f.loginErr
}

func (f *fakeClient) ListEntities(ctx context.Context, t models.EntityType) ([]json.RawMessage, error) {
	return f.listRecords, f.listErr
}

func (f *fakeClient) CreateEntity(ctx context.Context, t models.EntityType, payload json.RawMessage) (json.RawMessage, error) {
	return f.createRecord, f.createErr
}

func (f *fakeClient) UpdateEntity(ctx context.Context, t models.EntityType, id string, payload json.RawMessage) (json.RawMessage, error) {
	record, err := withID(payload, id)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (f *fakeClient) DeleteEntity(ctx context.Context, t models.EntityType, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type servicesFixture struct {
	client *fakeClient
	store  kv.Store
	queue  *queue.Queue
	merge  *merge.Store
	engine *syncer.Engine
	entity *EntityService
}

func setupEntity(t *testing.T, online bool) *servicesFixture {
	t.Helper()
	f := &servicesFixture{
		client: &fakeClient{},
		store:  kv.NewMemoryStore(),
	}
	f.queue = queue.New(f.store)
	f.merge = merge.NewStore(f.store)

	log := logging.NewNopLogger()
	f.engine = syncer.NewEngine(syncer.DefaultConfig(), f.store, f.client, f.queue, status.NewBroadcaster(), log,
		syncer.WithSleep(func(ctx context.Context, d time.Duration) {}))
	f.entity = NewEntityService(f.client, f.queue, f.merge, f.engine, log)

	if online {
		// the fake backend has no queue to drain; this only flips state
		f.engine.SetOnline(context.Background(), true)
	}
	return f
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u-1", "exp": exp.Unix()})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)
	return signed
}

// ---------- AuthService ----------

func TestAuthService_LoginCachesSession(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	sessions := session.NewManager(store, logging.NewNopLogger())

	exp := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	client := &fakeClient{loginResult: &api.LoginResult{
		User:  models.User{ID: "u-1", Email: "alice@example.com"},
		Token: signedToken(t, exp),
	}}

	auth := NewAuthService(client, sessions, logging.NewNopLogger())

	s, err := auth.Login(ctx, "alice@example.com", "secret")
	require.NoError(t, err)
	require.Equal(t, "u-1", s.User.ID)
	require.True(t, s.ExpiresAt.Equal(exp), "expiry must come from the token's exp claim")
	require.Equal(t, s.Token, client.token, "token handed to the api client")

	// the cached session is restorable without any network
	restored, err := auth.Bootstrap(ctx)
	require.NoError(t, err)
	require.NotNil(t, restored)
	require.Equal(t, "alice@example.com", restored.User.Email)
}

func TestAuthService_LoginFailurePropagates(t *testing.T) {
	client := &fakeClient{loginErr: fmt.Errorf("%w: bad credentials", common.ErrUnauthorized)}
	auth := NewAuthService(client, session.NewManager(kv.NewMemoryStore(), logging.NewNopLogger()), logging.NewNopLogger())

	_, err := auth.Login(context.Background(), "alice@example.com", "wrong")
	require.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestAuthService_BootstrapExpiredSessionIsNil(t *testing.T) {
	ctx := context.Background()
	sessions := session.NewManager(kv.NewMemoryStore(), logging.NewNopLogger())

	client := &fakeClient{loginResult: &api.LoginResult{
		User:  models.User{ID: "u-1"},
		Token: signedToken(t, time.Now().Add(-time.Hour)), // already expired
	}}
	auth := NewAuthService(client, sessions, logging.NewNopLogger())

	_, err := auth.Login(ctx, "a@b.c", "pw")
	require.NoError(t, err)

	restored, err := auth.Bootstrap(ctx)
	require.NoError(t, err)
	require.Nil(t, restored)
}

func TestAuthService_LogoutClearsSession(t *testing.T) {
	ctx := context.Background()
	sessions := session.NewManager(kv.NewMemoryStore(), logging.NewNopLogger())
	client := &fakeClient{loginResult: &api.LoginResult{
		User:  models.User{ID: "u-1"},
		Token: signedToken(t, time.Now().Add(time.Hour)),
	}}
	auth := NewAuthService(client, sessions, logging.NewNopLogger())

	_, err := auth.Login(ctx, "a@b.c", "pw")
	require.NoError(t, err)

	require.NoError(t, auth.Logout(ctx))
	require.Empty(t, client.token)

	restored, err := auth.Bootstrap(ctx)
	require.NoError(t, err)
	require.Nil(t, restored)
}

// ---------- EntityService ----------

func TestEntityService_OfflineAddQueuesAndShowsPending(t *testing.T) {
	ctx := context.Background()
	f := setupEntity(t, false)

	record, err := f.entity.Add(ctx, models.EntityClient, json.RawMessage(`{"name":"Acme"}`))
	require.NoError(t, err)

	var created models.Client
	require.NoError(t, json.Unmarshal(record, &created))
	require.Contains(t, created.ID, localIDPrefix)

	size, _ := f.queue.Size(ctx)
	require.Equal(t, 1, size)

	view, err := f.entity.List(ctx, models.EntityClient)
	require.NoError(t, err)
	require.Len(t, view, 1)
}

func TestEntityService_OnlineAddGoesStraightToBackend(t *testing.T) {
	ctx := context.Background()
	f := setupEntity(t, true)
	f.client.createRecord = json.RawMessage(`{"id":"c-7","name":"Acme"}`)

	record, err := f.entity.Add(ctx, models.EntityClient, json.RawMessage(`{"name":"Acme"}`))
	require.NoError(t, err)

	var created models.Client
	require.NoError(t, json.Unmarshal(record, &created))
	require.Equal(t, "c-7", created.ID)

	size, _ := f.queue.Size(ctx)
	require.Zero(t, size, "nothing queued while online")

	view, err := f.merge.View(ctx, models.EntityClient)
	require.NoError(t, err)
	require.Len(t, view, 1)
}

func TestEntityService_ListDegradesToCachedSnapshot(t *testing.T) {
	ctx := context.Background()
	f := setupEntity(t, true)

	f.client.listRecords = []json.RawMessage{json.RawMessage(`{"id":"c-1","name":"Globex"}`)}
	view, err := f.entity.List(ctx, models.EntityClient)
	require.NoError(t, err)
	require.Len(t, view, 1)

	// the next refresh fails; the view must not regress to empty
	f.client.listRecords = nil
	f.client.listErr = fmt.Errorf("%w: timeout", common.ErrUnavailable)

	view, err = f.entity.List(ctx, models.EntityClient)
	require.NoError(t, err)
	require.Len(t, view, 1, "last-known-good snapshot still served")
}

func TestEntityService_OfflineUpdateShadowsSnapshot(t *testing.T) {
	ctx := context.Background()
	f := setupEntity(t, false)

	require.NoError(t, f.merge.SaveSnapshot(ctx, models.EntityClient, []json.RawMessage{
		json.RawMessage(`{"id":"c-1","name":"Old"}`),
	}))

	_, err := f.entity.Update(ctx, models.EntityClient, "c-1", json.RawMessage(`{"name":"New"}`))
	require.NoError(t, err)

	view, err := f.entity.List(ctx, models.EntityClient)
	require.NoError(t, err)
	require.Len(t, view, 1, "pending edit shadows the stale record, no duplicate")

	var got models.Client
	require.NoError(t, json.Unmarshal(view[0], &got))
	require.Equal(t, "New", got.Name)
}

func TestEntityService_DeleteLocalCancelsQueuedAdd(t *testing.T) {
	ctx := context.Background()
	f := setupEntity(t, false)

	record, err := f.entity.Add(ctx, models.EntityClient, json.RawMessage(`{"name":"Oops"}`))
	require.NoError(t, err)
	var created models.Client
	require.NoError(t, json.Unmarshal(record, &created))

	require.NoError(t, f.entity.Delete(ctx, models.EntityClient, created.ID))

	size, _ := f.queue.Size(ctx)
	require.Zero(t, size, "the never-synced add is cancelled, not tombstoned")

	view, err := f.entity.List(ctx, models.EntityClient)
	require.NoError(t, err)
	require.Empty(t, view)
}

func TestEntityService_OfflineDeleteIsOptimistic(t *testing.T) {
	ctx := context.Background()
	f := setupEntity(t, false)

	require.NoError(t, f.merge.SaveSnapshot(ctx, models.EntityProject, []json.RawMessage{
		json.RawMessage(`{"id":"p-1","name":"Doomed"}`),
	}))

	require.NoError(t, f.entity.Delete(ctx, models.EntityProject, "p-1"))

	size, _ := f.queue.Size(ctx)
	require.Equal(t, 1, size, "delete queued for the server")

	view, err := f.entity.List(ctx, models.EntityProject)
	require.NoError(t, err)
	require.Empty(t, view, "record disappears from the view immediately")
}
