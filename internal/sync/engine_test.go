package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akarpov87/mealkeep/internal/common"
	"github.com/akarpov87/mealkeep/internal/identity"
	"github.com/akarpov87/mealkeep/internal/logging"
	"github.com/akarpov87/mealkeep/internal/models"
	"github.com/akarpov87/mealkeep/internal/remote"
	"github.com/akarpov87/mealkeep/internal/repositories/queue"
	"github.com/akarpov87/mealkeep/internal/repositories/records"
	"github.com/akarpov87/mealkeep/internal/repositories/settings"
	"github.com/akarpov87/mealkeep/internal/timex"

	_ "modernc.org/sqlite"
)

// fakeProvider is a static identity source for tests.
type fakeProvider struct {
	id identity.Identity
}

func (p *fakeProvider) Current(ctx context.Context) (identity.Identity, error) { return p.id, nil }
func (p *fakeProvider) OnChange(fn func(identity.Identity)) func()             { return func() {} }
func (p *fakeProvider) SignOut(ctx context.Context) error                      { return nil }

// fakeStore is an in-memory remote.Store with failure injection.
type fakeStore struct {
	data map[string]map[string]models.Record // owner -> record id -> record

	fetchCalls int32
	batchCalls int32

	// fetchGate, when set, blocks FetchAll until the channel closes.
	fetchGate chan struct{}
	// fetchStarted is closed on the first FetchAll when set.
	fetchStarted chan struct{}

	// rejectRecordId fails the batch element for this record id.
	rejectRecordId string
	// batchErr fails the whole BatchWrite call.
	batchErr error

	events chan remote.Event
	subErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]map[string]models.Record)}
}

func (s *fakeStore) collection(owner string) map[string]models.Record {
	if s.data[owner] == nil {
		s.data[owner] = make(map[string]models.Record)
	}
	return s.data[owner]
}

func (s *fakeStore) FetchAll(ctx context.Context, ownerID string) ([]models.Record, error) {
	if n := atomic.AddInt32(&s.fetchCalls, 1); n == 1 && s.fetchStarted != nil {
		close(s.fetchStarted)
	}
	if s.fetchGate != nil {
		<-s.fetchGate
	}
	var out []models.Record
	for _, rec := range s.collection(ownerID) {
		out = append(out, rec.Clone())
	}
	return out, nil
}

func (s *fakeStore) Upsert(ctx context.Context, ownerID string, rec *models.Record) error {
	s.collection(ownerID)[rec.Id] = rec.Clone()
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, ownerID, recordID string) error {
	delete(s.collection(ownerID), recordID)
	return nil
}

func (s *fakeStore) BatchWrite(ctx context.Context, ownerID string, ops []remote.Op) ([]remote.OpResult, error) {
	atomic.AddInt32(&s.batchCalls, 1)
	if s.batchErr != nil {
		return nil, s.batchErr
	}
	coll := s.collection(ownerID)
	results := make([]remote.OpResult, len(ops))
	for i, op := range ops {
		results[i] = remote.OpResult{RecordId: op.RecordId}
		if op.RecordId == s.rejectRecordId {
			results[i].Error = "rejected by server"
			continue
		}
		switch op.Op {
		case models.OperationDelete:
			delete(coll, op.RecordId)
		default:
			if op.Record != nil {
				coll[op.RecordId] = op.Record.Clone()
			}
		}
	}
	return results, nil
}

func (s *fakeStore) Subscribe(ctx context.Context, ownerID string) (remote.Subscription, error) {
	if s.subErr != nil {
		return nil, s.subErr
	}
	if s.events == nil {
		s.events = make(chan remote.Event, 16)
	}
	return &fakeSub{events: s.events}, nil
}

type fakeSub struct {
	events chan remote.Event
	err    error
}

func (s *fakeSub) Events() <-chan remote.Event { return s.events }
func (s *fakeSub) Err() error                  { return s.err }
func (s *fakeSub) Close() error                { close(s.events); return nil }

type fixture struct {
	engine  *Engine
	store   *fakeStore
	records records.Repository
	queue   queue.Repository
	db      *sql.DB
}

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE records (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  occurred_at_sec INTEGER NOT NULL,
  occurred_at_nsec INTEGER NOT NULL DEFAULT 0,
  owner_id TEXT NOT NULL DEFAULT '',
  hidden INTEGER NOT NULL DEFAULT 0,
  tags TEXT NOT NULL DEFAULT '[]',
  updated_at_ms INTEGER NOT NULL,
  pending INTEGER NOT NULL DEFAULT 1,
  sync_state TEXT NOT NULL DEFAULT 'pending'
);
CREATE TABLE sync_queue (
  id TEXT PRIMARY KEY,
  entity_id TEXT NOT NULL UNIQUE,
  operation TEXT NOT NULL,
  payload TEXT,
  target_owner_id TEXT NOT NULL DEFAULT '',
  timestamp_ms INTEGER NOT NULL,
  retry_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT NOT NULL DEFAULT ''
);
CREATE TABLE settings (key TEXT PRIMARY KEY, value BLOB);
`)
	require.NoError(t, err)

	return db
}

func setup(t *testing.T, ownerID string) *fixture {
	t.Helper()
	db := setupDB(t)

	id := identity.Identity{IsAnonymous: true}
	if ownerID != "" {
		id = identity.Identity{ID: ownerID}
	}
	session, err := identity.NewSession(context.Background(), &fakeProvider{id: id})
	require.NoError(t, err)
	t.Cleanup(session.Close)

	store := newFakeStore()
	recs := records.NewSQLiteRepository(db)
	q := queue.NewSQLiteRepository(db)
	st := settings.NewSQLiteRepository(db)

	return &fixture{
		engine:  New(session, recs, q, st, store, logging.Nop()),
		store:   store,
		records: recs,
		queue:   q,
		db:      db,
	}
}

func localRecord(id string, updatedMs int64) *models.Record {
	return &models.Record{
		Id:          id,
		Name:        "omelette",
		OccurredAt:  timex.Timestamp{Seconds: 1_700_000_000},
		OwnerId:     "owner-1",
		UpdatedAtMs: updatedMs,
		Pending:     true,
		SyncState:   models.SyncStatePending,
	}
}

func TestReconcile_AnonymousSessionIsSkipped(t *testing.T) {
	f := setup(t, "")
	ctx := context.Background()

	require.NoError(t, f.records.Put(ctx, localRecord("r1", 100)))
	require.NoError(t, f.queue.Enqueue(ctx, "r1", models.OperationCreate, localRecord("r1", 100), ""))

	require.NoError(t, f.engine.Reconcile(ctx))

	assert.Zero(t, atomic.LoadInt32(&f.store.fetchCalls), "anonymous sessions never touch the network")
	n, err := f.queue.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "writes stay queued")
}

func TestReconcile_PushesQueuedCreate(t *testing.T) {
	f := setup(t, "owner-1")
	ctx := context.Background()

	rec := localRecord("r1", 100)
	require.NoError(t, f.records.Put(ctx, rec))
	require.NoError(t, f.queue.Enqueue(ctx, "r1", models.OperationCreate, rec, "owner-1"))

	require.NoError(t, f.engine.Reconcile(ctx))

	remoteCopy, ok := f.store.collection("owner-1")["r1"]
	require.True(t, ok, "record reached the remote collection")
	assert.Equal(t, "owner-1", remoteCopy.OwnerId)

	n, err := f.queue.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	local, err := f.records.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStateSynced, local.SyncState)
	assert.False(t, local.Pending)

	status := f.engine.Status(ctx)
	assert.Equal(t, models.EngineStateIdle, status.State)
	assert.NotNil(t, status.LastSyncAt)
	assert.Empty(t, status.LastError)
}

func TestReconcile_SecondRunIsIdempotent(t *testing.T) {
	f := setup(t, "owner-1")
	ctx := context.Background()

	rec := localRecord("r1", 100)
	require.NoError(t, f.records.Put(ctx, rec))
	require.NoError(t, f.queue.Enqueue(ctx, "r1", models.OperationCreate, rec, "owner-1"))

	require.NoError(t, f.engine.Reconcile(ctx))
	require.NoError(t, f.engine.Reconcile(ctx))

	assert.Equal(t, int32(1), atomic.LoadInt32(&f.store.batchCalls),
		"nothing left to transmit on the second run")
	assert.Len(t, f.store.collection("owner-1"), 1)
}

func TestReconcile_ConcurrentCallIsNoOp(t *testing.T) {
	f := setup(t, "owner-1")
	ctx := context.Background()

	f.store.fetchGate = make(chan struct{})
	f.store.fetchStarted = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- f.engine.Reconcile(ctx) }()

	<-f.store.fetchStarted
	require.NoError(t, f.engine.Reconcile(ctx), "re-entrant call returns immediately")
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.store.fetchCalls))

	close(f.store.fetchGate)
	require.NoError(t, <-done)
}

func TestReconcile_PullAppliesFresherRemote(t *testing.T) {
	f := setup(t, "owner-1")
	ctx := context.Background()

	stale := localRecord("r1", 100)
	stale.Pending = false
	stale.SyncState = models.SyncStateSynced
	require.NoError(t, f.records.Put(ctx, stale))

	fresher := localRecord("r1", 200)
	fresher.Name = "frittata"
	f.store.collection("owner-1")["r1"] = *fresher

	require.NoError(t, f.engine.Reconcile(ctx))

	local, err := f.records.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "frittata", local.Name)
	assert.Equal(t, int64(200), local.UpdatedAtMs)
	assert.False(t, local.Pending)
	assert.Equal(t, models.SyncStateSynced, local.SyncState)
}

func TestReconcile_LocalFresherEditWinsAndIsPushed(t *testing.T) {
	f := setup(t, "owner-1")
	ctx := context.Background()

	local := localRecord("r1", 300)
	local.Name = "shakshuka"
	require.NoError(t, f.records.Put(ctx, local))

	stale := localRecord("r1", 100)
	f.store.collection("owner-1")["r1"] = *stale

	require.NoError(t, f.engine.Reconcile(ctx))

	got, err := f.records.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "shakshuka", got.Name, "stale remote never overwrites a fresher local edit")

	remoteCopy := f.store.collection("owner-1")["r1"]
	assert.Equal(t, "shakshuka", remoteCopy.Name, "the fresher copy was pushed back")

	n, err := f.queue.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReconcile_StaleQueuedEditDoesNotRegressRemote(t *testing.T) {
	f := setup(t, "owner-1")
	ctx := context.Background()

	stale := localRecord("r1", 100)
	stale.Name = "pizza"
	require.NoError(t, f.records.Put(ctx, stale))
	require.NoError(t, f.queue.Enqueue(ctx, "r1", models.OperationUpdate, stale, "owner-1"))

	fresher := localRecord("r1", 200)
	fresher.Name = "pizza deluxe"
	f.store.collection("owner-1")["r1"] = *fresher

	require.NoError(t, f.engine.Reconcile(ctx))

	local, err := f.records.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "pizza deluxe", local.Name)
	assert.Equal(t, models.SyncStateSynced, local.SyncState)

	remoteCopy := f.store.collection("owner-1")["r1"]
	assert.Equal(t, "pizza deluxe", remoteCopy.Name,
		"a queued edit that lost last-writer-wins is never transmitted")
	assert.Equal(t, int64(200), remoteCopy.UpdatedAtMs)

	n, err := f.queue.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "the losing edit leaves the queue without flushing")
}

func TestReconcile_QueuedDeleteIsNotResurrected(t *testing.T) {
	f := setup(t, "owner-1")
	ctx := context.Background()

	// the user deleted r1 while offline
	require.NoError(t, f.queue.Enqueue(ctx, "r1", models.OperationDelete, nil, "owner-1"))
	f.store.collection("owner-1")["r1"] = *localRecord("r1", 100)

	require.NoError(t, f.engine.Reconcile(ctx))

	_, err := f.records.Get(ctx, "r1")
	assert.ErrorIs(t, err, common.ErrorNotFound, "pull must not resurrect a locally deleted record")
	assert.Empty(t, f.store.collection("owner-1"), "the delete was flushed")

	n, err := f.queue.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReconcile_AdoptsForeignOwnedRecords(t *testing.T) {
	f := setup(t, "owner-1")
	ctx := context.Background()

	orphan := localRecord("r1", 100)
	orphan.OwnerId = ""
	orphan.Pending = false
	orphan.SyncState = models.SyncStateSynced
	require.NoError(t, f.records.Put(ctx, orphan))

	require.NoError(t, f.engine.Reconcile(ctx))

	local, err := f.records.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "owner-1", local.OwnerId)

	remoteCopy, ok := f.store.collection("owner-1")["r1"]
	require.True(t, ok)
	assert.Equal(t, "owner-1", remoteCopy.OwnerId)
}

func TestFlush_BatchWithSingleRejection(t *testing.T) {
	f := setup(t, "owner-1")
	ctx := context.Background()

	const total = 500
	for i := 1; i <= total; i++ {
		rec := localRecord(fmt.Sprintf("rec-%03d", i), 100)
		require.NoError(t, f.records.Put(ctx, rec))
		require.NoError(t, f.queue.Enqueue(ctx, rec.Id, models.OperationCreate, rec, "owner-1"))
	}
	f.store.rejectRecordId = "rec-250"

	require.NoError(t, f.engine.Reconcile(ctx), "per-item rejections do not fail the cycle")

	assert.Len(t, f.store.collection("owner-1"), total-1)

	items, err := f.queue.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1, "only the rejected item stays queued")
	assert.Equal(t, "rec-250", items[0].EntityId)
	assert.Equal(t, 1, items[0].RetryCount)
	assert.Equal(t, "rejected by server", items[0].LastError)

	failed, err := f.records.Get(ctx, "rec-250")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStateError, failed.SyncState)
	assert.True(t, failed.Pending)

	ok, err := f.records.Get(ctx, "rec-001")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStateSynced, ok.SyncState)
}

func TestReconcile_TransportFailureKeepsEverythingQueued(t *testing.T) {
	f := setup(t, "owner-1")
	ctx := context.Background()

	rec := localRecord("r1", 100)
	require.NoError(t, f.records.Put(ctx, rec))
	require.NoError(t, f.queue.Enqueue(ctx, "r1", models.OperationCreate, rec, "owner-1"))
	f.store.batchErr = errors.New("network down")

	err := f.engine.Reconcile(ctx)
	require.Error(t, err)

	items, err := f.queue.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1, "the item survives for the next trigger")
	assert.GreaterOrEqual(t, items[0].RetryCount, 1)

	local, err := f.records.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStateError, local.SyncState)

	status := f.engine.Status(ctx)
	assert.Equal(t, models.EngineStateIdleOnError, status.State)
	assert.NotEmpty(t, status.LastError)
	assert.Nil(t, status.LastSyncAt)
}

func TestReconcile_ErrorStateClearsOnSuccess(t *testing.T) {
	f := setup(t, "owner-1")
	ctx := context.Background()

	rec := localRecord("r1", 100)
	require.NoError(t, f.records.Put(ctx, rec))
	require.NoError(t, f.queue.Enqueue(ctx, "r1", models.OperationCreate, rec, "owner-1"))

	f.store.batchErr = errors.New("network down")
	require.Error(t, f.engine.Reconcile(ctx))

	f.store.batchErr = nil
	require.NoError(t, f.engine.Reconcile(ctx))

	status := f.engine.Status(ctx)
	assert.Equal(t, models.EngineStateIdle, status.State)
	assert.Empty(t, status.LastError)
	assert.NotNil(t, status.LastSyncAt)
}

func TestHandleLink_MigratesAndReconciles(t *testing.T) {
	f := setup(t, "owner-1")
	ctx := context.Background()

	anon := localRecord("r1", 100)
	anon.OwnerId = ""
	require.NoError(t, f.records.Put(ctx, anon))
	require.NoError(t, f.queue.Enqueue(ctx, "r1", models.OperationCreate, anon, ""))

	require.NoError(t, f.engine.HandleLink(ctx, "owner-1"))

	local, err := f.records.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "owner-1", local.OwnerId)

	remoteCopy, ok := f.store.collection("owner-1")["r1"]
	require.True(t, ok, "backlog pushed after linking")
	assert.Equal(t, "owner-1", remoteCopy.OwnerId)

	n, err := f.queue.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStatus_CountsPending(t *testing.T) {
	f := setup(t, "owner-1")
	ctx := context.Background()

	require.NoError(t, f.queue.Enqueue(ctx, "a", models.OperationCreate, localRecord("a", 1), ""))
	require.NoError(t, f.queue.Enqueue(ctx, "b", models.OperationCreate, localRecord("b", 1), ""))

	status := f.engine.Status(ctx)
	assert.Equal(t, 2, status.PendingCount)
	assert.Equal(t, models.EngineStateIdle, status.State)
	assert.False(t, status.RealtimeConnected)
}

func TestReconcile_PersistsLastSyncTime(t *testing.T) {
	f := setup(t, "owner-1")
	ctx := context.Background()

	fixed := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	f.engine.now = func() time.Time { return fixed }

	require.NoError(t, f.engine.Reconcile(ctx))

	var raw string
	require.NoError(t, f.db.QueryRow(
		`SELECT value FROM settings WHERE key = ?`, models.SettingLastSyncAt).Scan(&raw))
	assert.Equal(t, fixed.Format(time.RFC3339), raw)
}
