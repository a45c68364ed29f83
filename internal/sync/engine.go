// Package sync orchestrates reconciliation between the local store and
// the remote record store: pull by freshness, queue flush, and the live
// change subscription.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/akarpov87/mealkeep/internal/common"
	"github.com/akarpov87/mealkeep/internal/conflict"
	"github.com/akarpov87/mealkeep/internal/identity"
	"github.com/akarpov87/mealkeep/internal/logging"
	"github.com/akarpov87/mealkeep/internal/models"
	"github.com/akarpov87/mealkeep/internal/remote"
	"github.com/akarpov87/mealkeep/internal/repositories/queue"
	"github.com/akarpov87/mealkeep/internal/repositories/records"
	"github.com/akarpov87/mealkeep/internal/repositories/settings"
)

// Engine runs the per-session sync state machine:
// Idle -> Reconciling -> (Listening | Idle-on-error). Triggers are
// sign-in, manual sync, regaining connectivity, and remote change
// notifications; all of them funnel into Reconcile, which is safe to
// invoke concurrently with itself (a re-entrant call is a no-op).
type Engine struct {
	session  *identity.Session
	records  records.Repository
	queue    queue.Repository
	settings settings.Repository
	remote   remote.Store
	log      logging.Logger

	// busy serializes reconciliation so a duplicate flush of the same
	// queue item can never double-apply.
	busy atomic.Bool

	mu                sync.Mutex
	state             models.EngineState
	lastSyncAt        *time.Time
	lastError         string
	realtimeConnected bool
	sub               remote.Subscription

	// now is swappable in tests.
	now func() time.Time
}

// New builds an engine for one session. The caller owns the session and
// its subscription; the engine never reaches for global identity state.
func New(session *identity.Session, recs records.Repository, q queue.Repository,
	st settings.Repository, rem remote.Store, log logging.Logger) *Engine {
	return &Engine{
		session:  session,
		records:  recs,
		queue:    q,
		settings: st,
		remote:   rem,
		log:      log,
		state:    models.EngineStateIdle,
		now:      time.Now,
	}
}

// Status returns the snapshot the rendering layer polls.
func (e *Engine) Status(ctx context.Context) models.SyncStatus {
	pending, err := e.queue.CountPending(ctx)
	if err != nil {
		e.log.Warn(ctx, "failed to count pending items", "error", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return models.SyncStatus{
		State:             e.state,
		PendingCount:      pending,
		LastSyncAt:        e.lastSyncAt,
		LastError:         e.lastError,
		RealtimeConnected: e.realtimeConnected,
	}
}

// Reconcile runs one pull -> push-candidates -> flush -> pull cycle for
// the session's owner. Anonymous sessions keep their writes queued and
// never touch the network. A call while another reconciliation is
// in-flight returns immediately.
func (e *Engine) Reconcile(ctx context.Context) error {
	if !e.busy.CompareAndSwap(false, true) {
		e.log.Debug(ctx, "reconcile already in flight, skipping")
		return nil
	}
	defer e.busy.Store(false)

	owner := e.session.Owner()
	if owner == "" {
		e.log.Debug(ctx, "anonymous session, local writes stay queued")
		return nil
	}

	e.setState(models.EngineStateReconciling)
	err := e.reconcile(ctx, owner)

	e.mu.Lock()
	if err != nil {
		e.state = models.EngineStateIdleOnError
		e.lastError = err.Error()
	} else {
		now := e.now()
		e.lastSyncAt = &now
		e.lastError = ""
		if e.realtimeConnected {
			e.state = models.EngineStateListening
		} else {
			e.state = models.EngineStateIdle
		}
	}
	e.mu.Unlock()

	if err == nil {
		if serr := e.settings.Set(ctx, models.SettingLastSyncAt,
			[]byte(e.now().UTC().Format(time.RFC3339))); serr != nil {
			e.log.Warn(ctx, "failed to persist last sync time", "error", serr)
		}
	}
	return err
}

func (e *Engine) reconcile(ctx context.Context, owner string) error {
	remoteFresh, err := e.pull(ctx, owner)
	if err != nil {
		return fmt.Errorf("pull: %w", err)
	}

	if err := e.enqueuePushCandidates(ctx, owner, remoteFresh); err != nil {
		return fmt.Errorf("collect push candidates: %w", err)
	}

	if err := e.flush(ctx, owner); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	// Absorb anything the flush itself changed remotely.
	if _, err := e.pull(ctx, owner); err != nil {
		return fmt.Errorf("post-flush pull: %w", err)
	}
	return nil
}

// pull fetches the owner's remote collection and applies every record
// that is absent locally or strictly fresher than the local copy.
// Returns the remote freshness per record id for the push-candidate scan.
func (e *Engine) pull(ctx context.Context, owner string) (map[string]int64, error) {
	remoteRecords, err := e.remote.FetchAll(ctx, owner)
	if err != nil {
		return nil, err
	}

	queued, err := e.queuedItems(ctx)
	if err != nil {
		return nil, err
	}

	fresh := make(map[string]int64, len(remoteRecords))
	applied := 0
	for i := range remoteRecords {
		rec := &remoteRecords[i]
		fresh[rec.Id] = conflict.Freshness(rec)

		// A queued delete means the user removed this record while
		// offline; applying the remote copy would resurrect it just to
		// delete it again after the flush.
		if item, ok := queued[rec.Id]; ok && item.Op == models.OperationDelete {
			continue
		}

		ok, err := e.applyRemote(ctx, rec)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		applied++

		// The local edit lost last-writer-wins; transmitting its queued
		// payload would regress the remote copy it just lost to.
		if item, queuedEdit := queued[rec.Id]; queuedEdit {
			if err := e.queue.Dequeue(ctx, item.Id); err != nil {
				return nil, err
			}
		}
	}

	e.log.Debug(ctx, "pull complete", "remote", len(remoteRecords), "considered", applied)
	return fresh, nil
}

// applyRemote writes a remote record into the local store when it wins
// the freshness comparison and reports whether it did. Never overwrites
// fresher local pending edits.
func (e *Engine) applyRemote(ctx context.Context, rec *models.Record) (bool, error) {
	local, err := e.records.Get(ctx, rec.Id)
	switch {
	case err == nil:
		if conflict.Freshness(rec) <= conflict.Freshness(local) {
			return false, nil
		}
	case errors.Is(err, common.ErrorNotFound):
		// absent locally: creation, not a conflict
	default:
		return false, err
	}

	incoming := rec.Clone()
	incoming.Pending = false
	incoming.SyncState = models.SyncStateSynced
	if err := e.records.Put(ctx, &incoming); err != nil {
		return false, err
	}
	return true, nil
}

// enqueuePushCandidates queues every local record that either belongs to
// a different owner or is strictly fresher than the best-known remote
// copy.
func (e *Engine) enqueuePushCandidates(ctx context.Context, owner string, remoteFresh map[string]int64) error {
	locals, err := e.records.ListAll(ctx)
	if err != nil {
		return err
	}

	for i := range locals {
		rec := &locals[i]
		rf, existsRemote := remoteFresh[rec.Id]

		needsPush := rec.OwnerId != owner ||
			(existsRemote && conflict.Freshness(rec) > rf) ||
			!existsRemote

		if !needsPush {
			if rec.Pending {
				// Nothing to transmit; the remote copy is as fresh as ours.
				if err := e.records.MarkSyncState(ctx, rec.Id, models.SyncStateSynced, false); err != nil {
					return err
				}
			}
			continue
		}

		if rec.OwnerId != owner {
			claimed := rec.Clone()
			claimed.OwnerId = owner
			claimed.Pending = true
			claimed.SyncState = models.SyncStatePending
			if err := e.records.Put(ctx, &claimed); err != nil {
				return err
			}
			*rec = claimed
		}

		op := models.OperationUpdate
		if !existsRemote {
			op = models.OperationCreate
		}
		payload := rec.Clone()
		if err := e.queue.Enqueue(ctx, rec.Id, op, &payload, owner); err != nil {
			return err
		}
	}
	return nil
}

// flush drains the queue oldest-first in batches. Per-item failures keep
// the item queued with an incremented retry count and mark the record
// error; the rest of the batch proceeds.
func (e *Engine) flush(ctx context.Context, owner string) error {
	items, err := e.queue.ListPending(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	pushed, failed := 0, 0
	for start := 0; start < len(items); start += common.MaxBatchOps {
		end := start + common.MaxBatchOps
		if end > len(items) {
			end = len(items)
		}
		chunk := items[start:end]

		results, err := e.batchWrite(ctx, owner, chunk)
		if err != nil {
			// Transport-level failure: every item in the chunk stays
			// queued for the next trigger and the flush stops here.
			for _, item := range chunk {
				if rerr := e.queue.UpdateRetry(ctx, item.Id, err.Error()); rerr != nil {
					e.log.Warn(ctx, "failed to record retry", "item", item.Id, "error", rerr)
				}
				if merr := e.records.MarkSyncState(ctx, item.EntityId, models.SyncStateError, true); merr != nil {
					e.log.Warn(ctx, "failed to mark record", "record", item.EntityId, "error", merr)
				}
			}
			return err
		}

		for i, res := range results {
			item := chunk[i]
			if res.Failed() {
				failed++
				if rerr := e.queue.UpdateRetry(ctx, item.Id, res.Error); rerr != nil {
					e.log.Warn(ctx, "failed to record retry", "item", item.Id, "error", rerr)
				}
				if merr := e.records.MarkSyncState(ctx, item.EntityId, models.SyncStateError, true); merr != nil {
					e.log.Warn(ctx, "failed to mark record", "record", item.EntityId, "error", merr)
				}
				continue
			}

			pushed++
			if err := e.queue.Dequeue(ctx, item.Id); err != nil {
				return err
			}
			if item.Op != models.OperationDelete {
				if err := e.records.MarkSyncState(ctx, item.EntityId, models.SyncStateSynced, false); err != nil {
					return err
				}
			}
		}
	}

	e.log.Info(ctx, "flush complete", "pushed", pushed, "failed", failed)
	return nil
}

// batchWrite commits one chunk, retrying transient transport errors with
// fibonacci backoff before declaring the chunk failed.
func (e *Engine) batchWrite(ctx context.Context, owner string, chunk []models.QueueItem) ([]remote.OpResult, error) {
	ops := make([]remote.Op, len(chunk))
	for i, item := range chunk {
		op := remote.Op{Op: item.Op, RecordId: item.EntityId}
		if item.Payload != nil {
			payload := item.Payload.Clone()
			payload.OwnerId = owner
			op.Record = &payload
		}
		ops[i] = op
	}

	var results []remote.OpResult
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var berr error
		results, berr = e.remote.BatchWrite(ctx, owner, ops)
		if berr != nil {
			return retry.RetryableError(berr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Engine) queuedItems(ctx context.Context) (map[string]models.QueueItem, error) {
	items, err := e.queue.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	byEntity := make(map[string]models.QueueItem, len(items))
	for _, item := range items {
		byEntity[item.EntityId] = item
	}
	return byEntity, nil
}

func (e *Engine) setState(state models.EngineState) {
	e.mu.Lock()
	e.state = state
	e.mu.Unlock()
}

