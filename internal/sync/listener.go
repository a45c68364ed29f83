package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/akarpov87/mealkeep/internal/common"
	"github.com/akarpov87/mealkeep/internal/models"
	"github.com/akarpov87/mealkeep/internal/remote"
)

// Listen subscribes to remote change notifications for the session's
// owner and applies each event under the same freshness rule as a pull.
// A dropped subscription only clears realtimeConnected; the next manual
// sync or reconnect re-establishes it.
func (e *Engine) Listen(ctx context.Context) error {
	owner := e.session.Owner()
	if owner == "" {
		return common.ErrorAnonymousSession
	}

	e.mu.Lock()
	if e.sub != nil {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	sub, err := e.remote.Subscribe(ctx, owner)
	if err != nil {
		e.mu.Lock()
		e.realtimeConnected = false
		e.lastError = err.Error()
		e.mu.Unlock()
		return fmt.Errorf("listen: %w", err)
	}

	e.mu.Lock()
	e.sub = sub
	e.realtimeConnected = true
	e.state = models.EngineStateListening
	e.mu.Unlock()

	go e.consume(ctx, sub)
	return nil
}

func (e *Engine) consume(ctx context.Context, sub remote.Subscription) {
	for ev := range sub.Events() {
		if err := e.applyEvent(ctx, ev); err != nil {
			e.log.Warn(ctx, "failed to apply remote event",
				"type", string(ev.Type), "record", ev.RecordId, "error", err)
		}
	}

	if err := sub.Err(); err != nil {
		e.log.Warn(ctx, "realtime subscription dropped", "error", err)
	}

	e.mu.Lock()
	if e.sub == sub {
		e.sub = nil
	}
	e.realtimeConnected = false
	if e.state == models.EngineStateListening {
		e.state = models.EngineStateIdle
	}
	e.mu.Unlock()
}

// applyEvent folds one live notification into the local store. Stale
// events never overwrite fresher local pending edits.
func (e *Engine) applyEvent(ctx context.Context, ev remote.Event) error {
	switch ev.Type {
	case remote.EventAdded, remote.EventModified:
		if ev.Record == nil {
			return fmt.Errorf("event without record payload")
		}
		queued, err := e.queuedItems(ctx)
		if err != nil {
			return err
		}
		item, queuedEdit := queued[ev.Record.Id]
		if queuedEdit && item.Op == models.OperationDelete {
			return nil
		}
		applied, err := e.applyRemote(ctx, ev.Record)
		if err != nil {
			return err
		}
		// A queued edit that lost last-writer-wins must not be
		// transmitted; it would regress the remote copy.
		if applied && queuedEdit {
			return e.queue.Dequeue(ctx, item.Id)
		}
		return nil

	case remote.EventRemoved:
		id := ev.RecordId
		if id == "" && ev.Record != nil {
			id = ev.Record.Id
		}
		local, err := e.records.Get(ctx, id)
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		// A pending local edit outlives the remote deletion; the next
		// flush pushes our copy back.
		if local.Pending {
			return nil
		}
		return e.records.Delete(ctx, id)

	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
}

// StopListening closes the live subscription if one is open.
func (e *Engine) StopListening() {
	e.mu.Lock()
	sub := e.sub
	e.sub = nil
	e.mu.Unlock()
	if sub != nil {
		_ = sub.Close()
	}
}

// HandleLink reacts to an anonymous identity being linked to a durable
// credential: every queued item and local record is rewritten to the new
// owner, then a reconciliation pushes the backlog. Wire it to
// Session.OnLink.
func (e *Engine) HandleLink(ctx context.Context, ownerID string) error {
	nQueue, err := e.queue.ReassignOwner(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("reassign queue owner: %w", err)
	}
	nRecords, err := e.records.ReassignOwner(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("reassign record owner: %w", err)
	}
	e.log.Info(ctx, "identity linked", "owner", ownerID,
		"queue_items", nQueue, "records", nRecords)

	return e.Reconcile(ctx)
}
