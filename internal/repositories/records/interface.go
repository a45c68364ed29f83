package records

import (
	"context"

	"github.com/akarpov87/mealkeep/internal/models"
	"github.com/akarpov87/mealkeep/internal/timex"
)

// Repository is the single source of truth for on-device records. Every
// flow that mutates a record (UI, sync engine, import pipeline) must go
// through Put/Delete here so the aggregate-count invariant is never
// bypassed.
type Repository interface {
	// Put inserts or fully replaces a record and recomputes the aggregate
	// record count in the same transaction.
	Put(ctx context.Context, rec *models.Record) error

	// Get returns a record by id, or common.ErrorNotFound.
	Get(ctx context.Context, id string) (*models.Record, error)

	// ListAll returns a materialized view of every record.
	ListAll(ctx context.Context) ([]models.Record, error)

	// ListByName returns records with the exact name, via the name index.
	ListByName(ctx context.Context, name string) ([]models.Record, error)

	// ListByDateRange returns records whose OccurredAt falls in
	// [from, to), via the date index.
	ListByDateRange(ctx context.Context, from, to timex.Timestamp) ([]models.Record, error)

	// Delete removes the record and updates the aggregate count
	// atomically. Deleting an absent id is not an error.
	Delete(ctx context.Context, id string) error

	// Count returns the persisted aggregate record count.
	Count(ctx context.Context) (int, error)

	// MarkSyncState updates only the sync bookkeeping columns of a record.
	MarkSyncState(ctx context.Context, id string, state models.SyncState, pending bool) error

	// ReassignOwner rewrites the owner of every record that does not yet
	// belong to newOwnerID and returns how many rows changed.
	ReassignOwner(ctx context.Context, newOwnerID string) (int, error)
}
