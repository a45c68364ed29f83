package queue

import (
	"context"

	"github.com/akarpov87/mealkeep/internal/models"
)

// Repository buffers pending mutations independently of network
// availability. At most one active item exists per entity id; Enqueue
// coalesces repeated edits into the latest payload.
type Repository interface {
	// Enqueue records a mutation, merging into any active item for the
	// same entity:
	//   - update over create stays a create with the new payload
	//   - update over update keeps the latest payload
	//   - delete collapses a pending update into a delete
	//   - delete over a never-flushed create elides both (the remote
	//     never saw the record, so transmitting a delete could remove
	//     someone else's copy)
	Enqueue(ctx context.Context, entityID string, op models.Operation, payload *models.Record, targetOwnerID string) error

	// ListPending returns all items ordered by timestamp ascending.
	ListPending(ctx context.Context) ([]models.QueueItem, error)

	// Dequeue removes an item after it was applied remotely.
	Dequeue(ctx context.Context, id string) error

	// UpdateRetry increments the retry counter and records the failure.
	UpdateRetry(ctx context.Context, id string, cause string) error

	// ReassignOwner rewrites TargetOwnerId on every queued item so pending
	// work is not orphaned when an anonymous identity is linked.
	ReassignOwner(ctx context.Context, newOwnerID string) (int, error)

	// CountPending returns the number of queued items.
	CountPending(ctx context.Context) (int, error)
}
