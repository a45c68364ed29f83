package queue

import (
	"context"

	"github.com/akarpov87/mealkeep/internal/models"
)

// NoopRepository drops every mutation. Used when the local database is
// unavailable; there is nothing durable to flush anyway.
type NoopRepository struct{}

func (NoopRepository) Enqueue(ctx context.Context, entityID string, op models.Operation, payload *models.Record, targetOwnerID string) error {
	return nil
}

func (NoopRepository) ListPending(ctx context.Context) ([]models.QueueItem, error) { return nil, nil }

func (NoopRepository) Dequeue(ctx context.Context, id string) error { return nil }

func (NoopRepository) UpdateRetry(ctx context.Context, id string, cause string) error { return nil }

func (NoopRepository) ReassignOwner(ctx context.Context, newOwnerID string) (int, error) {
	return 0, nil
}

func (NoopRepository) CountPending(ctx context.Context) (int, error) { return 0, nil }
