package records

import (
	"context"

	"github.com/akarpov87/mealkeep/internal/common"
	"github.com/akarpov87/mealkeep/internal/models"
	"github.com/akarpov87/mealkeep/internal/timex"
)

// NoopRepository is used when the local database cannot be opened. Every
// operation degrades to an empty result or a silent no-op: offline-first
// means the app keeps functioning as a scratchpad rather than raising on
// each call.
type NoopRepository struct{}

func (NoopRepository) Put(ctx context.Context, rec *models.Record) error { return nil }

func (NoopRepository) Get(ctx context.Context, id string) (*models.Record, error) {
	return nil, common.ErrorNotFound
}

func (NoopRepository) ListAll(ctx context.Context) ([]models.Record, error) { return nil, nil }

func (NoopRepository) ListByName(ctx context.Context, name string) ([]models.Record, error) {
	return nil, nil
}

func (NoopRepository) ListByDateRange(ctx context.Context, from, to timex.Timestamp) ([]models.Record, error) {
	return nil, nil
}

func (NoopRepository) Delete(ctx context.Context, id string) error { return nil }

func (NoopRepository) Count(ctx context.Context) (int, error) { return 0, nil }

func (NoopRepository) MarkSyncState(ctx context.Context, id string, state models.SyncState, pending bool) error {
	return nil
}

func (NoopRepository) ReassignOwner(ctx context.Context, newOwnerID string) (int, error) {
	return 0, nil
}
