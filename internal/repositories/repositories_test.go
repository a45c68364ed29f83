package repositories

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/akarpov87/mealkeep/internal/common"
	"github.com/akarpov87/mealkeep/internal/logging"
	"github.com/akarpov87/mealkeep/internal/models"
	"github.com/akarpov87/mealkeep/internal/timex"
)

func TestInitDatabase_MigratesAndServes(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "test.db")

	repos := InitDatabase(ctx, dsn, logging.Nop())
	t.Cleanup(func() { _ = repos.Close() })

	require.False(t, repos.Degraded)

	rec := &models.Record{
		Id:          "r1",
		Name:        "salad",
		OccurredAt:  timex.Timestamp{Seconds: 1_700_000_000},
		UpdatedAtMs: 1,
	}
	require.NoError(t, repos.Records.Put(ctx, rec))

	got, err := repos.Records.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "salad", got.Name)

	require.NoError(t, repos.Queue.Enqueue(ctx, "r1", models.OperationCreate, rec, ""))
	n, err := repos.Queue.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, repos.Settings.Set(ctx, "k", []byte("v")))
}

func TestInitDatabase_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "test.db")

	repos := InitDatabase(ctx, dsn, logging.Nop())
	require.False(t, repos.Degraded)
	require.NoError(t, repos.Records.Put(ctx, &models.Record{
		Id:          "r1",
		Name:        "stew",
		OccurredAt:  timex.Timestamp{Seconds: 1_700_000_000},
		UpdatedAtMs: 1,
	}))
	require.NoError(t, repos.Close())

	// migrations are idempotent across restarts
	repos = InitDatabase(ctx, dsn, logging.Nop())
	t.Cleanup(func() { _ = repos.Close() })
	require.False(t, repos.Degraded)

	got, err := repos.Records.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "stew", got.Name)
}

func TestInitDatabase_DegradesWhenStorageUnavailable(t *testing.T) {
	ctx := context.Background()

	// a directory is not a database file
	repos := InitDatabase(ctx, t.TempDir(), logging.Nop())
	t.Cleanup(func() { _ = repos.Close() })

	require.True(t, repos.Degraded)

	// degraded repositories accept writes and report emptiness, never errors
	rec := &models.Record{Id: "r1", Name: "x", UpdatedAtMs: 1}
	assert.NoError(t, repos.Records.Put(ctx, rec))

	_, err := repos.Records.Get(ctx, "r1")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	n, err := repos.Records.Count(ctx)
	assert.NoError(t, err)
	assert.Zero(t, n)

	assert.NoError(t, repos.Queue.Enqueue(ctx, "r1", models.OperationCreate, rec, ""))
	pending, err := repos.Queue.CountPending(ctx)
	assert.NoError(t, err)
	assert.Zero(t, pending)
}
