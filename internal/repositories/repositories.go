// Package repositories wires the local SQLite database and hands out the
// per-table repositories.
package repositories

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"

	"github.com/akarpov87/mealkeep/internal/logging"
	"github.com/akarpov87/mealkeep/internal/migrations"
	"github.com/akarpov87/mealkeep/internal/repositories/queue"
	"github.com/akarpov87/mealkeep/internal/repositories/records"
	"github.com/akarpov87/mealkeep/internal/repositories/settings"
)

// Repositories bundles every local store the engine reads and writes.
// When Degraded is true the underlying database could not be opened and
// all repositories are no-ops: the app still runs as a local scratchpad.
type Repositories struct {
	Records  records.Repository
	Queue    queue.Repository
	Settings settings.Repository
	Degraded bool

	db *sql.DB
}

// RunMigrations applies all pending goose migrations from the embedded
// filesystem.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetLogger(goose.NopLogger())
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// InitDatabase opens the SQLite database at dsn, migrates it, and returns
// the repository set. Storage failures do not propagate: the returned set
// is degraded to no-ops instead, because "no local storage" is a valid,
// if diminished, state for an offline-first app.
func InitDatabase(ctx context.Context, dsn string, log logging.Logger) *Repositories {
	db, err := sql.Open("sqlite", dsn)
	if err == nil {
		err = db.PingContext(ctx)
	}
	if err == nil {
		err = RunMigrations(ctx, db)
	}
	if err != nil {
		log.Warn(ctx, "local storage unavailable, running degraded", "dsn", dsn, "error", err)
		if db != nil {
			_ = db.Close()
		}
		return &Repositories{
			Records:  records.NoopRepository{},
			Queue:    queue.NoopRepository{},
			Settings: settings.NoopRepository{},
			Degraded: true,
		}
	}

	return &Repositories{
		Records:  records.NewSQLiteRepository(db),
		Queue:    queue.NewSQLiteRepository(db),
		Settings: settings.NewSQLiteRepository(db),
		db:       db,
	}
}

// Close releases the database handle.
func (r *Repositories) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}
