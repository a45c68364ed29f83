// Package records implements the local durable store for logged meals.
package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/akarpov87/mealkeep/internal/common"
	"github.com/akarpov87/mealkeep/internal/dbx"
	"github.com/akarpov87/mealkeep/internal/models"
	"github.com/akarpov87/mealkeep/internal/timex"
)

const recordColumns = `id, name, occurred_at_sec, occurred_at_nsec, owner_id, hidden, tags, updated_at_ms, pending, sync_state`

// SQLiteRepository implements Repository over a *sql.DB. Mutations run
// inside a transaction together with the aggregate-count update.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository returns a new SQLiteRepository bound to db.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Put(ctx context.Context, rec *models.Record) error {
	tags, err := json.Marshal(rec.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	if rec.Tags == nil {
		tags = []byte("[]")
	}

	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		query := `INSERT INTO records (` + recordColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				occurred_at_sec = excluded.occurred_at_sec,
				occurred_at_nsec = excluded.occurred_at_nsec,
				owner_id = excluded.owner_id,
				hidden = excluded.hidden,
				tags = excluded.tags,
				updated_at_ms = excluded.updated_at_ms,
				pending = excluded.pending,
				sync_state = excluded.sync_state
		`
		_, err := tx.ExecContext(ctx, query,
			rec.Id, rec.Name, rec.OccurredAt.Seconds, rec.OccurredAt.Nanos,
			rec.OwnerId, rec.Hidden, string(tags), rec.UpdatedAtMs,
			rec.Pending, string(rec.SyncState))
		if err != nil {
			return fmt.Errorf("failed to upsert record: %w", err)
		}
		return refreshCount(ctx, tx)
	})
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE id = ?`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, nil
}

func (r *SQLiteRepository) ListAll(ctx context.Context) ([]models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records ORDER BY occurred_at_sec, occurred_at_nsec`
	return r.list(ctx, query)
}

func (r *SQLiteRepository) ListByName(ctx context.Context, name string) ([]models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE name = ? ORDER BY occurred_at_sec, occurred_at_nsec`
	return r.list(ctx, query, name)
}

func (r *SQLiteRepository) ListByDateRange(ctx context.Context, from, to timex.Timestamp) ([]models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records
		WHERE occurred_at_sec >= ? AND occurred_at_sec < ?
		ORDER BY occurred_at_sec, occurred_at_nsec`
	return r.list(ctx, query, from.Seconds, to.Seconds)
}

func (r *SQLiteRepository) list(ctx context.Context, query string, args ...any) ([]models.Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	var result []models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete record: %w", err)
		}
		return refreshCount(ctx, tx)
	})
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, models.SettingRecordCount).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read record count: %w", err)
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, fmt.Errorf("corrupt record count %q: %w", raw, err)
	}
	return n, nil
}

func (r *SQLiteRepository) MarkSyncState(ctx context.Context, id string, state models.SyncState, pending bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE records SET sync_state = ?, pending = ? WHERE id = ?`,
		string(state), pending, id)
	if err != nil {
		return fmt.Errorf("failed to mark sync state: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ReassignOwner(ctx context.Context, newOwnerID string) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE records SET owner_id = ?, pending = 1, sync_state = ? WHERE owner_id != ?`,
		newOwnerID, string(models.SyncStatePending), newOwnerID)
	if err != nil {
		return 0, fmt.Errorf("failed to reassign owner: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(ra), nil
}

// refreshCount recomputes the aggregate record count inside the caller's
// transaction so the counter never drifts from the table contents.
func refreshCount(ctx context.Context, tx dbx.DBTX) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO settings (key, value)
		VALUES (?, (SELECT CAST(COUNT(*) AS TEXT) FROM records))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, models.SettingRecordCount)
	if err != nil {
		return fmt.Errorf("failed to refresh record count: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		rec   models.Record
		tags  string
		state string
	)
	err := row.Scan(&rec.Id, &rec.Name, &rec.OccurredAt.Seconds, &rec.OccurredAt.Nanos,
		&rec.OwnerId, &rec.Hidden, &tags, &rec.UpdatedAtMs, &rec.Pending, &state)
	if err != nil {
		return nil, err
	}
	rec.SyncState = models.SyncState(state)
	if err := json.Unmarshal([]byte(tags), &rec.Tags); err != nil {
		return nil, fmt.Errorf("corrupt tags for record %s: %w", rec.Id, err)
	}
	if len(rec.Tags) == 0 {
		rec.Tags = nil
	}
	return &rec, nil
}
