// Package queue implements the durable log of mutations awaiting
// transmission to the remote store.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/akarpov87/mealkeep/internal/dbx"
	"github.com/akarpov87/mealkeep/internal/models"
)

// SQLiteRepository implements Repository over a *sql.DB. Coalescing runs
// inside a transaction so concurrent enqueues for one entity cannot
// produce two active rows.
type SQLiteRepository struct {
	db *sql.DB

	// now is swappable in tests.
	now func() time.Time
}

// NewSQLiteRepository returns a new SQLiteRepository bound to db.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

func (r *SQLiteRepository) Enqueue(ctx context.Context, entityID string, op models.Operation, payload *models.Record, targetOwnerID string) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		existing, err := getByEntity(ctx, tx, entityID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to read active queue item: %w", err)
		}

		if existing == nil {
			return insertItem(ctx, tx, &models.QueueItem{
				Id:            uuid.NewString(),
				EntityId:      entityID,
				Op:            op,
				Payload:       payload,
				TargetOwnerId: targetOwnerID,
				TimestampMs:   r.now().UnixMilli(),
			})
		}

		merged := coalesce(existing, op, payload, targetOwnerID)
		if merged == nil {
			// create followed by delete before any flush: net zero.
			_, err := tx.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, existing.Id)
			if err != nil {
				return fmt.Errorf("failed to elide queue item: %w", err)
			}
			return nil
		}

		return updateItem(ctx, tx, merged)
	})
}

// coalesce merges a new mutation into the active item. Returns nil when
// both operations cancel out.
func coalesce(existing *models.QueueItem, op models.Operation, payload *models.Record, targetOwnerID string) *models.QueueItem {
	merged := *existing
	if targetOwnerID != "" {
		merged.TargetOwnerId = targetOwnerID
	}

	switch op {
	case models.OperationDelete:
		if existing.Op == models.OperationCreate {
			return nil
		}
		merged.Op = models.OperationDelete
		merged.Payload = nil
	default:
		// A create stays a create until it has been flushed once; only the
		// payload advances.
		if existing.Op != models.OperationCreate {
			merged.Op = op
		}
		merged.Payload = payload
	}
	return &merged
}

func (r *SQLiteRepository) ListPending(ctx context.Context) ([]models.QueueItem, error) {
	query := `SELECT id, entity_id, operation, payload, target_owner_id, timestamp_ms, retry_count, last_error
		FROM sync_queue ORDER BY timestamp_ms ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select queue items: %w", err)
	}
	defer rows.Close()

	var result []models.QueueItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Dequeue(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to dequeue item: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) UpdateRetry(ctx context.Context, id string, cause string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sync_queue SET retry_count = retry_count + 1, last_error = ? WHERE id = ?`,
		cause, id)
	if err != nil {
		return fmt.Errorf("failed to update retry info: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ReassignOwner(ctx context.Context, newOwnerID string) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sync_queue SET target_owner_id = ?`, newOwnerID)
	if err != nil {
		return 0, fmt.Errorf("failed to reassign queue owner: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(ra), nil
}

func (r *SQLiteRepository) CountPending(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count queue items: %w", err)
	}
	return n, nil
}

func getByEntity(ctx context.Context, tx dbx.DBTX, entityID string) (*models.QueueItem, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT id, entity_id, operation, payload, target_owner_id, timestamp_ms, retry_count, last_error
		 FROM sync_queue WHERE entity_id = ?`, entityID)
	return scanItem(row)
}

func insertItem(ctx context.Context, tx dbx.DBTX, item *models.QueueItem) error {
	payload, err := marshalPayload(item.Payload)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sync_queue (id, entity_id, operation, payload, target_owner_id, timestamp_ms, retry_count, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, item.Id, item.EntityId, string(item.Op), payload, item.TargetOwnerId,
		item.TimestampMs, item.RetryCount, item.LastError)
	if err != nil {
		return fmt.Errorf("failed to insert queue item: %w", err)
	}
	return nil
}

func updateItem(ctx context.Context, tx dbx.DBTX, item *models.QueueItem) error {
	payload, err := marshalPayload(item.Payload)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE sync_queue SET operation = ?, payload = ?, target_owner_id = ? WHERE id = ?
	`, string(item.Op), payload, item.TargetOwnerId, item.Id)
	if err != nil {
		return fmt.Errorf("failed to update queue item: %w", err)
	}
	return nil
}

func marshalPayload(rec *models.Record) (any, error) {
	if rec == nil {
		return nil, nil
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return string(b), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*models.QueueItem, error) {
	var (
		item    models.QueueItem
		op      string
		payload sql.NullString
	)
	err := row.Scan(&item.Id, &item.EntityId, &op, &payload,
		&item.TargetOwnerId, &item.TimestampMs, &item.RetryCount, &item.LastError)
	if err != nil {
		return nil, err
	}
	item.Op = models.Operation(op)
	if payload.Valid && payload.String != "" {
		var rec models.Record
		if err := json.Unmarshal([]byte(payload.String), &rec); err != nil {
			return nil, fmt.Errorf("corrupt payload for queue item %s: %w", item.Id, err)
		}
		item.Payload = &rec
	}
	return &item, nil
}
