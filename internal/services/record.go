package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/akarpov87/mealkeep/internal/common"
	"github.com/akarpov87/mealkeep/internal/identity"
	"github.com/akarpov87/mealkeep/internal/models"
	"github.com/akarpov87/mealkeep/internal/repositories/queue"
	"github.com/akarpov87/mealkeep/internal/repositories/records"
	"github.com/akarpov87/mealkeep/internal/timex"
)

// RecordService is the single mutation entry point for records. Every
// write persists locally first and enqueues the change for sync, so the
// app keeps working with no connectivity at all.
type RecordService interface {
	Add(ctx context.Context, name string, occurredAt timex.Timestamp, tags []string) (*models.Record, error)
	Update(ctx context.Context, rec *models.Record) error
	Get(ctx context.Context, id string) (*models.Record, error)
	List(ctx context.Context) ([]models.Record, error)
	ListByName(ctx context.Context, name string) ([]models.Record, error)
	ListByDateRange(ctx context.Context, from, to timex.Timestamp) ([]models.Record, error)
	Delete(ctx context.Context, id string) error
	SetHidden(ctx context.Context, id string, hidden bool) error
	Count(ctx context.Context) (int, error)

	// Bulk operations over the name index.
	HideByName(ctx context.Context, name string) (int, error)
	DeleteByName(ctx context.Context, name string) (int, error)
	RenameTag(ctx context.Context, from, to string) (int, error)

	// ImportUpsert writes an imported record preserving its timestamps.
	ImportUpsert(ctx context.Context, rec *models.Record) error
}

type recordService struct {
	records records.Repository
	queue   queue.Repository
	session *identity.Session
	now     func() time.Time
}

func NewRecordService(recs records.Repository, q queue.Repository, session *identity.Session) RecordService {
	return &recordService{records: recs, queue: q, session: session, now: time.Now}
}

func (s *recordService) owner() string {
	if s.session == nil {
		return ""
	}
	return s.session.Owner()
}

// save persists rec as a pending local change and queues it.
func (s *recordService) save(ctx context.Context, rec *models.Record, op models.Operation) error {
	rec.Pending = true
	rec.SyncState = models.SyncStatePending
	if err := s.records.Put(ctx, rec); err != nil {
		return fmt.Errorf("saving error: %w", err)
	}
	if err := s.queue.Enqueue(ctx, rec.Id, op, rec, rec.OwnerId); err != nil {
		return fmt.Errorf("error queueing change: %w", err)
	}
	return nil
}

func (s *recordService) Add(ctx context.Context, name string, occurredAt timex.Timestamp, tags []string) (*models.Record, error) {
	if name == "" {
		return nil, errors.New("name is required")
	}
	if occurredAt.IsZero() {
		occurredAt = timex.Now()
	}
	rec := &models.Record{
		Id:          uuid.NewString(),
		Name:        name,
		OccurredAt:  occurredAt,
		OwnerId:     s.owner(),
		Tags:        tags,
		UpdatedAtMs: s.now().UnixMilli(),
	}
	if err := s.save(ctx, rec, models.OperationCreate); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *recordService) Update(ctx context.Context, rec *models.Record) error {
	if rec.Id == "" {
		return errors.New("id is required")
	}
	rec.UpdatedAtMs = s.now().UnixMilli()
	if rec.OwnerId == "" {
		rec.OwnerId = s.owner()
	}
	return s.save(ctx, rec, models.OperationUpdate)
}

func (s *recordService) Get(ctx context.Context, id string) (*models.Record, error) {
	rec, err := s.records.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error retrieving record: %w", err)
	}
	return rec, nil
}

func (s *recordService) List(ctx context.Context) ([]models.Record, error) {
	rows, err := s.records.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing records: %w", err)
	}
	return rows, nil
}

func (s *recordService) ListByName(ctx context.Context, name string) ([]models.Record, error) {
	rows, err := s.records.ListByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("error listing records: %w", err)
	}
	return rows, nil
}

func (s *recordService) ListByDateRange(ctx context.Context, from, to timex.Timestamp) ([]models.Record, error) {
	rows, err := s.records.ListByDateRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("error listing records: %w", err)
	}
	return rows, nil
}

func (s *recordService) Delete(ctx context.Context, id string) error {
	rec, err := s.records.Get(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return fmt.Errorf("error retrieving record: %w", err)
	}
	if err := s.records.Delete(ctx, id); err != nil {
		return fmt.Errorf("error deleting record: %w", err)
	}
	if err := s.queue.Enqueue(ctx, id, models.OperationDelete, nil, rec.OwnerId); err != nil {
		return fmt.Errorf("error queueing change: %w", err)
	}
	return nil
}

func (s *recordService) SetHidden(ctx context.Context, id string, hidden bool) error {
	rec, err := s.records.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("error retrieving record: %w", err)
	}
	if rec.Hidden == hidden {
		return nil
	}
	rec.Hidden = hidden
	return s.Update(ctx, rec)
}

func (s *recordService) Count(ctx context.Context) (int, error) {
	return s.records.Count(ctx)
}

func (s *recordService) HideByName(ctx context.Context, name string) (int, error) {
	return s.forEachByName(ctx, name, func(rec *models.Record) (bool, error) {
		if rec.Hidden {
			return false, nil
		}
		rec.Hidden = true
		return true, s.Update(ctx, rec)
	})
}

func (s *recordService) DeleteByName(ctx context.Context, name string) (int, error) {
	return s.forEachByName(ctx, name, func(rec *models.Record) (bool, error) {
		return true, s.Delete(ctx, rec.Id)
	})
}

func (s *recordService) RenameTag(ctx context.Context, from, to string) (int, error) {
	if from == "" || to == "" {
		return 0, errors.New("both tag names are required")
	}
	rows, err := s.records.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("error listing records: %w", err)
	}
	changed := 0
	for i := range rows {
		rec := &rows[i]
		if !replaceTag(rec, from, to) {
			continue
		}
		if err := s.Update(ctx, rec); err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}

func (s *recordService) ImportUpsert(ctx context.Context, rec *models.Record) error {
	clone := rec.Clone()
	if clone.OwnerId == "" {
		clone.OwnerId = s.owner()
	}
	op := models.OperationUpdate
	if _, err := s.records.Get(ctx, clone.Id); err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			return fmt.Errorf("error retrieving record: %w", err)
		}
		op = models.OperationCreate
	}
	return s.save(ctx, &clone, op)
}

func (s *recordService) forEachByName(ctx context.Context, name string,
	apply func(rec *models.Record) (bool, error)) (int, error) {
	rows, err := s.records.ListByName(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("error listing records: %w", err)
	}
	changed := 0
	for i := range rows {
		ok, err := apply(&rows[i])
		if err != nil {
			return changed, err
		}
		if ok {
			changed++
		}
	}
	return changed, nil
}

func replaceTag(rec *models.Record, from, to string) bool {
	found := false
	out := rec.Tags[:0]
	for _, t := range rec.Tags {
		if t == from {
			found = true
			t = to
		}
		out = append(out, t)
	}
	if !found {
		return false
	}
	rec.Tags = dedupeTags(out)
	return true
}

func dedupeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
