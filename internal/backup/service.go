package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/akarpov87/mealkeep/internal/common"
	"github.com/akarpov87/mealkeep/internal/conflict"
	"github.com/akarpov87/mealkeep/internal/logging"
	"github.com/akarpov87/mealkeep/internal/models"
	"github.com/akarpov87/mealkeep/internal/repositories/records"
	"github.com/akarpov87/mealkeep/internal/repositories/settings"
)

// Mutator is the single mutation entry point the pipeline writes through,
// so imports pick up the same aggregate-count and sync-queue side effects
// as interactive edits. services.RecordService implements it.
type Mutator interface {
	// ImportUpsert writes an imported record preserving its own
	// timestamps and enqueues it for sync.
	ImportUpsert(ctx context.Context, rec *models.Record) error
}

// Options controls one Apply invocation.
type Options struct {
	Strategy conflict.Strategy

	// DryRun executes every step up to and including conflict resolution
	// but mutates nothing; the returned counts are identical to a
	// committed run over the same input and store state.
	DryRun bool

	// CreateSafetyBackupFirst exports the current store before a
	// committed apply touches it.
	CreateSafetyBackupFirst bool

	// Ask is the external decision point for StrategyAsk; nil means skip.
	Ask conflict.AskFunc
}

// PreviewResult is what a caller sees before committing an import.
type PreviewResult struct {
	Valid           bool            `json:"valid"`
	TotalRecords    int             `json:"totalRecords"`
	NewRecords      int             `json:"newRecords"`
	ExistingRecords int             `json:"existingRecords"`
	Conflicts       []conflict.Item `json:"conflicts,omitempty"`
	Errors          []ParseError    `json:"errors,omitempty"`
	Warnings        []string        `json:"warnings,omitempty"`
}

// Result reports a (possibly dry-run) apply. A committed run with
// partial failures has Success=false but still carries exact counts of
// what did succeed.
type Result struct {
	Success   bool            `json:"success"`
	DryRun    bool            `json:"dryRun"`
	Processed int             `json:"processed"`
	Imported  int             `json:"imported"`
	Updated   int             `json:"updated"`
	Skipped   int             `json:"skipped"`
	Conflicts []conflict.Item `json:"conflicts,omitempty"`
	Errors    []ParseError    `json:"errors,omitempty"`
	Warnings  []string        `json:"warnings,omitempty"`
}

// Pipeline applies exported snapshots against the local store without
// silently destroying newer local edits.
type Pipeline struct {
	records  records.Repository
	mutator  Mutator
	settings settings.Repository
	safety   SafetyWriter
	log      logging.Logger
}

// New builds a pipeline. safety may be nil when no safety backups are
// wanted.
func New(recs records.Repository, mutator Mutator, st settings.Repository,
	safety SafetyWriter, log logging.Logger) *Pipeline {
	return &Pipeline{records: recs, mutator: mutator, settings: st, safety: safety, log: log}
}

// Preview runs detection only: no mutation, whatever the content says.
func (p *Pipeline) Preview(ctx context.Context, content []byte) (*PreviewResult, error) {
	parsed := Parse(content)
	preview := &PreviewResult{
		Valid:        parsed.Valid(),
		TotalRecords: len(parsed.Records),
		Errors:       parsed.Errors,
		Warnings:     parsed.Warnings,
	}
	if !parsed.Valid() {
		return preview, nil
	}

	err := p.walk(ctx, parsed.Records, func(existing *models.Record, incoming *models.Record) error {
		if existing == nil {
			preview.NewRecords++
			return nil
		}
		preview.ExistingRecords++
		if fields := conflict.DetectConflicts(existing, incoming); len(fields) > 0 {
			preview.Conflicts = append(preview.Conflicts, conflict.Item{
				RecordId:      existing.Id,
				Fields:        fields,
				LocalFresh:    conflict.Freshness(existing),
				IncomingFresh: conflict.Freshness(incoming),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("preview: %w", err)
	}
	return preview, nil
}

// Apply reconciles the snapshot into the store under opts. Individual
// record failures never abort the batch; they are enumerated in the
// result instead.
func (p *Pipeline) Apply(ctx context.Context, content []byte, opts Options) (*Result, error) {
	parsed := Parse(content)
	result := &Result{
		DryRun:   opts.DryRun,
		Errors:   parsed.Errors,
		Warnings: parsed.Warnings,
	}
	if !parsed.Valid() {
		return result, nil
	}

	if opts.CreateSafetyBackupFirst && !opts.DryRun && p.safety != nil {
		if err := p.createSafetyBackup(ctx); err != nil {
			return nil, fmt.Errorf("safety backup: %w", err)
		}
	}

	err := p.walk(ctx, parsed.Records, func(existing, incoming *models.Record) error {
		result.Processed++

		if existing == nil {
			if !opts.DryRun {
				if err := p.mutator.ImportUpsert(ctx, incoming); err != nil {
					result.Errors = append(result.Errors, ParseError{RecordId: incoming.Id, Message: err.Error()})
					return nil
				}
			}
			result.Imported++
			return nil
		}

		fields := conflict.DetectConflicts(existing, incoming)
		if len(fields) == 0 {
			// Identical copies are already synchronized: neither imported
			// nor updated.
			result.Skipped++
			return nil
		}

		result.Conflicts = append(result.Conflicts, conflict.Item{
			RecordId:      existing.Id,
			Fields:        fields,
			LocalFresh:    conflict.Freshness(existing),
			IncomingFresh: conflict.Freshness(incoming),
		})

		switch conflict.Resolve(existing, incoming, opts.Strategy, opts.Ask) {
		case conflict.DecisionOverwrite:
			if !opts.DryRun {
				if err := p.mutator.ImportUpsert(ctx, incoming); err != nil {
					result.Errors = append(result.Errors, ParseError{RecordId: incoming.Id, Message: err.Error()})
					return nil
				}
			}
			result.Updated++
		default:
			result.Skipped++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("apply: %w", err)
	}

	result.Success = len(result.Errors) == 0
	if !opts.DryRun {
		stamp := []byte(time.Now().UTC().Format(time.RFC3339))
		if err := p.settings.Set(ctx, models.SettingLastBackupAt, stamp); err != nil {
			p.log.Warn(ctx, "failed to record import time", "error", err)
		}
	}
	return result, nil
}

// walk visits each parsed record with its current local counterpart in
// bounded batches, so very large snapshots never pin all their store
// lookups in memory at once.
func (p *Pipeline) walk(ctx context.Context, recs []models.Record,
	visit func(existing, incoming *models.Record) error) error {
	for start := 0; start < len(recs); start += common.ImportBatchSize {
		end := start + common.ImportBatchSize
		if end > len(recs) {
			end = len(recs)
		}
		for i := start; i < end; i++ {
			incoming := &recs[i]
			existing, err := p.records.Get(ctx, incoming.Id)
			if err != nil {
				if !errors.Is(err, common.ErrorNotFound) {
					return err
				}
				existing = nil
			}
			if err := visit(existing, incoming); err != nil {
				return err
			}
		}
	}
	return nil
}

// Export streams the whole store as a verbose snapshot and stamps the
// backup time.
func (p *Pipeline) Export(ctx context.Context, w io.Writer) error {
	recs, err := p.records.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	meta := map[string]string{}
	if raw, err := p.settings.Get(ctx, models.SettingLastBackupAt); err == nil && len(raw) > 0 {
		meta[models.SettingLastBackupAt] = string(raw)
	}

	if err := WriteVerbose(w, recs, meta); err != nil {
		return fmt.Errorf("export: %w", err)
	}

	stamp := []byte(time.Now().UTC().Format(time.RFC3339))
	if err := p.settings.Set(ctx, models.SettingLastBackupAt, stamp); err != nil {
		p.log.Warn(ctx, "failed to record backup time", "error", err)
	}
	return nil
}

func (p *Pipeline) createSafetyBackup(ctx context.Context) error {
	recs, err := p.records.ListAll(ctx)
	if err != nil {
		return err
	}
	path, err := p.safety.WriteSnapshot(ctx, recs)
	if err != nil {
		return err
	}
	p.log.Info(ctx, "safety backup written", "path", path, "records", len(recs))
	return nil
}
