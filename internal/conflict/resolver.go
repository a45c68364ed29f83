// Package conflict holds the pure decision logic shared by live sync and
// backup import. No I/O happens here: callers feed in the local and
// incoming copies of a record and act on the returned decision.
package conflict

import (
	"github.com/akarpov87/mealkeep/internal/models"
)

// Strategy selects how a detected conflict is resolved.
type Strategy string

const (
	// StrategySkip keeps the local copy and discards the incoming one.
	StrategySkip Strategy = "skip"

	// StrategyOverwrite unconditionally applies the incoming copy.
	StrategyOverwrite Strategy = "overwrite"

	// StrategyMerge applies the incoming copy only when it is strictly
	// fresher than the local one. The only strategy that inspects data
	// rather than blindly choosing a side.
	StrategyMerge Strategy = "merge"

	// StrategyAsk defers to an external decision point. Without one it
	// resolves to skip.
	StrategyAsk Strategy = "ask"
)

// Decision is the outcome of resolving a single conflict.
type Decision string

const (
	DecisionSkip      Decision = "skip"
	DecisionOverwrite Decision = "overwrite"
)

// Item describes one detected conflict: a record present both locally and
// in the incoming source, with at least one differing field.
type Item struct {
	RecordId      string   `json:"recordId"`
	Fields        []string `json:"fields"`
	LocalFresh    int64    `json:"localFresh"`
	IncomingFresh int64    `json:"incomingFresh"`
}

// AskFunc lets an interactive caller decide a single conflict.
// DecisionSkip keeps the local copy.
type AskFunc func(item Item) Decision

// Freshness returns the record's freshness timestamp in milliseconds:
// UpdatedAtMs when set, otherwise the OccurredAt instant. Records from
// producers that never stamped UpdatedAtMs still order correctly.
func Freshness(rec *models.Record) int64 {
	if rec == nil {
		return 0
	}
	if rec.UpdatedAtMs != 0 {
		return rec.UpdatedAtMs
	}
	return rec.OccurredAt.UnixMilli()
}

// DetectConflicts returns the names of fields that differ between an
// existing record and an incoming copy of the same record. An empty
// result means the copies are already synchronized. Absence of a local
// copy is never a conflict, only a creation; callers check that before
// calling here.
//
// Sync bookkeeping (Pending, SyncState) is local-only and never compared.
func DetectConflicts(existing, incoming *models.Record) []string {
	if existing == nil || incoming == nil || existing.Id != incoming.Id {
		return nil
	}

	var fields []string
	if existing.Name != incoming.Name {
		fields = append(fields, "name")
	}
	if !existing.OccurredAt.Equal(incoming.OccurredAt) {
		fields = append(fields, "occurredAt")
	}
	if existing.Hidden != incoming.Hidden {
		fields = append(fields, "hidden")
	}
	if !models.TagsEqual(existing.Tags, incoming.Tags) {
		fields = append(fields, "tags")
	}
	return fields
}

// Resolve decides a conflict between an existing record and an incoming
// copy using the given strategy. ask is consulted only for StrategyAsk
// and may be nil, in which case ask defaults to skip.
func Resolve(existing, incoming *models.Record, strategy Strategy, ask AskFunc) Decision {
	switch strategy {
	case StrategyOverwrite:
		return DecisionOverwrite
	case StrategyMerge:
		if Freshness(incoming) > Freshness(existing) {
			return DecisionOverwrite
		}
		return DecisionSkip
	case StrategyAsk:
		if ask == nil {
			return DecisionSkip
		}
		return ask(Item{
			RecordId:      existing.Id,
			Fields:        DetectConflicts(existing, incoming),
			LocalFresh:    Freshness(existing),
			IncomingFresh: Freshness(incoming),
		})
	default:
		return DecisionSkip
	}
}
