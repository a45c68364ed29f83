// Package backup implements the export/import pipeline: snapshot
// serialization, format detection, per-record conflict detection against
// the local store, and strategy-driven application under dry-run or
// committed modes.
package backup

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/akarpov87/mealkeep/internal/common"
	"github.com/akarpov87/mealkeep/internal/models"
)

// FormatKind tags which detector recognized the snapshot.
type FormatKind string

const (
	// FormatVerbose is the canonical export format: a metadata block
	// (format id, version, counts, checksum) plus a record array.
	FormatVerbose FormatKind = "verbose"

	// FormatCompact is the terse JSON form with records as arrays.
	FormatCompact FormatKind = "compact"

	// FormatFlat is pipe-delimited text, one record per line.
	FormatFlat FormatKind = "flat"
)

// ParseError is one structured problem found in snapshot content. Parse
// failures are data, never panics or errors thrown past the API boundary.
type ParseError struct {
	// Line is 1-based for flat content, 0 when not line-addressable.
	Line int `json:"line,omitempty"`

	// RecordId is set when the problem is tied to a specific record.
	RecordId string `json:"recordId,omitempty"`

	Message string `json:"message"`
}

func (e ParseError) String() string {
	switch {
	case e.Line > 0:
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	case e.RecordId != "":
		return fmt.Sprintf("record %s: %s", e.RecordId, e.Message)
	default:
		return e.Message
	}
}

// ParseResult is the tagged-union outcome of parsing snapshot content.
type ParseResult struct {
	Kind     FormatKind        `json:"kind"`
	Records  []models.Record   `json:"records"`
	Settings map[string]string `json:"settings,omitempty"`
	Errors   []ParseError      `json:"errors,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
}

// Valid reports whether the content yielded a usable snapshot.
func (r *ParseResult) Valid() bool {
	return len(r.Errors) == 0
}

// Parse runs the detector chain over content and returns the tagged
// result. Unrecognized or empty content comes back with Errors set and
// no records; no error ever escapes as a panic.
func Parse(content []byte) *ParseResult {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 {
		return &ParseResult{Errors: []ParseError{{Message: common.ErrorEmptyContent.Error()}}}
	}

	var result *ParseResult
	switch {
	case looksVerbose(trimmed):
		result = parseVerbose(trimmed)
	case looksCompact(trimmed):
		result = parseCompact(trimmed)
	case looksFlat(trimmed):
		result = parseFlat(trimmed)
	default:
		return &ParseResult{Errors: []ParseError{{Message: common.ErrorUnknownFormat.Error()}}}
	}
	dedupeRecords(result)
	return result
}

// dedupeRecords folds repeated record ids down to the last occurrence,
// with a warning per duplicate. Every consumer then sees one entry per
// id, so a dry run and a committed run count the same snapshot the same
// way.
func dedupeRecords(r *ParseResult) {
	seen := make(map[string]int, len(r.Records))
	out := r.Records[:0]
	for _, rec := range r.Records {
		if i, ok := seen[rec.Id]; ok {
			out[i] = rec
			r.Warnings = append(r.Warnings,
				fmt.Sprintf("duplicate record id %s: keeping the last occurrence", rec.Id))
			continue
		}
		seen[rec.Id] = len(out)
		out = append(out, rec)
	}
	r.Records = out
}

func looksVerbose(content []byte) bool {
	return bytes.HasPrefix(content, []byte("{")) &&
		bytes.Contains(content, []byte(`"format"`))
}

func looksCompact(content []byte) bool {
	return bytes.HasPrefix(content, []byte("{")) &&
		bytes.Contains(content, []byte(`"r"`))
}

func looksFlat(content []byte) bool {
	first := content
	if i := bytes.IndexByte(content, '\n'); i >= 0 {
		first = content[:i]
	}
	line := strings.TrimSpace(string(first))
	return line == flatHeader || strings.Count(line, "|") >= flatMinSeparators
}

// validate checks the fields every format requires and normalizes the
// parsed record for import.
func validate(rec *models.Record) error {
	if rec.Id == "" {
		return fmt.Errorf("missing id")
	}
	if rec.Name == "" {
		return fmt.Errorf("missing name")
	}
	if rec.OccurredAt.IsZero() {
		return fmt.Errorf("missing occurredAt")
	}
	return nil
}
