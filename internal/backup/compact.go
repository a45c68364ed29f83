package backup

import (
	"encoding/json"
	"fmt"

	"github.com/akarpov87/mealkeep/internal/models"
	"github.com/akarpov87/mealkeep/internal/timex"
)

// The compact format trades readability for size: records are positional
// arrays instead of objects.
//
//	{"v":1,"r":[["id","name",sec,nanos,updatedAtMs,hidden,["tag"],"owner"],...]}
//
// The trailing owner element is optional.
type compactDoc struct {
	V int               `json:"v"`
	R []json.RawMessage `json:"r"`
}

const compactRowMinFields = 7

func parseCompact(content []byte) *ParseResult {
	result := &ParseResult{Kind: FormatCompact}

	var doc compactDoc
	if err := json.Unmarshal(content, &doc); err != nil {
		result.Errors = append(result.Errors, ParseError{Message: "bad compact document: " + err.Error()})
		return result
	}
	if doc.V != 1 {
		result.Errors = append(result.Errors, ParseError{Message: fmt.Sprintf("unsupported compact version %d", doc.V)})
		return result
	}

	for i, raw := range doc.R {
		rec, err := decodeCompactRow(raw)
		if err != nil {
			result.Errors = append(result.Errors, ParseError{Message: fmt.Sprintf("row %d: %v", i, err)})
			continue
		}
		if err := validate(rec); err != nil {
			result.Errors = append(result.Errors, ParseError{RecordId: rec.Id, Message: err.Error()})
			continue
		}
		result.Records = append(result.Records, *rec)
	}
	return result
}

func decodeCompactRow(raw json.RawMessage) (*models.Record, error) {
	var row []json.RawMessage
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, fmt.Errorf("not an array: %w", err)
	}
	if len(row) < compactRowMinFields {
		return nil, fmt.Errorf("want at least %d fields, got %d", compactRowMinFields, len(row))
	}

	var (
		rec     models.Record
		sec     int64
		nanos   int32
		updated int64
	)
	fields := []struct {
		name string
		dst  any
	}{
		{"id", &rec.Id},
		{"name", &rec.Name},
		{"seconds", &sec},
		{"nanos", &nanos},
		{"updatedAtMs", &updated},
		{"hidden", &rec.Hidden},
		{"tags", &rec.Tags},
	}
	for i, f := range fields {
		if err := json.Unmarshal(row[i], f.dst); err != nil {
			return nil, fmt.Errorf("bad %s: %w", f.name, err)
		}
	}
	if len(row) > compactRowMinFields {
		if err := json.Unmarshal(row[compactRowMinFields], &rec.OwnerId); err != nil {
			return nil, fmt.Errorf("bad owner: %w", err)
		}
	}

	rec.OccurredAt = timex.Timestamp{Seconds: sec, Nanos: nanos}
	rec.UpdatedAtMs = updated
	return &rec, nil
}
