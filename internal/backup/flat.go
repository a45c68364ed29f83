package backup

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/akarpov87/mealkeep/internal/models"
	"github.com/akarpov87/mealkeep/internal/timex"
)

// The flat format is pipe-delimited text, one record per line:
//
//	id|name|seconds|nanos|updatedAtMs|hidden|tag1,tag2
//
// Lines starting with '#' are comments; the optional header line names
// the format for humans.
const (
	flatHeader        = "#mealkeep-flat"
	flatFieldCount    = 7
	flatMinSeparators = flatFieldCount - 1
)

// parseFlat scans line by line; a malformed line becomes one ParseError
// and the rest of the file still parses.
func parseFlat(content []byte) *ParseResult {
	result := &ParseResult{Kind: FormatFlat}

	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		rec, err := decodeFlatLine(line)
		if err != nil {
			result.Errors = append(result.Errors, ParseError{Line: lineNo, Message: err.Error()})
			continue
		}
		if err := validate(rec); err != nil {
			result.Errors = append(result.Errors, ParseError{Line: lineNo, RecordId: rec.Id, Message: err.Error()})
			continue
		}
		result.Records = append(result.Records, *rec)
	}
	if err := scanner.Err(); err != nil {
		result.Errors = append(result.Errors, ParseError{Message: "read content: " + err.Error()})
	}
	return result
}

func decodeFlatLine(line string) (*models.Record, error) {
	parts := strings.Split(line, "|")
	if len(parts) != flatFieldCount {
		return nil, fmt.Errorf("want %d fields, got %d", flatFieldCount, len(parts))
	}

	sec, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad seconds %q", parts[2])
	}
	nanos, err := strconv.ParseInt(parts[3], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("bad nanos %q", parts[3])
	}
	updated, err := strconv.ParseInt(parts[4], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad updatedAtMs %q", parts[4])
	}
	hidden, err := strconv.ParseBool(parts[5])
	if err != nil {
		return nil, fmt.Errorf("bad hidden %q", parts[5])
	}

	var tags []string
	if parts[6] != "" {
		tags = strings.Split(parts[6], ",")
	}

	return &models.Record{
		Id:          parts[0],
		Name:        parts[1],
		OccurredAt:  timex.Timestamp{Seconds: sec, Nanos: int32(nanos)},
		UpdatedAtMs: updated,
		Hidden:      hidden,
		Tags:        tags,
	}, nil
}
