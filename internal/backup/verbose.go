package backup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/akarpov87/mealkeep/internal/models"
	"github.com/akarpov87/mealkeep/internal/timex"
)

// VerboseFormatId identifies the canonical export format in its metadata
// block.
const VerboseFormatId = "mealkeep-backup"

// VerboseVersion is the current format version this code writes.
const VerboseVersion = 2

// verboseMeta is the metadata block of the verbose format.
type verboseMeta struct {
	Format      string          `json:"format"`
	Version     int             `json:"version"`
	ExportedAt  timex.Timestamp `json:"exportedAt"`
	RecordCount int             `json:"recordCount"`
	Checksum    string          `json:"checksum,omitempty"`
}

// parseVerbose streams the record array with json.Decoder so a large
// snapshot is never materialized twice; records are appended one at a
// time while the metadata block is collected along the way.
func parseVerbose(content []byte) *ParseResult {
	result := &ParseResult{Kind: FormatVerbose}
	var meta verboseMeta
	sum := newChecksum()

	dec := json.NewDecoder(bytes.NewReader(content))
	if err := expectDelim(dec, '{'); err != nil {
		result.Errors = append(result.Errors, ParseError{Message: "not a JSON object: " + err.Error()})
		return result
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			result.Errors = append(result.Errors, ParseError{Message: "truncated content: " + err.Error()})
			return result
		}
		key, _ := keyTok.(string)

		switch key {
		case "format":
			if err := dec.Decode(&meta.Format); err != nil {
				result.Errors = append(result.Errors, ParseError{Message: "bad format field: " + err.Error()})
				return result
			}
		case "version":
			if err := dec.Decode(&meta.Version); err != nil {
				result.Errors = append(result.Errors, ParseError{Message: "bad version field: " + err.Error()})
				return result
			}
		case "exportedAt":
			if err := dec.Decode(&meta.ExportedAt); err != nil {
				result.Errors = append(result.Errors, ParseError{Message: "bad exportedAt field: " + err.Error()})
				return result
			}
		case "recordCount":
			if err := dec.Decode(&meta.RecordCount); err != nil {
				result.Errors = append(result.Errors, ParseError{Message: "bad recordCount field: " + err.Error()})
				return result
			}
		case "checksum":
			if err := dec.Decode(&meta.Checksum); err != nil {
				result.Errors = append(result.Errors, ParseError{Message: "bad checksum field: " + err.Error()})
				return result
			}
		case "settings":
			if err := dec.Decode(&result.Settings); err != nil {
				result.Errors = append(result.Errors, ParseError{Message: "bad settings block: " + err.Error()})
				return result
			}
		case "records":
			if err := expectDelim(dec, '['); err != nil {
				result.Errors = append(result.Errors, ParseError{Message: "records is not an array: " + err.Error()})
				return result
			}
			for dec.More() {
				var rec models.Record
				if err := dec.Decode(&rec); err != nil {
					result.Errors = append(result.Errors, ParseError{Message: "bad record: " + err.Error()})
					return result
				}
				if err := validate(&rec); err != nil {
					result.Errors = append(result.Errors, ParseError{RecordId: rec.Id, Message: err.Error()})
					continue
				}
				sum.add(&rec)
				result.Records = append(result.Records, rec)
			}
			if err := expectDelim(dec, ']'); err != nil {
				result.Errors = append(result.Errors, ParseError{Message: "unterminated records array: " + err.Error()})
				return result
			}
		default:
			// Unknown metadata keys are tolerated for forward compatibility.
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				result.Errors = append(result.Errors, ParseError{Message: fmt.Sprintf("bad %s field: %v", key, err)})
				return result
			}
		}
	}

	if meta.Format != VerboseFormatId {
		result.Errors = append(result.Errors, ParseError{Message: fmt.Sprintf("unexpected format id %q", meta.Format)})
		return result
	}
	if meta.Version > VerboseVersion {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("snapshot version %d is newer than supported %d", meta.Version, VerboseVersion))
	}
	if meta.RecordCount != 0 && meta.RecordCount != len(result.Records) {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("metadata declares %d records, found %d", meta.RecordCount, len(result.Records)))
	}
	if meta.Checksum != "" && meta.Checksum != sum.hex() {
		result.Warnings = append(result.Warnings, "record checksum mismatch, content may be altered")
	}
	return result
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	d, ok := tok.(json.Delim)
	if !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

// WriteVerbose streams a snapshot of records to w in the canonical
// format. Records are encoded one at a time; the metadata block leads so
// consumers can sniff it without reading the whole document.
func WriteVerbose(w io.Writer, recs []models.Record, settings map[string]string) error {
	sum := newChecksum()
	for i := range recs {
		sum.add(&recs[i])
	}

	meta := verboseMeta{
		Format:      VerboseFormatId,
		Version:     VerboseVersion,
		ExportedAt:  timex.Now(),
		RecordCount: len(recs),
		Checksum:    sum.hex(),
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	// Open the object by reusing the marshalled metadata without its
	// closing brace.
	if _, err := w.Write(metaJSON[:len(metaJSON)-1]); err != nil {
		return err
	}

	if len(settings) > 0 {
		settingsJSON, err := json.Marshal(settings)
		if err != nil {
			return fmt.Errorf("marshal settings: %w", err)
		}
		if _, err := fmt.Fprintf(w, ",\"settings\":%s", settingsJSON); err != nil {
			return err
		}
	}

	if _, err := io.WriteString(w, ",\"records\":["); err != nil {
		return err
	}
	for i := range recs {
		if i > 0 {
			if _, err := io.WriteString(w, ","); err != nil {
				return err
			}
		}
		wire := recs[i].Clone()
		// Sync bookkeeping is local-only and does not travel.
		wire.Pending = false
		wire.SyncState = ""
		b, err := json.Marshal(&wire)
		if err != nil {
			return fmt.Errorf("encode record %s: %w", recs[i].Id, err)
		}
		if _, err := w.Write(b); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(w, "]}"); err != nil {
		return err
	}
	return nil
}
