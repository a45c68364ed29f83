package backup

import (
	"encoding/hex"
	"encoding/json"
	"hash"

	"golang.org/x/crypto/blake2b"

	"github.com/akarpov87/mealkeep/internal/models"
)

// checksum folds records into a BLAKE2b-256 digest one at a time, so
// verification during a streamed parse costs no extra pass. Only fields
// that travel contribute: each record is hashed with its local sync
// bookkeeping cleared, matching what WriteVerbose emits.
type checksum struct {
	h hash.Hash
}

func newChecksum() *checksum {
	h, _ := blake2b.New256(nil)
	return &checksum{h: h}
}

func (c *checksum) add(rec *models.Record) {
	wire := rec.Clone()
	wire.Pending = false
	wire.SyncState = ""
	b, err := json.Marshal(&wire)
	if err != nil {
		// Record came from a successful unmarshal; re-marshal cannot fail.
		return
	}
	c.h.Write(b)
}

func (c *checksum) hex() string {
	return hex.EncodeToString(c.h.Sum(nil))
}
