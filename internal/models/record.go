// Package models defines the data types persisted by the mealkeep engine:
// logged meals, queued sync mutations, and engine status snapshots.
package models

import (
	"sort"

	"github.com/akarpov87/mealkeep/internal/timex"
)

// SyncState tracks whether a record's latest local write has been
// confirmed by the remote store.
type SyncState string

const (
	SyncStatePending SyncState = "pending"
	SyncStateSynced  SyncState = "synced"
	SyncStateError   SyncState = "error"
)

// Record is one logged meal. Id is globally unique and immutable: renaming
// a dish never changes it, and the same logical record carries the same Id
// locally and remotely.
type Record struct {
	// Id is a globally unique identifier for the record.
	Id string `json:"id"`

	// Name is the dish name as entered by the user.
	Name string `json:"name"`

	// OccurredAt is when the meal happened. It is a point in time the user
	// chose, not wall-clock capture time, and not the freshness timestamp.
	OccurredAt timex.Timestamp `json:"occurredAt"`

	// OwnerId is the identity the record belongs to. Empty until the
	// record has been assigned to an identity.
	OwnerId string `json:"ownerId,omitempty"`

	// Hidden excludes the record from default listings without deleting it.
	Hidden bool `json:"hidden"`

	// Tags is an unordered set of labels.
	Tags []string `json:"tags,omitempty"`

	// UpdatedAtMs is the local mutation time in milliseconds, used for
	// freshness comparison between conflicting copies.
	UpdatedAtMs int64 `json:"updatedAtMs"`

	// Pending marks local writes not yet confirmed remote.
	Pending bool `json:"pending"`

	// SyncState is pending until the queue item for the latest write is
	// acknowledged, then synced; error after a failed push.
	SyncState SyncState `json:"syncState"`
}

// Clone returns a deep copy; Tags is the only reference field.
func (r Record) Clone() Record {
	out := r
	if r.Tags != nil {
		out.Tags = append([]string(nil), r.Tags...)
	}
	return out
}

// TagsEqual compares tag sets ignoring order and duplicates.
func TagsEqual(a, b []string) bool {
	return tagKey(a) == tagKey(b)
}

func tagKey(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	uniq := make([]string, 0, len(set))
	for t := range set {
		uniq = append(uniq, t)
	}
	sort.Strings(uniq)
	key := ""
	for _, t := range uniq {
		key += t + "\x00"
	}
	return key
}
