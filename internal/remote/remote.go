// Package remote defines the engine's view of the remote document store:
// a collection keyed by owner id and record id with per-document upsert,
// batched atomic commits, full-collection fetch, and a live
// change-notification subscription. The store itself is an external
// collaborator; this package holds the contract and an HTTP/JSON
// implementation of it.
package remote

import (
	"context"

	"github.com/akarpov87/mealkeep/internal/models"
)

// EventType classifies one remote change notification.
type EventType string

const (
	EventAdded    EventType = "added"
	EventModified EventType = "modified"
	EventRemoved  EventType = "removed"
)

// Event is one live change observed on the owner's collection. Record is
// set for added/modified; RecordId alone for removed.
type Event struct {
	Type     EventType      `json:"type"`
	RecordId string         `json:"recordId"`
	Record   *models.Record `json:"record,omitempty"`
}

// Op is one element of a batch commit.
type Op struct {
	Op       models.Operation `json:"op"`
	RecordId string           `json:"recordId"`
	Record   *models.Record   `json:"record,omitempty"`
}

// OpResult reports the outcome of one batch element. Partial failure is
// expected: the batch completes and failed elements carry Error.
type OpResult struct {
	RecordId string `json:"recordId"`
	Error    string `json:"error,omitempty"`
}

// Failed reports whether this element was rejected.
func (r OpResult) Failed() bool { return r.Error != "" }

// Subscription is a live change feed the caller owns. Events closes when
// the feed drops; Err then explains why.
type Subscription interface {
	Events() <-chan Event
	Err() error
	Close() error
}

// Store is the remote document store contract.
type Store interface {
	// FetchAll returns every record in the owner's collection.
	FetchAll(ctx context.Context, ownerID string) ([]models.Record, error)

	// Upsert writes one record document.
	Upsert(ctx context.Context, ownerID string, rec *models.Record) error

	// Delete removes one record document. Deleting an absent document is
	// not an error.
	Delete(ctx context.Context, ownerID, recordID string) error

	// BatchWrite commits up to common.MaxBatchOps operations, returning a
	// result per op in input order. A transport-level error fails the
	// whole call; per-document rejections come back in the results.
	BatchWrite(ctx context.Context, ownerID string, ops []Op) ([]OpResult, error)

	// Subscribe opens a live change feed for the owner's collection.
	Subscribe(ctx context.Context, ownerID string) (Subscription, error)
}
