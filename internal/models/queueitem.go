package models

// Operation is the kind of mutation a queue item carries.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// QueueItem is one pending mutation awaiting transmission to the remote
// store. At most one active item exists per EntityId: repeated local
// edits coalesce into the latest payload before any flush happens.
type QueueItem struct {
	// Id identifies the queue row itself.
	Id string

	// EntityId is the Record.Id the mutation applies to.
	EntityId string

	// Op is create, update or delete.
	Op Operation

	// Payload is the full record snapshot for create/update, nil for delete.
	Payload *Record

	// TargetOwnerId is resolved lazily; it may stay empty until an
	// identity is known and is rewritten when an anonymous identity is
	// linked to a credential.
	TargetOwnerId string

	// TimestampMs orders the queue; oldest items flush first.
	TimestampMs int64

	// RetryCount and LastError are diagnostics kept across failed
	// transmission attempts.
	RetryCount int
	LastError  string
}
