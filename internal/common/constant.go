package common

// AuthorizationHeaderName is the HTTP header used to carry the ID token on
// outbound requests to the remote record store.
const AuthorizationHeaderName = "Authorization"

// MaxBatchOps caps a single remote batch commit. Remotes that support
// atomic multi-document writes typically reject larger batches.
const MaxBatchOps = 500

// ImportBatchSize bounds how many snapshot records the backup pipeline
// holds store lookups for at a time.
const ImportBatchSize = 200
