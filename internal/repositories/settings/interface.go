package settings

import "context"

// Repository is a small key-value store for cache metadata and user
// preferences: last backup time, record counts, sync bookkeeping. Values
// are opaque bytes; callers own the encoding.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
}
