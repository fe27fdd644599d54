package store

import (
	"context"
	"fmt"
)

// Backend is the narrow keyed-value contract the record log sits on. Concurrent
// independent appends must be safe; cross-request writers never share a key
// because every key embeds the request id.
type Backend interface {
	// Get retrieves a value by key. Returns empty string and false if not found.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores a value by key.
	Set(ctx context.Context, key, value string) error
	// List returns all keys matching the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	// Close releases any resources.
	Close() error
}

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = fmt.Errorf("record not found")

// ErrExists is returned when a write-once record is written twice.
var ErrExists = fmt.Errorf("record already exists")
