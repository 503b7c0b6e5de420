// Package storage holds the collected record schema and the per-channel
// cache that lets a re-run skip channels that were already scraped.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Sentinel errors for common storage conditions.
var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("storage: not found")
	// ErrInvalidInput indicates invalid or malformed input was provided.
	ErrInvalidInput = errors.New("storage: invalid input")
	// ErrStorageCorrupt indicates data corruption was detected.
	ErrStorageCorrupt = errors.New("storage: data corruption detected")
	// ErrLockTimeout indicates a timeout acquiring a file lock.
	ErrLockTimeout = errors.New("storage: lock acquisition timeout")
)

// StorageError wraps storage errors with operation and entity context.
// Use errors.As() to extract this error type and get operation details:
//
//	var storErr *storage.StorageError
//	if errors.As(err, &storErr) {
//		fmt.Printf("Failed to %s %s %s: %v\n", storErr.Op, storErr.Entity, storErr.ID, storErr.Err)
//	}
type StorageError struct {
	// Op is the operation that failed ("load", "save", "delete", "list", "lock").
	Op string
	// Entity is the entity type ("channel", "store", "file").
	Entity string
	// ID is the entity ID if applicable.
	ID string
	// Err is the underlying error that occurred.
	Err error
}

// Error returns a string representation of the storage error.
func (e *StorageError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("storage: %s %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
	}
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the underlying error for use with errors.Is() and errors.As().
func (e *StorageError) Unwrap() error { return e.Err }

// CacheStore persists one snapshot per channel handle.
//
// Save replaces the whole entry or leaves the previous state untouched; a
// reader never observes a partially written entry.
type CacheStore interface {
	// Load returns the cached entry for handle, or an error wrapping ErrNotFound.
	Load(ctx context.Context, handle string) (*ChannelCacheEntry, error)
	// Save stores entry under handle, replacing any previous entry.
	Save(ctx context.Context, handle string, entry *ChannelCacheEntry) error
	// Delete removes the entry for handle.
	Delete(ctx context.Context, handle string) error
	// List returns the handles that have an entry, sorted.
	List(ctx context.Context) ([]string, error)
	// Close releases any resources held by the store.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"
)

// Open creates the cache store for backend rooted at dir.
func Open(backend, dir string) (CacheStore, error) {
	if dir == "" {
		return nil, &StorageError{Op: "open", Entity: "store", Err: ErrInvalidInput}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &StorageError{Op: "open", Entity: "store", ID: dir, Err: err}
	}

	switch backend {
	case BackendFile, "":
		return NewFileStore(dir)
	case BackendBolt:
		return NewBoltStore(dir)
	case BackendSQLite:
		return NewSQLiteStore(dir)
	default:
		return nil, &StorageError{Op: "open", Entity: "store", ID: backend, Err: ErrInvalidInput}
	}
}

// channelKey turns a handle into the key used by every backend: the handle
// without its leading "@". Handles that could escape the cache directory
// are rejected.
func channelKey(handle string) (string, error) {
	key := strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return "", ErrInvalidInput
	}
	return key, nil
}

// handleFromKey is the inverse of channelKey.
func handleFromKey(key string) string {
	return "@" + key
}

func validateEntry(entry *ChannelCacheEntry) error {
	if entry == nil {
		return ErrInvalidInput
	}
	seen := make(map[string]bool, len(entry.Videos))
	for _, v := range entry.Videos {
		if v.VideoID == "" || seen[v.VideoID] {
			return ErrInvalidInput
		}
		seen[v.VideoID] = true
	}
	return nil
}
