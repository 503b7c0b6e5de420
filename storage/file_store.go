package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	fileSuffix  = "_videos.json"
	lockTimeout = 5 * time.Second
)

// FileStore keeps one JSON file per channel in a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates a file-backed cache store in dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &StorageError{Op: "open", Entity: "store", ID: dir, Err: err}
	}
	return &FileStore{dir: dir}, nil
}

// Path returns the cache file used for handle.
func (s *FileStore) Path(handle string) (string, error) {
	key, err := channelKey(handle)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, key+fileSuffix), nil
}

func (s *FileStore) Load(ctx context.Context, handle string) (*ChannelCacheEntry, error) {
	path, err := s.Path(handle)
	if err != nil {
		return nil, &StorageError{Op: "load", Entity: "channel", ID: handle, Err: err}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &StorageError{Op: "load", Entity: "channel", ID: handle, Err: ErrNotFound}
		}
		return nil, &StorageError{Op: "load", Entity: "channel", ID: handle, Err: err}
	}

	var entry ChannelCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, &StorageError{Op: "load", Entity: "channel", ID: handle, Err: ErrStorageCorrupt}
	}
	return &entry, nil
}

func (s *FileStore) Save(ctx context.Context, handle string, entry *ChannelCacheEntry) error {
	path, err := s.Path(handle)
	if err != nil {
		return &StorageError{Op: "save", Entity: "channel", ID: handle, Err: err}
	}
	if err := validateEntry(entry); err != nil {
		return &StorageError{Op: "save", Entity: "channel", ID: handle, Err: err}
	}

	lock := NewFileLock(path)
	if err := lock.Lock(ctx, lockTimeout); err != nil {
		return &StorageError{Op: "save", Entity: "channel", ID: handle, Err: err}
	}
	defer lock.Unlock()

	err = WriteFileAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(entry)
	})
	if err != nil {
		return &StorageError{Op: "save", Entity: "channel", ID: handle, Err: err}
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context, handle string) error {
	path, err := s.Path(handle)
	if err != nil {
		return &StorageError{Op: "delete", Entity: "channel", ID: handle, Err: err}
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &StorageError{Op: "delete", Entity: "channel", ID: handle, Err: ErrNotFound}
		}
		return &StorageError{Op: "delete", Entity: "channel", ID: handle, Err: err}
	}
	return nil
}

func (s *FileStore) List(ctx context.Context) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+fileSuffix))
	if err != nil {
		return nil, &StorageError{Op: "list", Entity: "channel", Err: err}
	}
	handles := make([]string, 0, len(matches))
	for _, m := range matches {
		handles = append(handles, handleFromKey(strings.TrimSuffix(filepath.Base(m), fileSuffix)))
	}
	sort.Strings(handles)
	return handles, nil
}

// Close is a no-op; FileStore holds no open handles between calls.
func (s *FileStore) Close() error {
	return nil
}
