package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketChannels = []byte("channels")

// BoltStore keeps channel entries in a single BoltDB file, one key per handle.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) ytcollect.db in dir.
func NewBoltStore(dir string) (*BoltStore, error) {
	dbPath := filepath.Join(dir, "ytcollect.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, &StorageError{Op: "open", Entity: "store", ID: dbPath, Err: fmt.Errorf("open bolt db: %w", err)}
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketChannels)
		return err
	})
	if err != nil {
		db.Close()
		return nil, &StorageError{Op: "open", Entity: "store", ID: dbPath, Err: err}
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Load(ctx context.Context, handle string) (*ChannelCacheEntry, error) {
	key, err := channelKey(handle)
	if err != nil {
		return nil, &StorageError{Op: "load", Entity: "channel", ID: handle, Err: err}
	}

	var data []byte
	err = s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketChannels).Get([]byte(key)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if err != nil {
		return nil, &StorageError{Op: "load", Entity: "channel", ID: handle, Err: err}
	}
	if data == nil {
		return nil, &StorageError{Op: "load", Entity: "channel", ID: handle, Err: ErrNotFound}
	}

	var entry ChannelCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, &StorageError{Op: "load", Entity: "channel", ID: handle, Err: ErrStorageCorrupt}
	}
	return &entry, nil
}

func (s *BoltStore) Save(ctx context.Context, handle string, entry *ChannelCacheEntry) error {
	key, err := channelKey(handle)
	if err != nil {
		return &StorageError{Op: "save", Entity: "channel", ID: handle, Err: err}
	}
	if err := validateEntry(entry); err != nil {
		return &StorageError{Op: "save", Entity: "channel", ID: handle, Err: err}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return &StorageError{Op: "save", Entity: "channel", ID: handle, Err: err}
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketChannels).Put([]byte(key), data)
	})
	if err != nil {
		return &StorageError{Op: "save", Entity: "channel", ID: handle, Err: err}
	}
	return nil
}

func (s *BoltStore) Delete(ctx context.Context, handle string) error {
	key, err := channelKey(handle)
	if err != nil {
		return &StorageError{Op: "delete", Entity: "channel", ID: handle, Err: err}
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChannels)
		if b.Get([]byte(key)) == nil {
			return ErrNotFound
		}
		return b.Delete([]byte(key))
	})
	if err != nil {
		return &StorageError{Op: "delete", Entity: "channel", ID: handle, Err: err}
	}
	return nil
}

func (s *BoltStore) List(ctx context.Context) ([]string, error) {
	var handles []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketChannels).ForEach(func(k, _ []byte) error {
			handles = append(handles, handleFromKey(string(k)))
			return nil
		})
	})
	if err != nil {
		return nil, &StorageError{Op: "list", Entity: "channel", Err: err}
	}
	sort.Strings(handles)
	return handles, nil
}

func (s *BoltStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
