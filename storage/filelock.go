package storage

import (
	"context"
	"os"
	"time"
)

// lockPollInterval is how often a contended lock is retried.
const lockPollInterval = 10 * time.Millisecond

// FileLock is an advisory, cross-process lock guarding one cache file. The
// lock lives in a sibling file named path + ".lock".
type FileLock struct {
	path string
	file *os.File
}

// NewFileLock creates a lock for path. Nothing is acquired until Lock.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path + ".lock"}
}

// Lock acquires the lock, polling until timeout elapses or ctx is done.
// It returns ErrLockTimeout on timeout and the context error on cancellation.
func (l *FileLock) Lock(ctx context.Context, timeout time.Duration) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return &StorageError{Op: "lock", Entity: "file", ID: l.path, Err: err}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		if tryLock(f) == nil {
			l.file = f
			return nil
		}
		select {
		case <-ctx.Done():
			f.Close()
			return ctx.Err()
		case <-timer.C:
			f.Close()
			return ErrLockTimeout
		case <-ticker.C:
		}
	}
}

// Unlock releases the lock. It is a no-op when the lock is not held. The
// lock file stays on disk so every contender locks the same inode.
func (l *FileLock) Unlock() error {
	if l.file == nil {
		return nil
	}
	err := unlock(l.file)
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}
	l.file = nil
	return err
}
