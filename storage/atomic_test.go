package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.txt")

	err := WriteFileAtomic(path, func(w io.Writer) error {
		_, err := io.WriteString(w, "hello")
		return err
	})
	if err != nil {
		t.Fatalf("WriteFileAtomic() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("content = %q, want hello", data)
	}
}

func TestWriteFileAtomic_FailureKeepsOriginal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	if err := os.WriteFile(path, []byte("original"), 0644); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err := WriteFileAtomic(path, func(w io.Writer) error {
		io.WriteString(w, "partial")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WriteFileAtomic() error = %v, want boom", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "original" {
		t.Errorf("content = %q, want original", data)
	}
	tmps, _ := filepath.Glob(filepath.Join(dir, ".ytcollect-*.tmp"))
	if len(tmps) != 0 {
		t.Errorf("temp files left behind: %v", tmps)
	}
}

func TestAtomicWriter_Abort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	w, err := NewAtomicWriter(path)
	if err != nil {
		t.Fatalf("NewAtomicWriter() error = %v", err)
	}
	w.Write([]byte("data"))
	if err := w.Abort(); err != nil {
		t.Errorf("Abort() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("target exists after Abort: %v", err)
	}
}

func TestFileLock_Exclusive(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data.json")

	first := NewFileLock(path)
	if err := first.Lock(ctx, time.Second); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	second := NewFileLock(path)
	if err := second.Lock(ctx, 50*time.Millisecond); !errors.Is(err, ErrLockTimeout) {
		t.Errorf("second Lock() error = %v, want ErrLockTimeout", err)
	}

	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}

	third := NewFileLock(path)
	if err := third.Lock(ctx, time.Second); err != nil {
		t.Errorf("Lock() after Unlock error = %v", err)
	}
	third.Unlock()
}

func TestFileLock_WaiterAndNewcomerShareLock(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data.json")

	first := NewFileLock(path)
	if err := first.Lock(ctx, time.Second); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	waiter := NewFileLock(path)
	acquired := make(chan error, 1)
	go func() { acquired <- waiter.Lock(ctx, 2*time.Second) }()
	time.Sleep(30 * time.Millisecond)

	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if err := <-acquired; err != nil {
		t.Fatalf("waiter Lock() error = %v", err)
	}
	defer waiter.Unlock()

	if _, err := os.Stat(path + ".lock"); err != nil {
		t.Errorf("lock file removed on Unlock: %v", err)
	}
	newcomer := NewFileLock(path)
	if err := newcomer.Lock(ctx, 50*time.Millisecond); !errors.Is(err, ErrLockTimeout) {
		newcomer.Unlock()
		t.Errorf("newcomer Lock() error = %v, want ErrLockTimeout while waiter holds the lock", err)
	}
}

func TestFileLock_Canceled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	held := NewFileLock(path)
	if err := held.Lock(context.Background(), time.Second); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	defer held.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := NewFileLock(path).Lock(ctx, time.Minute); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Lock() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestFileLock_UnlockWithoutLock(t *testing.T) {
	l := NewFileLock(filepath.Join(t.TempDir(), "x"))
	if err := l.Unlock(); err != nil {
		t.Errorf("Unlock() error = %v", err)
	}
}
