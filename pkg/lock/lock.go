// Package lock serializes access to a store file across processes.
//
// Locks are advisory and whole-file: LockShared admits any number of readers
// and LockExclusive admits a single writer with no readers. The lock lives on
// a sidecar file next to the store because compaction replaces the store file
// by rename, and a lock held on a replaced inode protects nothing.
package lock

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gofrs/flock"
)

// ErrLockUnavailable is wrapped by every failure to acquire or release a lock
var ErrLockUnavailable = errors.New("lock unavailable")

// Locker is the capability the store needs from a locking mechanism.
// Acquisition blocks until granted. A held shared lock may be upgraded by
// calling LockExclusive, but callers here always Unlock first.
type Locker interface {
	LockShared() error
	LockExclusive() error
	Unlock() error
	Close() error
}

// SidecarPath returns the lock file used for a store file
func SidecarPath(storePath string) string {
	return storePath + ".lock"
}

// FileLocker implements Locker with flock(2)-style locks on a lock file
type FileLocker struct {
	fl *flock.Flock
	mu sync.Mutex
}

// NewFileLocker creates a locker over path. The file is created on first use
// and never receives any content.
func NewFileLocker(path string) *FileLocker {
	return &FileLocker{fl: flock.New(path)}
}

// Path returns the lock file path
func (l *FileLocker) Path() string {
	return l.fl.Path()
}

func (l *FileLocker) LockShared() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.fl.RLock(); err != nil {
		return fmt.Errorf("%w: shared lock on %s: %v", ErrLockUnavailable, l.fl.Path(), err)
	}
	return nil
}

func (l *FileLocker) LockExclusive() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.fl.Lock(); err != nil {
		return fmt.Errorf("%w: exclusive lock on %s: %v", ErrLockUnavailable, l.fl.Path(), err)
	}
	return nil
}

func (l *FileLocker) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("%w: unlock %s: %v", ErrLockUnavailable, l.fl.Path(), err)
	}
	return nil
}

// Close releases any held lock and closes the lock file descriptor
func (l *FileLocker) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fl.Close()
}

// Shared runs fn while holding a shared lock
func Shared(l Locker, fn func() error) error {
	if err := l.LockShared(); err != nil {
		return err
	}
	return release(l, fn)
}

// Exclusive runs fn while holding the exclusive lock
func Exclusive(l Locker, fn func() error) error {
	if err := l.LockExclusive(); err != nil {
		return err
	}
	return release(l, fn)
}

// release runs fn and always unlocks, even if fn panics. An unlock failure is
// reported only when fn itself succeeded.
func release(l Locker, fn func() error) (err error) {
	defer func() {
		if uerr := l.Unlock(); uerr != nil && err == nil {
			err = uerr
		}
	}()
	return fn()
}
