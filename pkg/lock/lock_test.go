package lock

import (
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blockWait = 100 * time.Millisecond

func newPair(t *testing.T) (*FileLocker, *FileLocker) {
	t.Helper()
	path := SidecarPath(filepath.Join(t.TempDir(), "store.db"))
	a := NewFileLocker(path)
	b := NewFileLocker(path)
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return a, b
}

func TestSidecarPath(t *testing.T) {
	assert.Equal(t, "/tmp/x.db.lock", SidecarPath("/tmp/x.db"))
}

func TestFileLocker_SharedAllowsSharedHolders(t *testing.T) {
	a, b := newPair(t)

	require.NoError(t, a.LockShared())
	done := make(chan error, 1)
	go func() { done <- b.LockShared() }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("second shared lock blocked")
	}
	require.NoError(t, a.Unlock())
	require.NoError(t, b.Unlock())
}

func TestFileLocker_ExclusiveExcludesShared(t *testing.T) {
	a, b := newPair(t)

	require.NoError(t, a.LockExclusive())

	var acquired atomic.Bool
	done := make(chan error, 1)
	go func() {
		err := b.LockShared()
		acquired.Store(true)
		done <- err
	}()

	time.Sleep(blockWait)
	assert.False(t, acquired.Load(), "shared lock granted while exclusive held")

	require.NoError(t, a.Unlock())
	require.NoError(t, <-done)
	assert.True(t, acquired.Load())
	require.NoError(t, b.Unlock())
}

func TestFileLocker_SharedExcludesExclusive(t *testing.T) {
	a, b := newPair(t)

	require.NoError(t, a.LockShared())

	var acquired atomic.Bool
	done := make(chan error, 1)
	go func() {
		err := b.LockExclusive()
		acquired.Store(true)
		done <- err
	}()

	time.Sleep(blockWait)
	assert.False(t, acquired.Load(), "exclusive lock granted while shared held")

	require.NoError(t, a.Unlock())
	require.NoError(t, <-done)
	require.NoError(t, b.Unlock())
}

func TestExclusive_ReleasesOnError(t *testing.T) {
	a, b := newPair(t)
	boom := errors.New("boom")

	err := Exclusive(a, func() error { return boom })
	assert.ErrorIs(t, err, boom)

	// b would block forever if a still held the lock
	done := make(chan error, 1)
	go func() { done <- Exclusive(b, func() error { return nil }) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("lock was not released after error")
	}
}

func TestShared_ReleasesOnPanic(t *testing.T) {
	a, b := newPair(t)

	assert.Panics(t, func() {
		_ = Shared(a, func() error { panic("boom") })
	})

	done := make(chan error, 1)
	go func() { done <- Exclusive(b, func() error { return nil }) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("lock was not released after panic")
	}
}

func TestFileLocker_BadPath(t *testing.T) {
	l := NewFileLocker(filepath.Join(t.TempDir(), "missing", "dir", "x.lock"))
	err := l.LockExclusive()
	assert.ErrorIs(t, err, ErrLockUnavailable)
}
