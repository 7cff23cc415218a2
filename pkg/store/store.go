package store

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ssargent/filekv/pkg/codec"
	"github.com/ssargent/filekv/pkg/lock"
)

// Store is a handle on one store file. Every operation first brings the
// in-memory index up to date with the file, so several handles, in one
// process or many, see each other's writes.
type Store struct {
	path   string
	codec  codec.Codec
	opts   Options
	locker lock.Locker
	logger *slog.Logger

	mu     sync.Mutex
	isOpen bool

	// state of the loaded file
	file     *os.File
	writer   *LogWriter
	header   *codec.FileHeader
	index    *HashIndex
	validEnd int64
	observed int64
	torn     bool
	records  int
	reloads  int
}

// Open opens or creates the store at path. A missing file is an empty
// store; the file is created by the first write. Read-only handles require
// the file to exist.
func Open(path string, c codec.Codec, opts Options) (*Store, error) {
	if c == nil {
		return nil, errors.New("store: nil codec")
	}
	if path == "" {
		return nil, errors.New("store: empty path")
	}

	if opts.ReadOnly {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
	} else if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	locker := opts.Locker
	if locker == nil {
		lockPath := opts.LockPath
		if lockPath == "" {
			lockPath = lock.SidecarPath(path)
		}
		locker = lock.NewFileLocker(lockPath)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		path:   path,
		codec:  c,
		opts:   opts,
		locker: locker,
		logger: logger.With("store", path),
		index:  NewHashIndex(),
	}

	if err := lock.Shared(s.locker, s.reload); err != nil {
		_ = s.locker.Close()
		s.closeFile()
		return nil, err
	}
	s.isOpen = true

	s.logger.Debug("store opened",
		"format", c.Format().String(),
		"keys", s.index.Size(),
		"records", s.records,
		"torn_tail", s.torn,
		"read_only", opts.ReadOnly)
	return s, nil
}

// Path returns the store file path
func (s *Store) Path() string {
	return s.path
}

// Format returns the record format of the store
func (s *Store) Format() codec.Format {
	return s.codec.Format()
}

// Codec returns the codec values are encoded with
func (s *Store) Codec() codec.Codec {
	return s.codec
}

// ReadOnly reports whether the handle rejects writes
func (s *Store) ReadOnly() bool {
	return s.opts.ReadOnly
}

// Close releases the file and the lock. Later calls fail with ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isOpen {
		return ErrStoreClosed
	}
	s.isOpen = false
	s.closeFile()
	s.index.Clear()
	return s.locker.Close()
}

// view runs fn with a fresh index under the shared lock
func (s *Store) view(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isOpen {
		return ErrStoreClosed
	}
	return lock.Shared(s.locker, func() error {
		if err := s.refresh(); err != nil {
			return err
		}
		return fn()
	})
}

// update runs fn with a fresh index under the exclusive lock. fn returns
// the record to append, or nil to leave the file unchanged.
func (s *Store) update(fn func() (*codec.Record, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isOpen {
		return ErrStoreClosed
	}
	if s.opts.ReadOnly {
		return ErrReadOnly
	}
	return lock.Exclusive(s.locker, func() error {
		if err := s.refresh(); err != nil {
			return err
		}
		rec, err := fn()
		if err != nil || rec == nil {
			return err
		}
		return s.append(rec)
	})
}

// refresh reloads whatever changed in the file since the last look.
// Appends only ever grow the file and a rewrite always replaces it, so a
// different file or a different size means another writer was here.
func (s *Store) refresh() error {
	fi, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		if s.file == nil {
			return nil
		}
		return s.reload()
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", s.path, err)
	}
	if s.file == nil || s.header == nil {
		return s.reload()
	}
	held, err := s.file.Stat()
	if err != nil || !os.SameFile(fi, held) {
		return s.reload()
	}
	size := fi.Size()
	if size == s.observed && !s.torn {
		return nil
	}
	if size < s.validEnd {
		return s.reload()
	}
	return s.catchUp(size)
}

// reload rebuilds the index from the whole file
func (s *Store) reload() error {
	s.closeFile()
	s.index = NewHashIndex()
	s.header = nil
	s.validEnd, s.observed, s.records, s.torn = 0, 0, 0, false

	flag := os.O_RDWR
	if s.opts.ReadOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(s.path, flag, 0)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", s.path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat %s: %w", s.path, err)
	}

	hs, err := readHeader(f, fi.Size(), s.codec.Format())
	if err != nil {
		_ = f.Close()
		return err
	}
	s.file = f
	if !s.opts.ReadOnly {
		s.writer = NewLogWriter(f, s.codec, s.opts.maxRecordSize())
	}
	s.reloads++
	if hs.header == nil {
		s.observed = fi.Size()
		s.torn = hs.torn
		if hs.torn {
			s.logger.Warn("ignoring incomplete file header", "size", fi.Size())
		}
		return nil
	}
	s.header = hs.header
	s.validEnd = hs.dataStart
	return s.catchUp(fi.Size())
}

// catchUp replays the records between the intact prefix and size
func (s *Store) catchUp(size int64) error {
	res, err := replay(s.file, s.codec, s.validEnd, size, s.opts.maxRecordSize(), func(rec *codec.Record) {
		s.index.Apply(rec)
	})
	s.records += res.records
	if err != nil {
		// observed is left behind so the damage is reported again next time
		s.validEnd = res.validEnd
		return err
	}
	if res.torn && !s.torn {
		s.logger.Warn("ignoring incomplete record at end of file",
			"offset", res.validEnd,
			"bytes", size-res.validEnd)
	}
	s.validEnd = res.validEnd
	s.observed = size
	s.torn = res.torn
	return nil
}

// append writes one record after the intact prefix, dropping any torn
// tail first, then applies it to the index.
func (s *Store) append(rec *codec.Record) error {
	created := false
	if s.file == nil {
		f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE, 0644)
		if err != nil {
			return &PersistenceError{Op: "create", Path: s.path, Err: err}
		}
		s.file = f
		s.writer = NewLogWriter(f, s.codec, s.opts.maxRecordSize())
		created = true
	}

	var buf []byte
	off := s.validEnd
	header := s.header
	if header == nil {
		h := codec.NewFileHeader(s.codec.Format(), 0)
		header = &h
		buf = h.Encode()
		off = 0
	}
	buf, err := s.writer.Frame(buf, rec)
	if err != nil {
		return err
	}

	discard := s.torn || s.observed > off
	if discard && off > 0 {
		s.logger.Info("truncating incomplete tail before append", "offset", off, "size", s.observed)
	}
	if err := s.writer.Append(off, buf, discard); err != nil {
		// the file may now hold a partial frame; force a rescan next time
		s.torn = true
		return err
	}
	if created {
		syncDir(filepath.Dir(s.path))
	}

	s.header = header
	s.validEnd = off + int64(len(buf))
	s.observed = s.validEnd
	s.torn = false
	s.records++
	s.index.Apply(rec)
	return nil
}

func (s *Store) closeFile() {
	if s.file != nil {
		_ = s.file.Close()
	}
	s.file = nil
	s.writer = nil
}

// floor is the lowest version a brand-new key may not use
func (s *Store) floor() uint64 {
	if s.header == nil {
		return 0
	}
	return s.header.VersionFloor
}

// Stats reports on the index and the file
func (s *Store) Stats() (*StoreStats, error) {
	var st *StoreStats
	err := s.view(func() error {
		values, lists := s.index.Count()
		st = &StoreStats{
			Path:         s.path,
			Format:       s.codec.Format().String(),
			LiveKeys:     values + lists,
			Lists:        lists,
			Tombstones:   s.index.Tombstones(),
			Records:      s.records,
			DeadRecords:  s.records - values - lists,
			FileSize:     s.observed,
			VersionFloor: s.floor(),
			Reloads:      s.reloads,
			TornTail:     s.torn,
		}
		if s.header != nil {
			st.FileID = s.header.FileID
		}
		return nil
	})
	return st, err
}

var _ io.Closer = (*Store)(nil)
