package store

import (
	"bufio"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/ssargent/filekv/pkg/codec"
	"github.com/ssargent/filekv/pkg/lock"
)

// Compact rewrites the file with only the latest record of each live key.
// The new file replaces the old one by rename, so readers see either the
// old file or the new one, never a mix.
func (s *Store) Compact() (*CompactionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isOpen {
		return nil, ErrStoreClosed
	}
	if s.opts.ReadOnly {
		return nil, ErrReadOnly
	}

	var res *CompactionResult
	err := lock.Exclusive(s.locker, func() error {
		if err := s.refresh(); err != nil {
			return err
		}
		var err error
		res, err = s.compact()
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) compact() (*CompactionResult, error) {
	res := &CompactionResult{
		RecordsBefore: s.records,
		SizeBefore:    s.observed,
	}
	if s.header == nil {
		// nothing has been written yet
		res.SizeAfter = s.observed
		return res, nil
	}

	floor := s.header.VersionFloor
	if v := s.index.MaxTombstoneVersion(); v > floor {
		floor = v
	}
	header := codec.NewFileHeader(s.codec.Format(), floor)
	live := s.index.LiveRecords()

	pf, err := renameio.NewPendingFile(s.path,
		renameio.WithPermissions(0644),
		renameio.WithExistingPermissions())
	if err != nil {
		return nil, &PersistenceError{Op: "create temp", Path: s.path, Err: err}
	}
	defer func() { _ = pf.Cleanup() }()

	w := bufio.NewWriter(pf)
	if _, err := w.Write(header.Encode()); err != nil {
		return nil, &PersistenceError{Op: "write", Path: pf.Name(), Err: err}
	}
	var frame []byte
	for _, rec := range live {
		frame, err = frameRecord(frame[:0], s.codec, rec, s.opts.maxRecordSize())
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(frame); err != nil {
			return nil, &PersistenceError{Op: "write", Path: pf.Name(), Err: err}
		}
	}
	if err := w.Flush(); err != nil {
		return nil, &PersistenceError{Op: "write", Path: pf.Name(), Err: err}
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return nil, &PersistenceError{Op: "rename", Path: s.path, Err: err}
	}
	syncDir(filepath.Dir(s.path))

	res.TombstonesDropped = s.index.Tombstones()
	res.RecordsAfter = len(live)
	res.FileID = header.FileID

	if err := s.reload(); err != nil {
		return nil, err
	}
	if fi, err := os.Stat(s.path); err == nil {
		res.SizeAfter = fi.Size()
	}

	s.logger.Info("store compacted",
		"records_before", res.RecordsBefore,
		"records_after", res.RecordsAfter,
		"tombstones_dropped", res.TombstonesDropped,
		"size_before", res.SizeBefore,
		"size_after", res.SizeAfter)
	return res, nil
}
