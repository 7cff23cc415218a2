package store

import (
	"fmt"
	"log/slog"

	"github.com/segmentio/ksuid"
	"github.com/ssargent/filekv/pkg/codec"
	"github.com/ssargent/filekv/pkg/lock"
)

// DefaultMaxRecordSize bounds a single encoded record
const DefaultMaxRecordSize = 64 << 20

// Options configures a Store
type Options struct {
	// ReadOnly opens the store without ever writing to it
	ReadOnly bool
	// LockPath overrides the sidecar lock file (default "<path>.lock")
	LockPath string
	// Locker replaces the file lock entirely; LockPath is ignored when set
	Locker lock.Locker
	// Logger receives recovery, reload and compaction events
	Logger *slog.Logger
	// MaxRecordSize limits encoded records (default DefaultMaxRecordSize)
	MaxRecordSize int
}

func (o Options) maxRecordSize() int64 {
	if o.MaxRecordSize <= 0 {
		return DefaultMaxRecordSize
	}
	return int64(o.MaxRecordSize)
}

// RecordIterator provides streaming access to records
type RecordIterator interface {
	Next() bool
	Record() *codec.Record
	Offset() int64
	Err() error
}

// StoreStats holds statistics about the store
type StoreStats struct {
	Path         string      `json:"path"`
	Format       string      `json:"format"`
	FileID       ksuid.KSUID `json:"file_id"`
	LiveKeys     int         `json:"live_keys"`
	Lists        int         `json:"lists"`
	Tombstones   int         `json:"tombstones"`
	Records      int         `json:"records"`
	DeadRecords  int         `json:"dead_records"`
	FileSize     int64       `json:"file_size"`
	VersionFloor uint64      `json:"version_floor"`
	Reloads      int         `json:"reloads"`
	TornTail     bool        `json:"torn_tail"`
}

// CompactionResult describes one compaction run
type CompactionResult struct {
	RecordsBefore     int         `json:"records_before"`
	RecordsAfter      int         `json:"records_after"`
	TombstonesDropped int         `json:"tombstones_dropped"`
	SizeBefore        int64       `json:"size_before"`
	SizeAfter         int64       `json:"size_after"`
	FileID            ksuid.KSUID `json:"file_id"`
}

// Errors
var (
	ErrKeyNotFound     = &KVError{"key not found"}
	ErrKeyExists       = &KVError{"key already exists"}
	ErrInvalidKey      = &KVError{"invalid key"}
	ErrWrongKind       = &KVError{"operation not valid for the value stored at key"}
	ErrIndexOutOfRange = &KVError{"list index out of range"}
	ErrReadOnly        = &KVError{"store is read-only"}
	ErrStoreClosed     = &KVError{"store is not open"}
	ErrRecordTooLarge  = &KVError{"record exceeds maximum size"}
	ErrCorruptRecord   = &KVError{"data corruption detected"}
	ErrPersistence     = &KVError{"write to disk failed"}
	ErrLockUnavailable = lock.ErrLockUnavailable
	ErrUnencodable     = codec.ErrUnencodable
)

// KVError represents a key-value store error
type KVError struct {
	Message string
}

func (e *KVError) Error() string {
	return e.Message
}

// CorruptionError reports a damaged store file. It matches ErrCorruptRecord.
type CorruptionError struct {
	Path   string
	Offset int64
	Err    error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("%s: %s at offset %d: %v", ErrCorruptRecord.Message, e.Path, e.Offset, e.Err)
}

func (e *CorruptionError) Is(target error) bool {
	return target == ErrCorruptRecord
}

func (e *CorruptionError) Unwrap() error {
	return e.Err
}

// PersistenceError reports a failed write, sync or rename. It matches ErrPersistence.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", ErrPersistence.Message, e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func validateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	return nil
}
