package store

import (
	"fmt"
	"os"

	"github.com/ssargent/filekv/pkg/codec"
)

// LogWriter appends framed records to a store file. The caller tracks the
// offset of the intact prefix and passes it to every append.
type LogWriter struct {
	file  *os.File
	path  string
	codec codec.Codec
	limit int64
}

// NewLogWriter creates a writer over an open, writable store file
func NewLogWriter(file *os.File, c codec.Codec, limit int64) *LogWriter {
	return &LogWriter{file: file, path: file.Name(), codec: c, limit: limit}
}

// Frame encodes and frames a record
func (w *LogWriter) Frame(dst []byte, rec *codec.Record) ([]byte, error) {
	return frameRecord(dst, w.codec, rec, w.limit)
}

// Append writes buf at off and syncs the file. When discardTail is set,
// everything past off is cut first. A failed append is rolled back to off
// on a best-effort basis; the reader's tail rule covers what remains.
func (w *LogWriter) Append(off int64, buf []byte, discardTail bool) error {
	if discardTail {
		if err := w.file.Truncate(off); err != nil {
			return &PersistenceError{Op: "truncate", Path: w.path, Err: err}
		}
	}
	if _, err := w.file.WriteAt(buf, off); err != nil {
		w.rollback(off)
		return &PersistenceError{Op: "write", Path: w.path, Err: err}
	}
	if err := w.file.Sync(); err != nil {
		w.rollback(off)
		return &PersistenceError{Op: "sync", Path: w.path, Err: err}
	}
	return nil
}

func (w *LogWriter) rollback(off int64) {
	if err := w.file.Truncate(off); err == nil {
		_ = w.file.Sync()
	}
}

// Path returns the file path
func (w *LogWriter) Path() string {
	return w.path
}

func frameRecord(dst []byte, c codec.Codec, rec *codec.Record, limit int64) ([]byte, error) {
	payload, err := c.EncodeRecord(rec)
	if err != nil {
		return nil, err
	}
	if int64(len(payload)) > limit {
		return nil, fmt.Errorf("%w: %q is %d bytes, limit %d", ErrRecordTooLarge, rec.Key, len(payload), limit)
	}
	return codec.AppendFrame(dst, payload), nil
}

// syncDir flushes directory entries so a created or renamed file survives
// a crash. Some platforms cannot sync directories; that is not an error.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
