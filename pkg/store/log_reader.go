package store

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ssargent/filekv/pkg/codec"
)

// errTornTail marks the end of the intact prefix of a log; the bytes from
// the reader's offset onward are an interrupted append
var errTornTail = errors.New("torn tail")

// LogReader provides sequential access to the frames of a store file
type LogReader struct {
	file   *os.File
	path   string
	reader *bufio.Reader
	codec  codec.Codec
	offset int64
	size   int64
	limit  int64
}

// NewLogReader reads frames from start up to size. The file is not closed
// by the reader.
func NewLogReader(file *os.File, c codec.Codec, start, size, limit int64) *LogReader {
	return &LogReader{
		file:   file,
		path:   file.Name(),
		reader: bufio.NewReader(io.NewSectionReader(file, start, size-start)),
		codec:  c,
		offset: start,
		size:   size,
		limit:  limit,
	}
}

// ReadNext reads the next record. It returns io.EOF at a clean end,
// errTornTail when the remaining bytes are an interrupted append, and a
// *CorruptionError for damage anywhere else.
func (r *LogReader) ReadNext() (*codec.Record, error) {
	start := r.offset
	if start == r.size {
		return nil, io.EOF
	}
	if r.size-start < codec.FrameHeaderSize {
		return nil, errTornTail
	}

	var hdr [codec.FrameHeaderSize]byte
	if _, err := io.ReadFull(r.reader, hdr[:]); err != nil {
		return nil, r.ioError(err)
	}
	fh, err := codec.ParseFrameHeader(hdr[:])
	if err != nil {
		// a complete header that fails its checksum is damage, not an
		// interrupted append, unless the rest of the file is zero fill
		return nil, r.tornOrCorrupt(start, err)
	}
	if int64(fh.Length) > r.limit {
		return nil, r.corrupt(start, fmt.Errorf("frame length %d exceeds limit %d", fh.Length, r.limit))
	}
	end := start + codec.FrameHeaderSize + int64(fh.Length)
	if end > r.size {
		return nil, errTornTail
	}

	payload := make([]byte, fh.Length)
	if _, err := io.ReadFull(r.reader, payload); err != nil {
		return nil, r.ioError(err)
	}

	if !fh.Verify(payload) {
		if end == r.size {
			return nil, errTornTail
		}
		// an intact header whose payload never reached the disk
		zero, err := r.zeroFrom(start + codec.FrameHeaderSize)
		if err != nil {
			return nil, err
		}
		if zero {
			return nil, errTornTail
		}
		return nil, r.corrupt(start, errors.New("checksum mismatch"))
	}

	rec, err := r.codec.DecodeRecord(payload)
	if err != nil {
		return nil, r.corrupt(start, err)
	}
	r.offset = end
	return rec, nil
}

// zeroFrom reports whether every byte from off to the end is zero. Some
// filesystems extend a file with zeros when a crash interrupts an append.
func (r *LogReader) zeroFrom(off int64) (bool, error) {
	buf := make([]byte, 32*1024)
	for off < r.size {
		n := int64(len(buf))
		if r.size-off < n {
			n = r.size - off
		}
		if _, err := r.file.ReadAt(buf[:n], off); err != nil {
			return false, r.ioError(err)
		}
		for _, b := range buf[:n] {
			if b != 0 {
				return false, nil
			}
		}
		off += n
	}
	return true, nil
}

// tornOrCorrupt classifies a bad frame at off that is not the last thing
// in the file
func (r *LogReader) tornOrCorrupt(off int64, err error) error {
	zero, zerr := r.zeroFrom(off)
	if zerr != nil {
		return zerr
	}
	if zero {
		return errTornTail
	}
	return r.corrupt(off, err)
}

func (r *LogReader) corrupt(off int64, err error) error {
	return &CorruptionError{Path: r.path, Offset: off, Err: err}
}

func (r *LogReader) ioError(err error) error {
	return fmt.Errorf("read %s: %w", r.path, err)
}

// Offset returns the end of the last record read
func (r *LogReader) Offset() int64 {
	return r.offset
}

// Iterator returns a streaming iterator for records. A torn tail ends the
// iteration without an error; check Torn afterwards.
func (r *LogReader) Iterator() *LogIterator {
	return &LogIterator{reader: r}
}

// LogIterator implements RecordIterator over a LogReader
type LogIterator struct {
	reader *LogReader
	record *codec.Record
	offset int64
	torn   bool
	err    error
}

func (it *LogIterator) Next() bool {
	if it.err != nil || it.torn {
		return false
	}
	it.offset = it.reader.Offset()
	rec, err := it.reader.ReadNext()
	switch {
	case err == nil:
		it.record = rec
		return true
	case errors.Is(err, io.EOF):
	case errors.Is(err, errTornTail):
		it.torn = true
	default:
		it.err = err
	}
	it.record = nil
	return false
}

func (it *LogIterator) Record() *codec.Record {
	return it.record
}

// Offset returns where the current record starts
func (it *LogIterator) Offset() int64 {
	return it.offset
}

func (it *LogIterator) Err() error {
	return it.err
}

// Torn reports whether iteration stopped at an interrupted append
func (it *LogIterator) Torn() bool {
	return it.torn
}

// headerState is the result of inspecting the start of a store file
type headerState struct {
	header *codec.FileHeader
	// dataStart is where frames begin; 0 when there is no complete header
	dataStart int64
	// torn is set when the file holds only part of a header
	torn bool
}

// readHeader inspects the first bytes of a store file of the given size.
// A file shorter than a header that matches a header prefix was cut off
// while being created and is treated as empty.
func readHeader(file *os.File, size int64, want codec.Format) (headerState, error) {
	if size == 0 {
		return headerState{}, nil
	}
	n := int64(codec.HeaderSize)
	if size < n {
		n = size
	}
	buf := make([]byte, n)
	if _, err := file.ReadAt(buf, 0); err != nil {
		return headerState{}, fmt.Errorf("read %s: %w", file.Name(), err)
	}
	if size < codec.HeaderSize {
		if codec.IsHeaderPrefix(buf) {
			return headerState{torn: true}, nil
		}
		return headerState{}, &CorruptionError{Path: file.Name(), Offset: 0, Err: errors.New("file too short for a header")}
	}
	h, err := codec.DecodeHeader(buf)
	if err != nil {
		if bytes.Equal(buf, make([]byte, codec.HeaderSize)) {
			zr := &LogReader{file: file, path: file.Name(), size: size}
			zero, zerr := zr.zeroFrom(0)
			if zerr != nil {
				return headerState{}, zerr
			}
			if zero {
				return headerState{torn: true}, nil
			}
		}
		return headerState{}, &CorruptionError{Path: file.Name(), Offset: 0, Err: err}
	}
	if h.Format != want {
		return headerState{}, &CorruptionError{
			Path:   file.Name(),
			Offset: 0,
			Err:    fmt.Errorf("%w: file is %s, store opened as %s", codec.ErrMalformed, h.Format, want),
		}
	}
	return headerState{header: &h, dataStart: codec.HeaderSize}, nil
}

// replayResult summarizes a pass over a range of frames
type replayResult struct {
	validEnd int64
	records  int
	torn     bool
}

// replay applies every intact record between start and size, in file order
func replay(file *os.File, c codec.Codec, start, size, limit int64, apply func(*codec.Record)) (replayResult, error) {
	it := NewLogReader(file, c, start, size, limit).Iterator()
	res := replayResult{validEnd: start}
	for it.Next() {
		apply(it.Record())
		res.records++
	}
	res.validEnd = it.reader.Offset()
	if err := it.Err(); err != nil {
		return res, err
	}
	res.torn = it.Torn()
	return res, nil
}
