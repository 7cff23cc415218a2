package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/segmentio/ksuid"
)

const (
	// HeaderSize is the size of the file header in bytes
	HeaderSize = 40
	// FrameHeaderSize is the size of the per-record frame header:
	// header CRC32(4) + Length(4) + payload CRC32(4)
	FrameHeaderSize = 12

	layoutVersion byte = 2
)

var magic = [4]byte{'F', 'K', 'V', 'L'}

// FileHeader identifies a store file and the format of its records
type FileHeader struct {
	Format Format
	// FileID changes every time the file is rewritten
	FileID ksuid.KSUID
	// VersionFloor is the highest version discarded by compaction
	VersionFloor uint64
}

// NewFileHeader creates a header with a fresh file ID
func NewFileHeader(f Format, versionFloor uint64) FileHeader {
	return FileHeader{Format: f, FileID: ksuid.New(), VersionFloor: versionFloor}
}

// Encode serializes the header
// Format: [magic(4)][layout(1)][format(1)][reserved(2)][fileID(20)][versionFloor(8)][crc32(4)]
func (h FileHeader) Encode() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], magic[:])
	buf[4] = layoutVersion
	buf[5] = byte(h.Format)
	copy(buf[8:28], h.FileID.Bytes())
	binary.LittleEndian.PutUint64(buf[28:36], h.VersionFloor)
	binary.LittleEndian.PutUint32(buf[36:40], crc32.ChecksumIEEE(buf[:36]))
	return buf
}

// DecodeHeader parses a file header
func DecodeHeader(data []byte) (FileHeader, error) {
	if len(data) < HeaderSize {
		return FileHeader{}, fmt.Errorf("%w: header too short: %d < %d", ErrMalformed, len(data), HeaderSize)
	}
	if !bytes.Equal(data[0:4], magic[:]) {
		return FileHeader{}, fmt.Errorf("%w: not a filekv store file (bad magic %q)", ErrMalformed, data[0:4])
	}
	if data[4] != layoutVersion {
		return FileHeader{}, fmt.Errorf("%w: unsupported layout version %d", ErrMalformed, data[4])
	}
	if crc32.ChecksumIEEE(data[:36]) != binary.LittleEndian.Uint32(data[36:40]) {
		return FileHeader{}, fmt.Errorf("%w: header checksum mismatch", ErrMalformed)
	}
	id, err := ksuid.FromBytes(data[8:28])
	if err != nil {
		return FileHeader{}, fmt.Errorf("%w: bad file id: %v", ErrMalformed, err)
	}
	f := Format(data[5])
	if _, ok := formatNames[f]; !ok {
		return FileHeader{}, fmt.Errorf("%w: unknown format byte %d", ErrMalformed, data[5])
	}
	return FileHeader{
		Format:       f,
		FileID:       id,
		VersionFloor: binary.LittleEndian.Uint64(data[28:36]),
	}, nil
}

// IsHeaderPrefix reports whether data could be the start of a header whose
// write was interrupted. Only the magic and layout bytes can be checked.
func IsHeaderPrefix(data []byte) bool {
	if len(data) >= HeaderSize {
		return false
	}
	n := len(data)
	if n > 4 {
		n = 4
	}
	if !bytes.Equal(data[:n], magic[:n]) {
		return false
	}
	return len(data) <= 4 || data[4] == layoutVersion
}

// FrameHeader describes the payload that follows it
type FrameHeader struct {
	Length   uint32
	Checksum uint32
}

// AppendFrame appends a framed payload to dst
func AppendFrame(dst, payload []byte) []byte {
	var hdr [FrameHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(payload)))
	binary.LittleEndian.PutUint32(hdr[8:12], crc32.ChecksumIEEE(payload))
	binary.LittleEndian.PutUint32(hdr[0:4], crc32.ChecksumIEEE(hdr[4:12]))
	dst = append(dst, hdr[:]...)
	return append(dst, payload...)
}

// ParseFrameHeader decodes a frame header. The header carries its own
// checksum so a damaged length is rejected before anything trusts it.
func ParseFrameHeader(hdr []byte) (FrameHeader, error) {
	if len(hdr) < FrameHeaderSize {
		return FrameHeader{}, fmt.Errorf("%w: frame header too short: %d < %d", ErrMalformed, len(hdr), FrameHeaderSize)
	}
	if crc32.ChecksumIEEE(hdr[4:12]) != binary.LittleEndian.Uint32(hdr[0:4]) {
		return FrameHeader{}, fmt.Errorf("%w: frame header checksum mismatch", ErrMalformed)
	}
	return FrameHeader{
		Length:   binary.LittleEndian.Uint32(hdr[4:8]),
		Checksum: binary.LittleEndian.Uint32(hdr[8:12]),
	}, nil
}

// Verify checks a payload against the header
func (h FrameHeader) Verify(payload []byte) bool {
	return uint32(len(payload)) == h.Length && crc32.ChecksumIEEE(payload) == h.Checksum
}
