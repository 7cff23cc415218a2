package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// BinaryCodec stores records in a compact length-prefixed layout with
// MessagePack value payloads
type BinaryCodec struct{}

// NewBinaryCodec creates a binary codec
func NewBinaryCodec() *BinaryCodec {
	return &BinaryCodec{}
}

func (c *BinaryCodec) Format() Format { return FormatBinary }

func (c *BinaryCodec) Marshal(v any) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, unencodable(FormatBinary, err)
	}
	return data, nil
}

func (c *BinaryCodec) Unmarshal(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

// EncodeRecord serializes a record
// Format: [Kind(1)][Version(uvarint)][KeyLen(uvarint)][Key] followed by
// [ValueLen(uvarint)][Value] for values or [Count(uvarint)]([Len(uvarint)][Item])* for lists
func (c *BinaryCodec) EncodeRecord(r *Record) ([]byte, error) {
	size := 1 + 2*binary.MaxVarintLen64 + len(r.Key)
	switch r.Kind {
	case KindValue:
		size += binary.MaxVarintLen64 + len(r.Value)
	case KindList:
		size += binary.MaxVarintLen64
		for _, item := range r.Items {
			size += binary.MaxVarintLen64 + len(item)
		}
	}

	buf := make([]byte, 0, size)
	buf = append(buf, byte(r.Kind))
	buf = binary.AppendUvarint(buf, r.Version)
	buf = appendBytes(buf, []byte(r.Key))

	switch r.Kind {
	case KindValue:
		buf = appendBytes(buf, r.Value)
	case KindList:
		buf = binary.AppendUvarint(buf, uint64(len(r.Items)))
		for _, item := range r.Items {
			buf = appendBytes(buf, item)
		}
	}
	return buf, nil
}

func (c *BinaryCodec) DecodeRecord(data []byte) (*Record, error) {
	d := binaryDecoder{data: data}

	kind := Kind(d.readByte())
	version := d.readUvarint()
	key := d.readBytes()
	r := &Record{Key: string(key), Version: version, Kind: kind}

	switch kind {
	case KindValue:
		r.Value = d.readBytes()
	case KindList:
		n := d.readUvarint()
		if d.err == nil && n > uint64(len(data)) {
			d.fail("list length %d exceeds record size", n)
		}
		if d.err == nil {
			r.Items = make([][]byte, 0, n)
			for i := uint64(0); i < n && d.err == nil; i++ {
				r.Items = append(r.Items, d.readBytes())
			}
		}
	}

	if d.err == nil && d.pos != len(data) {
		d.fail("%d trailing bytes", len(data)-d.pos)
	}
	if d.err != nil {
		return nil, malformed(FormatBinary, d.err)
	}
	return decoded(r)
}

func appendBytes(dst, b []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(b)))
	return append(dst, b...)
}

// binaryDecoder reads fields sequentially and remembers the first error
type binaryDecoder struct {
	data []byte
	pos  int
	err  error
}

func (d *binaryDecoder) fail(format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf("offset %d: "+format, append([]any{d.pos}, args...)...)
	}
}

func (d *binaryDecoder) readByte() byte {
	if d.err != nil {
		return 0
	}
	if d.pos >= len(d.data) {
		d.fail("unexpected end of record")
		return 0
	}
	b := d.data[d.pos]
	d.pos++
	return b
}

func (d *binaryDecoder) readUvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.data[d.pos:])
	if n <= 0 {
		d.fail("bad varint")
		return 0
	}
	d.pos += n
	return v
}

func (d *binaryDecoder) readBytes() []byte {
	n := d.readUvarint()
	if d.err != nil {
		return nil
	}
	if n > uint64(len(d.data)-d.pos) {
		d.fail("length %d exceeds remaining %d bytes", n, len(d.data)-d.pos)
		return nil
	}
	out := make([]byte, n)
	copy(out, d.data[d.pos:d.pos+int(n)])
	d.pos += int(n)
	return out
}
