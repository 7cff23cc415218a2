package codec

import (
	"errors"
	"fmt"
	"strings"
)

// Kind distinguishes live scalar values, lists and tombstones
type Kind uint8

const (
	KindValue Kind = iota
	KindList
	KindTombstone
)

func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindList:
		return "list"
	case KindTombstone:
		return "tombstone"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k Kind) valid() bool {
	return k <= KindTombstone
}

// Record is one logged entry for a key
type Record struct {
	Key     string
	Version uint64
	Kind    Kind
	Value   []byte   // encoded payload, KindValue only
	Items   [][]byte // encoded elements, KindList only
}

// NewValue creates a scalar record
func NewValue(key string, version uint64, payload []byte) *Record {
	return &Record{Key: key, Version: version, Kind: KindValue, Value: payload}
}

// NewList creates a list record. The items slice is copied.
func NewList(key string, version uint64, items [][]byte) *Record {
	cp := make([][]byte, len(items))
	copy(cp, items)
	return &Record{Key: key, Version: version, Kind: KindList, Items: cp}
}

// NewTombstone creates a deletion marker
func NewTombstone(key string, version uint64) *Record {
	return &Record{Key: key, Version: version, Kind: KindTombstone}
}

// IsTombstone reports whether the record marks a deletion
func (r *Record) IsTombstone() bool {
	return r.Kind == KindTombstone
}

// Validate checks the structural invariants shared by all formats
func (r *Record) Validate() error {
	if r.Key == "" {
		return fmt.Errorf("%w: empty key", ErrMalformed)
	}
	if !r.Kind.valid() {
		return fmt.Errorf("%w: unknown kind %d", ErrMalformed, r.Kind)
	}
	if r.Version == 0 {
		return fmt.Errorf("%w: zero version for key %q", ErrMalformed, r.Key)
	}
	if r.Kind == KindValue && len(r.Value) == 0 {
		return fmt.Errorf("%w: value record %q has no payload", ErrMalformed, r.Key)
	}
	return nil
}

var (
	// ErrMalformed is wrapped by every decoding failure
	ErrMalformed = errors.New("malformed record")
	// ErrUnencodable is wrapped when a value has no representation in the format
	ErrUnencodable = errors.New("value cannot be encoded")
)

// Codec maps records and value payloads to bytes for one format
type Codec interface {
	// Format identifies the on-disk format
	Format() Format
	// Marshal encodes a caller value into a payload
	Marshal(v any) ([]byte, error)
	// Unmarshal decodes a payload into v, which must be a pointer
	Unmarshal(data []byte, v any) error
	// EncodeRecord serializes a record, without framing
	EncodeRecord(r *Record) ([]byte, error)
	// DecodeRecord parses bytes produced by EncodeRecord
	DecodeRecord(data []byte) (*Record, error)
}

// Format names one of the supported record formats
type Format uint8

const (
	FormatJSON Format = iota + 1
	FormatBinary
	FormatYAML
	FormatCBOR
)

var formatNames = map[Format]string{
	FormatJSON:   "json",
	FormatBinary: "binary",
	FormatYAML:   "yaml",
	FormatCBOR:   "cbor",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("format(%d)", uint8(f))
}

// ParseFormat converts a format name (json, binary, yaml, cbor) to a Format
func ParseFormat(name string) (Format, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "bin" || n == "msgpack" {
		n = "binary"
	}
	if n == "yml" {
		n = "yaml"
	}
	for f, fname := range formatNames {
		if fname == n {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown format %q (want json, binary, yaml or cbor)", name)
}

// New returns the codec for a format
func New(f Format) (Codec, error) {
	switch f {
	case FormatJSON:
		return NewJSONCodec(), nil
	case FormatBinary:
		return NewBinaryCodec(), nil
	case FormatYAML:
		return NewYAMLCodec(), nil
	case FormatCBOR:
		return NewCBORCodec(), nil
	default:
		return nil, fmt.Errorf("unsupported format %s", f)
	}
}

// decoded validates a freshly decoded record
func decoded(r *Record) (*Record, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func malformed(format Format, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrMalformed, format, err)
}

func unencodable(format Format, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnencodable, format, err)
}
