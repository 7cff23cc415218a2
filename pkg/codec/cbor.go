package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// CBORCodec stores records as CBOR maps with integer keys
type CBORCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCBORCodec creates a CBOR codec using core deterministic encoding.
// Maps decoded into interface values use string keys so they can be
// re-encoded as JSON.
func NewCBORCodec() *CBORCodec {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return &CBORCodec{enc: enc, dec: dec}
}

type cborRecord struct {
	Key     string            `cbor:"1,keyasint"`
	Version uint64            `cbor:"2,keyasint"`
	Kind    Kind              `cbor:"3,keyasint"`
	Value   cbor.RawMessage   `cbor:"4,keyasint,omitempty"`
	Items   []cbor.RawMessage `cbor:"5,keyasint,omitempty"`
}

func (c *CBORCodec) Format() Format { return FormatCBOR }

func (c *CBORCodec) Marshal(v any) ([]byte, error) {
	data, err := c.enc.Marshal(v)
	if err != nil {
		return nil, unencodable(FormatCBOR, err)
	}
	return data, nil
}

func (c *CBORCodec) Unmarshal(data []byte, v any) error {
	return c.dec.Unmarshal(data, v)
}

func (c *CBORCodec) EncodeRecord(r *Record) ([]byte, error) {
	cr := cborRecord{Key: r.Key, Version: r.Version, Kind: r.Kind, Value: r.Value}
	if r.Kind == KindList {
		cr.Items = make([]cbor.RawMessage, len(r.Items))
		for i, item := range r.Items {
			cr.Items[i] = item
		}
	}
	data, err := c.enc.Marshal(&cr)
	if err != nil {
		return nil, unencodable(FormatCBOR, err)
	}
	return data, nil
}

func (c *CBORCodec) DecodeRecord(data []byte) (*Record, error) {
	var cr cborRecord
	if err := c.dec.Unmarshal(data, &cr); err != nil {
		return nil, malformed(FormatCBOR, err)
	}
	r := &Record{Key: cr.Key, Version: cr.Version, Kind: cr.Kind}
	switch cr.Kind {
	case KindValue:
		r.Value = []byte(cr.Value)
	case KindList:
		r.Items = make([][]byte, len(cr.Items))
		for i, item := range cr.Items {
			r.Items[i] = []byte(item)
		}
	}
	return decoded(r)
}
