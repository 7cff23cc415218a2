package codec

import (
	"encoding/json"
)

// JSONCodec stores records as JSON objects with values embedded verbatim
type JSONCodec struct{}

// NewJSONCodec creates a JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

type jsonRecord struct {
	Key     string            `json:"k"`
	Version uint64            `json:"ver"`
	Kind    Kind              `json:"t"`
	Value   json.RawMessage   `json:"v,omitempty"`
	Items   []json.RawMessage `json:"items,omitempty"`
}

func (c *JSONCodec) Format() Format { return FormatJSON }

func (c *JSONCodec) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, unencodable(FormatJSON, err)
	}
	return data, nil
}

func (c *JSONCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (c *JSONCodec) EncodeRecord(r *Record) ([]byte, error) {
	jr := jsonRecord{Key: r.Key, Version: r.Version, Kind: r.Kind, Value: r.Value}
	if r.Kind == KindList {
		jr.Items = make([]json.RawMessage, len(r.Items))
		for i, item := range r.Items {
			jr.Items[i] = item
		}
	}
	data, err := json.Marshal(&jr)
	if err != nil {
		return nil, unencodable(FormatJSON, err)
	}
	return data, nil
}

func (c *JSONCodec) DecodeRecord(data []byte) (*Record, error) {
	var jr jsonRecord
	if err := json.Unmarshal(data, &jr); err != nil {
		return nil, malformed(FormatJSON, err)
	}
	r := &Record{Key: jr.Key, Version: jr.Version, Kind: jr.Kind}
	switch jr.Kind {
	case KindValue:
		r.Value = []byte(jr.Value)
	case KindList:
		r.Items = make([][]byte, len(jr.Items))
		for i, item := range jr.Items {
			r.Items[i] = []byte(item)
		}
	}
	return decoded(r)
}
