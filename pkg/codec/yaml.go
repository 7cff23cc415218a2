package codec

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// YAMLCodec stores records as YAML documents with values embedded as nodes
type YAMLCodec struct{}

// NewYAMLCodec creates a YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

type yamlRecord struct {
	Key     string       `yaml:"k"`
	Version uint64       `yaml:"ver"`
	Kind    Kind         `yaml:"t"`
	Value   yaml.Node   `yaml:"v,omitempty"`
	Items   []yaml.Node `yaml:"items,omitempty"`
}

func (c *YAMLCodec) Format() Format { return FormatYAML }

func (c *YAMLCodec) Marshal(v any) (data []byte, err error) {
	// yaml.v3 panics on some unsupported kinds (funcs, channels)
	defer func() {
		if p := recover(); p != nil {
			data, err = nil, unencodable(FormatYAML, fmt.Errorf("%v", p))
		}
	}()
	data, err = yaml.Marshal(v)
	if err != nil {
		return nil, unencodable(FormatYAML, err)
	}
	return data, nil
}

func (c *YAMLCodec) Unmarshal(data []byte, v any) error {
	return yaml.Unmarshal(data, v)
}

func (c *YAMLCodec) EncodeRecord(r *Record) ([]byte, error) {
	yr := yamlRecord{Key: r.Key, Version: r.Version, Kind: r.Kind}
	var err error
	switch r.Kind {
	case KindValue:
		if yr.Value, err = toNode(r.Value); err != nil {
			return nil, unencodable(FormatYAML, err)
		}
	case KindList:
		yr.Items = make([]yaml.Node, len(r.Items))
		for i, item := range r.Items {
			if yr.Items[i], err = toNode(item); err != nil {
				return nil, unencodable(FormatYAML, err)
			}
		}
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	if err := enc.Encode(&yr); err != nil {
		return nil, unencodable(FormatYAML, err)
	}
	if err := enc.Close(); err != nil {
		return nil, unencodable(FormatYAML, err)
	}
	return buf.Bytes(), nil
}

func (c *YAMLCodec) DecodeRecord(data []byte) (*Record, error) {
	var yr yamlRecord
	if err := yaml.Unmarshal(data, &yr); err != nil {
		return nil, malformed(FormatYAML, err)
	}
	r := &Record{Key: yr.Key, Version: yr.Version, Kind: yr.Kind}
	var err error
	switch yr.Kind {
	case KindValue:
		if yr.Value.Kind == 0 {
			return nil, malformed(FormatYAML, fmt.Errorf("value record %q has no payload", yr.Key))
		}
		if r.Value, err = fromNode(&yr.Value); err != nil {
			return nil, malformed(FormatYAML, err)
		}
	case KindList:
		r.Items = make([][]byte, len(yr.Items))
		for i := range yr.Items {
			if r.Items[i], err = fromNode(&yr.Items[i]); err != nil {
				return nil, malformed(FormatYAML, err)
			}
		}
	}
	return decoded(r)
}

// toNode parses an encoded payload into the node embedded in a record.
// Nodes are held by value: decoding an explicit null into a *yaml.Node
// leaves it nil, which is indistinguishable from a missing payload.
func toNode(payload []byte) (yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(payload, &doc); err != nil {
		return yaml.Node{}, err
	}
	if doc.Kind == yaml.DocumentNode && len(doc.Content) == 1 {
		return *doc.Content[0], nil
	}
	// an empty document is a null scalar
	return nullNode(), nil
}

func nullNode() yaml.Node {
	return yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
}

func fromNode(n *yaml.Node) ([]byte, error) {
	if n.Kind == 0 {
		return nil, fmt.Errorf("missing node")
	}
	return yaml.Marshal(n)
}
