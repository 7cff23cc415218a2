package store

import (
	"fmt"
	"reflect"

	"github.com/ssargent/filekv/pkg/codec"
)

// ListItem is one element of a list returned by LItems
type ListItem struct {
	Position int
	Value    []byte

	codec codec.Codec
}

// Decode unmarshals the element into out, which must be a pointer
func (it ListItem) Decode(out any) error {
	return it.codec.Unmarshal(it.Value, out)
}

// LCreate creates an empty list under a key that must not hold anything
func (s *Store) LCreate(name string) error {
	if err := validateKey(name); err != nil {
		return err
	}
	return s.update(func() (*codec.Record, error) {
		if _, ok := s.index.Live(name); ok {
			return nil, fmt.Errorf("%w: %q", ErrKeyExists, name)
		}
		return codec.NewList(name, s.index.NextVersion(name, s.floor()), nil), nil
	})
}

// LExists reports whether name holds a list
func (s *Store) LExists(name string) (bool, error) {
	var ok bool
	err := s.view(func() error {
		rec, live := s.index.Live(name)
		ok = live && rec.Kind == codec.KindList
		return nil
	})
	return ok, err
}

// LAdd appends one value to a list
func (s *Store) LAdd(name string, value any) error {
	return s.LExtend(name, value)
}

// LExtend appends values to a list in one write
func (s *Store) LExtend(name string, values ...any) error {
	if err := validateKey(name); err != nil {
		return err
	}
	encoded := make([][]byte, 0, len(values))
	for _, v := range values {
		b, err := s.codec.Marshal(v)
		if err != nil {
			return err
		}
		encoded = append(encoded, b)
	}
	return s.update(func() (*codec.Record, error) {
		cur, err := s.liveList(name)
		if err != nil {
			return nil, err
		}
		if len(encoded) == 0 {
			return nil, nil
		}
		items := make([][]byte, 0, len(cur.Items)+len(encoded))
		items = append(items, cur.Items...)
		items = append(items, encoded...)
		return codec.NewList(name, cur.Version+1, items), nil
	})
}

// LGet decodes the element at pos into out
func (s *Store) LGet(name string, pos int, out any) error {
	var raw []byte
	err := s.view(func() error {
		cur, err := s.liveList(name)
		if err != nil {
			return err
		}
		if pos < 0 || pos >= len(cur.Items) {
			return fmt.Errorf("%w: %q has %d items, asked for %d", ErrIndexOutOfRange, name, len(cur.Items), pos)
		}
		raw = cur.Items[pos]
		return nil
	})
	if err != nil {
		return err
	}
	return s.codec.Unmarshal(raw, out)
}

// LLen returns the number of elements in a list
func (s *Store) LLen(name string) (int, error) {
	var n int
	err := s.view(func() error {
		cur, err := s.liveList(name)
		if err != nil {
			return err
		}
		n = len(cur.Items)
		return nil
	})
	return n, err
}

// LRemList deletes a list and returns how many elements it held
func (s *Store) LRemList(name string) (int, error) {
	var n int
	err := s.update(func() (*codec.Record, error) {
		cur, err := s.liveList(name)
		if err != nil {
			return nil, err
		}
		n = len(cur.Items)
		return codec.NewTombstone(name, cur.Version+1), nil
	})
	return n, err
}

// LPop removes the element at pos and decodes it into out. out may be nil.
func (s *Store) LPop(name string, pos int, out any) error {
	var popped []byte
	err := s.update(func() (*codec.Record, error) {
		cur, err := s.liveList(name)
		if err != nil {
			return nil, err
		}
		if pos < 0 || pos >= len(cur.Items) {
			return nil, fmt.Errorf("%w: %q has %d items, asked for %d", ErrIndexOutOfRange, name, len(cur.Items), pos)
		}
		popped = cur.Items[pos]
		items := make([][]byte, 0, len(cur.Items)-1)
		items = append(items, cur.Items[:pos]...)
		items = append(items, cur.Items[pos+1:]...)
		return codec.NewList(name, cur.Version+1, items), nil
	})
	if err != nil || out == nil {
		return err
	}
	return s.codec.Unmarshal(popped, out)
}

// LRemValue removes the first element equal to value. It reports whether
// an element was removed; nothing is written when none matches.
func (s *Store) LRemValue(name string, value any) (bool, error) {
	want, err := s.normalize(value)
	if err != nil {
		return false, err
	}
	removed := false
	err = s.update(func() (*codec.Record, error) {
		cur, err := s.liveList(name)
		if err != nil {
			return nil, err
		}
		for i, item := range cur.Items {
			var got any
			if err := s.codec.Unmarshal(item, &got); err != nil {
				continue
			}
			if !reflect.DeepEqual(got, want) {
				continue
			}
			removed = true
			items := make([][]byte, 0, len(cur.Items)-1)
			items = append(items, cur.Items[:i]...)
			items = append(items, cur.Items[i+1:]...)
			return codec.NewList(name, cur.Version+1, items), nil
		}
		return nil, nil
	})
	return removed, err
}

// LItems returns a snapshot of a list's elements
func (s *Store) LItems(name string) ([]ListItem, error) {
	var items []ListItem
	err := s.view(func() error {
		cur, err := s.liveList(name)
		if err != nil {
			return err
		}
		items = make([]ListItem, len(cur.Items))
		for i, raw := range cur.Items {
			items[i] = ListItem{Position: i, Value: append([]byte(nil), raw...), codec: s.codec}
		}
		return nil
	})
	return items, err
}

// normalize round-trips a value through the codec so it compares equal to
// decoded list elements
func (s *Store) normalize(value any) (any, error) {
	b, err := s.codec.Marshal(value)
	if err != nil {
		return nil, err
	}
	var out any
	if err := s.codec.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
