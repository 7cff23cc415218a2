package store

import (
	"fmt"

	"github.com/ssargent/filekv/pkg/codec"
)

// Item is a live scalar value returned by Items
type Item struct {
	Key     string
	Version uint64
	Value   []byte

	codec codec.Codec
}

// Decode unmarshals the item's value into out, which must be a pointer
func (it Item) Decode(out any) error {
	return it.codec.Unmarshal(it.Value, out)
}

// Create stores value under a key that must not already hold anything
func (s *Store) Create(key string, value any) error {
	if err := validateKey(key); err != nil {
		return err
	}
	payload, err := s.codec.Marshal(value)
	if err != nil {
		return err
	}
	return s.update(func() (*codec.Record, error) {
		if _, ok := s.index.Live(key); ok {
			return nil, fmt.Errorf("%w: %q", ErrKeyExists, key)
		}
		return codec.NewValue(key, s.index.NextVersion(key, s.floor()), payload), nil
	})
}

// Read decodes the value stored at key into out
func (s *Store) Read(key string, out any) error {
	raw, err := s.ReadRaw(key)
	if err != nil {
		return err
	}
	if err := s.codec.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %q: %w", key, err)
	}
	return nil
}

// ReadRaw returns the encoded value stored at key
func (s *Store) ReadRaw(key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	var raw []byte
	err := s.view(func() error {
		rec, err := s.liveValue(key)
		if err != nil {
			return err
		}
		raw = append([]byte(nil), rec.Value...)
		return nil
	})
	return raw, err
}

// Update replaces whatever is stored at an existing key with value
func (s *Store) Update(key string, value any) error {
	if err := validateKey(key); err != nil {
		return err
	}
	payload, err := s.codec.Marshal(value)
	if err != nil {
		return err
	}
	return s.update(func() (*codec.Record, error) {
		cur, ok := s.index.Live(key)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
		}
		return codec.NewValue(key, cur.Version+1, payload), nil
	})
}

// Delete removes a key, whether it holds a value or a list
func (s *Store) Delete(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return s.update(func() (*codec.Record, error) {
		cur, ok := s.index.Live(key)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
		}
		return codec.NewTombstone(key, cur.Version+1), nil
	})
}

// Exists reports whether key holds a value or a list
func (s *Store) Exists(key string) (bool, error) {
	var ok bool
	err := s.view(func() error {
		_, ok = s.index.Live(key)
		return nil
	})
	return ok, err
}

// Len returns the number of live keys
func (s *Store) Len() (int, error) {
	var n int
	err := s.view(func() error {
		n = s.index.Size()
		return nil
	})
	return n, err
}

// List returns every live key in ascending order
func (s *Store) List() ([]string, error) {
	return s.ListPrefix("")
}

// ListPrefix returns the live keys starting with prefix in ascending order
func (s *Store) ListPrefix(prefix string) ([]string, error) {
	var keys []string
	err := s.view(func() error {
		keys = s.index.KeysWithPrefix(prefix)
		return nil
	})
	return keys, err
}

// Items returns every live scalar value, sorted by key. Lists are
// reached through LItems.
func (s *Store) Items() ([]Item, error) {
	var items []Item
	err := s.view(func() error {
		for _, rec := range s.index.LiveRecords() {
			if rec.Kind != codec.KindValue {
				continue
			}
			items = append(items, Item{
				Key:     rec.Key,
				Version: rec.Version,
				Value:   append([]byte(nil), rec.Value...),
				codec:   s.codec,
			})
		}
		return nil
	})
	return items, err
}

// Version returns the version of the latest record for a live key
func (s *Store) Version(key string) (uint64, error) {
	var v uint64
	err := s.view(func() error {
		rec, ok := s.index.Live(key)
		if !ok {
			return fmt.Errorf("%w: %q", ErrKeyNotFound, key)
		}
		v = rec.Version
		return nil
	})
	return v, err
}

func (s *Store) liveValue(key string) (*codec.Record, error) {
	rec, ok := s.index.Live(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	if rec.Kind != codec.KindValue {
		return nil, fmt.Errorf("%w: %q is a %s", ErrWrongKind, key, rec.Kind)
	}
	return rec, nil
}

func (s *Store) liveList(key string) (*codec.Record, error) {
	rec, ok := s.index.Live(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	if rec.Kind != codec.KindList {
		return nil, fmt.Errorf("%w: %q is a %s", ErrWrongKind, key, rec.Kind)
	}
	return rec, nil
}
