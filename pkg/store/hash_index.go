package store

import (
	"strings"
	"sync"

	"github.com/ssargent/filekv/pkg/bptree"
	"github.com/ssargent/filekv/pkg/codec"
)

const keyTreeOrder = 64

// HashIndex maps each key to its highest-version record. Tombstones are
// kept so a deleted key's version keeps increasing if it is recreated.
// Because keys are never dropped, an insert-only B+tree holds them in order.
type HashIndex struct {
	entries map[string]*codec.Record
	ordered *bptree.BPlusTree[string, struct{}]
	live    int
	mutex   sync.RWMutex
}

// NewHashIndex creates a new hash index
func NewHashIndex() *HashIndex {
	return &HashIndex{
		entries: make(map[string]*codec.Record),
		ordered: bptree.NewBPlusTree[string, struct{}](keyTreeOrder),
	}
}

// Apply folds a record into the index. Records that do not advance the
// key's version are ignored. It reports whether the index changed.
func (idx *HashIndex) Apply(rec *codec.Record) bool {
	idx.mutex.Lock()
	defer idx.mutex.Unlock()

	cur, ok := idx.entries[rec.Key]
	if ok && cur.Version >= rec.Version {
		return false
	}
	if !ok {
		idx.ordered.Insert(rec.Key, struct{}{})
	}
	if ok && !cur.IsTombstone() {
		idx.live--
	}
	if !rec.IsTombstone() {
		idx.live++
	}
	idx.entries[rec.Key] = rec
	return true
}

// Get retrieves the latest record for a key, tombstones included
func (idx *HashIndex) Get(key string) (*codec.Record, bool) {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	rec, ok := idx.entries[key]
	return rec, ok
}

// Live retrieves the latest record for a key unless it was deleted
func (idx *HashIndex) Live(key string) (*codec.Record, bool) {
	rec, ok := idx.Get(key)
	if !ok || rec.IsTombstone() {
		return nil, false
	}
	return rec, true
}

// NextVersion returns the version the next record for key must carry
func (idx *HashIndex) NextVersion(key string, floor uint64) uint64 {
	if rec, ok := idx.Get(key); ok {
		return rec.Version + 1
	}
	return floor + 1
}

// Size returns the number of live keys
func (idx *HashIndex) Size() int {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	return idx.live
}

// Tombstones returns the number of deleted keys still tracked
func (idx *HashIndex) Tombstones() int {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	return len(idx.entries) - idx.live
}

// MaxTombstoneVersion returns the highest version among deleted keys
func (idx *HashIndex) MaxTombstoneVersion() uint64 {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	var v uint64
	for _, rec := range idx.entries {
		if rec.IsTombstone() && rec.Version > v {
			v = rec.Version
		}
	}
	return v
}

// Keys returns all live keys in ascending order
func (idx *HashIndex) Keys() []string {
	return idx.KeysWithPrefix("")
}

// KeysWithPrefix returns the live keys that start with prefix, sorted
func (idx *HashIndex) KeysWithPrefix(prefix string) []string {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	keys := make([]string, 0, idx.live)
	idx.ordered.Ascend(prefix, func(key string, _ struct{}) bool {
		if !strings.HasPrefix(key, prefix) {
			return false
		}
		if !idx.entries[key].IsTombstone() {
			keys = append(keys, key)
		}
		return true
	})
	return keys
}

// LiveRecords returns the latest record of every live key, sorted by key
func (idx *HashIndex) LiveRecords() []*codec.Record {
	keys := idx.Keys()

	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	recs := make([]*codec.Record, 0, len(keys))
	for _, key := range keys {
		recs = append(recs, idx.entries[key])
	}
	return recs
}

// Count returns live scalar values and live lists
func (idx *HashIndex) Count() (values, lists int) {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	for _, rec := range idx.entries {
		switch rec.Kind {
		case codec.KindValue:
			values++
		case codec.KindList:
			lists++
		}
	}
	return values, lists
}

// Clear removes all entries from the index
func (idx *HashIndex) Clear() {
	idx.mutex.Lock()
	defer idx.mutex.Unlock()

	idx.entries = make(map[string]*codec.Record)
	idx.ordered = bptree.NewBPlusTree[string, struct{}](keyTreeOrder)
	idx.live = 0
}
