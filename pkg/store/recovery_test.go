package store

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/filekv/pkg/codec"
)

// snapshot captures what a handle can see
type snapshot struct {
	keys   []string
	values map[string]any
}

func takeSnapshot(t *testing.T, s *Store) snapshot {
	t.Helper()
	keys, err := s.List()
	require.NoError(t, err)
	items, err := s.Items()
	require.NoError(t, err)
	values := make(map[string]any, len(items))
	for _, it := range items {
		var v any
		require.NoError(t, it.Decode(&v))
		values[it.Key] = v
	}
	return snapshot{keys: keys, values: values}
}

// buildHistory runs a fixed sequence of operations and returns the file
// size and visible state after each one. Index 0 is the empty store.
func buildHistory(t *testing.T, c codec.Codec, path string) ([]int64, []snapshot) {
	t.Helper()
	s := openStoreWith(t, path, c, Options{})

	ops := []func() error{
		func() error { return s.Create("a", 1) },
		func() error { return s.Create("b", "two") },
		func() error { return s.Update("a", rectangle{Width: 3, Length: 4}) },
		func() error { return s.Delete("b") },
		func() error { return s.LCreate("l") },
		func() error { return s.LAdd("l", "x") },
		func() error { return s.Create("b", []int{1, 2, 3}) },
	}

	sizes := []int64{0}
	snaps := []snapshot{{keys: []string{}, values: map[string]any{}}}
	for _, op := range ops {
		require.NoError(t, op())
		fi, err := os.Stat(path)
		require.NoError(t, err)
		sizes = append(sizes, fi.Size())
		snaps = append(snaps, takeSnapshot(t, s))
	}
	require.NoError(t, s.Close())
	return sizes, snaps
}

func assertSnapshot(t *testing.T, want snapshot, s *Store, msg string) {
	t.Helper()
	got := takeSnapshot(t, s)
	if len(want.keys) == 0 {
		assert.Empty(t, got.keys, msg)
	} else {
		assert.Equal(t, want.keys, got.keys, msg)
	}
	assert.Equal(t, want.values, got.values, msg)
}

func TestRecovery_TruncationAtEveryOffset(t *testing.T) {
	for _, c := range allCodecs(t) {
		t.Run(c.Format().String(), func(t *testing.T) {
			src := testPath(t)
			sizes, snaps := buildHistory(t, c, src)
			full, err := os.ReadFile(src)
			require.NoError(t, err)

			for cut := 0; cut <= len(full); cut++ {
				path := testPath(t)
				require.NoError(t, os.WriteFile(path, full[:cut], 0644))

				// the last operation whose record fits entirely
				k := 0
				for i, size := range sizes {
					if size <= int64(cut) {
						k = i
					}
				}

				s, err := Open(path, c, Options{})
				require.NoError(t, err, "cut at %d", cut)
				assertSnapshot(t, snaps[k], s, fmt.Sprintf("cut at %d", cut))

				// the next write lands right after the intact prefix
				require.NoError(t, s.Create("z", "after"), "cut at %d", cut)
				require.NoError(t, s.Close())

				again, err := Open(path, c, Options{})
				require.NoError(t, err, "cut at %d", cut)
				var z string
				require.NoError(t, again.Read("z", &z), "cut at %d", cut)
				assert.Equal(t, "after", z)
				keys, err := again.List()
				require.NoError(t, err)
				assert.Equal(t, append(append([]string{}, snaps[k].keys...), "z"), keys, "cut at %d", cut)
				require.NoError(t, again.Close())
			}
		})
	}
}

func writeThree(t *testing.T, path string) {
	t.Helper()
	s := openStore(t, path, Options{})
	require.NoError(t, s.Create("a", "first"))
	require.NoError(t, s.Create("b", "second"))
	require.NoError(t, s.Create("c", "third"))
	require.NoError(t, s.Close())
}

func appendBytes(t *testing.T, path string, b []byte) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
	require.NoError(t, err)
	_, err = f.Write(b)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func flipByte(t *testing.T, path string, off int64) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[off] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func flipBit(t *testing.T, path string, off int64, mask byte) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[off] ^= mask
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func TestRecovery_ZeroFilledTail(t *testing.T) {
	path := testPath(t)
	writeThree(t, path)
	appendBytes(t, path, make([]byte, 100))

	s := openStore(t, path, Options{})
	keys, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, keys)

	st, err := s.Stats()
	require.NoError(t, err)
	assert.True(t, st.TornTail)

	require.NoError(t, s.Create("d", "fourth"))
	st, err = s.Stats()
	require.NoError(t, err)
	assert.False(t, st.TornTail)

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, st.FileSize, fi.Size(), "zero tail must be cut before the append")
}

func TestRecovery_DamagedLastRecordIsTail(t *testing.T) {
	path := testPath(t)
	writeThree(t, path)
	fi, err := os.Stat(path)
	require.NoError(t, err)
	flipByte(t, path, fi.Size()-2)

	s := openStore(t, path, Options{})
	keys, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestRecovery_DamageBeforeTailIsCorruption(t *testing.T) {
	path := testPath(t)
	writeThree(t, path)
	// inside the payload of the first record
	flipByte(t, path, codec.HeaderSize+codec.FrameHeaderSize+3)

	_, err := Open(path, codec.NewJSONCodec(), Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorruptRecord)

	var ce *CorruptionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, int64(codec.HeaderSize), ce.Offset)
}

func TestRecovery_ImplausibleLengthIsCorruption(t *testing.T) {
	path := testPath(t)
	writeThree(t, path)
	// top byte of the first frame's length field
	flipByte(t, path, codec.HeaderSize+7)

	_, err := Open(path, codec.NewJSONCodec(), Options{})
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

func TestRecovery_DamagedLengthMidFileIsCorruption(t *testing.T) {
	path := testPath(t)
	s := openStore(t, path, Options{})
	require.NoError(t, s.Create("k1", 1))
	st, err := s.Stats()
	require.NoError(t, err)
	second := st.FileSize

	// a handle that has only seen k1 and must catch up through the damage
	writer := openStore(t, path, Options{})
	_, err = writer.List()
	require.NoError(t, err)

	for i := 2; i <= 5; i++ {
		require.NoError(t, s.Create(fmt.Sprintf("k%d", i), i))
	}
	require.NoError(t, s.Close())

	// bump k2's length by 64 KiB: under the size limit but past the end
	// of the file
	flipBit(t, path, second+6, 0x01)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	_, err = Open(path, codec.NewJSONCodec(), Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorruptRecord)
	var ce *CorruptionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, second, ce.Offset)

	// the damage is reported, never repaired by truncation
	assert.ErrorIs(t, writer.Create("new", 6), ErrCorruptRecord)
	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRecovery_CorruptionSeenByOpenHandle(t *testing.T) {
	path := testPath(t)
	s := openStore(t, path, Options{})
	require.NoError(t, s.Create("a", "first"))
	st, err := s.Stats()
	require.NoError(t, err)
	bOffset := st.FileSize

	other := openStore(t, path, Options{})
	require.NoError(t, other.Create("b", "second"))
	require.NoError(t, other.Create("c", "third"))
	require.NoError(t, other.Close())

	flipByte(t, path, bOffset+codec.FrameHeaderSize+1)

	for i := 0; i < 2; i++ {
		_, err = s.List()
		require.Error(t, err)
		var ce *CorruptionError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, bOffset, ce.Offset)
	}
	assert.ErrorIs(t, s.Create("d", "fourth"), ErrCorruptRecord)
}

func TestRecovery_FormatMismatch(t *testing.T) {
	path := testPath(t)
	writeThree(t, path)

	_, err := Open(path, codec.NewCBORCodec(), Options{})
	assert.ErrorIs(t, err, ErrCorruptRecord)
	assert.ErrorIs(t, err, codec.ErrMalformed)
}

func TestRecovery_NotAStoreFile(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
	}{
		{"text", []byte("this is definitely not a filekv store file at all")},
		{"short garbage", []byte("xy")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := testPath(t)
			require.NoError(t, os.WriteFile(path, tt.content, 0644))
			_, err := Open(path, codec.NewJSONCodec(), Options{})
			assert.ErrorIs(t, err, ErrCorruptRecord)
		})
	}
}

func TestRecovery_ReadOnlyLeavesTornTail(t *testing.T) {
	path := testPath(t)
	writeThree(t, path)
	appendBytes(t, path, []byte{1, 2, 3})
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	s := openStore(t, path, Options{ReadOnly: true})
	keys, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, keys)
	require.NoError(t, s.Close())

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRecovery_TornHeaderIsEmpty(t *testing.T) {
	path := testPath(t)
	h := codec.NewFileHeader(codec.FormatJSON, 0)
	require.NoError(t, os.WriteFile(path, h.Encode()[:10], 0644))

	s := openStore(t, path, Options{})
	n, err := s.Len()
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, s.Create("a", 1))
	require.NoError(t, s.Close())

	again := openStore(t, path, Options{})
	var v int
	require.NoError(t, again.Read("a", &v))
	assert.Equal(t, 1, v)
}
