package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileHeader_RoundTrip(t *testing.T) {
	h := NewFileHeader(FormatCBOR, 17)
	data := h.Encode()
	require.Len(t, data, HeaderSize)

	got, err := DecodeHeader(data)
	require.NoError(t, err)
	assert.Equal(t, FormatCBOR, got.Format)
	assert.Equal(t, uint64(17), got.VersionFloor)
	assert.Equal(t, h.FileID, got.FileID)
}

func TestFileHeader_NewIDs(t *testing.T) {
	a := NewFileHeader(FormatJSON, 0)
	b := NewFileHeader(FormatJSON, 0)
	assert.NotEqual(t, a.FileID, b.FileID)
}

func TestDecodeHeader_Errors(t *testing.T) {
	valid := NewFileHeader(FormatJSON, 0).Encode()

	_, err := DecodeHeader(valid[:HeaderSize-1])
	assert.ErrorIs(t, err, ErrMalformed)

	badMagic := append([]byte{}, valid...)
	badMagic[0] = 'X'
	_, err = DecodeHeader(badMagic)
	assert.ErrorIs(t, err, ErrMalformed)

	flipped := append([]byte{}, valid...)
	flipped[30] ^= 0xff
	_, err = DecodeHeader(flipped)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestIsHeaderPrefix(t *testing.T) {
	valid := NewFileHeader(FormatYAML, 0).Encode()

	for i := 0; i < HeaderSize; i++ {
		assert.True(t, IsHeaderPrefix(valid[:i]), "prefix %d", i)
	}
	assert.False(t, IsHeaderPrefix(valid))
	assert.False(t, IsHeaderPrefix([]byte("FKX")))
	assert.False(t, IsHeaderPrefix([]byte{'F', 'K', 'V', 'L', 9}))
}

func TestFrame_RoundTrip(t *testing.T) {
	payload := []byte("payload bytes")
	frame := AppendFrame(nil, payload)
	require.Len(t, frame, FrameHeaderSize+len(payload))

	h, err := ParseFrameHeader(frame[:FrameHeaderSize])
	require.NoError(t, err)
	assert.Equal(t, uint32(len(payload)), h.Length)
	assert.True(t, h.Verify(frame[FrameHeaderSize:]))

	corrupted := append([]byte{}, frame[FrameHeaderSize:]...)
	corrupted[0] ^= 0x01
	assert.False(t, h.Verify(corrupted))
	assert.False(t, h.Verify(frame[FrameHeaderSize:len(frame)-1]))
}

func TestFrame_AppendsToExisting(t *testing.T) {
	buf := AppendFrame(nil, []byte("a"))
	buf = AppendFrame(buf, []byte("bc"))
	assert.Len(t, buf, 2*FrameHeaderSize+3)

	h1, err := ParseFrameHeader(buf[0:FrameHeaderSize])
	require.NoError(t, err)
	assert.Equal(t, uint32(1), h1.Length)
	h2, err := ParseFrameHeader(buf[FrameHeaderSize+1 : 2*FrameHeaderSize+1])
	require.NoError(t, err)
	assert.Equal(t, uint32(2), h2.Length)
}

func TestFrame_DamagedHeaderIsRejected(t *testing.T) {
	frame := AppendFrame(nil, []byte("payload bytes"))

	// every single-bit change in the length or payload checksum is caught
	for off := 4; off < FrameHeaderSize; off++ {
		for bit := 0; bit < 8; bit++ {
			hdr := append([]byte{}, frame[:FrameHeaderSize]...)
			hdr[off] ^= 1 << bit
			_, err := ParseFrameHeader(hdr)
			assert.ErrorIs(t, err, ErrMalformed, "byte %d bit %d", off, bit)
		}
	}

	_, err := ParseFrameHeader(frame[:FrameHeaderSize-1])
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestFrame_ZeroFilledHeaderIsInvalid(t *testing.T) {
	_, err := ParseFrameHeader(make([]byte, FrameHeaderSize))
	assert.ErrorIs(t, err, ErrMalformed)
}
