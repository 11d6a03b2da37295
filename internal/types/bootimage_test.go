package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWireSizes(t *testing.T) {
	h, err := Encode(&BootImageHeader{})
	require.NoError(t, err)
	assert.Len(t, h, BootImageHeaderSize)

	c, err := Encode(&ChunkDescriptor{})
	require.NoError(t, err)
	assert.Len(t, c, ChunkDescriptorSize)

	z, err := Encode(&ZIChunkDescriptor{})
	require.NoError(t, err)
	assert.Len(t, z, ZIChunkDescriptorSize)
}

func TestHeaderRoundTrip(t *testing.T) {
	h := &BootImageHeader{
		Magic:              BootImageMagic,
		Version:            BootImageVersion,
		HeaderLength:       288,
		HeaderCRC:          0xCAFEF00D,
		ChunkTableOffset:   224,
		ZIChunkTableOffset: 264,
		ImageLength:        1024,
	}
	h.SetName("round-trip")

	encoded, err := EncodeHeader(h)
	require.NoError(t, err)

	decoded, err := DecodeHeader(encoded)
	require.NoError(t, err)
	assert.Equal(t, h, decoded)
	assert.Equal(t, "round-trip", decoded.NameString())
}

func TestSetNameTruncates(t *testing.T) {
	h := &BootImageHeader{}
	h.SetName("0123456789012345678901234567890123456789")
	assert.Equal(t, "01234567890123456789012345678901", h.NameString())

	h.SetName("short")
	assert.Equal(t, "short", h.NameString())
}

func TestHeaderChecksumIgnoresOwnField(t *testing.T) {
	h := &BootImageHeader{Magic: BootImageMagic, Version: BootImageVersion}

	crc, err := HeaderChecksum(h)
	require.NoError(t, err)

	// Storing the checksum does not change what a recomputation yields.
	h.HeaderCRC = crc
	again, err := HeaderChecksum(h)
	require.NoError(t, err)
	assert.Equal(t, crc, again)
}

func TestIsSentinel(t *testing.T) {
	assert.True(t, ChunkDescriptor{}.IsSentinel())
	assert.False(t, ChunkDescriptor{Size: 1}.IsSentinel())
	assert.True(t, ZIChunkDescriptor{}.IsSentinel())
	assert.False(t, ZIChunkDescriptor{Owner: 1}.IsSentinel())
}
