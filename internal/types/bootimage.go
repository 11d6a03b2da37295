package types

import "encoding/binary"

// Boot image format constants.
const (
	// BootImageMagic identifies a boot image file.
	BootImageMagic uint32 = 0xB007C0DE

	// BootImageVersion is the current format version.
	BootImageVersion uint32 = 1

	// PadSize is the alignment boundary for every section and blob.
	PadSize = 8

	// ImageNameLength is the fixed size of the header's name field.
	ImageNameLength = 32

	// DigestLength is the size of the SHA-384 digest in the signature block.
	DigestLength = 48

	// SignatureLength is the size of the r||s ECDSA signature, two 48-byte
	// big-endian components.
	SignatureLength = 96
)

// ByteOrder is the byte order of every multi-byte integer in the image,
// matching the target loader's native order.
var ByteOrder = binary.LittleEndian

// SignatureBlock authenticates a finished image. Both fields are all zero
// when the image is unsigned.
type SignatureBlock struct {
	Digest   [DigestLength]byte
	ECDSASig [SignatureLength]byte
}

// BootImageHeader is the fixed-size record at the start of every image.
// HeaderLength covers the header plus both descriptor tables with their
// sentinels and padding; ImageLength covers the whole file.
type BootImageHeader struct {
	Magic              uint32
	Version            uint32
	HeaderLength       uint64
	HeaderCRC          uint32
	Reserved           uint32
	ChunkTableOffset   uint64
	ZIChunkTableOffset uint64
	ImageLength        uint64
	Name               [ImageNameLength]byte
	Signature          SignatureBlock
}

// ChunkDescriptor describes one code/data chunk. LoadAddr is the byte offset
// of the chunk's blob within the image file, assigned by the layout engine;
// ExecAddr is opaque to the generator and meaningful only to the loader.
type ChunkDescriptor struct {
	Owner    uint64
	LoadAddr uint64
	ExecAddr uint64
	Size     uint64
	CRC32    uint32
	Reserved uint32
}

// ZIChunkDescriptor describes one zero-initialized region. It contributes no
// bytes to the file.
type ZIChunkDescriptor struct {
	Owner    uint64
	ExecAddr uint64
	Size     uint64
}

// Serialized sizes of the wire structures.
const (
	BootImageHeaderSize   = 224
	ChunkDescriptorSize   = 40
	ZIChunkDescriptorSize = 24
)

// IsSentinel reports whether the descriptor is the all-zero table terminator.
func (d ChunkDescriptor) IsSentinel() bool {
	return d == ChunkDescriptor{}
}

// IsSentinel reports whether the descriptor is the all-zero table terminator.
func (d ZIChunkDescriptor) IsSentinel() bool {
	return d == ZIChunkDescriptor{}
}

// SetName stores name into the header's fixed name field, truncating to
// ImageNameLength bytes. Shorter names are NUL padded.
func (h *BootImageHeader) SetName(name string) {
	h.Name = [ImageNameLength]byte{}
	copy(h.Name[:], name)
}

// NameString returns the header name with trailing NUL bytes stripped.
func (h *BootImageHeader) NameString() string {
	for i, b := range h.Name {
		if b == 0 {
			return string(h.Name[:i])
		}
	}
	return string(h.Name[:])
}
