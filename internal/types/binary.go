// File: internal/types/binary.go
package types

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

// Encode serializes a fixed-size wire structure in image byte order.
func Encode(v any) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, ByteOrder, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeHeader serializes the header in image byte order.
func EncodeHeader(h *BootImageHeader) ([]byte, error) {
	encoded, err := Encode(h)
	if err != nil {
		return nil, fmt.Errorf("encode boot image header: %w", err)
	}
	if len(encoded) != BootImageHeaderSize {
		return nil, fmt.Errorf("encoded header is %d bytes, want %d", len(encoded), BootImageHeaderSize)
	}
	return encoded, nil
}

// DecodeHeader parses a header from data, which must hold at least
// BootImageHeaderSize bytes.
func DecodeHeader(data []byte) (*BootImageHeader, error) {
	if len(data) < BootImageHeaderSize {
		return nil, fmt.Errorf("data too small for boot image header: %d bytes", len(data))
	}
	h := &BootImageHeader{}
	if err := binary.Read(bytes.NewReader(data), ByteOrder, h); err != nil {
		return nil, fmt.Errorf("decode boot image header: %w", err)
	}
	return h, nil
}

// ReadChunkDescriptor reads one chunk table entry from r.
func ReadChunkDescriptor(r io.Reader) (ChunkDescriptor, error) {
	var d ChunkDescriptor
	if err := binary.Read(r, ByteOrder, &d); err != nil {
		return ChunkDescriptor{}, fmt.Errorf("read chunk descriptor: %w", err)
	}
	return d, nil
}

// ReadZIChunkDescriptor reads one ZI chunk table entry from r.
func ReadZIChunkDescriptor(r io.Reader) (ZIChunkDescriptor, error) {
	var d ZIChunkDescriptor
	if err := binary.Read(r, ByteOrder, &d); err != nil {
		return ZIChunkDescriptor{}, fmt.Errorf("read zi chunk descriptor: %w", err)
	}
	return d, nil
}

// HeaderChecksum computes the header's CRC-32 (IEEE). The HeaderCRC field is
// held at zero during the computation; the signature block is included in
// whatever state it currently holds.
func HeaderChecksum(h *BootImageHeader) (uint32, error) {
	scratch := *h
	scratch.HeaderCRC = 0
	encoded, err := EncodeHeader(&scratch)
	if err != nil {
		return 0, err
	}
	return crc32.ChecksumIEEE(encoded), nil
}

// PayloadChecksum computes the CRC-32 (IEEE) recorded in a chunk descriptor.
func PayloadChecksum(payload []byte) uint32 {
	return crc32.ChecksumIEEE(payload)
}
