// Package reader parses and validates finished boot images. It is the
// inverse of the writer and trusts nothing: every offset the header claims
// is re-derived from the table counts and checked before payloads are read.
package reader

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha512"
	"fmt"
	"os"

	"github.com/deploymenttheory/go-bootimage/internal/layout"
	"github.com/deploymenttheory/go-bootimage/internal/signing"
	"github.com/deploymenttheory/go-bootimage/internal/types"
)

// Image is a parsed boot image held fully in memory.
type Image struct {
	Header   *types.BootImageHeader
	Chunks   []types.ChunkDescriptor
	ZIChunks []types.ZIChunkDescriptor

	data []byte
}

// Open reads a boot image file into memory and parses it.
func Open(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read boot image: %w", err)
	}
	return Parse(data)
}

// Parse decodes a boot image from raw bytes. The tables are walked up to
// their sentinels; a missing sentinel or a truncated file is an error.
func Parse(data []byte) (*Image, error) {
	header, err := types.DecodeHeader(data)
	if err != nil {
		return nil, err
	}

	if header.Magic != types.BootImageMagic {
		return nil, fmt.Errorf("invalid boot image magic: got 0x%08X, want 0x%08X", header.Magic, types.BootImageMagic)
	}
	if header.Version != types.BootImageVersion {
		return nil, fmt.Errorf("unsupported boot image version: got %d, want %d", header.Version, types.BootImageVersion)
	}
	if header.ImageLength != uint64(len(data)) {
		return nil, fmt.Errorf("image length mismatch: header says %d, file is %d bytes", header.ImageLength, len(data))
	}

	img := &Image{Header: header, data: data}
	if err := img.parseChunkTable(); err != nil {
		return nil, err
	}
	if err := img.parseZIChunkTable(); err != nil {
		return nil, err
	}
	return img, nil
}

func (img *Image) parseChunkTable() error {
	h := img.Header
	if h.ChunkTableOffset > uint64(len(img.data)) {
		return fmt.Errorf("chunk table offset %d beyond end of image", h.ChunkTableOffset)
	}
	r := bytes.NewReader(img.data[h.ChunkTableOffset:])
	for {
		desc, err := types.ReadChunkDescriptor(r)
		if err != nil {
			return fmt.Errorf("chunk table not terminated: %w", err)
		}
		if desc.IsSentinel() {
			return nil
		}
		img.Chunks = append(img.Chunks, desc)
	}
}

func (img *Image) parseZIChunkTable() error {
	h := img.Header
	if h.ZIChunkTableOffset > uint64(len(img.data)) {
		return fmt.Errorf("zi chunk table offset %d beyond end of image", h.ZIChunkTableOffset)
	}
	r := bytes.NewReader(img.data[h.ZIChunkTableOffset:])
	for {
		desc, err := types.ReadZIChunkDescriptor(r)
		if err != nil {
			return fmt.Errorf("zi chunk table not terminated: %w", err)
		}
		if desc.IsSentinel() {
			return nil
		}
		img.ZIChunks = append(img.ZIChunks, desc)
	}
}

// ChunkPayload returns the payload bytes of chunk i, located via the
// descriptor's recorded load address.
func (img *Image) ChunkPayload(i int) ([]byte, error) {
	if i < 0 || i >= len(img.Chunks) {
		return nil, fmt.Errorf("chunk index %d out of range [0,%d)", i, len(img.Chunks))
	}
	desc := img.Chunks[i]
	end := desc.LoadAddr + desc.Size
	if end > uint64(len(img.data)) || end < desc.LoadAddr {
		return nil, fmt.Errorf("chunk %d payload [%d,%d) beyond end of image", i, desc.LoadAddr, end)
	}
	return img.data[desc.LoadAddr:end], nil
}

// Signed reports whether the image carries a non-zero signature block.
func (img *Image) Signed() bool {
	return img.Header.Signature != (types.SignatureBlock{})
}

// Validate checks the image's structural integrity: table offsets against an
// independently re-derived layout, the header CRC, every chunk payload CRC,
// and, when the image is signed, the stored digest against a recomputed
// SHA-384 of the file.
func (img *Image) Validate() error {
	h := img.Header

	sizes := make([]uint64, len(img.Chunks))
	for i, c := range img.Chunks {
		sizes[i] = c.Size
	}
	lay := layout.New(sizes, len(img.ZIChunks))

	if want := lay.ChunkTableOffset(); h.ChunkTableOffset != want {
		return fmt.Errorf("chunk table offset %d, layout derives %d", h.ChunkTableOffset, want)
	}
	if want := lay.ZIChunkTableOffset(); h.ZIChunkTableOffset != want {
		return fmt.Errorf("zi chunk table offset %d, layout derives %d", h.ZIChunkTableOffset, want)
	}
	if want := lay.HeaderLength(); h.HeaderLength != want {
		return fmt.Errorf("header length %d, layout derives %d", h.HeaderLength, want)
	}
	if want := lay.ImageLength(); h.ImageLength != want {
		return fmt.Errorf("image length %d, layout derives %d", h.ImageLength, want)
	}

	// The CRC was stored before signing, so it covers the header with the
	// signature block still zero.
	scratch := *h
	scratch.Signature = types.SignatureBlock{}
	crc, err := types.HeaderChecksum(&scratch)
	if err != nil {
		return err
	}
	if crc != h.HeaderCRC {
		return fmt.Errorf("header CRC mismatch: got 0x%08X, want 0x%08X", crc, h.HeaderCRC)
	}

	for i, desc := range img.Chunks {
		payload, err := img.ChunkPayload(i)
		if err != nil {
			return err
		}
		want, err := lay.BlobOffset(i)
		if err != nil {
			return err
		}
		if desc.LoadAddr != want {
			return fmt.Errorf("chunk %d load address %d, layout derives %d", i, desc.LoadAddr, want)
		}
		if crc := types.PayloadChecksum(payload); crc != desc.CRC32 {
			return fmt.Errorf("chunk %d payload CRC mismatch: got 0x%08X, want 0x%08X", i, crc, desc.CRC32)
		}
	}

	if img.Signed() {
		digest := img.computeDigest()
		if digest != h.Signature.Digest {
			return fmt.Errorf("image digest does not match stored digest")
		}
	}
	return nil
}

// computeDigest reconstructs the file as it looked when the digest was
// taken, with the header's signature block all zero, and hashes it.
func (img *Image) computeDigest() [types.DigestLength]byte {
	scratch := *img.Header
	scratch.Signature = types.SignatureBlock{}
	encoded, err := types.EncodeHeader(&scratch)
	if err != nil {
		// Header round-tripped through DecodeHeader; re-encoding cannot fail.
		panic(err)
	}

	buf := make([]byte, len(img.data))
	copy(buf, img.data)
	copy(buf[:types.BootImageHeaderSize], encoded)
	return sha512.Sum384(buf)
}

// VerifySignature checks the stored ECDSA signature against pub. The image
// must be signed and structurally valid for the result to mean anything.
func (img *Image) VerifySignature(pub *ecdsa.PublicKey) error {
	if !img.Signed() {
		return fmt.Errorf("image is not signed")
	}
	digest := img.computeDigest()
	if digest != img.Header.Signature.Digest {
		return fmt.Errorf("image digest does not match stored digest")
	}
	if !signing.Verify(pub, digest[:], img.Header.Signature.ECDSASig) {
		return fmt.Errorf("ECDSA signature verification failed")
	}
	return nil
}
