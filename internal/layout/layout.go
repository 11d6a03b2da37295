// Package layout computes every byte offset in a boot image before any of the
// corresponding bytes are written. All results derive arithmetically from the
// frozen chunk counts and sizes, so a descriptor can carry the final location
// of a blob that will only be emitted several sections later.
package layout

import (
	"fmt"

	"github.com/deploymenttheory/go-bootimage/internal/types"
)

// Padding returns the number of filler bytes needed to bring size up to a
// multiple of align. align must be non-zero; a zero align is a programming
// error and panics.
func Padding(size, align uint64) uint64 {
	if align == 0 {
		panic("layout: zero alignment")
	}
	return ((size+align-1)/align)*align - size
}

// PaddedSize returns size rounded up to the image alignment boundary.
func PaddedSize(size uint64) uint64 {
	return size + Padding(size, types.PadSize)
}

// Layout holds the derived offsets for one image build. It is frozen at
// construction: the chunk sizes and the ZI chunk count must not change once
// writing begins.
type Layout struct {
	chunkSizes []uint64
	ziCount    int
}

// New freezes a layout from the ordered chunk payload sizes and the ZI chunk
// count.
func New(chunkSizes []uint64, ziCount int) *Layout {
	sizes := make([]uint64, len(chunkSizes))
	copy(sizes, chunkSizes)
	return &Layout{chunkSizes: sizes, ziCount: ziCount}
}

// NumChunks returns the frozen chunk count.
func (l *Layout) NumChunks() int { return len(l.chunkSizes) }

// NumZIChunks returns the frozen ZI chunk count.
func (l *Layout) NumZIChunks() int { return l.ziCount }

// ChunkTableOffset is the file offset of the chunk descriptor table: the
// header padded to the alignment boundary.
func (l *Layout) ChunkTableOffset() uint64 {
	return PaddedSize(types.BootImageHeaderSize)
}

// ChunkTableSize is the padded size of the chunk table including its
// terminating sentinel.
func (l *Layout) ChunkTableSize() uint64 {
	return PaddedSize(uint64(l.NumChunks()+1) * types.ChunkDescriptorSize)
}

// ZIChunkTableOffset is the file offset of the ZI chunk descriptor table.
func (l *Layout) ZIChunkTableOffset() uint64 {
	return l.ChunkTableOffset() + l.ChunkTableSize()
}

// ZIChunkTableSize is the padded size of the ZI chunk table including its
// terminating sentinel.
func (l *Layout) ZIChunkTableSize() uint64 {
	return PaddedSize(uint64(l.ziCount+1) * types.ZIChunkDescriptorSize)
}

// HeaderLength is the total length of the structural head of the file:
// padded header plus both padded tables. Blobs start here.
func (l *Layout) HeaderLength() uint64 {
	return l.ZIChunkTableOffset() + l.ZIChunkTableSize()
}

// BlobsBaseOffset is the file offset of the first blob. It equals
// HeaderLength and is named separately because the two are re-derived and
// cross-checked independently at write time.
func (l *Layout) BlobsBaseOffset() uint64 {
	return l.HeaderLength()
}

// BlobOffset returns the file offset at which chunk i's payload bytes begin:
// the blobs base plus the padded sizes of every earlier blob.
func (l *Layout) BlobOffset(i int) (uint64, error) {
	if i < 0 || i >= len(l.chunkSizes) {
		return 0, fmt.Errorf("chunk index %d out of range [0,%d)", i, len(l.chunkSizes))
	}
	off := l.BlobsBaseOffset()
	for _, size := range l.chunkSizes[:i] {
		off += PaddedSize(size)
	}
	return off, nil
}

// ImageLength is the total file length: header, tables, and every padded
// blob.
func (l *Layout) ImageLength() uint64 {
	length := l.BlobsBaseOffset()
	for _, size := range l.chunkSizes {
		length += PaddedSize(size)
	}
	return length
}
