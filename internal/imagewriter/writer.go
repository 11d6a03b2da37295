// Package imagewriter streams a boot image to a seekable sink in the fixed
// section order header, chunk table, ZI chunk table, blobs, and then
// finalizes the header with a checksum and an optional signature. At every
// section boundary the writer's actual stream position is checked against the
// layout engine's prediction; a mismatch aborts the build.
package imagewriter

import (
	"errors"
	"fmt"
	"io"

	"github.com/deploymenttheory/go-bootimage/internal/layout"
	"github.com/deploymenttheory/go-bootimage/internal/registry"
	"github.com/deploymenttheory/go-bootimage/internal/types"
)

// ErrLayoutMismatch marks an internal-consistency fault: a computed offset
// disagrees with the writer's actual stream position. Never recovered.
var ErrLayoutMismatch = errors.New("computed offset does not match stream position")

// State tracks header finalization. Each transition is followed by an
// immediate in-place header rewrite, so the on-disk header always reflects
// the state reached.
type State int

const (
	// StateUnsigned: body written, header fields provisional.
	StateUnsigned State = iota
	// StateChecksummed: lengths and header CRC final, signature zero.
	StateChecksummed
	// StateSigned: digest and ECDSA signature stored.
	StateSigned
)

func (s State) String() string {
	switch s {
	case StateUnsigned:
		return "unsigned"
	case StateChecksummed:
		return "checksummed"
	case StateSigned:
		return "signed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Writer emits one boot image. The sink must be a seekable read/write
// stream, exclusively owned for the whole build; os.File satisfies this.
type Writer struct {
	sink   io.ReadWriteSeeker
	reg    *registry.Registry
	lay    *layout.Layout
	header types.BootImageHeader
	state  State
	pos    uint64
}

// New freezes the registry's counts into a layout and prepares a writer. The
// registry must be fully populated; registrations after this point are not
// seen by the layout.
func New(sink io.ReadWriteSeeker, reg *registry.Registry, name string) *Writer {
	w := &Writer{
		sink: sink,
		reg:  reg,
		lay:  layout.New(reg.ChunkSizes(), reg.NumZIChunks()),
	}
	w.header.Magic = types.BootImageMagic
	w.header.Version = types.BootImageVersion
	w.header.SetName(name)
	return w
}

// State returns the finalization state reached so far.
func (w *Writer) State() State { return w.state }

// Header returns a copy of the header as currently finalized.
func (w *Writer) Header() types.BootImageHeader { return w.header }

// Layout returns the frozen layout the writer checks itself against.
func (w *Writer) Layout() *layout.Layout { return w.lay }

// WriteImage writes the whole image body and finalizes the checksum: a
// provisional header, both descriptor tables with sentinels, every blob, and
// then the header again with final lengths and CRC. On return the writer is
// in StateChecksummed and the file is valid unsigned.
func (w *Writer) WriteImage() error {
	if err := w.writeHeader(); err != nil {
		return err
	}
	if err := w.writeChunkTable(); err != nil {
		return err
	}
	if err := w.writeZIChunkTable(); err != nil {
		return err
	}

	w.header.HeaderLength = w.pos
	if want := w.lay.HeaderLength(); w.header.HeaderLength != want {
		return fmt.Errorf("%w: header length %d, layout predicts %d", ErrLayoutMismatch, w.header.HeaderLength, want)
	}

	if err := w.writeBlobs(); err != nil {
		return err
	}

	w.header.ImageLength = w.pos
	if want := w.lay.ImageLength(); w.header.ImageLength != want {
		return fmt.Errorf("%w: image length %d, layout predicts %d", ErrLayoutMismatch, w.header.ImageLength, want)
	}

	crc, err := types.HeaderChecksum(&w.header)
	if err != nil {
		return err
	}
	w.header.HeaderCRC = crc

	if err := w.rewriteHeader(); err != nil {
		return err
	}
	w.state = StateChecksummed
	return nil
}

// writeHeader emits the provisional header at the start of the file and pads
// it to the alignment boundary.
func (w *Writer) writeHeader() error {
	if _, err := w.sink.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek to image start: %w", err)
	}
	w.pos = 0

	encoded, err := types.EncodeHeader(&w.header)
	if err != nil {
		return err
	}
	if err := w.write(encoded); err != nil {
		return fmt.Errorf("write boot image header: %w", err)
	}
	return w.writePad(layout.Padding(types.BootImageHeaderSize, types.PadSize))
}

// writeChunkTable emits one descriptor per chunk, assigning each its blob's
// future file offset, then the all-zero sentinel and the table padding.
func (w *Writer) writeChunkTable() error {
	if want := w.lay.ChunkTableOffset(); w.pos != want {
		return fmt.Errorf("%w: chunk table at %d, layout predicts %d", ErrLayoutMismatch, w.pos, want)
	}
	w.header.ChunkTableOffset = w.pos

	for i := 0; i < w.reg.NumChunks(); i++ {
		desc, err := w.reg.Chunk(i)
		if err != nil {
			return err
		}
		desc.LoadAddr, err = w.lay.BlobOffset(i)
		if err != nil {
			return err
		}
		if err := w.writeValue(&desc, "chunk descriptor"); err != nil {
			return err
		}
	}

	sentinel := types.ChunkDescriptor{}
	if err := w.writeValue(&sentinel, "chunk table sentinel"); err != nil {
		return err
	}

	tableLen := uint64(w.reg.NumChunks()+1) * types.ChunkDescriptorSize
	return w.writePad(layout.Padding(tableLen, types.PadSize))
}

// writeZIChunkTable emits the ZI descriptors, the sentinel, and the padding.
func (w *Writer) writeZIChunkTable() error {
	if want := w.lay.ZIChunkTableOffset(); w.pos != want {
		return fmt.Errorf("%w: zi chunk table at %d, layout predicts %d", ErrLayoutMismatch, w.pos, want)
	}
	w.header.ZIChunkTableOffset = w.pos

	for i := 0; i < w.reg.NumZIChunks(); i++ {
		desc, err := w.reg.ZIChunk(i)
		if err != nil {
			return err
		}
		if err := w.writeValue(&desc, "zi chunk descriptor"); err != nil {
			return err
		}
	}

	sentinel := types.ZIChunkDescriptor{}
	if err := w.writeValue(&sentinel, "zi chunk table sentinel"); err != nil {
		return err
	}

	tableLen := uint64(w.reg.NumZIChunks()+1) * types.ZIChunkDescriptorSize
	return w.writePad(layout.Padding(tableLen, types.PadSize))
}

// writeBlobs emits every chunk payload in registration order, consuming each
// buffer from the registry as it goes. The position check against the
// descriptor's recorded LoadAddr is the forward-reference guarantee: the
// offset written into the table earlier must be where the bytes land now.
func (w *Writer) writeBlobs() error {
	for i := 0; i < w.reg.NumChunks(); i++ {
		want, err := w.lay.BlobOffset(i)
		if err != nil {
			return err
		}
		if w.pos != want {
			return fmt.Errorf("%w: blob %d at %d, layout predicts %d", ErrLayoutMismatch, i, w.pos, want)
		}

		payload, err := w.reg.ConsumePayload(i)
		if err != nil {
			return err
		}
		if err := w.write(payload); err != nil {
			return fmt.Errorf("write blob %d: %w", i, err)
		}
		if err := w.writePad(layout.Padding(uint64(len(payload)), types.PadSize)); err != nil {
			return err
		}
	}
	return nil
}

// rewriteHeader overwrites the header region in place, reapplying its
// padding, and restores the stream position.
func (w *Writer) rewriteHeader() error {
	if _, err := w.sink.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek to image start: %w", err)
	}

	encoded, err := types.EncodeHeader(&w.header)
	if err != nil {
		return err
	}
	if _, err := w.sink.Write(encoded); err != nil {
		return fmt.Errorf("rewrite boot image header: %w", err)
	}
	pad := layout.Padding(types.BootImageHeaderSize, types.PadSize)
	if pad > 0 {
		if _, err := w.sink.Write(make([]byte, pad)); err != nil {
			return fmt.Errorf("rewrite header padding: %w", err)
		}
	}

	if _, err := w.sink.Seek(int64(w.pos), io.SeekStart); err != nil {
		return fmt.Errorf("restore stream position: %w", err)
	}
	return nil
}

func (w *Writer) write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	n, err := w.sink.Write(p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return io.ErrShortWrite
	}
	w.pos += uint64(n)
	return nil
}

func (w *Writer) writeValue(v any, what string) error {
	encoded, err := types.Encode(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", what, err)
	}
	if err := w.write(encoded); err != nil {
		return fmt.Errorf("write %s: %w", what, err)
	}
	return nil
}

func (w *Writer) writePad(pad uint64) error {
	if pad == 0 {
		return nil
	}
	if err := w.write(make([]byte, pad)); err != nil {
		return fmt.Errorf("write padding: %w", err)
	}
	return nil
}
