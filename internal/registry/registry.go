// Package registry collects the chunks and ZI chunks of one image build in
// registration order. The registry exclusively owns each chunk's payload
// buffer from registration until the writer's blob pass consumes it.
package registry

import (
	"fmt"

	"github.com/deploymenttheory/go-bootimage/internal/types"
)

type chunkEntry struct {
	desc     types.ChunkDescriptor
	payload  []byte
	consumed bool
}

// Registry is an append-only collection of chunk and ZI chunk registrations.
// A Registry is per-build state; independent builds use independent
// registries.
type Registry struct {
	chunks   []chunkEntry
	ziChunks []types.ZIChunkDescriptor
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{}
}

// AddChunk appends a chunk and takes ownership of its payload buffer. The
// descriptor's Size must match the payload length; its LoadAddr is ignored
// here and assigned by the layout engine at write time, and its CRC32 is
// computed from the payload. A zero-size chunk is a no-op: nothing is
// registered and the buffer stays with the caller. Returns the chunk count
// after the call.
func (r *Registry) AddChunk(desc types.ChunkDescriptor, payload []byte) (int, error) {
	if desc.Size == 0 {
		return len(r.chunks), nil
	}
	if uint64(len(payload)) != desc.Size {
		return len(r.chunks), fmt.Errorf("chunk payload is %d bytes, descriptor says %d", len(payload), desc.Size)
	}
	desc.LoadAddr = 0
	desc.CRC32 = types.PayloadChecksum(payload)
	r.chunks = append(r.chunks, chunkEntry{desc: desc, payload: payload})
	return len(r.chunks), nil
}

// AddZIChunk appends a zero-init region descriptor. Zero-size ZI chunks are
// legal and kept; they mark an empty region. Returns the ZI chunk count
// after the call.
func (r *Registry) AddZIChunk(desc types.ZIChunkDescriptor) int {
	r.ziChunks = append(r.ziChunks, desc)
	return len(r.ziChunks)
}

// NumChunks returns the number of registered chunks.
func (r *Registry) NumChunks() int { return len(r.chunks) }

// NumZIChunks returns the number of registered ZI chunks.
func (r *Registry) NumZIChunks() int { return len(r.ziChunks) }

// ChunkSizes returns the payload sizes in registration order, the input the
// layout engine freezes on.
func (r *Registry) ChunkSizes() []uint64 {
	sizes := make([]uint64, len(r.chunks))
	for i, c := range r.chunks {
		sizes[i] = c.desc.Size
	}
	return sizes
}

// Chunk returns the descriptor of chunk i as registered (LoadAddr still
// unassigned).
func (r *Registry) Chunk(i int) (types.ChunkDescriptor, error) {
	if i < 0 || i >= len(r.chunks) {
		return types.ChunkDescriptor{}, fmt.Errorf("chunk index %d out of range [0,%d)", i, len(r.chunks))
	}
	return r.chunks[i].desc, nil
}

// ZIChunk returns the descriptor of ZI chunk i.
func (r *Registry) ZIChunk(i int) (types.ZIChunkDescriptor, error) {
	if i < 0 || i >= len(r.ziChunks) {
		return types.ZIChunkDescriptor{}, fmt.Errorf("zi chunk index %d out of range [0,%d)", i, len(r.ziChunks))
	}
	return r.ziChunks[i], nil
}

// ConsumePayload transfers ownership of chunk i's payload to the caller. The
// buffer is handed out exactly once; a second request for the same chunk is
// an internal-consistency fault.
func (r *Registry) ConsumePayload(i int) ([]byte, error) {
	if i < 0 || i >= len(r.chunks) {
		return nil, fmt.Errorf("chunk index %d out of range [0,%d)", i, len(r.chunks))
	}
	if r.chunks[i].consumed {
		return nil, fmt.Errorf("chunk %d payload already consumed", i)
	}
	payload := r.chunks[i].payload
	r.chunks[i].payload = nil
	r.chunks[i].consumed = true
	return payload, nil
}
