package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-bootimage/internal/registry"
)

func writeManifest(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "build.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func writePayloadFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	payload := writePayloadFile(t, dir, "u-boot.bin", 100)

	path := writeManifest(t, `
set-name: test-image
payloads:
  - path: `+payload+`
    owner: 1
    exec-addr: 0x80200000
zi-chunks:
  - owner: 1
    exec-addr: 0x81000000
    size: 65536
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test-image", cfg.SetName)
	require.Len(t, cfg.Payloads, 1)
	assert.Equal(t, uint64(1), cfg.Payloads[0].Owner)
	assert.Equal(t, uint64(0x80200000), cfg.Payloads[0].ExecAddr)
	require.Len(t, cfg.ZIChunks, 1)
	assert.Equal(t, uint64(65536), cfg.ZIChunks[0].Size)
}

func TestLoadManifestMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadManifestRejectsLongName(t *testing.T) {
	path := writeManifest(t, `
set-name: this-image-set-name-is-far-too-long-to-fit-the-header-field
payloads: []
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "set-name")
}

func TestLoadManifestRejectsPayloadWithoutPath(t *testing.T) {
	path := writeManifest(t, `
set-name: x
payloads:
  - owner: 1
    exec-addr: 0x1000
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestPopulateRegistersInOrder(t *testing.T) {
	dir := t.TempDir()
	first := writePayloadFile(t, dir, "a.bin", 10)
	second := writePayloadFile(t, dir, "b.bin", 20)

	cfg := &BuildConfig{
		SetName: "order",
		Payloads: []PayloadSpec{
			{Path: first, Owner: 1, ExecAddr: 0x1000},
			{Path: second, Owner: 2, ExecAddr: 0x2000},
		},
		ZIChunks: []ZISpec{{Owner: 3, ExecAddr: 0x3000, Size: 0x100}},
	}

	reg := registry.New()
	require.NoError(t, cfg.Populate(reg))
	assert.Equal(t, []uint64{10, 20}, reg.ChunkSizes())
	assert.Equal(t, 1, reg.NumZIChunks())

	desc, err := reg.Chunk(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), desc.Owner)
	assert.Equal(t, uint64(0x2000), desc.ExecAddr)
}

func TestPopulateSplitsLargePayloads(t *testing.T) {
	dir := t.TempDir()
	payload := writePayloadFile(t, dir, "big.bin", 100)

	cfg := &BuildConfig{
		Payloads: []PayloadSpec{{Path: payload, Owner: 1, ExecAddr: 0x1000, MaxChunkSize: 32}},
	}

	reg := registry.New()
	require.NoError(t, cfg.Populate(reg))
	assert.Equal(t, []uint64{32, 32, 32, 4}, reg.ChunkSizes())

	// Exec addresses stay contiguous across the split.
	for i, wantExec := range []uint64{0x1000, 0x1020, 0x1040, 0x1060} {
		desc, err := reg.Chunk(i)
		require.NoError(t, err)
		assert.Equal(t, wantExec, desc.ExecAddr, "chunk %d", i)
	}
}

func TestPopulateSkipsEmptyPayloadFile(t *testing.T) {
	dir := t.TempDir()
	empty := writePayloadFile(t, dir, "empty.bin", 0)

	cfg := &BuildConfig{
		Payloads: []PayloadSpec{{Path: empty, Owner: 1, ExecAddr: 0x1000}},
	}

	reg := registry.New()
	require.NoError(t, cfg.Populate(reg))
	assert.Equal(t, 0, reg.NumChunks())
}

func TestPopulateMissingPayloadFile(t *testing.T) {
	cfg := &BuildConfig{
		Payloads: []PayloadSpec{{Path: filepath.Join(t.TempDir(), "absent.bin"), Owner: 1}},
	}

	reg := registry.New()
	assert.Error(t, cfg.Populate(reg))
}
