// Package config loads the YAML build manifest that decides which input
// files become chunks, and turns it into registry registrations.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/deploymenttheory/go-bootimage/internal/registry"
	"github.com/deploymenttheory/go-bootimage/internal/types"
)

// DefaultMaxChunkSize bounds a single chunk's payload; larger input files
// are split into consecutive chunks.
const DefaultMaxChunkSize = 1 << 20 // 1 MiB

// PayloadSpec describes one input file to pack.
type PayloadSpec struct {
	Path         string `mapstructure:"path"`
	Owner        uint64 `mapstructure:"owner"`
	ExecAddr     uint64 `mapstructure:"exec-addr"`
	MaxChunkSize uint64 `mapstructure:"max-chunk-size"`
}

// ZISpec describes one zero-initialized region.
type ZISpec struct {
	Owner    uint64 `mapstructure:"owner"`
	ExecAddr uint64 `mapstructure:"exec-addr"`
	Size     uint64 `mapstructure:"size"`
}

// BuildConfig is the parsed build manifest.
type BuildConfig struct {
	SetName  string        `mapstructure:"set-name"`
	Payloads []PayloadSpec `mapstructure:"payloads"`
	ZIChunks []ZISpec      `mapstructure:"zi-chunks"`
}

// Load reads and validates a build manifest using a dedicated viper
// instance.
func Load(path string) (*BuildConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read build manifest %s: %w", path, err)
	}

	cfg := &BuildConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal build manifest: %w", err)
	}

	if len(cfg.SetName) > types.ImageNameLength {
		return nil, fmt.Errorf("set-name %q is %d bytes, maximum is %d", cfg.SetName, len(cfg.SetName), types.ImageNameLength)
	}
	for i, p := range cfg.Payloads {
		if p.Path == "" {
			return nil, fmt.Errorf("payload %d has no path", i)
		}
	}
	return cfg, nil
}

// Populate reads every payload file, splits it into chunks, and registers
// chunks and ZI regions in manifest order. Exec addresses advance by the
// chunk size across splits so consecutive chunks of one file stay
// contiguous in target memory.
func (cfg *BuildConfig) Populate(reg *registry.Registry) error {
	for i, p := range cfg.Payloads {
		data, err := os.ReadFile(p.Path)
		if err != nil {
			return fmt.Errorf("read payload %d: %w", i, err)
		}

		maxSize := p.MaxChunkSize
		if maxSize == 0 {
			maxSize = DefaultMaxChunkSize
		}

		execAddr := p.ExecAddr
		for len(data) > 0 {
			n := uint64(len(data))
			if n > maxSize {
				n = maxSize
			}
			desc := types.ChunkDescriptor{
				Owner:    p.Owner,
				ExecAddr: execAddr,
				Size:     n,
			}
			if _, err := reg.AddChunk(desc, data[:n:n]); err != nil {
				return fmt.Errorf("register chunk of %s: %w", p.Path, err)
			}
			execAddr += n
			data = data[n:]
		}
	}

	for _, z := range cfg.ZIChunks {
		reg.AddZIChunk(types.ZIChunkDescriptor{
			Owner:    z.Owner,
			ExecAddr: z.ExecAddr,
			Size:     z.Size,
		})
	}
	return nil
}
