package cmd

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-bootimage/internal/config"
	"github.com/deploymenttheory/go-bootimage/internal/imagewriter"
	"github.com/deploymenttheory/go-bootimage/internal/registry"
	"github.com/deploymenttheory/go-bootimage/internal/signing"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Build a boot image from a YAML build manifest",
	Long: `Reads a build manifest describing payload files and zero-init
regions, assembles them into a boot image, checksums it, and signs it when a
private key is supplied.

The image is built in a uniquely named temporary file next to the output
path and renamed into place only on success, so a failed build never leaves
a partial image at the destination.`,
	RunE: runGenerate,
}

var (
	generateConfig string
	generateOutput string
	generateKey    string
)

func init() {
	generateCmd.Flags().StringVarP(&generateConfig, "config", "c", "", "path to the YAML build manifest")
	generateCmd.Flags().StringVarP(&generateOutput, "output", "o", "", "path of the boot image to produce")
	generateCmd.Flags().StringVarP(&generateKey, "private-key", "k", "", "PEM ECDSA P-384 private key; presence enables signing")
	generateCmd.MarkFlagRequired("config")
	generateCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, err := config.Load(generateConfig)
	if err != nil {
		return err
	}

	// Fail on a bad key before doing any build work.
	var signer *signing.Signer
	if generateKey != "" {
		signer, err = signing.LoadPrivateKey(generateKey)
		if err != nil {
			return err
		}
	}

	reg := registry.New()
	if err := cfg.Populate(reg); err != nil {
		return err
	}
	tracef("registered %d chunks, %d zi chunks\n", reg.NumChunks(), reg.NumZIChunks())

	tmpPath := fmt.Sprintf("%s.%s.partial", generateOutput, uuid.NewString())
	f, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}

	if err := buildImage(f, reg, cfg.SetName, signer); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync output file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close output file: %w", err)
	}
	if err := os.Rename(tmpPath, generateOutput); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("move image into place: %w", err)
	}

	infof("wrote boot image %s\n", generateOutput)
	return nil
}

func buildImage(f *os.File, reg *registry.Registry, name string, signer *signing.Signer) error {
	w := imagewriter.New(f, reg, name)
	if err := w.WriteImage(); err != nil {
		return err
	}

	h := w.Header()
	tracef("header length %d, image length %d, header CRC 0x%08X\n", h.HeaderLength, h.ImageLength, h.HeaderCRC)

	if signer != nil {
		if err := w.Sign(signer); err != nil {
			return err
		}
		tracef("image signed (P-384)\n")
	}
	return nil
}
