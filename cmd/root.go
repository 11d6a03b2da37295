package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global output flags only
	verbose bool
	quiet   bool
)

var rootCmd = &cobra.Command{
	Use:   "go-bootimage",
	Short: "Boot image payload generator and inspector",
	Long: `go-bootimage assembles code/data payloads and zero-initialized
region descriptors into a single self-describing boot image, checksums it,
and optionally signs it with an ECDSA P-384 key.

The output format is consumed by a first-stage bootstrap loader that trusts
the image's internal offsets and signature without re-deriving them.

Commands:
  generate    Build a boot image from a YAML build manifest
  inspect     Decode and print an existing boot image
  verify      Validate an image's checksums, digest, and signature`,
	Version: "0.1.0-dev",
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Only global output control flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output except errors")
}

// tracef prints diagnostic output when --verbose is set.
func tracef(format string, args ...any) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// infof prints normal progress output unless --quiet is set.
func infof(format string, args ...any) {
	if !quiet {
		fmt.Printf(format, args...)
	}
}
