package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-bootimage/internal/reader"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <image>",
	Short: "Decode and print an existing boot image",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	img, err := reader.Open(args[0])
	if err != nil {
		return err
	}

	h := img.Header
	fmt.Printf("Boot image: %s\n", args[0])
	fmt.Printf("  Name:                %q\n", h.NameString())
	fmt.Printf("  Magic:               0x%08X\n", h.Magic)
	fmt.Printf("  Version:             %d\n", h.Version)
	fmt.Printf("  Header length:       %d\n", h.HeaderLength)
	fmt.Printf("  Image length:        %d\n", h.ImageLength)
	fmt.Printf("  Header CRC:          0x%08X\n", h.HeaderCRC)
	fmt.Printf("  Chunk table:         offset %d, %d entries\n", h.ChunkTableOffset, len(img.Chunks))
	fmt.Printf("  ZI chunk table:      offset %d, %d entries\n", h.ZIChunkTableOffset, len(img.ZIChunks))
	fmt.Printf("  Signed:              %v\n", img.Signed())

	for i, c := range img.Chunks {
		fmt.Printf("  Chunk %d: owner %d, load 0x%X, exec 0x%X, size %d, CRC 0x%08X\n",
			i, c.Owner, c.LoadAddr, c.ExecAddr, c.Size, c.CRC32)
	}
	for i, z := range img.ZIChunks {
		fmt.Printf("  ZI chunk %d: owner %d, exec 0x%X, size %d\n",
			i, z.Owner, z.ExecAddr, z.Size)
	}
	return nil
}
