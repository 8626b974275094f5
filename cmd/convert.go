package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sergev/ti99disk/disk"
	"github.com/sergev/ti99disk/hfe"
)

var convertHFEv3 bool

var convertCmd = &cobra.Command{
	Use:   "convert SRC.EXT DEST.EXT",
	Short: "Convert between image formats",
	Long: `Convert between image formats.
Reads contents of the SRC.EXT file and writes it to DEST.EXT file.
Format of floppy image is defined by extension.
Supported image formats:
    *.dsk or *.pc99 - PC99 track dump
    *.hfe           - HxC Floppy Emulator`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		srcFilename := args[0]
		destFilename := args[1]

		img, err := disk.Open(srcFilename)
		if err != nil {
			cobra.CheckErr(fmt.Errorf("failed to read file %s: %w", srcFilename, err))
		}

		s, err := destSerializer(destFilename)
		if err != nil {
			cobra.CheckErr(fmt.Errorf("cannot write %s: %w", destFilename, err))
		}
		if err := img.SaveAs(destFilename, s); err != nil {
			cobra.CheckErr(fmt.Errorf("failed to write file %s: %w", destFilename, err))
		}

		fmt.Printf("Successfully converted %s to %s\n", srcFilename, destFilename)
	},
}

func init() {
	convertCmd.Flags().BoolVar(&convertHFEv3, "hfe-v3", false, "write HFE version 3 (HDDD A2) files")
	rootCmd.AddCommand(convertCmd)
}

// destSerializer picks the output format by file extension.
func destSerializer(filename string) (disk.Serializer, error) {
	s, err := disk.SerializerForFile(filename)
	if err != nil {
		return nil, err
	}
	if _, ok := s.(*hfe.Serializer); ok && convertHFEv3 {
		return &hfe.Serializer{Version: hfe.HFEVersion3}, nil
	}
	return s, nil
}
