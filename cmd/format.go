package cmd

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sergev/ti99disk/disk"
	"github.com/sergev/ti99disk/fdc"
)

var (
	formatSides   int
	formatDensity string
	formatTracks  int
	formatLabel   string
)

var formatCmd = &cobra.Command{
	Use:   "format DEST.EXT",
	Short: "Create a blank formatted disk image",
	Long: `Create a blank formatted disk image.
The disk is formatted through the emulated disk controller,
track by track with Write Track commands, and initialized
with an empty volume information block.
Format of the image is defined by extension:
    *.dsk or *.pc99 - PC99 track dump
    *.hfe           - HxC Floppy Emulator`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		filename := args[0]
		s, err := disk.SerializerForFile(filename)
		if err != nil {
			cobra.CheckErr(fmt.Errorf("cannot create %s: %w", filename, err))
		}

		layout := disk.LayoutSD
		if strings.EqualFold(formatDensity, "dd") {
			layout = disk.LayoutDD
		} else if !strings.EqualFold(formatDensity, "sd") {
			cobra.CheckErr(fmt.Errorf("unknown density %q (use sd or dd)", formatDensity))
		}

		img, err := formatImage(conf.Options(), layout, formatTracks, formatSides, formatLabel)
		if err != nil {
			cobra.CheckErr(fmt.Errorf("failed to format: %w", err))
		}
		if err := img.SaveAs(filename, s); err != nil {
			cobra.CheckErr(fmt.Errorf("failed to write file %s: %w", filename, err))
		}
		fmt.Printf("Formatted %s: %d tracks, %d side(s), %v\n", filename, formatTracks, formatSides, layout.Format)
	},
}

func init() {
	formatCmd.Flags().IntVar(&formatSides, "sides", 1, "number of sides, 1 or 2")
	formatCmd.Flags().StringVar(&formatDensity, "density", "sd", "recording density, sd or dd")
	formatCmd.Flags().IntVar(&formatTracks, "tracks", 40, "number of tracks per side")
	formatCmd.Flags().StringVar(&formatLabel, "label", "BLANK", "volume name, up to 10 characters")
	rootCmd.AddCommand(formatCmd)
}

// formatImage formats a new disk in drive 1 of an emulated controller.
func formatImage(opts fdc.Options, layout disk.Layout, tracks, sides int, label string) (*disk.Image, error) {
	if sides < 1 || sides > 2 {
		return nil, errors.Errorf("invalid number of sides %d", sides)
	}
	if tracks < 1 || tracks > 80 {
		return nil, errors.Errorf("invalid number of tracks %d", tracks)
	}
	if len(label) > 10 {
		return nil, errors.Errorf("volume name %q is longer than 10 characters", label)
	}

	opts.Cylinders = max(opts.Cylinders, tracks)
	if layout.Format == disk.FormatMFM {
		opts.Variant = fdc.FD179x
		opts.Density = disk.FormatMFM
	} else {
		opts.Density = disk.FormatFM
	}

	img := disk.NewImage()
	img.AllocateTracks(tracks, sides)
	h := newHost(opts)
	if err := h.ctrl.Insert(1, img, false); err != nil {
		return nil, err
	}
	h.selectDrive(1)

	if err := h.restore(); err != nil {
		return nil, err
	}
	for cylinder := 0; cylinder < tracks; cylinder++ {
		if err := h.seek(cylinder); err != nil {
			return nil, errors.Wrapf(err, "seek to track %d", cylinder)
		}
		for side := 0; side < sides; side++ {
			h.selectSide(side)
			if err := h.writeTrack(layout.TrackStream(cylinder, side)); err != nil {
				return nil, errors.Wrapf(err, "track %d side %d", cylinder, side)
			}
		}
		log.Debugf("formatted track %d", cylinder)
	}

	// Volume information and an empty file index.
	if err := h.seek(0); err != nil {
		return nil, err
	}
	h.selectSide(0)
	vib := volumeInfo(label, tracks, sides, layout)
	if err := h.writeSector(0, vib); err != nil {
		return nil, err
	}
	if err := h.writeSector(1, make([]byte, 256)); err != nil {
		return nil, err
	}
	data, err := h.readSector(0)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(data, vib) {
		return nil, errors.New("volume information does not verify")
	}
	return img, nil
}
