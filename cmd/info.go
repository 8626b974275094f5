package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sergev/ti99disk/disk"
)

var infoCmd = &cobra.Command{
	Use:   "info IMAGE",
	Short: "Show the contents of a disk image",
	Long:  "Show format, geometry and sector health of a disk image, and the volume information of a TI disk.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		img, err := disk.Open(args[0])
		if err != nil {
			cobra.CheckErr(fmt.Errorf("failed to read file %s: %w", args[0], err))
		}
		printInfo(img)
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

// trackSummary counts sectors of one track by health.
type trackSummary struct {
	format  disk.Format
	sectors int
	badID   int
	badData int
	deleted int
}

func summarize(track *disk.Track) trackSummary {
	sum := trackSummary{format: track.Format(), sectors: track.NumSectors()}
	for i := 0; i < track.NumSectors(); i++ {
		s := track.Sector(i)
		if !s.ValidID() {
			sum.badID++
		}
		if !s.ValidData() {
			sum.badData++
		}
		if s.DataMark() != disk.MarkData {
			sum.deleted++
		}
	}
	return sum
}

func printInfo(img *disk.Image) {
	fmt.Printf("File: %s\n", img.Filename())
	fmt.Printf("Format: %s\n", img.Serializer().Name())
	fmt.Printf("Geometry: %d tracks, %d side(s)\n", img.NumTracks(), img.NumHeads())
	fmt.Printf("Density: %v\n", img.Format())
	if img.IsWriteProtected() {
		fmt.Printf("Write protected\n")
	}

	if track := img.GetTrack(0, 0); track != nil {
		if s := track.GetSector(0, 0, 0); s != nil {
			vib := s.Read()
			if v, ok := parseVolume(vib); ok {
				fmt.Printf("\nVolume: %s\n", v.name)
				fmt.Printf("Sectors: %d total, %d free, %d per track\n",
					v.totalSectors, freeSectors(vib, v.totalSectors), v.sectorsPerTrk)
				fmt.Printf("Recorded geometry: %d tracks, %d side(s), density %d\n", v.tracks, v.sides, v.density)
			}
		}
	}

	fmt.Printf("\nTrack Side Density Sectors Bad-ID Bad-data Deleted\n")
	for c := 0; c < img.NumTracks(); c++ {
		for h := 0; h < img.NumHeads(); h++ {
			sum := summarize(img.GetTrack(c, h))
			fmt.Printf("%5d %4d %-7v %7d %6d %8d %7d\n",
				c, h, sum.format, sum.sectors, sum.badID, sum.badData, sum.deleted)
		}
	}
}
