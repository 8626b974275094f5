package cmd

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sergev/ti99disk/disk"
)

var (
	dumpCylinder int
	dumpHead     int
	dumpSector   int
	dumpRaw      bool
)

var dumpCmd = &cobra.Command{
	Use:   "dump IMAGE",
	Short: "Print the sectors of one track",
	Long: `Print the sector IDs of one track with their CRC status.
With --sector, print the contents of that sector.
With --raw, print the whole decoded track including gaps.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		img, err := disk.Open(args[0])
		if err != nil {
			cobra.CheckErr(fmt.Errorf("failed to read file %s: %w", args[0], err))
		}
		track := img.GetTrack(dumpCylinder, dumpHead)
		if track == nil {
			cobra.CheckErr(fmt.Errorf("no track %d side %d in %s", dumpCylinder, dumpHead, args[0]))
		}
		cobra.CheckErr(dumpTrack(track))
	},
}

func init() {
	dumpCmd.Flags().IntVarP(&dumpCylinder, "cylinder", "c", 0, "cylinder number")
	dumpCmd.Flags().IntVarP(&dumpHead, "head", "H", 0, "head number")
	dumpCmd.Flags().IntVarP(&dumpSector, "sector", "s", -1, "sector number to print")
	dumpCmd.Flags().BoolVar(&dumpRaw, "raw", false, "print the raw track")
	rootCmd.AddCommand(dumpCmd)
}

func dumpTrack(track *disk.Track) error {
	if dumpRaw {
		fmt.Printf("%v track, %d bytes, marks at %v\n", track.Format(), track.Size(), track.Clock())
		fmt.Print(hex.Dump(track.Data()))
		return nil
	}
	if dumpSector >= 0 {
		s := track.GetSector(-1, -1, dumpSector)
		if s == nil {
			return fmt.Errorf("no sector %d on the track", dumpSector)
		}
		fmt.Printf("Sector %d, mark %02X, data CRC %s\n", s.Number(), s.DataMark(), crcStatus(s.ValidData()))
		fmt.Print(hex.Dump(s.Read()))
		return nil
	}

	fmt.Printf("%v track, %d bytes, %d sectors\n", track.Format(), track.Size(), track.NumSectors())
	for i := 0; i < track.NumSectors(); i++ {
		s := track.Sector(i)
		fmt.Printf("  C=%-3d H=%d S=%-3d size=%-4d mark=%02X ID %s, data %s\n",
			s.Cylinder(), s.Head(), s.Number(), s.Size(), s.DataMark(),
			crcStatus(s.ValidID()), crcStatus(s.ValidData()))
	}
	return nil
}

func crcStatus(ok bool) string {
	if ok {
		return "ok"
	}
	return "bad CRC"
}
