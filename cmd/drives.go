package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sergev/ti99disk/config"
	"github.com/sergev/ti99disk/fdc"
)

var drivesCmd = &cobra.Command{
	Use:   "drives",
	Short: "Show the disks inserted by the configuration",
	Long: `Insert the images listed as [[drive]] tables of the configuration file
into the emulated controller, and show what each drive holds.
Relative image paths are taken from the directory of the configuration file.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		dir, err := configDir()
		if err != nil {
			cobra.CheckErr(fmt.Errorf("failed to locate config: %w", err))
		}
		h := newHost(conf.Options())
		if err := conf.Mount(h.ctrl, dir); err != nil {
			cobra.CheckErr(fmt.Errorf("failed to insert disks: %w", err))
		}

		reports := surveyDrives(h)
		if len(reports) == 0 {
			fmt.Println("No disks configured")
			return
		}
		for _, r := range reports {
			printDrive(r)
		}
	},
}

func init() {
	rootCmd.AddCommand(drivesCmd)
}

// configDir returns the directory of the configuration file in use.
func configDir() (string, error) {
	path := configPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return "", err
		}
	}
	return filepath.Dir(path), nil
}

// driveReport is what the console finds in one drive.
type driveReport struct {
	number    int
	filename  string
	protected bool
	volume    volume
	labeled   bool // sector 0 holds volume information
	free      int
	err       error
}

// surveyDrives selects every occupied drive in turn, moves the head
// to track 0 and reads the volume information from sector 0.
func surveyDrives(h *host) []driveReport {
	var reports []driveReport
	for n := 1; n <= fdc.NumDrives; n++ {
		img := h.ctrl.Image(n)
		if img == nil {
			continue
		}
		r := driveReport{number: n, filename: img.Filename()}
		h.selectDrive(n)
		h.selectSide(0)
		if err := h.restore(); err != nil {
			r.err = err
			reports = append(reports, r)
			continue
		}
		r.protected = h.status()&fdc.StatusWriteProtect != 0

		data, err := h.readSector(0)
		if err != nil {
			r.err = err
		} else if r.volume, r.labeled = parseVolume(data); r.labeled {
			r.free = freeSectors(data, r.volume.totalSectors)
		}
		reports = append(reports, r)
	}
	return reports
}

func printDrive(r driveReport) {
	fmt.Printf("DSK%d: %s", r.number, r.filename)
	if r.protected {
		fmt.Print(" (write protected)")
	}
	fmt.Println()
	switch {
	case r.err != nil:
		fmt.Printf("    %v\n", r.err)
	case r.labeled:
		fmt.Printf("    Volume %s, %d sectors, %d free\n", r.volume.name, r.volume.totalSectors, r.free)
	default:
		fmt.Println("    No volume information")
	}
}
