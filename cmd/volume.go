package cmd

import (
	"strings"

	"github.com/sergev/ti99disk/disk"
)

// Offsets within the volume information block, sector 0 of a TI disk.
const (
	vibName          = 0x00
	vibTotalSectors  = 0x0A
	vibSectorsPerTrk = 0x0C
	vibSignature     = 0x0D
	vibProtection    = 0x10
	vibTracks        = 0x11
	vibSides         = 0x12
	vibDensity       = 0x13
	vibBitmap        = 0x38
	vibBitmapEnd     = 0xEC
)

// volume is the geometry recorded on a TI disk.
type volume struct {
	name          string
	totalSectors  int
	sectorsPerTrk int
	tracks        int
	sides         int
	density       int
}

// volumeInfo builds the volume information block of a freshly
// formatted disk: sectors 0 and 1 in use, the rest free.
func volumeInfo(label string, tracks, sides int, layout disk.Layout) []byte {
	vib := make([]byte, 256)
	name := []byte(strings.ToUpper(label))
	for i := 0; i < 10; i++ {
		vib[vibName+i] = ' '
		if i < len(name) {
			vib[vibName+i] = name[i]
		}
	}
	total := tracks * sides * layout.Sectors
	vib[vibTotalSectors] = byte(total >> 8)
	vib[vibTotalSectors+1] = byte(total)
	vib[vibSectorsPerTrk] = byte(layout.Sectors)
	copy(vib[vibSignature:], "DSK")
	vib[vibProtection] = ' '
	vib[vibTracks] = byte(tracks)
	vib[vibSides] = byte(sides)
	vib[vibDensity] = 1
	if layout.Format == disk.FormatMFM {
		vib[vibDensity] = 2
	}

	for i := 0; i < (vibBitmapEnd-vibBitmap)*8; i++ {
		if i < 2 || i >= total {
			vib[vibBitmap+i/8] |= 1 << (i % 8)
		}
	}
	for i := vibBitmapEnd; i < len(vib); i++ {
		vib[i] = 0xFF
	}
	return vib
}

// parseVolume decodes a volume information block.
func parseVolume(vib []byte) (volume, bool) {
	if len(vib) < 256 || string(vib[vibSignature:vibSignature+3]) != "DSK" {
		return volume{}, false
	}
	return volume{
		name:          strings.TrimRight(string(vib[vibName:vibName+10]), " "),
		totalSectors:  int(vib[vibTotalSectors])<<8 | int(vib[vibTotalSectors+1]),
		sectorsPerTrk: int(vib[vibSectorsPerTrk]),
		tracks:        int(vib[vibTracks]),
		sides:         int(vib[vibSides]),
		density:       int(vib[vibDensity]),
	}, true
}

// freeSectors counts the sectors not allocated in the bitmap.
func freeSectors(vib []byte, total int) int {
	free := 0
	for i := 0; i < total && i < (vibBitmapEnd-vibBitmap)*8; i++ {
		if vib[vibBitmap+i/8]&(1<<(i%8)) == 0 {
			free++
		}
	}
	return free
}
