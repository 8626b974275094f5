// Package fdc emulates the floppy disk controller card of the TI-99/4A,
// built around a Western Digital FD1771 or a later FD179x chip.
// The CPU accesses the chip through memory-mapped registers,
// and the card through CRU bits.
package fdc

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/sergev/ti99disk/disk"
)

// Variant selects the controller chip.
type Variant int

const (
	FD1771 Variant = iota // single density, TI controller card
	FD179x                // single and double density
)

func (v Variant) String() string {
	if v == FD179x {
		return "FD179x"
	}
	return "FD1771"
}

// Status register bits. Some bits mean different things
// after Type I commands and after Type II/III commands.
const (
	StatusBusy         = 0x01
	StatusIndex        = 0x02 // Type I
	StatusDRQ          = 0x02 // Type II, III
	StatusTrack0       = 0x04 // Type I
	StatusLostData     = 0x04 // Type II, III
	StatusCRCError     = 0x08
	StatusSeekError    = 0x10 // Type I
	StatusNotFound     = 0x10 // Type II, III
	StatusHeadLoaded   = 0x20 // Type I
	StatusRecordType   = 0x60 // Type II read, FD1771: two bits
	StatusDeleted      = 0x20 // Type II read, FD179x
	StatusWriteProtect = 0x40
	StatusNotReady     = 0x80
)

// NumDrives is the number of drives the card can select.
const NumDrives = 3

// CPU is the processor the controller is attached to.
type CPU interface {
	// Clock returns the number of CPU clocks elapsed.
	Clock() uint64

	// Stall holds the CPU for the given number of clocks.
	Stall(clocks uint64)
}

// Options configure a controller.
type Options struct {
	Variant      Variant
	Cylinders    int         // tracks the drive heads can reach
	ClocksPerRev uint64      // CPU clocks per disk revolution
	Density      disk.Format // recording density of Write Track on FD179x
}

// Default timing: 3 MHz CPU clock, 300 RPM.
const DefaultClocksPerRev = 3000000 / 5

type drive struct {
	image        *disk.Image
	writeProtect bool
}

// Controller holds the registers and the transfer state of the chip,
// plus the drive selection logic of the card.
type Controller struct {
	cpu  CPU
	opts Options

	drives [NumDrives]drive

	hardwareBits   byte // CRU output bits
	driveSelect    int  // 1..3, or 0 when none
	headSelect     int
	trackSelect    int // physical head position
	stepOut        bool
	trackRegister  byte
	sectorRegister byte
	statusRegister byte
	dataRegister   byte
	lastType       int // class of the last command, for status reporting

	state         State
	command       byte
	dataMark      byte
	bytesExpected int
	bytesLeft     int
	readPtr       int
	buffer        []byte
	sector        *disk.Sector
	track         *disk.Track
	startClock    uint64
	addressIndex  int
}

// New returns a controller attached to the given CPU.
func New(cpu CPU, opts Options) *Controller {
	if opts.Cylinders <= 0 {
		opts.Cylinders = 40
	}
	if opts.ClocksPerRev == 0 {
		opts.ClocksPerRev = DefaultClocksPerRev
	}
	if opts.Variant == FD1771 || opts.Density == disk.FormatUnknown {
		opts.Density = disk.FormatFM
	}
	return &Controller{
		cpu:      cpu,
		opts:     opts,
		lastType: 1,
	}
}

// Variant returns the emulated chip.
func (c *Controller) Variant() Variant {
	return c.opts.Variant
}

// Options returns the settings in effect, defaults filled in.
func (c *Controller) Options() Options {
	return c.opts
}

// Insert puts a disk image into drive 1..3.
// A drive marked write protected refuses writes regardless of the image.
func (c *Controller) Insert(number int, img *disk.Image, writeProtect bool) error {
	if number < 1 || number > NumDrives {
		return errors.Errorf("no drive %d", number)
	}
	if c.drives[number-1].image != nil {
		if err := c.Eject(number); err != nil {
			return err
		}
	}
	c.drives[number-1] = drive{image: img, writeProtect: writeProtect}
	log.WithFields(log.Fields{
		"drive":     number,
		"file":      img.Filename(),
		"cylinders": img.NumTracks(),
		"heads":     img.NumHeads(),
	}).Debug("disk inserted")
	return nil
}

// Eject removes the disk from a drive, saving it first when it was modified.
func (c *Controller) Eject(number int) error {
	if number < 1 || number > NumDrives {
		return errors.Errorf("no drive %d", number)
	}
	d := &c.drives[number-1]
	if d.image == nil {
		return nil
	}
	img := d.image
	d.image = nil
	if number == c.driveSelect {
		c.abort()
	}
	if img.HasChanged() && img.Serializer() != nil {
		if err := img.Save(); err != nil {
			return errors.Wrapf(err, "drive %d", number)
		}
		log.WithField("drive", number).Debugf("saved %s", img.Filename())
	}
	return nil
}

// Image returns the disk in a drive, or nil.
func (c *Controller) Image(number int) *disk.Image {
	if number < 1 || number > NumDrives {
		return nil
	}
	return c.drives[number-1].image
}

// Flush saves all modified images.
func (c *Controller) Flush() error {
	for i := range c.drives {
		img := c.drives[i].image
		if img == nil || !img.HasChanged() || img.Serializer() == nil {
			continue
		}
		if err := img.Save(); err != nil {
			return errors.Wrapf(err, "drive %d", i+1)
		}
	}
	return nil
}

// selected returns the drive chosen by the CRU select bits, or nil.
func (c *Controller) selected() *drive {
	if c.driveSelect < 1 || c.driveSelect > NumDrives {
		return nil
	}
	d := &c.drives[c.driveSelect-1]
	if d.image == nil {
		return nil
	}
	return d
}

// writeProtected reports whether the selected disk refuses writes.
func (c *Controller) writeProtected() bool {
	d := c.selected()
	return d != nil && (d.writeProtect || d.image.IsWriteProtected())
}

// currentTrack returns the track under the selected head, or nil.
func (c *Controller) currentTrack() *disk.Track {
	d := c.selected()
	if d == nil {
		return nil
	}
	return d.image.GetTrack(c.trackSelect, c.headSelect)
}

// logger returns a logger tagged with the selected drive.
func (c *Controller) logger() *log.Entry {
	return log.WithFields(log.Fields{
		"drive": c.driveSelect,
		"track": c.trackSelect,
		"side":  c.headSelect,
	})
}
