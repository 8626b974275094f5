package fdc

import (
	"github.com/sergev/ti99disk/disk"
)

// Command flags
const (
	flagVerify    = 0x04 // Type I: verify the track after stepping
	flagHeadLoad  = 0x08 // Type I: load the head
	flagUpdate    = 0x10 // step commands: update the track register
	flagSideCheck = 0x02 // Type II, FD179x: compare the side
	flagSide      = 0x08 // Type II, FD179x: expected side
	flagMultiple  = 0x10 // Type II: transfer several sectors
)

// typeI performs restore, seek and step commands.
func (c *Controller) typeI(command byte) {
	c.lastType = 1
	c.statusRegister = 0

	switch command & 0xE0 {
	case 0x00:
		if command&0x10 == 0 {
			// Restore
			c.trackSelect = 0
			c.trackRegister = 0
		} else {
			// Seek to the cylinder in the data register
			c.moveHead(int(c.dataRegister) - int(c.trackRegister))
			c.trackRegister = c.dataRegister
		}
	case 0x20:
		c.step(command)
	case 0x40:
		c.stepOut = false
		c.step(command)
	case 0x60:
		c.stepOut = true
		c.step(command)
	}
	c.logger().Debugf("type I command %02X: track register %d", command, c.trackRegister)

	if command&flagVerify != 0 {
		c.verify()
	}
}

// step moves the head one cylinder in the current direction.
func (c *Controller) step(command byte) {
	delta := 1
	if c.stepOut {
		delta = -1
	}
	c.moveHead(delta)
	if command&flagUpdate != 0 {
		c.trackRegister += byte(delta)
	}
}

// moveHead changes the physical head position within the drive limits.
func (c *Controller) moveHead(delta int) {
	c.trackSelect = min(max(c.trackSelect+delta, 0), c.opts.Cylinders-1)
}

// verify looks for an ID field on the current track that matches
// the track register.
func (c *Controller) verify() {
	track := c.currentTrack()
	if track == nil {
		c.statusRegister |= StatusSeekError
		return
	}
	badCRC := false
	for i := 0; i < track.NumSectors(); i++ {
		s := track.Sector(i)
		if s.Cylinder() != int(c.trackRegister) {
			continue
		}
		if s.ValidID() {
			return
		}
		badCRC = true
	}
	c.statusRegister |= StatusSeekError
	if badCRC {
		c.statusRegister |= StatusCRCError
	}
}

// findSector looks for the sector addressed by the track and sector registers.
// An ID field with a bad CRC is passed over. Return nil when not found.
func (c *Controller) findSector(command byte) *disk.Sector {
	track := c.currentTrack()
	if track == nil {
		c.notFound(false)
		return nil
	}
	head := -1
	if c.opts.Variant == FD179x && command&flagSideCheck != 0 {
		head = 0
		if command&flagSide != 0 {
			head = 1
		}
	}

	badCRC := false
	for i := 0; i < track.NumSectors(); i++ {
		s := track.Sector(i)
		if !s.Matches(int(c.trackRegister), head, int(c.sectorRegister)) {
			continue
		}
		if s.ValidID() {
			c.track = track
			return s
		}
		badCRC = true
	}
	c.notFound(badCRC)
	return nil
}

// notFound reports a missing sector. With transfer enable on,
// the CPU waits while the chip searches for two revolutions.
func (c *Controller) notFound(badCRC bool) {
	c.statusRegister |= StatusNotFound
	if badCRC {
		c.statusRegister |= StatusCRCError
	}
	c.logger().Debugf("sector %d/%d not found", c.trackRegister, c.sectorRegister)
	if c.hardwareBits&(1<<CRUTransferEnable) != 0 {
		c.cpu.Stall(2 * c.opts.ClocksPerRev)
	}
}

// readSector starts a Read Sector command.
func (c *Controller) readSector(command byte) bool {
	c.lastType = 2
	c.statusRegister = 0
	if command&flagMultiple != 0 {
		c.logger().Debug("multiple sector read not supported, reading one sector")
	}
	s := c.findSector(command)
	if s == nil {
		return false
	}

	mark := s.DataMark()
	if c.opts.Variant == FD1771 {
		c.statusRegister |= (disk.MarkData - mark) << 5
	} else if mark == disk.MarkDeleted {
		c.statusRegister |= StatusDeleted
	}
	if !s.ValidData() {
		c.statusRegister |= StatusCRCError
	}

	c.sector = s
	c.buffer = s.Read()
	c.bytesExpected = len(c.buffer)
	c.bytesLeft = len(c.buffer)
	c.logger().Debugf("read sector %d, %d bytes", s.Number(), c.bytesExpected)
	return true
}

// writeSector starts a Write Sector command.
func (c *Controller) writeSector(command byte) bool {
	c.lastType = 2
	c.statusRegister = 0
	if command&flagMultiple != 0 {
		c.logger().Debug("multiple sector write not supported, writing one sector")
	}
	if c.writeProtected() {
		c.statusRegister |= StatusWriteProtect
		return false
	}
	s := c.findSector(command)
	if s == nil {
		return false
	}

	if c.opts.Variant == FD1771 {
		c.dataMark = disk.MarkData - command&0x03
	} else if command&0x01 != 0 {
		c.dataMark = disk.MarkDeleted
	} else {
		c.dataMark = disk.MarkData
	}

	c.sector = s
	c.bytesExpected = s.Size()
	c.bytesLeft = s.Size()
	c.buffer = make([]byte, 0, s.Size())
	c.logger().Debugf("write sector %d, mark %02X", s.Number(), c.dataMark)
	return true
}

// readAddress starts a Read Address command. Each call returns
// the next ID field on the track, as the disk spins under the head.
func (c *Controller) readAddress(command byte) bool {
	c.lastType = 3
	c.statusRegister = 0
	track := c.currentTrack()
	if track == nil || track.NumSectors() == 0 {
		c.notFound(false)
		return false
	}

	c.addressIndex %= track.NumSectors()
	s := track.Sector(c.addressIndex)
	c.addressIndex++
	if !s.ValidID() {
		c.statusRegister |= StatusCRCError
	}

	c.sectorRegister = byte(s.Cylinder())
	c.buffer = s.IDField()
	c.bytesExpected = len(c.buffer)
	c.bytesLeft = len(c.buffer)
	return true
}

// readTrack starts a Read Track command: the whole track buffer,
// gaps included, from the index hole.
func (c *Controller) readTrack(command byte) bool {
	c.lastType = 3
	c.statusRegister = 0
	track := c.currentTrack()
	if track == nil || track.Format() == disk.FormatUnknown {
		c.notFound(false)
		return false
	}

	c.track = track
	c.buffer = append([]byte(nil), track.Data()...)
	c.bytesExpected = len(c.buffer)
	c.bytesLeft = len(c.buffer)
	c.startClock = c.cpu.Clock()
	return true
}

// writeTrack starts a Write Track command. The command ends once the
// stream fills the nominal track length, or after one revolution.
func (c *Controller) writeTrack(command byte) bool {
	c.lastType = 3
	c.statusRegister = 0
	if c.writeProtected() {
		c.statusRegister |= StatusWriteProtect
		return false
	}
	track := c.currentTrack()
	if track == nil {
		c.notFound(false)
		return false
	}

	c.track = track
	c.bytesExpected = c.opts.Density.TrackSize()
	c.bytesLeft = c.bytesExpected
	c.buffer = make([]byte, 0, c.bytesExpected)
	c.startClock = c.cpu.Clock()
	c.logger().Debugf("write track, %v", c.opts.Density)
	return true
}

// forceInterrupt terminates any command.
func (c *Controller) forceInterrupt(command byte) {
	c.lastType = 1
	c.logger().Debugf("force interrupt %02X", command)
}

// commit stores the data of a finished write command.
func (c *Controller) commit() {
	switch c.state {
	case StateWriteSector:
		if c.sector != nil {
			c.sector.Write(c.dataMark, c.buffer)
		}
	case StateWriteTrack:
		if c.track != nil && len(c.buffer) > 0 {
			c.track.Write(c.opts.Density, c.buffer)
			c.logger().Debugf("track written, %d sectors", c.track.NumSectors())
		}
	}
}

// outputBytes returns how many bytes a Write Track stream byte puts on the disk.
func outputBytes(b byte) int {
	if b == disk.TokenCRC {
		return 2
	}
	return 1
}
