package fdc

// Memory-mapped registers of the controller card.
// Reads and writes use separate addresses.
const (
	AddrStatus      = 0x5FF0 // read
	AddrTrackRead   = 0x5FF2
	AddrSectorRead  = 0x5FF4
	AddrDataRead    = 0x5FF6
	AddrCommand     = 0x5FF8 // write
	AddrTrackWrite  = 0x5FFA
	AddrSectorWrite = 0x5FFC
	AddrDataWrite   = 0x5FFE
)

// CRU output bits of the card.
const (
	CRUMotor          = 1 // strobe the motor timer
	CRUTransferEnable = 2 // hold the CPU until the chip is ready
	CRUHeadLoad       = 3
	CRUDrive1         = 4
	CRUDrive2         = 5
	CRUDrive3         = 6
	CRUSide           = 7
)

// InRange reports whether the address belongs to the controller registers.
func InRange(addr uint16) bool {
	return addr >= AddrStatus && addr <= AddrDataWrite+1
}

// ReadMemory handles a CPU read from the register area.
// The card inverts the data bus, so all values come out complemented.
func (c *Controller) ReadMemory(addr uint16) byte {
	c.checkRevolution()

	var value byte
	switch addr &^ 1 {
	case AddrStatus:
		value = c.status()
	case AddrTrackRead:
		value = c.trackRegister
	case AddrSectorRead:
		value = c.sectorRegister
	case AddrDataRead:
		value = c.readData()
	default:
		// Write-only registers read back as an idle bus.
		return 0x00
	}
	return ^value
}

// WriteMemory handles a CPU write to the register area.
func (c *Controller) WriteMemory(addr uint16, value byte) {
	c.checkRevolution()

	value = ^value
	switch addr &^ 1 {
	case AddrCommand:
		c.dispatch(value)
	case AddrTrackWrite:
		c.trackRegister = value
	case AddrSectorWrite:
		c.sectorRegister = value
	case AddrDataWrite:
		c.writeData(value)
	}
}

// WriteCRU sets an output bit of the card.
func (c *Controller) WriteCRU(bit int, value bool) {
	if bit < 0 || bit > 7 {
		return
	}
	if value {
		c.hardwareBits |= 1 << bit
	} else {
		c.hardwareBits &^= 1 << bit
	}

	switch bit {
	case CRUDrive1, CRUDrive2, CRUDrive3:
		selected := 0
		for n := 1; n <= NumDrives; n++ {
			if c.hardwareBits&(1<<(CRUDrive1+n-1)) != 0 {
				selected = n
				break
			}
		}
		if selected != c.driveSelect {
			if c.state != StateNone {
				c.logger().Warnf("drive deselected during %v", c.state)
				c.abort()
			}
			c.driveSelect = selected
		}
	case CRUSide:
		c.headSelect = 0
		if value {
			c.headSelect = 1
		}
	}
}

// ReadCRU returns an input bit of the card.
func (c *Controller) ReadCRU(bit int) bool {
	switch bit {
	case 0:
		return c.hardwareBits&(1<<CRUHeadLoad) != 0
	case 1, 2, 3:
		return c.driveSelect == bit
	case 4:
		return c.hardwareBits&(1<<CRUMotor) != 0
	case 5:
		return false
	case 6:
		return true
	case 7:
		return c.headSelect == 1
	}
	return false
}

// indexPulse reports whether the index hole passes the sensor.
func (c *Controller) indexPulse() bool {
	rev := c.opts.ClocksPerRev
	return c.cpu.Clock()%rev < rev/50
}

// status returns the status register. After Type I commands
// most bits reflect the drive at the moment of reading.
func (c *Controller) status() byte {
	d := c.selected()
	if c.lastType != 1 {
		if d == nil {
			return c.statusRegister | StatusNotReady
		}
		return c.statusRegister
	}

	value := c.statusRegister &^ (StatusIndex | StatusTrack0 | StatusHeadLoaded | StatusWriteProtect | StatusNotReady)
	if d == nil {
		value |= StatusNotReady
	} else {
		if c.writeProtected() {
			value |= StatusWriteProtect
		}
		if c.indexPulse() {
			value |= StatusIndex
		}
	}
	if c.trackSelect == 0 {
		value |= StatusTrack0
	}
	if c.hardwareBits&(1<<CRUHeadLoad) != 0 {
		value |= StatusHeadLoaded
	}
	return value
}

// readData returns the next byte of a read transfer.
func (c *Controller) readData() byte {
	switch c.state {
	case StateReadSector, StateReadAddress, StateReadTrack:
	default:
		return c.dataRegister
	}
	if c.bytesLeft > 0 {
		c.dataRegister = c.buffer[c.readPtr]
		c.readPtr++
		c.bytesLeft--
	}
	if c.bytesLeft == 0 {
		c.finish(EventTransferDone)
	}
	return c.dataRegister
}

// writeData stores the next byte of a write transfer.
func (c *Controller) writeData(value byte) {
	c.dataRegister = value
	switch c.state {
	case StateWriteSector:
		c.buffer = append(c.buffer, value)
		c.bytesLeft--
	case StateWriteTrack:
		c.buffer = append(c.buffer, value)
		c.bytesLeft -= outputBytes(value)
	default:
		return
	}
	if c.bytesLeft <= 0 {
		c.bytesLeft = 0
		c.finish(EventTransferDone)
	}
}
