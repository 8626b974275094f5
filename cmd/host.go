package cmd

import (
	"github.com/pkg/errors"

	"github.com/sergev/ti99disk/fdc"
)

// Clocks spent by the console on one register access,
// including the wait states of the card.
const clocksPerAccess = 30

// host drives a disk controller the way the disk routines
// of the console do: through the card registers and CRU bits.
type host struct {
	clock uint64
	ctrl  *fdc.Controller
}

func newHost(opts fdc.Options) *host {
	h := &host{}
	h.ctrl = fdc.New(h, opts)
	return h
}

func (h *host) Clock() uint64 {
	return h.clock
}

func (h *host) Stall(clocks uint64) {
	h.clock += clocks
}

func (h *host) read(addr uint16) byte {
	h.clock += clocksPerAccess
	return ^h.ctrl.ReadMemory(addr)
}

func (h *host) write(addr uint16, value byte) {
	h.clock += clocksPerAccess
	h.ctrl.WriteMemory(addr, ^value)
}

func (h *host) status() byte {
	return h.read(fdc.AddrStatus)
}

// command issues a command and reports the failure bits of the result.
func (h *host) command(cmd byte, failure byte) error {
	h.write(fdc.AddrCommand, cmd)
	if s := h.status(); s&failure != 0 {
		return errors.Errorf("command %02X failed, status %02X", cmd, s)
	}
	return nil
}

// selectDrive turns on the motor of a drive and loads its head.
func (h *host) selectDrive(number int) {
	for n := 1; n <= fdc.NumDrives; n++ {
		h.ctrl.WriteCRU(fdc.CRUDrive1+n-1, n == number)
	}
	h.ctrl.WriteCRU(fdc.CRUMotor, true)
	h.ctrl.WriteCRU(fdc.CRUHeadLoad, true)
	h.ctrl.WriteCRU(fdc.CRUTransferEnable, true)
}

func (h *host) selectSide(side int) {
	h.ctrl.WriteCRU(fdc.CRUSide, side == 1)
}

func (h *host) restore() error {
	return h.command(0x00, fdc.StatusNotReady)
}

func (h *host) seek(cylinder int) error {
	h.write(fdc.AddrDataWrite, byte(cylinder))
	return h.command(0x10, fdc.StatusNotReady|fdc.StatusSeekError)
}

// writeTrack sends a Write Track stream and waits for the command to end.
func (h *host) writeTrack(stream []byte) error {
	if err := h.command(0xF4, fdc.StatusNotReady|fdc.StatusWriteProtect|fdc.StatusNotFound); err != nil {
		return err
	}
	for _, b := range stream {
		if h.status()&fdc.StatusBusy == 0 {
			break
		}
		h.write(fdc.AddrDataWrite, b)
	}
	if s := h.status(); s&fdc.StatusBusy != 0 {
		// Let the disk finish the revolution.
		h.clock += h.ctrl.Options().ClocksPerRev
		if h.status()&fdc.StatusBusy != 0 {
			return errors.New("write track did not complete")
		}
	}
	return nil
}

// writeSector stores a sector on the current cylinder.
func (h *host) writeSector(sector int, data []byte) error {
	h.write(fdc.AddrSectorWrite, byte(sector))
	if err := h.command(0xA8, fdc.StatusNotReady|fdc.StatusWriteProtect|fdc.StatusNotFound); err != nil {
		return errors.Wrapf(err, "sector %d", sector)
	}
	for _, b := range data {
		h.write(fdc.AddrDataWrite, b)
	}
	return nil
}

// readSector fetches a sector from the current cylinder.
func (h *host) readSector(sector int) ([]byte, error) {
	h.write(fdc.AddrSectorWrite, byte(sector))
	if err := h.command(0x88, fdc.StatusNotReady|fdc.StatusNotFound); err != nil {
		return nil, errors.Wrapf(err, "sector %d", sector)
	}
	var data []byte
	for h.status()&fdc.StatusDRQ != 0 {
		data = append(data, h.read(fdc.AddrDataRead))
	}
	if s := h.status(); s&fdc.StatusCRCError != 0 {
		return data, errors.Errorf("sector %d: CRC error", sector)
	}
	return data, nil
}
