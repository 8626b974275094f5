package fdc

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/sergev/ti99disk/disk"
	"github.com/sergev/ti99disk/pc99"
)

type fakeCPU struct {
	clock   uint64
	stalled uint64
}

func (f *fakeCPU) Clock() uint64 {
	return f.clock
}

func (f *fakeCPU) Stall(clocks uint64) {
	f.stalled += clocks
	f.clock += clocks
}

func pattern(cylinder, sector int) []byte {
	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i*7 + cylinder<<4 + sector)
	}
	return data
}

// formatImage returns an image with every sector filled with a pattern.
func formatImage(t *testing.T, layout disk.Layout, cylinders, heads int) *disk.Image {
	t.Helper()
	img := disk.NewImage()
	img.AllocateTracks(cylinders, heads)
	for c := 0; c < cylinders; c++ {
		for h := 0; h < heads; h++ {
			track := img.GetTrack(c, h)
			track.Write(layout.Format, layout.TrackStream(c, h))
			for s := 0; s < layout.Sectors; s++ {
				track.GetSector(c, h, s).Write(disk.MarkData, pattern(c, s))
			}
		}
	}
	img.ClearChanged()
	return img
}

// newController returns a controller with the image in drive 1, selected.
func newController(t *testing.T, opts Options, img *disk.Image, protect bool) (*Controller, *fakeCPU) {
	t.Helper()
	cpu := &fakeCPU{}
	c := New(cpu, opts)
	if err := c.Insert(1, img, protect); err != nil {
		t.Fatalf("Insert() error: %v", err)
	}
	c.WriteCRU(CRUDrive1, true)
	return c, cpu
}

func command(c *Controller, cmd byte) {
	c.WriteMemory(AddrCommand, ^cmd)
}

func setRegister(c *Controller, addr uint16, value byte) {
	c.WriteMemory(addr, ^value)
}

func status(c *Controller) byte {
	return ^c.ReadMemory(AddrStatus)
}

func readBytes(c *Controller, n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = ^c.ReadMemory(AddrDataRead)
	}
	return data
}

func writeBytes(c *Controller, data []byte) {
	for _, b := range data {
		c.WriteMemory(AddrDataWrite, ^b)
	}
}

// seek moves the head to the cylinder with a Seek command.
func seek(c *Controller, cylinder byte) {
	setRegister(c, AddrDataWrite, cylinder)
	command(c, 0x10)
}

func TestRestoreReadSector(t *testing.T) {
	img := formatImage(t, disk.LayoutSD, 3, 1)
	c, _ := newController(t, Options{}, img, false)

	command(c, 0x00)
	if s := status(c); s&StatusTrack0 == 0 || s&StatusBusy != 0 {
		t.Errorf("status after restore %02X", s)
	}

	setRegister(c, AddrSectorWrite, 1)
	command(c, 0x88)
	if s := status(c); s&(StatusBusy|StatusDRQ) != StatusBusy|StatusDRQ {
		t.Fatalf("status after read sector %02X", s)
	}

	// Values on the bus are inverted.
	raw := c.ReadMemory(AddrDataRead)
	want := pattern(0, 1)
	if raw != ^want[0] {
		t.Errorf("first byte %02X on the bus, want %02X", raw, ^want[0])
	}
	data := append([]byte{^raw}, readBytes(c, 255)...)
	if !bytes.Equal(data, want) {
		t.Errorf("sector data differs")
	}

	s := status(c)
	if s&StatusBusy != 0 || s&StatusNotFound != 0 || s&StatusCRCError != 0 {
		t.Errorf("final status %02X", s)
	}
	if c.state != StateNone {
		t.Errorf("state %v after transfer", c.state)
	}
}

func TestWriteProtected(t *testing.T) {
	img := formatImage(t, disk.LayoutSD, 3, 1)
	before := append([]byte(nil), img.GetTrack(0, 0).Data()...)
	c, _ := newController(t, Options{}, img, true)

	command(c, 0x00)
	if s := status(c); s&StatusWriteProtect == 0 {
		t.Errorf("type I status %02X lacks write protect", s)
	}
	setRegister(c, AddrSectorWrite, 1)
	command(c, 0xA8)
	s := status(c)
	if s&StatusWriteProtect == 0 || s&StatusBusy != 0 {
		t.Errorf("status %02X", s)
	}
	writeBytes(c, make([]byte, 256))

	if !bytes.Equal(img.GetTrack(0, 0).Data(), before) {
		t.Errorf("track modified")
	}
	if img.HasChanged() {
		t.Errorf("image marked as changed")
	}
}

func TestWriteReadBack(t *testing.T) {
	tests := []struct {
		name   string
		opts   Options
		layout disk.Layout
	}{
		{"FD1771 SD", Options{Variant: FD1771}, disk.LayoutSD},
		{"FD179x DD", Options{Variant: FD179x}, disk.LayoutDD},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := formatImage(t, tt.layout, 3, 1)
			c, _ := newController(t, tt.opts, img, false)

			seek(c, 2)
			if c.trackSelect != 2 || c.trackRegister != 2 {
				t.Fatalf("head at %d, track register %d", c.trackSelect, c.trackRegister)
			}
			setRegister(c, AddrSectorWrite, 5)
			command(c, 0xA8)
			data := bytes.Repeat([]byte("TI-99/4A"), 32)
			writeBytes(c, data)

			if s := status(c); s&(StatusBusy|StatusDRQ) != 0 {
				t.Errorf("status after write %02X", s)
			}
			sector := img.GetTrack(2, 0).GetSector(2, 0, 5)
			if !bytes.Equal(sector.Read(), data) || !sector.ValidData() || sector.DataMark() != disk.MarkData {
				t.Errorf("sector not written")
			}
			if !img.HasChanged() {
				t.Errorf("image not marked as changed")
			}

			command(c, 0x88)
			if got := readBytes(c, 256); !bytes.Equal(got, data) {
				t.Errorf("read back differs")
			}
			if s := status(c); s != 0 {
				t.Errorf("status after read %02X", s)
			}
		})
	}
}

func TestDataMarks(t *testing.T) {
	tests := []struct {
		name    string
		variant Variant
		layout  disk.Layout
		command byte
		mark    byte
		status  byte
	}{
		{"FD1771 FA", FD1771, disk.LayoutSD, 0xA9, 0xFA, 0x20},
		{"FD1771 F8", FD1771, disk.LayoutSD, 0xAB, disk.MarkDeleted, 0x60},
		{"FD179x normal", FD179x, disk.LayoutDD, 0xA8, disk.MarkData, 0x00},
		{"FD179x deleted", FD179x, disk.LayoutDD, 0xA9, disk.MarkDeleted, StatusDeleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := formatImage(t, tt.layout, 1, 1)
			c, _ := newController(t, Options{Variant: tt.variant}, img, false)

			setRegister(c, AddrSectorWrite, 3)
			command(c, tt.command)
			writeBytes(c, pattern(9, 9))
			if mark := img.GetTrack(0, 0).GetSector(0, 0, 3).DataMark(); mark != tt.mark {
				t.Errorf("data mark %02X, want %02X", mark, tt.mark)
			}

			command(c, 0x88)
			if s := status(c) & StatusRecordType; s != tt.status {
				t.Errorf("record type %02X, want %02X", s, tt.status)
			}
		})
	}
}

func TestSideCompare(t *testing.T) {
	img := formatImage(t, disk.LayoutDD, 1, 2)
	c, _ := newController(t, Options{Variant: FD179x}, img, false)
	c.WriteCRU(CRUSide, true)
	setRegister(c, AddrSectorWrite, 4)

	command(c, 0x82) // expect side 0
	if s := status(c); s&StatusNotFound == 0 {
		t.Errorf("side 0 found on head 1, status %02X", s)
	}
	command(c, 0x8A) // expect side 1
	if s := status(c); s&StatusNotFound != 0 || s&StatusBusy == 0 {
		t.Errorf("side 1 not found, status %02X", s)
	}
	command(c, 0x80) // no compare
	if s := status(c); s&StatusBusy == 0 {
		t.Errorf("read without side compare failed, status %02X", s)
	}
}

func TestMultipleSectorFlag(t *testing.T) {
	img := formatImage(t, disk.LayoutSD, 1, 1)
	c, _ := newController(t, Options{}, img, false)
	setRegister(c, AddrSectorWrite, 7)

	command(c, 0x98)
	readBytes(c, 256)
	if s := status(c); s&StatusBusy != 0 {
		t.Errorf("busy after one sector, status %02X", s)
	}
	if c.sectorRegister != 7 {
		t.Errorf("sector register advanced to %d", c.sectorRegister)
	}
}

func TestCRCErrorStillDelivers(t *testing.T) {
	img := formatImage(t, disk.LayoutSD, 1, 1)
	track := img.GetTrack(0, 0)

	// Flip a byte in the data field of sector 1.
	data := append([]byte(nil), track.Data()...)
	clock := track.Clock()
	for i, offset := range clock {
		if data[offset] == disk.MarkID && data[offset+3] == 1 {
			data[clock[i+1]+10] ^= 0xFF
			break
		}
	}
	track.RawWrite(disk.FormatFM, clock, data)

	c, _ := newController(t, Options{}, img, false)
	setRegister(c, AddrSectorWrite, 1)
	command(c, 0x88)
	if s := status(c); s&StatusCRCError == 0 {
		t.Errorf("status %02X lacks CRC error", s)
	}
	got := readBytes(c, 256)
	want := pattern(0, 1)
	want[9] ^= 0xFF
	if !bytes.Equal(got, want) {
		t.Errorf("data not delivered as recorded")
	}
}

func TestReadAddress(t *testing.T) {
	img := formatImage(t, disk.LayoutSD, 3, 1)
	c, _ := newController(t, Options{}, img, false)
	seek(c, 1)

	order := disk.LayoutSD.SectorOrder()
	for i := 0; i < 3; i++ {
		setRegister(c, AddrSectorWrite, 0xFF)
		command(c, 0xC0)
		id := readBytes(c, 6)
		if id[0] != 1 || id[1] != 0 || int(id[2]) != order[i] || id[3] != 1 {
			t.Errorf("ID %d: % X", i, id)
		}
		crc := disk.FieldCRC(disk.FormatFM, []byte{disk.MarkID, id[0], id[1], id[2], id[3]})
		if id[4] != byte(crc>>8) || id[5] != byte(crc) {
			t.Errorf("ID %d: bad CRC % X", i, id[4:])
		}
		if c.sectorRegister != 1 {
			t.Errorf("sector register %d, want cylinder 1", c.sectorRegister)
		}
		if s := status(c); s&(StatusBusy|StatusCRCError) != 0 {
			t.Errorf("status %02X", s)
		}
	}
}

func TestReadTrack(t *testing.T) {
	img := formatImage(t, disk.LayoutSD, 1, 1)
	c, _ := newController(t, Options{}, img, false)

	command(c, 0xE4)
	want := img.GetTrack(0, 0).Data()
	got := readBytes(c, len(want))
	if !bytes.Equal(got, want) {
		t.Errorf("track contents differ")
	}
	if s := status(c); s&StatusBusy != 0 {
		t.Errorf("busy after whole track, status %02X", s)
	}
}

func TestForceInterrupt(t *testing.T) {
	img := formatImage(t, disk.LayoutSD, 1, 1)
	c, cpu := newController(t, Options{}, img, false)

	setRegister(c, AddrSectorWrite, 2)
	command(c, 0x88)
	readBytes(c, 10)
	command(c, 0xD0)

	// Bit 1 reads as INDEX after a Type I status; stay clear of the pulse.
	cpu.clock = DefaultClocksPerRev / 2
	s := status(c)
	if s&(StatusBusy|StatusIndex) != 0 {
		t.Errorf("status after interrupt %02X", s)
	}
	if c.statusRegister&StatusDRQ != 0 {
		t.Errorf("data request still pending")
	}
	if s&StatusTrack0 == 0 {
		t.Errorf("status not reported as type I: %02X", s)
	}
	if c.state != StateNone {
		t.Errorf("state %v", c.state)
	}
}

func TestSupersede(t *testing.T) {
	img := formatImage(t, disk.LayoutSD, 1, 1)
	c, _ := newController(t, Options{}, img, false)

	setRegister(c, AddrSectorWrite, 2)
	command(c, 0xA8)
	writeBytes(c, make([]byte, 100))

	// A new command abandons the pending write.
	setRegister(c, AddrSectorWrite, 4)
	command(c, 0x88)
	if s := status(c); s&(StatusBusy|StatusDRQ) != StatusBusy|StatusDRQ {
		t.Errorf("status %02X", s)
	}
	if got := readBytes(c, 256); !bytes.Equal(got, pattern(0, 4)) {
		t.Errorf("new transfer does not start at the beginning")
	}
	if !bytes.Equal(img.GetTrack(0, 0).GetSector(0, 0, 2).Read(), pattern(0, 2)) {
		t.Errorf("abandoned write reached the disk")
	}
	if img.HasChanged() {
		t.Errorf("image changed")
	}
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		state     State
		event     Event
		next      State
		supersede bool
		commit    bool
	}{
		{StateNone, EventReadSector, StateReadSector, false, false},
		{StateNone, EventWriteTrack, StateWriteTrack, false, false},
		{StateNone, EventTypeI, StateNone, false, false},
		{StateReadSector, EventTypeI, StateNone, true, false},
		{StateReadSector, EventReadSector, StateReadSector, true, false},
		{StateWriteSector, EventForceInterrupt, StateNone, true, false},
		{StateReadSector, EventTransferDone, StateNone, false, false},
		{StateWriteSector, EventTransferDone, StateNone, false, true},
		{StateReadAddress, EventWriteSector, StateWriteSector, true, false},
		{StateReadTrack, EventRevolution, StateNone, true, false},
		{StateWriteTrack, EventRevolution, StateNone, false, true},
		{StateWriteTrack, EventTransferDone, StateNone, false, true},
	}
	for _, tt := range tests {
		got := Transitions[tt.state][tt.event]
		if got.Next != tt.next || got.Supersede != tt.supersede || got.Commit != tt.commit {
			t.Errorf("Transitions[%v][%d] = %+v", tt.state, tt.event, got)
		}
	}
}

func TestStepAndVerify(t *testing.T) {
	img := formatImage(t, disk.LayoutSD, 3, 1)
	c, _ := newController(t, Options{}, img, false)

	steps := []struct {
		name     string
		command  byte
		data     byte
		head     int
		register byte
		status   byte // expected among SEEK_ERROR, CRC_ERROR, TRACK0
	}{
		{"restore", 0x00, 0, 0, 0, StatusTrack0},
		{"step out at track 0", 0x60, 0, 0, 0, StatusTrack0},
		{"step in, update", 0x50, 0, 1, 1, 0},
		{"step in", 0x40, 0, 2, 1, 0},
		{"step out, update", 0x70, 0, 1, 0, 0},
		{"step, same direction", 0x20, 0, 0, 0, StatusTrack0},
		{"seek, verify", 0x14, 2, 2, 2, 0},
		{"seek past the image", 0x14, 5, 5, 5, StatusSeekError},
		{"restore, verify", 0x04, 0, 0, 0, StatusTrack0},
	}
	for _, tt := range steps {
		setRegister(c, AddrDataWrite, tt.data)
		command(c, tt.command)
		if c.trackSelect != tt.head || c.trackRegister != tt.register {
			t.Errorf("%s: head at %d, track register %d", tt.name, c.trackSelect, c.trackRegister)
		}
		if s := status(c) & (StatusSeekError | StatusCRCError | StatusTrack0); s != tt.status {
			t.Errorf("%s: status %02X, want %02X", tt.name, s, tt.status)
		}
	}

	// Track register out of step with the head.
	setRegister(c, AddrTrackWrite, 2)
	setRegister(c, AddrDataWrite, 2)
	command(c, 0x14)
	if s := status(c); s&StatusSeekError == 0 {
		t.Errorf("verify of wrong cylinder passed, status %02X", s)
	}
}

func TestStepClamp(t *testing.T) {
	img := formatImage(t, disk.LayoutSD, 1, 1)
	c, _ := newController(t, Options{Cylinders: 2}, img, false)
	command(c, 0x50)
	command(c, 0x50)
	command(c, 0x50)
	if c.trackSelect != 1 {
		t.Errorf("head at %d beyond the last cylinder", c.trackSelect)
	}
	if c.trackRegister != 3 {
		t.Errorf("track register %d", c.trackRegister)
	}
}

func TestWriteTrack(t *testing.T) {
	tests := []struct {
		name   string
		opts   Options
		layout disk.Layout
	}{
		{"FD1771", Options{Variant: FD1771}, disk.LayoutSD},
		{"FD179x FM", Options{Variant: FD179x}, disk.LayoutSD},
		{"FD179x MFM", Options{Variant: FD179x, Density: disk.FormatMFM}, disk.LayoutDD},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := disk.NewImage()
			img.AllocateTracks(2, 1)
			c, _ := newController(t, tt.opts, img, false)

			seek(c, 1)
			command(c, 0xF4)
			stream := tt.layout.TrackStream(1, 0)
			writeBytes(c, stream[:len(stream)-1])
			if s := status(c); s&StatusBusy == 0 {
				t.Fatalf("write track ended early, status %02X", s)
			}
			writeBytes(c, stream[len(stream)-1:])
			if s := status(c); s&(StatusBusy|StatusDRQ) != 0 {
				t.Errorf("status after write track %02X", s)
			}

			track := img.GetTrack(1, 0)
			if track.Format() != tt.layout.Format || track.NumSectors() != tt.layout.Sectors {
				t.Fatalf("track %v with %d sectors", track.Format(), track.NumSectors())
			}
			if track.Size() != tt.layout.Format.TrackSize() {
				t.Errorf("track size %d", track.Size())
			}
			for s := 0; s < tt.layout.Sectors; s++ {
				sector := track.GetSector(1, 0, s)
				if sector == nil || !sector.ValidID() || !sector.ValidData() {
					t.Errorf("sector %d invalid", s)
				}
			}
			if img.GetTrack(0, 0).Format() != disk.FormatUnknown {
				t.Errorf("wrong track formatted")
			}
		})
	}
}

func TestWriteTrackRevolution(t *testing.T) {
	img := disk.NewImage()
	img.AllocateTracks(1, 1)
	c, cpu := newController(t, Options{}, img, false)

	command(c, 0xF4)
	stream := disk.LayoutSD.TrackStream(0, 0)
	writeBytes(c, stream[:1000])

	cpu.clock += DefaultClocksPerRev
	if s := status(c); s&StatusBusy != 0 {
		t.Errorf("busy after a revolution, status %02X", s)
	}
	track := img.GetTrack(0, 0)
	if track.Format() != disk.FormatFM || track.Size() != disk.StreamLength(stream[:1000]) {
		t.Errorf("partial track %v size %d", track.Format(), track.Size())
	}
}

func TestWriteTrackProtected(t *testing.T) {
	img := formatImage(t, disk.LayoutSD, 1, 1)
	img.SetWriteProtected(true)
	c, _ := newController(t, Options{}, img, false)

	command(c, 0xF4)
	if s := status(c); s&StatusWriteProtect == 0 || s&StatusBusy != 0 {
		t.Errorf("status %02X", s)
	}
	if img.HasChanged() {
		t.Errorf("protected image changed")
	}
}

func TestNotFound(t *testing.T) {
	img := formatImage(t, disk.LayoutSD, 1, 1)
	c, cpu := newController(t, Options{}, img, false)

	setRegister(c, AddrSectorWrite, 20)
	command(c, 0x88)
	if s := status(c); s&StatusNotFound == 0 || s&StatusBusy != 0 {
		t.Errorf("status %02X", s)
	}
	if cpu.stalled != 0 {
		t.Errorf("stalled without transfer enable")
	}

	c.WriteCRU(CRUTransferEnable, true)
	command(c, 0x88)
	if cpu.stalled != 2*DefaultClocksPerRev {
		t.Errorf("stalled %d clocks, want %d", cpu.stalled, 2*DefaultClocksPerRev)
	}

	// No drive selected.
	c.WriteCRU(CRUDrive1, false)
	setRegister(c, AddrSectorWrite, 1)
	command(c, 0x88)
	if s := status(c); s&StatusNotFound == 0 || s&StatusNotReady == 0 {
		t.Errorf("status without a drive %02X", s)
	}
}

func TestIndexPulse(t *testing.T) {
	img := formatImage(t, disk.LayoutSD, 1, 1)
	c, cpu := newController(t, Options{}, img, false)
	command(c, 0x00)

	if s := status(c); s&StatusIndex == 0 {
		t.Errorf("no index pulse at the start of a revolution")
	}
	cpu.clock = DefaultClocksPerRev / 2
	if s := status(c); s&StatusIndex != 0 {
		t.Errorf("index pulse in the middle of a revolution")
	}
	cpu.clock = 3*DefaultClocksPerRev + 1
	if s := status(c); s&StatusIndex == 0 {
		t.Errorf("no index pulse after three revolutions")
	}
}

func TestCRU(t *testing.T) {
	c := New(&fakeCPU{}, Options{})

	c.WriteCRU(CRUDrive2, true)
	for bit, want := range []bool{false, false, true, false, false, false, true, false} {
		if got := c.ReadCRU(bit); got != want {
			t.Errorf("input bit %d = %v, want %v", bit, got, want)
		}
	}

	c.WriteCRU(CRUSide, true)
	c.WriteCRU(CRUHeadLoad, true)
	c.WriteCRU(CRUMotor, true)
	if !c.ReadCRU(7) || !c.ReadCRU(0) || !c.ReadCRU(4) {
		t.Errorf("side, head load or motor not reflected")
	}
	if c.headSelect != 1 {
		t.Errorf("head %d", c.headSelect)
	}
	command(c, 0x00)
	if s := status(c); s&StatusHeadLoaded == 0 || s&StatusNotReady == 0 {
		t.Errorf("status %02X", s)
	}

	c.WriteCRU(CRUDrive2, false)
	if c.driveSelect != 0 || c.ReadCRU(2) {
		t.Errorf("drive still selected")
	}
}

func TestInsertEject(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "disk.dsk")
	if err := formatImage(t, disk.LayoutSD, 2, 1).SaveAs(filename, &pc99.Serializer{}); err != nil {
		t.Fatalf("SaveAs() error: %v", err)
	}
	img, err := disk.Open(filename)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	c, _ := newController(t, Options{}, img, false)
	if err := c.Insert(4, img, false); err == nil {
		t.Errorf("Insert() into drive 4 succeeded")
	}
	seek(c, 1)
	setRegister(c, AddrSectorWrite, 8)
	command(c, 0xA8)
	writeBytes(c, bytes.Repeat([]byte{0x5A}, 256))

	if err := c.Eject(1); err != nil {
		t.Fatalf("Eject() error: %v", err)
	}
	if c.Image(1) != nil {
		t.Errorf("drive not empty after eject")
	}

	reopened, err := disk.Open(filename)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	sector := reopened.GetTrack(1, 0).GetSector(1, 0, 8)
	if sector == nil || !bytes.Equal(sector.Read(), bytes.Repeat([]byte{0x5A}, 256)) {
		t.Errorf("written sector not saved")
	}
}
