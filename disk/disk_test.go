package disk

import (
	"bytes"
	"testing"
)

func TestCRC(t *testing.T) {
	if got := UpdateCRC(0xFFFF, []byte("123456789")); got != 0x29B1 {
		t.Errorf("CRC of check string = %#04x, want 0x29b1", got)
	}
	if got := mfmPreset(); got != 0xCDB4 {
		t.Errorf("MFM preset = %#04x, want 0xcdb4", got)
	}
	if got := FieldCRC(FormatMFM, []byte{MarkID}); got != 0xB230 {
		t.Errorf("MFM ID mark CRC = %#04x, want 0xb230", got)
	}
}

func TestSectorOrder(t *testing.T) {
	tests := []struct {
		layout Layout
		want   []int
	}{
		{LayoutSD, []int{0, 7, 5, 3, 1, 8, 6, 4, 2}},
		{LayoutDD, []int{0, 11, 4, 15, 8, 1, 12, 5, 16, 9, 2, 13, 6, 17, 10, 3, 14, 7}},
		{Layout{Format: FormatFM, Sectors: 4, Interleave: 2}, []int{0, 2, 1, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.layout.Format.String(), func(t *testing.T) {
			got := tt.layout.SectorOrder()
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

// formatTrack builds a freshly formatted track.
func formatTrack(t *testing.T, layout Layout, cylinder, head int) *Track {
	t.Helper()
	track := NewTrack()
	track.Write(layout.Format, layout.TrackStream(cylinder, head))
	return track
}

func TestWriteTrack(t *testing.T) {
	tests := []struct {
		layout Layout
		size   int
	}{
		{LayoutSD, TrackSizeFM},
		{LayoutDD, TrackSizeMFM},
	}
	for _, tt := range tests {
		t.Run(tt.layout.Format.String(), func(t *testing.T) {
			track := formatTrack(t, tt.layout, 5, 1)
			if track.Format() != tt.layout.Format {
				t.Errorf("format = %v", track.Format())
			}
			if track.Size() != tt.size {
				t.Errorf("size = %d, want %d", track.Size(), tt.size)
			}
			if !track.IsChanged() {
				t.Errorf("formatted track is not marked as changed")
			}
			if track.NumSectors() != tt.layout.Sectors {
				t.Fatalf("found %d sectors, want %d", track.NumSectors(), tt.layout.Sectors)
			}
			order := tt.layout.SectorOrder()
			for i := 0; i < track.NumSectors(); i++ {
				s := track.Sector(i)
				if s.Cylinder() != 5 || s.Head() != 1 || s.Number() != order[i] {
					t.Errorf("sector %d: ID %d/%d/%d", i, s.Cylinder(), s.Head(), s.Number())
				}
				if s.Size() != 256 {
					t.Errorf("sector %d: size %d", i, s.Size())
				}
				if s.DataMark() != MarkData {
					t.Errorf("sector %d: data mark %#02x", i, s.DataMark())
				}
				if !s.ValidID() || !s.ValidData() {
					t.Errorf("sector %d: bad CRC", i)
				}
				if !bytes.Equal(s.Read(), bytes.Repeat([]byte{0xE5}, 256)) {
					t.Errorf("sector %d: unexpected contents", i)
				}
			}
		})
	}
}

func TestMFMMarkOffsets(t *testing.T) {
	track := formatTrack(t, LayoutDD, 0, 0)
	for _, offset := range track.Clock() {
		if !IsAddressMark(track.Data()[offset]) {
			t.Fatalf("offset %d holds %#02x", offset, track.Data()[offset])
		}
		if track.Data()[offset-1] != SyncA1 {
			t.Fatalf("mark at %d not preceded by sync", offset)
		}
	}
}

func TestSectorWrite(t *testing.T) {
	track := formatTrack(t, LayoutSD, 0, 0)
	track.ClearChanged()
	s := track.GetSector(0, 0, 3)
	if s == nil {
		t.Fatal("sector 3 not found")
	}

	if s.Write(MarkData, bytes.Repeat([]byte{0xE5}, 256)) {
		t.Errorf("identical write reported a change")
	}
	if track.IsChanged() {
		t.Errorf("identical write marked the track as changed")
	}

	if !s.Write(MarkDeleted, []byte{1, 2, 3}) {
		t.Errorf("write reported no change")
	}
	if !track.IsChanged() {
		t.Errorf("track is not marked as changed")
	}
	if !s.ValidData() {
		t.Errorf("data CRC was not updated")
	}
	if s.DataMark() != MarkDeleted {
		t.Errorf("data mark = %#02x", s.DataMark())
	}
	want := append([]byte{1, 2, 3}, bytes.Repeat([]byte{0xFF}, 253)...)
	if !bytes.Equal(s.Read(), want) {
		t.Errorf("short buffer was not padded")
	}
}

func TestCorruption(t *testing.T) {
	track := formatTrack(t, LayoutSD, 0, 0)
	s := track.GetSector(-1, -1, 0)
	data := track.Data()

	data[s.data+10] ^= 0x01
	if s.ValidData() {
		t.Errorf("corrupted data passed CRC check")
	}
	if !s.ValidID() {
		t.Errorf("ID field affected by data corruption")
	}

	data[s.id+3] ^= 0x01
	if s.ValidID() {
		t.Errorf("corrupted ID passed CRC check")
	}
}

func TestGetSector(t *testing.T) {
	track := formatTrack(t, LayoutSD, 2, 0)
	tests := []struct {
		cylinder, head, sector int
		found                  bool
	}{
		{2, 0, 8, true},
		{-1, -1, 4, true},
		{-1, -1, -1, true},
		{3, 0, 1, false},
		{2, 1, 1, false},
		{2, 0, 9, false},
	}
	for _, tt := range tests {
		s := track.GetSector(tt.cylinder, tt.head, tt.sector)
		if (s != nil) != tt.found {
			t.Errorf("GetSector(%d, %d, %d) = %v", tt.cylinder, tt.head, tt.sector, s)
		}
		if s != nil && tt.sector >= 0 && s.Number() != tt.sector {
			t.Errorf("GetSector(%d, %d, %d) returned sector %d", tt.cylinder, tt.head, tt.sector, s.Number())
		}
	}

	// Wildcard returns the sector nearest the start.
	if s := track.GetSector(-1, -1, -1); s.Number() != 0 {
		t.Errorf("first sector is %d", s.Number())
	}
}

func TestOrphanID(t *testing.T) {
	var stream []byte
	stream = append(stream, bytes.Repeat([]byte{0xFF}, 16)...)
	stream = append(stream, MarkID, 0, 0, 1, 1, TokenCRC)
	stream = append(stream, bytes.Repeat([]byte{0xFF}, 60)...)
	stream = append(stream, MarkData)
	stream = append(stream, bytes.Repeat([]byte{0x00}, 256)...)
	stream = append(stream, TokenCRC)
	stream = append(stream, bytes.Repeat([]byte{0xFF}, 16)...)

	track := NewTrack()
	track.Write(FormatFM, stream)
	if track.NumSectors() != 0 {
		t.Errorf("data mark too far from ID produced a sector")
	}
	if len(track.Clock()) != 2 {
		t.Errorf("clock = %v", track.Clock())
	}
}

func TestPlaceholderCRC(t *testing.T) {
	original := formatTrack(t, LayoutDD, 1, 0)
	zapped := original.ZapCRC()
	if bytes.Equal(zapped, original.Data()) {
		t.Fatal("CRC bytes were not replaced")
	}

	track := NewTrack()
	track.RawWrite(FormatMFM, original.Clock(), zapped)
	if track.IsChanged() {
		t.Errorf("raw write marked the track as changed")
	}
	if track.Sector(0).ValidID() {
		t.Errorf("placeholder passed CRC check")
	}
	if n := track.FixPlaceholderCRCs(); n != 2*LayoutDD.Sectors {
		t.Errorf("fixed %d fields, want %d", n, 2*LayoutDD.Sectors)
	}
	if !bytes.Equal(track.Data(), original.Data()) {
		t.Errorf("fixed track differs from original")
	}
	if n := track.FixPlaceholderCRCs(); n != 0 {
		t.Errorf("second pass fixed %d fields", n)
	}
}

func TestStreamLength(t *testing.T) {
	if n := StreamLength([]byte{0x00, TokenCRC, 0xFE}); n != 4 {
		t.Errorf("length = %d, want 4", n)
	}
	if n := StreamLength(LayoutSD.TrackStream(0, 0)); n != TrackSizeFM {
		t.Errorf("FM stream length = %d", n)
	}
}

func TestLoadOnDemand(t *testing.T) {
	img := NewImage()
	img.AllocateTracks(40, 2)

	calls := 0
	img.SetLoadOnDemand(func(cylinder, head int, track *Track) error {
		calls++
		track.Write(FormatFM, LayoutSD.TrackStream(cylinder, head))
		track.ClearChanged()
		return nil
	})

	track := img.GetTrack(3, 1)
	if calls != 1 {
		t.Fatalf("loader called %d times", calls)
	}
	if s := track.GetSector(3, 1, 0); s == nil {
		t.Errorf("loaded track has no sector 0")
	}
	img.GetTrack(3, 1)
	if calls != 1 {
		t.Errorf("track was loaded twice")
	}
	if img.GetTrack(40, 0) != nil || img.GetTrack(0, 2) != nil || img.GetTrack(-1, 0) != nil {
		t.Errorf("out of range track returned")
	}
	if img.HasChanged() {
		t.Errorf("image changed after loading")
	}

	track.GetSector(3, 1, 0).Write(MarkData, []byte{0x55})
	if !img.HasChanged() {
		t.Errorf("image not changed after sector write")
	}
	if img.Format() != FormatFM {
		t.Errorf("format = %v", img.Format())
	}
	if img.Features() != FeatureFM {
		t.Errorf("features = %b", img.Features())
	}
}
