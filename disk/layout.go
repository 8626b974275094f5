package disk

// Layout describes how a track is formatted.
type Layout struct {
	Format     Format
	Sectors    int  // sectors per track
	Interleave int  // distance between logically consecutive sectors
	Fill       byte // initial contents of data fields
}

// Standard layouts of TI disks
var (
	LayoutSD = Layout{Format: FormatFM, Sectors: 9, Interleave: 7, Fill: 0xE5}
	LayoutDD = Layout{Format: FormatMFM, Sectors: 18, Interleave: 11, Fill: 0xE5}
)

// SectorOrder returns sector numbers in the order they appear on the track.
func (l Layout) SectorOrder() []int {
	order := make([]int, 0, l.Sectors)
	used := make([]bool, l.Sectors)
	s := 0
	for len(order) < l.Sectors {
		for used[s] {
			s = (s + 1) % l.Sectors
		}
		order = append(order, s)
		used[s] = true
		s = (s + l.Interleave) % l.Sectors
	}
	return order
}

// TrackStream builds the byte stream a formatting program sends to a
// Write Track command. The stream is padded with gap bytes so that
// it fills exactly the nominal track length once written.
func (l Layout) TrackStream(cylinder, head int) []byte {
	var stream []byte
	put := func(b byte, n int) {
		for i := 0; i < n; i++ {
			stream = append(stream, b)
		}
	}
	id := []byte{MarkID, byte(cylinder), byte(head), 0, 1, TokenCRC}
	gap := l.Format.GapByte()

	if l.Format == FormatMFM {
		put(gap, 40)
		for _, s := range l.SectorOrder() {
			id[3] = byte(s)
			put(0x00, 10)
			put(TokenSyncA1, 3)
			stream = append(stream, id...)
			put(gap, 22)
			put(0x00, 12)
			put(TokenSyncA1, 3)
			stream = append(stream, MarkData)
			put(l.Fill, 256)
			stream = append(stream, TokenCRC)
			put(gap, 24)
		}
	} else {
		put(gap, 16)
		for _, s := range l.SectorOrder() {
			id[3] = byte(s)
			put(0x00, 6)
			stream = append(stream, id...)
			put(gap, 11)
			put(0x00, 6)
			stream = append(stream, MarkData)
			put(l.Fill, 256)
			stream = append(stream, TokenCRC)
			put(gap, 45)
		}
	}

	if n := l.Format.TrackSize() - StreamLength(stream); n > 0 {
		put(gap, n)
	}
	return stream
}

// StreamLength returns the number of bytes a Write Track stream
// produces on the track: each CRC token expands to two bytes.
func StreamLength(stream []byte) int {
	n := 0
	for _, b := range stream {
		if b == TokenCRC {
			n += 2
		} else {
			n++
		}
	}
	return n
}
