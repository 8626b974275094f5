package disk

import (
	log "github.com/sirupsen/logrus"
)

// Track holds the decoded contents of one side of one cylinder:
// the byte buffer, the offsets of the address marks within it,
// and the sectors located from them.
type Track struct {
	format  Format
	dirty   bool
	clock   []int  // offsets of address mark bytes
	data    []byte // decoded bytes, including gaps
	sectors []Sector
}

// NewTrack returns an unformatted track.
func NewTrack() *Track {
	return &Track{}
}

// Format returns the recording density of the track.
func (t *Track) Format() Format {
	return t.format
}

// Data returns the track buffer. The caller must not modify it.
func (t *Track) Data() []byte {
	return t.data
}

// Clock returns the offsets of the address marks.
func (t *Track) Clock() []int {
	return t.clock
}

// Size returns the length of the track buffer in bytes.
func (t *Track) Size() int {
	return len(t.data)
}

// UsedSize returns the offset just past the last sector or mark.
// Everything after it is trailing gap.
func (t *Track) UsedSize() int {
	used := 0
	if n := len(t.clock); n > 0 {
		used = t.clock[n-1] + 1
	}
	if n := len(t.sectors); n > 0 {
		s := &t.sectors[n-1]
		used = max(used, s.data+1+s.Size()+2)
	}
	return min(used, len(t.data))
}

// IsChanged reports whether the track was modified since last saved.
func (t *Track) IsChanged() bool {
	return t.dirty
}

// ClearChanged marks the track as saved.
func (t *Track) ClearChanged() {
	t.dirty = false
}

// NumSectors returns the number of sectors located on the track.
func (t *Track) NumSectors() int {
	return len(t.sectors)
}

// Sector returns the i-th sector in the order it appears on the track.
func (t *Track) Sector(i int) *Sector {
	return &t.sectors[i]
}

// GetSector finds a sector by its ID field, or returns nil.
// A value of -1 matches anything. When the ID is duplicated,
// the one nearest the start of the track wins.
func (t *Track) GetSector(cylinder, head, sector int) *Sector {
	for i := range t.sectors {
		if t.sectors[i].Matches(cylinder, head, sector) {
			return &t.sectors[i]
		}
	}
	return nil
}

// RawWrite replaces the contents of the track with already decoded data.
// The track is not marked as changed.
func (t *Track) RawWrite(format Format, clock []int, data []byte) {
	t.format = format
	t.clock = clock
	t.data = data
	t.LocateSectors()
}

// Write replaces the track with the byte stream of a Write Track command.
// Special bytes are translated the way the controller does it:
// in FM, F8-FE are address marks and F7 writes two CRC bytes;
// in MFM, F5 writes A1 and presets the CRC, F6 writes C2
// and F7 writes two CRC bytes.
func (t *Track) Write(format Format, stream []byte) {
	data := make([]byte, 0, len(stream)+64)
	var clock []int
	crc := uint16(0xFFFF)

	if format == FormatMFM {
		inSync := false
		for _, b := range stream {
			switch b {
			case TokenSyncA1:
				if !inSync {
					crc = 0xFFFF
				}
				inSync = true
				data = append(data, SyncA1)
				crc = UpdateCRC(crc, []byte{SyncA1})
				continue
			case TokenSyncC2:
				inSync = true
				data = append(data, SyncC2)
				continue
			case TokenCRC:
				data = append(data, byte(crc>>8), byte(crc))
				inSync = false
				continue
			}
			if inSync {
				clock = append(clock, len(data))
				inSync = false
			}
			data = append(data, b)
			crc = UpdateCRC(crc, []byte{b})
		}
	} else {
		for _, b := range stream {
			switch {
			case b == TokenCRC:
				data = append(data, byte(crc>>8), byte(crc))
				continue
			case IsAddressMark(b):
				clock = append(clock, len(data))
				crc = 0xFFFF
			}
			data = append(data, b)
			crc = UpdateCRC(crc, []byte{b})
		}
	}

	t.format = format
	t.clock = clock
	t.data = data
	t.dirty = true
	t.LocateSectors()
}

// Clear turns the track into an unformatted one.
func (t *Track) Clear() {
	if t.format != FormatUnknown || len(t.data) > 0 {
		t.dirty = true
	}
	t.format = FormatUnknown
	t.clock = nil
	t.data = nil
	t.sectors = nil
}

// LocateSectors rebuilds the sector list by pairing each ID mark
// with the data mark that follows it closely enough.
// An ID mark not followed by data is skipped.
func (t *Track) LocateSectors() {
	t.sectors = nil

	threshold := t.format.MaxIDToData()
	pending := -1
	for _, offset := range t.clock {
		if offset < 0 || offset >= len(t.data) {
			continue
		}
		mark := t.data[offset]
		switch {
		case mark == MarkID:
			if pending >= 0 {
				log.Debugf("orphan ID field at offset %d", pending)
			}
			pending = offset
			if pending+idFieldSize+2 > len(t.data) {
				pending = -1
			}

		case IsDataMark(mark):
			if pending < 0 {
				continue
			}
			if offset-pending <= threshold {
				s := Sector{track: t, id: pending, data: offset}
				if offset+1+s.Size()+2 <= len(t.data) {
					t.sectors = append(t.sectors, s)
				}
			} else {
				log.Debugf("orphan ID field at offset %d", pending)
			}
			pending = -1
		}
	}
}

// VerifyID checks the CRC of the ID field of a sector.
func (t *Track) VerifyID(s *Sector) bool {
	end := s.id + idFieldSize
	crc := FieldCRC(t.format, t.data[s.id:end])
	return t.data[end] == byte(crc>>8) && t.data[end+1] == byte(crc)
}

// VerifyData checks the CRC of the data field of a sector.
func (t *Track) VerifyData(s *Sector) bool {
	end := s.data + 1 + s.Size()
	crc := FieldCRC(t.format, t.data[s.data:end])
	return t.data[end] == byte(crc>>8) && t.data[end+1] == byte(crc)
}

// DataModified recomputes the data CRC of a sector and marks the track as changed.
func (t *Track) DataModified(s *Sector) {
	end := s.data + 1 + s.Size()
	crc := FieldCRC(t.format, t.data[s.data:end])
	t.data[end] = byte(crc >> 8)
	t.data[end+1] = byte(crc)
	t.dirty = true
}

// FixPlaceholderCRCs replaces F7 F7 placeholders after ID and data fields
// with the real CRC values. Return the number of fields fixed.
// The track is not marked as changed.
func (t *Track) FixPlaceholderCRCs() int {
	fixed := 0
	fix := func(start, end int) {
		if t.data[end] != PlaceholderCRC || t.data[end+1] != PlaceholderCRC {
			return
		}
		crc := FieldCRC(t.format, t.data[start:end])
		t.data[end] = byte(crc >> 8)
		t.data[end+1] = byte(crc)
		fixed++
	}
	for i := range t.sectors {
		s := &t.sectors[i]
		fix(s.id, s.id+idFieldSize)
		fix(s.data, s.data+1+s.Size())
	}
	return fixed
}

// ZapCRC returns a copy of the track buffer with every ID and data CRC
// replaced by the F7 F7 placeholder.
func (t *Track) ZapCRC() []byte {
	data := make([]byte, len(t.data))
	copy(data, t.data)
	for i := range t.sectors {
		s := &t.sectors[i]
		for _, end := range []int{s.id + idFieldSize, s.data + 1 + s.Size()} {
			data[end] = PlaceholderCRC
			data[end+1] = PlaceholderCRC
		}
	}
	return data
}
