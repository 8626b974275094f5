package disk

// Length of an ID field from the mark to the size code.
// Two CRC bytes follow.
const idFieldSize = 5

// Sector is a view into the buffer of the track it was located on.
// It holds offsets rather than slices, so the track may replace its buffer;
// views are rebuilt whenever the track locates its sectors again.
type Sector struct {
	track *Track
	id    int // offset of the ID address mark
	data  int // offset of the data address mark
}

// Cylinder returns the cylinder number recorded in the ID field.
func (s *Sector) Cylinder() int {
	return int(s.track.data[s.id+1])
}

// Head returns the head number recorded in the ID field.
func (s *Sector) Head() int {
	return int(s.track.data[s.id+2])
}

// Number returns the sector number recorded in the ID field.
func (s *Sector) Number() int {
	return int(s.track.data[s.id+3])
}

// SizeCode returns the raw size code from the ID field.
func (s *Sector) SizeCode() int {
	return int(s.track.data[s.id+4])
}

// Size returns the length of the data field in bytes.
func (s *Sector) Size() int {
	return 128 << (s.SizeCode() & 3)
}

// DataMark returns the address mark of the data field.
func (s *Sector) DataMark() byte {
	return s.track.data[s.data]
}

// IDField returns cylinder, head, sector, size code and the two CRC bytes,
// as delivered by a Read Address command.
func (s *Sector) IDField() []byte {
	field := make([]byte, 6)
	copy(field, s.track.data[s.id+1:s.id+7])
	return field
}

// Read returns a copy of the sector data, without the data mark.
func (s *Sector) Read() []byte {
	data := make([]byte, s.Size())
	copy(data, s.track.data[s.data+1:])
	return data
}

// Write replaces the data mark and contents of the sector.
// Short buffers are padded with 0xFF. The CRC is recomputed
// only when something actually changed; return true in that case.
func (s *Sector) Write(mark byte, buffer []byte) bool {
	size := s.Size()
	field := s.track.data[s.data : s.data+1+size]

	changed := field[0] != mark
	field[0] = mark
	for i := 0; i < size; i++ {
		b := byte(0xFF)
		if i < len(buffer) {
			b = buffer[i]
		}
		if field[1+i] != b {
			field[1+i] = b
			changed = true
		}
	}

	if changed {
		s.track.DataModified(s)
	}
	return changed
}

// ValidID reports whether the ID field CRC is correct.
func (s *Sector) ValidID() bool {
	return s.track.VerifyID(s)
}

// ValidData reports whether the data field CRC is correct.
func (s *Sector) ValidData() bool {
	return s.track.VerifyData(s)
}

// Matches compares the sector identity; -1 matches any value.
func (s *Sector) Matches(cylinder, head, sector int) bool {
	if cylinder != -1 && cylinder != s.Cylinder() {
		return false
	}
	if head != -1 && head != s.Head() {
		return false
	}
	if sector != -1 && sector != s.Number() {
		return false
	}
	return true
}
