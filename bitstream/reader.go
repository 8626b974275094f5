package bitstream

// Order selects which end of a byte is consumed first.
type Order int

const (
	LSBFirst Order = iota // bit 0 first, as stored in HFE v1 track data
	MSBFirst              // bit 7 first
)

// Read bits sequentially from a byte buffer.
// In skip mode every logical bit is recorded as two physical bits,
// which halves the effective bit density of the stream.
type Reader struct {
	data      []byte
	order     Order
	skip      bool
	mask      byte // selects the physical bit(s) of one logical bit
	step      int  // physical bits per logical bit
	bitOffset int  // current physical bit position
	totalBits int  // physical bits in data
	current   byte // byte holding bitOffset
}

// Create a new bit reader over data.
func NewReader(data []byte, order Order, skip bool) *Reader {
	r := &Reader{
		data:      data,
		order:     order,
		skip:      skip,
		step:      1,
		totalBits: len(data) * 8,
	}
	switch {
	case order == LSBFirst && skip:
		r.mask = 0x03
	case order == LSBFirst:
		r.mask = 0x01
	case skip:
		r.mask = 0xC0
	default:
		r.mask = 0x80
	}
	if skip {
		r.step = 2
	}
	if len(data) > 0 {
		r.current = data[0]
	}
	return r
}

// Next returns the next logical bit.
// The second result is false once the stream is exhausted.
func (r *Reader) Next() (byte, bool) {
	if r.bitOffset+r.step > r.totalBits {
		return 0, false
	}

	index := uint(r.bitOffset & 7)
	var bit byte
	if r.order == LSBFirst {
		bit = (r.current >> index) & r.mask
	} else {
		bit = (r.current << index) & r.mask
	}

	r.bitOffset += r.step
	if r.bitOffset&7 == 0 && r.bitOffset < r.totalBits {
		r.current = r.data[r.bitOffset/8]
	}

	if bit != 0 {
		return 1, true
	}
	return 0, true
}

// Seek moves the cursor to a logical bit offset.
// Seeking past the end leaves the cursor at the end and returns false.
func (r *Reader) Seek(offset int) bool {
	physical := offset * r.step
	if offset < 0 || physical > r.totalBits {
		r.bitOffset = r.totalBits
		return false
	}
	r.bitOffset = physical
	if r.bitOffset < r.totalBits {
		r.current = r.data[r.bitOffset/8]
	}
	return true
}

// Offset returns the current logical bit position.
func (r *Reader) Offset() int {
	return r.bitOffset / r.step
}

// Size returns the logical length of the stream in bits.
func (r *Reader) Size() int {
	return r.totalBits / r.step
}

// Remaining returns the number of logical bits left to read.
func (r *Reader) Remaining() int {
	return r.Size() - r.Offset()
}

// Skip reports whether the stream is double-sampled.
func (r *Reader) Skip() bool {
	return r.skip
}
