package bitstream

// Write bits sequentially into a growing byte buffer.
// The layout matches what Reader expects for the same order and skip mode.
type Writer struct {
	buffer    []byte
	order     Order
	skip      bool
	bitOffset int // physical bit position
}

// Create a new bit writer.
func NewWriter(order Order, skip bool) *Writer {
	return &Writer{
		buffer: make([]byte, 0, 1024),
		order:  order,
		skip:   skip,
	}
}

// Write one physical bit.
func (w *Writer) writePhysical(bit byte) {
	if w.bitOffset/8 >= len(w.buffer) {
		w.buffer = append(w.buffer, 0)
	}
	if bit != 0 {
		index := uint(w.bitOffset & 7)
		if w.order == LSBFirst {
			w.buffer[w.bitOffset/8] |= 1 << index
		} else {
			w.buffer[w.bitOffset/8] |= 0x80 >> index
		}
	}
	w.bitOffset++
}

// WriteBit appends one logical bit.
func (w *Writer) WriteBit(bit byte) {
	w.writePhysical(bit)
	if w.skip {
		w.writePhysical(bit)
	}
}

// Offset returns the number of logical bits written so far.
func (w *Writer) Offset() int {
	if w.skip {
		return w.bitOffset / 2
	}
	return w.bitOffset
}

// Bytes returns the encoded buffer. A partial last byte is zero padded.
func (w *Writer) Bytes() []byte {
	return w.buffer
}
