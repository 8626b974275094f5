// Package codec converts between raw FM/MFM cell streams and fragments:
// runs of bytes decoded under one synchronization state.
package codec

import (
	"github.com/sergev/ti99disk/bitstream"
	"github.com/sergev/ti99disk/disk"
)

// NoClock marks a fragment recovered without a confirmed sync pattern.
const NoClock = -1

// Fragment is a maximal run of bytes read under one synchronization state.
// Start and End are logical bit offsets in the encoded stream.
type Fragment struct {
	Start int
	End   int
	Clock int // clock byte of the first byte, or NoClock
	Data  []byte
}

// Clock bytes of the address marks
const (
	ClockFMMark  = 0xC7 // FM ID and data marks
	ClockFMIndex = 0xD7 // FM index mark
	ClockMFMA1   = 0x0A // A1 with missing clock between bits 3 and 2
	ClockMFMC2   = 0x14 // C2 with missing clock between bits 4 and 3
)

// Decode a cell stream with the decoder matching the track format.
func Decode(format disk.Format, r *bitstream.Reader) []Fragment {
	switch format {
	case disk.FormatFM:
		return DecodeFM(r)
	case disk.FormatMFM:
		return DecodeMFM(r)
	}
	return nil
}

// Encode fragments with the encoder matching the track format.
func Encode(format disk.Format, w *bitstream.Writer, fragments []Fragment) {
	switch format {
	case disk.FormatFM:
		EncodeFM(w, fragments)
	case disk.FormatMFM:
		EncodeMFM(w, fragments)
	}
}

// collapse extracts every other bit of a 16-cell word: the data bits.
// Shift the word right by one first to get the clock bits.
func collapse(word uint32) byte {
	var result byte
	for i := 7; i >= 0; i-- {
		result <<= 1
		result |= byte(word>>(2*uint(i))) & 1
	}
	return result
}
