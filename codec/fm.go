package codec

import (
	"github.com/sergev/ti99disk/bitstream"
)

// FM address marks: interleaved clock and data cells.
var fmMarks = map[uint32]int{
	interleave(ClockFMMark, 0xFE):  ClockFMMark, // ID address mark
	interleave(ClockFMMark, 0xFB):  ClockFMMark, // data mark
	interleave(ClockFMMark, 0xFA):  ClockFMMark, // user defined data mark
	interleave(ClockFMMark, 0xF9):  ClockFMMark, // user defined data mark
	interleave(ClockFMMark, 0xF8):  ClockFMMark, // deleted data mark
	interleave(ClockFMIndex, 0xFC): ClockFMIndex, // index mark
}

type fmRules struct{}

func (fmRules) sync(word uint32, _ func(int) uint32) (int, bool) {
	clock, ok := fmMarks[word]
	return clock, ok
}

// FM clock cells are always set outside of address marks.
func (fmRules) lostClock(word uint32, cell int) bool {
	return cell&1 == 0 && word&1 == 0
}

// DecodeFM decodes an FM cell stream into fragments.
func DecodeFM(r *bitstream.Reader) []Fragment {
	d := &decoder{rules: fmRules{}, stream: r}
	return d.run()
}

// EncodeFM writes fragments as FM cells.
// Gaps between fragments are filled with alternating cells.
func EncodeFM(w *bitstream.Writer, fragments []Fragment) {
	for _, fragment := range fragments {
		Fill(w, fragment.Start)
		for i, b := range fragment.Data {
			clock := byte(0xFF)
			if i == 0 && fragment.Clock != NoClock {
				clock = byte(fragment.Clock)
			}
			for bit := 7; bit >= 0; bit-- {
				w.WriteBit(clock >> uint(bit) & 1)
				w.WriteBit(b >> uint(bit) & 1)
			}
		}
	}
}

// interleave merges clock and data bytes into a 16-cell word, clock first.
func interleave(clock, data byte) uint32 {
	var word uint32
	for bit := 7; bit >= 0; bit-- {
		word = word<<1 | uint32(clock>>uint(bit)&1)
		word = word<<1 | uint32(data>>uint(bit)&1)
	}
	return word
}

// Fill writes alternating filler cells up to the given logical offset.
// Return the last cell written, or 0 when nothing was needed.
func Fill(w *bitstream.Writer, offset int) byte {
	var last byte
	for cell := byte(1); w.Offset() < offset; cell ^= 1 {
		w.WriteBit(cell)
		last = cell
	}
	return last
}
