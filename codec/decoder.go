package codec

import (
	"github.com/sergev/ti99disk/bitstream"
)

// Encoding-specific rules of the decoder.
type syncRules interface {
	// sync returns the clock byte when the last 16 cells form an address mark.
	// peek returns the register as it would be n cells later.
	sync(word uint32, peek func(n int) uint32) (int, bool)

	// lostClock reports a clock violation after cell number cell (0..15)
	// of the current byte has been shifted in.
	lostClock(word uint32, cell int) bool
}

// Shared fragment decoder for FM and MFM.
type decoder struct {
	rules     syncRules
	stream    *bitstream.Reader
	word      uint32 // last 16 cells
	shifted   int    // cells shifted in so far
	lastEnd   int    // end of the previous fragment
	fragments []Fragment
}

// Shift one cell into the register.
// Return false at the end of the stream.
func (d *decoder) shift() bool {
	bit, ok := d.stream.Next()
	if !ok {
		return false
	}
	d.word = (d.word<<1 | uint32(bit)) & 0xFFFF
	d.shifted++
	return true
}

// Hunt bit by bit for the next address mark.
// The register has to be primed with 16 cells before any match counts.
func (d *decoder) hunt() (int, bool) {
	for {
		if !d.shift() {
			return NoClock, false
		}
		if d.shifted < 16 {
			continue
		}
		if clock, ok := d.rules.sync(d.word, d.peek); ok {
			return clock, true
		}
	}
}

// Return the register shifted by n more cells without consuming them.
func (d *decoder) peek(n int) uint32 {
	resume := d.stream.Offset()
	word := d.word
	for i := 0; i < n; i++ {
		bit, ok := d.stream.Next()
		if !ok {
			break
		}
		word = (word<<1 | uint32(bit)) & 0xFFFF
	}
	d.stream.Seek(resume)
	return word
}

// Decode the whole stream into an ordered list of fragments.
func (d *decoder) run() []Fragment {
	for {
		clock, ok := d.hunt()
		if !ok {
			return d.fragments
		}

		markStart := d.stream.Offset() - 16
		d.trimOverlap(markStart)
		d.recoverFragment(markStart)

		fragment := Fragment{
			Start: markStart,
			Clock: clock,
			Data:  []byte{collapse(d.word)},
		}

		lost := false
		for !lost {
			for cell := 0; cell < 16; cell++ {
				if !d.shift() {
					d.finish(&fragment)
					return d.fragments
				}
				if d.rules.lostClock(d.word, cell) {
					lost = true
					break
				}
			}
			if !lost {
				fragment.Data = append(fragment.Data, collapse(d.word))
			}
		}

		// Partial byte is dropped; hunting continues from here.
		d.finish(&fragment)
	}
}

// Close the fragment at its last complete byte.
func (d *decoder) finish(fragment *Fragment) {
	fragment.End = fragment.Start + 16*len(fragment.Data)
	d.fragments = append(d.fragments, *fragment)
	d.lastEnd = fragment.End
}

// A mark may start inside the last byte of the previous fragment,
// when hunting resumes with cells of that byte still in the register.
// Cut the previous fragment back to whole bytes before the mark.
func (d *decoder) trimOverlap(markStart int) {
	for d.lastEnd > markStart {
		last := len(d.fragments) - 1
		prev := &d.fragments[last]
		keep := (markStart - prev.Start) / 16
		if keep > 0 {
			prev.Data = prev.Data[:keep]
			prev.End = prev.Start + 16*keep
			d.lastEnd = prev.End
			continue
		}
		d.fragments = d.fragments[:last]
		d.lastEnd = 0
		if last > 0 {
			d.lastEnd = d.fragments[last-1].End
		}
	}
}

// Recover the bytes between the previous fragment and a new mark
// by reading them at 16-cell boundaries aligned to the mark.
func (d *decoder) recoverFragment(markStart int) {
	count := (markStart - d.lastEnd) / 16
	if count <= 0 {
		return
	}

	start := markStart - 16*count
	resume := d.stream.Offset()
	if !d.stream.Seek(start) {
		d.stream.Seek(resume)
		return
	}

	data := make([]byte, count)
	for i := range data {
		var word uint32
		for cell := 0; cell < 16; cell++ {
			bit, _ := d.stream.Next()
			word = word<<1 | uint32(bit)
		}
		data[i] = collapse(word)
	}
	d.stream.Seek(resume)

	d.fragments = append(d.fragments, Fragment{
		Start: start,
		End:   markStart,
		Clock: NoClock,
		Data:  data,
	})
	d.lastEnd = markStart
}
