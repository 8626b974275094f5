package codec

import (
	"github.com/sergev/ti99disk/bitstream"
)

// MFM sync words: A1 and C2 with a missing clock bit.
// The top cell depends on the previous byte and is not compared.
const (
	mfmSyncMask = 0x7FFF
	mfmSyncA1   = 0x4489
	mfmSyncC2   = 0x5224
)

type mfmRules struct{}

func (mfmRules) sync(word uint32, peek func(n int) uint32) (int, bool) {
	switch word & mfmSyncMask {
	case mfmSyncA1:
		return ClockMFMA1, true
	case mfmSyncC2:
		// The cells of 00 A1 hold the C2 pattern five cells before
		// the A1 completes, out of phase with the data.
		if peek(5)&mfmSyncMask == mfmSyncA1 {
			return NoClock, false
		}
		return ClockMFMC2, true
	}
	return NoClock, false
}

// After each data cell the last three cells (previous data, clock, data)
// must be one of 010, 001, 100 or 101.
func (mfmRules) lostClock(word uint32, cell int) bool {
	if cell&1 == 0 {
		return false
	}
	switch word & 7 {
	case 2, 1, 4, 5:
		return false
	}
	return true
}

// DecodeMFM decodes an MFM cell stream into fragments.
// Every A1/C2 sync byte starts a fragment of its own.
func DecodeMFM(r *bitstream.Reader) []Fragment {
	d := &decoder{rules: mfmRules{}, stream: r}
	return d.run()
}

// EncodeMFM writes fragments as MFM cells.
// The first byte of a synchronized fragment takes its clock bits from the
// fragment; everywhere else a clock is written only between two zero bits.
func EncodeMFM(w *bitstream.Writer, fragments []Fragment) {
	var prev byte
	for _, fragment := range fragments {
		if w.Offset() < fragment.Start {
			prev = Fill(w, fragment.Start)
		}
		for i, b := range fragment.Data {
			explicit := i == 0 && fragment.Clock != NoClock
			for bit := 7; bit >= 0; bit-- {
				data := b >> uint(bit) & 1
				var clock byte
				if explicit {
					clock = byte(fragment.Clock) >> uint(bit) & 1
				} else if prev == 0 && data == 0 {
					clock = 1
				}
				w.WriteBit(clock)
				w.WriteBit(data)
				prev = data
			}
		}
	}
}
