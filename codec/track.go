package codec

import (
	"github.com/sergev/ti99disk/disk"
)

// ToTrack concatenates fragment payloads into a track buffer and
// returns the byte offsets of the address marks within it.
// For MFM the recorded offset is the mark byte following the sync run.
func ToTrack(format disk.Format, fragments []Fragment) ([]int, []byte) {
	var clock []int
	var data []byte
	for _, fragment := range fragments {
		base := len(data)
		data = append(data, fragment.Data...)
		if fragment.Clock == NoClock {
			continue
		}
		switch format {
		case disk.FormatFM:
			clock = append(clock, base)
		case disk.FormatMFM:
			if len(fragment.Data) >= 2 {
				clock = append(clock, base+1)
			}
		}
	}
	return clock, data
}

// A point where a new fragment begins.
type split struct {
	offset int
	clock  int
}

// FromTrack splits a track buffer back into contiguous fragments,
// one per address mark (and per MFM sync byte).
func FromTrack(format disk.Format, clock []int, data []byte) []Fragment {
	var splits []split
	switch format {
	case disk.FormatFM:
		splits = splitFM(clock, data)
	case disk.FormatMFM:
		splits = splitMFM(clock, data)
	default:
		return nil
	}

	var fragments []Fragment
	if len(data) == 0 {
		return fragments
	}
	if len(splits) == 0 || splits[0].offset > 0 {
		end := len(data)
		if len(splits) > 0 {
			end = splits[0].offset
		}
		fragments = append(fragments, newFragment(0, end, NoClock, data))
	}
	for i, s := range splits {
		end := len(data)
		if i+1 < len(splits) {
			end = splits[i+1].offset
		}
		fragments = append(fragments, newFragment(s.offset, end, s.clock, data))
	}
	return fragments
}

func newFragment(start, end, clock int, data []byte) Fragment {
	payload := make([]byte, end-start)
	copy(payload, data[start:end])
	return Fragment{
		Start: start * 16,
		End:   end * 16,
		Clock: clock,
		Data:  payload,
	}
}

func splitFM(clock []int, data []byte) []split {
	var splits []split
	last := -1
	for _, offset := range clock {
		if offset <= last || offset >= len(data) || !disk.IsAddressMark(data[offset]) {
			continue
		}
		c := ClockFMMark
		if data[offset] == disk.MarkIndex {
			c = ClockFMIndex
		}
		splits = append(splits, split{offset, c})
		last = offset
	}
	return splits
}

// In MFM each of up to three sync bytes before a mark begins a fragment.
// A mark with no sync byte in front of it cannot be encoded as a mark.
func splitMFM(clock []int, data []byte) []split {
	var splits []split
	boundary := 0
	for _, offset := range clock {
		if offset < boundary || offset >= len(data) || !disk.IsAddressMark(data[offset]) {
			continue
		}
		sync, c := byte(disk.SyncA1), ClockMFMA1
		if data[offset] == disk.MarkIndex {
			sync, c = disk.SyncC2, ClockMFMC2
		}
		first := offset
		for first > boundary && offset-first < 3 && data[first-1] == sync {
			first--
		}
		if first == offset {
			continue
		}
		for k := first; k < offset; k++ {
			splits = append(splits, split{k, c})
		}
		boundary = offset + 1
	}
	return splits
}
