// Package pc99 stores disk images as raw track dumps, the format used by
// the PC99 emulator: the decoded bytes of every track one after another,
// without a header, with CRCs replaced by F7 F7 placeholders.
package pc99

import (
	"io"

	"github.com/sergev/ti99disk/disk"
)

// Largest track accepted when scanning a file.
const maxTrackSize = disk.TrackSizeMFM * 6 / 5

// Bytes inspected by MatchesFormat.
const detectSize = 64

// Serializer reads and writes PC99 track dumps.
type Serializer struct{}

func init() {
	disk.RegisterSerializer(20, &Serializer{})
}

func (s *Serializer) Name() string {
	return "PC99"
}

func (s *Serializer) Extensions() []string {
	return []string{".pc99", ".dsk"}
}

// MatchesFormat looks for an address mark near the start of the file.
func (s *Serializer) MatchesFormat(r io.ReadSeeker) bool {
	buf := make([]byte, detectSize)
	n, _ := io.ReadFull(r, buf)
	buf = buf[:n]
	offset, _ := FindAddressMark(buf, 0)
	return offset < len(buf)
}

// SupportsFeatures reports the capabilities of the format.
// Every track carries its own density.
func (s *Serializer) SupportsFeatures(f disk.Feature) bool {
	const supported = disk.FeatureFM | disk.FeatureMFM | disk.FeatureMixedDensity | disk.FeatureWrite
	return f&^supported == 0
}

// FindAddressMark scans buf from start for an address mark with a zero
// lead-in: in MFM three A1 (or C2 before an index mark) sync bytes
// followed by the mark, in FM the mark itself.
// It returns the offset of the mark byte and the density,
// or len(buf) when there is none.
func FindAddressMark(buf []byte, start int) (int, disk.Format) {
	for i := max(start, 1); i < len(buf); i++ {
		if buf[i-1] != 0x00 {
			continue
		}
		if offset, ok := mfmMark(buf, i); ok {
			return offset, disk.FormatMFM
		}
		if disk.IsAddressMark(buf[i]) {
			return i, disk.FormatFM
		}
	}
	return len(buf), disk.FormatUnknown
}

// mfmMark checks for a sync run and a matching mark at offset i.
func mfmMark(buf []byte, i int) (int, bool) {
	if i+3 >= len(buf) {
		return 0, false
	}
	sync := buf[i]
	if sync != disk.SyncA1 && sync != disk.SyncC2 {
		return 0, false
	}
	if buf[i+1] != sync || buf[i+2] != sync {
		return 0, false
	}
	mark := buf[i+3]
	if sync == disk.SyncC2 {
		return i + 3, mark == disk.MarkIndex
	}
	return i + 3, mark == disk.MarkID || disk.IsDataMark(mark)
}
