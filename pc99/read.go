package pc99

import (
	"bufio"
	"io"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/sergev/ti99disk/disk"
)

// trackInfo is one track found in the file.
type trackInfo struct {
	format disk.Format
	clock  []int  // offsets of address marks
	data   []byte // raw bytes of the track
}

// FindTrack walks the address marks at the start of buf, which holds
// the beginning of a track, and returns the density, the mark offsets
// and the length of the track. The track ends where an ID of another
// cylinder or side shows up, or a sector ID repeats. A zero length
// means no address mark was found close enough to the start.
func FindTrack(buf []byte) (disk.Format, []int, int) {
	var format disk.Format
	var clock []int
	seen := make(map[[3]byte]bool)
	cylinder, head := -1, -1
	pos, lastEnd := 0, 0

scan:
	for {
		mark, f := FindAddressMark(buf, pos)
		if mark >= len(buf) {
			break
		}
		if format == disk.FormatUnknown {
			if mark >= f.TrackSize() {
				break
			}
			format = f
		} else if f != format {
			break
		}

		switch b := buf[mark]; {
		case b == disk.MarkIndex:
			if len(seen) > 0 {
				// Index mark of the next track.
				break scan
			}
			clock = append(clock, mark)
			pos = mark + 1
			lastEnd = pos

		case b == disk.MarkID:
			if mark+7 > len(buf) {
				break scan
			}
			id := [3]byte{buf[mark+1], buf[mark+2], buf[mark+3]}
			if cylinder >= 0 && (int(id[0]) != cylinder || int(id[1]) != head) {
				break scan
			}
			if seen[id] {
				break scan
			}
			dataMark, f := FindAddressMark(buf, mark+7)
			if dataMark >= len(buf) || f != format || !disk.IsDataMark(buf[dataMark]) ||
				dataMark-mark > format.MaxIDToData() {
				log.Debugf("ID %d/%d/%d at offset %d has no data field", id[0], id[1], id[2], mark)
				break scan
			}
			end := dataMark + 1 + 128<<(buf[mark+4]&3) + 2
			if end > len(buf) {
				break scan
			}
			seen[id] = true
			cylinder, head = int(id[0]), int(id[1])
			clock = append(clock, mark, dataMark)
			pos = end
			lastEnd = end

		default:
			// Data mark without an ID.
			pos = mark + 1
		}
	}

	if format == disk.FormatUnknown {
		return format, nil, 0
	}
	size := max(format.TrackSize(), lastEnd)
	return format, clock, min(size, len(buf))
}

// readTracks splits the file into tracks, keeping a window of two
// maximal tracks in front of the current position.
func readTracks(r io.Reader) ([]trackInfo, error) {
	window := 2 * maxTrackSize
	br := bufio.NewReaderSize(r, window)

	var tracks []trackInfo
	format := disk.FormatUnknown
	offset := 0
	for {
		buf, err := br.Peek(window)
		if len(buf) == 0 {
			break
		}
		if err != nil && err != io.EOF {
			return nil, errors.Wrapf(err, "read failed at offset %d", offset)
		}

		f, clock, size := FindTrack(buf)
		if size == 0 && format == disk.FormatUnknown {
			blank, err := skipLeadingBlanks(br, buf, offset, len(buf) < window)
			if err != nil {
				return nil, err
			}
			if blank.format == disk.FormatUnknown {
				// Nothing formatted within the window yet.
				offset += maxTrackSize
				continue
			}
			for i := 0; i < blank.count; i++ {
				tracks = append(tracks, trackInfo{format: disk.FormatUnknown, data: make([]byte, blank.format.TrackSize())})
			}
			offset = blank.count * blank.format.TrackSize()
			format = blank.format
			continue
		}
		if size == 0 {
			// Unformatted track: take the nominal size of the previous one.
			if len(buf) < format.TrackSize() {
				log.Debugf("ignoring %d trailing bytes", len(buf))
				break
			}
			f, clock, size = disk.FormatUnknown, nil, format.TrackSize()
		} else {
			format = f
		}

		data := make([]byte, size)
		copy(data, buf)
		if _, err := br.Discard(size); err != nil {
			return nil, errors.Wrapf(err, "read failed at offset %d", offset)
		}
		tracks = append(tracks, trackInfo{format: f, clock: clock, data: data})
		offset += size
	}
	return tracks, nil
}

// Blank tracks found in front of the first formatted track.
type leadingBlanks struct {
	format disk.Format // density of the first formatted track
	count  int
}

// skipLeadingBlanks handles a file that starts with unformatted tracks.
// They were written with the size of the first formatted track, so the
// offset of its first address mark tells how many there are.
// The reader is advanced to the start of the first formatted track.
// When no mark is in sight, half of the window is skipped and
// the returned format is unknown.
func skipLeadingBlanks(br *bufio.Reader, buf []byte, offset int, last bool) (leadingBlanks, error) {
	mark, f := FindAddressMark(buf, 0)
	if mark >= len(buf) {
		if last {
			return leadingBlanks{}, errors.New("no address mark found")
		}
		if _, err := br.Discard(maxTrackSize); err != nil {
			return leadingBlanks{}, errors.Wrapf(err, "read failed at offset %d", offset)
		}
		return leadingBlanks{}, nil
	}

	count := (offset + mark) / f.TrackSize()
	start := count * f.TrackSize()
	if count == 0 || start < offset {
		return leadingBlanks{}, errors.Errorf("no track boundary before the address mark at offset %d", offset+mark)
	}
	if _, err := br.Discard(start - offset); err != nil {
		return leadingBlanks{}, errors.Wrapf(err, "read failed at offset %d", offset)
	}
	log.Debugf("%d blank tracks before offset %d", count, start)
	return leadingBlanks{format: f, count: count}, nil
}

// DetermineSize infers the geometry from the sector IDs of the tracks.
// Returns the number of cylinders and heads.
// A file with twice as many tracks as the highest cylinder ID implies
// is double sided, even when side 1 is unformatted.
func DetermineSize(tracks []trackInfo) (int, int) {
	heads := 1
	maxCylinder := -1
	scratch := disk.NewTrack()
	for _, info := range tracks {
		if info.format == disk.FormatUnknown {
			continue
		}
		scratch.RawWrite(info.format, info.clock, info.data)
		for i := 0; i < scratch.NumSectors(); i++ {
			sector := scratch.Sector(i)
			if sector.Head() > 0 {
				heads = 2
			}
			maxCylinder = max(maxCylinder, sector.Cylinder())
		}
	}
	if maxCylinder >= 0 && len(tracks) == 2*(maxCylinder+1) {
		heads = 2
	}
	cylinders := (len(tracks) + heads - 1) / heads
	if heads == 1 {
		cylinders = max(cylinders, maxCylinder+1)
	}
	return cylinders, heads
}

// Read loads all tracks. Side 0 comes first, cylinders in ascending order,
// then side 1.
func (s *Serializer) Read(r io.Reader, img *disk.Image) error {
	tracks, err := readTracks(r)
	if err != nil {
		return err
	}
	if len(tracks) == 0 {
		return errors.New("empty image")
	}

	cylinders, heads := DetermineSize(tracks)
	img.AllocateTracks(cylinders, heads)
	for i, info := range tracks {
		cylinder, head := i%cylinders, i/cylinders
		if info.format == disk.FormatUnknown {
			continue
		}
		track := img.GetTrack(cylinder, head)
		track.RawWrite(info.format, info.clock, info.data)
		track.FixPlaceholderCRCs()
	}

	log.WithFields(log.Fields{
		"tracks":    len(tracks),
		"cylinders": cylinders,
		"heads":     heads,
	}).Debug("PC99 image loaded")
	return nil
}
