package pc99

import (
	"io"

	"github.com/pkg/errors"

	"github.com/sergev/ti99disk/disk"
)

// Write stores all tracks, side 0 first. Every track is written with
// placeholder CRCs and brought to its nominal size: a longer trailing gap
// is trimmed, a shorter track is padded with zeros.
// Unformatted tracks are written as zeros.
func (s *Serializer) Write(w io.Writer, img *disk.Image) error {
	blank := img.Format()
	if blank == disk.FormatUnknown {
		blank = disk.FormatFM
	}
	for head := 0; head < img.NumHeads(); head++ {
		for cylinder := 0; cylinder < img.NumTracks(); cylinder++ {
			data := trackBytes(img.GetTrack(cylinder, head), blank)
			if _, err := w.Write(data); err != nil {
				return errors.Wrapf(err, "failed to write track %d/%d", cylinder, head)
			}
		}
	}
	return nil
}

// trackBytes returns the contents of a track as stored in the file.
func trackBytes(track *disk.Track, blank disk.Format) []byte {
	if track.Format() == disk.FormatUnknown {
		return make([]byte, blank.TrackSize())
	}

	data := track.ZapCRC()
	size := max(track.Format().TrackSize(), track.UsedSize())
	if len(data) > size {
		return data[:size]
	}
	for len(data) < size {
		data = append(data, 0x00)
	}
	return data
}
