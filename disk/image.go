package disk

import (
	"bufio"
	"io"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// LoadFunc decodes one track on first access.
type LoadFunc func(cylinder, head int, track *Track) error

// Image is a disk image in memory: a grid of tracks indexed by cylinder and head.
type Image struct {
	filename       string
	serializer     Serializer
	numCylinders   int
	numHeads       int
	tracks         []*Track // cylinder-major
	loaded         []bool
	writeProtected bool
	loader         LoadFunc
}

// NewImage returns an empty image with no tracks.
func NewImage() *Image {
	return &Image{}
}

// AllocateTracks resizes the image, discarding all tracks.
func (img *Image) AllocateTracks(cylinders, heads int) {
	img.numCylinders = cylinders
	img.numHeads = heads
	img.tracks = make([]*Track, cylinders*heads)
	img.loaded = make([]bool, cylinders*heads)
	for i := range img.tracks {
		img.tracks[i] = NewTrack()
	}
}

// NumTracks returns the number of cylinders.
func (img *Image) NumTracks() int {
	return img.numCylinders
}

// NumHeads returns the number of sides.
func (img *Image) NumHeads() int {
	return img.numHeads
}

// GetTrack returns the track at the given position, or nil when out of range.
// With a loader installed, the track is decoded the first time it is requested.
func (img *Image) GetTrack(cylinder, head int) *Track {
	if cylinder < 0 || cylinder >= img.numCylinders || head < 0 || head >= img.numHeads {
		return nil
	}
	i := cylinder*img.numHeads + head
	track := img.tracks[i]
	if img.loader != nil && !img.loaded[i] {
		img.loaded[i] = true
		if err := img.loader(cylinder, head, track); err != nil {
			log.WithFields(log.Fields{
				"cylinder": cylinder,
				"head":     head,
			}).Warnf("cannot load track: %v", err)
		}
	}
	return track
}

// SetLoadOnDemand installs a loader that decodes tracks lazily.
func (img *Image) SetLoadOnDemand(loader LoadFunc) {
	img.loader = loader
	for i := range img.loaded {
		img.loaded[i] = false
	}
}

// LoadAll forces every track to be decoded.
func (img *Image) LoadAll() {
	for c := 0; c < img.numCylinders; c++ {
		for h := 0; h < img.numHeads; h++ {
			img.GetTrack(c, h)
		}
	}
}

// IsWriteProtected reports whether writes to the image are refused.
func (img *Image) IsWriteProtected() bool {
	return img.writeProtected
}

// SetWriteProtected sets the write protection flag.
func (img *Image) SetWriteProtected(protected bool) {
	img.writeProtected = protected
}

// HasChanged reports whether any track was modified.
// Tracks not yet loaded cannot have changed.
func (img *Image) HasChanged() bool {
	for _, track := range img.tracks {
		if track.IsChanged() {
			return true
		}
	}
	return false
}

// ClearChanged marks all tracks as saved.
func (img *Image) ClearChanged() {
	for _, track := range img.tracks {
		track.ClearChanged()
	}
}

// Filename returns the file the image was opened from or last saved to.
func (img *Image) Filename() string {
	return img.filename
}

// Serializer returns the file format of the image, if known.
func (img *Image) Serializer() Serializer {
	return img.serializer
}

// Features returns the capabilities needed to store the image.
func (img *Image) Features() Feature {
	var f Feature
	for c := 0; c < img.numCylinders; c++ {
		for h := 0; h < img.numHeads; h++ {
			switch img.GetTrack(c, h).Format() {
			case FormatFM:
				f |= FeatureFM
			case FormatMFM:
				f |= FeatureMFM
			}
		}
	}
	if f&FeatureFM != 0 && f&FeatureMFM != 0 {
		f |= FeatureMixedDensity
	}
	return f
}

// Format returns the density of the first formatted track.
func (img *Image) Format() Format {
	for h := 0; h < img.numHeads; h++ {
		for c := 0; c < img.numCylinders; c++ {
			if f := img.GetTrack(c, h).Format(); f != FormatUnknown {
				return f
			}
		}
	}
	return FormatUnknown
}

// Open reads an image file, trying every registered format in order.
// A file that cannot be opened for writing is marked write protected.
func Open(filename string) (*Image, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open disk image")
	}
	defer file.Close()

	s, err := Detect(file)
	if err != nil {
		return nil, errors.Wrap(err, filename)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, filename)
	}

	img := NewImage()
	if err := s.Read(bufio.NewReader(file), img); err != nil {
		return nil, errors.Wrapf(err, "cannot read %s image %s", s.Name(), filename)
	}
	img.filename = filename
	img.serializer = s
	if !writable(filename) {
		img.writeProtected = true
	}

	log.WithFields(log.Fields{
		"file":      filename,
		"format":    s.Name(),
		"cylinders": img.numCylinders,
		"heads":     img.numHeads,
	}).Debug("disk image opened")
	return img, nil
}

func writable(filename string) bool {
	file, err := os.OpenFile(filename, os.O_WRONLY, 0)
	if err != nil {
		return false
	}
	file.Close()
	return true
}

// Save writes the image back to the file it came from.
func (img *Image) Save() error {
	if img.serializer == nil || img.filename == "" {
		return errors.New("image has no file name")
	}
	if img.writeProtected {
		return errors.Wrap(ErrWriteProtected, img.filename)
	}
	return img.SaveAs(img.filename, img.serializer)
}

// SaveAs writes the image in the given format. On success the image
// is associated with the new file and all tracks are marked as saved.
func (img *Image) SaveAs(filename string, s Serializer) error {
	if !s.SupportsFeatures(FeatureWrite) {
		return errors.Wrapf(ErrNotSupported, "%s cannot be written", s.Name())
	}
	if need := img.Features(); !s.SupportsFeatures(need) {
		return errors.Wrapf(ErrNotSupported, "%s cannot store this image", s.Name())
	}

	// Decode everything before the source file gets overwritten.
	img.LoadAll()

	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "cannot create disk image")
	}
	w := bufio.NewWriter(file)
	if err := s.Write(w, img); err != nil {
		file.Close()
		return errors.Wrapf(err, "cannot write %s image %s", s.Name(), filename)
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return errors.Wrap(err, filename)
	}
	if err := file.Close(); err != nil {
		return errors.Wrap(err, filename)
	}

	img.filename = filename
	img.serializer = s
	img.ClearChanged()
	log.WithFields(log.Fields{
		"file":   filename,
		"format": s.Name(),
	}).Debug("disk image saved")
	return nil
}
