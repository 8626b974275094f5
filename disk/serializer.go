package disk

import (
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrUnknownFormat  = errors.New("unknown disk image format")
	ErrWriteProtected = errors.New("disk image is write protected")
	ErrNotSupported   = errors.New("operation not supported by image format")
)

// Feature is a capability of an image file format.
type Feature int

const (
	FeatureFM           Feature = 1 << iota // single density tracks
	FeatureMFM                              // double density tracks
	FeatureMixedDensity                     // FM and MFM tracks in one image
	FeatureWrite                            // images can be saved
)

// Serializer reads and writes one image file format.
type Serializer interface {
	// Name of the format, for messages.
	Name() string

	// Extensions returns file name suffixes, with a leading dot.
	Extensions() []string

	// MatchesFormat inspects the head of the file and reports
	// whether it belongs to this format. The position of r is undefined afterwards.
	MatchesFormat(r io.ReadSeeker) bool

	// Read fills the image with tracks, eagerly or by installing a loader.
	Read(r io.Reader, img *Image) error

	// Write stores all tracks of the image.
	Write(w io.Writer, img *Image) error

	// SupportsFeatures reports whether all the given features are available.
	SupportsFeatures(f Feature) bool
}

type registration struct {
	priority   int
	serializer Serializer
}

var registry []registration

// RegisterSerializer adds a format to the list tried by Open.
// Formats with lower priority are tried first.
// It is intended to be called from init() of format packages.
func RegisterSerializer(priority int, s Serializer) {
	registry = append(registry, registration{priority, s})
	sort.SliceStable(registry, func(i, j int) bool {
		return registry[i].priority < registry[j].priority
	})
}

// Serializers returns registered formats in trial order.
func Serializers() []Serializer {
	list := make([]Serializer, 0, len(registry))
	for _, r := range registry {
		list = append(list, r.serializer)
	}
	return list
}

// Detect tries every registered format in order on the contents of r.
func Detect(r io.ReadSeeker) (Serializer, error) {
	for _, s := range Serializers() {
		if _, err := r.Seek(0, io.SeekStart); err != nil {
			return nil, errors.Wrap(err, "cannot rewind image")
		}
		if s.MatchesFormat(r) {
			return s, nil
		}
	}
	return nil, ErrUnknownFormat
}

// SerializerForFile selects a format by file name extension.
func SerializerForFile(filename string) (Serializer, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, s := range Serializers() {
		for _, e := range s.Extensions() {
			if e == ext {
				return s, nil
			}
		}
	}
	return nil, errors.Wrapf(ErrUnknownFormat, "extension %q", ext)
}
