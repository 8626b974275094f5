package disk

// Format is the recording density of a track.
type Format int

const (
	FormatUnknown Format = iota // unformatted or not yet decoded
	FormatFM                    // single density
	FormatMFM                   // double density
)

// String returns the name of the format.
func (f Format) String() string {
	switch f {
	case FormatFM:
		return "FM"
	case FormatMFM:
		return "MFM"
	default:
		return "Unknown"
	}
}

// Nominal track lengths in bytes, as captured in raw track dumps.
const (
	TrackSizeFM  = 3253
	TrackSizeMFM = 6872
)

// TrackSize returns the nominal length of one track in bytes.
func (f Format) TrackSize() int {
	switch f {
	case FormatFM:
		return TrackSizeFM
	case FormatMFM:
		return TrackSizeMFM
	}
	return 0
}

// MaxIDToData returns the largest distance in bytes from an ID mark
// to the data mark of the same sector.
func (f Format) MaxIDToData() int {
	if f == FormatMFM {
		return 45
	}
	return 33
}

// GapByte returns the filler written between fields.
func (f Format) GapByte() byte {
	if f == FormatMFM {
		return 0x4E
	}
	return 0xFF
}

// Address marks and sync bytes
const (
	MarkDeleted = 0xF8 // deleted data
	MarkData    = 0xFB // normal data
	MarkIndex   = 0xFC // index address mark
	MarkID      = 0xFE // ID address mark

	SyncA1 = 0xA1 // MFM sync before ID and data marks
	SyncC2 = 0xC2 // MFM sync before the index mark
)

// Write track tokens interpreted by the controller
const (
	TokenSyncA1 = 0xF5 // MFM: write A1 with missing clock, preset CRC
	TokenSyncC2 = 0xF6 // MFM: write C2 with missing clock
	TokenCRC    = 0xF7 // write two CRC bytes
)

// Placeholder stored instead of CRC bytes in raw track dumps.
const PlaceholderCRC = 0xF7

// IsDataMark reports whether b is one of the four data address marks.
func IsDataMark(b byte) bool {
	return b >= MarkDeleted && b <= MarkData
}

// IsAddressMark reports whether b is an ID, data or index mark.
func IsAddressMark(b byte) bool {
	return IsDataMark(b) || b == MarkID || b == MarkIndex
}
