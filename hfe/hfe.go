// Package hfe stores disk images in the HxC floppy emulator format:
// raw cell streams of both sides, interleaved in 256-byte chunks.
package hfe

import (
	"io"

	"github.com/sergev/ti99disk/disk"
)

// HFEVersion represents the HFE file format version
type HFEVersion int

const (
	HFEVersion1 HFEVersion = 1
	HFEVersion3 HFEVersion = 3
)

// Constants for HFE format signatures
const (
	// Signature for HFE v1 format
	HFEv1Signature = "HXCPICFE"

	// Signature for HFE v3 format
	HFEv3Signature = "HXCHFEV3"

	// Opcode constants (used in v3)
	OPCODE_MASK       = 0xF0
	NOP_OPCODE        = 0xF0
	SETINDEX_OPCODE   = 0xF1
	SETBITRATE_OPCODE = 0xF2
	SKIPBITS_OPCODE   = 0xF3
	RAND_OPCODE       = 0xF4

	// Block size in bytes
	BlockSize = 512
)

// Track encoding types
const (
	ENC_ISOIBM_MFM = iota
	ENC_Amiga_MFM
	ENC_ISOIBM_FM
	ENC_Emu_FM
	ENC_Unknown = 0xff
)

// Interface mode types
const (
	IFM_IBMPC_DD = iota
	IFM_IBMPC_HD
	IFM_AtariST_DD
	IFM_AtariST_HD
	IFM_Amiga_DD
	IFM_Amiga_HD
	IFM_CPC_DD
	IFM_GenericShugart_DD
	IFM_IBMPC_ED
	IFM_MSX2_DD
	IFM_C64_DD
	IFM_EmuShugart_DD
)

// Defaults for images written by this package
const (
	DefaultBitRate = 250 // kbit/s
	DefaultRPM     = 300

	// Cells per revolution at the default bit rate and speed.
	nominalCells = DefaultBitRate * 1000 * 2 * 60 / DefaultRPM
)

// Header represents the HFE file header
type Header struct {
	HeaderSignature     [8]byte
	FormatRevision      uint8
	NumberOfTrack       uint8
	NumberOfSide        uint8
	TrackEncoding       uint8
	BitRate             uint16 // in kB/s
	FloppyRPM           uint16
	FloppyInterfaceMode uint8
	WriteProtected      uint8
	TrackListOffset     uint16 // in 512-byte blocks
	WriteAllowed        uint8
	SingleStep          uint8
	Track0S0AltEncoding uint8
	Track0S0Encoding    uint8
	Track0S1AltEncoding uint8
	Track0S1Encoding    uint8
}

// TrackHeader represents a track offset entry in the track list
type TrackHeader struct {
	Offset   uint16 // in 512-byte blocks
	TrackLen uint16 // in bytes
}

// TrackData holds the cell streams of one cylinder, MSB first.
type TrackData struct {
	Side0 []byte
	Side1 []byte
}

// Serializer reads HFE v1 and v3 images and writes the given version.
type Serializer struct {
	Version HFEVersion
}

func init() {
	disk.RegisterSerializer(10, &Serializer{Version: HFEVersion1})
}

func (s *Serializer) Name() string {
	return "HFE"
}

func (s *Serializer) Extensions() []string {
	return []string{".hfe"}
}

// MatchesFormat checks the file signature.
func (s *Serializer) MatchesFormat(r io.ReadSeeker) bool {
	var sig [8]byte
	if _, err := io.ReadFull(r, sig[:]); err != nil {
		return false
	}
	return string(sig[:]) == HFEv1Signature || string(sig[:]) == HFEv3Signature
}

// SupportsFeatures reports the capabilities of the format.
// One encoding applies to the whole disk.
func (s *Serializer) SupportsFeatures(f disk.Feature) bool {
	const supported = disk.FeatureFM | disk.FeatureMFM | disk.FeatureWrite
	return f&^supported == 0
}

// encodingFormat maps an HFE track encoding to a track format.
func encodingFormat(encoding uint8) disk.Format {
	switch encoding {
	case ENC_ISOIBM_MFM, ENC_Amiga_MFM:
		return disk.FormatMFM
	case ENC_ISOIBM_FM, ENC_Emu_FM:
		return disk.FormatFM
	}
	return disk.FormatUnknown
}

// FM recorded at 250 kbit/s or more has every cell doubled.
func skipMode(format disk.Format, bitRate uint16) bool {
	return format == disk.FormatFM && bitRate >= DefaultBitRate
}

// byteBitsInverter inverts bits in a byte (for PIC EUSART compatibility)
// This is a lookup table that inverts each bit position
var byteBitsInverter [256]byte

func init() {
	// Generate byteBitsInverter lookup table
	// This inverts bits: bit 0 <-> bit 7, bit 1 <-> bit 6, etc.
	for i := 0; i < 256; i++ {
		byteBitsInverter[i] = bitReverse(byte(i))
	}
}

// bitReverse reverses the bit order in a byte (LSB-first <-> MSB-first)
func bitReverse(b byte) byte {
	var result byte
	for i := 0; i < 8; i++ {
		result <<= 1
		result |= b & 1
		b >>= 1
	}
	return result
}

// bitCopy copies bits from source to destination at arbitrary bit offsets
func bitCopy(dst []byte, dstOff int, src []byte, srcOff int, size int) int {
	for i := 0; i < size; i++ {
		if srcOff >= len(src)*8 || dstOff >= len(dst)*8 {
			return dstOff
		}

		// Get source bit
		srcByte := src[srcOff/8]
		srcBit := (srcByte >> (7 - (srcOff & 7))) & 1

		// Set destination bit
		if srcBit != 0 {
			dst[dstOff/8] |= 1 << (7 - (dstOff & 7))
		} else {
			dst[dstOff/8] &= ^(1 << (7 - (dstOff & 7)))
		}

		srcOff++
		dstOff++
	}
	return dstOff
}
