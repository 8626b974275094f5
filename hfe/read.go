package hfe

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/sergev/ti99disk/bitstream"
	"github.com/sergev/ti99disk/codec"
	"github.com/sergev/ti99disk/disk"
)

// Read parses the header and track list of an HFE file (v1 or v3).
// Tracks are decoded on first access.
//   - v1: signature "HXCPICFE", format revision 0
//   - v3: signature "HXCHFEV3", format revision 0
//
// v2 format is not supported and will return an error
func (s *Serializer) Read(r io.Reader, img *disk.Image) error {
	contents, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, "failed to read file")
	}
	file := bytes.NewReader(contents)

	header, err := readHeader(file)
	if err != nil {
		return err
	}
	isV3 := string(header.HeaderSignature[:]) == HFEv3Signature

	// Read track offset list
	trackListOffset := int64(header.TrackListOffset) * BlockSize
	if _, err := file.Seek(trackListOffset, io.SeekStart); err != nil {
		return errors.Wrap(err, "failed to seek to track list")
	}
	trackHeaders := make([]TrackHeader, header.NumberOfTrack)
	for i := range trackHeaders {
		if err := binary.Read(file, binary.LittleEndian, &trackHeaders[i]); err != nil {
			return errors.Wrapf(err, "failed to read track header %d", i)
		}
	}

	img.AllocateTracks(int(header.NumberOfTrack), int(header.NumberOfSide))
	img.SetWriteProtected(header.WriteAllowed == 0)

	log.WithFields(log.Fields{
		"v3":       isV3,
		"tracks":   header.NumberOfTrack,
		"sides":    header.NumberOfSide,
		"encoding": header.TrackEncoding,
		"bitrate":  header.BitRate,
	}).Debug("HFE header")

	img.SetLoadOnDemand(func(cylinder, head int, track *disk.Track) error {
		trackData, err := readTrack(file, &trackHeaders[cylinder], header.NumberOfSide, isV3)
		if err != nil {
			return errors.Wrapf(err, "failed to read track %d", cylinder)
		}
		cells := trackData.Side0
		if head > 0 {
			cells = trackData.Side1
		}
		format := trackFormat(header, cylinder, head)
		if format == disk.FormatUnknown {
			return errors.Errorf("unsupported track encoding on cylinder %d", cylinder)
		}
		decodeTrack(track, format, cells, header.BitRate)
		return nil
	})
	return nil
}

// readHeader reads and validates the file header.
func readHeader(file io.Reader) (*Header, error) {
	header := &Header{}
	if err := binary.Read(file, binary.LittleEndian, header); err != nil {
		return nil, errors.Wrap(err, "failed to read header")
	}

	// Validate signature - support v1 (HXCPICFE) and v3 (HXCHFEV3)
	sig := string(header.HeaderSignature[:])
	isV1 := sig == HFEv1Signature
	isV3 := sig == HFEv3Signature

	if !isV1 && !isV3 {
		return nil, errors.Errorf("invalid HFE signature: %s (expected %s or %s)", sig, HFEv1Signature, HFEv3Signature)
	}

	// Validate format revision based on signature
	if isV3 {
		if header.FormatRevision != 0 {
			return nil, errors.Errorf("invalid HFE v3 format revision: %d (expected 0)", header.FormatRevision)
		}
	} else {
		// v2 (revision 1) is not supported
		if header.FormatRevision == 1 {
			return nil, errors.New("HFE v2 format (revision 1) is not supported, only v1 and v3 are supported")
		}
		if header.FormatRevision != 0 {
			return nil, errors.Errorf("invalid HFE v1 format revision: %d (expected 0)", header.FormatRevision)
		}
	}

	// Validate basic fields
	if header.BitRate == 0 {
		return nil, errors.New("invalid bit rate")
	}
	if header.NumberOfTrack == 0 {
		return nil, errors.New("invalid number of tracks")
	}
	if header.NumberOfSide == 0 || header.NumberOfSide > 2 {
		return nil, errors.New("invalid number of sides")
	}
	return header, nil
}

// trackFormat returns the encoding of a track.
// Track 0 may override the disk encoding, one side at a time.
func trackFormat(header *Header, cylinder, head int) disk.Format {
	if cylinder == 0 {
		if head == 0 && header.Track0S0AltEncoding == 0x00 {
			return encodingFormat(header.Track0S0Encoding)
		}
		if head == 1 && header.Track0S1AltEncoding == 0x00 {
			return encodingFormat(header.Track0S1Encoding)
		}
	}
	return encodingFormat(header.TrackEncoding)
}

// decodeTrack converts a cell stream into track contents.
// A stream with no address marks leaves the track unformatted.
func decodeTrack(track *disk.Track, format disk.Format, cells []byte, bitRate uint16) {
	stream := bitstream.NewReader(cells, bitstream.MSBFirst, skipMode(format, bitRate))
	fragments := codec.Decode(format, stream)
	if len(fragments) == 0 {
		return
	}
	clock, data := codec.ToTrack(format, fragments)
	if len(clock) == 0 {
		return
	}
	track.RawWrite(format, clock, data)
}

// readTrack reads a single track from the file
// shouldProcessOpcodes indicates whether to process HFEv3 opcodes (true for v3, false for v1)
func readTrack(file io.ReadSeeker, th *TrackHeader, numSides uint8, shouldProcessOpcodes bool) (*TrackData, error) {
	// Calculate track length (rounded up to 512-byte boundary)
	trackLen := int(th.TrackLen)
	if trackLen&0x1FF != 0 {
		trackLen = (trackLen & ^0x1FF) + 0x200
	}

	// Seek to track data
	trackOffset := int64(th.Offset) * BlockSize
	if _, err := file.Seek(trackOffset, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "failed to seek to track data")
	}

	// Read track data
	trackBuf := make([]byte, trackLen)
	if _, err := io.ReadFull(file, trackBuf); err != nil {
		return nil, errors.Wrap(err, "failed to read track data")
	}

	// Demux sides: side 0 is bytes 0-255, side 1 is bytes 256-511 of each 512-byte block
	// Apply byteBitsInverter during demuxing (convert from LSB-first to MSB-first)
	side0Data := make([]byte, trackLen/2)
	side1Data := make([]byte, trackLen/2)

	for j := 0; j < trackLen; j += BlockSize {
		for k := 0; k < 256; k++ {
			side0Data[j/2+k] = byteBitsInverter[trackBuf[j+k]]
			if numSides > 1 {
				side1Data[j/2+k] = byteBitsInverter[trackBuf[j+256+k]]
			}
		}
	}

	// The last block holds fewer valid bytes when the length is not aligned.
	valid := int(th.TrackLen) / 2
	side0Data = side0Data[:valid]
	side1Data = side1Data[:valid]

	if !shouldProcessOpcodes {
		// v1 format: use raw data directly (no opcode processing)
		if numSides < 2 {
			side1Data = nil
		}
		return &TrackData{Side0: side0Data, Side1: side1Data}, nil
	}

	// v3 format: process opcodes
	side0Bits, err := processOpcodes(side0Data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to process opcodes for side 0")
	}
	var side1Bits []byte
	if numSides > 1 {
		side1Bits, err = processOpcodes(side1Data)
		if err != nil {
			return nil, errors.Wrap(err, "failed to process opcodes for side 1")
		}
	}
	return &TrackData{
		Side0: side0Bits,
		Side1: side1Bits,
	}, nil
}

// processOpcodes processes HFEv3 opcodes and extracts the cell stream
func processOpcodes(data []byte) ([]byte, error) {
	// Output may be smaller than input due to opcodes
	newData := make([]byte, len(data))

	inBit := 0
	outBit := 0
	indexBit := 0

	for inBit/8 < len(data) {
		if inBit&7 != 0 {
			return nil, errors.New("opcode processing: input not byte-aligned")
		}

		opc := data[inBit/8]

		if (opc & OPCODE_MASK) == OPCODE_MASK {
			switch opc & 0x0F {
			case NOP_OPCODE & 0x0F:
				// NOP: skip 8 bits (no output)
				inBit += 8

			case SETINDEX_OPCODE & 0x0F:
				// SETINDEX: mark index pulse position
				inBit += 8
				indexBit = outBit

			case SETBITRATE_OPCODE & 0x0F:
				// SETBITRATE: the decoder locks onto cell timing by itself
				if inBit/8+1 >= len(data) {
					return nil, errors.New("SETBITRATE opcode: insufficient data")
				}
				inBit += 16

			case SKIPBITS_OPCODE & 0x0F:
				// SKIPBITS: skip 0-8 bits in next byte, then copy remaining
				if inBit/8+1 >= len(data) {
					return nil, errors.New("SKIPBITS opcode: insufficient data")
				}
				skip := data[inBit/8+1]
				if skip > 8 {
					return nil, errors.Errorf("SKIPBITS opcode: skip value %d > 8", skip)
				}
				// Skip the opcode byte and skip value byte, then skip bits
				inBit += 16 + int(skip)
				// Copy remaining bits (8 - skip)
				bitCopy(newData, outBit, data, inBit, 8-int(skip))
				inBit += 8 - int(skip)
				outBit += 8 - int(skip)

			case RAND_OPCODE & 0x0F:
				// RAND: weak byte, read back as zeros
				inBit += 8
				outBit += 8

			default:
				return nil, errors.Errorf("unknown opcode: 0x%02X", opc)
			}
		} else {
			// Bytes in 0x60-0x6F range are escaped opcodes (0xF0-0xFF XOR 0x90)
			dataByte := data[inBit/8]
			if dataByte >= 0x60 && dataByte <= 0x6F {
				dataByte ^= 0x90
			}
			bitCopy(newData, outBit, []byte{dataByte}, 0, 8)
			inBit += 8
			outBit += 8
		}
	}

	lenBits := outBit

	// Rotate track so index pulse is at bit 0
	// If no index was found, indexBit will be 0 (start of track)
	result := make([]byte, (lenBits+7)/8)
	if indexBit < lenBits {
		// Copy from index to end, then from start to index
		bitCopy(result, 0, newData, indexBit, lenBits-indexBit)
		bitCopy(result, lenBits-indexBit, newData, 0, indexBit)
	} else {
		copy(result, newData[:lenBits/8])
	}

	return result, nil
}
