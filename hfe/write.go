package hfe

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/sergev/ti99disk/bitstream"
	"github.com/sergev/ti99disk/codec"
	"github.com/sergev/ti99disk/disk"
)

// Write stores the image as an HFE file of the serializer's version.
// Every track is re-encoded from its decoded contents.
func (s *Serializer) Write(w io.Writer, img *disk.Image) error {
	version := s.Version
	if version == 0 {
		version = HFEVersion1
	}
	if img.NumTracks() == 0 || img.NumTracks() > 255 {
		return errors.Errorf("cannot store %d cylinders", img.NumTracks())
	}
	if img.NumHeads() < 1 || img.NumHeads() > 2 {
		return errors.Errorf("cannot store %d sides", img.NumHeads())
	}

	format := img.Format()
	if format == disk.FormatUnknown {
		format = disk.FormatFM
	}
	header := newHeader(img.NumTracks(), img.NumHeads(), format, img.IsWriteProtected())

	tracks := make([]TrackData, img.NumTracks())
	for cylinder := range tracks {
		tracks[cylinder] = encodeCylinder(img, cylinder, format)
	}
	return writeHFE(w, header, tracks, version)
}

// newHeader fills in the header of a disk recorded in one encoding.
func newHeader(cylinders, sides int, format disk.Format, protected bool) Header {
	encoding := uint8(ENC_ISOIBM_MFM)
	if format == disk.FormatFM {
		encoding = ENC_ISOIBM_FM
	}
	header := Header{
		NumberOfTrack:       uint8(cylinders),
		NumberOfSide:        uint8(sides),
		TrackEncoding:       encoding,
		BitRate:             DefaultBitRate,
		FloppyRPM:           DefaultRPM,
		FloppyInterfaceMode: IFM_GenericShugart_DD,
		WriteProtected:      0xFF,
		WriteAllowed:        0xFF,
		SingleStep:          0x00,
		Track0S0AltEncoding: 0xFF,
		Track0S0Encoding:    encoding,
		Track0S1AltEncoding: 0xFF,
		Track0S1Encoding:    encoding,
	}
	if cylinders > 42 {
		header.SingleStep = 0xFF
	}
	if protected {
		header.WriteAllowed = 0x00
	}
	return header
}

// encodeCylinder produces the cell streams of both sides of a cylinder.
// Sides are padded with filler to one revolution, or to the longer side,
// rounded up to a whole number of 256-byte chunks.
func encodeCylinder(img *disk.Image, cylinder int, format disk.Format) TrackData {
	skip := skipMode(format, DefaultBitRate)
	factor := 1
	if skip {
		factor = 2
	}

	writers := make([]*bitstream.Writer, img.NumHeads())
	length := nominalCells
	for head := range writers {
		track := img.GetTrack(cylinder, head)
		w := bitstream.NewWriter(bitstream.MSBFirst, skip)
		if track.Format() == format {
			codec.Encode(format, w, codec.FromTrack(format, track.Clock(), track.Data()))
		}
		writers[head] = w
		length = max(length, w.Offset()*factor)
	}

	const chunkCells = 256 * 8
	length = (length + chunkCells - 1) / chunkCells * chunkCells

	var data TrackData
	for head, w := range writers {
		codec.Fill(w, length/factor)
		if head == 0 {
			data.Side0 = w.Bytes()
		} else {
			data.Side1 = w.Bytes()
		}
	}
	return data
}

// writeHFE writes header, track list and track data.
func writeHFE(w io.Writer, header Header, tracks []TrackData, version HFEVersion) error {
	// Set header signature and format revision based on version
	switch version {
	case HFEVersion1:
		copy(header.HeaderSignature[:], HFEv1Signature)
	case HFEVersion3:
		copy(header.HeaderSignature[:], HFEv3Signature)
	default:
		return errors.Errorf("invalid HFE version: %d (must be 1 or 3)", version)
	}
	header.FormatRevision = 0
	header.TrackListOffset = 1

	// Write header (512 bytes, padded with 0xFF)
	headerBuf := make([]byte, BlockSize)
	for i := range headerBuf {
		headerBuf[i] = 0xFF
	}

	// Write header data (first 26 bytes)
	copy(headerBuf[0:8], header.HeaderSignature[:])
	headerBuf[8] = header.FormatRevision
	headerBuf[9] = header.NumberOfTrack
	headerBuf[10] = header.NumberOfSide
	headerBuf[11] = header.TrackEncoding
	binary.LittleEndian.PutUint16(headerBuf[12:14], header.BitRate)
	binary.LittleEndian.PutUint16(headerBuf[14:16], header.FloppyRPM)
	headerBuf[16] = header.FloppyInterfaceMode
	headerBuf[17] = header.WriteProtected
	binary.LittleEndian.PutUint16(headerBuf[18:20], header.TrackListOffset)
	headerBuf[20] = header.WriteAllowed
	headerBuf[21] = header.SingleStep
	headerBuf[22] = header.Track0S0AltEncoding
	headerBuf[23] = header.Track0S0Encoding
	headerBuf[24] = header.Track0S1AltEncoding
	headerBuf[25] = header.Track0S1Encoding

	if _, err := w.Write(headerBuf); err != nil {
		return errors.Wrap(err, "failed to write header")
	}

	// Prepare track data based on version
	sides := make([]TrackData, len(tracks))
	for i, track := range tracks {
		sides[i] = track
		if version == HFEVersion3 {
			sides[i].Side0 = encodeOpcodes(track.Side0)
			sides[i].Side1 = encodeOpcodes(track.Side1)
		}
		if header.NumberOfSide < 2 {
			sides[i].Side1 = sides[i].Side0
		}
	}

	// Calculate track offsets using track lengths
	if len(sides) > BlockSize/4 {
		return errors.New("too many tracks for single track list block")
	}
	trackPos := header.TrackListOffset + 1 // Start after track list block
	trackHeaders := make([]TrackHeader, len(sides))
	for i := range sides {
		maxLen := max(len(sides[i].Side0), len(sides[i].Side1))

		// Track length is for both sides, rounded up to 512-byte boundary
		trackLen := maxLen * 2
		if trackLen%BlockSize != 0 {
			trackLen = ((trackLen / BlockSize) + 1) * BlockSize
		}

		trackHeaders[i].Offset = trackPos
		trackHeaders[i].TrackLen = uint16(trackLen)
		trackPos += uint16(trackLen / BlockSize)
	}

	// Write track list
	trackListBuf := make([]byte, BlockSize)
	for i := range trackListBuf {
		trackListBuf[i] = 0xFF
	}
	for i, th := range trackHeaders {
		offset := i * 4
		binary.LittleEndian.PutUint16(trackListBuf[offset:offset+2], th.Offset)
		binary.LittleEndian.PutUint16(trackListBuf[offset+2:offset+4], th.TrackLen)
	}
	if _, err := w.Write(trackListBuf); err != nil {
		return errors.Wrap(err, "failed to write track list")
	}

	// Write track data; v3 pads with NOP opcodes, v1 with filler
	pad := byte(0xAA)
	if version == HFEVersion3 {
		pad = NOP_OPCODE
	}
	for i := range sides {
		if err := writeTrack(w, &trackHeaders[i], sides[i].Side0, sides[i].Side1, pad); err != nil {
			return errors.Wrapf(err, "failed to write track %d", i)
		}
	}
	return nil
}

// Encode a raw cell stream with HFEv3 opcodes
func encodeOpcodes(data []byte) []byte {
	result := make([]byte, 0, len(data)+1)
	result = append(result, SETINDEX_OPCODE)

	for _, b := range data {
		// Escape bytes in opcode range (0xF0-0xFF) except RAND_OPCODE (0xF4)
		// by XORing with 0x90
		if (b&OPCODE_MASK) == OPCODE_MASK && b != RAND_OPCODE {
			result = append(result, b^0x90)
		} else {
			result = append(result, b)
		}
	}
	return result
}

// writeTrack interleaves both sides into 512-byte blocks and writes them.
// Side 0 takes bytes 0-255 of each block, side 1 bytes 256-511.
func writeTrack(w io.Writer, th *TrackHeader, side0, side1 []byte, pad byte) error {
	trackLen := int(th.TrackLen)

	// Allocate buffers for each side (padded to trackLen/2)
	side0Buf := make([]byte, trackLen/2)
	side1Buf := make([]byte, trackLen/2)

	copy(side0Buf, side0)
	for i := len(side0); i < len(side0Buf); i++ {
		side0Buf[i] = pad
	}
	copy(side1Buf, side1)
	for i := len(side1); i < len(side1Buf); i++ {
		side1Buf[i] = pad
	}

	trackBuf := make([]byte, trackLen)
	for k := 0; k < trackLen/BlockSize; k++ {
		for j := 0; j < 256; j++ {
			// Head 0
			trackBuf[k*BlockSize+j] = byteBitsInverter[side0Buf[k*256+j]]
			// Head 1
			trackBuf[k*BlockSize+j+256] = byteBitsInverter[side1Buf[k*256+j]]
		}
	}

	if _, err := w.Write(trackBuf); err != nil {
		return errors.Wrap(err, "failed to write track data")
	}
	return nil
}
