package disk

import "sync"

// CRC-16/CCITT, generator polynomial x^16 + x^12 + x^5 + 1
const crcPolynomial = 0x1021

var crcTable = sync.OnceValue(func() *[256]uint16 {
	var table [256]uint16
	for i := range table {
		crc := uint16(i) << 8
		for j := 0; j < 8; j++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ crcPolynomial
			} else {
				crc <<= 1
			}
		}
		table[i] = crc
	}
	return &table
})

// UpdateCRC continues a running CRC over data.
func UpdateCRC(crc uint16, data []byte) uint16 {
	table := crcTable()
	for _, b := range data {
		crc = crc<<8 ^ table[byte(crc>>8)^b]
	}
	return crc
}

// Initial CRC of an MFM field: preset, then three A1 sync bytes.
var mfmPreset = sync.OnceValue(func() uint16 {
	return UpdateCRC(0xFFFF, []byte{SyncA1, SyncA1, SyncA1})
})

// FieldCRC computes the CRC of an ID or data field,
// starting at its address mark byte.
func FieldCRC(format Format, field []byte) uint16 {
	crc := uint16(0xFFFF)
	if format == FormatMFM {
		crc = mfmPreset()
	}
	return UpdateCRC(crc, field)
}
