// Package crc computes the CRC16/X.25 checksum that terminates SML frames.
package crc

import (
	"math/bits"

	"github.com/sigurn/crc16"
)

// Size is the length of an encoded checksum in bytes.
const Size = 2

var table = crc16.MakeTable(crc16.CRC16_X_25)

// Checksum returns the CRC16/X.25 of data (reflected poly 0x8408, init and
// final XOR 0xFFFF) with its bytes swapped, so it compares equal to the
// checksum field of a frame read as a big-endian uint16.
func Checksum(data []byte) uint16 {
	return bits.ReverseBytes16(crc16.Checksum(data, table))
}

// Append appends the checksum of data to dst in wire order.
func Append(dst, data []byte) []byte {
	sum := Checksum(data)
	return append(dst, byte(sum>>8), byte(sum))
}
