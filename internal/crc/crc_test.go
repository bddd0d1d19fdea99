package crc

import (
	"encoding/binary"
	"testing"

	crand "crypto/rand"
	mrand "math/rand"
)

const trials = 512

// reference is the byte-at-a-time table form of the algorithm, kept in the
// test to pin the library preset against it.
func reference(data []byte) uint16 {
	var tbl [256]uint16
	for i := range tbl {
		c := uint16(i)
		for b := 0; b < 8; b++ {
			if c&1 != 0 {
				c = c>>1 ^ 0x8408
			} else {
				c >>= 1
			}
		}
		tbl[i] = c
	}
	state := uint16(0xFFFF)
	for _, v := range data {
		state = tbl[(uint16(v)^state)&0xFF] ^ state>>8
	}
	state ^= 0xFFFF
	return state<<8 | state>>8
}

func TestCheckValue(t *testing.T) {
	// CRC-16/X-25 check value of "123456789" is 0x906E, swapped on the wire.
	if got := Checksum([]byte("123456789")); got != 0x6E90 {
		t.Fatalf("checksum mismatch: got 0x%04X want 0x6E90", got)
	}
}

func TestEmpty(t *testing.T) {
	if got, want := Checksum(nil), reference(nil); got != want {
		t.Fatalf("empty checksum: got 0x%04X want 0x%04X", got, want)
	}
}

func TestMatchesReference(t *testing.T) {
	for trial := 0; trial < trials; trial++ {
		buf := make([]byte, mrand.Intn(300))
		crand.Read(buf)
		if got, want := Checksum(buf), reference(buf); got != want {
			t.Fatalf("%02X: got 0x%04X want 0x%04X", buf, got, want)
		}
	}
}

func TestAppend(t *testing.T) {
	for trial := 0; trial < trials; trial++ {
		data := make([]byte, mrand.Intn(64)+1)
		crand.Read(data)

		framed := Append(append([]byte(nil), data...), data)
		if len(framed) != len(data)+Size {
			t.Fatalf("unexpected length %d", len(framed))
		}
		embedded := binary.BigEndian.Uint16(framed[len(data):])
		if embedded != Checksum(data) {
			t.Fatalf("%02X: embedded 0x%04X computed 0x%04X", framed, embedded, Checksum(data))
		}
	}
}

func TestSingleBitFlip(t *testing.T) {
	data := make([]byte, 96)
	crand.Read(data)
	sum := Checksum(data)
	for bit := 0; bit < len(data)*8; bit++ {
		data[bit>>3] ^= 1 << uint(bit&7)
		if Checksum(data) == sum {
			t.Fatalf("flip of bit %d not detected", bit)
		}
		data[bit>>3] ^= 1 << uint(bit&7)
	}
}
