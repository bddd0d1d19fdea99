// Package frame delimits and validates SML transport frames inside an
// accumulating byte buffer.
//
// Wire format:
//
//	START(8) || payload || END(5) || fill count(1) || checksum(2, big endian)
//
// The checksum covers every byte from the first START byte through the fill
// count byte.
package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"gitlab.com/d21d3q/gosml/internal/crc"
)

var (
	// startMarker opens an SML file: escape sequence followed by version 1 marker.
	startMarker = []byte{0x1B, 0x1B, 0x1B, 0x1B, 0x01, 0x01, 0x01, 0x01}
	// endMarker closes an SML file; it is followed by the fill count and checksum.
	endMarker = []byte{0x1B, 0x1B, 0x1B, 0x1B, 0x1A}
)

// StartMarker returns a copy of the sequence opening a frame.
func StartMarker() []byte {
	return append([]byte(nil), startMarker...)
}

// EndMarker returns a copy of the sequence closing a frame.
func EndMarker() []byte {
	return append([]byte(nil), endMarker...)
}

// trailerLen is the number of bytes following the end marker: fill count + checksum.
const trailerLen = 1 + crc.Size

var (
	// ErrIncomplete reports that the buffer does not hold a complete frame
	// yet. Callers keep accumulating bytes and retry.
	ErrIncomplete = errors.New("frame: incomplete")
	// ErrChecksumMismatch is matched by every *ChecksumMismatchError.
	ErrChecksumMismatch = errors.New("frame: checksum mismatch")
)

// ChecksumMismatchError carries both checksums of a rejected candidate.
type ChecksumMismatchError struct {
	Offset   int
	Embedded uint16
	Computed uint16
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("frame: checksum mismatch at offset %d: embedded 0x%04X computed 0x%04X",
		e.Offset, e.Embedded, e.Computed)
}

// Is lets errors.Is match ErrChecksumMismatch.
func (e *ChecksumMismatchError) Is(target error) bool {
	return target == ErrChecksumMismatch
}

// Candidate is a structurally complete span of a buffer that has not been
// checksum validated. It references the buffer it was found in.
type Candidate struct {
	// Start is the index of the first START byte.
	Start int
	// End is the index one past the last checksum byte.
	End int

	buf []byte
}

// Bytes returns the candidate span, checksum included.
func (c Candidate) Bytes() []byte {
	return c.buf[c.Start:c.End]
}

// Embedded returns the checksum carried in the last two bytes of the span.
func (c Candidate) Embedded() uint16 {
	return binary.BigEndian.Uint16(c.buf[c.End-crc.Size : c.End])
}

// Find locates the first candidate frame in buf. It returns ErrIncomplete
// when START is missing, when no END follows it, or when the bytes after END
// have not all arrived.
func Find(buf []byte) (Candidate, error) {
	start := bytes.Index(buf, startMarker)
	if start < 0 {
		return Candidate{}, ErrIncomplete
	}
	rel := bytes.Index(buf[start+len(startMarker):], endMarker)
	if rel < 0 {
		return Candidate{}, ErrIncomplete
	}
	end := start + len(startMarker) + rel + len(endMarker) + trailerLen
	if end > len(buf) {
		return Candidate{}, ErrIncomplete
	}
	return Candidate{Start: start, End: end, buf: buf}, nil
}

// Frame is a checksum validated frame. It excludes the checksum field.
type Frame struct {
	raw []byte
}

// Bytes returns START through the fill count byte.
func (f Frame) Bytes() []byte {
	return f.raw
}

// Fill returns the number of padding bytes announced by the fill count.
func (f Frame) Fill() int {
	return int(f.raw[len(f.raw)-1])
}

// Payload returns the bytes between START and END with the announced padding
// removed. A fill count larger than the payload leaves it untouched.
func (f Frame) Payload() []byte {
	body := f.raw[len(startMarker) : len(f.raw)-len(endMarker)-1]
	if n := f.Fill(); n <= len(body) {
		body = body[:len(body)-n]
	}
	return body
}

// Validate recomputes the checksum over the candidate without its last two
// bytes and compares it with the embedded value.
func Validate(c Candidate) (Frame, error) {
	span := c.Bytes()
	covered := span[:len(span)-crc.Size]
	computed := crc.Checksum(covered)
	if embedded := c.Embedded(); computed != embedded {
		return Frame{}, &ChecksumMismatchError{Offset: c.Start, Embedded: embedded, Computed: computed}
	}
	return Frame{raw: covered}, nil
}

// Extract finds and validates the first frame in buf. next is the number of
// leading bytes the caller may discard before scanning again:
//   - after a valid frame, the index just past its checksum;
//   - after a checksum mismatch, one past the rejected START;
//   - when incomplete, the START index, or everything but a possible partial
//     START when no START was seen.
func Extract(buf []byte) (f Frame, next int, err error) {
	c, err := Find(buf)
	if err != nil {
		if start := bytes.Index(buf, startMarker); start >= 0 {
			return Frame{}, start, err
		}
		if keep := len(startMarker) - 1; len(buf) > keep {
			return Frame{}, len(buf) - keep, err
		}
		return Frame{}, 0, err
	}
	f, err = Validate(c)
	if err != nil {
		return Frame{}, c.Start + 1, err
	}
	return f, c.End, nil
}

// Build frames payload: it pads the payload with zero bytes to a multiple of
// four, appends END, the fill count and the checksum.
func Build(payload []byte) []byte {
	fill := (4 - len(payload)%4) % 4
	out := make([]byte, 0, len(startMarker)+len(payload)+fill+len(endMarker)+trailerLen)
	out = append(out, startMarker...)
	out = append(out, payload...)
	out = append(out, make([]byte, fill)...)
	out = append(out, endMarker...)
	out = append(out, byte(fill))
	return crc.Append(out, out)
}
