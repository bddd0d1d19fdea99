package sml

import (
	"encoding/binary"
	"fmt"
)

// SyntaxError reports malformed SML at a payload offset.
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("sml: %s at offset %d", e.Msg, e.Offset)
}

type kind uint8

const (
	kindOctets kind = iota
	kindBool
	kindInt
	kindUint
	kindList
	kindOmitted
	kindEnd
)

const (
	typeOctets = 0x00
	typeBool   = 0x40
	typeInt    = 0x50
	typeUint   = 0x60
	typeList   = 0x70

	maxDepth = 16
)

// node is one TL-encoded value.
type node struct {
	kind   kind
	off    int
	octets []byte
	i      int64
	u      uint64
	b      bool
	list   []node
}

type parser struct {
	buf []byte
	off int
}

func (p *parser) errorf(off int, format string, args ...any) error {
	return &SyntaxError{Offset: off, Msg: fmt.Sprintf(format, args...)}
}

// tl reads a type-length field. For lists length is the element count, for
// all other types it is the total size including the TL bytes.
func (p *parser) tl() (typ byte, length, size int, err error) {
	if p.off >= len(p.buf) {
		return 0, 0, 0, p.errorf(p.off, "unexpected end of data")
	}
	b := p.buf[p.off]
	typ = b & 0x70
	length = int(b & 0x0F)
	size = 1
	for b&0x80 != 0 {
		if p.off+size >= len(p.buf) {
			return 0, 0, 0, p.errorf(p.off, "truncated type-length field")
		}
		b = p.buf[p.off+size]
		size++
		length = length<<4 | int(b&0x0F)
		if length > len(p.buf) {
			return 0, 0, 0, p.errorf(p.off, "length %d exceeds data", length)
		}
	}
	return typ, length, size, nil
}

func (p *parser) value(depth int) (node, error) {
	if depth > maxDepth {
		return node{}, p.errorf(p.off, "nesting deeper than %d", maxDepth)
	}
	start := p.off
	if p.off < len(p.buf) {
		switch p.buf[p.off] {
		case 0x00:
			p.off++
			return node{kind: kindEnd, off: start}, nil
		case 0x01:
			p.off++
			return node{kind: kindOmitted, off: start}, nil
		}
	}
	typ, length, size, err := p.tl()
	if err != nil {
		return node{}, err
	}
	p.off += size

	if typ == typeList {
		// Every element takes at least one byte.
		if length > len(p.buf)-p.off {
			return node{}, p.errorf(start, "list of %d elements exceeds data", length)
		}
		n := node{kind: kindList, off: start, list: make([]node, 0, length)}
		for i := 0; i < length; i++ {
			el, err := p.value(depth + 1)
			if err != nil {
				return node{}, err
			}
			n.list = append(n.list, el)
		}
		return n, nil
	}

	dataLen := length - size
	if dataLen < 0 {
		return node{}, p.errorf(start, "length %d shorter than its type-length field", length)
	}
	if p.off+dataLen > len(p.buf) {
		return node{}, p.errorf(start, "value of %d bytes exceeds data", dataLen)
	}
	data := p.buf[p.off : p.off+dataLen]
	p.off += dataLen

	switch typ {
	case typeOctets:
		if dataLen == 0 {
			return node{kind: kindOmitted, off: start}, nil
		}
		return node{kind: kindOctets, off: start, octets: data}, nil
	case typeBool:
		if dataLen != 1 {
			return node{}, p.errorf(start, "boolean of %d bytes", dataLen)
		}
		return node{kind: kindBool, off: start, b: data[0] != 0}, nil
	case typeInt, typeUint:
		if dataLen == 0 || dataLen > 8 {
			return node{}, p.errorf(start, "integer of %d bytes", dataLen)
		}
		var raw [8]byte
		copy(raw[8-dataLen:], data)
		u := binary.BigEndian.Uint64(raw[:])
		if typ == typeUint {
			return node{kind: kindUint, off: start, u: u}, nil
		}
		shift := uint(64 - 8*dataLen)
		return node{kind: kindInt, off: start, i: int64(u<<shift) >> shift}, nil
	default:
		return node{}, p.errorf(start, "unknown type 0x%02X", typ)
	}
}
