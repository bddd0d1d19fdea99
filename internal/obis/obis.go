// Package obis models OBIS identifiers (IEC 62056-61), the hierarchical codes
// naming each quantity a meter reports.
package obis

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Code is the six value groups A-B:C.D.E*F of an OBIS identifier.
type Code [6]byte

// FromBytes converts an SML object name. It must be exactly six bytes long.
func FromBytes(b []byte) (Code, error) {
	var c Code
	if len(b) != len(c) {
		return c, fmt.Errorf("obis: object name must be %d bytes, got %d", len(c), len(b))
	}
	copy(c[:], b)
	return c, nil
}

// Parse accepts twelve hex digits ("0100010800ff") or the reduced ID notation
// ("1-0:1.8.0*255"). A missing "*F" group defaults to 255.
func Parse(s string) (Code, error) {
	var c Code
	s = strings.TrimSpace(s)
	if len(s) == 2*len(c) && !strings.ContainsAny(s, "-:.*") {
		if _, err := hex.Decode(c[:], []byte(s)); err != nil {
			return Code{}, fmt.Errorf("obis: invalid hex identifier %q: %w", s, err)
		}
		return c, nil
	}
	rest := s
	seps := []string{"-", ":", ".", ".", "*"}
	for i, sep := range seps {
		part := rest
		idx := strings.Index(rest, sep)
		switch {
		case idx >= 0:
			part, rest = rest[:idx], rest[idx+1:]
		case sep == "*":
			rest = "255"
		default:
			return Code{}, fmt.Errorf("obis: invalid identifier %q: missing %q", s, sep)
		}
		v, err := strconv.ParseUint(part, 10, 8)
		if err != nil {
			return Code{}, fmt.Errorf("obis: invalid group %d of %q: %w", i, s, err)
		}
		c[i] = byte(v)
	}
	v, err := strconv.ParseUint(rest, 10, 8)
	if err != nil {
		return Code{}, fmt.Errorf("obis: invalid group 5 of %q: %w", s, err)
	}
	c[5] = byte(v)
	return c, nil
}

// MustParse is like Parse but panics on error. Intended for tables and tests.
func MustParse(s string) Code {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Hex returns the normalised lower-case hex form, e.g. "0100010800ff".
func (c Code) Hex() string {
	return hex.EncodeToString(c[:])
}

// Short returns the C.D.E groups, e.g. "1.8.0".
func (c Code) Short() string {
	return fmt.Sprintf("%d.%d.%d", c[2], c[3], c[4])
}

// String returns the reduced ID notation, e.g. "1-0:1.8.0*255".
func (c Code) String() string {
	return fmt.Sprintf("%d-%d:%d.%d.%d*%d", c[0], c[1], c[2], c[3], c[4], c[5])
}

// MarshalText renders the reduced ID notation.
func (c Code) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText accepts any form Parse does.
func (c *Code) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Format selects how identifiers are rendered as map keys.
type Format string

const (
	FormatShort Format = "short"
	FormatFull  Format = "full"
	FormatHex   Format = "hex"
)

// ParseFormat validates a format name. The empty string selects FormatShort.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatShort, nil
	case FormatShort, FormatFull, FormatHex:
		return f, nil
	default:
		return "", fmt.Errorf("obis: unknown key format %q (want short, full or hex)", s)
	}
}

// Key renders c according to f.
func (f Format) Key(c Code) string {
	switch f {
	case FormatFull:
		return c.String()
	case FormatHex:
		return c.Hex()
	default:
		return c.Short()
	}
}
