// Package sml decodes the Smart Message Language file carried inside a
// validated transport frame into measurement records.
//
// Only GetList responses are interpreted; open, close and other message
// bodies are skipped. Each entry of a GetList value list yields one record.
package sml

import (
	"bytes"

	"gitlab.com/d21d3q/gosml/internal/crc"
	"gitlab.com/d21d3q/gosml/internal/obis"
	"gitlab.com/d21d3q/gosml/internal/records"
)

const (
	tagGetListResponse = 0x00000701

	messageFields = 6
	listEntryLen  = 7
	getListLen    = 7
	valListIndex  = 4
)

var escape = []byte{0x1B, 0x1B, 0x1B, 0x1B}

func init() {
	records.Register("sml", func(opts records.Options) records.Decoder {
		return Decoder{VerifyCRC: opts.VerifyCRC}
	})
}

// Decoder implements records.Decoder for SML version 1 files.
type Decoder struct {
	// VerifyCRC checks the CRC16 carried by every message.
	VerifyCRC bool
}

var _ records.Decoder = Decoder{}

// Decode parses payload, the bytes between the frame's start and end
// escape sequences with padding removed.
func (d Decoder) Decode(payload []byte) ([]records.Record, error) {
	data := Unescape(payload)
	p := &parser{buf: data}
	var out []records.Record
	for p.off < len(data) {
		if data[p.off] == 0x00 {
			p.off++
			continue
		}
		start := p.off
		msg, err := p.value(0)
		if err != nil {
			return nil, err
		}
		if msg.kind != kindList || len(msg.list) != messageFields {
			return nil, p.errorf(start, "message is not a list of %d elements", messageFields)
		}
		if msg.list[5].kind != kindEnd {
			return nil, p.errorf(msg.list[5].off, "missing end of message")
		}
		if d.VerifyCRC {
			if err := verifyMessage(data[start:], msg, start); err != nil {
				return nil, err
			}
		}
		recs, err := listEntries(msg.list[3])
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

// Unescape collapses doubled escape sequences inside the payload. It returns
// payload itself when there is nothing to collapse.
func Unescape(payload []byte) []byte {
	doubled := append(append([]byte(nil), escape...), escape...)
	if !bytes.Contains(payload, doubled) {
		return payload
	}
	return bytes.ReplaceAll(payload, doubled, escape)
}

func verifyMessage(msgBytes []byte, msg node, start int) error {
	sum := msg.list[4]
	if sum.kind != kindUint {
		return &SyntaxError{Offset: sum.off, Msg: "message checksum is not unsigned"}
	}
	if got := crc.Checksum(msgBytes[:sum.off-start]); uint64(got) != sum.u {
		return &SyntaxError{Offset: start, Msg: "message checksum mismatch"}
	}
	return nil
}

func listEntries(body node) ([]records.Record, error) {
	if body.kind != kindList || len(body.list) != 2 {
		return nil, &SyntaxError{Offset: body.off, Msg: "message body is not a tagged choice"}
	}
	tag := body.list[0]
	if tag.kind != kindUint || tag.u != tagGetListResponse {
		return nil, nil
	}
	resp := body.list[1]
	if resp.kind != kindList || len(resp.list) != getListLen {
		return nil, &SyntaxError{Offset: resp.off, Msg: "malformed GetList response"}
	}
	vals := resp.list[valListIndex]
	if vals.kind == kindOmitted {
		return nil, nil
	}
	if vals.kind != kindList {
		return nil, &SyntaxError{Offset: vals.off, Msg: "value list is not a list"}
	}
	out := make([]records.Record, 0, len(vals.list))
	for _, entry := range vals.list {
		rec, err := listEntry(entry)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func listEntry(n node) (records.Record, error) {
	if n.kind != kindList || len(n.list) != listEntryLen {
		return records.Record{}, &SyntaxError{Offset: n.off, Msg: "malformed list entry"}
	}
	name, status, unit, scaler, value := n.list[0], n.list[1], n.list[3], n.list[4], n.list[5]

	if name.kind != kindOctets {
		return records.Record{}, &SyntaxError{Offset: name.off, Msg: "list entry without object name"}
	}
	id, err := obis.FromBytes(name.octets)
	if err != nil {
		return records.Record{}, &SyntaxError{Offset: name.off, Msg: err.Error()}
	}
	rec := records.Record{ID: id}

	switch status.kind {
	case kindUint:
		rec.Status = status.u
	case kindOmitted:
	default:
		return records.Record{}, &SyntaxError{Offset: status.off, Msg: "status is not unsigned"}
	}

	switch unit.kind {
	case kindUint:
		if unit.u > 0xFF {
			return records.Record{}, &SyntaxError{Offset: unit.off, Msg: "unit code out of range"}
		}
		rec.Unit = uint8(unit.u)
	case kindOmitted:
	default:
		return records.Record{}, &SyntaxError{Offset: unit.off, Msg: "unit is not unsigned"}
	}

	switch scaler.kind {
	case kindInt:
		if scaler.i < -128 || scaler.i > 127 {
			return records.Record{}, &SyntaxError{Offset: scaler.off, Msg: "scaler out of range"}
		}
		s := int8(scaler.i)
		rec.Scaler = &s
	case kindOmitted:
	default:
		return records.Record{}, &SyntaxError{Offset: scaler.off, Msg: "scaler is not an integer"}
	}

	switch value.kind {
	case kindOctets:
		rec.Value = append([]byte(nil), value.octets...)
	case kindInt:
		rec.Value = value.i
	case kindUint:
		rec.Value = value.u
	case kindBool:
		rec.Value = value.b
	}
	return rec, nil
}
