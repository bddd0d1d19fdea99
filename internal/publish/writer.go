package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"gitlab.com/d21d3q/gosml/internal/meter"
	"gitlab.com/d21d3q/gosml/internal/obis"
)

// Output formats understood by NewWriter.
const (
	FormatJSON  = "json"
	FormatCSV   = "csv"
	FormatPlain = "plain"
)

// Encoder is satisfied by json.Encoder and CSVEncoder.
type Encoder interface {
	Encode(any) error
}

// Writer prints readings to a stream, one JSON object per line, one CSV row
// per record or a human readable block.
type Writer struct {
	w         io.Writer
	format    string
	keyFormat obis.Format
	enc       Encoder
}

// NewWriter returns a Writer for the given output format.
func NewWriter(w io.Writer, format string, keyFormat obis.Format) (*Writer, error) {
	wr := &Writer{w: w, format: strings.ToLower(format), keyFormat: keyFormat}
	switch wr.format {
	case FormatJSON:
		wr.enc = json.NewEncoder(w)
	case FormatCSV:
		wr.enc = NewCSVEncoder(w)
	case FormatPlain:
	default:
		return nil, fmt.Errorf("publish: unknown output format %q", format)
	}
	return wr, nil
}

// Publish writes reading.
func (wr *Writer) Publish(_ context.Context, reading meter.Reading) error {
	payload := Payload(reading.Records, wr.keyFormat)
	switch wr.format {
	case FormatJSON:
		return wr.enc.Encode(payload)
	case FormatCSV:
		for _, row := range rows(reading.Time, payload) {
			if err := wr.enc.Encode(row); err != nil {
				return fmt.Errorf("publish: write csv: %w", err)
			}
		}
		return nil
	default:
		return wr.plain(reading.Time, payload)
	}
}

// Close is a no-op; the caller owns the stream.
func (wr *Writer) Close() error { return nil }

func (wr *Writer) plain(ts time.Time, payload map[string]Entry) error {
	var b strings.Builder
	fmt.Fprintf(&b, "{Time:%s Records:%d}\n", ts.Format(time.RFC3339), len(payload))
	for _, key := range sortedKeys(payload) {
		e := payload[key]
		fmt.Fprintf(&b, "  %-12s %v", key, e.DataValue)
		if e.DataUnit != nil {
			fmt.Fprintf(&b, " %s", *e.DataUnit)
		}
		if e.DataType != nil {
			fmt.Fprintf(&b, " (%s)", *e.DataType)
		}
		b.WriteByte('\n')
	}
	_, err := io.WriteString(wr.w, b.String())
	return err
}

type row struct {
	time  time.Time
	key   string
	entry Entry
}

// Record implements Recorder: time, key, value, unit, description.
func (r row) Record() []string {
	return []string{
		r.time.Format(time.RFC3339Nano),
		r.key,
		formatValue(r.entry.DataValue),
		deref(r.entry.DataUnit),
		deref(r.entry.DataType),
	}
}

func rows(ts time.Time, payload map[string]Entry) []row {
	out := make([]row, 0, len(payload))
	for _, key := range sortedKeys(payload) {
		out = append(out, row{time: ts, key: key, entry: payload[key]})
	}
	return out
}

func formatValue(v any) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(n)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func sortedKeys(payload map[string]Entry) []string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
