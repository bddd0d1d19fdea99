// Package gosml decodes SML frames captured from smart meter optical heads.
package gosml

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"gitlab.com/d21d3q/gosml/internal/crc"
	"gitlab.com/d21d3q/gosml/internal/decorate"
	"gitlab.com/d21d3q/gosml/internal/frame"
	"gitlab.com/d21d3q/gosml/internal/publish"
	"gitlab.com/d21d3q/gosml/internal/records"
	_ "gitlab.com/d21d3q/gosml/internal/sml" // register decoder
)

// ErrNoFrame is returned when the input holds no complete frame.
var ErrNoFrame = errors.New("gosml: no complete frame in input")

// Result captures the outcome of AnalyzeHex.
type Result struct {
	Decoder   string
	RawHex    string
	ByteCount int
	// Offset is the position of the decoded frame's START marker.
	Offset int
	// Skipped counts candidates rejected by the frame checksum.
	Skipped int
	Fill    int
	Payload []byte
	Records map[string]publish.Entry
}

// String renders a human-readable representation of the result.
func (r Result) String() string {
	summary := map[string]any{
		"decoder":     r.Decoder,
		"byte_count":  r.ByteCount,
		"offset":      r.Offset,
		"fill":        r.Fill,
		"payload_hex": strings.ToUpper(hex.EncodeToString(r.Payload)),
	}
	if r.Skipped > 0 {
		summary["skipped"] = r.Skipped
	}
	if len(r.Records) > 0 {
		summary["records"] = r.Records
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Sprintf("decoder: %s bytes:%d raw:%s (marshal error: %v)", r.Decoder, r.ByteCount, r.RawHex, err)
	}
	return string(data)
}

// AnalyzeHex extracts the first valid frame and returns its decorated records.
func AnalyzeHex(ctx context.Context, raw string) (Result, error) {
	return AnalyzeHexWithOptions(ctx, raw, AnalyzeOptions{})
}

// AnalyzeHexWithOptions extracts and decodes with custom options.
func AnalyzeHexWithOptions(ctx context.Context, raw string, opts AnalyzeOptions) (Result, error) {
	data, err := decodeHex(raw)
	if err != nil {
		return Result{}, err
	}
	return analyze(ctx, data, strings.ToUpper(stripWhitespace(raw)), opts)
}

// AnalyzeBytes is AnalyzeHexWithOptions for raw bytes.
func AnalyzeBytes(ctx context.Context, data []byte, opts AnalyzeOptions) (Result, error) {
	return analyze(ctx, data, strings.ToUpper(hex.EncodeToString(data)), opts)
}

func analyze(ctx context.Context, data []byte, rawHex string, opts AnalyzeOptions) (Result, error) {
	cfg, err := opts.toInternal()
	if err != nil {
		return Result{}, err
	}
	dec, err := records.Lookup(cfg.decoder, cfg.decoderOpts)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Decoder:   cfg.decoder,
		RawHex:    rawHex,
		ByteCount: len(data),
	}

	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		f, next, err := frame.Extract(data[offset:])
		switch {
		case err == nil:
			result.Offset = offset + next - len(f.Bytes()) - crc.Size
			result.Fill = f.Fill()
			result.Payload = append([]byte(nil), f.Payload()...)
			recs, err := dec.Decode(f.Payload())
			if err != nil {
				return result, fmt.Errorf("decode frame at offset %d: %w", result.Offset, err)
			}
			result.Records = publish.Payload(decorate.Decorate(recs), cfg.keyFormat)
			return result, nil
		case errors.Is(err, frame.ErrChecksumMismatch):
			result.Skipped++
			offset += next
		default:
			return result, fmt.Errorf("%w: %v", ErrNoFrame, err)
		}
	}
}

func decodeHex(input string) ([]byte, error) {
	clean := stripWhitespace(input)
	if strings.HasPrefix(clean, "0X") || strings.HasPrefix(clean, "0x") {
		clean = clean[2:]
	}
	if len(clean)%2 != 0 {
		return nil, fmt.Errorf("hex frame must contain an even number of digits, got %d", len(clean))
	}
	decoded := make([]byte, len(clean)/2)
	if _, err := hex.Decode(decoded, []byte(clean)); err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	return decoded, nil
}

func stripWhitespace(s string) string {
	builder := strings.Builder{}
	builder.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) || r == '|' || r == '_' {
			continue
		}
		builder.WriteRune(r)
	}
	return builder.String()
}
