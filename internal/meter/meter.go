// Package meter runs the read cycle: bytes from the transport accumulate in a
// buffer, frames are delimited and checksum validated, decoded into records
// and decorated.
package meter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"gitlab.com/d21d3q/gosml/internal/decorate"
	"gitlab.com/d21d3q/gosml/internal/frame"
	"gitlab.com/d21d3q/gosml/internal/metrics"
	"gitlab.com/d21d3q/gosml/internal/obis"
	"gitlab.com/d21d3q/gosml/internal/records"
)

// ErrIncompleteFrame reports that more bytes are needed.
var ErrIncompleteFrame = frame.ErrIncomplete

// DecodeError wraps a decoder failure for a frame that passed validation.
// The frame has been dropped.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("meter: decode frame: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Source supplies raw bytes. ReadBurst blocks up to a bounded timeout.
type Source interface {
	ReadBurst(ctx context.Context) ([]byte, error)
}

// Discarder is implemented by sources that can drop input buffered while the
// reader was idle.
type Discarder interface {
	Discard() error
}

// Reading is the outcome of one successful cycle.
type Reading struct {
	Time time.Time
	// Frame is a copy of the validated frame without its checksum.
	Frame   []byte
	Records map[obis.Code]decorate.Record
}

const defaultMaxBuffer = 64 * 1024

// Reader owns the byte buffer of one meter connection. It is not safe for
// concurrent use.
type Reader struct {
	src       Source
	dec       records.Decoder
	log       logrus.FieldLogger
	maxBuffer int
	now       func() time.Time

	buf []byte
}

// Option customises a Reader.
type Option func(*Reader)

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(r *Reader) { r.log = log }
}

// WithMaxBuffer bounds the accumulated bytes; the oldest are dropped first.
func WithMaxBuffer(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.maxBuffer = n
		}
	}
}

// WithClock replaces time.Now for reading timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Reader) { r.now = now }
}

// NewReader returns a reader pulling from src and decoding with dec.
func NewReader(src Source, dec records.Decoder, opts ...Option) *Reader {
	r := &Reader{
		src:       src,
		dec:       dec,
		log:       logrus.StandardLogger(),
		maxBuffer: defaultMaxBuffer,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.WithField("component", "meter")
	return r
}

// Buffered returns the number of bytes waiting in the buffer.
func (r *Reader) Buffered() int {
	return len(r.buf)
}

// Reset drops buffered bytes and asks the source to discard its input.
func (r *Reader) Reset() error {
	r.buf = r.buf[:0]
	if d, ok := r.src.(Discarder); ok {
		return d.Discard()
	}
	return nil
}

// Cycle reads once from the source and tries to extract a reading. Besides
// source errors it returns ErrIncompleteFrame or a *DecodeError.
func (r *Reader) Cycle(ctx context.Context) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}
	data, err := r.src.ReadBurst(ctx)
	if err != nil {
		return Reading{}, err
	}
	metrics.RecordBytes(len(data))
	r.Push(data)
	return r.Next()
}

// Push appends bytes to the buffer.
func (r *Reader) Push(data []byte) {
	r.buf = append(r.buf, data...)
	if over := len(r.buf) - r.maxBuffer; over > 0 {
		r.log.WithField("dropped", over).Warn("buffer full, dropping oldest bytes")
		r.consume(over)
	}
}

// Next extracts the first valid frame already buffered. Candidates failing
// the checksum are logged, counted and skipped.
func (r *Reader) Next() (Reading, error) {
	for {
		f, next, err := frame.Extract(r.buf)
		switch {
		case err == nil:
			reading := Reading{Time: r.now(), Frame: append([]byte(nil), f.Bytes()...)}
			recs, decErr := r.dec.Decode(f.Payload())
			r.consume(next)
			if decErr != nil {
				metrics.RecordFrame(metrics.ResultDecodeError)
				r.log.WithError(decErr).WithField("frame_len", len(reading.Frame)).Warn("dropping undecodable frame")
				return Reading{}, &DecodeError{Err: decErr}
			}
			metrics.RecordFrame(metrics.ResultValid)
			reading.Records = decorate.Decorate(recs)
			r.log.WithFields(logrus.Fields{
				"frame_len": len(reading.Frame),
				"records":   len(reading.Records),
			}).Debug("frame decoded")
			return reading, nil
		case errors.Is(err, frame.ErrChecksumMismatch):
			var mismatch *frame.ChecksumMismatchError
			if errors.As(err, &mismatch) {
				r.log.WithFields(logrus.Fields{
					"embedded": fmt.Sprintf("0x%04X", mismatch.Embedded),
					"computed": fmt.Sprintf("0x%04X", mismatch.Computed),
				}).Warn("frame checksum mismatch")
			}
			metrics.RecordFrame(metrics.ResultChecksumMismatch)
			r.consume(next)
		default:
			r.consume(next)
			return Reading{}, err
		}
	}
}

func (r *Reader) consume(n int) {
	kept := copy(r.buf, r.buf[n:])
	r.buf = r.buf[:kept]
}
