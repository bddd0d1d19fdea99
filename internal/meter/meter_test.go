package meter

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"gitlab.com/d21d3q/gosml/internal/frame"
	"gitlab.com/d21d3q/gosml/internal/obis"
	"gitlab.com/d21d3q/gosml/internal/records"
	"gitlab.com/d21d3q/gosml/internal/sml"
	"gitlab.com/d21d3q/gosml/internal/testutil"
	"gitlab.com/d21d3q/gosml/internal/transport"
)

type burst struct {
	data []byte
	err  error
}

type fakeSource struct {
	bursts    []burst
	discarded int
}

func (f *fakeSource) ReadBurst(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(f.bursts) == 0 {
		return nil, transport.ErrTimeout
	}
	b := f.bursts[0]
	f.bursts = f.bursts[1:]
	return b.data, b.err
}

func (f *fakeSource) Discard() error {
	f.discarded++
	return nil
}

func newTestReader(src Source, dec records.Decoder, opts ...Option) *Reader {
	log, _ := test.NewNullLogger()
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	opts = append([]Option{WithLogger(log), WithClock(func() time.Time { return fixed })}, opts...)
	return NewReader(src, dec, opts...)
}

func fixture(t *testing.T) []byte {
	t.Helper()
	return testutil.LoadBytes(t, "frames/emh_ehz.hex")
}

var totalID = obis.MustParse("1-0:1.8.0*255")

func TestCycleSingleFrame(t *testing.T) {
	raw := fixture(t)
	src := &fakeSource{bursts: []burst{{data: raw}}}
	r := newTestReader(src, sml.Decoder{VerifyCRC: true})

	reading, err := r.Cycle(context.Background())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(reading.Records) != 6 {
		t.Fatalf("expected 6 records, got %d", len(reading.Records))
	}
	total, ok := reading.Records[totalID]
	if !ok {
		t.Fatalf("missing %s", totalID)
	}
	if total.Unit == nil || *total.Unit != "Wh" {
		t.Fatalf("unexpected unit %v", total.Unit)
	}
	if got := len(reading.Frame); got != len(raw)-2 {
		t.Fatalf("frame length %d, want %d", got, len(raw)-2)
	}
	if reading.Time.IsZero() {
		t.Fatalf("reading time not set")
	}
	if r.Buffered() != 0 {
		t.Fatalf("buffer should be empty, has %d bytes", r.Buffered())
	}
}

func TestCycleFrameSplitAcrossBursts(t *testing.T) {
	raw := fixture(t)
	src := &fakeSource{bursts: []burst{{data: raw[:100]}, {data: raw[100:]}}}
	r := newTestReader(src, sml.Decoder{})

	if _, err := r.Cycle(context.Background()); !errors.Is(err, ErrIncompleteFrame) {
		t.Fatalf("expected incomplete frame, got %v", err)
	}
	reading, err := r.Cycle(context.Background())
	if err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if len(reading.Records) != 6 {
		t.Fatalf("expected 6 records, got %d", len(reading.Records))
	}
}

func TestNextSkipsCorruptFrame(t *testing.T) {
	raw := fixture(t)
	bad := append([]byte(nil), raw...)
	bad[40] ^= 0x01

	r := newTestReader(&fakeSource{}, sml.Decoder{})
	r.Push([]byte{0x00, 0xff})
	r.Push(bad)
	r.Push(raw)

	reading, err := r.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if len(reading.Records) != 6 {
		t.Fatalf("expected 6 records, got %d", len(reading.Records))
	}
	if r.Buffered() != 0 {
		t.Fatalf("expected empty buffer, got %d bytes", r.Buffered())
	}
}

func TestNextDecodeError(t *testing.T) {
	junk := frame.Build([]byte{0x76, 0x05})
	failing := records.DecoderFunc(func([]byte) ([]records.Record, error) {
		return nil, errors.New("boom")
	})
	r := newTestReader(&fakeSource{}, failing)
	r.Push(junk)

	_, err := r.Next()
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if r.Buffered() != 0 {
		t.Fatalf("undecodable frame should be consumed")
	}
	if _, err := r.Next(); !errors.Is(err, ErrIncompleteFrame) {
		t.Fatalf("expected incomplete after drop, got %v", err)
	}
}

func TestNextMalformedListLength(t *testing.T) {
	payload := append(append([]byte{0xF8}, bytes.Repeat([]byte{0x8F}, 14)...), 0x0F)
	r := newTestReader(&fakeSource{}, sml.Decoder{})
	r.Push(frame.Build(payload))

	_, err := r.Next()
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if r.Buffered() != 0 {
		t.Fatalf("frame should be dropped, %d bytes left", r.Buffered())
	}
}

func TestCycleTimeout(t *testing.T) {
	r := newTestReader(&fakeSource{}, sml.Decoder{})
	if _, err := r.Cycle(context.Background()); !errors.Is(err, transport.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestNoiseKeepsBufferBounded(t *testing.T) {
	r := newTestReader(&fakeSource{}, sml.Decoder{})
	noise := make([]byte, 1024)
	for i := range noise {
		noise[i] = byte(i%200) + 0x20
	}
	for i := 0; i < 10; i++ {
		r.Push(noise)
		if _, err := r.Next(); !errors.Is(err, ErrIncompleteFrame) {
			t.Fatalf("expected incomplete, got %v", err)
		}
	}
	if r.Buffered() >= len(frame.StartMarker()) {
		t.Fatalf("noise should be discarded, %d bytes left", r.Buffered())
	}
}

func TestMaxBufferDropsOldest(t *testing.T) {
	raw := fixture(t)
	r := newTestReader(&fakeSource{}, sml.Decoder{}, WithMaxBuffer(len(raw)))
	r.Push(make([]byte, 50))
	r.Push(raw)
	if r.Buffered() != len(raw) {
		t.Fatalf("buffer %d, want %d", r.Buffered(), len(raw))
	}
	if _, err := r.Next(); err != nil {
		t.Fatalf("frame should survive trimming: %v", err)
	}
}

func TestRunDeliversAndResets(t *testing.T) {
	raw := fixture(t)
	src := &fakeSource{bursts: []burst{
		{err: errors.New("port gone")},
		{data: raw[:30]},
		{data: raw[30:]},
		{data: raw},
	}}
	r := newTestReader(src, sml.Decoder{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []Reading
	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx, time.Millisecond, func(_ context.Context, reading Reading) error {
			got = append(got, reading)
			if len(got) == 2 {
				cancel()
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("run did not stop")
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 readings, got %d", len(got))
	}
	if src.discarded != 1 {
		t.Fatalf("expected one discard, got %d", src.discarded)
	}
}
