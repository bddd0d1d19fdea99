package transport

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

type fakePort struct {
	reads    [][]byte
	readErr  error
	timeouts []time.Duration
	closed   bool
	resets   int
}

func (p *fakePort) Read(b []byte) (int, error) {
	if len(p.reads) == 0 {
		if p.readErr != nil {
			return 0, p.readErr
		}
		return 0, nil
	}
	next := p.reads[0]
	p.reads = p.reads[1:]
	return copy(b, next), nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.timeouts = append(p.timeouts, t)
	return nil
}

func (p *fakePort) ResetInputBuffer() error { p.resets++; return nil }

func (p *fakePort) Close() error { p.closed = true; return nil }

func newTestSerial(t *testing.T, cfg Config, port *fakePort, opens *int) *Serial {
	t.Helper()
	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.TraceLevel)
	return NewSerial(cfg,
		WithLogger(logger),
		WithOpenFunc(func(device string, baud int) (Port, error) {
			*opens++
			require.Equal(t, cfg.Device, device)
			require.Equal(t, cfg.BaudRate, baud)
			return port, nil
		}),
	)
}

func TestReadBurstCollectsUntilIdle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReadTimeout = 20 * time.Millisecond
	port := &fakePort{reads: [][]byte{nil, {0x1B, 0x1B}, {0x1B, 0x1B}, {0x01}}}
	opens := 0
	s := newTestSerial(t, cfg, port, &opens)

	burst, err := s.ReadBurst(context.Background())
	require.NoError(t, err)
	require.Equal(t, []byte{0x1B, 0x1B, 0x1B, 0x1B, 0x01}, burst)
	require.Equal(t, 1, opens)
	require.Equal(t, 1, port.resets)
	require.Equal(t, cfg.InterByteTimeout, port.timeouts[len(port.timeouts)-1])

	_, err = s.ReadBurst(context.Background())
	require.Equal(t, 1, opens, "port must stay open between bursts")
	require.ErrorIs(t, err, ErrTimeout)
}

func TestReadBurstTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReadTimeout = 10 * time.Millisecond
	opens := 0
	s := newTestSerial(t, cfg, &fakePort{}, &opens)

	_, err := s.ReadBurst(context.Background())
	require.ErrorIs(t, err, ErrTimeout)
}

func TestReadBurstMaxBurst(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBurst = 4
	port := &fakePort{reads: [][]byte{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}}}
	opens := 0
	s := newTestSerial(t, cfg, port, &opens)

	burst, err := s.ReadBurst(context.Background())
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6}, burst)
	require.Len(t, port.reads, 1)
}

func TestReadBurstErrorClosesPort(t *testing.T) {
	port := &fakePort{readErr: io.ErrUnexpectedEOF}
	opens := 0
	s := newTestSerial(t, DefaultConfig(), port, &opens)

	_, err := s.ReadBurst(context.Background())
	require.Error(t, err)
	require.Equal(t, io.ErrUnexpectedEOF, errors.Cause(err))
	require.True(t, port.closed)

	port.readErr = nil
	port.reads = [][]byte{{0x42}}
	burst, err := s.ReadBurst(context.Background())
	require.NoError(t, err)
	require.Equal(t, []byte{0x42}, burst)
	require.Equal(t, 2, opens)
}

func TestReadBurstCancelled(t *testing.T) {
	opens := 0
	s := newTestSerial(t, DefaultConfig(), &fakePort{}, &opens)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.ReadBurst(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestOpenError(t *testing.T) {
	logger, _ := test.NewNullLogger()
	s := NewSerial(DefaultConfig(), WithLogger(logger), WithOpenFunc(func(string, int) (Port, error) {
		return nil, errors.New("no such device")
	}))
	_, err := s.ReadBurst(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "/dev/ttyUSB0")
	require.NoError(t, s.Close())
}

func TestDiscard(t *testing.T) {
	port := &fakePort{reads: [][]byte{{0x01}}}
	opens := 0
	s := newTestSerial(t, DefaultConfig(), port, &opens)
	require.NoError(t, s.Discard())
	require.Zero(t, port.resets, "discard on a closed reader is a no-op")

	require.NoError(t, s.Open())
	require.NoError(t, s.Discard())
	require.Equal(t, 2, port.resets)
}
