// Package transport reads raw meter bytes from a serial port.
package transport

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// ErrTimeout is returned by ReadBurst when no byte arrived within the read
// timeout.
var ErrTimeout = errors.New("transport: timeout waiting for data")

const (
	chunkSize = 512
	// pollInterval bounds a single blocking read so cancellation is noticed.
	pollInterval = 250 * time.Millisecond
)

// Port is the part of go.bug.st/serial.Port the reader uses.
type Port interface {
	Read(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	Close() error
}

// OpenFunc opens a port.
type OpenFunc func(device string, baudRate int) (Port, error)

// Config describes the serial line. Optical SML heads run 9600 8N1.
type Config struct {
	Device   string
	BaudRate int
	// ReadTimeout bounds the wait for the first byte of a burst.
	ReadTimeout time.Duration
	// InterByteTimeout ends a burst when the line stays quiet this long.
	InterByteTimeout time.Duration
	// MaxBurst caps the bytes returned by one ReadBurst.
	MaxBurst int
}

// DefaultConfig returns the settings of a typical IR reading head.
func DefaultConfig() Config {
	return Config{
		Device:           "/dev/ttyUSB0",
		BaudRate:         9600,
		ReadTimeout:      5 * time.Second,
		InterByteTimeout: 200 * time.Millisecond,
		MaxBurst:         16 * 1024,
	}
}

// OpenSerial opens device 8N1 at baudRate.
func OpenSerial(device string, baudRate int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, err
	}
	return port, nil
}

// Serial reads bursts of bytes from a meter. The port is opened lazily and
// closed after read errors so the next burst reopens it.
type Serial struct {
	cfg  Config
	open OpenFunc
	log  logrus.FieldLogger

	port  Port
	chunk []byte
}

// Option customises a Serial.
type Option func(*Serial)

// WithOpenFunc replaces the function used to open the port.
func WithOpenFunc(fn OpenFunc) Option {
	return func(s *Serial) { s.open = fn }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Serial) { s.log = log }
}

// NewSerial returns an unopened reader for cfg.
func NewSerial(cfg Config, opts ...Option) *Serial {
	s := &Serial{
		cfg:   cfg,
		open:  OpenSerial,
		log:   logrus.StandardLogger(),
		chunk: make([]byte, chunkSize),
	}
	def := DefaultConfig()
	if s.cfg.MaxBurst <= 0 {
		s.cfg.MaxBurst = def.MaxBurst
	}
	if s.cfg.ReadTimeout <= 0 {
		s.cfg.ReadTimeout = def.ReadTimeout
	}
	if s.cfg.InterByteTimeout <= 0 {
		s.cfg.InterByteTimeout = def.InterByteTimeout
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithField("component", "transport").WithField("device", cfg.Device)
	return s
}

// Open opens the port if it is not open yet and discards stale input.
func (s *Serial) Open() error {
	if s.port != nil {
		return nil
	}
	port, err := s.open(s.cfg.Device, s.cfg.BaudRate)
	if err != nil {
		return errors.Wrapf(err, "transport: open %s", s.cfg.Device)
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return errors.Wrapf(err, "transport: reset input of %s", s.cfg.Device)
	}
	s.port = port
	s.log.WithField("baud_rate", s.cfg.BaudRate).Info("serial port opened")
	return nil
}

// Close closes the port. It is safe to call on a closed reader.
func (s *Serial) Close() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	s.log.Debug("serial port closed")
	return errors.Wrap(err, "transport: close")
}

// Discard drops bytes the driver buffered while nobody was reading.
func (s *Serial) Discard() error {
	if s.port == nil {
		return nil
	}
	return errors.Wrap(s.port.ResetInputBuffer(), "transport: discard input")
}

// ReadBurst waits up to ReadTimeout for data, then keeps reading until the
// line has been idle for InterByteTimeout. It returns ErrTimeout when
// nothing arrived.
func (s *Serial) ReadBurst(ctx context.Context) ([]byte, error) {
	if err := s.Open(); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(s.cfg.ReadTimeout)
	var burst []byte
	for len(burst) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrTimeout
		}
		if remaining > pollInterval {
			remaining = pollInterval
		}
		n, err := s.read(remaining)
		if err != nil {
			return nil, err
		}
		burst = append(burst, s.chunk[:n]...)
	}

	for len(burst) < s.cfg.MaxBurst {
		n, err := s.read(s.cfg.InterByteTimeout)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
		burst = append(burst, s.chunk[:n]...)
	}
	s.log.WithField("bytes", len(burst)).Trace("burst read")
	return burst, nil
}

func (s *Serial) read(timeout time.Duration) (int, error) {
	if err := s.port.SetReadTimeout(timeout); err != nil {
		s.Close()
		return 0, errors.Wrap(err, "transport: set read timeout")
	}
	n, err := s.port.Read(s.chunk)
	if err != nil {
		s.Close()
		return 0, errors.Wrapf(err, "transport: read %s", s.cfg.Device)
	}
	return n, nil
}
