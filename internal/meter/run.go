package meter

import (
	"context"
	"errors"
	"time"

	"gitlab.com/d21d3q/gosml/internal/metrics"
	"gitlab.com/d21d3q/gosml/internal/transport"
)

// Handler receives every decoded reading.
type Handler func(context.Context, Reading) error

// retryDelay separates attempts after a failing source.
const retryDelay = 2 * time.Second

// Run cycles until ctx is done. After each reading is handled it waits for
// interval and resets the reader, so the next reading is fresh. Handler
// errors are logged and do not stop the loop.
func (r *Reader) Run(ctx context.Context, interval time.Duration, handle Handler) error {
	for {
		reading, err := r.Cycle(ctx)
		switch {
		case err == nil:
			if herr := handle(ctx, reading); herr != nil {
				r.log.WithError(herr).Error("handling reading failed")
			}
			if !sleep(ctx, interval) {
				return nil
			}
			if err := r.Reset(); err != nil {
				r.log.WithError(err).Warn("reset after reading failed")
			}
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, ErrIncompleteFrame):
			r.log.WithField("buffered", r.Buffered()).Trace("waiting for more bytes")
		case errors.Is(err, transport.ErrTimeout):
			metrics.RecordTimeout()
			r.log.Debug("no data from meter")
		case errors.As(err, new(*DecodeError)):
		default:
			r.log.WithError(err).Error("reading from meter failed")
			if !sleep(ctx, retryDelay) {
				return nil
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
