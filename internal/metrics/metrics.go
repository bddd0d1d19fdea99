// Package metrics exports frame and publish counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Frame results.
const (
	ResultValid            = "valid"
	ResultChecksumMismatch = "checksum_mismatch"
	ResultDecodeError      = "decode_error"
)

var (
	registerOnce sync.Once

	frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gosml",
			Name:      "frames_total",
			Help:      "Frames seen on the serial line by validation result.",
		},
		[]string{"result"},
	)
	bytesRead = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gosml",
			Name:      "bytes_read_total",
			Help:      "Bytes read from the transport.",
		},
	)
	transportTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gosml",
			Name:      "transport_timeouts_total",
			Help:      "Reads that returned no data before the timeout.",
		},
	)
	publishes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gosml",
			Name:      "publish_total",
			Help:      "Decorated readings handed to the publisher.",
		},
		[]string{"status"},
	)
)

// Register adds the collectors to the default registry once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(frames, bytesRead, transportTimeouts, publishes)
	})
}

// RecordFrame counts a frame with one of the Result* values.
func RecordFrame(result string) {
	Register()
	frames.WithLabelValues(result).Inc()
}

// RecordBytes counts bytes received from the transport.
func RecordBytes(n int) {
	Register()
	bytesRead.Add(float64(n))
}

// RecordTimeout counts a transport read timeout.
func RecordTimeout() {
	Register()
	transportTimeouts.Inc()
}

// RecordPublish counts a publish attempt.
func RecordPublish(err error) {
	Register()
	status := "ok"
	if err != nil {
		status = "error"
	}
	publishes.WithLabelValues(status).Inc()
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, log logrus.FieldLogger) error {
	Register()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("metrics endpoint listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
