package publish

import (
	"encoding/csv"
	"io"

	"golang.org/x/xerrors"
)

// Recorder produces the fields of one CSV row.
type Recorder interface {
	Record() []string
}

// CSVEncoder writes Recorder values as CSV rows.
type CSVEncoder struct {
	w *csv.Writer
}

// NewCSVEncoder returns an encoder that writes to w.
func NewCSVEncoder(w io.Writer) *CSVEncoder {
	return &CSVEncoder{w: csv.NewWriter(w)}
}

// Encode writes the row for v and flushes. v must implement Recorder.
func (enc *CSVEncoder) Encode(v any) (err error) {
	defer func() {
		if rerr, ok := recover().(error); ok && rerr != nil {
			err = xerrors.Errorf("recovered: %w", rerr)
		}
	}()

	if err := enc.w.Write(v.(Recorder).Record()); err != nil {
		return err
	}
	enc.w.Flush()
	return enc.w.Error()
}
