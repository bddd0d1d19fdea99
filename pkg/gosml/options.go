package gosml

import (
	"gitlab.com/d21d3q/gosml/internal/obis"
	"gitlab.com/d21d3q/gosml/internal/records"
)

// AnalyzeOptions configures decoding.
type AnalyzeOptions struct {
	// Decoder names a registered payload decoder; empty selects "sml".
	Decoder string
	// KeyFormat renders record identifiers: short (default), full or hex.
	KeyFormat string
	// VerifyCRC also checks the checksum of every SML message.
	VerifyCRC bool
}

type analyzeConfig struct {
	decoder     string
	decoderOpts records.Options
	keyFormat   obis.Format
}

func (opts AnalyzeOptions) toInternal() (analyzeConfig, error) {
	format, err := obis.ParseFormat(opts.KeyFormat)
	if err != nil {
		return analyzeConfig{}, err
	}
	name := opts.Decoder
	if name == "" {
		name = "sml"
	}
	return analyzeConfig{
		decoder:     name,
		decoderOpts: records.Options{VerifyCRC: opts.VerifyCRC},
		keyFormat:   format,
	}, nil
}
