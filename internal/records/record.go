package records

import (
	"encoding/hex"
	"math"

	"gitlab.com/d21d3q/gosml/internal/obis"
)

// Record is one measurement extracted from a validated frame.
type Record struct {
	ID obis.Code
	// Value holds int64, uint64, bool or []byte as transmitted.
	Value any
	// Unit is the DLMS unit code; zero when the meter sent none.
	Unit uint8
	// Scaler is the power of ten applied to Value, nil when absent.
	Scaler *int8
	// Status is the optional status word (uint64) or nil.
	Status any
}

// Decoder turns the payload of a validated frame into records.
type Decoder interface {
	Decode(payload []byte) ([]Record, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(payload []byte) ([]Record, error)

// Decode calls f.
func (f DecoderFunc) Decode(payload []byte) ([]Record, error) {
	return f(payload)
}

// ScaledValue returns Value multiplied by 10^Scaler as float64 for numeric
// values with a scaler, the number itself without one, and octet strings as
// lower-case hex.
func (r Record) ScaledValue() any {
	switch v := r.Value.(type) {
	case int64:
		if r.Scaler == nil {
			return v
		}
		return scale(float64(v), *r.Scaler)
	case uint64:
		if r.Scaler == nil {
			return v
		}
		return scale(float64(v), *r.Scaler)
	case []byte:
		return hex.EncodeToString(v)
	default:
		return v
	}
}

func scale(v float64, s int8) float64 {
	if s < 0 {
		return v / math.Pow10(-int(s))
	}
	return v * math.Pow10(int(s))
}
