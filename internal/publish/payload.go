// Package publish renders decorated readings and hands them to a sink: an
// MQTT broker or a local writer.
package publish

import (
	"context"
	"sort"

	"gitlab.com/d21d3q/gosml/internal/decorate"
	"gitlab.com/d21d3q/gosml/internal/meter"
	"gitlab.com/d21d3q/gosml/internal/obis"
)

// Publisher delivers readings.
type Publisher interface {
	Publish(ctx context.Context, reading meter.Reading) error
	Close() error
}

// Entry is the published form of one record.
type Entry struct {
	DataValue any     `json:"data_value"`
	DataUnit  *string `json:"data_unit"`
	DataType  *string `json:"data_type"`
}

// Payload keys the records by their rendered identifier. Distinct codes that
// render to the same key collapse into one entry; the one later in the frame
// wins.
func Payload(recs map[obis.Code]decorate.Record, format obis.Format) map[string]Entry {
	out := make(map[string]Entry, len(recs))
	for _, id := range inFrameOrder(recs) {
		r := recs[id]
		out[format.Key(id)] = Entry{
			DataValue: r.ScaledValue(),
			DataUnit:  r.Unit,
			DataType:  r.Description,
		}
	}
	return out
}

func inFrameOrder(recs map[obis.Code]decorate.Record) []obis.Code {
	ids := make([]obis.Code, 0, len(recs))
	for id := range recs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := recs[ids[i]], recs[ids[j]]
		if a.Index != b.Index {
			return a.Index < b.Index
		}
		return ids[i].Hex() < ids[j].Hex()
	})
	return ids
}
