// Package decorate attaches unit symbols and descriptions to measurement
// records.
package decorate

import (
	"gitlab.com/d21d3q/gosml/internal/obis"
	"gitlab.com/d21d3q/gosml/internal/records"
)

// Record is a measurement annotated for publishing. Unit and Description are
// nil when the unit code or identifier is not known.
type Record struct {
	records.Record
	Unit        *string
	Description *string
	// Index is the position of the record in the decoded frame.
	Index int
}

// Decorate annotates recs and keys them by identifier. When identifiers
// repeat, the later record wins. Values are not modified.
func Decorate(recs []records.Record) map[obis.Code]Record {
	out := make(map[obis.Code]Record, len(recs))
	for i, r := range recs {
		d := Record{Record: r, Index: i}
		if s, ok := UnitLabel(r.Unit); ok {
			d.Unit = &s
		}
		if s, ok := Description(r.ID); ok {
			d.Description = &s
		}
		out[r.ID] = d
	}
	return out
}
