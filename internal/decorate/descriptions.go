package decorate

import "gitlab.com/d21d3q/gosml/internal/obis"

// descriptions is keyed by the normalised hex form of the identifier.
var descriptions = map[string]string{
	"0100000009ff": "Geräteeinzelidentifikation",
	"0100010800ff": "Zählerstand Total",
	"0100010801ff": "Zählerstand Tarif 1",
	"0100010802ff": "Zählerstand Tarif 2",
	"0100011100ff": "Total-Zählerstand",
	"0100020800ff": "Wirkenergie Total",
	"0100100700ff": "aktuelle Wirkleistung",
	"0100170700ff": "Momentanblindleistung L1",
	"01001f0700ff": "Strom L1",
	"0100200700ff": "Spannung L1",
	"0100240700ff": "Wirkleistung L1",
	"01002b0700ff": "Momentanblindleistung L2",
	"0100330700ff": "Strom L2",
	"0100340700ff": "Spannung L2",
	"0100380700ff": "Wirkleistung L2",
	"01003f0700ff": "Momentanblindleistung L3",
	"0100470700ff": "Strom L3",
	"0100480700ff": "Spannung L3",
	"01004c0700ff": "Wirkleistung L3",
	"0100510701ff": "Phasenabweichung Spannungen L1/L2",
	"0100510702ff": "Phasenabweichung Spannungen L1/L3",
	"0100510704ff": "Phasenabweichung Strom/Spannung L1",
	"010051070fff": "Phasenabweichung Strom/Spannung L2",
	"010051071aff": "Phasenabweichung Strom/Spannung L3",
	"010060320002": "Aktuelle Chiptemperatur",
	"010060320003": "Minimale Chiptemperatur",
	"010060320004": "Maximale Chiptemperatur",
	"010060320005": "Gemittelte Chiptemperatur",
	"010060320303": "Spannungsminimum",
	"010060320304": "Spannungsmaximum",
	"01000e0700ff": "Netz Frequenz",
	"8181c78203ff": "Hersteller-Identifikation",
	"8181c78205ff": "Öffentlicher Schlüssel",
}

// Description returns the human readable name of an identifier.
func Description(id obis.Code) (string, bool) {
	s, ok := descriptions[id.Hex()]
	return s, ok
}
