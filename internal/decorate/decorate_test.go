package decorate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"gitlab.com/d21d3q/gosml/internal/obis"
	"gitlab.com/d21d3q/gosml/internal/records"
)

func TestDecorateKnown(t *testing.T) {
	id := obis.MustParse("1-0:16.7.0*255")
	out := Decorate([]records.Record{{ID: id, Value: int64(300), Unit: 27}})
	require.Len(t, out, 1)

	d := out[id]
	require.NotNil(t, d.Unit)
	require.Equal(t, "W", *d.Unit)
	require.NotNil(t, d.Description)
	require.Equal(t, "aktuelle Wirkleistung", *d.Description)
	require.Equal(t, int64(300), d.Value)
}

func TestDecorateUnknown(t *testing.T) {
	id := obis.MustParse("1-0:99.7.0*255")
	out := Decorate([]records.Record{{ID: id, Value: uint64(1), Unit: 99}})
	d := out[id]
	require.Nil(t, d.Unit)
	require.Nil(t, d.Description)

	noUnit := obis.MustParse("129-129:199.130.3*255")
	out = Decorate([]records.Record{{ID: noUnit, Value: []byte("EMH")}})
	require.Nil(t, out[noUnit].Unit)
	require.NotNil(t, out[noUnit].Description)
}

func TestDecorateDuplicateLaterWins(t *testing.T) {
	id := obis.MustParse("0100010800ff")
	scaler := int8(-1)
	first := records.Record{ID: id, Value: int64(1), Unit: 30}
	second := records.Record{ID: id, Value: int64(2), Unit: 33, Scaler: &scaler}

	out := Decorate([]records.Record{first, second})
	require.Len(t, out, 1)
	d := out[id]
	require.Equal(t, second, d.Record)
	require.Equal(t, "A", *d.Unit)
	require.Equal(t, 1, d.Index)
}

func TestDecorateKeepsFrameOrder(t *testing.T) {
	ids := []obis.Code{
		obis.MustParse("1-0:16.7.0*255"),
		obis.MustParse("1-0:1.8.0*255"),
		obis.MustParse("0-0:96.50.1*1"),
	}
	in := make([]records.Record, len(ids))
	for i, id := range ids {
		in[i] = records.Record{ID: id, Value: int64(i)}
	}
	out := Decorate(in)
	for i, id := range ids {
		require.Equal(t, i, out[id].Index)
	}
}

func TestDecorateDoesNotTransform(t *testing.T) {
	scaler := int8(-2)
	in := records.Record{ID: obis.MustParse("0100020800ff"), Value: uint64(12345), Unit: 30, Scaler: &scaler}
	out := Decorate([]records.Record{in})
	require.Equal(t, in, out[in.ID].Record)
}

func TestDecorateEmpty(t *testing.T) {
	require.Empty(t, Decorate(nil))
}

func TestTables(t *testing.T) {
	for code, want := range map[uint8]string{27: "W", 30: "Wh", 33: "A", 35: "V", 44: "Hz"} {
		got, ok := UnitLabel(code)
		require.True(t, ok, code)
		require.Equal(t, want, got)
	}
	for _, code := range []uint8{0, 58, 59, 68, 69, 73, 255} {
		_, ok := UnitLabel(code)
		require.False(t, ok, code)
	}
	for key := range descriptions {
		id, err := obis.Parse(key)
		require.NoError(t, err, key)
		require.Equal(t, key, id.Hex())
	}
}
