package ingest

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fogwell/fogwell/internal/common/fogwellerrors"
)

func TestReadingFromMap(t *testing.T) {
	reading, err := ReadingFromMap(map[string]interface{}{
		"temperature": 21.5,
		"count":       int64(3),
		"ok":          true,
		"label":       "north",
		"missing":     nil,
		"nested":      map[string]interface{}{"x": json.Number("1.25")},
	})
	require.NoError(t, err)

	expected := Reading{
		"temperature": NumberValue(21.5),
		"count":       NumberValue(3),
		"ok":          BoolValue(true),
		"label":       StringValue("north"),
		"missing":     NullValue(),
		"nested":      MapValue(map[string]Value{"x": NumberValue(1.25)}),
	}
	if diff := cmp.Diff(expected, reading, cmp.AllowUnexported(Value{})); diff != "" {
		t.Errorf("ReadingFromMap() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"count", "label", "missing", "nested", "ok", "temperature"}, reading.Keys())
}

func TestReadingFromMap_Invalid(t *testing.T) {
	tests := map[string]map[string]interface{}{
		"slice":          {"values": []int{1, 2}},
		"struct":         {"v": struct{}{}},
		"nan":            {"v": math.NaN()},
		"nested inf":     {"outer": map[string]interface{}{"inner": math.Inf(-1)}},
		"bad json num":   {"v": json.Number("abc")},
		"non-string key": {"v": map[int]interface{}{1: "x"}},
	}
	for name, m := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ReadingFromMap(m)
			assert.True(t, fogwellerrors.IsInvalidArgument(err), "got %v", err)
		})
	}
}

func TestReadingFromMap_Nil(t *testing.T) {
	reading, err := ReadingFromMap(nil)
	require.NoError(t, err)
	assert.NotNil(t, reading)
	assert.Empty(t, reading)
}

func TestReadingRecord_JSON(t *testing.T) {
	key := uuid.MustParse("7f3c1d8e-3f1b-4d6a-9a51-5d0b7b7c2e10")
	r := &ReadingRecord{
		AssetCode:     "pump",
		Reading:       Reading{"rpm": NumberValue(1200), "state": MapValue(map[string]Value{"on": BoolValue(true)})},
		UserTimestamp: baseTime,
		ReadKey:       &key,
	}
	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"asset_code":"pump","reading":{"rpm":1200,"state":{"on":true}},"user_ts":"2022-11-03T10:00:00Z","read_key":"7f3c1d8e-3f1b-4d6a-9a51-5d0b7b7c2e10"}`,
		string(data))

	var decoded ReadingRecord
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "pump", decoded.AssetCode)
	assert.Equal(t, key, *decoded.ReadKey)
	on, ok := decoded.Reading["state"].Interface().(map[string]interface{})["on"].(bool)
	assert.True(t, ok)
	assert.True(t, on)
}

func TestValueAccessors(t *testing.T) {
	s, ok := StringValue("x").AsString()
	assert.True(t, ok)
	assert.Equal(t, "x", s)
	_, ok = StringValue("x").AsNumber()
	assert.False(t, ok)
	assert.Equal(t, KindNull, Value{}.Kind())
	assert.Equal(t, "map", KindMap.String())
}
