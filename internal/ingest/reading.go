package ingest

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/fogwell/fogwell/internal/common/fogwellerrors"
)

type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindMap
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindMap:
		return "map"
	default:
		return fmt.Sprintf("ValueKind(%d)", int(k))
	}
}

// Value is a single JSON-compatible reading datapoint: a string, a number, a bool, a nested map or null.
// The zero Value is null.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
	m    map[string]Value
}

func StringValue(s string) Value {
	return Value{kind: KindString, str: s}
}

func NumberValue(f float64) Value {
	return Value{kind: KindNumber, num: f}
}

func BoolValue(b bool) Value {
	return Value{kind: KindBool, b: b}
}

func MapValue(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindMap, m: m}
}

func NullValue() Value {
	return Value{}
}

func (v Value) Kind() ValueKind {
	return v.kind
}

func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

func (v Value) AsNumber() (float64, bool) {
	return v.num, v.kind == KindNumber
}

func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

func (v Value) AsMap() (map[string]Value, bool) {
	return v.m, v.kind == KindMap
}

// Interface converts v back into the plain Go value encoding/json would produce for it.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindMap:
		out := make(map[string]interface{}, len(v.m))
		for k, inner := range v.m {
			out[k] = inner.Interface()
		}
		return out
	default:
		return nil
	}
}

func (v Value) validate(path string) error {
	switch v.kind {
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return &fogwellerrors.ErrInvalidArgument{
				Name:    path,
				Value:   fmt.Sprint(v.num),
				Message: "numbers must be finite to be stored as JSON",
			}
		}
	case KindMap:
		for k, inner := range v.m {
			if err := inner.validate(path + "." + k); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.WithStack(err)
	}
	parsed, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ValueOf converts a plain Go value into a Value. Supported inputs are nil, strings, bools, Go numeric
// types, json.Number and maps keyed by string; anything else is rejected with ErrInvalidArgument.
func ValueOf(raw interface{}) (Value, error) {
	return valueOf("reading", raw)
}

func valueOf(path string, raw interface{}) (Value, error) {
	var v Value
	switch x := raw.(type) {
	case nil:
		return NullValue(), nil
	case Value:
		v = x
	case string:
		v = StringValue(x)
	case bool:
		v = BoolValue(x)
	case float64:
		v = NumberValue(x)
	case float32:
		v = NumberValue(float64(x))
	case int:
		v = NumberValue(float64(x))
	case int8:
		v = NumberValue(float64(x))
	case int16:
		v = NumberValue(float64(x))
	case int32:
		v = NumberValue(float64(x))
	case int64:
		v = NumberValue(float64(x))
	case uint:
		v = NumberValue(float64(x))
	case uint8:
		v = NumberValue(float64(x))
	case uint16:
		v = NumberValue(float64(x))
	case uint32:
		v = NumberValue(float64(x))
	case uint64:
		v = NumberValue(float64(x))
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Value{}, &fogwellerrors.ErrInvalidArgument{Name: path, Value: x.String(), Message: "not a valid number"}
		}
		v = NumberValue(f)
	case map[string]interface{}:
		m := make(map[string]Value, len(x))
		for k, inner := range x {
			converted, err := valueOf(path+"."+k, inner)
			if err != nil {
				return Value{}, err
			}
			m[k] = converted
		}
		v = MapValue(m)
	case map[string]Value:
		v = MapValue(x)
	case Reading:
		v = MapValue(x)
	default:
		return Value{}, &fogwellerrors.ErrInvalidArgument{
			Name:    path,
			Value:   fmt.Sprintf("%T", raw),
			Message: "datapoints must be a string, number, bool, map or null",
		}
	}
	if err := v.validate(path); err != nil {
		return Value{}, err
	}
	return v, nil
}

// Reading is the schema-less datapoint payload of one ReadingRecord.
type Reading map[string]Value

// ReadingFromMap converts a decoded JSON object into a Reading. A nil map gives an empty Reading.
func ReadingFromMap(m map[string]interface{}) (Reading, error) {
	r := make(Reading, len(m))
	for k, raw := range m {
		v, err := valueOf("reading."+k, raw)
		if err != nil {
			return nil, err
		}
		r[k] = v
	}
	return r, nil
}

// Validate checks every datapoint can be represented as JSON.
func (r Reading) Validate() error {
	for k, v := range r {
		if err := v.validate("reading." + k); err != nil {
			return err
		}
	}
	return nil
}

// Keys returns the datapoint names in sorted order.
func (r Reading) Keys() []string {
	keys := maps.Keys(r)
	slices.Sort(keys)
	return keys
}

// ReadingRecord is one ingested sample.
type ReadingRecord struct {
	AssetCode     string
	Reading       Reading
	UserTimestamp time.Time
	// Optional idempotency key. Stores must not create a second row for a key they have already written.
	ReadKey *uuid.UUID
}

func (r *ReadingRecord) validate() error {
	if r.AssetCode == "" {
		return &fogwellerrors.ErrInvalidArgument{Name: "assetCode", Value: r.AssetCode, Message: "must be non-empty"}
	}
	if r.UserTimestamp.IsZero() {
		return &fogwellerrors.ErrInvalidArgument{Name: "userTimestamp", Value: r.UserTimestamp.String(), Message: "must be set"}
	}
	if r.Reading == nil {
		r.Reading = Reading{}
	}
	return r.Reading.Validate()
}

// recordJSON is the serialised form shared by the stores that persist records as documents.
type recordJSON struct {
	AssetCode     string     `json:"asset_code"`
	Reading       Reading    `json:"reading"`
	UserTimestamp time.Time  `json:"user_ts"`
	ReadKey       *uuid.UUID `json:"read_key,omitempty"`
}

func (r *ReadingRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		AssetCode:     r.AssetCode,
		Reading:       r.Reading,
		UserTimestamp: r.UserTimestamp.UTC(),
		ReadKey:       r.ReadKey,
	})
}

func (r *ReadingRecord) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.WithStack(err)
	}
	*r = ReadingRecord{
		AssetCode:     raw.AssetCode,
		Reading:       raw.Reading,
		UserTimestamp: raw.UserTimestamp,
		ReadKey:       raw.ReadKey,
	}
	if r.Reading == nil {
		r.Reading = Reading{}
	}
	return nil
}
