package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Value is a sealed interface over the JSON-like trees carried by observations.
// Only Null, String, Int, Float, Bool, Array and Object implement it.
type Value interface {
	payloadValue()
}

// Null is the JSON null.
type Null struct{}

func (Null) payloadValue() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String is a JSON string.
type String string

func (String) payloadValue() {}

// Int is an integral JSON number that fits in int64.
type Int int64

func (Int) payloadValue() {}

// Float is any other JSON number.
type Float float64

func (Float) payloadValue() {}

// MarshalJSON writes the canonical number form.
func (f Float) MarshalJSON() ([]byte, error) {
	return []byte(formatFloat(float64(f))), nil
}

// Bool is a JSON boolean.
type Bool bool

func (Bool) payloadValue() {}

// Array is an ordered sequence of values.
type Array []Value

func (Array) payloadValue() {}

// MarshalJSON implements json.Marshaler using the canonical form.
func (a Array) MarshalJSON() ([]byte, error) {
	return Canonical(a), nil
}

// Object maps string keys to values. Key order carries no meaning;
// use SortedKeys for deterministic iteration.
type Object map[string]Value

func (Object) payloadValue() {}

// MarshalJSON implements json.Marshaler using the canonical form.
func (o Object) MarshalJSON() ([]byte, error) {
	return Canonical(o), nil
}

// SortedKeys returns the keys in ordinal byte order.
func (o Object) SortedKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Lookup returns the value stored under key, if present.
func (o Object) Lookup(key string) (Value, bool) {
	v, ok := o[key]
	return v, ok
}

// CheckFinite reports the first NaN or infinite Float in v. Such values have a
// canonical form for hashing but no JSON text Parse can read back, so they
// cannot be stored.
func CheckFinite(v Value) error {
	switch val := v.(type) {
	case Float:
		if math.IsNaN(float64(val)) || math.IsInf(float64(val), 0) {
			return fmt.Errorf("non-finite number %s", formatFloat(float64(val)))
		}
	case Array:
		for i, elem := range val {
			if err := CheckFinite(elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
	case Object:
		for _, k := range val.SortedKeys() {
			if err := CheckFinite(val[k]); err != nil {
				return fmt.Errorf("object[%q]: %w", k, err)
			}
		}
	}
	return nil
}

// Parse decodes a single JSON document into a Value.
// Numbers without a fraction or exponent that fit in int64 become Int;
// all other numbers become Float.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse payload: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("parse payload: trailing data after JSON value")
	}

	return FromAny(raw)
}

// MustParse is Parse for literals in tests and fixtures. It panics on error.
func MustParse(s string) Value {
	v, err := Parse([]byte(s))
	if err != nil {
		panic(err)
	}
	return v
}

// FromAny converts decoded Go data (encoding/json with UseNumber, or
// gopkg.in/yaml.v3) into a Value.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case json.Number:
		return numberValue(string(val))
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint64:
		if val > 1<<63-1 {
			return Float(float64(val)), nil
		}
		return Int(int64(val)), nil
	case float64:
		return Float(val), nil
	case float32:
		return Float(float64(val)), nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			pv, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = pv
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			pv, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = pv
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported payload type: %T", v)
	}
}

func numberValue(s string) (Value, error) {
	if !strings.ContainsAny(s, ".eE") {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int(n), nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return Float(f), nil
}
