package value

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Value is a sealed interface over the literal kinds found in NeXus
// attributes and .dat headers.
// Only Null, String, Bytes, Int, Float, Bool, List, Map and Unreadable
// implement it.
type Value interface {
	value() // Sealed - only these types implement it
}

// Null represents an absent value (Python None in a .dat header).
type Null struct{}

func (Null) value() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String represents a text value.
type String string

func (String) value() {}

// Bytes represents a byte-string value, the usual encoding of fixed-length
// HDF5 string attributes.
type Bytes []byte

func (Bytes) value() {}

// MarshalJSON implements json.Marshaler for Bytes as a JSON string.
func (b Bytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(b))
}

// Int represents an integer value.
type Int int64

func (Int) value() {}

// Float represents a floating point value.
type Float float64

func (Float) value() {}

// MarshalJSON implements json.Marshaler for Float.
// Non-finite values are written as strings since JSON has no literal for them.
func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return json.Marshal(formatFloat(v))
	}
	return []byte(formatFloat(v)), nil
}

// Bool represents a boolean value.
type Bool bool

func (Bool) value() {}

// List represents an ordered sequence of values (list, tuple or array).
type List []Value

func (List) value() {}

// Map represents a string-keyed mapping of values.
// Use SortedKeys() for deterministic iteration.
type Map map[string]Value

func (Map) value() {}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
func (m Map) SortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := min(len(a16), len(b16))
	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// Unreadable stands in for an attribute that exists in a file but whose
// payload could not be decoded. It is unequal to every value, itself
// included, so a check reports it as a mismatch rather than as missing.
type Unreadable struct {
	Reason string
}

func (Unreadable) value() {}

func (u Unreadable) String() string {
	return "<unreadable: " + u.Reason + ">"
}

// MarshalJSON implements json.Marshaler for Unreadable as a JSON string.
func (u Unreadable) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

// Strs builds a List of String values.
func Strs(ss ...string) List {
	l := make(List, len(ss))
	for i, s := range ss {
		l[i] = String(s)
	}
	return l
}

// FromGo converts a decoded Go value into a Value.
// Accepts the shapes produced by encoding/json, yaml.v3, CUE Decode and the
// HDF5 attribute reader: scalars, byte slices, typed slices and string maps.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case []byte:
		return Bytes(slices.Clone(val)), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int8:
		return Int(val), nil
	case int16:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint8:
		return Int(val), nil
	case uint16:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return Float(float64(val)), nil
		}
		return Int(val), nil
	case float32:
		return Float(val), nil
	case float64:
		return Float(val), nil
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return Int(n), nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", val, err)
		}
		return Float(f), nil
	case map[string]any:
		m := make(Map, len(val))
		for k, elem := range val {
			conv, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			m[k] = conv
		}
		return m, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		l := make(List, rv.Len())
		for i := range l {
			conv, err := FromGo(rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			l[i] = conv
		}
		return l, nil
	}

	return nil, fmt.Errorf("unsupported type: %T", v)
}

// Text returns the text carried by a String or Bytes value.
func Text(v Value) (string, bool) {
	switch val := v.(type) {
	case String:
		return string(val), true
	case Bytes:
		return string(val), true
	}
	return "", false
}

// Strings returns a text scalar as a one-element slice, or the elements of a
// List of text values. ok is false if any element is not text.
func Strings(v Value) ([]string, bool) {
	if s, ok := Text(v); ok {
		return []string{s}, true
	}
	l, ok := v.(List)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(l))
	for _, elem := range l {
		s, ok := Text(elem)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// Flatten returns the numeric content of v in row-major order with its shape.
// Scalars have an empty shape. Nested lists must be rectangular.
// ok is false for text, maps, nulls and ragged lists.
func Flatten(v Value) (vals []float64, shape []int, ok bool) {
	switch val := v.(type) {
	case Int:
		return []float64{float64(val)}, nil, true
	case Float:
		return []float64{float64(val)}, nil, true
	case Bool:
		if val {
			return []float64{1}, nil, true
		}
		return []float64{0}, nil, true
	case List:
		var inner []int
		for i, elem := range val {
			ev, es, ok := Flatten(elem)
			if !ok {
				return nil, nil, false
			}
			if i == 0 {
				inner = es
			} else if !slices.Equal(inner, es) {
				return nil, nil, false
			}
			vals = append(vals, ev...)
		}
		return vals, append([]int{len(val)}, inner...), true
	}
	return nil, nil, false
}

// Equal reports whether a and b hold the same value.
// String and Bytes compare byte-exact against each other; Int, Float and Bool
// compare numerically; lists compare element-wise and must have equal length.
// Values of kinds that cannot be compared, and Unreadable, are unequal.
func Equal(a, b Value) bool {
	if at, ok := Text(a); ok {
		bt, ok := Text(b)
		return ok && at == bt
	}

	switch av := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case Int, Float, Bool:
		an, _, _ := Flatten(av)
		bn, shape, ok := Flatten(b)
		return ok && len(shape) == 0 && an[0] == bn[0]
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Map:
		bv, ok := b.(Map)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, elem := range av {
			other, ok := bv[k]
			if !ok || !Equal(elem, other) {
				return false
			}
		}
		return true
	}
	return false
}

// Format renders v for reports and for the string-form fallback comparison
// of .dat metadata.
func Format(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return "None"
	case String:
		return string(val)
	case Bytes:
		return string(val)
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Float:
		return reprFloat(float64(val))
	case Unreadable:
		return val.String()
	case Bool:
		if val {
			return "True"
		}
		return "False"
	case List:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = Format(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case Map:
		keys := val.SortedKeys()
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + Format(val[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return fmt.Sprintf("%v", v)
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// reprFloat renders f the way a Python float prints: whole numbers keep a
// trailing ".0" and the exponent form is used outside [1e-4, 1e16).
func reprFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return formatFloat(f)
	}
	e := strconv.FormatFloat(f, 'e', -1, 64)
	exp, err := strconv.Atoi(e[strings.IndexByte(e, 'e')+1:])
	if err == nil && (exp < -4 || exp >= 16) {
		return e
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}
