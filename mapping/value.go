package mapping

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/valyala/fastjson"

	"github.com/c360/mqtt2influxdb/errors"
)

// Kind identifies which member of the Value union is set
type Kind int

// Value kinds
const (
	KindBoolean Kind = iota
	KindFloat
	KindString
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case KindBoolean:
		return "boolean"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// Value is a typed record value: a boolean, a float or a string.
// The zero Value is Boolean(false).
type Value struct {
	kind Kind
	b    bool
	f    float64
	s    string
}

// BoolValue returns a Boolean value
func BoolValue(b bool) Value { return Value{kind: KindBoolean, b: b} }

// FloatValue returns a Float value
func FloatValue(f float64) Value { return Value{kind: KindFloat, f: f} }

// StringValue returns a String value
func StringValue(s string) Value { return Value{kind: KindString, s: s} }

// Kind returns which member is set
func (v Value) Kind() Kind { return v.kind }

// Bool returns the boolean member and whether v is a Boolean
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBoolean }

// Float returns the float member and whether v is a Float
func (v Value) Float() (float64, bool) { return v.f, v.kind == KindFloat }

// Str returns the string member and whether v is a String
func (v Value) Str() (string, bool) { return v.s, v.kind == KindString }

// Interface returns the value as bool, float64 or string
func (v Value) Interface() any {
	switch v.kind {
	case KindBoolean:
		return v.b
	case KindFloat:
		return v.f
	default:
		return v.s
	}
}

// String formats the value as text; used where only strings are accepted (tags)
func (v Value) String() string {
	switch v.kind {
	case KindBoolean:
		return strconv.FormatBool(v.b)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	default:
		return v.s
	}
}

// GoString makes test failures readable
func (v Value) GoString() string {
	switch v.kind {
	case KindBoolean:
		return fmt.Sprintf("Boolean(%t)", v.b)
	case KindFloat:
		return fmt.Sprintf("Float(%v)", v.f)
	default:
		return fmt.Sprintf("String(%q)", v.s)
	}
}

// MarshalJSON encodes the value as its native JSON type
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// Coerce converts a JSON value to a Value.
//
//	boolean        -> Boolean
//	number         -> Float (integer and fractional literals alike)
//	string         -> String, verbatim
//	array, object  -> String holding the canonical JSON encoding
//	null           -> error wrapping errors.ErrUnsupportedValue
//
// Numbers beyond float64 range are unsupported too.
func Coerce(v *fastjson.Value) (Value, error) {
	if v == nil {
		return Value{}, errors.WrapInvalid(errors.ErrUnsupportedValue, "Coerce", "Coerce", "missing value")
	}

	switch v.Type() {
	case fastjson.TypeTrue:
		return BoolValue(true), nil
	case fastjson.TypeFalse:
		return BoolValue(false), nil
	case fastjson.TypeNumber:
		f, err := v.Float64()
		if err != nil {
			return Value{}, errors.WrapInvalid(
				fmt.Errorf("%w: %v", errors.ErrUnsupportedValue, err), "Coerce", "Coerce", "number to float")
		}
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return Value{}, errors.WrapInvalid(
				fmt.Errorf("%w: %s overflows float64", errors.ErrUnsupportedValue, v.String()),
				"Coerce", "Coerce", "number to float")
		}
		return FloatValue(f), nil
	case fastjson.TypeString:
		return StringValue(string(v.GetStringBytes())), nil
	case fastjson.TypeArray, fastjson.TypeObject:
		text, err := CanonicalJSON(v)
		if err != nil {
			return Value{}, errors.WrapInvalid(err, "Coerce", "Coerce", "encode "+v.Type().String())
		}
		return StringValue(text), nil
	case fastjson.TypeNull:
		return Value{}, errors.WrapInvalid(errors.ErrUnsupportedValue, "Coerce", "Coerce", "json null")
	default:
		return Value{}, errors.WrapInvalid(errors.ErrUnsupportedValue, "Coerce", "Coerce", "type "+v.Type().String())
	}
}

// CanonicalJSON re-encodes v compactly with object keys sorted.
// Number literals are kept as written and HTML characters are not escaped.
func CanonicalJSON(v *fastjson.Value) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(toNative(v)); err != nil {
		return "", err
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// toNative converts a fastjson tree to values encoding/json marshals in sorted order
func toNative(v *fastjson.Value) any {
	switch v.Type() {
	case fastjson.TypeObject:
		obj, _ := v.Object()
		out := make(map[string]any, obj.Len())
		obj.Visit(func(key []byte, child *fastjson.Value) {
			out[string(key)] = toNative(child)
		})
		return out
	case fastjson.TypeArray:
		arr, _ := v.Array()
		out := make([]any, len(arr))
		for i, child := range arr {
			out[i] = toNative(child)
		}
		return out
	case fastjson.TypeNumber:
		return json.Number(v.String())
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeFalse:
		return false
	default:
		return nil
	}
}
