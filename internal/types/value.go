// Package types defines the shared data model for the diligence pipeline.
package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a tagged tree modelling arbitrary generator output. Generators
// return schema-free JSON, so stage content is held as this union rather than
// per-stage structs.
type Value struct {
	Kind Kind
	Bool bool
	Num  float64
	Str  string
	Arr  []*Value
	Obj  map[string]*Value
}

// Null returns the null value.
func Null() *Value { return &Value{Kind: KindNull} }

// NumberValue wraps a float64.
func NumberValue(n float64) *Value { return &Value{Kind: KindNumber, Num: n} }

// StringValue wraps a string.
func StringValue(s string) *Value { return &Value{Kind: KindString, Str: s} }

// BoolValue wraps a bool.
func BoolValue(b bool) *Value { return &Value{Kind: KindBool, Bool: b} }

// ArrayValue wraps a slice of values.
func ArrayValue(items ...*Value) *Value { return &Value{Kind: KindArray, Arr: items} }

// ObjectValue wraps a map of values.
func ObjectValue(fields map[string]*Value) *Value { return &Value{Kind: KindObject, Obj: fields} }

// ParseValue decodes a JSON document into a Value tree.
func ParseValue(data []byte) (*Value, error) {
	var raw any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse value tree: %w", err)
	}
	return FromAny(raw), nil
}

// FromAny converts a decoded JSON value (map[string]any, []any, json.Number,
// string, bool, float64, nil) into a Value tree.
func FromAny(raw any) *Value {
	switch v := raw.(type) {
	case nil:
		return Null()
	case bool:
		return BoolValue(v)
	case float64:
		return NumberValue(v)
	case int:
		return NumberValue(float64(v))
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return StringValue(v.String())
		}
		return NumberValue(f)
	case string:
		return StringValue(v)
	case []any:
		arr := make([]*Value, 0, len(v))
		for _, item := range v {
			arr = append(arr, FromAny(item))
		}
		return &Value{Kind: KindArray, Arr: arr}
	case map[string]any:
		obj := make(map[string]*Value, len(v))
		for key, item := range v {
			obj[key] = FromAny(item)
		}
		return &Value{Kind: KindObject, Obj: obj}
	default:
		return StringValue(fmt.Sprintf("%v", v))
	}
}

// IsNull reports whether the value is nil or the null variant.
func (v *Value) IsNull() bool {
	return v == nil || v.Kind == KindNull
}

// Field returns the named field of an object value, or nil.
func (v *Value) Field(key string) *Value {
	if v == nil || v.Kind != KindObject {
		return nil
	}
	return v.Obj[key]
}

// Items returns the elements of an array value, or nil for anything else.
func (v *Value) Items() []*Value {
	if v == nil || v.Kind != KindArray {
		return nil
	}
	return v.Arr
}

// Index returns the i-th element of an array value, or nil.
func (v *Value) Index(i int) *Value {
	if v == nil || v.Kind != KindArray || i < 0 || i >= len(v.Arr) {
		return nil
	}
	return v.Arr[i]
}

// AsFloat returns the numeric interpretation of the value. Numeric strings
// (including values like "42 MW" or "$1,200") are coerced, since generators
// frequently return numbers with units attached.
func (v *Value) AsFloat() (float64, bool) {
	if v == nil {
		return 0, false
	}
	switch v.Kind {
	case KindNumber:
		return v.Num, true
	case KindString:
		s := strings.TrimSpace(v.Str)
		s = strings.TrimPrefix(s, "$")
		s = strings.ReplaceAll(s, ",", "")
		// Cut trailing unit text ("42 MW" -> "42")
		if idx := strings.IndexAny(s, " \t"); idx > 0 {
			s = s[:idx]
		}
		s = strings.TrimSuffix(s, "%")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case KindBool:
		if v.Bool {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// AsString returns the string interpretation of the value.
func (v *Value) AsString() (string, bool) {
	if v == nil {
		return "", false
	}
	switch v.Kind {
	case KindString:
		return v.Str, true
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64), true
	case KindBool:
		return strconv.FormatBool(v.Bool), true
	default:
		return "", false
	}
}

// ToAny converts the value tree back to plain Go values for serialization.
func (v *Value) ToAny() any {
	if v == nil {
		return nil
	}
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.Bool
	case KindNumber:
		return v.Num
	case KindString:
		return v.Str
	case KindArray:
		arr := make([]any, 0, len(v.Arr))
		for _, item := range v.Arr {
			arr = append(arr, item.ToAny())
		}
		return arr
	case KindObject:
		obj := make(map[string]any, len(v.Obj))
		for key, item := range v.Obj {
			obj[key] = item.ToAny()
		}
		return obj
	default:
		return nil
	}
}

// MarshalJSON serializes the value tree as plain JSON.
func (v *Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.ToAny())
}

// UnmarshalJSON decodes plain JSON into the value tree.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := ParseValue(data)
	if err != nil {
		return err
	}
	*v = *parsed
	return nil
}
