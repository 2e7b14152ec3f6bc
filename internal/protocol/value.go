package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindString Kind = iota
	KindInt
	KindFloat
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is one positional message argument. The zero Value is the empty string.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
}

func StringValue(s string) Value {
	return Value{kind: KindString, s: s}
}

func IntValue(i int64) Value {
	return Value{kind: KindInt, i: i}
}

func FloatValue(f float64) Value {
	return Value{kind: KindFloat, f: f}
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) AsString() (string, bool) {
	return v.s, v.kind == KindString
}

func (v Value) AsInt() (int64, bool) {
	return v.i, v.kind == KindInt
}

func (v Value) AsFloat() (float64, bool) {
	return v.f, v.kind == KindFloat
}

// Number returns the numeric value of Int and Float variants.
func (v Value) Number() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	default:
		return 0, false
	}
}

// String renders the value without quoting: strings as-is, numbers in decimal form.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return formatFloat(v.f)
	default:
		return v.s
	}
}

// Equal compares values the way peers observe them: numbers compare by
// magnitude across Int and Float, strings only equal strings.
func (v Value) Equal(o Value) bool {
	if v.kind == KindString || o.kind == KindString {
		return v.kind == o.kind && v.s == o.s
	}
	if v.kind == KindInt && o.kind == KindInt {
		return v.i == o.i
	}
	a, _ := v.Number()
	b, _ := o.Number()
	return a == b
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindInt:
		return []byte(strconv.FormatInt(v.i, 10)), nil
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return nil, fmt.Errorf("%w: non-finite float %v", ErrUnsupportedValue, v.f)
		}
		return []byte(formatFloat(v.f)), nil
	default:
		return json.Marshal(v.s)
	}
}

// UnmarshalJSON accepts JSON strings and numbers; numbers written with a
// fraction or exponent become Float, the rest Int.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = StringValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: %s", ErrUnsupportedValue, string(data))
	}
	text := n.String()
	if strings.ContainsAny(text, ".eE") {
		f, err := n.Float64()
		if err != nil {
			return fmt.Errorf("%w: %s", ErrUnsupportedValue, text)
		}
		*v = FloatValue(f)
		return nil
	}
	i, err := n.Int64()
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnsupportedValue, text)
	}
	*v = IntValue(i)
	return nil
}

// Floats always carry a '.' so they decode back as Float.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return s
	}
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
