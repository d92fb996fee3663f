package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

type valueKind uint8

const (
	kindInvalid valueKind = iota
	kindNumber
	kindString
	kindList
)

// Value is a fact or operand: a decimal number, a string, or a list of values.
// The zero Value is invalid and never matches anything.
type Value struct {
	kind valueKind
	num  decimal.Decimal
	str  string
	list []Value
}

// Number wraps a decimal.
func Number(d decimal.Decimal) Value { return Value{kind: kindNumber, num: d} }

// Int wraps an integer.
func Int(n int64) Value { return Number(decimal.NewFromInt(n)) }

// String wraps a string.
func String(s string) Value { return Value{kind: kindString, str: s} }

// List wraps a list of values.
func List(vs ...Value) Value { return Value{kind: kindList, list: vs} }

// Strings wraps a list of strings.
func Strings(ss []string) Value {
	vs := make([]Value, 0, len(ss))
	for _, s := range ss {
		vs = append(vs, String(s))
	}
	return List(vs...)
}

// Valid reports whether v holds anything.
func (v Value) Valid() bool { return v.kind != kindInvalid }

// scalar unwraps single-element lists so [5] compares like 5.
func (v Value) scalar() Value {
	if v.kind == kindList && len(v.list) == 1 {
		return v.list[0].scalar()
	}
	return v
}

// items returns v as a list; scalars become a one-element list.
func (v Value) items() []Value {
	switch v.kind {
	case kindList:
		return v.list
	case kindInvalid:
		return nil
	default:
		return []Value{v}
	}
}

// decimal returns the numeric reading of v, parsing numeric strings.
func (v Value) decimal() (decimal.Decimal, bool) {
	s := v.scalar()
	switch s.kind {
	case kindNumber:
		return s.num, true
	case kindString:
		d, err := decimal.NewFromString(s.str)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	default:
		return decimal.Zero, false
	}
}

func (v Value) String() string {
	switch v.kind {
	case kindNumber:
		return v.num.String()
	case kindString:
		return strconv.Quote(v.str)
	case kindList:
		var b bytes.Buffer
		b.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(item.String())
		}
		b.WriteByte(']')
		return b.String()
	default:
		return "<invalid>"
	}
}

// equal compares two scalars. Numbers compare numerically, including numeric
// strings; other strings compare exactly.
func equal(a, b Value) bool {
	a, b = a.scalar(), b.scalar()
	if a.kind == kindString && b.kind == kindString {
		return a.str == b.str
	}
	if a.kind == kindList || b.kind == kindList {
		return false
	}
	ad, ok := a.decimal()
	if !ok {
		return false
	}
	bd, ok := b.decimal()
	if !ok {
		return false
	}
	return ad.Equal(bd)
}

// ParseValue decodes a JSON operand. Numbers keep arbitrary precision; booleans
// become the strings "true" and "false".
func ParseValue(raw json.RawMessage) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var x any
	if err := dec.Decode(&x); err != nil {
		return Value{}, fmt.Errorf("decoding operand: %w", err)
	}
	return fromAny(x)
}

func fromAny(x any) (Value, error) {
	switch t := x.(type) {
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return Value{}, fmt.Errorf("parsing number %q: %w", t, err)
		}
		return Number(d), nil
	case float64:
		return Number(decimal.NewFromFloat(t)), nil
	case int:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case string:
		return String(t), nil
	case bool:
		return String(strconv.FormatBool(t)), nil
	case []any:
		vs := make([]Value, 0, len(t))
		for _, item := range t {
			v, err := fromAny(item)
			if err != nil {
				return Value{}, err
			}
			vs = append(vs, v)
		}
		return List(vs...), nil
	case []string:
		return Strings(t), nil
	default:
		return Value{}, fmt.Errorf("unsupported operand type %T", x)
	}
}

// FromAny converts a decoded JSON value (as produced by encoding/json into an
// any) into a Value.
func FromAny(x any) (Value, error) {
	return fromAny(x)
}
