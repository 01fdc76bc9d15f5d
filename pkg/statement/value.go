package statement

import (
	"encoding/json"
	"fmt"
	"time"
)

// ValueType identifies the variant held by a Value.
type ValueType string

const (
	TypeText     ValueType = "TextValue"
	TypeNumber   ValueType = "NumberValue"
	TypeBoolean  ValueType = "BooleanValue"
	TypeDate     ValueType = "DateValue"
	TypeDateTime ValueType = "DateTimeValue"
	TypeEnum     ValueType = "EnumValue"
)

// Value is a typed scalar bound to a statement placeholder.
// The zero Value is invalid; use one of the constructors.
type Value struct {
	typ  ValueType
	text string
	num  int64
	b    bool
	t    time.Time
}

// String returns a text value.
func String(s string) Value { return Value{typ: TypeText, text: s} }

// Integer returns a number value.
func Integer(n int64) Value { return Value{typ: TypeNumber, num: n} }

// Boolean returns a boolean value.
func Boolean(b bool) Value { return Value{typ: TypeBoolean, b: b} }

// Date returns a date value. Only the year, month and day of t are sent.
func Date(t time.Time) Value {
	y, m, d := t.Date()
	return Value{typ: TypeDate, t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// DateTime returns a date-time value.
func DateTime(t time.Time) Value { return Value{typ: TypeDateTime, t: t} }

// Enum returns an enum value, e.g. Enum("PROPOSAL").
func Enum(name string) Value { return Value{typ: TypeEnum, text: name} }

// Type returns the variant tag.
func (v Value) Type() ValueType { return v.typ }

// IsValid reports whether v was built by a constructor.
func (v Value) IsValid() bool { return v.typ != "" }

func (v Value) String() string {
	switch v.typ {
	case TypeText, TypeEnum:
		return v.text
	case TypeNumber:
		return fmt.Sprintf("%d", v.num)
	case TypeBoolean:
		return fmt.Sprintf("%t", v.b)
	case TypeDate:
		return v.t.Format("2006-01-02")
	case TypeDateTime:
		return v.t.Format(time.RFC3339)
	default:
		return "<invalid>"
	}
}

type wireValue struct {
	Type  ValueType       `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes the value as {"type":..., "value":...}.
func (v Value) MarshalJSON() ([]byte, error) {
	var raw any
	switch v.typ {
	case TypeText, TypeEnum:
		raw = v.text
	case TypeNumber:
		raw = v.num
	case TypeBoolean:
		raw = v.b
	case TypeDate:
		raw = v.t.Format("2006-01-02")
	case TypeDateTime:
		raw = v.t.Format(time.RFC3339)
	default:
		return nil, fmt.Errorf("marshal value: %w", ErrInvalidValue)
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireValue{Type: v.typ, Value: data})
}

// UnmarshalJSON decodes the {"type":..., "value":...} form.
func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	switch w.Type {
	case TypeText, TypeEnum:
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return err
		}
		*v = Value{typ: w.Type, text: s}
	case TypeNumber:
		var n int64
		if err := json.Unmarshal(w.Value, &n); err != nil {
			return err
		}
		*v = Integer(n)
	case TypeBoolean:
		var b bool
		if err := json.Unmarshal(w.Value, &b); err != nil {
			return err
		}
		*v = Boolean(b)
	case TypeDate, TypeDateTime:
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return err
		}
		layout := time.RFC3339
		if w.Type == TypeDate {
			layout = "2006-01-02"
		}
		t, err := time.Parse(layout, s)
		if err != nil {
			return fmt.Errorf("parse %s: %w", w.Type, err)
		}
		*v = Value{typ: w.Type, t: t}
	default:
		return fmt.Errorf("unmarshal value type %q: %w", w.Type, ErrInvalidValue)
	}
	return nil
}
