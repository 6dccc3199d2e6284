package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind tags the dynamic type carried by a Value.
type Kind int

const (
	Null Kind = iota
	String
	Number
	Bool
)

func (k Kind) String() string {
	switch k {
	case String:
		return "string"
	case Number:
		return "number"
	case Bool:
		return "bool"
	default:
		return "null"
	}
}

// Value is a single cell of a result row: string, number, bool or null.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
	Bool bool
}

func StringValue(s string) Value  { return Value{Kind: String, Str: s} }
func NumberValue(f float64) Value { return Value{Kind: Number, Num: f} }
func BoolValue(b bool) Value      { return Value{Kind: Bool, Bool: b} }
func NullValue() Value            { return Value{} }

// ValueOf converts a decoded Go value into a Value. Unknown shapes
// (nested objects, arrays) are kept as their JSON text.
func ValueOf(x any) Value {
	switch v := x.(type) {
	case nil:
		return NullValue()
	case Value:
		return v
	case string:
		return StringValue(v)
	case bool:
		return BoolValue(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return NumberValue(f)
		}
		return StringValue(v.String())
	case float64:
		return NumberValue(v)
	case float32:
		return NumberValue(float64(v))
	case int:
		return NumberValue(float64(v))
	case int64:
		return NumberValue(float64(v))
	case int32:
		return NumberValue(float64(v))
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return StringValue(fmt.Sprint(v))
		}
		return StringValue(string(b))
	}
}

// IsNull reports whether the value is the null marker.
func (v Value) IsNull() bool { return v.Kind == Null }

// IsText reports whether the value is a string.
func (v Value) IsText() bool { return v.Kind == String }

// Float parses the value as a finite number. Numeric strings are accepted
// after trimming surrounding whitespace; NaN and infinities are rejected.
func (v Value) Float() (float64, bool) {
	switch v.Kind {
	case Number:
		if math.IsNaN(v.Num) || math.IsInf(v.Num, 0) {
			return 0, false
		}
		return v.Num, true
	case String:
		s := strings.TrimSpace(v.Str)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// String renders the value for display. Null renders as an empty string.
func (v Value) String() string {
	switch v.Kind {
	case String:
		return v.Str
	case Number:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case Bool:
		return strconv.FormatBool(v.Bool)
	default:
		return ""
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case String:
		return json.Marshal(v.Str)
	case Number:
		if math.IsNaN(v.Num) || math.IsInf(v.Num, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(v.Num)
	case Bool:
		return json.Marshal(v.Bool)
	default:
		return []byte("null"), nil
	}
}

func (v *Value) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decode value: %w", err)
	}
	*v = ValueOf(raw)
	return nil
}

// Record is one row of a result set. Keys keep the order in which the
// backend emitted them.
type Record struct {
	keys   []string
	values map[string]Value
}

// Of builds a record from alternating key/value arguments.
func Of(kv ...any) Record {
	var r Record
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		r.Set(k, ValueOf(kv[i+1]))
	}
	return r
}

// Keys returns the record keys in order. The slice is a copy.
func (r Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

func (r Record) Len() int { return len(r.keys) }

func (r Record) Has(key string) bool {
	_, ok := r.values[key]
	return ok
}

// Get returns the value for key; missing keys yield null.
func (r Record) Get(key string) Value {
	return r.values[key]
}

// Set adds or replaces a value, appending new keys at the end.
func (r *Record) Set(key string, v Value) {
	if r.values == nil {
		r.values = make(map[string]Value)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = v
}

// Clone returns an independent copy of the record.
func (r Record) Clone() Record {
	out := Record{keys: r.Keys(), values: make(map[string]Value, len(r.values))}
	for k, v := range r.values {
		out.values[k] = v
	}
	return out
}

func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := r.values[k].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (r *Record) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("decode record: expected object, got %v", tok)
	}
	out := Record{}
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decode record key: %w", err)
		}
		key, ok := kt.(string)
		if !ok {
			return fmt.Errorf("decode record: unexpected key %v", kt)
		}
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("decode record %q: %w", key, err)
		}
		out.Set(key, ValueOf(raw))
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	*r = out
	return nil
}
