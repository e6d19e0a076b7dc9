package viztrail

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/vizierdb/vizier/src/internal/errors"
)

// Value is a command argument: a Scalar, a Record or a List.
type Value interface {
	isValue()
	json.Marshaler
}

// Scalar holds a string, bool, int64, float64 or nil.
type Scalar struct {
	V interface{}
}

// Record maps argument names to values.
type Record map[string]Value

// List is an ordered sequence of values.
type List []Value

func (Scalar) isValue() {}
func (Record) isValue() {}
func (List) isValue()   {}

// String returns a string scalar.
func String(s string) Scalar { return Scalar{V: s} }

// Int returns an integer scalar.
func Int(n int64) Scalar { return Scalar{V: n} }

// Float returns a floating point scalar.
func Float(f float64) Scalar { return Scalar{V: f} }

// Bool returns a boolean scalar.
func Bool(b bool) Scalar { return Scalar{V: b} }

// Null returns the null scalar.
func Null() Scalar { return Scalar{} }

// MarshalJSON implements json.Marshaler.
func (s Scalar) MarshalJSON() ([]byte, error) {
	switch v := s.V.(type) {
	case nil, string, bool, int64, float64:
		b, err := json.Marshal(v)
		return b, errors.EnsureStack(err)
	case int:
		b, err := json.Marshal(int64(v))
		return b, errors.EnsureStack(err)
	default:
		return nil, errors.Errorf("unsupported scalar type %T", v)
	}
}

// MarshalJSON implements json.Marshaler.  Keys are written in sorted order.
func (r Record) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("{}"), nil
	}
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, errors.EnsureStack(err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := marshalValue(r[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler.
func (l List) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		vb, err := marshalValue(v)
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func marshalValue(v Value) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	return v.MarshalJSON()
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Record) UnmarshalJSON(data []byte) error {
	v, err := DecodeValue(data)
	if err != nil {
		return err
	}
	rec, ok := v.(Record)
	if !ok {
		return errors.Errorf("expected a JSON object, got %s", data)
	}
	*r = rec
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *List) UnmarshalJSON(data []byte) error {
	v, err := DecodeValue(data)
	if err != nil {
		return err
	}
	list, ok := v.(List)
	if !ok {
		return errors.Errorf("expected a JSON array, got %s", data)
	}
	*l = list
	return nil
}

// DecodeValue decodes a JSON document into a Value.  Objects become Records, arrays become
// Lists, integral numbers become int64 and other numbers float64.
func DecodeValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "decode argument")
	}
	return FromNative(raw)
}

// FromNative converts decoded JSON (maps, slices and scalars) into a Value.
func FromNative(raw interface{}) (Value, error) {
	switch x := raw.(type) {
	case map[string]interface{}:
		rec := make(Record, len(x))
		for k, v := range x {
			val, err := FromNative(v)
			if err != nil {
				return nil, errors.Wrapf(err, "argument %q", k)
			}
			rec[k] = val
		}
		return rec, nil
	case []interface{}:
		list := make(List, len(x))
		for i, v := range x {
			val, err := FromNative(v)
			if err != nil {
				return nil, errors.Wrapf(err, "element %d", i)
			}
			list[i] = val
		}
		return list, nil
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return Int(n), nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, errors.EnsureStack(err)
		}
		return Float(f), nil
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return Int(int64(x)), nil
		}
		return Float(x), nil
	case int:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case nil, string, bool:
		return Scalar{V: x}, nil
	default:
		return nil, errors.Errorf("unsupported argument type %T", raw)
	}
}

// ToNative converts v into plain Go maps, slices and scalars.
func ToNative(v Value) interface{} {
	switch x := v.(type) {
	case Scalar:
		return x.V
	case Record:
		m := make(map[string]interface{}, len(x))
		for k, e := range x {
			m[k] = ToNative(e)
		}
		return m
	case List:
		s := make([]interface{}, len(x))
		for i, e := range x {
			s[i] = ToNative(e)
		}
		return s
	}
	return nil
}

// MissingArgumentError is returned by Record accessors for absent arguments.
type MissingArgumentError struct {
	Name string
}

func (err *MissingArgumentError) Error() string {
	return fmt.Sprintf("missing argument %q", err.Name)
}

// Get returns the value of an argument.
func (r Record) Get(name string) (Value, bool) {
	v, ok := r[name]
	if !ok || v == nil {
		return nil, false
	}
	if s, isScalar := v.(Scalar); isScalar && s.V == nil {
		return nil, false
	}
	return v, true
}

// Has reports whether an argument is present and not null.
func (r Record) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

func (r Record) scalar(name string) (interface{}, error) {
	v, ok := r.Get(name)
	if !ok {
		return nil, &MissingArgumentError{Name: name}
	}
	s, ok := v.(Scalar)
	if !ok {
		return nil, errors.Errorf("argument %q is not a scalar", name)
	}
	return s.V, nil
}

// String returns a string argument.
func (r Record) String(name string) (string, error) {
	v, err := r.scalar(name)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.Errorf("argument %q is %T, not a string", name, v)
	}
	return s, nil
}

// StringOr returns a string argument, or def if it is absent.
func (r Record) StringOr(name, def string) (string, error) {
	if !r.Has(name) {
		return def, nil
	}
	return r.String(name)
}

// Int returns an integer argument.  Integral floats are accepted.
func (r Record) Int(name string) (int64, error) {
	v, err := r.scalar(name)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		if n == math.Trunc(n) {
			return int64(n), nil
		}
	}
	return 0, errors.Errorf("argument %q is %v, not an integer", name, v)
}

// Float returns a numeric argument.
func (r Record) Float(name string) (float64, error) {
	v, err := r.scalar(name)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	case float64:
		return n, nil
	}
	return 0, errors.Errorf("argument %q is %T, not a number", name, v)
}

// Bool returns a boolean argument.
func (r Record) Bool(name string) (bool, error) {
	v, err := r.scalar(name)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, errors.Errorf("argument %q is %T, not a bool", name, v)
	}
	return b, nil
}

// Record returns a nested record argument.
func (r Record) Record(name string) (Record, error) {
	v, ok := r.Get(name)
	if !ok {
		return nil, &MissingArgumentError{Name: name}
	}
	rec, ok := v.(Record)
	if !ok {
		return nil, errors.Errorf("argument %q is not a record", name)
	}
	return rec, nil
}

// List returns a list argument.  An absent list is empty.
func (r Record) List(name string) (List, error) {
	v, ok := r.Get(name)
	if !ok {
		return nil, nil
	}
	l, ok := v.(List)
	if !ok {
		return nil, errors.Errorf("argument %q is not a list", name)
	}
	return l, nil
}
