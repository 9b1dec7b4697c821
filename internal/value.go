package dispatch

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type Kind uint8

const (
	KindVoid Kind = iota
	KindBool
	KindInt
	KindFloat
	KindStr
	KindObject
	KindSeq
	KindMap
	KindScope
	KindStream
)

func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "Void"
	case KindBool:
		return "Bool"
	case KindInt:
		return "Int"
	case KindFloat:
		return "Float"
	case KindStr:
		return "Str"
	case KindObject:
		return "Object"
	case KindSeq:
		return "Seq"
	case KindMap:
		return "Map"
	case KindScope:
		return "Scope"
	case KindStream:
		return "Stream"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Value is the tagged union passed across the dispatch boundary. The set of
// implementations is closed: Void, Bool, Int, Float, Str, ObjectRef, Seq,
// Map, Scope and *Stream.
type Value interface {
	Kind() Kind
	String() string
	isValue()
}

type Void struct{}

type Bool bool

type Int int64

type Float float64

type Str string

type Seq []Value

type Map map[string]Value

// Scope is a class reached as a scoped constant, e.g. an enum nested in its
// owning class.
type Scope struct {
	Class *ClassDescriptor
}

func (Void) Kind() Kind      { return KindVoid }
func (Bool) Kind() Kind      { return KindBool }
func (Int) Kind() Kind       { return KindInt }
func (Float) Kind() Kind     { return KindFloat }
func (Str) Kind() Kind       { return KindStr }
func (ObjectRef) Kind() Kind { return KindObject }
func (Seq) Kind() Kind       { return KindSeq }
func (Map) Kind() Kind       { return KindMap }
func (Scope) Kind() Kind     { return KindScope }
func (*Stream) Kind() Kind   { return KindStream }

func (Void) isValue()      {}
func (Bool) isValue()      {}
func (Int) isValue()       {}
func (Float) isValue()     {}
func (Str) isValue()       {}
func (ObjectRef) isValue() {}
func (Seq) isValue()       {}
func (Map) isValue()       {}
func (Scope) isValue()     {}
func (*Stream) isValue()   {}

func (Void) String() string { return "nil" }

func (v Bool) String() string { return strconv.FormatBool(bool(v)) }

func (v Int) String() string { return strconv.FormatInt(int64(v), 10) }

func (v Float) String() string { return strconv.FormatFloat(float64(v), 'g', -1, 64) }

func (v Str) String() string { return strconv.Quote(string(v)) }

func (v Seq) String() string {
	parts := make([]string, len(v))
	for i := range v {
		parts[i] = v[i].String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// String renders keys in sorted order so output is stable.
func (v Map) String() string {
	parts := make([]string, 0, len(v))
	for _, k := range v.Keys() {
		parts = append(parts, strconv.Quote(k)+": "+v[k].String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (v Map) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (v Scope) String() string {
	if v.Class == nil {
		return "<scope>"
	}
	return v.Class.QualifiedName()
}

// Clone returns a deep copy of containers. Scalars, object references and
// streams are returned as is.
func Clone(v Value) Value {
	switch v := v.(type) {
	case Seq:
		if v == nil {
			return Seq(nil)
		}
		out := make(Seq, len(v))
		for i := range v {
			out[i] = Clone(v[i])
		}
		return out
	case Map:
		if v == nil {
			return Map(nil)
		}
		out := make(Map, len(v))
		for k, e := range v {
			out[k] = Clone(e)
		}
		return out
	}
	return v
}

// EqualValues compares two values structurally. Object references are equal when
// they point at the same handle.
func EqualValues(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch a := a.(type) {
	case Seq:
		bs := b.(Seq)
		if len(a) != len(bs) {
			return false
		}
		for i := range a {
			if !EqualValues(a[i], bs[i]) {
				return false
			}
		}
		return true
	case Map:
		bm := b.(Map)
		if len(a) != len(bm) {
			return false
		}
		for k, av := range a {
			bv, ok := bm[k]
			if !ok || !EqualValues(av, bv) {
				return false
			}
		}
		return true
	case ObjectRef:
		return a.handle == b.(ObjectRef).handle
	case *Stream:
		return a == b.(*Stream)
	}
	return a == b
}

// ValueOf converts a plain Go value into a Value without a declared type.
// Values that already are Values are returned unchanged.
func ValueOf(o any) (Value, error) {
	switch v := o.(type) {
	case nil:
		return Void{}, nil
	case Value:
		return v, nil
	case bool:
		return Bool(v), nil
	case string:
		return Str(v), nil
	case int:
		return Int(v), nil
	case int8:
		return Int(v), nil
	case int16:
		return Int(v), nil
	case int32:
		return Int(v), nil
	case int64:
		return Int(v), nil
	case uint:
		return unsignedValue(uint64(v))
	case uint8:
		return Int(v), nil
	case uint16:
		return Int(v), nil
	case uint32:
		return Int(v), nil
	case uint64:
		return unsignedValue(v)
	case float32:
		return Float(v), nil
	case float64:
		return Float(v), nil
	case []any:
		out := make(Seq, len(v))
		for i := range v {
			e, err := ValueOf(v[i])
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = e
		}
		return out, nil
	case map[string]any:
		out := make(Map, len(v))
		for k, e := range v {
			ev, err := ValueOf(e)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			out[k] = ev
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value of type %T", o)
}

func unsignedValue(u uint64) (Value, error) {
	i, ok := unsignedInt(u)
	if !ok {
		return nil, fmt.Errorf("unsigned value %d overflows Int", u)
	}
	return Int(i), nil
}
