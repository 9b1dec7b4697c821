package dispatch

import (
	"context"
	"fmt"
	"math"
	"reflect"

	"golang.org/x/text/encoding/unicode"
)

// destructorFunc releases a temporary created while converting an argument.
type destructorFunc struct {
	name string
	fn   func(ctx context.Context) error
}

func (df *destructorFunc) run(ctx context.Context) error {
	if err := df.fn(ctx); err != nil {
		return fmt.Errorf("could not release %s: %w", df.name, err)
	}
	return nil
}

// releaseDestructors runs the destructors in order. Failures are logged, the
// call result or error they follow is what the caller gets.
func (e *engine) releaseDestructors(ctx context.Context, destructors []*destructorFunc) {
	for i := range destructors {
		if err := destructors[i].run(ctx); err != nil {
			e.logger.WarnContext(ctx, "argument cleanup failed", "error", err)
		}
	}
}

var utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// EncodeWString converts s to its UTF-16LE native form.
func EncodeWString(s string) ([]byte, error) {
	encoded, err := utf16LE.NewEncoder().String(s)
	if err != nil {
		return nil, err
	}
	return []byte(encoded), nil
}

// DecodeWString converts UTF-16LE bytes back to a Go string.
func DecodeWString(b []byte) (string, error) {
	decoded, err := utf16LE.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

func conversionError(t TypeTag, v Value) error {
	return newDispatchError(TypeMismatch, "cannot convert %s to %s", describeValue(v), t)
}

// toNative converts v to the native representation of t. Temporaries that
// must be released after the call are added to destructors.
func (e *engine) toNative(ctx context.Context, t TypeTag, v Value, destructors *[]*destructorFunc) (any, error) {
	switch t.Kind {
	case TypeBool:
		switch v := v.(type) {
		case Bool:
			return bool(v), nil
		case Int:
			return v != 0, nil
		case Float:
			return v != 0, nil
		}

	case TypeInt:
		switch v := v.(type) {
		case Int:
			return int64(v), nil
		case Float:
			return int64(v), nil
		case Bool:
			if v {
				return int64(1), nil
			}
			return int64(0), nil
		}

	case TypeFloat:
		switch v := v.(type) {
		case Float:
			return float64(v), nil
		case Int:
			return float64(v), nil
		case Bool:
			if v {
				return float64(1), nil
			}
			return float64(0), nil
		}

	case TypeString:
		if s, ok := v.(Str); ok {
			return string(s), nil
		}

	case TypeWString:
		if s, ok := v.(Str); ok {
			encoded, err := EncodeWString(string(s))
			if err != nil {
				return nil, newDispatchError(TypeMismatch, "cannot encode %s as wstring: %s", s, err)
			}
			return encoded, nil
		}

	case TypeObject:
		if _, ok := v.(Void); ok && t.Nullable {
			return nil, nil
		}
		ref, ok := v.(ObjectRef)
		if !ok {
			break
		}
		obj, err := ref.Object()
		if err != nil {
			return nil, err
		}
		if !t.ByValue {
			return obj, nil
		}
		return e.temporaryCopy(ctx, ref.Class(), obj, destructors)

	case TypeSeq:
		seq, ok := v.(Seq)
		if !ok {
			break
		}
		out := make([]any, len(seq))
		elem := t.elem()
		for i := range seq {
			n, err := e.toNative(ctx, elem, seq[i], destructors)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil

	case TypeMap:
		m, ok := v.(Map)
		if !ok {
			break
		}
		out := make(map[string]any, len(m))
		elem := t.elem()
		for _, k := range m.Keys() {
			n, err := e.toNative(ctx, elem, m[k], destructors)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil

	case TypeAny:
		return v, nil
	}

	return nil, conversionError(t, v)
}

func (e *engine) temporaryCopy(ctx context.Context, class *ClassDescriptor, obj any, destructors *[]*destructorFunc) (any, error) {
	lifecycle := class.Lifecycle()
	if lifecycle.New == nil || lifecycle.Copy == nil {
		return nil, newDispatchError(TypeMismatch, "class %s cannot be passed by value, it cannot be copied", class.QualifiedName())
	}
	var tmp any
	err := e.callHook(class.QualifiedName()+".dup", func() error {
		var err error
		if tmp, err = lifecycle.New(ctx); err != nil {
			return err
		}
		return lifecycle.Copy(ctx, tmp, obj)
	})
	if err != nil {
		return nil, err
	}
	*destructors = append(*destructors, &destructorFunc{
		name: "temporary " + class.QualifiedName(),
		fn: func(ctx context.Context) error {
			return e.destroyNative(ctx, class, tmp)
		},
	})
	return tmp, nil
}

// fromNative converts a native result to a Value of type t.
func (e *engine) fromNative(ctx context.Context, t TypeTag, o any) (Value, error) {
	if v, ok := o.(Value); ok && t.Kind != TypeIterator {
		return v, nil
	}

	switch t.Kind {
	case TypeVoid:
		return Void{}, nil

	case TypeBool:
		if b, ok := o.(bool); ok {
			return Bool(b), nil
		}
		if rv := reflect.ValueOf(o); rv.IsValid() && rv.Kind() == reflect.Bool {
			return Bool(rv.Bool()), nil
		}

	case TypeInt:
		if i, ok := nativeInt(o); ok {
			return Int(i), nil
		}

	case TypeFloat:
		if f, ok := nativeFloat(o); ok {
			return Float(f), nil
		}
		if i, ok := nativeInt(o); ok {
			return Float(i), nil
		}

	case TypeString:
		switch s := o.(type) {
		case string:
			return Str(s), nil
		case []byte:
			return Str(s), nil
		}
		if rv := reflect.ValueOf(o); rv.IsValid() && rv.Kind() == reflect.String {
			return Str(rv.String()), nil
		}

	case TypeWString:
		switch s := o.(type) {
		case string:
			return Str(s), nil
		case []byte:
			decoded, err := DecodeWString(s)
			if err != nil {
				return nil, newDispatchError(TypeMismatch, "cannot decode wstring result: %s", err)
			}
			return Str(decoded), nil
		}

	case TypeObject:
		if o == nil {
			return Void{}, nil
		}
		if rv := reflect.ValueOf(o); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return Void{}, nil
		}
		if t.Class == nil {
			return nil, newDispatchError(TypeMismatch, "cannot wrap native %T without a class", o)
		}
		h := e.wrap(t.Class, o, t.Transfer)
		return ObjectRef{handle: h, Const: t.Const}, nil

	case TypeSeq:
		if o == nil {
			return Seq{}, nil
		}
		rv := reflect.ValueOf(o)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			break
		}
		elem := t.elem()
		out := make(Seq, rv.Len())
		for i := range out {
			v, err := e.fromNative(ctx, elem, rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = v
		}
		return out, nil

	case TypeMap:
		if o == nil {
			return Map{}, nil
		}
		rv := reflect.ValueOf(o)
		if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
			break
		}
		elem := t.elem()
		out := make(Map, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key := iter.Key().String()
			v, err := e.fromNative(ctx, elem, iter.Value().Interface())
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", key, err)
			}
			out[key] = v
		}
		return out, nil

	case TypeAny:
		v, err := ValueOf(o)
		if err != nil {
			return nil, newDispatchError(TypeMismatch, "%s", err)
		}
		return v, nil

	case TypeIterator:
		return e.newStream(ctx, t.elem(), o)
	}

	return nil, newDispatchError(TypeMismatch, "cannot convert native %T to %s", o, t)
}

func nativeInt(o any) (int64, bool) {
	switch i := o.(type) {
	case int:
		return int64(i), true
	case int8:
		return int64(i), true
	case int16:
		return int64(i), true
	case int32:
		return int64(i), true
	case int64:
		return i, true
	case uint:
		return unsignedInt(uint64(i))
	case uint8:
		return int64(i), true
	case uint16:
		return int64(i), true
	case uint32:
		return int64(i), true
	case uint64:
		return unsignedInt(i)
	}

	rv := reflect.ValueOf(o)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return unsignedInt(rv.Uint())
	}
	return 0, false
}

// unsignedInt reports false for values Int cannot hold.
func unsignedInt(u uint64) (int64, bool) {
	if u > math.MaxInt64 {
		return 0, false
	}
	return int64(u), true
}

func nativeFloat(o any) (float64, bool) {
	switch f := o.(type) {
	case float32:
		return float64(f), true
	case float64:
		return f, true
	}

	rv := reflect.ValueOf(o)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}
