package starlarkadapter

import (
	"context"
	"fmt"

	dispatch "github.com/jerbob92/wazero-dispatch"
	"go.starlark.net/starlark"
)

// ToValue converts a Starlark value to a dispatch value.
func (a *Adapter) ToValue(v starlark.Value) (dispatch.Value, error) {
	switch v := v.(type) {
	case starlark.NoneType:
		return dispatch.Void{}, nil
	case starlark.Bool:
		return dispatch.Bool(v), nil
	case starlark.Int:
		i, ok := v.Int64()
		if !ok {
			return nil, fmt.Errorf("integer %s out of range", v)
		}
		return dispatch.Int(i), nil
	case starlark.Float:
		return dispatch.Float(v), nil
	case starlark.String:
		return dispatch.Str(v), nil
	case *Object:
		return v.ref, nil
	case *Class:
		return dispatch.Scope{Class: v.class}, nil
	case *starlark.List:
		seq := make(dispatch.Seq, v.Len())
		for i := range seq {
			elem, err := a.ToValue(v.Index(i))
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			seq[i] = elem
		}
		return seq, nil
	case starlark.Tuple:
		seq := make(dispatch.Seq, len(v))
		for i := range v {
			elem, err := a.ToValue(v[i])
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			seq[i] = elem
		}
		return seq, nil
	case *starlark.Dict:
		m := make(dispatch.Map, v.Len())
		for _, item := range v.Items() {
			key, ok := starlark.AsString(item[0])
			if !ok {
				return nil, fmt.Errorf("dict key %s is not a string", item[0])
			}
			elem, err := a.ToValue(item[1])
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", key, err)
			}
			m[key] = elem
		}
		return m, nil
	}
	return nil, fmt.Errorf("cannot pass %s to a native method", v.Type())
}

// FromValue converts a dispatch value to a Starlark value. Owned objects are
// retained by the adapter until Close.
func (a *Adapter) FromValue(v dispatch.Value) (starlark.Value, error) {
	return a.fromValue(a.ctx, v)
}

// fromValue converts v for a script running with ctx. Streams are pulled
// with ctx.
func (a *Adapter) fromValue(ctx context.Context, v dispatch.Value) (starlark.Value, error) {
	switch v := v.(type) {
	case nil, dispatch.Void:
		return starlark.None, nil
	case dispatch.Bool:
		return starlark.Bool(v), nil
	case dispatch.Int:
		return starlark.MakeInt64(int64(v)), nil
	case dispatch.Float:
		return starlark.Float(v), nil
	case dispatch.Str:
		return starlark.String(v), nil
	case dispatch.ObjectRef:
		if !v.Valid() {
			return starlark.None, nil
		}
		if v.Owns() && !a.retained[v.Handle()] {
			v.Handle().Retain()
			a.retained[v.Handle()] = true
		}
		return &Object{adapter: a, ref: v}, nil
	case dispatch.Scope:
		return &Class{adapter: a, class: v.Class}, nil
	case *dispatch.Stream:
		it := &Iterable{adapter: a, ctx: ctx, stream: v}
		a.streams = append(a.streams, it)
		return it, nil
	case dispatch.Seq:
		elems := make([]starlark.Value, len(v))
		for i := range v {
			elem, err := a.fromValue(ctx, v[i])
			if err != nil {
				return nil, err
			}
			elems[i] = elem
		}
		return starlark.NewList(elems), nil
	case dispatch.Map:
		d := starlark.NewDict(len(v))
		for _, key := range v.Keys() {
			elem, err := a.fromValue(ctx, v[key])
			if err != nil {
				return nil, err
			}
			if err := d.SetKey(starlark.String(key), elem); err != nil {
				return nil, err
			}
		}
		return d, nil
	}
	return nil, fmt.Errorf("cannot convert %s to a starlark value", v)
}
