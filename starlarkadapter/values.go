package starlarkadapter

import (
	"context"
	"fmt"
	"sort"

	dispatch "github.com/jerbob92/wazero-dispatch"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Class is a registered class, or a child class reached through its outer
// class. Calling it constructs an object.
type Class struct {
	adapter *Adapter
	class   *dispatch.ClassDescriptor
}

var (
	_ starlark.Callable = (*Class)(nil)
	_ starlark.HasAttrs = (*Class)(nil)
)

func (c *Class) Descriptor() *dispatch.ClassDescriptor { return c.class }

func (c *Class) String() string        { return "<class " + c.class.QualifiedName() + ">" }
func (c *Class) Type() string          { return "class" }
func (c *Class) Freeze()               {}
func (c *Class) Truth() starlark.Bool  { return starlark.True }
func (c *Class) Hash() (uint32, error) { return starlark.String(c.class.QualifiedName()).Hash() }
func (c *Class) Name() string          { return c.class.QualifiedName() }

func (c *Class) CallInternal(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return c.adapter.call(thread, dispatch.Call{Class: c.class, Method: "new", Static: true}, args, kwargs)
}

func (c *Class) Attr(name string) (starlark.Value, error) {
	if _, ok := c.class.Registry().Find(true, name); ok {
		return &Method{adapter: c.adapter, call: dispatch.Call{Class: c.class, Method: name, Static: true}}, nil
	}
	if _, ok := c.class.Child(name); !ok {
		if _, ok := c.class.Constant(name); !ok {
			return nil, nil
		}
	}
	// Scoped constants and child classes are read right away.
	return c.adapter.call(nil, dispatch.Call{Class: c.class, Method: name, Static: true}, nil, nil)
}

func (c *Class) AttrNames() []string {
	names := c.class.Registry().Names(true)
	for _, child := range c.class.Children() {
		names = append(names, child.Name())
	}
	names = append(names, c.class.ConstantNames()...)
	sort.Strings(names)
	return names
}

// Object references a native object.
type Object struct {
	adapter *Adapter
	ref     dispatch.ObjectRef
}

var (
	_ starlark.HasAttrs    = (*Object)(nil)
	_ starlark.HasSetField = (*Object)(nil)
	_ starlark.Comparable  = (*Object)(nil)
	_ starlark.Value       = (*Object)(nil)
)

func (o *Object) Ref() dispatch.ObjectRef { return o.ref }

func (o *Object) String() string       { return o.ref.String() }
func (o *Object) Type() string         { return o.ref.Class().QualifiedName() }
func (o *Object) Freeze()              {}
func (o *Object) Truth() starlark.Bool { return starlark.Bool(!o.ref.IsDestroyed()) }

func (o *Object) Hash() (uint32, error) {
	return 0, fmt.Errorf("unhashable type: %s", o.Type())
}

// CompareSameType compares objects by native identity.
func (o *Object) CompareSameType(op syntax.Token, y starlark.Value, depth int) (bool, error) {
	same := o.ref.Handle() == y.(*Object).ref.Handle()
	switch op {
	case syntax.EQL:
		return same, nil
	case syntax.NEQ:
		return !same, nil
	}
	return false, fmt.Errorf("%s %s %s not implemented", o.Type(), op, y.Type())
}

func (o *Object) Attr(name string) (starlark.Value, error) {
	if _, ok := o.ref.Class().Registry().Find(false, name); !ok {
		return nil, nil
	}
	ref := o.ref
	return &Method{adapter: o.adapter, call: dispatch.Call{Receiver: &ref, Method: name}}, nil
}

func (o *Object) AttrNames() []string {
	return o.ref.Class().Registry().Names(false)
}

// SetField writes a property through its "name=" setter.
func (o *Object) SetField(name string, val starlark.Value) error {
	ref := o.ref
	_, err := o.adapter.call(nil, dispatch.Call{Receiver: &ref, Method: name + "="}, starlark.Tuple{val}, nil)
	return err
}

// Method is a method bound to its class or receiver.
type Method struct {
	adapter *Adapter
	call    dispatch.Call
}

var _ starlark.Callable = (*Method)(nil)

func (m *Method) String() string        { return "<method " + m.call.Method + ">" }
func (m *Method) Type() string          { return "method" }
func (m *Method) Freeze()               {}
func (m *Method) Truth() starlark.Bool  { return starlark.True }
func (m *Method) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: method") }
func (m *Method) Name() string          { return m.call.Method }

func (m *Method) CallInternal(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return m.adapter.call(thread, m.call, args, kwargs)
}

// Iterable is a single-pass stream returned by an iterator method. Leaving
// a for loop early stops the stream.
type Iterable struct {
	adapter *Adapter
	ctx     context.Context
	stream  *dispatch.Stream
	err     error
}

var _ starlark.Iterable = (*Iterable)(nil)

func (it *Iterable) String() string        { return it.stream.String() }
func (it *Iterable) Type() string          { return "stream" }
func (it *Iterable) Freeze()               {}
func (it *Iterable) Truth() starlark.Bool  { return starlark.Bool(!it.stream.Done()) }
func (it *Iterable) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: stream") }

// Err returns the error that ended the last iteration early, if any.
func (it *Iterable) Err() error { return it.err }

func (it *Iterable) Iterate() starlark.Iterator {
	return &streamIterator{iterable: it}
}

type streamIterator struct {
	iterable *Iterable
}

func (si *streamIterator) Next(p *starlark.Value) bool {
	it := si.iterable
	ctx := it.ctx
	v, ok, err := it.stream.Next(ctx)
	if err != nil {
		it.err = err
		it.adapter.engine.Logger().WarnContext(ctx, "stream stopped", "error", err)
		return false
	}
	if !ok {
		return false
	}
	sv, err := it.adapter.fromValue(ctx, v)
	if err != nil {
		it.err = err
		it.stream.Stop(ctx)
		return false
	}
	*p = sv
	return true
}

func (si *streamIterator) Done() {
	si.iterable.stream.Stop(si.iterable.ctx)
}

// Subscription is returned by subscribe.
type Subscription struct {
	handle *dispatch.SignalHandle
}

var _ starlark.HasAttrs = (*Subscription)(nil)

func (s *Subscription) String() string        { return "<subscription " + s.handle.Name() + ">" }
func (s *Subscription) Type() string          { return "subscription" }
func (s *Subscription) Freeze()               {}
func (s *Subscription) Truth() starlark.Bool  { return starlark.Bool(s.handle.Connected()) }
func (s *Subscription) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: subscription") }

func (s *Subscription) Attr(name string) (starlark.Value, error) {
	switch name {
	case "disconnect":
		return starlark.NewBuiltin("disconnect", func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
			s.handle.Disconnect()
			return starlark.None, nil
		}), nil
	case "connected":
		return starlark.Bool(s.handle.Connected()), nil
	}
	return nil, nil
}

func (s *Subscription) AttrNames() []string {
	return []string{"connected", "disconnect"}
}
