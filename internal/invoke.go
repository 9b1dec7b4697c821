package dispatch

import (
	"context"
	"fmt"
)

// Call is one dynamic call as issued by a runtime adapter.
type Call struct {
	// Class is the class whose registry is searched. It defaults to the
	// receiver's class; when both are given the receiver must be an instance
	// of Class.
	Class    *ClassDescriptor
	Receiver *ObjectRef
	Method   string
	// Static forces a static lookup even when a receiver is present.
	Static     bool
	Positional []Value
	// Keyword is nil when no keyword arguments were passed.
	Keyword        map[string]Value
	HasBlock       bool
	AllowProtected bool
}

func (c *Call) static() bool {
	return c.Static || c.Receiver == nil
}

func (c *Call) class() (*ClassDescriptor, error) {
	if c.Receiver != nil {
		if !c.Receiver.Valid() {
			return nil, newDispatchError(TypeMismatch, "invalid object reference")
		}
		recvClass := c.Receiver.Class()
		if c.Class == nil {
			return recvClass, nil
		}
		if !recvClass.IsA(c.Class) {
			return nil, newDispatchError(TypeMismatch, "%s is not an instance of %s", recvClass.QualifiedName(), c.Class.QualifiedName())
		}
	}
	if c.Class == nil {
		return nil, newDispatchError(TypeMismatch, "call of %s has neither a class nor a receiver", c.Method)
	}
	return c.Class, nil
}

func (c *Call) request() *CallRequest {
	return &CallRequest{
		Positional:     c.Positional,
		Keyword:        c.Keyword,
		ConstReceiver:  !c.static() && c.Receiver.Const,
		HasBlock:       c.HasBlock,
		AllowProtected: c.AllowProtected,
	}
}

// ResolveAndCall looks call.Method up, selects one overload and invokes it.
func (e *engine) ResolveAndCall(ctx context.Context, call Call) (Value, error) {
	class, err := call.class()
	if err != nil {
		return nil, err
	}

	reg := class.Registry()
	set, ok := reg.Find(call.static(), call.Method)
	if !ok {
		return scopeAccess(class, &call)
	}

	req := call.request()
	m, err := e.resolve(class, reg, set, req)
	if err != nil {
		return nil, err
	}

	var recv *ObjectRef
	if !call.static() {
		recv = call.Receiver
	}
	return e.invoke(ctx, class, m, recv, req)
}

// Resolve runs the lookup and overload resolution of ResolveAndCall without
// invoking anything.
func (e *engine) Resolve(call Call) (*MethodDescriptor, error) {
	class, err := call.class()
	if err != nil {
		return nil, err
	}

	reg := class.Registry()
	set, ok := reg.Find(call.static(), call.Method)
	if !ok {
		if _, err := scopeAccess(class, &call); err != nil {
			return nil, err
		}
		return nil, newDispatchError(TypeMismatch, "%s is not a method", qualifiedMethodName(class, call.Method))
	}
	return e.resolve(class, reg, set, call.request())
}

func (e *engine) resolve(class *ClassDescriptor, reg *Registry, set *OverloadSet, req *CallRequest) (*MethodDescriptor, error) {
	if !e.cache.enabled() {
		return Resolve(class, set, req)
	}

	key, cacheable := e.cache.key(reg, set, req)
	if cacheable {
		if m := e.cache.lookup(key); m != nil {
			return m, nil
		}
	}

	m, err := Resolve(class, set, req)
	if err != nil {
		return nil, err
	}
	if cacheable {
		e.cache.store(key, m)
	}
	return m, nil
}

// scopeAccess resolves a name that is not a method: a named child class or
// a class constant, both read without arguments.
func scopeAccess(class *ClassDescriptor, call *Call) (Value, error) {
	var v Value
	if child, ok := class.Child(call.Method); ok {
		v = Scope{Class: child}
	} else if constant, ok := class.Constant(call.Method); ok {
		v = constant
	} else {
		return nil, newDispatchError(UnknownMethod, "undefined method '%s' for class %s", call.Method, class.QualifiedName())
	}

	if len(call.Positional) > 0 || len(call.Keyword) > 0 || call.HasBlock {
		return nil, newDispatchError(TypeMismatch, "%s is not callable, it does not take arguments", qualifiedMethodName(class, call.Method))
	}
	return v, nil
}

func (e *engine) invoke(ctx context.Context, class *ClassDescriptor, m *MethodDescriptor, recv *ObjectRef, req *CallRequest) (Value, error) {
	if recv != nil && !m.special.isQuery() {
		if _, err := recv.Object(); err != nil {
			return nil, err
		}
	}

	switch m.special {
	case SpecialNone:
	case SpecialConstructor:
		return e.construct(ctx, class, m, recv, req)
	default:
		return e.invokeSpecial(ctx, class, m, recv, req)
	}

	var self any
	if !m.static {
		if recv == nil {
			return nil, newDispatchError(TypeMismatch, "%s needs an instance", qualifiedMethodName(class, m.Name()))
		}
		obj, err := recv.Object()
		if err != nil {
			return nil, err
		}
		self = obj
	}

	ret, err := e.invokeNative(ctx, class, m, self, req)
	if err != nil {
		return nil, err
	}

	t := m.ret
	if t.Kind == TypeObject && t.Class == nil {
		t.Class = class
	}
	return e.fromNative(ctx, t, ret)
}

// invokeNative converts the bound arguments of m, calls its thunk and
// releases the temporaries created for the call.
func (e *engine) invokeNative(ctx context.Context, class *ClassDescriptor, m *MethodDescriptor, self any, req *CallRequest) (any, error) {
	name := qualifiedMethodName(class, m.Name())
	if m.call == nil {
		return nil, newDispatchError(TypeMismatch, "%s has no native implementation", name)
	}

	// Thunks that call back into the engine find it in the context.
	if _, err := GetEngineFromContext(ctx); err != nil {
		ctx = e.Attach(ctx)
	}

	args := bindArguments(m, req)
	native := make([]any, len(args))
	var destructors []*destructorFunc

	for i := range args {
		p := m.params[i]
		n, err := e.toNative(ctx, p.Type, args[i], &destructors)
		if err != nil {
			e.releaseDestructors(ctx, destructors)
			return nil, fmt.Errorf("could not convert argument %d (%s) of %s: %w", i+1, p.Name, name, err)
		}
		native[i] = n
	}

	ret, err := callNative(ctx, name, m.call, self, native)
	e.releaseDestructors(ctx, destructors)
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func callNative(ctx context.Context, name string, fn CallFunc, self any, args []any) (ret any, err error) {
	defer func() {
		if r := recover(); r != nil {
			ret = nil
			err = &NativeError{Method: name, Err: panicError(r)}
		}
	}()

	ret, err = fn(ctx, self, args)
	if err != nil {
		return nil, &NativeError{Method: name, Err: err}
	}
	return ret, nil
}
