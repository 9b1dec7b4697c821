package dispatch

import (
	"context"
	"fmt"
	"reflect"
)

// HandleState is the ownership state of a native object. Transitions only
// happen through the Destroy, Keep and Release special methods, constructor
// replacement and the last holder dropping an owned handle.
type HandleState uint8

const (
	// StateBorrowed: someone outside the binding layer destroys the object.
	StateBorrowed HandleState = iota
	// StateOwned: the binding layer destroys the object when the last holder
	// drops it.
	StateOwned
	StateDestroyed
)

func (s HandleState) String() string {
	switch s {
	case StateBorrowed:
		return "borrowed"
	case StateOwned:
		return "owned"
	case StateDestroyed:
		return "destroyed"
	}
	return fmt.Sprintf("HandleState(%d)", int(s))
}

// Handle is the bookkeeping record of one native object. The engine keeps at
// most one live handle per native object, so the ownership flag has a single
// source of truth.
type Handle struct {
	engine          *engine
	class           *ClassDescriptor
	obj             any
	state           HandleState
	refs            int
	deleteScheduled bool
}

func (h *Handle) Class() *ClassDescriptor {
	return h.class
}

func (h *Handle) State() HandleState {
	return h.state
}

func (h *Handle) Owns() bool {
	return h.state == StateOwned
}

func (h *Handle) IsDestroyed() bool {
	return h.state == StateDestroyed
}

// Object returns the native object, or a Destroyed error.
func (h *Handle) Object() (any, error) {
	if h.state == StateDestroyed {
		return nil, newDispatchError(Destroyed, "object of class %s has already been destroyed", h.class.QualifiedName())
	}
	return h.obj, nil
}

// Retain registers another host-side holder of the handle.
func (h *Handle) Retain() {
	h.refs++
}

// Drop unregisters a host-side holder. When the last holder goes away an
// owned object is destroyed, a borrowed one is forgotten.
func (h *Handle) Drop(ctx context.Context) error {
	if h.refs > 0 {
		h.refs--
	}
	if h.refs > 0 || h.state == StateDestroyed {
		return nil
	}
	if h.state == StateOwned {
		return h.destroy(ctx)
	}
	h.engine.forget(h)
	return nil
}

func (h *Handle) keep() error {
	if _, err := h.Object(); err != nil {
		return err
	}
	h.state = StateBorrowed
	return nil
}

func (h *Handle) release() error {
	if _, err := h.Object(); err != nil {
		return err
	}
	h.state = StateOwned
	return nil
}

func (h *Handle) destroy(ctx context.Context) error {
	obj, err := h.Object()
	if err != nil {
		return err
	}

	h.engine.forget(h)
	h.state = StateDestroyed
	h.obj = nil
	h.deleteScheduled = false

	return h.engine.destroyNative(ctx, h.class, obj)
}

// replace points the handle at a freshly constructed object. The previous
// target is destroyed when the handle owned it.
func (h *Handle) replace(ctx context.Context, obj any) error {
	old, err := h.Object()
	if err != nil {
		return err
	}
	wasOwned := h.state == StateOwned

	h.engine.forget(h)
	h.obj = obj
	h.state = StateOwned
	h.engine.remember(h)

	if wasOwned && old != nil {
		return h.engine.destroyNative(ctx, h.class, old)
	}
	return nil
}

// ObjectRef references a native object through its handle. Copies of an
// ObjectRef share the handle and therefore its ownership state.
type ObjectRef struct {
	handle *Handle
	Const  bool
}

func (r ObjectRef) Valid() bool {
	return r.handle != nil
}

func (r ObjectRef) Handle() *Handle {
	return r.handle
}

func (r ObjectRef) Class() *ClassDescriptor {
	if r.handle == nil {
		return nil
	}
	return r.handle.class
}

func (r ObjectRef) Object() (any, error) {
	if r.handle == nil {
		return nil, newDispatchError(TypeMismatch, "invalid object reference")
	}
	return r.handle.Object()
}

func (r ObjectRef) Owns() bool {
	return r.handle != nil && r.handle.Owns()
}

func (r ObjectRef) IsDestroyed() bool {
	return r.handle == nil || r.handle.IsDestroyed()
}

func (r ObjectRef) AsConst() ObjectRef {
	r.Const = true
	return r
}

func (r ObjectRef) String() string {
	if r.handle == nil {
		return "<invalid>"
	}
	prefix := ""
	if r.Const {
		prefix = "const "
	}
	if r.handle.IsDestroyed() {
		return "<" + prefix + r.handle.class.QualifiedName() + " (destroyed)>"
	}
	return "<" + prefix + r.handle.class.QualifiedName() + ">"
}

// identityKey returns the key the instance table uses for obj, if the object
// has an identity (pointers and guest pointers do, plain values do not).
func identityKey(obj any) (any, bool) {
	if obj == nil {
		return nil, false
	}
	if gp, ok := obj.(GuestPointer); ok {
		return gp, gp != 0
	}
	switch reflect.TypeOf(obj).Kind() {
	case reflect.Pointer, reflect.UnsafePointer:
		return obj, !reflect.ValueOf(obj).IsNil()
	}
	return nil, false
}

func (e *engine) remember(h *Handle) {
	e.handles[h] = struct{}{}
	if key, ok := identityKey(h.obj); ok {
		e.instances[key] = h
	}
}

func (e *engine) forget(h *Handle) {
	delete(e.handles, h)
	if key, ok := identityKey(h.obj); ok && e.instances[key] == h {
		delete(e.instances, key)
	}
}

// wrap returns the handle for obj, creating one when the object is not known
// yet. Taking ownership of a known borrowed object flips its state.
func (e *engine) wrap(class *ClassDescriptor, obj any, owned bool) *Handle {
	if key, ok := identityKey(obj); ok {
		if h, ok := e.instances[key]; ok && !h.IsDestroyed() {
			if owned {
				h.state = StateOwned
			}
			return h
		}
	}

	h := &Handle{
		engine: e,
		class:  class,
		obj:    obj,
		state:  StateBorrowed,
	}
	if owned {
		h.state = StateOwned
	}
	e.remember(h)
	return h
}

func (e *engine) destroyNative(ctx context.Context, class *ClassDescriptor, obj any) error {
	destroy := class.Lifecycle().Destroy
	if destroy == nil {
		return nil
	}
	return e.callHook(class.QualifiedName()+".destroy", func() error {
		return destroy(ctx, obj)
	})
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("%v", r)
}
