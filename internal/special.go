package dispatch

import (
	"context"
)

// Built-in special methods, present on every class. They are shared by all
// registries and dispatched on the special kind, never through a thunk.
var (
	builtinDestroy = &MethodDescriptor{
		synonyms: []Synonym{{Name: "destroy"}},
		special:  SpecialDestroy,
		ret:      VoidType,
		doc:      "Destroys the native object immediately.",
	}
	builtinKeep = &MethodDescriptor{
		synonyms: []Synonym{{Name: "keep"}},
		isConst:  true,
		special:  SpecialKeep,
		ret:      VoidType,
		doc:      "Hands the responsibility for destroying the object to an external owner.",
	}
	builtinRelease = &MethodDescriptor{
		synonyms: []Synonym{{Name: "release"}},
		isConst:  true,
		special:  SpecialRelease,
		ret:      VoidType,
		doc:      "Makes the binding layer responsible for destroying the object.",
	}
	builtinIsConst = &MethodDescriptor{
		synonyms: []Synonym{{Name: "is_const_object", Predicate: true}},
		isConst:  true,
		special:  SpecialIsConst,
		ret:      BoolType,
		doc:      "Returns true when the reference is const.",
	}
	builtinDestroyed = &MethodDescriptor{
		synonyms: []Synonym{{Name: "destroyed", Predicate: true}},
		isConst:  true,
		special:  SpecialDestroyed,
		ret:      BoolType,
		doc:      "Returns true when the native object has been destroyed.",
	}
	builtinAssign = &MethodDescriptor{
		synonyms: []Synonym{{Name: "assign"}},
		special:  SpecialAssign,
		params:   []ParamSpec{{Name: "other", Type: ConstObjectOf(nil)}},
		ret:      VoidType,
		doc:      "Copies the state of other into this object.",
	}
	builtinDup = &MethodDescriptor{
		synonyms: []Synonym{{Name: "dup"}},
		isConst:  true,
		special:  SpecialDup,
		ret:      NewObjectOf(nil),
		doc:      "Returns an owned copy of this object.",
	}
	builtinNew = &MethodDescriptor{
		synonyms: []Synonym{{Name: "new"}},
		static:   true,
		special:  SpecialConstructor,
		ret:      NewObjectOf(nil),
		doc:      "Creates a new object.",
	}
)

func builtinMethods(c *ClassDescriptor) []*MethodDescriptor {
	if c.name == "" {
		return nil
	}
	methods := []*MethodDescriptor{
		builtinDestroy,
		builtinKeep,
		builtinRelease,
		builtinIsConst,
		builtinDestroyed,
	}
	lifecycle := c.Lifecycle()
	if lifecycle.Copy != nil {
		methods = append(methods, builtinAssign)
		if lifecycle.New != nil {
			methods = append(methods, builtinDup)
		}
	}
	if lifecycle.New != nil {
		methods = append(methods, builtinNew)
	}
	return methods
}

func (e *engine) requireReceiver(class *ClassDescriptor, m *MethodDescriptor, recv *ObjectRef) error {
	if recv == nil || !recv.Valid() {
		return newDispatchError(TypeMismatch, "%s needs an instance", qualifiedMethodName(class, m.Name()))
	}
	return nil
}

func (e *engine) invokeSpecial(ctx context.Context, class *ClassDescriptor, m *MethodDescriptor, recv *ObjectRef, req *CallRequest) (Value, error) {
	if err := e.requireReceiver(class, m, recv); err != nil {
		return nil, err
	}
	h := recv.handle

	switch m.special {
	case SpecialIsConst:
		return Bool(recv.Const), nil

	case SpecialDestroyed:
		return Bool(h.IsDestroyed()), nil

	case SpecialKeep:
		return Void{}, h.keep()

	case SpecialRelease:
		return Void{}, h.release()

	case SpecialDestroy:
		if h.deleteScheduled {
			return nil, newDispatchError(Destroyed, "object of class %s is already scheduled for destruction", h.class.QualifiedName())
		}
		return Void{}, h.destroy(ctx)

	case SpecialAssign:
		args := bindArguments(m, req)
		other, ok := args[0].(ObjectRef)
		if !ok || !other.Valid() {
			return nil, newDispatchError(TypeMismatch, "cannot assign %s to %s", describeValue(args[0]), h.class.QualifiedName())
		}
		if other.Class() != h.class {
			return nil, newDispatchError(TypeMismatch, "cannot assign %s to %s, the classes differ", other.Class().QualifiedName(), h.class.QualifiedName())
		}
		copyFn := h.class.Lifecycle().Copy
		if copyFn == nil {
			return nil, newDispatchError(TypeMismatch, "objects of class %s cannot be assigned", h.class.QualifiedName())
		}
		dst, err := h.Object()
		if err != nil {
			return nil, err
		}
		src, err := other.Object()
		if err != nil {
			return nil, err
		}
		if err := e.callHook(h.class.QualifiedName()+".assign", func() error { return copyFn(ctx, dst, src) }); err != nil {
			return nil, err
		}
		return Void{}, nil

	case SpecialDup:
		src, err := h.Object()
		if err != nil {
			return nil, err
		}
		lifecycle := h.class.Lifecycle()
		if lifecycle.New == nil || lifecycle.Copy == nil {
			return nil, newDispatchError(TypeMismatch, "objects of class %s cannot be duplicated", h.class.QualifiedName())
		}
		var dup any
		err = e.callHook(h.class.QualifiedName()+".dup", func() error {
			var err error
			if dup, err = lifecycle.New(ctx); err != nil {
				return err
			}
			return lifecycle.Copy(ctx, dup, src)
		})
		if err != nil {
			return nil, err
		}
		return ObjectRef{handle: e.wrap(h.class, dup, true)}, nil
	}

	return nil, newDispatchError(TypeMismatch, "%s cannot be called", qualifiedMethodName(class, m.Name()))
}

// construct runs a constructor. Called statically it returns a new owned
// reference; called on an existing handle it replaces the handle's target.
func (e *engine) construct(ctx context.Context, class *ClassDescriptor, m *MethodDescriptor, recv *ObjectRef, req *CallRequest) (Value, error) {
	if recv != nil && recv.Const {
		return nil, newDispatchError(ConstViolation, "cannot construct %s on a const reference", qualifiedMethodName(class, m.Name()))
	}

	var obj any
	if m.call == nil {
		newFn := class.Lifecycle().New
		if newFn == nil {
			return nil, newDispatchError(TypeMismatch, "class %s cannot be constructed", class.QualifiedName())
		}
		err := e.callHook(class.QualifiedName()+".new", func() error {
			var err error
			obj, err = newFn(ctx)
			return err
		})
		if err != nil {
			return nil, err
		}
	} else {
		var err error
		obj, err = e.invokeNative(ctx, class, m, nil, req)
		if err != nil {
			return nil, err
		}
	}

	if recv != nil {
		if err := e.requireReceiver(class, m, recv); err != nil {
			return nil, err
		}
		if err := recv.handle.replace(ctx, obj); err != nil {
			return nil, err
		}
		return ObjectRef{handle: recv.handle}, nil
	}

	t := m.ret
	if t.Class == nil {
		t.Class = class
	}
	t.Transfer = true
	return e.fromNative(ctx, t, obj)
}

func (e *engine) callHook(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &NativeError{Method: name, Err: panicError(r)}
		}
	}()
	if err := fn(); err != nil {
		return &NativeError{Method: name, Err: err}
	}
	return nil
}
