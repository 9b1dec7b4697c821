package dispatch

import (
	"context"
	"fmt"
	"sync"
)

// Lifecycle holds the native hooks of a class. Every hook is optional; a
// class without New cannot be constructed by default, a class without Copy
// cannot be assigned or duplicated.
type Lifecycle struct {
	New     func(ctx context.Context) (any, error)
	Destroy func(ctx context.Context, obj any) error
	Copy    func(ctx context.Context, dst, src any) error
}

type classConstant struct {
	name  string
	value Value
}

// ClassDescriptor is the static, read-only metadata of one exposed type. It
// is created through NewClass and never mutated after Build.
type ClassDescriptor struct {
	name      string
	outer     *ClassDescriptor
	base      *ClassDescriptor
	children  []*ClassDescriptor
	methods   []*MethodDescriptor
	constants []classConstant
	lifecycle Lifecycle
	built     bool

	registryOnce sync.Once
	registry     *Registry
}

func (c *ClassDescriptor) Name() string {
	return c.name
}

// QualifiedName includes the names of the enclosing classes.
func (c *ClassDescriptor) QualifiedName() string {
	if c.outer != nil && c.outer.name != "" {
		return c.outer.QualifiedName() + "." + c.name
	}
	if c.name == "" {
		return "<mixin>"
	}
	return c.name
}

func (c *ClassDescriptor) Base() *ClassDescriptor {
	return c.base
}

func (c *ClassDescriptor) Outer() *ClassDescriptor {
	return c.outer
}

// Children returns the named child classes, in declaration order.
func (c *ClassDescriptor) Children() []*ClassDescriptor {
	var named []*ClassDescriptor
	for _, child := range c.children {
		if child.name != "" {
			named = append(named, child)
		}
	}
	return named
}

// Mixins returns the unnamed child registries merged into this class.
func (c *ClassDescriptor) Mixins() []*ClassDescriptor {
	var mixins []*ClassDescriptor
	for _, child := range c.children {
		if child.name == "" {
			mixins = append(mixins, child)
		}
	}
	return mixins
}

func (c *ClassDescriptor) Child(name string) (*ClassDescriptor, bool) {
	if name == "" {
		return nil, false
	}
	for _, child := range c.children {
		if child.name == name {
			return child, true
		}
	}
	return nil, false
}

// Methods returns the methods declared directly on this class.
func (c *ClassDescriptor) Methods() []*MethodDescriptor {
	return append([]*MethodDescriptor(nil), c.methods...)
}

// Constant looks up a class constant on this class and its ancestors. The
// returned value is a fresh copy.
func (c *ClassDescriptor) Constant(name string) (Value, bool) {
	for cls := c; cls != nil; cls = cls.base {
		for _, constant := range cls.constants {
			if constant.name == name {
				return Clone(constant.value), true
			}
		}
	}
	return nil, false
}

func (c *ClassDescriptor) ConstantNames() []string {
	names := make([]string, len(c.constants))
	for i := range c.constants {
		names[i] = c.constants[i].name
	}
	return names
}

// IsA reports whether c is other or derives from it.
func (c *ClassDescriptor) IsA(other *ClassDescriptor) bool {
	for cls := c; cls != nil; cls = cls.base {
		if cls == other {
			return true
		}
	}
	return false
}

// Lifecycle returns the effective hooks of the class. Destroy and Copy are
// inherited from the ancestors, New is not: a derived class is only
// constructible when it says how.
func (c *ClassDescriptor) Lifecycle() Lifecycle {
	l := Lifecycle{New: c.lifecycle.New}
	for cls := c; cls != nil; cls = cls.base {
		if l.Destroy == nil {
			l.Destroy = cls.lifecycle.Destroy
		}
		if l.Copy == nil {
			l.Copy = cls.lifecycle.Copy
		}
	}
	return l
}

func (c *ClassDescriptor) String() string {
	return c.QualifiedName()
}

type ClassBuilder struct {
	class *ClassDescriptor
	err   error
}

// NewClass starts the declaration of a class. An empty name declares a
// mix-in: an unnamed registry that is merged into the class it is added to.
func NewClass(name string) *ClassBuilder {
	return &ClassBuilder{
		class: &ClassDescriptor{name: name},
	}
}

// Class returns the descriptor under construction, so methods can refer to
// their own class in parameter and return types.
func (b *ClassBuilder) Class() *ClassDescriptor {
	return b.class
}

func (b *ClassBuilder) Base(base *ClassDescriptor) *ClassBuilder {
	if b.class.base != nil {
		b.fail(fmt.Errorf("class %s already has base %s", b.class.name, b.class.base.name))
		return b
	}
	for cls := base; cls != nil; cls = cls.base {
		if cls == b.class {
			b.fail(fmt.Errorf("class %s cannot derive from itself", b.class.name))
			return b
		}
	}
	b.class.base = base
	return b
}

// Child adds a nested class. Named children become scopes reachable through
// the owning class, unnamed children are mix-ins.
func (b *ClassBuilder) Child(child *ClassDescriptor) *ClassBuilder {
	if child == nil {
		b.fail(fmt.Errorf("class %s: nil child class", b.class.name))
		return b
	}
	if child.name != "" {
		if _, ok := b.class.Child(child.name); ok {
			b.fail(fmt.Errorf("class %s already has a child class %s", b.class.name, child.name))
			return b
		}
		if child.outer != nil && child.outer != b.class {
			b.fail(fmt.Errorf("class %s is already nested in %s", child.name, child.outer.name))
			return b
		}
	}
	b.class.children = append(b.class.children, child)
	return b
}

func (b *ClassBuilder) Mixin(mixin *ClassDescriptor) *ClassBuilder {
	if mixin != nil && mixin.name != "" {
		b.fail(fmt.Errorf("class %s: mix-in %s must be unnamed", b.class.name, mixin.name))
		return b
	}
	return b.Child(mixin)
}

func (b *ClassBuilder) Method(methods ...*MethodDescriptor) *ClassBuilder {
	for _, m := range methods {
		if m == nil {
			b.fail(fmt.Errorf("class %s: nil method", b.class.name))
			continue
		}
		b.class.methods = append(b.class.methods, m)
	}
	return b
}

func (b *ClassBuilder) Constant(name string, value Value) *ClassBuilder {
	for _, constant := range b.class.constants {
		if constant.name == name {
			b.fail(fmt.Errorf("class %s already has a constant %s", b.class.name, name))
			return b
		}
	}
	b.class.constants = append(b.class.constants, classConstant{name: name, value: value})
	return b
}

func (b *ClassBuilder) Lifecycle(l Lifecycle) *ClassBuilder {
	b.class.lifecycle = l
	return b
}

func (b *ClassBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Build freezes the class. It fails on the first declaration error.
func (b *ClassBuilder) Build() (*ClassDescriptor, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.class.built {
		return nil, fmt.Errorf("class %s is already built", b.class.name)
	}
	for _, child := range b.class.children {
		if child.name != "" {
			child.outer = b.class
		}
	}
	b.class.built = true
	return b.class, nil
}

func (b *ClassBuilder) MustBuild() *ClassDescriptor {
	c, err := b.Build()
	if err != nil {
		panic(err)
	}
	return c
}
