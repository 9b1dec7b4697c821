package dispatch

import (
	"context"
	"fmt"
	"strings"
)

type Special uint8

const (
	SpecialNone Special = iota
	SpecialConstructor
	SpecialDestroy
	SpecialKeep
	SpecialRelease
	SpecialIsConst
	SpecialDestroyed
	SpecialAssign
	SpecialDup
)

func (s Special) String() string {
	switch s {
	case SpecialNone:
		return "none"
	case SpecialConstructor:
		return "constructor"
	case SpecialDestroy:
		return "destroy"
	case SpecialKeep:
		return "keep"
	case SpecialRelease:
		return "release"
	case SpecialIsConst:
		return "is_const"
	case SpecialDestroyed:
		return "destroyed"
	case SpecialAssign:
		return "assign"
	case SpecialDup:
		return "dup"
	}
	return fmt.Sprintf("Special(%d)", int(s))
}

// isQuery reports whether the special method only reads handle bookkeeping
// and may therefore be called on a destroyed handle.
func (s Special) isQuery() bool {
	return s == SpecialIsConst || s == SpecialDestroyed
}

// Synonym is one externally visible name of a method.
type Synonym struct {
	Name      string
	Setter    bool
	Predicate bool
}

// ExternalNames returns the names the synonym is registered under: setters
// gain a trailing "=", predicates are reachable with and without "?".
func (s Synonym) ExternalNames() []string {
	switch {
	case s.Setter:
		return []string{s.Name + "="}
	case s.Predicate:
		return []string{s.Name, s.Name + "?"}
	}
	return []string{s.Name}
}

type ParamSpec struct {
	Name       string
	Type       TypeTag
	HasDefault bool
	Default    Value
}

func (p ParamSpec) String() string {
	s := p.Name + ": " + p.Type.String()
	if p.HasDefault {
		s += " = " + p.Default.String()
	}
	return s
}

// CallFunc is the native thunk of a method. self is nil for static methods
// and constructors; args hold the native representation of every parameter.
type CallFunc func(ctx context.Context, self any, args []any) (any, error)

// ConnectFunc subscribes emit to a native signal of self and returns the
// function that disconnects it again.
type ConnectFunc func(ctx context.Context, self any, emit func(ctx context.Context, args []any) error) (disconnect func(), err error)

// MethodDescriptor is the static metadata of one overload.
type MethodDescriptor struct {
	synonyms  []Synonym
	static    bool
	isConst   bool
	protected bool
	signal    bool
	callback  bool
	special   Special
	params    []ParamSpec
	ret       TypeTag
	call      CallFunc
	connect   ConnectFunc
	doc       string
}

// Name is the primary external name.
func (m *MethodDescriptor) Name() string {
	if len(m.synonyms) == 0 {
		return ""
	}
	return m.synonyms[0].Name
}

func (m *MethodDescriptor) Synonyms() []Synonym {
	return append([]Synonym(nil), m.synonyms...)
}

func (m *MethodDescriptor) IsStatic() bool      { return m.static }
func (m *MethodDescriptor) IsConst() bool       { return m.isConst }
func (m *MethodDescriptor) IsProtected() bool   { return m.protected }
func (m *MethodDescriptor) IsSignal() bool      { return m.signal }
func (m *MethodDescriptor) IsCallback() bool    { return m.callback }
func (m *MethodDescriptor) Special() Special    { return m.special }
func (m *MethodDescriptor) ReturnType() TypeTag { return m.ret }
func (m *MethodDescriptor) Doc() string         { return m.doc }
func (m *MethodDescriptor) Arity() int          { return len(m.params) }

func (m *MethodDescriptor) Params() []ParamSpec {
	return append([]ParamSpec(nil), m.params...)
}

// Signature renders the method the way it is listed in resolution errors.
func (m *MethodDescriptor) Signature() string {
	var sb strings.Builder
	if m.static {
		sb.WriteString("static ")
	}
	if m.signal {
		sb.WriteString("signal ")
	}
	sb.WriteString(m.Name())
	sb.WriteString("(")
	for i := range m.params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(m.params[i].String())
	}
	sb.WriteString(")")
	if m.isConst {
		sb.WriteString(" const")
	}
	if m.ret.Kind != TypeVoid {
		sb.WriteString(" -> ")
		sb.WriteString(m.ret.String())
	}
	return sb.String()
}

func (m *MethodDescriptor) String() string {
	return m.Signature()
}

type MethodBuilder struct {
	method *MethodDescriptor
	err    error
}

func NewMethod(name string) *MethodBuilder {
	return &MethodBuilder{
		method: &MethodDescriptor{
			synonyms: []Synonym{{Name: name}},
			ret:      VoidType,
		},
	}
}

// NewConstructor declares a static constructor. The thunk returns the new
// native object, which the caller owns.
func NewConstructor(name string, class *ClassDescriptor) *MethodBuilder {
	b := NewMethod(name)
	b.method.static = true
	b.method.special = SpecialConstructor
	b.method.ret = NewObjectOf(class)
	if class == nil {
		b.fail(fmt.Errorf("constructor %s has no class", name))
	}
	return b
}

// NewSignal declares a signal member. Signals are never called; they are
// subscribed to. Parameters describe the arguments passed to handlers.
func NewSignal(name string, connect ConnectFunc) *MethodBuilder {
	b := NewMethod(name)
	b.method.signal = true
	b.method.connect = connect
	return b
}

func (b *MethodBuilder) Alias(name string) *MethodBuilder {
	b.method.synonyms = append(b.method.synonyms, Synonym{Name: name})
	return b
}

// Setter registers an additional "name=" synonym for property writes.
func (b *MethodBuilder) Setter(name string) *MethodBuilder {
	b.method.synonyms = append(b.method.synonyms, Synonym{Name: name, Setter: true})
	return b
}

// AsSetter turns the primary name into a setter synonym.
func (b *MethodBuilder) AsSetter() *MethodBuilder {
	b.method.synonyms[0].Setter = true
	return b
}

// Predicate makes every plain synonym reachable with a trailing "?" too.
func (b *MethodBuilder) Predicate() *MethodBuilder {
	for i := range b.method.synonyms {
		if !b.method.synonyms[i].Setter {
			b.method.synonyms[i].Predicate = true
		}
	}
	return b
}

func (b *MethodBuilder) Static() *MethodBuilder {
	b.method.static = true
	return b
}

func (b *MethodBuilder) Const() *MethodBuilder {
	b.method.isConst = true
	return b
}

func (b *MethodBuilder) Protected() *MethodBuilder {
	b.method.protected = true
	return b
}

func (b *MethodBuilder) Callback() *MethodBuilder {
	b.method.callback = true
	return b
}

func (b *MethodBuilder) Doc(doc string) *MethodBuilder {
	b.method.doc = doc
	return b
}

func (b *MethodBuilder) Param(name string, t TypeTag) *MethodBuilder {
	b.method.params = append(b.method.params, ParamSpec{Name: name, Type: t})
	return b
}

// ParamDefault adds a parameter with a default value. The value is a
// template: it is cloned for every call and never handed out directly.
func (b *MethodBuilder) ParamDefault(name string, t TypeTag, def Value) *MethodBuilder {
	if def == nil {
		def = Void{}
	}
	if !t.Loose(def) {
		b.fail(fmt.Errorf("method %s: default %s of parameter %s is not a %s", b.method.Name(), def, name, t))
	}
	b.method.params = append(b.method.params, ParamSpec{Name: name, Type: t, HasDefault: true, Default: def})
	return b
}

func (b *MethodBuilder) Returns(t TypeTag) *MethodBuilder {
	b.method.ret = t
	return b
}

func (b *MethodBuilder) Call(fn CallFunc) *MethodBuilder {
	b.method.call = fn
	return b
}

func (b *MethodBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *MethodBuilder) Build() (*MethodDescriptor, error) {
	if b.err != nil {
		return nil, b.err
	}
	m := b.method
	name := m.Name()
	if name == "" {
		return nil, fmt.Errorf("method must have a name")
	}

	seen := map[string]bool{}
	defaulted := false
	for i, p := range m.params {
		if p.Name == "" {
			return nil, fmt.Errorf("method %s: parameter %d has no name", name, i)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("method %s: duplicate parameter name %s", name, p.Name)
		}
		seen[p.Name] = true

		if p.HasDefault {
			defaulted = true
		} else if defaulted {
			return nil, fmt.Errorf("method %s: parameter %s without default follows a defaulted parameter", name, p.Name)
		}

		if p.Type.Kind == TypeVoid || p.Type.Kind == TypeIterator {
			return nil, fmt.Errorf("method %s: parameter %s cannot be of type %s", name, p.Name, p.Type)
		}
	}

	for _, s := range m.synonyms {
		if s.Setter && len(m.params) != 1 {
			return nil, fmt.Errorf("method %s: setter %s= must take exactly one parameter", name, s.Name)
		}
		if s.Predicate && (len(m.params) > 1 || m.ret.Kind != TypeBool) {
			return nil, fmt.Errorf("method %s: predicate %s must return bool and take at most one parameter", name, s.Name)
		}
	}

	switch {
	case m.signal:
		if m.connect == nil {
			return nil, fmt.Errorf("signal %s has no connect function", name)
		}
	case m.special == SpecialNone || m.special == SpecialConstructor:
		if m.call == nil {
			return nil, fmt.Errorf("method %s has no call function", name)
		}
	}

	if m.special == SpecialConstructor && m.ret.Kind != TypeObject {
		return nil, fmt.Errorf("constructor %s must return an object", name)
	}

	return m, nil
}

func (b *MethodBuilder) MustBuild() *MethodDescriptor {
	m, err := b.Build()
	if err != nil {
		panic(err)
	}
	return m
}
