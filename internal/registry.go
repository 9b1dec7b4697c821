package dispatch

import (
	"sort"
	"sync/atomic"
)

type overloadKey struct {
	static bool
	name   string
}

// OverloadSet holds every method sharing an external name and
// static/instance-ness, in declaration order.
type OverloadSet struct {
	Name    string
	Static  bool
	Methods []*MethodDescriptor
}

// Registry is the effective method table of one class: its own methods,
// those of its mix-ins and ancestors, and the built-in special methods.
type Registry struct {
	id    uint64
	class *ClassDescriptor
	sets  map[overloadKey]*OverloadSet
}

var registryIDs atomic.Uint64

// Registry returns the method registry of the class, building it on first
// use. The result is immutable and shared by all callers.
func (c *ClassDescriptor) Registry() *Registry {
	c.registryOnce.Do(func() {
		c.registry = buildRegistry(c)
	})
	return c.registry
}

func (r *Registry) ID() uint64 {
	return r.id
}

func (r *Registry) Class() *ClassDescriptor {
	return r.class
}

// Find returns the overload set for name. Instance lookups fall back to
// static methods, which are callable as if they were instance methods.
func (r *Registry) Find(static bool, name string) (*OverloadSet, bool) {
	if set, ok := r.sets[overloadKey{static: static, name: name}]; ok {
		return set, true
	}
	if !static {
		if set, ok := r.sets[overloadKey{static: true, name: name}]; ok {
			return set, true
		}
	}
	return nil, false
}

// Names lists the external names of one kind, sorted.
func (r *Registry) Names(static bool) []string {
	var names []string
	for key := range r.sets {
		if key.static == static {
			names = append(names, key.name)
		}
	}
	sort.Strings(names)
	return names
}

// Sets returns every overload set, sorted by kind and name.
func (r *Registry) Sets() []*OverloadSet {
	sets := make([]*OverloadSet, 0, len(r.sets))
	for _, set := range r.sets {
		sets = append(sets, set)
	}
	sort.Slice(sets, func(i, j int) bool {
		if sets[i].Static != sets[j].Static {
			return !sets[i].Static
		}
		return sets[i].Name < sets[j].Name
	})
	return sets
}

type methodLayer map[overloadKey][]*MethodDescriptor

func (l methodLayer) add(m *MethodDescriptor) {
	for _, s := range m.synonyms {
		for _, name := range s.ExternalNames() {
			key := overloadKey{static: m.static, name: name}
			l[key] = appendUnique(l[key], m)
		}
	}
}

func appendUnique(list []*MethodDescriptor, m *MethodDescriptor) []*MethodDescriptor {
	for _, existing := range list {
		if existing == m {
			return list
		}
	}
	return append(list, m)
}

// merge puts the methods of a higher layer on top of acc. A method shadows
// the lower-layer methods with the same name, kind and arity.
func (l methodLayer) merge(higher methodLayer) {
	for key, methods := range higher {
		arities := map[int]bool{}
		for _, m := range methods {
			arities[len(m.params)] = true
		}

		var kept []*MethodDescriptor
		for _, m := range l[key] {
			if !arities[len(m.params)] {
				kept = append(kept, m)
			}
		}
		for _, m := range methods {
			kept = appendUnique(kept, m)
		}
		l[key] = kept
	}
}

func mixinLayer(mixin *ClassDescriptor) methodLayer {
	layer := methodLayer{}
	for _, nested := range mixin.Mixins() {
		layer.merge(mixinLayer(nested))
	}
	for _, m := range mixin.methods {
		layer.add(m)
	}
	return layer
}

func buildRegistry(c *ClassDescriptor) *Registry {
	acc := methodLayer{}

	builtins := methodLayer{}
	for _, m := range builtinMethods(c) {
		builtins.add(m)
	}
	acc.merge(builtins)

	// Constructors are not inherited. The built-in specials depend on the
	// lifecycle of the class itself and are already in the builtins layer.
	if c.base != nil {
		inherited := methodLayer{}
		for _, set := range c.base.Registry().sets {
			for _, m := range set.Methods {
				if m.special != SpecialNone {
					continue
				}
				key := overloadKey{static: set.Static, name: set.Name}
				inherited[key] = appendUnique(inherited[key], m)
			}
		}
		acc.merge(inherited)
	}

	for _, mixin := range c.Mixins() {
		acc.merge(mixinLayer(mixin))
	}

	own := methodLayer{}
	for _, m := range c.methods {
		own.add(m)
	}
	acc.merge(own)

	r := &Registry{
		id:    registryIDs.Add(1),
		class: c,
		sets:  map[overloadKey]*OverloadSet{},
	}
	for key, methods := range acc {
		if len(methods) == 0 {
			continue
		}
		r.sets[key] = &OverloadSet{
			Name:    key.name,
			Static:  key.static,
			Methods: methods,
		}
	}
	return r
}
